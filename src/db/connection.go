package db

import (
	"context"
	"fmt"

	"github.com/enzococca/mekan-admin/src/config"
	"github.com/enzococca/mekan-admin/src/logging"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the process-wide connection pool.
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	logging.Info().
		Str("host", cfg.Host).
		Int("max_open_conns", cfg.MaxOpenConns).
		Msg("database connected")

	return db, nil
}

// Ping checks that the pool can reach the server.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// ResolveFindsTable picks the finds table once. In auto mode mekan_buluntu
// wins when it exists, otherwise the older finds table is used.
func ResolveFindsTable(ctx context.Context, db *gorm.DB, mode string) (string, error) {
	if mode != config.FindsTableAuto {
		return mode, nil
	}

	var n int64
	err := db.WithContext(ctx).Raw(
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_name = ?",
		config.FindsTableBuluntu,
	).Scan(&n).Error
	if err != nil {
		return "", fmt.Errorf("resolve finds table: %w", err)
	}

	table := config.FindsTableFinds
	if n > 0 {
		table = config.FindsTableBuluntu
	}
	logging.Info().Str("table", table).Msg("finds table resolved")
	return table, nil
}
