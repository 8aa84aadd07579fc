package services

import (
	"context"
	"testing"

	"github.com/enzococca/mekan-admin/src/models"
	"github.com/enzococca/mekan-admin/src/seed"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an in-memory SQLite database with the account tables
// migrated and the default roles seeded.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, seed.Migrate(db))
	require.NoError(t, db.AutoMigrate(&models.MediaModel{}))
	require.NoError(t, seed.Roles(context.Background(), db))
	return db
}

func roleID(t *testing.T, db *gorm.DB, name string) int {
	t.Helper()
	var r models.RoleModel
	require.NoError(t, db.Where("role_name = ?", name).First(&r).Error)
	return r.RoleID
}
