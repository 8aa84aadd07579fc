package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Finds table modes and paging bounds.
const (
	FindsTableAuto     = "auto"
	FindsTableBuluntu  = "mekan_buluntu"
	FindsTableFinds    = "finds"
	DefaultPerPage     = 50
	MaxPerPage         = 500
	DefaultSessionName = "mekan_session"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Session  SessionConfig  `koanf:"session"`
	CORS     CORSConfig     `koanf:"cors"`
	Schema   SchemaConfig   `koanf:"schema"`
	Media    MediaConfig    `koanf:"media"`
	Logging  LoggingConfig  `koanf:"logging"`
	Seed     SeedConfig     `koanf:"seed"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Debug           bool          `koanf:"debug"`
}

type DatabaseConfig struct {
	// DSN overrides the discrete connection fields when set.
	DSN             string        `koanf:"dsn"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Name            string        `koanf:"name"`
	User            string        `koanf:"user"`
	Password        string        `koanf:"password"`
	SSLMode         string        `koanf:"sslmode"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	// AutoMigrate creates the auth tables and seeds roles at startup.
	AutoMigrate bool `koanf:"auto_migrate"`
}

type SessionConfig struct {
	Secret     string        `koanf:"secret"`
	TTL        time.Duration `koanf:"ttl"`
	CookieName string        `koanf:"cookie_name"`
	Secure     bool          `koanf:"secure"`
	// LoginAttempts is the number of login or register posts allowed per
	// client IP within LoginWindow. Zero disables the limit.
	LoginAttempts int           `koanf:"login_attempts"`
	LoginWindow   time.Duration `koanf:"login_window"`
}

type CORSConfig struct {
	Origins []string `koanf:"origins"`
}

type SchemaConfig struct {
	FindsTable string `koanf:"finds_table"`
	SourceSRID int    `koanf:"source_srid"`
	OutputSRID int    `koanf:"output_srid"`
	// SpatialLayerLimit caps the features returned per layer by the map endpoint.
	SpatialLayerLimit int `koanf:"spatial_layer_limit"`
}

type MediaConfig struct {
	PublicBaseURL        string `koanf:"public_base_url"`
	DriveCredentialsPath string `koanf:"drive_credentials_path"`
	DriveCredentialsJSON string `koanf:"drive_credentials_json"`
	// DriveBreakerCooldown is how long Drive downloads are refused after repeated failures.
	DriveBreakerCooldown time.Duration `koanf:"drive_breaker_cooldown"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type SeedConfig struct {
	AdminPassword string `koanf:"admin_password"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            ":5001",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "postgres",
			User:            "postgres",
			SSLMode:         "require",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			AutoMigrate:     true,
		},
		Session: SessionConfig{
			TTL:           12 * time.Hour,
			CookieName:    DefaultSessionName,
			LoginAttempts: 10,
			LoginWindow:   time.Minute,
		},
		CORS: CORSConfig{
			Origins: []string{"https://mekan-admin.onrender.com", "http://localhost:5001"},
		},
		Schema: SchemaConfig{
			FindsTable:        FindsTableAuto,
			SourceSRID:        3997,
			OutputSRID:        4326,
			SpatialLayerLimit: 500,
		},
		Media: MediaConfig{
			DriveBreakerCooldown: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// PostgresDSN builds a libpq keyword/value connection string.
func (d DatabaseConfig) PostgresDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode)
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	switch c.Schema.FindsTable {
	case FindsTableAuto, FindsTableBuluntu, FindsTableFinds:
	default:
		return fmt.Errorf("invalid finds_table %q (want auto, mekan_buluntu or finds)", c.Schema.FindsTable)
	}
	if c.Schema.SourceSRID <= 0 || c.Schema.OutputSRID <= 0 {
		return errors.New("source_srid and output_srid must be positive")
	}
	if c.Schema.SpatialLayerLimit <= 0 {
		return errors.New("spatial_layer_limit must be positive")
	}
	if c.Database.MaxOpenConns <= 0 || c.Database.MaxIdleConns < 0 {
		return errors.New("database pool sizes must be positive")
	}
	if len(c.CORS.Origins) == 0 {
		return errors.New("at least one cors origin is required")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session ttl must be positive")
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = DefaultSessionName
	}
	if c.Session.LoginAttempts < 0 {
		return errors.New("login_attempts cannot be negative")
	}
	if c.Session.LoginAttempts > 0 && c.Session.LoginWindow <= 0 {
		return errors.New("login_window must be positive when login_attempts is set")
	}
	return nil
}

// EnsureSecret generates a random session secret when none is configured.
// It reports whether a secret was generated.
func (c *Config) EnsureSecret() (bool, error) {
	if c.Session.Secret != "" {
		return false, nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return false, err
	}
	c.Session.Secret = hex.EncodeToString(buf)
	return true, nil
}
