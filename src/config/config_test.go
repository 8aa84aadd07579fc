package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "/nonexistent/config.yaml")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, FindsTableAuto, cfg.Schema.FindsTable)
	assert.Equal(t, 3997, cfg.Schema.SourceSRID)
	assert.Equal(t, 4326, cfg.Schema.OutputSRID)
	assert.Equal(t, 12*time.Hour, cfg.Session.TTL)
	assert.Equal(t, DefaultSessionName, cfg.Session.CookieName)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, 10, cfg.Session.LoginAttempts)
	assert.Equal(t, time.Minute, cfg.Session.LoginWindow)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "/nonexistent/config.yaml")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("FINDS_TABLE", "finds")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("SESSION_TTL", "90m")
	t.Setenv("LOGIN_RATE_LIMIT", "3")
	t.Setenv("LOGIN_RATE_WINDOW", "5m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, FindsTableFinds, cfg.Schema.FindsTable)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.Origins)
	assert.Equal(t, 90*time.Minute, cfg.Session.TTL)
	assert.Equal(t, 3, cfg.Session.LoginAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Session.LoginWindow)
}

func TestLoadRejectsUnknownFindsTable(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "/nonexistent/config.yaml")
	t.Setenv("FINDS_TABLE", "artefacts")

	_, err := Load()
	assert.ErrorContains(t, err, "finds_table")
}

func TestLoadDisablesAutoMigrate(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "/nonexistent/config.yaml")
	t.Setenv("DB_AUTO_MIGRATE", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Database.AutoMigrate)
}

func TestValidateRequiresCORSOrigin(t *testing.T) {
	cfg := defaultConfig()
	cfg.CORS.Origins = nil
	assert.ErrorContains(t, cfg.Validate(), "cors origin")
}

func TestValidateLoginLimit(t *testing.T) {
	cfg := defaultConfig()
	cfg.Session.LoginWindow = 0
	assert.ErrorContains(t, cfg.Validate(), "login_window")

	cfg.Session.LoginAttempts = 0
	assert.NoError(t, cfg.Validate())

	cfg.Session.LoginAttempts = -1
	assert.Error(t, cfg.Validate())
}

func TestPostgresDSN(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: 5432, Name: "n", User: "u", Password: "p", SSLMode: "disable"}
	assert.Equal(t, "host=h port=5432 dbname=n user=u password=p sslmode=disable", d.PostgresDSN())

	d.DSN = "postgres://x"
	assert.Equal(t, "postgres://x", d.PostgresDSN())
}

func TestEnsureSecret(t *testing.T) {
	cfg := defaultConfig()
	generated, err := cfg.EnsureSecret()
	require.NoError(t, err)
	assert.True(t, generated)
	assert.Len(t, cfg.Session.Secret, 64)

	generated, err = cfg.EnsureSecret()
	require.NoError(t, err)
	assert.False(t, generated)
}
