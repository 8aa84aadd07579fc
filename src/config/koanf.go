package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

var defaultConfigPaths = []string{"config.yaml", "config.yml"}

// envMappings maps environment variable names (lower case) to koanf paths.
var envMappings = map[string]string{
	"server_host":                   "server.host",
	"server_debug":                  "server.debug",
	"db_dsn":                        "database.dsn",
	"postgres_host":                 "database.host",
	"postgres_port":                 "database.port",
	"postgres_database":             "database.name",
	"postgres_user":                 "database.user",
	"postgres_password":             "database.password",
	"postgres_sslmode":              "database.sslmode",
	"db_max_open_conns":             "database.max_open_conns",
	"db_max_idle_conns":             "database.max_idle_conns",
	"db_conn_max_lifetime":          "database.conn_max_lifetime",
	"db_auto_migrate":               "database.auto_migrate",
	"secret_key":                    "session.secret",
	"session_ttl":                   "session.ttl",
	"cookie_secure":                 "session.secure",
	"login_rate_limit":              "session.login_attempts",
	"login_rate_window":             "session.login_window",
	"cors_origins":                  "cors.origins",
	"finds_table":                   "schema.finds_table",
	"source_srid":                   "schema.source_srid",
	"output_srid":                   "schema.output_srid",
	"spatial_layer_limit":           "schema.spatial_layer_limit",
	"media_public_base_url":         "media.public_base_url",
	"google_drive_credentials_path": "media.drive_credentials_path",
	"google_drive_credentials_json": "media.drive_credentials_json",
	"drive_breaker_cooldown":        "media.drive_breaker_cooldown",
	"log_level":                     "logging.level",
	"log_format":                    "logging.format",
	"admin_password":                "seed.admin_password",
}

var sliceConfigPaths = []string{"cors.origins"}

// Load reads .env, defaults, an optional YAML file and the environment, in that
// order of increasing priority.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range defaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envTransformFunc returns "" for variables that are not configuration, which
// makes koanf skip them.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// processSliceFields splits comma-separated env values for slice settings.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(s, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
