// Package config loads runtime configuration from the environment and the
// workspace settings file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"okrdash/internal/calendar"
	"okrdash/internal/okr"
)

// Config holds application configuration
type Config struct {
	Workspace string
	DBPath    string
	Port      int
	LogLevel  string
	LogPretty bool
	Timezone  string
	Schedule  string
	Notify    bool
}

// Load reads configuration from environment variables, after loading a .env
// file from the working directory when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Workspace: getEnv("OKRDASH_WORKSPACE", "."),
		DBPath:    getEnv("OKRDASH_DB", ""),
		Port:      getEnvAsInt("OKRDASH_PORT", 8080),
		LogLevel:  getEnv("OKRDASH_LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("OKRDASH_LOG_PRETTY", false),
		Timezone:  getEnv("OKRDASH_TIMEZONE", ""),
		Schedule:  getEnv("OKRDASH_SCHEDULE", "0 2 * * *"),
		Notify:    getEnvAsBool("OKRDASH_DESKTOP_NOTIFY", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Workspace) == "" {
		return fmt.Errorf("OKRDASH_WORKSPACE is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("OKRDASH_PORT must be between 1 and 65535")
	}
	if c.Timezone != "" {
		if _, err := calendar.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("OKRDASH_TIMEZONE: %w", err)
		}
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// rawSettings mirrors okrs/settings.yml.
type rawSettings struct {
	Timezone   string          `yaml:"timezone"`
	MaxDepth   int             `yaml:"max_depth"`
	Thresholds *okr.Thresholds `yaml:"thresholds"`
}

// LoadSettings reads the engine settings file. A missing file yields the
// defaults; a non-empty timezone overrides the one in the file.
func LoadSettings(path, timezone string) (okr.Settings, error) {
	settings := okr.DefaultSettings()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return okr.Settings{}, fmt.Errorf("read settings: %w", err)
	default:
		var raw rawSettings
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return okr.Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
		}
		if raw.Thresholds != nil {
			settings.Thresholds = *raw.Thresholds
		}
		if raw.MaxDepth != 0 {
			settings.MaxDepth = raw.MaxDepth
		}
		if timezone == "" {
			timezone = raw.Timezone
		}
	}

	if timezone != "" {
		loc, err := calendar.LoadLocation(timezone)
		if err != nil {
			return okr.Settings{}, fmt.Errorf("settings timezone: %w", err)
		}
		settings.Location = loc
	}
	if err := settings.Validate(); err != nil {
		return okr.Settings{}, fmt.Errorf("settings %s: %w", path, err)
	}
	return settings, nil
}
