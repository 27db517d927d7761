// ABOUTME: Configuration loading and parsing for skwad-server
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete skwad-server configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Sessions      SessionsConfig      `yaml:"sessions"`
	Autopilot     AutopilotConfig     `yaml:"autopilot"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// SessionsConfig holds session lifecycle configuration
type SessionsConfig struct {
	StaleAfter time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	StaleAfterRaw string `yaml:"stale_after"`
}

// AutopilotConfig gates the idle-agent classifier hand-off
type AutopilotConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
}

// NotificationsConfig holds desktop notification configuration
type NotificationsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		Server:        ServerConfig{HTTPAddr: "127.0.0.1:7421"},
		Sessions:      SessionsConfig{StaleAfter: time.Hour},
		Notifications: NotificationsConfig{Enabled: true},
		Logging:       LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Autopilot.Enabled && c.Autopilot.APIKey == "" {
		return fmt.Errorf("autopilot.api_key is required when autopilot is enabled")
	}

	if c.Sessions.StaleAfter < 0 {
		return fmt.Errorf("sessions.stale_after must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Sessions.StaleAfterRaw != "" {
		cfg.Sessions.StaleAfter, err = time.ParseDuration(cfg.Sessions.StaleAfterRaw)
		if err != nil {
			return fmt.Errorf("parsing stale_after %q: %w", cfg.Sessions.StaleAfterRaw, err)
		}
	}
	if cfg.Sessions.StaleAfter == 0 {
		cfg.Sessions.StaleAfter = time.Hour
	}

	return nil
}
