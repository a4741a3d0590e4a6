package server

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config holds the chat service configuration.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `yaml:"addr"`

	// DBPath is the SQLite database path.
	DBPath string `yaml:"db_path"`

	// CertFile and KeyFile enable TLS when both are set.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// SessionTTL is how long a login token stays valid.
	SessionTTL time.Duration `yaml:"session_ttl"`

	// BcryptCost is the password hashing cost. Zero means the library
	// default.
	BcryptCost int `yaml:"bcrypt_cost"`

	// LogLevel is a logrus level name: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// EventBuffer is the per-subscriber event channel capacity. A slow
	// consumer that falls this far behind loses events and must catch up
	// over the messages endpoint.
	EventBuffer int `yaml:"event_buffer"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Addr:        ":8080",
		DBPath:      "qchat.db",
		SessionTTL:  24 * time.Hour,
		LogLevel:    "info",
		EventBuffer: 64,
	}
}

// LoadConfig reads a YAML config file and fills unset fields with defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "qchat.db"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	return cfg, nil
}
