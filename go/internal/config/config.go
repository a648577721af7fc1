// Package config loads service configuration from an optional YAML file
// with environment-variable overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Storage / delivery modes.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	DeliveryLog  = "log"
	DeliveryNATS = "nats"
)

// Config is the full service configuration.
type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		CookieName     string   `yaml:"cookie_name"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Cooldown struct {
		PeriodSeconds int    `yaml:"period_seconds"`
		CallOnMount   bool   `yaml:"call_on_mount"`
		ActiveLabel   string `yaml:"active_label"`
		Debug         bool   `yaml:"debug"`
	} `yaml:"cooldown"`

	Storage struct {
		Mode string `yaml:"mode"` // memory | postgres
	} `yaml:"storage"`

	Delivery struct {
		Mode          string `yaml:"mode"` // log | nats
		NATSURL       string `yaml:"nats_url"`
		SubjectPrefix string `yaml:"subject_prefix"`
		Stream        string `yaml:"stream"`
	} `yaml:"delivery"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.Server.CookieName = "resend_session"
	cfg.Server.AllowedOrigins = []string{"*"}
	cfg.Cooldown.PeriodSeconds = 300
	cfg.Cooldown.ActiveLabel = "Send me a new code"
	cfg.Storage.Mode = StorageMemory
	cfg.Delivery.Mode = DeliveryLog
	cfg.Delivery.NATSURL = "nats://localhost:4222"
	cfg.Delivery.SubjectPrefix = "sendcode"
	cfg.Delivery.Stream = "SENDCODE"
	return cfg
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.CookieName = getEnv("COOKIE_NAME", c.Server.CookieName)
	c.Cooldown.PeriodSeconds = getEnvAsInt("COOLDOWN_SECONDS", c.Cooldown.PeriodSeconds)
	c.Cooldown.CallOnMount = getEnvAsBool("CALL_ON_MOUNT", c.Cooldown.CallOnMount)
	c.Cooldown.ActiveLabel = getEnv("ACTIVE_LABEL", c.Cooldown.ActiveLabel)
	c.Cooldown.Debug = getEnvAsBool("DEBUG", c.Cooldown.Debug)
	c.Storage.Mode = getEnv("STORAGE_MODE", c.Storage.Mode)
	c.Delivery.Mode = getEnv("DELIVERY_MODE", c.Delivery.Mode)
	c.Delivery.NATSURL = getEnv("NATS_URL", c.Delivery.NATSURL)
	c.Delivery.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", c.Delivery.SubjectPrefix)
	c.Delivery.Stream = getEnv("NATS_STREAM", c.Delivery.Stream)
}

func (c *Config) validate() error {
	if c.Cooldown.PeriodSeconds <= 0 {
		return fmt.Errorf("cooldown period must be positive, got %d", c.Cooldown.PeriodSeconds)
	}
	switch c.Storage.Mode {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("unknown storage mode %q", c.Storage.Mode)
	}
	switch c.Delivery.Mode {
	case DeliveryLog, DeliveryNATS:
	default:
		return fmt.Errorf("unknown delivery mode %q", c.Delivery.Mode)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
