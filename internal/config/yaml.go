package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the top-level tally configuration file. Its keys
// mirror the viper keys used by the CLI.
type YAMLConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Auth     AuthConfig     `yaml:"auth"`
	Token    TokenConfig    `yaml:"token"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Cache    CacheConfig    `yaml:"cache"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	MaxBodySize string   `yaml:"max_body_size"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// StoreConfig selects the database backend.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// AuthConfig controls owner sessions.
type AuthConfig struct {
	JWTSecret  string `yaml:"jwt_secret"`
	SessionTTL string `yaml:"session_ttl"`
}

type TokenConfig struct {
	TTL string `yaml:"ttl"`
}

// IngestConfig bounds how many events one client may submit per window.
type IngestConfig struct {
	RateLimit int    `yaml:"rate_limit"`
	Window    string `yaml:"window"`
}

// ExchangeConfig limits token exchange attempts per IP per minute.
type ExchangeConfig struct {
	RateLimit int `yaml:"rate_limit"`
}

type WebhookConfig struct {
	Secret string `yaml:"secret"`
}

type CacheConfig struct {
	TTL string `yaml:"ttl"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadYAMLConfig reads and parses a YAML configuration file. Environment
// variables referenced as ${VAR_NAME} in the file are expanded before parsing.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables: ${VAR_NAME}
	content := os.ExpandEnv(string(data))

	cfg := DefaultYAMLConfig()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// DefaultYAMLConfig returns a YAMLConfig pre-filled with sensible defaults.
func DefaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			MaxBodySize: "1MB",
			CORSOrigins: []string{"*"},
		},
		Store: StoreConfig{
			Driver: DriverSQLite,
		},
		Auth: AuthConfig{
			SessionTTL: "24h",
		},
		Token: TokenConfig{
			TTL: "1h",
		},
		Ingest: IngestConfig{
			RateLimit: 10,
			Window:    "60s",
		},
		Exchange: ExchangeConfig{
			RateLimit: 30,
		},
		Cache: CacheConfig{
			TTL: "30s",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefaultConfig writes the default configuration to a YAML file.
func WriteDefaultConfig(path string) error {
	cfg := DefaultYAMLConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
