package config

import (
	"encoding/base64"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServerAddr     string   `envconfig:"SERVER_ADDR" default:"localhost:8000"`
	DataDir        string   `envconfig:"DATA_DIR" default:"./data"`
	SigningSecret  string   `envconfig:"SIGNING_SECRET"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`

	// SigningKey is the decoded form of SigningSecret.
	SigningKey []byte `ignored:"true"`
}

// Load reads configuration from the environment, with an optional .env
// file for local development. Flag values from the command line override
// what Load returns.
func Load() (*Config, error) {
	// missing .env is fine; the environment is authoritative
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("GOCONNECT", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	return &cfg, nil
}

// Finalize validates the config and decodes the signing secret. Called
// after flag overrides are applied.
func (c *Config) Finalize() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}
	if c.SigningSecret == "" {
		return fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := base64.StdEncoding.DecodeString(c.SigningSecret)
	if err != nil {
		return fmt.Errorf("decode signing secret: %w", err)
	}
	c.SigningKey = signingKey

	return nil
}
