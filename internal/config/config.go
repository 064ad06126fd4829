package config

import (
	"errors"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all server configuration. Values come from an optional
// config.yaml overridden by environment variables.
type Config struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	DBPath   string `yaml:"db_path" env:"DB_PATH" env-default:"scolaris.db"`

	// PaymentChunkSize is the target chunk size for the payment bulk-insert
	// stage of an import run.
	PaymentChunkSize int `yaml:"payment_chunk_size" env:"PAYMENT_CHUNK_SIZE" env-default:"100"`
}

// Load reads config.yaml when present, then applies environment overrides.
func Load(path string) (*Config, error) {
	var cfg Config
	if path == "" {
		path = "config.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
