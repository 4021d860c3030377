package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the file-based service configuration. Connection credentials
// come from the environment; the file holds topology choices.
type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Storage struct {
		// Driver selects the room store: postgres, redis or memory.
		Driver string `yaml:"driver"`
	} `yaml:"storage"`

	Content struct {
		DecksDir string `yaml:"decks_dir"`
	} `yaml:"content"`

	Events struct {
		// Publisher selects where outbox events go: jetstream or log.
		Publisher string `yaml:"publisher"`
		NATSURL   string `yaml:"nats_url"`
	} `yaml:"events"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Run on defaults when no config file is present.
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if config.Server.Port == "" {
		config.Server.Port = getEnv("PORT", "8080")
	}
	if len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = []string{"*"}
	}
	if config.Storage.Driver == "" {
		config.Storage.Driver = "memory"
	}
	if config.Content.DecksDir == "" {
		config.Content.DecksDir = "decks"
	}
	if config.Events.Publisher == "" {
		config.Events.Publisher = "log"
	}

	return &config, nil
}
