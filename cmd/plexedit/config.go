package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// serverConfig is read from the yaml config file. Environment variables
// override file values so deployments can keep credentials out of the file.
type serverConfig struct {
	Port int `yaml:"port"`

	// Document is the dataset file loaded at startup. Optional when the
	// store already holds data.
	Document string `yaml:"document"`

	// StorePath is the sqlite file backing the store. Defaults to an
	// in-memory store when empty and no PostgresUri is given.
	StorePath string `yaml:"store_path"`

	// PostgresUri selects a postgres store instead of sqlite.
	PostgresUri string `yaml:"postgres_uri"`

	LogDir string `yaml:"log_dir"`
}

func loadConfig(path string) (serverConfig, error) {
	config := serverConfig{Port: 8000, LogDir: "logs"}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return config, fmt.Errorf("error reading config file %v: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return config, fmt.Errorf("error parsing config file %v: %w", path, err)
		}
	}

	if document := os.Getenv("PLEXEDIT_DOCUMENT"); document != "" {
		config.Document = document
	}
	if storePath := os.Getenv("PLEXEDIT_STORE_PATH"); storePath != "" {
		config.StorePath = storePath
	}
	if postgresUri := os.Getenv("PLEXEDIT_POSTGRES_URI"); postgresUri != "" {
		config.PostgresUri = postgresUri
	}
	if logDir := os.Getenv("PLEXEDIT_LOG_DIR"); logDir != "" {
		config.LogDir = logDir
	}

	return config, nil
}
