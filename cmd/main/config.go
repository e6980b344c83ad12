package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/natefinch/atomic"

	"github.com/Yosolita1978/cascadiaaicollective/pkg/site"
)

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	LogLevel string       `json:"log_level" toml:"log_level" validate:"oneof=debug info warn error"`
	Site     *site.Config `json:"site_config" toml:"site_config" validate:"required"`
}

// DefaultConfig creates a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Site:     site.DefaultConfig(),
	}
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// LoadConfig reads the configuration from a JSON or TOML file at the given
// path, chosen by extension. Values missing from the file keep their
// defaults. If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	// Initialize with default configurations
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		// If the file doesn't exist, create it with the default config.
		if os.IsNotExist(err) {
			if err = WriteConfig(path, config); err != nil {
				// Log a warning instead of failing, as the build can still run with defaults.
				fmt.Fprintf(os.Stderr, "warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		// For other errors (e.g., permission denied), return the error.
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if isTOML(path) {
		// The TOML decoder replaces nested pointers wholesale, which would drop
		// defaults. Decode into a generic table and merge it through the JSON tags.
		var table map[string]any
		if _, err = toml.Decode(string(file), &table); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		if file, err = json.Marshal(table); err != nil {
			return nil, fmt.Errorf("failed to convert config file: %w", err)
		}
	}
	if err = json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err = validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	if err = config.Site.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// WriteConfig atomically writes config to path as JSON or TOML, chosen by extension.
func WriteConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if isTOML(path) {
		if err := toml.NewEncoder(&buf).Encode(config); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
	} else {
		data, err := json.MarshalIndent(config, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config dir: %w", err)
		}
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
