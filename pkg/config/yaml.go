package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvAPIKey = "SNOWBALL_API_KEY"
	EnvAPIURL = "SNOWBALL_API_URL"
	EnvChain  = "SNOWBALL_CHAIN"
)

// DecodeStrict decodes YAML from a reader and rejects any unknown fields.
// This ensures the YAML only contains recognized configuration keys.
func DecodeStrict(r io.Reader, out interface{}) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads the YAML file at path on top of DefaultConfig and applies
// environment overrides. An empty path only applies defaults and env.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config %s: %w", path, err)
		}
		defer f.Close()
		if err := DecodeStrict(f, cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides fields from SNOWBALL_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv(EnvChain); v != "" {
		c.Chain = v
	}
}
