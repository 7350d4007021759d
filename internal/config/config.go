package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Default backend endpoints, overridable via config.toml or flags.
const (
	DefaultAPIURL    = "https://api.hosthub.app"
	DefaultSocketURL = "wss://ws.hosthub.app/socket"
)

// Config represents the global ~/.hubchat/config.toml.
type Config struct {
	APIURL         string `toml:"api_url"`
	SocketURL      string `toml:"socket_url"`
	DefaultProfile string `toml:"default_profile"`
}

// Default returns a config pointing at the production backend.
func Default() *Config {
	return &Config{
		APIURL:    DefaultAPIURL,
		SocketURL: DefaultSocketURL,
	}
}

// Load reads config from the given path and fills in endpoint defaults for
// fields the file leaves empty. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.SocketURL == "" {
		cfg.SocketURL = DefaultSocketURL
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
