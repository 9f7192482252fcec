// Package config loads cipherstore configuration.
//
// Configuration comes from a single YAML file named by the --config flag
// or the CIPHERSTORE_CONFIG environment variable. Without a file the
// defaults apply. Unknown keys are rejected.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvConfig names the environment variable that points at the config file
const EnvConfig = "CIPHERSTORE_CONFIG"

const (
	DefaultDatabase = ".cipherstore"
	DefaultListen   = "127.0.0.1:8545"
	DefaultIdentity = "cipherstore.key"
)

// Config is the complete cipherstore configuration
type Config struct {
	// Database is the bbolt file holding records and events.
	Database string `yaml:"database"`

	// Listen is the address the HTTP transport binds to.
	Listen string `yaml:"listen"`

	// Identity is the Ed25519 key file the CLI signs as.
	Identity string `yaml:"identity"`

	// Remote, when set, sends record operations to a cipherstore server
	// instead of opening Database directly.
	Remote string `yaml:"remote"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// UseKeyring lets sealed stores read their passphrase from the OS keyring.
	UseKeyring bool `yaml:"use_keyring"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Database:   DefaultDatabase,
		Listen:     DefaultListen,
		Identity:   DefaultIdentity,
		LogLevel:   "info",
		UseKeyring: true,
	}
}

// Load reads the config file at path. An empty path falls back to
// EnvConfig, and then to Default.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	// Relative paths in the file are relative to the file itself
	base := filepath.Dir(path)
	cfg.Database = resolve(base, cfg.Database)
	cfg.Identity = resolve(base, cfg.Identity)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field values
func (c *Config) Validate() error {
	if c.Database == "" {
		return errors.New("database must not be empty")
	}
	if c.Listen == "" {
		return errors.New("listen must not be empty")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the configured slog level
func (c *Config) Level() slog.Level {
	level, _ := ParseLevel(c.LogLevel)
	return level
}

// ParseLevel converts a level name to a slog.Level
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
