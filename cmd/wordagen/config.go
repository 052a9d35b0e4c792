package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/CTAG07/Wordagen/pkg/wordagen"
)

const (
	envConfig   = "WORDAGEN_CONFIG"
	envCacheDir = "WORDAGEN_CACHE_DIR"

	backendFile   = "file"
	backendSQLite = "sqlite"
)

// GenerationConfig holds the model and generation defaults.
type GenerationConfig struct {
	wordagen.Options `yaml:",inline"`
	Markov           bool `json:"markov" yaml:"markov" toml:"markov"`
	MaxAttempts      int  `json:"max_attempts" yaml:"max_attempts" toml:"max_attempts"`
	Workers          int  `json:"workers" yaml:"workers" toml:"workers"`
	Novel            bool `json:"novel" yaml:"novel" toml:"novel"`
}

// CacheConfig selects where models and downloaded word lists are kept.
type CacheConfig struct {
	Dir          string `json:"dir" yaml:"dir" toml:"dir"`
	Backend      string `json:"backend" yaml:"backend" toml:"backend"`
	DatabasePath string `json:"database_path" yaml:"database_path" toml:"database_path"`
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	Addr               string `json:"addr" yaml:"addr" toml:"addr"`
	MaxCount           int    `json:"max_count" yaml:"max_count" toml:"max_count"`
	MaxOrder           int    `json:"max_order" yaml:"max_order" toml:"max_order"`
	MaxLength          int    `json:"max_length" yaml:"max_length" toml:"max_length"`
	MaxModels          int    `json:"max_models" yaml:"max_models" toml:"max_models"`
	RemoteSources      bool   `json:"remote_sources" yaml:"remote_sources" toml:"remote_sources"`
	ShutdownTimeoutSec int    `json:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec" toml:"shutdown_timeout_sec"`
}

type Config struct {
	Generation GenerationConfig `json:"generation" yaml:"generation" toml:"generation"`
	Cache      CacheConfig      `json:"cache" yaml:"cache" toml:"cache"`
	Server     ServerConfig     `json:"server" yaml:"server" toml:"server"`
	LogLevel   string           `json:"log_level" yaml:"log_level" toml:"log_level"`
}

func DefaultConfig() *Config {
	return &Config{
		Generation: GenerationConfig{
			Options:     wordagen.DefaultOptions(),
			MaxAttempts: 200,
			Workers:     1,
			Novel:       true,
		},
		Cache: CacheConfig{
			Dir:     defaultCacheDir(),
			Backend: backendFile,
		},
		Server: ServerConfig{
			Addr:               ":7280",
			MaxCount:           500,
			MaxOrder:           6,
			MaxLength:          64,
			MaxModels:          16,
			ShutdownTimeoutSec: 10,
		},
	}
}

func defaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "wordagen")
	}
	return "cache"
}

// LoadConfig returns the defaults overlaid with the file at path, decoded
// according to its extension. An empty path yields the defaults. The
// WORDAGEN_CACHE_DIR environment variable overrides the file's cache dir.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, config)
		case ".json":
			err = json.Unmarshal(data, config)
		case ".toml":
			err = toml.Unmarshal(data, config)
		default:
			return nil, fmt.Errorf("unsupported config extension: %q", ext)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if dir := os.Getenv(envCacheDir); dir != "" {
		config.Cache.Dir = dir
	}
	config.Cache.Dir = expandHome(config.Cache.Dir)
	config.Cache.DatabasePath = expandHome(config.Cache.DatabasePath)
	return config, nil
}

// Validate checks the parts of the configuration that are not generation options.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case backendFile, backendSQLite:
	default:
		return fmt.Errorf("unknown cache backend %q (want %q or %q)", c.Cache.Backend, backendFile, backendSQLite)
	}
	if c.Cache.Dir == "" {
		return errors.New("cache dir must not be empty")
	}
	if c.Generation.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.Generation.MaxAttempts)
	}
	if c.Server.MaxCount < 1 {
		return fmt.Errorf("server max_count must be at least 1, got %d", c.Server.MaxCount)
	}
	if c.Server.MaxOrder < 1 {
		return fmt.Errorf("server max_order must be at least 1, got %d", c.Server.MaxOrder)
	}
	if c.Server.MaxLength < 1 {
		return fmt.Errorf("server max_length must be at least 1, got %d", c.Server.MaxLength)
	}
	if c.Server.MaxModels < 1 {
		return fmt.Errorf("server max_models must be at least 1, got %d", c.Server.MaxModels)
	}
	if c.Server.ShutdownTimeoutSec < 1 {
		return fmt.Errorf("server shutdown_timeout_sec must be at least 1, got %d", c.Server.ShutdownTimeoutSec)
	}
	return nil
}

// databasePath returns the SQLite cache file, defaulting to a file in the cache dir.
func (c *Config) databasePath() string {
	if c.Cache.DatabasePath != "" {
		return c.Cache.DatabasePath
	}
	return filepath.Join(c.Cache.Dir, "models.db")
}

// WriteConfig writes config to path in the format its extension names. The
// file is replaced atomically.
func WriteConfig(path string, config *Config) error {
	var data []byte
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(config)
	case ".json":
		data, err = json.MarshalIndent(config, "", "  ")
	case ".toml":
		data, err = toml.Marshal(config)
	default:
		return fmt.Errorf("unsupported config extension: %q", ext)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err = os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// resolveConfigPath returns the --config flag value, then WORDAGEN_CONFIG.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(envConfig)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func parseLogLevel(level string, fallback slog.Level) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}
