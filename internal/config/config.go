package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-ini/ini"
	"github.com/kelseyhightower/envconfig"

	"dedupe/internal/digest"
)

// EnvPrefix prefixes every environment override, e.g. DEDUPE_DB_PATH. Only
// prefixed names are read.
const EnvPrefix = "dedupe"

// Config captures runtime configuration for the dedupe tool.
type Config struct {
	// DBPath is the SQLite file holding the digest index.
	DBPath string `split_words:"true"`

	// ChunkSize is the number of bytes read per step while digesting a file.
	ChunkSize int `split_words:"true"`

	// LogLevel is one of debug, info, warn, error or fatal.
	LogLevel string `split_words:"true"`

	// ListenAddr is the address the read-only report server binds to.
	ListenAddr string `split_words:"true"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DBPath:     "dedupe.db3",
		ChunkSize:  digest.DefaultChunkSize,
		LogLevel:   "info",
		ListenAddr: "127.0.0.1:8080",
	}
}

// DefaultFile is where Load looks when no config file is named. It is empty
// when the user config directory cannot be determined.
func DefaultFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "dedupe", "config.ini")
}

// Load layers the INI file at path and then DEDUPE_* environment variables
// over the defaults. An empty path falls back to DefaultFile, which may be
// absent; a path given explicitly must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile()
	}
	if path != "" {
		if err := applyFile(&cfg, path, explicit); err != nil {
			return Config{}, err
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	return cfg, nil
}

func applyFile(cfg *Config, path string, required bool) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("config file %q: %w", path, err)
	}

	file, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("load config file %q: %w", path, err)
	}

	index := file.Section("index")
	cfg.DBPath = index.Key("db_path").MustString(cfg.DBPath)
	cfg.ChunkSize = index.Key("chunk_size").MustInt(cfg.ChunkSize)

	cfg.LogLevel = file.Section("log").Key("level").MustString(cfg.LogLevel)
	cfg.ListenAddr = file.Section("server").Key("listen").MustString(cfg.ListenAddr)
	return nil
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("database path cannot be empty")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return nil
}

// Level returns the parsed log level, defaulting to info.
func (c Config) Level() log.Level {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return level
}

// NormalizeRoot resolves a scan root to a clean absolute path. An empty root
// means the working directory.
func NormalizeRoot(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = "."
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve scan path %q: %w", trimmed, err)
	}
	return filepath.Clean(abs), nil
}
