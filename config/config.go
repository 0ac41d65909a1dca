// Package config resolves server settings from defaults, an optional TOML
// file and MEETLINE_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/meetline/server/recording"
)

var ErrInvalidConfig = errors.New("invalid config")

const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

type Config struct {
	Addr        string
	Token       string
	DataDir     string
	DevMode     bool
	Store       string // "file" or "sqlite"
	DBPath      string // sqlite only; defaults to DataDir/meetline.db
	AgendaFile  string // outline imported by seed when no path is given
	PausePolicy recording.PausePolicy
	Journal     bool // persist unconfirmed writes to DataDir/pending.json
	LogLevel    string
	LogFormat   string

	// Path is the config file that was read, empty if none.
	Path string
}

type fileConfig struct {
	Addr        string `toml:"addr"`
	Token       string `toml:"token"`
	DataDir     string `toml:"data_dir"`
	DevMode     *bool  `toml:"dev_mode"`
	Store       string `toml:"store"`
	DBPath      string `toml:"db_path"`
	AgendaFile  string `toml:"agenda_file"`
	PausePolicy string `toml:"pause_policy"`
	Journal     *bool  `toml:"journal"`
	LogLevel    string `toml:"log_level"`
	LogFormat   string `toml:"log_format"`
}

func Default() *Config {
	return &Config{
		Addr:        ":8080",
		DataDir:     defaultDataDir(),
		Store:       StoreFile,
		PausePolicy: recording.PauseKeepOpen,
		Journal:     true,
	}
}

// Load reads path, or the XDG config file when path is empty. An explicit
// path that does not exist is an error; a missing XDG file is not.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = configFilePath()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}

	if path != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
		}
		if err := fc.apply(cfg); err != nil {
			return nil, err
		}
		cfg.Path = path
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (fc fileConfig) apply(cfg *Config) error {
	if fc.Addr != "" {
		cfg.Addr = fc.Addr
	}
	if fc.Token != "" {
		cfg.Token = fc.Token
	}
	if fc.DataDir != "" {
		cfg.DataDir = expandTilde(fc.DataDir)
	}
	if fc.DevMode != nil {
		cfg.DevMode = *fc.DevMode
	}
	if fc.Store != "" {
		cfg.Store = fc.Store
	}
	if fc.DBPath != "" {
		cfg.DBPath = expandTilde(fc.DBPath)
	}
	if fc.AgendaFile != "" {
		cfg.AgendaFile = expandTilde(fc.AgendaFile)
	}
	if fc.PausePolicy != "" {
		p, err := recording.ParsePausePolicy(fc.PausePolicy)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		cfg.PausePolicy = p
	}
	if fc.Journal != nil {
		cfg.Journal = *fc.Journal
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.LogFormat != "" {
		cfg.LogFormat = fc.LogFormat
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("MEETLINE_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("MEETLINE_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("MEETLINE_DATA_DIR"); v != "" {
		cfg.DataDir = expandTilde(v)
	}
	if v := os.Getenv("MEETLINE_STORE"); v != "" {
		cfg.Store = v
	}
	if v := os.Getenv("MEETLINE_DB_PATH"); v != "" {
		cfg.DBPath = expandTilde(v)
	}
	if v := os.Getenv("MEETLINE_AGENDA_FILE"); v != "" {
		cfg.AgendaFile = expandTilde(v)
	}
	if v := os.Getenv("MEETLINE_PAUSE_POLICY"); v != "" {
		p, err := recording.ParsePausePolicy(v)
		if err != nil {
			return fmt.Errorf("%w: MEETLINE_PAUSE_POLICY: %v", ErrInvalidConfig, err)
		}
		cfg.PausePolicy = p
	}
	for name, dst := range map[string]*bool{
		"MEETLINE_DEV_MODE": &cfg.DevMode,
		"MEETLINE_JOURNAL":  &cfg.Journal,
	} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidConfig, name, v)
		}
		*dst = b
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Store {
	case StoreFile, StoreSQLite:
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	}
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is empty", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) ResolvedDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.DataDir, "meetline.db")
}

// JournalPath is empty when the journal is kept in memory only.
func (c *Config) JournalPath() string {
	if !c.Journal {
		return ""
	}
	return filepath.Join(c.DataDir, "pending.json")
}

func configFilePath() string {
	var configDir string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		configDir = filepath.Join(xdg, "meetline")
	} else if home, err := os.UserHomeDir(); err == nil {
		configDir = filepath.Join(home, ".config", "meetline")
	} else {
		return ""
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "meetline")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "meetline")
	}
	return filepath.Join(".", ".meetline")
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
