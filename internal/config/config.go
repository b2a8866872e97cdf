package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/matheus3301/chatsync/internal/store"
)

// Defaults applied by Default and WithDefaults.
const (
	DefaultServerURL        = "https://api.tools.gavago.fr"
	DefaultAPIBase          = "https://api.tools.gavago.fr/socketio/api"
	DefaultRoom             = "general"
	DefaultPseudo           = "Anonyme"
	DefaultSocketPath       = "/ws"
	DefaultStorage          = store.BackendSQLite
	DefaultPersistDebounce  = 200 * time.Millisecond
	DefaultHandshakeTimeout = 20 * time.Second
	DefaultLogLevel         = "info"
)

// Duration is a time.Duration written as a string such as "200ms".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// Config represents the global ~/.chatsync/config.toml.
type Config struct {
	DefaultProfile   string   `toml:"default_profile"`
	ServerURL        string   `toml:"server_url"`
	APIBase          string   `toml:"api_base"`
	DefaultRoom      string   `toml:"default_room"`
	Pseudo           string   `toml:"pseudo"`
	SocketPath       string   `toml:"socket_path"`
	Storage          string   `toml:"storage"`
	PersistDebounce  Duration `toml:"persist_debounce"`
	HandshakeTimeout Duration `toml:"handshake_timeout"`
	LogLevel         string   `toml:"log_level"`
}

// Default returns a config with every field set to its default.
func Default() *Config {
	return (&Config{}).WithDefaults()
}

// WithDefaults fills unset fields in place and returns cfg.
func (cfg *Config) WithDefaults() *Config {
	setDefault(&cfg.ServerURL, DefaultServerURL)
	setDefault(&cfg.APIBase, DefaultAPIBase)
	setDefault(&cfg.DefaultRoom, DefaultRoom)
	setDefault(&cfg.Pseudo, DefaultPseudo)
	setDefault(&cfg.SocketPath, DefaultSocketPath)
	setDefault(&cfg.Storage, DefaultStorage)
	setDefault(&cfg.LogLevel, DefaultLogLevel)
	if cfg.PersistDebounce.Duration <= 0 {
		cfg.PersistDebounce.Duration = DefaultPersistDebounce
	}
	if cfg.HandshakeTimeout.Duration <= 0 {
		cfg.HandshakeTimeout.Duration = DefaultHandshakeTimeout
	}
	return cfg
}

// Validate checks fields that have a closed set of values.
func (cfg *Config) Validate() error {
	if err := store.ValidateBackend(cfg.Storage); err != nil {
		return err
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}
	return nil
}

func setDefault(field *string, def string) {
	if *field == "" {
		*field = def
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault reads path and fills defaults. A missing file yields Default().
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
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
