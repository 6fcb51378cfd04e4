package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	StorageSQLite = "sqlite"
	StorageFile   = "file"
	StorageRedis  = "redis"
	StorageMemory = "memory"

	LanguageEnglish = "en"
	LanguageSpanish = "es"

	DefaultBackendURL = "http://localhost:3013"
)

var ErrInvalidConfig = errors.New("invalid config")

// Storage selects where the conversation is kept between runs.
// Path is the sqlite database file, Dir the file driver's directory.
type Storage struct {
	Driver      string `yaml:"driver" env:"SUPPORTCHAT_STORAGE" env-default:"sqlite"`
	Path        string `yaml:"path" env:"SUPPORTCHAT_STORAGE_PATH" env-default:"supportchat.db"`
	Dir         string `yaml:"dir" env:"SUPPORTCHAT_STORAGE_DIR" env-default:"supportchat-data"`
	Key         string `yaml:"key" env:"SUPPORTCHAT_STORAGE_KEY" env-default:"chatMessages"`
	RedisAddr   string `yaml:"redis_addr" env:"SUPPORTCHAT_REDIS_ADDR" env-default:"localhost:6379"`
	RedisPrefix string `yaml:"redis_prefix" env:"SUPPORTCHAT_REDIS_PREFIX" env-default:"supportchat:"`
}

type Log struct {
	Dir   string `yaml:"dir" env:"SUPPORTCHAT_LOG_DIR" env-default:"logs"`
	Debug bool   `yaml:"debug" env:"SUPPORTCHAT_DEBUG" env-default:"false"`
}

// Config holds application configuration
type Config struct {
	BackendURL     string        `yaml:"backend_url" env:"SUPPORTCHAT_BACKEND_URL" env-default:"http://localhost:3013"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"SUPPORTCHAT_REQUEST_TIMEOUT" env-default:"60s"`
	Language       string        `yaml:"language" env:"SUPPORTCHAT_LANG" env-default:"en"`
	Telemetry      bool          `yaml:"telemetry" env:"SUPPORTCHAT_TELEMETRY" env-default:"false"`
	Storage        Storage       `yaml:"storage"`
	Log            Log           `yaml:"log"`
}

// Load reads an optional .env file, then cfgPath (when set) and the
// environment. Environment values win over the file.
func Load(cfgPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if cfgPath != "" {
		if err := cleanenv.ReadConfig(cfgPath, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", cfgPath, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late
func (c *Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: backend url %q", ErrInvalidConfig, c.BackendURL)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("%w: negative request timeout", ErrInvalidConfig)
	}
	switch c.Storage.Driver {
	case StorageSQLite, StorageFile, StorageRedis, StorageMemory:
	default:
		return fmt.Errorf("%w: storage driver %q", ErrInvalidConfig, c.Storage.Driver)
	}
	if c.Storage.Driver == StorageFile && c.Storage.Dir == "" {
		return fmt.Errorf("%w: empty storage dir", ErrInvalidConfig)
	}
	if c.Storage.Key == "" {
		return fmt.Errorf("%w: empty storage key", ErrInvalidConfig)
	}
	switch c.Language {
	case LanguageEnglish, LanguageSpanish:
	default:
		return fmt.Errorf("%w: language %q", ErrInvalidConfig, c.Language)
	}
	return nil
}
