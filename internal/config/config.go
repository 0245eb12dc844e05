package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment variables that override config. A double
// underscore separates nesting levels: SESM_MEMORY__DEFAULT_TTL=90s.
const EnvPrefix = "SESM_"

// Config holds all sesm configuration.
type Config struct {
	Server ServerConfig `koanf:"server"`
	Memory MemoryConfig `koanf:"memory"`
	Log    LogConfig    `koanf:"log"`
	Client ClientConfig `koanf:"client"`
}

type ServerConfig struct {
	Bind string `koanf:"bind" validate:"required"`
	Port int    `koanf:"port" validate:"min=1,max=65535"`
	// Journal enables the in-memory transition journal behind /memory/{id}/history.
	Journal bool `koanf:"journal"`
}

type MemoryConfig struct {
	DefaultTTL      time.Duration `koanf:"default_ttl" validate:"gt=0"`
	PromotionWindow time.Duration `koanf:"promotion_window" validate:"gt=0"`
	SweepInterval   time.Duration `koanf:"sweep_interval" validate:"gt=0"`
}

type LogConfig struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `koanf:"json"`
}

type ClientConfig struct {
	URL     string        `koanf:"url" validate:"required,url"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind:    "127.0.0.1",
			Port:    8000,
			Journal: true,
		},
		Memory: MemoryConfig{
			DefaultTTL:      60 * time.Second,
			PromotionWindow: 120 * time.Second,
			SweepInterval:   5 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Client: ClientConfig{
			URL:     "http://127.0.0.1:8000",
			Timeout: 5 * time.Second,
		},
	}
}

// Load layers SESM_* environment overrides on top of Default and validates
// the result.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envKey,
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps SESM_MEMORY__DEFAULT_TTL to memory.default_ttl.
func envKey(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return strings.ReplaceAll(key, "__", "."), value
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
