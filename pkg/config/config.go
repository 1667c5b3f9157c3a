// Package config loads coedit configuration from defaults, an optional
// YAML file and COEDIT_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// EnvPrefix prefixes environment overrides: room.id is COEDIT_ROOM_ID.
const EnvPrefix = "COEDIT"

// Config is the complete coedit configuration.
type Config struct {
	Room    RoomConfig    `mapstructure:"room"`
	Relay   RelayConfig   `mapstructure:"relay"`
	Store   StoreConfig   `mapstructure:"store"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// RoomConfig configures the editing room.
type RoomConfig struct {
	ID                string `mapstructure:"id"`
	LogCapacity       int    `mapstructure:"log_capacity"`
	LogSync           bool   `mapstructure:"log_sync"`
	AllowDegradedUndo bool   `mapstructure:"allow_degraded_undo"`
}

// RelayConfig configures the relay client and server.
type RelayConfig struct {
	URL          string        `mapstructure:"url"`
	Listen       string        `mapstructure:"listen"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// StoreConfig configures the SQLite archive.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Listen
// disables it.
type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

// Load reads configuration. path may be empty, in which case only defaults
// and the environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("room.id", "demo-room")
	v.SetDefault("room.log_capacity", 15)
	v.SetDefault("room.log_sync", false)
	v.SetDefault("room.allow_degraded_undo", false)

	v.SetDefault("relay.url", "ws://localhost:8787")
	v.SetDefault("relay.listen", ":8787")
	v.SetDefault("relay.probe_timeout", 2*time.Second)

	v.SetDefault("store.path", ":memory:")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("metrics.listen", "")
}

// Validate checks the values that would otherwise fail late.
func (c *Config) Validate() error {
	var errs []error
	if c.Room.ID == "" {
		errs = append(errs, fmt.Errorf("%w: room.id is empty", ErrInvalid))
	}
	if c.Room.LogCapacity < 1 {
		errs = append(errs, fmt.Errorf("%w: room.log_capacity must be at least 1, got %d", ErrInvalid, c.Room.LogCapacity))
	}
	if c.Relay.ProbeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w: relay.probe_timeout must be positive, got %v", ErrInvalid, c.Relay.ProbeTimeout))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("%w: log.format must be console or json, got %q", ErrInvalid, c.Log.Format))
	}
	return errors.Join(errs...)
}
