package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is read from an optional TOML file, then overridden by STRUCTS_*
// environment variables.
type Config struct {
	NATSURL       string        `toml:"nats_url"`       // STRUCTS_NATS_URL (optional, empty = no events)
	LogLevel      string        `toml:"log_level"`      // STRUCTS_LOG_LEVEL (default "info")
	LogFormat     string        `toml:"log_format"`     // STRUCTS_LOG_FORMAT ("text" or "json", default "text")
	IDPrefix      string        `toml:"id_prefix"`      // STRUCTS_ID_PREFIX (default "st-")
	TemplatePaths []string      `toml:"template_paths"` // STRUCTS_TEMPLATE_PATHS (list separated by the OS path separator)
	SweepInterval time.Duration `toml:"-"`              // STRUCTS_SWEEP_INTERVAL (default 1m; 0 = disabled)

	// Path is the config file that was read, empty if none.
	Path string `toml:"-"`
}

type fileConfig struct {
	Config
	SweepInterval string `toml:"sweep_interval"`
}

const (
	defaultLogLevel      = "info"
	defaultLogFormat     = "text"
	defaultIDPrefix      = "st-"
	defaultSweepInterval = time.Minute
)

// DefaultPath returns ~/.config/structs/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "structs", "config.toml"), nil
}

// Load reads the file named by STRUCTS_CONFIG, or the default path, and
// applies environment overrides. A missing default file is not an error;
// a missing file named explicitly is.
func Load() (*Config, error) {
	c := &Config{
		LogLevel:      defaultLogLevel,
		LogFormat:     defaultLogFormat,
		IDPrefix:      defaultIDPrefix,
		SweepInterval: defaultSweepInterval,
	}

	path, explicit := os.LookupEnv("STRUCTS_CONFIG")
	explicit = explicit && path != ""
	if !explicit {
		p, err := DefaultPath()
		if err == nil {
			path = p
		}
	}
	if path != "" {
		if err := c.decodeFile(path); err != nil {
			if !os.IsNotExist(err) || explicit {
				return nil, fmt.Errorf("config %s: %w", path, err)
			}
		} else {
			c.Path = path
		}
	}

	c.NATSURL = envOrDefault("STRUCTS_NATS_URL", c.NATSURL)
	c.LogLevel = envOrDefault("STRUCTS_LOG_LEVEL", c.LogLevel)
	c.LogFormat = envOrDefault("STRUCTS_LOG_FORMAT", c.LogFormat)
	c.IDPrefix = envOrDefault("STRUCTS_ID_PREFIX", c.IDPrefix)
	if v := os.Getenv("STRUCTS_TEMPLATE_PATHS"); v != "" {
		c.TemplatePaths = filepath.SplitList(v)
	}
	if v := os.Getenv("STRUCTS_SWEEP_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("STRUCTS_SWEEP_INTERVAL: %w", err)
		}
		c.SweepInterval = d
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) decodeFile(path string) error {
	fc := fileConfig{Config: *c}
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	next := fc.Config
	next.SweepInterval = c.SweepInterval
	if fc.SweepInterval != "" {
		d, err := time.ParseDuration(fc.SweepInterval)
		if err != nil {
			return fmt.Errorf("sweep_interval: %w", err)
		}
		next.SweepInterval = d
	}
	*c = next
	return nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level %q: want debug, info, warn or error", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("log format %q: want text or json", c.LogFormat)
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("sweep interval %s is negative", c.SweepInterval)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
