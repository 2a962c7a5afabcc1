// Package config holds the configuration for embedding corvusdb: where the
// durability log lives, how its records are compressed, and how the engine
// logs. Values come from defaults, an optional YAML file, and CORVUS_*
// environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	WAL     WALConfig     `yaml:"wal"`
	Logging LoggingConfig `yaml:"logging"`
}

// WALConfig configures the durability intent log.
type WALConfig struct {
	Dir        string `yaml:"dir" env:"CORVUS_WAL_DIR"`
	Codec      string `yaml:"codec" env:"CORVUS_WAL_CODEC"`
	SyncWrites bool   `yaml:"sync_writes" env:"CORVUS_WAL_SYNC_WRITES"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"CORVUS_LOG_LEVEL"`
	Format string `yaml:"format" env:"CORVUS_LOG_FORMAT"`
}

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		WAL: WALConfig{
			Dir:        "data/wal",
			Codec:      "snappy",
			SyncWrites: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads a YAML file over the defaults and applies environment
// overrides. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.LoadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv applies CORVUS_* environment variable overrides.
func (c *Config) LoadFromEnv() {
	if dir := os.Getenv("CORVUS_WAL_DIR"); dir != "" {
		c.WAL.Dir = dir
	}
	if codec := os.Getenv("CORVUS_WAL_CODEC"); codec != "" {
		c.WAL.Codec = codec
	}
	if syncWrites := os.Getenv("CORVUS_WAL_SYNC_WRITES"); syncWrites != "" {
		c.WAL.SyncWrites = strings.ToLower(syncWrites) == "true"
	}
	if level := os.Getenv("CORVUS_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("CORVUS_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.WAL.Dir == "" {
		return fmt.Errorf("config: wal directory cannot be empty")
	}
	switch c.WAL.Codec {
	case "", "none", "snappy", "lz4", "zstd":
	default:
		return fmt.Errorf("config: unknown wal codec %q", c.WAL.Codec)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Logging.Format)
	}
	return nil
}
