// Package config loads the settings of the oxm command.
//
// Settings start from Default, are overlaid by an optional yaml or toml file
// and finally by OXM_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as "250ms" or "5m" in files and env.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// Config holds the runtime settings.
type Config struct {
	LogLevel  string `yaml:"log_level" toml:"log_level" env:"OXM_LOG_LEVEL"`
	LogFormat string `yaml:"log_format" toml:"log_format" env:"OXM_LOG_FORMAT"`

	Addr string `yaml:"addr" toml:"addr" env:"OXM_ADDR"`

	Driver        string `yaml:"driver" toml:"driver" env:"OXM_DRIVER"`
	PostgresURL   string `yaml:"postgres_url" toml:"postgres_url" env:"OXM_POSTGRES_URL"`
	MongoURI      string `yaml:"mongo_uri" toml:"mongo_uri" env:"OXM_MONGO_URI"`
	MongoDatabase string `yaml:"mongo_database" toml:"mongo_database" env:"OXM_MONGO_DATABASE"`

	RedisURL string   `yaml:"redis_url" toml:"redis_url" env:"OXM_REDIS_URL"`
	CacheTTL Duration `yaml:"cache_ttl" toml:"cache_ttl" env:"OXM_CACHE_TTL"`

	KafkaBrokers []string          `yaml:"kafka_brokers" toml:"kafka_brokers" env:"OXM_KAFKA_BROKERS" envSeparator:","`
	KafkaTopics  map[string]string `yaml:"kafka_topics" toml:"kafka_topics" env:"OXM_KAFKA_TOPICS"`
	RelayStrict  bool              `yaml:"relay_strict" toml:"relay_strict" env:"OXM_RELAY_STRICT"`

	MappingFiles []string `yaml:"mapping_files" toml:"mapping_files" env:"OXM_MAPPING_FILES" envSeparator:","`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		LogLevel:  "info",
		LogFormat: "console",
		Addr:      ":9090",
		Driver:    "memory",
		CacheTTL:  Duration(5 * time.Minute),
	}
}

// Load returns Default overlaid by the file at path (skipped when path is
// empty) and by the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, cfg)
	case ".toml":
		err = toml.Unmarshal(b, cfg)
	default:
		return fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Validate checks the settings that the command depends on.
func (c Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format: unsupported %q", c.LogFormat)
	}
	switch c.Driver {
	case "memory":
	case "postgres":
		if c.PostgresURL == "" {
			return fmt.Errorf("driver postgres requires postgres_url")
		}
	case "mongo":
		if c.MongoURI == "" || c.MongoDatabase == "" {
			return fmt.Errorf("driver mongo requires mongo_uri and mongo_database")
		}
	default:
		return fmt.Errorf("driver: unsupported %q", c.Driver)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must not be negative")
	}
	return nil
}

// Logger builds the zerolog logger described by the settings.
func (c Config) Logger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var l zerolog.Logger
	if c.LogFormat == "json" {
		l = zerolog.New(os.Stderr)
	} else {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return l.Level(level).With().Timestamp().Logger()
}
