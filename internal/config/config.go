// Package config loads the snapshot configuration.
//
// Values are merged with priority Flag > Env > File > Default.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/GreedyKomodoDragon/s3-snapshot/internal/objectstore"
	"github.com/GreedyKomodoDragon/s3-snapshot/internal/snapshot"
)

// ErrInvalidConfig is returned by Validate
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete configuration of a snapshot run
type Config struct {
	Source      string `koanf:"source"`
	Destination string `koanf:"destination"`

	// Timestamp is the cutoff, as epoch seconds or an ISO-8601 instant
	Timestamp string `koanf:"timestamp"`

	Backend         string `koanf:"backend"`
	Endpoint        string `koanf:"endpoint"`
	Region          string `koanf:"region"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`

	// Connections caps in-flight store requests, 0 means unbounded
	Connections int `koanf:"connections"`
	Workers     int `koanf:"workers"`
	// RateLimit caps store requests per second, 0 means unlimited
	RateLimit float64 `koanf:"rate_limit"`

	ManifestKey string        `koanf:"manifest_key"`
	MetricsFile string        `koanf:"metrics_file"`
	Timeout     time.Duration `koanf:"timeout"`
	DryRun      bool          `koanf:"dry_run"`

	Log LogConfig `koanf:"log"`
}

// LogConfig selects the slog level and handler
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// SlogLevel parses Level as debug, info, warn or error
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", l.Level)
	}
	return level, nil
}

// Default returns the configuration used when nothing else is set
func Default() *Config {
	return &Config{
		Backend: objectstore.BackendS3,
		Workers: snapshot.DefaultWorkers,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Cutoff parses the configured timestamp
func (c *Config) Cutoff() (time.Time, error) {
	return snapshot.ParseCutoff(c.Timestamp)
}

// Validate checks the configuration is usable
func (c *Config) Validate() error {
	switch {
	case c.Source == "":
		return fmt.Errorf("%w: source bucket is required", ErrInvalidConfig)
	case c.Destination == "":
		return fmt.Errorf("%w: destination bucket is required", ErrInvalidConfig)
	case c.Source == c.Destination:
		return fmt.Errorf("%w: destination must differ from source", ErrInvalidConfig)
	case c.Timestamp == "":
		return fmt.Errorf("%w: timestamp is required", ErrInvalidConfig)
	}

	cutoff, err := c.Cutoff()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cutoff.Unix() <= 0 {
		return fmt.Errorf("%w: timestamp must be after the epoch", ErrInvalidConfig)
	}

	if c.Connections < 0 || c.Workers < 0 || c.RateLimit < 0 || c.Timeout < 0 {
		return fmt.Errorf("%w: limits must not be negative", ErrInvalidConfig)
	}

	switch c.Backend {
	case objectstore.BackendS3:
	case objectstore.BackendMinio:
		if c.Endpoint == "" {
			return fmt.Errorf("%w: the minio backend requires an endpoint", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", ErrInvalidConfig, c.Log.Format)
	}

	return nil
}

// StoreOptions maps the configuration onto the object store options
func (c *Config) StoreOptions() objectstore.Options {
	return objectstore.Options{
		Backend: c.Backend,
		S3: objectstore.S3Config{
			Region:          c.Region,
			Endpoint:        c.Endpoint,
			AccessKeyID:     c.AccessKeyID,
			SecretAccessKey: c.SecretAccessKey,
			MaxConnections:  c.Connections,
		},
		RequestsPerSecond: c.RateLimit,
	}
}
