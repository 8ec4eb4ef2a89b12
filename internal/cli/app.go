// Package cli provides the s3-snapshot command line application.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/GreedyKomodoDragon/s3-snapshot/internal/config"
	"github.com/GreedyKomodoDragon/s3-snapshot/internal/metrics"
	"github.com/GreedyKomodoDragon/s3-snapshot/internal/objectstore"
	"github.com/GreedyKomodoDragon/s3-snapshot/internal/snapshot"
)

// Build information, set via ldflags.
var Version = "dev"

// StoreFactory builds the object store a run talks to
type StoreFactory func(ctx context.Context, opts objectstore.Options, logger *slog.Logger) (objectstore.VersionStore, error)

// App creates the CLI application backed by a real object store
func App() *cli.App {
	return newApp(objectstore.New)
}

func newApp(newStore StoreFactory) *cli.App {
	return &cli.App{
		Name:      "s3-snapshot",
		Usage:     "copy a versioned bucket as it was at a point in time into another bucket",
		UsageText: "s3-snapshot -s SOURCE -d DEST -t TIMESTAMP [options]",
		Version:   Version,
		Flags:     flags(),
		Action: func(c *cli.Context) error {
			return run(c, newStore)
		},
	}
}

// flagKeys maps flag names onto config keys
var flagKeys = map[string]string{
	"source":            "source",
	"dest":              "destination",
	"timestamp":         "timestamp",
	"endpoint":          "endpoint",
	"region":            "region",
	"backend":           "backend",
	"access-key-id":     "access_key_id",
	"secret-access-key": "secret_access_key",
	"connections":       "connections",
	"workers":           "workers",
	"rate-limit":        "rate_limit",
	"manifest-key":      "manifest_key",
	"metrics-file":      "metrics_file",
	"timeout":           "timeout",
	"dry-run":           "dry_run",
	"log-level":         "log.level",
	"log-format":        "log.format",
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "source",
			Aliases: []string{"s"},
			Usage:   "bucket to snapshot",
		},
		&cli.StringFlag{
			Name:    "dest",
			Aliases: []string{"d"},
			Usage:   "bucket the snapshot is written to, created if missing",
		},
		&cli.StringFlag{
			Name:    "timestamp",
			Aliases: []string{"t"},
			Usage:   "point in time to restore, epoch seconds or ISO-8601 (e.g. 2024-03-01T12:00:00Z)",
		},
		&cli.StringFlag{
			Name:    "endpoint",
			Aliases: []string{"e"},
			Usage:   "custom S3 endpoint URL",
			EnvVars: []string{"AWS_ENDPOINT_URL"},
		},
		&cli.StringFlag{
			Name:    "region",
			Usage:   "bucket region",
			EnvVars: []string{"AWS_REGION"},
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "store client: s3 or minio",
		},
		&cli.StringFlag{
			Name:    "access-key-id",
			Usage:   "access key, the default credential chain is used when unset",
			EnvVars: []string{"AWS_ACCESS_KEY_ID"},
		},
		&cli.StringFlag{
			Name:    "secret-access-key",
			Usage:   "secret key",
			EnvVars: []string{"AWS_SECRET_ACCESS_KEY"},
		},
		&cli.IntFlag{
			Name:    "connections",
			Aliases: []string{"c"},
			Usage:   "maximum in-flight requests to the store, 0 for unbounded",
		},
		&cli.IntFlag{
			Name:  "workers",
			Usage: fmt.Sprintf("copy workers (default %d)", snapshot.DefaultWorkers),
		},
		&cli.Float64Flag{
			Name:  "rate-limit",
			Usage: "maximum store requests per second, 0 for unlimited",
		},
		&cli.StringFlag{
			Name:  "manifest-key",
			Usage: "write a JSON manifest of the run to this key in the destination bucket",
		},
		&cli.StringFlag{
			Name:  "metrics-file",
			Usage: "write Prometheus metrics of the run to this file",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "deadline for the whole run, 0 for none",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "print the objects that would be copied without copying",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "debug, info, warn or error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "text or json",
		},
		&cli.StringFlag{
			Name:    "config",
			Usage:   "YAML configuration file",
			EnvVars: []string{"S3_SNAPSHOT_CONFIG"},
		},
	}
}

// loadConfig merges defaults, the config file, the environment and the flags
// that were set explicitly
func loadConfig(c *cli.Context) (*config.Config, error) {
	overrides := make(map[string]any)
	for name, key := range flagKeys {
		if c.IsSet(name) {
			overrides[key] = c.Value(name)
		}
	}

	cfg, err := config.NewLoader().Load(c.String("config"), overrides)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func run(c *cli.Context, newStore StoreFactory) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log, c.App.ErrWriter)

	cutoff, err := cfg.Cutoff()
	if err != nil {
		return err
	}

	ctx := c.Context
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	store, err := newStore(ctx, cfg.StoreOptions(), logger)
	if err != nil {
		return fmt.Errorf("failed to create object store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close object store", "error", err)
		}
	}()

	opts := snapshot.Options{
		Source:      cfg.Source,
		Destination: cfg.Destination,
		Cutoff:      cutoff,
		DryRun:      cfg.DryRun,
		ManifestKey: cfg.ManifestKey,
	}

	result, err := snapshot.NewService(store, cfg.Workers, logger).Run(ctx, opts)

	if cfg.MetricsFile != "" {
		recorder := metrics.NewRecorder()
		recorder.Observe(opts, result, time.Now())
		if werr := recorder.WriteTextfile(cfg.MetricsFile); werr != nil {
			logger.Warn("Failed to write metrics", "path", cfg.MetricsFile, "error", werr)
		}
	}

	if err != nil {
		return err
	}

	if cfg.DryRun {
		printCopySet(c.App.Writer, result.Resolution, cutoff)
		return nil
	}

	fmt.Fprint(c.App.Writer, result.Report.Summary())
	return result.Report.Err()
}

func printCopySet(w io.Writer, res *snapshot.Resolution, cutoff time.Time) {
	fmt.Fprintf(w, "Would copy %d objects as of %s\n", len(res.Candidates), cutoff.Format(time.RFC3339))
	for _, c := range res.Candidates {
		fmt.Fprintf(w, "  %s (version %s)\n", c.Key, c.VersionID)
	}
	for _, s := range res.Skipped {
		fmt.Fprintf(w, "  skipped %s: %s\n", s.Key, s.Reason)
	}
}
