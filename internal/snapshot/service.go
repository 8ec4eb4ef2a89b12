package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/GreedyKomodoDragon/s3-snapshot/internal/objectstore"
)

// ErrInvalidOptions is returned when a run is requested with unusable options
var ErrInvalidOptions = errors.New("invalid snapshot options")

// ErrManifestConflict is recorded when the manifest key is also part of the copy set
var ErrManifestConflict = errors.New("manifest key collides with a snapshot object")

// Options describes one snapshot run
type Options struct {
	Source      string
	Destination string
	Cutoff      time.Time

	// DryRun stops after resolution, nothing is written
	DryRun bool

	// ManifestKey, when set, receives a JSON manifest in the destination bucket
	ManifestKey string
}

// Validate checks the options before any request is made
func (o Options) Validate() error {
	switch {
	case o.Source == "":
		return fmt.Errorf("%w: source bucket is required", ErrInvalidOptions)
	case o.Destination == "":
		return fmt.Errorf("%w: destination bucket is required", ErrInvalidOptions)
	case o.Source == o.Destination:
		return fmt.Errorf("%w: destination must differ from source", ErrInvalidOptions)
	case o.Cutoff.IsZero():
		return fmt.Errorf("%w: cutoff is required", ErrInvalidOptions)
	}
	return nil
}

// Result carries everything a run produced
type Result struct {
	RunID      string
	History    *History
	Resolution *Resolution
	Report     *Report

	// BucketErr is the non-fatal destination creation failure, if any
	BucketErr error

	// ManifestErr is the non-fatal manifest upload failure, if any
	ManifestErr error
}

// Service runs the snapshot phases in order: collect, resolve, copy
type Service struct {
	store     objectstore.VersionStore
	collector *Collector
	resolver  *Resolver
	copier    *Copier
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a snapshot service over store
func NewService(store objectstore.VersionStore, workers int, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		collector: NewCollector(store, logger),
		resolver:  NewResolver(logger),
		copier:    NewCopier(store, workers, logger),
		logger:    logger,
		now:       time.Now,
	}
}

// Run materializes the state of opts.Source as of opts.Cutoff into opts.Destination.
// Listing failures abort the run; copy failures are returned in the report and
// surfaced through Report.Err.
func (s *Service) Run(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	result := &Result{RunID: ulid.Make().String()}
	logger := s.logger.With("run_id", result.RunID)

	logger.Info("Starting point-in-time snapshot",
		"source", opts.Source,
		"destination", opts.Destination,
		"cutoff", Normalize(opts.Cutoff),
		"dry_run", opts.DryRun,
	)

	history, err := s.collector.Collect(ctx, opts.Source, opts.Cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to collect version history: %w", err)
	}
	result.History = history

	result.Resolution = s.resolver.Resolve(history.Versions, history.DeleteMarkers)

	if opts.DryRun {
		logger.Info("Dry run, skipping copy phase", "candidates", len(result.Resolution.Candidates))
		return result, nil
	}

	// Runs before any copy is dispatched
	result.BucketErr = s.copier.EnsureBucket(ctx, opts.Destination)

	tasks := NewCopyTasks(result.Resolution.Candidates, opts.Source, opts.Destination)
	result.Report = s.copier.Execute(ctx, tasks)

	switch {
	case opts.ManifestKey == "":
	case result.Resolution.Contains(opts.ManifestKey):
		// the copied object stays, the manifest is not written over it
		result.ManifestErr = fmt.Errorf("%w: %s", ErrManifestConflict, opts.ManifestKey)
		logger.Warn("Skipping snapshot manifest", "key", opts.ManifestKey, "error", result.ManifestErr)
	default:
		manifest := NewManifest(result.RunID, opts, result.Report, s.now())
		if err := manifest.Upload(ctx, s.store, opts.Destination, opts.ManifestKey); err != nil {
			logger.Warn("Failed to upload snapshot manifest", "key", opts.ManifestKey, "error", err)
			result.ManifestErr = err
		} else {
			logger.Info("Uploaded snapshot manifest", "key", opts.ManifestKey)
		}
	}

	logger.Info("Snapshot finished",
		"copied", result.Report.Succeeded,
		"attempted", result.Report.Attempted,
		"failed", len(result.Report.Failures),
		"duration", result.Report.Duration,
	)

	return result, nil
}
