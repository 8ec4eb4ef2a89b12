package objectstore

import (
	"context"
	"fmt"
	"log/slog"
)

// Options selects and tunes a VersionStore
type Options struct {
	Backend           string
	S3                S3Config
	RequestsPerSecond float64
}

// New builds the VersionStore for the configured backend, wrapped with the
// in-flight cap and rate limit when configured
func New(ctx context.Context, opts Options, logger *slog.Logger) (VersionStore, error) {
	var (
		store VersionStore
		err   error
	)

	switch opts.Backend {
	case "", BackendS3:
		store, err = NewS3Store(ctx, opts.S3, logger)
	case BackendMinio:
		store, err = NewMinioStore(opts.S3, logger)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidInput, opts.Backend)
	}
	if err != nil {
		return nil, err
	}

	return NewLimitedStore(store, opts.S3.MaxConnections, opts.RequestsPerSecond), nil
}
