package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/GreedyKomodoDragon/s3-snapshot/internal/objectstore"
)

const manifestContentType = "application/json"

// Manifest describes a finished snapshot and is stored next to the copied objects
type Manifest struct {
	RunID       string            `json:"run_id"`
	Source      string            `json:"source"`
	Destination string            `json:"destination"`
	Cutoff      time.Time         `json:"cutoff"`
	CreatedAt   time.Time         `json:"created_at"`
	Duration    string            `json:"duration"`
	Copied      []Candidate       `json:"copied"`
	Failures    []ManifestFailure `json:"failures,omitempty"`
}

// ManifestFailure is a copy that did not make it into the snapshot
type ManifestFailure struct {
	Key       string `json:"key"`
	VersionID string `json:"version_id"`
	Error     string `json:"error"`
}

// NewManifest builds the manifest of a run from its report
func NewManifest(runID string, opts Options, report *Report, createdAt time.Time) *Manifest {
	m := &Manifest{
		RunID:       runID,
		Source:      opts.Source,
		Destination: opts.Destination,
		Cutoff:      Normalize(opts.Cutoff),
		CreatedAt:   Normalize(createdAt),
		Duration:    report.Duration.String(),
		Copied:      report.Copied,
	}
	for _, f := range report.Failures {
		m.Failures = append(m.Failures, ManifestFailure{
			Key:       f.Key,
			VersionID: f.VersionID,
			Error:     f.Err.Error(),
		})
	}
	return m
}

// Upload writes the manifest to bucket/key
func (m *Manifest) Upload(ctx context.Context, store objectstore.VersionStore, bucket, key string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return store.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), manifestContentType)
}
