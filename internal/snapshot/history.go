package snapshot

import (
	"context"
	"log/slog"
	"time"

	"github.com/GreedyKomodoDragon/s3-snapshot/internal/objectstore"
)

// History is the version history of a bucket bounded by a cutoff
type History struct {
	Versions      []objectstore.VersionRecord
	DeleteMarkers []objectstore.DeleteMarkerRecord

	Pages     int
	Listed    int
	Discarded int
}

// Collector gathers the bounded version history of a bucket
type Collector struct {
	store  objectstore.VersionStore
	logger *slog.Logger
}

// NewCollector creates a new history collector
func NewCollector(store objectstore.VersionStore, logger *slog.Logger) *Collector {
	return &Collector{
		store:  store,
		logger: logger,
	}
}

// Collect exhausts every listing page of bucket and keeps the versions and
// delete markers whose normalized time is strictly before cutoff. Listing
// errors are returned unmodified.
func (c *Collector) Collect(ctx context.Context, bucket string, cutoff time.Time) (*History, error) {
	cutoff = Normalize(cutoff)
	history := &History{}

	err := c.store.ListObjectVersions(ctx, bucket, func(page objectstore.VersionPage) error {
		history.Pages++
		history.Listed += len(page.Versions) + len(page.DeleteMarkers)

		for _, v := range page.Versions {
			v.LastModified = Normalize(v.LastModified)
			if !v.LastModified.Before(cutoff) {
				history.Discarded++
				continue
			}
			history.Versions = append(history.Versions, v)
		}

		for _, d := range page.DeleteMarkers {
			d.LastModified = Normalize(d.LastModified)
			if !d.LastModified.Before(cutoff) {
				history.Discarded++
				continue
			}
			history.DeleteMarkers = append(history.DeleteMarkers, d)
		}

		c.logger.Debug("Processed version listing page",
			"bucket", bucket,
			"page", page.Number,
			"versions", len(page.Versions),
			"delete_markers", len(page.DeleteMarkers),
		)
		return nil
	})
	if err != nil {
		c.logger.Error("Failed to list version history", "bucket", bucket, "error", err)
		return nil, err
	}

	c.logger.Info("Collected version history",
		"bucket", bucket,
		"cutoff", cutoff,
		"pages", history.Pages,
		"versions", len(history.Versions),
		"delete_markers", len(history.DeleteMarkers),
		"discarded", history.Discarded,
	)

	return history, nil
}
