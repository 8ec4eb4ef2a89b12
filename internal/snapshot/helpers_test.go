package snapshot

import (
	"io"
	"log/slog"
	"time"

	"github.com/GreedyKomodoDragon/s3-snapshot/internal/objectstore"
)

const (
	sourceBucket = "source-bucket"
	destBucket   = "snapshot-bucket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

func at(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func version(key, id string, sec int64) objectstore.VersionRecord {
	return objectstore.VersionRecord{Key: key, VersionID: id, LastModified: at(sec)}
}

func marker(key, id string, sec int64) objectstore.DeleteMarkerRecord {
	return objectstore.DeleteMarkerRecord{Key: key, VersionID: id, LastModified: at(sec)}
}
