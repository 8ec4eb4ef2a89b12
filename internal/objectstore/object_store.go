package objectstore

import (
	"context"
	"io"
	"time"
)

// VersionRecord represents one stored revision of an object
type VersionRecord struct {
	Key          string
	VersionID    string
	LastModified time.Time
}

// DeleteMarkerRecord represents a tombstone placed over a key
type DeleteMarkerRecord struct {
	Key          string
	VersionID    string
	LastModified time.Time
}

// VersionPage is one page of a version history listing
type VersionPage struct {
	Number        int
	Versions      []VersionRecord
	DeleteMarkers []DeleteMarkerRecord
}

// ObjectRef identifies an exact revision of an object
type ObjectRef struct {
	Bucket    string
	Key       string
	VersionID string
}

// VersionStore defines the capabilities the snapshot consumes from an object store
type VersionStore interface {
	// ListObjectVersions walks the full version and delete marker history of bucket,
	// calling fn once per page until the listing is exhausted or fn returns an error
	ListObjectVersions(ctx context.Context, bucket string, fn func(page VersionPage) error) error

	// CopyObject performs a server-side copy of src into dstBucket/dstKey
	CopyObject(ctx context.Context, src ObjectRef, dstBucket, dstKey string) error

	// CreateBucket creates bucket, returning ErrBucketAlreadyExists if it is already present
	CreateBucket(ctx context.Context, bucket string) error

	// PutObject uploads a small object such as the snapshot manifest
	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error

	// Close cleans up any resources
	Close() error
}
