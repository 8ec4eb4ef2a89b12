package objectstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultMinioPageSize = 1000

// MinioStore implements VersionStore on top of minio-go
type MinioStore struct {
	client   *minio.Client
	region   string
	pageSize int
	logger   *slog.Logger
}

// NewMinioStore creates a new MinioStore instance
func NewMinioStore(s3Config S3Config, logger *slog.Logger) (*MinioStore, error) {
	if s3Config.Endpoint == "" {
		return nil, fmt.Errorf("%w: minio backend requires an endpoint", ErrInvalidInput)
	}

	host, secure, err := endpointHost(s3Config.Endpoint)
	if err != nil {
		return nil, err
	}

	transport, err := minio.DefaultTransport(secure)
	if err != nil {
		return nil, fmt.Errorf("failed to build minio transport: %w", err)
	}
	if s3Config.MaxConnections > 0 {
		transport.MaxConnsPerHost = s3Config.MaxConnections
		transport.MaxIdleConnsPerHost = s3Config.MaxConnections
	}

	client, err := minio.New(host, &minio.Options{
		Creds:     credentials.NewStaticV4(s3Config.AccessKeyID, s3Config.SecretAccessKey, ""),
		Secure:    secure,
		Region:    s3Config.region(),
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	pageSize := int(s3Config.ListPageSize)
	if pageSize <= 0 {
		pageSize = defaultMinioPageSize
	}

	logger.Info("MinIO client initialized",
		"endpoint", host,
		"secure", secure,
		"max_connections", s3Config.MaxConnections,
	)

	return &MinioStore{
		client:   client,
		region:   s3Config.region(),
		pageSize: pageSize,
		logger:   logger,
	}, nil
}

// ListObjectVersions implements VersionStore.ListObjectVersions.
// minio-go paginates internally; results are regrouped into pages of pageSize records.
func (m *MinioStore) ListObjectVersions(ctx context.Context, bucket string, fn func(page VersionPage) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := m.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		WithVersions: true,
		Recursive:    true,
	})

	page := VersionPage{Number: 1}
	size := 0
	for obj := range objects {
		if obj.Err != nil {
			return fmt.Errorf("failed to list object versions of %s: %w", bucket, obj.Err)
		}

		if obj.IsDeleteMarker {
			page.DeleteMarkers = append(page.DeleteMarkers, DeleteMarkerRecord{
				Key:          obj.Key,
				VersionID:    obj.VersionID,
				LastModified: obj.LastModified,
			})
		} else {
			page.Versions = append(page.Versions, VersionRecord{
				Key:          obj.Key,
				VersionID:    obj.VersionID,
				LastModified: obj.LastModified,
			})
		}

		size++
		if size == m.pageSize {
			if err := fn(page); err != nil {
				return err
			}
			page = VersionPage{Number: page.Number + 1}
			size = 0
		}
	}

	if size > 0 || page.Number == 1 {
		return fn(page)
	}
	return nil
}

// CopyObject implements VersionStore.CopyObject.
// Metadata and tags are carried over since neither is replaced.
func (m *MinioStore) CopyObject(ctx context.Context, src ObjectRef, dstBucket, dstKey string) error {
	_, err := m.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: dstBucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: src.Bucket, Object: src.Key, VersionID: src.VersionID},
	)
	if err != nil {
		return fmt.Errorf("failed to copy %s/%s (version %s): %w", src.Bucket, src.Key, src.VersionID, err)
	}
	return nil
}

// CreateBucket implements VersionStore.CreateBucket
func (m *MinioStore) CreateBucket(ctx context.Context, bucket string) error {
	err := m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: m.region})
	if err == nil {
		return nil
	}

	switch minio.ToErrorResponse(err).Code {
	case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
		return fmt.Errorf("%w: %s", ErrBucketAlreadyExists, bucket)
	}
	return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
}

// PutObject implements VersionStore.PutObject
func (m *MinioStore) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	_, err := m.client.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Close implements VersionStore.Close
func (m *MinioStore) Close() error {
	return nil
}
