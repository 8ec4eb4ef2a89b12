package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3Store implements VersionStore for AWS S3 or S3-compatible storage
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	config   S3Config
	logger   *slog.Logger
}

// NewS3Client builds an S3 client from the given configuration
func NewS3Client(ctx context.Context, s3Config S3Config) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(s3Config.region()),
	}

	// Use explicit credentials when given, otherwise the default AWS credential chain
	if s3Config.AccessKeyID != "" && s3Config.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s3Config.AccessKeyID,
			s3Config.SecretAccessKey,
			"",
		)))
	}

	if s3Config.MaxConnections > 0 {
		httpClient := awshttp.NewBuildableClient().WithTransportOptions(func(tr *http.Transport) {
			tr.MaxConnsPerHost = s3Config.MaxConnections
			tr.MaxIdleConnsPerHost = s3Config.MaxConnections
		})
		opts = append(opts, config.WithHTTPClient(httpClient))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if s3Config.Endpoint != "" {
			o.BaseEndpoint = aws.String(s3Config.Endpoint)
			o.UsePathStyle = true // Required for most S3-compatible services
		}
	}), nil
}

// NewS3Store creates a new S3Store instance
func NewS3Store(ctx context.Context, s3Config S3Config, logger *slog.Logger) (*S3Store, error) {
	client, err := NewS3Client(ctx, s3Config)
	if err != nil {
		return nil, err
	}

	logger.Info("S3 client initialized",
		"region", s3Config.region(),
		"custom_endpoint", s3Config.Endpoint != "",
		"max_connections", s3Config.MaxConnections,
	)

	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		config:   s3Config,
		logger:   logger,
	}, nil
}

// ListObjectVersions implements VersionStore.ListObjectVersions
func (s *S3Store) ListObjectVersions(ctx context.Context, bucket string, fn func(page VersionPage) error) error {
	input := &s3.ListObjectVersionsInput{
		Bucket: aws.String(bucket),
	}
	if s.config.ListPageSize > 0 {
		input.MaxKeys = aws.Int32(s.config.ListPageSize)
	}

	for number := 1; ; number++ {
		output, err := s.client.ListObjectVersions(ctx, input)
		if err != nil {
			return fmt.Errorf("failed to list object versions of %s: %w", bucket, err)
		}

		page := VersionPage{Number: number}
		for _, v := range output.Versions {
			if v.Key == nil {
				continue
			}
			page.Versions = append(page.Versions, VersionRecord{
				Key:          *v.Key,
				VersionID:    aws.ToString(v.VersionId),
				LastModified: aws.ToTime(v.LastModified),
			})
		}
		for _, d := range output.DeleteMarkers {
			if d.Key == nil {
				continue
			}
			page.DeleteMarkers = append(page.DeleteMarkers, DeleteMarkerRecord{
				Key:          *d.Key,
				VersionID:    aws.ToString(d.VersionId),
				LastModified: aws.ToTime(d.LastModified),
			})
		}

		if err := fn(page); err != nil {
			return err
		}

		if !aws.ToBool(output.IsTruncated) {
			return nil
		}
		input.KeyMarker = output.NextKeyMarker
		input.VersionIdMarker = output.NextVersionIdMarker
	}
}

// CopyObject implements VersionStore.CopyObject
func (s *S3Store) CopyObject(ctx context.Context, src ObjectRef, dstBucket, dstKey string) error {
	input := &s3.CopyObjectInput{
		Bucket:            aws.String(dstBucket),
		Key:               aws.String(dstKey),
		CopySource:        aws.String(copySource(src)),
		MetadataDirective: types.MetadataDirectiveCopy,
		TaggingDirective:  types.TaggingDirectiveCopy,
	}

	if _, err := s.client.CopyObject(ctx, input); err != nil {
		return fmt.Errorf("failed to copy %s/%s (version %s): %w", src.Bucket, src.Key, src.VersionID, err)
	}
	return nil
}

// CreateBucket implements VersionStore.CreateBucket
func (s *S3Store) CreateBucket(ctx context.Context, bucket string) error {
	input := &s3.CreateBucketInput{
		Bucket: aws.String(bucket),
	}
	if region := s.config.region(); region != defaultRegion {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}

	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		if isBucketExistsError(err) {
			return fmt.Errorf("%w: %s", ErrBucketAlreadyExists, bucket)
		}
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return nil
}

// PutObject implements VersionStore.PutObject
func (s *S3Store) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Close implements VersionStore.Close
func (s *S3Store) Close() error {
	// S3 client doesn't require explicit cleanup
	return nil
}

// copySource encodes bucket/key?versionId=... as CopyObject expects
func copySource(src ObjectRef) string {
	path := (&url.URL{Path: src.Bucket + "/" + src.Key}).EscapedPath()
	if src.VersionID == "" {
		return path
	}
	return path + "?versionId=" + url.QueryEscape(src.VersionID)
}

func isBucketExistsError(err error) bool {
	var owned *types.BucketAlreadyOwnedByYou
	if errors.As(err, &owned) {
		return true
	}
	var exists *types.BucketAlreadyExists
	if errors.As(err, &exists) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
			return true
		}
	}
	return false
}
