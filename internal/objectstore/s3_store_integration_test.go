package objectstore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
)

const (
	minioImage               = "minio/minio:RELEASE.2024-01-16T16-07-38Z"
	minioUsername            = "minioadmin"
	minioPassword            = "minioadmin"
	versionedBucket          = "versioned-source"
	skipIntegrationTestMsg   = "Skipping integration test in short mode"
	terminateContainerErrMsg = "Failed to terminate MinIO container: %v"
)

// setupMinIOContainer starts a MinIO testcontainer with a versioned bucket
func setupMinIOContainer(ctx context.Context, t *testing.T) (*tcminio.MinioContainer, string, *s3.Client) {
	minioContainer, err := tcminio.Run(ctx,
		minioImage,
		tcminio.WithUsername(minioUsername),
		tcminio.WithPassword(minioPassword),
	)
	require.NoError(t, err)

	connectionString, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	endpoint := connectionString
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			minioUsername,
			minioPassword,
			"",
		)),
	)
	require.NoError(t, err)

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	_, err = s3Client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(versionedBucket),
	})
	require.NoError(t, err)

	_, err = s3Client.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
		Bucket: aws.String(versionedBucket),
		VersioningConfiguration: &types.VersioningConfiguration{
			Status: types.BucketVersioningStatusEnabled,
		},
	})
	require.NoError(t, err)

	return minioContainer, endpoint, s3Client
}

// putVersion writes a new revision of key and returns its version id
func putVersion(ctx context.Context, t *testing.T, client *s3.Client, key, content string) string {
	out, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(versionedBucket),
		Key:    aws.String(key),
		Body:   strings.NewReader(content),
	})
	require.NoError(t, err)
	require.NotEmpty(t, aws.ToString(out.VersionId))
	return aws.ToString(out.VersionId)
}

// deleteObject places a delete marker on key and returns the marker's version id
func deleteObject(ctx context.Context, t *testing.T, client *s3.Client, key string) string {
	out, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(versionedBucket),
		Key:    aws.String(key),
	})
	require.NoError(t, err)
	require.True(t, aws.ToBool(out.DeleteMarker))
	return aws.ToString(out.VersionId)
}

func readObject(ctx context.Context, t *testing.T, client *s3.Client, bucket, key string) string {
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	require.NoError(t, err)
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	require.NoError(t, err)
	return string(data)
}

func TestVersionStoresIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip(skipIntegrationTestMsg)
	}

	ctx := context.Background()

	minioContainer, endpoint, s3Client := setupMinIOContainer(ctx, t)
	defer func() {
		if err := minioContainer.Terminate(ctx); err != nil {
			t.Logf(terminateContainerErrMsg, err)
		}
	}()

	first := putVersion(ctx, t, s3Client, "a.txt", "first")
	second := putVersion(ctx, t, s3Client, "a.txt", "second")
	putVersion(ctx, t, s3Client, "dir/b.txt", "b")
	marker := deleteObject(ctx, t, s3Client, "dir/b.txt")
	putVersion(ctx, t, s3Client, "c.txt", "c")

	cfg := S3Config{
		Endpoint:        endpoint,
		AccessKeyID:     minioUsername,
		SecretAccessKey: minioPassword,
		MaxConnections:  4,
		ListPageSize:    2,
	}

	s3Store, err := NewS3Store(ctx, cfg, testLogger)
	require.NoError(t, err)
	defer s3Store.Close()

	minioStore, err := NewMinioStore(cfg, testLogger)
	require.NoError(t, err)
	defer minioStore.Close()

	stores := map[string]VersionStore{
		"s3":    s3Store,
		"minio": minioStore,
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			dest := name + "-snapshot"

			t.Run("ListObjectVersions", func(t *testing.T) {
				pages := collectPages(t, store, versionedBucket)
				require.GreaterOrEqual(t, len(pages), 3, "five records with a page size of two")

				versions := make(map[string]VersionRecord)
				var markers []DeleteMarkerRecord
				for i, page := range pages {
					assert.Equal(t, i+1, page.Number)
					for _, v := range page.Versions {
						versions[v.VersionID] = v
					}
					markers = append(markers, page.DeleteMarkers...)
				}

				assert.Len(t, versions, 4)
				assert.Equal(t, "a.txt", versions[first].Key)
				assert.Equal(t, "a.txt", versions[second].Key)
				assert.False(t, versions[first].LastModified.IsZero())
				assert.False(t, versions[second].LastModified.Before(versions[first].LastModified))

				require.Len(t, markers, 1)
				assert.Equal(t, "dir/b.txt", markers[0].Key)
				assert.Equal(t, marker, markers[0].VersionID)
			})

			t.Run("ListObjectVersions_MissingBucket", func(t *testing.T) {
				err := store.ListObjectVersions(ctx, "no-such-bucket", func(VersionPage) error { return nil })
				assert.Error(t, err)
			})

			t.Run("CreateBucket", func(t *testing.T) {
				require.NoError(t, store.CreateBucket(ctx, dest))
				assert.ErrorIs(t, store.CreateBucket(ctx, dest), ErrBucketAlreadyExists)
			})

			t.Run("CopyObject_OlderVersion", func(t *testing.T) {
				src := ObjectRef{Bucket: versionedBucket, Key: "a.txt", VersionID: first}
				require.NoError(t, store.CopyObject(ctx, src, dest, "a.txt"))
				assert.Equal(t, "first", readObject(ctx, t, s3Client, dest, "a.txt"))
			})

			t.Run("CopyObject_DeletedKeyByVersion", func(t *testing.T) {
				versions := collectPages(t, store, versionedBucket)
				var bVersion string
				for _, page := range versions {
					for _, v := range page.Versions {
						if v.Key == "dir/b.txt" {
							bVersion = v.VersionID
						}
					}
				}
				require.NotEmpty(t, bVersion)

				src := ObjectRef{Bucket: versionedBucket, Key: "dir/b.txt", VersionID: bVersion}
				require.NoError(t, store.CopyObject(ctx, src, dest, "dir/b.txt"))
				assert.Equal(t, "b", readObject(ctx, t, s3Client, dest, "dir/b.txt"))
			})

			t.Run("CopyObject_UnknownVersion", func(t *testing.T) {
				src := ObjectRef{Bucket: versionedBucket, Key: "a.txt", VersionID: "00000000-0000-0000-0000-000000000000"}
				assert.Error(t, store.CopyObject(ctx, src, dest, "a.txt"))
			})

			t.Run("PutObject", func(t *testing.T) {
				body := `{"copied":[]}`
				require.NoError(t, store.PutObject(ctx, dest, "manifest.json", strings.NewReader(body), int64(len(body)), "application/json"))
				assert.Equal(t, body, readObject(ctx, t, s3Client, dest, "manifest.json"))
			})
		})
	}
}
