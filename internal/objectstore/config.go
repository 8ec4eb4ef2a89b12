package objectstore

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	BackendS3    = "s3"
	BackendMinio = "minio"

	defaultRegion = "us-east-1"
)

// S3Config holds configuration for an S3 compatible connection
type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string

	// MaxConnections caps concurrent connections to the endpoint, 0 means unbounded
	MaxConnections int

	// ListPageSize sets MaxKeys on version listings, 0 leaves the server default
	ListPageSize int32
}

func (c S3Config) region() string {
	if c.Region == "" {
		return defaultRegion
	}
	return c.Region
}

// endpointHost splits an endpoint URL into host and TLS flag, as minio-go expects
func endpointHost(endpoint string) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		return endpoint, false, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("%w: endpoint %q has no host", ErrInvalidInput, endpoint)
	}
	return u.Host, u.Scheme == "https", nil
}
