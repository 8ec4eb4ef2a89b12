package objectstore

import "errors"

var (
	// ErrBucketAlreadyExists indicates the bucket is already present
	ErrBucketAlreadyExists = errors.New("bucket already exists")

	// ErrInvalidInput indicates a malformed request to the store
	ErrInvalidInput = errors.New("invalid input")
)
