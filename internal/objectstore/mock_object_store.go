package objectstore

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// CopyCall records one CopyObject invocation against the mock
type CopyCall struct {
	Source    ObjectRef
	DstBucket string
	DstKey    string
}

// MockObjectStore is an in-memory VersionStore for testing
type MockObjectStore struct {
	mu sync.Mutex

	history  map[string][]mockEntry
	buckets  map[string]bool
	uploads  map[string][]byte
	copies   []CopyCall
	pageSize int

	shouldError     bool
	errorMessage    string
	createBucketErr error
	copyFailures    map[string]error
	copyDelay       func(key string) time.Duration

	inflight    int
	maxInflight int
}

type mockEntry struct {
	key          string
	versionID    string
	lastModified time.Time
	deleteMarker bool
}

// NewMockObjectStore creates a new mock object store
func NewMockObjectStore() *MockObjectStore {
	return &MockObjectStore{
		history:      make(map[string][]mockEntry),
		buckets:      make(map[string]bool),
		uploads:      make(map[string][]byte),
		copyFailures: make(map[string]error),
		pageSize:     1000,
	}
}

// AddVersion adds an object revision to bucket's history
func (m *MockObjectStore) AddVersion(bucket, key, versionID string, lastModified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[bucket] = true
	m.history[bucket] = append(m.history[bucket], mockEntry{key: key, versionID: versionID, lastModified: lastModified})
}

// AddDeleteMarker adds a delete marker to bucket's history
func (m *MockObjectStore) AddDeleteMarker(bucket, key, versionID string, lastModified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[bucket] = true
	m.history[bucket] = append(m.history[bucket], mockEntry{key: key, versionID: versionID, lastModified: lastModified, deleteMarker: true})
}

// SetPageSize sets how many records are returned per listing page
func (m *MockObjectStore) SetPageSize(size int) {
	if size <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageSize = size
}

// SetError configures the mock to fail listings
func (m *MockObjectStore) SetError(shouldError bool, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldError = shouldError
	m.errorMessage = message
}

// SetCreateBucketError configures the error returned by CreateBucket
func (m *MockObjectStore) SetCreateBucketError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createBucketErr = err
}

// FailCopy makes every copy of key fail with err
func (m *MockObjectStore) FailCopy(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.copyFailures[key] = err
}

// SetCopyDelay makes each copy sleep for the returned duration
func (m *MockObjectStore) SetCopyDelay(delay func(key string) time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.copyDelay = delay
}

// ListObjectVersions implements VersionStore.ListObjectVersions.
// Records are ordered by key, newest first, like S3.
func (m *MockObjectStore) ListObjectVersions(ctx context.Context, bucket string, fn func(page VersionPage) error) error {
	m.mu.Lock()
	if m.shouldError {
		m.mu.Unlock()
		return &mockError{message: m.errorMessage}
	}
	if !m.buckets[bucket] {
		m.mu.Unlock()
		return &mockError{message: fmt.Sprintf("NoSuchBucket: %s", bucket)}
	}
	entries := append([]mockEntry(nil), m.history[bucket]...)
	pageSize := m.pageSize
	m.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].key != entries[j].key {
			return entries[i].key < entries[j].key
		}
		return entries[i].lastModified.After(entries[j].lastModified)
	})

	number := 1
	for start := 0; start < len(entries) || number == 1; start += pageSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := start + pageSize
		if end > len(entries) {
			end = len(entries)
		}

		page := VersionPage{Number: number}
		for _, e := range entries[start:end] {
			if e.deleteMarker {
				page.DeleteMarkers = append(page.DeleteMarkers, DeleteMarkerRecord{Key: e.key, VersionID: e.versionID, LastModified: e.lastModified})
			} else {
				page.Versions = append(page.Versions, VersionRecord{Key: e.key, VersionID: e.versionID, LastModified: e.lastModified})
			}
		}
		if err := fn(page); err != nil {
			return err
		}
		number++
	}
	return nil
}

// CopyObject implements VersionStore.CopyObject
func (m *MockObjectStore) CopyObject(ctx context.Context, src ObjectRef, dstBucket, dstKey string) error {
	m.mu.Lock()
	m.inflight++
	if m.inflight > m.maxInflight {
		m.maxInflight = m.inflight
	}
	delay := m.copyDelay
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inflight--
		m.mu.Unlock()
	}()

	if delay != nil {
		select {
		case <-time.After(delay(src.Key)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.copyFailures[src.Key]; ok {
		return err
	}
	if !m.buckets[dstBucket] {
		return &mockError{message: fmt.Sprintf("NoSuchBucket: %s", dstBucket)}
	}
	if !m.hasVersion(src) {
		return &mockError{message: fmt.Sprintf("NoSuchVersion: %s/%s@%s", src.Bucket, src.Key, src.VersionID)}
	}

	m.copies = append(m.copies, CopyCall{Source: src, DstBucket: dstBucket, DstKey: dstKey})
	return nil
}

// hasVersion reports whether src exists; "0" matches a revision stored without an id
func (m *MockObjectStore) hasVersion(src ObjectRef) bool {
	for _, e := range m.history[src.Bucket] {
		if e.deleteMarker || e.key != src.Key {
			continue
		}
		if e.versionID == src.VersionID || (e.versionID == "" && src.VersionID == "0") {
			return true
		}
	}
	return false
}

// CreateBucket implements VersionStore.CreateBucket
func (m *MockObjectStore) CreateBucket(ctx context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createBucketErr != nil {
		return m.createBucketErr
	}
	if m.buckets[bucket] {
		return fmt.Errorf("%w: %s", ErrBucketAlreadyExists, bucket)
	}
	m.buckets[bucket] = true
	return nil
}

// PutObject implements VersionStore.PutObject
func (m *MockObjectStore) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.buckets[bucket] {
		return &mockError{message: fmt.Sprintf("NoSuchBucket: %s", bucket)}
	}
	m.uploads[bucket+"/"+key] = data
	return nil
}

// Close implements VersionStore.Close
func (m *MockObjectStore) Close() error {
	return nil
}

// Copies returns every successful copy in completion order
func (m *MockObjectStore) Copies() []CopyCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CopyCall(nil), m.copies...)
}

// MaxConcurrentCopies returns the peak number of overlapping CopyObject calls
func (m *MockObjectStore) MaxConcurrentCopies() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxInflight
}

// BucketExists reports whether bucket was created or populated
func (m *MockObjectStore) BucketExists(bucket string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buckets[bucket]
}

// Uploaded returns the body stored by PutObject
func (m *MockObjectStore) Uploaded(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.uploads[bucket+"/"+key]
	return data, ok
}

// mockError is a simple error implementation for testing
type mockError struct {
	message string
}

func (e *mockError) Error() string {
	return e.message
}
