package objectstore

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// LimitedStore wraps a VersionStore with a cap on outstanding requests and an
// optional request rate limit. The cap sits at the client level so callers can
// dispatch freely without exhausting sockets or file descriptors.
type LimitedStore struct {
	VersionStore

	inflight chan struct{}
	limiter  *rate.Limiter
}

// NewLimitedStore returns store unchanged when both limits are disabled
func NewLimitedStore(store VersionStore, maxInFlight int, requestsPerSecond float64) VersionStore {
	if maxInFlight <= 0 && requestsPerSecond <= 0 {
		return store
	}

	ls := &LimitedStore{VersionStore: store}
	if maxInFlight > 0 {
		ls.inflight = make(chan struct{}, maxInFlight)
	}
	if requestsPerSecond > 0 {
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		ls.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
	return ls
}

func (l *LimitedStore) acquire(ctx context.Context) (func(), error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if l.inflight == nil {
		return func() {}, nil
	}

	select {
	case l.inflight <- struct{}{}:
		return func() { <-l.inflight }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ListObjectVersions holds one slot for the whole listing, pages are fetched sequentially
func (l *LimitedStore) ListObjectVersions(ctx context.Context, bucket string, fn func(page VersionPage) error) error {
	release, err := l.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return l.VersionStore.ListObjectVersions(ctx, bucket, fn)
}

func (l *LimitedStore) CopyObject(ctx context.Context, src ObjectRef, dstBucket, dstKey string) error {
	release, err := l.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return l.VersionStore.CopyObject(ctx, src, dstBucket, dstKey)
}

func (l *LimitedStore) CreateBucket(ctx context.Context, bucket string) error {
	release, err := l.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return l.VersionStore.CreateBucket(ctx, bucket)
}

func (l *LimitedStore) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	release, err := l.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return l.VersionStore.PutObject(ctx, bucket, key, body, size, contentType)
}
