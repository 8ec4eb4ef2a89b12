package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GreedyKomodoDragon/s3-snapshot/internal/config"
	"github.com/GreedyKomodoDragon/s3-snapshot/internal/objectstore"
	"github.com/GreedyKomodoDragon/s3-snapshot/internal/snapshot"
)

// fakeFactory hands out a prepared mock store and records the options it was built with
type fakeFactory struct {
	store *objectstore.MockObjectStore
	err   error
	opts  *objectstore.Options
}

func (f *fakeFactory) build(_ context.Context, opts objectstore.Options, _ *slog.Logger) (objectstore.VersionStore, error) {
	f.opts = &opts
	if f.err != nil {
		return nil, f.err
	}
	return f.store, nil
}

func seededStore() *objectstore.MockObjectStore {
	store := objectstore.NewMockObjectStore()
	at := func(sec int64) time.Time { return time.Unix(sec, 0) }

	store.AddVersion("src", "a", "a1", at(1))
	store.AddVersion("src", "a", "a2", at(3))
	store.AddVersion("src", "b", "b1", at(1))
	store.AddDeleteMarker("src", "b", "bd", at(2))
	store.AddVersion("src", "c", "c1", at(8))
	return store
}

func runApp(t *testing.T, factory *fakeFactory, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer

	app := newApp(factory.build)
	app.Writer = &out
	app.ErrWriter = io.Discard

	err := app.RunContext(context.Background(), append([]string{"s3-snapshot"}, args...))
	return out.String(), err
}

func TestAppFlags(t *testing.T) {
	app := App()

	names := make(map[string]bool)
	for _, f := range app.Flags {
		for _, n := range f.Names() {
			names[n] = true
		}
	}

	for _, name := range []string{"s", "d", "t", "e", "c", "source", "dest", "timestamp", "endpoint",
		"connections", "workers", "dry-run", "manifest-key", "metrics-file", "config"} {
		assert.True(t, names[name], "missing flag %s", name)
	}
	for name := range flagKeys {
		assert.True(t, names[name], "flag key %s has no flag", name)
	}
}

func TestRunCopiesSnapshot(t *testing.T) {
	factory := &fakeFactory{store: seededStore()}

	out, err := runApp(t, factory, "-s", "src", "-d", "dst", "-t", "5")
	require.NoError(t, err)

	assert.Contains(t, out, "Copied 1 of 1 objects")
	copies := factory.store.Copies()
	require.Len(t, copies, 1)
	assert.Equal(t, objectstore.ObjectRef{Bucket: "src", Key: "a", VersionID: "a2"}, copies[0].Source)
	assert.Equal(t, "dst", copies[0].DstBucket)
	assert.True(t, factory.store.BucketExists("dst"))
}

func TestRunPassesStoreOptions(t *testing.T) {
	factory := &fakeFactory{store: seededStore()}

	_, err := runApp(t, factory,
		"-s", "src", "-d", "dst", "-t", "5",
		"--backend", "minio", "-e", "http://localhost:9000", "-c", "12", "--rate-limit", "40",
	)
	require.NoError(t, err)

	require.NotNil(t, factory.opts)
	assert.Equal(t, "minio", factory.opts.Backend)
	assert.Equal(t, "http://localhost:9000", factory.opts.S3.Endpoint)
	assert.Equal(t, 12, factory.opts.S3.MaxConnections)
	assert.Equal(t, 40.0, factory.opts.RequestsPerSecond)
}

func TestRunPartialFailure(t *testing.T) {
	store := seededStore()
	store.AddVersion("src", "z", "z1", time.Unix(2, 0))
	store.FailCopy("z", errors.New("AccessDenied"))
	factory := &fakeFactory{store: store}

	out, err := runApp(t, factory, "-s", "src", "-d", "dst", "-t", "5")

	require.Error(t, err)
	assert.ErrorIs(t, err, snapshot.ErrPartialCopy)
	assert.Contains(t, out, "Copied 1 of 2 objects")
	assert.Contains(t, out, "z (version z1): AccessDenied")
}

func TestRunDryRun(t *testing.T) {
	factory := &fakeFactory{store: seededStore()}

	out, err := runApp(t, factory, "-s", "src", "-d", "dst", "-t", "10", "--dry-run")
	require.NoError(t, err)

	assert.Empty(t, factory.store.Copies())
	assert.False(t, factory.store.BucketExists("dst"))
	assert.True(t, strings.HasPrefix(out, "Would copy 2 objects as of 1970-01-01T00:00:10Z"))
	assert.Contains(t, out, "a (version a2)")
	assert.Contains(t, out, "c (version c1)")
}

func TestRunInvalidConfig(t *testing.T) {
	factory := &fakeFactory{store: seededStore()}

	_, err := runApp(t, factory, "-s", "src", "-d", "src", "-t", "5")

	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Nil(t, factory.opts, "store must not be built for an invalid configuration")
}

func TestRunStoreFactoryError(t *testing.T) {
	factory := &fakeFactory{err: errors.New("no credentials")}

	_, err := runApp(t, factory, "-s", "src", "-d", "dst", "-t", "5")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create object store: no credentials")
}

func TestRunListingFailure(t *testing.T) {
	store := seededStore()
	store.SetError(true, "AccessDenied")
	factory := &fakeFactory{store: store}

	_, err := runApp(t, factory, "-s", "src", "-d", "dst", "-t", "5")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to collect version history")
	assert.Empty(t, store.Copies())
}

func TestRunConfigFileWithFlagOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
source: src
destination: elsewhere
timestamp: "1970-01-01T00:00:05Z"
manifest_key: manifest.json
`), 0644))
	factory := &fakeFactory{store: seededStore()}

	_, err := runApp(t, factory, "--config", path, "-d", "dst")
	require.NoError(t, err)

	assert.False(t, factory.store.BucketExists("elsewhere"))
	body, ok := factory.store.Uploaded("dst", "manifest.json")
	require.True(t, ok)
	assert.Contains(t, string(body), `"key": "a"`)
}

func TestRunWritesMetricsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.prom")
	factory := &fakeFactory{store: seededStore()}

	_, err := runApp(t, factory, "-s", "src", "-d", "dst", "-t", "5", "--metrics-file", path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "s3_snapshot_objects_copied_total")
	assert.Contains(t, string(data), `s3_snapshot_keys_resolved{destination="dst",outcome="deleted",source="src"} 1`)
}

func TestRunTimeoutFailsPendingCopies(t *testing.T) {
	store := seededStore()
	store.SetCopyDelay(func(string) time.Duration { return time.Second })
	factory := &fakeFactory{store: store}

	out, err := runApp(t, factory, "-s", "src", "-d", "dst", "-t", "10", "--timeout", "50ms")

	require.Error(t, err)
	assert.ErrorIs(t, err, snapshot.ErrPartialCopy)
	assert.Contains(t, out, "Copied 0 of 2 objects")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "key", "a")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"key":"a"`)
}

// closeFailingStore reports an error when closed
type closeFailingStore struct {
	*objectstore.MockObjectStore
}

func (s closeFailingStore) Close() error {
	return errors.New("connection reset")
}

func TestRunLogsCloseFailure(t *testing.T) {
	store := seededStore()
	var out, logs bytes.Buffer

	app := newApp(func(context.Context, objectstore.Options, *slog.Logger) (objectstore.VersionStore, error) {
		return closeFailingStore{store}, nil
	})
	app.Writer = &out
	app.ErrWriter = &logs

	err := app.RunContext(context.Background(), []string{"s3-snapshot", "-s", "src", "-d", "dst", "-t", "5"})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Copied 1 of 1 objects")
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), `msg="Failed to close object store"`)
	assert.Contains(t, logs.String(), `error="connection reset"`)
}
