package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GreedyKomodoDragon/s3-snapshot/internal/objectstore"
	"github.com/GreedyKomodoDragon/s3-snapshot/internal/snapshot"
)

func testResult() (snapshot.Options, *snapshot.Result) {
	opts := snapshot.Options{Source: "src", Destination: "dst", Cutoff: time.Unix(10, 0)}
	result := &snapshot.Result{
		History: &snapshot.History{
			Versions:      make([]objectstore.VersionRecord, 4),
			DeleteMarkers: make([]objectstore.DeleteMarkerRecord, 1),
		},
		Resolution: &snapshot.Resolution{
			Candidates: []snapshot.Candidate{{Key: "a", VersionID: "1"}, {Key: "b", VersionID: "2"}},
			Deleted:    []string{"c"},
		},
		Report: &snapshot.Report{
			Attempted: 2,
			Succeeded: 1,
			Failures:  []*snapshot.CopyError{{Key: "b", VersionID: "2"}},
			Duration:  3 * time.Second,
		},
	}
	return opts, result
}

func TestRecorderObserve(t *testing.T) {
	r := NewRecorder()
	opts, result := testResult()

	r.Observe(opts, result, time.Unix(1700000000, 0))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.copied.WithLabelValues("src", "dst")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failed.WithLabelValues("src", "dst")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.duration.WithLabelValues("src", "dst")))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.versionsConsidered.WithLabelValues("src", "dst")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.keysResolved.WithLabelValues("src", "dst", "copy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.keysResolved.WithLabelValues("src", "dst", "deleted")))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(r.lastRun.WithLabelValues("src", "dst")))
}

func TestRecorderObserveDryRun(t *testing.T) {
	r := NewRecorder()
	opts, result := testResult()
	result.Report = nil

	r.Observe(opts, result, time.Unix(1, 0))

	assert.Equal(t, 0, testutil.CollectAndCount(r.copied))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.keysResolved.WithLabelValues("src", "dst", "copy")))
}

func TestRecorderWriteTextfile(t *testing.T) {
	r := NewRecorder()
	opts, result := testResult()
	r.Observe(opts, result, time.Unix(1, 0))

	path := filepath.Join(t.TempDir(), "s3_snapshot.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `s3_snapshot_objects_copied_total{destination="dst",source="src"} 1`))
}
