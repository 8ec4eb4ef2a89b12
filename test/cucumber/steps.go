package cucumber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/GreedyKomodoDragon/s3-snapshot/internal/objectstore"
	"github.com/GreedyKomodoDragon/s3-snapshot/internal/snapshot"
)

// TestContext holds the state of one scenario
type TestContext struct {
	store   *objectstore.MockObjectStore
	workers int
	opts    snapshot.Options

	result *snapshot.Result
	runErr error
}

// NewTestContext creates a new test context
func NewTestContext() *TestContext {
	return &TestContext{
		store:   objectstore.NewMockObjectStore(),
		workers: snapshot.DefaultWorkers,
	}
}

// InitializeTestSuite initializes the cucumber test suite
func InitializeTestSuite(ctx *godog.TestSuiteContext) {
	ctx.BeforeSuite(func() {
		fmt.Println("Starting s3-snapshot scenarios")
	})

	ctx.AfterSuite(func() {
		fmt.Println("Finished s3-snapshot scenarios")
	})
}

// InitializeScenario initializes each cucumber scenario
func InitializeScenario(ctx *godog.ScenarioContext) {
	testCtx := NewTestContext()

	// Bucket history
	ctx.Step(`^object "([^"]*)" in "([^"]*)" has version "([^"]*)" written at (\d+)$`, testCtx.objectHasVersion)
	ctx.Step(`^object "([^"]*)" in "([^"]*)" has an unversioned revision written at (\d+)$`, testCtx.objectHasUnversionedRevision)
	ctx.Step(`^object "([^"]*)" in "([^"]*)" was deleted at (\d+) with marker "([^"]*)"$`, testCtx.objectWasDeleted)
	ctx.Step(`^the store lists (\d+) records per page$`, testCtx.storeListsRecordsPerPage)
	ctx.Step(`^the bucket "([^"]*)" already exists$`, testCtx.bucketAlreadyExists)
	ctx.Step(`^creating buckets fails with "([^"]*)"$`, testCtx.creatingBucketsFails)
	ctx.Step(`^listing versions fails with "([^"]*)"$`, testCtx.listingFails)
	ctx.Step(`^copying "([^"]*)" fails with "([^"]*)"$`, testCtx.copyingFails)
	ctx.Step(`^the copy phase uses (\d+) workers$`, testCtx.copyPhaseUsesWorkers)

	// Run
	ctx.Step(`^the run writes a manifest to "([^"]*)"$`, testCtx.runWritesManifest)
	ctx.Step(`^the run is a dry run$`, testCtx.runIsDryRun)
	ctx.Step(`^I snapshot "([^"]*)" into "([^"]*)" as of "([^"]*)"$`, testCtx.snapshotAsOf)

	// Outcome
	ctx.Step(`^the snapshot succeeds$`, testCtx.snapshotSucceeds)
	ctx.Step(`^the snapshot is aborted with "([^"]*)"$`, testCtx.snapshotIsAborted)
	ctx.Step(`^the snapshot is incomplete$`, testCtx.snapshotIsIncomplete)
	ctx.Step(`^(\d+) of (\d+) objects are copied$`, testCtx.objectsAreCopied)
	ctx.Step(`^"([^"]*)" is copied at version "([^"]*)"$`, testCtx.keyIsCopiedAtVersion)
	ctx.Step(`^"([^"]*)" is not copied$`, testCtx.keyIsNotCopied)
	ctx.Step(`^nothing is written to the store$`, testCtx.nothingIsWritten)
	ctx.Step(`^the copy set is:$`, testCtx.copySetIs)
	ctx.Step(`^the failures are:$`, testCtx.failuresAre)
	ctx.Step(`^the bucket "([^"]*)" exists$`, testCtx.bucketExists)
	ctx.Step(`^the bucket creation error "([^"]*)" is reported$`, testCtx.bucketCreationErrorReported)
	ctx.Step(`^the manifest "([^"]*)" in "([^"]*)" lists (\d+) copied and (\d+) failed objects$`, testCtx.manifestLists)
}

func unix(sec int) time.Time {
	return time.Unix(int64(sec), 0)
}

func (tc *TestContext) objectHasVersion(key, bucket, versionID string, at int) error {
	tc.store.AddVersion(bucket, key, versionID, unix(at))
	return nil
}

func (tc *TestContext) objectHasUnversionedRevision(key, bucket string, at int) error {
	tc.store.AddVersion(bucket, key, "", unix(at))
	return nil
}

func (tc *TestContext) objectWasDeleted(key, bucket string, at int, marker string) error {
	tc.store.AddDeleteMarker(bucket, key, marker, unix(at))
	return nil
}

func (tc *TestContext) storeListsRecordsPerPage(size int) error {
	tc.store.SetPageSize(size)
	return nil
}

func (tc *TestContext) bucketAlreadyExists(bucket string) error {
	return tc.store.CreateBucket(context.Background(), bucket)
}

func (tc *TestContext) creatingBucketsFails(message string) error {
	tc.store.SetCreateBucketError(errors.New(message))
	return nil
}

func (tc *TestContext) listingFails(message string) error {
	tc.store.SetError(true, message)
	return nil
}

func (tc *TestContext) copyingFails(key, message string) error {
	tc.store.FailCopy(key, errors.New(message))
	return nil
}

func (tc *TestContext) copyPhaseUsesWorkers(workers int) error {
	tc.workers = workers
	return nil
}

func (tc *TestContext) runWritesManifest(key string) error {
	tc.opts.ManifestKey = key
	return nil
}

func (tc *TestContext) runIsDryRun() error {
	tc.opts.DryRun = true
	return nil
}

func (tc *TestContext) snapshotAsOf(source, destination, cutoff string) error {
	at, err := snapshot.ParseCutoff(cutoff)
	if err != nil {
		return err
	}

	tc.opts.Source = source
	tc.opts.Destination = destination
	tc.opts.Cutoff = at

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tc.result, tc.runErr = snapshot.NewService(tc.store, tc.workers, logger).Run(context.Background(), tc.opts)
	return nil
}

func (tc *TestContext) report() (*snapshot.Report, error) {
	if tc.runErr != nil {
		return nil, fmt.Errorf("snapshot failed: %v", tc.runErr)
	}
	if tc.result == nil || tc.result.Report == nil {
		return nil, errors.New("snapshot produced no copy report")
	}
	return tc.result.Report, nil
}

func (tc *TestContext) snapshotSucceeds() error {
	report, err := tc.report()
	if err != nil {
		return err
	}
	return report.Err()
}

func (tc *TestContext) snapshotIsAborted(message string) error {
	if tc.runErr == nil {
		return errors.New("expected the snapshot to be aborted")
	}
	if !strings.Contains(tc.runErr.Error(), message) {
		return fmt.Errorf("expected error containing %q, got %q", message, tc.runErr)
	}
	return nil
}

func (tc *TestContext) snapshotIsIncomplete() error {
	report, err := tc.report()
	if err != nil {
		return err
	}
	if !errors.Is(report.Err(), snapshot.ErrPartialCopy) {
		return fmt.Errorf("expected a partial copy, got %v", report.Err())
	}
	return nil
}

func (tc *TestContext) objectsAreCopied(succeeded, attempted int) error {
	report, err := tc.report()
	if err != nil {
		return err
	}
	if report.Succeeded != succeeded || report.Attempted != attempted {
		return fmt.Errorf("expected %d of %d copied, got %d of %d", succeeded, attempted, report.Succeeded, report.Attempted)
	}
	if got := len(tc.store.Copies()); got != succeeded {
		return fmt.Errorf("store recorded %d copies, report says %d", got, succeeded)
	}
	return nil
}

func (tc *TestContext) copiedVersion(key string) (string, bool) {
	for _, c := range tc.store.Copies() {
		if c.Source.Key == key {
			return c.Source.VersionID, true
		}
	}
	return "", false
}

func (tc *TestContext) keyIsCopiedAtVersion(key, versionID string) error {
	got, ok := tc.copiedVersion(key)
	if !ok {
		return fmt.Errorf("%q was not copied", key)
	}
	if got != versionID {
		return fmt.Errorf("%q copied at version %q, expected %q", key, got, versionID)
	}
	return nil
}

func (tc *TestContext) keyIsNotCopied(key string) error {
	if got, ok := tc.copiedVersion(key); ok {
		return fmt.Errorf("%q was copied at version %q", key, got)
	}
	return nil
}

func (tc *TestContext) nothingIsWritten() error {
	if n := len(tc.store.Copies()); n != 0 {
		return fmt.Errorf("expected no copies, got %d", n)
	}
	if tc.store.BucketExists(tc.opts.Destination) {
		return fmt.Errorf("destination %q was created", tc.opts.Destination)
	}
	return nil
}

func (tc *TestContext) copySetIs(table *godog.Table) error {
	if tc.runErr != nil {
		return tc.runErr
	}

	want := make([]snapshot.Candidate, 0, len(table.Rows)-1)
	for _, row := range table.Rows[1:] {
		want = append(want, snapshot.Candidate{Key: row.Cells[0].Value, VersionID: row.Cells[1].Value})
	}

	got := tc.result.Resolution.Candidates
	if len(got) != len(want) {
		return fmt.Errorf("expected copy set %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("expected copy set %v, got %v", want, got)
		}
	}
	return nil
}

func (tc *TestContext) failuresAre(table *godog.Table) error {
	report, err := tc.report()
	if err != nil {
		return err
	}

	rows := table.Rows[1:]
	if len(report.Failures) != len(rows) {
		return fmt.Errorf("expected %d failures, got %d", len(rows), len(report.Failures))
	}
	for i, row := range rows {
		f := report.Failures[i]
		key, version, message := row.Cells[0].Value, row.Cells[1].Value, row.Cells[2].Value
		if f.Key != key || f.VersionID != version || !strings.Contains(f.Err.Error(), message) {
			return fmt.Errorf("failure %d: expected %s (version %s): %s, got %v", i, key, version, message, f)
		}
	}
	return nil
}

func (tc *TestContext) bucketExists(bucket string) error {
	if !tc.store.BucketExists(bucket) {
		return fmt.Errorf("bucket %q does not exist", bucket)
	}
	return nil
}

func (tc *TestContext) bucketCreationErrorReported(message string) error {
	if tc.result == nil || tc.result.BucketErr == nil {
		return errors.New("expected a bucket creation error")
	}
	if !strings.Contains(tc.result.BucketErr.Error(), message) {
		return fmt.Errorf("expected bucket error containing %q, got %q", message, tc.result.BucketErr)
	}
	return nil
}

func (tc *TestContext) manifestLists(key, bucket string, copied, failed int) error {
	body, ok := tc.store.Uploaded(bucket, key)
	if !ok {
		return fmt.Errorf("manifest %s/%s was not written", bucket, key)
	}

	var manifest snapshot.Manifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		return fmt.Errorf("manifest is not valid JSON: %w", err)
	}
	if len(manifest.Copied) != copied || len(manifest.Failures) != failed {
		return fmt.Errorf("manifest lists %d copied and %d failed, expected %d and %d",
			len(manifest.Copied), len(manifest.Failures), copied, failed)
	}
	if manifest.RunID != tc.result.RunID {
		return fmt.Errorf("manifest run id %q does not match run %q", manifest.RunID, tc.result.RunID)
	}
	return nil
}
