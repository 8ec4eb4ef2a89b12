package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/GreedyKomodoDragon/s3-snapshot/internal/objectstore"
)

// DefaultWorkers is the copy worker pool size used when none is configured
const DefaultWorkers = 64

// CopyTask copies one exact revision into the destination bucket under the same key
type CopyTask struct {
	SourceBucket      string
	Key               string
	VersionID         string
	DestinationBucket string
}

// NewCopyTasks binds a copy set to its source and destination buckets
func NewCopyTasks(candidates []Candidate, source, destination string) []CopyTask {
	tasks := make([]CopyTask, 0, len(candidates))
	for _, c := range candidates {
		tasks = append(tasks, CopyTask{
			SourceBucket:      source,
			Key:               c.Key,
			VersionID:         c.VersionID,
			DestinationBucket: destination,
		})
	}
	return tasks
}

// Copier executes copy tasks on a bounded worker pool
type Copier struct {
	store   objectstore.VersionStore
	workers int
	logger  *slog.Logger
}

// NewCopier creates a new copier. A workers value <= 0 runs one worker per task.
func NewCopier(store objectstore.VersionStore, workers int, logger *slog.Logger) *Copier {
	return &Copier{
		store:   store,
		workers: workers,
		logger:  logger,
	}
}

// EnsureBucket creates the destination bucket. An existing bucket counts as
// success; any other failure is logged and returned for the caller to record,
// it must not stop the snapshot.
func (c *Copier) EnsureBucket(ctx context.Context, bucket string) error {
	err := c.store.CreateBucket(ctx, bucket)
	switch {
	case err == nil:
		c.logger.Info("Created destination bucket", "bucket", bucket)
		return nil
	case errors.Is(err, objectstore.ErrBucketAlreadyExists):
		c.logger.Info("Destination bucket already exists", "bucket", bucket)
		return nil
	default:
		c.logger.Warn("Failed to create destination bucket, continuing", "bucket", bucket, "error", err)
		return err
	}
}

// Execute runs every task and blocks until all have finished. A failed task
// never stops its siblings; each task yields exactly one outcome in the report.
// Tasks not yet started when ctx is done are reported with the context error.
func (c *Copier) Execute(ctx context.Context, tasks []CopyTask) *Report {
	start := time.Now()
	report := &Report{Attempted: len(tasks)}

	if len(tasks) == 0 {
		report.finish(start)
		return report
	}

	workers := c.workers
	if workers <= 0 || workers > len(tasks) {
		workers = len(tasks)
	}

	jobs := make(chan CopyTask)
	outcomes := make(chan CopyOutcome, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range jobs {
				outcomes <- c.copy(ctx, task)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, task := range tasks {
			jobs <- task
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	// Single consumer: the report is only touched from this goroutine
	for outcome := range outcomes {
		report.record(outcome)
	}

	report.finish(start)

	c.logger.Info("Copy phase finished",
		"attempted", report.Attempted,
		"succeeded", report.Succeeded,
		"failed", len(report.Failures),
		"duration", report.Duration,
	)

	return report
}

// copy runs one task, converting errors and panics into its outcome
func (c *Copier) copy(ctx context.Context, task CopyTask) (outcome CopyOutcome) {
	outcome.Task = task

	defer func() {
		if r := recover(); r != nil {
			outcome.Err = fmt.Errorf("copy panicked: %v", r)
			c.logger.Error("Copy panicked", "key", task.Key, "panic", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		outcome.Err = err
		return outcome
	}

	src := objectstore.ObjectRef{
		Bucket:    task.SourceBucket,
		Key:       task.Key,
		VersionID: task.VersionID,
	}

	c.logger.Debug("Copying object",
		"key", task.Key,
		"version_id", task.VersionID,
		"from", task.SourceBucket,
		"to", task.DestinationBucket,
	)

	if err := c.store.CopyObject(ctx, src, task.DestinationBucket, task.Key); err != nil {
		c.logger.Warn("Failed to copy object", "key", task.Key, "version_id", task.VersionID, "error", err)
		outcome.Err = err
	}
	return outcome
}
