package snapshot

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrPartialCopy is returned by Report.Err when at least one copy failed
var ErrPartialCopy = errors.New("snapshot incomplete")

// CopyError is the failure of a single copy task
type CopyError struct {
	Key       string
	VersionID string
	Err       error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("copy %s (version %s): %v", e.Key, e.VersionID, e.Err)
}

func (e *CopyError) Unwrap() error {
	return e.Err
}

// CopyOutcome is the result of executing one CopyTask
type CopyOutcome struct {
	Task CopyTask
	Err  error
}

// Success reports whether the task copied its object
func (o CopyOutcome) Success() bool {
	return o.Err == nil
}

// Report aggregates the outcomes of a copy batch
type Report struct {
	Attempted int
	Succeeded int
	Copied    []Candidate
	Failures  []*CopyError
	Duration  time.Duration
}

func (r *Report) record(o CopyOutcome) {
	if o.Success() {
		r.Succeeded++
		r.Copied = append(r.Copied, Candidate{Key: o.Task.Key, VersionID: o.Task.VersionID})
		return
	}
	r.Failures = append(r.Failures, &CopyError{Key: o.Task.Key, VersionID: o.Task.VersionID, Err: o.Err})
}

// finish orders entries by key so reports are stable across runs
func (r *Report) finish(start time.Time) {
	r.Duration = time.Since(start)
	sort.Slice(r.Copied, func(i, j int) bool { return r.Copied[i].Key < r.Copied[j].Key })
	sort.Slice(r.Failures, func(i, j int) bool { return r.Failures[i].Key < r.Failures[j].Key })
}

// Err returns nil when every attempted copy succeeded
func (r *Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d of %d objects failed to copy", ErrPartialCopy, len(r.Failures), r.Attempted)
}

// Summary renders the human readable outcome printed on completion
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Copied %d of %d objects in %.2fs\n", r.Succeeded, r.Attempted, r.Duration.Seconds())
	if len(r.Failures) > 0 {
		fmt.Fprintf(&b, "%d failures:\n", len(r.Failures))
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "  %s (version %s): %v\n", f.Key, f.VersionID, f.Err)
		}
	}
	return b.String()
}
