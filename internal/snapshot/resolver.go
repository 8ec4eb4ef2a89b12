package snapshot

import (
	"log/slog"
	"sort"
	"time"

	"github.com/GreedyKomodoDragon/s3-snapshot/internal/objectstore"
)

// UnversionedID stands in for a revision listed without a version id. It is
// passed to the copy untouched.
const UnversionedID = "0"

// Candidate is one entry of the copy set
type Candidate struct {
	Key       string `json:"key"`
	VersionID string `json:"version_id"`
}

// SkippedKey is a key left out of the copy set because its records are malformed
type SkippedKey struct {
	Key    string
	Reason string
}

// Resolution is the outcome of resolving a bounded history
type Resolution struct {
	// Candidates holds at most one entry per key, sorted by key
	Candidates []Candidate

	// Deleted lists keys whose latest delete marker postdates their latest version
	Deleted []string

	Skipped []SkippedKey
}

// Contains reports whether key is in the copy set
func (r *Resolution) Contains(key string) bool {
	i := sort.Search(len(r.Candidates), func(i int) bool { return r.Candidates[i].Key >= key })
	return i < len(r.Candidates) && r.Candidates[i].Key == key
}

// Resolver turns a bounded history into the copy set
type Resolver struct {
	logger *slog.Logger
}

// NewResolver creates a new version resolver
func NewResolver(logger *slog.Logger) *Resolver {
	return &Resolver{logger: logger}
}

type keyHistory struct {
	versions  []objectstore.VersionRecord
	deletions []objectstore.DeleteMarkerRecord
}

// Resolve picks, for every key with a surviving version, the revision that was
// current as of the cutoff. Keys with only delete markers are never candidates.
//
// A key is excluded when its latest delete marker is strictly newer than its
// latest version; on equal timestamps the version wins and the key is copied.
// Among versions sharing the latest timestamp the greatest version id wins, so
// the result does not depend on listing order.
func (r *Resolver) Resolve(versions []objectstore.VersionRecord, deletions []objectstore.DeleteMarkerRecord) *Resolution {
	groups := make(map[string]*keyHistory)
	res := &Resolution{}

	for _, v := range versions {
		if v.Key == "" {
			r.logger.Warn("Dropping version record without a key", "version_id", v.VersionID)
			continue
		}
		h, ok := groups[v.Key]
		if !ok {
			h = &keyHistory{}
			groups[v.Key] = h
		}
		h.versions = append(h.versions, v)
	}

	for _, d := range deletions {
		if d.Key == "" {
			r.logger.Warn("Dropping delete marker without a key", "version_id", d.VersionID)
			continue
		}
		if h, ok := groups[d.Key]; ok {
			h.deletions = append(h.deletions, d)
		}
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		h := groups[key]

		if reason := malformed(h); reason != "" {
			r.logger.Warn("Skipping key with malformed history", "key", key, "reason", reason)
			res.Skipped = append(res.Skipped, SkippedKey{Key: key, Reason: reason})
			continue
		}

		latest := latestVersion(h.versions)

		if len(h.deletions) > 0 {
			deleted := latestDeletion(h.deletions)
			if deleted.LastModified.After(latest.LastModified) {
				r.logger.Debug("Key deleted before cutoff",
					"key", key,
					"deleted_at", deleted.LastModified,
					"version_at", latest.LastModified,
				)
				res.Deleted = append(res.Deleted, key)
				continue
			}
		}

		versionID := latest.VersionID
		if versionID == "" {
			versionID = UnversionedID
		}
		res.Candidates = append(res.Candidates, Candidate{Key: key, VersionID: versionID})
	}

	r.logger.Info("Resolved copy set",
		"keys", len(keys),
		"candidates", len(res.Candidates),
		"deleted", len(res.Deleted),
		"skipped", len(res.Skipped),
	)

	return res
}

func malformed(h *keyHistory) string {
	if len(h.versions) == 0 {
		return "no versions"
	}
	for _, v := range h.versions {
		if v.LastModified.IsZero() {
			return "version without modification time"
		}
	}
	for _, d := range h.deletions {
		if d.LastModified.IsZero() {
			return "delete marker without modification time"
		}
	}
	return ""
}

func latestVersion(versions []objectstore.VersionRecord) objectstore.VersionRecord {
	latest := versions[0]
	for _, v := range versions[1:] {
		if newer(v.LastModified, v.VersionID, latest.LastModified, latest.VersionID) {
			latest = v
		}
	}
	return latest
}

func latestDeletion(deletions []objectstore.DeleteMarkerRecord) objectstore.DeleteMarkerRecord {
	latest := deletions[0]
	for _, d := range deletions[1:] {
		if d.LastModified.After(latest.LastModified) {
			latest = d
		}
	}
	return latest
}

// newer orders by time, then by version id
func newer(t time.Time, id string, thanT time.Time, thanID string) bool {
	if !t.Equal(thanT) {
		return t.After(thanT)
	}
	return id > thanID
}
