package snapshot

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// timestampLayouts lists the accepted textual forms. Layouts without a zone
// parse as UTC, never as local time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123,
}

// Normalize converts a store modification time into a comparable UTC instant.
// The monotonic clock reading is dropped so equal instants compare equal.
func Normalize(t time.Time) time.Time {
	return t.Round(0).UTC()
}

// ParseTimestamp parses a textual store timestamp, reading zone-less values as UTC
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return Normalize(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}

// ParseCutoff accepts seconds since the epoch or any ParseTimestamp form
func ParseCutoff(raw string) (time.Time, error) {
	if secs, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := ParseTimestamp(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cutoff: %w", err)
	}
	return t, nil
}
