package services

import (
	"fmt"

	"ruwave_bot/pkg"
)

// ClosestScope controls where the point-lookup fallback searches
type ClosestScope string

const (
	// ClosestDataset searches the whole loaded dataset
	ClosestDataset ClosestScope = "dataset"
	// ClosestSameDate searches only records of the requested date
	ClosestSameDate ClosestScope = "date"
	// ClosestOff disables the fallback
	ClosestOff ClosestScope = "off"
)

// ParseClosestScope validates a scope name
func ParseClosestScope(s string) (ClosestScope, error) {
	switch scope := ClosestScope(s); scope {
	case ClosestDataset, ClosestSameDate, ClosestOff:
		return scope, nil
	default:
		return "", fmt.Errorf("unknown closest scope %q (want dataset, date or off)", s)
	}
}

// LookupResult is the outcome of one playlist query.
// Closest is set when Records holds the nearest record instead of exact matches.
type LookupResult struct {
	Window  pkg.TimeWindow
	Records []pkg.PlaylistRecord
	Closest bool
}

// Empty reports a negative result
func (r LookupResult) Empty() bool {
	return len(r.Records) == 0
}

// PlaylistLookup filters a playlist snapshot by time window
type PlaylistLookup struct {
	scope ClosestScope
}

// NewPlaylistLookup creates a lookup with the given closest-record policy
func NewPlaylistLookup(scope ClosestScope) *PlaylistLookup {
	return &PlaylistLookup{scope: scope}
}

// Find selects point or range mode from the window shape
func (l *PlaylistLookup) Find(records []pkg.PlaylistRecord, window pkg.TimeWindow) LookupResult {
	if window.IsPoint() {
		return l.Point(records, window)
	}
	return l.Range(records, window)
}

// Range returns every record inside the window in load order
func (l *PlaylistLookup) Range(records []pkg.PlaylistRecord, window pkg.TimeWindow) LookupResult {
	result := LookupResult{Window: window}
	for _, r := range records {
		if window.Contains(r) {
			result.Records = append(result.Records, r)
		}
	}
	return result
}

// Point returns the records aired exactly at the window minute, or the closest
// record according to the configured scope. Ties go to the earliest loaded record.
func (l *PlaylistLookup) Point(records []pkg.PlaylistRecord, window pkg.TimeWindow) LookupResult {
	exact := l.Range(records, window)
	if !exact.Empty() || l.scope == ClosestOff {
		return exact
	}

	target := window.Date.At(window.Start)
	best := -1
	var bestDiff int64
	for i, r := range records {
		if l.scope == ClosestSameDate && !r.AirDate.Equal(window.Date) {
			continue
		}
		diff := r.AirDate.At(r.AirTime) - target
		if diff < 0 {
			diff = -diff
		}
		if best < 0 || diff < bestDiff {
			best, bestDiff = i, diff
		}
	}

	if best < 0 {
		return exact
	}
	return LookupResult{
		Window:  window,
		Records: []pkg.PlaylistRecord{records[best]},
		Closest: true,
	}
}
