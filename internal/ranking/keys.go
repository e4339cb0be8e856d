// Package ranking is the event-driven ranking pipeline: a scorer consuming
// the streaming bus into per-day sorted sets, a midnight carry-over job and a
// periodic snapshot writer for disaster fallback.
package ranking

import "time"

const (
	liveKeyPrefix   = "ranking:all:"
	carryOverPrefix = "ranking:carryover:"
)

// Key returns the live ranking key for a date: ranking:all:YYYYMMDD (UTC).
// Members are decimal product ids, scores are accumulated weighted sums.
func Key(date time.Time) string {
	return liveKeyPrefix + date.UTC().Format("20060102")
}

// CarryOverMarker returns the per-date marker key that guards the carry-over
// job against running twice for the same date.
func CarryOverMarker(date time.Time) string {
	return carryOverPrefix + date.UTC().Format("20060102")
}
