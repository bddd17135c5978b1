// Package usage implements the per-model usage window: how estimated
// tokens accumulate between reset boundaries and how windows are keyed
// in the store.
package usage

import (
	"strings"
	"time"
	"unicode"
)

// Namespace prefixes every key the counter writes.
const Namespace = "chatTokenCounter_v1"

// WindowLength is the distance from the start of the hour a window was
// opened in to its reset boundary.
const WindowLength = 5 * time.Hour

// Window is the accumulation bucket for one model. The JSON shape is the
// one the browser version stored, so existing values decode unchanged.
type Window struct {
	Total          int64 `json:"total"`
	ResetTimestamp int64 `json:"resetTimestamp"` // unix milliseconds
	// Model is the label as read from the page. Keys collapse whitespace,
	// so this is the only exact copy; older values lack it.
	Model string `json:"model,omitempty"`
}

// ResetAt returns the reset boundary as a time.
func (w Window) ResetAt() time.Time {
	return time.UnixMilli(w.ResetTimestamp)
}

// Expired reports whether now has reached the reset boundary.
func (w Window) Expired(now time.Time) bool {
	return !now.Before(w.ResetAt())
}

// ResetBoundary returns the start of now's local hour plus five wall-clock
// hours. Adding hours through time.Date keeps DST behavior identical to
// Date.setHours in the browser.
func ResetBoundary(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, now.Hour()+int(WindowLength/time.Hour), 0, 0, 0, now.Location())
}

// Load returns the total to resume from. A missing or expired window
// resumes from zero and reports inactive.
func Load(stored *Window, now time.Time) (total int64, active bool) {
	if stored == nil || stored.Expired(now) {
		return 0, false
	}
	return stored.Total, true
}

// Accumulate adds count to the stored window. An active window keeps its
// reset boundary; otherwise a fresh window starts at count with a newly
// computed boundary.
func Accumulate(stored *Window, count int64, now time.Time) Window {
	if count < 0 {
		count = 0
	}
	if total, active := Load(stored, now); active {
		return Window{Total: total + count, ResetTimestamp: stored.ResetTimestamp}
	}
	return Window{Total: count, ResetTimestamp: ResetBoundary(now).UnixMilli()}
}

// WindowKey returns the store key of a model's window. Whitespace runs in
// the model label collapse to a single underscore.
func WindowKey(model string) string {
	return Namespace + "_" + collapseSpace(model)
}

func collapseSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) || r == '\uFEFF' {
			if !inSpace {
				b.WriteByte('_')
			}
			inSpace = true
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
