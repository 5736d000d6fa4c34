package ratelimit

import (
	"fmt"
	"time"
)

// window identifies a fixed window by its bucket label, used as the
// remote-store key suffix, and the instant the window ends, surfaced
// to callers as resetAt.
type window struct {
	bucket  string
	resetAt time.Time
}

func minuteWindow(now time.Time) window {
	truncated := now.UTC().Truncate(time.Minute)
	return window{bucket: truncated.Format("200601021504"), resetAt: truncated.Add(time.Minute)}
}

func dayWindow(now time.Time) window {
	u := now.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return window{bucket: start.Format("20060102"), resetAt: start.Add(24 * time.Hour)}
}

// isoWeekWindow truncates to the Monday that starts the caller's ISO
// week, per spec.md §3's "ISO week" rate-limit counter semantics.
func isoWeekWindow(now time.Time) window {
	u := now.UTC()
	year, week := u.ISOWeek()

	weekday := int(u.Weekday())
	if weekday == 0 {
		weekday = 7 // ISO: Monday=1 .. Sunday=7
	}
	monday := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(weekday - 1))

	return window{bucket: fmt.Sprintf("%04d-W%02d", year, week), resetAt: monday.AddDate(0, 0, 7)}
}
