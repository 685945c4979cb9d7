package quota

import (
	"time"

	"server-rewards-app/internal/pkg/util"
)

// Window is the accounting period a daily quota is measured over: one calendar
// day in the accounting timezone, [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowAt returns the window containing t. Every quota read, reconstruction,
// cache TTL and accrual check goes through here.
func WindowAt(t time.Time, loc *time.Location) Window {
	start := util.StartOfDay(t, loc)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// TTL is the time left until the window closes, never less than one second.
func (w Window) TTL(now time.Time) time.Duration {
	ttl := w.End.Sub(now)
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}

// Contains reports whether t falls in [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}
