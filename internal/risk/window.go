package risk

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Window is a daily trading window parsed from "HH:MM-HH:MM".
// When Start > End the window spans midnight.
type Window struct {
	Start time.Duration // offset from local midnight
	End   time.Duration
	raw   string
}

// ParseWindow parses "HH:MM-HH:MM", e.g. "09:15-15:30" or "22:00-06:00".
func ParseWindow(s string) (Window, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return Window{}, fmt.Errorf("trading window %q: want HH:MM-HH:MM", s)
	}
	start, err := parseClock(parts[0])
	if err != nil {
		return Window{}, fmt.Errorf("trading window %q: start: %w", s, err)
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return Window{}, fmt.Errorf("trading window %q: end: %w", s, err)
	}
	return Window{Start: start, End: end, raw: strings.TrimSpace(s)}, nil
}

func parseClock(s string) (time.Duration, error) {
	hm := strings.Split(strings.TrimSpace(s), ":")
	if len(hm) != 2 {
		return 0, fmt.Errorf("%q is not HH:MM", s)
	}
	h, err := strconv.Atoi(hm[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%q: bad hour", s)
	}
	m, err := strconv.Atoi(hm[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%q: bad minute", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}

// Contains reports whether t's wall-clock time of day, in t's own location,
// falls inside the window. Both bounds are inclusive at HH:MM:00.
func (w Window) Contains(t time.Time) bool {
	tod := timeOfDay(t)
	if w.Start <= w.End {
		return w.Start <= tod && tod <= w.End
	}
	return tod >= w.Start || tod <= w.End
}

func (w Window) String() string {
	return w.raw
}

// IsInWindow parses window and checks t against it.
func IsInWindow(t time.Time, window string) (bool, error) {
	w, err := ParseWindow(window)
	if err != nil {
		return false, err
	}
	return w.Contains(t), nil
}

func timeOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}
