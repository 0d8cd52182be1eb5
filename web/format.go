package web

import (
	"fmt"
	"time"
)

const postedAtFormat = "Jan 2, 2006 15:04"

func plural(n int, s string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", s)
	}
	return fmt.Sprintf("%d %ss", n, s)
}

// FormatAge returns how long ago t was relative to now,
// e.g. "just now", "5 minutes ago", "2 days ago"
func FormatAge(t time.Time, now time.Time) string {
	d := now.Sub(t)
	// also covers t in the future, due to clock changes
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		return plural(int(d/time.Minute), "minute") + " ago"
	}
	if d < 24*time.Hour {
		return plural(int(d/time.Hour), "hour") + " ago"
	}
	return plural(int(d/(24*time.Hour)), "day") + " ago"
}
