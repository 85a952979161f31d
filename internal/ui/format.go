package ui

import (
	"fmt"
	"time"
)

// FormatDuration formats a duration for run summaries: "850µs", "12ms", "1.4s", "2m5s".
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return d.Round(time.Second).String()
	}
}

// FormatBytes formats a byte count in a human-readable way (e.g., "1.5k")
func FormatBytes(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%dB", n)
	}
	k := float64(n) / 1000.0
	if k < 10 {
		return fmt.Sprintf("%.1fk", k)
	}
	if k < 1000 {
		return fmt.Sprintf("%.0fk", k)
	}
	return fmt.Sprintf("%.1fM", k/1000.0)
}

// Plural returns "1 hunk" or "3 hunks".
func Plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
