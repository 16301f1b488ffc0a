package util

import (
	"fmt"
	"strings"
	"time"
)

// FormatRemaining renders a wait such as "1 hour 5 minutes" or "42 seconds".
// Seconds are only shown when the wait is under an hour; partial seconds
// round up so a pending wait never reads as zero.
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "0 seconds"
	}
	total := int64((d + time.Second - 1) / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	var parts []string
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 && hours == 0 {
		parts = append(parts, plural(seconds, "second"))
	}
	if len(parts) == 0 {
		// exact hours with leftover seconds dropped
		parts = append(parts, plural(hours, "hour"))
	}
	return strings.Join(parts, " ")
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
