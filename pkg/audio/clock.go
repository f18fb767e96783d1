package audio

import (
	"fmt"
	"time"
)

// FormatElapsed renders a recording timer as zero-padded "MM:SS". Minutes are
// not capped at 59. Negative durations render as "00:00".
func FormatElapsed(d time.Duration) string {
	s := wholeSeconds(d)
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

// FormatClock renders a playback position as "M:SS".
func FormatClock(d time.Duration) string {
	s := wholeSeconds(d)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

func wholeSeconds(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}
