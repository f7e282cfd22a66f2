package cli

import (
	"fmt"
	"time"
)

// FormatDurationShort formats a duration in a short format (M:SS or H:MM:SS).
func FormatDurationShort(d time.Duration) string {
	totalSeconds := int(d.Seconds())
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

// FormatBytes renders a size with a binary unit, e.g. "1.5 MiB".
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// RunSummary is the one-line summary printed after a CLI run.
func RunSummary(downloaded, framed int, archiveSize int64, d time.Duration) string {
	s := fmt.Sprintf("%d downloaded, %d framed in %s", downloaded, framed, FormatDurationShort(d))
	if archiveSize > 0 {
		s += fmt.Sprintf(" (archive %s)", FormatBytes(archiveSize))
	}
	return s
}
