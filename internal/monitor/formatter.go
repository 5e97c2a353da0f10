package monitor

import (
	"fmt"

	"github.com/fyrsmithlabs/sketchd/internal/coords"
)

// FormatPoint formats a normalized point as "(0.40, 0.60)".
func FormatPoint(p coords.Point) string {
	return fmt.Sprintf("(%.2f, %.2f)", p.X, p.Y)
}

// FormatPercentage formats a ratio (0-1) as percentage
func FormatPercentage(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// FormatStrokes formats confirmed and preview counts.
func FormatStrokes(confirmed, preview int) string {
	if preview == 0 {
		return fmt.Sprintf("%d confirmed", confirmed)
	}
	return fmt.Sprintf("%d confirmed, %d preview", confirmed, preview)
}

// FormatStage formats plan progress as "2/5".
func FormatStage(current, total int) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d", current, total)
}

// FormatDuration formats duration in seconds to "Xh Ym", "Xm" or "Xs"
func FormatDuration(seconds int64) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	case minutes > 0:
		return fmt.Sprintf("%dm", minutes)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
