package utils

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// MessageType is a custom type used as a placeholder for various message types.
type MessageType int

// The message types used accross the CLI application.
const (
	DefaultMessage MessageType = iota
	SuccessMessage
	ErrorMessage
	StatusMessage
)

// Colors used accross the CLI application.
const (
	DefaultColor = "\x1b[0m"
	StatusColor  = "\x1b[36m"
	SuccessColor = "\x1b[32m"
	ErrorColor   = "\x1b[31m"
)

var colored = true

// SetColors enables or disables the terminal colors of DecorateText.
func SetColors(enabled bool) {
	colored = enabled
}

// DecorateText shows the message types in different colors.
func DecorateText(s string, msgType MessageType) string {
	if !colored {
		return s
	}

	var color string
	switch msgType {
	case DefaultMessage:
		color = DefaultColor
	case StatusMessage:
		color = StatusColor
	case SuccessMessage:
		color = SuccessColor
	case ErrorMessage:
		color = ErrorColor
	default:
		return s
	}
	return color + s + DefaultColor
}

// FormatTime formats time.Duration output to a human readable value.
func FormatTime(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	secs := math.Mod(d.Seconds(), 60)
	if d < time.Hour {
		return fmt.Sprintf("%dm %.2fs", int64(d.Minutes()), secs)
	}
	return fmt.Sprintf("%dh %dm %.2fs", int64(d.Hours()), int64(d.Minutes())%60, secs)
}

// FormatBytes returns the size in a human readable form, e.g. "82 kB".
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}
