package session

import (
	"fmt"
	"math"
	"time"
)

// RemainingSeconds is the authoritative time left on a timed session:
// max(0, budget - floor((now - start) / 1s)). It never exceeds the budget,
// even if the device clock moved backwards.
func RemainingSeconds(start, now time.Time, budget time.Duration) int {
	elapsed := now.Sub(start).Milliseconds() / 1000
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := int64(budget/time.Second) - elapsed
	if remaining < 0 {
		return 0
	}
	return int(remaining)
}

// FormatClock renders seconds as mm:ss.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// FormatResumeLabel renders seconds as m:ss, the way the quiz list shows it.
func FormatResumeLabel(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// TimerBand classifies the time left for display.
type TimerBand string

const (
	TimerBandNormal  TimerBand = "normal"
	TimerBandWarning TimerBand = "warning"
	TimerBandDanger  TimerBand = "danger"
)

// BandFor returns danger at or under a minute, warning at or under three.
func BandFor(seconds int) TimerBand {
	switch {
	case seconds <= 60:
		return TimerBandDanger
	case seconds <= 180:
		return TimerBandWarning
	default:
		return TimerBandNormal
	}
}

// CompletionPercent is answered/total as a rounded percentage.
func CompletionPercent(answered, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(answered) / float64(total) * 100))
}
