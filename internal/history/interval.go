package history

import (
	"fmt"
	"math"
	"time"
)

// MaxDataPoints caps how many buckets a single response may contain.
const MaxDataPoints = 5000

// intervalRule maps a window length to its preset aggregation interval.
type intervalRule struct {
	span     time.Duration
	interval time.Duration
}

// intervalTable pairs preset window lengths with aggregation intervals.
// Custom windows use the smallest entry whose span covers the window.
var intervalTable = []intervalRule{
	{time.Hour, time.Minute},
	{6 * time.Hour, 5 * time.Minute},
	{24 * time.Hour, 15 * time.Minute},
	{3 * 24 * time.Hour, time.Hour},
	{7 * 24 * time.Hour, 4 * time.Hour},
	{30 * 24 * time.Hour, 12 * time.Hour},
}

// SelectInterval picks the effective aggregation interval for a window.
//
// An explicit override is honoured unless it would break the point
// ceiling. Without an override, the preset table is consulted; windows
// longer than the largest table span, and overrides that would exceed
// MaxDataPoints, are widened to ceil(window/MaxDataPoints) rounded up to
// a whole second. Callers must surface the returned interval in response
// metadata so a substitution is never silent.
//
// Parameters:
//   - window: The resolved query window
//   - override: Caller-requested interval, 0 for auto-select
//
// Returns:
//   - time.Duration: Effective interval, always > 0 and satisfying
//     ceil(window/interval) <= MaxDataPoints
func SelectInterval(window Window, override time.Duration) time.Duration {
	duration := window.Duration()

	interval := override
	if interval <= 0 {
		for _, rule := range intervalTable {
			if duration <= rule.span {
				interval = rule.interval
				break
			}
		}
	}

	if interval <= 0 || pointCount(duration, interval) > MaxDataPoints {
		interval = widenInterval(duration)
	}

	return interval
}

// pointCount returns ceil(duration/interval).
func pointCount(duration, interval time.Duration) int64 {
	return int64(math.Ceil(float64(duration) / float64(interval)))
}

// widenInterval computes the smallest whole-second interval that keeps
// the window under the point ceiling.
func widenInterval(duration time.Duration) time.Duration {
	seconds := math.Ceil(duration.Seconds() / MaxDataPoints)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

// FormatInterval renders an interval the way dashboards expect
// ("15m", "12h", "1d"); irregular widened intervals fall back to seconds.
func FormatInterval(d time.Duration) string {
	const day = 24 * time.Hour
	switch {
	case d >= day && d%day == 0:
		return fmt.Sprintf("%dd", d/day)
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d >= time.Minute && d%time.Minute == 0:
		return fmt.Sprintf("%dm", d/time.Minute)
	default:
		return fmt.Sprintf("%ds", int64(d/time.Second))
	}
}
