package history

import (
	"fmt"
	"time"
)

// MaxWindow is the longest range a single history query may cover.
const MaxWindow = 90 * 24 * time.Hour

// defaultPeriod is used when the caller supplies neither bounds nor a
// period key.
const defaultPeriod = Period24h

// ResolveWindow normalises a request into a canonical query window.
//
// Rules:
//   - A non-custom period with no explicit bounds yields [now-d, now].
//   - Explicit start/end win over the period key; the period then only
//     hints cache freshness.
//   - A lone start bound is closed with end=now; a lone end bound is
//     anchored with start=end-d for non-custom periods.
//   - Future windows are not rejected; they simply yield empty results.
//
// Pure function of the request and the supplied clock reading.
//
// Parameters:
//   - req: The history request
//   - now: Current time from the injected clock
//
// Returns:
//   - Window: Resolved window with Start < End
//   - error: *ValidationError on bad input
func ResolveWindow(req Request, now time.Time) (Window, error) {
	now = now.UTC()

	raw := req.Period
	if raw == "" {
		if req.Start != nil || req.End != nil {
			raw = string(PeriodCustom)
		} else {
			raw = string(defaultPeriod)
		}
	}

	period, ok := ParsePeriod(raw)
	if !ok {
		return Window{}, newValidationError(CodeInvalidPeriodKey,
			fmt.Sprintf("unknown time period %q", raw))
	}

	var start, end time.Time
	switch {
	case req.Start != nil && req.End != nil:
		start = req.Start.UTC()
		end = req.End.UTC()
	case req.Start != nil:
		start = req.Start.UTC()
		end = now
	case req.End != nil:
		if period == PeriodCustom {
			return Window{}, newValidationError(CodeInvalidPeriodKey,
				"custom period requires an explicit start_time")
		}
		end = req.End.UTC()
		start = end.Add(-period.Duration())
	default:
		if period == PeriodCustom {
			return Window{}, newValidationError(CodeInvalidPeriodKey,
				"custom period requires explicit start_time and end_time")
		}
		end = now
		start = end.Add(-period.Duration())
	}

	if !start.Before(end) {
		return Window{}, newValidationError(CodeStartAfterEnd,
			"start_time must be before end_time")
	}
	if end.Sub(start) > MaxWindow {
		return Window{}, newValidationError(CodeRangeTooLong,
			fmt.Sprintf("time range exceeds maximum of %d days", int(MaxWindow.Hours()/24)))
	}

	return Window{Start: start, End: end, Period: period}, nil
}
