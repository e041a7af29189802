package history

import "time"

// Period identifies a named query window preset.
type Period string

// Supported period keys.
const (
	Period1h     Period = "1h"
	Period6h     Period = "6h"
	Period24h    Period = "24h"
	Period3d     Period = "3d"
	Period7d     Period = "7d"
	Period30d    Period = "30d"
	PeriodCustom Period = "custom"
)

// periodDurations maps non-custom period keys to their window length.
var periodDurations = map[Period]time.Duration{
	Period1h:  time.Hour,
	Period6h:  6 * time.Hour,
	Period24h: 24 * time.Hour,
	Period3d:  3 * 24 * time.Hour,
	Period7d:  7 * 24 * time.Hour,
	Period30d: 30 * 24 * time.Hour,
}

// ParsePeriod validates a period key.
//
// Returns:
//   - Period: The parsed period
//   - bool: false if the key is not a recognised period
func ParsePeriod(raw string) (Period, bool) {
	p := Period(raw)
	if p == PeriodCustom {
		return p, true
	}
	if _, ok := periodDurations[p]; ok {
		return p, true
	}
	return "", false
}

// Duration returns the window length for a non-custom period, or 0 for
// custom (whose length comes from explicit bounds).
func (p Period) Duration() time.Duration {
	return periodDurations[p]
}

// Request describes a history query before resolution.
//
// Start/End are optional explicit bounds; Period is the raw period key
// from the caller ("" means unset); Interval is an optional aggregation
// override (0 means auto-select).
type Request struct {
	DeviceID string
	Start    *time.Time
	End      *time.Time
	Period   string
	Interval time.Duration
}

// Window is a resolved, validated query range [Start, End).
//
// Invariant: Start < End and End-Start <= MaxWindow. Period records the
// preset the window was resolved from and drives cache freshness; it is
// PeriodCustom when explicit bounds were supplied without a preset.
type Window struct {
	Start  time.Time
	End    time.Time
	Period Period
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// MetricPoint is a single aggregated sample.
//
// Field pointers are nil when the backend had no data for that field in
// the bucket; a missing reading is never reported as zero.
type MetricPoint struct {
	Timestamp      time.Time `json:"timestamp"`
	PowerW         *float64  `json:"power_w"`
	VoltageV       *float64  `json:"voltage_v"`
	CurrentA       *float64  `json:"current_a"`
	EnergyTodayKWh *float64  `json:"energy_today_kwh"`
	EnergyMonthKWh *float64  `json:"energy_month_kwh"`
	EnergyTotalKWh *float64  `json:"energy_total_kwh"`
}

// Metadata describes how a history response was produced.
type Metadata struct {
	TimePeriod string    `json:"time_period"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`

	// Interval is the effective aggregation interval. When the engine
	// widens a requested interval to stay under the point ceiling, the
	// substitution is disclosed here.
	Interval string `json:"interval"`

	DataPoints int `json:"data_points"`

	// Aggregated is false only when the relational backend fell back to
	// raw row retrieval.
	Aggregated bool `json:"aggregated"`

	// Stale is true when a cached response was served past its TTL
	// because the backend was unavailable.
	Stale bool `json:"stale,omitempty"`
}

// Result is the public history response shape.
type Result struct {
	Data     []MetricPoint `json:"data"`
	Metadata Metadata      `json:"metadata"`
}

// DataRange reports the extent of stored readings for one device.
type DataRange struct {
	DeviceID          string     `json:"device_id"`
	EarliestTimestamp *time.Time `json:"earliest_timestamp"`
	LatestTimestamp   *time.Time `json:"latest_timestamp"`
	TotalDays         int        `json:"total_days"`
	TotalRecords      int64      `json:"total_records"`
	HasData           bool       `json:"has_data"`
}
