package history

import (
	"context"
	"time"
)

// Backend is a read adapter over one of the two reading stores.
//
// Both implementations must honour the same contract:
//   - Points are bucket-start-aligned, strictly ascending, no duplicates.
//   - Continuous fields carry the bucket mean; cumulative fields carry
//     the bucket maximum (the shared Classify table governs which is
//     which).
//   - An unknown device yields an empty sequence, not an error.
//   - An unreachable store returns an error wrapping
//     ErrBackendUnavailable; a deadline hit returns one wrapping
//     ErrQueryTimeout.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	// Name identifies the backend ("influxdb" or "sqlite") for cache
	// keys and logs.
	Name() string

	// Query returns aggregated points for the device over [window.Start,
	// window.End) at the given interval.
	//
	// Returns:
	//   - []MetricPoint: Ordered points (may be empty)
	//   - bool: false when the adapter fell back to raw, unaggregated rows
	//   - error: nil, or a wrapped sentinel from errors.go
	Query(ctx context.Context, deviceID string, window Window, interval time.Duration) ([]MetricPoint, bool, error)

	// DataRange reports the earliest/latest reading timestamps and the
	// record count for the device. A device with no history returns a
	// zero-count range with nil timestamps.
	DataRange(ctx context.Context, deviceID string) (DataRange, error)
}
