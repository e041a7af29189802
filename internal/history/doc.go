// Package history implements the historical metrics query engine.
//
// It answers two questions about a device's stored power readings:
// "what happened over this window" (History) and "how much data exists
// at all" (DataRange). The engine sits behind the HTTP API and in front
// of one of two interchangeable stores, selected at startup:
//
//   - InfluxBackend aggregates server-side with Flux, pushing the
//     mean/max work into InfluxDB.
//   - SQLiteBackend buckets with integer division on unix-second
//     timestamps over the readings table written by the poller.
//
// Both adapters honour the same contract (see Backend), so everything
// above them is backend-agnostic.
//
// # Query pipeline
//
// A request is resolved into a canonical [start, end) window
// (ResolveWindow), assigned an aggregation interval (SelectInterval),
// and looked up in a TTL cache keyed on device, window, interval, and
// backend. On a miss the backend is queried under a per-call deadline;
// a timeout earns one retry at double the interval, and if the backend
// stays down the last cached payload for that exact query is replayed
// with metadata.stale set. Validation failures never reach the backend.
//
// # Aggregation semantics
//
// Instantaneous fields (power_w, voltage_v, current_a) take the mean of
// each bucket. Monotonic counters (energy_today_kwh, energy_month_kwh,
// energy_total_kwh) take the maximum, which tracks the counter without
// double counting. A bucket spanning a counter reset (midnight for
// energy_today_kwh) reports the pre-reset maximum; consumers that need
// exact per-bucket deltas should difference energy_total_kwh instead.
//
// Responses never exceed MaxDataPoints buckets: the interval is widened
// as needed and the substitution is always disclosed in
// metadata.interval.
package history
