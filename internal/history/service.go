package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/xante8088/kasa-monitor-sub002/internal/infrastructure/logging"
)

// defaultQueryTimeout bounds a single backend call when the config
// leaves the timeout unset.
const defaultQueryTimeout = 10 * time.Second

// Deps carries the collaborators a Service needs.
type Deps struct {
	// Backend executes queries against the configured reading store.
	Backend Backend

	// Cache memoizes responses. Required.
	Cache *Cache

	// Clock supplies the current time (nil means system time).
	Clock Clock

	// Logger receives structured query diagnostics.
	Logger *logging.Logger

	// QueryTimeout bounds each individual backend call.
	QueryTimeout time.Duration
}

// Service answers history and data-range queries.
//
// A history request flows through window resolution, interval
// selection, and the TTL cache; on a miss the backend is queried with a
// per-call deadline. A timed-out call is retried once at double the
// interval, and when the backend stays down the last cached payload is
// replayed with a staleness marker rather than failing the request.
//
// Thread Safety: safe for concurrent use.
type Service struct {
	backend      Backend
	cache        *Cache
	clock        Clock
	logger       *logging.Logger
	queryTimeout time.Duration
}

// NewService creates a Service from its dependencies.
func NewService(deps Deps) *Service {
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock()
	}
	timeout := deps.QueryTimeout
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		backend:      deps.Backend,
		cache:        deps.Cache,
		clock:        clock,
		logger:       logger.With("component", "history"),
		queryTimeout: timeout,
	}
}

// History executes a history query.
//
// Parameters:
//   - ctx: Request context
//   - req: The raw query parameters
//
// Returns:
//   - *Result: Points plus metadata describing how they were produced
//   - error: *ValidationError for bad input, *ServiceError for backend
//     failure with no cached fallback
func (s *Service) History(ctx context.Context, req Request) (*Result, error) {
	window, err := ResolveWindow(req, s.clock.Now())
	if err != nil {
		return nil, err
	}

	interval := SelectInterval(window, req.Interval)
	key := Key(req.DeviceID, window, interval, s.backend.Name())
	ttl := TTLForPeriod(window.Period)

	payload, hit, err := s.cache.GetOrCompute(key, ttl, func() ([]byte, error) {
		return s.compute(ctx, req.DeviceID, window, interval)
	})
	if err != nil {
		return s.degrade(key, req.DeviceID, err)
	}

	if hit {
		s.logger.Debug("history cache hit",
			"device_id", req.DeviceID,
			"period", string(window.Period),
		)
	}

	var result Result
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, &ServiceError{
			Code:    CodeBackendUnavailable,
			Message: "cached payload corrupt",
		}
	}
	return &result, nil
}

// compute runs the backend query with the retry policy and marshals the
// assembled result for caching.
func (s *Service) compute(ctx context.Context, deviceID string, window Window, interval time.Duration) ([]byte, error) {
	points, aggregated, effective, err := s.queryWithRetry(ctx, deviceID, window, interval)
	if err != nil {
		return nil, err
	}

	result := assemble(points, window, effective, aggregated)
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encoding history result: %w", err)
	}
	return payload, nil
}

// queryWithRetry issues one backend call, retrying a single time at
// double the interval if the first call hits its deadline. The interval
// actually used is returned so metadata can disclose a substitution.
func (s *Service) queryWithRetry(ctx context.Context, deviceID string, window Window, interval time.Duration) ([]MetricPoint, bool, time.Duration, error) {
	points, aggregated, err := s.queryOnce(ctx, deviceID, window, interval)
	if err == nil {
		return points, aggregated, interval, nil
	}
	if !errors.Is(err, ErrQueryTimeout) {
		return nil, false, interval, err
	}

	widened := interval * 2
	s.logger.Warn("history query timed out, retrying with wider interval",
		"device_id", deviceID,
		"interval", FormatInterval(interval),
		"retry_interval", FormatInterval(widened),
	)

	points, aggregated, err = s.queryOnce(ctx, deviceID, window, widened)
	if err != nil {
		return nil, false, widened, err
	}
	return points, aggregated, widened, nil
}

// queryOnce runs a single backend call under the per-call deadline.
func (s *Service) queryOnce(ctx context.Context, deviceID string, window Window, interval time.Duration) ([]MetricPoint, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	return s.backend.Query(callCtx, deviceID, window, interval)
}

// degrade replays the last cached payload, if any, when the backend
// fails. The replayed result is flagged stale.
func (s *Service) degrade(key uint64, deviceID string, cause error) (*Result, error) {
	payload, ok := s.cache.GetStale(key)
	if ok {
		var result Result
		if err := json.Unmarshal(payload, &result); err == nil {
			result.Metadata.Stale = true
			s.logger.Warn("serving stale history, backend unavailable",
				"device_id", deviceID,
				"error", cause.Error(),
			)
			return &result, nil
		}
	}
	return nil, serviceErrorFrom(cause)
}

// DataRange reports the extent of stored readings for a device.
//
// Returns:
//   - *DataRange: Range summary; HasData is false for unknown devices
//   - error: *ServiceError when the backend cannot answer
func (s *Service) DataRange(ctx context.Context, deviceID string) (*DataRange, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	dr, err := s.backend.DataRange(callCtx, deviceID)
	if err != nil {
		return nil, serviceErrorFrom(err)
	}

	dr.DeviceID = deviceID
	dr.HasData = dr.TotalRecords > 0
	if dr.EarliestTimestamp != nil && dr.LatestTimestamp != nil {
		span := dr.LatestTimestamp.Sub(*dr.EarliestTimestamp)
		dr.TotalDays = int(span/(24*time.Hour)) + 1
	}
	return &dr, nil
}

// assemble orders and deduplicates backend points and attaches metadata.
func assemble(points []MetricPoint, window Window, interval time.Duration, aggregated bool) *Result {
	sort.Slice(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})

	// Backends may emit one row per field group for the same bucket;
	// collapse duplicates by keeping the first fully populated view.
	deduped := make([]MetricPoint, 0, len(points))
	for _, p := range points {
		n := len(deduped)
		if n > 0 && deduped[n-1].Timestamp.Equal(p.Timestamp) {
			deduped[n-1] = mergePoints(deduped[n-1], p)
			continue
		}
		deduped = append(deduped, p)
	}

	return &Result{
		Data: deduped,
		Metadata: Metadata{
			TimePeriod: string(window.Period),
			StartTime:  window.Start,
			EndTime:    window.End,
			Interval:   FormatInterval(interval),
			DataPoints: len(deduped),
			Aggregated: aggregated,
		},
	}
}

// mergePoints fills nil fields of a with values from b.
func mergePoints(a, b MetricPoint) MetricPoint {
	if a.PowerW == nil {
		a.PowerW = b.PowerW
	}
	if a.VoltageV == nil {
		a.VoltageV = b.VoltageV
	}
	if a.CurrentA == nil {
		a.CurrentA = b.CurrentA
	}
	if a.EnergyTodayKWh == nil {
		a.EnergyTodayKWh = b.EnergyTodayKWh
	}
	if a.EnergyMonthKWh == nil {
		a.EnergyMonthKWh = b.EnergyMonthKWh
	}
	if a.EnergyTotalKWh == nil {
		a.EnergyTotalKWh = b.EnergyTotalKWh
	}
	return a
}

// serviceErrorFrom maps adapter sentinels onto the public error codes.
func serviceErrorFrom(err error) *ServiceError {
	if errors.Is(err, ErrQueryTimeout) {
		return &ServiceError{
			Code:    CodeQueryTimeoutExhausted,
			Message: "history query timed out after retry",
		}
	}
	return &ServiceError{
		Code:    CodeBackendUnavailable,
		Message: "history backend unavailable",
	}
}
