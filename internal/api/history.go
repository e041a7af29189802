package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xante8088/kasa-monitor-sub002/internal/history"
)

// maxQueryParamLen bounds user-supplied query parameter lengths.
const maxQueryParamLen = 256

// handleDeviceHistory returns aggregated historical metrics for a device.
//
// Query parameters:
//   - time_period: preset window key (1h, 6h, 24h, 3d, 7d, 30d, custom)
//   - start_time, end_time: explicit bounds, RFC3339 or unix seconds
//   - interval: aggregation interval override (e.g. 5m, 1h, 1d)
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	if deviceID == "" || len(deviceID) > maxQueryParamLen {
		writeBadRequest(w, "invalid device ID")
		return
	}

	req, err := parseHistoryRequest(r, deviceID)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	result, err := s.history.History(r.Context(), req)
	if err != nil {
		writeHistoryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleDeviceDataRange reports the extent of stored readings for a device.
func (s *Server) handleDeviceDataRange(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	if deviceID == "" || len(deviceID) > maxQueryParamLen {
		writeBadRequest(w, "invalid device ID")
		return
	}

	dataRange, err := s.history.DataRange(r.Context(), deviceID)
	if err != nil {
		writeHistoryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dataRange)
}

// parseHistoryRequest extracts and validates history query parameters.
func parseHistoryRequest(r *http.Request, deviceID string) (history.Request, error) {
	q := r.URL.Query()

	req := history.Request{
		DeviceID: deviceID,
		Period:   q.Get("time_period"),
	}
	if len(req.Period) > maxQueryParamLen {
		return history.Request{}, fmt.Errorf("invalid time_period")
	}

	start, err := parseOptionalTime(q.Get("start_time"))
	if err != nil {
		return history.Request{}, fmt.Errorf("invalid start_time")
	}
	req.Start = start

	end, err := parseOptionalTime(q.Get("end_time"))
	if err != nil {
		return history.Request{}, fmt.Errorf("invalid end_time")
	}
	req.End = end

	interval, err := parseIntervalParam(q.Get("interval"))
	if err != nil {
		return history.Request{}, err
	}
	req.Interval = interval

	return req, nil
}

// writeHistoryError maps history service errors onto HTTP responses.
// Validation failures are the caller's fault; service failures mean the
// backing store could not answer and the client may retry later.
func writeHistoryError(w http.ResponseWriter, err error) {
	var ve *history.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, ve.Code, ve.Message)
		return
	}

	var se *history.ServiceError
	if errors.As(err, &se) {
		writeError(w, http.StatusServiceUnavailable, se.Code, se.Message)
		return
	}

	writeInternalError(w, "failed to load device history")
}

// parseOptionalTime parses an RFC3339 or unix timestamp parameter.
// An empty parameter returns nil, not an error.
func parseOptionalTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if len(raw) > maxQueryParamLen {
		return nil, fmt.Errorf("timestamp exceeds maximum length")
	}

	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		utc := parsed.UTC()
		return &utc, nil
	}

	parsed, err := parseUnixTimestamp(raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// parseUnixTimestamp parses a Unix timestamp string into time.Time.
func parseUnixTimestamp(raw string) (time.Time, error) {
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return time.Time{}, err
	}

	seconds, fraction := math.Modf(value)
	return time.Unix(int64(seconds), int64(fraction*float64(time.Second))).UTC(), nil
}

// parseIntervalParam parses the aggregation interval override.
func parseIntervalParam(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	if len(raw) > maxQueryParamLen {
		return 0, fmt.Errorf("invalid interval")
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		parsed, err = parseExtendedDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid interval")
		}
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("invalid interval")
	}

	return parsed, nil
}

// parseExtendedDuration handles day/week suffixes not supported by
// time.ParseDuration.
func parseExtendedDuration(raw string) (time.Duration, error) {
	if len(raw) < 2 {
		return 0, fmt.Errorf("invalid duration")
	}

	number := raw[:len(raw)-1]
	unit := raw[len(raw)-1]

	multiplier, ok := map[byte]time.Duration{
		'd': 24 * time.Hour,
		'w': 7 * 24 * time.Hour,
	}[unit]
	if !ok {
		return 0, fmt.Errorf("invalid duration")
	}

	value, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration")
	}
	if value <= 0 {
		return 0, fmt.Errorf("invalid duration")
	}

	return time.Duration(value * float64(multiplier)), nil
}
