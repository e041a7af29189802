package history

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/query"
)

// maxDeviceIDLen bounds device identifiers interpolated into queries.
const maxDeviceIDLen = 256

// FluxQuerier executes Flux queries. Satisfied by the infrastructure
// influxdb.Client; narrowed to an interface so the adapter is testable
// against a fake server.
type FluxQuerier interface {
	QueryFlux(ctx context.Context, flux string) (*api.QueryTableResult, error)
}

// InfluxBackend is the columnar query adapter.
//
// It issues one Flux query that unions two field groups - continuous
// fields aggregated by mean per bucket, cumulative fields by max - then
// pivots both groups onto bucket-start timestamps.
type InfluxBackend struct {
	client      FluxQuerier
	bucket      string
	measurement string
}

// NewInfluxBackend creates the columnar adapter.
//
// Parameters:
//   - client: Connected Flux query client
//   - bucket: InfluxDB bucket holding device readings
//   - measurement: Measurement name the ingestion pipeline writes
func NewInfluxBackend(client FluxQuerier, bucket, measurement string) *InfluxBackend {
	return &InfluxBackend{
		client:      client,
		bucket:      bucket,
		measurement: measurement,
	}
}

// Name implements Backend.
func (b *InfluxBackend) Name() string { return "influxdb" }

// Query implements Backend.
func (b *InfluxBackend) Query(ctx context.Context, deviceID string, window Window, interval time.Duration) ([]MetricPoint, bool, error) {
	flux, err := b.buildHistoryFlux(deviceID, window, interval)
	if err != nil {
		return nil, false, err
	}

	result, err := b.client.QueryFlux(ctx, flux)
	if err != nil {
		return nil, false, classifyInfluxError(err)
	}

	points, err := collectPivotedPoints(result)
	if err != nil {
		return nil, false, classifyInfluxError(err)
	}

	return points, true, nil
}

// DataRange implements Backend.
//
// The power_w series is used as the canonical record count: every
// reading the ingestion pipeline emits carries a power sample.
func (b *InfluxBackend) DataRange(ctx context.Context, deviceID string) (DataRange, error) {
	quotedDevice, err := quoteFluxString(deviceID)
	if err != nil {
		return DataRange{}, err
	}

	flux := fmt.Sprintf(`base = from(bucket: %s)
  |> range(start: time(v: 0))
  |> filter(fn: (r) => r._measurement == %s and r.device_id == %s and r._field == %s)

earliest = base |> first() |> map(fn: (r) => ({r with stat: "earliest"}))
latest = base |> last() |> map(fn: (r) => ({r with stat: "latest"}))
total = base |> count() |> map(fn: (r) => ({r with stat: "count"}))

union(tables: [earliest, latest, total]) |> group()`,
		mustQuoteFluxString(b.bucket),
		mustQuoteFluxString(b.measurement),
		quotedDevice,
		mustQuoteFluxString(FieldPowerW),
	)

	result, err := b.client.QueryFlux(ctx, flux)
	if err != nil {
		return DataRange{}, classifyInfluxError(err)
	}

	var dr DataRange
	for result.Next() {
		record := result.Record()
		stat, _ := record.ValueByKey("stat").(string)
		switch stat {
		case "earliest":
			ts := record.Time().UTC()
			dr.EarliestTimestamp = &ts
		case "latest":
			ts := record.Time().UTC()
			dr.LatestTimestamp = &ts
		case "count":
			dr.TotalRecords = asInt64(record.Value())
		}
	}
	if err := result.Err(); err != nil {
		return DataRange{}, classifyInfluxError(err)
	}

	return dr, nil
}

// buildHistoryFlux renders the dual-group aggregation query.
func (b *InfluxBackend) buildHistoryFlux(deviceID string, window Window, interval time.Duration) (string, error) {
	quotedDevice, err := quoteFluxString(deviceID)
	if err != nil {
		return "", err
	}

	every := fmt.Sprintf("%ds", int64(interval/time.Second))
	start := window.Start.UTC().Format(time.RFC3339)
	stop := window.End.UTC().Format(time.RFC3339)

	// timeSrc: "_start" keeps timestamps bucket-start-aligned, matching
	// the relational adapter's bucketing expression.
	flux := fmt.Sprintf(`cont = from(bucket: %[1]s)
  |> range(start: %[2]s, stop: %[3]s)
  |> filter(fn: (r) => r._measurement == %[4]s and r.device_id == %[5]s)
  |> filter(fn: (r) => %[6]s)
  |> aggregateWindow(every: %[8]s, fn: mean, createEmpty: false, timeSrc: "_start")

cum = from(bucket: %[1]s)
  |> range(start: %[2]s, stop: %[3]s)
  |> filter(fn: (r) => r._measurement == %[4]s and r.device_id == %[5]s)
  |> filter(fn: (r) => %[7]s)
  |> aggregateWindow(every: %[8]s, fn: max, createEmpty: false, timeSrc: "_start")

union(tables: [cont, cum])
  |> group()
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> sort(columns: ["_time"])`,
		mustQuoteFluxString(b.bucket),
		start,
		stop,
		mustQuoteFluxString(b.measurement),
		quotedDevice,
		fieldFilterExpr(ContinuousFields()),
		fieldFilterExpr(CumulativeFields()),
		every,
	)

	return flux, nil
}

// fieldFilterExpr renders `r._field == "a" or r._field == "b" ...`.
func fieldFilterExpr(fields []string) string {
	terms := make([]string, 0, len(fields))
	for _, field := range fields {
		terms = append(terms, fmt.Sprintf("r._field == %s", mustQuoteFluxString(field)))
	}
	return strings.Join(terms, " or ")
}

// collectPivotedPoints drains a pivoted query result into metric points.
// Fields absent from a bucket stay nil rather than being zero-filled.
func collectPivotedPoints(result *api.QueryTableResult) ([]MetricPoint, error) {
	points := make([]MetricPoint, 0)
	for result.Next() {
		record := result.Record()
		point := MetricPoint{Timestamp: record.Time().UTC()}
		point.PowerW = floatByKey(record, FieldPowerW)
		point.VoltageV = floatByKey(record, FieldVoltageV)
		point.CurrentA = floatByKey(record, FieldCurrentA)
		point.EnergyTodayKWh = floatByKey(record, FieldEnergyTodayKWh)
		point.EnergyMonthKWh = floatByKey(record, FieldEnergyMonthKWh)
		point.EnergyTotalKWh = floatByKey(record, FieldEnergyTotalKWh)
		points = append(points, point)
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

// floatByKey extracts an optional float column from a Flux record.
func floatByKey(record *query.FluxRecord, key string) *float64 {
	if v, ok := record.ValueByKey(key).(float64); ok {
		value := v
		return &value
	}
	return nil
}

// asInt64 converts a Flux count value to int64.
func asInt64(v any) int64 {
	switch value := v.(type) {
	case int64:
		return value
	case uint64:
		return int64(value)
	case float64:
		return int64(value)
	default:
		return 0
	}
}

// quoteFluxString validates and quotes a string for safe interpolation
// into a Flux query.
func quoteFluxString(value string) (string, error) {
	if value == "" {
		return "", fmt.Errorf("value is required")
	}
	if len(value) > maxDeviceIDLen {
		return "", fmt.Errorf("value exceeds maximum length")
	}
	return strconv.Quote(value), nil
}

// mustQuoteFluxString quotes configuration-controlled strings.
func mustQuoteFluxString(value string) string {
	return strconv.Quote(value)
}

// classifyInfluxError maps transport failures onto the adapter sentinels.
func classifyInfluxError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrQueryTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
}
