package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xante8088/kasa-monitor-sub002/internal/infrastructure/database"
)

// maxScanRows caps how many raw rows one aggregation query may scan.
// Mirrors MaxDataPoints so a mis-sized window cannot trigger an
// unbounded table walk.
const maxScanRows = MaxDataPoints

// SQLiteBackend is the relational query adapter.
//
// Buckets are formed with integer division on the unix-seconds
// timestamp column, so bucket labels are bucket-start-aligned exactly
// like the columnar adapter's.
type SQLiteBackend struct {
	db *database.DB
}

// NewSQLiteBackend creates the relational adapter over an open database.
func NewSQLiteBackend(db *database.DB) *SQLiteBackend {
	return &SQLiteBackend{db: db}
}

// Name implements Backend.
func (b *SQLiteBackend) Name() string { return "sqlite" }

// Query implements Backend.
//
// Intervals below one second cannot be expressed with unix-seconds
// bucketing; those fall back to raw row retrieval and report
// aggregated=false.
func (b *SQLiteBackend) Query(ctx context.Context, deviceID string, window Window, interval time.Duration) ([]MetricPoint, bool, error) {
	if interval < time.Second {
		points, err := b.queryRaw(ctx, deviceID, window)
		return points, false, err
	}
	points, err := b.queryAggregated(ctx, deviceID, window, interval)
	return points, true, err
}

func (b *SQLiteBackend) queryAggregated(ctx context.Context, deviceID string, window Window, interval time.Duration) ([]MetricPoint, error) {
	bucketSeconds := int64(interval / time.Second)

	// The inner SELECT bounds the scan before grouping; LIMIT inside a
	// GROUP BY would cap output buckets, not scanned rows.
	rows, err := b.db.QueryContext(ctx, `
		SELECT (timestamp / ?) * ? AS bucket,
		       AVG(power_w),
		       AVG(voltage_v),
		       AVG(current_a),
		       MAX(energy_today_kwh),
		       MAX(energy_month_kwh),
		       MAX(energy_total_kwh)
		FROM (
			SELECT timestamp, power_w, voltage_v, current_a,
			       energy_today_kwh, energy_month_kwh, energy_total_kwh
			FROM readings
			WHERE device_id = ? AND timestamp >= ? AND timestamp < ?
			ORDER BY timestamp
			LIMIT ?
		)
		GROUP BY bucket
		ORDER BY bucket`,
		bucketSeconds, bucketSeconds,
		deviceID, window.Start.Unix(), window.End.Unix(),
		maxScanRows,
	)
	if err != nil {
		return nil, classifySQLiteError(ctx, err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	points := make([]MetricPoint, 0)
	for rows.Next() {
		var bucket int64
		var power, voltage, current, eToday, eMonth, eTotal sql.NullFloat64
		if err := rows.Scan(&bucket, &power, &voltage, &current, &eToday, &eMonth, &eTotal); err != nil {
			return nil, classifySQLiteError(ctx, err)
		}
		points = append(points, MetricPoint{
			Timestamp:      time.Unix(bucket, 0).UTC(),
			PowerW:         nullableFloat(power),
			VoltageV:       nullableFloat(voltage),
			CurrentA:       nullableFloat(current),
			EnergyTodayKWh: nullableFloat(eToday),
			EnergyMonthKWh: nullableFloat(eMonth),
			EnergyTotalKWh: nullableFloat(eTotal),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, classifySQLiteError(ctx, err)
	}

	return points, nil
}

func (b *SQLiteBackend) queryRaw(ctx context.Context, deviceID string, window Window) ([]MetricPoint, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT timestamp, power_w, voltage_v, current_a,
		       energy_today_kwh, energy_month_kwh, energy_total_kwh
		FROM readings
		WHERE device_id = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp
		LIMIT ?`,
		deviceID, window.Start.Unix(), window.End.Unix(), maxScanRows,
	)
	if err != nil {
		return nil, classifySQLiteError(ctx, err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	points := make([]MetricPoint, 0)
	for rows.Next() {
		var ts int64
		var power, voltage, current, eToday, eMonth, eTotal sql.NullFloat64
		if err := rows.Scan(&ts, &power, &voltage, &current, &eToday, &eMonth, &eTotal); err != nil {
			return nil, classifySQLiteError(ctx, err)
		}
		points = append(points, MetricPoint{
			Timestamp:      time.Unix(ts, 0).UTC(),
			PowerW:         nullableFloat(power),
			VoltageV:       nullableFloat(voltage),
			CurrentA:       nullableFloat(current),
			EnergyTodayKWh: nullableFloat(eToday),
			EnergyMonthKWh: nullableFloat(eMonth),
			EnergyTotalKWh: nullableFloat(eTotal),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, classifySQLiteError(ctx, err)
	}

	return points, nil
}

// DataRange implements Backend.
func (b *SQLiteBackend) DataRange(ctx context.Context, deviceID string) (DataRange, error) {
	var earliest, latest sql.NullInt64
	var count int64

	err := b.db.QueryRowContext(ctx, `
		SELECT MIN(timestamp), MAX(timestamp), COUNT(*)
		FROM readings
		WHERE device_id = ?`,
		deviceID,
	).Scan(&earliest, &latest, &count)
	if err != nil {
		return DataRange{}, classifySQLiteError(ctx, err)
	}

	dr := DataRange{TotalRecords: count}
	if earliest.Valid {
		ts := time.Unix(earliest.Int64, 0).UTC()
		dr.EarliestTimestamp = &ts
	}
	if latest.Valid {
		ts := time.Unix(latest.Int64, 0).UTC()
		dr.LatestTimestamp = &ts
	}

	return dr, nil
}

// nullableFloat converts a scanned nullable column to the point
// representation.
func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	value := v.Float64
	return &value
}

// classifySQLiteError maps driver failures onto the adapter sentinels.
// The context is consulted because go-sqlite3 reports an interrupted
// query as its own error rather than context.DeadlineExceeded.
func classifySQLiteError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrQueryTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
}
