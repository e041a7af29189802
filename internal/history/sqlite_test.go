package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/xante8088/kasa-monitor-sub002/internal/infrastructure/database"
	_ "github.com/xante8088/kasa-monitor-sub002/migrations" // Register embedded schema
)

// newTestBackend opens a migrated database in a temp directory.
func newTestBackend(t *testing.T) *SQLiteBackend {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "history-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	return NewSQLiteBackend(db)
}

// insertReading writes one row; nil pointers become NULL columns.
func insertReading(t *testing.T, b *SQLiteBackend, deviceID string, ts time.Time, power, voltage, current, eToday, eMonth, eTotal *float64) {
	t.Helper()

	_, err := b.db.ExecContext(context.Background(), `
		INSERT INTO readings (device_id, timestamp, power_w, voltage_v, current_a,
		                      energy_today_kwh, energy_month_kwh, energy_total_kwh)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		deviceID, ts.Unix(), power, voltage, current, eToday, eMonth, eTotal,
	)
	if err != nil {
		t.Fatalf("inserting reading: %v", err)
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestSQLiteQueryAggregation(t *testing.T) {
	backend := newTestBackend(t)
	base := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)

	// Three readings inside one 15-minute bucket. The continuous power
	// column should average; the cumulative counter should take its max
	// even though the last sample dips after a reset.
	insertReading(t, backend, "plug-1", base.Add(1*time.Minute),
		floatPtr(10), floatPtr(230), floatPtr(0.04), floatPtr(1.0), floatPtr(12.0), floatPtr(100.0))
	insertReading(t, backend, "plug-1", base.Add(5*time.Minute),
		floatPtr(20), floatPtr(231), floatPtr(0.08), floatPtr(2.5), floatPtr(13.5), floatPtr(101.5))
	insertReading(t, backend, "plug-1", base.Add(9*time.Minute),
		floatPtr(30), floatPtr(229), floatPtr(0.13), floatPtr(0.1), floatPtr(13.6), floatPtr(101.6))

	window := Window{Start: base, End: base.Add(time.Hour)}
	points, aggregated, err := backend.Query(context.Background(), "plug-1", window, 15*time.Minute)
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if !aggregated {
		t.Error("Query() reported aggregated=false for a 15m interval")
	}
	if len(points) != 1 {
		t.Fatalf("got %d points, want 1 bucket", len(points))
	}

	p := points[0]
	if !p.Timestamp.Equal(base) {
		t.Errorf("bucket timestamp = %v, want bucket start %v", p.Timestamp, base)
	}
	if p.PowerW == nil || *p.PowerW != 20 {
		t.Errorf("power_w = %v, want mean 20", deref(p.PowerW))
	}
	if p.EnergyTodayKWh == nil || *p.EnergyTodayKWh != 2.5 {
		t.Errorf("energy_today_kwh = %v, want max 2.5", deref(p.EnergyTodayKWh))
	}
	if p.EnergyTotalKWh == nil || *p.EnergyTotalKWh != 101.6 {
		t.Errorf("energy_total_kwh = %v, want max 101.6", deref(p.EnergyTotalKWh))
	}
}

func TestSQLiteQueryBucketOrdering(t *testing.T) {
	backend := newTestBackend(t)
	base := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	// Insert out of order across four buckets.
	for _, offset := range []time.Duration{45 * time.Minute, 5 * time.Minute, 30 * time.Minute, 16 * time.Minute} {
		insertReading(t, backend, "plug-1", base.Add(offset),
			floatPtr(float64(offset/time.Minute)), nil, nil, nil, nil, nil)
	}

	window := Window{Start: base, End: base.Add(time.Hour)}
	points, _, err := backend.Query(context.Background(), "plug-1", window, 15*time.Minute)
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(points) != 4 {
		t.Fatalf("got %d points, want 4 buckets", len(points))
	}

	for i := 1; i < len(points); i++ {
		if !points[i-1].Timestamp.Before(points[i].Timestamp) {
			t.Errorf("points not strictly ascending at index %d: %v then %v",
				i, points[i-1].Timestamp, points[i].Timestamp)
		}
	}
	for _, p := range points {
		if offset := p.Timestamp.Sub(base) % (15 * time.Minute); offset != 0 {
			t.Errorf("bucket %v is not aligned to the interval", p.Timestamp)
		}
	}
}

func TestSQLiteQueryNullColumns(t *testing.T) {
	backend := newTestBackend(t)
	base := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	// Voltage and energy columns missing; they must come back nil, not 0.
	insertReading(t, backend, "plug-1", base.Add(time.Minute),
		floatPtr(15), nil, nil, nil, nil, nil)

	window := Window{Start: base, End: base.Add(time.Hour)}
	points, _, err := backend.Query(context.Background(), "plug-1", window, 15*time.Minute)
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("got %d points, want 1", len(points))
	}
	if points[0].VoltageV != nil {
		t.Errorf("voltage_v = %v, want nil for a NULL column", *points[0].VoltageV)
	}
	if points[0].EnergyTotalKWh != nil {
		t.Errorf("energy_total_kwh = %v, want nil for a NULL column", *points[0].EnergyTotalKWh)
	}
}

func TestSQLiteQueryUnknownDevice(t *testing.T) {
	backend := newTestBackend(t)
	window := Window{
		Start: time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC),
	}

	points, aggregated, err := backend.Query(context.Background(), "no-such-device", window, 15*time.Minute)
	if err != nil {
		t.Fatalf("Query() error for unknown device: %v", err)
	}
	if !aggregated {
		t.Error("aggregated=false for an empty aggregated query")
	}
	if len(points) != 0 {
		t.Errorf("got %d points for unknown device, want 0", len(points))
	}
	if points == nil {
		t.Error("empty result is nil, want empty slice")
	}
}

func TestSQLiteQueryRawFallback(t *testing.T) {
	backend := newTestBackend(t)
	base := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	insertReading(t, backend, "plug-1", base.Add(time.Second),
		floatPtr(10), nil, nil, nil, nil, nil)
	insertReading(t, backend, "plug-1", base.Add(2*time.Second),
		floatPtr(12), nil, nil, nil, nil, nil)

	window := Window{Start: base, End: base.Add(time.Minute)}
	points, aggregated, err := backend.Query(context.Background(), "plug-1", window, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if aggregated {
		t.Error("sub-second interval did not fall back to raw rows")
	}
	if len(points) != 2 {
		t.Fatalf("got %d raw points, want 2", len(points))
	}
	if *points[0].PowerW != 10 || *points[1].PowerW != 12 {
		t.Error("raw fallback altered reading values")
	}
}

func TestSQLiteQueryWindowExclusiveEnd(t *testing.T) {
	backend := newTestBackend(t)
	base := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	insertReading(t, backend, "plug-1", base, floatPtr(1), nil, nil, nil, nil, nil)
	insertReading(t, backend, "plug-1", base.Add(time.Hour), floatPtr(2), nil, nil, nil, nil, nil)

	window := Window{Start: base, End: base.Add(time.Hour)}
	points, _, err := backend.Query(context.Background(), "plug-1", window, 15*time.Minute)
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("got %d points, want 1: end bound must be exclusive", len(points))
	}
}

func TestSQLiteDataRange(t *testing.T) {
	backend := newTestBackend(t)
	earliest := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	latest := time.Date(2026, 2, 10, 20, 0, 0, 0, time.UTC)

	insertReading(t, backend, "plug-1", earliest, floatPtr(5), nil, nil, nil, nil, nil)
	insertReading(t, backend, "plug-1", latest, floatPtr(7), nil, nil, nil, nil, nil)
	insertReading(t, backend, "plug-2", latest, floatPtr(9), nil, nil, nil, nil, nil)

	dr, err := backend.DataRange(context.Background(), "plug-1")
	if err != nil {
		t.Fatalf("DataRange() error: %v", err)
	}
	if dr.TotalRecords != 2 {
		t.Errorf("total records = %d, want 2", dr.TotalRecords)
	}
	if dr.EarliestTimestamp == nil || !dr.EarliestTimestamp.Equal(earliest) {
		t.Errorf("earliest = %v, want %v", dr.EarliestTimestamp, earliest)
	}
	if dr.LatestTimestamp == nil || !dr.LatestTimestamp.Equal(latest) {
		t.Errorf("latest = %v, want %v", dr.LatestTimestamp, latest)
	}
}

func TestSQLiteDataRangeEmptyDevice(t *testing.T) {
	backend := newTestBackend(t)

	dr, err := backend.DataRange(context.Background(), "no-such-device")
	if err != nil {
		t.Fatalf("DataRange() error: %v", err)
	}
	if dr.TotalRecords != 0 {
		t.Errorf("total records = %d, want 0", dr.TotalRecords)
	}
	if dr.EarliestTimestamp != nil || dr.LatestTimestamp != nil {
		t.Error("empty device reported timestamps")
	}
}

func deref(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
