package history

// Class describes how a metric field aggregates within a bucket.
type Class string

// Field aggregation classes.
const (
	// ClassContinuous fields are summarised by their arithmetic mean.
	ClassContinuous Class = "continuous"

	// ClassCumulative fields are monotonic counters within a reset
	// period, summarised by their maximum. A mean would understate the
	// true within-bucket state of the counter.
	ClassCumulative Class = "cumulative"
)

// Metric field names as stored by both backends.
const (
	FieldPowerW         = "power_w"
	FieldVoltageV       = "voltage_v"
	FieldCurrentA       = "current_a"
	FieldEnergyTodayKWh = "energy_today_kwh"
	FieldEnergyMonthKWh = "energy_month_kwh"
	FieldEnergyTotalKWh = "energy_total_kwh"
)

// fieldClasses is the fixed classification table shared by both backend
// adapters, so field semantics never drift between stores.
var fieldClasses = map[string]Class{
	FieldPowerW:         ClassContinuous,
	FieldVoltageV:       ClassContinuous,
	FieldCurrentA:       ClassContinuous,
	FieldEnergyTodayKWh: ClassCumulative,
	FieldEnergyMonthKWh: ClassCumulative,
	FieldEnergyTotalKWh: ClassCumulative,
}

// Classify returns the aggregation class of a metric field.
//
// Returns:
//   - Class: The field's class
//   - bool: false if the field is not a known metric field
func Classify(field string) (Class, bool) {
	class, ok := fieldClasses[field]
	return class, ok
}

// ContinuousFields returns the mean-aggregated fields in canonical order.
func ContinuousFields() []string {
	return []string{FieldPowerW, FieldVoltageV, FieldCurrentA}
}

// CumulativeFields returns the max-aggregated fields in canonical order.
func CumulativeFields() []string {
	return []string{FieldEnergyTodayKWh, FieldEnergyMonthKWh, FieldEnergyTotalKWh}
}
