package alarm

import (
	"fmt"

	"github.com/septivank/sensor-telemetry/internal/sensor"
)

// Result is the outcome of evaluating a single reading
type Result struct {
	Alarm  bool
	Reason string
}

// Detector flags readings that cross per-sensor thresholds
type Detector struct {
	thresholds map[sensor.Type]float64
}

// NewDetector creates a detector from upper thresholds keyed by sensor type.
// Types without a positive threshold are never flagged for being too high.
func NewDetector(thresholds map[sensor.Type]float64) *Detector {
	t := make(map[sensor.Type]float64, len(thresholds))
	for typ, limit := range thresholds {
		if limit > 0 {
			t[typ] = limit
		}
	}
	return &Detector{thresholds: t}
}

// Evaluate checks a reading against the configured thresholds
func (d *Detector) Evaluate(typ sensor.Type, value float64) Result {
	// Gas concentrations can't be negative; a negative reading means a faulty sensor
	if value < 0 && (typ == sensor.CarbonMonoxide || typ == sensor.Methane) {
		return Result{Alarm: true, Reason: "negative concentration"}
	}

	limit, ok := d.thresholds[typ]
	if !ok {
		return Result{}
	}

	if value >= limit {
		return Result{
			Alarm:  true,
			Reason: fmt.Sprintf("%s level %.2f%s at or above threshold %.2f%s", typ, value, typ.Unit(), limit, typ.Unit()),
		}
	}

	return Result{}
}
