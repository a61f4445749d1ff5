// Package sensor holds the closed set of sensor types and the parse-then-validate
// step applied to raw telemetry payloads.
package sensor

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrUnknownType is returned for sensor types outside the closed set
	ErrUnknownType = errors.New("unknown sensor type")
	// ErrBadValue is returned when a payload is not a finite number
	ErrBadValue = errors.New("bad sensor value")
)

// Type is a sensor type. The string value is the wire name used in MQTT topics and API payloads.
type Type string

const (
	CarbonMonoxide Type = "co"
	Methane        Type = "metan"
	Temperature    Type = "temperature"
	Humidity       Type = "humidity"
)

var aliases = map[string]Type{
	"co":              CarbonMonoxide,
	"carbon-monoxide": CarbonMonoxide,
	"metan":           Methane,
	"methane":         Methane,
	"ch4":             Methane,
	"temperature":     Temperature,
	"humidity":        Humidity,
}

// All returns the closed set of sensor types
func All() []Type {
	return []Type{CarbonMonoxide, Methane, Temperature, Humidity}
}

// ParseType validates a sensor type name against the closed set
func ParseType(name string) (Type, error) {
	t, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, name)
	}
	return t, nil
}

// ParseValue parses a raw payload as a finite floating point number
func ParseValue(raw string) (float64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty payload", ErrBadValue)
	}

	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadValue, raw)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: %q is not finite", ErrBadValue, raw)
	}

	return value, nil
}

// Unit returns the measurement unit implied by the sensor type
func (t Type) Unit() string {
	switch t {
	case CarbonMonoxide, Methane:
		return "ppm"
	case Temperature:
		return "°C"
	case Humidity:
		return "%"
	default:
		return ""
	}
}

func (t Type) String() string {
	return string(t)
}
