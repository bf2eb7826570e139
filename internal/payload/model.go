package payload

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MetricType is the ingest API datapoint bucket name.
type MetricType string

const (
	// Gauge is an instantaneous measurement.
	Gauge MetricType = "gauge"
	// Counter is a count of occurrences since the previous report.
	Counter MetricType = "counter"
	// CumulativeCounter is a monotonically increasing total.
	CumulativeCounter MetricType = "cumulative_counter"
)

// EventCategory is the only category the forwarder emits.
const EventCategory = "USER_DEFINED"

// Value is a datapoint value that remembers whether it was parsed as an integer.
// Params: Int holds integer values; Float holds floating values when IsFloat.
// Returns: numeric value encoded as a JSON integer or double.
type Value struct {
	Int     int64
	Float   float64
	IsFloat bool
}

// IntValue wraps an integer datapoint value.
func IntValue(v int64) Value {
	return Value{Int: v}
}

// FloatValue wraps a floating datapoint value.
func FloatValue(v float64) Value {
	return Value{Float: v, IsFloat: true}
}

// Float64 returns value as float64 regardless of parsed kind.
func (v Value) Float64() float64 {
	if v.IsFloat {
		return v.Float
	}
	return float64(v.Int)
}

// String renders value the way it is written on the wire.
func (v Value) String() string {
	if !v.IsFloat {
		return strconv.FormatInt(v.Int, 10)
	}
	text := strconv.FormatFloat(v.Float, 'g', -1, 64)
	if !strings.ContainsAny(text, ".eEn") {
		text += ".0"
	}
	return text
}

// MarshalJSON encodes integers without a fraction and doubles with one.
// Params: none.
// Returns: JSON number bytes or error for non-finite doubles.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsFloat && (math.IsNaN(v.Float) || math.IsInf(v.Float, 0)) {
		return nil, fmt.Errorf("value %v is not a finite number", v.Float)
	}
	return []byte(v.String()), nil
}

// UnmarshalJSON decodes a JSON number, keeping integer kind when possible.
// Params: data raw JSON number.
// Returns: decode error for non-numeric input.
func (v *Value) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		*v = IntValue(i)
		return nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fmt.Errorf("value %q is not a number", text)
	}
	*v = FloatValue(f)
	return nil
}

// Datapoint is one metric sample in the ingest API JSON shape.
type Datapoint struct {
	Metric     string            `json:"metric"`
	Value      Value             `json:"value"`
	Timestamp  *int64            `json:"timestamp,omitempty"`
	Dimensions map[string]string `json:"dimensions"`
}

// Event is one custom event in the ingest API JSON shape.
// Timestamp and EventType are always encoded, as null when unknown.
type Event struct {
	Category   string            `json:"category"`
	Dimensions map[string]string `json:"dimensions"`
	Properties map[string]string `json:"properties"`
	Timestamp  *int64            `json:"timestamp"`
	EventType  *string           `json:"eventType"`
}
