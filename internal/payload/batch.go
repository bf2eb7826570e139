package payload

import (
	"bytes"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DatapointBatch groups datapoints by metric type, keeping first-seen type order.
// Params: none.
// Returns: batch consumed once by an Encoder.
type DatapointBatch struct {
	types  []MetricType
	points map[MetricType][]Datapoint
}

// NewDatapointBatch creates an empty datapoint batch.
func NewDatapointBatch() *DatapointBatch {
	return &DatapointBatch{points: make(map[MetricType][]Datapoint)}
}

// Merge places points in front of those already stored for metricType.
// The ingest API wants oldest-to-latest and search results arrive newest first,
// so each later record's points go before the earlier ones.
// Params: metricType bucket; points one record's datapoints in field order.
// Returns: none.
func (b *DatapointBatch) Merge(metricType MetricType, points []Datapoint) {
	if len(points) == 0 {
		return
	}
	if b.points == nil {
		b.points = make(map[MetricType][]Datapoint)
	}

	existing, ok := b.points[metricType]
	if !ok {
		b.types = append(b.types, metricType)
	}

	merged := make([]Datapoint, 0, len(points)+len(existing))
	merged = append(merged, points...)
	merged = append(merged, existing...)
	b.points[metricType] = merged
}

// Types returns metric types in first-merge order.
func (b *DatapointBatch) Types() []MetricType {
	out := make([]MetricType, len(b.types))
	copy(out, b.types)
	return out
}

// Points returns stored datapoints for metricType.
func (b *DatapointBatch) Points(metricType MetricType) []Datapoint {
	return b.points[metricType]
}

// Len returns total datapoint count across all types.
func (b *DatapointBatch) Len() int {
	n := 0
	for _, points := range b.points {
		n += len(points)
	}
	return n
}

// MarshalJSON encodes the batch as an object keyed by metric type in merge order.
// Params: none.
// Returns: JSON object bytes or encode error.
func (b *DatapointBatch) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for idx, metricType := range b.types {
		if idx > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(string(metricType))
		if err != nil {
			return nil, err
		}
		points, err := json.Marshal(b.points[metricType])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(points)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// EventBatch is a flat ordered list of events.
type EventBatch struct {
	events []Event
}

// NewEventBatch creates an empty event batch.
func NewEventBatch() *EventBatch {
	return &EventBatch{}
}

// Append adds one event at the end of the batch.
func (b *EventBatch) Append(event Event) {
	b.events = append(b.events, event)
}

// Events returns stored events in append order.
func (b *EventBatch) Events() []Event {
	return b.events
}

// Len returns number of events.
func (b *EventBatch) Len() int {
	return len(b.events)
}

// MarshalJSON encodes the batch as a JSON array; an empty batch encodes as [].
func (b *EventBatch) MarshalJSON() ([]byte, error) {
	if len(b.events) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(b.events)
}
