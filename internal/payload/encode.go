package payload

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gogo/protobuf/proto"
	sfxpb "github.com/signalfx/com_signalfx_metrics_protobuf/model"
)

const (
	// FormatJSON sends application/json bodies.
	FormatJSON = "json"
	// FormatProtobuf sends application/x-protobuf upload messages.
	FormatProtobuf = "protobuf"
)

// Encoder serializes batches for the ingest API.
type Encoder interface {
	ContentType() string
	Datapoints(batch *DatapointBatch) ([]byte, error)
	Events(batch *EventBatch) ([]byte, error)
}

// NewEncoder returns an encoder for the configured wire format.
// Params: format is json or protobuf (case-insensitive, blank means json).
// Returns: encoder or error for unknown format.
func NewEncoder(format string) (Encoder, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatJSON:
		return JSONEncoder{}, nil
	case FormatProtobuf:
		return ProtobufEncoder{}, nil
	default:
		return nil, fmt.Errorf("unsupported payload format %q", format)
	}
}

// JSONEncoder encodes batches as ingest API JSON documents.
type JSONEncoder struct{}

// ContentType returns the JSON media type.
func (JSONEncoder) ContentType() string {
	return "application/json"
}

// Datapoints encodes {"gauge":[...],"counter":[...]}.
func (JSONEncoder) Datapoints(batch *DatapointBatch) ([]byte, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("marshal datapoints: %w", err)
	}
	return body, nil
}

// Events encodes [{"category":...}, ...].
func (JSONEncoder) Events(batch *EventBatch) ([]byte, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("marshal events: %w", err)
	}
	return body, nil
}

// ProtobufEncoder encodes batches as SignalFx protobuf upload messages.
type ProtobufEncoder struct{}

// ContentType returns the protobuf media type.
func (ProtobufEncoder) ContentType() string {
	return "application/x-protobuf"
}

// Datapoints encodes a DataPointUploadMessage keeping batch order.
// Params: batch datapoints grouped by metric type.
// Returns: protobuf bytes or marshal error.
func (ProtobufEncoder) Datapoints(batch *DatapointBatch) ([]byte, error) {
	msg := &sfxpb.DataPointUploadMessage{
		Datapoints: make([]*sfxpb.DataPoint, 0, batch.Len()),
	}
	for _, metricType := range batch.Types() {
		pbType, err := protoMetricType(metricType)
		if err != nil {
			return nil, err
		}
		for _, dp := range batch.Points(metricType) {
			msg.Datapoints = append(msg.Datapoints, protoDatapoint(dp, pbType))
		}
	}

	body, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal datapoint upload: %w", err)
	}
	return body, nil
}

// Events encodes an EventUploadMessage with USER_DEFINED category.
// Params: batch events in order.
// Returns: protobuf bytes or marshal error.
func (ProtobufEncoder) Events(batch *EventBatch) ([]byte, error) {
	msg := &sfxpb.EventUploadMessage{
		Events: make([]*sfxpb.Event, 0, batch.Len()),
	}
	for _, event := range batch.Events() {
		msg.Events = append(msg.Events, protoEvent(event))
	}

	body, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal event upload: %w", err)
	}
	return body, nil
}

func protoMetricType(metricType MetricType) (sfxpb.MetricType, error) {
	switch metricType {
	case Gauge:
		return sfxpb.MetricType_GAUGE, nil
	case Counter:
		return sfxpb.MetricType_COUNTER, nil
	case CumulativeCounter:
		return sfxpb.MetricType_CUMULATIVE_COUNTER, nil
	default:
		return 0, fmt.Errorf("unknown metric type %q", metricType)
	}
}

func protoDatapoint(dp Datapoint, metricType sfxpb.MetricType) *sfxpb.DataPoint {
	out := &sfxpb.DataPoint{
		Metric:     dp.Metric,
		MetricType: &metricType,
		Dimensions: protoDimensions(dp.Dimensions),
	}
	if dp.Timestamp != nil {
		out.Timestamp = *dp.Timestamp
	}
	if dp.Value.IsFloat {
		v := dp.Value.Float
		out.Value = sfxpb.Datum{DoubleValue: &v}
	} else {
		v := dp.Value.Int
		out.Value = sfxpb.Datum{IntValue: &v}
	}
	return out
}

func protoEvent(event Event) *sfxpb.Event {
	category := sfxpb.EventCategory_USER_DEFINED
	out := &sfxpb.Event{
		Category:   &category,
		Dimensions: protoDimensions(event.Dimensions),
	}
	if event.EventType != nil {
		out.EventType = *event.EventType
	}
	if event.Timestamp != nil {
		out.Timestamp = *event.Timestamp
	}
	for _, key := range sortedKeys(event.Properties) {
		value := event.Properties[key]
		out.Properties = append(out.Properties, &sfxpb.Property{
			Key:   key,
			Value: &sfxpb.PropertyValue{StrValue: &value},
		})
	}
	return out
}

func protoDimensions(dims map[string]string) []*sfxpb.Dimension {
	if len(dims) == 0 {
		return nil
	}
	out := make([]*sfxpb.Dimension, 0, len(dims))
	for _, key := range sortedKeys(dims) {
		out = append(out, &sfxpb.Dimension{Key: key, Value: dims[key]})
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
