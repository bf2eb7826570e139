package classify

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"sfxforwarder/internal/match"
	"sfxforwarder/internal/payload"
	"sfxforwarder/internal/record"
)

// MaxValueLength is the exclusive upper bound (in characters) for dimension and property values.
const MaxValueLength = 256

// Classifier turns search result records into datapoints or events.
// Params: dimension-key exclusion set.
// Returns: stateless classifier safe for reuse across batches.
type Classifier struct {
	excluded match.KeySet
}

// New creates a classifier that excludes the default keys plus extra patterns.
// Params: extraExcluded additional wildcard patterns for dimension keys.
// Returns: classifier.
func New(extraExcluded ...string) *Classifier {
	return &Classifier{excluded: match.DimensionExclusions(extraExcluded...)}
}

// Sample is one named metric value before it is bound to dimensions.
type Sample struct {
	Metric string
	Value  payload.Value
}

// Datapoints is the classification result of one record.
type Datapoints struct {
	Gauges             []Sample
	Counters           []Sample
	CumulativeCounters []Sample
	Dimensions         map[string]string
	Timestamp          *int64
}

// Empty reports whether no metric field was found.
func (d Datapoints) Empty() bool {
	return len(d.Gauges) == 0 && len(d.Counters) == 0 && len(d.CumulativeCounters) == 0
}

// Len returns number of samples across all types.
func (d Datapoints) Len() int {
	return len(d.Gauges) + len(d.Counters) + len(d.CumulativeCounters)
}

// MergeInto binds samples to the shared dimensions/timestamp and merges them per type.
// Params: batch destination; gauge, counter and cumulative_counter merged in that order.
// Returns: none.
func (d Datapoints) MergeInto(batch *payload.DatapointBatch) {
	batch.Merge(payload.Gauge, d.expand(d.Gauges))
	batch.Merge(payload.Counter, d.expand(d.Counters))
	batch.Merge(payload.CumulativeCounter, d.expand(d.CumulativeCounters))
}

func (d Datapoints) expand(samples []Sample) []payload.Datapoint {
	if len(samples) == 0 {
		return nil
	}
	points := make([]payload.Datapoint, 0, len(samples))
	for _, s := range samples {
		dp := payload.Datapoint{
			Metric:     s.Metric,
			Value:      s.Value,
			Dimensions: d.Dimensions,
		}
		// A zero timestamp is treated as absent.
		if d.Timestamp != nil && *d.Timestamp != 0 {
			ts := *d.Timestamp
			dp.Timestamp = &ts
		}
		points = append(points, dp)
	}
	return points
}

// Datapoints scans one record for gauge_, counter_, cumulative_counter_, _time and dimension fields.
// Params: rec host record (read only).
// Returns: classification result or *ParseError for unparsable numeric fields.
func (c *Classifier) Datapoints(rec *record.Record) (Datapoints, error) {
	out := Datapoints{Dimensions: make(map[string]string)}

	var parseErr error
	rec.Range(func(key, value string) bool {
		if value == "" {
			return true
		}

		kind, name := classifyField(datapointRules, key)
		switch kind {
		case kindGauge:
			v, err := parseGauge(key, value)
			if err != nil {
				parseErr = err
				return false
			}
			out.Gauges = append(out.Gauges, Sample{Metric: name, Value: v})
		case kindCounter, kindCumulativeCounter:
			v, err := parseInteger(key, value)
			if err != nil {
				parseErr = err
				return false
			}
			if kind == kindCounter {
				out.Counters = append(out.Counters, Sample{Metric: name, Value: v})
			} else {
				out.CumulativeCounters = append(out.CumulativeCounters, Sample{Metric: name, Value: v})
			}
		case kindTimestamp:
			ts, err := parseTimestamp(key, value)
			if err != nil {
				parseErr = err
				return false
			}
			out.Timestamp = &ts
		default:
			c.addDimension(out.Dimensions, key, value)
		}
		return true
	})
	if parseErr != nil {
		return Datapoints{}, parseErr
	}

	return out, nil
}

// Event scans one record for event_, property_, _time and dimension fields.
// Params: rec host record (read only).
// Returns: one USER_DEFINED event or *ParseError for an unparsable _time.
func (c *Classifier) Event(rec *record.Record) (payload.Event, error) {
	event := payload.Event{
		Category:   payload.EventCategory,
		Dimensions: make(map[string]string),
		Properties: make(map[string]string),
	}

	var parseErr error
	rec.Range(func(key, value string) bool {
		if value == "" {
			return true
		}

		kind, name := classifyField(eventRules, key)
		switch kind {
		case kindEventType:
			eventType := value
			event.EventType = &eventType
		case kindProperty:
			if acceptValue(value) {
				event.Properties[normalizeKey(name)] = value
			}
		case kindTimestamp:
			ts, err := parseTimestamp(key, value)
			if err != nil {
				parseErr = err
				return false
			}
			event.Timestamp = &ts
		default:
			c.addDimension(event.Dimensions, key, value)
		}
		return true
	})
	if parseErr != nil {
		return payload.Event{}, parseErr
	}

	return event, nil
}

// addDimension stores value under the normalized key when both key and value qualify.
func (c *Classifier) addDimension(dims map[string]string, key, value string) {
	if c.excluded.Contains(key) {
		return
	}
	if !acceptValue(value) {
		return
	}
	dims[normalizeKey(key)] = value
}

// acceptValue drops values starting with '_' or of MaxValueLength characters or more.
func acceptValue(value string) bool {
	if value == "" || value[0] == '_' {
		return false
	}
	return utf8.RuneCountInString(value) < MaxValueLength
}

// normalizeKey replaces every '.' with '_'.
func normalizeKey(key string) string {
	return strings.ReplaceAll(key, ".", "_")
}

// parseGauge parses an integer first and falls back to a finite float.
func parseGauge(field, value string) (payload.Value, error) {
	text := strings.TrimSpace(value)
	if i, err := strconv.ParseInt(text, 10, 64); err == nil {
		return payload.IntValue(i), nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return payload.Value{}, &ParseError{Field: field, Value: value, Kind: "gauge"}
	}
	return payload.FloatValue(f), nil
}

// parseInteger parses a base-10 integer for counter kinds.
func parseInteger(field, value string) (payload.Value, error) {
	i, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return payload.Value{}, &ParseError{Field: field, Value: value, Kind: "integer"}
	}
	return payload.IntValue(i), nil
}

// parseTimestamp converts float epoch seconds to integer milliseconds, truncating toward zero.
func parseTimestamp(field, value string) (int64, error) {
	seconds, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0, &ParseError{Field: field, Value: value, Kind: "time"}
	}
	return int64(seconds * 1000), nil
}
