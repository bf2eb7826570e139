package classify

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfxforwarder/internal/payload"
	"sfxforwarder/internal/record"
)

func TestDatapointsSingleGauge(t *testing.T) {
	batch := payload.NewDatapointBatch()
	dps, err := New().Datapoints(record.Of("gauge_x", "5"))
	require.NoError(t, err)
	dps.MergeInto(batch)

	assert.Equal(t, []payload.MetricType{payload.Gauge}, batch.Types())
	assert.Equal(t, []payload.Datapoint{
		{Metric: "x", Value: payload.IntValue(5), Dimensions: map[string]string{}},
	}, batch.Points(payload.Gauge))
}

func TestDatapointsCounterWithTime(t *testing.T) {
	batch := payload.NewDatapointBatch()
	dps, err := New().Datapoints(record.Of("counter_y", "3", "_time", "1000.5"))
	require.NoError(t, err)
	dps.MergeInto(batch)

	points := batch.Points(payload.Counter)
	require.Len(t, points, 1)
	require.NotNil(t, points[0].Timestamp)
	assert.Equal(t, int64(1000500), *points[0].Timestamp)
	assert.Equal(t, payload.IntValue(3), points[0].Value)
	assert.Empty(t, batch.Points(payload.Gauge))
}

func TestDatapointsGaugeFloatFallback(t *testing.T) {
	dps, err := New().Datapoints(record.Of("gauge_ratio", "0.75", "gauge_big", " 12 "))
	require.NoError(t, err)

	assert.Equal(t, []Sample{
		{Metric: "ratio", Value: payload.FloatValue(0.75)},
		{Metric: "big", Value: payload.IntValue(12)},
	}, dps.Gauges)
}

func TestDatapointsPrefixPrecedence(t *testing.T) {
	dps, err := New().Datapoints(record.Of(
		"cumulative_counter_total", "10",
		"counter_hits", "2",
		"gauge_counter_x", "1",
	))
	require.NoError(t, err)

	assert.Equal(t, []Sample{{Metric: "total", Value: payload.IntValue(10)}}, dps.CumulativeCounters)
	assert.Equal(t, []Sample{{Metric: "hits", Value: payload.IntValue(2)}}, dps.Counters)
	assert.Equal(t, []Sample{{Metric: "counter_x", Value: payload.IntValue(1)}}, dps.Gauges)
	assert.Equal(t, 3, dps.Len())
}

func TestDatapointsDimensions(t *testing.T) {
	long := strings.Repeat("v", MaxValueLength)
	almost := strings.Repeat("v", MaxValueLength-1)

	dps, err := New().Datapoints(record.Of(
		"gauge_kb", "1",
		"foo.bar", "baz",
		"host", "web1",
		"_raw", "line",
		"punct", "--",
		"date_hour", "10",
		"hidden", "_internal",
		"huge", long,
		"edge", almost,
		"empty", "",
	))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"foo_bar": "baz",
		"host":    "web1",
		"edge":    almost,
	}, dps.Dimensions)
}

func TestDatapointsValueLengthCountsCharacters(t *testing.T) {
	value := strings.Repeat("é", MaxValueLength-1)

	dps, err := New().Datapoints(record.Of("gauge_x", "1", "name", value))
	require.NoError(t, err)
	assert.Equal(t, value, dps.Dimensions["name"])
}

func TestDatapointsExtraExclusions(t *testing.T) {
	dps, err := New("linecount", "splunk_*").Datapoints(record.Of(
		"gauge_x", "1",
		"linecount", "1",
		"splunk_server", "idx1",
		"source", "/var/log/app.log",
	))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"source": "/var/log/app.log"}, dps.Dimensions)
}

func TestDatapointsNoMetrics(t *testing.T) {
	batch := payload.NewDatapointBatch()
	dps, err := New().Datapoints(record.Of("host", "web1", "_time", "12"))
	require.NoError(t, err)
	dps.MergeInto(batch)

	assert.True(t, dps.Empty())
	assert.Zero(t, batch.Len())
	assert.Empty(t, batch.Types())
}

func TestDatapointsZeroTimestampOmitted(t *testing.T) {
	batch := payload.NewDatapointBatch()
	dps, err := New().Datapoints(record.Of("gauge_x", "1", "_time", "0"))
	require.NoError(t, err)
	dps.MergeInto(batch)

	assert.Nil(t, batch.Points(payload.Gauge)[0].Timestamp)
}

func TestDatapointsSharedDimensionsAcrossTypes(t *testing.T) {
	batch := payload.NewDatapointBatch()
	dps, err := New().Datapoints(record.Of("gauge_a", "1", "counter_b", "2", "host", "h"))
	require.NoError(t, err)
	dps.MergeInto(batch)

	assert.Equal(t, []payload.MetricType{payload.Gauge, payload.Counter}, batch.Types())
	assert.Equal(t, "h", batch.Points(payload.Gauge)[0].Dimensions["host"])
	assert.Equal(t, "h", batch.Points(payload.Counter)[0].Dimensions["host"])
}

func TestDatapointsMergeOrderAcrossRecords(t *testing.T) {
	classifier := New()
	batch := payload.NewDatapointBatch()

	first, err := classifier.Datapoints(record.Of("gauge_a1", "1"))
	require.NoError(t, err)
	first.MergeInto(batch)

	second, err := classifier.Datapoints(record.Of("gauge_b1", "2"))
	require.NoError(t, err)
	second.MergeInto(batch)

	points := batch.Points(payload.Gauge)
	require.Len(t, points, 2)
	assert.Equal(t, "b1", points[0].Metric)
	assert.Equal(t, "a1", points[1].Metric)
}

// Counter kinds accept integers only while gauges fall back to floats.
func TestDatapointsParseAsymmetry(t *testing.T) {
	classifier := New()

	_, err := classifier.Datapoints(record.Of("gauge_x", "1.5"))
	require.NoError(t, err)

	for _, key := range []string{"counter_x", "cumulative_counter_x"} {
		_, err = classifier.Datapoints(record.Of(key, "1.5"))
		var parseErr *ParseError
		require.Truef(t, errors.As(err, &parseErr), "expected ParseError for %s, got %v", key, err)
		assert.Equal(t, key, parseErr.Field)
		assert.Equal(t, "integer", parseErr.Kind)
	}
}

func TestDatapointsParseErrors(t *testing.T) {
	cases := []struct {
		name  string
		rec   *record.Record
		field string
	}{
		{"gauge text", record.Of("gauge_x", "abc"), "gauge_x"},
		{"gauge nan", record.Of("gauge_x", "nan"), "gauge_x"},
		{"bad time", record.Of("gauge_x", "1", "_time", "yesterday"), "_time"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New().Datapoints(tc.rec)
			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr))
			assert.Equal(t, tc.field, parseErr.Field)
		})
	}
}

func TestEventClassification(t *testing.T) {
	event, err := New().Event(record.Of(
		"event_name", "deploy",
		"property_version", "1.2",
		"property_build.id", "77",
		"property_secret", "_hidden",
		"_time", "1700000000.25",
		"host", "web1",
		"date_mday", "3",
	))
	require.NoError(t, err)

	assert.Equal(t, payload.EventCategory, event.Category)
	require.NotNil(t, event.EventType)
	assert.Equal(t, "deploy", *event.EventType)
	assert.Equal(t, map[string]string{"version": "1.2", "build_id": "77"}, event.Properties)
	assert.Equal(t, map[string]string{"host": "web1"}, event.Dimensions)
	require.NotNil(t, event.Timestamp)
	assert.Equal(t, int64(1700000000250), *event.Timestamp)
}

func TestEventWithoutType(t *testing.T) {
	event, err := New().Event(record.Of("host", "web1"))
	require.NoError(t, err)

	assert.Nil(t, event.EventType)
	assert.Nil(t, event.Timestamp)
	assert.Empty(t, event.Properties)
}

func TestEventLastTypeWins(t *testing.T) {
	event, err := New().Event(record.Of("event_a", "first", "event_b", "second", "event_c", ""))
	require.NoError(t, err)

	assert.Equal(t, "second", *event.EventType)
}

func TestEventMetricFieldsAreDimensions(t *testing.T) {
	event, err := New().Event(record.Of("gauge_x", "5"))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"gauge_x": "5"}, event.Dimensions)
}

func TestEventBadTime(t *testing.T) {
	_, err := New().Event(record.Of("_time", "x"))
	var parseErr *ParseError
	assert.True(t, errors.As(err, &parseErr))
	assert.Equal(t, `field _time: invalid time value "x"`, err.Error())
}
