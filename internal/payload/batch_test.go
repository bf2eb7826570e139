package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 {
	return &v
}

func TestDatapointBatchMergePrependsLaterRecords(t *testing.T) {
	batch := NewDatapointBatch()
	a1 := Datapoint{Metric: "a1", Value: IntValue(1), Dimensions: map[string]string{}}
	b1 := Datapoint{Metric: "b1", Value: IntValue(2), Dimensions: map[string]string{}}
	b2 := Datapoint{Metric: "b2", Value: IntValue(3), Dimensions: map[string]string{}}

	batch.Merge(Gauge, []Datapoint{a1})
	require.Equal(t, []Datapoint{a1}, batch.Points(Gauge))

	batch.Merge(Gauge, []Datapoint{b1, b2})
	assert.Equal(t, []Datapoint{b1, b2, a1}, batch.Points(Gauge))
	assert.Equal(t, 3, batch.Len())
}

func TestDatapointBatchKeepsTypeOrder(t *testing.T) {
	batch := NewDatapointBatch()
	batch.Merge(Counter, []Datapoint{{Metric: "c", Value: IntValue(1), Dimensions: map[string]string{}}})
	batch.Merge(Gauge, []Datapoint{{Metric: "g", Value: IntValue(1), Dimensions: map[string]string{}}})
	batch.Merge(Counter, nil)

	assert.Equal(t, []MetricType{Counter, Gauge}, batch.Types())

	body, err := batch.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t,
		`{"counter":[{"metric":"c","value":1,"dimensions":{}}],"gauge":[{"metric":"g","value":1,"dimensions":{}}]}`,
		string(body))
}

func TestEmptyBatchesEncode(t *testing.T) {
	body, err := JSONEncoder{}.Datapoints(NewDatapointBatch())
	require.NoError(t, err)
	assert.Equal(t, "{}", string(body))

	body, err = JSONEncoder{}.Events(NewEventBatch())
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
}

func TestValueEncoding(t *testing.T) {
	cases := []struct {
		value Value
		want  string
	}{
		{IntValue(42), "42"},
		{IntValue(-7), "-7"},
		{FloatValue(1.5), "1.5"},
		{FloatValue(5), "5.0"},
		{FloatValue(1e21), "1e+21"},
	}
	for _, tc := range cases {
		body, err := tc.value.MarshalJSON()
		require.NoError(t, err)
		assert.Equal(t, tc.want, string(body))
	}
}

func TestValueRejectsNonFinite(t *testing.T) {
	zero := 0.0
	_, err := FloatValue(1 / zero).MarshalJSON()
	assert.Error(t, err)
}

func TestValueUnmarshalKeepsKind(t *testing.T) {
	var v Value
	require.NoError(t, v.UnmarshalJSON([]byte("42")))
	assert.Equal(t, IntValue(42), v)

	require.NoError(t, v.UnmarshalJSON([]byte("2.5")))
	assert.Equal(t, FloatValue(2.5), v)

	assert.Error(t, v.UnmarshalJSON([]byte(`"x"`)))
}

func TestEventJSONCarriesNulls(t *testing.T) {
	batch := NewEventBatch()
	batch.Append(Event{
		Category:   EventCategory,
		Dimensions: map[string]string{"host": "web1"},
		Properties: map[string]string{},
	})

	body, err := JSONEncoder{}.Events(batch)
	require.NoError(t, err)
	assert.JSONEq(t,
		`[{"category":"USER_DEFINED","dimensions":{"host":"web1"},"properties":{},"timestamp":null,"eventType":null}]`,
		string(body))
}

func TestDatapointJSONRoundTrip(t *testing.T) {
	batch := NewDatapointBatch()
	dims := map[string]string{"host": "web1", "foo_bar": "baz"}
	batch.Merge(Gauge, []Datapoint{
		{Metric: "kb", Value: IntValue(42), Timestamp: int64Ptr(1000000), Dimensions: dims},
		{Metric: "ratio", Value: FloatValue(0.25), Timestamp: int64Ptr(1000000), Dimensions: dims},
	})
	batch.Merge(CumulativeCounter, []Datapoint{
		{Metric: "total", Value: IntValue(9), Dimensions: map[string]string{}},
	})

	body, err := JSONEncoder{}.Datapoints(batch)
	require.NoError(t, err)

	var decoded map[string][]Datapoint
	require.NoError(t, json.Unmarshal(body, &decoded))

	assert.Len(t, decoded, 2)
	assert.Equal(t, batch.Points(Gauge), decoded["gauge"])
	assert.Equal(t, batch.Points(CumulativeCounter), decoded["cumulative_counter"])
}
