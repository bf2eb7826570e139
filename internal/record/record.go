package record

// Record is one search result row: field name -> string value in arrival order.
// Params: none.
// Returns: ordered mutable field set owned by the host batch.
type Record struct {
	keys   []string
	values map[string]string
}

// New creates an empty record.
// Params: none.
// Returns: record ready for Set calls.
func New() *Record {
	return &Record{values: make(map[string]string)}
}

// Of builds a record from alternating key/value arguments.
// Params: pairs key1, value1, key2, value2...; a trailing odd key gets an empty value.
// Returns: populated record.
func Of(pairs ...string) *Record {
	r := New()
	for idx := 0; idx < len(pairs); idx += 2 {
		value := ""
		if idx+1 < len(pairs) {
			value = pairs[idx+1]
		}
		r.Set(pairs[idx], value)
	}
	return r
}

// Set stores value under key, appending key when it is new.
// Params: key field name; value field value.
// Returns: none.
func (r *Record) Set(key, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns value stored under key.
// Params: key field name.
// Returns: value and presence flag.
func (r *Record) Get(key string) (string, bool) {
	value, ok := r.values[key]
	return value, ok
}

// Keys returns field names in arrival order.
// Params: none.
// Returns: copy of the key list.
func (r *Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns number of fields.
func (r *Record) Len() int {
	return len(r.keys)
}

// Range calls fn for every field in arrival order until fn returns false.
// Params: fn visitor.
// Returns: none.
func (r *Record) Range(fn func(key, value string) bool) {
	for _, key := range r.keys {
		if !fn(key, r.values[key]) {
			return
		}
	}
}

// Map returns a plain map copy of the record.
// Params: none.
// Returns: field map.
func (r *Record) Map() map[string]string {
	out := make(map[string]string, len(r.values))
	for key, value := range r.values {
		out[key] = value
	}
	return out
}
