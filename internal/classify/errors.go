package classify

import "fmt"

// ParseError reports a metric or time field whose value is not the expected number.
type ParseError struct {
	Field string
	Value string
	Kind  string
}

// Error formats the failing field and value.
func (e *ParseError) Error() string {
	return fmt.Sprintf("field %s: invalid %s value %q", e.Field, e.Kind, e.Value)
}
