package classify

import "strings"

// fieldKind tags what a field contributes to a datapoint or event.
type fieldKind uint8

const (
	kindDimension fieldKind = iota
	kindGauge
	kindCounter
	kindCumulativeCounter
	kindTimestamp
	kindEventType
	kindProperty
)

const timeField = "_time"

// rule maps a field-name prefix (or exact name) to a field kind.
type rule struct {
	prefix string
	exact  bool
	kind   fieldKind
}

// matches reports whether key is handled by the rule.
func (r rule) matches(key string) bool {
	if r.exact {
		return key == r.prefix
	}
	return strings.HasPrefix(key, r.prefix)
}

// name strips the rule prefix from key.
func (r rule) name(key string) string {
	if r.exact {
		return key
	}
	return key[len(r.prefix):]
}

// Rule sets are evaluated first-match; anything unmatched is a dimension candidate.
var (
	datapointRules = []rule{
		{prefix: "gauge_", kind: kindGauge},
		{prefix: "counter_", kind: kindCounter},
		{prefix: "cumulative_counter_", kind: kindCumulativeCounter},
		{prefix: timeField, exact: true, kind: kindTimestamp},
	}
	eventRules = []rule{
		{prefix: "event_", kind: kindEventType},
		{prefix: "property_", kind: kindProperty},
		{prefix: timeField, exact: true, kind: kindTimestamp},
	}
)

// classifyField finds the first matching rule for key.
// Params: rules ordered rule set; key field name.
// Returns: kind and stripped name; kindDimension with key when nothing matches.
func classifyField(rules []rule, key string) (fieldKind, string) {
	for _, r := range rules {
		if r.matches(key) {
			return r.kind, r.name(key)
		}
	}
	return kindDimension, key
}
