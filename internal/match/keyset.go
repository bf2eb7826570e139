package match

// DefaultExcludedKeys are field-name patterns never turned into dimensions:
// internal fields, the punct summary and the date_* breakdown fields.
var DefaultExcludedKeys = []string{"_*", "punct", "date_*"}

// KeySet is an ordered set of compiled wildcard patterns.
// Params: compiled patterns.
// Returns: matcher for field names.
type KeySet struct {
	patterns []Pattern
}

// NewKeySet compiles patterns, skipping blank entries.
// Params: patterns wildcard list.
// Returns: compiled key set.
func NewKeySet(patterns ...string) KeySet {
	set := KeySet{patterns: make([]Pattern, 0, len(patterns))}
	for _, raw := range patterns {
		if compiled, ok := Compile(raw); ok {
			set.patterns = append(set.patterns, compiled)
		}
	}
	return set
}

// DimensionExclusions builds the exclusion set for dimension keys.
// Params: extra configured patterns appended to DefaultExcludedKeys.
// Returns: compiled key set.
func DimensionExclusions(extra ...string) KeySet {
	all := make([]string, 0, len(DefaultExcludedKeys)+len(extra))
	all = append(all, DefaultExcludedKeys...)
	all = append(all, extra...)
	return NewKeySet(all...)
}

// Contains reports whether key matches any pattern.
// Params: key field name.
// Returns: true when at least one pattern matches.
func (s KeySet) Contains(key string) bool {
	for _, p := range s.patterns {
		if p.Match(key) {
			return true
		}
	}
	return false
}

// Len returns number of compiled patterns.
func (s KeySet) Len() int {
	return len(s.patterns)
}
