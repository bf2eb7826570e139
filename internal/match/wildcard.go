package match

import "strings"

// Pattern is a compiled '*' wildcard matcher for field names.
// Params: literal segments between wildcards and anchoring flags.
// Returns: reusable matcher.
type Pattern struct {
	raw      string
	segments []string
	prefixed bool
	suffixed bool
	any      bool
}

// Compile compiles one wildcard pattern.
// Params: pattern may contain any number of '*' wildcards.
// Returns: compiled matcher and false when pattern is blank.
func Compile(pattern string) (Pattern, bool) {
	p := strings.TrimSpace(pattern)
	if p == "" {
		return Pattern{}, false
	}
	if strings.Trim(p, "*") == "" {
		return Pattern{raw: p, any: true}, true
	}

	return Pattern{
		raw:      p,
		segments: strings.Split(p, "*"),
		prefixed: !strings.HasPrefix(p, "*"),
		suffixed: !strings.HasSuffix(p, "*"),
	}, true
}

// String returns source pattern text.
func (p Pattern) String() string {
	return p.raw
}

// Match reports whether value matches the pattern.
// Params: value compared text.
// Returns: true on match.
func (p Pattern) Match(value string) bool {
	if p.any {
		return true
	}
	if len(p.segments) == 0 {
		return false
	}
	if len(p.segments) == 1 {
		return value == p.segments[0]
	}

	first, last := 0, len(p.segments)-1
	rest := value
	if p.prefixed {
		if !strings.HasPrefix(rest, p.segments[0]) {
			return false
		}
		rest = rest[len(p.segments[0]):]
		first = 1
	}

	end := len(p.segments)
	if p.suffixed {
		end = last
	}
	for _, segment := range p.segments[first:end] {
		if segment == "" {
			continue
		}
		offset := strings.Index(rest, segment)
		if offset < 0 {
			return false
		}
		rest = rest[offset+len(segment):]
	}

	if p.suffixed {
		return strings.HasSuffix(rest, p.segments[last])
	}
	return true
}

// Match compiles pattern and evaluates it against value.
// Params: pattern wildcard text; value compared text.
// Returns: true on match; false for blank patterns.
func Match(pattern, value string) bool {
	compiled, ok := Compile(pattern)
	if !ok {
		return false
	}
	return compiled.Match(value)
}
