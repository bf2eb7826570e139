package options

import (
	"fmt"
	"regexp"
	"strings"
)

// Option names shared by both search commands.
const (
	AccessToken = "access_token"
	Debug       = "debug"
	DryRun      = "dry_run"
	IngestURL   = "ingest_url"
	Realm       = "realm"
	DPEndpoint  = "dp_endpoint"
	EVEndpoint  = "ev_endpoint"
)

// ValidationError reports an invocation option that failed validation.
type ValidationError struct {
	Option string
	Value  string
	Reason string
}

// Error formats option, value and reason.
func (e *ValidationError) Error() string {
	if e.Option == "" {
		return fmt.Sprintf("invalid argument %q: %s", e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid value for option %s=%q: %s", e.Option, e.Value, e.Reason)
}

// Kind selects the validator for one option.
type Kind int

const (
	// String accepts any value, optionally constrained by Spec.Pattern.
	String Kind = iota
	// Bool accepts the boolean spellings understood by ParseBool.
	Bool
)

// Spec declares one accepted invocation option.
type Spec struct {
	Name    string
	Aliases []string
	Kind    Kind
	Pattern *regexp.Regexp
}

// Command declares the option surface of one search command.
// Params: command name, accepted options, option naming the endpoint path and its default.
// Returns: parse and resolution rules.
type Command struct {
	Name            string
	Specs           []Spec
	EndpointOption  string
	DefaultEndpoint string
}

var httpsOnly = regexp.MustCompile(`^https://.*`)

// Datapoints is the option surface of the tosfx command.
var Datapoints = Command{
	Name: "tosfx",
	Specs: []Spec{
		{Name: AccessToken},
		{Name: Debug, Kind: Bool},
		{Name: DryRun, Aliases: []string{"dryrun"}, Kind: Bool},
		{Name: IngestURL},
		{Name: Realm},
		{Name: DPEndpoint},
	},
	EndpointOption:  DPEndpoint,
	DefaultEndpoint: "/v2/datapoint",
}

// Events is the option surface of the tosfxevents command.
var Events = Command{
	Name: "tosfxevents",
	Specs: []Spec{
		{Name: AccessToken},
		{Name: Debug, Kind: Bool},
		{Name: DryRun, Aliases: []string{"dryrun"}, Kind: Bool},
		{Name: IngestURL, Pattern: httpsOnly},
		{Name: Realm},
		{Name: EVEndpoint},
	},
	EndpointOption:  EVEndpoint,
	DefaultEndpoint: "/v2/event",
}

// Args holds validated invocation options keyed by canonical name.
type Args struct {
	values map[string]string
}

// Parse validates key=value search arguments against the command surface.
// Params: cmd command surface; args raw arguments as passed by the host.
// Returns: validated options or *ValidationError.
func Parse(cmd Command, args []string) (Args, error) {
	parsed := Args{values: make(map[string]string, len(args))}
	for _, arg := range args {
		if strings.TrimSpace(arg) == "" {
			continue
		}
		name, value, ok := strings.Cut(arg, "=")
		if !ok {
			return Args{}, &ValidationError{Value: arg, Reason: "expected name=value"}
		}
		name = strings.TrimSpace(name)
		value = unquote(strings.TrimSpace(value))

		spec, found := cmd.lookup(name)
		if !found {
			return Args{}, &ValidationError{Option: name, Value: value, Reason: "unrecognized option for " + cmd.Name}
		}
		if err := spec.validate(value); err != nil {
			return Args{}, err
		}
		parsed.values[spec.Name] = value
	}
	return parsed, nil
}

// Lookup returns the raw value of a supplied option.
func (a Args) Lookup(name string) (string, bool) {
	value, ok := a.values[name]
	return value, ok
}

// Bool returns the boolean value of an option; absent options are false.
func (a Args) Bool(name string) bool {
	value, ok := a.values[name]
	if !ok {
		return false
	}
	parsed, _ := ParseBool(value)
	return parsed
}

// ParseBool accepts 1/t/true/y/yes and 0/f/false/n/no in any case.
// Params: value raw option value.
// Returns: parsed boolean or error.
func ParseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "y", "yes":
		return true, nil
	case "0", "f", "false", "n", "no":
		return false, nil
	default:
		return false, fmt.Errorf("expected a boolean value, got %q", value)
	}
}

func (c Command) lookup(name string) (Spec, bool) {
	for _, spec := range c.Specs {
		if spec.Name == name {
			return spec, true
		}
		for _, alias := range spec.Aliases {
			if alias == name {
				return spec, true
			}
		}
	}
	return Spec{}, false
}

func (s Spec) validate(value string) error {
	switch s.Kind {
	case Bool:
		if _, err := ParseBool(value); err != nil {
			return &ValidationError{Option: s.Name, Value: value, Reason: "must be a boolean"}
		}
	default:
		if s.Pattern != nil && !s.Pattern.MatchString(value) {
			return &ValidationError{Option: s.Name, Value: value, Reason: "must match " + s.Pattern.String()}
		}
	}
	return nil
}

// unquote strips one pair of matching double quotes.
func unquote(value string) string {
	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		return value[1 : len(value)-1]
	}
	return value
}
