package options

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

const (
	// DefaultRealm is used when no realm is configured anywhere.
	DefaultRealm = "us0"
	// DefaultIngestURL is the ingest URL of the default realm.
	DefaultIngestURL = "https://ingest.us0.signalfx.com"
)

// RealmIngestURL derives the ingest URL of a realm.
// Params: realm name; blank means DefaultRealm.
// Returns: https ingest base URL.
func RealmIngestURL(realm string) string {
	realm = strings.TrimSpace(realm)
	if realm == "" {
		return DefaultIngestURL
	}
	return "https://ingest." + realm + ".signalfx.com"
}

// Resolved is the per-invocation forwarding configuration.
type Resolved struct {
	AccessToken string
	IngestURL   string
	Endpoint    string
	Realm       string
	Debug       bool
	DryRun      bool
}

// Target composes the POST URL from ingest URL and endpoint path.
func (r Resolved) Target() string {
	return strings.TrimRight(r.IngestURL, "/") + r.Endpoint
}

// Resolver walks fallback sources in priority order.
type Resolver struct {
	sources []Source
	logger  *slog.Logger
}

// NewResolver creates a resolver; earlier sources win.
// Params: logger for skipped sources; sources in priority order.
// Returns: resolver.
func NewResolver(logger *slog.Logger, sources ...Source) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{sources: sources, logger: logger}
}

// Lookup returns the first non-empty value for key; failing sources are logged and skipped.
// Params: ctx lookup lifecycle; key option name.
// Returns: value and name of the source that supplied it ("" when none did).
func (r *Resolver) Lookup(ctx context.Context, key string) (string, string) {
	for _, source := range r.sources {
		value, err := source.Lookup(ctx, key)
		if err != nil {
			r.logger.Warn(
				"option source failed",
				slog.String("source", source.Name()),
				slog.String("option", key),
				slog.String("error", err.Error()),
			)
			continue
		}
		if value != "" {
			return value, source.Name()
		}
	}
	return "", ""
}

// Resolve merges invocation options with fallback sources.
// Params: ctx lookup lifecycle; cmd command surface; args validated options; resolver fallbacks.
// Returns: resolved configuration; a missing token resolves to "".
func Resolve(ctx context.Context, cmd Command, args Args, resolver *Resolver) Resolved {
	pick := func(key string) string {
		if value, ok := args.Lookup(key); ok && value != "" {
			return value
		}
		value, _ := resolver.Lookup(ctx, key)
		return value
	}

	resolved := Resolved{
		AccessToken: pick(AccessToken),
		IngestURL:   pick(IngestURL),
		Endpoint:    pick(cmd.EndpointOption),
		Realm:       pick(Realm),
		Debug:       args.Bool(Debug),
		DryRun:      args.Bool(DryRun),
	}
	if resolved.Realm == "" {
		resolved.Realm = DefaultRealm
	}
	if resolved.IngestURL == "" {
		resolved.IngestURL = RealmIngestURL(resolved.Realm)
	}
	if resolved.Endpoint == "" {
		resolved.Endpoint = cmd.DefaultEndpoint
	}
	if resolved.AccessToken == "" {
		resolver.logger.Warn("no access token configured", slog.String("command", cmd.Name))
	}
	return resolved
}
