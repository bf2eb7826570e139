package options

import (
	"context"
	"fmt"
	"strings"

	"sfxforwarder/internal/conf"
	"sfxforwarder/internal/config"
)

// Source supplies fallback values for options not given on the command line.
// Params: option name.
// Returns: value ("" when absent) or lookup error.
type Source interface {
	Name() string
	Lookup(ctx context.Context, key string) (string, error)
}

// Credential names one storage/passwords entry.
type Credential struct {
	Realm    string
	Username string
}

var (
	// EventsCredential is where the events setup page stores the token.
	EventsCredential = Credential{Realm: "sfx_ingest_command", Username: "access_token"}
	// SetupCredential is where the setup handler stores the token.
	SetupCredential = Credential{Username: "signalfx"}
)

// IngestConfigCollection is the KV store collection holding the ingest URL.
const IngestConfigCollection = "sfx_ingest_config"

// PasswordFinder reads storage/passwords.
type PasswordFinder interface {
	FindPassword(ctx context.Context, realm, username string) (string, bool, error)
}

// CollectionQuerier reads KV store collections.
type CollectionQuerier interface {
	QueryCollection(ctx context.Context, collection string) ([]map[string]any, error)
}

type stanzaSource struct {
	stanza conf.Stanza
}

// StanzaSource serves access_token, ingest_url and realm from a merged sfx.conf stanza.
func StanzaSource(stanza conf.Stanza) Source {
	return stanzaSource{stanza: stanza}
}

func (s stanzaSource) Name() string { return "sfx.conf" }

func (s stanzaSource) Lookup(_ context.Context, key string) (string, error) {
	switch key {
	case AccessToken, IngestURL, Realm:
		return strings.TrimSpace(s.stanza.Get(key)), nil
	default:
		return "", nil
	}
}

type settingsSource struct {
	ingest config.IngestConfig
}

// SettingsSource serves ingest fallbacks from the TOML settings file.
func SettingsSource(ingest config.IngestConfig) Source {
	return settingsSource{ingest: ingest}
}

func (s settingsSource) Name() string { return "settings" }

func (s settingsSource) Lookup(_ context.Context, key string) (string, error) {
	switch key {
	case IngestURL:
		return s.ingest.IngestURL, nil
	case Realm:
		return s.ingest.Realm, nil
	case DPEndpoint:
		return s.ingest.DPEndpoint, nil
	case EVEndpoint:
		return s.ingest.EVEndpoint, nil
	default:
		return "", nil
	}
}

type credentialSource struct {
	finder PasswordFinder
	pairs  []Credential
}

// CredentialSource serves access_token from the first matching stored credential.
// Params: finder storage/passwords reader; pairs credentials tried in order.
// Returns: source.
func CredentialSource(finder PasswordFinder, pairs ...Credential) Source {
	return credentialSource{finder: finder, pairs: pairs}
}

func (s credentialSource) Name() string { return "storage/passwords" }

func (s credentialSource) Lookup(ctx context.Context, key string) (string, error) {
	if key != AccessToken {
		return "", nil
	}
	for _, pair := range s.pairs {
		token, ok, err := s.finder.FindPassword(ctx, pair.Realm, pair.Username)
		if err != nil {
			return "", fmt.Errorf("find credential %s:%s: %w", pair.Realm, pair.Username, err)
		}
		if ok && token != "" {
			return token, nil
		}
	}
	return "", nil
}

type collectionSource struct {
	querier    CollectionQuerier
	collection string
}

// CollectionSource serves ingest_url from the most recent KV store record.
func CollectionSource(querier CollectionQuerier, collection string) Source {
	return collectionSource{querier: querier, collection: collection}
}

func (s collectionSource) Name() string { return "kvstore/" + s.collection }

func (s collectionSource) Lookup(ctx context.Context, key string) (string, error) {
	if key != IngestURL {
		return "", nil
	}
	records, err := s.querier.QueryCollection(ctx, s.collection)
	if err != nil {
		return "", fmt.Errorf("query collection %s: %w", s.collection, err)
	}
	if len(records) == 0 {
		return "", nil
	}
	value, _ := records[len(records)-1][IngestURL].(string)
	return strings.TrimSpace(value), nil
}
