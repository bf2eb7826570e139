package setup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"sfxforwarder/internal/conf"
	"sfxforwarder/internal/options"
	"sfxforwarder/internal/splunkd"
)

// Editable setup arguments.
const (
	ArgAccessToken   = "access_token"
	ArgIngestURL     = "ingest_url"
	ArgRealm         = "realm"
	ArgSignalFxRealm = "signalfx_realm"
)

// ArgValidationError rejects a setup edit.
type ArgValidationError struct {
	Arg    string
	Reason string
}

// Error returns the reason shown on the setup page.
func (e *ArgValidationError) Error() string {
	return e.Reason
}

// ConfigHandler serves the app setup page.
type ConfigHandler interface {
	List(ctx context.Context) (conf.Stanza, error)
	Edit(ctx context.Context, args map[string]string) error
}

// ConfStore reads and writes sfx.conf stanzas.
type ConfStore interface {
	Stanza(name string) (conf.Stanza, error)
	Write(stanza string, values map[string]string) error
}

// Splunkd is the subset of the management API used by setup.
type Splunkd interface {
	FindPassword(ctx context.Context, realm, username string) (string, bool, error)
	ReplacePassword(ctx context.Context, realm, username, password string) error
	ServerInfo(ctx context.Context) (splunkd.ServerInfo, error)
}

// Handler stores the token in storage/passwords and the rest in local sfx.conf.
type Handler struct {
	store   ConfStore
	splunkd Splunkd
	logger  *slog.Logger
}

// NewHandler creates the setup handler.
// Params: store sfx.conf store; client splunkd API; logger for audit lines.
// Returns: handler.
func NewHandler(store ConfStore, client Splunkd, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Handler{store: store, splunkd: client, logger: logger}
}

// List returns the merged [setupentity] stanza plus the stored access token.
// Params: ctx request lifecycle.
// Returns: settings with a blank ingest_url replaced by the realm default.
func (h *Handler) List(ctx context.Context) (conf.Stanza, error) {
	stanza, err := h.store.Stanza(conf.SetupStanza)
	if err != nil {
		return nil, err
	}

	out := make(conf.Stanza, len(stanza)+2)
	for key, value := range stanza {
		out[key] = value
	}

	token, _, err := h.splunkd.FindPassword(ctx, options.SetupCredential.Realm, options.SetupCredential.Username)
	if err != nil {
		h.logger.Warn("read stored access token", slog.String("error", err.Error()))
	}
	out[ArgAccessToken] = token

	if strings.TrimSpace(out[ArgIngestURL]) == "" {
		out[ArgIngestURL] = options.RealmIngestURL(out[ArgRealm])
	}
	return out, nil
}

// Edit validates and persists setup arguments.
// Params: ctx request lifecycle; args submitted access_token, ingest_url and realm (or signalfx_realm).
// Returns: *ArgValidationError for rejected input or storage error.
func (h *Handler) Edit(ctx context.Context, args map[string]string) error {
	values := make(map[string]string, len(args))
	for key, value := range args {
		switch key {
		case ArgAccessToken, ArgIngestURL, ArgRealm:
			values[key] = strings.TrimSpace(value)
		case ArgSignalFxRealm:
			values[ArgRealm] = strings.TrimSpace(value)
		default:
			return &ArgValidationError{Arg: key, Reason: fmt.Sprintf("unsupported argument %q", key)}
		}
	}

	info, err := h.splunkd.ServerInfo(ctx)
	if err != nil {
		return fmt.Errorf("read server info: %w", err)
	}
	if ingestURL := values[ArgIngestURL]; info.IsCloud() && ingestURL != "" && !strings.HasPrefix(ingestURL, "https") {
		return &ArgValidationError{Arg: ArgIngestURL, Reason: "ingest_url must be https in Splunk Cloud"}
	}

	token, ok := values[ArgAccessToken]
	if !ok || token == "" {
		return &ArgValidationError{Arg: ArgAccessToken, Reason: "required access token is missing"}
	}
	delete(values, ArgAccessToken)

	if err := h.splunkd.ReplacePassword(ctx, options.SetupCredential.Realm, options.SetupCredential.Username, token); err != nil {
		return fmt.Errorf("save access token: %w", err)
	}
	if err := h.store.Write(conf.SetupStanza, values); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	h.logger.Info("setup saved", slog.String("keys", strings.Join(keys, ",")), slog.Bool("cloud", info.IsCloud()))
	return nil
}

// Format renders a stanza as key=value lines with the setup keys first.
// Params: stanza listed settings.
// Returns: newline terminated text.
func Format(stanza conf.Stanza) string {
	keys := make([]string, 0, len(stanza))
	for key := range stanza {
		switch key {
		case ArgAccessToken, ArgIngestURL, ArgRealm:
		default:
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	keys = append([]string{ArgAccessToken, ArgIngestURL, ArgRealm}, keys...)

	var builder strings.Builder
	for _, key := range keys {
		value, ok := stanza[key]
		if !ok {
			continue
		}
		builder.WriteString(key)
		builder.WriteByte('=')
		builder.WriteString(value)
		builder.WriteByte('\n')
	}
	return builder.String()
}
