package command

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"sfxforwarder/internal/classify"
	"sfxforwarder/internal/options"
	"sfxforwarder/internal/payload"
	"sfxforwarder/internal/record"
	"sfxforwarder/internal/sender"
)

// Fields added to forwarded records.
const (
	FieldStatus        = "status"
	FieldResponseError = "response_error"
	FieldEndpoint      = "endpoint"
	FieldToken         = "token"
)

// Transformer turns one host batch into the records sent back to the host.
type Transformer interface {
	Name() string
	Transform(ctx context.Context, records []*record.Record) ([]*record.Record, error)
}

// Poster delivers one encoded payload.
type Poster interface {
	Post(ctx context.Context, target, token, contentType string, body []byte) (sender.Response, error)
}

// Settings carries per-invocation collaborators shared by both commands.
// Params: resolved options, wire encoder, classifier, poster and logger.
// Returns: command wiring.
type Settings struct {
	Options    options.Resolved
	Encoder    payload.Encoder
	Classifier *classify.Classifier
	Poster     Poster
	Logger     *slog.Logger
}

func (s Settings) withDefaults() Settings {
	if s.Encoder == nil {
		s.Encoder = payload.JSONEncoder{}
	}
	if s.Classifier == nil {
		s.Classifier = classify.New()
	}
	if s.Logger == nil {
		s.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

// send posts body and stamps every record with the outcome.
// Params: ctx request lifecycle; records batch to annotate; body encoded payload.
// Returns: transport error that aborts the batch.
func (s Settings) send(ctx context.Context, records []*record.Record, body []byte) error {
	if s.Poster == nil {
		return fmt.Errorf("no poster configured")
	}

	target := s.Options.Target()
	resp, err := s.Poster.Post(ctx, target, s.Options.AccessToken, s.Encoder.ContentType(), body)
	if err != nil {
		return err
	}

	status := strconv.Itoa(resp.StatusCode)
	for _, rec := range records {
		rec.Set(FieldStatus, status)
		if resp.StatusCode != http.StatusOK {
			rec.Set(FieldResponseError, string(resp.Body))
		}
	}

	attrs := []any{
		slog.String("target", target),
		slog.Int("status", resp.StatusCode),
		slog.Int("records", len(records)),
	}
	if resp.OK() {
		s.Logger.Info("payload forwarded", attrs...)
	} else {
		s.Logger.Warn("ingest rejected payload", append(attrs, slog.String("response", string(resp.Body)))...)
	}
	return nil
}

// logPayload writes JSON payloads at debug level.
func (s Settings) logPayload(ctx context.Context, body []byte) {
	if !s.Logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	if s.Encoder.ContentType() != (payload.JSONEncoder{}).ContentType() {
		s.Logger.DebugContext(ctx, "payload encoded", slog.Int("bytes", len(body)))
		return
	}
	s.Logger.DebugContext(ctx, "payload encoded", slog.String("body", string(body)))
}
