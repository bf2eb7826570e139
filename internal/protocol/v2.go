package protocol

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	json "github.com/json-iterator/go"
	"go.uber.org/multierr"

	"sfxforwarder/internal/command"
)

// Command types announced in the getinfo reply.
const (
	TypeStreaming = "streaming"
	TypeEvents    = "events"
)

type searchInfo struct {
	Args       []string `json:"args"`
	SessionKey string   `json:"session_key"`
	SplunkdURI string   `json:"splunkd_uri"`
	App        string   `json:"app"`
	Owner      string   `json:"owner"`
	Command    string   `json:"command"`
}

type requestMeta struct {
	Action     string     `json:"action"`
	Preview    bool       `json:"preview"`
	Finished   bool       `json:"finished"`
	SearchInfo searchInfo `json:"searchinfo"`
}

type inspector struct {
	Messages [][2]string `json:"messages"`
}

type replyMeta struct {
	Type      string     `json:"type,omitempty"`
	Finished  bool       `json:"finished"`
	Inspector *inspector `json:"inspector,omitempty"`
}

// V2Server drives one transformer through the chunked protocol.
type V2Server struct {
	Type    string
	Factory Factory
	Logger  *slog.Logger
}

// Serve answers getinfo, then transforms each execute chunk as one batch.
// Params: ctx invocation lifecycle; in host stdin; out host stdout.
// Returns: nil after the final chunk, or the error already reported to the host.
func (s *V2Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	first, err := ReadChunk(reader)
	if err != nil {
		return fmt.Errorf("read getinfo: %w", err)
	}
	var meta requestMeta
	if err := json.Unmarshal(first.Metadata, &meta); err != nil {
		return fmt.Errorf("decode getinfo metadata: %w", err)
	}
	if meta.Action != "getinfo" {
		return fmt.Errorf("expected getinfo, got action %q", meta.Action)
	}

	info := meta.SearchInfo
	transformer, err := s.Factory(ctx, Invocation{
		Command:    info.Command,
		Args:       info.Args,
		SessionKey: info.SessionKey,
		SplunkdURI: info.SplunkdURI,
		App:        info.App,
		Owner:      info.Owner,
	})
	if err != nil {
		logger.Error("invalid invocation", slog.String("error", err.Error()))
		return multierr.Append(err, writeError(out, s.Type, err.Error()))
	}
	if err := WriteChunk(out, replyMeta{Type: s.Type}, nil); err != nil {
		return err
	}

	for batch := 0; ; batch++ {
		chunk, err := ReadChunk(reader)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		meta = requestMeta{}
		if err := json.Unmarshal(chunk.Metadata, &meta); err != nil {
			return fmt.Errorf("decode execute metadata: %w", err)
		}

		body, err := s.execute(ctx, transformer, chunk.Body)
		if err != nil {
			logger.Error(
				"unhandled top-level exception",
				slog.String("command", transformer.Name()),
				slog.Int("batch", batch),
				slog.String("error", err.Error()),
			)
			return multierr.Append(err, writeError(out, "", TopLevelMessage(err)))
		}
		if err := WriteChunk(out, replyMeta{Finished: meta.Finished}, body); err != nil {
			return err
		}
		if meta.Finished {
			return nil
		}
	}
}

// execute decodes, transforms and re-encodes one batch; an empty batch is echoed.
func (s *V2Server) execute(ctx context.Context, transformer command.Transformer, body []byte) ([]byte, error) {
	records, err := DecodeRecords(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	records, err = transformer.Transform(ctx, records)
	if err != nil {
		return nil, err
	}
	return EncodeRecords(records)
}

func writeError(out io.Writer, commandType, message string) error {
	return WriteChunk(out, replyMeta{
		Type:      commandType,
		Finished:  true,
		Inspector: &inspector{Messages: [][2]string{{"ERROR", message}}},
	}, nil)
}
