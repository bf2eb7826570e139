package protocol

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.uber.org/multierr"
)

// Header is the key:value block preceding legacy Intersplunk input.
type Header map[string]string

// ReadHeader consumes "key:value" lines up to the first blank line.
// Params: r buffered host input positioned at the start of the stream.
// Returns: header map; input without a header block is left untouched.
func ReadHeader(r *bufio.Reader) (Header, error) {
	header := Header{}
	for {
		peek, err := r.Peek(1)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return header, nil
			}
			return nil, fmt.Errorf("read header: %w", err)
		}
		if peek[0] == '\n' || peek[0] == '\r' {
			if _, err := r.ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("read header: %w", err)
			}
			return header, nil
		}

		line, ok, err := peekHeaderLine(r)
		if err != nil {
			return nil, err
		}
		if !ok {
			return header, nil
		}
		if _, err := r.Discard(len(line)); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}

		key, value, _ := strings.Cut(strings.TrimRight(line, "\r\n"), ":")
		header[key] = value
	}
}

// peekHeaderLine returns the next line when it looks like "key:value".
func peekHeaderLine(r *bufio.Reader) (string, bool, error) {
	for size := 64; ; size *= 2 {
		if size > r.Size() {
			size = r.Size()
		}
		buf, err := r.Peek(size)
		if idx := strings.IndexByte(string(buf), '\n'); idx >= 0 {
			line := string(buf[:idx+1])
			return line, isHeaderLine(line), nil
		}
		if err != nil || size == r.Size() {
			if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
				return "", false, fmt.Errorf("read header: %w", err)
			}
			return "", false, nil
		}
	}
}

func isHeaderLine(line string) bool {
	key, _, ok := strings.Cut(line, ":")
	if !ok || key == "" {
		return false
	}
	for _, r := range key {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// V1Server drives one transformer through the legacy Intersplunk protocol.
type V1Server struct {
	Command string
	Args    []string
	Factory Factory
	Logger  *slog.Logger
}

// Serve reads the whole result set, transforms it as one batch and writes CSV back.
// Params: ctx invocation lifecycle; in host stdin; out host stdout.
// Returns: nil on success, or the error already reported to the host.
func (s *V1Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	reader := bufio.NewReaderSize(in, 64<<10)

	header, err := ReadHeader(reader)
	if err != nil {
		return multierr.Append(err, writeV1Error(out, TopLevelMessage(err)))
	}

	transformer, err := s.Factory(ctx, Invocation{
		Command:    s.Command,
		Args:       s.Args,
		SessionKey: header["sessionKey"],
		SplunkdURI: header["splunkdUri"],
		App:        header["namespace"],
		Owner:      header["owner"],
	})
	if err != nil {
		logger.Error("invalid invocation", slog.String("error", err.Error()))
		return multierr.Append(err, writeV1Error(out, err.Error()))
	}

	records, err := DecodeRecords(reader)
	if err == nil {
		logger.Debug("results received", slog.String("command", transformer.Name()), slog.Int("records", len(records)))
		records, err = transformer.Transform(ctx, records)
	}
	if err != nil {
		logger.Error(
			"unhandled top-level exception",
			slog.String("command", transformer.Name()),
			slog.String("error", err.Error()),
		)
		return multierr.Append(err, writeV1Error(out, TopLevelMessage(err)))
	}

	body, err := EncodeRecords(records)
	if err != nil {
		return err
	}
	if _, err := out.Write(body); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

func writeV1Error(out io.Writer, message string) error {
	body := "ERROR\n" + `"` + strings.ReplaceAll(message, `"`, `""`) + `"` + "\n"
	if _, err := io.WriteString(out, body); err != nil {
		return fmt.Errorf("write error result: %w", err)
	}
	return nil
}
