package sender

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
)

const (
	// TokenHeader carries the org access token.
	TokenHeader = "X-SF-TOKEN"

	maxResponseBody = 64 << 10
)

// Options configures the HTTP sender.
// Params: request timeout (0 disables), gzip level, user agent and logger.
// Returns: sender settings.
type Options struct {
	Timeout          time.Duration
	CompressionLevel int
	UserAgent        string
	Logger           *slog.Logger
	Client           *http.Client
}

// Response is the ingest API answer for one POST.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the ingest API accepted the payload.
func (r Response) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Sender gzips payloads and POSTs them to the ingest API.
// Params: pooled gzip writers and HTTP client.
// Returns: reusable sender; safe for concurrent use.
type Sender struct {
	client    *http.Client
	zippers   sync.Pool
	userAgent string
	logger    *slog.Logger
}

// New creates a sender.
// Params: opts sender options.
// Returns: sender or error for an invalid compression level.
func New(opts Options) (*Sender, error) {
	level := opts.CompressionLevel
	if level == 0 {
		level = gzip.DefaultCompression
	}
	if _, err := gzip.NewWriterLevel(io.Discard, level); err != nil {
		return nil, fmt.Errorf("gzip level %d: %w", level, err)
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Sender{
		client:    client,
		userAgent: opts.UserAgent,
		logger:    logger,
	}
	s.zippers.New = func() any {
		w, _ := gzip.NewWriterLevel(nil, level)
		return w
	}
	return s, nil
}

// Post compresses body and sends it to target with the access token.
// Params: ctx request lifecycle; target full ingest URL; token access token; contentType body media type; body encoded payload.
// Returns: status and body for any HTTP answer; error only for compression or transport failures.
func (s *Sender) Post(ctx context.Context, target, token, contentType string, body []byte) (Response, error) {
	compressed, err := s.compress(body)
	if err != nil {
		return Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(compressed))
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(TokenHeader, token)
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Content-Type", contentType)
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	started := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("POST %s: %w", target, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return Response{}, fmt.Errorf("POST %s: read response: %w", target, err)
	}

	s.logger.Debug(
		"payload sent",
		slog.String("target", target),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(body)),
		slog.Int("compressed_bytes", len(compressed)),
		slog.Duration("elapsed", time.Since(started)),
	)

	return Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}

// compress gzips body with a pooled writer.
func (s *Sender) compress(body []byte) ([]byte, error) {
	zw := s.zippers.Get().(*gzip.Writer)
	defer s.zippers.Put(zw)

	var buf bytes.Buffer
	zw.Reset(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, fmt.Errorf("gzip payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("flush gzip payload: %w", err)
	}
	return buf.Bytes(), nil
}
