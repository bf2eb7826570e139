package sender

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type capturedRequest struct {
	method  string
	path    string
	headers http.Header
	body    []byte
}

func newCaptureServer(t *testing.T, status int, respBody string) (*httptest.Server, <-chan capturedRequest) {
	t.Helper()
	captured := make(chan capturedRequest, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(zr)
		captured <- capturedRequest{method: r.Method, path: r.URL.Path, headers: r.Header.Clone(), body: body}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(respBody))
	}))
	t.Cleanup(server.Close)
	return server, captured
}

func TestPostCompressesAndSetsHeaders(t *testing.T) {
	server, captured := newCaptureServer(t, http.StatusOK, `"OK"`)
	s, err := New(Options{Timeout: time.Second, UserAgent: "sfxforwarder/test"})
	require.NoError(t, err)

	resp, err := s.Post(context.Background(), server.URL+"/v2/datapoint", "T", "application/json", []byte(`{"gauge":[]}`))
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, `"OK"`, string(resp.Body))

	req := <-captured
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/v2/datapoint", req.path)
	assert.Equal(t, "T", req.headers.Get(TokenHeader))
	assert.Equal(t, "gzip", req.headers.Get("Content-Encoding"))
	assert.Equal(t, "application/json", req.headers.Get("Content-Type"))
	assert.Equal(t, "sfxforwarder/test", req.headers.Get("User-Agent"))
	assert.Equal(t, `{"gauge":[]}`, string(req.body))
}

func TestPostReturnsErrorStatusWithoutError(t *testing.T) {
	server, _ := newCaptureServer(t, http.StatusUnauthorized, `{"message":"bad token"}`)
	s, err := New(Options{})
	require.NoError(t, err)

	resp, err := s.Post(context.Background(), server.URL, "", "application/json", []byte(`[]`))
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, `{"message":"bad token"}`, string(resp.Body))
}

func TestPostTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	target := server.URL
	server.Close()

	s, err := New(Options{Timeout: time.Second})
	require.NoError(t, err)

	_, err = s.Post(context.Background(), target, "T", "application/json", []byte(`{}`))
	assert.Error(t, err)
}

func TestPostReusesPooledWriters(t *testing.T) {
	server, captured := newCaptureServer(t, http.StatusOK, "")
	s, err := New(Options{CompressionLevel: gzip.BestSpeed})
	require.NoError(t, err)

	for _, body := range [][]byte{[]byte(`{"a":1}`), bytes.Repeat([]byte("x"), 4096)} {
		_, err := s.Post(context.Background(), server.URL, "T", "application/json", body)
		require.NoError(t, err)
		assert.Equal(t, body, (<-captured).body)
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Options{CompressionLevel: 42})
	assert.Error(t, err)
}
