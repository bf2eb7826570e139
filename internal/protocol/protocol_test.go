package protocol

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfxforwarder/internal/command"
	"sfxforwarder/internal/record"
)

type stampTransformer struct {
	batches [][]*record.Record
	err     error
}

func (s *stampTransformer) Name() string { return "stamp" }

func (s *stampTransformer) Transform(_ context.Context, records []*record.Record) ([]*record.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.batches = append(s.batches, records)
	for _, rec := range records {
		rec.Set("status", "200")
	}
	return records, nil
}

func chunk(t *testing.T, meta, body string) string {
	t.Helper()
	return fmt.Sprintf("chunked 1.0,%d,%d\n%s%s", len(meta), len(body), meta, body)
}

func readAllChunks(t *testing.T, out []byte) []Chunk {
	t.Helper()
	reader := bufio.NewReader(bytes.NewReader(out))
	var chunks []Chunk
	for {
		c, err := ReadChunk(reader)
		if errors.Is(err, io.EOF) {
			return chunks
		}
		require.NoError(t, err)
		chunks = append(chunks, c)
	}
}

func TestChunkRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteChunk(&buf, map[string]bool{"finished": true}, []byte("a,b\n1,2\n")))
	assert.Equal(t, "chunked 1.0,17,8\n{\"finished\":true}a,b\n1,2\n", buf.String())

	c, err := ReadChunk(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, `{"finished":true}`, string(c.Metadata))
	assert.Equal(t, "a,b\n1,2\n", string(c.Body))
}

func TestReadChunkRejectsBadFraming(t *testing.T) {
	for _, input := range []string{"hello\n", "chunked 1.0,x,1\n", "chunked 1.0,5,0\n{}"} {
		_, err := ReadChunk(bufio.NewReader(strings.NewReader(input)))
		assert.Error(t, err, input)
	}
}

func TestRecordsCSVRoundTrip(t *testing.T) {
	records, err := DecodeRecords(strings.NewReader("gauge_kb,_time,host\n42,1000,\"web,1\"\n7,,db\n"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"gauge_kb", "_time", "host"}, records[0].Keys())
	host, _ := records[0].Get("host")
	assert.Equal(t, "web,1", host)

	records[1].Set("status", "200")
	out, err := EncodeRecords(records)
	require.NoError(t, err)
	assert.Equal(t, "gauge_kb,_time,host,status\n42,1000,\"web,1\",\n7,,db,200\n", string(out))
}

func TestDecodeRecordsEmpty(t *testing.T) {
	records, err := DecodeRecords(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, records)

	out, err := EncodeRecords(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestV2ServeStreamsBatches(t *testing.T) {
	transformer := &stampTransformer{}
	var invocation Invocation
	server := &V2Server{
		Type: TypeEvents,
		Factory: func(_ context.Context, inv Invocation) (command.Transformer, error) {
			invocation = inv
			return transformer, nil
		},
	}

	input := chunk(t, `{"action":"getinfo","preview":false,"searchinfo":{"args":["debug=t"],"session_key":"KEY","splunkd_uri":"https://127.0.0.1:8089","app":"search","owner":"admin","command":"tosfxevents"}}`, "") +
		chunk(t, `{"action":"execute","finished":false}`, "event_x,host\na,h1\n") +
		chunk(t, `{"action":"execute","finished":false}`, "") +
		chunk(t, `{"action":"execute","finished":true}`, "host\nh2\n")

	var out bytes.Buffer
	require.NoError(t, server.Serve(context.Background(), strings.NewReader(input), &out))

	assert.Equal(t, Invocation{
		Command:    "tosfxevents",
		Args:       []string{"debug=t"},
		SessionKey: "KEY",
		SplunkdURI: "https://127.0.0.1:8089",
		App:        "search",
		Owner:      "admin",
	}, invocation)
	assert.Len(t, transformer.batches, 2)

	chunks := readAllChunks(t, out.Bytes())
	require.Len(t, chunks, 4)
	assert.JSONEq(t, `{"type":"events","finished":false}`, string(chunks[0].Metadata))
	assert.JSONEq(t, `{"finished":false}`, string(chunks[1].Metadata))
	assert.Equal(t, "event_x,host,status\na,h1,200\n", string(chunks[1].Body))
	assert.Empty(t, chunks[2].Body)
	assert.JSONEq(t, `{"finished":true}`, string(chunks[3].Metadata))
	assert.Equal(t, "host,status\nh2,200\n", string(chunks[3].Body))
}

func TestV2ServeReportsTopLevelException(t *testing.T) {
	server := &V2Server{
		Type: TypeStreaming,
		Factory: func(context.Context, Invocation) (command.Transformer, error) {
			return &stampTransformer{err: errors.New("boom")}, nil
		},
	}

	input := chunk(t, `{"action":"getinfo","searchinfo":{}}`, "") +
		chunk(t, `{"action":"execute","finished":true}`, "gauge_x\n1\n")

	var out bytes.Buffer
	err := server.Serve(context.Background(), strings.NewReader(input), &out)
	require.ErrorContains(t, err, "boom")

	chunks := readAllChunks(t, out.Bytes())
	require.Len(t, chunks, 2)
	assert.JSONEq(t,
		`{"finished":true,"inspector":{"messages":[["ERROR","Unhandled top-level exception: boom (see sfxforwarder.log)"]]}}`,
		string(chunks[1].Metadata))
}

func TestV2ServeReportsInvalidOptions(t *testing.T) {
	server := &V2Server{
		Type: TypeEvents,
		Factory: func(context.Context, Invocation) (command.Transformer, error) {
			return nil, errors.New(`invalid value for option debug="maybe": must be a boolean`)
		},
	}

	var out bytes.Buffer
	err := server.Serve(context.Background(), strings.NewReader(chunk(t, `{"action":"getinfo","searchinfo":{}}`, "")), &out)
	require.Error(t, err)

	chunks := readAllChunks(t, out.Bytes())
	require.Len(t, chunks, 1)
	assert.JSONEq(t,
		`{"type":"events","finished":true,"inspector":{"messages":[["ERROR","invalid value for option debug=\"maybe\": must be a boolean"]]}}`,
		string(chunks[0].Metadata))
}

func TestReadHeader(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader("authString:<auth>\nsessionKey:abc:def\n\ngauge_x\n1\n"))

	header, err := ReadHeader(reader)
	require.NoError(t, err)
	assert.Equal(t, Header{"authString": "<auth>", "sessionKey": "abc:def"}, header)

	rest, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "gauge_x\n1\n", string(rest))
}

func TestReadHeaderWithoutBlock(t *testing.T) {
	reader := bufio.NewReader(strings.NewReader("gauge_x,host\n1,h\n"))

	header, err := ReadHeader(reader)
	require.NoError(t, err)
	assert.Empty(t, header)

	rest, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "gauge_x,host\n1,h\n", string(rest))
}

func TestV1Serve(t *testing.T) {
	transformer := &stampTransformer{}
	var invocation Invocation
	server := &V1Server{
		Command: "tosfx",
		Args:    []string{"dryrun=f"},
		Factory: func(_ context.Context, inv Invocation) (command.Transformer, error) {
			invocation = inv
			return transformer, nil
		},
	}

	var out bytes.Buffer
	input := "sessionKey:KEY\nsplunkdUri:https://127.0.0.1:8089\n\ngauge_kb,_time\n42,1000\n"
	require.NoError(t, server.Serve(context.Background(), strings.NewReader(input), &out))

	assert.Equal(t, "KEY", invocation.SessionKey)
	assert.Equal(t, []string{"dryrun=f"}, invocation.Args)
	assert.Equal(t, "gauge_kb,_time,status\n42,1000,200\n", out.String())
}

func TestV1ServeReportsError(t *testing.T) {
	server := &V1Server{
		Factory: func(context.Context, Invocation) (command.Transformer, error) {
			return &stampTransformer{err: errors.New(`field counter_x: invalid integer value "a"`)}, nil
		},
	}

	var out bytes.Buffer
	err := server.Serve(context.Background(), strings.NewReader("\ncounter_x\na\n"), &out)
	require.Error(t, err)

	records, decodeErr := DecodeRecords(&out)
	require.NoError(t, decodeErr)
	require.Len(t, records, 1)
	message, _ := records[0].Get("ERROR")
	assert.Equal(t, `Unhandled top-level exception: field counter_x: invalid integer value "a" (see sfxforwarder.log)`, message)
}
