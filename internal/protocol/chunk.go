package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	json "github.com/json-iterator/go"
)

const (
	chunkPrefix  = "chunked 1.0,"
	maxChunkPart = 1 << 30
)

// Chunk is one framed message of the chunked search command protocol.
type Chunk struct {
	Metadata []byte
	Body     []byte
}

// ReadChunk reads "chunked 1.0,<meta>,<body>\n" followed by both parts.
// Params: r buffered host input.
// Returns: chunk, io.EOF at a clean end of input, or framing error.
func ReadChunk(r *bufio.Reader) (Chunk, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && strings.TrimSpace(line) == "" {
			return Chunk{}, io.EOF
		}
		return Chunk{}, fmt.Errorf("read chunk header: %w", err)
	}

	header := strings.TrimSpace(line)
	if !strings.HasPrefix(header, chunkPrefix) {
		return Chunk{}, fmt.Errorf("invalid chunk header %q", header)
	}
	metaText, bodyText, ok := strings.Cut(strings.TrimPrefix(header, chunkPrefix), ",")
	if !ok {
		return Chunk{}, fmt.Errorf("invalid chunk header %q", header)
	}
	metaLen, err := parseLength(metaText)
	if err != nil {
		return Chunk{}, fmt.Errorf("chunk metadata length: %w", err)
	}
	bodyLen, err := parseLength(bodyText)
	if err != nil {
		return Chunk{}, fmt.Errorf("chunk body length: %w", err)
	}

	chunk := Chunk{Metadata: make([]byte, metaLen), Body: make([]byte, bodyLen)}
	if _, err := io.ReadFull(r, chunk.Metadata); err != nil {
		return Chunk{}, fmt.Errorf("read chunk metadata: %w", err)
	}
	if _, err := io.ReadFull(r, chunk.Body); err != nil {
		return Chunk{}, fmt.Errorf("read chunk body: %w", err)
	}
	return chunk, nil
}

// WriteChunk frames metadata (JSON encoded) and body.
// Params: w host output; metadata JSON value; body CSV bytes.
// Returns: encode or write error.
func WriteChunk(w io.Writer, metadata any, body []byte) error {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode chunk metadata: %w", err)
	}
	if _, err := fmt.Fprintf(w, "%s%d,%d\n", chunkPrefix, len(meta), len(body)); err != nil {
		return fmt.Errorf("write chunk header: %w", err)
	}
	if _, err := w.Write(meta); err != nil {
		return fmt.Errorf("write chunk metadata: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write chunk body: %w", err)
	}
	return nil
}

func parseLength(text string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, err
	}
	if n < 0 || n > maxChunkPart {
		return 0, fmt.Errorf("length %d out of range", n)
	}
	return n, nil
}
