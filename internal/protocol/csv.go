package protocol

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"sfxforwarder/internal/record"
)

// DecodeRecords parses a CSV body whose first row names the fields.
// Params: r CSV stream; empty input yields no records.
// Returns: records in row order, fields in column order.
func DecodeRecords(r io.Reader) ([]*record.Record, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}

	var records []*record.Record
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV row %d: %w", len(records)+1, err)
		}

		rec := record.New()
		for idx, name := range header {
			rec.Set(name, row[idx])
		}
		records = append(records, rec)
	}
}

// EncodeRecords writes records as CSV; the header is every field in first-seen order.
// Params: records output batch.
// Returns: CSV bytes (empty for no records) or write error.
func EncodeRecords(records []*record.Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, nil
	}

	seen := make(map[string]struct{})
	var header []string
	for _, rec := range records {
		rec.Range(func(key, _ string) bool {
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				header = append(header, key)
			}
			return true
		})
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("write CSV header: %w", err)
	}
	row := make([]string, len(header))
	for _, rec := range records {
		for idx, name := range header {
			value, _ := rec.Get(name)
			row[idx] = value
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("write CSV row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush CSV: %w", err)
	}
	return buf.Bytes(), nil
}
