package command

import (
	"context"
	"fmt"
	"log/slog"

	"sfxforwarder/internal/payload"
	"sfxforwarder/internal/record"
)

// DatapointCommand forwards gauge_, counter_ and cumulative_counter_ fields as datapoints.
type DatapointCommand struct {
	settings Settings
}

// NewDatapointCommand creates the tosfx transformer.
func NewDatapointCommand(settings Settings) *DatapointCommand {
	return &DatapointCommand{settings: settings.withDefaults()}
}

// Name returns the search command name.
func (c *DatapointCommand) Name() string {
	return "tosfx"
}

// Transform classifies every record into one batch and posts it once.
// Params: ctx request lifecycle; records host batch, mutated in place.
// Returns: the same records in input order or an error aborting the batch.
func (c *DatapointCommand) Transform(ctx context.Context, records []*record.Record) ([]*record.Record, error) {
	s := c.settings
	batch := payload.NewDatapointBatch()

	for idx, rec := range records {
		points, err := s.Classifier.Datapoints(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", idx, err)
		}
		points.MergeInto(batch)

		if s.Options.Debug {
			rec.Set(FieldToken, s.Options.AccessToken)
			rec.Set(FieldEndpoint, s.Options.Target())
		}
	}

	s.Logger.Debug(
		"datapoints classified",
		slog.Int("records", len(records)),
		slog.Int("datapoints", batch.Len()),
		slog.Bool("dry_run", s.Options.DryRun),
	)
	if s.Options.DryRun {
		return records, nil
	}

	body, err := s.Encoder.Datapoints(batch)
	if err != nil {
		return nil, fmt.Errorf("encode datapoints: %w", err)
	}
	s.logPayload(ctx, body)

	if err := s.send(ctx, records, body); err != nil {
		return nil, err
	}
	return records, nil
}
