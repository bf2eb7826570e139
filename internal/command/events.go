package command

import (
	"context"
	"fmt"
	"log/slog"

	"sfxforwarder/internal/payload"
	"sfxforwarder/internal/record"
)

// EventCommand forwards each record as one custom event.
type EventCommand struct {
	settings Settings
}

// NewEventCommand creates the tosfxevents transformer.
func NewEventCommand(settings Settings) *EventCommand {
	return &EventCommand{settings: settings.withDefaults()}
}

// Name returns the search command name.
func (c *EventCommand) Name() string {
	return "tosfxevents"
}

// Transform builds one event per record and posts the batch once.
// Params: ctx request lifecycle; records host batch, mutated in place.
// Returns: the same records in input order or an error aborting the batch.
func (c *EventCommand) Transform(ctx context.Context, records []*record.Record) ([]*record.Record, error) {
	s := c.settings
	batch := payload.NewEventBatch()

	for idx, rec := range records {
		event, err := s.Classifier.Event(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", idx, err)
		}
		batch.Append(event)

		if s.Options.Debug {
			rec.Set(FieldEndpoint, s.Options.Target())
		}
	}

	s.Logger.Debug(
		"events classified",
		slog.Int("records", len(records)),
		slog.Bool("dry_run", s.Options.DryRun),
	)
	if s.Options.DryRun {
		return records, nil
	}

	body, err := s.Encoder.Events(batch)
	if err != nil {
		return nil, fmt.Errorf("encode events: %w", err)
	}
	s.logPayload(ctx, body)

	if err := s.send(ctx, records, body); err != nil {
		return nil, err
	}
	return records, nil
}
