package dispatch

import (
	"context"

	"github.com/dmitrijs2005/audionotes/internal/logging"
)

// LogPublisher only records events. Used when no brokers are configured.
type LogPublisher struct {
	logger logging.Logger
}

func NewLogPublisher(l logging.Logger) *LogPublisher {
	return &LogPublisher{logger: l.With("module", "dispatch")}
}

func (p *LogPublisher) Publish(ctx context.Context, e *Event) error {
	p.logger.Info(ctx, "event dispatched",
		"event_id", e.ID,
		"type", string(e.Type),
		"note_id", e.NoteID(),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
