package dispatch

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/dmitrijs2005/audionotes/internal/common"
	"github.com/dmitrijs2005/audionotes/internal/server/models"
)

// Dispatcher is notified after a lifecycle mutation has been committed.
type Dispatcher interface {
	OnUploaded(ctx context.Context, n *models.Note) error
	OnTranscribed(ctx context.Context, n *models.Note) error
	OnSummarized(ctx context.Context, n *models.Note) error
	OnDeleted(ctx context.Context, n *models.Note) error
}

// Publisher delivers a single encoded event.
type Publisher interface {
	Publish(ctx context.Context, e *Event) error
	Close() error
}

type EventDispatcher struct {
	publisher Publisher
	source    string
}

func NewEventDispatcher(p Publisher) *EventDispatcher {
	return &EventDispatcher{publisher: p, source: common.ServiceName}
}

func (d *EventDispatcher) OnUploaded(ctx context.Context, n *models.Note) error {
	return d.publish(ctx, TranscriptionRequested, map[string]any{
		"note_id":      n.ID,
		"audio_path":   deref(n.AudioKey),
		"audio_format": AudioFormat(n.AudioFilename),
	})
}

func (d *EventDispatcher) OnTranscribed(ctx context.Context, n *models.Note) error {
	return d.publish(ctx, SummarizationRequested, map[string]any{
		"note_id":       n.ID,
		"transcription": deref(n.Transcription),
	})
}

func (d *EventDispatcher) OnSummarized(ctx context.Context, n *models.Note) error {
	return d.publish(ctx, NoteCompleted, map[string]any{
		"note_id": n.ID,
	})
}

func (d *EventDispatcher) OnDeleted(ctx context.Context, n *models.Note) error {
	return d.publish(ctx, DeletionRequested, map[string]any{
		"note_id":    n.ID,
		"audio_path": deref(n.AudioKey),
	})
}

func (d *EventDispatcher) publish(ctx context.Context, t EventType, data map[string]any) error {
	if err := d.publisher.Publish(ctx, NewEvent(t, d.source, data)); err != nil {
		return fmt.Errorf("publish %s: %w", t, err)
	}
	return nil
}

// AudioFormat is the lower-cased filename extension, "webm" when absent.
func AudioFormat(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if ext == "" {
		return "webm"
	}
	return ext
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
