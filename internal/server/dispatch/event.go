// Package dispatch hands note lifecycle events to the downstream
// transcription and summarization pipeline.
package dispatch

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	TranscriptionRequested EventType = "note.transcription.requested"
	SummarizationRequested EventType = "note.summarization.requested"
	NoteCompleted          EventType = "note.completed"
	DeletionRequested      EventType = "note.deletion.requested"
)

type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Data      map[string]any `json:"data"`
}

func NewEvent(eventType EventType, source string, data map[string]any) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Data:      data,
	}
}

func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// NoteID returns the note the event refers to, used as the partition key.
func (e *Event) NoteID() string {
	id, _ := e.Data["note_id"].(string)
	return id
}
