// Package progress keeps a short-lived record of upload sessions so that
// clients and operators can see how far an upload got.
package progress

import (
	"context"
	"time"
)

const (
	DefaultTTL        = time.Hour
	DefaultStaleAfter = time.Minute
)

// Snapshot is the latest known state of an upload session.
type Snapshot struct {
	NoteID    string    `json:"note_id"`
	SessionID string    `json:"session_id"`
	Filename  string    `json:"filename,omitempty"`
	Declared  int64     `json:"file_size"`
	Received  int64     `json:"received"`
	Progress  float64   `json:"progress"`
	State     string    `json:"state"`
	Message   string    `json:"message,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SupersededBy reports whether stored belongs to another session that
// started after s. Trackers drop such saves so an abandoned session cannot
// overwrite the progress of the one that replaced it.
func (s *Snapshot) SupersededBy(stored *Snapshot) bool {
	return stored.SessionID != s.SessionID && stored.StartedAt.After(s.StartedAt)
}

// Finished reports whether the session reached a terminal state.
func (s *Snapshot) Finished() bool {
	return s.State == "completed" || s.State == "failed"
}

// Active reports a session that is still running and was updated within
// staleAfter of now.
func (s *Snapshot) Active(now time.Time, staleAfter time.Duration) bool {
	if s.Finished() {
		return false
	}
	return now.Sub(s.UpdatedAt) <= staleAfter
}

// Stale reports an unfinished session that stopped reporting.
func (s *Snapshot) Stale(now time.Time, staleAfter time.Duration) bool {
	return !s.Finished() && now.Sub(s.UpdatedAt) > staleAfter
}

type Tracker interface {
	// Save is a no-op when a later session already owns the note's record.
	Save(ctx context.Context, s Snapshot) error
	// Get returns common.ErrorNotFound when no session was recorded.
	Get(ctx context.Context, noteID string) (*Snapshot, error)
}
