package models

import (
	"database/sql"
	"strings"
	"time"
)

// PlaceholderAudioFilename is stored until the first upload completes.
const PlaceholderAudioFilename = "pending_upload.webm"

// Note is one audio capture and the text derived from it.
type Note struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Title         string    `json:"title"`
	Body          string    `json:"notes"`
	Tags          []string  `json:"tags"`
	AudioFilename string    `json:"audio_filename"`
	AudioKey      *string   `json:"audio_path"`
	AudioURL      *string   `json:"audio_url"`
	Transcription *string   `json:"transcription"`
	Summary       *string   `json:"summary"`
	Status        Status    `json:"status"`
	Revision      int64     `json:"revision"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasAudio reports whether an object is attached to the note.
func (n *Note) HasAudio() bool {
	return n.AudioKey != nil && *n.AudioKey != ""
}

// NotePatch is a partial update. Nil fields are left untouched; for nullable
// columns a non-nil sql.NullString with Valid=false writes NULL.
type NotePatch struct {
	Title         *string
	Body          *string
	Tags          *[]string
	AudioFilename *string
	AudioKey      *sql.NullString
	AudioURL      *sql.NullString
	Transcription *sql.NullString
	Summary       *sql.NullString
	Status        *Status
}

// Empty reports whether the patch changes nothing.
func (p NotePatch) Empty() bool {
	return p.Title == nil && p.Body == nil && p.Tags == nil && p.AudioFilename == nil &&
		p.AudioKey == nil && p.AudioURL == nil && p.Transcription == nil && p.Summary == nil &&
		p.Status == nil
}

// ListFilter narrows List results. Zero values disable a predicate.
type ListFilter struct {
	Search string
	Status Status
	Tags   []string
}

// NormalizeTags trims tags, drops blanks and duplicates, keeps first-seen
// order and never returns nil.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Null wraps s for NotePatch nullable fields.
func Null(s string) *sql.NullString {
	return &sql.NullString{String: s, Valid: true}
}

// SetNull clears a nullable column in a NotePatch.
func SetNull() *sql.NullString {
	return &sql.NullString{}
}
