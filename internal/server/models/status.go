package models

import (
	"fmt"

	"github.com/dmitrijs2005/audionotes/internal/common"
)

// Status is the lifecycle state of a note.
type Status string

const (
	StatusPending              Status = "pending"
	StatusUploading            Status = "uploading"
	StatusPendingTranscription Status = "pending_transcription"
	StatusPendingSummarization Status = "pending_summarization"
	StatusCompleted            Status = "completed"
	StatusError                Status = "error"
)

// Statuses lists every valid status in pipeline order.
var Statuses = []Status{
	StatusPending,
	StatusUploading,
	StatusPendingTranscription,
	StatusPendingSummarization,
	StatusCompleted,
	StatusError,
}

// transitions holds the forward moves. Reset (completed/error -> pending)
// is deliberately absent and only reachable through Reset.
var transitions = map[Status][]Status{
	StatusPending:              {StatusUploading, StatusError},
	StatusUploading:            {StatusUploading, StatusPendingTranscription, StatusError},
	StatusPendingTranscription: {StatusPendingSummarization, StatusError},
	StatusPendingSummarization: {StatusCompleted, StatusError},
}

// ParseStatus validates s against the closed set of statuses.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: unknown status %q", common.ErrorValidation, s)
}

func (s Status) String() string {
	return string(s)
}

// Terminal reports whether s only accepts an explicit reset.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// CanTransitionTo reports whether next is a legal forward move from s.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionTo returns next if the move is legal, otherwise an
// *InvalidTransitionError.
func (s Status) TransitionTo(next Status) (Status, error) {
	if !s.CanTransitionTo(next) {
		return s, &InvalidTransitionError{From: s, To: next}
	}
	return next, nil
}

// Reset returns StatusPending for terminal statuses.
func (s Status) Reset() (Status, error) {
	if !s.Terminal() {
		return s, &InvalidTransitionError{From: s, To: StatusPending}
	}
	return StatusPending, nil
}

// InvalidTransitionError is returned for illegal status moves.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move note from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return common.ErrInvalidTransition
}
