// Package common defines shared constants and sentinel errors used across
// the server, the upload protocol and the notesctl client. Callers should
// use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")

	// Service-level errors.
	ErrorInternal        = errors.New("internal error")
	ErrorValidation      = errors.New("validation error")
	ErrInvalidTransition = errors.New("invalid status transition")
)
