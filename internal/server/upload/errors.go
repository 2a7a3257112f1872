package upload

// ErrorKind classifies why a session failed. It is sent to the client as
// the "code" field.
type ErrorKind string

const (
	KindNotFound       ErrorKind = "not_found"
	KindValidation     ErrorKind = "validation"
	KindTimeout        ErrorKind = "timeout"
	KindTransport      ErrorKind = "transport"
	KindStore          ErrorKind = "store"
	KindConflict       ErrorKind = "conflict"
	KindPartialFailure ErrorKind = "partial_failure"
)

// SessionError ends an upload session. Message is client-facing.
type SessionError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *SessionError) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *SessionError) Unwrap() error {
	return e.Err
}
