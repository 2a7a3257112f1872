package common

// NoteIDHeaderName is the gRPC metadata key carrying the target note id of
// an upload stream.
const NoteIDHeaderName = "note-id"

// ServiceName identifies this backend in events and health responses.
const ServiceName = "audionotes"
