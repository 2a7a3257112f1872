package upload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

// DefaultFilename is used when the metadata frame omits a filename.
const DefaultFilename = "audio.webm"

// Server message statuses.
const (
	StatusReady     = "ready"
	StatusProgress  = "progress"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// CompletedMessage is the text sent with a successful upload.
const CompletedMessage = "Audio uploaded and processing started"

// Message is a server-to-client control message.
type Message struct {
	Status   string   `json:"status"`
	Progress *float64 `json:"progress,omitempty"`
	Received *int64   `json:"received,omitempty"`
	FileKey  string   `json:"file_key,omitempty"`
	AudioURL string   `json:"audio_url,omitempty"`
	Message  string   `json:"message,omitempty"`
	Code     string   `json:"code,omitempty"`
}

func readyMessage() Message {
	return Message{Status: StatusReady}
}

func progressMessage(received, declared int64) Message {
	p := Progress(received, declared)
	return Message{Status: StatusProgress, Progress: &p, Received: &received}
}

func completedMessage(key, url string) Message {
	return Message{Status: StatusCompleted, Message: CompletedMessage, FileKey: key, AudioURL: url}
}

func errorMessage(e *SessionError) Message {
	return Message{Status: StatusError, Code: string(e.Kind), Message: e.Message}
}

// Progress is received/declared as a percentage rounded to two decimals.
// It exceeds 100 when the last chunk overshoots the declared size.
func Progress(received, declared int64) float64 {
	if declared <= 0 {
		return 0
	}
	return math.Round(float64(received)/float64(declared)*100*100) / 100
}

// Metadata is the first client frame of a session.
type Metadata struct {
	Filename string
	FileSize int64
}

// ParseMetadata decodes {"filename": string?, "file_size": int}. maxBytes
// <= 0 disables the size limit.
func ParseMetadata(data []byte, maxBytes int64) (Metadata, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return Metadata{}, fmt.Errorf("malformed JSON: %w", err)
	}
	if raw == nil {
		return Metadata{}, errors.New("metadata must be a JSON object")
	}

	m := Metadata{Filename: DefaultFilename}

	if v, ok := raw["filename"]; ok && v != nil {
		name, ok := v.(string)
		if !ok {
			return Metadata{}, errors.New("filename must be a string")
		}
		if strings.TrimSpace(name) != "" {
			m.Filename = name
		}
	}

	v, ok := raw["file_size"]
	if !ok || v == nil {
		return Metadata{}, errors.New("file_size is required")
	}
	num, ok := v.(json.Number)
	if !ok {
		return Metadata{}, errors.New("file_size must be an integer")
	}
	size, err := num.Int64()
	if err != nil {
		return Metadata{}, errors.New("file_size must be an integer")
	}
	if size <= 0 {
		return Metadata{}, errors.New("file_size must be positive")
	}
	if maxBytes > 0 && size > maxBytes {
		return Metadata{}, fmt.Errorf("file_size exceeds the %s limit", humanize.IBytes(uint64(maxBytes)))
	}
	m.FileSize = size

	return m, nil
}
