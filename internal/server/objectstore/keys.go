package objectstore

import (
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const (
	DefaultKeyPrefix   = "audio_notes"
	DefaultFilename    = "audio.webm"
	DefaultContentType = "audio/webm"

	maxFilenameLen = 128
)

// NewKey returns "<prefix>/<yyyy>/<m>/<d>/<uuid>_<filename>". The random
// component makes keys collision free.
func NewKey(prefix, filename string, now time.Time) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return fmt.Sprintf("%s/%d/%d/%d/%s_%s", prefix, now.Year(), now.Month(), now.Day(), uuid.New(), SanitizeFilename(filename))
}

// SanitizeFilename strips directories and replaces anything outside
// [A-Za-z0-9._-] so the name is safe inside an object key.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	out := strings.Trim(b.String(), ".")
	if out == "" {
		return DefaultFilename
	}
	if len(out) > maxFilenameLen {
		out = out[len(out)-maxFilenameLen:]
	}
	return out
}

// ContentType sniffs data first, then falls back to the filename extension
// and finally to audio/webm.
func ContentType(data []byte, filename string) string {
	if len(data) > 0 {
		if mt := mimetype.Detect(data); mt != nil && !mt.Is("application/octet-stream") {
			return mt.String()
		}
	}
	if ct := mime.TypeByExtension(path.Ext(filename)); ct != "" {
		return ct
	}
	return DefaultContentType
}
