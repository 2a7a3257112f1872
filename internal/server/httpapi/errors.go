package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/audionotes/internal/common"
	"github.com/gin-gonic/gin"
)

const (
	msgNoteNotFound          = "Note not found"
	msgTranscriptionNotFound = "Transcription not found"
	msgSummaryNotFound       = "Summary not found"
	msgAudioNotFound         = "Audio not found"
	msgUploadNotFound        = "No upload recorded for this note"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrorValidation):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrInvalidTransition), errors.Is(err, common.ErrVersionConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as {"error": ...}. notFound replaces the message of a
// not-found error.
func (h *handlers) fail(c *gin.Context, err error, notFound string) {
	code := statusFor(err)
	msg := err.Error()

	switch {
	case code == http.StatusNotFound:
		msg = notFound
	case code >= http.StatusInternalServerError:
		h.logger.Error(c.Request.Context(), "request failed", "route", c.FullPath(), "error", err)
	}

	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}
