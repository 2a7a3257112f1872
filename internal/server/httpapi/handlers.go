package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/audionotes/internal/common"
	"github.com/dmitrijs2005/audionotes/internal/logging"
	"github.com/dmitrijs2005/audionotes/internal/server/models"
	"github.com/dmitrijs2005/audionotes/internal/server/progress"
	"github.com/dmitrijs2005/audionotes/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const defaultListLimit = 100

type handlers struct {
	notes   NoteService
	uploads Uploader
	tracker progress.Tracker
	logger  logging.Logger

	staleAfter   time.Duration
	writeTimeout time.Duration
	readLimit    int64
	upgrader     websocket.Upgrader
	now          func() time.Time
}

type createNoteRequest struct {
	Title string   `json:"title" binding:"required"`
	Tags  []string `json:"tags"`
	Notes string   `json:"notes"`
}

type updateNoteRequest struct {
	Title *string   `json:"title"`
	Tags  *[]string `json:"tags"`
	Notes *string   `json:"notes"`
}

type transcriptionRequest struct {
	Transcription string `json:"transcription" binding:"required"`
}

type summaryRequest struct {
	Summary string `json:"summary" binding:"required"`
}

type errorRequest struct {
	Reason string `json:"reason"`
}

// uploadStatusResponse is a progress snapshot plus a staleness flag for
// sessions that stopped reporting without finishing.
type uploadStatusResponse struct {
	progress.Snapshot
	Stale bool `json:"stale"`
}

func (h *handlers) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Audio Notes API is running!",
		"service": common.ServiceName,
	})
}

func (h *handlers) health(c *gin.Context) {
	report := h.notes.Health(c.Request.Context())

	status, code := "healthy", http.StatusOK
	if !report.Healthy() {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"service":   common.ServiceName,
		"database":  report.Database,
		"storage":   report.Storage,
		"timestamp": h.now().Unix(),
	})
}

// queryInt returns def when the parameter is absent.
func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// queryTags accepts repeated and comma-separated tags parameters.
func queryTags(c *gin.Context) []string {
	var tags []string
	for _, v := range c.QueryArray("tags") {
		tags = append(tags, strings.Split(v, ",")...)
	}
	return tags
}

func (h *handlers) listNotes(c *gin.Context) {
	skip, err := queryInt(c, "skip", 0)
	if err != nil {
		badRequest(c, "skip must be an integer")
		return
	}
	limit, err := queryInt(c, "limit", defaultListLimit)
	if err != nil {
		badRequest(c, "limit must be an integer")
		return
	}

	filter := models.ListFilter{
		Search: c.Query("search"),
		Tags:   queryTags(c),
	}
	if raw := c.Query("status"); raw != "" {
		st, err := models.ParseStatus(raw)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		filter.Status = st
	}

	notes, err := h.notes.List(c.Request.Context(), skip, limit, filter)
	if err != nil {
		h.fail(c, err, msgNoteNotFound)
		return
	}
	if notes == nil {
		notes = []*models.Note{}
	}
	c.JSON(http.StatusOK, notes)
}

func (h *handlers) createNote(c *gin.Context) {
	var req createNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	n, err := h.notes.Create(c.Request.Context(), services.CreateNoteInput{
		Title: req.Title,
		Body:  req.Notes,
		Tags:  req.Tags,
	})
	if err != nil {
		h.fail(c, err, msgNoteNotFound)
		return
	}
	c.JSON(http.StatusCreated, n)
}

func (h *handlers) getNote(c *gin.Context) {
	n, err := h.notes.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, msgNoteNotFound)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *handlers) updateNote(c *gin.Context) {
	var req updateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	n, err := h.notes.Update(c.Request.Context(), c.Param("id"), services.UpdateNoteInput{
		Title: req.Title,
		Body:  req.Notes,
		Tags:  req.Tags,
	})
	if err != nil {
		h.fail(c, err, msgNoteNotFound)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *handlers) deleteNote(c *gin.Context) {
	ok, err := h.notes.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, msgNoteNotFound)
		return
	}
	if !ok {
		h.fail(c, common.ErrorNotFound, msgNoteNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) getTranscription(c *gin.Context) {
	text, err := h.notes.Transcription(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, notFoundText(err, msgTranscriptionNotFound))
		return
	}
	c.JSON(http.StatusOK, gin.H{"transcription": text})
}

func (h *handlers) getSummary(c *gin.Context) {
	text, err := h.notes.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, notFoundText(err, msgSummaryNotFound))
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": text})
}

// notFoundText tells a missing note from a missing field of an existing
// note. Only the field lookups wrap the sentinel with a prefix.
func notFoundText(err error, field string) string {
	if errors.Is(err, common.ErrorNotFound) && err != common.ErrorNotFound {
		return field
	}
	return msgNoteNotFound
}

func (h *handlers) putTranscription(c *gin.Context) {
	var req transcriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	n, err := h.notes.MarkTranscribed(c.Request.Context(), c.Param("id"), req.Transcription)
	if err != nil {
		h.fail(c, err, msgNoteNotFound)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *handlers) putSummary(c *gin.Context) {
	var req summaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	n, err := h.notes.MarkSummarized(c.Request.Context(), c.Param("id"), req.Summary)
	if err != nil {
		h.fail(c, err, msgNoteNotFound)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *handlers) markError(c *gin.Context) {
	var req errorRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "marked failed by client"
	}

	n, err := h.notes.MarkError(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		h.fail(c, err, msgNoteNotFound)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *handlers) reset(c *gin.Context) {
	n, err := h.notes.Reset(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, msgNoteNotFound)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *handlers) audio(c *gin.Context) {
	url, ttl, err := h.notes.AudioURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, notFoundText(err, msgAudioNotFound))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"audio_url":  url,
		"expires_in": int64(ttl / time.Second),
	})
}

func (h *handlers) uploadStatus(c *gin.Context) {
	snap, err := h.tracker.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, msgUploadNotFound)
		return
	}

	staleAfter := h.staleAfter
	if staleAfter <= 0 {
		staleAfter = progress.DefaultStaleAfter
	}
	c.JSON(http.StatusOK, uploadStatusResponse{
		Snapshot: *snap,
		Stale:    snap.Stale(h.now(), staleAfter),
	})
}
