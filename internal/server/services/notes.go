// Package services contains server-side business logic. NoteService owns
// the note lifecycle: CRUD, status transitions guarded by the status table
// and a revision check, object reclamation and pipeline notifications.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/audionotes/internal/common"
	"github.com/dmitrijs2005/audionotes/internal/dbx"
	"github.com/dmitrijs2005/audionotes/internal/logging"
	"github.com/dmitrijs2005/audionotes/internal/server/config"
	"github.com/dmitrijs2005/audionotes/internal/server/dispatch"
	"github.com/dmitrijs2005/audionotes/internal/server/models"
	"github.com/dmitrijs2005/audionotes/internal/server/objectstore"
	"github.com/dmitrijs2005/audionotes/internal/server/repositories/notes"
	"github.com/dmitrijs2005/audionotes/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const (
	maxTitleLen  = 255
	MaxListLimit = 1000
)

type CreateNoteInput struct {
	Title string
	Body  string
	Tags  []string
}

// UpdateNoteInput carries the user-editable fields. Nil means unchanged.
type UpdateNoteInput struct {
	Title *string
	Body  *string
	Tags  *[]string
}

type NoteService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       objectstore.Store
	dispatcher  dispatch.Dispatcher
	logger      logging.Logger
	presignTTL  time.Duration
	ownerID     string
}

func NewNoteService(db *sql.DB, m repomanager.RepositoryManager, store objectstore.Store,
	d dispatch.Dispatcher, logger logging.Logger, cfg *config.Config) *NoteService {
	return &NoteService{
		db:          db,
		repomanager: m,
		store:       store,
		dispatcher:  d,
		logger:      logger.With("module", "notes"),
		presignTTL:  cfg.PresignTTL,
		ownerID:     cfg.DefaultOwnerID,
	}
}

func (s *NoteService) repo() notes.Repository {
	return s.repomanager.Notes(s.db)
}

// checkID maps malformed ids to ErrorNotFound so they never reach the
// database (Postgres would reject them with a type error).
func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return common.ErrorNotFound
	}
	return nil
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("%w: title is required", common.ErrorValidation)
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return "", fmt.Errorf("%w: title is longer than %d characters", common.ErrorValidation, maxTitleLen)
	}
	return title, nil
}

func (s *NoteService) Create(ctx context.Context, in CreateNoteInput) (*models.Note, error) {
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}

	n := &models.Note{
		ID:            uuid.NewString(),
		UserID:        s.ownerID,
		Title:         title,
		Body:          in.Body,
		Tags:          models.NormalizeTags(in.Tags),
		AudioFilename: models.PlaceholderAudioFilename,
		Status:        models.StatusPending,
	}
	if err := s.repo().Create(ctx, n); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "note created", "note_id", n.ID)
	return n, nil
}

func (s *NoteService) Get(ctx context.Context, id string) (*models.Note, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	return s.repo().Get(ctx, id)
}

func (s *NoteService) List(ctx context.Context, offset, limit int, filter models.ListFilter) ([]*models.Note, error) {
	if offset < 0 {
		return nil, fmt.Errorf("%w: skip must be >= 0", common.ErrorValidation)
	}
	if limit < 1 || limit > MaxListLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", common.ErrorValidation, MaxListLimit)
	}
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Tags = models.NormalizeTags(filter.Tags)

	return s.repo().List(ctx, offset, limit, filter)
}

// Update edits title, body and tags. Status and audio fields are only
// changed through the lifecycle operations.
func (s *NoteService) Update(ctx context.Context, id string, in UpdateNoteInput) (*models.Note, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}

	var patch models.NotePatch
	if in.Title != nil {
		title, err := validateTitle(*in.Title)
		if err != nil {
			return nil, err
		}
		patch.Title = &title
	}
	patch.Body = in.Body
	if in.Tags != nil {
		tags := models.NormalizeTags(*in.Tags)
		patch.Tags = &tags
	}

	if patch.Empty() {
		return s.repo().Get(ctx, id)
	}
	return s.repo().Update(ctx, id, patch, nil)
}

// Delete removes the record, then the audio object. It returns false when
// the note did not exist.
func (s *NoteService) Delete(ctx context.Context, id string) (bool, error) {
	if err := checkID(id); err != nil {
		return false, nil
	}

	deleted, err := dbx.InTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*models.Note, error) {
		repo := s.repomanager.Notes(tx)

		n, err := repo.Get(ctx, id)
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if _, err := repo.Delete(ctx, id); err != nil {
			return nil, err
		}
		return n, nil
	})
	if err != nil {
		return false, err
	}
	if deleted == nil {
		return false, nil
	}

	s.reclaim(ctx, deleted)
	if err := s.dispatcher.OnDeleted(ctx, deleted); err != nil {
		s.logger.Error(ctx, "dispatch failed", "note_id", id, "event", "deleted", "error", err)
	}
	s.logger.Info(ctx, "note deleted", "note_id", id)
	return true, nil
}

// reclaim deletes the note's audio object. Failures are only logged.
func (s *NoteService) reclaim(ctx context.Context, n *models.Note) {
	if !n.HasAudio() {
		return
	}
	if _, err := s.store.Delete(ctx, *n.AudioKey); err != nil {
		s.logger.Warn(ctx, "failed to delete audio object", "note_id", n.ID, "key", *n.AudioKey, "error", err)
	}
}

// transition reads the note, validates the move and applies patch with a
// revision check. expected overrides the revision read from the store.
func (s *NoteService) transition(ctx context.Context, id string, next models.Status, patch models.NotePatch, expected *int64) (*models.Note, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	repo := s.repo()

	n, err := repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if expected != nil && *expected != n.Revision {
		return nil, common.ErrVersionConflict
	}

	st, err := n.Status.TransitionTo(next)
	if err != nil {
		return nil, err
	}
	patch.Status = &st

	rev := n.Revision
	return repo.Update(ctx, id, patch, &rev)
}

// MarkUploading moves a pending (or retried uploading) note to uploading.
// The returned revision is what CompleteUpload must be given.
func (s *NoteService) MarkUploading(ctx context.Context, id string) (*models.Note, error) {
	return s.transition(ctx, id, models.StatusUploading, models.NotePatch{}, nil)
}

// CompleteUpload attaches the stored object and queues transcription in a
// single update. It fails with ErrVersionConflict when the note changed
// since revision was read, e.g. because a newer upload session started.
func (s *NoteService) CompleteUpload(ctx context.Context, id string, revision int64, filename, key, url string) (*models.Note, error) {
	patch := models.NotePatch{
		AudioFilename: &filename,
		AudioKey:      models.Null(key),
		AudioURL:      models.Null(url),
	}
	n, err := s.transition(ctx, id, models.StatusPendingTranscription, patch, &revision)
	if err != nil {
		return nil, err
	}

	if err := s.dispatcher.OnUploaded(ctx, n); err != nil {
		s.logger.Error(ctx, "dispatch failed", "note_id", id, "event", "uploaded", "error", err)
	}
	return n, nil
}

func (s *NoteService) MarkTranscribed(ctx context.Context, id, text string) (*models.Note, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: transcription is empty", common.ErrorValidation)
	}
	n, err := s.transition(ctx, id, models.StatusPendingSummarization, models.NotePatch{Transcription: models.Null(text)}, nil)
	if err != nil {
		return nil, err
	}

	if err := s.dispatcher.OnTranscribed(ctx, n); err != nil {
		s.logger.Error(ctx, "dispatch failed", "note_id", id, "event", "transcribed", "error", err)
	}
	return n, nil
}

func (s *NoteService) MarkSummarized(ctx context.Context, id, text string) (*models.Note, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: summary is empty", common.ErrorValidation)
	}
	n, err := s.transition(ctx, id, models.StatusCompleted, models.NotePatch{Summary: models.Null(text)}, nil)
	if err != nil {
		return nil, err
	}

	if err := s.dispatcher.OnSummarized(ctx, n); err != nil {
		s.logger.Error(ctx, "dispatch failed", "note_id", id, "event", "summarized", "error", err)
	}
	return n, nil
}

func (s *NoteService) MarkError(ctx context.Context, id, reason string) (*models.Note, error) {
	n, err := s.transition(ctx, id, models.StatusError, models.NotePatch{}, nil)
	if err != nil {
		return nil, err
	}
	s.logger.Warn(ctx, "note marked as failed", "note_id", id, "reason", reason)
	return n, nil
}

// FailUpload marks the note failed on behalf of the upload session that
// moved it to uploading at revision. It returns ErrVersionConflict and leaves
// the note alone when a newer session has taken over since.
func (s *NoteService) FailUpload(ctx context.Context, id string, revision int64, reason string) (*models.Note, error) {
	n, err := s.transition(ctx, id, models.StatusError, models.NotePatch{}, &revision)
	if err != nil {
		return nil, err
	}
	s.logger.Warn(ctx, "upload failed, note marked as failed", "note_id", id, "revision", revision, "reason", reason)
	return n, nil
}

// Reset returns a completed or failed note to pending, dropping its audio
// and derived text.
func (s *NoteService) Reset(ctx context.Context, id string) (*models.Note, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	repo := s.repo()

	n, err := repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	st, err := n.Status.Reset()
	if err != nil {
		return nil, err
	}

	placeholder := models.PlaceholderAudioFilename
	patch := models.NotePatch{
		Status:        &st,
		AudioFilename: &placeholder,
		AudioKey:      models.SetNull(),
		AudioURL:      models.SetNull(),
		Transcription: models.SetNull(),
		Summary:       models.SetNull(),
	}
	rev := n.Revision
	updated, err := repo.Update(ctx, id, patch, &rev)
	if err != nil {
		return nil, err
	}

	s.reclaim(ctx, n)
	s.logger.Info(ctx, "note reset", "note_id", id)
	return updated, nil
}

func (s *NoteService) Transcription(ctx context.Context, id string) (string, error) {
	n, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if n.Transcription == nil {
		return "", fmt.Errorf("transcription: %w", common.ErrorNotFound)
	}
	return *n.Transcription, nil
}

func (s *NoteService) Summary(ctx context.Context, id string) (string, error) {
	n, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if n.Summary == nil {
		return "", fmt.Errorf("summary: %w", common.ErrorNotFound)
	}
	return *n.Summary, nil
}

// AudioURL presigns a fresh retrieval URL for the note's audio.
func (s *NoteService) AudioURL(ctx context.Context, id string) (string, time.Duration, error) {
	n, err := s.Get(ctx, id)
	if err != nil {
		return "", 0, err
	}
	if !n.HasAudio() {
		return "", 0, fmt.Errorf("audio: %w", common.ErrorNotFound)
	}

	ttl := s.presignTTL
	if ttl <= 0 {
		ttl = objectstore.DefaultPresignTTL
	}
	url, err := s.store.Presign(ctx, *n.AudioKey, ttl)
	if err != nil {
		return "", 0, err
	}
	return url, ttl, nil
}

const healthOK = "ok"

// HealthReport describes dependency health: "ok" or the failure text.
type HealthReport struct {
	Database string `json:"database"`
	Storage  string `json:"storage"`
}

func (r HealthReport) Healthy() bool {
	return r.Database == healthOK && r.Storage == healthOK
}

func (s *NoteService) Health(ctx context.Context) HealthReport {
	r := HealthReport{Database: healthOK, Storage: healthOK}
	if err := s.db.PingContext(ctx); err != nil {
		r.Database = err.Error()
	}
	if err := s.store.HealthCheck(ctx); err != nil {
		r.Storage = err.Error()
	}
	return r
}
