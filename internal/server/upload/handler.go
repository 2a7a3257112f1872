// Package upload implements the chunked audio upload protocol spoken over a
// persistent duplex connection (WebSocket or gRPC stream):
//
//	client: {"filename": "...", "file_size": N}
//	server: {"status": "ready"}
//	client: binary chunk        \  repeated until N bytes
//	server: {"status": "progress", ...} /
//	server: {"status": "completed", ...} or {"status": "error", ...}
package upload

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/audionotes/internal/common"
	"github.com/dmitrijs2005/audionotes/internal/logging"
	"github.com/dmitrijs2005/audionotes/internal/server/config"
	"github.com/dmitrijs2005/audionotes/internal/server/models"
	"github.com/dmitrijs2005/audionotes/internal/server/objectstore"
	"github.com/dmitrijs2005/audionotes/internal/server/progress"
	"github.com/dustin/go-humanize"
	"github.com/rs/xid"
)

// State is the session state.
type State string

const (
	StateAwaitingMetadata State = "awaiting_metadata"
	StateAwaitingPayload  State = "awaiting_payload"
	StateTransferring     State = "transferring"
	StateFinalizing       State = "finalizing"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
)

// progressSaveInterval throttles tracker writes during transfer.
const progressSaveInterval = 500 * time.Millisecond

var errFrameTimeout = errors.New("timed out waiting for frame")

// Lifecycle is the part of the note service an upload session drives.
type Lifecycle interface {
	Get(ctx context.Context, id string) (*models.Note, error)
	MarkUploading(ctx context.Context, id string) (*models.Note, error)
	CompleteUpload(ctx context.Context, id string, revision int64, filename, key, url string) (*models.Note, error)
	FailUpload(ctx context.Context, id string, revision int64, reason string) (*models.Note, error)
}

type Options struct {
	MetadataTimeout time.Duration
	ChunkTimeout    time.Duration
	PresignTTL      time.Duration
	MaxUploadBytes  int64
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MetadataTimeout: cfg.MetadataTimeout,
		ChunkTimeout:    cfg.ChunkTimeout,
		PresignTTL:      cfg.PresignTTL,
		MaxUploadBytes:  cfg.MaxUploadBytes,
	}
}

// Handler runs upload sessions. It is safe for concurrent use; every call
// to Serve owns its own session state.
type Handler struct {
	notes   Lifecycle
	store   objectstore.Store
	tracker progress.Tracker
	logger  logging.Logger
	opts    Options
	now     func() time.Time

	mu       sync.Mutex
	draining bool
	sessions sync.WaitGroup
}

func NewHandler(notes Lifecycle, store objectstore.Store, tracker progress.Tracker, logger logging.Logger, opts Options) *Handler {
	return &Handler{
		notes:   notes,
		store:   store,
		tracker: tracker,
		logger:  logger.With("module", "upload"),
		opts:    opts,
		now:     time.Now,
	}
}

type session struct {
	h      *Handler
	id     string
	noteID string
	t      Transport
	logger logging.Logger

	frames <-chan frameResult
	done   chan struct{}

	state    State
	started  time.Time
	tracking bool
	meta     Metadata
	revision int64
	buf      bytes.Buffer
	received int64
	lastSave time.Time
	message  string
}

// Serve runs one session on t for noteID and returns the terminal state.
// The transport is always closed on return.
func (h *Handler) Serve(ctx context.Context, t Transport, noteID string) State {
	s := &session{
		h:       h,
		id:      xid.New().String(),
		noteID:  noteID,
		t:       t,
		done:    make(chan struct{}),
		state:   StateAwaitingMetadata,
		started: h.now(),
	}
	s.logger = h.logger.With("note_id", noteID, "session_id", s.id)

	if !h.enter() {
		s.fail(ctx, &SessionError{Kind: KindTransport, Message: "Server is shutting down"})
		_ = t.Close()
		return s.state
	}
	defer h.sessions.Done()

	defer func() {
		close(s.done)
		if err := t.Close(); err != nil {
			s.logger.Debug(ctx, "transport close failed", "error", err)
		}
	}()

	if err := s.run(ctx); err != nil {
		s.fail(ctx, err)
	}
	return s.state
}

func (h *Handler) enter() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.draining {
		return false
	}
	h.sessions.Add(1)
	return true
}

// Drain stops accepting sessions and waits for running ones, including
// detached finalization, to return. It gives up when ctx is done.
func (h *Handler) Drain(ctx context.Context) error {
	h.mu.Lock()
	h.draining = true
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) run(ctx context.Context) error {
	if _, err := s.h.notes.Get(ctx, s.noteID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return &SessionError{Kind: KindNotFound, Message: "Note not found", Err: err}
		}
		return &SessionError{Kind: KindStore, Message: "Upload failed: " + err.Error(), Err: err}
	}

	s.warnIfActive(ctx)

	n, err := s.h.notes.MarkUploading(ctx, s.noteID)
	if err != nil {
		return s.lifecycleError(err)
	}
	s.revision = n.Revision
	s.tracking = true
	s.track(ctx, true)

	s.frames = pumpFrames(s.t, s.done)

	if err := s.receiveMetadata(ctx); err != nil {
		return err
	}
	if err := s.receivePayload(ctx); err != nil {
		return err
	}
	return s.finalize(ctx)
}

func (s *session) lifecycleError(err error) *SessionError {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return &SessionError{Kind: KindNotFound, Message: "Note not found", Err: err}
	case errors.Is(err, common.ErrInvalidTransition):
		return &SessionError{Kind: KindValidation, Message: "Note cannot accept an upload: " + err.Error(), Err: err}
	case errors.Is(err, common.ErrVersionConflict):
		return &SessionError{Kind: KindConflict, Message: "Note was modified concurrently", Err: err}
	default:
		return &SessionError{Kind: KindStore, Message: "Upload failed: " + err.Error(), Err: err}
	}
}

// warnIfActive logs when the tracker shows another live session for the
// note. The newer session is allowed to proceed; the revision check decides
// which one finalizes.
func (s *session) warnIfActive(ctx context.Context) {
	snap, err := s.h.tracker.Get(ctx, s.noteID)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			s.logger.Warn(ctx, "progress lookup failed", "error", err)
		}
		return
	}
	staleAfter := s.h.opts.ChunkTimeout
	if staleAfter <= 0 {
		staleAfter = progress.DefaultStaleAfter
	}
	if snap.Active(s.h.now(), staleAfter) {
		s.logger.Warn(ctx, "another upload session is active for this note", "other_session_id", snap.SessionID)
	}
}

func (s *session) next(ctx context.Context, timeout time.Duration) (Frame, error) {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case r := <-s.frames:
		return r.frame, r.err
	case <-timer:
		return Frame{}, errFrameTimeout
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

func (s *session) receiveMetadata(ctx context.Context) error {
	f, err := s.next(ctx, s.h.opts.MetadataTimeout)
	if errors.Is(err, errFrameTimeout) {
		return &SessionError{Kind: KindTimeout, Message: "Timeout waiting for metadata", Err: err}
	}
	if err != nil {
		return &SessionError{Kind: KindTransport, Message: "Connection lost", Err: err}
	}
	if f.Kind != TextFrame {
		return &SessionError{Kind: KindValidation, Message: "Invalid metadata: expected a JSON text frame"}
	}

	meta, err := ParseMetadata(f.Data, s.h.opts.MaxUploadBytes)
	if err != nil {
		return &SessionError{Kind: KindValidation, Message: "Invalid metadata: " + err.Error(), Err: err}
	}
	s.meta = meta

	s.setState(ctx, StateAwaitingPayload)
	s.logger.Info(ctx, "upload started", "filename", meta.Filename, "size", humanize.IBytes(uint64(meta.FileSize)))
	return nil
}

func (s *session) receivePayload(ctx context.Context) error {
	if err := s.t.WriteMessage(readyMessage()); err != nil {
		return &SessionError{Kind: KindTransport, Message: "Connection lost", Err: err}
	}
	s.setState(ctx, StateTransferring)

	for s.received < s.meta.FileSize {
		f, err := s.next(ctx, s.h.opts.ChunkTimeout)
		if errors.Is(err, errFrameTimeout) {
			return &SessionError{Kind: KindTimeout, Message: "Timeout waiting for audio data", Err: err}
		}
		if err != nil {
			return &SessionError{Kind: KindTransport, Message: "Error receiving audio: " + err.Error(), Err: err}
		}
		if f.Kind != BinaryFrame {
			return &SessionError{Kind: KindValidation, Message: "Error receiving audio: unexpected text frame during transfer"}
		}

		s.buf.Write(f.Data)
		s.received += int64(len(f.Data))

		if err := s.t.WriteMessage(progressMessage(s.received, s.meta.FileSize)); err != nil {
			return &SessionError{Kind: KindTransport, Message: "Connection lost", Err: err}
		}
		s.track(ctx, false)
	}
	return nil
}

// finalize stores the payload and attaches it to the note. Once started it
// runs detached from ctx so a late disconnect cannot leave a half-written
// note behind.
func (s *session) finalize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &SessionError{Kind: KindTransport, Message: "Connection closed before upload finished", Err: err}
	}
	s.setState(ctx, StateFinalizing)

	fctx := context.WithoutCancel(ctx)
	filename := s.meta.Filename

	key, err := s.h.store.Put(fctx, s.buf.Bytes(), filename)
	if err != nil {
		s.markError(fctx, err)
		return &SessionError{Kind: KindStore, Message: "Upload failed: " + err.Error(), Err: err}
	}

	url, err := s.h.store.Presign(fctx, key, s.h.opts.PresignTTL)
	if err != nil {
		s.discard(fctx, key)
		s.markError(fctx, err)
		return &SessionError{Kind: KindStore, Message: "Upload failed: " + err.Error(), Err: err}
	}

	if _, err := s.h.notes.CompleteUpload(fctx, s.noteID, s.revision, filename, key, url); err != nil {
		s.discard(fctx, key)
		switch {
		case errors.Is(err, common.ErrVersionConflict):
			return &SessionError{Kind: KindConflict, Message: "Upload superseded by a newer session", Err: err}
		case errors.Is(err, common.ErrorNotFound):
			return &SessionError{Kind: KindNotFound, Message: "Note not found", Err: err}
		}
		s.markError(fctx, err)
		return &SessionError{Kind: KindPartialFailure, Message: "Upload failed: " + err.Error(), Err: err}
	}

	if err := s.t.WriteMessage(completedMessage(key, url)); err != nil {
		s.logger.Warn(fctx, "completion message not delivered", "error", err)
	}

	s.message = CompletedMessage
	s.setState(fctx, StateCompleted)
	s.logger.Info(fctx, "upload finished", "key", key, "size", humanize.IBytes(uint64(s.received)))
	return nil
}

// markError fails the note only while this session still owns it.
func (s *session) markError(ctx context.Context, cause error) {
	_, err := s.h.notes.FailUpload(ctx, s.noteID, s.revision, cause.Error())
	switch {
	case err == nil:
	case errors.Is(err, common.ErrVersionConflict):
		s.logger.Info(ctx, "note taken over by a newer session, status left as is")
	default:
		s.logger.Warn(ctx, "failed to mark note as failed", "error", err)
	}
}

func (s *session) discard(ctx context.Context, key string) {
	if _, err := s.h.store.Delete(ctx, key); err != nil {
		s.logger.Warn(ctx, "failed to delete orphaned object", "key", key, "error", err)
	}
}

// fail reports err to the client, best effort, and records the failure.
func (s *session) fail(ctx context.Context, err error) {
	var se *SessionError
	if !errors.As(err, &se) {
		se = &SessionError{Kind: KindStore, Message: "Upload failed: " + err.Error(), Err: err}
	}

	if werr := s.t.WriteMessage(errorMessage(se)); werr != nil {
		s.logger.Debug(ctx, "error message not delivered", "error", werr)
	}

	s.message = se.Message
	s.setState(context.WithoutCancel(ctx), StateFailed)

	s.logger.Warn(ctx, "upload failed",
		"code", string(se.Kind),
		"received", s.received,
		"error", se,
	)
}

func (s *session) setState(ctx context.Context, st State) {
	s.state = st
	s.track(ctx, true)
}

// track saves a progress snapshot once the note is marked uploading.
// Unforced saves are throttled. Tracker errors never affect the session.
func (s *session) track(ctx context.Context, force bool) {
	if !s.tracking {
		return
	}
	now := s.h.now()
	if !force && now.Sub(s.lastSave) < progressSaveInterval && s.received < s.meta.FileSize {
		return
	}
	s.lastSave = now

	snap := progress.Snapshot{
		NoteID:    s.noteID,
		SessionID: s.id,
		Filename:  s.meta.Filename,
		Declared:  s.meta.FileSize,
		Received:  s.received,
		Progress:  Progress(s.received, s.meta.FileSize),
		State:     string(s.state),
		Message:   s.message,
		StartedAt: s.started.UTC(),
		UpdatedAt: now.UTC(),
	}
	if err := s.h.tracker.Save(ctx, snap); err != nil {
		s.logger.Warn(ctx, "progress save failed", "error", err)
	}
}
