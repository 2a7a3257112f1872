// Package httpapi serves the REST API and the WebSocket upload channel.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/audionotes/internal/logging"
	"github.com/dmitrijs2005/audionotes/internal/server/config"
	"github.com/dmitrijs2005/audionotes/internal/server/models"
	"github.com/dmitrijs2005/audionotes/internal/server/progress"
	"github.com/dmitrijs2005/audionotes/internal/server/services"
	"github.com/dmitrijs2005/audionotes/internal/server/upload"
	"github.com/gin-gonic/gin"
)

// NoteService is the part of services.NoteService the API exposes.
type NoteService interface {
	Create(ctx context.Context, in services.CreateNoteInput) (*models.Note, error)
	Get(ctx context.Context, id string) (*models.Note, error)
	List(ctx context.Context, offset, limit int, filter models.ListFilter) ([]*models.Note, error)
	Update(ctx context.Context, id string, in services.UpdateNoteInput) (*models.Note, error)
	Delete(ctx context.Context, id string) (bool, error)
	MarkTranscribed(ctx context.Context, id, text string) (*models.Note, error)
	MarkSummarized(ctx context.Context, id, text string) (*models.Note, error)
	MarkError(ctx context.Context, id, reason string) (*models.Note, error)
	Reset(ctx context.Context, id string) (*models.Note, error)
	Transcription(ctx context.Context, id string) (string, error)
	Summary(ctx context.Context, id string) (string, error)
	AudioURL(ctx context.Context, id string) (string, time.Duration, error)
	Health(ctx context.Context) services.HealthReport
}

// Uploader runs one upload session over a transport.
type Uploader interface {
	Serve(ctx context.Context, t upload.Transport, noteID string) upload.State
}

type Server struct {
	address         string
	logger          logging.Logger
	shutdownTimeout time.Duration
	engine          *gin.Engine
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

func NewServer(cfg *config.Config, l logging.Logger, notes NoteService, uploads Uploader, tracker progress.Tracker) *Server {
	logger := l.With("module", "http_server")

	h := &handlers{
		notes:        notes,
		uploads:      uploads,
		tracker:      tracker,
		logger:       logger,
		staleAfter:   cfg.ChunkTimeout,
		writeTimeout: cfg.ChunkTimeout,
		readLimit:    cfg.MaxFrameBytes,
		upgrader:     newUpgrader(cfg.AllowedOrigins),
		now:          time.Now,
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger), cors(cfg.AllowedOrigins))
	registerRoutes(engine, h)

	return &Server{
		address:         cfg.HTTPAddr,
		logger:          logger,
		shutdownTimeout: cfg.ShutdownTimeout,
		engine:          engine,
	}
}

func registerRoutes(r *gin.Engine, h *handlers) {
	r.GET("/", h.root)
	r.GET("/health", h.health)

	api := r.Group("/api/v1")
	{
		api.GET("/notes", h.listNotes)
		api.POST("/notes", h.createNote)
		api.GET("/notes/:id", h.getNote)
		api.PUT("/notes/:id", h.updateNote)
		api.DELETE("/notes/:id", h.deleteNote)

		api.GET("/notes/:id/transcription", h.getTranscription)
		api.PUT("/notes/:id/transcription", h.putTranscription)
		api.GET("/notes/:id/summary", h.getSummary)
		api.PUT("/notes/:id/summary", h.putSummary)
		api.POST("/notes/:id/error", h.markError)
		api.POST("/notes/:id/reset", h.reset)
		api.GET("/notes/:id/audio", h.audio)
		api.GET("/notes/:id/upload", h.uploadStatus)
	}

	r.GET("/ws/upload/:id", h.uploadWS)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully. Upload
// sessions see the cancellation through their request context.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
