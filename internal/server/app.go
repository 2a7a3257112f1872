// Package server wires the audionotes components together and runs the
// HTTP and gRPC servers until the process is signalled.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/audionotes/internal/logging"
	"github.com/dmitrijs2005/audionotes/internal/server/config"
	"github.com/dmitrijs2005/audionotes/internal/server/dispatch"
	"github.com/dmitrijs2005/audionotes/internal/server/httpapi"
	"github.com/dmitrijs2005/audionotes/internal/server/objectstore"
	"github.com/dmitrijs2005/audionotes/internal/server/progress"
	"github.com/dmitrijs2005/audionotes/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/audionotes/internal/server/services"
	"github.com/dmitrijs2005/audionotes/internal/server/upload"
	"github.com/go-redis/redis/v8"

	gs "github.com/dmitrijs2005/audionotes/internal/server/grpc"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	notes   *services.NoteService
	uploads *upload.Handler
	tracker progress.Tracker
	closers []io.Closer
}

func storageConfig(c *config.Config) objectstore.Config {
	return objectstore.Config{
		Driver:       c.StorageDriver,
		Endpoint:     c.S3Endpoint,
		Region:       c.S3Region,
		Bucket:       c.S3Bucket,
		AccessKey:    c.S3AccessKey,
		SecretKey:    c.S3SecretKey,
		UseSSL:       c.S3UseSSL,
		KeyPrefix:    c.S3KeyPrefix,
		EnsureBucket: c.S3EnsureBucket,
	}
}

func newPublisher(c *config.Config, l logging.Logger) dispatch.Publisher {
	if len(c.KafkaBrokers) > 0 {
		return dispatch.NewKafkaPublisher(c.KafkaBrokers, c.KafkaTopic)
	}
	return dispatch.NewLogPublisher(l)
}

func newTracker(ctx context.Context, c *config.Config) (progress.Tracker, io.Closer, error) {
	if c.RedisAddr == "" {
		return progress.NewMemoryTracker(c.ProgressTTL), nil, nil
	}

	t := progress.NewRedisTracker(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}, c.ProgressTTL)
	if err := t.Ping(ctx); err != nil {
		_ = t.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return t, t, nil
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(c.LogLevel, c.LogFormat, os.Stdout)

	rm, err := repomanager.New(c.DatabaseDriver)
	if err != nil {
		return nil, err
	}
	db, err := rm.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app := &App{config: c, logger: logger, db: db, closers: []io.Closer{db}}

	if err := rm.RunMigrations(ctx, db); err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("migrations: %w", err)
	}

	store, err := objectstore.New(ctx, storageConfig(c))
	if err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("object store init error: %w", err)
	}

	publisher := newPublisher(c, logger)
	app.closers = append(app.closers, publisher)

	tracker, closer, err := newTracker(ctx, c)
	if err != nil {
		app.close(ctx)
		return nil, err
	}
	if closer != nil {
		app.closers = append(app.closers, closer)
	}
	app.tracker = tracker

	app.notes = services.NewNoteService(db, rm, store, dispatch.NewEventDispatcher(publisher), logger, c)
	app.uploads = upload.NewHandler(app.notes, store, tracker, logger, upload.OptionsFromConfig(c))

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewServer(app.config, app.logger, app.notes, app.uploads, app.tracker)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s, err := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.uploads, app.config.MaxFrameBytes)

	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	} else {

		if err := s.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}
}

// drainUploads waits for upload sessions still holding hijacked
// connections or finalizing detached from their request.
func (app *App) drainUploads(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, app.config.ShutdownTimeout)
	defer cancel()

	if err := app.uploads.Drain(ctx); err != nil {
		app.logger.Warn(ctx, "upload sessions still running at shutdown", "error", err)
	}
}

// close releases resources in reverse order of acquisition.
func (app *App) close(ctx context.Context) {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			app.logger.Warn(ctx, "close failed", "error", err)
		}
	}
	app.closers = nil
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	if app.config.GRPCAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startGRPCServer(ctx, cancelFunc)
		}()
	}

	wg.Wait()

	app.drainUploads(context.WithoutCancel(ctx))
	app.close(context.WithoutCancel(ctx))
	app.logger.Info(ctx, "App stopped")
}
