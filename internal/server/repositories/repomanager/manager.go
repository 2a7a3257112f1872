// Package repomanager vends repository implementations for the configured
// database dialect and runs the embedded goose migrations.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/audionotes/internal/dbx"
	"github.com/dmitrijs2005/audionotes/internal/server/repositories/notes"
	"github.com/pressly/goose/v3"
)

type RepositoryManager interface {
	// Open connects to dsn and verifies the connection.
	Open(ctx context.Context, dsn string) (*sql.DB, error)
	RunMigrations(ctx context.Context, db *sql.DB) error
	Notes(db dbx.DBTX) notes.Repository
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// sqlOpen is a seam for testing sql.Open.
var sqlOpen = sql.Open

// New returns the manager for driver: "postgres" (alias "pgx") or "sqlite".
func New(driver string) (RepositoryManager, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql", "pgx":
		return &PostgresRepositoryManager{}, nil
	case "sqlite", "sqlite3":
		return &SQLiteRepositoryManager{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func openAndPing(ctx context.Context, driverName, dsn string) (*sql.DB, error) {
	db, err := sqlOpen(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driverName, err)
	}
	return db, nil
}
