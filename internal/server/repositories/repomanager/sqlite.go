package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/audionotes/internal/dbx"
	"github.com/dmitrijs2005/audionotes/internal/server/migrations"
	"github.com/dmitrijs2005/audionotes/internal/server/repositories/notes"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// SQLiteRepositoryManager vends SQLite-backed repositories (modernc, no cgo).
type SQLiteRepositoryManager struct{}

func (m *SQLiteRepositoryManager) Notes(db dbx.DBTX) notes.Repository {
	return notes.NewSQLiteRepository(db)
}

// Open uses a single connection: SQLite serializes writers anyway and this
// keeps shared-cache in-memory databases alive.
func (m *SQLiteRepositoryManager) Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := openAndPing(ctx, "sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func (m *SQLiteRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, migrations.SQLiteDir)
}
