package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/audionotes/internal/dbx"
	"github.com/dmitrijs2005/audionotes/internal/server/migrations"
	"github.com/dmitrijs2005/audionotes/internal/server/repositories/notes"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repositories (pgx stdlib).
type PostgresRepositoryManager struct{}

// Notes returns a notes.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Notes(db dbx.DBTX) notes.Repository {
	return notes.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Open(ctx context.Context, dsn string) (*sql.DB, error) {
	return openAndPing(ctx, "pgx", dsn)
}

// RunMigrations applies the embedded postgres migrations.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, migrations.PostgresDir)
}
