package notes

import "github.com/dmitrijs2005/audionotes/internal/dbx"

// NewPostgresRepository constructs a repository for PostgreSQL (pgx stdlib)
// bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *SQLRepository {
	return newSQLRepository(db, postgresDialect{})
}
