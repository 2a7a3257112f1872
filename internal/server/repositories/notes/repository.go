// Package notes persists note records. One SQL implementation serves both
// supported dialects (PostgreSQL via pgx, SQLite via modernc).
package notes

import (
	"context"

	"github.com/dmitrijs2005/audionotes/internal/server/models"
)

// Repository is the record store used by the lifecycle service.
type Repository interface {
	Get(ctx context.Context, id string) (*models.Note, error)
	Create(ctx context.Context, note *models.Note) error
	// Update applies patch and returns the stored row. When expectedRevision
	// is non-nil the update only happens if the row still has that revision,
	// otherwise common.ErrVersionConflict is returned.
	Update(ctx context.Context, id string, patch models.NotePatch, expectedRevision *int64) (*models.Note, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, offset, limit int, filter models.ListFilter) ([]*models.Note, error)
}
