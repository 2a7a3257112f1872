package notes

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/audionotes/internal/common"
	"github.com/dmitrijs2005/audionotes/internal/server/migrations"
	"github.com/dmitrijs2005/audionotes/internal/server/models"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupSQLite(t *testing.T) *sql.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.Migrations)
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.UpContext(context.Background(), db, migrations.SQLiteDir))
	return db
}

func seed(t *testing.T, repo *SQLRepository, title, body string, tags []string, status models.Status, at time.Time) *models.Note {
	t.Helper()
	n := &models.Note{
		ID:            uuid.NewString(),
		UserID:        uuid.Nil.String(),
		Title:         title,
		Body:          body,
		Tags:          tags,
		AudioFilename: models.PlaceholderAudioFilename,
		Status:        status,
		CreatedAt:     at.Truncate(time.Microsecond),
	}
	require.NoError(t, repo.Create(context.Background(), n))
	return n
}

func TestSQLite_CreateGetRoundTrip(t *testing.T) {
	repo := NewSQLiteRepository(setupSQLite(t))
	ctx := context.Background()

	created := seed(t, repo, "Standup", "daily sync", []string{"work"}, models.StatusPending,
		time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))

	got, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Standup", got.Title)
	assert.Equal(t, "daily sync", got.Body)
	assert.Equal(t, []string{"work"}, got.Tags)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Nil(t, got.AudioKey)
	assert.Nil(t, got.Transcription)
	assert.Equal(t, int64(1), got.Revision)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))

	_, err = repo.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestSQLite_UpdateRevisionCAS(t *testing.T) {
	repo := NewSQLiteRepository(setupSQLite(t))
	ctx := context.Background()
	n := seed(t, repo, "T", "", nil, models.StatusPending, time.Now().UTC())

	uploading := models.StatusUploading
	first, err := repo.Update(ctx, n.ID, models.NotePatch{Status: &uploading}, &n.Revision)
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Revision)
	assert.Equal(t, models.StatusUploading, first.Status)
	assert.False(t, first.UpdatedAt.Before(n.UpdatedAt))

	// stale revision loses
	done := models.StatusPendingTranscription
	_, err = repo.Update(ctx, n.ID, models.NotePatch{Status: &done, AudioKey: models.Null("k")}, &n.Revision)
	assert.ErrorIs(t, err, common.ErrVersionConflict)

	second, err := repo.Update(ctx, n.ID, models.NotePatch{Status: &done, AudioKey: models.Null("k")}, &first.Revision)
	require.NoError(t, err)
	require.NotNil(t, second.AudioKey)
	assert.Equal(t, "k", *second.AudioKey)

	cleared, err := repo.Update(ctx, n.ID, models.NotePatch{AudioKey: models.SetNull()}, nil)
	require.NoError(t, err)
	assert.Nil(t, cleared.AudioKey)

	_, err = repo.Update(ctx, uuid.NewString(), models.NotePatch{Status: &done}, &first.Revision)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestSQLite_DeleteTwice(t *testing.T) {
	repo := NewSQLiteRepository(setupSQLite(t))
	ctx := context.Background()
	n := seed(t, repo, "T", "", nil, models.StatusPending, time.Now().UTC())

	ok, err := repo.Delete(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Delete(ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLite_ListFilters(t *testing.T) {
	repo := NewSQLiteRepository(setupSQLite(t))
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	a := seed(t, repo, "Groceries", "milk", []string{"a"}, models.StatusPending, base)
	ab := seed(t, repo, "Meeting", "budget review", []string{"a", "b"}, models.StatusCompleted, base.Add(time.Minute))
	b := seed(t, repo, "Gym", "100% effort", []string{"b"}, models.StatusPending, base.Add(2*time.Minute))

	transcript := "talked about GROCERIES"
	_, err := repo.Update(ctx, b.ID, models.NotePatch{Transcription: models.Null(transcript)}, nil)
	require.NoError(t, err)

	ids := func(ns []*models.Note) []string {
		out := make([]string, 0, len(ns))
		for _, n := range ns {
			out = append(out, n.ID)
		}
		return out
	}

	all, err := repo.List(ctx, 0, 100, models.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID, ab.ID, a.ID}, ids(all), "newest first")

	both, err := repo.List(ctx, 0, 100, models.ListFilter{Tags: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{ab.ID}, ids(both))

	search, err := repo.List(ctx, 0, 100, models.ListFilter{Search: "groceries"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids(search))

	literal, err := repo.List(ctx, 0, 100, models.ListFilter{Search: "0%"})
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids(literal))

	pending, err := repo.List(ctx, 0, 100, models.ListFilter{Status: models.StatusPending, Tags: []string{"b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, ids(pending))

	page, err := repo.List(ctx, 1, 1, models.ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{ab.ID}, ids(page))
}

func TestSQLite_SearchNonASCII(t *testing.T) {
	repo := NewSQLiteRepository(setupSQLite(t))
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	ru := seed(t, repo, "Заметка о встрече", "", nil, models.StatusPending, base)
	de := seed(t, repo, "Straße", "Überblick", nil, models.StatusPending, base.Add(time.Minute))
	seed(t, repo, "Standup", "daily", nil, models.StatusPending, base.Add(2*time.Minute))

	for _, term := range []string{"Заметка", "заметка", "ЗАМЕТКА", "о ВСТРЕЧЕ"} {
		got, err := repo.List(ctx, 0, 100, models.ListFilter{Search: term})
		require.NoError(t, err)
		require.Len(t, got, 1, term)
		assert.Equal(t, ru.ID, got[0].ID, term)
	}

	got, err := repo.List(ctx, 0, 100, models.ListFilter{Search: "überblick"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, de.ID, got[0].ID)
}
