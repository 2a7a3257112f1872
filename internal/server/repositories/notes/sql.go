package notes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/audionotes/internal/common"
	"github.com/dmitrijs2005/audionotes/internal/dbx"
	"github.com/dmitrijs2005/audionotes/internal/server/models"
)

const noteColumns = `id, user_id, title, body, tags, audio_filename, audio_key, audio_url,
	transcription, summary, status, revision, created_at, updated_at`

// SQLRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type SQLRepository struct {
	db  dbx.DBTX
	d   dialect
	now func() time.Time
}

func newSQLRepository(db dbx.DBTX, d dialect) *SQLRepository {
	return &SQLRepository{
		db: db,
		d:  d,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
}

type queryArgs struct {
	d    dialect
	args []any
}

func (q *queryArgs) add(v any) string {
	q.args = append(q.args, v)
	return q.d.placeholder(len(q.args))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(s rowScanner) (*models.Note, error) {
	var (
		n                          models.Note
		tags, status               string
		key, url, transcr, summary sql.NullString
	)
	if err := s.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &tags, &n.AudioFilename, &key, &url,
		&transcr, &summary, &status, &n.Revision, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &n.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if n.Tags == nil {
		n.Tags = []string{}
	}
	n.Status = models.Status(status)
	n.AudioKey = nullable(key)
	n.AudioURL = nullable(url)
	n.Transcription = nullable(transcr)
	n.Summary = nullable(summary)
	return &n, nil
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

// Get returns the note with the given id or common.ErrorNotFound.
func (r *SQLRepository) Get(ctx context.Context, id string) (*models.Note, error) {
	q := &queryArgs{d: r.d}
	query := `SELECT ` + noteColumns + ` FROM notes WHERE id = ` + q.add(id)

	note, err := scanNote(r.db.QueryRowContext(ctx, query, q.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select note: %w", err)
	}
	return note, nil
}

// Create inserts note. Zero timestamps and revision are filled in.
func (r *SQLRepository) Create(ctx context.Context, note *models.Note) error {
	if note.CreatedAt.IsZero() {
		note.CreatedAt = r.now()
	}
	if note.UpdatedAt.IsZero() {
		note.UpdatedAt = note.CreatedAt
	}
	if note.Revision == 0 {
		note.Revision = 1
	}
	tags, err := encodeTags(note.Tags)
	if err != nil {
		return err
	}

	q := &queryArgs{d: r.d}
	values := []string{
		q.add(note.ID),
		q.add(note.UserID),
		q.add(note.Title),
		q.add(note.Body),
		r.d.jsonValue(q.add(tags)),
		q.add(note.AudioFilename),
		q.add(nullString(note.AudioKey)),
		q.add(nullString(note.AudioURL)),
		q.add(nullString(note.Transcription)),
		q.add(nullString(note.Summary)),
		q.add(string(note.Status)),
		q.add(note.Revision),
		q.add(note.CreatedAt),
		q.add(note.UpdatedAt),
	}
	query := `INSERT INTO notes (` + noteColumns + `) VALUES (` + strings.Join(values, ", ") + `)`

	if _, err := r.db.ExecContext(ctx, query, q.args...); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Update applies the supplied fields of patch, stamps updated_at and bumps
// the revision.
func (r *SQLRepository) Update(ctx context.Context, id string, patch models.NotePatch, expectedRevision *int64) (*models.Note, error) {
	q := &queryArgs{d: r.d}
	var sets []string
	set := func(col string, v any) {
		sets = append(sets, col+" = "+q.add(v))
	}

	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Body != nil {
		set("body", *patch.Body)
	}
	if patch.Tags != nil {
		tags, err := encodeTags(*patch.Tags)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "tags = "+r.d.jsonValue(q.add(tags)))
	}
	if patch.AudioFilename != nil {
		set("audio_filename", *patch.AudioFilename)
	}
	if patch.AudioKey != nil {
		set("audio_key", *patch.AudioKey)
	}
	if patch.AudioURL != nil {
		set("audio_url", *patch.AudioURL)
	}
	if patch.Transcription != nil {
		set("transcription", *patch.Transcription)
	}
	if patch.Summary != nil {
		set("summary", *patch.Summary)
	}
	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	set("updated_at", r.now())
	sets = append(sets, "revision = revision + 1")

	where := "id = " + q.add(id)
	if expectedRevision != nil {
		where += " AND revision = " + q.add(*expectedRevision)
	}

	query := `UPDATE notes SET ` + strings.Join(sets, ", ") + ` WHERE ` + where + ` RETURNING ` + noteColumns

	note, err := scanNote(r.db.QueryRowContext(ctx, query, q.args...))
	if err == nil {
		return note, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if expectedRevision == nil {
		return nil, common.ErrorNotFound
	}

	exists, err := r.exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, common.ErrorNotFound
	}
	return nil, common.ErrVersionConflict
}

func (r *SQLRepository) exists(ctx context.Context, id string) (bool, error) {
	q := &queryArgs{d: r.d}
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM notes WHERE id = `+q.add(id), q.args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return true, nil
}

// Delete removes the note; false means there was nothing to delete.
func (r *SQLRepository) Delete(ctx context.Context, id string) (bool, error) {
	q := &queryArgs{d: r.d}
	res, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE id = `+q.add(id), q.args...)
	if err != nil {
		return false, fmt.Errorf("failed to delete note: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// List returns notes newest first. Search is OR-combined over title, body
// and transcription; every tag in filter.Tags must be present.
func (r *SQLRepository) List(ctx context.Context, offset, limit int, filter models.ListFilter) ([]*models.Note, error) {
	q := &queryArgs{d: r.d}
	var where []string

	if filter.Search != "" {
		op := r.d.searchOperator()
		var ors []string
		for _, col := range []string{"title", "body", "transcription"} {
			ors = append(ors, fmt.Sprintf(`%s %s %s ESCAPE '\'`, r.d.searchColumn(col), op, q.add(likePattern(filter.Search))))
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}
	if filter.Status != "" {
		where = append(where, "status = "+q.add(string(filter.Status)))
	}
	for _, tag := range filter.Tags {
		arg, err := r.d.tagArg(tag)
		if err != nil {
			return nil, fmt.Errorf("encode tag filter: %w", err)
		}
		where = append(where, r.d.tagFilter(q.add(arg)))
	}

	query := `SELECT ` + noteColumns + ` FROM notes`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ` + q.add(limit) + ` OFFSET ` + q.add(offset)

	rows, err := r.db.QueryContext(ctx, query, q.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select notes: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Note, 0)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, note)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
