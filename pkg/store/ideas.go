package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const ideaColumns = `id, created_at, updated_at, text, title, archived, source_app, markdown_path`

// CreateIdea stores a new idea. No embedding is created; that is the
// caller's job.
func (s *SQLiteStore) CreateIdea(ctx context.Context, text string, opts ...IdeaOption) (*Idea, error) {
	db, err := s.handle("create_idea")
	if err != nil {
		return nil, err
	}

	now := s.nowMillis()
	idea := &Idea{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		Text:      text,
	}
	for _, opt := range opts {
		opt(idea)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO ideas (id, created_at, updated_at, text, title, archived, source_app, markdown_path)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
	`, idea.ID, idea.CreatedAt, idea.UpdatedAt, idea.Text,
		nullString(idea.Title), nullString(idea.SourceApp), nullString(idea.MarkdownPath))
	if err != nil {
		return nil, wrapError("create_idea", fmt.Errorf("failed to insert idea: %w", err))
	}

	return idea, nil
}

// GetIdeas returns ideas matching filter, newest first.
func (s *SQLiteStore) GetIdeas(ctx context.Context, filter IdeaFilter) ([]*Idea, error) {
	db, err := s.handle("get_ideas")
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + ideaColumns + ` FROM ideas`
	var args []any
	if filter.Archived != nil {
		query += ` WHERE archived = ?`
		args = append(args, boolToInt(*filter.Archived))
	}
	// rowid breaks created_at ties so the order is stable
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapError("get_ideas", fmt.Errorf("failed to query ideas: %w", err))
	}
	defer rows.Close()

	ideas, err := scanIdeas(rows)
	if err != nil {
		return nil, wrapError("get_ideas", err)
	}
	return ideas, nil
}

// GetIdea returns the idea with id, or nil when there is none.
func (s *SQLiteStore) GetIdea(ctx context.Context, id string) (*Idea, error) {
	db, err := s.handle("get_idea")
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, `SELECT `+ideaColumns+` FROM ideas WHERE id = ?`, id)
	idea, err := scanIdea(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError("get_idea", err)
	}
	return idea, nil
}

// GetIdeasByIDs returns the ideas that exist among ids, in the order the ids
// were given. Duplicates and unknown ids are skipped.
func (s *SQLiteStore) GetIdeasByIDs(ctx context.Context, ids []string) ([]*Idea, error) {
	if len(ids) == 0 {
		return []*Idea{}, nil
	}

	db, err := s.handle("get_ideas_by_ids")
	if err != nil {
		return nil, err
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM ideas WHERE id IN (%s)`, ideaColumns, placeholders), args...)
	if err != nil {
		return nil, wrapError("get_ideas_by_ids", fmt.Errorf("failed to query ideas: %w", err))
	}
	defer rows.Close()

	found, err := scanIdeas(rows)
	if err != nil {
		return nil, wrapError("get_ideas_by_ids", err)
	}

	byID := make(map[string]*Idea, len(found))
	for _, idea := range found {
		byID[idea.ID] = idea
	}
	ordered := make([]*Idea, 0, len(found))
	for _, id := range ids {
		if idea, ok := byID[id]; ok {
			ordered = append(ordered, idea)
			delete(byID, id)
		}
	}
	return ordered, nil
}

// UpdateIdea applies a partial update and always bumps updated_at.
func (s *SQLiteStore) UpdateIdea(ctx context.Context, id string, upd IdeaUpdate) error {
	db, err := s.handle("update_idea")
	if err != nil {
		return err
	}

	sets := []string{"updated_at = MAX(?, created_at, updated_at)"}
	args := []any{s.nowMillis()}
	if upd.Text != nil {
		sets = append(sets, "text = ?")
		args = append(args, *upd.Text)
	}
	if upd.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, nullString(*upd.Title))
	}
	args = append(args, id)

	res, err := db.ExecContext(ctx, `UPDATE ideas SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return wrapError("update_idea", fmt.Errorf("failed to update idea: %w", err))
	}
	return wrapError("update_idea", requireRow(res, id))
}

// ArchiveIdea sets the archived flag and bumps updated_at.
func (s *SQLiteStore) ArchiveIdea(ctx context.Context, id string, archived bool) error {
	db, err := s.handle("archive_idea")
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `
		UPDATE ideas SET archived = ?, updated_at = MAX(?, created_at, updated_at) WHERE id = ?
	`, boolToInt(archived), s.nowMillis(), id)
	if err != nil {
		return wrapError("archive_idea", fmt.Errorf("failed to archive idea: %w", err))
	}
	return wrapError("archive_idea", requireRow(res, id))
}

// SetMarkdownPath records where the idea was exported. It is bookkeeping and
// leaves updated_at alone.
func (s *SQLiteStore) SetMarkdownPath(ctx context.Context, id, path string) error {
	db, err := s.handle("set_markdown_path")
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `UPDATE ideas SET markdown_path = ? WHERE id = ?`, nullString(path), id)
	if err != nil {
		return wrapError("set_markdown_path", err)
	}
	return wrapError("set_markdown_path", requireRow(res, id))
}

// DeleteIdea removes an idea and, by cascade, its embeddings. Deleting an
// unknown id is not an error.
func (s *SQLiteStore) DeleteIdea(ctx context.Context, id string) error {
	db, err := s.handle("delete_idea")
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, `DELETE FROM ideas WHERE id = ?`, id); err != nil {
		return wrapError("delete_idea", fmt.Errorf("failed to delete idea: %w", err))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdea(row rowScanner) (*Idea, error) {
	var (
		idea                       Idea
		title, sourceApp, markdown sql.NullString
		archived                   int64
	)
	if err := row.Scan(&idea.ID, &idea.CreatedAt, &idea.UpdatedAt, &idea.Text, &title, &archived, &sourceApp, &markdown); err != nil {
		return nil, err
	}
	idea.Title = title.String
	idea.Archived = archived != 0
	idea.SourceApp = sourceApp.String
	idea.MarkdownPath = markdown.String
	return &idea, nil
}

func scanIdeas(rows *sql.Rows) ([]*Idea, error) {
	ideas := []*Idea{}
	for rows.Next() {
		idea, err := scanIdea(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan idea: %w", err)
		}
		ideas = append(ideas, idea)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ideas, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrIdeaNotFound, id)
	}
	return nil
}

// nullString stores empty strings as NULL
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
