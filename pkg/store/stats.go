package store

import (
	"context"
	"fmt"
)

// Stats returns counts and the on-disk size of the database.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	db, err := s.handle("stats")
	if err != nil {
		return Stats{}, err
	}

	var st Stats
	err = db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM ideas),
			(SELECT COUNT(*) FROM ideas WHERE archived = 1),
			(SELECT COUNT(*) FROM embeddings)
	`).Scan(&st.Ideas, &st.Archived, &st.Embeddings)
	if err != nil {
		return Stats{}, wrapError("stats", fmt.Errorf("failed to count rows: %w", err))
	}

	var pageCount, pageSize int64
	if err := db.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pageCount); err != nil {
		return Stats{}, wrapError("stats", err)
	}
	if err := db.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err != nil {
		return Stats{}, wrapError("stats", err)
	}
	st.SizeBytes = pageCount * pageSize

	if err := db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&st.SchemaVersion); err != nil {
		return Stats{}, wrapError("stats", err)
	}
	return st, nil
}
