package store

import (
	"context"
	"fmt"

	"github.com/glimt/glimt/internal/encoding"
)

// StoreEmbedding upserts the vector for (ideaID, model).
func (s *SQLiteStore) StoreEmbedding(ctx context.Context, ideaID, model string, vector []float32) error {
	db, err := s.handle("store_embedding")
	if err != nil {
		return err
	}

	if len(vector) == 0 {
		return wrapError("store_embedding", fmt.Errorf("%w: empty vector", ErrInvalidVector))
	}
	if err := encoding.ValidateVector(vector); err != nil {
		return wrapError("store_embedding", fmt.Errorf("%w: non-finite component", ErrInvalidVector))
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO embeddings (idea_id, model, dims, vector, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(idea_id, model) DO UPDATE SET
			dims = excluded.dims,
			vector = excluded.vector,
			created_at = excluded.created_at
	`, ideaID, model, len(vector), encoding.EncodeVector(vector), s.nowMillis())
	if err != nil {
		return wrapError("store_embedding", fmt.Errorf("failed to upsert embedding: %w", err))
	}
	return nil
}

// GetAllEmbeddings loads every vector stored for model. Rows that do not
// decode to dims components are logged and skipped.
//
// The whole set is held in memory, which is fine at the scale of a personal
// note store.
func (s *SQLiteStore) GetAllEmbeddings(ctx context.Context, model string) ([]StoredVector, error) {
	db, err := s.handle("get_all_embeddings")
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT idea_id, dims, vector FROM embeddings WHERE model = ? ORDER BY idea_id`, model)
	if err != nil {
		return nil, wrapError("get_all_embeddings", fmt.Errorf("failed to query embeddings: %w", err))
	}
	defer rows.Close()

	vectors := []StoredVector{}
	skipped := 0
	for rows.Next() {
		var (
			ideaID string
			dims   int
			raw    any
		)
		if err := rows.Scan(&ideaID, &dims, &raw); err != nil {
			s.logger.Warn("skipping unreadable embedding row", "model", model, "error", err)
			skipped++
			continue
		}
		vec := encoding.DecodeVector(raw, dims)
		if vec == nil {
			s.logger.Warn("skipping corrupted embedding", "idea_id", ideaID, "model", model, "dims", dims)
			skipped++
			continue
		}
		vectors = append(vectors, StoredVector{IdeaID: ideaID, Vector: vec})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("get_all_embeddings", err)
	}

	if skipped > 0 {
		s.logger.Info("embedding load finished with skipped rows", "model", model, "loaded", len(vectors), "skipped", skipped)
	}
	return vectors, nil
}

// DeleteEmbedding removes every model variant stored for ideaID.
func (s *SQLiteStore) DeleteEmbedding(ctx context.Context, ideaID string) error {
	db, err := s.handle("delete_embedding")
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM embeddings WHERE idea_id = ?`, ideaID); err != nil {
		return wrapError("delete_embedding", err)
	}
	return nil
}

// CountEmbeddings returns the number of embeddings stored for ideaID.
func (s *SQLiteStore) CountEmbeddings(ctx context.Context, ideaID string) (int, error) {
	db, err := s.handle("count_embeddings")
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings WHERE idea_id = ?`, ideaID).Scan(&n); err != nil {
		return 0, wrapError("count_embeddings", err)
	}
	return n, nil
}

// IdeasMissingEmbedding returns ideas with no vector for model, newest first.
func (s *SQLiteStore) IdeasMissingEmbedding(ctx context.Context, model string) ([]*Idea, error) {
	db, err := s.handle("ideas_missing_embedding")
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+ideaColumns+` FROM ideas
		WHERE NOT EXISTS (SELECT 1 FROM embeddings e WHERE e.idea_id = ideas.id AND e.model = ?)
		ORDER BY created_at DESC, rowid DESC
	`, model)
	if err != nil {
		return nil, wrapError("ideas_missing_embedding", err)
	}
	defer rows.Close()

	ideas, err := scanIdeas(rows)
	if err != nil {
		return nil, wrapError("ideas_missing_embedding", err)
	}
	return ideas, nil
}
