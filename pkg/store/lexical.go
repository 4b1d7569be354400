package store

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// SearchIdeasLexical runs a full-text match over title and text and returns
// the ideas ranked by bm25, best first. Archived ideas are included; callers
// filter them. limit <= 0 means no limit.
func (s *SQLiteStore) SearchIdeasLexical(ctx context.Context, query string, limit int) ([]*Idea, error) {
	db, err := s.handle("search_lexical")
	if err != nil {
		return nil, err
	}

	match := buildMatchQuery(query)
	if match == "" {
		return []*Idea{}, nil
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := db.QueryContext(ctx, `
		SELECT i.id, i.created_at, i.updated_at, i.text, i.title, i.archived, i.source_app, i.markdown_path
		FROM ideas_fts
		JOIN ideas i ON i.rowid = ideas_fts.rowid
		WHERE ideas_fts MATCH ?
		ORDER BY bm25(ideas_fts), i.rowid
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, wrapError("search_lexical", fmt.Errorf("full-text query failed: %w", err))
	}
	defer rows.Close()

	ideas, err := scanIdeas(rows)
	if err != nil {
		return nil, wrapError("search_lexical", err)
	}
	return ideas, nil
}

// buildMatchQuery turns free text into an FTS5 expression: every token
// becomes a quoted prefix phrase, and tokens are ANDed. User input therefore
// never reaches FTS5 as raw syntax.
func buildMatchQuery(query string) string {
	tokens := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(tokens) == 0 {
		return ""
	}
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = `"` + tok + `"*`
	}
	return strings.Join(terms, " ")
}
