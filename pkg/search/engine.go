// Package search ranks ideas by keyword match, by embedding similarity, or
// by both.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/glimt/glimt/pkg/logging"
	"github.com/glimt/glimt/pkg/store"
)

// DefaultTopK is the result count used when a caller passes topK <= 0.
const DefaultTopK = 20

// Source tells which retrieval path produced a result.
type Source string

const (
	SourceLexical  Source = "lexical"
	SourceSemantic Source = "semantic"
	SourceBoth     Source = "both"
)

// Result pairs an idea with its relevance.
type Result struct {
	Idea   *store.Idea `json:"idea"`
	Score  float64     `json:"score"`
	Source Source      `json:"source"`
}

// Store is the subset of the idea store the engine reads from.
type Store interface {
	GetAllEmbeddings(ctx context.Context, model string) ([]store.StoredVector, error)
	GetIdeasByIDs(ctx context.Context, ids []string) ([]*store.Idea, error)
	SearchIdeasLexical(ctx context.Context, query string, limit int) ([]*store.Idea, error)
}

// Embedder turns text into a vector. *compute.Client satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Framing holds the text prefixes some embedding models expect to tell
// queries from stored passages, such as "search_query: ".
type Framing struct {
	QueryPrefix   string
	PassagePrefix string
}

// Query frames a search query.
func (f Framing) Query(text string) string { return f.QueryPrefix + text }

// Passage frames a document body.
func (f Framing) Passage(text string) string { return f.PassagePrefix + text }

// Engine ranks ideas for one active embedding model.
type Engine struct {
	store    Store
	embedder Embedder
	model    string
	framing  Framing
	rrfK     float64
	logger   logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithFraming sets query and passage prefixes.
func WithFraming(f Framing) Option {
	return func(e *Engine) { e.framing = f }
}

// WithRRFK overrides the reciprocal rank fusion constant (default 60).
func WithRRFK(k float64) Option {
	return func(e *Engine) {
		if k > 0 {
			e.rrfK = k
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine returns an engine that searches vectors stored under model.
func NewEngine(s Store, embedder Embedder, model string, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		embedder: embedder,
		model:    model,
		rrfK:     60,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "search")
	return e
}

// Model returns the embedding model the engine searches.
func (e *Engine) Model() string { return e.model }

// Framing returns the configured framing.
func (e *Engine) Framing() Framing { return e.framing }

// SearchSemantic ranks every stored vector of the active model by cosine
// similarity to the query. A blank query returns no results without
// computing an embedding. Archived ideas are not filtered.
func (e *Engine) SearchSemantic(ctx context.Context, query string, topK int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return []Result{}, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	qvec, err := e.embedder.Embed(ctx, e.framing.Query(query))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	stored, err := e.store.GetAllEmbeddings(ctx, e.model)
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}

	type scored struct {
		id    string
		score float64
	}
	candidates := make([]scored, len(stored))
	for i, sv := range stored {
		candidates[i] = scored{id: sv.IdeaID, score: CosineSimilarity(qvec, sv.Vector)}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].id < candidates[j].id
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}
	ideas, err := e.store.GetIdeasByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate ideas: %w", err)
	}
	byID := make(map[string]*store.Idea, len(ideas))
	for _, idea := range ideas {
		byID[idea.ID] = idea
	}

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		idea, ok := byID[c.id]
		if !ok {
			// deleted after its vector was read
			continue
		}
		results = append(results, Result{Idea: idea, Score: c.score, Source: SourceSemantic})
	}
	return results, nil
}

// SearchLexical returns full-text matches in rank order. Scores are
// 1/(rank+1) so they sort the same way as the bm25 order.
func (e *Engine) SearchLexical(ctx context.Context, query string, limit int) ([]Result, error) {
	ideas, err := e.store.SearchIdeasLexical(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	results := make([]Result, len(ideas))
	for i, idea := range ideas {
		results[i] = Result{Idea: idea, Score: 1 / float64(i+1), Source: SourceLexical}
	}
	return results, nil
}

// SearchHybrid fuses lexical and semantic rankings with reciprocal rank
// fusion. Ideas found by both paths are tagged SourceBoth. If the semantic
// path fails the lexical results are returned alone.
func (e *Engine) SearchHybrid(ctx context.Context, query string, topK int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return []Result{}, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	lexical, err := e.SearchLexical(ctx, query, topK*2)
	if err != nil {
		return nil, err
	}

	semantic, err := e.SearchSemantic(ctx, query, topK*2)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, err
		}
		e.logger.Warn("semantic search failed, using lexical results only", "error", err)
		semantic = nil
	}

	type fused struct {
		idea   *store.Idea
		score  float64
		source Source
	}
	merged := make(map[string]*fused)
	add := func(results []Result, src Source) {
		for rank, r := range results {
			contribution := 1.0 / (e.rrfK + float64(rank+1))
			f, ok := merged[r.Idea.ID]
			if !ok {
				merged[r.Idea.ID] = &fused{idea: r.Idea, score: contribution, source: src}
				continue
			}
			f.score += contribution
			if f.source != src {
				f.source = SourceBoth
			}
		}
	}
	add(lexical, SourceLexical)
	add(semantic, SourceSemantic)

	results := make([]Result, 0, len(merged))
	for _, f := range merged {
		results = append(results, Result{Idea: f.idea, Score: f.score, Source: f.source})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Idea.ID < results[j].Idea.ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}
