// Package notes implements the capture flows on top of the store: ideas are
// saved first and embedded second, so a compute failure never loses a note.
package notes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/glimt/glimt/pkg/logging"
	"github.com/glimt/glimt/pkg/search"
	"github.com/glimt/glimt/pkg/store"
)

// ErrEmptyText is returned when a capture or update has no text.
var ErrEmptyText = errors.New("idea text is empty")

// DefaultConcurrency bounds parallel embeddings during Reindex.
const DefaultConcurrency = 4

// Store is the part of the idea store the service writes to.
type Store interface {
	CreateIdea(ctx context.Context, text string, opts ...store.IdeaOption) (*store.Idea, error)
	GetIdea(ctx context.Context, id string) (*store.Idea, error)
	UpdateIdea(ctx context.Context, id string, upd store.IdeaUpdate) error
	ArchiveIdea(ctx context.Context, id string, archived bool) error
	DeleteIdea(ctx context.Context, id string) error
	StoreEmbedding(ctx context.Context, ideaID, model string, vector []float32) error
	IdeasMissingEmbedding(ctx context.Context, model string) ([]*store.Idea, error)
}

// Service captures and edits ideas and keeps their embeddings current for
// one model.
type Service struct {
	store    Store
	embedder search.Embedder
	model    string
	framing  search.Framing
	logger   logging.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithFraming sets the passage prefix applied before embedding.
func WithFraming(f search.Framing) Option {
	return func(s *Service) { s.framing = f }
}

// WithLogger sets the service logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a service that stores embeddings under model.
func New(st Store, embedder search.Embedder, model string, opts ...Option) *Service {
	s := &Service{
		store:    st,
		embedder: embedder,
		model:    model,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "notes")
	return s
}

// CaptureResult is a saved idea plus the outcome of embedding it.
type CaptureResult struct {
	Idea *store.Idea
	// EmbedErr is set when the idea was saved but could not be embedded.
	// Reindex picks such ideas up later.
	EmbedErr error
}

// Capture saves a new idea and then embeds it.
func (s *Service) Capture(ctx context.Context, text string, opts ...store.IdeaOption) (*CaptureResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	idea, err := s.store.CreateIdea(ctx, text, opts...)
	if err != nil {
		return nil, err
	}
	s.logger.Info("idea captured", "id", idea.ID)

	return &CaptureResult{Idea: idea, EmbedErr: s.embed(ctx, idea)}, nil
}

// Update applies upd and re-embeds the idea when its text or title changed.
func (s *Service) Update(ctx context.Context, id string, upd store.IdeaUpdate) (*CaptureResult, error) {
	if upd.Text != nil && strings.TrimSpace(*upd.Text) == "" {
		return nil, ErrEmptyText
	}

	before, err := s.store.GetIdea(ctx, id)
	if err != nil {
		return nil, err
	}
	if before == nil {
		return nil, fmt.Errorf("update %s: %w", id, store.ErrIdeaNotFound)
	}

	if err := s.store.UpdateIdea(ctx, id, upd); err != nil {
		return nil, err
	}
	after, err := s.store.GetIdea(ctx, id)
	if err != nil {
		return nil, err
	}
	if after == nil {
		// deleted concurrently
		return nil, fmt.Errorf("update %s: %w", id, store.ErrIdeaNotFound)
	}

	res := &CaptureResult{Idea: after}
	if passage(before) != passage(after) {
		res.EmbedErr = s.embed(ctx, after)
	}
	return res, nil
}

// Archive sets or clears the archived flag.
func (s *Service) Archive(ctx context.Context, id string, archived bool) error {
	return s.store.ArchiveIdea(ctx, id, archived)
}

// Delete removes an idea and its embeddings.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteIdea(ctx, id)
}

// ReindexResult counts the outcome of a Reindex run.
type ReindexResult struct {
	Total    int
	Embedded int
	Failed   int
}

// Reindex embeds every idea that has no vector for the service's model.
// Individual failures are counted and logged; only store errors and
// cancellation abort the run.
func (s *Service) Reindex(ctx context.Context, concurrency int) (ReindexResult, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	missing, err := s.store.IdeasMissingEmbedding(ctx, s.model)
	if err != nil {
		return ReindexResult{}, err
	}

	var embedded, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, idea := range missing {
		idea := idea // per-iteration copy; go.mod targets go 1.21 loop semantics
		g.Go(func() error {
			if err := s.embed(gctx, idea); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failed.Add(1)
				return nil
			}
			embedded.Add(1)
			return nil
		})
	}
	err = g.Wait()

	res := ReindexResult{
		Total:    len(missing),
		Embedded: int(embedded.Load()),
		Failed:   int(failed.Load()),
	}
	s.logger.Info("reindex finished", "total", res.Total, "embedded", res.Embedded, "failed", res.Failed)
	return res, err
}

// embed computes and stores the vector for idea. Errors are logged and
// returned, never escalated.
func (s *Service) embed(ctx context.Context, idea *store.Idea) error {
	vec, err := s.embedder.Embed(ctx, s.framing.Passage(passage(idea)))
	if err != nil {
		s.logger.Warn("embedding failed", "id", idea.ID, "error", err)
		return fmt.Errorf("embed %s: %w", idea.ID, err)
	}
	if err := s.store.StoreEmbedding(ctx, idea.ID, s.model, vec); err != nil {
		s.logger.Warn("storing embedding failed", "id", idea.ID, "error", err)
		return err
	}
	return nil
}

// passage is the text embedded for an idea: the title, if any, on its own
// line above the body.
func passage(idea *store.Idea) string {
	if idea.Title == "" {
		return idea.Text
	}
	return idea.Title + "\n\n" + idea.Text
}
