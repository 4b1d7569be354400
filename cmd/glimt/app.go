package main

import (
	"context"
	"fmt"

	"github.com/glimt/glimt/internal/config"
	"github.com/glimt/glimt/pkg/compute"
	"github.com/glimt/glimt/pkg/logging"
	"github.com/glimt/glimt/pkg/notes"
	"github.com/glimt/glimt/pkg/ollama"
	"github.com/glimt/glimt/pkg/search"
	"github.com/glimt/glimt/pkg/store"
)

// app holds what a command needs. Compute is started only by commands that
// embed.
type app struct {
	cfg    config.Config
	logger logging.Logger
	store  *store.SQLiteStore
	client *compute.Client
	cancel context.CancelFunc
}

func openStore(ctx context.Context) (*app, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path not specified")
	}

	logger := newLogger()
	scfg := store.DefaultConfig(dbPath)
	scfg.Logger = logger
	st, err := store.Open(ctx, scfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	return &app{cfg: cfg, logger: logger, store: st}, nil
}

// openWithCompute opens the store and starts an embedding worker backed by
// Ollama, preloading the configured model.
func openWithCompute(ctx context.Context) (*app, error) {
	a, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	loader := ollama.NewLoader(a.cfg.OllamaHost,
		ollama.WithPull(a.cfg.PullModels),
		ollama.WithLogger(a.logger.With("component", "ollama")))
	worker := compute.NewWorker(loader,
		compute.WithDefaultModel(a.cfg.EmbedModel),
		compute.WithWorkerLogger(a.logger))

	wctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.client = compute.Spawn(wctx, worker,
		compute.WithTimeout(a.cfg.EmbedTimeout),
		compute.WithClientLogger(a.logger))

	if err := a.client.Preload(ctx, a.cfg.EmbedModel); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to start embedding worker: %w", err)
	}
	return a, nil
}

func (a *app) framing() search.Framing {
	return search.Framing{QueryPrefix: a.cfg.QueryPrefix, PassagePrefix: a.cfg.PassagePrefix}
}

func (a *app) notes() *notes.Service {
	return notes.New(a.store, a.client, a.cfg.EmbedModel,
		notes.WithFraming(a.framing()),
		notes.WithLogger(a.logger))
}

func (a *app) engine() *search.Engine {
	var embedder search.Embedder
	if a.client != nil {
		embedder = a.client
	}
	return search.NewEngine(a.store, embedder, a.cfg.EmbedModel,
		search.WithFraming(a.framing()),
		search.WithLogger(a.logger))
}

func (a *app) Close() {
	if a.client != nil {
		_ = a.client.Close()
	}
	if a.cancel != nil {
		a.cancel()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", "error", err)
	}
}

func newLogger() logging.Logger {
	level := cfg.LogLevel
	if verbose {
		level = logging.LevelDebug
	}
	return logging.NewStderr(level)
}
