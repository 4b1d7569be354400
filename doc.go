// Package glimt is a local idea store: short notes captured from anywhere,
// kept in a single SQLite file, and found again by keyword or by meaning.
//
// # Layout
//
//   - pkg/store: ideas, full-text index and embeddings in SQLite (modernc.org/sqlite, no CGO)
//   - pkg/migrate: versioned, transactional schema migrations
//   - pkg/compute: request-correlated embedding pipeline running on a worker goroutine
//   - pkg/ollama: compute backend for a local Ollama server
//   - pkg/search: semantic, lexical and hybrid (RRF) ranking
//   - pkg/notes: save-then-embed capture flows and reindexing
//   - cmd/glimt: command-line interface
//
// # Quick Start
//
//	ctx := context.Background()
//	st, _ := store.Open(ctx, store.DefaultConfig("glimt.db"))
//	defer st.Close()
//
//	worker := compute.NewWorker(ollama.NewLoader(ollama.DefaultHost),
//	    compute.WithDefaultModel("nomic-embed-text"))
//	client := compute.Spawn(ctx, worker)
//	defer client.Close()
//
//	svc := notes.New(st, client, "nomic-embed-text")
//	svc.Capture(ctx, "try cold brew with oat milk")
//
//	engine := search.NewEngine(st, client, "nomic-embed-text")
//	results, _ := engine.SearchHybrid(ctx, "coffee", 10)
//
// Saving never depends on the embedding backend: an idea whose embedding
// failed is stored anyway and picked up by notes.Service.Reindex.
package glimt
