package store

import (
	"context"

	"github.com/glimt/glimt/pkg/migrate"
)

// migrations is the append-only schema history. Never edit an entry once it
// has shipped; add a new version instead.
var migrations = []migrate.Migration{
	{
		Version:     1,
		Description: "baseline ideas, full-text index and embeddings",
		Up:          execAll(baselineSchema),
	},
	{
		Version:     2,
		Description: "index embeddings by model",
		Up:          execAll(`CREATE INDEX IF NOT EXISTS idx_embeddings_model ON embeddings(model);`),
	},
}

// Migrations returns a copy of the registered schema migrations.
func Migrations() []migrate.Migration {
	out := make([]migrate.Migration, len(migrations))
	copy(out, migrations)
	return out
}

const baselineSchema = `
	CREATE TABLE IF NOT EXISTS ideas (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		text TEXT NOT NULL,
		title TEXT,
		archived INTEGER NOT NULL DEFAULT 0,
		source_app TEXT,
		markdown_path TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_ideas_archived ON ideas(archived);
	CREATE INDEX IF NOT EXISTS idx_ideas_created_at ON ideas(created_at);
	CREATE INDEX IF NOT EXISTS idx_ideas_archived_created_at ON ideas(archived, created_at DESC);

	-- External-content FTS5 table over title and text, kept in sync by triggers
	CREATE VIRTUAL TABLE IF NOT EXISTS ideas_fts USING fts5(title, text, content='ideas', content_rowid='rowid');

	CREATE TRIGGER IF NOT EXISTS ideas_ai AFTER INSERT ON ideas BEGIN
	  INSERT INTO ideas_fts(rowid, title, text) VALUES (new.rowid, new.title, new.text);
	END;
	CREATE TRIGGER IF NOT EXISTS ideas_ad AFTER DELETE ON ideas BEGIN
	  INSERT INTO ideas_fts(ideas_fts, rowid, title, text) VALUES ('delete', old.rowid, old.title, old.text);
	END;
	CREATE TRIGGER IF NOT EXISTS ideas_au AFTER UPDATE ON ideas BEGIN
	  INSERT INTO ideas_fts(ideas_fts, rowid, title, text) VALUES ('delete', old.rowid, old.title, old.text);
	  INSERT INTO ideas_fts(rowid, title, text) VALUES (new.rowid, new.title, new.text);
	END;

	CREATE TABLE IF NOT EXISTS embeddings (
		idea_id TEXT NOT NULL,
		model TEXT NOT NULL,
		dims INTEGER NOT NULL,
		vector BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (idea_id, model),
		FOREIGN KEY (idea_id) REFERENCES ideas(id) ON DELETE CASCADE
	);
`

func execAll(query string) func(ctx context.Context, tx migrate.Execer) error {
	return func(ctx context.Context, tx migrate.Execer) error {
		_, err := tx.ExecContext(ctx, query)
		return err
	}
}
