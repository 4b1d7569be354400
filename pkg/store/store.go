// Package store persists ideas and their embeddings in a single SQLite file.
//
// The schema is owned by the migration runner in pkg/migrate. A full-text
// index over title and text is kept in sync by triggers, and embeddings are
// removed by ON DELETE CASCADE when their idea goes away.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/glimt/glimt/pkg/logging"
	"github.com/glimt/glimt/pkg/migrate"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore is the SQLite-backed idea store
type SQLiteStore struct {
	config Config
	logger logging.Logger
	now    func() time.Time

	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// New creates a store for the configured path. The database is not opened
// until Init.
func New(config Config) (*SQLiteStore, error) {
	if config.Path == "" {
		return nil, wrapError("new", fmt.Errorf("%w: database path cannot be empty", ErrInvalidConfig))
	}
	if config.Logger == nil {
		config.Logger = logging.Nop()
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &SQLiteStore{
		config: config,
		logger: config.Logger.With("component", "store"),
		now:    config.Now,
	}, nil
}

// Open is New followed by Init.
func Open(ctx context.Context, config Config) (*SQLiteStore, error) {
	s, err := New(config)
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Init opens the database and applies pending migrations. It is idempotent:
// once it has succeeded, later calls return nil without touching the
// database. A failed Init leaves the store uninitialized and must be treated
// as fatal by the caller.
func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return wrapError("init", ErrStoreClosed)
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return wrapError("init", fmt.Errorf("failed to open database: %w", err))
	}

	// One writer process, one connection. This also keeps ":memory:"
	// databases alive for the life of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return wrapError("init", fmt.Errorf("failed to connect: %w", err))
	}

	runner, err := migrate.NewRunner(migrations, migrate.WithLogger(s.logger))
	if err != nil {
		_ = db.Close()
		return wrapError("init", err)
	}
	applied, err := runner.Run(ctx, migrate.NewSQLiteHandle(db))
	if err != nil {
		_ = db.Close()
		return wrapError("init", err)
	}

	s.db = db
	s.logger.Info("database initialized", "path", s.config.Path, "migrations_applied", applied, "schema_version", runner.Target())
	return nil
}

func (s *SQLiteStore) dsn() string {
	busy := s.config.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	// _pragma is applied by the driver on every new connection
	return fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(%d)",
		s.config.Path, busy.Milliseconds())
}

// handle returns the live database or the lifecycle error for op.
func (s *SQLiteStore) handle(op string) (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, wrapError(op, ErrStoreClosed)
	}
	if s.db == nil {
		return nil, wrapError(op, ErrNotInitialized)
	}
	return s.db, nil
}

// DB exposes the underlying handle, or nil before Init.
func (s *SQLiteStore) DB() *sql.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// Path returns the configured database path.
func (s *SQLiteStore) Path() string {
	return s.config.Path
}

// SchemaVersion returns the applied schema version.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	db, err := s.handle("schema_version")
	if err != nil {
		return 0, err
	}
	v, err := migrate.NewSQLiteHandle(db).Version(ctx)
	if err != nil {
		return 0, wrapError("schema_version", err)
	}
	return v, nil
}

// Close closes the database. Closing twice is a no-op.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return wrapError("close", err)
}

func (s *SQLiteStore) nowMillis() int64 {
	return s.now().UnixMilli()
}
