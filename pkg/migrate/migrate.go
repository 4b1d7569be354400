// Package migrate applies an ordered set of versioned schema changes to a
// database, one transaction per migration.
//
// The applied version is a single integer owned by the Runner. Selection of
// pending migrations is by version number, never by registration order, so a
// migration is applied at most once even if the registry is reshuffled.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/glimt/glimt/pkg/logging"
)

// Execer issues schema statements. *sql.Tx satisfies it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Tx is a migration transaction. SetVersion must persist the version as part
// of the same transaction so the schema change and the counter commit
// together.
type Tx interface {
	Execer
	SetVersion(ctx context.Context, version int) error
	Commit() error
	Rollback() error
}

// Handle is the store abstraction the Runner drives.
type Handle interface {
	// Version returns the persisted schema version. A handle with no
	// recorded version may return sql.ErrNoRows, which reads as 0.
	Version(ctx context.Context) (int, error)
	Begin(ctx context.Context) (Tx, error)
}

// Migration is one forward-only schema change.
type Migration struct {
	Version     int
	Description string
	Up          func(ctx context.Context, tx Execer) error
}

// MigrationError reports the migration that failed and wraps the cause.
type MigrationError struct {
	Version     int
	Description string
	Err         error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %d (%s) failed: %v", e.Version, e.Description, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// Runner applies migrations in ascending version order.
type Runner struct {
	migrations []Migration
	logger     logging.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger used to report applied migrations.
func WithLogger(l logging.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner validates the registry and returns a Runner. Versions must be
// positive and unique.
func NewRunner(migrations []Migration, opts ...Option) (*Runner, error) {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	for i, m := range sorted {
		if m.Version <= 0 {
			return nil, fmt.Errorf("migration %q: version must be positive, got %d", m.Description, m.Version)
		}
		if m.Up == nil {
			return nil, fmt.Errorf("migration %d: missing Up", m.Version)
		}
		if i > 0 && sorted[i-1].Version == m.Version {
			return nil, fmt.Errorf("duplicate migration version %d", m.Version)
		}
	}

	r := &Runner{migrations: sorted, logger: logging.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Target returns the highest registered version, or 0 for an empty registry.
func (r *Runner) Target() int {
	if len(r.migrations) == 0 {
		return 0
	}
	return r.migrations[len(r.migrations)-1].Version
}

// Len returns the number of registered migrations. Versions may skip
// numbers, so this can be less than Target.
func (r *Runner) Len() int { return len(r.migrations) }

// Pending returns the migrations not yet applied to h, in application order.
func (r *Runner) Pending(ctx context.Context, h Handle) ([]Migration, error) {
	current, err := currentVersion(ctx, h)
	if err != nil {
		return nil, err
	}
	return r.pendingAfter(current), nil
}

func (r *Runner) pendingAfter(current int) []Migration {
	var pending []Migration
	for _, m := range r.migrations {
		if m.Version > current {
			pending = append(pending, m)
		}
	}
	return pending
}

// Run brings h up to Target and returns the number of migrations applied.
// When h is already current no transaction is opened. The first failure
// rolls back its own transaction and stops the run; earlier migrations stay
// committed.
func (r *Runner) Run(ctx context.Context, h Handle) (int, error) {
	current, err := currentVersion(ctx, h)
	if err != nil {
		return 0, err
	}

	target := r.Target()
	if current >= target {
		r.logger.Debug("schema up to date", "version", current)
		return 0, nil
	}

	applied := 0
	for _, m := range r.pendingAfter(current) {
		if err := r.apply(ctx, h, m); err != nil {
			r.logger.Error("migration failed", "version", m.Version, "description", m.Description, "error", err)
			return applied, err
		}
		applied++
		r.logger.Info("migration applied", "version", m.Version, "description", m.Description)
	}

	return applied, nil
}

func (r *Runner) apply(ctx context.Context, h Handle, m Migration) error {
	tx, err := h.Begin(ctx)
	if err != nil {
		return &MigrationError{Version: m.Version, Description: m.Description, Err: fmt.Errorf("begin transaction: %w", err)}
	}

	fail := func(cause error) error {
		// A rollback failure must not mask the migration error.
		_ = tx.Rollback()
		return &MigrationError{Version: m.Version, Description: m.Description, Err: cause}
	}

	if err := m.Up(ctx, tx); err != nil {
		return fail(err)
	}
	if err := tx.SetVersion(ctx, m.Version); err != nil {
		return fail(fmt.Errorf("record version: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return fail(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func currentVersion(ctx context.Context, h Handle) (int, error) {
	v, err := h.Version(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}
