package migrate

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

// fakeHandle records every statement and transaction event.
type fakeHandle struct {
	version     int
	versionErr  error
	events      []string
	rollbackErr error
	commitErr   error
}

type fakeTx struct {
	h       *fakeHandle
	pending int
	done    bool
}

func (h *fakeHandle) Version(ctx context.Context) (int, error) {
	if h.versionErr != nil {
		return 0, h.versionErr
	}
	return h.version, nil
}

func (h *fakeHandle) Begin(ctx context.Context) (Tx, error) {
	h.events = append(h.events, "begin")
	return &fakeTx{h: h, pending: h.version}, nil
}

func (t *fakeTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	t.h.events = append(t.h.events, "exec:"+query)
	return nil, nil
}

func (t *fakeTx) SetVersion(ctx context.Context, version int) error {
	t.h.events = append(t.h.events, "set-version")
	t.pending = version
	return nil
}

func (t *fakeTx) Commit() error {
	t.h.events = append(t.h.events, "commit")
	if t.h.commitErr != nil {
		return t.h.commitErr
	}
	t.h.version = t.pending
	t.done = true
	return nil
}

func (t *fakeTx) Rollback() error {
	t.h.events = append(t.h.events, "rollback")
	return t.h.rollbackErr
}

func stmt(version int, desc, query string) Migration {
	return Migration{
		Version:     version,
		Description: desc,
		Up: func(ctx context.Context, tx Execer) error {
			_, err := tx.ExecContext(ctx, query)
			return err
		},
	}
}

func failing(version int, desc string, cause error) Migration {
	return Migration{
		Version:     version,
		Description: desc,
		Up: func(ctx context.Context, tx Execer) error {
			return cause
		},
	}
}

func TestRunFreshAppliesAll(t *testing.T) {
	r, err := NewRunner([]Migration{
		stmt(2, "second", "B"),
		stmt(1, "first", "A"),
		stmt(3, "third", "C"),
	})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	h := &fakeHandle{}
	applied, err := r.Run(context.Background(), h)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if applied != 3 {
		t.Errorf("applied = %d, want 3", applied)
	}
	if h.version != 3 {
		t.Errorf("version = %d, want 3", h.version)
	}

	want := []string{
		"begin", "exec:A", "set-version", "commit",
		"begin", "exec:B", "set-version", "commit",
		"begin", "exec:C", "set-version", "commit",
	}
	if strings.Join(h.events, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v, want %v", h.events, want)
	}
}

func TestRunAlreadyCurrentIsNoop(t *testing.T) {
	r, _ := NewRunner([]Migration{stmt(1, "first", "A"), stmt(2, "second", "B")})
	h := &fakeHandle{version: 2}

	applied, err := r.Run(context.Background(), h)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if applied != 0 || len(h.events) != 0 {
		t.Errorf("applied = %d, events = %v; want no activity", applied, h.events)
	}

	h.version = 5
	if _, err := r.Run(context.Background(), h); err != nil || len(h.events) != 0 {
		t.Errorf("ahead-of-target run: err = %v, events = %v", err, h.events)
	}
}

func TestRunSkipsAppliedRegardlessOfOrder(t *testing.T) {
	r, _ := NewRunner([]Migration{stmt(3, "third", "C"), stmt(1, "first", "A"), stmt(2, "second", "B")})
	h := &fakeHandle{version: 1}

	if _, err := r.Run(context.Background(), h); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for _, ev := range h.events {
		if ev == "exec:A" {
			t.Fatal("migration 1 was re-run")
		}
	}
	if h.version != 3 {
		t.Errorf("version = %d, want 3", h.version)
	}
}

func TestRunMissingVersionIsFresh(t *testing.T) {
	r, _ := NewRunner([]Migration{stmt(1, "first", "A")})
	h := &fakeHandle{versionErr: sql.ErrNoRows}

	applied, err := r.Run(context.Background(), h)
	if err != nil || applied != 1 {
		t.Errorf("Run() = %d, %v; want 1, nil", applied, err)
	}
}

func TestRunFailureRollsBackAndHalts(t *testing.T) {
	cause := errors.New("syntax error near FOO")
	r, _ := NewRunner([]Migration{
		stmt(1, "baseline", "A"),
		failing(2, "add widgets", cause),
		stmt(3, "later", "C"),
	})
	h := &fakeHandle{}

	applied, err := r.Run(context.Background(), h)
	if err == nil {
		t.Fatal("expected error")
	}
	if applied != 1 {
		t.Errorf("applied = %d, want 1", applied)
	}
	if h.version != 1 {
		t.Errorf("version = %d, want 1", h.version)
	}

	var merr *MigrationError
	if !errors.As(err, &merr) || merr.Version != 2 {
		t.Fatalf("error = %v, want *MigrationError for version 2", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("error does not wrap the cause: %v", err)
	}
	if !strings.Contains(err.Error(), "2") || !strings.Contains(err.Error(), "add widgets") {
		t.Errorf("error message %q does not name the migration", err.Error())
	}

	last := h.events[len(h.events)-1]
	if last != "rollback" {
		t.Errorf("last event = %q, want rollback", last)
	}
	for _, ev := range h.events {
		if ev == "exec:C" {
			t.Error("migration 3 ran after a failure")
		}
	}
}

func TestRunRollbackFailureIsSwallowed(t *testing.T) {
	cause := errors.New("disk full")
	r, _ := NewRunner([]Migration{failing(1, "baseline", cause)})
	h := &fakeHandle{rollbackErr: errors.New("rollback exploded")}

	_, err := r.Run(context.Background(), h)
	if !errors.Is(err, cause) {
		t.Fatalf("error = %v, want the migration cause", err)
	}
	if strings.Contains(err.Error(), "rollback exploded") {
		t.Errorf("rollback error leaked into %q", err.Error())
	}
}

func TestRunCommitFailure(t *testing.T) {
	r, _ := NewRunner([]Migration{stmt(1, "baseline", "A")})
	h := &fakeHandle{commitErr: errors.New("locked")}

	_, err := r.Run(context.Background(), h)
	var merr *MigrationError
	if !errors.As(err, &merr) || merr.Version != 1 {
		t.Fatalf("error = %v, want *MigrationError for version 1", err)
	}
}

func TestNewRunnerValidation(t *testing.T) {
	noop := func(ctx context.Context, tx Execer) error { return nil }
	tests := []struct {
		name       string
		migrations []Migration
	}{
		{name: "zero version", migrations: []Migration{{Version: 0, Up: noop}}},
		{name: "negative version", migrations: []Migration{{Version: -1, Up: noop}}},
		{name: "duplicate", migrations: []Migration{{Version: 1, Up: noop}, {Version: 1, Up: noop}}},
		{name: "missing up", migrations: []Migration{{Version: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRunner(tt.migrations); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPending(t *testing.T) {
	r, _ := NewRunner([]Migration{stmt(1, "a", "A"), stmt(2, "b", "B"), stmt(3, "c", "C")})
	pending, err := r.Pending(context.Background(), &fakeHandle{version: 1})
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	if len(pending) != 2 || pending[0].Version != 2 || pending[1].Version != 3 {
		t.Errorf("pending = %+v", pending)
	}
	if r.Target() != 3 {
		t.Errorf("Target() = %d, want 3", r.Target())
	}
}

func TestLenCountsMigrationsNotVersions(t *testing.T) {
	r, err := NewRunner([]Migration{stmt(1, "a", "A"), stmt(5, "e", "E"), stmt(9, "i", "I")})
	if err != nil {
		t.Fatal(err)
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}
	if r.Target() != 9 {
		t.Errorf("Target() = %d, want 9", r.Target())
	}
	pending, err := r.Pending(context.Background(), &fakeHandle{})
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != r.Len() {
		t.Errorf("fresh Pending() = %d migrations, want %d", len(pending), r.Len())
	}
}

func TestSQLiteHandle(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	r, _ := NewRunner([]Migration{
		stmt(1, "create notes", "CREATE TABLE notes (id TEXT PRIMARY KEY)"),
		stmt(2, "index notes", "CREATE INDEX idx_notes_id ON notes(id)"),
	})

	h := NewSQLiteHandle(db)
	if v, err := h.Version(ctx); err != nil || v != 0 {
		t.Fatalf("fresh Version() = %d, %v", v, err)
	}

	if applied, err := r.Run(ctx, h); err != nil || applied != 2 {
		t.Fatalf("Run() = %d, %v", applied, err)
	}
	if v, _ := h.Version(ctx); v != 2 {
		t.Errorf("Version() = %d, want 2", v)
	}

	// A failing migration must leave both its statements and the counter
	// rolled back.
	bad, _ := NewRunner([]Migration{
		stmt(1, "create notes", "CREATE TABLE notes (id TEXT PRIMARY KEY)"),
		stmt(2, "index notes", "CREATE INDEX idx_notes_id ON notes(id)"),
		{
			Version:     3,
			Description: "half applied",
			Up: func(ctx context.Context, tx Execer) error {
				if _, err := tx.ExecContext(ctx, "CREATE TABLE tags (name TEXT)"); err != nil {
					return err
				}
				_, err := tx.ExecContext(ctx, "THIS IS NOT SQL")
				return err
			},
		},
	})
	if _, err := bad.Run(ctx, h); err == nil {
		t.Fatal("expected failure")
	}
	if v, _ := h.Version(ctx); v != 2 {
		t.Errorf("Version() after failure = %d, want 2", v)
	}
	var name string
	err = db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE name = 'tags'").Scan(&name)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("tags table survived rollback: %v", err)
	}
}
