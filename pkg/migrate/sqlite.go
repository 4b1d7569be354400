package migrate

import (
	"context"
	"database/sql"
	"fmt"
)

// sqliteHandle stores the schema version in the database header through
// PRAGMA user_version, which SQLite writes transactionally.
type sqliteHandle struct {
	db *sql.DB
}

// NewSQLiteHandle adapts a SQLite *sql.DB to Handle.
func NewSQLiteHandle(db *sql.DB) Handle {
	return &sqliteHandle{db: db}
}

func (h *sqliteHandle) Version(ctx context.Context) (int, error) {
	var v int
	if err := h.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func (h *sqliteHandle) Begin(ctx context.Context) (Tx, error) {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{Tx: tx}, nil
}

type sqliteTx struct {
	*sql.Tx
}

func (t *sqliteTx) SetVersion(ctx context.Context, version int) error {
	// PRAGMA does not take bound parameters.
	_, err := t.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version))
	return err
}
