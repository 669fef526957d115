// Package sqlite provides a single-file idempotency ledger for deployments
// without Postgres.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/JakeFAU/secavis-relay/internal/notice"
)

const table = "processed_notices"

//go:embed schema.sql
var schemaSQL string

// Ledger stores processed pairs in SQLite.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("store.path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single writer keeps INSERT OR IGNORE serialised.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &Ledger{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Has reports whether the pair exists.
func (l *Ledger) Has(ctx context.Context, ref notice.Reference) (bool, error) {
	var n int
	err := sq.Select("COUNT(1)").
		From(table).
		Where(sq.Eq{"fiscal_id": ref.FiscalID, "notice_ref": ref.NoticeRef}).
		RunWith(l.db).
		QueryRowContext(ctx).
		Scan(&n)
	if err != nil {
		return false, storeErr("has", err)
	}
	return n > 0, nil
}

// Record inserts the pair, returning notice.ErrDuplicate when it already exists.
func (l *Ledger) Record(ctx context.Context, ref notice.Reference) error {
	res, err := sq.Insert(table).
		Options("OR IGNORE").
		Columns("fiscal_id", "notice_ref", "recorded_at").
		Values(ref.FiscalID, ref.NoticeRef, l.now().Format(time.RFC3339Nano)).
		RunWith(l.db).
		ExecContext(ctx)
	if err != nil {
		return storeErr("record", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("record", err)
	}
	if n == 0 {
		return notice.ErrDuplicate
	}
	return nil
}

// Release deletes the pair.
func (l *Ledger) Release(ctx context.Context, ref notice.Reference) error {
	_, err := sq.Delete(table).
		Where(sq.Eq{"fiscal_id": ref.FiscalID, "notice_ref": ref.NoticeRef}).
		RunWith(l.db).
		ExecContext(ctx)
	if err != nil {
		return storeErr("release", err)
	}
	return nil
}

// PurgeAll deletes every row.
func (l *Ledger) PurgeAll(ctx context.Context) error {
	if _, err := sq.Delete(table).RunWith(l.db).ExecContext(ctx); err != nil {
		return storeErr("purge", err)
	}
	return nil
}

// Ping checks the database handle.
func (l *Ledger) Ping(ctx context.Context) error {
	if err := l.db.PingContext(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func storeErr(op string, err error) error {
	return &notice.Error{Kind: notice.KindStore, Op: "sqlite " + op, Err: err}
}
