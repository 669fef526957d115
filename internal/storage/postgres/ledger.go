// Package postgres provides the Postgres-backed idempotency ledger.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/secavis-relay/internal/notice"
)

const defaultTable = "processed_notices"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

//go:embed schema.sql
var schemaSQL string

// LedgerConfig controls the Postgres connection pool used for the ledger.
type LedgerConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Ledger records processed reference pairs. The (fiscal_id, notice_ref)
// primary key makes Record an atomic insert-if-absent.
type Ledger struct {
	pool  pool
	table string
}

// NewLedger connects a pool using cfg.
func NewLedger(ctx context.Context, cfg LedgerConfig) (*Ledger, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Ledger{pool: p, table: table}, nil
}

// NewLedgerWithPool constructs a ledger from an existing pool (primarily for testing).
func NewLedgerWithPool(p pool, table string) (*Ledger, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &Ledger{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// EnsureSchema creates the ledger table when missing.
func (l *Ledger) EnsureSchema(ctx context.Context) error {
	ddl := strings.Replace(schemaSQL, defaultTable, l.table, 1)
	if _, err := l.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create ledger table: %w", err)
	}
	return nil
}

// Has reports whether the pair exists.
func (l *Ledger) Has(ctx context.Context, ref notice.Reference) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE fiscal_id = $1 AND notice_ref = $2)`, l.table)
	var exists bool
	if err := l.pool.QueryRow(ctx, query, ref.FiscalID, ref.NoticeRef).Scan(&exists); err != nil {
		return false, storeErr("has", err)
	}
	return exists, nil
}

// Record inserts the pair, returning notice.ErrDuplicate when it already exists.
func (l *Ledger) Record(ctx context.Context, ref notice.Reference) error {
	query := fmt.Sprintf(`
INSERT INTO %s (fiscal_id, notice_ref)
VALUES ($1, $2)
ON CONFLICT (fiscal_id, notice_ref) DO NOTHING`, l.table)
	tag, err := l.pool.Exec(ctx, query, ref.FiscalID, ref.NoticeRef)
	if err != nil {
		return storeErr("record", err)
	}
	if tag.RowsAffected() == 0 {
		return notice.ErrDuplicate
	}
	return nil
}

// Release deletes the pair.
func (l *Ledger) Release(ctx context.Context, ref notice.Reference) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE fiscal_id = $1 AND notice_ref = $2`, l.table)
	if _, err := l.pool.Exec(ctx, query, ref.FiscalID, ref.NoticeRef); err != nil {
		return storeErr("release", err)
	}
	return nil
}

// PurgeAll deletes every row.
func (l *Ledger) PurgeAll(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, l.table)); err != nil {
		return storeErr("purge", err)
	}
	return nil
}

// Ping checks connectivity.
func (l *Ledger) Ping(ctx context.Context) error {
	if err := l.pool.Ping(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (l *Ledger) Close() error {
	if l == nil || l.pool == nil {
		return nil
	}
	l.pool.Close()
	return nil
}

func storeErr(op string, err error) error {
	return &notice.Error{Kind: notice.KindStore, Op: "postgres " + op, Err: err}
}
