package postgres_test

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// rowStub implements pgx.Row
type rowStub struct{ scan func(dest ...any) error }

func (r rowStub) Scan(dest ...any) error { return r.scan(dest...) }

// rowsStub implements pgx.Rows for result-set queries. Unused interface
// methods come from the embedded pgx.Rows and panic if reached.
type rowsStub struct {
	pgx.Rows
	scans []func(dest ...any) error
	idx   int
	err   error
}

func (r *rowsStub) Next() bool {
	if r.idx >= len(r.scans) {
		return false
	}
	r.idx++
	return true
}

func (r *rowsStub) Scan(dest ...any) error { return r.scans[r.idx-1](dest...) }
func (r *rowsStub) Close()                 {}
func (r *rowsStub) Err() error             { return r.err }

// txStub implements pgx.Tx via embedding; only the methods the repo touches
// are overridden.
type txStub struct {
	pgx.Tx
	exec       func(sql string, args []any) (pgconn.CommandTag, error)
	query      func(sql string, args []any) (pgx.Rows, error)
	queryRow   func(sql string, args []any) pgx.Row
	commitErr  error
	committed  bool
	rolledBack bool
}

func (t *txStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if t.exec == nil {
		return pgconn.CommandTag{}, errors.New("no exec configured")
	}
	return t.exec(sql, args)
}

func (t *txStub) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	if t.query == nil {
		return nil, errors.New("no query configured")
	}
	return t.query(sql, args)
}

func (t *txStub) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	if t.queryRow == nil {
		return rowStub{scan: func(_ ...any) error { return errors.New("no row configured") }}
	}
	return t.queryRow(sql, args)
}

func (t *txStub) Commit(context.Context) error {
	t.committed = true
	return t.commitErr
}

func (t *txStub) Rollback(context.Context) error {
	t.rolledBack = true
	return nil
}

// poolStub implements postgres.PgxPool for tests. Defined in a shared helper
// so multiple *_test.go files can reuse it without redefs.
type poolStub struct {
	execTag  pgconn.CommandTag
	execErr  error
	execSQL  []string
	row      rowStub
	rows     pgx.Rows
	queryErr error
	tx       *txStub
	beginErr error
}

func (p *poolStub) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	p.execSQL = append(p.execSQL, sql)
	return p.execTag, p.execErr
}

func (p *poolStub) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	if p.row.scan == nil {
		return rowStub{scan: func(_ ...any) error { return errors.New("no row configured") }}
	}
	return p.row
}

func (p *poolStub) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	return p.rows, nil
}

func (p *poolStub) BeginTx(_ context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	return p.tx, nil
}
