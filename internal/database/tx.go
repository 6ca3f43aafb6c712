package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// Conn returns the transaction carried by ctx, or db when there is none.
func Conn(ctx context.Context, db *sql.DB) DBTX {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db
}

// InTx reports whether ctx carries a transaction started by a TxManager.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*sql.Tx)
	return ok
}

type TxManager struct {
	db               *sql.DB
	statementTimeout time.Duration
	lockTimeout      time.Duration
}

type TxOption func(*TxManager)

func WithStatementTimeout(d time.Duration) TxOption {
	return func(m *TxManager) { m.statementTimeout = d }
}

func WithLockTimeout(d time.Duration) TxOption {
	return func(m *TxManager) { m.lockTimeout = d }
}

func NewTxManager(db *sql.DB, opts ...TxOption) *TxManager {
	m := &TxManager{db: db}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithTransaction runs fn inside a transaction carried by the context passed
// to fn. A nil return commits; an error or a panic rolls back. The error from
// fn is returned as is. When ctx already carries a transaction fn joins it.
func (m *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) (txErr error) {
	if InTx(ctx) {
		return fn(ctx)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		rollbackErr := tx.Rollback()
		if p := recover(); p != nil {
			panic(p)
		}
		if rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) && txErr != nil {
			txErr = errors.Join(txErr, fmt.Errorf("tx.Rollback: %w", rollbackErr))
		}
	}()

	if err := m.applyTimeouts(ctx, tx); err != nil {
		return err
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("tx.Commit: %w", err)
	}
	committed = true

	return nil
}

func (m *TxManager) applyTimeouts(ctx context.Context, tx *sql.Tx) error {
	// SET LOCAL does not take bind parameters.
	if m.statementTimeout > 0 {
		q := fmt.Sprintf("SET LOCAL statement_timeout = %d", m.statementTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}
	if m.lockTimeout > 0 {
		q := fmt.Sprintf("SET LOCAL lock_timeout = %d", m.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("set lock_timeout: %w", err)
		}
	}
	return nil
}
