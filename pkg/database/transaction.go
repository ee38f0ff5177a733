package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type TxContextKey string

const txKey = TxContextKey("tx-context-key")

type Tx interface {
	Queryer
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transaction wraps sqlx.Tx. A Transaction handed out for a context that already carried an open
// transaction is nested: Commit and Rollback on it are no-ops and the outer owner decides.
type Transaction struct {
	*sqlx.Tx
	logger   ectologger.Logger
	isClosed bool
	nested   bool
	outer    Tx
}

func NewTx(tx *sqlx.Tx, logger ectologger.Logger) *Transaction {
	return &Transaction{
		Tx:     tx,
		logger: logger,
	}
}

func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if ctxTx, ok := ctx.Value(txKey).(Tx); ok && ctxTx != nil && ctxTx.IsOpen() {
		return ctx, &Transaction{nested: true, outer: ctxTx, logger: logger}, nil
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Errorf("error while beginning transaction")
		return ctx, nil, fmt.Errorf("error while beginning transaction: %w", err)
	}

	newTx := NewTx(tx, logger)
	ctx = context.WithValue(ctx, txKey, Tx(newTx))
	return ctx, newTx, nil
}

func (t *Transaction) IsOpen() bool {
	if t.nested {
		return t.outer.IsOpen()
	}
	return !t.isClosed
}

func (t *Transaction) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if t.nested {
		return t.outer.ExecContext(ctx, query, args...)
	}
	return t.Tx.ExecContext(ctx, query, args...)
}

func (t *Transaction) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	if t.nested {
		return t.outer.GetContext(ctx, dest, query, args...)
	}
	return t.Tx.GetContext(ctx, dest, query, args...)
}

func (t *Transaction) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	if t.nested {
		return t.outer.SelectContext(ctx, dest, query, args...)
	}
	return t.Tx.SelectContext(ctx, dest, query, args...)
}

func (t *Transaction) Rollback(ctx context.Context) error {
	if t.nested || t.isClosed {
		return nil
	}

	if err := t.Tx.Rollback(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while rolling back transaction")
		return fmt.Errorf("error while rolling back transaction: %w", err)
	}

	t.isClosed = true
	return nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	if t.nested || t.isClosed {
		return nil
	}

	if err := t.Tx.Commit(); err != nil {
		t.isClosed = true
		t.logger.WithContext(ctx).WithError(err).Errorf("error while committing transaction")
		return fmt.Errorf("error while committing transaction: %w", err)
	}

	t.isClosed = true
	return nil
}
