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
	Executor
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transaction wraps sqlx.Tx and tracks whether it has been closed
type Transaction struct {
	*sqlx.Tx
	logger   ectologger.Logger
	isClosed bool
}

func NewTx(tx *sqlx.Tx, logger ectologger.Logger) Tx {
	return &Transaction{
		Tx:     tx,
		logger: logger,
	}
}

// GetTx returns the open transaction already carried by ctx, or begins a new one and stores it in the returned context.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if ctxTx, ok := ctx.Value(txKey).(Tx); ok && ctxTx != nil && ctxTx.IsOpen() {
		return ctx, ctxTx, nil
	}

	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Errorf("error while beginning transaction")
		return ctx, nil, fmt.Errorf("error while beginning transaction")
	}

	newTx := NewTx(tx, logger)
	return context.WithValue(ctx, txKey, newTx), newTx, nil
}

// WithTx runs fn inside a transaction. When ctx already carries an open transaction fn joins it
// and the outer caller owns commit and rollback.
func WithTx(ctx context.Context, logger ectologger.Logger, db DB, fn func(ctx context.Context) error) error {
	if ctxTx, ok := ctx.Value(txKey).(Tx); ok && ctxTx != nil && ctxTx.IsOpen() {
		return fn(ctx)
	}

	txCtx, tx, err := GetTx(ctx, logger, db, nil)
	if err != nil {
		return err
	}

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			logger.WithContext(ctx).WithError(rbErr).Error("failed to roll back transaction after error")
		}
		return err
	}

	return tx.Commit(ctx)
}

func (t *Transaction) IsOpen() bool {
	return !t.isClosed
}

func (t *Transaction) Rollback(ctx context.Context) error {
	if t.isClosed {
		return nil
	}

	if err := t.Tx.Rollback(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while rolling back transaction")
		return fmt.Errorf("error while rolling back transaction")
	}

	t.isClosed = true
	return nil
}

func (t *Transaction) Commit(ctx context.Context) error {
	if t.isClosed {
		return nil
	}

	if err := t.Tx.Commit(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("error while committing transaction")
		return fmt.Errorf("error while committing transaction")
	}

	t.isClosed = true
	return nil
}
