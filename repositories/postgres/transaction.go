package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/upb/venture-hub/repositories"
	"go.uber.org/zap"
)

type txKey struct{}

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// TxOption configures a TransactionManager
type TxOption func(*TransactionManager)

// WithIsolation sets the isolation level of every transaction the manager
// begins. The driver default applies otherwise.
func WithIsolation(level sql.IsolationLevel) TxOption {
	return func(tm *TransactionManager) {
		tm.opts = &sql.TxOptions{Isolation: level}
	}
}

// TransactionManager begins transactions on the pool and carries them in the
// context so repositories pick them up without explicit binding.
type TransactionManager struct {
	db     *DB
	logger *zap.Logger
	opts   *sql.TxOptions
}

func NewTransactionManager(db *DB, logger *zap.Logger, opts ...TxOption) repositories.TransactionManager {
	tm := &TransactionManager{db: db, logger: logger}
	for _, opt := range opts {
		opt(tm)
	}
	return tm
}

func (tm *TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	sqlTx, err := tm.db.BeginTx(ctx, tm.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	tx := &Transaction{tx: sqlTx, logger: tm.logger}
	tx.ctx = context.WithValue(ctx, txKey{}, tx)
	return tx, nil
}

// InTransaction runs fn inside a transaction. A call made while ctx already
// carries a transaction joins it and leaves commit to the outermost caller.
// A panic in fn rolls back before propagating.
func (tm *TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) (err error) {
	if outer, ok := txFromContext(ctx); ok {
		return fn(ctx, outer)
	}

	tx, err := tm.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx.Context(), tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			tm.logger.Error("failed to rollback transaction",
				zap.Error(rbErr),
				zap.NamedError("original_error", err),
			)
		}
		return err
	}

	return tx.Commit()
}

// Transaction is a repositories.Transaction over *sql.Tx
type Transaction struct {
	tx     *sql.Tx
	ctx    context.Context
	logger *zap.Logger
}

func (t *Transaction) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback is a no-op once the transaction has finished
func (t *Transaction) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	t.logger.Debug("transaction rolled back")
	return nil
}

// Context returns the context the transaction was begun with, carrying it
func (t *Transaction) Context() context.Context {
	return t.ctx
}

func txFromContext(ctx context.Context) (*Transaction, bool) {
	tx, ok := ctx.Value(txKey{}).(*Transaction)
	return tx, ok
}

// executorFor picks the explicitly bound transaction, then one carried by
// ctx, then the pool.
func executorFor(ctx context.Context, db *DB, bound *sql.Tx) querier {
	if bound != nil {
		return bound
	}
	if tx, ok := txFromContext(ctx); ok {
		return tx.tx
	}
	return db.DB
}

// boundTx extracts the sql.Tx of a repositories.Transaction created by this package
func boundTx(tx repositories.Transaction) *sql.Tx {
	if pgTx, ok := tx.(*Transaction); ok {
		return pgTx.tx
	}
	return nil
}
