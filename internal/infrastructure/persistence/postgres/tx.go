package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianpay/gateway/internal/infrastructure/persistence"
)

type txKey struct{}

// TransactionCoordinator implements application.TxRunner. WithinTx binds the
// transaction to the context it hands fn, so every repository call made with
// that context joins the transaction without knowing about it.
type TransactionCoordinator struct {
	pool *pgxpool.Pool
}

func NewTransactionCoordinator(db *persistence.DB) *TransactionCoordinator {
	return &TransactionCoordinator{pool: db.Pool}
}

func (tc *TransactionCoordinator) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		// Already inside a transaction; join it instead of nesting.
		return fn(ctx)
	}

	tx, err := tc.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// executor resolves the statement target for ctx: the bound transaction when
// called inside WithinTx, the pool otherwise.
func executor(ctx context.Context, pool *pgxpool.Pool) persistence.Executor {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}
