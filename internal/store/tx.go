package store

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"subtrack/internal/types"
)

// TxStore runs repository operations inside a single database transaction.
// The Sync Job uses it so that one gateway sync is all-or-nothing: a failure
// mid-pass rolls back every upsert from that pass.
type TxStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewTxStore creates a TxStore over the given pool.
func NewTxStore(pool *pgxpool.Pool, logger *slog.Logger) *TxStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TxStore{pool: pool, logger: logger}
}

// RunInTx begins a transaction, hands a transaction-scoped writer to fn, and
// commits when fn returns nil. Any error from fn (or the commit) rolls the
// whole transaction back.
func (s *TxStore) RunInTx(ctx context.Context, fn func(w types.SubscriptionWriter) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	// Rollback after commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	repo := NewSubscriptionRepo(tx, s.logger)
	if err := fn(repo); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit transaction", err)
	}
	return nil
}
