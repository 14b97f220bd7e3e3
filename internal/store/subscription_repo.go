package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"subtrack/internal/types"
)

// SubscriptionRepo persists the local mirror of gateway subscriptions.
// Records are upserted by subscription ID and never deleted; canceled
// subscriptions remain visible with their terminal status.
type SubscriptionRepo struct {
	db     DBTX
	logger *slog.Logger
}

// Compile-time check: the repo satisfies the writer interface used by
// transactional sync runs.
var _ types.SubscriptionWriter = (*SubscriptionRepo)(nil)

// NewSubscriptionRepo creates a SubscriptionRepo backed by the given database
// connection (pool or transaction).
func NewSubscriptionRepo(db DBTX, logger *slog.Logger) *SubscriptionRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionRepo{db: db, logger: logger}
}

// Upsert inserts the record or, when a row with the same ID exists, overwrites
// all mutable fields. Running the same sync twice leaves the table unchanged.
func (r *SubscriptionRepo) Upsert(ctx context.Context, rec *types.SubscriptionRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO subscriptions (
			id, customer_id, customer_name, customer_email,
			product_name, plan_id, status, created_at, updated_at, expiry_date
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
			customer_id    = EXCLUDED.customer_id,
			customer_name  = EXCLUDED.customer_name,
			customer_email = EXCLUDED.customer_email,
			product_name   = EXCLUDED.product_name,
			plan_id        = EXCLUDED.plan_id,
			status         = EXCLUDED.status,
			created_at     = EXCLUDED.created_at,
			updated_at     = EXCLUDED.updated_at,
			expiry_date    = EXCLUDED.expiry_date`,
		rec.ID,
		rec.CustomerID,
		rec.CustomerName,
		rec.CustomerEmail,
		rec.ProductName,
		rec.PlanID,
		rec.Status,
		rec.CreatedAt,
		rec.UpdatedAt,
		rec.ExpiryDate,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert subscription", err)
	}
	return nil
}

// GetByID fetches a single mirrored subscription.
func (r *SubscriptionRepo) GetByID(ctx context.Context, id string) (*types.SubscriptionRecord, error) {
	var rec types.SubscriptionRecord
	err := r.db.QueryRow(ctx,
		`SELECT id, customer_id, customer_name, customer_email,
		        product_name, plan_id, status, created_at, updated_at, expiry_date
		 FROM subscriptions WHERE id = $1`,
		id,
	).Scan(
		&rec.ID,
		&rec.CustomerID,
		&rec.CustomerName,
		&rec.CustomerEmail,
		&rec.ProductName,
		&rec.PlanID,
		&rec.Status,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.ExpiryDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(
				types.ErrCodeNotFoundResource,
				fmt.Sprintf("subscription %s not found", id),
				err,
			)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch subscription", err)
	}
	return &rec, nil
}

// CountAll returns the number of mirrored subscriptions.
func (r *SubscriptionRepo) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM subscriptions`).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count subscriptions", err)
	}
	return count, nil
}
