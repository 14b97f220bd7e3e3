package store

import (
	"context"

	"subtrack/internal/types"
)

// subscriptionsSchema mirrors the gateway's subscription objects locally.
// expiry_date is nullable: only active subscriptions carry one.
const subscriptionsSchema = `
CREATE TABLE IF NOT EXISTS subscriptions (
	id             TEXT PRIMARY KEY,
	customer_id    TEXT NOT NULL,
	customer_name  TEXT,
	customer_email TEXT,
	product_name   TEXT,
	plan_id        TEXT,
	status         TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	expiry_date    TIMESTAMPTZ
)`

// EnsureSchema creates the subscriptions table if it does not exist. Called
// once at startup, before the server begins accepting requests.
func EnsureSchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, subscriptionsSchema); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to ensure subscriptions schema", err)
	}
	return nil
}
