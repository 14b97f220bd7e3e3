// Package billing implements the subscription mirror sync, the expiry alert
// job, and the post-checkout receipt flow.
package billing

import (
	"context"
	"log/slog"
	"time"

	"subtrack/internal/types"
)

// expiryGrace is added to an active subscription's period end to produce its
// local expiry date. Non-active subscriptions carry no expiry date.
const expiryGrace = 30 * 24 * time.Hour

// defaultPageLimit is the gateway page size used when none is configured.
const defaultPageLimit = 100

// SyncGateway is the slice of the payment gateway the Sync Job consumes.
type SyncGateway interface {
	ListSubscriptions(ctx context.Context, params types.ListSubscriptionsParams) ([]*types.GatewaySubscription, bool, error)
	GetCustomer(ctx context.Context, customerID string) (*types.GatewayCustomer, error)
	GetProduct(ctx context.Context, productID string) (*types.GatewayProduct, error)
}

// SyncStore runs a function against a transaction-scoped subscription writer.
type SyncStore interface {
	RunInTx(ctx context.Context, fn func(w types.SubscriptionWriter) error) error
}

// SyncService mirrors the gateway's subscriptions into the local store. One
// run is transactional: either every fetched subscription is upserted, or the
// store is left untouched.
type SyncService struct {
	gateway   SyncGateway
	store     SyncStore
	logger    *slog.Logger
	pageLimit int
}

// NewSyncService creates a SyncService. pageLimit caps the gateway page size;
// values outside (0, 100] fall back to the default.
func NewSyncService(gateway SyncGateway, store SyncStore, logger *slog.Logger, pageLimit int) *SyncService {
	if logger == nil {
		logger = slog.Default()
	}
	if pageLimit <= 0 || pageLimit > 100 {
		pageLimit = defaultPageLimit
	}
	return &SyncService{
		gateway:   gateway,
		store:     store,
		logger:    logger,
		pageLimit: pageLimit,
	}
}

// Run fetches every subscription page from the gateway and upserts the
// records inside a single transaction. It returns the number of records
// written.
//
// Customer and product lookups degrade gracefully: a failed lookup is logged
// and the corresponding fields stored as NULL, without failing the run. A
// failed page listing aborts the run and rolls back all writes.
func (s *SyncService) Run(ctx context.Context) (int, error) {
	start := time.Now()
	synced := 0

	err := s.store.RunInTx(ctx, func(w types.SubscriptionWriter) error {
		startingAfter := ""
		for {
			subs, hasMore, err := s.gateway.ListSubscriptions(ctx, types.ListSubscriptionsParams{
				Limit:         s.pageLimit,
				StartingAfter: startingAfter,
			})
			if err != nil {
				return err
			}

			for _, sub := range subs {
				rec := s.buildRecord(ctx, sub)
				if err := w.Upsert(ctx, rec); err != nil {
					return err
				}
				synced++
			}

			if !hasMore || len(subs) == 0 {
				return nil
			}
			startingAfter = subs[len(subs)-1].ID
		}
	})
	if err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "subscription sync completed",
		slog.Int("synced", synced),
		slog.Duration("duration", time.Since(start)),
	)
	return synced, nil
}

// buildRecord maps a gateway subscription to its local mirror record,
// resolving customer and product names with graceful degradation.
func (s *SyncService) buildRecord(ctx context.Context, sub *types.GatewaySubscription) *types.SubscriptionRecord {
	rec := &types.SubscriptionRecord{
		ID:         sub.ID,
		CustomerID: sub.CustomerID,
		Status:     sub.Status,
		CreatedAt:  sub.Created,
		UpdatedAt:  sub.CurrentPeriodEnd,
	}

	if sub.PlanID != "" {
		planID := sub.PlanID
		rec.PlanID = &planID
	}

	if customer, err := s.gateway.GetCustomer(ctx, sub.CustomerID); err != nil {
		s.logger.WarnContext(ctx, "customer lookup failed during sync",
			slog.String("subscription_id", sub.ID),
			slog.String("customer_id", sub.CustomerID),
			slog.Any("error", err),
		)
	} else {
		if customer.Name != "" {
			name := customer.Name
			rec.CustomerName = &name
		}
		if customer.Email != "" {
			email := customer.Email
			rec.CustomerEmail = &email
		}
	}

	if sub.PlanProductID != "" {
		if product, err := s.gateway.GetProduct(ctx, sub.PlanProductID); err != nil {
			s.logger.WarnContext(ctx, "product lookup failed during sync",
				slog.String("subscription_id", sub.ID),
				slog.String("product_id", sub.PlanProductID),
				slog.Any("error", err),
			)
		} else if product.Name != "" {
			name := product.Name
			rec.ProductName = &name
		}
	}

	// Only active subscriptions get an expiry date.
	if sub.Status == types.SubStatusActive {
		expiry := sub.CurrentPeriodEnd.Add(expiryGrace)
		rec.ExpiryDate = &expiry
	}

	return rec
}
