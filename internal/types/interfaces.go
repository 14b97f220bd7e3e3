package types

import "context"

// SubscriptionWriter persists subscription records. The store package
// implements it for both pooled and transactional execution, so services can
// run a whole sync pass inside one transaction without knowing the driver.
type SubscriptionWriter interface {
	Upsert(ctx context.Context, record *SubscriptionRecord) error
}
