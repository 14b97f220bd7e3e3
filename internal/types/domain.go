// Package types defines the shared domain model for the subtrack billing
// backend: the locally mirrored subscription record, the gateway-side views
// of Stripe objects, the error taxonomy, and context helpers.
package types

import "time"

// SubscriptionStatus mirrors the payment gateway's subscription status enum.
// subtrack never drives these transitions; it only records what the gateway
// reports.
type SubscriptionStatus string

const (
	SubStatusActive            SubscriptionStatus = "active"
	SubStatusTrialing          SubscriptionStatus = "trialing"
	SubStatusPastDue           SubscriptionStatus = "past_due"
	SubStatusCanceled          SubscriptionStatus = "canceled"
	SubStatusUnpaid            SubscriptionStatus = "unpaid"
	SubStatusIncomplete        SubscriptionStatus = "incomplete"
	SubStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
)

// IsActive reports whether the subscription is in the active state.
// Only active subscriptions carry a computed expiry date.
func (s SubscriptionStatus) IsActive() bool {
	return s == SubStatusActive
}

// SubscriptionRecord is the single persistent entity of the system: a local
// mirror of a gateway subscription, denormalized with customer and product
// data resolved at sync time.
//
// Invariants:
//   - ID is the gateway subscription identifier and the primary key.
//   - ExpiryDate is nil whenever Status is not active; for active
//     subscriptions it equals UpdatedAt + 30 days.
//   - Optional fields are nil when the enrichment lookup failed or the
//     gateway returned no value.
type SubscriptionRecord struct {
	ID            string             `json:"id"`
	CustomerID    string             `json:"customer_id"`
	CustomerName  *string            `json:"customer_name,omitempty"`
	CustomerEmail *string            `json:"customer_email,omitempty"`
	ProductName   *string            `json:"product_name,omitempty"`
	PlanID        *string            `json:"plan_id,omitempty"`
	Status        SubscriptionStatus `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	ExpiryDate    *time.Time         `json:"expiry_date,omitempty"`
}

// ---------------------------------------------------------------------------
// Gateway-side views
//
// These are the domain projections of the gateway's subscription, customer,
// product, payment method, invoice, and checkout session objects. They hold
// only the fields this system reads; everything else stays at the gateway.
// ---------------------------------------------------------------------------

// GatewaySubscription is the domain view of a gateway subscription.
type GatewaySubscription struct {
	ID                     string
	CustomerID             string
	PlanID                 string // empty when the subscription has no plan
	PlanProductID          string // product reference on the plan, if any
	Status                 SubscriptionStatus
	Created                time.Time
	CurrentPeriodStart     time.Time
	CurrentPeriodEnd       time.Time
	CancelAtPeriodEnd      bool
	FirstItemID            string // identifier of the first line item
	DefaultPaymentMethodID string
	HasDefaultTaxRates     bool
}

// GatewayCustomer is the domain view of a gateway customer.
type GatewayCustomer struct {
	ID    string
	Name  string
	Email string
}

// GatewayProduct is the domain view of a gateway product.
type GatewayProduct struct {
	ID   string
	Name string
}

// GatewayPaymentMethod is the domain view of a gateway payment method.
// Card fields are empty for non-card payment methods.
type GatewayPaymentMethod struct {
	ID        string
	CardBrand string
	CardLast4 string
}

// GatewayInvoice is the domain view of a gateway invoice.
type GatewayInvoice struct {
	ID               string
	AmountDueCents   int64
	Created          time.Time
	HostedInvoiceURL string
	PDFURL           string
}

// CheckoutSession is the domain view of a gateway-hosted checkout session.
type CheckoutSession struct {
	ID             string
	URL            string
	SubscriptionID string // set once the session completed in subscription mode
}

// RedirectURLs carries the success and cancel redirect targets for a
// checkout session. The success URL may contain the gateway's
// {CHECKOUT_SESSION_ID} placeholder.
type RedirectURLs struct {
	Success string
	Cancel  string
}

// ListSubscriptionsParams controls a single page of the gateway
// subscription listing. StartingAfter is the gateway's cursor: the ID of
// the last item on the previous page.
type ListSubscriptionsParams struct {
	Status        string // optional status filter, e.g. "active"
	Limit         int
	StartingAfter string
}

// ListInvoicesParams filters a gateway invoice listing. At least one of
// CustomerID or SubscriptionID should be set.
type ListInvoicesParams struct {
	CustomerID     string
	SubscriptionID string
	Limit          int
}

// ---------------------------------------------------------------------------
// Outbound mail
// ---------------------------------------------------------------------------

// MailAttachment references a file to attach to an outbound message.
type MailAttachment struct {
	Filename string // name presented to the recipient
	Path     string // local path of the file content
}

// MailMessage is a plain-text email with an optional attachment.
type MailMessage struct {
	To         string
	Subject    string
	Body       string
	Attachment *MailAttachment
}
