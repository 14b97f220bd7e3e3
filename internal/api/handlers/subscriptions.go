// Package handlers contains the HTTP handler implementations for the
// SubTrack API.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"subtrack/internal/config"
	"subtrack/internal/core"
	"subtrack/internal/types"
)

// --- Service Interfaces ---
//
// The service contracts are defined locally and injected via the constructor,
// which keeps the handler decoupled from concrete service types and enables
// test mocking.

// SubscriptionGateway abstracts the payment provider operations the handler
// drives directly.
type SubscriptionGateway interface {
	CreateCheckoutSession(ctx context.Context, priceID string, urls types.RedirectURLs) (*types.CheckoutSession, error)
	UpdateSubscriptionPrice(ctx context.Context, subscriptionID, priceID string) (*types.GatewaySubscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*types.GatewaySubscription, error)
	ListInvoices(ctx context.Context, params types.ListInvoicesParams) ([]*types.GatewayInvoice, error)
}

// SubscriptionSyncer mirrors the provider's subscriptions into local storage.
type SubscriptionSyncer interface {
	Run(ctx context.Context) (int, error)
}

// ReceiptSender emails the post-checkout receipt for a completed session.
type ReceiptSender interface {
	Send(ctx context.Context, sessionID string) error
}

// --- Request/Response Models ---

// CreateCheckoutRequest is the request body for POST /create-checkout-session.
type CreateCheckoutRequest struct {
	PriceID string `json:"price_id" validate:"required"`
}

// CheckoutResponse is the response for POST /create-checkout-session.
type CheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
}

// UpgradeRequest is the request body for POST /upgrade-subscription.
type UpgradeRequest struct {
	CustomerID     string `json:"customer_id" validate:"required"`
	SubscriptionID string `json:"subscription_id" validate:"required"`
	NewPlanID      string `json:"new_plan_id" validate:"required"`
}

// CancelRequest is the request body for POST /cancel-subscription.
type CancelRequest struct {
	SubscriptionID string `json:"subscription_id" validate:"required"`
}

// --- Handler ---

// SubscriptionHandler handles checkout, subscription lifecycle, and sync
// endpoints.
type SubscriptionHandler struct {
	gateway   SubscriptionGateway
	syncer    SubscriptionSyncer
	receipts  ReceiptSender
	validator *core.Validator
	urls      types.RedirectURLs
	logger    *slog.Logger
}

func NewSubscriptionHandler(
	gateway SubscriptionGateway,
	syncer SubscriptionSyncer,
	receipts ReceiptSender,
	cfg *config.Config,
	v *core.Validator,
	l *slog.Logger,
) *SubscriptionHandler {
	if l == nil {
		l = slog.Default()
	}

	var urls types.RedirectURLs
	if cfg != nil {
		// The provider substitutes the placeholder with the real session ID
		// on redirect.
		urls = types.RedirectURLs{
			Success: cfg.Billing.CheckoutSuccessURL + "?session_id={CHECKOUT_SESSION_ID}",
			Cancel:  cfg.Billing.CheckoutCancelURL,
		}
	}

	return &SubscriptionHandler{
		gateway:   gateway,
		syncer:    syncer,
		receipts:  receipts,
		validator: v,
		urls:      urls,
		logger:    l,
	}
}

// RegisterRoutes mounts all subscription endpoints.
func (h *SubscriptionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/store_subscriptions", h.StoreSubscriptions)
	r.Get("/success", h.CheckoutSuccess)
	r.Get("/cancel", h.CheckoutCancel)
	r.Post("/create-checkout-session", h.CreateCheckoutSession)
	r.Post("/upgrade-subscription", h.UpgradeSubscription)
	r.Post("/cancel-subscription", h.CancelSubscription)
}

// StoreSubscriptions handles GET /store_subscriptions. It runs a full sync of
// the provider's subscriptions into the local mirror.
func (h *SubscriptionHandler) StoreSubscriptions(w http.ResponseWriter, r *http.Request) {
	synced, err := h.syncer.Run(r.Context())
	if err != nil {
		core.Error(w, r, h.logger, remapSyncError(err))
		return
	}

	h.logger.InfoContext(r.Context(), "stored subscriptions", slog.Int("count", synced))
	core.JSON(w, r, http.StatusOK, map[string]string{
		"status": "Subscriptions stored successfully",
	})
}

// remapSyncError keeps the error code but presents a stable message that
// tells the caller which side of the sync failed.
func remapSyncError(err error) error {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return types.NewAppError(types.ErrCodeInternalDB, "Failed to store subscriptions in the database", err)
	}
	switch appErr.Code {
	case types.ErrCodeInternalDB:
		return types.NewAppError(appErr.Code, "Failed to store subscriptions in the database", err)
	default:
		return types.NewAppError(appErr.Code, "Failed to fetch subscriptions from Stripe", err)
	}
}

// CheckoutSuccess handles GET /success, the checkout redirect target. It
// sends the receipt email for the completed session and responds in plain
// text.
func (h *SubscriptionHandler) CheckoutSuccess(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		core.Error(w, r, h.logger, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"session_id query parameter is required",
			nil,
		))
		return
	}

	if err := h.receipts.Send(r.Context(), sessionID); err != nil {
		core.Error(w, r, h.logger, err)
		return
	}

	core.PlainText(w, http.StatusOK, "Success! Email sent with subscription details.")
}

// CheckoutCancel handles GET /cancel, the abandoned-checkout redirect target.
func (h *SubscriptionHandler) CheckoutCancel(w http.ResponseWriter, _ *http.Request) {
	core.PlainText(w, http.StatusOK, "Payment was canceled.")
}

// CreateCheckoutSession handles POST /create-checkout-session.
func (h *SubscriptionHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req CreateCheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, h.logger, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, h.logger, err)
		return
	}

	session, err := h.gateway.CreateCheckoutSession(r.Context(), req.PriceID, h.urls)
	if err != nil {
		core.Error(w, r, h.logger, err)
		return
	}

	core.JSON(w, r, http.StatusOK, CheckoutResponse{CheckoutURL: session.URL})
}

// UpgradeSubscription handles POST /upgrade-subscription. It moves the
// subscription to the new price immediately and returns the resulting
// invoice's hosted URL.
//
// When the provider requires an extra payment step to complete the change,
// the response carries the payment intent client secret so the frontend can
// confirm the payment.
func (h *SubscriptionHandler) UpgradeSubscription(w http.ResponseWriter, r *http.Request) {
	var req UpgradeRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, h.logger, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, h.logger, err)
		return
	}

	if _, err := h.gateway.UpdateSubscriptionPrice(r.Context(), req.SubscriptionID, req.NewPlanID); err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodePaymentActionRequired {
			if secret, ok := appErr.Details["payment_intent_client_secret"].(string); ok && secret != "" {
				core.JSON(w, r, http.StatusOK, map[string]string{
					"payment_intent_client_secret": secret,
				})
				return
			}
		}
		core.Error(w, r, h.logger, err)
		return
	}

	invoices, err := h.gateway.ListInvoices(r.Context(), types.ListInvoicesParams{
		CustomerID:     req.CustomerID,
		SubscriptionID: req.SubscriptionID,
		Limit:          1,
	})
	if err != nil {
		core.Error(w, r, h.logger, err)
		return
	}

	if len(invoices) == 0 {
		core.JSON(w, r, http.StatusOK, map[string]string{
			"message": "No invoice found for the subscription.",
		})
		return
	}

	core.JSON(w, r, http.StatusOK, map[string]string{
		"invoice_url": invoices[0].HostedInvoiceURL,
	})
}

// CancelSubscription handles POST /cancel-subscription. The subscription is
// canceled immediately, not at period end.
func (h *SubscriptionHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, h.logger, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, h.logger, err)
		return
	}

	if _, err := h.gateway.CancelSubscription(r.Context(), req.SubscriptionID); err != nil {
		core.Error(w, r, h.logger, err)
		return
	}

	core.JSON(w, r, http.StatusOK, map[string]string{
		"message": "Subscription canceled successfully.",
	})
}
