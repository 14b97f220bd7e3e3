package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"subtrack/internal/types"

	stripe "github.com/stripe/stripe-go/v82"
)

// stripeAPIBase is the default Stripe API base URL.
// Overridable in tests via StripeClientConfig.BaseURL.
const stripeAPIBase = "https://api.stripe.com"

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey string
	BaseURL   string // Override for testing; defaults to stripeAPIBase
	Logger    *slog.Logger
}

// StripeClient talks to the Stripe REST API directly through BaseClient. This
// routes all requests through the resilience infrastructure (circuit breaker,
// retries, error mapping) and makes testing with httptest straightforward.
type StripeClient struct {
	base      *BaseClient
	secretKey string
	baseURL   string
	logger    *slog.Logger
}

// NewStripeClient creates a new StripeClient. The httpClient timeout should
// comfortably cover a single Stripe round trip (20s is a reasonable value).
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	base := NewBaseClient(
		httpClient,
		"stripe",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"SubTrack/1.0",
	)

	return newStripeClient(base, cfg)
}

// NewStripeClientWithBase creates a StripeClient with a pre-configured
// BaseClient. This is useful for testing when you want to control the
// BaseClient configuration.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	return newStripeClient(base, cfg)
}

func newStripeClient(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// ---------------------------------------------------------------------------
// Subscriptions
// ---------------------------------------------------------------------------

// ListSubscriptions retrieves one page of subscriptions. It returns the page,
// a flag indicating whether more pages exist, and an error. Callers paginate
// by passing the last subscription ID of a page as params.StartingAfter.
func (s *StripeClient) ListSubscriptions(
	ctx context.Context,
	params types.ListSubscriptionsParams,
) ([]*types.GatewaySubscription, bool, error) {
	query := url.Values{}
	if params.Status != "" {
		query.Set("status", params.Status)
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}
	query.Set("limit", strconv.Itoa(limit))
	if params.StartingAfter != "" {
		query.Set("starting_after", params.StartingAfter)
	}

	resp, err := s.doGet(ctx, "/v1/subscriptions", query)
	if err != nil {
		return nil, false, s.wrapStripeError("ListSubscriptions", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false, s.handleErrorResponse(resp, "ListSubscriptions")
	}

	var listResp stripeSubscriptionList
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return nil, false, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe subscriptions response",
			err,
		)
	}

	subs := make([]*types.GatewaySubscription, 0, len(listResp.Data))
	for i := range listResp.Data {
		subs = append(subs, mapStripeSubscription(&listResp.Data[i]))
	}

	return subs, listResp.HasMore, nil
}

// GetSubscription retrieves a single subscription by ID.
func (s *StripeClient) GetSubscription(ctx context.Context, subscriptionID string) (*types.GatewaySubscription, error) {
	resp, err := s.doGet(ctx, "/v1/subscriptions/"+url.PathEscape(subscriptionID), nil)
	if err != nil {
		return nil, s.wrapStripeError("GetSubscription", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "GetSubscription")
	}

	var sub stripeSubscription
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe subscription response",
			err,
		)
	}

	return mapStripeSubscription(&sub), nil
}

// UpdateSubscriptionPrice switches the subscription's single item to the new
// price. It first retrieves the subscription to find the item ID, then
// modifies it in place with proration (Stripe's default behavior). Any
// pending cancel-at-period-end flag is cleared, so a plan change always
// reactivates the subscription.
func (s *StripeClient) UpdateSubscriptionPrice(
	ctx context.Context,
	subscriptionID string,
	newPriceID string,
) (*types.GatewaySubscription, error) {
	current, err := s.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if current.FirstItemID == "" {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("UpdateSubscriptionPrice: subscription %s has no items", subscriptionID),
			nil,
		)
	}

	params := url.Values{}
	params.Set("cancel_at_period_end", "false")
	params.Set("items[0][id]", current.FirstItemID)
	params.Set("items[0][price]", newPriceID)

	resp, err := s.doPost(ctx, "/v1/subscriptions/"+url.PathEscape(subscriptionID), params)
	if err != nil {
		return nil, s.wrapStripeError("UpdateSubscriptionPrice", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "UpdateSubscriptionPrice")
	}

	var sub stripeSubscription
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe subscription response",
			err,
		)
	}

	return mapStripeSubscription(&sub), nil
}

// CancelSubscription cancels the subscription immediately. The subscription
// transitions to status "canceled" and is not billed again.
func (s *StripeClient) CancelSubscription(ctx context.Context, subscriptionID string) (*types.GatewaySubscription, error) {
	resp, err := s.doDelete(ctx, "/v1/subscriptions/"+url.PathEscape(subscriptionID))
	if err != nil {
		return nil, s.wrapStripeError("CancelSubscription", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "CancelSubscription")
	}

	var sub stripeSubscription
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe subscription response",
			err,
		)
	}

	return mapStripeSubscription(&sub), nil
}

// ---------------------------------------------------------------------------
// Checkout
// ---------------------------------------------------------------------------

// CreateCheckoutSession creates a hosted checkout session in subscription
// mode for a single line item on the given price.
func (s *StripeClient) CreateCheckoutSession(
	ctx context.Context,
	priceID string,
	urls types.RedirectURLs,
) (*types.CheckoutSession, error) {
	params := url.Values{}
	params.Set("mode", "subscription")
	params.Set("payment_method_types[0]", "card")
	params.Set("line_items[0][price]", priceID)
	params.Set("line_items[0][quantity]", "1")
	params.Set("success_url", urls.Success)
	params.Set("cancel_url", urls.Cancel)

	resp, err := s.doPost(ctx, "/v1/checkout/sessions", params)
	if err != nil {
		return nil, s.wrapStripeError("CreateCheckoutSession", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "CreateCheckoutSession")
	}

	var session stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe checkout session response",
			err,
		)
	}

	return &types.CheckoutSession{
		ID:             session.ID,
		URL:            session.URL,
		SubscriptionID: session.Subscription,
	}, nil
}

// GetCheckoutSession retrieves a completed checkout session by ID, used to
// resolve the subscription created by a checkout flow.
func (s *StripeClient) GetCheckoutSession(ctx context.Context, sessionID string) (*types.CheckoutSession, error) {
	resp, err := s.doGet(ctx, "/v1/checkout/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, s.wrapStripeError("GetCheckoutSession", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "GetCheckoutSession")
	}

	var session stripeCheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe checkout session response",
			err,
		)
	}

	return &types.CheckoutSession{
		ID:             session.ID,
		URL:            session.URL,
		SubscriptionID: session.Subscription,
	}, nil
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

// GetCustomer retrieves a customer by ID.
func (s *StripeClient) GetCustomer(ctx context.Context, customerID string) (*types.GatewayCustomer, error) {
	resp, err := s.doGet(ctx, "/v1/customers/"+url.PathEscape(customerID), nil)
	if err != nil {
		return nil, s.wrapStripeError("GetCustomer", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "GetCustomer")
	}

	var customer stripeCustomer
	if err := json.NewDecoder(resp.Body).Decode(&customer); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe customer response",
			err,
		)
	}

	return &types.GatewayCustomer{
		ID:    customer.ID,
		Name:  customer.Name,
		Email: customer.Email,
	}, nil
}

// GetProduct retrieves a product by ID.
func (s *StripeClient) GetProduct(ctx context.Context, productID string) (*types.GatewayProduct, error) {
	resp, err := s.doGet(ctx, "/v1/products/"+url.PathEscape(productID), nil)
	if err != nil {
		return nil, s.wrapStripeError("GetProduct", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "GetProduct")
	}

	var product stripeProduct
	if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe product response",
			err,
		)
	}

	return &types.GatewayProduct{
		ID:   product.ID,
		Name: product.Name,
	}, nil
}

// GetPaymentMethod retrieves a payment method by ID.
func (s *StripeClient) GetPaymentMethod(ctx context.Context, paymentMethodID string) (*types.GatewayPaymentMethod, error) {
	resp, err := s.doGet(ctx, "/v1/payment_methods/"+url.PathEscape(paymentMethodID), nil)
	if err != nil {
		return nil, s.wrapStripeError("GetPaymentMethod", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "GetPaymentMethod")
	}

	var pm stripePaymentMethod
	if err := json.NewDecoder(resp.Body).Decode(&pm); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe payment method response",
			err,
		)
	}

	method := &types.GatewayPaymentMethod{ID: pm.ID}
	if pm.Card != nil {
		method.CardBrand = pm.Card.Brand
		method.CardLast4 = pm.Card.Last4
	}
	return method, nil
}

// ListInvoices retrieves invoices filtered by customer and/or subscription,
// newest first (Stripe's default ordering).
func (s *StripeClient) ListInvoices(ctx context.Context, params types.ListInvoicesParams) ([]*types.GatewayInvoice, error) {
	query := url.Values{}
	if params.CustomerID != "" {
		query.Set("customer", params.CustomerID)
	}
	if params.SubscriptionID != "" {
		query.Set("subscription", params.SubscriptionID)
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 10
	}
	query.Set("limit", strconv.Itoa(limit))

	resp, err := s.doGet(ctx, "/v1/invoices", query)
	if err != nil {
		return nil, s.wrapStripeError("ListInvoices", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "ListInvoices")
	}

	var listResp stripeInvoiceList
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to decode Stripe invoices response",
			err,
		)
	}

	invoices := make([]*types.GatewayInvoice, 0, len(listResp.Data))
	for i := range listResp.Data {
		si := &listResp.Data[i]
		invoices = append(invoices, &types.GatewayInvoice{
			ID:               si.ID,
			AmountDueCents:   si.AmountDue,
			Created:          time.Unix(si.Created, 0).UTC(),
			HostedInvoiceURL: si.HostedInvoiceURL,
			PDFURL:           si.InvoicePDF,
		})
	}

	return invoices, nil
}

// DownloadInvoicePDF fetches the hosted invoice PDF and writes it to destPath.
// Invoice PDF URLs are pre-signed by Stripe, so no auth headers are sent.
func (s *StripeClient) DownloadInvoicePDF(ctx context.Context, pdfURL string, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamStripe, "invalid invoice PDF URL", err)
	}

	resp, err := s.base.Do(req)
	if err != nil {
		return s.wrapStripeError("DownloadInvoicePDF", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("DownloadInvoicePDF: Stripe returned status %d", resp.StatusCode),
			nil,
		)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create invoice PDF file", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to write invoice PDF file", err)
	}

	return nil
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

// doGet performs an authenticated GET request to the Stripe API.
func (s *StripeClient) doGet(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	reqURL := s.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

// doPost performs an authenticated POST request to the Stripe API with a
// form-encoded body.
func (s *StripeClient) doPost(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	reqURL := s.baseURL + path
	body := params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

// doDelete performs an authenticated DELETE request to the Stripe API.
func (s *StripeClient) doDelete(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	s.setAuthHeaders(req)

	return s.base.Do(req)
}

// setAuthHeaders sets the Stripe API authentication and version headers.
func (s *StripeClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

// stripeErrorResponse represents the JSON error body returned by the Stripe API.
type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type          string               `json:"type"`
	Code          string               `json:"code"`
	Message       string               `json:"message"`
	Param         string               `json:"param"`
	PaymentIntent *stripePaymentIntent `json:"payment_intent"`
}

type stripePaymentIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

// handleErrorResponse reads a Stripe error response and maps it to a
// types.AppError.
func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var stripeErr stripeErrorResponse
	if jsonErr := json.Unmarshal(body, &stripeErr); jsonErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe returned status %d with non-JSON body", operation, resp.StatusCode),
			jsonErr,
		)
	}

	return s.mapStripeError(operation, resp.StatusCode, &stripeErr.Error)
}

// mapStripeError translates a Stripe error into a types.AppError.
func (s *StripeClient) mapStripeError(operation string, statusCode int, stripeErr *stripeErrorBody) error {
	// A payment intent on the error means the charge needs customer
	// confirmation (e.g., 3-D Secure). The client secret is surfaced so the
	// frontend can resume the payment flow.
	if stripeErr.PaymentIntent != nil && stripeErr.PaymentIntent.ClientSecret != "" {
		return types.NewAppErrorWithDetails(
			types.ErrCodePaymentActionRequired,
			stripeErr.Message,
			nil,
			map[string]any{
				"payment_intent_client_secret": stripeErr.PaymentIntent.ClientSecret,
				"stripe_code":                  stripeErr.Code,
			},
		)
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: Stripe rate limit exceeded", operation),
			nil,
		)
	case statusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s: Stripe server error: %s", operation, stripeErr.Message),
			nil,
		)
	case statusCode == http.StatusNotFound:
		return types.NewAppError(
			types.ErrCodeNotFoundResource,
			fmt.Sprintf("%s: Stripe resource not found: %s", operation, stripeErr.Message),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: Stripe error (%d): %s", operation, statusCode, stripeErr.Message),
			nil,
		)
	}
}

// wrapStripeError wraps a BaseClient transport error with context.
func (s *StripeClient) wrapStripeError(operation string, err error) error {
	// AppErrors from BaseClient (circuit breaker, retries exhausted)
	// already carry the right error code.
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: Stripe request failed: %v", operation, err),
		err,
	)
}

// ---------------------------------------------------------------------------
// Stripe Response Types (for JSON deserialization)
// ---------------------------------------------------------------------------

type stripeCustomer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type stripeProduct struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type stripeCheckoutSession struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	Subscription string `json:"subscription"`
}

type stripeInvoice struct {
	ID               string `json:"id"`
	AmountDue        int64  `json:"amount_due"`
	Created          int64  `json:"created"`
	HostedInvoiceURL string `json:"hosted_invoice_url"`
	InvoicePDF       string `json:"invoice_pdf"`
}

type stripeInvoiceList struct {
	Data    []stripeInvoice `json:"data"`
	HasMore bool            `json:"has_more"`
}

type stripeSubscription struct {
	ID                   string                  `json:"id"`
	Customer             string                  `json:"customer"`
	Status               string                  `json:"status"`
	Created              int64                   `json:"created"`
	CurrentPeriodStart   int64                   `json:"current_period_start"`
	CurrentPeriodEnd     int64                   `json:"current_period_end"`
	CancelAtPeriodEnd    bool                    `json:"cancel_at_period_end"`
	DefaultPaymentMethod string                  `json:"default_payment_method"`
	DefaultTaxRates      []json.RawMessage       `json:"default_tax_rates"`
	Items                stripeSubscriptionItems `json:"items"`
}

type stripeSubscriptionItems struct {
	Data []stripeSubscriptionItem `json:"data"`
}

type stripeSubscriptionItem struct {
	ID    string      `json:"id"`
	Price stripePrice `json:"price"`
}

type stripePrice struct {
	ID      string `json:"id"`
	Product string `json:"product"`
}

type stripePaymentMethod struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Card *stripeCardInfo `json:"card"`
}

type stripeCardInfo struct {
	Brand string `json:"brand"`
	Last4 string `json:"last4"`
}

type stripeSubscriptionList struct {
	Data    []stripeSubscription `json:"data"`
	HasMore bool                 `json:"has_more"`
}

// mapStripeSubscription converts a Stripe subscription to its gateway view.
func mapStripeSubscription(sub *stripeSubscription) *types.GatewaySubscription {
	out := &types.GatewaySubscription{
		ID:                     sub.ID,
		CustomerID:             sub.Customer,
		Status:                 types.SubscriptionStatus(sub.Status),
		Created:                time.Unix(sub.Created, 0).UTC(),
		CurrentPeriodStart:     time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:       time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		DefaultPaymentMethodID: sub.DefaultPaymentMethod,
		HasDefaultTaxRates:     len(sub.DefaultTaxRates) > 0,
	}

	if len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		out.FirstItemID = item.ID
		out.PlanID = item.Price.ID
		out.PlanProductID = item.Price.Product
	}

	return out
}
