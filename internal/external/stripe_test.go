package external

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subtrack/internal/types"
)

// newTestStripeClient builds a StripeClient pointed at the given test server
// with retries disabled for deterministic call counts.
func newTestStripeClient(t *testing.T, srv *httptest.Server) *StripeClient {
	t.Helper()
	base := NewBaseClient(srv.Client(), "stripe-test", RetryPolicy{
		MaxRetries: 0,
		MinWait:    time.Millisecond,
		MaxWait:    time.Millisecond,
	}, "SubTrack/1.0", WithSleepFunc(func(time.Duration) {}))

	return NewStripeClientWithBase(base, StripeClientConfig{
		SecretKey: "sk_test_abc",
		BaseURL:   srv.URL,
	})
}

const subscriptionJSON = `{
	"id": "sub_123",
	"customer": "cus_456",
	"status": "active",
	"created": 1700000000,
	"current_period_start": 1700000000,
	"current_period_end": 1702592000,
	"cancel_at_period_end": false,
	"default_payment_method": "pm_789",
	"default_tax_rates": [],
	"items": {"data": [{"id": "si_001", "price": {"id": "price_basic", "product": "prod_111"}}]}
}`

func TestListSubscriptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/subscriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_abc", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("Stripe-Version"))
		assert.Equal(t, "all", r.URL.Query().Get("status"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Equal(t, "sub_000", r.URL.Query().Get("starting_after"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": [` + subscriptionJSON + `], "has_more": true}`))
	}))
	defer srv.Close()

	c := newTestStripeClient(t, srv)

	subs, hasMore, err := c.ListSubscriptions(context.Background(), types.ListSubscriptionsParams{
		Status:        "all",
		Limit:         2,
		StartingAfter: "sub_000",
	})
	require.NoError(t, err)
	assert.True(t, hasMore)
	require.Len(t, subs, 1)

	sub := subs[0]
	assert.Equal(t, "sub_123", sub.ID)
	assert.Equal(t, "cus_456", sub.CustomerID)
	assert.Equal(t, types.SubStatusActive, sub.Status)
	assert.Equal(t, "price_basic", sub.PlanID)
	assert.Equal(t, "prod_111", sub.PlanProductID)
	assert.Equal(t, "si_001", sub.FirstItemID)
	assert.Equal(t, "pm_789", sub.DefaultPaymentMethodID)
	assert.False(t, sub.HasDefaultTaxRates)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), sub.Created)
}

func TestGetSubscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/subscriptions/sub_123", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(subscriptionJSON))
	}))
	defer srv.Close()

	c := newTestStripeClient(t, srv)

	sub, err := c.GetSubscription(context.Background(), "sub_123")
	require.NoError(t, err)
	assert.Equal(t, "sub_123", sub.ID)
	assert.Equal(t, time.Unix(1702592000, 0).UTC(), sub.CurrentPeriodEnd)
}

func TestUpdateSubscriptionPrice(t *testing.T) {
	var modifyForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(subscriptionJSON))
		case http.MethodPost:
			require.NoError(t, r.ParseForm())
			modifyForm = map[string]string{
				"cancel_at_period_end": r.PostForm.Get("cancel_at_period_end"),
				"items[0][id]":         r.PostForm.Get("items[0][id]"),
				"items[0][price]":      r.PostForm.Get("items[0][price]"),
			}
			_, _ = w.Write([]byte(subscriptionJSON))
		}
	}))
	defer srv.Close()

	c := newTestStripeClient(t, srv)

	_, err := c.UpdateSubscriptionPrice(context.Background(), "sub_123", "price_premium")
	require.NoError(t, err)

	assert.Equal(t, "false", modifyForm["cancel_at_period_end"])
	assert.Equal(t, "si_001", modifyForm["items[0][id]"])
	assert.Equal(t, "price_premium", modifyForm["items[0][price]"])
}

func TestUpdateSubscriptionPrice_PaymentActionRequired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(subscriptionJSON))
			return
		}
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error": {
			"type": "card_error",
			"code": "authentication_required",
			"message": "This payment requires authentication.",
			"payment_intent": {"id": "pi_1", "client_secret": "pi_1_secret_xyz", "status": "requires_action"}
		}}`))
	}))
	defer srv.Close()

	c := newTestStripeClient(t, srv)

	_, err := c.UpdateSubscriptionPrice(context.Background(), "sub_123", "price_premium")
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodePaymentActionRequired, appErr.Code)
	assert.Equal(t, "pi_1_secret_xyz", appErr.Details["payment_intent_client_secret"])
	assert.Equal(t, http.StatusPaymentRequired, appErr.HTTPStatus())
}

func TestCancelSubscription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1/subscriptions/sub_123", r.URL.Path)
		_, _ = w.Write([]byte(`{"id": "sub_123", "customer": "cus_456", "status": "canceled",
			"created": 1700000000, "current_period_start": 1700000000, "current_period_end": 1702592000,
			"items": {"data": []}}`))
	}))
	defer srv.Close()

	c := newTestStripeClient(t, srv)

	sub, err := c.CancelSubscription(context.Background(), "sub_123")
	require.NoError(t, err)
	assert.Equal(t, types.SubStatusCanceled, sub.Status)
	assert.False(t, sub.Status.IsActive())
}

func TestCreateCheckoutSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "subscription", r.PostForm.Get("mode"))
		assert.Equal(t, "card", r.PostForm.Get("payment_method_types[0]"))
		assert.Equal(t, "price_basic", r.PostForm.Get("line_items[0][price]"))
		assert.Equal(t, "1", r.PostForm.Get("line_items[0][quantity]"))
		assert.Equal(t, "https://x/success?session_id={CHECKOUT_SESSION_ID}", r.PostForm.Get("success_url"))
		assert.Equal(t, "https://x/cancel", r.PostForm.Get("cancel_url"))

		_, _ = w.Write([]byte(`{"id": "cs_42", "url": "https://checkout.stripe.com/pay/cs_42"}`))
	}))
	defer srv.Close()

	c := newTestStripeClient(t, srv)

	session, err := c.CreateCheckoutSession(context.Background(), "price_basic", types.RedirectURLs{
		Success: "https://x/success?session_id={CHECKOUT_SESSION_ID}",
		Cancel:  "https://x/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_42", session.ID)
	assert.Equal(t, "https://checkout.stripe.com/pay/cs_42", session.URL)
}

func TestGetCheckoutSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions/cs_42", r.URL.Path)
		_, _ = w.Write([]byte(`{"id": "cs_42", "subscription": "sub_123"}`))
	}))
	defer srv.Close()

	c := newTestStripeClient(t, srv)

	session, err := c.GetCheckoutSession(context.Background(), "cs_42")
	require.NoError(t, err)
	assert.Equal(t, "sub_123", session.SubscriptionID)
}

func TestGetCustomer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/customers/cus_456", r.URL.Path)
		_, _ = w.Write([]byte(`{"id": "cus_456", "name": "Ada Lovelace", "email": "ada@example.com"}`))
	}))
	defer srv.Close()

	c := newTestStripeClient(t, srv)

	customer, err := c.GetCustomer(context.Background(), "cus_456")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", customer.Name)
	assert.Equal(t, "ada@example.com", customer.Email)
}

func TestGetProduct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/products/prod_111", r.URL.Path)
		_, _ = w.Write([]byte(`{"id": "prod_111", "name": "Basic Plan"}`))
	}))
	defer srv.Close()

	c := newTestStripeClient(t, srv)

	product, err := c.GetProduct(context.Background(), "prod_111")
	require.NoError(t, err)
	assert.Equal(t, "Basic Plan", product.Name)
}

func TestGetPaymentMethod(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_methods/pm_789", r.URL.Path)
		_, _ = w.Write([]byte(`{"id": "pm_789", "type": "card", "card": {"brand": "visa", "last4": "4242"}}`))
	}))
	defer srv.Close()

	c := newTestStripeClient(t, srv)

	pm, err := c.GetPaymentMethod(context.Background(), "pm_789")
	require.NoError(t, err)
	assert.Equal(t, "visa", pm.CardBrand)
	assert.Equal(t, "4242", pm.CardLast4)
}

func TestListInvoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/invoices", r.URL.Path)
		assert.Equal(t, "cus_456", r.URL.Query().Get("customer"))
		assert.Equal(t, "sub_123", r.URL.Query().Get("subscription"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"data": [{"id": "in_1", "amount_due": 2500, "created": 1700000000,
			"hosted_invoice_url": "https://inv", "invoice_pdf": "https://inv.pdf"}], "has_more": false}`))
	}))
	defer srv.Close()

	c := newTestStripeClient(t, srv)

	invoices, err := c.ListInvoices(context.Background(), types.ListInvoicesParams{
		CustomerID:     "cus_456",
		SubscriptionID: "sub_123",
		Limit:          1,
	})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, int64(2500), invoices[0].AmountDueCents)
	assert.Equal(t, "https://inv.pdf", invoices[0].PDFURL)
}

func TestStripeErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode types.ErrorCode
	}{
		{
			name:     "404 maps to not_found_resource",
			status:   http.StatusNotFound,
			body:     `{"error": {"type": "invalid_request_error", "message": "No such subscription"}}`,
			wantCode: types.ErrCodeNotFoundResource,
		},
		{
			name:     "400 maps to upstream_stripe_error",
			status:   http.StatusBadRequest,
			body:     `{"error": {"type": "invalid_request_error", "message": "Missing price"}}`,
			wantCode: types.ErrCodeUpstreamStripe,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := newTestStripeClient(t, srv)

			_, err := c.GetSubscription(context.Background(), "sub_missing")
			require.Error(t, err)

			var appErr *types.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantCode, appErr.Code)
		})
	}
}
