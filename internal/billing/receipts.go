package billing

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"subtrack/internal/types"
)

const receiptSubject = "Subscription Created"

const (
	timestampFormat = "January 02, 2006 03:04 PM"
	dateFormat      = "January 02, 2006"
)

// ReceiptGateway is the slice of the payment gateway the receipt flow
// consumes after a completed checkout.
type ReceiptGateway interface {
	GetCheckoutSession(ctx context.Context, sessionID string) (*types.CheckoutSession, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*types.GatewaySubscription, error)
	GetCustomer(ctx context.Context, customerID string) (*types.GatewayCustomer, error)
	GetPaymentMethod(ctx context.Context, paymentMethodID string) (*types.GatewayPaymentMethod, error)
	ListInvoices(ctx context.Context, params types.ListInvoicesParams) ([]*types.GatewayInvoice, error)
	DownloadInvoicePDF(ctx context.Context, pdfURL, destPath string) error
}

// ReceiptService emails a payment receipt, with the latest invoice PDF
// attached when one exists, after a checkout session completes.
type ReceiptService struct {
	gateway ReceiptGateway
	mailer  Mailer
	logger  *slog.Logger
	tempDir string // overridden in tests
}

func NewReceiptService(gateway ReceiptGateway, mailer Mailer, logger *slog.Logger) *ReceiptService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReceiptService{gateway: gateway, mailer: mailer, logger: logger}
}

// Send assembles and delivers the receipt email for a completed checkout
// session.
func (s *ReceiptService) Send(ctx context.Context, sessionID string) error {
	session, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.SubscriptionID == "" {
		return types.NewAppError(types.ErrCodeNotFoundResource, "checkout session has no subscription", nil)
	}

	sub, err := s.gateway.GetSubscription(ctx, session.SubscriptionID)
	if err != nil {
		return err
	}

	customer, err := s.gateway.GetCustomer(ctx, sub.CustomerID)
	if err != nil {
		return err
	}

	paymentMethod, err := s.gateway.GetPaymentMethod(ctx, sub.DefaultPaymentMethodID)
	if err != nil {
		return err
	}

	invoices, err := s.gateway.ListInvoices(ctx, types.ListInvoicesParams{
		SubscriptionID: sub.ID,
		Limit:          1,
	})
	if err != nil {
		return err
	}
	var invoice *types.GatewayInvoice
	if len(invoices) > 0 {
		invoice = invoices[0]
	}

	msg := types.MailMessage{
		To:      customer.Email,
		Subject: receiptSubject,
		Body:    buildReceiptBody(sub, customer, paymentMethod, invoice),
	}

	if invoice != nil && invoice.PDFURL != "" {
		pdfPath, cleanup, err := s.fetchInvoicePDF(ctx, invoice.PDFURL)
		if err != nil {
			return err
		}
		defer cleanup()
		msg.Attachment = &types.MailAttachment{
			Filename: sub.ID + "_invoice.pdf",
			Path:     pdfPath,
		}
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "receipt email sent",
		slog.String("subscription_id", sub.ID),
		slog.String("email", customer.Email),
		slog.Bool("invoice_attached", msg.Attachment != nil),
	)
	return nil
}

// fetchInvoicePDF downloads the invoice PDF into a temporary file and
// returns its path together with a cleanup func that removes it.
func (s *ReceiptService) fetchInvoicePDF(ctx context.Context, pdfURL string) (string, func(), error) {
	f, err := os.CreateTemp(s.tempDir, "invoice-*.pdf")
	if err != nil {
		return "", nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create temporary invoice file", err)
	}
	path := f.Name()
	f.Close()

	if err := s.gateway.DownloadInvoicePDF(ctx, pdfURL, path); err != nil {
		os.Remove(path)
		return "", nil, err
	}

	cleanup := func() {
		if err := os.Remove(path); err != nil {
			s.logger.WarnContext(ctx, "failed to remove temporary invoice file",
				slog.String("path", filepath.Base(path)),
				slog.Any("error", err),
			)
		}
	}
	return path, cleanup, nil
}

func buildReceiptBody(sub *types.GatewaySubscription, customer *types.GatewayCustomer, pm *types.GatewayPaymentMethod, invoice *types.GatewayInvoice) string {
	taxLine := "No tax rate applied"
	if sub.HasDefaultTaxRates {
		taxLine = "Tax rate applied"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Success! Payment was successful.\n\n")
	fmt.Fprintf(&b, "Customer: %s\n", customer.Name)
	fmt.Fprintf(&b, "Created: %s\n", formatReceiptTime(sub.Created, timestampFormat))
	fmt.Fprintf(&b, "Current period: %s to %s\n",
		formatReceiptTime(sub.CurrentPeriodStart, dateFormat),
		formatReceiptTime(sub.CurrentPeriodEnd, dateFormat),
	)
	fmt.Fprintf(&b, "ID: %s\n", sub.ID)
	fmt.Fprintf(&b, "Discounts: None\n")
	fmt.Fprintf(&b, "Billing method: Charge specific payment method\n")
	fmt.Fprintf(&b, "Payment method: •••• %s\n", pm.CardLast4)
	fmt.Fprintf(&b, "Tax calculation: %s", taxLine)

	if invoice != nil {
		fmt.Fprintf(&b, "\n\nInvoice Details:\nInvoice Date: %s\nAmount Due: RS%.2f",
			formatReceiptTime(invoice.Created, timestampFormat),
			float64(invoice.AmountDueCents)/100.0,
		)
	}

	return b.String()
}

func formatReceiptTime(t time.Time, layout string) string {
	return t.UTC().Format(layout)
}
