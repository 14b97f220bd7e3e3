package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"subtrack/internal/types"
)

// alertSubject is the subject line of expiry alert emails.
const alertSubject = "Subscription Expiry Alert"

// AlertGateway is the slice of the payment gateway the Expiry Alert Job
// consumes.
type AlertGateway interface {
	ListSubscriptions(ctx context.Context, params types.ListSubscriptionsParams) ([]*types.GatewaySubscription, bool, error)
	GetCustomer(ctx context.Context, customerID string) (*types.GatewayCustomer, error)
}

// Mailer delivers a single email message.
type Mailer interface {
	Send(ctx context.Context, msg types.MailMessage) error
}

// AlertService emails customers whose active subscription ends within the
// configured window. Per-subscription failures (missing email, mail relay
// down) are logged and skipped; only a failed gateway listing aborts a run.
type AlertService struct {
	gateway       AlertGateway
	mailer        Mailer
	logger        *slog.Logger
	daysBeforeEnd int
	pageLimit     int
	now           func() time.Time // injected clock for tests
}

// NewAlertService creates an AlertService. daysBeforeEnd controls how long
// before the period end the alert window opens.
func NewAlertService(gateway AlertGateway, mailer Mailer, logger *slog.Logger, daysBeforeEnd int) *AlertService {
	if logger == nil {
		logger = slog.Default()
	}
	if daysBeforeEnd <= 0 {
		daysBeforeEnd = 3
	}
	return &AlertService{
		gateway:       gateway,
		mailer:        mailer,
		logger:        logger,
		daysBeforeEnd: daysBeforeEnd,
		pageLimit:     defaultPageLimit,
		now:           time.Now,
	}
}

// Run scans all active subscriptions and sends an alert for each one whose
// alert window has opened. It returns the number of alerts sent.
func (s *AlertService) Run(ctx context.Context) (int, error) {
	start := time.Now()
	sent := 0

	startingAfter := ""
	for {
		subs, hasMore, err := s.gateway.ListSubscriptions(ctx, types.ListSubscriptionsParams{
			Status:        string(types.SubStatusActive),
			Limit:         s.pageLimit,
			StartingAfter: startingAfter,
		})
		if err != nil {
			return sent, err
		}

		for _, sub := range subs {
			if s.alertSubscription(ctx, sub) {
				sent++
			}
		}

		if !hasMore || len(subs) == 0 {
			break
		}
		startingAfter = subs[len(subs)-1].ID
	}

	s.logger.InfoContext(ctx, "expiry alert run completed",
		slog.Int("sent", sent),
		slog.Duration("duration", time.Since(start)),
	)
	return sent, nil
}

// alertSubscription sends an alert for one subscription if its window has
// opened. Returns true when an email was delivered.
func (s *AlertService) alertSubscription(ctx context.Context, sub *types.GatewaySubscription) bool {
	endDate := sub.CurrentPeriodEnd
	alertDate := endDate.AddDate(0, 0, -s.daysBeforeEnd)
	if s.now().UTC().Before(alertDate) {
		return false
	}

	customer, err := s.gateway.GetCustomer(ctx, sub.CustomerID)
	if err != nil {
		s.logger.WarnContext(ctx, "customer lookup failed during alert run",
			slog.String("subscription_id", sub.ID),
			slog.String("customer_id", sub.CustomerID),
			slog.Any("error", err),
		)
		return false
	}
	if customer.Email == "" {
		s.logger.WarnContext(ctx, "customer has no email; skipping expiry alert",
			slog.String("subscription_id", sub.ID),
			slog.String("customer_id", sub.CustomerID),
		)
		return false
	}

	msg := types.MailMessage{
		To:      customer.Email,
		Subject: alertSubject,
		Body:    fmt.Sprintf("Your subscription %s is about to expire on %s.", sub.ID, endDate.Format("2006-01-02")),
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.WarnContext(ctx, "failed to send expiry alert",
			slog.String("subscription_id", sub.ID),
			slog.String("email", customer.Email),
			slog.Any("error", err),
		)
		return false
	}

	return true
}
