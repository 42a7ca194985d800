package notifications

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atelierworks/atelier-backend/pkg/config"
	"github.com/atelierworks/atelier-backend/pkg/db/models"
	"github.com/atelierworks/atelier-backend/pkg/logger"
)

// Notifier delivers post-payment messages to buyers. Delivery is best
// effort; callers fire it from a goroutine and never block on it.
type Notifier interface {
	OrderPaid(ctx context.Context, order *models.Order)
	OrderFailed(ctx context.Context, order *models.Order, reason string)
}

type notifier struct {
	cfg  config.NotifyConfig
	logg *logger.Logger
}

// New builds the default notifier. Today it emits structured log records
// that the mail relay tails; swapping in a provider client only touches this
// package.
func New(cfg config.NotifyConfig, logg *logger.Logger) (Notifier, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &notifier{cfg: cfg, logg: logg}, nil
}

func (n *notifier) OrderPaid(ctx context.Context, order *models.Order) {
	if order == nil {
		return
	}
	ctx = n.logg.WithFields(ctx, map[string]any{
		"notification": "order_paid",
		"from":         n.cfg.FromEmail,
		"order_id":     order.ID.String(),
		"user_id":      order.UserID.String(),
		"amount":       FormatAmount(order.TotalCents, order.Currency),
	})
	n.logg.Info(ctx, "order paid notification queued")
}

func (n *notifier) OrderFailed(ctx context.Context, order *models.Order, reason string) {
	if order == nil {
		return
	}
	ctx = n.logg.WithFields(ctx, map[string]any{
		"notification": "order_failed",
		"from":         n.cfg.FromEmail,
		"order_id":     order.ID.String(),
		"user_id":      order.UserID.String(),
		"amount":       FormatAmount(order.TotalCents, order.Currency),
		"reason":       reason,
	})
	n.logg.Info(ctx, "order failed notification queued")
}

// FormatAmount renders minor units as a human amount, e.g. 2400 INR -> "INR 24.00".
func FormatAmount(cents int, currency string) string {
	amount := decimal.NewFromInt(int64(cents)).Div(decimal.NewFromInt(100))
	return fmt.Sprintf("%s %s", currency, amount.StringFixed(2))
}
