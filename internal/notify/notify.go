// Package notify delivers customer notifications for order events.
package notify

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/velora/storefront/internal/domain/order"
)

var _ order.Notifier = (*LogNotifier)(nil)

// LogNotifier records order confirmations in the structured log instead of
// sending mail. It stands in until a mail provider is wired up; checkout
// already treats notification failures as non-fatal.
type LogNotifier struct{}

// NewLogNotifier returns a Notifier that only logs.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// SendOrderConfirmation logs the confirmation that would have been mailed.
func (n *LogNotifier) SendOrderConfirmation(ctx context.Context, email string, o *order.Order) error {
	zctx.From(ctx).Info("Order confirmation",
		zap.String("email", email),
		zap.String("order", o.Number),
		zap.String("total", o.Total.StringFixed(2)),
		zap.Int("items", len(o.Items)),
	)
	return nil
}
