/**
 * @description
 * Outbound payout notifications. The dispatcher wraps the RabbitMQ publisher
 * with the two routing keys this engine emits and makes every publish
 * fire-and-forget: a broker failure is logged and swallowed, it never
 * affects transfer state or the batch outcome.
 */

package app

import (
	"context"
	"log/slog"

	"github.com/consulto/payout-service/internal/domain"
	"github.com/consulto/payout-service/pkg/rabbitmq"
)

const (
	routingKeyPayoutCompleted = "payout.completed"
	routingKeyPayoutFailed    = "payout.failed"
)

// NotificationDispatcher publishes payout lifecycle events for the
// notification service to render and deliver to experts.
type NotificationDispatcher struct {
	producer rabbitmq.Publisher
	exchange string
	logger   *slog.Logger
}

// NewNotificationDispatcher creates a dispatcher. A nil producer disables
// publishing entirely (the engine still runs).
func NewNotificationDispatcher(producer rabbitmq.Publisher, exchange string, logger *slog.Logger) *NotificationDispatcher {
	return &NotificationDispatcher{
		producer: producer,
		exchange: exchange,
		logger:   logger,
	}
}

// PayoutCompleted requests a "payout completed" notification.
func (d *NotificationDispatcher) PayoutCompleted(ctx context.Context, event domain.PayoutCompletedEvent) {
	if d.producer == nil {
		return
	}
	if err := d.producer.Publish(ctx, d.exchange, routingKeyPayoutCompleted, event); err != nil {
		d.logger.Warn("failed to publish payout completed event", "transfer_id", event.TransferID, "error", err)
	}
}

// PayoutFailed requests a "payout failed" notification.
func (d *NotificationDispatcher) PayoutFailed(ctx context.Context, event domain.PayoutFailedEvent) {
	if d.producer == nil {
		return
	}
	if err := d.producer.Publish(ctx, d.exchange, routingKeyPayoutFailed, event); err != nil {
		d.logger.Warn("failed to publish payout failed event", "transfer_id", event.TransferID, "error", err)
	}
}
