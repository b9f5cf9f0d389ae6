/**
 * @description
 * The retry and failure state machine. A failed execution attempt increments
 * the transfer's retry count and persists the last error; once the bound is
 * reached the transfer goes terminal and a payout-failed notification is
 * requested. Retries are passive: a non-terminal failure leaves the record
 * eligible for the next scheduled run, so the scheduling cadence itself
 * provides the backoff.
 */

package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/consulto/payout-service/internal/domain"
	"github.com/consulto/payout-service/internal/store"
)

// FailureHandler routes execution failures into the ledger and escalates
// terminal ones.
type FailureHandler struct {
	repo          store.Repository
	notifier      *NotificationDispatcher
	maxRetryCount int
	logger        *slog.Logger
}

// NewFailureHandler creates a failure handler with the given retry bound.
func NewFailureHandler(repo store.Repository, notifier *NotificationDispatcher, maxRetryCount int, logger *slog.Logger) *FailureHandler {
	return &FailureHandler{
		repo:          repo,
		notifier:      notifier,
		maxRetryCount: maxRetryCount,
		logger:        logger,
	}
}

// HandleFailure records one failed attempt. The increment and the terminal
// decision happen in a single atomic ledger update; this method only
// interprets the result and fires the escalation notification when the
// transfer went terminal.
func (h *FailureHandler) HandleFailure(ctx context.Context, transfer domain.PaymentTransfer, execErr error) {
	code := classifyError(execErr)
	message := execErr.Error()

	record, err := h.repo.RecordTransferFailure(ctx, transfer.ID, code, message, h.maxRetryCount)
	if err != nil {
		if errors.Is(err, store.ErrTransferConflict) {
			// A concurrent invocation settled the row between our failure
			// and this write; nothing left to record.
			h.logger.Info("skipping failure record for settled transfer", "transfer_id", transfer.ID)
			return
		}
		h.logger.Error("failed to record transfer failure",
			"transfer_id", transfer.ID, "attempt_error", message, "error", err)
		return
	}

	if record.Status == domain.TransferStatusFailed {
		h.logger.Warn("transfer exhausted retries",
			"transfer_id", transfer.ID, "retry_count", record.RetryCount, "error_code", code)
		h.notifier.PayoutFailed(ctx, domain.PayoutFailedEvent{
			TransferID: transfer.ID,
			EventID:    transfer.EventID,
			ExpertID:   transfer.ExpertID,
			Amount:     transfer.Amount,
			Currency:   transfer.Currency,
			Reason:     message,
			Timestamp:  time.Now().UTC(),
		})
		return
	}

	h.logger.Info("transfer left eligible for next run",
		"transfer_id", transfer.ID, "retry_count", record.RetryCount, "error_code", code)
}
