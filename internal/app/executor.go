/**
 * @description
 * This file contains the idempotent transfer executor: the component that
 * moves funds to an expert's connected account exactly once per logical
 * transfer. Idempotency is enforced twice: a duplicate-transfer guard that
 * detects a transfer already created by the webhook-driven payout path, and a
 * deterministic idempotency key on creation so retries and concurrent runs
 * collapse to a single processor-side transfer.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/consulto/payout-service/internal/domain"
	"github.com/consulto/payout-service/internal/store"
	"github.com/consulto/payout-service/pkg/stripeclient"
)

// ProcessorClient is the subset of the payment processor API the executor
// needs. The concrete Stripe client satisfies it; tests substitute stubs.
type ProcessorClient interface {
	GetPaymentIntent(ctx context.Context, paymentIntentID string) (*stripeclient.PaymentIntent, error)
	ListTransfersByGroup(ctx context.Context, transferGroup string) ([]stripeclient.Transfer, error)
	CreateTransfer(ctx context.Context, p stripeclient.CreateTransferParams) (*stripeclient.Transfer, error)
}

// ExecutionError carries an operator-facing error code alongside the cause.
type ExecutionError struct {
	Code string
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func newExecutionError(code string, err error) *ExecutionError {
	return &ExecutionError{Code: code, Err: err}
}

// classifyError maps an arbitrary failure onto a stable error code for the
// ledger's last_error field.
func classifyError(err error) string {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Code
	}
	var apiErr *stripeclient.ErrorResponse
	if errors.As(err, &apiErr) {
		return apiErr.Code()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "processor_timeout"
	}
	return "processor_error"
}

// IdempotencyKey derives the deterministic processor idempotency key for a
// logical transfer. Every execution path for the same transfer id must use
// this exact key.
func IdempotencyKey(transfer domain.PaymentTransfer) string {
	return "transfer:" + transfer.ID.String()
}

// Executor performs the payment-processor side of a payout and commits the
// result to the ledger.
type Executor struct {
	repo      store.Repository
	processor ProcessorClient
	notifier  *NotificationDispatcher
	logger    *slog.Logger
}

// NewExecutor creates a new transfer executor.
func NewExecutor(repo store.Repository, processor ProcessorClient, notifier *NotificationDispatcher, logger *slog.Logger) *Executor {
	return &Executor{
		repo:      repo,
		processor: processor,
		notifier:  notifier,
		logger:    logger,
	}
}

// Execute attempts the payout for one eligible transfer. On success the
// ledger row is completed (compare-and-swap) and a payout-completed
// notification is requested. Failures are returned to the caller for routing
// through the retry state machine; the ledger is not touched here on failure.
func (e *Executor) Execute(ctx context.Context, transfer domain.PaymentTransfer, appointment domain.Appointment) (string, error) {
	// 1. Resolve the captured charge behind the appointment's payment intent.
	intent, err := e.processor.GetPaymentIntent(ctx, appointment.PaymentIntentID)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve payment intent %s: %w", appointment.PaymentIntentID, err)
	}
	if intent.LatestCharge == "" {
		return "", newExecutionError("charge_unresolved",
			fmt.Errorf("payment intent %s has no captured charge", appointment.PaymentIntentID))
	}
	chargeID := intent.LatestCharge

	// 2. Duplicate-transfer guard: the webhook-driven payout path may have
	// already moved the funds for this charge. An existing transfer is
	// adopted, never duplicated.
	existing, err := e.processor.ListTransfersByGroup(ctx, chargeID)
	if err != nil {
		return "", fmt.Errorf("failed to query existing transfers for charge %s: %w", chargeID, err)
	}

	var externalID string
	if len(existing) > 0 {
		externalID = existing[0].ID
		e.logger.Info("adopting existing processor transfer",
			"transfer_id", transfer.ID, "external_transfer_id", externalID, "charge_id", chargeID)
	} else {
		created, err := e.processor.CreateTransfer(ctx, stripeclient.CreateTransferParams{
			Amount:            transfer.Amount,
			Currency:          transfer.Currency,
			Destination:       transfer.DestinationAccountID,
			SourceTransaction: chargeID,
			TransferGroup:     chargeID,
			Metadata: map[string]string{
				"transfer_id":        transfer.ID.String(),
				"event_id":           transfer.EventID,
				"expert_id":          transfer.ExpertID.String(),
				"session_start_time": transfer.SessionStartTime.UTC().Format(time.RFC3339),
			},
			IdempotencyKey: IdempotencyKey(transfer),
		})
		if err != nil {
			return "", fmt.Errorf("failed to create transfer for charge %s: %w", chargeID, err)
		}
		externalID = created.ID
	}

	// 3. Commit to the ledger. A conflict means another invocation settled
	// the row first; the idempotency key guarantees both saw the same
	// external transfer, so this is success, not an error.
	if err := e.repo.CompleteTransfer(ctx, transfer.ID, externalID); err != nil {
		if errors.Is(err, store.ErrTransferConflict) {
			e.logger.Info("transfer settled by a concurrent invocation", "transfer_id", transfer.ID)
			return externalID, nil
		}
		return "", fmt.Errorf("failed to record transfer completion: %w", err)
	}

	e.notifier.PayoutCompleted(ctx, domain.PayoutCompletedEvent{
		TransferID:         transfer.ID,
		EventID:            transfer.EventID,
		ExpertID:           transfer.ExpertID,
		Amount:             transfer.Amount,
		Currency:           transfer.Currency,
		ExternalTransferID: externalID,
		Timestamp:          time.Now().UTC(),
	})

	return externalID, nil
}
