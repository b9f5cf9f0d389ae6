/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the payout-service. By defining an interface,
 * we decouple the engine's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/consulto/payout-service/internal/domain"
	"github.com/google/uuid"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Candidate selection. Returns transfers that are payable as of `now`:
	// pending, non-manual records whose scheduled time has passed, plus all
	// approved records. Rows with an external transfer id are never returned.
	ListPayableTransfers(ctx context.Context, now time.Time, limit int) ([]domain.PaymentTransfer, error)

	GetTransferByID(ctx context.Context, transferID uuid.UUID) (*domain.PaymentTransfer, error)

	// Collaborator directories (read-only to this engine).
	GetExpertByID(ctx context.Context, expertID uuid.UUID) (*domain.Expert, error)
	GetAppointmentByEventID(ctx context.Context, eventID string) (*domain.Appointment, error)

	// CompleteTransfer records the external transfer id and moves the record
	// to `completed` as one compare-and-swap update. It returns
	// ErrTransferConflict when the row was already completed or failed by a
	// concurrent invocation.
	CompleteTransfer(ctx context.Context, transferID uuid.UUID, externalTransferID string) error

	// RecordTransferFailure increments the retry count, persists the last
	// error, and flips the status to `failed` once the retry bound is
	// reached, all in a single atomic update. It returns the resulting
	// status and retry count.
	RecordTransferFailure(ctx context.Context, transferID uuid.UUID, errorCode, errorMessage string, maxRetryCount int) (*FailureRecord, error)

	// ApproveTransfer is the operator action that moves a pending transfer to
	// `approved`, bypassing the aging check on the next run.
	ApproveTransfer(ctx context.Context, transferID uuid.UUID) (*domain.PaymentTransfer, error)
}

// FailureRecord is the outcome of RecordTransferFailure.
type FailureRecord struct {
	Status     domain.TransferStatus
	RetryCount int
}
