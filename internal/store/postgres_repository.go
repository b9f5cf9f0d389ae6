/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the SQL needed to select payout candidates, resolve the
 * collaborator records behind them, and apply the two atomic state transitions
 * (completion and failure accounting) the engine depends on.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/consulto/payout-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrTransferNotFound    = errors.New("payment transfer not found")
	ErrExpertNotFound      = errors.New("expert not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrTransferConflict means a concurrent invocation already moved the row
	// to a terminal state; the caller should treat the row as settled.
	ErrTransferConflict   = errors.New("payment transfer already settled")
	ErrTransferNotPending = errors.New("payment transfer is not pending")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const transferColumns = `
	id, event_id, expert_id, session_start_time, amount, currency,
	destination_account_id, scheduled_transfer_time, requires_approval,
	status, external_transfer_id, retry_count, last_error_code,
	last_error_message, created_at, updated_at
`

func scanTransfer(row pgx.Row) (*domain.PaymentTransfer, error) {
	var t domain.PaymentTransfer
	err := row.Scan(
		&t.ID,
		&t.EventID,
		&t.ExpertID,
		&t.SessionStartTime,
		&t.Amount,
		&t.Currency,
		&t.DestinationAccountID,
		&t.ScheduledTransferTime,
		&t.RequiresApproval,
		&t.Status,
		&t.ExternalTransferID,
		&t.RetryCount,
		&t.LastErrorCode,
		&t.LastErrorMessage,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListPayableTransfers selects the batch candidates for one run.
// The `external_transfer_id IS NULL` predicate is defense-in-depth on top of
// the executor's duplicate guard: a settled row must never be re-selected.
func (r *PostgresRepository) ListPayableTransfers(ctx context.Context, now time.Time, limit int) ([]domain.PaymentTransfer, error) {
	query := `
		SELECT ` + transferColumns + `
		FROM payment_transfers
		WHERE external_transfer_id IS NULL
		  AND (
			(status = 'pending' AND requires_approval = false AND scheduled_transfer_time <= $1)
			OR status = 'approved'
		  )
		ORDER BY scheduled_transfer_time ASC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []domain.PaymentTransfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, *t)
	}
	return transfers, rows.Err()
}

// GetTransferByID retrieves a single transfer record.
func (r *PostgresRepository) GetTransferByID(ctx context.Context, transferID uuid.UUID) (*domain.PaymentTransfer, error) {
	query := `SELECT ` + transferColumns + ` FROM payment_transfers WHERE id = $1`
	t, err := scanTransfer(r.db.QueryRow(ctx, query, transferID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransferNotFound
		}
		return nil, err
	}
	return t, nil
}

// GetExpertByID retrieves the payout-relevant view of an expert.
func (r *PostgresRepository) GetExpertByID(ctx context.Context, expertID uuid.UUID) (*domain.Expert, error) {
	var expert domain.Expert
	query := `SELECT id, btrim(country), connected_account_id FROM experts WHERE id = $1`
	err := r.db.QueryRow(ctx, query, expertID).Scan(&expert.ID, &expert.Country, &expert.ConnectedAccountID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrExpertNotFound
		}
		return nil, err
	}
	return &expert, nil
}

// GetAppointmentByEventID retrieves the appointment behind a transfer.
func (r *PostgresRepository) GetAppointmentByEventID(ctx context.Context, eventID string) (*domain.Appointment, error) {
	var appt domain.Appointment
	query := `
		SELECT event_id, session_start_time, duration_in_minutes, payment_intent_id
		FROM appointments
		WHERE event_id = $1
	`
	err := r.db.QueryRow(ctx, query, eventID).Scan(
		&appt.EventID,
		&appt.SessionStartTime,
		&appt.DurationInMinutes,
		&appt.PaymentIntentID,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &appt, nil
}

// CompleteTransfer performs the compare-and-swap completion write. The WHERE
// clause only matches rows that are still live, so an overlapping invocation
// that already settled the row leaves RowsAffected at zero.
func (r *PostgresRepository) CompleteTransfer(ctx context.Context, transferID uuid.UUID, externalTransferID string) error {
	query := `
		UPDATE payment_transfers
		SET status = 'completed',
			external_transfer_id = $2,
			updated_at = NOW()
		WHERE id = $1
		  AND status IN ('pending', 'approved')
		  AND external_transfer_id IS NULL
	`
	result, err := r.db.Exec(ctx, query, transferID, externalTransferID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		existing, getErr := r.GetTransferByID(ctx, transferID)
		if getErr != nil {
			return getErr
		}
		if existing.Status.IsTerminal() {
			return ErrTransferConflict
		}
		return ErrTransferNotFound
	}
	return nil
}

// RecordTransferFailure applies the retry-or-terminate decision in one
// statement so overlapping invocations cannot produce a lost update. The
// retry count increments unconditionally; the status flips to `failed` only
// when the incremented count reaches the bound. Error fields are kept for
// audit and are never cleared by later failures being overwritten with NULL.
func (r *PostgresRepository) RecordTransferFailure(ctx context.Context, transferID uuid.UUID, errorCode, errorMessage string, maxRetryCount int) (*FailureRecord, error) {
	query := `
		UPDATE payment_transfers
		SET retry_count = retry_count + 1,
			status = CASE
				WHEN retry_count + 1 >= $4 THEN 'failed'
				ELSE status
			END,
			last_error_code = $2,
			last_error_message = $3,
			updated_at = NOW()
		WHERE id = $1
		  AND status IN ('pending', 'approved')
		RETURNING status, retry_count
	`
	var record FailureRecord
	err := r.db.QueryRow(ctx, query, transferID, errorCode, errorMessage, maxRetryCount).Scan(&record.Status, &record.RetryCount)
	if err != nil {
		if err == pgx.ErrNoRows {
			existing, getErr := r.GetTransferByID(ctx, transferID)
			if getErr != nil {
				return nil, getErr
			}
			if existing.Status.IsTerminal() {
				return nil, ErrTransferConflict
			}
			return nil, ErrTransferNotFound
		}
		return nil, err
	}
	return &record, nil
}

// ApproveTransfer moves a pending transfer to `approved`. Guarded so a
// settled or already-approved row is not silently re-approved.
func (r *PostgresRepository) ApproveTransfer(ctx context.Context, transferID uuid.UUID) (*domain.PaymentTransfer, error) {
	query := `
		UPDATE payment_transfers
		SET status = 'approved', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + transferColumns + `
	`
	t, err := scanTransfer(r.db.QueryRow(ctx, query, transferID))
	if err != nil {
		if err == pgx.ErrNoRows {
			if _, getErr := r.GetTransferByID(ctx, transferID); getErr != nil {
				return nil, getErr
			}
			return nil, ErrTransferNotPending
		}
		return nil, err
	}
	return t, nil
}
