/**
 * @description
 * This file defines the core domain models for the payout-service. These structs
 * represent the payout ledger record and the read-only collaborator entities
 * (experts and appointments) the engine needs to decide and execute payouts.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (cents), which
 *   avoids floating-point inaccuracies with financial data.
 * - Nullable database columns map to pointer fields so "not yet set" is
 *   distinguishable from a zero value (`external_transfer_id` in particular).
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransferStatus is the closed set of states a payment transfer moves through.
type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusApproved  TransferStatus = "approved"
	TransferStatusCompleted TransferStatus = "completed"
	TransferStatusFailed    TransferStatus = "failed"
)

// IsTerminal reports whether no further automatic transition can occur.
func (s TransferStatus) IsTerminal() bool {
	return s == TransferStatusCompleted || s == TransferStatusFailed
}

// PaymentTransfer is the central ledger record for a pending expert payout.
// It maps directly to the `payment_transfers` table. A record is created by
// the upstream payment-capture flow in `pending` state and is mutated only by
// this engine, or by an operator approval that moves it to `approved`.
type PaymentTransfer struct {
	ID                    uuid.UUID      `json:"id"`
	EventID               string         `json:"event_id"`
	ExpertID              uuid.UUID      `json:"expert_id"`
	SessionStartTime      time.Time      `json:"session_start_time"`
	Amount                int64          `json:"amount"` // in cents
	Currency              string         `json:"currency"`
	DestinationAccountID  string         `json:"destination_account_id"`
	ScheduledTransferTime time.Time      `json:"scheduled_transfer_time"`
	RequiresApproval      bool           `json:"requires_approval"`
	Status                TransferStatus `json:"status"`
	ExternalTransferID    *string        `json:"external_transfer_id,omitempty"`
	RetryCount            int            `json:"retry_count"`
	LastErrorCode         *string        `json:"last_error_code,omitempty"`
	LastErrorMessage      *string        `json:"last_error_message,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// Expert is a read-only view of a service provider, reduced to what the
// payout engine needs: the regulatory jurisdiction and the connected payout
// account at the payment processor.
type Expert struct {
	ID                 uuid.UUID `json:"id"`
	Country            string    `json:"country"`
	ConnectedAccountID string    `json:"connected_account_id"`
}

// Appointment is a read-only view of the booked session behind a transfer.
// The captured payment-intent reference is reached through the appointment.
type Appointment struct {
	EventID           string    `json:"event_id"`
	SessionStartTime  time.Time `json:"session_start_time"`
	DurationInMinutes int       `json:"duration_in_minutes"`
	PaymentIntentID   string    `json:"payment_intent_id"`
}

// EndTime returns the scheduled end of the appointment.
func (a Appointment) EndTime() time.Time {
	return a.SessionStartTime.Add(time.Duration(a.DurationInMinutes) * time.Minute)
}

// PayoutCompletedEvent is published to RabbitMQ after a transfer reaches
// `completed`, for the notification service to render and deliver.
type PayoutCompletedEvent struct {
	TransferID         uuid.UUID `json:"transfer_id"`
	EventID            string    `json:"event_id"`
	ExpertID           uuid.UUID `json:"expert_id"`
	Amount             int64     `json:"amount"`
	Currency           string    `json:"currency"`
	ExternalTransferID string    `json:"external_transfer_id"`
	Timestamp          time.Time `json:"timestamp"`
}

// PayoutFailedEvent is published after a transfer exhausts its retries.
type PayoutFailedEvent struct {
	TransferID uuid.UUID `json:"transfer_id"`
	EventID    string    `json:"event_id"`
	ExpertID   uuid.UUID `json:"expert_id"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	Reason     string    `json:"reason"`
	Timestamp  time.Time `json:"timestamp"`
}

// TransferOutcome captures the result of one transfer within a batch run.
type TransferOutcome struct {
	TransferID         uuid.UUID `json:"transfer_id"`
	Outcome            string    `json:"outcome"` // completed | failed | skipped
	ExternalTransferID *string   `json:"external_transfer_id,omitempty"`
	Error              *string   `json:"error,omitempty"`
	Reason             *string   `json:"reason,omitempty"`
}

// BatchSummary aggregates one orchestrator run.
type BatchSummary struct {
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	LockSkip   bool              `json:"lock_skip"`
	Considered int               `json:"considered"`
	Eligible   int               `json:"eligible"`
	Skipped    int               `json:"skipped"`
	Succeeded  int               `json:"succeeded"`
	Failed     int               `json:"failed"`
	Outcomes   []TransferOutcome `json:"outcomes"`
}
