/**
 * @description
 * The batch orchestrator: one invocation is one bounded unit of work.
 * Load candidates, filter through the eligibility evaluator, fan the
 * executor out over the eligible set with a bounded worker pool, aggregate
 * the outcomes, and report batch health to the monitoring sink.
 *
 * Per-transfer outcomes are isolated: one transfer's processor error is
 * routed through the failure handler and never aborts its siblings, so a
 * batch with individual failures is still a successful batch.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/consulto/payout-service/internal/config"
	"github.com/consulto/payout-service/internal/domain"
	"github.com/consulto/payout-service/internal/store"
	"github.com/google/uuid"
)

// Heartbeat is the monitoring sink receiving batch success/failure signals.
type Heartbeat interface {
	Success(ctx context.Context, jobName string)
	Failure(ctx context.Context, jobName string)
}

// Orchestrator runs the payout batch.
type Orchestrator struct {
	repo      store.Repository
	executor  *Executor
	failures  *FailureHandler
	runLock   RunLock
	heartbeat Heartbeat
	logger    *slog.Logger
	config    config.Config
}

// NewOrchestrator wires the batch runner.
func NewOrchestrator(repo store.Repository, executor *Executor, failures *FailureHandler, runLock RunLock, hb Heartbeat, logger *slog.Logger, cfg config.Config) *Orchestrator {
	return &Orchestrator{
		repo:      repo,
		executor:  executor,
		failures:  failures,
		runLock:   runLock,
		heartbeat: hb,
		logger:    logger,
		config:    cfg,
	}
}

// failureWriteTimeout bounds the ledger failure write after an execution
// attempt dies. It is deliberately independent of the per-transfer deadline.
const failureWriteTimeout = 10 * time.Second

// candidate pairs a transfer with its resolved collaborator records.
type candidate struct {
	transfer    domain.PaymentTransfer
	appointment domain.Appointment
}

// RunOnce executes one payout batch as of `now`. Individual transfer
// failures are absorbed into the summary; only batch-level failures (e.g.
// the candidate load) surface as an error, and those are reported to the
// heartbeat sink before returning.
func (o *Orchestrator) RunOnce(ctx context.Context, now time.Time) (*domain.BatchSummary, error) {
	batchTimeout := time.Duration(o.config.BatchTimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	summary := &domain.BatchSummary{StartedAt: now}

	acquired, release := o.runLock.Acquire(ctx, batchTimeout)
	if !acquired {
		o.logger.Info("previous payout run still in progress; skipping batch")
		summary.LockSkip = true
		summary.FinishedAt = time.Now().UTC()
		o.heartbeat.Success(ctx, o.config.HeartbeatJobName)
		return summary, nil
	}
	defer release()

	transfers, err := o.repo.ListPayableTransfers(ctx, now, o.config.PayoutBatchLimit)
	if err != nil {
		o.heartbeat.Failure(ctx, o.config.HeartbeatJobName)
		return nil, fmt.Errorf("failed to load payable transfers: %w", err)
	}
	summary.Considered = len(transfers)

	if len(transfers) == 0 {
		o.logger.Info("no payable transfers found")
		summary.FinishedAt = time.Now().UTC()
		o.heartbeat.Success(ctx, o.config.HeartbeatJobName)
		return summary, nil
	}
	o.logger.Info("loaded payout candidates", "count", len(transfers))

	eligible := o.partition(ctx, transfers, now, summary)
	summary.Eligible = len(eligible)

	o.execute(ctx, eligible, summary)

	summary.FinishedAt = time.Now().UTC()
	o.logger.Info("payout batch finished",
		"considered", summary.Considered,
		"eligible", summary.Eligible,
		"skipped", summary.Skipped,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
	)
	o.heartbeat.Success(ctx, o.config.HeartbeatJobName)
	return summary, nil
}

// partition resolves each candidate's expert and appointment and applies the
// eligibility evaluator. Resolution failures and ineligible transfers are
// skipped with a logged reason, never mutated, so the next scheduled run
// reconsiders them.
func (o *Orchestrator) partition(ctx context.Context, transfers []domain.PaymentTransfer, now time.Time, summary *domain.BatchSummary) []candidate {
	var eligible []candidate

	skip := func(t domain.PaymentTransfer, reason string) {
		o.logger.Info("skipping transfer", "transfer_id", t.ID, "reason", reason)
		summary.Skipped++
		summary.Outcomes = append(summary.Outcomes, domain.TransferOutcome{
			TransferID: t.ID,
			Outcome:    "skipped",
			Reason:     &reason,
		})
	}

	for _, t := range transfers {
		expert, err := o.repo.GetExpertByID(ctx, t.ExpertID)
		if err != nil {
			if errors.Is(err, store.ErrExpertNotFound) {
				skip(t, "expert record could not be resolved")
				continue
			}
			skip(t, fmt.Sprintf("expert lookup failed: %v", err))
			continue
		}

		appointment, err := o.repo.GetAppointmentByEventID(ctx, t.EventID)
		if err != nil {
			if errors.Is(err, store.ErrAppointmentNotFound) {
				skip(t, "appointment record could not be resolved")
				continue
			}
			skip(t, fmt.Sprintf("appointment lookup failed: %v", err))
			continue
		}

		ok, reason := EvaluateEligibility(t, *expert, *appointment, now)
		if !ok {
			skip(t, reason)
			continue
		}
		eligible = append(eligible, candidate{transfer: t, appointment: *appointment})
	}
	return eligible
}

// execute fans the executor out over the eligible set. Concurrency is capped
// by a channel semaphore sized to the processor's rate limits; each transfer
// gets its own bounded deadline so a stuck call cannot eat the whole batch.
func (o *Orchestrator) execute(ctx context.Context, eligible []candidate, summary *domain.BatchSummary) {
	if len(eligible) == 0 {
		return
	}

	transferTimeout := 3 * time.Duration(o.config.ProcessorTimeoutSeconds) * time.Second
	sem := make(chan struct{}, o.config.MaxConcurrentTransfers)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, c := range eligible {
		wg.Add(1)
		go func(c candidate) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			execCtx, cancel := context.WithTimeout(ctx, transferTimeout)
			defer cancel()

			externalID, err := o.executor.Execute(execCtx, c.transfer, c.appointment)
			if err != nil {
				o.logger.Warn("transfer execution failed", "transfer_id", c.transfer.ID, "error", err)

				// The failure write runs on a fresh deadline detached from
				// the per-transfer and batch deadlines; a timed-out attempt
				// must still advance the retry count.
				failCtx, failCancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
				o.failures.HandleFailure(failCtx, c.transfer, err)
				failCancel()

				msg := err.Error()
				mu.Lock()
				summary.Failed++
				summary.Outcomes = append(summary.Outcomes, domain.TransferOutcome{
					TransferID: c.transfer.ID,
					Outcome:    "failed",
					Error:      &msg,
				})
				mu.Unlock()
				return
			}

			o.logger.Info("transfer completed", "transfer_id", c.transfer.ID, "external_transfer_id", externalID)
			mu.Lock()
			summary.Succeeded++
			summary.Outcomes = append(summary.Outcomes, domain.TransferOutcome{
				TransferID:         c.transfer.ID,
				Outcome:            "completed",
				ExternalTransferID: &externalID,
			})
			mu.Unlock()
		}(c)
	}
	wg.Wait()
}

// ApproveTransfer is the operator action exposing the manual-approval
// override: a pending transfer moves to `approved` and bypasses the aging
// check on the next run.
func (o *Orchestrator) ApproveTransfer(ctx context.Context, transferID string) (*domain.PaymentTransfer, error) {
	id, err := parseTransferID(transferID)
	if err != nil {
		return nil, err
	}
	return o.repo.ApproveTransfer(ctx, id)
}

// GetTransfer exposes a single ledger record for operator inspection.
func (o *Orchestrator) GetTransfer(ctx context.Context, transferID string) (*domain.PaymentTransfer, error) {
	id, err := parseTransferID(transferID)
	if err != nil {
		return nil, err
	}
	return o.repo.GetTransferByID(ctx, id)
}

// ErrInvalidTransferID marks a malformed transfer id from the operator API.
var ErrInvalidTransferID = errors.New("invalid transfer id")

func parseTransferID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, ErrInvalidTransferID
	}
	return id, nil
}
