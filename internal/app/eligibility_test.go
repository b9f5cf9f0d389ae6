package app

import (
	"strings"
	"testing"
	"time"

	"github.com/consulto/payout-service/internal/domain"
	"github.com/google/uuid"
)

func eligibilityFixture(now time.Time, paymentAge time.Duration, sessionEndAge time.Duration) (domain.PaymentTransfer, domain.Appointment) {
	transfer := domain.PaymentTransfer{
		ID:                    uuid.New(),
		EventID:               "evt_123",
		ExpertID:              uuid.New(),
		Amount:                15000,
		Currency:              "usd",
		DestinationAccountID:  "acct_expert",
		ScheduledTransferTime: now.Add(-time.Hour),
		Status:                domain.TransferStatusPending,
		CreatedAt:             now.Add(-paymentAge),
	}
	sessionStart := now.Add(-sessionEndAge).Add(-60 * time.Minute)
	appointment := domain.Appointment{
		EventID:           "evt_123",
		SessionStartTime:  sessionStart,
		DurationInMinutes: 60,
		PaymentIntentID:   "pi_123",
	}
	return transfer, appointment
}

func TestEvaluateEligibility(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		country       string
		paymentAge    time.Duration
		sessionEndAge time.Duration
		mutate        func(*domain.PaymentTransfer)
		wantEligible  bool
		wantReasonHas string
	}{
		{
			name:          "payment aged past default and complaint window closed",
			country:       "DE",
			paymentAge:    8 * 24 * time.Hour,
			sessionEndAge: 30 * time.Hour,
			wantEligible:  true,
		},
		{
			name:          "complaint window still open",
			country:       "DE",
			paymentAge:    8 * 24 * time.Hour,
			sessionEndAge: 10 * time.Hour,
			wantEligible:  false,
			wantReasonHas: "complaint window",
		},
		{
			name:          "payment not aged for default country",
			country:       "DE",
			paymentAge:    3 * 24 * time.Hour,
			sessionEndAge: 48 * time.Hour,
			wantEligible:  false,
			wantReasonHas: "aged 3 of 7",
		},
		{
			name:          "us payment ages in two days",
			country:       "US",
			paymentAge:    3 * 24 * time.Hour,
			sessionEndAge: 48 * time.Hour,
			wantEligible:  true,
		},
		{
			name:          "brazil payment needs thirty days",
			country:       "BR",
			paymentAge:    29 * 24 * time.Hour,
			sessionEndAge: 48 * time.Hour,
			wantEligible:  false,
			wantReasonHas: "aged 29 of 30",
		},
		{
			name:          "approved transfer bypasses both windows",
			country:       "BR",
			paymentAge:    time.Hour,
			sessionEndAge: time.Hour,
			mutate: func(tr *domain.PaymentTransfer) {
				tr.Status = domain.TransferStatusApproved
			},
			wantEligible: true,
		},
		{
			name:          "pending transfer flagged for approval is held",
			country:       "US",
			paymentAge:    10 * 24 * time.Hour,
			sessionEndAge: 48 * time.Hour,
			mutate: func(tr *domain.PaymentTransfer) {
				tr.RequiresApproval = true
			},
			wantEligible:  false,
			wantReasonHas: "awaiting manual approval",
		},
		{
			name:          "scheduled time in the future is held",
			country:       "US",
			paymentAge:    10 * 24 * time.Hour,
			sessionEndAge: 48 * time.Hour,
			mutate: func(tr *domain.PaymentTransfer) {
				tr.ScheduledTransferTime = now.Add(2 * time.Hour)
			},
			wantEligible:  false,
			wantReasonHas: "scheduled for",
		},
		{
			name:          "completed transfer is not payable",
			country:       "US",
			paymentAge:    10 * 24 * time.Hour,
			sessionEndAge: 48 * time.Hour,
			mutate: func(tr *domain.PaymentTransfer) {
				tr.Status = domain.TransferStatusCompleted
			},
			wantEligible:  false,
			wantReasonHas: "not payable",
		},
		{
			name:          "lowercase country code matches its entry",
			country:       "in",
			paymentAge:    10 * 24 * time.Hour,
			sessionEndAge: 48 * time.Hour,
			wantEligible:  false,
			wantReasonHas: "country IN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transfer, appointment := eligibilityFixture(now, tt.paymentAge, tt.sessionEndAge)
			if tt.mutate != nil {
				tt.mutate(&transfer)
			}
			expert := domain.Expert{ID: transfer.ExpertID, Country: tt.country, ConnectedAccountID: "acct_expert"}

			gotEligible, reason := EvaluateEligibility(transfer, expert, appointment, now)
			if gotEligible != tt.wantEligible {
				t.Fatalf("expected eligible=%t, got %t (reason %q)", tt.wantEligible, gotEligible, reason)
			}
			if tt.wantReasonHas != "" && !strings.Contains(reason, tt.wantReasonHas) {
				t.Fatalf("expected reason to contain %q, got %q", tt.wantReasonHas, reason)
			}
		})
	}
}

func TestRequiredAgingDaysFallsBackToDefault(t *testing.T) {
	tests := []struct {
		country string
		want    int
	}{
		{country: "US", want: 2},
		{country: "ca", want: 3},
		{country: " gb ", want: 7},
		{country: "IN", want: 15},
		{country: "BR", want: 30},
		{country: "ZZ", want: 7},
		{country: "", want: 7},
	}

	for _, tt := range tests {
		t.Run(tt.country, func(t *testing.T) {
			if got := requiredAgingDays(tt.country); got != tt.want {
				t.Fatalf("expected %d days for %q, got %d", tt.want, tt.country, got)
			}
		})
	}
}

func TestAgingIsNeverShorterThanComplaintWindow(t *testing.T) {
	// Every configured aging requirement must cover at least the complaint
	// window, otherwise the aging check would be the only gate on dispute
	// exposure.
	for country, days := range payoutAgingDays {
		if days*24 < ComplaintWindowHours {
			t.Fatalf("country %s ages %d days, shorter than the %dh complaint window", country, days, ComplaintWindowHours)
		}
	}
}
