/**
 * @description
 * This file contains the eligibility evaluator: the rules deciding whether a
 * payable transfer may actually be executed right now. Two independent
 * windows gate a time-based payout: a per-jurisdiction payment-aging
 * requirement and a fixed post-appointment complaint window. A manual
 * approval bypasses both.
 */

package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/consulto/payout-service/internal/domain"
)

// ComplaintWindowHours is the minimum time after an appointment's scheduled
// end before funds may move, independent of jurisdiction.
const ComplaintWindowHours = 24

const defaultCountryKey = "DEFAULT"

// payoutAgingDays maps an expert's country to the minimum number of days a
// captured payment must age before it may be forwarded. Unknown countries
// fall back to the DEFAULT entry.
var payoutAgingDays = map[string]int{
	defaultCountryKey: 7,
	"US":              2,
	"CA":              3,
	"GB":              7,
	"AU":              7,
	"JP":              4,
	"SG":              7,
	"IN":              15,
	"BR":              30,
}

func init() {
	if _, ok := payoutAgingDays[defaultCountryKey]; !ok {
		panic("payoutAgingDays must contain a DEFAULT entry")
	}
}

// normalizeCountry uppercases and trims a country code at the boundary so the
// table lookup never depends on caller formatting.
func normalizeCountry(country string) string {
	code := strings.ToUpper(strings.TrimSpace(country))
	if _, ok := payoutAgingDays[code]; !ok {
		return defaultCountryKey
	}
	return code
}

// requiredAgingDays returns the aging requirement for an expert's country.
func requiredAgingDays(country string) int {
	return payoutAgingDays[normalizeCountry(country)]
}

// EvaluateEligibility decides whether a transfer may execute at `now`. The
// returned reason describes why an ineligible transfer was held back and is
// logged by the orchestrator, never persisted.
func EvaluateEligibility(transfer domain.PaymentTransfer, expert domain.Expert, appointment domain.Appointment, now time.Time) (bool, string) {
	// Manual approval is an unconditional override of the time-based checks.
	if transfer.Status == domain.TransferStatusApproved {
		return true, "manually approved"
	}

	if transfer.Status != domain.TransferStatusPending {
		return false, fmt.Sprintf("status %q is not payable", transfer.Status)
	}
	if transfer.RequiresApproval {
		return false, "awaiting manual approval"
	}
	if transfer.ScheduledTransferTime.After(now) {
		return false, fmt.Sprintf("scheduled for %s", transfer.ScheduledTransferTime.UTC().Format(time.RFC3339))
	}

	agingDays := requiredAgingDays(expert.Country)
	daysSincePayment := int(now.Sub(transfer.CreatedAt).Hours() / 24)
	if daysSincePayment < agingDays {
		return false, fmt.Sprintf("payment aged %d of %d required days (country %s)", daysSincePayment, agingDays, normalizeCountry(expert.Country))
	}

	hoursSinceEnd := int(now.Sub(appointment.EndTime()).Hours())
	if hoursSinceEnd < ComplaintWindowHours {
		return false, fmt.Sprintf("appointment ended %dh ago; complaint window is %dh", hoursSinceEnd, ComplaintWindowHours)
	}

	return true, ""
}
