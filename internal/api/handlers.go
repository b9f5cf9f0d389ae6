/**
 * @description
 * HTTP handlers for the payout engine's external surface: the batch run
 * trigger, the operator approval/inspection endpoints, and the health probe.
 * Authentication is checked before any ledger access; an unauthorized
 * request produces no side effects.
 *
 * @dependencies
 * - encoding/json, net/http: Standard Go libraries.
 * - internal/app: The batch orchestrator.
 */

package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/consulto/payout-service/internal/app"
	"github.com/consulto/payout-service/internal/store"
	"github.com/go-chi/chi/v5"
)

// PayoutHandlers holds the dependencies for the HTTP handlers.
type PayoutHandlers struct {
	orchestrator   *app.Orchestrator
	webhookSecret  string
	internalAPIKey string
}

// NewPayoutHandlers creates a new set of handlers.
func NewPayoutHandlers(orchestrator *app.Orchestrator, webhookSecret, internalAPIKey string) *PayoutHandlers {
	return &PayoutHandlers{
		orchestrator:   orchestrator,
		webhookSecret:  webhookSecret,
		internalAPIKey: internalAPIKey,
	}
}

// RunPayouts triggers one payout batch. Invoked by the scheduled delivery
// (signature auth) or manually by an operator (internal key auth).
func (h *PayoutHandlers) RunPayouts(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Cannot read request body", http.StatusBadRequest)
		return
	}

	if !authorizeTrigger(h.webhookSecret, h.internalAPIKey, r, body) {
		log.Printf("level=warn component=api msg=\"unauthorized payout run trigger\" remote=%s", r.RemoteAddr)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	summary, err := h.orchestrator.RunOnce(r.Context(), time.Now().UTC())
	if err != nil {
		log.Printf("level=error component=api msg=\"payout batch failed\" err=%v", err)
		http.Error(w, "Payout batch failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// ApproveTransfer is the operator action moving a pending transfer to
// `approved`, bypassing the aging check on the next run.
func (h *PayoutHandlers) ApproveTransfer(w http.ResponseWriter, r *http.Request) {
	if !isValidInternalKey(h.internalAPIKey, r.Header.Get(internalAPIKeyHeader)) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	transfer, err := h.orchestrator.ApproveTransfer(r.Context(), chi.URLParam(r, "transferID"))
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidTransferID):
			http.Error(w, "Invalid transfer id", http.StatusBadRequest)
		case errors.Is(err, store.ErrTransferNotFound):
			http.Error(w, "Transfer not found", http.StatusNotFound)
		case errors.Is(err, store.ErrTransferNotPending):
			http.Error(w, "Transfer is not pending", http.StatusConflict)
		default:
			log.Printf("level=error component=api msg=\"approve transfer failed\" err=%v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, transfer)
}

// GetTransfer exposes a single ledger record for operator inspection.
func (h *PayoutHandlers) GetTransfer(w http.ResponseWriter, r *http.Request) {
	if !isValidInternalKey(h.internalAPIKey, r.Header.Get(internalAPIKeyHeader)) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	transfer, err := h.orchestrator.GetTransfer(r.Context(), chi.URLParam(r, "transferID"))
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidTransferID):
			http.Error(w, "Invalid transfer id", http.StatusBadRequest)
		case errors.Is(err, store.ErrTransferNotFound):
			http.Error(w, "Transfer not found", http.StatusNotFound)
		default:
			log.Printf("level=error component=api msg=\"get transfer failed\" err=%v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, transfer)
}

// Health is the liveness probe.
func (h *PayoutHandlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("level=error component=api msg=\"failed to encode response\" err=%v", err)
	}
}
