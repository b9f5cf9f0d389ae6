/**
 * @description
 * This file sets up the HTTP router for the payout-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies
 * standard middleware for logging and panic recovery.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// PayoutRoutes creates and returns a new router for the payout service.
func PayoutRoutes(h *PayoutHandlers) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))

	// Health check endpoint
	r.Get("/payouts/health", h.Health)

	// Batch trigger endpoint. Authentication happens inside the handler so the
	// signature can be verified against the raw request body.
	r.Post("/payouts/run", h.RunPayouts)

	// Operator endpoints for ledger inspection and manual approval.
	r.Get("/payouts/transfers/{transferID}", h.GetTransfer)
	r.Post("/payouts/transfers/{transferID}/approve", h.ApproveTransfer)

	return r
}
