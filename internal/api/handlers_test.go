package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/consulto/payout-service/internal/app"
	"github.com/consulto/payout-service/internal/config"
	"github.com/consulto/payout-service/internal/domain"
	"github.com/consulto/payout-service/internal/store"
	"github.com/consulto/payout-service/pkg/heartbeat"
	"github.com/consulto/payout-service/pkg/stripeclient"
	"github.com/google/uuid"
)

const (
	testWebhookSecret = "whsec_test_secret"
	testInternalKey   = "internal-test-key"
)

type handlerRepoStub struct {
	store.Repository

	mu        sync.Mutex
	listCalls int

	transfer    *domain.PaymentTransfer
	transferErr error

	approved    *domain.PaymentTransfer
	approveErr  error
}

func (s *handlerRepoStub) ListPayableTransfers(ctx context.Context, now time.Time, limit int) ([]domain.PaymentTransfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	return nil, nil
}

func (s *handlerRepoStub) GetTransferByID(ctx context.Context, transferID uuid.UUID) (*domain.PaymentTransfer, error) {
	if s.transferErr != nil {
		return nil, s.transferErr
	}
	return s.transfer, nil
}

func (s *handlerRepoStub) ApproveTransfer(ctx context.Context, transferID uuid.UUID) (*domain.PaymentTransfer, error) {
	if s.approveErr != nil {
		return nil, s.approveErr
	}
	return s.approved, nil
}

type idleProcessorStub struct{}

func (idleProcessorStub) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*stripeclient.PaymentIntent, error) {
	return &stripeclient.PaymentIntent{}, nil
}

func (idleProcessorStub) ListTransfersByGroup(ctx context.Context, transferGroup string) ([]stripeclient.Transfer, error) {
	return nil, nil
}

func (idleProcessorStub) CreateTransfer(ctx context.Context, p stripeclient.CreateTransferParams) (*stripeclient.Transfer, error) {
	return &stripeclient.Transfer{}, nil
}

func newTestHandler(repo *handlerRepoStub) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Config{
		HeartbeatJobName:        "expert-payout-run",
		PayoutBatchLimit:        200,
		MaxConcurrentTransfers:  4,
		MaxRetryCount:           3,
		BatchTimeoutSeconds:     60,
		ProcessorTimeoutSeconds: 5,
	}
	notifier := app.NewNotificationDispatcher(nil, "", logger)
	executor := app.NewExecutor(repo, idleProcessorStub{}, notifier, logger)
	failures := app.NewFailureHandler(repo, notifier, cfg.MaxRetryCount, logger)
	orchestrator := app.NewOrchestrator(repo, executor, failures, app.NoopRunLock{}, heartbeat.NewClient(""), logger, cfg)
	return PayoutRoutes(NewPayoutHandlers(orchestrator, testWebhookSecret, testInternalKey))
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestRunPayoutsRejectsUnauthenticatedTrigger(t *testing.T) {
	repo := &handlerRepoStub{}
	router := newTestHandler(repo)

	req := httptest.NewRequest(http.MethodPost, "/payouts/run", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if repo.listCalls != 0 {
		t.Fatal("an unauthorized trigger must not touch the ledger")
	}
}

func TestRunPayoutsRejectsBadSignature(t *testing.T) {
	repo := &handlerRepoStub{}
	router := newTestHandler(repo)

	req := httptest.NewRequest(http.MethodPost, "/payouts/run", strings.NewReader("{}"))
	req.Header.Set("X-Scheduler-Signature", signBody("wrong-secret", []byte("{}")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad signature, got %d", rec.Code)
	}
	if repo.listCalls != 0 {
		t.Fatal("a bad signature must not touch the ledger")
	}
}

func TestRunPayoutsAcceptsHexSignature(t *testing.T) {
	repo := &handlerRepoStub{}
	router := newTestHandler(repo)
	body := []byte(`{"source":"scheduler"}`)

	req := httptest.NewRequest(http.MethodPost, "/payouts/run", strings.NewReader(string(body)))
	req.Header.Set("X-Scheduler-Signature", signBody(testWebhookSecret, body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if repo.listCalls != 1 {
		t.Fatalf("expected one candidate load, got %d", repo.listCalls)
	}

	var summary domain.BatchSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("expected a batch summary body, got %v", err)
	}
	if summary.Considered != 0 {
		t.Fatalf("expected an empty batch, got %d considered", summary.Considered)
	}
}

func TestRunPayoutsAcceptsPrefixedBase64Signature(t *testing.T) {
	repo := &handlerRepoStub{}
	router := newTestHandler(repo)
	body := []byte(`{"source":"scheduler"}`)

	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write(body)
	signature := "sha256=" + base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/payouts/run", strings.NewReader(string(body)))
	req.Header.Set("X-Scheduler-Signature", signature)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRunPayoutsAcceptsInternalKey(t *testing.T) {
	repo := &handlerRepoStub{}
	router := newTestHandler(repo)

	req := httptest.NewRequest(http.MethodPost, "/payouts/run", strings.NewReader("{}"))
	req.Header.Set("X-Internal-API-Key", testInternalKey)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if repo.listCalls != 1 {
		t.Fatalf("expected one candidate load, got %d", repo.listCalls)
	}
}

func TestApproveTransfer(t *testing.T) {
	approvedID := uuid.New()

	tests := []struct {
		name       string
		target     string
		key        string
		repo       *handlerRepoStub
		wantStatus int
	}{
		{
			name:   "approves a pending transfer",
			target: "/payouts/transfers/" + approvedID.String() + "/approve",
			key:    testInternalKey,
			repo: &handlerRepoStub{
				approved: &domain.PaymentTransfer{ID: approvedID, Status: domain.TransferStatusApproved},
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "rejects a missing key",
			target:     "/payouts/transfers/" + approvedID.String() + "/approve",
			key:        "",
			repo:       &handlerRepoStub{},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "rejects a malformed id",
			target:     "/payouts/transfers/not-a-uuid/approve",
			key:        testInternalKey,
			repo:       &handlerRepoStub{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "maps a missing transfer to 404",
			target:     "/payouts/transfers/" + approvedID.String() + "/approve",
			key:        testInternalKey,
			repo:       &handlerRepoStub{approveErr: store.ErrTransferNotFound},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "maps a non-pending transfer to 409",
			target:     "/payouts/transfers/" + approvedID.String() + "/approve",
			key:        testInternalKey,
			repo:       &handlerRepoStub{approveErr: store.ErrTransferNotPending},
			wantStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestHandler(tt.repo)
			req := httptest.NewRequest(http.MethodPost, tt.target, nil)
			if tt.key != "" {
				req.Header.Set("X-Internal-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestGetTransferReturnsLedgerRecord(t *testing.T) {
	transferID := uuid.New()
	repo := &handlerRepoStub{
		transfer: &domain.PaymentTransfer{ID: transferID, Status: domain.TransferStatusCompleted, RetryCount: 1},
	}
	router := newTestHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/payouts/transfers/"+transferID.String(), nil)
	req.Header.Set("X-Internal-API-Key", testInternalKey)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got domain.PaymentTransfer
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("expected a transfer body, got %v", err)
	}
	if got.ID != transferID || got.Status != domain.TransferStatusCompleted {
		t.Fatalf("expected the stored transfer, got %+v", got)
	}
}

func TestGetTransferRejectsSchedulerSignature(t *testing.T) {
	// Operator endpoints accept the internal key only; a valid scheduler
	// signature does not grant ledger inspection.
	transferID := uuid.New()
	repo := &handlerRepoStub{transfer: &domain.PaymentTransfer{ID: transferID}}
	router := newTestHandler(repo)

	req := httptest.NewRequest(http.MethodGet, "/payouts/transfers/"+transferID.String(), nil)
	req.Header.Set("X-Scheduler-Signature", signBody(testWebhookSecret, nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestHandler(&handlerRepoStub{})

	req := httptest.NewRequest(http.MethodGet, "/payouts/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
