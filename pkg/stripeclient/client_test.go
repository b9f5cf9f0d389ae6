package stripeclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCreateTransferSendsFormAndIdempotencyKey(t *testing.T) {
	var gotAuth, gotKey, gotContentType string
	var gotForm map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/transfers" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("Idempotency-Key")
		gotContentType = r.Header.Get("Content-Type")

		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostForm.Get(k)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"tr_1","amount":15000,"currency":"usd","destination":"acct_expert","transfer_group":"ch_1"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test_123")
	transfer, err := client.CreateTransfer(context.Background(), CreateTransferParams{
		Amount:            15000,
		Currency:          "USD",
		Destination:       "acct_expert",
		SourceTransaction: "ch_1",
		TransferGroup:     "ch_1",
		Metadata:          map[string]string{"transfer_id": "pt_1"},
		IdempotencyKey:    "transfer:pt_1",
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if transfer.ID != "tr_1" {
		t.Fatalf("expected tr_1, got %q", transfer.ID)
	}

	if gotAuth != "Bearer sk_test_123" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if gotKey != "transfer:pt_1" {
		t.Fatalf("expected idempotency key header, got %q", gotKey)
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Fatalf("expected form content type, got %q", gotContentType)
	}
	if gotForm["amount"] != "15000" || gotForm["currency"] != "usd" {
		t.Fatalf("expected amount/currency fields, got %v", gotForm)
	}
	if gotForm["source_transaction"] != "ch_1" || gotForm["transfer_group"] != "ch_1" {
		t.Fatalf("expected source and group fields, got %v", gotForm)
	}
	if gotForm["metadata[transfer_id]"] != "pt_1" {
		t.Fatalf("expected metadata field, got %v", gotForm)
	}
}

func TestGetPaymentIntentResolvesLatestCharge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents/pi_1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"pi_1","status":"succeeded","latest_charge":"ch_1"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test_123")
	intent, err := client.GetPaymentIntent(context.Background(), "pi_1")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if intent.LatestCharge != "ch_1" {
		t.Fatalf("expected latest charge ch_1, got %q", intent.LatestCharge)
	}
}

func TestListTransfersByGroupFiltersByGroup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("transfer_group"); got != "ch_1" {
			t.Errorf("expected transfer_group ch_1, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[{"id":"tr_existing","transfer_group":"ch_1"}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test_123")
	transfers, err := client.ListTransfersByGroup(context.Background(), "ch_1")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(transfers) != 1 || transfers[0].ID != "tr_existing" {
		t.Fatalf("expected the existing transfer, got %v", transfers)
	}
}

func TestErrorResponseCarriesStripeCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"balance_insufficient","message":"Insufficient funds in your Stripe balance."}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test_123")
	_, err := client.CreateTransfer(context.Background(), CreateTransferParams{
		Amount:      100,
		Currency:    "usd",
		Destination: "acct_expert",
	})
	if err == nil {
		t.Fatal("expected an error response")
	}

	var apiErr *ErrorResponse
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected an ErrorResponse, got %T", err)
	}
	if apiErr.Code() != "balance_insufficient" {
		t.Fatalf("expected balance_insufficient, got %q", apiErr.Code())
	}
}
