package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type paypalStub struct {
	t           *testing.T
	tokenCalls  atomic.Int64
	createBody  map[string]any
	captureHits atomic.Int64
}

func (s *paypalStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		s.tokenCalls.Add(1)
		if user, pass, ok := r.BasicAuth(); !ok || user != "client-id" || pass != "client-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "token-123",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("POST /v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&s.createBody); err != nil {
			s.t.Errorf("decode create body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "PP-ORDER-1",
			"status": "CREATED",
			"links": []map[string]any{
				{"href": "https://paypal.test/approve/PP-ORDER-1", "rel": "approve", "method": "GET"},
			},
		})
	})
	mux.HandleFunc("POST /v2/checkout/orders/PP-ORDER-1/capture", func(w http.ResponseWriter, r *http.Request) {
		s.captureHits.Add(1)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "PP-ORDER-1",
			"status": "COMPLETED",
			"purchase_units": []map[string]any{{
				"reference_id": "ord_local_1",
				"amount":       map[string]any{"currency_code": "EUR", "value": "30.00"},
				"payments": map[string]any{
					"captures": []map[string]any{{
						"id":     "CAP-99",
						"status": "COMPLETED",
						"amount": map[string]any{"currency_code": "EUR", "value": "30.00"},
					}},
				},
			}},
		})
	})
	mux.HandleFunc("POST /v2/checkout/orders/PP-UNAPPROVED/capture", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{
			"name":    "UNPROCESSABLE_ENTITY",
			"message": "The requested action could not be performed.",
			"details": []map[string]any{{
				"issue":       "ORDER_NOT_APPROVED",
				"description": "Payer has not yet approved the Order for payment.",
			}},
		})
	})
	return mux
}

func newPayPalUnderTest(t *testing.T, baseURL string) *PayPalProvider {
	t.Helper()
	provider, err := NewPayPalProvider(PayPalProviderConfig{
		BaseURL:  baseURL,
		ClientID: "client-id",
		Secret:   "client-secret",
	})
	if err != nil {
		t.Fatalf("new paypal provider: %v", err)
	}
	return provider
}

func TestPayPalCreateOrder(t *testing.T) {
	stub := &paypalStub{t: t}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	provider := newPayPalUnderTest(t, server.URL)
	order, err := provider.CreateOrder(context.Background(), CreateOrderRequest{
		ReferenceID: "ord_local_1",
		Amount:      30,
		Currency:    "eur",
		Description: "Deep cleaning",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if order.ID != "PP-ORDER-1" {
		t.Fatalf("unexpected provider order id %q", order.ID)
	}
	if order.Status != StatusCreated {
		t.Fatalf("expected status created, got %q", order.Status)
	}
	if order.ApproveURL != "https://paypal.test/approve/PP-ORDER-1" {
		t.Fatalf("unexpected approve url %q", order.ApproveURL)
	}

	units, ok := stub.createBody["purchase_units"].([]any)
	if !ok || len(units) != 1 {
		t.Fatalf("expected one purchase unit, got %v", stub.createBody["purchase_units"])
	}
	unit := units[0].(map[string]any)
	if unit["reference_id"] != "ord_local_1" {
		t.Fatalf("expected local order id in reference_id, got %v", unit["reference_id"])
	}
	amount := unit["amount"].(map[string]any)
	if amount["value"] != "30.00" || amount["currency_code"] != "EUR" {
		t.Fatalf("unexpected amount %v", amount)
	}
	if stub.createBody["intent"] != "CAPTURE" {
		t.Fatalf("expected CAPTURE intent, got %v", stub.createBody["intent"])
	}
}

func TestPayPalCaptureReturnsCaptureDetails(t *testing.T) {
	stub := &paypalStub{t: t}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	provider := newPayPalUnderTest(t, server.URL)
	details, err := provider.Capture(context.Background(), CaptureRequest{ProviderOrderID: "PP-ORDER-1"})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	if details.Status != StatusCompleted {
		t.Fatalf("expected completed status, got %q", details.Status)
	}
	if details.TransactionID != "CAP-99" {
		t.Fatalf("expected capture id as transaction id, got %q", details.TransactionID)
	}
	if details.ReferenceID != "ord_local_1" {
		t.Fatalf("expected local order id back, got %q", details.ReferenceID)
	}
	if details.Amount != 30 || details.Currency != "EUR" {
		t.Fatalf("unexpected amount %v %s", details.Amount, details.Currency)
	}
	if details.CapturedAt == nil {
		t.Fatalf("expected captured timestamp")
	}
}

func TestPayPalCaptureUnapprovedOrder(t *testing.T) {
	stub := &paypalStub{t: t}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	provider := newPayPalUnderTest(t, server.URL)
	_, err := provider.Capture(context.Background(), CaptureRequest{ProviderOrderID: "PP-UNAPPROVED"})

	var perr *PayPalError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PayPalError, got %v", err)
	}
	if perr.Name != "ORDER_NOT_APPROVED" {
		t.Fatalf("expected ORDER_NOT_APPROVED issue, got %q", perr.Name)
	}
	if perr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status code %d", perr.StatusCode)
	}
}

func TestPayPalTokenIsCachedUntilExpiry(t *testing.T) {
	stub := &paypalStub{t: t}
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	provider, err := NewPayPalProvider(PayPalProviderConfig{
		BaseURL:  server.URL,
		ClientID: "client-id",
		Secret:   "client-secret",
		Clock:    func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new paypal provider: %v", err)
	}

	ctx := context.Background()
	req := CreateOrderRequest{ReferenceID: "ord_local_1", Amount: 30, Currency: "EUR"}
	if _, err := provider.CreateOrder(ctx, req); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := provider.CreateOrder(ctx, req); err != nil {
		t.Fatalf("second create: %v", err)
	}
	if got := stub.tokenCalls.Load(); got != 1 {
		t.Fatalf("expected one token request while cached, got %d", got)
	}

	// Move past the expiry and the next call fetches a fresh token.
	now = now.Add(2 * time.Hour)
	if _, err := provider.CreateOrder(ctx, req); err != nil {
		t.Fatalf("create after expiry: %v", err)
	}
	if got := stub.tokenCalls.Load(); got != 2 {
		t.Fatalf("expected token refresh after expiry, got %d calls", got)
	}
}

func TestPayPalChargeUnsupported(t *testing.T) {
	provider := newPayPalUnderTest(t, "https://paypal.test")
	_, err := provider.Charge(context.Background(), ChargeRequest{ReferenceID: "ord_1", Amount: 10})
	if !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("expected ErrUnsupportedOperation, got %v", err)
	}
}
