package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/tidynest/api/internal/payments"
	"github.com/tidynest/api/internal/platform/auth"
	"github.com/tidynest/api/internal/services"
)

func TestCheckoutHandlersBeginPayPal(t *testing.T) {
	service := &stubCheckoutService{
		beginFunc: func(ctx context.Context, cmd services.BeginPayPalCommand) (services.PayPalCheckout, error) {
			if cmd.UserID != "user_1" {
				t.Fatalf("unexpected user id %q", cmd.UserID)
			}
			return services.PayPalCheckout{
				OrderID:         "ord_abc",
				ProviderOrderID: "PP-77",
				ApproveURL:      "https://paypal.example/approve/PP-77",
				State:           services.CheckoutStateAwaitingApproval,
			}, nil
		},
	}

	router := chi.NewRouter()
	router.Route("/checkout", NewCheckoutHandlers(nil, service).Routes)

	req := httptest.NewRequest(http.MethodPost, "/checkout/paypal", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user_1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
	var resp paypalCheckoutResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success || resp.OrderID != "ord_abc" || resp.ProviderOrderID != "PP-77" {
		t.Fatalf("unexpected response %#v", resp)
	}
	if resp.State != string(services.CheckoutStateAwaitingApproval) {
		t.Fatalf("expected awaiting_approval, got %q", resp.State)
	}
}

func TestCheckoutHandlersApproveCaptures(t *testing.T) {
	service := &stubCheckoutService{
		approveFunc: func(ctx context.Context, cmd services.PayPalCallbackCommand) (services.CheckoutResult, error) {
			if cmd.ProviderOrderID != "PP-77" {
				t.Fatalf("unexpected provider order id %q", cmd.ProviderOrderID)
			}
			return services.CheckoutResult{
				OrderID:       "ord_abc",
				State:         services.CheckoutStateCompleted,
				PaymentStatus: services.PaymentStatus("completed"),
			}, nil
		},
	}

	router := chi.NewRouter()
	router.Route("/checkout", NewCheckoutHandlers(nil, service).Routes)

	req := httptest.NewRequest(http.MethodPost, "/checkout/paypal/PP-77:capture", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user_1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp checkoutResultResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success || resp.PaymentStatus != "completed" {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestCheckoutHandlersCancelForwardsReason(t *testing.T) {
	var captured services.PayPalCallbackCommand
	service := &stubCheckoutService{
		cancelFunc: func(ctx context.Context, cmd services.PayPalCallbackCommand) (services.CheckoutResult, error) {
			captured = cmd
			return services.CheckoutResult{OrderID: "ord_abc", State: services.CheckoutStateCancelled}, nil
		},
	}

	router := chi.NewRouter()
	router.Route("/checkout", NewCheckoutHandlers(nil, service).Routes)

	req := httptest.NewRequest(http.MethodPost, "/checkout/paypal/PP-77:cancel", strings.NewReader(`{"reason":"changed my mind"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user_1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.Reason != "changed my mind" {
		t.Fatalf("expected reason to be forwarded, got %q", captured.Reason)
	}
}

func TestCheckoutHandlersErrorCallbackMarksFailure(t *testing.T) {
	service := &stubCheckoutService{
		failFunc: func(ctx context.Context, cmd services.PayPalCallbackCommand) (services.CheckoutResult, error) {
			return services.CheckoutResult{
				OrderID:       "ord_abc",
				State:         services.CheckoutStateFailed,
				PaymentStatus: services.PaymentStatus("failed"),
			}, nil
		},
	}

	router := chi.NewRouter()
	router.Route("/checkout", NewCheckoutHandlers(nil, service).Routes)

	req := httptest.NewRequest(http.MethodPost, "/checkout/paypal/PP-77:error", strings.NewReader(`{"reason":"sdk error"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user_1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp checkoutResultResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Success {
		t.Fatalf("failed checkout must not report success")
	}
	if resp.State != string(services.CheckoutStateFailed) {
		t.Fatalf("expected failed state, got %q", resp.State)
	}
}

func TestCheckoutHandlersUnknownAttempt(t *testing.T) {
	service := &stubCheckoutService{
		approveFunc: func(ctx context.Context, cmd services.PayPalCallbackCommand) (services.CheckoutResult, error) {
			return services.CheckoutResult{}, services.ErrCheckoutUnknownAttempt
		},
	}

	router := chi.NewRouter()
	router.Route("/checkout", NewCheckoutHandlers(nil, service).Routes)

	req := httptest.NewRequest(http.MethodPost, "/checkout/paypal/PP-unknown:capture", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user_1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestCheckoutHandlersCardSuccess(t *testing.T) {
	var captured services.CardCheckoutCommand
	service := &stubCheckoutService{
		cardFunc: func(ctx context.Context, cmd services.CardCheckoutCommand) (services.CheckoutResult, error) {
			captured = cmd
			return services.CheckoutResult{
				OrderID:       "ord_abc",
				State:         services.CheckoutStateCompleted,
				PaymentStatus: services.PaymentStatus("completed"),
			}, nil
		},
	}

	router := chi.NewRouter()
	router.Route("/checkout", NewCheckoutHandlers(nil, service).Routes)

	body := `{"card":{"name":"Ana Petrova","number":"4242 4242 4242 4242","expiry":"12/39","cvv":"123"}}`
	req := httptest.NewRequest(http.MethodPost, "/checkout/card", strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user_1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rr.Code)
	}
	if captured.Card.HolderName != "Ana Petrova" || captured.Card.Number != "4242 4242 4242 4242" {
		t.Fatalf("unexpected card command %#v", captured.Card)
	}
}

func TestCheckoutHandlersCardValidationError(t *testing.T) {
	service := &stubCheckoutService{
		cardFunc: func(ctx context.Context, cmd services.CardCheckoutCommand) (services.CheckoutResult, error) {
			return services.CheckoutResult{}, &payments.CardValidationError{Fields: map[string]string{
				"number": "card number must have 16 digits",
				"cvv":    "cvv must have 3 or 4 digits",
			}}
		},
	}

	router := chi.NewRouter()
	router.Route("/checkout", NewCheckoutHandlers(nil, service).Routes)

	req := httptest.NewRequest(http.MethodPost, "/checkout/card", strings.NewReader(`{"card":{"name":"A"}}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user_1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
	var payload struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Error != "invalid_card" {
		t.Fatalf("expected error invalid_card, got %q", payload.Error)
	}
	if payload.Fields["number"] == "" || payload.Fields["cvv"] == "" {
		t.Fatalf("expected field errors in response, got %#v", payload.Fields)
	}
}

func TestCheckoutHandlersCardDeclined(t *testing.T) {
	service := &stubCheckoutService{
		cardFunc: func(ctx context.Context, cmd services.CardCheckoutCommand) (services.CheckoutResult, error) {
			return services.CheckoutResult{
				OrderID: "ord_abc",
				State:   services.CheckoutStateFailed,
			}, services.ErrCheckoutPaymentFailed
		},
	}

	router := chi.NewRouter()
	router.Route("/checkout", NewCheckoutHandlers(nil, service).Routes)

	body := `{"card":{"name":"Ana Petrova","number":"4242 4242 4242 4242","expiry":"12/39","cvv":"123"}}`
	req := httptest.NewRequest(http.MethodPost, "/checkout/card", strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user_1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("expected status 402, got %d", rr.Code)
	}
	var payload struct {
		Error   string `json:"error"`
		OrderID string `json:"orderId"`
		State   string `json:"state"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Error != "payment_failed" || payload.OrderID != "ord_abc" {
		t.Fatalf("unexpected error payload %#v", payload)
	}
}

func TestCheckoutHandlersCartIncomplete(t *testing.T) {
	service := &stubCheckoutService{
		beginFunc: func(ctx context.Context, cmd services.BeginPayPalCommand) (services.PayPalCheckout, error) {
			return services.PayPalCheckout{}, services.ErrCartIncomplete
		},
	}

	router := chi.NewRouter()
	router.Route("/checkout", NewCheckoutHandlers(nil, service).Routes)

	req := httptest.NewRequest(http.MethodPost, "/checkout/paypal", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user_1"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
}

func TestCheckoutHandlersUnauthenticated(t *testing.T) {
	handler := NewCheckoutHandlers(nil, &stubCheckoutService{})

	req := httptest.NewRequest(http.MethodPost, "/checkout/paypal", nil)
	rr := httptest.NewRecorder()
	handler.beginPayPal(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

type stubCheckoutService struct {
	beginFunc   func(ctx context.Context, cmd services.BeginPayPalCommand) (services.PayPalCheckout, error)
	approveFunc func(ctx context.Context, cmd services.PayPalCallbackCommand) (services.CheckoutResult, error)
	cancelFunc  func(ctx context.Context, cmd services.PayPalCallbackCommand) (services.CheckoutResult, error)
	failFunc    func(ctx context.Context, cmd services.PayPalCallbackCommand) (services.CheckoutResult, error)
	cardFunc    func(ctx context.Context, cmd services.CardCheckoutCommand) (services.CheckoutResult, error)
}

func (s *stubCheckoutService) BeginPayPal(ctx context.Context, cmd services.BeginPayPalCommand) (services.PayPalCheckout, error) {
	if s.beginFunc != nil {
		return s.beginFunc(ctx, cmd)
	}
	return services.PayPalCheckout{}, errors.New("not implemented")
}

func (s *stubCheckoutService) ApprovePayPal(ctx context.Context, cmd services.PayPalCallbackCommand) (services.CheckoutResult, error) {
	if s.approveFunc != nil {
		return s.approveFunc(ctx, cmd)
	}
	return services.CheckoutResult{}, errors.New("not implemented")
}

func (s *stubCheckoutService) CancelPayPal(ctx context.Context, cmd services.PayPalCallbackCommand) (services.CheckoutResult, error) {
	if s.cancelFunc != nil {
		return s.cancelFunc(ctx, cmd)
	}
	return services.CheckoutResult{}, errors.New("not implemented")
}

func (s *stubCheckoutService) FailPayPal(ctx context.Context, cmd services.PayPalCallbackCommand) (services.CheckoutResult, error) {
	if s.failFunc != nil {
		return s.failFunc(ctx, cmd)
	}
	return services.CheckoutResult{}, errors.New("not implemented")
}

func (s *stubCheckoutService) CheckoutCard(ctx context.Context, cmd services.CardCheckoutCommand) (services.CheckoutResult, error) {
	if s.cardFunc != nil {
		return s.cardFunc(ctx, cmd)
	}
	return services.CheckoutResult{}, errors.New("not implemented")
}
