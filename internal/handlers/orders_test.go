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

	"github.com/tidynest/api/internal/platform/auth"
	"github.com/tidynest/api/internal/services"
)

func TestOrderHandlersListScopesToIdentity(t *testing.T) {
	service := &stubOrderService{
		listFunc: func(ctx context.Context, q services.OrderListQuery) (services.OrderPage, error) {
			if q.UserID != "user_3" {
				t.Fatalf("expected listing scoped to user_3, got %q", q.UserID)
			}
			if q.AllowAnyUser {
				t.Fatalf("customer listing must not allow cross-user reads")
			}
			if q.Status != services.OrderStatus("pending") {
				t.Fatalf("expected status filter pending, got %q", q.Status)
			}
			return services.OrderPage{
				Orders:     []services.Order{{ID: "ord_1", UserID: "user_3", Number: "ORD-000001"}},
				NextCursor: "cur_2",
			}, nil
		},
	}

	router := chi.NewRouter()
	router.Route("/orders", NewOrderHandlers(nil, service).Routes)

	req := httptest.NewRequest(http.MethodGet, "/orders?status=pending", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user_3"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Orders) != 1 || resp.Orders[0].ID != "ord_1" {
		t.Fatalf("unexpected orders payload %#v", resp.Orders)
	}
	if resp.NextCursor != "cur_2" {
		t.Fatalf("expected next cursor cur_2, got %q", resp.NextCursor)
	}
}

func TestOrderHandlersListRejectsBadPageSize(t *testing.T) {
	router := chi.NewRouter()
	router.Route("/orders", NewOrderHandlers(nil, &stubOrderService{}).Routes)

	req := httptest.NewRequest(http.MethodGet, "/orders?pageSize=lots", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user_3"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestOrderHandlersGetOrderEnvelope(t *testing.T) {
	service := &stubOrderService{
		getFunc: func(ctx context.Context, q services.GetOrderQuery) (services.Order, error) {
			if q.OrderID != "ord_1" || q.UserID != "user_3" {
				t.Fatalf("unexpected query %#v", q)
			}
			return services.Order{
				ID:         "ord_1",
				Number:     "ORD-000001",
				UserID:     "user_3",
				GrandTotal: 30,
				Status:     services.OrderStatus("pending"),
			}, nil
		},
	}

	router := chi.NewRouter()
	router.Route("/orders", NewOrderHandlers(nil, service).Routes)

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user_3"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp orderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success envelope")
	}
	if resp.Order.Number != "ORD-000001" || resp.Order.GrandTotal != 30 {
		t.Fatalf("unexpected order payload %#v", resp.Order)
	}
}

func TestOrderHandlersGetOrderForbidden(t *testing.T) {
	service := &stubOrderService{
		getFunc: func(ctx context.Context, q services.GetOrderQuery) (services.Order, error) {
			return services.Order{}, services.ErrOrderForbidden
		},
	}

	router := chi.NewRouter()
	router.Route("/orders", NewOrderHandlers(nil, service).Routes)

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user_other"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
}

func TestOrderHandlersCancelForwardsReason(t *testing.T) {
	var captured services.CancelOrderCommand
	service := &stubOrderService{
		cancelFunc: func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			captured = cmd
			return services.Order{ID: cmd.OrderID, Status: services.OrderStatus("cancelled")}, nil
		},
	}

	router := chi.NewRouter()
	router.Route("/orders", NewOrderHandlers(nil, service).Routes)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_1:cancel", strings.NewReader(`{"reason":"double booked"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user_3"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if captured.OrderID != "ord_1" || captured.UserID != "user_3" || captured.Reason != "double booked" {
		t.Fatalf("unexpected command %#v", captured)
	}
}

func TestOrderHandlersCancelTerminalOrderConflicts(t *testing.T) {
	service := &stubOrderService{
		cancelFunc: func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderInvalidState
		},
	}

	router := chi.NewRouter()
	router.Route("/orders", NewOrderHandlers(nil, service).Routes)

	req := httptest.NewRequest(http.MethodPost, "/orders/ord_1:cancel", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user_3"}))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Error != "invalid_status_transition" {
		t.Fatalf("expected error invalid_status_transition, got %q", payload.Error)
	}
}

func TestOrderHandlersUnauthenticated(t *testing.T) {
	handler := NewOrderHandlers(nil, &stubOrderService{})

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rr := httptest.NewRecorder()
	handler.listOrders(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

type stubOrderService struct {
	createFunc        func(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error)
	getFunc           func(ctx context.Context, q services.GetOrderQuery) (services.Order, error)
	listFunc          func(ctx context.Context, q services.OrderListQuery) (services.OrderPage, error)
	transitionFunc    func(ctx context.Context, cmd services.OrderStatusCommand) (services.Order, error)
	cancelFunc        func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error)
	updatePaymentFunc func(ctx context.Context, cmd services.UpdatePaymentCommand) (services.Order, error)
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, q services.GetOrderQuery) (services.Order, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, q)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListOrders(ctx context.Context, q services.OrderListQuery) (services.OrderPage, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, q)
	}
	return services.OrderPage{}, errors.New("not implemented")
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderStatusCommand) (services.Order, error) {
	if s.transitionFunc != nil {
		return s.transitionFunc(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFunc != nil {
		return s.cancelFunc(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) UpdatePayment(ctx context.Context, cmd services.UpdatePaymentCommand) (services.Order, error) {
	if s.updatePaymentFunc != nil {
		return s.updatePaymentFunc(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}
