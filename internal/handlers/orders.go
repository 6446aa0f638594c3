package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tidynest/api/internal/platform/auth"
	"github.com/tidynest/api/internal/platform/httpx"
	"github.com/tidynest/api/internal/platform/pagination"
	"github.com/tidynest/api/internal/services"
)

const maxOrderBodySize = 8 * 1024

// OrderHandlers exposes the customer-facing order endpoints.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs order handlers guarded by Firebase authentication.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

type orderResponse struct {
	Success bool         `json:"success"`
	Order   orderPayload `json:"order"`
}

type orderListResponse struct {
	Orders     []orderPayload `json:"orders"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := services.OrderListQuery{
		UserID:        identity.UID,
		Status:        services.OrderStatus(trimmedQuery(r.URL.Query().Get("status"))),
		PaymentStatus: services.PaymentStatus(trimmedQuery(r.URL.Query().Get("paymentStatus"))),
		Cursor:        params.Cursor,
		PageSize:      params.PageSize,
	}

	page, err := h.orders.ListOrders(ctx, query)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	payload := orderListResponse{
		Orders:     make([]orderPayload, 0, len(page.Orders)),
		NextCursor: page.NextCursor,
	}
	for _, order := range page.Orders {
		payload.Orders = append(payload.Orders, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, services.GetOrderQuery{
		OrderID: chi.URLParam(r, "orderID"),
		UserID:  identity.UID,
	})
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Success: true, Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	cmd := services.CancelOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		UserID:  identity.UID,
	}
	if body, err := readLimitedBody(r, maxOrderBodySize); err == nil {
		var req cancelOrderRequest
		if json.Unmarshal(body, &req) == nil {
			cmd.Reason = strings.TrimSpace(req.Reason)
		}
	}

	order, err := h.orders.Cancel(ctx, cmd)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Success: true, Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) requireUser(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func (h *OrderHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	writeOrderServiceError(ctx, w, err)
}

func writeOrderServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "order belongs to another user", http.StatusForbidden))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidPaymentState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_payment_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderTotalsMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("totals_mismatch", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order has been modified; refresh and retry", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
	}
}
