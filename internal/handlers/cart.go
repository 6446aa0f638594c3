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
	"github.com/tidynest/api/internal/services"
)

const maxCartBodySize = 16 * 1024

// CartHandlers exposes authenticated cart endpoints for the current user.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs handlers enforcing Firebase authentication before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getCart)
	r.Get("/totals", h.getTotals)
	r.Put("/service", h.putService)
	r.Put("/options/{optionID}", h.putOption)
	r.Put("/address", h.putAddress)
	r.Put("/schedule", h.putSchedule)
	r.Put("/payment-method", h.putPaymentMethod)
	r.Delete("/", h.clearCart)
}

type setCartServiceRequest struct {
	ServiceID  string `json:"serviceId"`
	ProviderID string `json:"providerId"`
}

type setCartOptionRequest struct {
	Quantity int `json:"quantity"`
}

type setCartAddressRequest struct {
	Street       string `json:"street"`
	City         string `json:"city"`
	ZipCode      string `json:"zipCode"`
	Country      string `json:"country"`
	Instructions string `json:"instructions"`
}

type setCartScheduleRequest struct {
	ScheduledDate string          `json:"scheduledDate"`
	TimeSlot      timeSlotPayload `json:"timeSlot"`
}

type setCartPaymentMethodRequest struct {
	Method string `json:"method"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	cart, err := h.carts.GetCart(ctx, uid)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"cart": buildCartPayload(cart)})
}

func (h *CartHandlers) getTotals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	totals, err := h.carts.Totals(ctx, uid)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"totals": totalsPayload{
		Total:      totals.Total,
		Tax:        totals.Tax,
		GrandTotal: totals.GrandTotal,
	}})
}

func (h *CartHandlers) putService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	var req setCartServiceRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ServiceID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "serviceId is required", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.SetService(ctx, services.SetCartServiceCommand{
		UserID:     uid,
		ServiceID:  req.ServiceID,
		ProviderID: req.ProviderID,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"cart": buildCartPayload(cart)})
}

func (h *CartHandlers) putOption(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	var req setCartOptionRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	cart, err := h.carts.UpdateOption(ctx, services.UpdateCartOptionCommand{
		UserID:   uid,
		OptionID: chi.URLParam(r, "optionID"),
		Quantity: req.Quantity,
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"cart": buildCartPayload(cart)})
}

func (h *CartHandlers) putAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	var req setCartAddressRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	cart, err := h.carts.SetAddress(ctx, services.SetCartAddressCommand{
		UserID: uid,
		Address: services.Address{
			Street:       req.Street,
			City:         req.City,
			ZipCode:      req.ZipCode,
			Country:      req.Country,
			Instructions: req.Instructions,
		},
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"cart": buildCartPayload(cart)})
}

func (h *CartHandlers) putSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	var req setCartScheduleRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	cart, err := h.carts.SetSchedule(ctx, services.SetCartScheduleCommand{
		UserID:        uid,
		ScheduledDate: req.ScheduledDate,
		TimeSlot:      services.TimeSlot{Start: req.TimeSlot.Start, End: req.TimeSlot.End},
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"cart": buildCartPayload(cart)})
}

func (h *CartHandlers) putPaymentMethod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	var req setCartPaymentMethodRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	cart, err := h.carts.SetPaymentMethod(ctx, services.SetCartPaymentMethodCommand{
		UserID: uid,
		Method: services.PaymentMethod(strings.ToLower(strings.TrimSpace(req.Method))),
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"cart": buildCartPayload(cart)})
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	if err := h.carts.ClearCart(ctx, uid); err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) requireUser(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return identity.UID, true
}

func (h *CartHandlers) decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func (h *CartHandlers) writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartUnknownOption):
		httpx.WriteError(ctx, w, httpx.NewError("unknown_option", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartNoService), errors.Is(err, services.ErrCartNoOptions), errors.Is(err, services.ErrCartIncomplete):
		httpx.WriteError(ctx, w, httpx.NewError("cart_incomplete", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("service_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrCartConflict):
		httpx.WriteError(ctx, w, httpx.NewError("cart_conflict", "cart has been modified; refresh and retry", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	}
}
