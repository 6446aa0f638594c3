package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tidynest/api/internal/payments"
	"github.com/tidynest/api/internal/platform/auth"
	"github.com/tidynest/api/internal/platform/httpx"
	"github.com/tidynest/api/internal/services"
)

const maxCheckoutBodySize = 8 * 1024

// CheckoutHandlers exposes the payment button callbacks and the direct card path.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs checkout handlers guarded by Firebase authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
}

// Routes wires the /checkout endpoints onto the provided router. The paypal
// callback paths mirror the client SDK's createOrder, onApprove, onCancel and
// onError hooks.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/card", h.checkoutCard)
	r.Post("/paypal", h.beginPayPal)
	r.Post("/paypal/{providerOrderID}:capture", h.approvePayPal)
	r.Post("/paypal/{providerOrderID}:cancel", h.cancelPayPal)
	r.Post("/paypal/{providerOrderID}:error", h.failPayPal)
}

type cardCheckoutRequest struct {
	Card struct {
		Name   string `json:"name"`
		Number string `json:"number"`
		Expiry string `json:"expiry"`
		CVV    string `json:"cvv"`
	} `json:"card"`
}

type paypalErrorRequest struct {
	Reason string `json:"reason"`
}

type paypalCheckoutResponse struct {
	Success         bool   `json:"success"`
	OrderID         string `json:"orderId"`
	ProviderOrderID string `json:"providerOrderId"`
	ApproveURL      string `json:"approveUrl,omitempty"`
	State           string `json:"state"`
}

type checkoutResultResponse struct {
	Success       bool   `json:"success"`
	OrderID       string `json:"orderId"`
	State         string `json:"state"`
	PaymentStatus string `json:"paymentStatus,omitempty"`
}

func (h *CheckoutHandlers) beginPayPal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	checkout, err := h.checkout.BeginPayPal(ctx, services.BeginPayPalCommand{UserID: uid})
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, paypalCheckoutResponse{
		Success:         true,
		OrderID:         checkout.OrderID,
		ProviderOrderID: checkout.ProviderOrderID,
		ApproveURL:      checkout.ApproveURL,
		State:           string(checkout.State),
	})
}

func (h *CheckoutHandlers) approvePayPal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	result, err := h.checkout.ApprovePayPal(ctx, services.PayPalCallbackCommand{
		UserID:          uid,
		ProviderOrderID: chi.URLParam(r, "providerOrderID"),
	})
	if err != nil {
		h.writeCheckoutResultError(ctx, w, result, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCheckoutResult(result))
}

func (h *CheckoutHandlers) cancelPayPal(w http.ResponseWriter, r *http.Request) {
	h.abortPayPal(w, r, false)
}

func (h *CheckoutHandlers) failPayPal(w http.ResponseWriter, r *http.Request) {
	h.abortPayPal(w, r, true)
}

func (h *CheckoutHandlers) abortPayPal(w http.ResponseWriter, r *http.Request, failed bool) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	cmd := services.PayPalCallbackCommand{
		UserID:          uid,
		ProviderOrderID: chi.URLParam(r, "providerOrderID"),
	}
	if body, err := readLimitedBody(r, maxCheckoutBodySize); err == nil {
		var req paypalErrorRequest
		if json.Unmarshal(body, &req) == nil {
			cmd.Reason = strings.TrimSpace(req.Reason)
		}
	}

	var (
		result services.CheckoutResult
		err    error
	)
	if failed {
		result, err = h.checkout.FailPayPal(ctx, cmd)
	} else {
		result, err = h.checkout.CancelPayPal(ctx, cmd)
	}
	if err != nil {
		h.writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCheckoutResult(result))
}

func (h *CheckoutHandlers) checkoutCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req cardCheckoutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	result, err := h.checkout.CheckoutCard(ctx, services.CardCheckoutCommand{
		UserID: uid,
		Card: payments.CardDetails{
			HolderName: req.Card.Name,
			Number:     req.Card.Number,
			Expiry:     req.Card.Expiry,
			CVV:        req.Card.CVV,
		},
	})
	if err != nil {
		h.writeCheckoutResultError(ctx, w, result, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildCheckoutResult(result))
}

func buildCheckoutResult(result services.CheckoutResult) checkoutResultResponse {
	return checkoutResultResponse{
		Success:       result.State == services.CheckoutStateCompleted || result.State == services.CheckoutStateCancelled,
		OrderID:       result.OrderID,
		State:         string(result.State),
		PaymentStatus: string(result.PaymentStatus),
	}
}

func (h *CheckoutHandlers) requireUser(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return identity.UID, true
}

// writeCheckoutResultError keeps the partially-known result in the error body
// so the client can show the terminal order state alongside the failure.
func (h *CheckoutHandlers) writeCheckoutResultError(ctx context.Context, w http.ResponseWriter, result services.CheckoutResult, err error) {
	var cardErr *payments.CardValidationError
	if errors.As(err, &cardErr) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_card", "card details failed validation", http.StatusUnprocessableEntity).
			WithDetails(map[string]any{"fields": cardErr.Fields}))
		return
	}
	if errors.Is(err, services.ErrCheckoutPaymentFailed) {
		details := map[string]any{}
		if result.OrderID != "" {
			details["orderId"] = result.OrderID
			details["state"] = string(result.State)
		}
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", err.Error(), http.StatusPaymentRequired).WithDetails(details))
		return
	}
	h.writeCheckoutError(ctx, w, err)
}

func (h *CheckoutHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	var cardErr *payments.CardValidationError
	switch {
	case errors.As(err, &cardErr):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_card", "card details failed validation", http.StatusUnprocessableEntity).
			WithDetails(map[string]any{"fields": cardErr.Fields}))
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutUnknownAttempt):
		httpx.WriteError(ctx, w, httpx.NewError("unknown_attempt", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", err.Error(), http.StatusPaymentRequired))
	case errors.Is(err, services.ErrCartNoService), errors.Is(err, services.ErrCartNoOptions), errors.Is(err, services.ErrCartIncomplete):
		httpx.WriteError(ctx, w, httpx.NewError("cart_incomplete", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrOrderTotalsMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("totals_mismatch", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrScheduleSlotTaken):
		httpx.WriteError(ctx, w, httpx.NewError("slot_taken", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
	}
}
