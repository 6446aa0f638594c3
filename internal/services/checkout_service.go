package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/tidynest/api/internal/domain"
	"github.com/tidynest/api/internal/payments"
	"github.com/tidynest/api/internal/repositories"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutPaymentFailed indicates the payment provider rejected the attempt.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
	// ErrCheckoutUnknownAttempt indicates the provider order could not be matched to a local order.
	ErrCheckoutUnknownAttempt = errors.New("checkout: unknown payment attempt")
)

// checkoutPaymentManager abstracts payments.Manager for easier testing.
type checkoutPaymentManager interface {
	CreateOrder(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CreateOrderRequest) (payments.ProviderOrder, error)
	Capture(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CaptureRequest) (payments.PaymentDetails, error)
	Charge(ctx context.Context, paymentCtx payments.PaymentContext, req payments.ChargeRequest) (payments.PaymentDetails, error)
	Lookup(ctx context.Context, paymentCtx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error)
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Cart     CartService
	Orders   OrderService
	Schedule ScheduleService
	Payments checkoutPaymentManager
	Users    repositories.UserRepository
	Notifier NotificationService
	Currency string
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// checkoutService reconciles the payment buttons' callbacks into order
// records. Each operation advances one checkout attempt through the
// creating / awaiting_approval / capturing states to a terminal outcome.
type checkoutService struct {
	cart     CartService
	orders   OrderService
	schedule ScheduleService
	payments checkoutPaymentManager
	users    repositories.UserRepository
	notifier NotificationService
	currency string
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
// Users and Notifier are optional.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Cart == nil {
		return nil, errors.New("checkout service: cart service is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order service is required")
	}
	if deps.Schedule == nil {
		return nil, errors.New("checkout service: schedule service is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment manager is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "EUR"
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &checkoutService{
		cart:     deps.Cart,
		orders:   deps.Orders,
		schedule: deps.Schedule,
		payments: deps.Payments,
		users:    deps.Users,
		notifier: deps.Notifier,
		currency: currency,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// BeginPayPal handles the createOrder callback: it derives the submission from
// the cart, creates the local order with paymentStatus=processing, holds the
// schedule slot and opens the provider order. The local order id travels as
// the provider order's reference id, the single correlation id for the whole
// attempt. Failures after local creation mark the order failed and release
// the hold; failures before provider creation leave no orphaned provider order.
func (s *checkoutService) BeginPayPal(ctx context.Context, cmd BeginPayPalCommand) (PayPalCheckout, error) {
	if s == nil || s.payments == nil {
		return PayPalCheckout{}, ErrCheckoutUnavailable
	}
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return PayPalCheckout{}, ErrCheckoutInvalidInput
	}

	submission, err := s.cart.BuildSubmission(ctx, userID)
	if err != nil {
		return PayPalCheckout{}, err
	}
	submission.PaymentMethod = domain.PaymentMethodPayPal

	order, err := s.orders.Create(ctx, CreateOrderCommand{
		Submission:    submission,
		PaymentStatus: domain.PaymentStatusProcessing,
	})
	if err != nil {
		return PayPalCheckout{}, err
	}

	if _, err := s.schedule.Hold(ctx, HoldSlotCommand{
		OrderID:       order.ID,
		ProviderID:    order.ProviderID,
		ScheduledDate: order.ScheduledDate,
		TimeSlot:      order.TimeSlot,
	}); err != nil {
		s.markFailed(ctx, order.ID, "", nil)
		return PayPalCheckout{}, err
	}

	providerOrder, err := s.payments.CreateOrder(ctx,
		payments.PaymentContext{Method: string(domain.PaymentMethodPayPal)},
		payments.CreateOrderRequest{
			ReferenceID: order.ID,
			Amount:      order.GrandTotal,
			Currency:    s.currency,
			Description: order.ServiceName,
		})
	if err != nil {
		s.logger(ctx, "checkout.provider_create_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		s.releaseReservation(ctx, order.ID)
		s.markFailed(ctx, order.ID, "", nil)
		return PayPalCheckout{}, fmt.Errorf("%w: %s", ErrCheckoutPaymentFailed, err)
	}

	s.logger(ctx, "checkout.paypal_started", map[string]any{
		"orderId":         order.ID,
		"providerOrderId": providerOrder.ID,
	})
	return PayPalCheckout{
		OrderID:         order.ID,
		ProviderOrderID: providerOrder.ID,
		ApproveURL:      providerOrder.ApproveURL,
		State:           CheckoutStateAwaitingApproval,
	}, nil
}

// ApprovePayPal handles the onApprove callback: it captures the provider
// order, resolves the local order through the capture's reference id, records
// the completed payment, commits the slot, clears the cart and sends the
// receipt. A capture that succeeded but could not be recorded locally is
// logged loudly for out-of-band reconciliation; it is never re-captured.
func (s *checkoutService) ApprovePayPal(ctx context.Context, cmd PayPalCallbackCommand) (CheckoutResult, error) {
	if s == nil || s.payments == nil {
		return CheckoutResult{}, ErrCheckoutUnavailable
	}
	providerOrderID := strings.TrimSpace(cmd.ProviderOrderID)
	if providerOrderID == "" {
		return CheckoutResult{}, ErrCheckoutInvalidInput
	}

	paymentCtx := payments.PaymentContext{Method: string(domain.PaymentMethodPayPal)}
	details, err := s.payments.Capture(ctx, paymentCtx, payments.CaptureRequest{ProviderOrderID: providerOrderID})
	if err != nil {
		orderID := s.resolveOrderID(ctx, providerOrderID, details)
		if orderID == "" {
			return CheckoutResult{}, fmt.Errorf("%w: %s", ErrCheckoutUnknownAttempt, providerOrderID)
		}
		s.releaseReservation(ctx, orderID)
		s.markFailed(ctx, orderID, details.TransactionID, details.Raw)
		s.logger(ctx, "checkout.capture_failed", map[string]any{
			"orderId":         orderID,
			"providerOrderId": providerOrderID,
			"error":           err.Error(),
		})
		return CheckoutResult{
			OrderID:       orderID,
			State:         CheckoutStateFailed,
			PaymentStatus: domain.PaymentStatusFailed,
		}, fmt.Errorf("%w: %s", ErrCheckoutPaymentFailed, err)
	}

	orderID := strings.TrimSpace(details.ReferenceID)
	if orderID == "" {
		s.logger(ctx, "checkout.capture_unmatched", map[string]any{
			"providerOrderId": providerOrderID,
			"transactionId":   details.TransactionID,
		})
		return CheckoutResult{}, fmt.Errorf("%w: %s", ErrCheckoutUnknownAttempt, providerOrderID)
	}

	order, err := s.orders.UpdatePayment(ctx, UpdatePaymentCommand{
		OrderID:       orderID,
		PaymentStatus: domain.PaymentStatusCompleted,
		TransactionID: details.TransactionID,
		Provider:      details.Provider,
		Amount:        details.Amount,
		Currency:      details.Currency,
		Raw:           details.Raw,
	})
	if err != nil {
		// Funds are captured but the order record is stale. Flag it for
		// out-of-band reconciliation rather than attempting a second capture.
		s.logger(ctx, "checkout.capture_unreconciled", map[string]any{
			"orderId":         orderID,
			"providerOrderId": providerOrderID,
			"transactionId":   details.TransactionID,
			"error":           err.Error(),
		})
		return CheckoutResult{OrderID: orderID, State: CheckoutStateCapturing}, ErrCheckoutUnavailable
	}

	s.commitReservation(ctx, order.ID)
	if err := s.cart.ClearCart(ctx, order.UserID); err != nil {
		s.logger(ctx, "checkout.cart_clear_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
	s.sendReceipt(ctx, order, details.TransactionID)

	return CheckoutResult{
		OrderID:       order.ID,
		State:         CheckoutStateCompleted,
		PaymentStatus: order.PaymentStatus,
	}, nil
}

// CancelPayPal handles the onCancel callback: the attempt drops back to
// paymentStatus=pending and the hold is released. A retry always creates a
// fresh order; the abandoned one stays pending until swept.
func (s *checkoutService) CancelPayPal(ctx context.Context, cmd PayPalCallbackCommand) (CheckoutResult, error) {
	return s.abortAttempt(ctx, cmd, domain.PaymentStatusPending, CheckoutStateCancelled)
}

// FailPayPal handles the onError callback: the attempt is marked failed
// best-effort and the hold is released. Secondary failures are logged, not
// escalated, so the client always gets a terminal answer.
func (s *checkoutService) FailPayPal(ctx context.Context, cmd PayPalCallbackCommand) (CheckoutResult, error) {
	return s.abortAttempt(ctx, cmd, domain.PaymentStatusFailed, CheckoutStateFailed)
}

func (s *checkoutService) abortAttempt(ctx context.Context, cmd PayPalCallbackCommand, target PaymentStatus, state CheckoutState) (CheckoutResult, error) {
	if s == nil || s.payments == nil {
		return CheckoutResult{}, ErrCheckoutUnavailable
	}
	providerOrderID := strings.TrimSpace(cmd.ProviderOrderID)
	if providerOrderID == "" {
		return CheckoutResult{}, ErrCheckoutInvalidInput
	}

	orderID := s.resolveOrderID(ctx, providerOrderID, payments.PaymentDetails{})
	if orderID == "" {
		return CheckoutResult{}, fmt.Errorf("%w: %s", ErrCheckoutUnknownAttempt, providerOrderID)
	}

	s.releaseReservation(ctx, orderID)
	order, err := s.orders.UpdatePayment(ctx, UpdatePaymentCommand{
		OrderID:       orderID,
		PaymentStatus: target,
	})
	if err != nil {
		s.logger(ctx, "checkout.abort_update_failed", map[string]any{
			"orderId":         orderID,
			"providerOrderId": providerOrderID,
			"target":          string(target),
			"reason":          cmd.Reason,
			"error":           err.Error(),
		})
		// A late callback can lose the race against an already settled order.
		// Report the order's real payment status, not the target.
		current, lookupErr := s.orders.GetOrder(ctx, GetOrderQuery{OrderID: orderID, AllowAnyUser: true})
		if lookupErr != nil {
			return CheckoutResult{}, ErrCheckoutUnavailable
		}
		if current.PaymentStatus == domain.PaymentStatusCompleted {
			state = CheckoutStateCompleted
		}
		return CheckoutResult{OrderID: orderID, State: state, PaymentStatus: current.PaymentStatus}, nil
	}

	return CheckoutResult{OrderID: orderID, State: state, PaymentStatus: order.PaymentStatus}, nil
}

// CheckoutCard settles the cart synchronously: the card is re-validated server
// side before any order row exists, then the order is created and charged
// through the card provider in one pass.
func (s *checkoutService) CheckoutCard(ctx context.Context, cmd CardCheckoutCommand) (CheckoutResult, error) {
	if s == nil || s.payments == nil {
		return CheckoutResult{}, ErrCheckoutUnavailable
	}
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return CheckoutResult{}, ErrCheckoutInvalidInput
	}
	if err := payments.ValidateCard(cmd.Card, s.now()); err != nil {
		return CheckoutResult{}, err
	}

	submission, err := s.cart.BuildSubmission(ctx, userID)
	if err != nil {
		return CheckoutResult{}, err
	}
	submission.PaymentMethod = domain.PaymentMethodCard

	order, err := s.orders.Create(ctx, CreateOrderCommand{
		Submission:    submission,
		PaymentStatus: domain.PaymentStatusPending,
	})
	if err != nil {
		return CheckoutResult{}, err
	}

	if _, err := s.schedule.Hold(ctx, HoldSlotCommand{
		OrderID:       order.ID,
		ProviderID:    order.ProviderID,
		ScheduledDate: order.ScheduledDate,
		TimeSlot:      order.TimeSlot,
	}); err != nil {
		s.markFailed(ctx, order.ID, "", nil)
		return CheckoutResult{}, err
	}

	details, err := s.payments.Charge(ctx,
		payments.PaymentContext{Method: string(domain.PaymentMethodCard)},
		payments.ChargeRequest{
			ReferenceID: order.ID,
			Amount:      order.GrandTotal,
			Currency:    s.currency,
			Card:        cmd.Card,
		})
	if err != nil {
		s.releaseReservation(ctx, order.ID)
		s.markFailed(ctx, order.ID, "", nil)
		s.logger(ctx, "checkout.card_charge_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return CheckoutResult{
			OrderID:       order.ID,
			State:         CheckoutStateFailed,
			PaymentStatus: domain.PaymentStatusFailed,
		}, fmt.Errorf("%w: %s", ErrCheckoutPaymentFailed, err)
	}

	orderID := order.ID
	order, err = s.orders.UpdatePayment(ctx, UpdatePaymentCommand{
		OrderID:       orderID,
		PaymentStatus: domain.PaymentStatusCompleted,
		TransactionID: details.TransactionID,
		Provider:      details.Provider,
		Amount:        details.Amount,
		Currency:      details.Currency,
		Raw:           details.Raw,
	})
	if err != nil {
		s.logger(ctx, "checkout.card_unreconciled", map[string]any{
			"orderId":       orderID,
			"transactionId": details.TransactionID,
			"error":         err.Error(),
		})
		return CheckoutResult{OrderID: orderID, State: CheckoutStateCapturing}, ErrCheckoutUnavailable
	}

	s.commitReservation(ctx, order.ID)
	if err := s.cart.ClearCart(ctx, order.UserID); err != nil {
		s.logger(ctx, "checkout.cart_clear_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
	s.sendReceipt(ctx, order, details.TransactionID)

	return CheckoutResult{
		OrderID:       order.ID,
		State:         CheckoutStateCompleted,
		PaymentStatus: order.PaymentStatus,
	}, nil
}

// resolveOrderID recovers the local order id for a provider order, preferring
// the reference id already present in capture details over a provider lookup.
func (s *checkoutService) resolveOrderID(ctx context.Context, providerOrderID string, known payments.PaymentDetails) string {
	if id := strings.TrimSpace(known.ReferenceID); id != "" {
		return id
	}
	details, err := s.payments.Lookup(ctx,
		payments.PaymentContext{Method: string(domain.PaymentMethodPayPal)},
		payments.LookupRequest{ProviderOrderID: providerOrderID})
	if err != nil {
		s.logger(ctx, "checkout.lookup_failed", map[string]any{
			"providerOrderId": providerOrderID,
			"error":           err.Error(),
		})
		return ""
	}
	return strings.TrimSpace(details.ReferenceID)
}

func (s *checkoutService) markFailed(ctx context.Context, orderID, transactionID string, raw map[string]any) {
	if _, err := s.orders.UpdatePayment(ctx, UpdatePaymentCommand{
		OrderID:       orderID,
		PaymentStatus: domain.PaymentStatusFailed,
		TransactionID: transactionID,
		Raw:           raw,
	}); err != nil {
		s.logger(ctx, "checkout.mark_failed_error", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
	}
}

func (s *checkoutService) releaseReservation(ctx context.Context, orderID string) {
	if err := s.schedule.ReleaseForOrder(ctx, orderID); err != nil {
		s.logger(ctx, "checkout.release_failed", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
	}
}

func (s *checkoutService) commitReservation(ctx context.Context, orderID string) {
	if err := s.schedule.CommitForOrder(ctx, orderID); err != nil {
		s.logger(ctx, "checkout.commit_failed", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
	}
}

func (s *checkoutService) sendReceipt(ctx context.Context, order Order, transactionID string) {
	if s.notifier == nil || s.users == nil {
		return
	}
	user, err := s.users.FindByID(ctx, order.UserID)
	if err != nil || strings.TrimSpace(user.Email) == "" {
		return
	}
	s.notifier.SendPaymentReceipt(ctx, PaymentReceiptNotification{
		Email:         user.Email,
		OrderID:       order.ID,
		OrderNumber:   order.Number,
		ServiceName:   order.ServiceName,
		GrandTotal:    order.GrandTotal,
		Currency:      s.currency,
		TransactionID: transactionID,
	})
}
