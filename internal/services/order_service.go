package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/tidynest/api/internal/domain"
	"github.com/tidynest/api/internal/platform/pagination"
	"github.com/tidynest/api/internal/repositories"
)

const (
	orderNumberCounterID = "orders"
	orderNumberFormat    = "ORD-%06d"
	// amountTolerance absorbs float rounding when comparing client and server totals.
	amountTolerance = 0.005
)

var (
	// ErrOrderInvalidInput indicates the caller supplied invalid input parameters.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order does not exist.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderForbidden indicates the caller does not own the order.
	ErrOrderForbidden = errors.New("order: forbidden")
	// ErrOrderInvalidState indicates a status transition outside the allowed table.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderInvalidPaymentState indicates a payment status transition outside the allowed table.
	ErrOrderInvalidPaymentState = errors.New("order: invalid payment status transition")
	// ErrOrderTotalsMismatch indicates submitted totals do not match the server-side computation.
	ErrOrderTotalsMismatch = errors.New("order: totals do not match server-side pricing")
	// ErrOrderConflict indicates a concurrent modification prevented the write.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates the persistence layer is unavailable.
	ErrOrderUnavailable = errors.New("order: unavailable")
)

// orderStatusTransitions is the allowed order status table. Completed and
// cancelled are terminal.
var orderStatusTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed:  {domain.OrderStatusInProgress, domain.OrderStatusCancelled},
	domain.OrderStatusInProgress: {domain.OrderStatusCompleted},
	domain.OrderStatusCompleted:  {},
	domain.OrderStatusCancelled:  {},
}

// paymentStatusTransitions is the allowed payment status table. Card payments
// settle synchronously, so pending may jump straight to completed or failed;
// a cancelled PayPal approval drops processing back to pending so the
// customer can retry.
var paymentStatusTransitions = map[domain.PaymentStatus][]domain.PaymentStatus{
	domain.PaymentStatusPending:    {domain.PaymentStatusProcessing, domain.PaymentStatusCompleted, domain.PaymentStatusFailed},
	domain.PaymentStatusProcessing: {domain.PaymentStatusCompleted, domain.PaymentStatusFailed, domain.PaymentStatusPending},
	domain.PaymentStatusCompleted:  {},
	domain.PaymentStatusFailed:     {},
}

// OrderServiceDeps wires the dependencies required by the order service.
type OrderServiceDeps struct {
	Orders    repositories.OrderRepository
	Services  repositories.ServiceRepository
	Providers repositories.ProviderRepository
	Counters  repositories.CounterRepository
	Users     repositories.UserRepository
	Schedule  ScheduleService
	Notifier  NotificationService
	Publisher OrderEventPublisher
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders    repositories.OrderRepository
	services  repositories.ServiceRepository
	providers repositories.ProviderRepository
	counters  repositories.CounterRepository
	users     repositories.UserRepository
	schedule  ScheduleService
	notifier  NotificationService
	publisher OrderEventPublisher
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewOrderService constructs an OrderService validating required dependencies.
// Schedule, Notifier, Users and Publisher are optional.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Services == nil {
		return nil, errors.New("order service: service repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderService{
		orders:    deps.Orders,
		services:  deps.Services,
		providers: deps.Providers,
		counters:  deps.Counters,
		users:     deps.Users,
		schedule:  deps.Schedule,
		notifier:  deps.Notifier,
		publisher: deps.Publisher,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Create validates the submission against the live catalogue, re-snapshots
// option names and prices server-side, recomputes the totals and persists the
// order. Client-supplied totals that disagree with the server computation are
// rejected.
func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}
	sub := cmd.Submission
	if strings.TrimSpace(sub.UserID) == "" || strings.TrimSpace(sub.ServiceID) == "" {
		return Order{}, ErrOrderInvalidInput
	}
	if len(sub.Options) == 0 {
		return Order{}, fmt.Errorf("%w: at least one option is required", ErrOrderInvalidInput)
	}
	if !sub.Address.Complete() {
		return Order{}, fmt.Errorf("%w: address is incomplete", ErrOrderInvalidInput)
	}
	if strings.TrimSpace(sub.ScheduledDate) == "" || !sub.TimeSlot.Complete() {
		return Order{}, fmt.Errorf("%w: schedule is incomplete", ErrOrderInvalidInput)
	}
	switch sub.PaymentMethod {
	case domain.PaymentMethodCard, domain.PaymentMethodPayPal:
	default:
		return Order{}, fmt.Errorf("%w: payment method must be card or paypal", ErrOrderInvalidInput)
	}

	service, err := s.services.FindByID(ctx, strings.TrimSpace(sub.ServiceID))
	if err != nil {
		return Order{}, translateOrderError(err)
	}

	var provider *domain.Provider
	if providerID := strings.TrimSpace(sub.ProviderID); providerID != "" && s.providers != nil {
		found, err := s.providers.FindByID(ctx, providerID)
		if err != nil {
			return Order{}, translateOrderError(err)
		}
		provider = &found
	}

	snapshots, err := snapshotOptions(service, provider, sub.Options)
	if err != nil {
		return Order{}, err
	}

	totals := domain.ComputeTotals(domain.SelectionTotal(snapshots))
	if sub.GrandTotal != 0 && !amountsEqual(sub.GrandTotal, totals.GrandTotal) {
		s.logger(ctx, "order.totals_rejected", map[string]any{
			"userId":    sub.UserID,
			"serviceId": service.ID,
			"submitted": sub.GrandTotal,
			"computed":  totals.GrandTotal,
		})
		return Order{}, ErrOrderTotalsMismatch
	}

	paymentStatus := cmd.PaymentStatus
	if paymentStatus == "" {
		paymentStatus = domain.PaymentStatusPending
	}

	number, err := s.counters.Next(ctx, orderNumberCounterID, 1)
	if err != nil {
		return Order{}, translateOrderError(err)
	}

	now := s.now()
	order := Order{
		ID:            "ord_" + strings.ToLower(ulid.Make().String()),
		Number:        fmt.Sprintf(orderNumberFormat, number),
		UserID:        strings.TrimSpace(sub.UserID),
		ServiceID:     service.ID,
		ServiceName:   service.Name,
		ProviderID:    strings.TrimSpace(sub.ProviderID),
		Options:       snapshots,
		TotalAmount:   totals.Total,
		Tax:           totals.Tax,
		GrandTotal:    totals.GrandTotal,
		Address:       trimAddress(sub.Address),
		ScheduledDate: strings.TrimSpace(sub.ScheduledDate),
		TimeSlot:      TimeSlot{Start: strings.TrimSpace(sub.TimeSlot.Start), End: strings.TrimSpace(sub.TimeSlot.End)},
		Status:        domain.OrderStatusPending,
		PaymentStatus: paymentStatus,
		PaymentMethod: sub.PaymentMethod,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return Order{}, translateOrderError(err)
	}

	s.publish(ctx, OrderEventCreated, order)
	s.logger(ctx, "order.created", map[string]any{
		"orderId": order.ID,
		"number":  order.Number,
		"userId":  order.UserID,
		"total":   order.GrandTotal,
	})
	return order, nil
}

// GetOrder fetches one order, enforcing owner scoping for customer reads.
func (s *orderService) GetOrder(ctx context.Context, q GetOrderQuery) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}
	orderID := strings.TrimSpace(q.OrderID)
	if orderID == "" {
		return Order{}, ErrOrderInvalidInput
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, translateOrderError(err)
	}
	if !q.AllowAnyUser && !strings.EqualFold(order.UserID, strings.TrimSpace(q.UserID)) {
		return Order{}, ErrOrderForbidden
	}
	return order, nil
}

// ListOrders returns a page of orders, scoped to the caller unless AllowAnyUser is set.
func (s *orderService) ListOrders(ctx context.Context, q OrderListQuery) (OrderPage, error) {
	if s == nil || s.orders == nil {
		return OrderPage{}, ErrOrderUnavailable
	}
	userID := strings.TrimSpace(q.UserID)
	if !q.AllowAnyUser && userID == "" {
		return OrderPage{}, ErrOrderInvalidInput
	}
	filter := repositories.OrderListFilter{
		Status:        q.Status,
		PaymentStatus: q.PaymentStatus,
		PageSize:      q.PageSize,
		StartAfter:    strings.TrimSpace(q.Cursor),
	}
	if !q.AllowAnyUser {
		filter.UserID = userID
	}
	page, err := s.orders.List(ctx, filter)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidPageToken) {
			return OrderPage{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
		}
		return OrderPage{}, translateOrderError(err)
	}
	return OrderPage{Orders: page.Orders, NextCursor: page.NextCursor}, nil
}

// TransitionStatus applies one step of the order status machine.
func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, ErrOrderInvalidInput
	}
	if _, known := orderStatusTransitions[cmd.Status]; !known {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, translateOrderError(err)
	}
	if err := checkStatusTransition(order.Status, cmd.Status); err != nil {
		return Order{}, err
	}

	expected := order.UpdatedAt
	order.Status = cmd.Status
	order.UpdatedAt = s.now()
	updated, err := s.orders.Update(ctx, order, &expected)
	if err != nil {
		return Order{}, translateOrderError(err)
	}

	s.publish(ctx, OrderEventStatusChanged, updated)
	s.notifyStatusChange(ctx, updated)
	return updated, nil
}

// Cancel cancels an order still in pending or confirmed, releasing any held
// schedule reservation and recording the reason.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, ErrOrderInvalidInput
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, translateOrderError(err)
	}
	if !cmd.AllowAnyUser && !strings.EqualFold(order.UserID, strings.TrimSpace(cmd.UserID)) {
		return Order{}, ErrOrderForbidden
	}
	if err := checkStatusTransition(order.Status, domain.OrderStatusCancelled); err != nil {
		return Order{}, err
	}

	expected := order.UpdatedAt
	order.Status = domain.OrderStatusCancelled
	order.CancelReason = strings.TrimSpace(cmd.Reason)
	order.UpdatedAt = s.now()
	updated, err := s.orders.Update(ctx, order, &expected)
	if err != nil {
		return Order{}, translateOrderError(err)
	}

	if s.schedule != nil {
		if err := s.schedule.ReleaseForOrder(ctx, updated.ID); err != nil {
			s.logger(ctx, "order.release_reservation_failed", map[string]any{
				"orderId": updated.ID,
				"error":   err.Error(),
			})
		}
	}

	s.publish(ctx, OrderEventCancelled, updated)
	s.notifyStatusChange(ctx, updated)
	return updated, nil
}

// UpdatePayment applies a payment status change with capture metadata. The
// operation is idempotent on the transaction id: replaying an identical update
// appends no duplicate history entry and succeeds.
func (s *orderService) UpdatePayment(ctx context.Context, cmd UpdatePaymentCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, ErrOrderInvalidInput
	}
	if _, known := paymentStatusTransitions[cmd.PaymentStatus]; !known {
		return Order{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, cmd.PaymentStatus)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, translateOrderError(err)
	}

	txnID := strings.TrimSpace(cmd.TransactionID)
	if order.PaymentStatus == cmd.PaymentStatus {
		if txnID == "" || hasPaymentRecord(order, txnID) {
			return order, nil
		}
	} else if err := checkPaymentTransition(order.PaymentStatus, cmd.PaymentStatus); err != nil {
		return Order{}, err
	}

	now := s.now()
	if txnID != "" && !hasPaymentRecord(order, txnID) {
		order.Payments = append(order.Payments, PaymentRecord{
			TransactionID: txnID,
			Provider:      strings.TrimSpace(cmd.Provider),
			Status:        cmd.PaymentStatus,
			Amount:        cmd.Amount,
			Currency:      strings.ToUpper(strings.TrimSpace(cmd.Currency)),
			Raw:           cmd.Raw,
			RecordedAt:    now,
		})
	}

	expected := order.UpdatedAt
	order.PaymentStatus = cmd.PaymentStatus
	order.UpdatedAt = now
	updated, err := s.orders.Update(ctx, order, &expected)
	if err != nil {
		return Order{}, translateOrderError(err)
	}

	s.publish(ctx, OrderEventPaymentChanged, updated)
	s.logger(ctx, "order.payment_updated", map[string]any{
		"orderId":       updated.ID,
		"paymentStatus": string(updated.PaymentStatus),
		"transactionId": txnID,
	})
	return updated, nil
}

func checkStatusTransition(from, to domain.OrderStatus) error {
	for _, allowed := range orderStatusTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, from, to)
}

func checkPaymentTransition(from, to domain.PaymentStatus) error {
	for _, allowed := range paymentStatusTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s to %s", ErrOrderInvalidPaymentState, from, to)
}

func hasPaymentRecord(order Order, transactionID string) bool {
	for _, record := range order.Payments {
		if strings.EqualFold(record.TransactionID, transactionID) {
			return true
		}
	}
	return false
}

// snapshotOptions validates every submitted option against the live service
// and rebuilds the snapshots from catalogue data, applying provider overrides.
func snapshotOptions(service Service, provider *domain.Provider, submitted []OptionSelection) ([]OptionSelection, error) {
	snapshots := make([]OptionSelection, 0, len(submitted))
	for _, sel := range submitted {
		opt, ok := service.Option(strings.TrimSpace(sel.OptionID))
		if !ok {
			return nil, fmt.Errorf("%w: option %q does not belong to service %s", ErrOrderInvalidInput, sel.OptionID, service.ID)
		}
		if sel.Quantity < 1 {
			return nil, fmt.Errorf("%w: option %q quantity must be at least 1", ErrOrderInvalidInput, sel.OptionID)
		}
		price := opt.Price
		if provider != nil {
			price = provider.EffectivePrice(service.ID, opt)
		}
		snapshots = append(snapshots, OptionSelection{
			OptionID: opt.ID,
			Name:     opt.Name,
			Price:    price,
			Quantity: sel.Quantity,
		})
	}
	return snapshots, nil
}

func amountsEqual(a, b float64) bool {
	return math.Abs(a-b) < amountTolerance
}

func (s *orderService) publish(ctx context.Context, eventType string, order Order) {
	if s.publisher == nil {
		return
	}
	_, err := s.publisher.PublishOrderEvent(ctx, OrderEvent{
		Type:          eventType,
		OrderID:       order.ID,
		UserID:        order.UserID,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		OccurredAt:    s.now(),
	})
	if err != nil {
		s.logger(ctx, "order.event_publish_failed", map[string]any{
			"orderId": order.ID,
			"type":    eventType,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) notifyStatusChange(ctx context.Context, order Order) {
	if s.notifier == nil || s.users == nil {
		return
	}
	user, err := s.users.FindByID(ctx, order.UserID)
	if err != nil || strings.TrimSpace(user.Email) == "" {
		return
	}
	s.notifier.SendOrderStatusUpdate(ctx, OrderStatusNotification{
		Email:       user.Email,
		OrderID:     order.ID,
		OrderNumber: order.Number,
		Status:      order.Status,
	})
}

func translateOrderError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrOrderNotFound
		case repoErr.IsConflict():
			return ErrOrderConflict
		default:
			return ErrOrderUnavailable
		}
	}
	return ErrOrderUnavailable
}
