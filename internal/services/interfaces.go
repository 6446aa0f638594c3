package services

import (
	"context"
	"time"

	domain "github.com/tidynest/api/internal/domain"
	"github.com/tidynest/api/internal/payments"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Service         = domain.Service
	ServiceOption   = domain.ServiceOption
	Provider        = domain.Provider
	ProviderType    = domain.ProviderType
	Cart            = domain.Cart
	Address         = domain.Address
	TimeSlot        = domain.TimeSlot
	Order           = domain.Order
	OrderStatus     = domain.OrderStatus
	PaymentStatus   = domain.PaymentStatus
	PaymentMethod   = domain.PaymentMethod
	PaymentRecord   = domain.PaymentRecord
	OptionSelection = domain.OptionSelection
	Totals          = domain.Totals
	Reservation     = domain.Reservation
	User            = domain.User
)

// CatalogService exposes the public service/provider catalogue and its admin CRUD surface.
type CatalogService interface {
	ListServices(ctx context.Context, filter ServiceListQuery) ([]Service, error)
	GetService(ctx context.Context, serviceID string) (Service, error)
	ListProviders(ctx context.Context, filter ProviderListQuery) ([]Provider, error)
	GetProvider(ctx context.Context, providerID string) (Provider, error)
	CreateService(ctx context.Context, cmd UpsertServiceCommand) (Service, error)
	UpdateService(ctx context.Context, cmd UpsertServiceCommand) (Service, error)
	DeleteService(ctx context.Context, serviceID string) error
	CreateProvider(ctx context.Context, cmd UpsertProviderCommand) (Provider, error)
	UpdateProvider(ctx context.Context, cmd UpsertProviderCommand) (Provider, error)
	DeleteProvider(ctx context.Context, providerID string) error
}

// CartService manages the per-user cart and derives order submissions from it.
type CartService interface {
	GetCart(ctx context.Context, userID string) (Cart, error)
	SetService(ctx context.Context, cmd SetCartServiceCommand) (Cart, error)
	UpdateOption(ctx context.Context, cmd UpdateCartOptionCommand) (Cart, error)
	SetAddress(ctx context.Context, cmd SetCartAddressCommand) (Cart, error)
	SetSchedule(ctx context.Context, cmd SetCartScheduleCommand) (Cart, error)
	SetPaymentMethod(ctx context.Context, cmd SetCartPaymentMethodCommand) (Cart, error)
	Totals(ctx context.Context, userID string) (Totals, error)
	BuildSubmission(ctx context.Context, userID string) (OrderSubmission, error)
	ClearCart(ctx context.Context, userID string) error
}

// OrderService encapsulates order creation, reads, and both state machines.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, q GetOrderQuery) (Order, error)
	ListOrders(ctx context.Context, q OrderListQuery) (OrderPage, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	UpdatePayment(ctx context.Context, cmd UpdatePaymentCommand) (Order, error)
}

// CheckoutService reconciles provider payment callbacks into order records.
// Its five operations map onto the payment buttons' createOrder, onApprove,
// onCancel and onError callbacks plus the direct card path.
type CheckoutService interface {
	BeginPayPal(ctx context.Context, cmd BeginPayPalCommand) (PayPalCheckout, error)
	ApprovePayPal(ctx context.Context, cmd PayPalCallbackCommand) (CheckoutResult, error)
	CancelPayPal(ctx context.Context, cmd PayPalCallbackCommand) (CheckoutResult, error)
	FailPayPal(ctx context.Context, cmd PayPalCallbackCommand) (CheckoutResult, error)
	CheckoutCard(ctx context.Context, cmd CardCheckoutCommand) (CheckoutResult, error)
}

// ScheduleService manages provider time-slot holds for checkout attempts.
type ScheduleService interface {
	Hold(ctx context.Context, cmd HoldSlotCommand) (Reservation, error)
	CommitForOrder(ctx context.Context, orderID string) error
	ReleaseForOrder(ctx context.Context, orderID string) error
}

// NotificationService sends transactional email. Failures are logged by the
// implementation and never propagate into order flow.
type NotificationService interface {
	SendPaymentReceipt(ctx context.Context, n PaymentReceiptNotification)
	SendOrderStatusUpdate(ctx context.Context, n OrderStatusNotification)
}

// UserService mirrors authenticated accounts for the admin dashboard.
type UserService interface {
	EnsureProfile(ctx context.Context, cmd EnsureProfileCommand) error
	ListUsers(ctx context.Context) ([]User, error)
	SetUserActive(ctx context.Context, cmd SetUserActiveCommand) error
}

// AdminService aggregates dashboard analytics.
type AdminService interface {
	DashboardStats(ctx context.Context) (DashboardStats, error)
}

// OrderEvent describes an order lifecycle change published to interested consumers.
type OrderEvent struct {
	Type          string    `json:"type"`
	OrderID       string    `json:"orderId"`
	UserID        string    `json:"userId"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"paymentStatus"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Order event types.
const (
	OrderEventCreated        = "order.created"
	OrderEventStatusChanged  = "order.status_changed"
	OrderEventPaymentChanged = "order.payment_changed"
	OrderEventCancelled      = "order.cancelled"
)

// OrderEventPublisher delivers order events to a message broker.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error)
}

// ServiceListQuery filters the public service listing.
type ServiceListQuery struct {
	Type       string
	IncludeAll bool
	ProviderID string
}

// ProviderListQuery filters the public provider listing.
type ProviderListQuery struct {
	Type       string
	ServiceID  string
	IncludeAll bool
}

// UpsertServiceCommand creates or updates a catalogue service.
type UpsertServiceCommand struct {
	ServiceID   string
	Name        string
	Description string
	Type        string
	BasePrice   string
	Options     []ServiceOption
	Active      *bool
}

// UpsertProviderCommand creates or updates a provider.
type UpsertProviderCommand struct {
	ProviderID     string
	Name           string
	Type           domain.ProviderType
	Description    string
	Rating         float64
	Verified       *bool
	Active         *bool
	PriceOverrides map[string]map[string]string
}

// SetCartServiceCommand selects the cart's service, optionally binding a provider.
type SetCartServiceCommand struct {
	UserID     string
	ServiceID  string
	ProviderID string
}

// UpdateCartOptionCommand sets an option quantity; zero or negative removes it.
type UpdateCartOptionCommand struct {
	UserID   string
	OptionID string
	Quantity int
}

// SetCartAddressCommand stores the service address on the cart.
type SetCartAddressCommand struct {
	UserID  string
	Address Address
}

// SetCartScheduleCommand stores the requested date and time slot.
type SetCartScheduleCommand struct {
	UserID        string
	ScheduledDate string
	TimeSlot      TimeSlot
}

// SetCartPaymentMethodCommand selects card or paypal.
type SetCartPaymentMethodCommand struct {
	UserID string
	Method PaymentMethod
}

// OrderSubmission is the validated, totalled snapshot a checkout creates an order from.
type OrderSubmission struct {
	UserID        string
	ServiceID     string
	ServiceName   string
	ProviderID    string
	Options       []OptionSelection
	TotalAmount   float64
	Tax           float64
	GrandTotal    float64
	Address       Address
	ScheduledDate string
	TimeSlot      TimeSlot
	PaymentMethod PaymentMethod
}

// CreateOrderCommand creates a durable order from a submission.
type CreateOrderCommand struct {
	Submission    OrderSubmission
	PaymentStatus PaymentStatus
}

// GetOrderQuery fetches one order, scoped to the owner unless AllowAnyUser is set.
type GetOrderQuery struct {
	OrderID      string
	UserID       string
	AllowAnyUser bool
}

// OrderListQuery lists orders with optional filters and cursor pagination.
type OrderListQuery struct {
	UserID        string
	AllowAnyUser  bool
	Status        OrderStatus
	PaymentStatus PaymentStatus
	PageSize      int
	Cursor        string
}

// OrderPage is one page of an order listing.
type OrderPage struct {
	Orders     []Order
	NextCursor string
}

// OrderStatusCommand transitions the order status state machine.
type OrderStatusCommand struct {
	OrderID string
	Status  OrderStatus
	ActorID string
}

// CancelOrderCommand cancels an order, recording the reason.
type CancelOrderCommand struct {
	OrderID      string
	UserID       string
	AllowAnyUser bool
	Reason       string
}

// UpdatePaymentCommand applies a payment status change plus capture metadata.
type UpdatePaymentCommand struct {
	OrderID       string
	PaymentStatus PaymentStatus
	TransactionID string
	Provider      string
	Amount        float64
	Currency      string
	Raw           map[string]any
}

// BeginPayPalCommand starts a PayPal checkout attempt for the user's cart.
type BeginPayPalCommand struct {
	UserID string
}

// PayPalCallbackCommand carries a provider callback for an in-flight attempt.
type PayPalCallbackCommand struct {
	UserID          string
	ProviderOrderID string
	Reason          string
}

// CardCheckoutCommand settles the user's cart with a direct card charge.
type CardCheckoutCommand struct {
	UserID string
	Card   payments.CardDetails
}

// CheckoutState tracks a checkout attempt through the reconciliation flow.
type CheckoutState string

// Checkout attempt states.
const (
	CheckoutStateIdle             CheckoutState = "idle"
	CheckoutStateCreating         CheckoutState = "creating"
	CheckoutStateAwaitingApproval CheckoutState = "awaiting_approval"
	CheckoutStateCapturing        CheckoutState = "capturing"
	CheckoutStateCompleted        CheckoutState = "completed"
	CheckoutStateFailed           CheckoutState = "failed"
	CheckoutStateCancelled        CheckoutState = "cancelled"
)

// PayPalCheckout is returned from BeginPayPal for the client approval step.
type PayPalCheckout struct {
	OrderID         string
	ProviderOrderID string
	ApproveURL      string
	State           CheckoutState
}

// CheckoutResult reports the outcome of a checkout callback.
type CheckoutResult struct {
	OrderID       string
	State         CheckoutState
	PaymentStatus PaymentStatus
}

// HoldSlotCommand reserves a provider time slot for an order.
type HoldSlotCommand struct {
	OrderID       string
	ProviderID    string
	ScheduledDate string
	TimeSlot      TimeSlot
	TTL           time.Duration
}

// PaymentReceiptNotification is sent after a successful capture.
type PaymentReceiptNotification struct {
	Email         string
	OrderID       string
	OrderNumber   string
	ServiceName   string
	GrandTotal    float64
	Currency      string
	TransactionID string
}

// OrderStatusNotification is sent when an order's status changes.
type OrderStatusNotification struct {
	Email       string
	OrderID     string
	OrderNumber string
	Status      OrderStatus
}

// EnsureProfileCommand mirrors the authenticated identity into the user store.
type EnsureProfileCommand struct {
	UserID string
	Email  string
	Name   string
	Roles  []string
}

// SetUserActiveCommand toggles an account's active flag.
type SetUserActiveCommand struct {
	UserID string
	Active bool
}

// DashboardStats aggregates order and account analytics for the admin dashboard.
type DashboardStats struct {
	TotalOrders     int
	OrdersByStatus  map[OrderStatus]int
	Revenue         float64
	PendingRevenue  float64
	TotalUsers      int
	ActiveUsers     int
	ActiveProviders int
	GeneratedAt     time.Time
}
