package domain

import (
	"strings"
	"time"
)

// ProviderType distinguishes individual cleaners from registered companies.
type ProviderType string

const (
	ProviderTypePerson  ProviderType = "person"
	ProviderTypeCompany ProviderType = "company"
)

// PaymentMethod enumerates the checkout payment paths offered to customers.
type PaymentMethod string

const (
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodPayPal PaymentMethod = "paypal"
)

// OrderStatus tracks the fulfilment lifecycle of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusInProgress OrderStatus = "in-progress"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// PaymentStatus tracks the payment lifecycle independently from fulfilment.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
)

// ServiceOption is a configurable add-on belonging to a cleaning service.
// Price keeps the display string entered by catalog admins ("€10").
type ServiceOption struct {
	ID          string
	Name        string
	Icon        string
	Price       string
	Description string
}

// Service describes a bookable cleaning service and its ordered options.
type Service struct {
	ID          string
	Name        string
	Description string
	Type        string
	BasePrice   string
	Options     []ServiceOption
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// OptionIDs returns the set of option identifiers belonging to the service.
func (s Service) OptionIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(s.Options))
	for _, opt := range s.Options {
		ids[strings.TrimSpace(opt.ID)] = struct{}{}
	}
	return ids
}

// Option looks up an option by identifier.
func (s Service) Option(id string) (ServiceOption, bool) {
	id = strings.TrimSpace(id)
	for _, opt := range s.Options {
		if strings.TrimSpace(opt.ID) == id {
			return opt, true
		}
	}
	return ServiceOption{}, false
}

// Provider is a cleaner or company offering services, optionally overriding
// per-option prices for services they fulfil.
type Provider struct {
	ID             string
	Name           string
	Type           ProviderType
	Description    string
	Rating         float64
	Verified       bool
	Active         bool
	PriceOverrides map[string]map[string]string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EffectivePrice resolves the price for an option, preferring the provider's
// override when present.
func (p Provider) EffectivePrice(serviceID string, opt ServiceOption) string {
	if overrides, ok := p.PriceOverrides[strings.TrimSpace(serviceID)]; ok {
		if price, ok := overrides[strings.TrimSpace(opt.ID)]; ok && strings.TrimSpace(price) != "" {
			return price
		}
	}
	return opt.Price
}

// Address captures the customer's cleaning location.
type Address struct {
	Street       string
	City         string
	ZipCode      string
	Country      string
	Instructions string
}

// Complete reports whether the required address fields are populated.
func (a Address) Complete() bool {
	return strings.TrimSpace(a.Street) != "" &&
		strings.TrimSpace(a.City) != "" &&
		strings.TrimSpace(a.ZipCode) != "" &&
		strings.TrimSpace(a.Country) != ""
}

// TimeSlot is a bookable window within a day.
type TimeSlot struct {
	Start string
	End   string
}

// Complete reports whether both boundaries of the slot are set.
func (t TimeSlot) Complete() bool {
	return strings.TrimSpace(t.Start) != "" && strings.TrimSpace(t.End) != ""
}

// Cart is the per-user working state assembled before checkout. The selected
// service is snapshotted so option lookups stay stable while the user edits.
type Cart struct {
	UserID          string
	SelectedService *Service
	SelectedOptions map[string]int
	ProviderID      string
	Address         *Address
	ScheduledDate   string
	TimeSlot        *TimeSlot
	PaymentMethod   PaymentMethod
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OptionSelection is an immutable snapshot of a chosen option at order time.
type OptionSelection struct {
	OptionID string
	Name     string
	Price    string
	Quantity int
}

// PaymentRecord is one entry in an order's payment history.
type PaymentRecord struct {
	TransactionID string
	Provider      string
	Status        PaymentStatus
	Amount        float64
	Currency      string
	Raw           map[string]any
	RecordedAt    time.Time
}

// Order is the durable record produced by checkout.
type Order struct {
	ID            string
	Number        string
	UserID        string
	ServiceID     string
	ServiceName   string
	ProviderID    string
	Options       []OptionSelection
	TotalAmount   float64
	Tax           float64
	GrandTotal    float64
	Currency      string
	Address       Address
	ScheduledDate string
	TimeSlot      TimeSlot
	Status        OrderStatus
	PaymentStatus PaymentStatus
	PaymentMethod PaymentMethod
	Payments      []PaymentRecord
	CancelReason  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// User mirrors the directory entry kept alongside Firebase accounts for
// admin listing and deactivation.
type User struct {
	ID        string
	Email     string
	Name      string
	Roles     []string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReservationStatus tracks the lifecycle of a schedule slot hold.
type ReservationStatus string

const (
	ReservationStatusHeld      ReservationStatus = "held"
	ReservationStatusCommitted ReservationStatus = "committed"
	ReservationStatusReleased  ReservationStatus = "released"
)

// Reservation holds a provider's time slot while a checkout is in flight.
type Reservation struct {
	ID            string
	OrderID       string
	ProviderID    string
	ScheduledDate string
	TimeSlot      TimeSlot
	Status        ReservationStatus
	ExpiresAt     time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
