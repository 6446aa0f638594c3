package repositories

import (
	"context"
	"time"

	"github.com/tidynest/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ServiceListFilter narrows catalog service listings.
type ServiceListFilter struct {
	Type       string
	ActiveOnly bool
}

// ServiceRepository persists the cleaning service catalog.
type ServiceRepository interface {
	Insert(ctx context.Context, service domain.Service) error
	Update(ctx context.Context, service domain.Service) error
	Delete(ctx context.Context, serviceID string) error
	FindByID(ctx context.Context, serviceID string) (domain.Service, error)
	List(ctx context.Context, filter ServiceListFilter) ([]domain.Service, error)
}

// ProviderListFilter narrows provider listings.
type ProviderListFilter struct {
	Type       domain.ProviderType
	ActiveOnly bool
}

// ProviderRepository persists cleaner and company profiles.
type ProviderRepository interface {
	Insert(ctx context.Context, provider domain.Provider) error
	Update(ctx context.Context, provider domain.Provider) error
	Delete(ctx context.Context, providerID string) error
	FindByID(ctx context.Context, providerID string) (domain.Provider, error)
	List(ctx context.Context, filter ProviderListFilter) ([]domain.Provider, error)
}

// CartRepository owns the per-user cart document. The document id is the user id.
type CartRepository interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error)
	Delete(ctx context.Context, userID string) error
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	UserID        string
	Status        domain.OrderStatus
	PaymentStatus domain.PaymentStatus
	PageSize      int
	StartAfter    string
}

// OrderPage is one page of orders plus the cursor for the next page.
type OrderPage struct {
	Orders     []domain.Order
	NextCursor string
}

// OrderRepository persists durable order records and their payment history.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order, expectedUpdate *time.Time) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (OrderPage, error)
}

// CounterRepository provides atomic sequence values for order numbering.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// ReservationRepository manages schedule slot holds with transactional guarantees.
type ReservationRepository interface {
	Reserve(ctx context.Context, reservation domain.Reservation) (domain.Reservation, error)
	Commit(ctx context.Context, reservationID string) error
	Release(ctx context.Context, reservationID string) error
	FindByOrder(ctx context.Context, orderID string) (domain.Reservation, error)
}

// UserRepository mirrors account state used by the admin dashboard.
type UserRepository interface {
	Upsert(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, userID string) (domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	SetActive(ctx context.Context, userID string, active bool) error
}
