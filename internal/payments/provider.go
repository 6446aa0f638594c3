package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusCreated indicates the provider order exists but has not been approved yet.
	StatusCreated Status = "created"
	// StatusApproved indicates the customer approved the payment and it awaits capture.
	StatusApproved Status = "approved"
	// StatusCompleted indicates the provider reports the funds as captured.
	StatusCompleted Status = "completed"
	// StatusDeclined indicates the provider rejected the payment.
	StatusDeclined Status = "declined"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// ErrUnsupportedOperation is returned when a provider does not implement an operation.
var ErrUnsupportedOperation = errors.New("payments: unsupported operation")

// ErrDeclined is returned when the provider refuses the charge.
var ErrDeclined = errors.New("payments: payment declined")

// CreateOrderRequest captures the payload required to open a provider-side order.
// ReferenceID carries the local order id so captures can be correlated back.
type CreateOrderRequest struct {
	ReferenceID string
	Amount      float64
	Currency    string
	Description string
}

// ProviderOrder represents the provider-side order returned to the client.
type ProviderOrder struct {
	ID         string
	Provider   string
	Status     Status
	ApproveURL string
	Raw        map[string]any
}

// CaptureRequest identifies an approved provider order to capture.
type CaptureRequest struct {
	ProviderOrderID string
}

// CardDetails carries the raw card fields supplied at checkout.
type CardDetails struct {
	HolderName string
	Number     string
	Expiry     string
	CVV        string
}

// ChargeRequest defines a synchronous card charge.
type ChargeRequest struct {
	ReferenceID string
	Amount      float64
	Currency    string
	Card        CardDetails
}

// LookupRequest fetches provider-side payment state for reconciliation.
type LookupRequest struct {
	ProviderOrderID string
}

// PaymentDetails normalises provider specific fields for storage.
type PaymentDetails struct {
	Provider      string
	TransactionID string
	ReferenceID   string
	Status        Status
	Amount        float64
	Currency      string
	CapturedAt    *time.Time
	Raw           map[string]any
}

// Provider defines the contract for payment adapters to implement. Adapters
// that do not support an operation return ErrUnsupportedOperation.
type Provider interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (ProviderOrder, error)
	Capture(ctx context.Context, req CaptureRequest) (PaymentDetails, error)
	Charge(ctx context.Context, req ChargeRequest) (PaymentDetails, error)
	Lookup(ctx context.Context, req LookupRequest) (PaymentDetails, error)
}

// Manager coordinates provider selection and exposes the aggregated interface.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	methodRoutes    map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider for methods without explicit routing.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// WithMethodRoutes configures static payment-method to provider mappings.
func WithMethodRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.methodRoutes == nil {
			m.methodRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.methodRoutes[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{
		providers: copyMap,
	}
	if _, ok := copyMap["paypal"]; ok {
		m.defaultProvider = "paypal"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// PaymentContext defines the hints available when selecting a provider.
type PaymentContext struct {
	PreferredProvider string
	Method            string
	Metadata          map[string]string
}

func (m *Manager) resolveProvider(ctx PaymentContext) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if provider := strings.TrimSpace(strings.ToLower(ctx.PreferredProvider)); provider != "" {
		if p, ok := m.providers[provider]; ok {
			return provider, p, nil
		}
	}
	method := strings.ToLower(strings.TrimSpace(ctx.Method))
	if method != "" && m.methodRoutes != nil {
		if providerKey, ok := m.methodRoutes[method]; ok {
			provider := strings.TrimSpace(strings.ToLower(providerKey))
			if p, ok := m.providers[provider]; ok {
				return provider, p, nil
			}
		}
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultProvider)); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateOrder delegates to the resolved provider.
func (m *Manager) CreateOrder(ctx context.Context, paymentCtx PaymentContext, req CreateOrderRequest) (ProviderOrder, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return ProviderOrder{}, err
	}
	order, err := provider.CreateOrder(ctx, req)
	if err != nil {
		return ProviderOrder{}, err
	}
	order.Provider = key
	return order, nil
}

// Capture delegates to the resolved provider.
func (m *Manager) Capture(ctx context.Context, paymentCtx PaymentContext, req CaptureRequest) (PaymentDetails, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return PaymentDetails{}, err
	}
	details, err := provider.Capture(ctx, req)
	if err != nil {
		return PaymentDetails{}, err
	}
	if details.Provider == "" {
		details.Provider = key
	}
	return details, nil
}

// Charge delegates to the resolved provider.
func (m *Manager) Charge(ctx context.Context, paymentCtx PaymentContext, req ChargeRequest) (PaymentDetails, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return PaymentDetails{}, err
	}
	details, err := provider.Charge(ctx, req)
	if err != nil {
		return PaymentDetails{}, err
	}
	if details.Provider == "" {
		details.Provider = key
	}
	return details, nil
}

// Lookup delegates to the resolved provider.
func (m *Manager) Lookup(ctx context.Context, paymentCtx PaymentContext, req LookupRequest) (PaymentDetails, error) {
	_, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return PaymentDetails{}, err
	}
	return provider.Lookup(ctx, req)
}
