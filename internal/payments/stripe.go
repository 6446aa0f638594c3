package payments

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripePaymentMethodAPI interface {
	New(params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error)
}

type stripeClients struct {
	intents        stripePaymentIntentAPI
	paymentMethods stripePaymentMethodAPI
}

// StripeCardProviderConfig configures the StripeCardProvider.
type StripeCardProviderConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   StripeLogger
	Clock    func() time.Time
	Clients  *stripeClients
}

// StripeCardProvider charges cards through Stripe PaymentIntents. It is
// selected over the simulated card provider when an API key is configured.
type StripeCardProvider struct {
	api    stripeClients
	clock  func() time.Time
	logger StripeLogger
}

var _ Provider = (*StripeCardProvider)(nil)

// NewStripeCardProvider constructs a Stripe-backed card Provider.
func NewStripeCardProvider(cfg StripeCardProviderConfig) (*StripeCardProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			intents:        sc.PaymentIntents,
			paymentMethods: sc.PaymentMethods,
		}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeCardProvider{api: clients, clock: clock, logger: logger}, nil
}

// CreateOrder is not supported; Stripe card payments settle in one Charge call.
func (p *StripeCardProvider) CreateOrder(ctx context.Context, req CreateOrderRequest) (ProviderOrder, error) {
	return ProviderOrder{}, fmt.Errorf("%w: stripe card payments do not use provider orders", ErrUnsupportedOperation)
}

// Capture is not supported; charges are confirmed immediately.
func (p *StripeCardProvider) Capture(ctx context.Context, req CaptureRequest) (PaymentDetails, error) {
	return PaymentDetails{}, fmt.Errorf("%w: stripe card payments do not use provider orders", ErrUnsupportedOperation)
}

// Charge validates the card, builds a payment method from it and confirms a
// PaymentIntent in a single call.
func (p *StripeCardProvider) Charge(ctx context.Context, req ChargeRequest) (PaymentDetails, error) {
	if req.Amount <= 0 {
		return PaymentDetails{}, errors.New("stripe: amount must be positive")
	}
	now := p.clock().UTC()
	if err := ValidateCard(req.Card, now); err != nil {
		return PaymentDetails{}, err
	}

	month, year, err := parseExpiry(req.Card.Expiry)
	if err != nil {
		return PaymentDetails{}, &CardValidationError{Fields: map[string]string{"expiry": err.Error()}}
	}

	method, err := p.api.paymentMethods.New(&stripe.PaymentMethodParams{
		Type: stripe.String(string(stripe.PaymentMethodTypeCard)),
		Card: &stripe.PaymentMethodCardParams{
			Number:   stripe.String(digitsOnly(req.Card.Number)),
			ExpMonth: stripe.Int64(int64(month)),
			ExpYear:  stripe.Int64(int64(year)),
			CVC:      stripe.String(strings.TrimSpace(req.Card.CVV)),
		},
		BillingDetails: &stripe.PaymentMethodBillingDetailsParams{
			Name: stripe.String(strings.TrimSpace(req.Card.HolderName)),
		},
	})
	if err != nil {
		return PaymentDetails{}, mapStripeError(err)
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "eur"
	}

	intent, err := p.api.intents.New(&stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amountToMinorUnits(req.Amount)),
		Currency:      stripe.String(currency),
		PaymentMethod: stripe.String(method.ID),
		Confirm:       stripe.Bool(true),
		Params: stripe.Params{
			Metadata: map[string]string{"reference_id": strings.TrimSpace(req.ReferenceID)},
		},
	})
	if err != nil {
		return PaymentDetails{}, mapStripeError(err)
	}

	details := detailsFromIntent(intent, req.ReferenceID)
	p.logger(ctx, "stripe.charge", map[string]any{
		"intent_id":    intent.ID,
		"reference_id": req.ReferenceID,
		"status":       string(intent.Status),
	})
	if details.Status != StatusCompleted {
		return details, fmt.Errorf("%w: intent status %s", ErrDeclined, intent.Status)
	}
	capturedAt := now
	details.CapturedAt = &capturedAt
	return details, nil
}

// Lookup fetches the PaymentIntent state for reconciliation.
func (p *StripeCardProvider) Lookup(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	id := strings.TrimSpace(req.ProviderOrderID)
	if id == "" {
		return PaymentDetails{}, errors.New("stripe: payment intent id is required")
	}
	intent, err := p.api.intents.Get(id, nil)
	if err != nil {
		return PaymentDetails{}, mapStripeError(err)
	}
	return detailsFromIntent(intent, intent.Metadata["reference_id"]), nil
}

func detailsFromIntent(intent *stripe.PaymentIntent, referenceID string) PaymentDetails {
	return PaymentDetails{
		Provider:      "stripe",
		TransactionID: intent.ID,
		ReferenceID:   strings.TrimSpace(referenceID),
		Status:        mapStripeStatus(intent.Status),
		Amount:        minorUnitsToAmount(intent.Amount),
		Currency:      strings.ToUpper(string(intent.Currency)),
		Raw:           map[string]any{"status": string(intent.Status)},
	}
}

func mapStripeStatus(status stripe.PaymentIntentStatus) Status {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusCompleted
	case stripe.PaymentIntentStatusProcessing:
		return StatusApproved
	case stripe.PaymentIntentStatusRequiresPaymentMethod, stripe.PaymentIntentStatusCanceled:
		return StatusDeclined
	default:
		return StatusCreated
	}
}

func mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
		return fmt.Errorf("%w: %s", ErrDeclined, stripeErr.Msg)
	}
	return fmt.Errorf("stripe: %w", err)
}

func amountToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func minorUnitsToAmount(minor int64) float64 {
	return float64(minor) / 100
}
