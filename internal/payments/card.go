package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/oklog/ulid/v2"
)

// CardValidationError reports the card fields that failed validation.
type CardValidationError struct {
	Fields map[string]string
}

func (e *CardValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "payments: invalid card"
	}
	names := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		names = append(names, field)
	}
	return fmt.Sprintf("payments: invalid card fields: %s", strings.Join(names, ", "))
}

// ValidateCard checks the raw card fields before any charge attempt.
// Expiry is validated as MM/YY and must not be in the past relative to now.
func ValidateCard(card CardDetails, now time.Time) error {
	fields := make(map[string]string)

	if strings.TrimSpace(card.HolderName) == "" {
		fields["holderName"] = "cardholder name is required"
	}

	digits := digitsOnly(card.Number)
	if len(digits) != 16 {
		fields["number"] = "card number must have 16 digits"
	}

	if month, year, err := parseExpiry(card.Expiry); err != nil {
		fields["expiry"] = err.Error()
	} else {
		endOfMonth := time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC)
		if !now.UTC().Before(endOfMonth) {
			fields["expiry"] = "card has expired"
		}
	}

	cvv := strings.TrimSpace(card.CVV)
	if len(cvv) < 3 || len(cvv) > 4 || digitsOnly(cvv) != cvv {
		fields["cvv"] = "cvv must have 3 or 4 digits"
	}

	if len(fields) > 0 {
		return &CardValidationError{Fields: fields}
	}
	return nil
}

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func parseExpiry(expiry string) (month, year int, err error) {
	parts := strings.Split(strings.TrimSpace(expiry), "/")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, 0, errors.New("expiry must use MM/YY format")
	}
	if _, scanErr := fmt.Sscanf(parts[0]+" "+parts[1], "%02d %02d", &month, &year); scanErr != nil {
		return 0, 0, errors.New("expiry must use MM/YY format")
	}
	if month < 1 || month > 12 {
		return 0, 0, errors.New("expiry month must be between 01 and 12")
	}
	return month, year + 2000, nil
}

// SimulatedCardProviderConfig configures the SimulatedCardProvider.
type SimulatedCardProviderConfig struct {
	Clock func() time.Time
}

// SimulatedCardProvider charges cards synchronously without an external PSP.
// Validation happens server side; any structurally valid card succeeds. It
// stands in for a real acquirer until one is wired behind the same interface.
type SimulatedCardProvider struct {
	clock func() time.Time
}

var _ Provider = (*SimulatedCardProvider)(nil)

// NewSimulatedCardProvider constructs the simulated card Provider.
func NewSimulatedCardProvider(cfg SimulatedCardProviderConfig) *SimulatedCardProvider {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SimulatedCardProvider{clock: clock}
}

// CreateOrder is not supported; card payments settle in one Charge call.
func (p *SimulatedCardProvider) CreateOrder(ctx context.Context, req CreateOrderRequest) (ProviderOrder, error) {
	return ProviderOrder{}, fmt.Errorf("%w: card payments do not use provider orders", ErrUnsupportedOperation)
}

// Capture is not supported; card payments settle in one Charge call.
func (p *SimulatedCardProvider) Capture(ctx context.Context, req CaptureRequest) (PaymentDetails, error) {
	return PaymentDetails{}, fmt.Errorf("%w: card payments do not use provider orders", ErrUnsupportedOperation)
}

// Charge validates the card and settles the payment immediately.
func (p *SimulatedCardProvider) Charge(ctx context.Context, req ChargeRequest) (PaymentDetails, error) {
	if req.Amount <= 0 {
		return PaymentDetails{}, errors.New("payments: amount must be positive")
	}
	now := p.clock().UTC()
	if err := ValidateCard(req.Card, now); err != nil {
		return PaymentDetails{}, err
	}

	capturedAt := now
	return PaymentDetails{
		Provider:      "card",
		TransactionID: "card_" + ulid.Make().String(),
		ReferenceID:   strings.TrimSpace(req.ReferenceID),
		Status:        StatusCompleted,
		Amount:        req.Amount,
		Currency:      strings.ToUpper(strings.TrimSpace(req.Currency)),
		CapturedAt:    &capturedAt,
		Raw:           map[string]any{"last4": lastFour(req.Card.Number)},
	}, nil
}

// Lookup is not supported; the order record is the source of truth for card charges.
func (p *SimulatedCardProvider) Lookup(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	return PaymentDetails{}, fmt.Errorf("%w: simulated card charges cannot be looked up", ErrUnsupportedOperation)
}

func lastFour(number string) string {
	digits := digitsOnly(number)
	if len(digits) < 4 {
		return digits
	}
	return digits[len(digits)-4:]
}
