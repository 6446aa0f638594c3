package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	domain "github.com/tidynest/api/internal/domain"
	"github.com/tidynest/api/internal/repositories"
)

var (
	// ErrCartInvalidInput indicates the caller supplied invalid input parameters.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartConflict indicates a concurrent cart modification was detected.
	ErrCartConflict = errors.New("cart: conflict")
	// ErrCartUnavailable indicates the persistence layer is unavailable.
	ErrCartUnavailable = errors.New("cart: unavailable")
	// ErrCartNoService indicates no service has been selected yet.
	ErrCartNoService = errors.New("cart: no service selected")
	// ErrCartNoOptions indicates the cart holds no selectable options; the
	// customer must select at least one option.
	ErrCartNoOptions = errors.New("cart: select at least one option")
	// ErrCartIncomplete indicates address or schedule data is missing for submission.
	ErrCartIncomplete = errors.New("cart: address and schedule are required")
	// ErrCartUnknownOption indicates the option does not belong to the selected service.
	ErrCartUnknownOption = errors.New("cart: unknown option for selected service")
)

// CartServiceDeps wires the dependencies required by the cart service.
type CartServiceDeps struct {
	Carts   repositories.CartRepository
	Catalog CatalogService
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts   repositories.CartRepository
	catalog CatalogService
	now     func() time.Time
	logger  func(ctx context.Context, event string, fields map[string]any)
}

// NewCartService constructs a CartService validating required dependencies.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("cart service: catalog service is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		carts:   deps.Carts,
		catalog: deps.Catalog,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// GetCart loads the user's cart, returning an empty cart when none exists yet.
func (s *cartService) GetCart(ctx context.Context, userID string) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, ErrCartInvalidInput
	}
	cart, err := s.carts.Get(ctx, uid)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return emptyCart(uid), nil
		}
		return Cart{}, translateCartError(err)
	}
	return normaliseCart(cart, uid), nil
}

// SetService snapshots the selected service onto the cart and unconditionally
// clears the option selections; selections from a previous service never leak
// into the new one. When a provider is bound its price overrides are resolved
// into the snapshot.
func (s *cartService) SetService(ctx context.Context, cmd SetCartServiceCommand) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	serviceID := strings.TrimSpace(cmd.ServiceID)
	if uid == "" || serviceID == "" {
		return Cart{}, ErrCartInvalidInput
	}

	service, err := s.catalog.GetService(ctx, serviceID)
	if err != nil {
		return Cart{}, err
	}

	providerID := strings.TrimSpace(cmd.ProviderID)
	if providerID != "" {
		provider, err := s.catalog.GetProvider(ctx, providerID)
		if err != nil {
			return Cart{}, err
		}
		service = resolveServicePrices(service, provider)
	}

	return s.mutate(ctx, uid, func(cart *Cart) error {
		cart.SelectedService = &service
		cart.SelectedOptions = map[string]int{}
		cart.ProviderID = providerID
		return nil
	})
}

// UpdateOption sets the quantity for one option of the selected service.
// A zero or negative quantity removes the entry entirely.
func (s *cartService) UpdateOption(ctx context.Context, cmd UpdateCartOptionCommand) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	optionID := normaliseOptionID(cmd.OptionID)
	if uid == "" || optionID == "" {
		return Cart{}, ErrCartInvalidInput
	}

	return s.mutate(ctx, uid, func(cart *Cart) error {
		if cart.SelectedService == nil {
			return ErrCartNoService
		}
		if _, ok := cart.SelectedService.Option(optionID); !ok {
			return fmt.Errorf("%w: %s", ErrCartUnknownOption, optionID)
		}
		if cart.SelectedOptions == nil {
			cart.SelectedOptions = map[string]int{}
		}
		if cmd.Quantity <= 0 {
			delete(cart.SelectedOptions, optionID)
			return nil
		}
		cart.SelectedOptions[optionID] = cmd.Quantity
		return nil
	})
}

// SetAddress stores the service address on the cart.
func (s *cartService) SetAddress(ctx context.Context, cmd SetCartAddressCommand) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Cart{}, ErrCartInvalidInput
	}
	address := trimAddress(cmd.Address)
	if !address.Complete() {
		return Cart{}, fmt.Errorf("%w: street, city, zip code and country are required", ErrCartInvalidInput)
	}
	return s.mutate(ctx, uid, func(cart *Cart) error {
		cart.Address = &address
		return nil
	})
}

// SetSchedule stores the requested date and time slot.
func (s *cartService) SetSchedule(ctx context.Context, cmd SetCartScheduleCommand) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	date := strings.TrimSpace(cmd.ScheduledDate)
	slot := TimeSlot{Start: strings.TrimSpace(cmd.TimeSlot.Start), End: strings.TrimSpace(cmd.TimeSlot.End)}
	if uid == "" {
		return Cart{}, ErrCartInvalidInput
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return Cart{}, fmt.Errorf("%w: scheduled date must use YYYY-MM-DD", ErrCartInvalidInput)
	}
	if !slot.Complete() {
		return Cart{}, fmt.Errorf("%w: time slot start and end are required", ErrCartInvalidInput)
	}
	return s.mutate(ctx, uid, func(cart *Cart) error {
		cart.ScheduledDate = date
		cart.TimeSlot = &slot
		return nil
	})
}

// SetPaymentMethod selects card or paypal for the cart.
func (s *cartService) SetPaymentMethod(ctx context.Context, cmd SetCartPaymentMethodCommand) (Cart, error) {
	if s == nil || s.carts == nil {
		return Cart{}, ErrCartUnavailable
	}
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Cart{}, ErrCartInvalidInput
	}
	switch cmd.Method {
	case domain.PaymentMethodCard, domain.PaymentMethodPayPal:
	default:
		return Cart{}, fmt.Errorf("%w: payment method must be card or paypal", ErrCartInvalidInput)
	}
	return s.mutate(ctx, uid, func(cart *Cart) error {
		cart.PaymentMethod = cmd.Method
		return nil
	})
}

// Totals derives the cart totals from the selected service's options only.
func (s *cartService) Totals(ctx context.Context, userID string) (Totals, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return Totals{}, err
	}
	selections := selectionsFor(cart)
	return domain.ComputeTotals(domain.SelectionTotal(selections)), nil
}

// BuildSubmission validates the cart and derives the order submission from it.
// Selections are filtered to the selected service's option ids; stale entries
// are dropped and logged, never submitted.
func (s *cartService) BuildSubmission(ctx context.Context, userID string) (OrderSubmission, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return OrderSubmission{}, err
	}
	if cart.SelectedService == nil {
		return OrderSubmission{}, ErrCartNoService
	}
	if cart.Address == nil || !cart.Address.Complete() {
		return OrderSubmission{}, ErrCartIncomplete
	}
	if strings.TrimSpace(cart.ScheduledDate) == "" || cart.TimeSlot == nil || !cart.TimeSlot.Complete() {
		return OrderSubmission{}, ErrCartIncomplete
	}

	service := *cart.SelectedService
	valid := service.OptionIDs()
	for optionID := range cart.SelectedOptions {
		if _, ok := valid[optionID]; !ok {
			s.logger(ctx, "cart.stale_option_dropped", map[string]any{
				"userId":    cart.UserID,
				"serviceId": service.ID,
				"optionId":  optionID,
			})
		}
	}

	selections := selectionsFor(cart)
	if len(selections) == 0 {
		return OrderSubmission{}, ErrCartNoOptions
	}

	totals := domain.ComputeTotals(domain.SelectionTotal(selections))
	return OrderSubmission{
		UserID:        cart.UserID,
		ServiceID:     service.ID,
		ServiceName:   service.Name,
		ProviderID:    cart.ProviderID,
		Options:       selections,
		TotalAmount:   totals.Total,
		Tax:           totals.Tax,
		GrandTotal:    totals.GrandTotal,
		Address:       *cart.Address,
		ScheduledDate: cart.ScheduledDate,
		TimeSlot:      *cart.TimeSlot,
		PaymentMethod: cart.PaymentMethod,
	}, nil
}

// ClearCart discards the user's cart.
func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	if s == nil || s.carts == nil {
		return ErrCartUnavailable
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return ErrCartInvalidInput
	}
	if err := s.carts.Delete(ctx, uid); err != nil {
		return translateCartError(err)
	}
	return nil
}

// mutate loads the cart, applies fn and persists the result, guarding updates
// of an existing document with its last-seen update timestamp.
func (s *cartService) mutate(ctx context.Context, userID string, fn func(*Cart) error) (Cart, error) {
	var expectedUpdate *time.Time
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
			return Cart{}, translateCartError(err)
		}
		cart = emptyCart(userID)
	} else {
		cart = normaliseCart(cart, userID)
		if !cart.UpdatedAt.IsZero() {
			seen := cart.UpdatedAt
			expectedUpdate = &seen
		}
	}

	if err := fn(&cart); err != nil {
		return Cart{}, err
	}
	cart.UpdatedAt = s.now()

	saved, err := s.carts.Save(ctx, cart, expectedUpdate)
	if err != nil {
		return Cart{}, translateCartError(err)
	}
	return saved, nil
}

// selectionsFor snapshots the valid option selections in the service's
// canonical option order.
func selectionsFor(cart Cart) []OptionSelection {
	if cart.SelectedService == nil || len(cart.SelectedOptions) == 0 {
		return nil
	}
	selections := make([]OptionSelection, 0, len(cart.SelectedOptions))
	for _, opt := range cart.SelectedService.Options {
		qty, ok := cart.SelectedOptions[opt.ID]
		if !ok || qty <= 0 {
			continue
		}
		selections = append(selections, OptionSelection{
			OptionID: opt.ID,
			Name:     opt.Name,
			Price:    opt.Price,
			Quantity: qty,
		})
	}
	return selections
}

// normaliseOptionID canonicalises option ids so numeric ids from JSON payloads
// match string keys in the selection map.
func normaliseOptionID(optionID string) string {
	id := strings.TrimSpace(optionID)
	if id == "" {
		return ""
	}
	if f, err := strconv.ParseFloat(id, 64); err == nil && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return id
}

func emptyCart(userID string) Cart {
	return Cart{
		UserID:          userID,
		SelectedOptions: map[string]int{},
	}
}

func normaliseCart(cart Cart, userID string) Cart {
	cart.UserID = strings.TrimSpace(firstNonEmpty(cart.UserID, userID))
	if cart.SelectedOptions == nil {
		cart.SelectedOptions = map[string]int{}
	}
	return cart
}

func trimAddress(address Address) Address {
	return Address{
		Street:       strings.TrimSpace(address.Street),
		City:         strings.TrimSpace(address.City),
		ZipCode:      strings.TrimSpace(address.ZipCode),
		Country:      strings.TrimSpace(address.Country),
		Instructions: strings.TrimSpace(address.Instructions),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func translateCartError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsConflict():
			return ErrCartConflict
		case repoErr.IsNotFound():
			return ErrCartInvalidInput
		default:
			return ErrCartUnavailable
		}
	}
	return ErrCartUnavailable
}
