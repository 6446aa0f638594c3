package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/tidynest/api/internal/domain"
)

func fixtureService() domain.Service {
	return domain.Service{
		ID:   "svc_deep",
		Name: "Deep Cleaning",
		Type: "deep",
		Options: []domain.ServiceOption{
			{ID: "1", Name: "Kitchen", Price: "€10"},
			{ID: "2", Name: "Bathroom", Price: "€5"},
		},
		Active: true,
	}
}

func fixtureWindowService() domain.Service {
	return domain.Service{
		ID:   "svc_windows",
		Name: "Window Cleaning",
		Type: "windows",
		Options: []domain.ServiceOption{
			{ID: "10", Name: "Ground floor", Price: "€20"},
		},
		Active: true,
	}
}

func fixtureAddress() domain.Address {
	return domain.Address{Street: "12 Rue Haute", City: "Brussels", ZipCode: "1000", Country: "BE"}
}

func newCartFixture(t *testing.T) (CartService, *stubCartRepo) {
	t.Helper()
	services := newStubServiceRepo(fixtureService(), fixtureWindowService())
	providers := newStubProviderRepo(domain.Provider{
		ID:     "prv_1",
		Name:   "Sparkle Ltd",
		Type:   domain.ProviderTypeCompany,
		Active: true,
		PriceOverrides: map[string]map[string]string{
			"svc_deep": {"1": "€12"},
		},
	})
	catalog, err := NewCatalogService(CatalogServiceDeps{Services: services, Providers: providers})
	if err != nil {
		t.Fatalf("new catalog service: %v", err)
	}
	carts := newStubCartRepo()
	cart, err := NewCartService(CartServiceDeps{Carts: carts, Catalog: catalog})
	if err != nil {
		t.Fatalf("new cart service: %v", err)
	}
	return cart, carts
}

func readyCart(t *testing.T, svc CartService, userID string) {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.SetService(ctx, SetCartServiceCommand{UserID: userID, ServiceID: "svc_deep"}); err != nil {
		t.Fatalf("set service: %v", err)
	}
	if _, err := svc.SetAddress(ctx, SetCartAddressCommand{UserID: userID, Address: fixtureAddress()}); err != nil {
		t.Fatalf("set address: %v", err)
	}
	if _, err := svc.SetSchedule(ctx, SetCartScheduleCommand{
		UserID:        userID,
		ScheduledDate: "2026-04-02",
		TimeSlot:      TimeSlot{Start: "09:00", End: "12:00"},
	}); err != nil {
		t.Fatalf("set schedule: %v", err)
	}
}

func TestCartTotalsEuroPrices(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCartFixture(t)
	readyCart(t, svc, "user_1")

	if _, err := svc.UpdateOption(ctx, UpdateCartOptionCommand{UserID: "user_1", OptionID: "1", Quantity: 2}); err != nil {
		t.Fatalf("add option 1: %v", err)
	}
	if _, err := svc.UpdateOption(ctx, UpdateCartOptionCommand{UserID: "user_1", OptionID: "2", Quantity: 1}); err != nil {
		t.Fatalf("add option 2: %v", err)
	}

	totals, err := svc.Totals(ctx, "user_1")
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.Total != 25 || totals.Tax != 5 || totals.GrandTotal != 30 {
		t.Fatalf("unexpected totals %+v", totals)
	}
}

func TestCartUpdateOptionZeroRemovesEntry(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCartFixture(t)
	readyCart(t, svc, "user_1")

	if _, err := svc.UpdateOption(ctx, UpdateCartOptionCommand{UserID: "user_1", OptionID: "1", Quantity: 2}); err != nil {
		t.Fatalf("add option: %v", err)
	}
	cart, err := svc.UpdateOption(ctx, UpdateCartOptionCommand{UserID: "user_1", OptionID: "1", Quantity: 0})
	if err != nil {
		t.Fatalf("zero option: %v", err)
	}
	if _, exists := cart.SelectedOptions["1"]; exists {
		t.Fatalf("expected option removed, got %v", cart.SelectedOptions)
	}

	totals, err := svc.Totals(ctx, "user_1")
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.GrandTotal != 0 {
		t.Fatalf("expected empty totals, got %+v", totals)
	}
}

func TestCartUpdateOptionNormalisesNumericIDs(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCartFixture(t)
	readyCart(t, svc, "user_1")

	// A numeric id arriving as "1.0" from a JSON payload maps to option "1".
	cart, err := svc.UpdateOption(ctx, UpdateCartOptionCommand{UserID: "user_1", OptionID: "1.0", Quantity: 3})
	if err != nil {
		t.Fatalf("update option: %v", err)
	}
	if cart.SelectedOptions["1"] != 3 {
		t.Fatalf("expected canonical key, got %v", cart.SelectedOptions)
	}
}

func TestCartUpdateOptionRejectsForeignOption(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCartFixture(t)
	readyCart(t, svc, "user_1")

	_, err := svc.UpdateOption(ctx, UpdateCartOptionCommand{UserID: "user_1", OptionID: "10", Quantity: 1})
	if !errors.Is(err, ErrCartUnknownOption) {
		t.Fatalf("expected ErrCartUnknownOption, got %v", err)
	}
}

func TestCartSwitchingServiceClearsSelections(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCartFixture(t)
	readyCart(t, svc, "user_1")

	if _, err := svc.UpdateOption(ctx, UpdateCartOptionCommand{UserID: "user_1", OptionID: "1", Quantity: 2}); err != nil {
		t.Fatalf("add option: %v", err)
	}

	cart, err := svc.SetService(ctx, SetCartServiceCommand{UserID: "user_1", ServiceID: "svc_windows"})
	if err != nil {
		t.Fatalf("switch service: %v", err)
	}
	if len(cart.SelectedOptions) != 0 {
		t.Fatalf("expected selections cleared, got %v", cart.SelectedOptions)
	}

	totals, err := svc.Totals(ctx, "user_1")
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totals.GrandTotal != 0 {
		t.Fatalf("expected zero totals after switch, got %+v", totals)
	}

	// Submission fails until an option of the new service is selected.
	if _, err := svc.BuildSubmission(ctx, "user_1"); !errors.Is(err, ErrCartNoOptions) {
		t.Fatalf("expected ErrCartNoOptions, got %v", err)
	}
}

func TestCartSetServiceResolvesProviderPrices(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCartFixture(t)

	cart, err := svc.SetService(ctx, SetCartServiceCommand{UserID: "user_1", ServiceID: "svc_deep", ProviderID: "prv_1"})
	if err != nil {
		t.Fatalf("set service with provider: %v", err)
	}
	if cart.SelectedService.Options[0].Price != "€12" {
		t.Fatalf("expected override price, got %q", cart.SelectedService.Options[0].Price)
	}
	if cart.SelectedService.Options[1].Price != "€5" {
		t.Fatalf("expected default price for option without override, got %q", cart.SelectedService.Options[1].Price)
	}
}

func TestCartBuildSubmissionDropsStaleOptions(t *testing.T) {
	ctx := context.Background()
	svc, carts := newCartFixture(t)
	readyCart(t, svc, "user_1")

	if _, err := svc.UpdateOption(ctx, UpdateCartOptionCommand{UserID: "user_1", OptionID: "1", Quantity: 1}); err != nil {
		t.Fatalf("add option: %v", err)
	}

	// Simulate a stored cart carrying a selection from a stale catalogue state.
	stored := carts.carts["user_1"]
	stored.SelectedOptions["99"] = 4
	carts.carts["user_1"] = stored

	submission, err := svc.BuildSubmission(ctx, "user_1")
	if err != nil {
		t.Fatalf("build submission: %v", err)
	}
	for _, sel := range submission.Options {
		if sel.OptionID == "99" {
			t.Fatalf("stale option leaked into submission: %+v", submission.Options)
		}
	}
	if len(submission.Options) != 1 || submission.Options[0].OptionID != "1" {
		t.Fatalf("unexpected submission options %+v", submission.Options)
	}
	if submission.TotalAmount != 10 || submission.Tax != 2 || submission.GrandTotal != 12 {
		t.Fatalf("unexpected submission totals %+v", submission)
	}
}

func TestCartBuildSubmissionValidations(t *testing.T) {
	ctx := context.Background()

	t.Run("no service selected", func(t *testing.T) {
		svc, _ := newCartFixture(t)
		if _, err := svc.BuildSubmission(ctx, "user_1"); !errors.Is(err, ErrCartNoService) {
			t.Fatalf("expected ErrCartNoService, got %v", err)
		}
	})

	t.Run("missing address", func(t *testing.T) {
		svc, _ := newCartFixture(t)
		if _, err := svc.SetService(ctx, SetCartServiceCommand{UserID: "user_1", ServiceID: "svc_deep"}); err != nil {
			t.Fatalf("set service: %v", err)
		}
		if _, err := svc.BuildSubmission(ctx, "user_1"); !errors.Is(err, ErrCartIncomplete) {
			t.Fatalf("expected ErrCartIncomplete, got %v", err)
		}
	})

	t.Run("no options selected", func(t *testing.T) {
		svc, _ := newCartFixture(t)
		readyCart(t, svc, "user_1")
		if _, err := svc.BuildSubmission(ctx, "user_1"); !errors.Is(err, ErrCartNoOptions) {
			t.Fatalf("expected ErrCartNoOptions, got %v", err)
		}
	})
}

func TestCartSetPaymentMethodValidates(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCartFixture(t)

	if _, err := svc.SetPaymentMethod(ctx, SetCartPaymentMethodCommand{UserID: "user_1", Method: "bitcoin"}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput, got %v", err)
	}
	cart, err := svc.SetPaymentMethod(ctx, SetCartPaymentMethodCommand{UserID: "user_1", Method: domain.PaymentMethodPayPal})
	if err != nil {
		t.Fatalf("set payment method: %v", err)
	}
	if cart.PaymentMethod != domain.PaymentMethodPayPal {
		t.Fatalf("unexpected payment method %q", cart.PaymentMethod)
	}
}

func TestCartSetScheduleValidatesDate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newCartFixture(t)

	_, err := svc.SetSchedule(ctx, SetCartScheduleCommand{
		UserID:        "user_1",
		ScheduledDate: "02/04/2026",
		TimeSlot:      TimeSlot{Start: "09:00", End: "12:00"},
	})
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput for bad date, got %v", err)
	}
}
