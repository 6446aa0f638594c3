package payments

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	lastOp  string
	order   ProviderOrder
	payment PaymentDetails
	err     error
}

func (f *fakeProvider) CreateOrder(ctx context.Context, req CreateOrderRequest) (ProviderOrder, error) {
	f.lastOp = "create"
	return f.order, f.err
}

func (f *fakeProvider) Capture(ctx context.Context, req CaptureRequest) (PaymentDetails, error) {
	f.lastOp = "capture"
	return f.payment, f.err
}

func (f *fakeProvider) Charge(ctx context.Context, req ChargeRequest) (PaymentDetails, error) {
	f.lastOp = "charge"
	return f.payment, f.err
}

func (f *fakeProvider) Lookup(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	f.lastOp = "lookup"
	return f.payment, f.err
}

func TestManagerCreateOrderUsesPreferredProvider(t *testing.T) {
	ctx := context.Background()
	paypal := &fakeProvider{order: ProviderOrder{ID: "pp_order"}}
	card := &fakeProvider{order: ProviderOrder{ID: "card_order"}}

	mgr, err := NewManager(map[string]Provider{
		"paypal": paypal,
		"card":   card,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	order, err := mgr.CreateOrder(ctx, PaymentContext{PreferredProvider: "paypal"}, CreateOrderRequest{ReferenceID: "ord_1", Amount: 30})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if order.Provider != "paypal" {
		t.Fatalf("expected provider 'paypal', got %q", order.Provider)
	}
	if paypal.lastOp != "create" {
		t.Fatalf("expected paypal provider to handle call")
	}
	if card.lastOp != "" {
		t.Fatalf("expected card provider to remain unused")
	}
}

func TestManagerRoutesByMethod(t *testing.T) {
	ctx := context.Background()
	paypal := &fakeProvider{payment: PaymentDetails{Provider: "paypal"}}
	card := &fakeProvider{payment: PaymentDetails{Provider: "card"}}

	mgr, err := NewManager(
		map[string]Provider{
			"paypal": paypal,
			"card":   card,
		},
		WithMethodRoutes(map[string]string{"card": "card"}),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	details, err := mgr.Charge(ctx, PaymentContext{Method: "card"}, ChargeRequest{ReferenceID: "ord_1", Amount: 30})
	if err != nil {
		t.Fatalf("charge: %v", err)
	}
	if details.Provider != "card" {
		t.Fatalf("expected provider 'card', got %q", details.Provider)
	}
	if card.lastOp != "charge" {
		t.Fatalf("expected card provider to handle call")
	}
	if paypal.lastOp != "" {
		t.Fatalf("expected paypal provider to remain unused")
	}
}

func TestManagerFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	paypal := &fakeProvider{payment: PaymentDetails{Provider: "paypal"}}

	mgr, err := NewManager(map[string]Provider{"paypal": paypal})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	details, err := mgr.Capture(ctx, PaymentContext{}, CaptureRequest{ProviderOrderID: "pp_123"})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if paypal.lastOp != "capture" {
		t.Fatalf("expected capture to invoke default provider")
	}
	if details.Provider != "paypal" {
		t.Fatalf("unexpected provider in details: %q", details.Provider)
	}
}

func TestManagerUnsupportedProvider(t *testing.T) {
	ctx := context.Background()
	mgr, err := NewManager(map[string]Provider{"paypal": &fakeProvider{}, "card": &fakeProvider{}}, WithDefaultProvider(""))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	_, err = mgr.CreateOrder(ctx, PaymentContext{PreferredProvider: "unknown"}, CreateOrderRequest{ReferenceID: "ord_1", Amount: 30})
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestNewManagerValidatesProviders(t *testing.T) {
	if _, err := NewManager(map[string]Provider{"bad": nil}); err == nil {
		t.Fatalf("expected error for nil provider")
	}
	if _, err := NewManager(nil); err == nil {
		t.Fatalf("expected error when providers empty")
	}
}
