package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	domain "github.com/tidynest/api/internal/domain"
)

func newCatalogFixture(t *testing.T) (CatalogService, *stubServiceRepo, *stubProviderRepo) {
	t.Helper()
	inactive := fixtureWindowService()
	inactive.Active = false
	services := newStubServiceRepo(fixtureService(), inactive)
	providers := newStubProviderRepo(domain.Provider{
		ID:     "prv_1",
		Name:   "Sparkle Ltd",
		Type:   domain.ProviderTypeCompany,
		Active: true,
		PriceOverrides: map[string]map[string]string{
			"svc_deep": {"1": "€12"},
		},
	})
	svc, err := NewCatalogService(CatalogServiceDeps{Services: services, Providers: providers})
	if err != nil {
		t.Fatalf("new catalog service: %v", err)
	}
	return svc, services, providers
}

func boolPtr(v bool) *bool { return &v }

func TestCatalogListServicesActiveOnly(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newCatalogFixture(t)

	listed, err := svc.ListServices(ctx, ServiceListQuery{})
	if err != nil {
		t.Fatalf("list services: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != "svc_deep" {
		t.Fatalf("expected only active service, got %+v", listed)
	}

	all, err := svc.ListServices(ctx, ServiceListQuery{IncludeAll: true})
	if err != nil {
		t.Fatalf("list all services: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected both services with IncludeAll, got %d", len(all))
	}
}

func TestCatalogListServicesResolvesProviderPrices(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newCatalogFixture(t)

	listed, err := svc.ListServices(ctx, ServiceListQuery{ProviderID: "prv_1"})
	if err != nil {
		t.Fatalf("list services: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected one service, got %d", len(listed))
	}
	if listed[0].Options[0].Price != "€12" {
		t.Fatalf("expected override price, got %q", listed[0].Options[0].Price)
	}
	if listed[0].Options[1].Price != "€5" {
		t.Fatalf("expected base price without override, got %q", listed[0].Options[1].Price)
	}
}

func TestCatalogListProvidersByService(t *testing.T) {
	ctx := context.Background()
	svc, _, providers := newCatalogFixture(t)
	if err := providers.Insert(ctx, domain.Provider{
		ID:     "prv_2",
		Name:   "Shine Person",
		Type:   domain.ProviderTypePerson,
		Active: true,
	}); err != nil {
		t.Fatalf("seed provider: %v", err)
	}

	matched, err := svc.ListProviders(ctx, ProviderListQuery{ServiceID: "svc_deep"})
	if err != nil {
		t.Fatalf("list providers: %v", err)
	}
	if len(matched) != 1 || matched[0].ID != "prv_1" {
		t.Fatalf("expected only the overriding provider, got %+v", matched)
	}
}

func TestCatalogCreateServiceValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newCatalogFixture(t)

	tests := []struct {
		name string
		cmd  UpsertServiceCommand
	}{
		{name: "missing name", cmd: UpsertServiceCommand{Options: []ServiceOption{{ID: "1", Name: "Kitchen", Price: "€10"}}}},
		{name: "option without id", cmd: UpsertServiceCommand{Name: "Deep", Options: []ServiceOption{{Name: "Kitchen", Price: "€10"}}}},
		{name: "duplicate option id", cmd: UpsertServiceCommand{Name: "Deep", Options: []ServiceOption{
			{ID: "1", Name: "Kitchen", Price: "€10"},
			{ID: "1", Name: "Bathroom", Price: "€5"},
		}}},
		{name: "zero price", cmd: UpsertServiceCommand{Name: "Deep", Options: []ServiceOption{{ID: "1", Name: "Kitchen", Price: "€0"}}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateService(ctx, tc.cmd); !errors.Is(err, ErrCatalogInvalidInput) {
				t.Fatalf("expected ErrCatalogInvalidInput, got %v", err)
			}
		})
	}
}

func TestCatalogCreateServiceGeneratesID(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newCatalogFixture(t)

	created, err := svc.CreateService(ctx, UpsertServiceCommand{
		Name: "Office Cleaning",
		Type: "office",
		Options: []ServiceOption{
			{ID: "1", Name: "Desk area", Price: "€15"},
		},
	})
	if err != nil {
		t.Fatalf("create service: %v", err)
	}
	if !strings.HasPrefix(created.ID, "svc_") {
		t.Fatalf("unexpected service id %q", created.ID)
	}
	if !created.Active {
		t.Fatalf("expected new service active by default")
	}
}

func TestCatalogUpdateServicePreservesActiveAndCreatedAt(t *testing.T) {
	ctx := context.Background()
	svc, repos, _ := newCatalogFixture(t)

	stored := repos.services["svc_windows"]
	updated, err := svc.UpdateService(ctx, UpsertServiceCommand{
		ServiceID: "svc_windows",
		Name:      "Window Cleaning Plus",
		Options: []ServiceOption{
			{ID: "10", Name: "Ground floor", Price: "€25"},
		},
	})
	if err != nil {
		t.Fatalf("update service: %v", err)
	}
	if updated.Active != stored.Active {
		t.Fatalf("expected active flag preserved, got %v", updated.Active)
	}
	if !updated.CreatedAt.Equal(stored.CreatedAt) {
		t.Fatalf("expected creation time preserved")
	}
	if updated.Options[0].Price != "€25" {
		t.Fatalf("expected new price, got %q", updated.Options[0].Price)
	}
}

func TestCatalogCreateProviderValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newCatalogFixture(t)

	if _, err := svc.CreateProvider(ctx, UpsertProviderCommand{Name: "X", Type: "robot"}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput for bad type, got %v", err)
	}
	if _, err := svc.CreateProvider(ctx, UpsertProviderCommand{Name: "X", Type: domain.ProviderTypePerson, Rating: 7}); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput for bad rating, got %v", err)
	}

	created, err := svc.CreateProvider(ctx, UpsertProviderCommand{
		Name:     "Maria",
		Type:     domain.ProviderTypePerson,
		Rating:   4.5,
		Verified: boolPtr(true),
	})
	if err != nil {
		t.Fatalf("create provider: %v", err)
	}
	if !strings.HasPrefix(created.ID, "prv_") || !created.Verified {
		t.Fatalf("unexpected provider %+v", created)
	}
}

func TestCatalogGetServiceNotFound(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newCatalogFixture(t)

	if _, err := svc.GetService(ctx, "svc_missing"); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected ErrCatalogNotFound, got %v", err)
	}
}

func TestCatalogDeleteService(t *testing.T) {
	ctx := context.Background()
	svc, repos, _ := newCatalogFixture(t)

	if err := svc.DeleteService(ctx, "svc_deep"); err != nil {
		t.Fatalf("delete service: %v", err)
	}
	if _, exists := repos.services["svc_deep"]; exists {
		t.Fatalf("expected service removed")
	}
	if err := svc.DeleteService(ctx, "svc_deep"); !errors.Is(err, ErrCatalogNotFound) {
		t.Fatalf("expected ErrCatalogNotFound on double delete, got %v", err)
	}
}
