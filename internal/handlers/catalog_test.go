package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/tidynest/api/internal/services"
)

func TestCatalogHandlersListServices(t *testing.T) {
	service := &stubCatalogService{
		listServicesFunc: func(ctx context.Context, q services.ServiceListQuery) ([]services.Service, error) {
			if q.Type != "deep" {
				t.Fatalf("expected type filter deep, got %q", q.Type)
			}
			if q.IncludeAll {
				t.Fatalf("public listing must not include inactive services")
			}
			return []services.Service{{
				ID:        "svc_deep",
				Name:      "Deep Cleaning",
				Type:      "deep",
				BasePrice: "€50",
				Options: []services.ServiceOption{
					{ID: "1", Name: "Bedroom", Price: "€10"},
				},
				Active: true,
			}}, nil
		},
	}

	router := chi.NewRouter()
	NewCatalogHandlers(service).Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/services?type=deep", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp struct {
		Services []servicePayload `json:"services"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Services) != 1 {
		t.Fatalf("expected 1 service, got %d", len(resp.Services))
	}
	if resp.Services[0].ID != "svc_deep" || len(resp.Services[0].Options) != 1 {
		t.Fatalf("unexpected service payload %#v", resp.Services[0])
	}
}

func TestCatalogHandlersGetServiceNotFound(t *testing.T) {
	service := &stubCatalogService{
		getServiceFunc: func(ctx context.Context, serviceID string) (services.Service, error) {
			return services.Service{}, services.ErrCatalogNotFound
		},
	}

	router := chi.NewRouter()
	NewCatalogHandlers(service).Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/services/svc_missing", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Error != "catalog_not_found" {
		t.Fatalf("expected error catalog_not_found, got %q", payload.Error)
	}
}

func TestCatalogHandlersListProvidersFiltersByService(t *testing.T) {
	service := &stubCatalogService{
		listProvidersFunc: func(ctx context.Context, q services.ProviderListQuery) ([]services.Provider, error) {
			if q.ServiceID != "svc_deep" {
				t.Fatalf("expected service filter svc_deep, got %q", q.ServiceID)
			}
			return []services.Provider{{
				ID:       "prv_1",
				Name:     "Ana Petrova",
				Type:     services.ProviderType("person"),
				Rating:   4.8,
				Verified: true,
				Active:   true,
			}}, nil
		},
	}

	router := chi.NewRouter()
	NewCatalogHandlers(service).Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/providers?serviceId=svc_deep", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp struct {
		Providers []providerPayload `json:"providers"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Providers) != 1 || resp.Providers[0].ID != "prv_1" {
		t.Fatalf("unexpected providers payload %#v", resp.Providers)
	}
}

func TestCatalogHandlersRepositoryFailure(t *testing.T) {
	service := &stubCatalogService{
		getProviderFunc: func(ctx context.Context, providerID string) (services.Provider, error) {
			return services.Provider{}, errors.New("backend offline")
		},
	}

	router := chi.NewRouter()
	NewCatalogHandlers(service).Routes(router)

	req := httptest.NewRequest(http.MethodGet, "/providers/prv_1", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

type stubCatalogService struct {
	listServicesFunc  func(ctx context.Context, q services.ServiceListQuery) ([]services.Service, error)
	getServiceFunc    func(ctx context.Context, serviceID string) (services.Service, error)
	listProvidersFunc func(ctx context.Context, q services.ProviderListQuery) ([]services.Provider, error)
	getProviderFunc   func(ctx context.Context, providerID string) (services.Provider, error)
	createServiceFunc func(ctx context.Context, cmd services.UpsertServiceCommand) (services.Service, error)
	updateServiceFunc func(ctx context.Context, cmd services.UpsertServiceCommand) (services.Service, error)
	deleteServiceFunc func(ctx context.Context, serviceID string) error
	createProvider    func(ctx context.Context, cmd services.UpsertProviderCommand) (services.Provider, error)
	updateProvider    func(ctx context.Context, cmd services.UpsertProviderCommand) (services.Provider, error)
	deleteProvider    func(ctx context.Context, providerID string) error
}

func (s *stubCatalogService) ListServices(ctx context.Context, q services.ServiceListQuery) ([]services.Service, error) {
	if s.listServicesFunc != nil {
		return s.listServicesFunc(ctx, q)
	}
	return nil, errors.New("not implemented")
}

func (s *stubCatalogService) GetService(ctx context.Context, serviceID string) (services.Service, error) {
	if s.getServiceFunc != nil {
		return s.getServiceFunc(ctx, serviceID)
	}
	return services.Service{}, errors.New("not implemented")
}

func (s *stubCatalogService) ListProviders(ctx context.Context, q services.ProviderListQuery) ([]services.Provider, error) {
	if s.listProvidersFunc != nil {
		return s.listProvidersFunc(ctx, q)
	}
	return nil, errors.New("not implemented")
}

func (s *stubCatalogService) GetProvider(ctx context.Context, providerID string) (services.Provider, error) {
	if s.getProviderFunc != nil {
		return s.getProviderFunc(ctx, providerID)
	}
	return services.Provider{}, errors.New("not implemented")
}

func (s *stubCatalogService) CreateService(ctx context.Context, cmd services.UpsertServiceCommand) (services.Service, error) {
	if s.createServiceFunc != nil {
		return s.createServiceFunc(ctx, cmd)
	}
	return services.Service{}, errors.New("not implemented")
}

func (s *stubCatalogService) UpdateService(ctx context.Context, cmd services.UpsertServiceCommand) (services.Service, error) {
	if s.updateServiceFunc != nil {
		return s.updateServiceFunc(ctx, cmd)
	}
	return services.Service{}, errors.New("not implemented")
}

func (s *stubCatalogService) DeleteService(ctx context.Context, serviceID string) error {
	if s.deleteServiceFunc != nil {
		return s.deleteServiceFunc(ctx, serviceID)
	}
	return errors.New("not implemented")
}

func (s *stubCatalogService) CreateProvider(ctx context.Context, cmd services.UpsertProviderCommand) (services.Provider, error) {
	if s.createProvider != nil {
		return s.createProvider(ctx, cmd)
	}
	return services.Provider{}, errors.New("not implemented")
}

func (s *stubCatalogService) UpdateProvider(ctx context.Context, cmd services.UpsertProviderCommand) (services.Provider, error) {
	if s.updateProvider != nil {
		return s.updateProvider(ctx, cmd)
	}
	return services.Provider{}, errors.New("not implemented")
}

func (s *stubCatalogService) DeleteProvider(ctx context.Context, providerID string) error {
	if s.deleteProvider != nil {
		return s.deleteProvider(ctx, providerID)
	}
	return errors.New("not implemented")
}
