package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tidynest/api/internal/platform/httpx"
	"github.com/tidynest/api/internal/services"
)

// CatalogHandlers exposes the public read-only catalogue.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs the public catalogue handlers.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes wires the catalogue endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/services", h.listServices)
	r.Get("/services/{serviceID}", h.getService)
	r.Get("/providers", h.listProviders)
	r.Get("/providers/{providerID}", h.getProvider)
}

func (h *CatalogHandlers) listServices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalogue is unavailable", http.StatusServiceUnavailable))
		return
	}

	listed, err := h.catalog.ListServices(ctx, services.ServiceListQuery{
		Type:       trimmedQuery(r.URL.Query().Get("type")),
		ProviderID: trimmedQuery(r.URL.Query().Get("providerId")),
	})
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	payload := make([]servicePayload, 0, len(listed))
	for _, service := range listed {
		payload = append(payload, buildServicePayload(service))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"services": payload})
}

func (h *CatalogHandlers) getService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalogue is unavailable", http.StatusServiceUnavailable))
		return
	}

	service, err := h.catalog.GetService(ctx, chi.URLParam(r, "serviceID"))
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"service": buildServicePayload(service)})
}

func (h *CatalogHandlers) listProviders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalogue is unavailable", http.StatusServiceUnavailable))
		return
	}

	listed, err := h.catalog.ListProviders(ctx, services.ProviderListQuery{
		Type:      trimmedQuery(r.URL.Query().Get("type")),
		ServiceID: trimmedQuery(r.URL.Query().Get("serviceId")),
	})
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	payload := make([]providerPayload, 0, len(listed))
	for _, provider := range listed {
		payload = append(payload, buildProviderPayload(provider))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"providers": payload})
}

func (h *CatalogHandlers) getProvider(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalogue is unavailable", http.StatusServiceUnavailable))
		return
	}

	provider, err := h.catalog.GetProvider(ctx, chi.URLParam(r, "providerID"))
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"provider": buildProviderPayload(provider)})
}

func (h *CatalogHandlers) writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_not_found", "service or provider not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_conflict", "catalogue entry has been modified; retry", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalogue is unavailable", http.StatusServiceUnavailable))
	}
}
