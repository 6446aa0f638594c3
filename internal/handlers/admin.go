package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tidynest/api/internal/platform/auth"
	"github.com/tidynest/api/internal/platform/httpx"
	"github.com/tidynest/api/internal/platform/pagination"
	"github.com/tidynest/api/internal/services"
)

const maxAdminBodySize = 32 * 1024

// AdminHandlers exposes the dashboard endpoints: catalogue CRUD, order and
// user management, and aggregate stats. Every route requires the admin role.
type AdminHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
	orders  services.OrderService
	users   services.UserService
	stats   services.AdminService
}

// NewAdminHandlers constructs the admin handlers.
func NewAdminHandlers(
	authn *auth.Authenticator,
	catalog services.CatalogService,
	orders services.OrderService,
	users services.UserService,
	stats services.AdminService,
) *AdminHandlers {
	return &AdminHandlers{
		authn:   authn,
		catalog: catalog,
		orders:  orders,
		users:   users,
		stats:   stats,
	}
}

// Routes wires the /admin endpoints onto the provided router.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}

	r.Get("/stats", h.dashboardStats)

	r.Get("/orders", h.listOrders)
	r.Put("/orders/{orderID}/status", h.updateOrderStatus)
	r.Put("/orders/{orderID}/payment", h.updateOrderPayment)

	r.Get("/users", h.listUsers)
	r.Put("/users/{userID}/active", h.setUserActive)

	r.Get("/services", h.listServices)
	r.Post("/services", h.createService)
	r.Put("/services/{serviceID}", h.updateService)
	r.Delete("/services/{serviceID}", h.deleteService)

	r.Get("/providers", h.listProviders)
	r.Post("/providers", h.createProvider)
	r.Put("/providers/{providerID}", h.updateProvider)
	r.Delete("/providers/{providerID}", h.deleteProvider)
}

type upsertServiceRequest struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Type        string                 `json:"type"`
	BasePrice   string                 `json:"basePrice"`
	Options     []serviceOptionPayload `json:"options"`
	Active      *bool                  `json:"active"`
}

type upsertProviderRequest struct {
	Name           string                       `json:"name"`
	Type           string                       `json:"type"`
	Description    string                       `json:"description"`
	Rating         float64                      `json:"rating"`
	Verified       *bool                        `json:"verified"`
	Active         *bool                        `json:"active"`
	PriceOverrides map[string]map[string]string `json:"priceOverrides"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

type updateOrderPaymentRequest struct {
	PaymentStatus string         `json:"paymentStatus"`
	TransactionID string         `json:"transactionId"`
	Provider      string         `json:"provider"`
	Amount        float64        `json:"amount"`
	Currency      string         `json:"currency"`
	Raw           map[string]any `json:"raw"`
}

type setUserActiveRequest struct {
	Active bool `json:"active"`
}

type userPayload struct {
	ID        string   `json:"id"`
	Email     string   `json:"email,omitempty"`
	Name      string   `json:"name,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	Active    bool     `json:"active"`
	CreatedAt string   `json:"createdAt,omitempty"`
}

func (h *AdminHandlers) dashboardStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stats == nil {
		httpx.WriteError(ctx, w, httpx.NewError("admin_unavailable", "admin service is unavailable", http.StatusServiceUnavailable))
		return
	}

	stats, err := h.stats.DashboardStats(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("admin_unavailable", "failed to aggregate dashboard stats", http.StatusServiceUnavailable))
		return
	}

	byStatus := make(map[string]int, len(stats.OrdersByStatus))
	for status, count := range stats.OrdersByStatus {
		byStatus[string(status)] = count
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"totalOrders":     stats.TotalOrders,
		"ordersByStatus":  byStatus,
		"revenue":         stats.Revenue,
		"pendingRevenue":  stats.PendingRevenue,
		"totalUsers":      stats.TotalUsers,
		"activeUsers":     stats.ActiveUsers,
		"activeProviders": stats.ActiveProviders,
		"generatedAt":     formatTime(stats.GeneratedAt),
	})
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	query := services.OrderListQuery{
		AllowAnyUser:  true,
		UserID:        trimmedQuery(r.URL.Query().Get("userId")),
		Status:        services.OrderStatus(trimmedQuery(r.URL.Query().Get("status"))),
		PaymentStatus: services.PaymentStatus(trimmedQuery(r.URL.Query().Get("paymentStatus"))),
		Cursor:        params.Cursor,
		PageSize:      params.PageSize,
	}

	page, err := h.orders.ListOrders(ctx, query)
	if err != nil {
		writeOrderServiceError(ctx, w, err)
		return
	}

	payload := orderListResponse{
		Orders:     make([]orderPayload, 0, len(page.Orders)),
		NextCursor: page.NextCursor,
	}
	for _, order := range page.Orders {
		payload.Orders = append(payload.Orders, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req updateOrderStatusRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	cmd := services.OrderStatusCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Status:  services.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
	}
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil {
		cmd.ActorID = identity.UID
	}

	order, err := h.orders.TransitionStatus(ctx, cmd)
	if err != nil {
		writeOrderServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Success: true, Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) updateOrderPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req updateOrderPaymentRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	order, err := h.orders.UpdatePayment(ctx, services.UpdatePaymentCommand{
		OrderID:       chi.URLParam(r, "orderID"),
		PaymentStatus: services.PaymentStatus(strings.ToLower(strings.TrimSpace(req.PaymentStatus))),
		TransactionID: req.TransactionID,
		Provider:      req.Provider,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Raw:           req.Raw,
	})
	if err != nil {
		writeOrderServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Success: true, Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service is unavailable", http.StatusServiceUnavailable))
		return
	}

	listed, err := h.users.ListUsers(ctx)
	if err != nil {
		h.writeUserError(ctx, w, err)
		return
	}

	payload := make([]userPayload, 0, len(listed))
	for _, user := range listed {
		payload = append(payload, userPayload{
			ID:        user.ID,
			Email:     user.Email,
			Name:      user.Name,
			Roles:     user.Roles,
			Active:    user.Active,
			CreatedAt: formatTime(user.CreatedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"users": payload})
}

func (h *AdminHandlers) setUserActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req setUserActiveRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	if err := h.users.SetUserActive(ctx, services.SetUserActiveCommand{
		UserID: chi.URLParam(r, "userID"),
		Active: req.Active,
	}); err != nil {
		h.writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"success": true})
}

func (h *AdminHandlers) listServices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalogue is unavailable", http.StatusServiceUnavailable))
		return
	}

	listed, err := h.catalog.ListServices(ctx, services.ServiceListQuery{
		Type:       trimmedQuery(r.URL.Query().Get("type")),
		IncludeAll: true,
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

func (h *AdminHandlers) createService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalogue is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req upsertServiceRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	service, err := h.catalog.CreateService(ctx, buildUpsertServiceCommand("", req))
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"service": buildServicePayload(service)})
}

func (h *AdminHandlers) updateService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalogue is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req upsertServiceRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	service, err := h.catalog.UpdateService(ctx, buildUpsertServiceCommand(chi.URLParam(r, "serviceID"), req))
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"service": buildServicePayload(service)})
}

func (h *AdminHandlers) deleteService(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalogue is unavailable", http.StatusServiceUnavailable))
		return
	}
	if err := h.catalog.DeleteService(ctx, chi.URLParam(r, "serviceID")); err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) listProviders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalogue is unavailable", http.StatusServiceUnavailable))
		return
	}

	listed, err := h.catalog.ListProviders(ctx, services.ProviderListQuery{
		Type:       trimmedQuery(r.URL.Query().Get("type")),
		IncludeAll: true,
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

func (h *AdminHandlers) createProvider(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalogue is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req upsertProviderRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	provider, err := h.catalog.CreateProvider(ctx, buildUpsertProviderCommand("", req))
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"provider": buildProviderPayload(provider)})
}

func (h *AdminHandlers) updateProvider(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalogue is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req upsertProviderRequest
	if !h.decodeBody(ctx, w, r, &req) {
		return
	}

	provider, err := h.catalog.UpdateProvider(ctx, buildUpsertProviderCommand(chi.URLParam(r, "providerID"), req))
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"provider": buildProviderPayload(provider)})
}

func (h *AdminHandlers) deleteProvider(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalogue is unavailable", http.StatusServiceUnavailable))
		return
	}
	if err := h.catalog.DeleteProvider(ctx, chi.URLParam(r, "providerID")); err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func buildUpsertServiceCommand(serviceID string, req upsertServiceRequest) services.UpsertServiceCommand {
	options := make([]services.ServiceOption, 0, len(req.Options))
	for _, opt := range req.Options {
		options = append(options, services.ServiceOption{
			ID:          opt.ID,
			Name:        opt.Name,
			Icon:        opt.Icon,
			Price:       opt.Price,
			Description: opt.Description,
		})
	}
	return services.UpsertServiceCommand{
		ServiceID:   serviceID,
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		BasePrice:   req.BasePrice,
		Options:     options,
		Active:      req.Active,
	}
}

func buildUpsertProviderCommand(providerID string, req upsertProviderRequest) services.UpsertProviderCommand {
	return services.UpsertProviderCommand{
		ProviderID:     providerID,
		Name:           req.Name,
		Type:           services.ProviderType(strings.ToLower(strings.TrimSpace(req.Type))),
		Description:    req.Description,
		Rating:         req.Rating,
		Verified:       req.Verified,
		Active:         req.Active,
		PriceOverrides: req.PriceOverrides,
	}
}

func (h *AdminHandlers) decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func (h *AdminHandlers) writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
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

func (h *AdminHandlers) writeUserError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrUserInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("user_not_found", "user not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service is unavailable", http.StatusServiceUnavailable))
	}
}
