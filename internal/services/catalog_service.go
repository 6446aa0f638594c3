package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/tidynest/api/internal/domain"
	"github.com/tidynest/api/internal/repositories"
)

var (
	// ErrCatalogInvalidInput indicates the caller supplied invalid input parameters.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates the service or provider does not exist.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogConflict indicates a concurrent modification prevented the write.
	ErrCatalogConflict = errors.New("catalog: conflict")
	// ErrCatalogUnavailable indicates the persistence layer is unavailable.
	ErrCatalogUnavailable = errors.New("catalog: unavailable")
)

// CatalogServiceDeps wires the dependencies required by the catalog service.
type CatalogServiceDeps struct {
	Services  repositories.ServiceRepository
	Providers repositories.ProviderRepository
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	services  repositories.ServiceRepository
	providers repositories.ProviderRepository
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

// NewCatalogService constructs a CatalogService validating required dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Services == nil {
		return nil, errors.New("catalog service: service repository is required")
	}
	if deps.Providers == nil {
		return nil, errors.New("catalog service: provider repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{
		services:  deps.Services,
		providers: deps.Providers,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// ListServices returns active services, optionally filtered by type. When the
// query binds a provider, option prices are resolved through its overrides.
func (s *catalogService) ListServices(ctx context.Context, filter ServiceListQuery) ([]Service, error) {
	if s == nil || s.services == nil {
		return nil, ErrCatalogUnavailable
	}
	listed, err := s.services.List(ctx, repositories.ServiceListFilter{
		Type:       strings.TrimSpace(filter.Type),
		ActiveOnly: !filter.IncludeAll,
	})
	if err != nil {
		return nil, translateCatalogError(err)
	}
	if providerID := strings.TrimSpace(filter.ProviderID); providerID != "" {
		provider, err := s.providers.FindByID(ctx, providerID)
		if err != nil {
			return nil, translateCatalogError(err)
		}
		for i := range listed {
			listed[i] = resolveServicePrices(listed[i], provider)
		}
	}
	return listed, nil
}

// GetService fetches one service by id.
func (s *catalogService) GetService(ctx context.Context, serviceID string) (Service, error) {
	if s == nil || s.services == nil {
		return Service{}, ErrCatalogUnavailable
	}
	id := strings.TrimSpace(serviceID)
	if id == "" {
		return Service{}, ErrCatalogInvalidInput
	}
	service, err := s.services.FindByID(ctx, id)
	if err != nil {
		return Service{}, translateCatalogError(err)
	}
	return service, nil
}

// ListProviders returns providers, optionally filtered by type or by the
// service they override prices for.
func (s *catalogService) ListProviders(ctx context.Context, filter ProviderListQuery) ([]Provider, error) {
	if s == nil || s.providers == nil {
		return nil, ErrCatalogUnavailable
	}
	listed, err := s.providers.List(ctx, repositories.ProviderListFilter{
		Type:       domain.ProviderType(strings.TrimSpace(filter.Type)),
		ActiveOnly: !filter.IncludeAll,
	})
	if err != nil {
		return nil, translateCatalogError(err)
	}
	if serviceID := strings.TrimSpace(filter.ServiceID); serviceID != "" {
		matched := listed[:0]
		for _, provider := range listed {
			if _, ok := provider.PriceOverrides[serviceID]; ok {
				matched = append(matched, provider)
			}
		}
		listed = matched
	}
	return listed, nil
}

// GetProvider fetches one provider by id.
func (s *catalogService) GetProvider(ctx context.Context, providerID string) (Provider, error) {
	if s == nil || s.providers == nil {
		return Provider{}, ErrCatalogUnavailable
	}
	id := strings.TrimSpace(providerID)
	if id == "" {
		return Provider{}, ErrCatalogInvalidInput
	}
	provider, err := s.providers.FindByID(ctx, id)
	if err != nil {
		return Provider{}, translateCatalogError(err)
	}
	return provider, nil
}

// CreateService inserts a new catalogue service with a generated id.
func (s *catalogService) CreateService(ctx context.Context, cmd UpsertServiceCommand) (Service, error) {
	if s == nil || s.services == nil {
		return Service{}, ErrCatalogUnavailable
	}
	service, err := buildService(cmd)
	if err != nil {
		return Service{}, err
	}
	service.ID = strings.TrimSpace(cmd.ServiceID)
	if service.ID == "" {
		service.ID = "svc_" + strings.ToLower(ulid.Make().String())
	}
	now := s.now()
	service.CreatedAt = now
	service.UpdatedAt = now
	if err := s.services.Insert(ctx, service); err != nil {
		return Service{}, translateCatalogError(err)
	}
	s.logger(ctx, "catalog.service_created", map[string]any{"serviceId": service.ID})
	return service, nil
}

// UpdateService replaces an existing service definition.
func (s *catalogService) UpdateService(ctx context.Context, cmd UpsertServiceCommand) (Service, error) {
	if s == nil || s.services == nil {
		return Service{}, ErrCatalogUnavailable
	}
	id := strings.TrimSpace(cmd.ServiceID)
	if id == "" {
		return Service{}, ErrCatalogInvalidInput
	}
	existing, err := s.services.FindByID(ctx, id)
	if err != nil {
		return Service{}, translateCatalogError(err)
	}
	service, err := buildService(cmd)
	if err != nil {
		return Service{}, err
	}
	service.ID = id
	service.CreatedAt = existing.CreatedAt
	service.UpdatedAt = s.now()
	if cmd.Active == nil {
		service.Active = existing.Active
	}
	if err := s.services.Update(ctx, service); err != nil {
		return Service{}, translateCatalogError(err)
	}
	return service, nil
}

// DeleteService removes a service from the catalogue.
func (s *catalogService) DeleteService(ctx context.Context, serviceID string) error {
	if s == nil || s.services == nil {
		return ErrCatalogUnavailable
	}
	id := strings.TrimSpace(serviceID)
	if id == "" {
		return ErrCatalogInvalidInput
	}
	if err := s.services.Delete(ctx, id); err != nil {
		return translateCatalogError(err)
	}
	s.logger(ctx, "catalog.service_deleted", map[string]any{"serviceId": id})
	return nil
}

// CreateProvider inserts a new provider with a generated id.
func (s *catalogService) CreateProvider(ctx context.Context, cmd UpsertProviderCommand) (Provider, error) {
	if s == nil || s.providers == nil {
		return Provider{}, ErrCatalogUnavailable
	}
	provider, err := buildProvider(cmd)
	if err != nil {
		return Provider{}, err
	}
	provider.ID = strings.TrimSpace(cmd.ProviderID)
	if provider.ID == "" {
		provider.ID = "prv_" + strings.ToLower(ulid.Make().String())
	}
	now := s.now()
	provider.CreatedAt = now
	provider.UpdatedAt = now
	if err := s.providers.Insert(ctx, provider); err != nil {
		return Provider{}, translateCatalogError(err)
	}
	s.logger(ctx, "catalog.provider_created", map[string]any{"providerId": provider.ID})
	return provider, nil
}

// UpdateProvider replaces an existing provider definition.
func (s *catalogService) UpdateProvider(ctx context.Context, cmd UpsertProviderCommand) (Provider, error) {
	if s == nil || s.providers == nil {
		return Provider{}, ErrCatalogUnavailable
	}
	id := strings.TrimSpace(cmd.ProviderID)
	if id == "" {
		return Provider{}, ErrCatalogInvalidInput
	}
	existing, err := s.providers.FindByID(ctx, id)
	if err != nil {
		return Provider{}, translateCatalogError(err)
	}
	provider, err := buildProvider(cmd)
	if err != nil {
		return Provider{}, err
	}
	provider.ID = id
	provider.CreatedAt = existing.CreatedAt
	provider.UpdatedAt = s.now()
	if cmd.Verified == nil {
		provider.Verified = existing.Verified
	}
	if cmd.Active == nil {
		provider.Active = existing.Active
	}
	if err := s.providers.Update(ctx, provider); err != nil {
		return Provider{}, translateCatalogError(err)
	}
	return provider, nil
}

// DeleteProvider removes a provider.
func (s *catalogService) DeleteProvider(ctx context.Context, providerID string) error {
	if s == nil || s.providers == nil {
		return ErrCatalogUnavailable
	}
	id := strings.TrimSpace(providerID)
	if id == "" {
		return ErrCatalogInvalidInput
	}
	if err := s.providers.Delete(ctx, id); err != nil {
		return translateCatalogError(err)
	}
	s.logger(ctx, "catalog.provider_deleted", map[string]any{"providerId": id})
	return nil
}

func buildService(cmd UpsertServiceCommand) (Service, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Service{}, fmt.Errorf("%w: service name is required", ErrCatalogInvalidInput)
	}
	options := make([]ServiceOption, 0, len(cmd.Options))
	seen := make(map[string]struct{}, len(cmd.Options))
	for _, opt := range cmd.Options {
		optionID := strings.TrimSpace(opt.ID)
		if optionID == "" {
			return Service{}, fmt.Errorf("%w: option id is required", ErrCatalogInvalidInput)
		}
		if _, dup := seen[optionID]; dup {
			return Service{}, fmt.Errorf("%w: duplicate option id %q", ErrCatalogInvalidInput, optionID)
		}
		seen[optionID] = struct{}{}
		if strings.TrimSpace(opt.Name) == "" {
			return Service{}, fmt.Errorf("%w: option %q needs a name", ErrCatalogInvalidInput, optionID)
		}
		if strings.TrimSpace(opt.Price) == "" || domain.ParsePrice(opt.Price) == 0 {
			return Service{}, fmt.Errorf("%w: option %q has an invalid price", ErrCatalogInvalidInput, optionID)
		}
		opt.ID = optionID
		options = append(options, opt)
	}
	active := true
	if cmd.Active != nil {
		active = *cmd.Active
	}
	return Service{
		Name:        name,
		Description: strings.TrimSpace(cmd.Description),
		Type:        strings.TrimSpace(cmd.Type),
		BasePrice:   strings.TrimSpace(cmd.BasePrice),
		Options:     options,
		Active:      active,
	}, nil
}

func buildProvider(cmd UpsertProviderCommand) (Provider, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Provider{}, fmt.Errorf("%w: provider name is required", ErrCatalogInvalidInput)
	}
	switch cmd.Type {
	case domain.ProviderTypePerson, domain.ProviderTypeCompany:
	default:
		return Provider{}, fmt.Errorf("%w: provider type must be person or company", ErrCatalogInvalidInput)
	}
	if cmd.Rating < 0 || cmd.Rating > 5 {
		return Provider{}, fmt.Errorf("%w: rating must be between 0 and 5", ErrCatalogInvalidInput)
	}
	verified := false
	if cmd.Verified != nil {
		verified = *cmd.Verified
	}
	active := true
	if cmd.Active != nil {
		active = *cmd.Active
	}
	return Provider{
		Name:           name,
		Type:           cmd.Type,
		Description:    strings.TrimSpace(cmd.Description),
		Rating:         cmd.Rating,
		Verified:       verified,
		Active:         active,
		PriceOverrides: cmd.PriceOverrides,
	}, nil
}

// resolveServicePrices rewrites option prices through the provider's overrides.
func resolveServicePrices(service Service, provider Provider) Service {
	resolved := make([]ServiceOption, len(service.Options))
	for i, opt := range service.Options {
		opt.Price = provider.EffectivePrice(service.ID, opt)
		resolved[i] = opt
	}
	service.Options = resolved
	return service
}

func translateCatalogError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCatalogNotFound
		case repoErr.IsConflict():
			return ErrCatalogConflict
		default:
			return ErrCatalogUnavailable
		}
	}
	return ErrCatalogUnavailable
}
