package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/tidynest/api/internal/domain"
	pfirestore "github.com/tidynest/api/internal/platform/firestore"
	"github.com/tidynest/api/internal/repositories"
)

const servicesCollection = "services"

type serviceOptionDocument struct {
	ID          string `firestore:"id"`
	Name        string `firestore:"name"`
	Icon        string `firestore:"icon,omitempty"`
	Price       string `firestore:"price"`
	Description string `firestore:"description,omitempty"`
}

type serviceDocument struct {
	Name        string                  `firestore:"name"`
	Description string                  `firestore:"description,omitempty"`
	Type        string                  `firestore:"type,omitempty"`
	BasePrice   string                  `firestore:"basePrice,omitempty"`
	Options     []serviceOptionDocument `firestore:"options"`
	Active      bool                    `firestore:"active"`
	CreatedAt   time.Time               `firestore:"createdAt"`
	UpdatedAt   time.Time               `firestore:"updatedAt"`
}

// ServiceRepository persists the cleaning service catalog in Firestore.
type ServiceRepository struct {
	base *pfirestore.Collection[serviceDocument]
}

var _ repositories.ServiceRepository = (*ServiceRepository)(nil)

// NewServiceRepository constructs a Firestore-backed service repository.
func NewServiceRepository(provider *pfirestore.Provider) (*ServiceRepository, error) {
	if provider == nil {
		return nil, errors.New("service repository requires firestore provider")
	}
	return &ServiceRepository{
		base: pfirestore.NewCollection[serviceDocument](provider, servicesCollection),
	}, nil
}

// Insert stores a new catalog service under its identifier.
func (r *ServiceRepository) Insert(ctx context.Context, service domain.Service) error {
	return r.write(ctx, service)
}

// Update replaces the stored service document.
func (r *ServiceRepository) Update(ctx context.Context, service domain.Service) error {
	return r.write(ctx, service)
}

func (r *ServiceRepository) write(ctx context.Context, service domain.Service) error {
	if r == nil || r.base == nil {
		return errors.New("service repository not initialised")
	}
	id := strings.TrimSpace(service.ID)
	if id == "" {
		return errors.New("service repository: service id is required")
	}
	_, err := r.base.Set(ctx, id, encodeService(service))
	return err
}

// Delete removes the service document.
func (r *ServiceRepository) Delete(ctx context.Context, serviceID string) error {
	if r == nil || r.base == nil {
		return errors.New("service repository not initialised")
	}
	ref, err := r.base.DocumentRef(ctx, strings.TrimSpace(serviceID))
	if err != nil {
		return err
	}
	_, err = ref.Delete(ctx)
	return pfirestore.WrapError("services.delete", err)
}

// FindByID fetches a single service.
func (r *ServiceRepository) FindByID(ctx context.Context, serviceID string) (domain.Service, error) {
	if r == nil || r.base == nil {
		return domain.Service{}, errors.New("service repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(serviceID))
	if err != nil {
		return domain.Service{}, err
	}
	return decodeService(doc.ID, doc.Data), nil
}

// List returns catalog services matching the filter, ordered by name.
func (r *ServiceRepository) List(ctx context.Context, filter repositories.ServiceListFilter) ([]domain.Service, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("service repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.ActiveOnly {
			q = q.Where("active", "==", true)
		}
		if t := strings.TrimSpace(filter.Type); t != "" {
			q = q.Where("type", "==", t)
		}
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	services := make([]domain.Service, 0, len(docs))
	for _, doc := range docs {
		services = append(services, decodeService(doc.ID, doc.Data))
	}
	return services, nil
}

func encodeService(service domain.Service) serviceDocument {
	options := make([]serviceOptionDocument, 0, len(service.Options))
	for _, opt := range service.Options {
		options = append(options, serviceOptionDocument{
			ID:          strings.TrimSpace(opt.ID),
			Name:        strings.TrimSpace(opt.Name),
			Icon:        strings.TrimSpace(opt.Icon),
			Price:       strings.TrimSpace(opt.Price),
			Description: strings.TrimSpace(opt.Description),
		})
	}
	now := time.Now().UTC()
	createdAt := service.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := service.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = now
	}
	return serviceDocument{
		Name:        strings.TrimSpace(service.Name),
		Description: strings.TrimSpace(service.Description),
		Type:        strings.TrimSpace(service.Type),
		BasePrice:   strings.TrimSpace(service.BasePrice),
		Options:     options,
		Active:      service.Active,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}
}

func decodeService(id string, doc serviceDocument) domain.Service {
	options := make([]domain.ServiceOption, 0, len(doc.Options))
	for _, opt := range doc.Options {
		options = append(options, domain.ServiceOption{
			ID:          opt.ID,
			Name:        opt.Name,
			Icon:        opt.Icon,
			Price:       opt.Price,
			Description: opt.Description,
		})
	}
	return domain.Service{
		ID:          id,
		Name:        doc.Name,
		Description: doc.Description,
		Type:        doc.Type,
		BasePrice:   doc.BasePrice,
		Options:     options,
		Active:      doc.Active,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}
