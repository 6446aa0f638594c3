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

const providersCollection = "providers"

type providerDocument struct {
	Name           string                       `firestore:"name"`
	Type           string                       `firestore:"type"`
	Description    string                       `firestore:"description,omitempty"`
	Rating         float64                      `firestore:"rating"`
	Verified       bool                         `firestore:"verified"`
	Active         bool                         `firestore:"active"`
	PriceOverrides map[string]map[string]string `firestore:"priceOverrides,omitempty"`
	CreatedAt      time.Time                    `firestore:"createdAt"`
	UpdatedAt      time.Time                    `firestore:"updatedAt"`
}

// ProviderRepository persists cleaner and company profiles in Firestore.
type ProviderRepository struct {
	base *pfirestore.Collection[providerDocument]
}

var _ repositories.ProviderRepository = (*ProviderRepository)(nil)

// NewProviderRepository constructs a Firestore-backed provider repository.
func NewProviderRepository(provider *pfirestore.Provider) (*ProviderRepository, error) {
	if provider == nil {
		return nil, errors.New("provider repository requires firestore provider")
	}
	return &ProviderRepository{
		base: pfirestore.NewCollection[providerDocument](provider, providersCollection),
	}, nil
}

// Insert stores a new provider profile.
func (r *ProviderRepository) Insert(ctx context.Context, provider domain.Provider) error {
	return r.write(ctx, provider)
}

// Update replaces the stored provider document.
func (r *ProviderRepository) Update(ctx context.Context, provider domain.Provider) error {
	return r.write(ctx, provider)
}

func (r *ProviderRepository) write(ctx context.Context, provider domain.Provider) error {
	if r == nil || r.base == nil {
		return errors.New("provider repository not initialised")
	}
	id := strings.TrimSpace(provider.ID)
	if id == "" {
		return errors.New("provider repository: provider id is required")
	}
	_, err := r.base.Set(ctx, id, encodeProvider(provider))
	return err
}

// Delete removes the provider document.
func (r *ProviderRepository) Delete(ctx context.Context, providerID string) error {
	if r == nil || r.base == nil {
		return errors.New("provider repository not initialised")
	}
	ref, err := r.base.DocumentRef(ctx, strings.TrimSpace(providerID))
	if err != nil {
		return err
	}
	_, err = ref.Delete(ctx)
	return pfirestore.WrapError("providers.delete", err)
}

// FindByID fetches a single provider profile.
func (r *ProviderRepository) FindByID(ctx context.Context, providerID string) (domain.Provider, error) {
	if r == nil || r.base == nil {
		return domain.Provider{}, errors.New("provider repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(providerID))
	if err != nil {
		return domain.Provider{}, err
	}
	return decodeProvider(doc.ID, doc.Data), nil
}

// List returns providers matching the filter, ordered by rating descending.
func (r *ProviderRepository) List(ctx context.Context, filter repositories.ProviderListFilter) ([]domain.Provider, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("provider repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.ActiveOnly {
			q = q.Where("active", "==", true)
		}
		if filter.Type != "" {
			q = q.Where("type", "==", string(filter.Type))
		}
		return q.OrderBy("rating", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	providers := make([]domain.Provider, 0, len(docs))
	for _, doc := range docs {
		providers = append(providers, decodeProvider(doc.ID, doc.Data))
	}
	return providers, nil
}

func encodeProvider(provider domain.Provider) providerDocument {
	now := time.Now().UTC()
	createdAt := provider.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := provider.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = now
	}
	return providerDocument{
		Name:           strings.TrimSpace(provider.Name),
		Type:           string(provider.Type),
		Description:    strings.TrimSpace(provider.Description),
		Rating:         provider.Rating,
		Verified:       provider.Verified,
		Active:         provider.Active,
		PriceOverrides: cloneOverrides(provider.PriceOverrides),
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}
}

func decodeProvider(id string, doc providerDocument) domain.Provider {
	return domain.Provider{
		ID:             id,
		Name:           doc.Name,
		Type:           domain.ProviderType(doc.Type),
		Description:    doc.Description,
		Rating:         doc.Rating,
		Verified:       doc.Verified,
		Active:         doc.Active,
		PriceOverrides: cloneOverrides(doc.PriceOverrides),
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}

func cloneOverrides(src map[string]map[string]string) map[string]map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]map[string]string, len(src))
	for serviceID, prices := range src {
		if len(prices) == 0 {
			continue
		}
		inner := make(map[string]string, len(prices))
		for optionID, price := range prices {
			inner[optionID] = price
		}
		dst[serviceID] = inner
	}
	return dst
}
