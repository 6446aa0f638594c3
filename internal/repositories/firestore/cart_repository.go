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

const cartsCollection = "carts"

type cartAddressDocument struct {
	Street       string `firestore:"street"`
	City         string `firestore:"city"`
	ZipCode      string `firestore:"zipCode"`
	Country      string `firestore:"country"`
	Instructions string `firestore:"instructions,omitempty"`
}

type cartTimeSlotDocument struct {
	Start string `firestore:"start"`
	End   string `firestore:"end"`
}

type cartDocument struct {
	Service         *serviceDocument      `firestore:"service,omitempty"`
	ServiceID       string                `firestore:"serviceId,omitempty"`
	SelectedOptions map[string]int        `firestore:"selectedOptions,omitempty"`
	ProviderID      string                `firestore:"providerId,omitempty"`
	Address         *cartAddressDocument  `firestore:"address,omitempty"`
	ScheduledDate   string                `firestore:"scheduledDate,omitempty"`
	TimeSlot        *cartTimeSlotDocument `firestore:"timeSlot,omitempty"`
	PaymentMethod   string                `firestore:"paymentMethod,omitempty"`
	CreatedAt       time.Time             `firestore:"createdAt"`
	UpdatedAt       time.Time             `firestore:"updatedAt"`
}

// CartRepository persists per-user carts, one document per user.
type CartRepository struct {
	base *pfirestore.Collection[cartDocument]
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{
		base: pfirestore.NewCollection[cartDocument](provider, cartsCollection),
	}, nil
}

// Get loads the user's cart. A missing document maps to a not-found repository error.
func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(userID))
	if err != nil {
		return domain.Cart{}, err
	}
	return decodeCart(doc.ID, doc.Data, doc.UpdateTime), nil
}

// Save upserts the cart. A non-nil expectedUpdate enforces optimistic concurrency
// against the document's last update timestamp.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	userID := strings.TrimSpace(cart.UserID)
	if userID == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc := encodeCart(cart)

	if expectedUpdate != nil && !expectedUpdate.IsZero() {
		updates := []firestore.Update{
			{Path: "service", Value: doc.Service},
			{Path: "serviceId", Value: doc.ServiceID},
			{Path: "selectedOptions", Value: doc.SelectedOptions},
			{Path: "providerId", Value: doc.ProviderID},
			{Path: "address", Value: doc.Address},
			{Path: "scheduledDate", Value: doc.ScheduledDate},
			{Path: "timeSlot", Value: doc.TimeSlot},
			{Path: "paymentMethod", Value: doc.PaymentMethod},
			{Path: "updatedAt", Value: doc.UpdatedAt},
		}
		result, err := r.base.Update(ctx, userID, updates, firestore.LastUpdateTime(expectedUpdate.UTC()))
		if err != nil {
			return domain.Cart{}, err
		}
		saved := cart
		saved.UserID = userID
		saved.UpdatedAt = result.UpdateTime
		return saved, nil
	}

	result, err := r.base.Set(ctx, userID, doc)
	if err != nil {
		return domain.Cart{}, err
	}
	saved := cart
	saved.UserID = userID
	saved.CreatedAt = doc.CreatedAt
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

// Delete clears the user's cart document. Deleting a missing cart is a no-op.
func (r *CartRepository) Delete(ctx context.Context, userID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	ref, err := r.base.DocumentRef(ctx, strings.TrimSpace(userID))
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		wrapped := pfirestore.WrapError("carts.delete", err)
		var repoErr repositories.RepositoryError
		if errors.As(wrapped, &repoErr) && repoErr.IsNotFound() {
			return nil
		}
		return wrapped
	}
	return nil
}

func encodeCart(cart domain.Cart) cartDocument {
	now := time.Now().UTC()
	createdAt := cart.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := cart.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = now
	}

	doc := cartDocument{
		SelectedOptions: cart.SelectedOptions,
		ProviderID:      strings.TrimSpace(cart.ProviderID),
		ScheduledDate:   strings.TrimSpace(cart.ScheduledDate),
		PaymentMethod:   string(cart.PaymentMethod),
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}
	if cart.SelectedService != nil {
		encoded := encodeService(*cart.SelectedService)
		doc.Service = &encoded
		doc.ServiceID = strings.TrimSpace(cart.SelectedService.ID)
	}
	if cart.Address != nil {
		doc.Address = &cartAddressDocument{
			Street:       strings.TrimSpace(cart.Address.Street),
			City:         strings.TrimSpace(cart.Address.City),
			ZipCode:      strings.TrimSpace(cart.Address.ZipCode),
			Country:      strings.TrimSpace(cart.Address.Country),
			Instructions: strings.TrimSpace(cart.Address.Instructions),
		}
	}
	if cart.TimeSlot != nil {
		doc.TimeSlot = &cartTimeSlotDocument{
			Start: strings.TrimSpace(cart.TimeSlot.Start),
			End:   strings.TrimSpace(cart.TimeSlot.End),
		}
	}
	return doc
}

func decodeCart(userID string, doc cartDocument, updateTime time.Time) domain.Cart {
	cart := domain.Cart{
		UserID:          userID,
		SelectedOptions: doc.SelectedOptions,
		ProviderID:      doc.ProviderID,
		ScheduledDate:   doc.ScheduledDate,
		PaymentMethod:   domain.PaymentMethod(doc.PaymentMethod),
		CreatedAt:       doc.CreatedAt,
		// Save's LastUpdateTime precondition compares against the server
		// commit timestamp; the stored updatedAt field is only a fallback.
		UpdatedAt: updateTime,
	}
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = doc.UpdatedAt
	}
	if doc.Service != nil {
		service := decodeService(doc.ServiceID, *doc.Service)
		cart.SelectedService = &service
	}
	if doc.Address != nil {
		cart.Address = &domain.Address{
			Street:       doc.Address.Street,
			City:         doc.Address.City,
			ZipCode:      doc.Address.ZipCode,
			Country:      doc.Address.Country,
			Instructions: doc.Address.Instructions,
		}
	}
	if doc.TimeSlot != nil {
		cart.TimeSlot = &domain.TimeSlot{Start: doc.TimeSlot.Start, End: doc.TimeSlot.End}
	}
	return cart
}
