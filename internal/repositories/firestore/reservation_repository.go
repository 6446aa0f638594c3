package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tidynest/api/internal/domain"
	pfirestore "github.com/tidynest/api/internal/platform/firestore"
	"github.com/tidynest/api/internal/repositories"
)

const reservationsCollection = "reservations"

type reservationDocument struct {
	OrderID       string               `firestore:"orderId"`
	ProviderID    string               `firestore:"providerId"`
	ScheduledDate string               `firestore:"scheduledDate"`
	TimeSlot      cartTimeSlotDocument `firestore:"timeSlot"`
	Status        string               `firestore:"status"`
	ExpiresAt     time.Time            `firestore:"expiresAt"`
	CreatedAt     time.Time            `firestore:"createdAt"`
	UpdatedAt     time.Time            `firestore:"updatedAt"`
}

// ReservationRepository manages provider time-slot holds. The document id is
// derived from provider, date and slot so a double booking fails the Create.
type ReservationRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.Collection[reservationDocument]
}

var _ repositories.ReservationRepository = (*ReservationRepository)(nil)

// NewReservationRepository constructs a Firestore-backed reservation repository.
func NewReservationRepository(provider *pfirestore.Provider) (*ReservationRepository, error) {
	if provider == nil {
		return nil, errors.New("reservation repository requires firestore provider")
	}
	return &ReservationRepository{
		provider: provider,
		base:     pfirestore.NewCollection[reservationDocument](provider, reservationsCollection),
	}, nil
}

// SlotKey derives the deterministic reservation document id for a slot.
func SlotKey(providerID, scheduledDate string, slot domain.TimeSlot) string {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		providerID = "any"
	}
	return fmt.Sprintf("%s_%s_%s-%s",
		providerID,
		strings.TrimSpace(scheduledDate),
		strings.TrimSpace(slot.Start),
		strings.TrimSpace(slot.End),
	)
}

// Reserve places a hold on the slot. An existing unexpired hold for the same
// slot yields a conflict; expired holds are replaced in the same transaction.
func (r *ReservationRepository) Reserve(ctx context.Context, reservation domain.Reservation) (domain.Reservation, error) {
	if r == nil || r.provider == nil {
		return domain.Reservation{}, errors.New("reservation repository not initialised")
	}

	id := strings.TrimSpace(reservation.ID)
	if id == "" {
		id = SlotKey(reservation.ProviderID, reservation.ScheduledDate, reservation.TimeSlot)
	}
	now := time.Now().UTC()

	doc := reservationDocument{
		OrderID:       strings.TrimSpace(reservation.OrderID),
		ProviderID:    strings.TrimSpace(reservation.ProviderID),
		ScheduledDate: strings.TrimSpace(reservation.ScheduledDate),
		TimeSlot:      cartTimeSlotDocument{Start: reservation.TimeSlot.Start, End: reservation.TimeSlot.End},
		Status:        string(domain.ReservationStatusHeld),
		ExpiresAt:     reservation.ExpiresAt.UTC(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}

		snapshot, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
			return tx.Create(ref, doc)
		case err != nil:
			return err
		}

		var existing reservationDocument
		if err := snapshot.DataTo(&existing); err != nil {
			return fmt.Errorf("firestore reservations decode %s: %w", id, err)
		}

		// Released and expired holds may be overwritten.
		if existing.Status == string(domain.ReservationStatusReleased) ||
			(existing.Status == string(domain.ReservationStatusHeld) && !existing.ExpiresAt.IsZero() && !now.Before(existing.ExpiresAt)) {
			return tx.Set(ref, doc)
		}

		return status.Errorf(codes.AlreadyExists, "slot %s already reserved", id)
	})
	if err != nil {
		return domain.Reservation{}, pfirestore.WrapError("reservations.reserve", err)
	}

	reservation.ID = id
	reservation.Status = domain.ReservationStatusHeld
	reservation.CreatedAt = now
	reservation.UpdatedAt = now
	return reservation, nil
}

// Commit marks the hold as committed, making it permanent.
func (r *ReservationRepository) Commit(ctx context.Context, reservationID string) error {
	return r.setStatus(ctx, reservationID, domain.ReservationStatusCommitted)
}

// Release frees the hold so the slot becomes bookable again.
func (r *ReservationRepository) Release(ctx context.Context, reservationID string) error {
	return r.setStatus(ctx, reservationID, domain.ReservationStatusReleased)
}

func (r *ReservationRepository) setStatus(ctx context.Context, reservationID string, target domain.ReservationStatus) error {
	if r == nil || r.base == nil {
		return errors.New("reservation repository not initialised")
	}
	id := strings.TrimSpace(reservationID)
	if id == "" {
		return errors.New("reservation repository: reservation id is required")
	}
	_, err := r.base.Update(ctx, id, []firestore.Update{
		{Path: "status", Value: string(target)},
		{Path: "updatedAt", Value: time.Now().UTC()},
	})
	return err
}

// FindByOrder looks up the reservation held for the given order.
func (r *ReservationRepository) FindByOrder(ctx context.Context, orderID string) (domain.Reservation, error) {
	if r == nil || r.base == nil {
		return domain.Reservation{}, errors.New("reservation repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("orderId", "==", strings.TrimSpace(orderID)).Limit(1)
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	if len(docs) == 0 {
		return domain.Reservation{}, pfirestore.WrapError("reservations.findByOrder",
			status.Errorf(codes.NotFound, "no reservation for order %s", orderID))
	}
	doc := docs[0]
	return domain.Reservation{
		ID:            doc.ID,
		OrderID:       doc.Data.OrderID,
		ProviderID:    doc.Data.ProviderID,
		ScheduledDate: doc.Data.ScheduledDate,
		TimeSlot:      domain.TimeSlot{Start: doc.Data.TimeSlot.Start, End: doc.Data.TimeSlot.End},
		Status:        domain.ReservationStatus(doc.Data.Status),
		ExpiresAt:     doc.Data.ExpiresAt,
		CreatedAt:     doc.Data.CreatedAt,
		UpdatedAt:     doc.Data.UpdatedAt,
	}, nil
}
