package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/tidynest/api/internal/domain"
	"github.com/tidynest/api/internal/repositories"
)

const defaultReservationTTL = 30 * time.Minute

var (
	// ErrScheduleInvalidInput indicates the caller supplied invalid input parameters.
	ErrScheduleInvalidInput = errors.New("schedule: invalid input")
	// ErrScheduleSlotTaken indicates another order already holds the slot.
	ErrScheduleSlotTaken = errors.New("schedule: slot already reserved")
	// ErrScheduleUnavailable indicates the persistence layer is unavailable.
	ErrScheduleUnavailable = errors.New("schedule: unavailable")
)

// ScheduleServiceDeps wires the dependencies required by the schedule service.
type ScheduleServiceDeps struct {
	Reservations   repositories.ReservationRepository
	ReservationTTL time.Duration
	Clock          func() time.Time
	Logger         func(ctx context.Context, event string, fields map[string]any)
}

type scheduleService struct {
	reservations repositories.ReservationRepository
	ttl          time.Duration
	now          func() time.Time
	logger       func(ctx context.Context, event string, fields map[string]any)
}

// NewScheduleService constructs a ScheduleService validating required dependencies.
func NewScheduleService(deps ScheduleServiceDeps) (ScheduleService, error) {
	if deps.Reservations == nil {
		return nil, errors.New("schedule service: reservation repository is required")
	}
	ttl := deps.ReservationTTL
	if ttl <= 0 {
		ttl = defaultReservationTTL
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &scheduleService{
		reservations: deps.Reservations,
		ttl:          ttl,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Hold places a TTL-bounded hold on the provider slot for the order. A second
// hold for the same slot before the first expires yields ErrScheduleSlotTaken.
func (s *scheduleService) Hold(ctx context.Context, cmd HoldSlotCommand) (Reservation, error) {
	if s == nil || s.reservations == nil {
		return Reservation{}, ErrScheduleUnavailable
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	date := strings.TrimSpace(cmd.ScheduledDate)
	if orderID == "" || date == "" || !cmd.TimeSlot.Complete() {
		return Reservation{}, ErrScheduleInvalidInput
	}
	ttl := cmd.TTL
	if ttl <= 0 {
		ttl = s.ttl
	}

	reservation, err := s.reservations.Reserve(ctx, Reservation{
		OrderID:       orderID,
		ProviderID:    strings.TrimSpace(cmd.ProviderID),
		ScheduledDate: date,
		TimeSlot:      cmd.TimeSlot,
		ExpiresAt:     s.now().Add(ttl),
	})
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			return Reservation{}, fmt.Errorf("%w: %s %s-%s", ErrScheduleSlotTaken, date, cmd.TimeSlot.Start, cmd.TimeSlot.End)
		}
		return Reservation{}, ErrScheduleUnavailable
	}

	s.logger(ctx, "schedule.slot_held", map[string]any{
		"reservationId": reservation.ID,
		"orderId":       orderID,
		"expiresAt":     reservation.ExpiresAt,
	})
	return reservation, nil
}

// CommitForOrder makes the order's hold permanent after payment completes.
func (s *scheduleService) CommitForOrder(ctx context.Context, orderID string) error {
	return s.transitionForOrder(ctx, orderID, domain.ReservationStatusCommitted)
}

// ReleaseForOrder frees the order's hold so the slot becomes bookable again.
// A missing reservation is treated as already released.
func (s *scheduleService) ReleaseForOrder(ctx context.Context, orderID string) error {
	return s.transitionForOrder(ctx, orderID, domain.ReservationStatusReleased)
}

func (s *scheduleService) transitionForOrder(ctx context.Context, orderID string, target domain.ReservationStatus) error {
	if s == nil || s.reservations == nil {
		return ErrScheduleUnavailable
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return ErrScheduleInvalidInput
	}

	reservation, err := s.reservations.FindByOrder(ctx, id)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			if target == domain.ReservationStatusReleased {
				return nil
			}
			return ErrScheduleInvalidInput
		}
		return ErrScheduleUnavailable
	}

	switch target {
	case domain.ReservationStatusCommitted:
		err = s.reservations.Commit(ctx, reservation.ID)
	case domain.ReservationStatusReleased:
		err = s.reservations.Release(ctx, reservation.ID)
	default:
		return ErrScheduleInvalidInput
	}
	if err != nil {
		return ErrScheduleUnavailable
	}

	s.logger(ctx, "schedule.slot_"+string(target), map[string]any{
		"reservationId": reservation.ID,
		"orderId":       id,
	})
	return nil
}
