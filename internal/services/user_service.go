package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/tidynest/api/internal/domain"
	"github.com/tidynest/api/internal/repositories"
)

var (
	// ErrUserInvalidInput indicates the caller supplied invalid input parameters.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrUserNotFound indicates the account does not exist.
	ErrUserNotFound = errors.New("user: not found")
	// ErrUserUnavailable indicates the persistence layer is unavailable.
	ErrUserUnavailable = errors.New("user: unavailable")
)

// UserServiceDeps wires the dependencies required by the user service.
type UserServiceDeps struct {
	Users  repositories.UserRepository
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type userService struct {
	users  repositories.UserRepository
	now    func() time.Time
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewUserService constructs a UserService validating required dependencies.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &userService{
		users: deps.Users,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// EnsureProfile mirrors the authenticated identity into the user store. An
// existing account keeps its active flag and creation time; a new one starts
// active.
func (s *userService) EnsureProfile(ctx context.Context, cmd EnsureProfileCommand) error {
	if s == nil || s.users == nil {
		return ErrUserUnavailable
	}
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return ErrUserInvalidInput
	}

	user := domain.User{
		ID:     userID,
		Email:  strings.TrimSpace(cmd.Email),
		Name:   strings.TrimSpace(cmd.Name),
		Roles:  cmd.Roles,
		Active: true,
	}

	existing, err := s.users.FindByID(ctx, userID)
	switch {
	case err == nil:
		user.Active = existing.Active
		user.CreatedAt = existing.CreatedAt
		if user.Email == "" {
			user.Email = existing.Email
		}
		if user.Name == "" {
			user.Name = existing.Name
		}
	default:
		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
			return ErrUserUnavailable
		}
		user.CreatedAt = s.now()
	}

	if err := s.users.Upsert(ctx, user); err != nil {
		return translateUserError(err)
	}
	return nil
}

// ListUsers returns every mirrored account, newest first.
func (s *userService) ListUsers(ctx context.Context) ([]User, error) {
	if s == nil || s.users == nil {
		return nil, ErrUserUnavailable
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, translateUserError(err)
	}
	return users, nil
}

// SetUserActive toggles the account's active flag, blocking or unblocking it.
func (s *userService) SetUserActive(ctx context.Context, cmd SetUserActiveCommand) error {
	if s == nil || s.users == nil {
		return ErrUserUnavailable
	}
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return ErrUserInvalidInput
	}
	if err := s.users.SetActive(ctx, userID, cmd.Active); err != nil {
		return translateUserError(err)
	}
	s.logger(ctx, "user.active_changed", map[string]any{
		"userId": userID,
		"active": cmd.Active,
	})
	return nil
}

func translateUserError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrUserNotFound
	}
	return ErrUserUnavailable
}
