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

const usersCollection = "users"

type userDocument struct {
	Email     string    `firestore:"email"`
	Name      string    `firestore:"name,omitempty"`
	Roles     []string  `firestore:"roles,omitempty"`
	Active    bool      `firestore:"active"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// UserRepository mirrors account state used by the admin dashboard.
type UserRepository struct {
	base *pfirestore.Collection[userDocument]
}

var _ repositories.UserRepository = (*UserRepository)(nil)

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{
		base: pfirestore.NewCollection[userDocument](provider, usersCollection),
	}, nil
}

// Upsert stores the user document keyed by the Firebase UID.
func (r *UserRepository) Upsert(ctx context.Context, user domain.User) error {
	if r == nil || r.base == nil {
		return errors.New("user repository not initialised")
	}
	id := strings.TrimSpace(user.ID)
	if id == "" {
		return errors.New("user repository: user id is required")
	}
	now := time.Now().UTC()
	createdAt := user.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err := r.base.Set(ctx, id, userDocument{
		Email:     strings.TrimSpace(user.Email),
		Name:      strings.TrimSpace(user.Name),
		Roles:     user.Roles,
		Active:    user.Active,
		CreatedAt: createdAt,
		UpdatedAt: now,
	})
	return err
}

// FindByID fetches a single user record.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if r == nil || r.base == nil {
		return domain.User{}, errors.New("user repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(userID))
	if err != nil {
		return domain.User{}, err
	}
	return decodeUser(doc.ID, doc.Data), nil
}

// List returns all user records ordered by creation time.
func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("user repository not initialised")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(docs))
	for _, doc := range docs {
		users = append(users, decodeUser(doc.ID, doc.Data))
	}
	return users, nil
}

// SetActive toggles the account's active flag.
func (r *UserRepository) SetActive(ctx context.Context, userID string, active bool) error {
	if r == nil || r.base == nil {
		return errors.New("user repository not initialised")
	}
	_, err := r.base.Update(ctx, strings.TrimSpace(userID), []firestore.Update{
		{Path: "active", Value: active},
		{Path: "updatedAt", Value: time.Now().UTC()},
	})
	return err
}

func decodeUser(id string, doc userDocument) domain.User {
	return domain.User{
		ID:        id,
		Email:     doc.Email,
		Name:      doc.Name,
		Roles:     doc.Roles,
		Active:    doc.Active,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}
