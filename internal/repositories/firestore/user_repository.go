package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/indo-cafe/api/internal/domain"
	pfirestore "github.com/indo-cafe/api/internal/platform/firestore"
	"github.com/indo-cafe/api/internal/repositories"
)

const userCollection = "users"

// UserRepository stores user profiles keyed by the authenticated principal ID.
type UserRepository struct {
	users *pfirestore.BaseRepository[userDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	users := pfirestore.NewBaseRepository[userDocument](provider, userCollection, nil, nil)
	return &UserRepository{users: users}, nil
}

// FindByID loads a user profile.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	if r == nil || r.users == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.UserProfile{}, errors.New("user find: user id is required")
	}

	doc, err := r.users.Get(ctx, uid)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return doc.Data.toDomain(uid), nil
}

// Upsert writes the profile, creating it on first sight of the principal.
func (r *UserRepository) Upsert(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	if r == nil || r.users == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	uid := strings.TrimSpace(profile.ID)
	if uid == "" {
		return domain.UserProfile{}, errors.New("user upsert: user id is required")
	}

	if _, err := r.users.Set(ctx, uid, newUserDocument(profile)); err != nil {
		return domain.UserProfile{}, err
	}
	return profile, nil
}

// Helper structures ---------------------------------------------------------

type userDocument struct {
	DisplayName string    `firestore:"displayName,omitempty"`
	Email       string    `firestore:"email,omitempty"`
	Role        string    `firestore:"role"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func newUserDocument(profile domain.UserProfile) userDocument {
	return userDocument{
		DisplayName: strings.TrimSpace(profile.DisplayName),
		Email:       strings.TrimSpace(profile.Email),
		Role:        profile.Role,
		CreatedAt:   profile.CreatedAt.UTC(),
		UpdatedAt:   profile.UpdatedAt.UTC(),
	}
}

func (d userDocument) toDomain(id string) domain.UserProfile {
	return domain.UserProfile{
		ID:          id,
		DisplayName: d.DisplayName,
		Email:       d.Email,
		Role:        d.Role,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

var _ repositories.UserRepository = (*UserRepository)(nil)
