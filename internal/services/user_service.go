package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/indo-cafe/api/internal/repositories"
)

const (
	// RoleCustomer is the default role for authenticated principals.
	RoleCustomer = "customer"
	// RoleAdmin grants access to catalog and order management surfaces.
	RoleAdmin = "admin"
)

var (
	// ErrUserInvalidInput signals the caller provided invalid data.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrUserNotFound indicates the profile could not be located.
	ErrUserNotFound = errors.New("user: not found")
)

// UserServiceDeps bundles collaborators required to construct the user service.
type UserServiceDeps struct {
	Users  repositories.UserRepository
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type userService struct {
	users  repositories.UserRepository
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewUserService wires dependencies into a concrete UserService implementation.
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
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *userService) GetProfile(ctx context.Context, userID string) (UserProfile, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return UserProfile{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}

	profile, err := s.users.FindByID(ctx, uid)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return UserProfile{}, fmt.Errorf("%w: %s", ErrUserNotFound, uid)
		}
		return UserProfile{}, err
	}
	return profile, nil
}

// SyncProfile upserts the profile from the verified identity token. The role
// is only taken from the command on first sight; afterwards the stored role
// wins so a forged token cannot self-promote.
func (s *userService) SyncProfile(ctx context.Context, cmd SyncProfileCommand) (UserProfile, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return UserProfile{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}

	now := s.clock()
	profile := UserProfile{
		ID:          uid,
		DisplayName: strings.TrimSpace(cmd.DisplayName),
		Email:       strings.TrimSpace(cmd.Email),
		Role:        RoleCustomer,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	existing, err := s.users.FindByID(ctx, uid)
	switch {
	case err == nil:
		profile.Role = existing.Role
		profile.CreatedAt = existing.CreatedAt
		if profile.DisplayName == "" {
			profile.DisplayName = existing.DisplayName
		}
		if profile.Email == "" {
			profile.Email = existing.Email
		}
	default:
		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
			return UserProfile{}, err
		}
		if role := strings.TrimSpace(cmd.Role); role == RoleAdmin || role == RoleCustomer {
			profile.Role = role
		}
		s.logger(ctx, "user.profile.created", map[string]any{
			"user": uid,
			"role": profile.Role,
		})
	}

	return s.users.Upsert(ctx, profile)
}
