package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/indo-cafe/api/internal/domain"
)

type stubUserRepo struct {
	findFn   func(context.Context, string) (domain.UserProfile, error)
	upsertFn func(context.Context, domain.UserProfile) (domain.UserProfile, error)
}

func (s *stubUserRepo) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	if s.findFn != nil {
		return s.findFn(ctx, userID)
	}
	return domain.UserProfile{}, &fakeNotFoundError{}
}

func (s *stubUserRepo) Upsert(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	if s.upsertFn != nil {
		return s.upsertFn(ctx, profile)
	}
	return profile, nil
}

func newTestUserService(t *testing.T, users *stubUserRepo) UserService {
	t.Helper()
	svc, err := NewUserService(UserServiceDeps{
		Users: users,
		Clock: func() time.Time {
			return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("NewUserService: %v", err)
	}
	return svc
}

func TestGetProfile(t *testing.T) {
	users := &stubUserRepo{
		findFn: func(_ context.Context, userID string) (domain.UserProfile, error) {
			if userID != "user-1" {
				return domain.UserProfile{}, &fakeNotFoundError{}
			}
			return domain.UserProfile{ID: userID, Role: RoleCustomer}, nil
		},
	}
	svc := newTestUserService(t, users)

	profile, err := svc.GetProfile(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if profile.ID != "user-1" {
		t.Fatalf("unexpected profile %+v", profile)
	}

	if _, err := svc.GetProfile(context.Background(), "user-2"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.GetProfile(context.Background(), "  "); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestSyncProfileCreatesCustomer(t *testing.T) {
	users := &stubUserRepo{}
	svc := newTestUserService(t, users)

	profile, err := svc.SyncProfile(context.Background(), SyncProfileCommand{
		UserID:      "user-1",
		DisplayName: "Dewi",
		Email:       "dewi@example.com",
	})
	if err != nil {
		t.Fatalf("SyncProfile: %v", err)
	}
	if profile.Role != RoleCustomer {
		t.Fatalf("expected customer role, got %q", profile.Role)
	}
	if profile.DisplayName != "Dewi" || profile.Email != "dewi@example.com" {
		t.Fatalf("unexpected profile %+v", profile)
	}
	if profile.CreatedAt.IsZero() || profile.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps set")
	}
}

func TestSyncProfileKeepsStoredRole(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 0, 0, 0, time.UTC)
	users := &stubUserRepo{
		findFn: func(_ context.Context, userID string) (domain.UserProfile, error) {
			return domain.UserProfile{
				ID:          userID,
				DisplayName: "Dewi",
				Email:       "dewi@example.com",
				Role:        RoleAdmin,
				CreatedAt:   created,
			}, nil
		},
	}
	svc := newTestUserService(t, users)

	// A token claiming a different role must not demote or promote.
	profile, err := svc.SyncProfile(context.Background(), SyncProfileCommand{
		UserID: "user-1",
		Role:   RoleCustomer,
	})
	if err != nil {
		t.Fatalf("SyncProfile: %v", err)
	}
	if profile.Role != RoleAdmin {
		t.Fatalf("stored role must win, got %q", profile.Role)
	}
	if !profile.CreatedAt.Equal(created) {
		t.Fatalf("CreatedAt must be preserved, got %v", profile.CreatedAt)
	}
	if profile.DisplayName != "Dewi" || profile.Email != "dewi@example.com" {
		t.Fatalf("blank fields must fall back to stored values, got %+v", profile)
	}
}

func TestSyncProfileRejectsUnknownRoleOnFirstSync(t *testing.T) {
	users := &stubUserRepo{}
	svc := newTestUserService(t, users)

	profile, err := svc.SyncProfile(context.Background(), SyncProfileCommand{
		UserID: "user-1",
		Role:   "superuser",
	})
	if err != nil {
		t.Fatalf("SyncProfile: %v", err)
	}
	if profile.Role != RoleCustomer {
		t.Fatalf("unknown role must default to customer, got %q", profile.Role)
	}
}
