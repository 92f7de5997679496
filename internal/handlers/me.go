package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/indo-cafe/api/internal/platform/auth"
	"github.com/indo-cafe/api/internal/platform/httpx"
	"github.com/indo-cafe/api/internal/services"
)

const maxProfileBodySize = 16 * 1024

type updateProfileRequest struct {
	DisplayName string `json:"display_name"`
}

// MeHandlers exposes profile endpoints for the authenticated principal.
type MeHandlers struct {
	authn *auth.Authenticator
	users services.UserService
}

// NewMeHandlers constructs a new MeHandlers instance.
func NewMeHandlers(authn *auth.Authenticator, users services.UserService) *MeHandlers {
	return &MeHandlers{authn: authn, users: users}
}

// Routes registers the /me endpoints.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getProfile)
	r.Put("/", h.updateProfile)
}

// getProfile returns the stored profile, creating it from the verified token
// on first sight.
func (h *MeHandlers) getProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	profile, err := h.users.GetProfile(ctx, identity.UID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			profile, err = h.users.SyncProfile(ctx, services.SyncProfileCommand{
				UserID: identity.UID,
				Email:  identity.Email,
			})
		}
		if err != nil {
			writeProfileError(ctx, w, err)
			return
		}
	}

	writeJSONResponse(w, http.StatusOK, profileResponse{Profile: buildProfilePayload(profile)})
}

func (h *MeHandlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxProfileBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req updateProfileRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	profile, err := h.users.SyncProfile(ctx, services.SyncProfileCommand{
		UserID:      identity.UID,
		DisplayName: req.DisplayName,
		Email:       identity.Email,
	})
	if err != nil {
		writeProfileError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, profileResponse{Profile: buildProfilePayload(profile)})
}

// Response payloads ----------------------------------------------------------

type profileResponse struct {
	Profile profilePayload `json:"profile"`
}

type profilePayload struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

func buildProfilePayload(profile services.UserProfile) profilePayload {
	return profilePayload{
		ID:          profile.ID,
		DisplayName: profile.DisplayName,
		Email:       profile.Email,
		Role:        profile.Role,
		CreatedAt:   formatTime(profile.CreatedAt),
		UpdatedAt:   formatTime(profile.UpdatedAt),
	}
}

func writeProfileError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrUserInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("profile_not_found", "profile not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
