package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/indo-cafe/api/internal/platform/httpx"
	"github.com/indo-cafe/api/internal/services"
)

const maxCounterBodySize = int64(4 * 1024)

// InternalHandlers exposes service-to-service endpoints that are guarded by
// the internal middleware chain rather than end-user authentication.
type InternalHandlers struct {
	system services.SystemService
}

// NewInternalHandlers constructs a new InternalHandlers instance.
func NewInternalHandlers(system services.SystemService) *InternalHandlers {
	return &InternalHandlers{system: system}
}

// Routes registers the internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/counters/{counterID}:next", h.nextCounterValue)
}

type counterRequest struct {
	Step int64 `json:"step"`
}

type counterResponse struct {
	Counter string `json:"counter"`
	Value   int64  `json:"value"`
}

func (h *InternalHandlers) nextCounterValue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	counterID := strings.TrimSpace(chi.URLParam(r, "counterID"))

	var req counterRequest
	body, err := readLimitedBody(r, maxCounterBodySize)
	switch {
	case err == nil:
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
			return
		}
	case errors.Is(err, errEmptyBody):
		// Step defaults to one.
	default:
		writeBodyError(ctx, w, err)
		return
	}

	value, err := h.system.NextCounterValue(ctx, services.CounterCommand{
		CounterID: counterID,
		Step:      req.Step,
	})
	if err != nil {
		writeCounterError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, counterResponse{Counter: counterID, Value: value})
}

func writeCounterError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrSystemInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
