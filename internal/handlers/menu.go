package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/indo-cafe/api/internal/domain"
	"github.com/indo-cafe/api/internal/platform/httpx"
	"github.com/indo-cafe/api/internal/services"
)

const (
	defaultMenuPageSize = 20
	maxMenuPageSize     = 100
)

// MenuHandlers exposes the public catalog browsing endpoints.
type MenuHandlers struct {
	menu services.MenuService
}

// NewMenuHandlers constructs a new MenuHandlers instance.
func NewMenuHandlers(menu services.MenuService) *MenuHandlers {
	return &MenuHandlers{menu: menu}
}

// Routes registers the public /menu endpoints.
func (h *MenuHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/menu", h.listMenu)
	r.Get("/menu/{slug}", h.getMenuItem)
}

func (h *MenuHandlers) listMenu(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	filter := services.MenuListFilter{
		AvailableOnly: true,
		Search:        strings.TrimSpace(query.Get("q")),
	}
	if raw := strings.ToLower(strings.TrimSpace(query.Get("category"))); raw != "" {
		category := domain.MenuCategory(raw)
		filter.Category = &category
	}

	pagination, err := parsePagination(query, defaultMenuPageSize, maxMenuPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	filter.Pagination = pagination

	page, err := h.menu.ListItems(ctx, filter)
	if err != nil {
		writeMenuError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildMenuListResponse(page))
}

func (h *MenuHandlers) getMenuItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slug := strings.TrimSpace(chi.URLParam(r, "slug"))

	item, err := h.menu.GetItemBySlug(ctx, slug)
	if err != nil {
		writeMenuError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, menuItemResponse{Item: buildMenuItemPayload(item)})
}

// Response payloads ----------------------------------------------------------

type menuListResponse struct {
	Items         []menuItemPayload `json:"items"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type menuItemResponse struct {
	Item menuItemPayload `json:"item"`
}

type menuItemPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category"`
	Price       int64  `json:"price"`
	ImageURL    string `json:"image_url,omitempty"`
	IsAvailable bool   `json:"is_available"`
	Stock       int    `json:"stock"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

func buildMenuListResponse(page domain.CursorPage[services.MenuItem]) menuListResponse {
	items := make([]menuItemPayload, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, buildMenuItemPayload(item))
	}
	return menuListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	}
}

func buildMenuItemPayload(item services.MenuItem) menuItemPayload {
	return menuItemPayload{
		ID:          item.ID,
		Name:        item.Name,
		Slug:        item.Slug,
		Description: item.Description,
		Category:    string(item.Category),
		Price:       item.Price,
		ImageURL:    item.ImageURL,
		IsAvailable: item.IsAvailable,
		Stock:       item.Stock,
		CreatedAt:   formatTime(item.CreatedAt),
		UpdatedAt:   formatTime(item.UpdatedAt),
	}
}

func writeMenuError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrMenuInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrMenuNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("menu_item_not_found", "menu item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrMenuConflict):
		httpx.WriteError(ctx, w, httpx.NewError("menu_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrMenuUploadsDisabled):
		httpx.WriteError(ctx, w, httpx.NewError("uploads_unavailable", "image uploads not configured", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
