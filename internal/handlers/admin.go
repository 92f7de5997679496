package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/indo-cafe/api/internal/domain"
	"github.com/indo-cafe/api/internal/platform/auth"
	"github.com/indo-cafe/api/internal/platform/httpx"
	"github.com/indo-cafe/api/internal/services"
)

const adminRole = "admin"

type upsertMenuItemRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Price       int64  `json:"price"`
	ImageURL    string `json:"image_url"`
	IsAvailable *bool  `json:"is_available"`
	Stock       *int   `json:"stock"`
}

type adjustStockRequest struct {
	Delta int `json:"delta"`
}

type imageUploadRequest struct {
	ContentType string `json:"content_type"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

type updatePaymentStatusRequest struct {
	PaymentStatus string `json:"payment_status"`
	Reference     string `json:"reference"`
}

// AdminHandlers exposes catalog and order management endpoints for staff.
type AdminHandlers struct {
	authn  *auth.Authenticator
	menu   services.MenuService
	orders services.OrderService
}

// NewAdminHandlers constructs a new AdminHandlers instance.
func NewAdminHandlers(authn *auth.Authenticator, menu services.MenuService, orders services.OrderService) *AdminHandlers {
	return &AdminHandlers{
		authn:  authn,
		menu:   menu,
		orders: orders,
	}
}

// Routes registers the /admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(adminRole))
	}

	r.Route("/menu", func(menu chi.Router) {
		menu.Get("/", h.listMenu)
		menu.Post("/", h.createMenuItem)
		menu.Get("/{menuItemID}", h.getMenuItem)
		menu.Patch("/{menuItemID}", h.updateMenuItem)
		menu.Delete("/{menuItemID}", h.deleteMenuItem)
		menu.Post("/{menuItemID}:adjust-stock", h.adjustStock)
		menu.Post("/{menuItemID}:image-upload", h.issueImageUpload)
	})

	r.Route("/orders", func(orders chi.Router) {
		orders.Get("/", h.listOrders)
		orders.Get("/{orderID}", h.getOrder)
		orders.Post("/{orderID}:status", h.updateOrderStatus)
		orders.Post("/{orderID}:payment-status", h.updatePaymentStatus)
		orders.Post("/{orderID}:cancel", h.cancelOrder)
	})
}

// Menu management ------------------------------------------------------------

func (h *AdminHandlers) listMenu(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	filter := services.MenuListFilter{
		Search:         strings.TrimSpace(query.Get("q")),
		IncludeDeleted: query.Get("include_deleted") == "true",
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

func (h *AdminHandlers) createMenuItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	req, ok := decodeMenuItemRequest(w, r)
	if !ok {
		return
	}

	item, err := h.menu.CreateItem(ctx, services.UpsertMenuItemCommand{
		Name:        req.Name,
		Description: req.Description,
		Category:    domain.MenuCategory(strings.ToLower(strings.TrimSpace(req.Category))),
		Price:       req.Price,
		ImageURL:    req.ImageURL,
		IsAvailable: req.IsAvailable,
		Stock:       req.Stock,
		ActorID:     identity.UID,
	})
	if err != nil {
		writeMenuError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, menuItemResponse{Item: buildMenuItemPayload(item)})
}

func (h *AdminHandlers) getMenuItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	item, err := h.menu.GetItem(ctx, strings.TrimSpace(chi.URLParam(r, "menuItemID")))
	if err != nil {
		writeMenuError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, menuItemResponse{Item: buildMenuItemPayload(item)})
}

func (h *AdminHandlers) updateMenuItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	req, ok := decodeMenuItemRequest(w, r)
	if !ok {
		return
	}

	item, err := h.menu.UpdateItem(ctx, services.UpsertMenuItemCommand{
		MenuItemID:  strings.TrimSpace(chi.URLParam(r, "menuItemID")),
		Name:        req.Name,
		Description: req.Description,
		Category:    domain.MenuCategory(strings.ToLower(strings.TrimSpace(req.Category))),
		Price:       req.Price,
		ImageURL:    req.ImageURL,
		IsAvailable: req.IsAvailable,
		Stock:       req.Stock,
		ActorID:     identity.UID,
	})
	if err != nil {
		writeMenuError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, menuItemResponse{Item: buildMenuItemPayload(item)})
}

func (h *AdminHandlers) deleteMenuItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	err := h.menu.DeleteItem(ctx, services.DeleteMenuItemCommand{
		MenuItemID: strings.TrimSpace(chi.URLParam(r, "menuItemID")),
		ActorID:    identity.UID,
	})
	if err != nil {
		writeMenuError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req adjustStockRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	item, err := h.menu.AdjustStock(ctx, services.AdjustStockCommand{
		MenuItemID: strings.TrimSpace(chi.URLParam(r, "menuItemID")),
		Delta:      req.Delta,
		ActorID:    identity.UID,
	})
	if err != nil {
		writeMenuError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, menuItemResponse{Item: buildMenuItemPayload(item)})
}

func (h *AdminHandlers) issueImageUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req imageUploadRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	upload, err := h.menu.IssueImageUploadURL(ctx, services.MenuImageUploadCommand{
		MenuItemID:  strings.TrimSpace(chi.URLParam(r, "menuItemID")),
		ContentType: req.ContentType,
		ActorID:     identity.UID,
	})
	if err != nil {
		writeMenuError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, imageUploadResponse{
		URL:       upload.URL,
		ObjectKey: upload.ObjectKey,
		ExpiresAt: formatTime(upload.ExpiresAt),
		Headers:   upload.Headers,
	})
}

// Order management -----------------------------------------------------------

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := buildOrderListFilter(r, strings.TrimSpace(r.URL.Query().Get("user_id")))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderListResponse(page))
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, err := h.orders.GetOrder(ctx, services.OrderReadCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		Admin:   true,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req updateOrderStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.OrderStatusCommand{
		OrderID:      strings.TrimSpace(chi.URLParam(r, "orderID")),
		TargetStatus: domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		ActorID:      identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) updatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req updatePaymentStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdatePaymentStatus(ctx, services.PaymentStatusCommand{
		OrderID:      strings.TrimSpace(chi.URLParam(r, "orderID")),
		TargetStatus: domain.PaymentStatus(strings.ToLower(strings.TrimSpace(req.PaymentStatus))),
		ActorID:      identity.UID,
		Reference:    req.Reference,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req cancelOrderRequest
	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID:     strings.TrimSpace(chi.URLParam(r, "orderID")),
		RequestedBy: identity.UID,
		Admin:       true,
		Reason:      req.Reason,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

// Request plumbing -----------------------------------------------------------

type imageUploadResponse struct {
	URL       string            `json:"url"`
	ObjectKey string            `json:"object_key"`
	ExpiresAt string            `json:"expires_at,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
}

func decodeMenuItemRequest(w http.ResponseWriter, r *http.Request) (upsertMenuItemRequest, bool) {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return upsertMenuItemRequest{}, false
	}
	var req upsertMenuItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return upsertMenuItemRequest{}, false
	}
	return req, true
}
