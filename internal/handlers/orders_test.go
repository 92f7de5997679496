package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/indo-cafe/api/internal/domain"
	"github.com/indo-cafe/api/internal/platform/auth"
	"github.com/indo-cafe/api/internal/services"
)

type stubOrderService struct {
	createFn  func(context.Context, services.CreateOrderCommand) (services.Order, error)
	getFn     func(context.Context, services.OrderReadCommand) (services.Order, error)
	numberFn  func(context.Context, services.OrderNumberReadCommand) (services.Order, error)
	listFn    func(context.Context, services.OrderListFilter) (domain.CursorPage[services.Order], error)
	statusFn  func(context.Context, services.OrderStatusCommand) (services.Order, error)
	cancelFn  func(context.Context, services.CancelOrderCommand) (services.Order, error)
	paymentFn func(context.Context, services.PaymentStatusCommand) (services.Order, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, cmd services.OrderReadCommand) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrderByNumber(ctx context.Context, cmd services.OrderNumberReadCommand) (services.Order, error) {
	if s.numberFn != nil {
		return s.numberFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.Order]{}, errors.New("not implemented")
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.OrderStatusCommand) (services.Order, error) {
	if s.statusFn != nil {
		return s.statusFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) UpdatePaymentStatus(ctx context.Context, cmd services.PaymentStatusCommand) (services.Order, error) {
	if s.paymentFn != nil {
		return s.paymentFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

type stubPaymentService struct {
	sessionFn func(context.Context, services.CreatePaymentSessionCommand) (services.PaymentSession, error)
	webhookFn func(context.Context, services.PaymentWebhookCommand) error
}

func (s *stubPaymentService) CreatePaymentSession(ctx context.Context, cmd services.CreatePaymentSessionCommand) (services.PaymentSession, error) {
	if s.sessionFn != nil {
		return s.sessionFn(ctx, cmd)
	}
	return services.PaymentSession{}, errors.New("not implemented")
}

func (s *stubPaymentService) HandleWebhookEvent(ctx context.Context, cmd services.PaymentWebhookCommand) error {
	if s.webhookFn != nil {
		return s.webhookFn(ctx, cmd)
	}
	return errors.New("not implemented")
}

func newOrderRouter(orders services.OrderService, payments services.PaymentService) chi.Router {
	router := chi.NewRouter()
	handlers := NewOrderHandlers(nil, orders, payments)
	router.Route("/orders", handlers.Routes)
	return router
}

func authenticatedRequest(method, target string, body []byte, uid string, roles ...string) *http.Request {
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	identity := &auth.Identity{UID: uid, Roles: roles}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func sampleOrder() services.Order {
	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	return services.Order{
		ID:            "ord_1",
		OrderNumber:   "IC-20250601-7G2K",
		UserID:        "user-1",
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusUnpaid,
		TotalPrice:    68000,
		Items: []domain.OrderLine{
			{MenuItemID: "menu_latte", Name: "Latte", Quantity: 2, UnitPrice: 28000, Subtotal: 56000},
			{MenuItemID: "menu_donut", Name: "Donut", Quantity: 1, UnitPrice: 12000, Subtotal: 12000},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestCreateOrderEndpoint(t *testing.T) {
	var received services.CreateOrderCommand
	orders := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
			received = cmd
			return sampleOrder(), nil
		},
	}
	router := newOrderRouter(orders, nil)

	body := []byte(`{"items":[{"menu_item_id":"menu_latte","quantity":2},{"menu_item_id":"menu_donut","quantity":1,"notes":"warm"}],"notes":"table 4"}`)
	req := authenticatedRequest(http.MethodPost, "/orders/", body, "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if received.UserID != "user-1" || len(received.Lines) != 2 || received.Notes != "table 4" {
		t.Fatalf("unexpected command %+v", received)
	}
	if received.Lines[1].Notes != "warm" {
		t.Fatalf("line notes must pass through, got %+v", received.Lines[1])
	}

	var resp struct {
		Order struct {
			ID          string `json:"id"`
			OrderNumber string `json:"order_number"`
			TotalPrice  int64  `json:"total_price"`
			Items       []struct {
				MenuItemID string `json:"menu_item_id"`
				Subtotal   int64  `json:"subtotal"`
			} `json:"items"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Order.OrderNumber != "IC-20250601-7G2K" || resp.Order.TotalPrice != 68000 {
		t.Fatalf("unexpected response %+v", resp.Order)
	}
	if len(resp.Order.Items) != 2 || resp.Order.Items[0].Subtotal != 56000 {
		t.Fatalf("unexpected items %+v", resp.Order.Items)
	}
}

func TestCreateOrderEndpointErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"stock", services.ErrOrderStock, http.StatusUnprocessableEntity, "stock_unavailable"},
		{"invalid input", services.ErrOrderInvalidInput, http.StatusBadRequest, "invalid_request"},
		{"conflict", services.ErrOrderConflict, http.StatusConflict, "order_conflict"},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			orders := &stubOrderService{
				createFn: func(context.Context, services.CreateOrderCommand) (services.Order, error) {
					return services.Order{}, tc.err
				},
			}
			router := newOrderRouter(orders, nil)

			body := []byte(`{"items":[{"menu_item_id":"menu_latte","quantity":1}]}`)
			req := authenticatedRequest(http.MethodPost, "/orders/", body, "user-1")
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d: %s", tc.wantCode, rr.Code, rr.Body.String())
			}
			if !strings.Contains(rr.Body.String(), tc.wantBody) {
				t.Fatalf("expected code %q in body %s", tc.wantBody, rr.Body.String())
			}
		})
	}
}

func TestCreateOrderEndpointRequiresAuth(t *testing.T) {
	router := newOrderRouter(&stubOrderService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/orders/", bytes.NewReader([]byte(`{}`)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestListOrdersEndpointBuildsFilter(t *testing.T) {
	var received services.OrderListFilter
	orders := &stubOrderService{
		listFn: func(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			received = filter
			return domain.CursorPage[services.Order]{
				Items:         []services.Order{sampleOrder()},
				NextPageToken: "tok",
			}, nil
		},
	}
	router := newOrderRouter(orders, nil)

	req := authenticatedRequest(http.MethodGet, "/orders/?status=pending,ready&payment_status=UNPAID&page_size=5&created_after=2025-06-01T00:00:00Z", nil, "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if received.UserID != "user-1" {
		t.Fatalf("list must be scoped to the caller, got %q", received.UserID)
	}
	if len(received.Status) != 2 || received.Status[0] != "pending" || received.Status[1] != "ready" {
		t.Fatalf("unexpected status filter %+v", received.Status)
	}
	if received.PaymentStatus != "unpaid" {
		t.Fatalf("unexpected payment status %q", received.PaymentStatus)
	}
	if received.Pagination.PageSize != 5 {
		t.Fatalf("unexpected page size %d", received.Pagination.PageSize)
	}
	if received.DateRange.From == nil || !received.DateRange.From.Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date range %+v", received.DateRange)
	}
	if !strings.Contains(rr.Body.String(), `"next_page_token":"tok"`) {
		t.Fatalf("expected page token in %s", rr.Body.String())
	}
}

func TestGetOrderEndpointHidesForeignOrders(t *testing.T) {
	orders := &stubOrderService{
		getFn: func(_ context.Context, cmd services.OrderReadCommand) (services.Order, error) {
			if cmd.RequestedBy != "user-1" {
				return services.Order{}, services.ErrOrderAccessDenied
			}
			return sampleOrder(), nil
		},
	}
	router := newOrderRouter(orders, nil)

	req := authenticatedRequest(http.MethodGet, "/orders/ord_1", nil, "user-2")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	// Access denied reads as 404 so order ids cannot be probed.
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestGetOrderByNumberEndpoint(t *testing.T) {
	orders := &stubOrderService{
		numberFn: func(_ context.Context, cmd services.OrderNumberReadCommand) (services.Order, error) {
			if cmd.OrderNumber != "IC-20250601-7G2K" {
				return services.Order{}, services.ErrOrderNotFound
			}
			return sampleOrder(), nil
		},
	}
	router := newOrderRouter(orders, nil)

	req := authenticatedRequest(http.MethodGet, "/orders/number/IC-20250601-7G2K", nil, "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestCancelOrderEndpoint(t *testing.T) {
	var received services.CancelOrderCommand
	orders := &stubOrderService{
		cancelFn: func(_ context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
			received = cmd
			order := sampleOrder()
			order.Status = domain.OrderStatusCancelled
			return order, nil
		},
	}
	router := newOrderRouter(orders, nil)

	req := authenticatedRequest(http.MethodPost, "/orders/ord_1:cancel", []byte(`{"reason":"changed my mind"}`), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if received.OrderID != "ord_1" || received.Reason != "changed my mind" || received.RequestedBy != "user-1" {
		t.Fatalf("unexpected command %+v", received)
	}
	if !strings.Contains(rr.Body.String(), `"status":"cancelled"`) {
		t.Fatalf("expected cancelled status in %s", rr.Body.String())
	}
}

func TestCancelOrderEndpointInvalidState(t *testing.T) {
	orders := &stubOrderService{
		cancelFn: func(context.Context, services.CancelOrderCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderInvalidState
		},
	}
	router := newOrderRouter(orders, nil)

	req := authenticatedRequest(http.MethodPost, "/orders/ord_1:cancel", nil, "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestCreatePaymentSessionEndpoint(t *testing.T) {
	payments := &stubPaymentService{
		sessionFn: func(_ context.Context, cmd services.CreatePaymentSessionCommand) (services.PaymentSession, error) {
			if cmd.OrderID != "ord_1" || cmd.UserID != "user-1" {
				t.Fatalf("unexpected command %+v", cmd)
			}
			return services.PaymentSession{
				SessionID:   "cs_test_1",
				RedirectURL: "https://checkout.stripe.com/c/pay/cs_test_1",
			}, nil
		},
	}
	router := newOrderRouter(&stubOrderService{}, payments)

	req := authenticatedRequest(http.MethodPost, "/orders/ord_1:pay", []byte(`{"success_url":"https://cafe.example/ok"}`), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "cs_test_1") {
		t.Fatalf("expected session id in %s", rr.Body.String())
	}
}

func TestCreatePaymentSessionEndpointWithoutPayments(t *testing.T) {
	router := newOrderRouter(&stubOrderService{}, nil)

	req := authenticatedRequest(http.MethodPost, "/orders/ord_1:pay", nil, "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "payments_unavailable") {
		t.Fatalf("expected payments_unavailable in %s", rr.Body.String())
	}
}
