package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/indo-cafe/api/internal/domain"
	"github.com/indo-cafe/api/internal/services"
)

type stubCartService struct {
	getFn      func(context.Context, string) (services.Cart, error)
	upsertFn   func(context.Context, services.UpsertCartItemCommand) (services.Cart, error)
	removeFn   func(context.Context, services.RemoveCartItemCommand) (services.Cart, error)
	clearFn    func(context.Context, string) error
	checkoutFn func(context.Context, services.CheckoutCartCommand) (services.Order, error)
}

func (s *stubCartService) GetCart(ctx context.Context, userID string) (services.Cart, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) UpsertItem(ctx context.Context, cmd services.UpsertCartItemCommand) (services.Cart, error) {
	if s.upsertFn != nil {
		return s.upsertFn(ctx, cmd)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
	if s.removeFn != nil {
		return s.removeFn(ctx, cmd)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) Clear(ctx context.Context, userID string) error {
	if s.clearFn != nil {
		return s.clearFn(ctx, userID)
	}
	return errors.New("not implemented")
}

func (s *stubCartService) Checkout(ctx context.Context, cmd services.CheckoutCartCommand) (services.Order, error) {
	if s.checkoutFn != nil {
		return s.checkoutFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func newCartRouter(carts services.CartService) chi.Router {
	router := chi.NewRouter()
	handlers := NewCartHandlers(nil, carts)
	router.Route("/cart", handlers.Routes)
	return router
}

func TestGetCartEndpoint(t *testing.T) {
	carts := &stubCartService{
		getFn: func(_ context.Context, userID string) (services.Cart, error) {
			if userID != "user-1" {
				t.Fatalf("unexpected user %q", userID)
			}
			return services.Cart{
				UserID: userID,
				Items: []domain.CartItem{
					{MenuItemID: "menu_latte", Quantity: 2, Notes: "oat milk"},
				},
				UpdatedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
			}, nil
		},
	}
	router := newCartRouter(carts)

	req := authenticatedRequest(http.MethodGet, "/cart/", nil, "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	if !strings.Contains(body, `"menu_item_id":"menu_latte"`) || !strings.Contains(body, `"notes":"oat milk"`) {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestUpsertCartItemEndpoint(t *testing.T) {
	var received services.UpsertCartItemCommand
	carts := &stubCartService{
		upsertFn: func(_ context.Context, cmd services.UpsertCartItemCommand) (services.Cart, error) {
			received = cmd
			return services.Cart{
				UserID: cmd.UserID,
				Items:  []domain.CartItem{{MenuItemID: cmd.MenuItemID, Quantity: cmd.Quantity}},
			}, nil
		},
	}
	router := newCartRouter(carts)

	req := authenticatedRequest(http.MethodPut, "/cart/items", []byte(`{"menu_item_id":"menu_latte","quantity":3}`), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if received.UserID != "user-1" || received.MenuItemID != "menu_latte" || received.Quantity != 3 {
		t.Fatalf("unexpected command %+v", received)
	}
}

func TestUpsertCartItemEndpointUnavailable(t *testing.T) {
	carts := &stubCartService{
		upsertFn: func(context.Context, services.UpsertCartItemCommand) (services.Cart, error) {
			return services.Cart{}, services.ErrCartMenuItemUnavailable
		},
	}
	router := newCartRouter(carts)

	req := authenticatedRequest(http.MethodPut, "/cart/items", []byte(`{"menu_item_id":"menu_hidden","quantity":1}`), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "menu_item_unavailable") {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

func TestRemoveCartItemEndpoint(t *testing.T) {
	var received services.RemoveCartItemCommand
	carts := &stubCartService{
		removeFn: func(_ context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
			received = cmd
			return services.Cart{UserID: cmd.UserID}, nil
		},
	}
	router := newCartRouter(carts)

	req := authenticatedRequest(http.MethodDelete, "/cart/items/menu_latte", nil, "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if received.MenuItemID != "menu_latte" {
		t.Fatalf("unexpected command %+v", received)
	}
}

func TestClearCartEndpoint(t *testing.T) {
	cleared := false
	carts := &stubCartService{
		clearFn: func(_ context.Context, userID string) error {
			cleared = userID == "user-1"
			return nil
		},
	}
	router := newCartRouter(carts)

	req := authenticatedRequest(http.MethodDelete, "/cart/", nil, "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if !cleared {
		t.Fatal("expected clear call")
	}
}

func TestCheckoutEndpoint(t *testing.T) {
	carts := &stubCartService{
		checkoutFn: func(_ context.Context, cmd services.CheckoutCartCommand) (services.Order, error) {
			if cmd.UserID != "user-1" || cmd.Notes != "no straw" {
				t.Fatalf("unexpected command %+v", cmd)
			}
			return sampleOrder(), nil
		},
	}
	router := newCartRouter(carts)

	req := authenticatedRequest(http.MethodPost, "/cart/:checkout", []byte(`{"notes":"no straw"}`), "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "IC-20250601-7G2K") {
		t.Fatalf("expected order number in %s", rr.Body.String())
	}
}

func TestCheckoutEndpointEmptyCart(t *testing.T) {
	carts := &stubCartService{
		checkoutFn: func(context.Context, services.CheckoutCartCommand) (services.Order, error) {
			return services.Order{}, services.ErrCartEmpty
		},
	}
	router := newCartRouter(carts)

	req := authenticatedRequest(http.MethodPost, "/cart/:checkout", nil, "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "cart_empty") {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}

func TestCheckoutEndpointStockFailure(t *testing.T) {
	carts := &stubCartService{
		checkoutFn: func(context.Context, services.CheckoutCartCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderStock
		},
	}
	router := newCartRouter(carts)

	req := authenticatedRequest(http.MethodPost, "/cart/:checkout", nil, "user-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "stock_unavailable") {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
}
