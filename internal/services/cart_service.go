package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/indo-cafe/api/internal/domain"
	"github.com/indo-cafe/api/internal/repositories"
)

const maxCartLineQuantity = 50

var (
	// ErrCartInvalidInput signals the caller provided invalid data.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartEmpty indicates checkout was attempted on an empty cart.
	ErrCartEmpty = errors.New("cart: empty")
	// ErrCartItemNotFound indicates the referenced cart line does not exist.
	ErrCartItemNotFound = errors.New("cart: item not found")
	// ErrCartMenuItemUnavailable indicates the referenced menu item cannot be ordered.
	ErrCartMenuItemUnavailable = errors.New("cart: menu item unavailable")
)

// CartServiceDeps bundles collaborators required to construct the cart service.
type CartServiceDeps struct {
	Carts  repositories.CartRepository
	Menu   repositories.MenuRepository
	Orders OrderService
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts  repositories.CartRepository
	menu   repositories.MenuRepository
	orders OrderService
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewCartService wires dependencies into a concrete CartService implementation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Menu == nil {
		return nil, errors.New("cart service: menu repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("cart service: order service is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		carts:  deps.Carts,
		menu:   deps.Menu,
		orders: deps.Orders,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *cartService) GetCart(ctx context.Context, userID string) (Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	cart, err := s.carts.Get(ctx, uid)
	if err != nil {
		return Cart{}, err
	}
	return cart, nil
}

// UpsertItem sets the quantity for a menu item in the cart. The menu item is
// validated against the live catalog, but the authoritative stock check
// happens at checkout.
func (s *cartService) UpsertItem(ctx context.Context, cmd UpsertCartItemCommand) (Cart, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	itemID := strings.TrimSpace(cmd.MenuItemID)
	if itemID == "" {
		return Cart{}, fmt.Errorf("%w: menu item id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 || cmd.Quantity > maxCartLineQuantity {
		return Cart{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrCartInvalidInput, maxCartLineQuantity)
	}

	item, err := s.menu.FindByID(ctx, itemID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Cart{}, fmt.Errorf("%w: %s", ErrCartMenuItemUnavailable, itemID)
		}
		return Cart{}, err
	}
	if item.DeletedAt != nil || !item.InStock() {
		return Cart{}, fmt.Errorf("%w: %s", ErrCartMenuItemUnavailable, itemID)
	}

	cart, err := s.carts.Get(ctx, uid)
	if err != nil {
		return Cart{}, err
	}

	line := domain.CartItem{
		MenuItemID: itemID,
		Quantity:   cmd.Quantity,
		Notes:      sanitizeText(cmd.Notes),
	}
	pos := slices.IndexFunc(cart.Items, func(it domain.CartItem) bool {
		return it.MenuItemID == itemID
	})
	if pos >= 0 {
		cart.Items[pos] = line
	} else {
		cart.Items = append(cart.Items, line)
	}
	cart.UserID = uid
	cart.UpdatedAt = s.clock()

	return s.carts.Save(ctx, cart)
}

func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	itemID := strings.TrimSpace(cmd.MenuItemID)
	if itemID == "" {
		return Cart{}, fmt.Errorf("%w: menu item id is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.Get(ctx, uid)
	if err != nil {
		return Cart{}, err
	}

	pos := slices.IndexFunc(cart.Items, func(it domain.CartItem) bool {
		return it.MenuItemID == itemID
	})
	if pos < 0 {
		return Cart{}, fmt.Errorf("%w: %s", ErrCartItemNotFound, itemID)
	}
	cart.Items = slices.Delete(cart.Items, pos, pos+1)
	cart.UpdatedAt = s.clock()

	return s.carts.Save(ctx, cart)
}

func (s *cartService) Clear(ctx context.Context, userID string) error {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	return s.carts.Clear(ctx, uid)
}

// Checkout places an order from the cart contents and clears the cart on
// success. Stock validation, pricing, and the number claim all happen inside
// the order transaction.
func (s *cartService) Checkout(ctx context.Context, cmd CheckoutCartCommand) (Order, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.Get(ctx, uid)
	if err != nil {
		return Order{}, err
	}
	if len(cart.Items) == 0 {
		return Order{}, ErrCartEmpty
	}

	lines := make([]OrderLineInput, 0, len(cart.Items))
	for _, item := range cart.Items {
		lines = append(lines, OrderLineInput{
			MenuItemID: item.MenuItemID,
			Quantity:   item.Quantity,
			Notes:      item.Notes,
		})
	}

	order, err := s.orders.CreateOrder(ctx, CreateOrderCommand{
		UserID: uid,
		Lines:  lines,
		Notes:  cmd.Notes,
	})
	if err != nil {
		return Order{}, err
	}

	if err := s.carts.Clear(ctx, uid); err != nil {
		s.logger(ctx, "cart.clear.failed", map[string]any{
			"user":  uid,
			"order": order.ID,
			"error": err.Error(),
		})
	}

	return order, nil
}
