package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/indo-cafe/api/internal/domain"
	pfirestore "github.com/indo-cafe/api/internal/platform/firestore"
	"github.com/indo-cafe/api/internal/repositories"
)

const cartCollection = "carts"

// CartRepository stores the single pending cart per user, keyed by user ID.
type CartRepository struct {
	carts *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	carts := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil)
	return &CartRepository{carts: carts}, nil
}

// Get returns the user's cart, or an empty cart when none is stored yet.
func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.carts == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart get: user id is required")
	}

	doc, err := r.carts.Get(ctx, uid)
	if err != nil {
		if isNotFoundErr(err) {
			return domain.Cart{UserID: uid}, nil
		}
		return domain.Cart{}, err
	}
	return doc.Data.toDomain(uid), nil
}

// Save upserts the cart document.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.carts == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(cart.UserID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart save: user id is required")
	}

	if _, err := r.carts.Set(ctx, uid, newCartDocument(cart)); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

// Clear removes every item from the user's cart. Clearing an absent cart is a
// no-op.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	if r == nil || r.carts == nil {
		return errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("cart clear: user id is required")
	}

	_, err := r.carts.Set(ctx, uid, cartDocument{UpdatedAt: time.Now().UTC()})
	return err
}

func isNotFoundErr(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return true
	}
	return status.Code(err) == codes.NotFound
}

// Helper structures ---------------------------------------------------------

type cartDocument struct {
	Items     []cartItemDocument `firestore:"items"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	MenuItemID string `firestore:"menuItemId"`
	Quantity   int    `firestore:"quantity"`
	Notes      string `firestore:"notes,omitempty"`
}

func newCartDocument(cart domain.Cart) cartDocument {
	items := make([]cartItemDocument, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, cartItemDocument{
			MenuItemID: item.MenuItemID,
			Quantity:   item.Quantity,
			Notes:      item.Notes,
		})
	}
	return cartDocument{Items: items, UpdatedAt: cart.UpdatedAt.UTC()}
}

func (d cartDocument) toDomain(userID string) domain.Cart {
	items := make([]domain.CartItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.CartItem{
			MenuItemID: item.MenuItemID,
			Quantity:   item.Quantity,
			Notes:      item.Notes,
		})
	}
	return domain.Cart{UserID: userID, Items: items, UpdatedAt: d.UpdatedAt}
}

var _ repositories.CartRepository = (*CartRepository)(nil)
