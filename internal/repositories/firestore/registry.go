package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/indo-cafe/api/internal/platform/firestore"
	"github.com/indo-cafe/api/internal/repositories"
)

// Registry wires every Firestore repository to one shared provider and
// implements the unit of work over native transactions.
type Registry struct {
	provider *pfirestore.Provider

	menu     *MenuRepository
	orders   *OrderRepository
	carts    *CartRepository
	users    *UserRepository
	counters *CounterRepository
	health   repositories.HealthRepository
}

// NewRegistry builds the repository registry on top of the provider.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	menu, err := NewMenuRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider: provider,
		menu:     menu,
		orders:   orders,
		carts:    carts,
		users:    users,
		counters: counters,
		health:   health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// Menu returns the catalog repository.
func (r *Registry) Menu() repositories.MenuRepository { return r.menu }

// Orders returns the order repository.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// Carts returns the cart repository.
func (r *Registry) Carts() repositories.CartRepository { return r.carts }

// Users returns the user profile repository.
func (r *Registry) Users() repositories.UserRepository { return r.users }

// Counters returns the sequence counter repository.
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }

// Health returns the dependency health repository.
func (r *Registry) Health() repositories.HealthRepository { return r.health }

// RunInTx executes fn inside one Firestore transaction. The transaction is
// stored on the context so repository calls made within fn join it, and
// Firestore retries fn on contention, so fn must be idempotent.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	if fn == nil {
		return errors.New("registry: transaction function is nil")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(pfirestore.WithTransaction(ctx, tx))
	})
}

var _ repositories.Registry = (*Registry)(nil)
