package repositories

import (
	"context"
	"time"

	domain "github.com/indo-cafe/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Menu() MenuRepository
	Orders() OrderRepository
	Carts() CartRepository
	Users() UserRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations into one atomic transactional
// boundary. Every repository call made with the context passed to fn joins
// the same transaction; fn returning an error rolls back all of them.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// StockLine names a menu item and the quantity to reserve or restore.
type StockLine struct {
	MenuItemID string
	Quantity   int
}

// MenuRepository persists catalog entries and owns the per-item stock counter.
//
// ReserveStock and RestoreStock participate in the ambient unit-of-work
// transaction: ReserveStock re-reads every referenced item, validates
// availability against live stock, and writes the decremented counts, so
// concurrent reservations against the same item serialise at the storage
// layer and can never drive stock negative. RestoreStock unconditionally
// increments. Both return the updated items keyed by ID.
type MenuRepository interface {
	Insert(ctx context.Context, item domain.MenuItem) error
	Update(ctx context.Context, item domain.MenuItem) error
	SoftDelete(ctx context.Context, menuItemID string, deletedAt time.Time) error
	FindByID(ctx context.Context, menuItemID string) (domain.MenuItem, error)
	FindBySlug(ctx context.Context, slug string) (domain.MenuItem, error)
	List(ctx context.Context, filter MenuListFilter) (domain.CursorPage[domain.MenuItem], error)

	ReserveStock(ctx context.Context, lines []StockLine, now time.Time) (map[string]domain.MenuItem, error)
	RestoreStock(ctx context.Context, lines []StockLine, now time.Time) (map[string]domain.MenuItem, error)
	AdjustStock(ctx context.Context, menuItemID string, delta int, now time.Time) (domain.MenuItem, error)
}

// OrderRepository persists order aggregates and their unique number claims.
type OrderRepository interface {
	// Insert stores the order and claims its order number in the same
	// transaction. A duplicate number surfaces as a conflict RepositoryError.
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// CartRepository owns the single pending cart per user.
type CartRepository interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	Clear(ctx context.Context, userID string) error
}

// UserRepository stores user profiles keyed by the authenticated principal ID.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.UserProfile, error)
	Upsert(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

// MenuListFilter controls catalog listings. Search matches against the
// normalised item name.
type MenuListFilter struct {
	Category       *domain.MenuCategory
	AvailableOnly  bool
	Search         string
	IncludeDeleted bool
	Pagination     domain.Pagination
}

// OrderListFilter controls order listings for users and admins.
type OrderListFilter struct {
	UserID        string
	Status        []string
	PaymentStatus string
	DateRange     domain.RangeQuery[time.Time]
	Pagination    domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
