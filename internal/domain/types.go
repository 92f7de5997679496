package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage wraps a page of results along with the continuation token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// MenuCategory groups menu items for browsing and filtering.
type MenuCategory string

const (
	// MenuCategoryCoffee covers espresso-based and brewed coffee drinks.
	MenuCategoryCoffee MenuCategory = "coffee"
	// MenuCategoryNonCoffee covers teas, chocolates, and other drinks.
	MenuCategoryNonCoffee MenuCategory = "non_coffee"
	// MenuCategoryFood covers meals and heavier dishes.
	MenuCategoryFood MenuCategory = "food"
	// MenuCategorySnack covers light bites and pastries.
	MenuCategorySnack MenuCategory = "snack"
)

// MenuItem is a catalog entry customers can order. Price is stored in IDR
// minor units. Stock is the number of units still sellable and never drops
// below zero.
type MenuItem struct {
	ID          string
	Name        string
	Slug        string
	Description string
	Category    MenuCategory
	Price       int64
	ImageURL    string
	IsAvailable bool
	Stock       int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// InStock reports whether the item can currently be reserved.
func (m MenuItem) InStock() bool {
	return m.IsAvailable && m.Stock > 0
}

// OrderStatus tracks the fulfilment lifecycle of an order.
type OrderStatus string

const (
	// OrderStatusPending is the initial status for every placed order.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusProcessing means the kitchen or barista accepted the order.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusReady means the order is prepared and awaiting pickup.
	OrderStatusReady OrderStatus = "ready"
	// OrderStatusCompleted is terminal; the order was handed to the customer.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled is terminal; stock has been restored.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus tracks money movement independently of fulfilment status.
type PaymentStatus string

const (
	// PaymentStatusUnpaid is the initial payment state.
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	// PaymentStatusPaid means the payment settled.
	PaymentStatusPaid PaymentStatus = "paid"
	// PaymentStatusRefunded means a settled payment was returned.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// ValidPaymentStatus reports whether the value is one of the recognised
// payment states.
func ValidPaymentStatus(value PaymentStatus) bool {
	switch value {
	case PaymentStatusUnpaid, PaymentStatusPaid, PaymentStatusRefunded:
		return true
	}
	return false
}

// Order is the aggregate root for a placed café order. Items are embedded in
// insertion order and never mutated after creation; cancellation restores
// stock but leaves the lines untouched.
type Order struct {
	ID            string
	OrderNumber   string
	UserID        string
	Status        OrderStatus
	PaymentStatus PaymentStatus
	TotalPrice    int64
	Notes         string
	Items         []OrderLine
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CanceledAt    *time.Time
	CompletedAt   *time.Time
	DeletedAt     *time.Time
}

// OrderLine is a single priced line of an order. UnitPrice is the catalog
// price snapshot taken at reservation time and is immutable afterwards.
type OrderLine struct {
	MenuItemID string
	Name       string
	Quantity   int
	UnitPrice  int64
	Subtotal   int64
	Notes      string
}

// Cart holds a user's pending selection before checkout. One cart per user.
type Cart struct {
	UserID    string
	Items     []CartItem
	UpdatedAt time.Time
}

// CartItem references a menu item plus the desired quantity.
type CartItem struct {
	MenuItemID string
	Quantity   int
	Notes      string
}

// UserProfile is the persisted profile for an authenticated principal. Role
// is mirrored from the identity claim for display purposes only; authorization
// decisions always use the verified claim.
type UserProfile struct {
	ID          string
	DisplayName string
	Email       string
	Role        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
