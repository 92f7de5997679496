package services

import (
	"context"
	"time"

	domain "github.com/indo-cafe/api/internal/domain"
	"github.com/indo-cafe/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	SortOrder          = domain.SortOrder
	MenuCategory       = domain.MenuCategory
	MenuItem           = domain.MenuItem
	Order              = domain.Order
	OrderLine          = domain.OrderLine
	OrderStatus        = domain.OrderStatus
	PaymentStatus      = domain.PaymentStatus
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	UserProfile        = domain.UserProfile
	SystemHealthReport = domain.SystemHealthReport
)

// MenuService manages the catalog and its stock levels for public and admin surfaces.
type MenuService interface {
	CreateItem(ctx context.Context, cmd UpsertMenuItemCommand) (MenuItem, error)
	UpdateItem(ctx context.Context, cmd UpsertMenuItemCommand) (MenuItem, error)
	DeleteItem(ctx context.Context, cmd DeleteMenuItemCommand) error
	GetItem(ctx context.Context, menuItemID string) (MenuItem, error)
	GetItemBySlug(ctx context.Context, slug string) (MenuItem, error)
	ListItems(ctx context.Context, filter MenuListFilter) (domain.CursorPage[MenuItem], error)
	AdjustStock(ctx context.Context, cmd AdjustStockCommand) (MenuItem, error)
	IssueImageUploadURL(ctx context.Context, cmd MenuImageUploadCommand) (SignedUploadResponse, error)
}

// CartService manages the single pending cart per user and turns it into an order.
type CartService interface {
	GetCart(ctx context.Context, userID string) (Cart, error)
	UpsertItem(ctx context.Context, cmd UpsertCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	Clear(ctx context.Context, userID string) error
	Checkout(ctx context.Context, cmd CheckoutCartCommand) (Order, error)
}

// OrderService orchestrates order placement, lifecycle transitions, and reads.
//
// CreateOrder is all or nothing: stock reservation, pricing snapshot, order
// number claim, and the order insert commit in one transaction or none of
// them do.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, cmd OrderReadCommand) (Order, error)
	GetOrderByNumber(ctx context.Context, cmd OrderNumberReadCommand) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	UpdateStatus(ctx context.Context, cmd OrderStatusCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	UpdatePaymentStatus(ctx context.Context, cmd PaymentStatusCommand) (Order, error)
}

// PaymentService bridges orders to the PSP and ingests its webhooks.
type PaymentService interface {
	CreatePaymentSession(ctx context.Context, cmd CreatePaymentSessionCommand) (PaymentSession, error)
	HandleWebhookEvent(ctx context.Context, cmd PaymentWebhookCommand) error
}

// UserService manages profiles synced from the identity provider.
type UserService interface {
	GetProfile(ctx context.Context, userID string) (UserProfile, error)
	SyncProfile(ctx context.Context, cmd SyncProfileCommand) (UserProfile, error)
}

// SystemService aggregates utility endpoints (health checks, counters).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	NextCounterValue(ctx context.Context, cmd CounterCommand) (int64, error)
}

// OrderEventPublisher accepts order lifecycle notifications for downstream processing.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// StockEventPublisher accepts stock change notifications for downstream processing.
type StockEventPublisher interface {
	PublishStockEvent(ctx context.Context, event StockEvent) error
}

// DomainError represents a structured error with stable codes for transport across layers.
type DomainError interface {
	error
	Code() string
	SafeMessage() string
}

// Event payloads -------------------------------------------------------------

// OrderEvent describes an order lifecycle change.
type OrderEvent struct {
	Type          string         `json:"type"`
	OrderID       string         `json:"order_id"`
	OrderNumber   string         `json:"order_number"`
	UserID        string         `json:"user_id"`
	Status        OrderStatus    `json:"status"`
	PaymentStatus PaymentStatus  `json:"payment_status"`
	TotalPrice    int64          `json:"total_price"`
	ActorID       string         `json:"actor_id,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// StockEvent describes a stock level change for one menu item.
type StockEvent struct {
	Type       string    `json:"type"`
	MenuItemID string    `json:"menu_item_id"`
	Delta      int       `json:"delta"`
	Remaining  int       `json:"remaining"`
	OrderID    string    `json:"order_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Command and DTO definitions ------------------------------------------------

type MenuListFilter = repositories.MenuListFilter

type OrderListFilter = repositories.OrderListFilter

type UpsertMenuItemCommand struct {
	MenuItemID  string
	Name        string
	Description string
	Category    MenuCategory
	Price       int64
	ImageURL    string
	IsAvailable *bool
	Stock       *int
	ActorID     string
}

type DeleteMenuItemCommand struct {
	MenuItemID string
	ActorID    string
}

type AdjustStockCommand struct {
	MenuItemID string
	Delta      int
	ActorID    string
}

type MenuImageUploadCommand struct {
	MenuItemID  string
	ContentType string
	ActorID     string
}

// SignedUploadResponse carries a time-limited URL for direct image uploads.
type SignedUploadResponse struct {
	URL       string
	ObjectKey string
	ExpiresAt time.Time
	Headers   map[string]string
}

type UpsertCartItemCommand struct {
	UserID     string
	MenuItemID string
	Quantity   int
	Notes      string
}

type RemoveCartItemCommand struct {
	UserID     string
	MenuItemID string
}

type CheckoutCartCommand struct {
	UserID string
	Notes  string
}

// OrderLineInput names a menu item and quantity requested by the buyer.
type OrderLineInput struct {
	MenuItemID string
	Quantity   int
	Notes      string
}

type CreateOrderCommand struct {
	UserID string
	Lines  []OrderLineInput
	Notes  string
}

// OrderReadCommand scopes single-order reads to the requesting principal.
// Admin readers set Admin and skip the ownership check.
type OrderReadCommand struct {
	OrderID     string
	RequestedBy string
	Admin       bool
}

type OrderNumberReadCommand struct {
	OrderNumber string
	RequestedBy string
	Admin       bool
}

type OrderStatusCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	ActorID      string
}

type CancelOrderCommand struct {
	OrderID     string
	RequestedBy string
	Admin       bool
	Reason      string
}

type PaymentStatusCommand struct {
	OrderID      string
	TargetStatus PaymentStatus
	ActorID      string
	Reference    string
}

type CreatePaymentSessionCommand struct {
	OrderID    string
	UserID     string
	SuccessURL string
	CancelURL  string
}

// PaymentSession points the client at the PSP's hosted payment page.
type PaymentSession struct {
	SessionID   string
	RedirectURL string
	ExpiresAt   time.Time
}

type PaymentWebhookCommand struct {
	Provider  string
	EventID   string
	EventType string
	Payload   []byte
	Signature string
}

type SyncProfileCommand struct {
	UserID      string
	DisplayName string
	Email       string
	Role        string
}

type CounterCommand struct {
	CounterID string
	Step      int64
}
