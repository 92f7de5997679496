package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/indo-cafe/api/internal/domain"
	pfirestore "github.com/indo-cafe/api/internal/platform/firestore"
	"github.com/indo-cafe/api/internal/platform/pagination"
	"github.com/indo-cafe/api/internal/repositories"
)

const (
	orderCollection       = "orders"
	orderNumberCollection = "orderNumbers"
)

// OrderRepository persists order aggregates. Order numbers are kept unique by
// a claim document keyed by the number itself, created in the same
// transaction as the order insert.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	orders := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil)
	return &OrderRepository{provider: provider, orders: orders}, nil
}

// Insert stores the order and claims its number atomically. A number already
// claimed by another order surfaces as a conflict so the caller can retry
// with a fresh number.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if err := validateOrderForWrite(order); err != nil {
		return err
	}

	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		return pfirestore.WrapError("order.insert", r.insertTx(ctx, tx, order))
	}
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return r.insertTx(ctx, tx, order)
	})
	return pfirestore.WrapError("order.insert", err)
}

func (r *OrderRepository) insertTx(ctx context.Context, tx *firestore.Transaction, order domain.Order) error {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	orderRef := client.Collection(orderCollection).Doc(order.ID)
	claimRef := client.Collection(orderNumberCollection).Doc(order.OrderNumber)

	if err := tx.Create(claimRef, orderNumberClaim{
		OrderID:   order.ID,
		ClaimedAt: order.CreatedAt.UTC(),
	}); err != nil {
		return err
	}
	return tx.Create(orderRef, newOrderDocument(order))
}

// Update replaces the stored order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	if err := validateOrderForWrite(order); err != nil {
		return err
	}

	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		ref, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		return pfirestore.WrapError("order.update", tx.Set(ref, newOrderDocument(order)))
	}

	_, err := r.orders.Set(ctx, order.ID, newOrderDocument(order))
	return err
}

// FindByID loads a single order, joining the ambient transaction when present.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order find: order id is required")
	}

	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		ref, err := r.orders.DocumentRef(ctx, id)
		if err != nil {
			return domain.Order{}, err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return domain.Order{}, pfirestore.WrapError("order.find", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Order{}, fmt.Errorf("decode order %s: %w", id, err)
		}
		return doc.toDomain(id), nil
	}

	doc, err := r.orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByNumber resolves the claim document and loads the referenced order.
func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	number := strings.TrimSpace(orderNumber)
	if number == "" {
		return domain.Order{}, errors.New("order find: order number is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("order.findByNumber", err)
	}
	snap, err := client.Collection(orderNumberCollection).Doc(number).Get(ctx)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("order.findByNumber", err)
	}
	var claim orderNumberClaim
	if err := snap.DataTo(&claim); err != nil {
		return domain.Order{}, fmt.Errorf("decode order number claim %s: %w", number, err)
	}
	if strings.TrimSpace(claim.OrderID) == "" {
		return domain.Order{}, pfirestore.WrapError("order.findByNumber", status.Error(codes.NotFound, fmt.Sprintf("order number %s has no order", number)))
	}
	return r.FindByID(ctx, claim.OrderID)
}

// List returns a page of orders ordered by creation time, newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("order.list", err)
	}

	query := client.Collection(orderCollection).Query
	if uid := strings.TrimSpace(filter.UserID); uid != "" {
		query = query.Where("userId", "==", uid)
	}
	if len(filter.Status) == 1 {
		query = query.Where("status", "==", filter.Status[0])
	} else if len(filter.Status) > 1 {
		query = query.Where("status", "in", filter.Status)
	}
	if ps := strings.TrimSpace(filter.PaymentStatus); ps != "" {
		query = query.Where("paymentStatus", "==", ps)
	}
	if filter.DateRange.From != nil {
		query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("createdAt", "<=", filter.DateRange.To.UTC())
	}
	query = query.OrderBy("createdAt", firestore.Desc).Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		cursor, err := pagination.DecodeToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("order.list", err)
		}
		createdAt, err := orderCursorTime(cursor)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("order.list", err)
		}
		query = query.StartAfter(createdAt)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("order.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(orders) > pageSize
	if hasMore {
		orders = orders[:pageSize]
	}
	var nextToken string
	if hasMore && len(orders) > 0 {
		encoded, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{orders[len(orders)-1].CreatedAt.UTC().Format(time.RFC3339Nano)},
		})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("order.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Order]{
		Items:         orders,
		NextPageToken: nextToken,
	}, nil
}

func validateOrderForWrite(order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order write: order id is required")
	}
	if strings.TrimSpace(order.OrderNumber) == "" {
		return errors.New("order write: order number is required")
	}
	if len(order.Items) == 0 {
		return errors.New("order write: at least one line is required")
	}
	return nil
}

// Helper structures ---------------------------------------------------------

type orderNumberClaim struct {
	OrderID   string    `firestore:"orderId"`
	ClaimedAt time.Time `firestore:"claimedAt"`
}

type orderDocument struct {
	OrderNumber   string              `firestore:"orderNumber"`
	UserID        string              `firestore:"userId"`
	Status        string              `firestore:"status"`
	PaymentStatus string              `firestore:"paymentStatus"`
	TotalPrice    int64               `firestore:"totalPrice"`
	Notes         string              `firestore:"notes,omitempty"`
	Items         []orderLineDocument `firestore:"items"`
	CreatedAt     time.Time           `firestore:"createdAt"`
	UpdatedAt     time.Time           `firestore:"updatedAt"`
	CanceledAt    *time.Time          `firestore:"canceledAt,omitempty"`
	CompletedAt   *time.Time          `firestore:"completedAt,omitempty"`
	DeletedAt     *time.Time          `firestore:"deletedAt,omitempty"`
}

type orderLineDocument struct {
	MenuItemID string `firestore:"menuItemId"`
	Name       string `firestore:"name"`
	Quantity   int    `firestore:"quantity"`
	UnitPrice  int64  `firestore:"unitPrice"`
	Subtotal   int64  `firestore:"subtotal"`
	Notes      string `firestore:"notes,omitempty"`
}

func newOrderDocument(order domain.Order) orderDocument {
	lines := make([]orderLineDocument, 0, len(order.Items))
	for _, line := range order.Items {
		lines = append(lines, orderLineDocument{
			MenuItemID: line.MenuItemID,
			Name:       line.Name,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			Subtotal:   line.Subtotal,
			Notes:      line.Notes,
		})
	}
	return orderDocument{
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		TotalPrice:    order.TotalPrice,
		Notes:         order.Notes,
		Items:         lines,
		CreatedAt:     order.CreatedAt.UTC(),
		UpdatedAt:     order.UpdatedAt.UTC(),
		CanceledAt:    order.CanceledAt,
		CompletedAt:   order.CompletedAt,
		DeletedAt:     order.DeletedAt,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	lines := make([]domain.OrderLine, 0, len(d.Items))
	for _, line := range d.Items {
		lines = append(lines, domain.OrderLine{
			MenuItemID: line.MenuItemID,
			Name:       line.Name,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			Subtotal:   line.Subtotal,
			Notes:      line.Notes,
		})
	}
	return domain.Order{
		ID:            id,
		OrderNumber:   d.OrderNumber,
		UserID:        d.UserID,
		Status:        domain.OrderStatus(d.Status),
		PaymentStatus: domain.PaymentStatus(d.PaymentStatus),
		TotalPrice:    d.TotalPrice,
		Notes:         d.Notes,
		Items:         lines,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		CanceledAt:    d.CanceledAt,
		CompletedAt:   d.CompletedAt,
		DeletedAt:     d.DeletedAt,
	}
}

// orderCursorTime recovers the createdAt boundary from a decoded page token.
func orderCursorTime(cursor pagination.Cursor) (time.Time, error) {
	if len(cursor.StartAfter) == 0 {
		return time.Time{}, errors.New("order page token missing cursor")
	}
	raw, ok := cursor.StartAfter[0].(string)
	if !ok {
		return time.Time{}, fmt.Errorf("order page token cursor type %T", cursor.StartAfter[0])
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("order page token cursor: %w", err)
	}
	return ts, nil
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
