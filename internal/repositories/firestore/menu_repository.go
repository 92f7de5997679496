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
	"github.com/indo-cafe/api/internal/platform/textutil"
	"github.com/indo-cafe/api/internal/repositories"
)

const menuCollection = "menuItems"

// MenuRepository persists catalog entries and owns the stock counter per item.
type MenuRepository struct {
	provider *pfirestore.Provider
	items    *pfirestore.BaseRepository[menuItemDocument]
}

// NewMenuRepository constructs a Firestore-backed menu repository.
func NewMenuRepository(provider *pfirestore.Provider) (*MenuRepository, error) {
	if provider == nil {
		return nil, errors.New("menu repository requires firestore provider")
	}
	items := pfirestore.NewBaseRepository[menuItemDocument](provider, menuCollection, nil, nil)
	return &MenuRepository{provider: provider, items: items}, nil
}

// Insert creates the menu item document, failing on duplicates.
func (r *MenuRepository) Insert(ctx context.Context, item domain.MenuItem) error {
	if r == nil || r.provider == nil {
		return errors.New("menu repository not initialised")
	}
	id := strings.TrimSpace(item.ID)
	if id == "" {
		return errors.New("menu insert: item id is required")
	}
	if item.Stock < 0 {
		return errors.New("menu insert: stock must be >= 0")
	}

	ref, err := r.items.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, newMenuItemDocument(item)); err != nil {
		return pfirestore.WrapError("menu.insert", err)
	}
	return nil
}

// Update replaces the menu item document.
func (r *MenuRepository) Update(ctx context.Context, item domain.MenuItem) error {
	if r == nil || r.items == nil {
		return errors.New("menu repository not initialised")
	}
	id := strings.TrimSpace(item.ID)
	if id == "" {
		return errors.New("menu update: item id is required")
	}
	if item.Stock < 0 {
		return errors.New("menu update: stock must be >= 0")
	}

	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		ref, err := r.items.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		return pfirestore.WrapError("menu.update", tx.Set(ref, newMenuItemDocument(item)))
	}

	_, err := r.items.Set(ctx, id, newMenuItemDocument(item))
	return err
}

// SoftDelete marks the item deleted without removing the document.
func (r *MenuRepository) SoftDelete(ctx context.Context, menuItemID string, deletedAt time.Time) error {
	if r == nil || r.items == nil {
		return errors.New("menu repository not initialised")
	}
	id := strings.TrimSpace(menuItemID)
	if id == "" {
		return errors.New("menu delete: item id is required")
	}
	_, err := r.items.Update(ctx, id, []firestore.Update{
		{Path: "deleted", Value: true},
		{Path: "deletedAt", Value: deletedAt.UTC()},
		{Path: "isAvailable", Value: false},
		{Path: "updatedAt", Value: deletedAt.UTC()},
	})
	return err
}

// FindByID loads a single menu item, joining the ambient transaction when present.
func (r *MenuRepository) FindByID(ctx context.Context, menuItemID string) (domain.MenuItem, error) {
	if r == nil || r.items == nil {
		return domain.MenuItem{}, errors.New("menu repository not initialised")
	}
	id := strings.TrimSpace(menuItemID)
	if id == "" {
		return domain.MenuItem{}, errors.New("menu find: item id is required")
	}

	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		ref, err := r.items.DocumentRef(ctx, id)
		if err != nil {
			return domain.MenuItem{}, err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return domain.MenuItem{}, pfirestore.WrapError("menu.find", err)
		}
		var doc menuItemDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.MenuItem{}, fmt.Errorf("decode menu item %s: %w", id, err)
		}
		return doc.toDomain(id), nil
	}

	doc, err := r.items.Get(ctx, id)
	if err != nil {
		return domain.MenuItem{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindBySlug resolves a menu item by its URL slug.
func (r *MenuRepository) FindBySlug(ctx context.Context, slug string) (domain.MenuItem, error) {
	if r == nil || r.items == nil {
		return domain.MenuItem{}, errors.New("menu repository not initialised")
	}
	trimmed := strings.TrimSpace(slug)
	if trimmed == "" {
		return domain.MenuItem{}, errors.New("menu find: slug is required")
	}

	docs, err := r.items.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("slug", "==", trimmed).Limit(1)
	})
	if err != nil {
		return domain.MenuItem{}, err
	}
	if len(docs) == 0 {
		return domain.MenuItem{}, pfirestore.WrapError("menu.findBySlug", status.Error(codes.NotFound, fmt.Sprintf("menu item with slug %s not found", trimmed)))
	}
	return docs[0].Data.toDomain(docs[0].ID), nil
}

// List returns a page of catalog entries ordered by folded name.
func (r *MenuRepository) List(ctx context.Context, filter repositories.MenuListFilter) (domain.CursorPage[domain.MenuItem], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.MenuItem]{}, errors.New("menu repository not initialised")
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
		return domain.CursorPage[domain.MenuItem]{}, pfirestore.WrapError("menu.list", err)
	}

	query := client.Collection(menuCollection).Query
	if !filter.IncludeDeleted {
		query = query.Where("deleted", "==", false)
	}
	if filter.Category != nil {
		query = query.Where("category", "==", string(*filter.Category))
	}
	if filter.AvailableOnly {
		query = query.Where("isAvailable", "==", true)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		folded := foldSearchTerm(search)
		query = query.Where("nameFold", ">=", folded).Where("nameFold", "<", folded+"")
	}
	query = query.OrderBy("nameFold", firestore.Asc).Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		cursor, err := pagination.DecodeToken(token)
		if err != nil {
			return domain.CursorPage[domain.MenuItem]{}, pfirestore.WrapError("menu.list", err)
		}
		if len(cursor.StartAfter) > 0 {
			query = query.StartAfter(cursor.StartAfter...)
		}
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var items []domain.MenuItem
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.MenuItem]{}, pfirestore.WrapError("menu.list", err)
		}
		var doc menuItemDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.MenuItem]{}, fmt.Errorf("decode menu item %s: %w", snap.Ref.ID, err)
		}
		item := doc.toDomain(snap.Ref.ID)
		if filter.AvailableOnly && item.Stock <= 0 {
			continue
		}
		items = append(items, item)
	}

	hasMore := len(items) > pageSize
	if hasMore {
		items = items[:pageSize]
	}
	var nextToken string
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		encoded, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{foldSearchTerm(last.Name)}})
		if err != nil {
			return domain.CursorPage[domain.MenuItem]{}, pfirestore.WrapError("menu.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.MenuItem]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// ReserveStock validates and decrements stock for every line. The check and
// the decrement happen on the same transactional read, so two concurrent
// reservations against the same item cannot both pass the check.
func (r *MenuRepository) ReserveStock(ctx context.Context, lines []repositories.StockLine, now time.Time) (map[string]domain.MenuItem, error) {
	return r.applyStock(ctx, "menu.reserveStock", lines, now, func(id string, line repositories.StockLine, doc *menuItemDocument) error {
		if doc.Deleted {
			return repositories.NewInventoryError(repositories.InventoryErrorItemNotFound, id, fmt.Sprintf("menu item %s not found", id), nil)
		}
		if !doc.IsAvailable {
			return repositories.NewInventoryError(repositories.InventoryErrorUnavailable, id, fmt.Sprintf("menu item %q is not available", doc.Name), nil)
		}
		if doc.Stock == 0 {
			return repositories.NewInventoryError(repositories.InventoryErrorOutOfStock, id, fmt.Sprintf("menu item %q is out of stock", doc.Name), nil)
		}
		if doc.Stock < line.Quantity {
			return repositories.NewInventoryError(repositories.InventoryErrorInsufficientStock, id, fmt.Sprintf("insufficient stock for %q: available %d", doc.Name, doc.Stock), nil)
		}
		doc.Stock -= line.Quantity
		return nil
	})
}

// RestoreStock increments stock for every line. It never fails a line:
// increasing stock cannot violate the non-negativity invariant.
func (r *MenuRepository) RestoreStock(ctx context.Context, lines []repositories.StockLine, now time.Time) (map[string]domain.MenuItem, error) {
	return r.applyStock(ctx, "menu.restoreStock", lines, now, func(id string, line repositories.StockLine, doc *menuItemDocument) error {
		doc.Stock += line.Quantity
		return nil
	})
}

// AdjustStock applies an admin stock correction, clamping at zero.
func (r *MenuRepository) AdjustStock(ctx context.Context, menuItemID string, delta int, now time.Time) (domain.MenuItem, error) {
	id := strings.TrimSpace(menuItemID)
	if id == "" {
		return domain.MenuItem{}, errors.New("menu adjust: item id is required")
	}

	var updated domain.MenuItem
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.items.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewInventoryError(repositories.InventoryErrorItemNotFound, id, fmt.Sprintf("menu item %s not found", id), err)
			}
			return err
		}
		var doc menuItemDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode menu item %s: %w", id, err)
		}
		doc.Stock += delta
		if doc.Stock < 0 {
			doc.Stock = 0
		}
		doc.UpdatedAt = now.UTC()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(id)
		return nil
	})
	if err != nil {
		return domain.MenuItem{}, wrapStockError("menu.adjustStock", err)
	}
	return updated, nil
}

// applyStock runs mutate over every line's document. Inside an ambient
// transaction it performs all reads before all writes per Firestore's
// ordering rule; otherwise it opens its own transaction.
func (r *MenuRepository) applyStock(ctx context.Context, op string, lines []repositories.StockLine, now time.Time, mutate func(id string, line repositories.StockLine, doc *menuItemDocument) error) (map[string]domain.MenuItem, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("menu repository not initialised")
	}
	if len(lines) == 0 {
		return nil, errors.New("menu stock: at least one line is required")
	}
	for _, line := range lines {
		if strings.TrimSpace(line.MenuItemID) == "" {
			return nil, errors.New("menu stock: item id is required")
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("menu stock: quantity for %s must be positive", line.MenuItemID)
		}
	}

	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		updated, err := r.applyStockTx(ctx, tx, lines, now, mutate)
		if err != nil {
			return nil, wrapStockError(op, err)
		}
		return updated, nil
	}

	var updated map[string]domain.MenuItem
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var txErr error
		updated, txErr = r.applyStockTx(ctx, tx, lines, now, mutate)
		return txErr
	})
	if err != nil {
		return nil, wrapStockError(op, err)
	}
	return updated, nil
}

func (r *MenuRepository) applyStockTx(ctx context.Context, tx *firestore.Transaction, lines []repositories.StockLine, now time.Time, mutate func(id string, line repositories.StockLine, doc *menuItemDocument) error) (map[string]domain.MenuItem, error) {
	type pending struct {
		ref *firestore.DocumentRef
		doc menuItemDocument
	}

	writes := make([]pending, 0, len(lines))
	updated := make(map[string]domain.MenuItem, len(lines))

	for _, line := range lines {
		id := strings.TrimSpace(line.MenuItemID)
		ref, err := r.items.DocumentRef(ctx, id)
		if err != nil {
			return nil, err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil, repositories.NewInventoryError(repositories.InventoryErrorItemNotFound, id, fmt.Sprintf("menu item %s not found", id), err)
			}
			return nil, err
		}
		var doc menuItemDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode menu item %s: %w", id, err)
		}
		if err := mutate(id, line, &doc); err != nil {
			return nil, err
		}
		doc.UpdatedAt = now.UTC()
		writes = append(writes, pending{ref: ref, doc: doc})
		updated[id] = doc.toDomain(id)
	}

	for _, w := range writes {
		if err := tx.Set(w.ref, w.doc); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

// Helper structures ---------------------------------------------------------

type menuItemDocument struct {
	Name        string     `firestore:"name"`
	NameFold    string     `firestore:"nameFold"`
	Slug        string     `firestore:"slug"`
	Description string     `firestore:"description,omitempty"`
	Category    string     `firestore:"category"`
	Price       int64      `firestore:"price"`
	ImageURL    string     `firestore:"imageUrl,omitempty"`
	IsAvailable bool       `firestore:"isAvailable"`
	Stock       int        `firestore:"stock"`
	Deleted     bool       `firestore:"deleted"`
	DeletedAt   *time.Time `firestore:"deletedAt,omitempty"`
	CreatedAt   time.Time  `firestore:"createdAt"`
	UpdatedAt   time.Time  `firestore:"updatedAt"`
}

func newMenuItemDocument(item domain.MenuItem) menuItemDocument {
	name := strings.TrimSpace(item.Name)
	return menuItemDocument{
		Name:        name,
		NameFold:    foldSearchTerm(name),
		Slug:        strings.TrimSpace(item.Slug),
		Description: strings.TrimSpace(item.Description),
		Category:    string(item.Category),
		Price:       item.Price,
		ImageURL:    strings.TrimSpace(item.ImageURL),
		IsAvailable: item.IsAvailable,
		Stock:       item.Stock,
		Deleted:     item.DeletedAt != nil,
		DeletedAt:   item.DeletedAt,
		CreatedAt:   item.CreatedAt.UTC(),
		UpdatedAt:   item.UpdatedAt.UTC(),
	}
}

func (d menuItemDocument) toDomain(id string) domain.MenuItem {
	return domain.MenuItem{
		ID:          id,
		Name:        d.Name,
		Slug:        d.Slug,
		Description: d.Description,
		Category:    domain.MenuCategory(d.Category),
		Price:       d.Price,
		ImageURL:    d.ImageURL,
		IsAvailable: d.IsAvailable,
		Stock:       d.Stock,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		DeletedAt:   d.DeletedAt,
	}
}

func foldSearchTerm(s string) string {
	return textutil.Fold(s)
}

func wrapStockError(op string, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}
	return pfirestore.WrapError(op, err)
}

var _ repositories.MenuRepository = (*MenuRepository)(nil)
