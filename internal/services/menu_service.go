package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/indo-cafe/api/internal/domain"
	pstorage "github.com/indo-cafe/api/internal/platform/storage"
	"github.com/indo-cafe/api/internal/platform/textutil"
	"github.com/indo-cafe/api/internal/repositories"
)

const (
	menuItemIDPrefix = "menu_"

	menuImageMaxSize   = int64(10 * 1024 * 1024) // 10 MiB
	menuImageURLExpiry = 15 * time.Minute
)

var (
	// ErrMenuInvalidInput signals the caller provided invalid data.
	ErrMenuInvalidInput = errors.New("menu: invalid input")
	// ErrMenuNotFound indicates the menu item could not be located.
	ErrMenuNotFound = errors.New("menu: not found")
	// ErrMenuConflict indicates a duplicate item or slug.
	ErrMenuConflict = errors.New("menu: conflict")
	// ErrMenuUploadsDisabled indicates no storage client is configured.
	ErrMenuUploadsDisabled = errors.New("menu: image uploads not configured")
)

var menuImageContentTypes = []string{"image/png", "image/jpeg", "image/webp"}

// MenuServiceDeps bundles collaborators required to construct the menu service.
type MenuServiceDeps struct {
	Menu        repositories.MenuRepository
	Storage     *pstorage.Client
	ImageBucket string
	Clock       func() time.Time
	IDGenerator func() string
	StockEvents StockEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type menuService struct {
	menu        repositories.MenuRepository
	storage     *pstorage.Client
	imageBucket string
	clock       func() time.Time
	newID       func() string
	stockEvents StockEventPublisher
	logger      func(context.Context, string, map[string]any)
}

// NewMenuService wires dependencies into a concrete MenuService implementation.
func NewMenuService(deps MenuServiceDeps) (MenuService, error) {
	if deps.Menu == nil {
		return nil, errors.New("menu service: menu repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &menuService{
		menu:        deps.Menu,
		storage:     deps.Storage,
		imageBucket: strings.TrimSpace(deps.ImageBucket),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:       idGen,
		stockEvents: deps.StockEvents,
		logger:      logger,
	}, nil
}

func (s *menuService) CreateItem(ctx context.Context, cmd UpsertMenuItemCommand) (MenuItem, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return MenuItem{}, fmt.Errorf("%w: name is required", ErrMenuInvalidInput)
	}
	if !validMenuCategory(cmd.Category) {
		return MenuItem{}, fmt.Errorf("%w: unknown category %q", ErrMenuInvalidInput, cmd.Category)
	}
	if cmd.Price <= 0 {
		return MenuItem{}, fmt.Errorf("%w: price must be positive", ErrMenuInvalidInput)
	}
	stock := 0
	if cmd.Stock != nil {
		if *cmd.Stock < 0 {
			return MenuItem{}, fmt.Errorf("%w: stock must be >= 0", ErrMenuInvalidInput)
		}
		stock = *cmd.Stock
	}

	now := s.now()
	item := MenuItem{
		ID:          menuItemIDPrefix + s.newID(),
		Name:        name,
		Description: sanitizeText(cmd.Description),
		Category:    cmd.Category,
		Price:       cmd.Price,
		ImageURL:    strings.TrimSpace(cmd.ImageURL),
		IsAvailable: cmd.IsAvailable == nil || *cmd.IsAvailable,
		Stock:       stock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	slug, err := s.uniqueSlug(ctx, name)
	if err != nil {
		return MenuItem{}, err
	}
	item.Slug = slug

	if err := s.menu.Insert(ctx, item); err != nil {
		return MenuItem{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "menu.item.created", map[string]any{
		"item":     item.ID,
		"slug":     item.Slug,
		"category": string(item.Category),
		"actor":    strings.TrimSpace(cmd.ActorID),
	})

	return item, nil
}

func (s *menuService) UpdateItem(ctx context.Context, cmd UpsertMenuItemCommand) (MenuItem, error) {
	itemID := strings.TrimSpace(cmd.MenuItemID)
	if itemID == "" {
		return MenuItem{}, fmt.Errorf("%w: menu item id is required", ErrMenuInvalidInput)
	}

	item, err := s.menu.FindByID(ctx, itemID)
	if err != nil {
		return MenuItem{}, s.mapRepositoryError(err)
	}
	if item.DeletedAt != nil {
		return MenuItem{}, fmt.Errorf("%w: menu item %s", ErrMenuNotFound, itemID)
	}

	if name := strings.TrimSpace(cmd.Name); name != "" && name != item.Name {
		slug, err := s.uniqueSlug(ctx, name)
		if err != nil {
			return MenuItem{}, err
		}
		item.Name = name
		item.Slug = slug
	}
	if cmd.Description != "" {
		item.Description = sanitizeText(cmd.Description)
	}
	if cmd.Category != "" {
		if !validMenuCategory(cmd.Category) {
			return MenuItem{}, fmt.Errorf("%w: unknown category %q", ErrMenuInvalidInput, cmd.Category)
		}
		item.Category = cmd.Category
	}
	if cmd.Price != 0 {
		if cmd.Price < 0 {
			return MenuItem{}, fmt.Errorf("%w: price must be positive", ErrMenuInvalidInput)
		}
		item.Price = cmd.Price
	}
	if url := strings.TrimSpace(cmd.ImageURL); url != "" {
		item.ImageURL = url
	}
	if cmd.IsAvailable != nil {
		item.IsAvailable = *cmd.IsAvailable
	}
	if cmd.Stock != nil {
		if *cmd.Stock < 0 {
			return MenuItem{}, fmt.Errorf("%w: stock must be >= 0", ErrMenuInvalidInput)
		}
		item.Stock = *cmd.Stock
	}
	item.UpdatedAt = s.now()

	if err := s.menu.Update(ctx, item); err != nil {
		return MenuItem{}, s.mapRepositoryError(err)
	}
	return item, nil
}

func (s *menuService) DeleteItem(ctx context.Context, cmd DeleteMenuItemCommand) error {
	itemID := strings.TrimSpace(cmd.MenuItemID)
	if itemID == "" {
		return fmt.Errorf("%w: menu item id is required", ErrMenuInvalidInput)
	}

	now := s.now()
	if err := s.menu.SoftDelete(ctx, itemID, now); err != nil {
		return s.mapRepositoryError(err)
	}

	s.logger(ctx, "menu.item.deleted", map[string]any{
		"item":  itemID,
		"actor": strings.TrimSpace(cmd.ActorID),
	})
	return nil
}

func (s *menuService) GetItem(ctx context.Context, menuItemID string) (MenuItem, error) {
	itemID := strings.TrimSpace(menuItemID)
	if itemID == "" {
		return MenuItem{}, fmt.Errorf("%w: menu item id is required", ErrMenuInvalidInput)
	}

	item, err := s.menu.FindByID(ctx, itemID)
	if err != nil {
		return MenuItem{}, s.mapRepositoryError(err)
	}
	if item.DeletedAt != nil {
		return MenuItem{}, fmt.Errorf("%w: menu item %s", ErrMenuNotFound, itemID)
	}
	return item, nil
}

func (s *menuService) GetItemBySlug(ctx context.Context, slug string) (MenuItem, error) {
	trimmed := strings.TrimSpace(slug)
	if trimmed == "" {
		return MenuItem{}, fmt.Errorf("%w: slug is required", ErrMenuInvalidInput)
	}

	item, err := s.menu.FindBySlug(ctx, trimmed)
	if err != nil {
		return MenuItem{}, s.mapRepositoryError(err)
	}
	if item.DeletedAt != nil {
		return MenuItem{}, fmt.Errorf("%w: menu item %s", ErrMenuNotFound, trimmed)
	}
	return item, nil
}

func (s *menuService) ListItems(ctx context.Context, filter MenuListFilter) (domain.CursorPage[MenuItem], error) {
	if filter.Category != nil && !validMenuCategory(*filter.Category) {
		return domain.CursorPage[MenuItem]{}, fmt.Errorf("%w: unknown category %q", ErrMenuInvalidInput, *filter.Category)
	}

	page, err := s.menu.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[MenuItem]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *menuService) AdjustStock(ctx context.Context, cmd AdjustStockCommand) (MenuItem, error) {
	itemID := strings.TrimSpace(cmd.MenuItemID)
	if itemID == "" {
		return MenuItem{}, fmt.Errorf("%w: menu item id is required", ErrMenuInvalidInput)
	}
	if cmd.Delta == 0 {
		return MenuItem{}, fmt.Errorf("%w: delta must be non-zero", ErrMenuInvalidInput)
	}

	now := s.now()
	item, err := s.menu.AdjustStock(ctx, itemID, cmd.Delta, now)
	if err != nil {
		return MenuItem{}, s.mapRepositoryError(err)
	}

	if s.stockEvents != nil {
		event := StockEvent{
			Type:       "stock.adjusted",
			MenuItemID: item.ID,
			Delta:      cmd.Delta,
			Remaining:  item.Stock,
			OccurredAt: now,
		}
		if err := s.stockEvents.PublishStockEvent(ctx, event); err != nil {
			s.logger(ctx, "stock.event.publish.failed", map[string]any{
				"type":  event.Type,
				"item":  event.MenuItemID,
				"error": err.Error(),
			})
		}
	}

	return item, nil
}

// IssueImageUploadURL signs a time-limited PUT URL so admins upload item
// images straight to the bucket.
func (s *menuService) IssueImageUploadURL(ctx context.Context, cmd MenuImageUploadCommand) (SignedUploadResponse, error) {
	if s.storage == nil || s.imageBucket == "" {
		return SignedUploadResponse{}, ErrMenuUploadsDisabled
	}
	itemID := strings.TrimSpace(cmd.MenuItemID)
	if itemID == "" {
		return SignedUploadResponse{}, fmt.Errorf("%w: menu item id is required", ErrMenuInvalidInput)
	}
	contentType := strings.TrimSpace(cmd.ContentType)
	if contentType == "" {
		return SignedUploadResponse{}, fmt.Errorf("%w: content type is required", ErrMenuInvalidInput)
	}

	if _, err := s.menu.FindByID(ctx, itemID); err != nil {
		return SignedUploadResponse{}, s.mapRepositoryError(err)
	}

	object, err := pstorage.BuildObjectPath(pstorage.PurposeMenuImage, pstorage.PathParams{
		MenuItemID: itemID,
		FileName:   s.newID(),
	})
	if err != nil {
		return SignedUploadResponse{}, fmt.Errorf("%w: %v", ErrMenuInvalidInput, err)
	}
	result, err := s.storage.SignedURL(ctx, s.imageBucket, object, pstorage.SignedURLOptions{
		Upload: &pstorage.UploadOptions{
			Method:              "PUT",
			ContentType:         contentType,
			AllowedContentTypes: menuImageContentTypes,
			MaxSize:             menuImageMaxSize,
			ExpiresIn:           menuImageURLExpiry,
		},
	})
	if err != nil {
		return SignedUploadResponse{}, fmt.Errorf("%w: %v", ErrMenuInvalidInput, err)
	}

	s.logger(ctx, "menu.image.upload.issued", map[string]any{
		"item":   itemID,
		"object": object,
		"actor":  strings.TrimSpace(cmd.ActorID),
	})

	return SignedUploadResponse{
		URL:       result.URL,
		ObjectKey: object,
		ExpiresAt: result.ExpiresAt,
		Headers:   result.Headers,
	}, nil
}

// uniqueSlug derives a slug from the name, appending a short suffix when the
// slug is taken.
func (s *menuService) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := textutil.Slugify(name)
	if base == "" {
		return "", fmt.Errorf("%w: name produces an empty slug", ErrMenuInvalidInput)
	}

	slug := base
	for attempt := 0; attempt < 5; attempt++ {
		_, err := s.menu.FindBySlug(ctx, slug)
		if err != nil {
			var repoErr repositories.RepositoryError
			if errors.As(err, &repoErr) && repoErr.IsNotFound() {
				return slug, nil
			}
			return "", s.mapRepositoryError(err)
		}
		id := s.newID()
		slug = fmt.Sprintf("%s-%s", base, strings.ToLower(id[len(id)-4:]))
	}
	return "", fmt.Errorf("%w: could not derive unique slug for %q", ErrMenuConflict, name)
}

func (s *menuService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrMenuNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrMenuConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("menu: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *menuService) now() time.Time {
	return s.clock()
}

func validMenuCategory(category domain.MenuCategory) bool {
	switch category {
	case domain.MenuCategoryCoffee, domain.MenuCategoryNonCoffee, domain.MenuCategoryFood, domain.MenuCategorySnack:
		return true
	}
	return false
}
