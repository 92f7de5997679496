package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/indo-cafe/api/internal/domain"
	"github.com/indo-cafe/api/internal/repositories"
)

const (
	orderEventCreated        = "order.created"
	orderEventStatusChanged  = "order.status.changed"
	orderEventPaymentChanged = "order.payment.changed"

	stockEventReserved = "stock.reserved"
	stockEventRestored = "stock.restored"

	orderIDPrefix     = "ord_"
	orderNumberPrefix = "IC"

	// maxNumberAttempts bounds the suffix retry loop when a generated order
	// number is already claimed.
	maxNumberAttempts = 5
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderAccessDenied indicates the order belongs to another user.
	ErrOrderAccessDenied = errors.New("order: access denied")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates concurrent updates or duplicate order numbers.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderStock wraps stock reservation failures; unwrap to the
	// repositories.InventoryError for the item and code.
	ErrOrderStock = errors.New("order: stock")
)

// orderStateTransitions enumerates the allowed fulfilment moves. Cancellation
// is deliberately absent: it goes through Cancel so stock is restored.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusProcessing},
	domain.OrderStatusProcessing: {domain.OrderStatusReady},
	domain.OrderStatusReady:      {domain.OrderStatusCompleted},
}

var cancellableStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusProcessing,
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders       repositories.OrderRepository
	Menu         repositories.MenuRepository
	UnitOfWork   repositories.UnitOfWork
	Clock        func() time.Time
	IDGenerator  func() string
	NumberSuffix func() string
	Events       OrderEventPublisher
	StockEvents  StockEventPublisher
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders      repositories.OrderRepository
	menu        repositories.MenuRepository
	unitOfWork  repositories.UnitOfWork
	clock       func() time.Time
	newID       func() string
	numberRand  func() string
	events      OrderEventPublisher
	stockEvents StockEventPublisher
	logger      func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Menu == nil {
		return nil, errors.New("order service: menu repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
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

	numberRand := deps.NumberSuffix
	if numberRand == nil {
		numberRand = func() string {
			id := ulid.Make().String()
			return id[len(id)-4:]
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		menu:       deps.Menu,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:       idGen,
		numberRand:  numberRand,
		events:      deps.Events,
		stockEvents: deps.StockEvents,
		logger:      logger,
	}, nil
}

// CreateOrder places an order in a single transaction: stock is re-read and
// decremented, prices are snapshotted from the live catalog, the order number
// is claimed, and the order is inserted. Any failure leaves no trace.
func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Lines) == 0 {
		return Order{}, fmt.Errorf("%w: order must contain at least one line", ErrOrderInvalidInput)
	}
	for _, line := range cmd.Lines {
		if strings.TrimSpace(line.MenuItemID) == "" {
			return Order{}, fmt.Errorf("%w: menu item id is required", ErrOrderInvalidInput)
		}
		if line.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: quantity for %s must be positive", ErrOrderInvalidInput, line.MenuItemID)
		}
	}

	stockLines := aggregateStockLines(cmd.Lines)

	var (
		order    Order
		reserved map[string]domain.MenuItem
	)

	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		now := s.now()
		number := s.formatOrderNumber(now, attempt)

		order = Order{
			ID:            s.nextOrderID(),
			OrderNumber:   number,
			UserID:        userID,
			Status:        domain.OrderStatusPending,
			PaymentStatus: domain.PaymentStatusUnpaid,
			Notes:         sanitizeText(cmd.Notes),
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		err := s.runInTx(ctx, func(txCtx context.Context) error {
			items, err := s.menu.ReserveStock(txCtx, stockLines, now)
			if err != nil {
				return s.mapStockError(err)
			}
			reserved = items

			order.Items = buildOrderLines(cmd.Lines, items)
			order.TotalPrice = domain.SumSubtotals(order.Items)

			if err := s.orders.Insert(txCtx, domain.Order(order)); err != nil {
				return s.mapRepositoryError(err)
			}
			return nil
		})
		if err == nil {
			break
		}
		if errors.Is(err, ErrOrderConflict) && attempt < maxNumberAttempts-1 {
			s.logger(ctx, "order.number.collision", map[string]any{
				"number":  number,
				"attempt": attempt + 1,
			})
			continue
		}
		return Order{}, err
	}

	now := order.CreatedAt
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TotalPrice:    order.TotalPrice,
		ActorID:       userID,
		OccurredAt:    now,
	})
	for _, line := range stockLines {
		remaining := 0
		if item, ok := reserved[line.MenuItemID]; ok {
			remaining = item.Stock
		}
		s.publishStockEvent(ctx, StockEvent{
			Type:       stockEventReserved,
			MenuItemID: line.MenuItemID,
			Delta:      -line.Quantity,
			Remaining:  remaining,
			OrderID:    order.ID,
			OccurredAt: now,
		})
	}

	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, cmd OrderReadCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if err := authorizeOrderRead(order, cmd.RequestedBy, cmd.Admin); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (s *orderService) GetOrderByNumber(ctx context.Context, cmd OrderNumberReadCommand) (Order, error) {
	number := strings.TrimSpace(cmd.OrderNumber)
	if number == "" {
		return Order{}, fmt.Errorf("%w: order number is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByNumber(ctx, number)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if err := authorizeOrderRead(order, cmd.RequestedBy, cmd.Admin); err != nil {
		return Order{}, err
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	for _, status := range filter.Status {
		if !validOrderStatus(domain.OrderStatus(status)) {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
		}
	}
	if ps := strings.TrimSpace(filter.PaymentStatus); ps != "" && !domain.ValidPaymentStatus(domain.PaymentStatus(ps)) {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, ps)
	}

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd OrderStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := cmd.TargetStatus
	if !validOrderStatus(target) {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, target)
	}
	// Cancellation restores stock, so it routes through Cancel.
	if target == domain.OrderStatusCancelled {
		return s.Cancel(ctx, CancelOrderCommand{
			OrderID:     orderID,
			RequestedBy: strings.TrimSpace(cmd.ActorID),
			Admin:       true,
		})
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	now := s.now()
	prev := order.Status
	if err := s.applyStatusTransition(&order, target, now); err != nil {
		return Order{}, err
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, domain.Order(order)); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventStatusChanged,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TotalPrice:    order.TotalPrice,
		ActorID:       strings.TrimSpace(cmd.ActorID),
		OccurredAt:    now,
		Metadata:      map[string]any{"previousStatus": string(prev)},
	})

	return order, nil
}

// Cancel moves the order to cancelled and restores every reserved line in the
// same transaction. A paid order is marked refunded; money movement itself is
// the payment provider's concern.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if !cmd.Admin && order.UserID != strings.TrimSpace(cmd.RequestedBy) {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderAccessDenied, order.ID)
	}
	if !slices.Contains(cancellableStatuses, order.Status) {
		return Order{}, fmt.Errorf("%w: order status %q cannot be cancelled", ErrOrderInvalidState, order.Status)
	}

	now := s.now()
	prev := order.Status
	prevPayment := order.PaymentStatus

	order.Status = domain.OrderStatusCancelled
	order.CanceledAt = &now
	order.UpdatedAt = now
	if order.PaymentStatus == domain.PaymentStatusPaid {
		order.PaymentStatus = domain.PaymentStatusRefunded
	}

	stockLines := stockLinesFromOrder(order)

	var restored map[string]domain.MenuItem
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		items, err := s.menu.RestoreStock(txCtx, stockLines, now)
		if err != nil {
			return s.mapStockError(err)
		}
		restored = items
		if err := s.orders.Update(txCtx, domain.Order(order)); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	metadata := map[string]any{"previousStatus": string(prev)}
	if reason := sanitizeText(cmd.Reason); reason != "" {
		metadata["reason"] = reason
	}
	if prevPayment != order.PaymentStatus {
		metadata["previousPaymentStatus"] = string(prevPayment)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventStatusChanged,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TotalPrice:    order.TotalPrice,
		ActorID:       strings.TrimSpace(cmd.RequestedBy),
		OccurredAt:    now,
		Metadata:      metadata,
	})
	for _, line := range stockLines {
		remaining := 0
		if item, ok := restored[line.MenuItemID]; ok {
			remaining = item.Stock
		}
		s.publishStockEvent(ctx, StockEvent{
			Type:       stockEventRestored,
			MenuItemID: line.MenuItemID,
			Delta:      line.Quantity,
			Remaining:  remaining,
			OrderID:    order.ID,
			OccurredAt: now,
		})
	}

	return order, nil
}

func (s *orderService) UpdatePaymentStatus(ctx context.Context, cmd PaymentStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := cmd.TargetStatus
	if !domain.ValidPaymentStatus(target) {
		return Order{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, target)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}

	// Payment status has no ordering; the provider is the source of truth.
	// A repeated target is a replayed webhook and costs no write.
	if order.PaymentStatus == target {
		return order, nil
	}

	now := s.now()
	prev := order.PaymentStatus
	order.PaymentStatus = target
	order.UpdatedAt = now

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, domain.Order(order)); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	metadata := map[string]any{"previousPaymentStatus": string(prev)}
	if ref := strings.TrimSpace(cmd.Reference); ref != "" {
		metadata["reference"] = ref
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventPaymentChanged,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TotalPrice:    order.TotalPrice,
		ActorID:       strings.TrimSpace(cmd.ActorID),
		OccurredAt:    now,
		Metadata:      metadata,
	})

	return order, nil
}

func (s *orderService) applyStatusTransition(order *Order, target domain.OrderStatus, now time.Time) error {
	current := order.Status
	if !canTransition(current, target) {
		return fmt.Errorf("%w: %s to %s", ErrOrderInvalidState, current, target)
	}

	order.Status = target
	order.UpdatedAt = now
	if target == domain.OrderStatusCompleted {
		order.CompletedAt = &now
	}
	return nil
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) mapStockError(err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		return fmt.Errorf("%w: %w", ErrOrderStock, invErr)
	}
	return s.mapRepositoryError(err)
}

// formatOrderNumber produces IC-YYYYMMDD-XXXX, appending -N on retry after a
// claim collision.
func (s *orderService) formatOrderNumber(now time.Time, attempt int) string {
	base := fmt.Sprintf("%s-%s-%s", orderNumberPrefix, now.Format("20060102"), s.numberRand())
	if attempt == 0 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, attempt)
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func (s *orderService) publishStockEvent(ctx context.Context, event StockEvent) {
	if s.stockEvents == nil {
		return
	}
	if err := s.stockEvents.PublishStockEvent(ctx, event); err != nil {
		s.logger(ctx, "stock.event.publish.failed", map[string]any{
			"type":  event.Type,
			"item":  event.MenuItemID,
			"error": err.Error(),
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func authorizeOrderRead(order Order, requestedBy string, admin bool) error {
	if admin {
		return nil
	}
	if order.UserID != strings.TrimSpace(requestedBy) {
		return fmt.Errorf("%w: order %s", ErrOrderAccessDenied, order.ID)
	}
	return nil
}

// aggregateStockLines merges duplicate menu item references so the stock
// check sees the combined quantity. Firestore transactional reads return the
// pre-write snapshot, so two separate decrements of one document would
// silently under-reserve.
func aggregateStockLines(lines []OrderLineInput) []repositories.StockLine {
	index := make(map[string]int, len(lines))
	aggregated := make([]repositories.StockLine, 0, len(lines))
	for _, line := range lines {
		id := strings.TrimSpace(line.MenuItemID)
		if pos, ok := index[id]; ok {
			aggregated[pos].Quantity += line.Quantity
			continue
		}
		index[id] = len(aggregated)
		aggregated = append(aggregated, repositories.StockLine{MenuItemID: id, Quantity: line.Quantity})
	}
	return aggregated
}

func stockLinesFromOrder(order Order) []repositories.StockLine {
	index := make(map[string]int, len(order.Items))
	aggregated := make([]repositories.StockLine, 0, len(order.Items))
	for _, line := range order.Items {
		if pos, ok := index[line.MenuItemID]; ok {
			aggregated[pos].Quantity += line.Quantity
			continue
		}
		index[line.MenuItemID] = len(aggregated)
		aggregated = append(aggregated, repositories.StockLine{MenuItemID: line.MenuItemID, Quantity: line.Quantity})
	}
	return aggregated
}

// buildOrderLines snapshots name and price from the catalog items read inside
// the transaction. Input order is preserved.
func buildOrderLines(inputs []OrderLineInput, items map[string]domain.MenuItem) []OrderLine {
	lines := make([]OrderLine, 0, len(inputs))
	for _, input := range inputs {
		item := items[strings.TrimSpace(input.MenuItemID)]
		price := domain.PriceLine(item, input.Quantity)
		lines = append(lines, OrderLine{
			MenuItemID: item.ID,
			Name:       item.Name,
			Quantity:   input.Quantity,
			UnitPrice:  price.UnitPrice,
			Subtotal:   price.Subtotal,
			Notes:      sanitizeText(input.Notes),
		})
	}
	return lines
}

func validOrderStatus(status domain.OrderStatus) bool {
	switch status {
	case domain.OrderStatusPending, domain.OrderStatusProcessing, domain.OrderStatusReady,
		domain.OrderStatusCompleted, domain.OrderStatusCancelled:
		return true
	}
	return false
}

func canTransition(current, target domain.OrderStatus) bool {
	return slices.Contains(orderStateTransitions[current], target)
}

func valuePtr[T any](v T) *T {
	return &v
}
