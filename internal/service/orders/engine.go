// Package orders реализует движок согласованности агрегата заказа:
// заголовок со встроенным снимком позиций и авторитетное хранилище позиций.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
	"github.com/vladislavdragonenkov/orderstore/internal/metrics"
)

// DefaultLookupConcurrency ограничивает параллельные запросы к каталогу в одном CreateOrder.
const DefaultLookupConcurrency = 8

// Имена операций в PersistenceError и метриках.
const (
	OpCreate    = "create"
	OpGet       = "get"
	OpList      = "list"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpGetItems  = "get_items"
	OpReconcile = "reconcile"
	OpCheck     = "check"
)

// Шаги последовательности записи. По шагу видно, какая часть уже зафиксирована.
const (
	StepLoadOrder    = "load_order"
	StepSaveItems    = "save_items"
	StepLoadItems    = "load_items"
	StepSaveHeader   = "save_header"
	StepDeleteItems  = "delete_items"
	StepDeleteHeader = "delete_header"
)

var errCatalogNotConfigured = errors.New("catalog is not configured")

// Engine координирует запись в хранилище позиций и хранилище заказов.
// Снимок позиций пересобирается только в reconcile.
type Engine struct {
	orders  domain.OrderRepository
	items   domain.LineItemRepository
	catalog domain.Catalog
	outbox  domain.OutboxRepository

	logger  *log.Entry
	metrics *metrics.OrderMetrics

	now               func() time.Time
	newID             func() string
	lookupConcurrency int
}

// Option настраивает Engine.
type Option func(*Engine)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов заказов и позиций.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		if newID != nil {
			e.newID = newID
		}
	}
}

func WithLogger(logger *log.Entry) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithOutbox включает запись событий заказа в outbox.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(e *Engine) {
		e.outbox = outbox
	}
}

func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLookupConcurrency задаёт предел параллельных обращений к каталогу.
func WithLookupConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.lookupConcurrency = n
		}
	}
}

// NewEngine создаёт движок. Каталог может быть nil, тогда все позиции обязаны иметь цену.
func NewEngine(orders domain.OrderRepository, items domain.LineItemRepository, catalog domain.Catalog, opts ...Option) (*Engine, error) {
	if orders == nil {
		return nil, fmt.Errorf("order repository is required")
	}
	if items == nil {
		return nil, fmt.Errorf("line item repository is required")
	}

	e := &Engine{
		orders:            orders,
		items:             items,
		catalog:           catalog,
		logger:            log.New().WithField("component", "orders"),
		now:               time.Now,
		newID:             uuid.NewString,
		lookupConcurrency: DefaultLookupConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// GetOrder возвращает заказ со встроенным снимком, не обращаясь к хранилищу позиций.
func (e *Engine) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	defer e.metrics.ObserveOperation(OpGet)()

	order, err := e.loadOrder(ctx, OpGet, id)
	if err != nil {
		e.recordFailure(OpGet, err)
		return domain.Order{}, err
	}
	return order.WithNormalizedItems(), nil
}

// ListOrders возвращает все заказы. Отсутствующий снимок заменяется пустым.
func (e *Engine) ListOrders(ctx context.Context) ([]domain.Order, error) {
	defer e.metrics.ObserveOperation(OpList)()

	orders, err := e.orders.FindAll(ctx)
	if err != nil {
		err = &domain.PersistenceError{Op: OpList, Step: StepLoadOrder, Err: err}
		e.recordFailure(OpList, err)
		return nil, err
	}
	return normalizeAll(orders), nil
}

// GetOrderItems читает позиции напрямую из хранилища позиций.
func (e *Engine) GetOrderItems(ctx context.Context, orderID string) ([]domain.LineItem, error) {
	defer e.metrics.ObserveOperation(OpGetItems)()

	if err := requireOrderID(orderID); err != nil {
		e.recordFailure(OpGetItems, err)
		return nil, err
	}
	items, err := e.items.FindByOrderID(ctx, orderID)
	if err != nil {
		err = &domain.PersistenceError{Op: OpGetItems, Step: StepLoadItems, OrderID: orderID, Err: err}
		e.recordFailure(OpGetItems, err)
		return nil, err
	}
	if items == nil {
		items = []domain.LineItem{}
	}
	return items, nil
}

// itemWrite описывает изменение хранилища позиций перед пересборкой снимка.
type itemWrite struct {
	clear bool
	items []domain.LineItem
}

// reconcile записывает позиции, перечитывает их по order.ID и сохраняет заголовок с этим снимком.
// writes == nil означает только пересборку снимка.
func (e *Engine) reconcile(ctx context.Context, op string, order domain.Order, writes *itemWrite) (domain.Order, error) {
	if writes != nil {
		if writes.clear {
			if err := e.items.DeleteByOrderID(ctx, order.ID); err != nil {
				return domain.Order{}, &domain.PersistenceError{Op: op, Step: StepDeleteItems, OrderID: order.ID, Err: err}
			}
		}
		if len(writes.items) > 0 {
			if _, err := e.items.SaveAll(ctx, writes.items); err != nil {
				return domain.Order{}, &domain.PersistenceError{Op: op, Step: StepSaveItems, OrderID: order.ID, Err: err}
			}
		}
	}

	stored, err := e.items.FindByOrderID(ctx, order.ID)
	if err != nil {
		return domain.Order{}, &domain.PersistenceError{Op: op, Step: StepLoadItems, OrderID: order.ID, Err: err}
	}
	order.Items = domain.CloneItems(stored)
	if order.Items == nil {
		order.Items = []domain.LineItem{}
	}

	saved, err := e.orders.Save(ctx, order)
	if err != nil {
		return domain.Order{}, &domain.PersistenceError{Op: op, Step: StepSaveHeader, OrderID: order.ID, Err: err}
	}
	return saved.WithNormalizedItems(), nil
}

func (e *Engine) loadOrder(ctx context.Context, op, id string) (domain.Order, error) {
	if err := requireOrderID(id); err != nil {
		return domain.Order{}, err
	}
	order, err := e.orders.FindByID(ctx, id)
	if err != nil {
		if domain.IsNotFound(err) {
			return domain.Order{}, fmt.Errorf("%s order %s: %w", op, id, domain.ErrOrderNotFound)
		}
		return domain.Order{}, &domain.PersistenceError{Op: op, Step: StepLoadOrder, OrderID: id, Err: err}
	}
	return order, nil
}

// timestamp возвращает время движка в UTC.
func (e *Engine) timestamp() time.Time {
	return e.now().UTC()
}

func (e *Engine) recordFailure(op string, err error) {
	class := errorClass(err)
	e.metrics.RecordOperationError(op, class)

	var persistErr *domain.PersistenceError
	if errors.As(err, &persistErr) {
		e.metrics.RecordPersistenceFailure(persistErr.Step)
		e.logger.WithError(err).WithFields(log.Fields{
			"operation": op,
			"order_id":  persistErr.OrderID,
			"step":      persistErr.Step,
		}).Error("order write sequence interrupted, snapshot may be stale")
		return
	}
	if class == "catalog" {
		e.metrics.RecordCatalogFailure()
	}
	e.logger.WithError(err).WithFields(log.Fields{
		"operation": op,
		"class":     class,
	}).Debug("order operation rejected")
}

func errorClass(err error) string {
	switch {
	case domain.IsValidation(err):
		return "validation"
	case domain.IsNotFound(err):
		return "not_found"
	case errors.Is(err, domain.ErrOrderAlreadyExists):
		return "already_exists"
	case domain.IsCatalogLookup(err):
		return "catalog"
	case domain.IsPersistence(err):
		return "persistence"
	default:
		return "unknown"
	}
}

func requireOrderID(id string) error {
	if id == "" {
		return domain.NewValidationError("id", domain.ErrOrderIDRequired)
	}
	return nil
}

func normalizeAll(orders []domain.Order) []domain.Order {
	result := make([]domain.Order, 0, len(orders))
	for _, order := range orders {
		result = append(result, order.WithNormalizedItems())
	}
	return result
}

// itemFieldError уточняет поле ошибки валидации индексом позиции.
func itemFieldError(index int, err error) error {
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		return domain.NewValidationError(fmt.Sprintf("items[%d].%s", index, validation.Field), validation.Err)
	}
	return err
}
