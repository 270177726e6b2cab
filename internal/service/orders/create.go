package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

// CreateOrder создаёт заказ. Цены без значения разрешаются через каталог до первой записи,
// поэтому сбой каталога не оставляет ни заказа, ни позиций.
func (e *Engine) CreateOrder(ctx context.Context, header domain.OrderHeader, inputs []domain.ItemInput) (domain.Order, error) {
	defer e.metrics.ObserveOperation(OpCreate)()

	order, err := e.createOrder(ctx, header, inputs)
	if err != nil {
		e.recordFailure(OpCreate, err)
		return domain.Order{}, err
	}

	e.metrics.RecordOrderCreated(len(order.Items))
	e.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"items":    len(order.Items),
		"status":   order.Status,
	}).Info("order created")
	e.publish(ctx, domain.EventOrderCreated, order)
	return order, nil
}

func (e *Engine) createOrder(ctx context.Context, header domain.OrderHeader, inputs []domain.ItemInput) (domain.Order, error) {
	if err := header.Validate(); err != nil {
		return domain.Order{}, err
	}
	for i, in := range inputs {
		if err := in.Validate(); err != nil {
			return domain.Order{}, itemFieldError(i, err)
		}
	}

	createdAt := header.CreatedAt.UTC()
	if header.CreatedAt.IsZero() {
		createdAt = e.timestamp()
	}
	if createdAt.IsZero() {
		return domain.Order{}, domain.NewValidationError("created_at", domain.ErrCreatedAtRequired)
	}

	status := header.Status
	if status == "" {
		status = domain.OrderStatusPending
	}

	id := strings.TrimSpace(header.ID)
	explicitID := id != ""
	if explicitID {
		if err := e.ensureAbsent(ctx, id); err != nil {
			return domain.Order{}, err
		}
	} else {
		id = e.newID()
	}

	prices, err := e.resolvePrices(ctx, inputs)
	if err != nil {
		return domain.Order{}, err
	}

	order := domain.Order{
		ID:              id,
		CreatedAt:       createdAt,
		CustomerID:      header.CustomerID,
		CustomerName:    header.CustomerName,
		CustomerEmail:   header.CustomerEmail,
		ShippingAddress: header.ShippingAddress,
		Status:          status,
		SupplierID:      header.SupplierID,
		UpdatedAt:       createdAt,
	}

	// явный id мог остаться от прерванного удаления, осиротевшие позиции снимаются
	writes := &itemWrite{clear: explicitID, items: e.buildItems(id, inputs, prices, createdAt)}
	return e.reconcile(ctx, OpCreate, order, writes)
}

func (e *Engine) ensureAbsent(ctx context.Context, id string) error {
	_, err := e.orders.FindByID(ctx, id)
	switch {
	case err == nil:
		return domain.ErrOrderAlreadyExists
	case errors.Is(err, domain.ErrOrderNotFound):
		return nil
	default:
		return &domain.PersistenceError{Op: OpCreate, Step: StepLoadOrder, OrderID: id, Err: err}
	}
}

// resolvePrices возвращает цену для каждой позиции в порядке inputs.
func (e *Engine) resolvePrices(ctx context.Context, inputs []domain.ItemInput) ([]decimal.Decimal, error) {
	prices := make([]decimal.Decimal, len(inputs))
	if e.catalog == nil {
		for _, in := range inputs {
			if in.UnitPrice == nil {
				return nil, &domain.CatalogLookupError{ProductID: in.ProductID, Err: errCatalogNotConfigured}
			}
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.lookupConcurrency)

	for i, in := range inputs {
		if in.UnitPrice != nil {
			prices[i] = *in.UnitPrice
			continue
		}
		productID := in.ProductID
		group.Go(func() error {
			price, err := e.catalog.PriceOf(groupCtx, productID)
			if err != nil {
				return &domain.CatalogLookupError{ProductID: productID, Err: err}
			}
			if price.IsNegative() {
				return &domain.CatalogLookupError{ProductID: productID, Err: domain.ErrItemPriceInvalid}
			}
			prices[i] = price
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return prices, nil
}

// buildItems выдаёт позициям новые идентификаторы и привязывает их к заказу.
func (e *Engine) buildItems(orderID string, inputs []domain.ItemInput, prices []decimal.Decimal, createdAt time.Time) []domain.LineItem {
	items := make([]domain.LineItem, 0, len(inputs))
	for i, in := range inputs {
		items = append(items, domain.LineItem{
			ID:        e.newID(),
			OrderID:   orderID,
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			UnitPrice: prices[i],
			Position:  i,
			CreatedAt: createdAt,
		})
	}
	return items
}
