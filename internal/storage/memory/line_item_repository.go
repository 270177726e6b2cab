package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

// lineItemRepositoryInMemory хранит позиции с индексом по заказу.
type lineItemRepositoryInMemory struct {
	mu      sync.RWMutex
	items   map[string]domain.LineItem
	byOrder map[string]map[string]struct{}
}

// NewLineItemRepository создаёт in-memory хранилище позиций.
func NewLineItemRepository() domain.LineItemRepository {
	return &lineItemRepositoryInMemory{
		items:   make(map[string]domain.LineItem),
		byOrder: make(map[string]map[string]struct{}),
	}
}

func (r *lineItemRepositoryInMemory) Save(_ context.Context, item domain.LineItem) (domain.LineItem, error) {
	if item.OrderID == "" {
		return domain.LineItem{}, domain.NewValidationError("order_id", domain.ErrOrderIDRequired)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.put(item)
	return item, nil
}

// SaveAll сохраняет пачку целиком: сначала проверка, потом запись.
func (r *lineItemRepositoryInMemory) SaveAll(_ context.Context, items []domain.LineItem) ([]domain.LineItem, error) {
	for _, item := range items {
		if item.OrderID == "" {
			return nil, domain.NewValidationError("order_id", domain.ErrOrderIDRequired)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, item := range items {
		r.put(item)
	}
	return domain.CloneItems(items), nil
}

func (r *lineItemRepositoryInMemory) FindByOrderID(_ context.Context, orderID string) ([]domain.LineItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byOrder[orderID]
	result := make([]domain.LineItem, 0, len(ids))
	for id := range ids {
		result = append(result, r.items[id])
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Position != result[j].Position {
			return result[i].Position < result[j].Position
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *lineItemRepositoryInMemory) DeleteByOrderID(_ context.Context, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.byOrder[orderID] {
		delete(r.items, id)
	}
	delete(r.byOrder, orderID)
	return nil
}

// put вызывается под Lock. Позиция могла сменить заказ: чистим старый индекс.
func (r *lineItemRepositoryInMemory) put(item domain.LineItem) {
	if prev, ok := r.items[item.ID]; ok && prev.OrderID != item.OrderID {
		delete(r.byOrder[prev.OrderID], item.ID)
		if len(r.byOrder[prev.OrderID]) == 0 {
			delete(r.byOrder, prev.OrderID)
		}
	}

	r.items[item.ID] = item
	ids, ok := r.byOrder[item.OrderID]
	if !ok {
		ids = make(map[string]struct{})
		r.byOrder[item.OrderID] = ids
	}
	ids[item.ID] = struct{}{}
}

var _ domain.LineItemRepository = (*lineItemRepositoryInMemory)(nil)
