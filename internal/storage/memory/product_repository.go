package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

type productRepositoryInMemory struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

// NewProductRepository создаёт in-memory каталог товаров.
func NewProductRepository(products ...domain.Product) domain.ProductRepository {
	r := &productRepositoryInMemory{products: make(map[string]domain.Product, len(products))}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

func (r *productRepositoryInMemory) Upsert(_ context.Context, product domain.Product) error {
	if strings.TrimSpace(product.ID) == "" {
		return domain.NewValidationError("product_id", domain.ErrProductRequired)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[product.ID] = product
	return nil
}

func (r *productRepositoryInMemory) FindByID(_ context.Context, id string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

func (r *productRepositoryInMemory) PriceOf(ctx context.Context, productID string) (decimal.Decimal, error) {
	product, err := r.FindByID(ctx, productID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return product.Price, nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
