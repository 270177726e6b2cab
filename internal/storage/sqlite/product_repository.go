package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт SQLite-каталог товаров.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

func (r *productRepository) Upsert(ctx context.Context, product domain.Product) error {
	if strings.TrimSpace(product.ID) == "" {
		return domain.NewValidationError("id", domain.ErrProductRequired)
	}
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, supplier_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			price = excluded.price,
			supplier_id = excluded.supplier_id
	`, product.ID, product.Name, product.Price.String(), product.SupplierID); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}

func (r *productRepository) FindByID(ctx context.Context, id string) (domain.Product, error) {
	var (
		product domain.Product
		price   string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, price, supplier_id FROM products WHERE id = ?
	`, id).Scan(&product.ID, &product.Name, &price, &product.SupplierID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}
	if product.Price, err = decimal.NewFromString(price); err != nil {
		return domain.Product{}, fmt.Errorf("parse price of product %s: %w", id, err)
	}
	return product, nil
}

func (r *productRepository) PriceOf(ctx context.Context, productID string) (decimal.Decimal, error) {
	product, err := r.FindByID(ctx, productID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return product.Price, nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
