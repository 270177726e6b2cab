package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

const upsertLineItemSQL = `
	INSERT INTO order_items (id, order_id, product_id, quantity, unit_price, position, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7)
	ON CONFLICT (id) DO UPDATE SET
		order_id = EXCLUDED.order_id,
		product_id = EXCLUDED.product_id,
		quantity = EXCLUDED.quantity,
		unit_price = EXCLUDED.unit_price,
		position = EXCLUDED.position,
		created_at = EXCLUDED.created_at`

type lineItemRepository struct {
	db *sql.DB
}

// NewLineItemRepository создаёт PostgreSQL-реализацию LineItemRepository.
func NewLineItemRepository(store *Store) domain.LineItemRepository {
	return &lineItemRepository{db: store.DB()}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertLineItem(ctx context.Context, exec execer, item domain.LineItem) error {
	if _, err := exec.ExecContext(ctx, upsertLineItemSQL,
		item.ID, item.OrderID, item.ProductID, item.Quantity, item.UnitPrice, item.Position, item.CreatedAt,
	); err != nil {
		return fmt.Errorf("upsert order item %s: %w", item.ID, err)
	}
	return nil
}

func (r *lineItemRepository) Save(ctx context.Context, item domain.LineItem) (domain.LineItem, error) {
	if item.OrderID == "" {
		return domain.LineItem{}, domain.NewValidationError("order_id", domain.ErrOrderIDRequired)
	}

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	if err := upsertLineItem(ctx, r.db, item); err != nil {
		return domain.LineItem{}, err
	}
	return item, nil
}

// SaveAll пишет пакет в одной транзакции: либо все позиции, либо ни одной.
func (r *lineItemRepository) SaveAll(ctx context.Context, items []domain.LineItem) ([]domain.LineItem, error) {
	for _, item := range items {
		if item.OrderID == "" {
			return nil, domain.NewValidationError("order_id", domain.ErrOrderIDRequired)
		}
	}
	if len(items) == 0 {
		return []domain.LineItem{}, nil
	}

	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, item := range items {
		if err := upsertLineItem(ctx, tx, item); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit order items: %w", err)
	}

	return domain.CloneItems(items), nil
}

func (r *lineItemRepository) FindByOrderID(ctx context.Context, orderID string) ([]domain.LineItem, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price, position, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.LineItem, 0)
	for rows.Next() {
		var item domain.LineItem
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.Position, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

func (r *lineItemRepository) DeleteByOrderID(ctx context.Context, orderID string) error {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}
	return nil
}

var _ domain.LineItemRepository = (*lineItemRepository)(nil)
