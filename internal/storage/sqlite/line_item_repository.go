package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

const upsertLineItemSQL = `
	INSERT INTO order_items (id, order_id, product_id, quantity, unit_price, position, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		order_id = excluded.order_id,
		product_id = excluded.product_id,
		quantity = excluded.quantity,
		unit_price = excluded.unit_price,
		position = excluded.position,
		created_at = excluded.created_at`

type lineItemRepository struct {
	db *sql.DB
}

// NewLineItemRepository создаёт SQLite-реализацию LineItemRepository.
func NewLineItemRepository(store *Store) domain.LineItemRepository {
	return &lineItemRepository{db: store.DB()}
}

// querier реализуют и *sql.DB, и *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertLineItem(ctx context.Context, q querier, item domain.LineItem) error {
	if _, err := q.ExecContext(ctx, upsertLineItemSQL,
		item.ID, item.OrderID, item.ProductID, item.Quantity, item.UnitPrice.String(), item.Position, formatTime(item.CreatedAt),
	); err != nil {
		return fmt.Errorf("upsert order item %s: %w", item.ID, err)
	}
	return nil
}

func (r *lineItemRepository) Save(ctx context.Context, item domain.LineItem) (domain.LineItem, error) {
	if item.OrderID == "" {
		return domain.LineItem{}, domain.NewValidationError("order_id", domain.ErrOrderIDRequired)
	}
	if err := upsertLineItem(ctx, r.db, item); err != nil {
		return domain.LineItem{}, err
	}
	return item, nil
}

func (r *lineItemRepository) SaveAll(ctx context.Context, items []domain.LineItem) ([]domain.LineItem, error) {
	for _, item := range items {
		if item.OrderID == "" {
			return nil, domain.NewValidationError("order_id", domain.ErrOrderIDRequired)
		}
	}
	if len(items) == 0 {
		return []domain.LineItem{}, nil
	}

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
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price, position, created_at
		FROM order_items
		WHERE order_id = ?
		ORDER BY position ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.LineItem, 0)
	for rows.Next() {
		var (
			item             domain.LineItem
			price, createdAt string
		)
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &price, &item.Position, &createdAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if item.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price of item %s: %w", item.ID, err)
		}
		if item.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

func (r *lineItemRepository) DeleteByOrderID(ctx context.Context, orderID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = ?`, orderID); err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}
	return nil
}

var _ domain.LineItemRepository = (*lineItemRepository)(nil)
