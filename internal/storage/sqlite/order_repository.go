package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
	"github.com/vladislavdragonenkov/orderstore/internal/storage/snapshot"
)

const orderColumns = `id, customer_id, customer_name, customer_email, shipping_address,
	status, supplier_id, items, created_at, updated_at`

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт SQLite-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

func (r *orderRepository) Save(ctx context.Context, order domain.Order) (domain.Order, error) {
	encoded, err := snapshot.Encode(order.Items)
	if err != nil {
		return domain.Order{}, err
	}

	// NULL-снимок хранится как NULL, а не как пустая строка
	var items sql.NullString
	if encoded != nil {
		items = sql.NullString{String: string(encoded), Valid: true}
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			customer_id = excluded.customer_id,
			customer_name = excluded.customer_name,
			customer_email = excluded.customer_email,
			shipping_address = excluded.shipping_address,
			status = excluded.status,
			supplier_id = excluded.supplier_id,
			items = excluded.items,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`,
		order.ID, order.CustomerID, order.CustomerName, order.CustomerEmail, order.ShippingAddress,
		string(order.Status), order.SupplierID, items, formatTime(order.CreatedAt), formatTime(order.UpdatedAt),
	); err != nil {
		return domain.Order{}, fmt.Errorf("upsert order: %w", err)
	}
	return order.Clone(), nil
}

func (r *orderRepository) FindByID(ctx context.Context, id string) (domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	return order, nil
}

func (r *orderRepository) FindAll(ctx context.Context) ([]domain.Order, error) {
	return r.query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at, id`)
}

func (r *orderRepository) FindByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	return r.query(ctx, `SELECT `+orderColumns+` FROM orders WHERE status = ? ORDER BY created_at, id`, string(status))
}

func (r *orderRepository) CountByStatus(ctx context.Context, status domain.OrderStatus) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE status = ?`, string(status)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count orders by status: %w", err)
	}
	return count, nil
}

func (r *orderRepository) DeleteByID(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) query(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	return orders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order                domain.Order
		status               string
		items                sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&order.ID, &order.CustomerID, &order.CustomerName, &order.CustomerEmail, &order.ShippingAddress,
		&status, &order.SupplierID, &items, &createdAt, &updatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)

	var err error
	if order.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Order{}, err
	}
	if order.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.Order{}, err
	}
	if items.Valid {
		if order.Items, err = snapshot.Decode([]byte(items.String)); err != nil {
			return domain.Order{}, err
		}
	}
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
