package domain

import "context"

// OrderRepository хранит заголовки заказов вместе со встроенным снимком позиций.
// Реализации принимают и возвращают копии.
type OrderRepository interface {
	// Save создаёт или перезаписывает заказ целиком (upsert, last-write-wins).
	Save(ctx context.Context, order Order) (Order, error)
	// FindByID возвращает заказ или ErrOrderNotFound.
	FindByID(ctx context.Context, id string) (Order, error)
	FindAll(ctx context.Context) ([]Order, error)
	// DeleteByID удаляет заголовок. ErrOrderNotFound, если удалять нечего.
	DeleteByID(ctx context.Context, id string) error
	CountByStatus(ctx context.Context, status OrderStatus) (int, error)
	FindByStatus(ctx context.Context, status OrderStatus) ([]Order, error)
}

// LineItemRepository: авторитетное хранилище позиций.
type LineItemRepository interface {
	Save(ctx context.Context, item LineItem) (LineItem, error)
	SaveAll(ctx context.Context, items []LineItem) ([]LineItem, error)
	// FindByOrderID возвращает позиции заказа по Position. Пустой срез, если позиций нет.
	FindByOrderID(ctx context.Context, orderID string) ([]LineItem, error)
	DeleteByOrderID(ctx context.Context, orderID string) error
}
