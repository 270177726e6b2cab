// Package snapshot кодирует встроенный снимок позиций заказа для SQL-хранилищ.
package snapshot

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

// item: форма позиции внутри снимка. Цена сериализуется строкой.
type item struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	ProductID string          `json:"product_id"`
	Quantity  int32           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Position  int             `json:"position"`
	CreatedAt time.Time       `json:"created_at"`
}

// Encode возвращает nil для nil-снимка, чтобы колонка осталась NULL.
func Encode(items []domain.LineItem) ([]byte, error) {
	if items == nil {
		return nil, nil
	}
	encoded := make([]item, 0, len(items))
	for _, li := range items {
		encoded = append(encoded, item(li))
	}
	raw, err := json.Marshal(encoded)
	if err != nil {
		return nil, fmt.Errorf("encode items snapshot: %w", err)
	}
	return raw, nil
}

// Decode восстанавливает снимок. NULL даёт nil, "[]" даёт пустой срез.
func Decode(raw []byte) ([]domain.LineItem, error) {
	if raw == nil {
		return nil, nil
	}
	var decoded []item
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode items snapshot: %w", err)
	}
	items := make([]domain.LineItem, 0, len(decoded))
	for _, it := range decoded {
		items = append(items, domain.LineItem(it))
	}
	return items, nil
}
