package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает состояние заказа. Граф переходов не задан:
// обновление может выставить любой поддерживаемый статус.
type OrderStatus string

const (
	// OrderStatusPending: статус по умолчанию для нового заказа.
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusDeclined   OrderStatus = "declined"
	OrderStatusSuccess    OrderStatus = "success"
)

// OrderStatuses возвращает все поддерживаемые статусы в стабильном порядке.
func OrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending,
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusDeclined,
		OrderStatusSuccess,
	}
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusDeclined, OrderStatusSuccess:
		return true
	default:
		return false
	}
}

// LineItem: позиция заказа в хранилище позиций.
type LineItem struct {
	ID        string
	OrderID   string
	ProductID string
	Quantity  int32
	// UnitPrice фиксируется при создании и не пересчитывается по каталогу.
	UnitPrice decimal.Decimal
	// Position задаёт порядок позиции внутри заказа.
	Position  int
	CreatedAt time.Time
}

// Subtotal возвращает quantity * price.
func (i LineItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt32(i.Quantity))
}

// Validate проверяет инварианты сохранённой позиции.
func (i LineItem) Validate() error {
	if strings.TrimSpace(i.ProductID) == "" {
		return NewValidationError("product_id", ErrProductRequired)
	}
	if i.Quantity <= 0 {
		return NewValidationError("quantity", ErrItemQtyInvalid)
	}
	if i.UnitPrice.IsNegative() {
		return NewValidationError("unit_price", ErrItemPriceInvalid)
	}
	return nil
}

// ItemInput: позиция, переданная клиентом. ID игнорируется: движок всегда выдаёт новый.
type ItemInput struct {
	ID        string
	ProductID string
	Quantity  int32
	// UnitPrice == nil означает "взять цену из каталога".
	UnitPrice *decimal.Decimal
}

// Validate проверяет позицию без обращения к хранилищу.
func (in ItemInput) Validate() error {
	if strings.TrimSpace(in.ProductID) == "" {
		return NewValidationError("product_id", ErrProductRequired)
	}
	if in.Quantity <= 0 {
		return NewValidationError("quantity", ErrItemQtyInvalid)
	}
	if in.UnitPrice != nil && in.UnitPrice.IsNegative() {
		return NewValidationError("unit_price", ErrItemPriceInvalid)
	}
	return nil
}

// Order агрегирует заголовок заказа и встроенный снимок позиций.
type Order struct {
	ID              string
	CreatedAt       time.Time
	CustomerID      string
	CustomerName    string
	CustomerEmail   string
	ShippingAddress string
	Status          OrderStatus
	SupplierID      string
	// Items: производная копия позиций из LineItemRepository.
	// Пишется только при реконсиляции.
	Items     []LineItem
	UpdatedAt time.Time
}

// Total возвращает сумму заказа по снимку позиций.
func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Clone возвращает копию заказа с независимым снимком позиций.
func (o Order) Clone() Order {
	dst := o
	dst.Items = CloneItems(o.Items)
	return dst
}

// WithNormalizedItems гарантирует non-nil снимок.
func (o Order) WithNormalizedItems() Order {
	if o.Items == nil {
		o.Items = []LineItem{}
	}
	return o
}

// CloneItems копирует срез позиций. nil остаётся nil.
func CloneItems(items []LineItem) []LineItem {
	if items == nil {
		return nil
	}
	dst := make([]LineItem, len(items))
	copy(dst, items)
	return dst
}

// OrderHeader: поля нового заказа без позиций.
type OrderHeader struct {
	// ID задаётся явно только при начальной загрузке данных.
	ID              string
	CustomerID      string
	CustomerName    string
	CustomerEmail   string
	ShippingAddress string
	Status          OrderStatus
	SupplierID      string
	CreatedAt       time.Time
}

// Validate проверяет заголовок нового заказа.
func (h OrderHeader) Validate() error {
	if strings.TrimSpace(h.CustomerID) == "" {
		return NewValidationError("customer_id", ErrCustomerRequired)
	}
	if h.Status != "" && !h.Status.Valid() {
		return NewValidationError("status", ErrStatusInvalid)
	}
	return nil
}

// OrderPatch: частичное обновление заголовка. nil-поля не меняются.
type OrderPatch struct {
	CustomerID      *string
	CustomerName    *string
	CustomerEmail   *string
	ShippingAddress *string
	Status          *OrderStatus
	SupplierID      *string
	CreatedAt       *time.Time
}

// Validate проверяет только присутствующие поля.
func (p OrderPatch) Validate() error {
	if p.CustomerID != nil && strings.TrimSpace(*p.CustomerID) == "" {
		return NewValidationError("customer_id", ErrCustomerRequired)
	}
	if p.Status != nil && !p.Status.Valid() {
		return NewValidationError("status", ErrStatusInvalid)
	}
	if p.CreatedAt != nil && p.CreatedAt.IsZero() {
		return NewValidationError("created_at", ErrCreatedAtRequired)
	}
	return nil
}

// Apply переносит присутствующие поля патча в заказ.
func (p OrderPatch) Apply(o *Order) {
	if p.CustomerID != nil {
		o.CustomerID = *p.CustomerID
	}
	if p.CustomerName != nil {
		o.CustomerName = *p.CustomerName
	}
	if p.CustomerEmail != nil {
		o.CustomerEmail = *p.CustomerEmail
	}
	if p.ShippingAddress != nil {
		o.ShippingAddress = *p.ShippingAddress
	}
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.SupplierID != nil {
		o.SupplierID = *p.SupplierID
	}
	if p.CreatedAt != nil {
		o.CreatedAt = *p.CreatedAt
	}
}

// IsEmpty сообщает, что патч не содержит ни одного поля.
func (p OrderPatch) IsEmpty() bool {
	return p == OrderPatch{}
}

// ItemsReplacement: полная замена позиций заказа.
// Пустой Items означает "удалить все позиции".
type ItemsReplacement struct {
	Items []ItemInput
}

// Product: товар каталога.
type Product struct {
	ID         string
	Name       string
	Price      decimal.Decimal
	SupplierID string
}
