package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation: общий маркер ошибок валидации входных данных.
	ErrValidation = errors.New("validation failed")
	// ErrCatalogLookup: маркер ошибок разрешения цены через каталог.
	ErrCatalogLookup = errors.New("catalog lookup failed")
	// ErrPersistence: маркер ошибок хранилища.
	ErrPersistence = errors.New("persistence failed")

	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка, если дату создания заказа установить не удалось.
	ErrCreatedAtRequired = errors.New("order creation timestamp is required")
	// Ошибка неизвестного статуса заказа.
	ErrStatusInvalid = errors.New("order status is not supported")
	// Ошибка отсутствующего идентификатора товара в позиции.
	ErrProductRequired = errors.New("item product_id is required")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка отсутствия цены у позиции, когда каталог не используется.
	ErrItemPriceRequired = errors.New("item price is required")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderAlreadyExists возвращается при создании заказа с занятым ID.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// ErrProductNotFound: каталог не знает такой товар.
	ErrProductNotFound = errors.New("product not found")

	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// Ошибки idempotency-ключей.
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different request")
)

// ValidationError описывает некорректное поле запроса. Ничего не было сохранено.
type ValidationError struct {
	Field string
	Err   error
}

// NewValidationError оборачивает причину ошибки валидации.
func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Err}
}

// CatalogLookupError: не удалось получить цену товара при создании заказа.
type CatalogLookupError struct {
	ProductID string
	Err       error
}

func (e *CatalogLookupError) Error() string {
	return fmt.Sprintf("resolve price of product %q: %v", e.ProductID, e.Err)
}

func (e *CatalogLookupError) Unwrap() []error {
	return []error{ErrCatalogLookup, e.Err}
}

// PersistenceError: сбой хранилища на конкретном шаге последовательности записи.
// Step показывает, какой префикс последовательности мог быть уже зафиксирован.
type PersistenceError struct {
	Op      string
	Step    string
	OrderID string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s order %s: %s: %v", e.Op, e.OrderID, e.Step, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

// IsValidation проверяет, является ли ошибка ошибкой валидации.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound проверяет, что заказ не найден.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound)
}

// IsCatalogLookup проверяет, является ли ошибка сбоем каталога.
func IsCatalogLookup(err error) bool {
	return errors.Is(err, ErrCatalogLookup)
}

// IsPersistence проверяет, является ли ошибка сбоем хранилища.
func IsPersistence(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// IsIdempotencyConflict проверяет, что ключ уже использован.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}
