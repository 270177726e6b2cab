package api

import (
	"errors"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

// Коды ошибок в ErrorResponse.Code.
const (
	CodeValidation    = "validation_failed"
	CodeNotFound      = "not_found"
	CodeAlreadyExists = "already_exists"
	CodeCatalogLookup = "catalog_lookup_failed"
	CodePersistence   = "persistence_failed"
	CodeInternal      = "internal"
)

// ErrorCode классифицирует ошибку движка. Порядок важен: CatalogLookupError
// с ErrProductNotFound внутри: это ошибка каталога, а не "заказ не найден".
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case domain.IsValidation(err):
		return CodeValidation
	case domain.IsCatalogLookup(err):
		return CodeCatalogLookup
	case errors.Is(err, domain.ErrOrderAlreadyExists):
		return CodeAlreadyExists
	case domain.IsNotFound(err):
		return CodeNotFound
	case domain.IsPersistence(err):
		return CodePersistence
	default:
		return CodeInternal
	}
}

// NewErrorResponse скрывает текст внутренних ошибок.
func NewErrorResponse(err error) ErrorResponse {
	code := ErrorCode(err)
	message := err.Error()
	if code == CodeInternal || code == CodePersistence {
		message = "internal storage error"
	}
	return ErrorResponse{Error: message, Code: code}
}
