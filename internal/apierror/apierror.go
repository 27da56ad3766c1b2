// Package apierror holds the JSON error envelope returned by the HTTP layer
// and the mapping from domain errors to status codes.
package apierror

import (
	"errors"
	"net/http"

	"github.com/lucasrenata/order-up-point-sub000/internal/domain"
	"github.com/lucasrenata/order-up-point-sub000/internal/store"
)

// APIError is the envelope for every 4xx/5xx response.
type APIError struct {
	Detail string `json:"detail"`
	Code   string `json:"code,omitempty"`
}

func New(msg string) *APIError {
	return &APIError{Detail: msg}
}

// ValidationError reports one or more invalid request fields.
type ValidationError struct {
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields"`
}

func NewValidation(fields map[string]string) *ValidationError {
	return &ValidationError{Detail: "validation failed", Fields: fields}
}

// StockError lists the products that blocked a settlement.
type StockError struct {
	Detail    string            `json:"detail"`
	Code      string            `json:"code"`
	Shortages []domain.Shortage `json:"shortages"`
}

const (
	CodeValidation        = "validation"
	CodeInsufficientStock = "insufficient_stock"
	CodeNotFound          = "not_found"
	CodeAlreadyProcessing = "already_processing"
	CodeNoOpenRegister    = "no_open_register"
	CodeRegisterClosed    = "register_closed"
	CodeOrderNotOpen      = "order_not_open"
	CodePartialFailure    = "partial_failure"
	CodePersistence       = "persistence"
	CodeInternal          = "internal"
)

// FromError maps err to a status code and a body safe to return. Server-side
// failures never expose the underlying message.
func FromError(err error) (int, any) {
	var validation *domain.ValidationError
	var shortage *domain.InsufficientStockError
	var partial *domain.PartialFailureError
	var persistence *domain.PersistenceError

	// A partial failure wraps its cause, so it is matched before any sentinel.
	switch {
	case errors.As(err, &partial):
		detail := "stock update failed and was reverted"
		if partial.Fatal() {
			detail = "stock update failed and needs manual reconciliation"
		}
		return http.StatusInternalServerError, &APIError{Detail: detail, Code: CodePartialFailure}
	case errors.As(err, &validation):
		field := validation.Field
		if field == "" {
			field = "request"
		}
		return http.StatusUnprocessableEntity, NewValidation(map[string]string{field: validation.Reason})
	case errors.As(err, &shortage):
		return http.StatusUnprocessableEntity, &StockError{
			Detail:    "insufficient stock",
			Code:      CodeInsufficientStock,
			Shortages: shortage.Shortages,
		}
	case errors.Is(err, store.ErrInsufficientStock):
		return http.StatusUnprocessableEntity, &APIError{Detail: "insufficient stock", Code: CodeInsufficientStock}
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, &APIError{Detail: "resource not found", Code: CodeNotFound}
	case errors.Is(err, domain.ErrAlreadyProcessing):
		return http.StatusConflict, &APIError{Detail: "request already being processed", Code: CodeAlreadyProcessing}
	case errors.Is(err, domain.ErrNoOpenRegister):
		return http.StatusConflict, &APIError{Detail: "no cash register is open", Code: CodeNoOpenRegister}
	case errors.Is(err, domain.ErrRegisterClosed):
		return http.StatusConflict, &APIError{Detail: "cash register is closed", Code: CodeRegisterClosed}
	case errors.Is(err, domain.ErrOrderNotOpen):
		return http.StatusConflict, &APIError{Detail: "order is not open", Code: CodeOrderNotOpen}
	case errors.As(err, &persistence):
		return http.StatusServiceUnavailable, &APIError{Detail: "storage unavailable, try again", Code: CodePersistence}
	default:
		return http.StatusInternalServerError, &APIError{Detail: "internal server error", Code: CodeInternal}
	}
}
