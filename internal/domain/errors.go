package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAlreadyProcessing = errors.New("already processing")
	ErrNoOpenRegister    = errors.New("no open cash register")
	ErrRegisterClosed    = errors.New("cash register is closed")
	ErrOrderNotOpen      = errors.New("order is not open")
)

// ValidationError is raised before any mutation is attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field string, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

type Shortage struct {
	ProductID string `json:"product_id"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

// InsufficientStockError means the pre-check failed and no stock was written.
type InsufficientStockError struct {
	Shortages []Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("%s (required %d, available %d)", s.ProductID, s.Required, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}

// PartialFailureError reports a stock write that failed mid-sequence.
// Decremented lists the products written before the failure. When
// Compensated is false the store is inconsistent and needs manual reconciliation.
type PartialFailureError struct {
	Cause       error
	Decremented []string
	Compensated bool
	// CompensationErr is the first error hit while restoring stock.
	CompensationErr error
}

func (e *PartialFailureError) Error() string {
	if e.Compensated {
		return fmt.Sprintf("stock update failed, changes reverted: %v", e.Cause)
	}
	return fmt.Sprintf("stock update failed and could not be reverted for %s: %v (compensation: %v)",
		strings.Join(e.Decremented, ","), e.Cause, e.CompensationErr)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Cause
}

func (e *PartialFailureError) Fatal() bool {
	return !e.Compensated
}

// PersistenceError wraps a store or network failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsInsufficientStock(err error) bool {
	var target *InsufficientStockError
	return errors.As(err, &target)
}

func IsPersistence(err error) bool {
	var target *PersistenceError
	return errors.As(err, &target)
}
