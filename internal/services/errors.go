package services

import (
	"errors"
	"fmt"
	"strings"

	domain "github.com/ZoliswaDube/BizPilot-sub002/internal/domain"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates an invalid status transition was attempted.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates a concurrent writer changed the data first.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates the persistence backend could not be reached.
	ErrOrderUnavailable = errors.New("order: repository unavailable")

	// ErrInventoryInsufficientStock indicates at least one item cannot be fulfilled from stock.
	ErrInventoryInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInventoryConflict indicates stock changed between the check and the write.
	ErrInventoryConflict = errors.New("inventory: concurrent update")
)

// FieldError is a single validation failure addressed by a field path such as
// "items[2].quantity" or "shipping_address.postal_code".
type FieldError struct {
	Field   string
	Message string
}

// ValidationError aggregates every field failure found in a request.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Errors) == 0 {
		return ErrOrderInvalidInput.Error()
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return fmt.Sprintf("%s: %s", ErrOrderInvalidInput, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrOrderInvalidInput
}

func newValidationError(errs []FieldError) error {
	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: errs}
}

// InventoryCheckError is returned when the stock check finds hard failures. Warnings found in the
// same pass are carried along so callers can render both.
type InventoryCheckError struct {
	Validation InventoryValidation
}

func (e *InventoryCheckError) Error() string {
	if e == nil || len(e.Validation.Errors) == 0 {
		return ErrInventoryInsufficientStock.Error()
	}
	messages := make([]string, 0, len(e.Validation.Errors))
	for _, issue := range e.Validation.Errors {
		messages = append(messages, issue.Message)
	}
	return fmt.Sprintf("%s: %s", ErrInventoryInsufficientStock, strings.Join(messages, "; "))
}

func (e *InventoryCheckError) Unwrap() error {
	return ErrInventoryInsufficientStock
}

// StatusTransitionError reports a rejected status change together with the statuses that are
// reachable from the current one.
type StatusTransitionError struct {
	From    domain.OrderStatus
	To      domain.OrderStatus
	Allowed []domain.OrderStatus
}

func (e *StatusTransitionError) Error() string {
	if e == nil {
		return ErrOrderInvalidState.Error()
	}
	if e.From == e.To {
		return fmt.Sprintf("%s: order is already in status %s", ErrOrderInvalidState, e.To)
	}
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("%s: %s is terminal, cannot move to %s", ErrOrderInvalidState, e.From, e.To)
	}
	allowed := make([]string, 0, len(e.Allowed))
	for _, status := range e.Allowed {
		allowed = append(allowed, string(status))
	}
	return fmt.Sprintf("%s: cannot move from %s to %s, allowed: %s", ErrOrderInvalidState, e.From, e.To, strings.Join(allowed, ", "))
}

func (e *StatusTransitionError) Unwrap() error {
	return ErrOrderInvalidState
}

// ConcurrencyConflictError is returned when a guarded stock write loses a race. Revalidation holds a
// fresh stock check taken after the failed write so callers never act on the stale one.
type ConcurrencyConflictError struct {
	InventoryID  string
	Requested    int
	Available    int
	Revalidation *InventoryValidation
	Err          error
}

func (e *ConcurrencyConflictError) Error() string {
	if e == nil {
		return ErrInventoryConflict.Error()
	}
	return fmt.Sprintf("%s: inventory %s has %d available, %d requested", ErrInventoryConflict, e.InventoryID, e.Available, e.Requested)
}

func (e *ConcurrencyConflictError) Unwrap() []error {
	if e == nil {
		return nil
	}
	errs := []error{ErrInventoryConflict, ErrOrderConflict}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
