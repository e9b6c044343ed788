package repositories

import "fmt"

// InventoryErrorCode enumerates repository error causes for stock adjustments.
type InventoryErrorCode string

const (
	// InventoryErrorUnknown represents an unspecified failure.
	InventoryErrorUnknown InventoryErrorCode = "inventory_unknown"
	// InventoryErrorInvalidInput indicates the caller supplied a malformed delta.
	InventoryErrorInvalidInput InventoryErrorCode = "inventory_invalid_input"
	// InventoryErrorStockNotFound indicates the inventory record does not exist.
	InventoryErrorStockNotFound InventoryErrorCode = "inventory_stock_not_found"
	// InventoryErrorConflict indicates a guarded delta would have driven the quantity below zero.
	InventoryErrorConflict InventoryErrorCode = "inventory_conflict"
)

// InventoryError wraps stock adjustment failures with machine readable codes. Conflict errors carry
// the record that rejected the delta together with the quantity observed at write time.
type InventoryError struct {
	Op          string
	Code        InventoryErrorCode
	Message     string
	InventoryID string
	Requested   int
	Available   int
	Err         error
}

// Error implements the error interface.
func (e *InventoryError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *InventoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the referenced record is missing.
func (e *InventoryError) IsNotFound() bool {
	return e != nil && e.Code == InventoryErrorStockNotFound
}

// IsConflict reports whether a guarded adjustment lost a race.
func (e *InventoryError) IsConflict() bool {
	return e != nil && e.Code == InventoryErrorConflict
}

// IsUnavailable is always false; transport failures surface as backend errors instead.
func (e *InventoryError) IsUnavailable() bool {
	return false
}

// NewInventoryError constructs a typed inventory error.
func NewInventoryError(code InventoryErrorCode, message string, err error) *InventoryError {
	if message == "" {
		message = string(code)
	}
	return &InventoryError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewInventoryConflict reports that applying requested units to inventoryID would overdraw it.
func NewInventoryConflict(inventoryID string, requested, available int) *InventoryError {
	err := NewInventoryError(InventoryErrorConflict,
		fmt.Sprintf("inventory %s has %d available, cannot consume %d", inventoryID, available, requested), nil)
	err.InventoryID = inventoryID
	err.Requested = requested
	err.Available = available
	return err
}

// NewInventoryNotFound reports that inventoryID has no stock record.
func NewInventoryNotFound(inventoryID string) *InventoryError {
	err := NewInventoryError(InventoryErrorStockNotFound, fmt.Sprintf("inventory %s not found", inventoryID), nil)
	err.InventoryID = inventoryID
	return err
}
