package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ZoliswaDube/BizPilot-sub002/internal/platform/textutil"
)

const (
	maxProductNameLength = 255
	minItemQuantity      = 1
	maxItemQuantity      = 10000
	priceScale           = 2
)

var maxUnitPrice = decimal.RequireFromString("999999.99")

// ItemValidator checks the shape of a single order line.
type ItemValidator struct{}

// Validate returns every failure found on item. Field names are prefixed with prefix so callers can
// address items inside a list, e.g. "items[3].".
func (ItemValidator) Validate(item OrderItemInput, prefix string) []FieldError {
	var errs []FieldError
	add := func(field, message string) {
		errs = append(errs, FieldError{Field: prefix + field, Message: message})
	}

	name := textutil.Normalize(item.ProductName)
	switch {
	case name == "":
		add("product_name", "product name is required")
	case textutil.Length(name) > maxProductNameLength:
		add("product_name", fmt.Sprintf("product name must be at most %d characters", maxProductNameLength))
	}

	if item.Quantity < minItemQuantity || item.Quantity > maxItemQuantity {
		add("quantity", fmt.Sprintf("quantity must be between %d and %d", minItemQuantity, maxItemQuantity))
	}

	switch {
	case item.UnitPrice.IsNegative():
		add("unit_price", "unit price must not be negative")
	case item.UnitPrice.GreaterThan(maxUnitPrice):
		add("unit_price", fmt.Sprintf("unit price must not exceed %s", maxUnitPrice.StringFixed(priceScale)))
	case !item.UnitPrice.Equal(item.UnitPrice.Round(priceScale)):
		add("unit_price", fmt.Sprintf("unit price must have at most %d decimal places", priceScale))
	}

	if hasValue(item.ProductID) && hasValue(item.InventoryID) {
		add("inventory_id", "an item may reference a product or an inventory record, not both")
	}

	return errs
}

func hasValue(value *string) bool {
	return value != nil && strings.TrimSpace(*value) != ""
}
