package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/ZoliswaDube/BizPilot-sub002/internal/domain"
)

var maxOrderValue = decimal.NewFromInt(1_000_000)

// OrderValidator runs the structural and business checks for a create request. It never mutates the
// request and always reports the complete list of failures.
type OrderValidator struct {
	items     ItemValidator
	addresses AddressValidator
	clock     func() time.Time
	location  *time.Location
}

// NewOrderValidator builds a validator that compares delivery dates against "today" in location.
func NewOrderValidator(clock func() time.Time, location *time.Location) OrderValidator {
	if clock == nil {
		clock = time.Now
	}
	if location == nil {
		location = time.UTC
	}
	return OrderValidator{clock: clock, location: location}
}

// ValidationResult is the outcome of a validation pass.
type ValidationResult struct {
	Errors []FieldError
}

// IsValid reports whether no failures were found.
func (r ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Err converts the result into a *ValidationError, or nil when valid.
func (r ValidationResult) Err() error {
	return newValidationError(r.Errors)
}

// Validate checks cmd. Business rules on the order value only run once every item is well formed.
func (v OrderValidator) Validate(cmd CreateOrderCommand) ValidationResult {
	var errs []FieldError

	if strings.TrimSpace(cmd.BusinessID) == "" {
		errs = append(errs, FieldError{Field: "business_id", Message: "business id is required"})
	}
	if strings.TrimSpace(cmd.ActorID) == "" {
		errs = append(errs, FieldError{Field: "actor_id", Message: "actor id is required"})
	}
	if cmd.CustomerID != nil && strings.TrimSpace(*cmd.CustomerID) == "" {
		errs = append(errs, FieldError{Field: "customer_id", Message: "customer id must not be blank"})
	}

	itemsValid := true
	if len(cmd.Items) == 0 {
		errs = append(errs, FieldError{Field: "items", Message: "at least one item is required"})
		itemsValid = false
	}
	for i, item := range cmd.Items {
		if itemErrs := v.items.Validate(item, fmt.Sprintf("items[%d].", i)); len(itemErrs) > 0 {
			errs = append(errs, itemErrs...)
			itemsValid = false
		}
	}

	discountValid := true
	if cmd.DiscountAmount != nil {
		if cmd.DiscountAmount.IsNegative() {
			errs = append(errs, FieldError{Field: "discount_amount", Message: "discount must not be negative"})
			discountValid = false
		} else if !cmd.DiscountAmount.Equal(cmd.DiscountAmount.Round(priceScale)) {
			errs = append(errs, FieldError{Field: "discount_amount", Message: fmt.Sprintf("discount must have at most %d decimal places", priceScale)})
			discountValid = false
		}
	}

	errs = append(errs, v.addresses.Validate(normalizeAddress(cmd.ShippingAddress), "shipping_address.")...)
	errs = append(errs, v.addresses.Validate(normalizeAddress(cmd.BillingAddress), "billing_address.")...)

	if cmd.EstimatedDeliveryDate != nil && v.beforeToday(*cmd.EstimatedDeliveryDate) {
		errs = append(errs, FieldError{Field: "estimated_delivery_date", Message: "estimated delivery date cannot be in the past"})
	}

	if cmd.PaymentStatus != nil && !cmd.PaymentStatus.Valid() {
		errs = append(errs, FieldError{Field: "payment_status", Message: fmt.Sprintf("unknown payment status %q", *cmd.PaymentStatus)})
	}

	if itemsValid {
		subtotal := TotalsCalculator{}.Subtotal(orderItemsFromInputs(cmd.Items))
		switch {
		case !subtotal.IsPositive():
			errs = append(errs, FieldError{Field: "items", Message: "order total must be greater than zero"})
		case subtotal.GreaterThan(maxOrderValue):
			errs = append(errs, FieldError{Field: "items", Message: fmt.Sprintf("order total must not exceed %s", maxOrderValue.StringFixed(priceScale))})
		}
		if discountValid && cmd.DiscountAmount != nil && cmd.DiscountAmount.GreaterThan(subtotal) {
			errs = append(errs, FieldError{Field: "discount_amount", Message: "discount cannot exceed the order subtotal"})
		}
	}

	return ValidationResult{Errors: errs}
}

// ValidateDiscount checks a discount edit against an existing subtotal.
func (v OrderValidator) ValidateDiscount(discount, subtotal decimal.Decimal) []FieldError {
	switch {
	case discount.IsNegative():
		return []FieldError{{Field: "discount_amount", Message: "discount must not be negative"}}
	case !discount.Equal(discount.Round(priceScale)):
		return []FieldError{{Field: "discount_amount", Message: fmt.Sprintf("discount must have at most %d decimal places", priceScale)}}
	case discount.GreaterThan(subtotal):
		return []FieldError{{Field: "discount_amount", Message: "discount cannot exceed the order subtotal"}}
	}
	return nil
}

// ValidateDeliveryDate rejects dates strictly before today.
func (v OrderValidator) ValidateDeliveryDate(date time.Time) []FieldError {
	if v.beforeToday(date) {
		return []FieldError{{Field: "estimated_delivery_date", Message: "estimated delivery date cannot be in the past"}}
	}
	return nil
}

// ValidateAddress exposes the address rules for edits.
func (v OrderValidator) ValidateAddress(addr *Address, prefix string) []FieldError {
	return v.addresses.Validate(normalizeAddress(addr), prefix)
}

// beforeToday compares calendar dates only. The delivery date is a civil date and is read in UTC;
// today is taken in the business location.
func (v OrderValidator) beforeToday(date time.Time) bool {
	today := civilDate(v.clock().In(v.location))
	return civilDate(date.UTC()).Before(today)
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func orderItemsFromInputs(inputs []OrderItemInput) []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(inputs))
	for _, in := range inputs {
		items = append(items, domain.OrderItem{Quantity: in.Quantity, UnitPrice: in.UnitPrice})
	}
	return items
}
