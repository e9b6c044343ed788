package services

import (
	"github.com/shopspring/decimal"

	domain "github.com/ZoliswaDube/BizPilot-sub002/internal/domain"
)

// TotalsCalculator derives order totals from line items, a discount and a fixed tax rate. It is pure
// and never fails; inputs are expected to have passed validation.
type TotalsCalculator struct {
	taxRate decimal.Decimal
	scale   int32
}

// NewTotalsCalculator binds the calculator to a tax rate expressed as a fraction (0.15 for 15%).
func NewTotalsCalculator(taxRate decimal.Decimal) TotalsCalculator {
	return TotalsCalculator{taxRate: taxRate, scale: priceScale}
}

// TaxRate returns the rate the calculator applies.
func (c TotalsCalculator) TaxRate() decimal.Decimal {
	return c.taxRate
}

// Subtotal sums quantity × unit price over items without rounding.
func (c TotalsCalculator) Subtotal(items []domain.OrderItem) decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.TotalPrice())
	}
	return subtotal
}

// Compute returns subtotal, tax, discount and total. Tax is rounded half away from zero to the
// currency scale and the total is floored at zero.
func (c TotalsCalculator) Compute(items []domain.OrderItem, discount decimal.Decimal) domain.OrderTotals {
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	subtotal := c.Subtotal(items)
	tax := subtotal.Mul(c.taxRate).Round(c.scale)
	total := subtotal.Add(tax).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return domain.OrderTotals{
		Subtotal:       subtotal,
		TaxAmount:      tax,
		DiscountAmount: discount,
		TotalAmount:    total,
	}
}

// TaxRates resolves the tax rate for a business. Overrides win over the default.
type TaxRates struct {
	Default   decimal.Decimal
	Overrides map[string]decimal.Decimal
}

// For returns the rate configured for businessID.
func (r TaxRates) For(businessID string) decimal.Decimal {
	if rate, ok := r.Overrides[businessID]; ok {
		return rate
	}
	return r.Default
}
