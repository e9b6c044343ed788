package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	domain "github.com/ZoliswaDube/BizPilot-sub002/internal/domain"
	ppostgres "github.com/ZoliswaDube/BizPilot-sub002/internal/platform/postgres"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/repositories"
)

const orderColumns = `id, business_id, customer_id, customer_name, order_number, status, payment_status,
	tax_rate::text, subtotal::text, tax_amount::text, discount_amount::text, total_amount::text,
	notes, shipping_address, billing_address, estimated_delivery_date, actual_delivery_date,
	created_by, updated_by, created_at, updated_at`

// OrderRepository stores orders in the orders table and their lines in order_items.
type OrderRepository struct {
	uow *ppostgres.UnitOfWork
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

func (r *OrderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	shipping, err := encodeAddress(order.ShippingAddress)
	if err != nil {
		return domain.Order{}, err
	}
	billing, err := encodeAddress(order.BillingAddress)
	if err != nil {
		return domain.Order{}, err
	}

	err = r.uow.RunInTx(ctx, func(txCtx context.Context) error {
		q := r.uow.Querier(txCtx)
		_, err := q.Exec(txCtx, `
			INSERT INTO orders (id, business_id, customer_id, customer_name, order_number, status, payment_status,
				tax_rate, subtotal, tax_amount, discount_amount, total_amount,
				notes, shipping_address, billing_address, estimated_delivery_date, actual_delivery_date,
				created_by, updated_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10::numeric, $11::numeric, $12::numeric,
				$13, $14, $15, $16, $17, $18, $19, $20, $21)`,
			order.ID, order.BusinessID, order.CustomerID, order.CustomerName, order.OrderNumber,
			string(order.Status), string(order.PaymentStatus),
			order.TaxRate.String(), money(order.Totals.Subtotal), money(order.Totals.TaxAmount),
			money(order.Totals.DiscountAmount), money(order.Totals.TotalAmount),
			order.Notes, shipping, billing, datePtr(order.EstimatedDeliveryDate), datePtr(order.ActualDeliveryDate),
			order.CreatedBy, order.UpdatedBy, order.CreatedAt.UTC(), order.UpdatedAt.UTC(),
		)
		if err != nil {
			return ppostgres.WrapError("orders.create", err)
		}

		batch := &pgx.Batch{}
		for i, item := range order.Items {
			batch.Queue(`
				INSERT INTO order_items (id, order_id, position, product_id, inventory_id, product_name, quantity, unit_price)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric)`,
				item.ID, order.ID, i, item.ProductID, item.InventoryID, item.ProductName, item.Quantity, money(item.UnitPrice))
		}
		results := q.SendBatch(txCtx, batch)
		for range order.Items {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return ppostgres.WrapError("orders.create_items", err)
			}
		}
		return ppostgres.WrapError("orders.create_items", results.Close())
	})
	if err != nil {
		return domain.Order{}, err
	}

	created := order
	created.Items = make([]domain.OrderItem, len(order.Items))
	for i, item := range order.Items {
		item.OrderID = order.ID
		created.Items[i] = item
	}
	return created, nil
}

// Update writes only the columns the patch names. A patch with nothing to change is a no-op.
func (r *OrderRepository) Update(ctx context.Context, orderID string, patch repositories.OrderPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	sets, args, err := patchAssignments(patch)
	if err != nil {
		return err
	}
	args = append(args, orderID)
	query := fmt.Sprintf("UPDATE orders SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	tag, err := r.uow.Querier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return ppostgres.WrapError("orders.update", err)
	}
	if tag.RowsAffected() == 0 {
		return ppostgres.NotFoundError("orders.update", "order %s not found", orderID)
	}
	return nil
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE id = $1"
	if _, inTx := ppostgres.TxFromContext(ctx); inTx {
		query += " FOR UPDATE"
	}
	q := r.uow.Querier(ctx)

	order, err := scanOrder(q.QueryRow(ctx, query, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, ppostgres.NotFoundError("orders.get", "order %s not found", orderID)
	}
	if err != nil {
		return domain.Order{}, ppostgres.WrapError("orders.get", err)
	}

	rows, err := q.Query(ctx, `
		SELECT id, product_id, inventory_id, product_name, quantity, unit_price::text
		FROM order_items WHERE order_id = $1 ORDER BY position`, orderID)
	if err != nil {
		return domain.Order{}, ppostgres.WrapError("orders.get_items", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.OrderItem, error) {
		var (
			item  domain.OrderItem
			price string
		)
		if err := row.Scan(&item.ID, &item.ProductID, &item.InventoryID, &item.ProductName, &item.Quantity, &price); err != nil {
			return domain.OrderItem{}, err
		}
		parsed, err := decimal.NewFromString(price)
		if err != nil {
			return domain.OrderItem{}, fmt.Errorf("order item %s unit_price: %w", item.ID, err)
		}
		item.UnitPrice = parsed
		item.OrderID = orderID
		return item, nil
	})
	if err != nil {
		return domain.Order{}, ppostgres.WrapError("orders.get_items", err)
	}
	order.Items = items
	return order, nil
}

// Delete removes the order. Items and history go with it through ON DELETE CASCADE.
func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	tag, err := r.uow.Querier(ctx).Exec(ctx, "DELETE FROM orders WHERE id = $1", orderID)
	if err != nil {
		return ppostgres.WrapError("orders.delete", err)
	}
	if tag.RowsAffected() == 0 {
		return ppostgres.NotFoundError("orders.delete", "order %s not found", orderID)
	}
	return nil
}

func patchAssignments(patch repositories.OrderPatch) ([]string, []any, error) {
	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	setNumeric := func(column string, value decimal.Decimal) {
		args = append(args, money(value))
		sets = append(sets, fmt.Sprintf("%s = $%d::numeric", column, len(args)))
	}

	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	if patch.PaymentStatus != nil {
		set("payment_status", string(*patch.PaymentStatus))
	}
	if patch.Totals != nil {
		setNumeric("subtotal", patch.Totals.Subtotal)
		setNumeric("tax_amount", patch.Totals.TaxAmount)
		setNumeric("discount_amount", patch.Totals.DiscountAmount)
		setNumeric("total_amount", patch.Totals.TotalAmount)
	}
	switch {
	case patch.ClearNotes:
		set("notes", nil)
	case patch.Notes != nil:
		set("notes", *patch.Notes)
	}
	for _, addr := range []struct {
		column string
		clear  bool
		value  *domain.Address
	}{
		{"shipping_address", patch.ClearShippingAddress, patch.ShippingAddress},
		{"billing_address", patch.ClearBillingAddress, patch.BillingAddress},
	} {
		switch {
		case addr.clear:
			set(addr.column, nil)
		case addr.value != nil:
			encoded, err := encodeAddress(addr.value)
			if err != nil {
				return nil, nil, err
			}
			set(addr.column, encoded)
		}
	}
	switch {
	case patch.ClearEstimatedDeliveryDate:
		set("estimated_delivery_date", nil)
	case patch.EstimatedDeliveryDate != nil:
		set("estimated_delivery_date", datePtr(patch.EstimatedDeliveryDate))
	}
	if patch.ActualDeliveryDate != nil {
		set("actual_delivery_date", datePtr(patch.ActualDeliveryDate))
	}
	if patch.UpdatedBy != "" {
		set("updated_by", patch.UpdatedBy)
	}
	if !patch.UpdatedAt.IsZero() {
		set("updated_at", patch.UpdatedAt.UTC())
	}
	return sets, args, nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		order                                   domain.Order
		status, paymentStatus                   string
		taxRate, subtotal, tax, discount, total string
		shipping, billing                       []byte
	)
	if err := row.Scan(
		&order.ID, &order.BusinessID, &order.CustomerID, &order.CustomerName, &order.OrderNumber,
		&status, &paymentStatus,
		&taxRate, &subtotal, &tax, &discount, &total,
		&order.Notes, &shipping, &billing, &order.EstimatedDeliveryDate, &order.ActualDeliveryDate,
		&order.CreatedBy, &order.UpdatedBy, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.PaymentStatus = domain.PaymentStatus(paymentStatus)

	amounts := []struct {
		raw    string
		target *decimal.Decimal
	}{
		{taxRate, &order.TaxRate},
		{subtotal, &order.Totals.Subtotal},
		{tax, &order.Totals.TaxAmount},
		{discount, &order.Totals.DiscountAmount},
		{total, &order.Totals.TotalAmount},
	}
	for _, amount := range amounts {
		parsed, err := decimal.NewFromString(amount.raw)
		if err != nil {
			return domain.Order{}, fmt.Errorf("order %s amount %q: %w", order.ID, amount.raw, err)
		}
		*amount.target = parsed
	}

	var err error
	if order.ShippingAddress, err = decodeAddress(shipping); err != nil {
		return domain.Order{}, err
	}
	if order.BillingAddress, err = decodeAddress(billing); err != nil {
		return domain.Order{}, err
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

type addressRecord struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func encodeAddress(addr *domain.Address) ([]byte, error) {
	if addr == nil {
		return nil, nil
	}
	data, err := json.Marshal(addressRecord(*addr))
	if err != nil {
		return nil, fmt.Errorf("encode address: %w", err)
	}
	return data, nil
}

func decodeAddress(data []byte) (*domain.Address, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var record addressRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode address: %w", err)
	}
	addr := domain.Address(record)
	return &addr, nil
}

func money(value decimal.Decimal) string {
	return value.StringFixed(2)
}

// datePtr truncates to the civil date the DATE columns store.
func datePtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	v := value.UTC()
	d := time.Date(v.Year(), v.Month(), v.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}
