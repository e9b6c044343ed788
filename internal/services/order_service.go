package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/ZoliswaDube/BizPilot-sub002/internal/domain"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/platform/textutil"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"
	orderEventUpdated       = "order.updated"
	orderEventDeleted       = "order.deleted"
	inventoryEventLowStock  = "inventory.low_stock"

	orderIDPrefix        = "ord_"
	orderItemIDPrefix    = "oli_"
	statusHistoryPrefix  = "osh_"
	defaultNumberPrefix  = "ORD"
	instrumentationScope = "github.com/ZoliswaDube/BizPilot-sub002/internal/services"
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders    repositories.OrderRepository
	Inventory repositories.InventoryRepository
	History   repositories.StatusHistoryRepository
	Customers repositories.CustomerLookup
	Counters  repositories.CounterRepository
	// UnitOfWork makes createOrder and advanceStatus atomic. Without it writes are not grouped.
	UnitOfWork repositories.UnitOfWork
	TaxRates   TaxRates
	// Location decides which calendar day counts as "today" for delivery dates.
	Location                  *time.Location
	NumberPrefix              string
	InventoryCheckConcurrency int
	Clock                     func() time.Time
	IDGenerator               func() string
	Events                    OrderEventPublisher
	Logger                    func(ctx context.Context, event string, fields map[string]any)
	Tracer                    trace.Tracer
	Meter                     metric.Meter
}

type orderMetrics struct {
	created     metric.Int64Counter
	transitions metric.Int64Counter
	conflicts   metric.Int64Counter
}

type orderService struct {
	orders     repositories.OrderRepository
	history    repositories.StatusHistoryRepository
	customers  repositories.CustomerLookup
	counters   repositories.CounterRepository
	unitOfWork repositories.UnitOfWork
	inventory  *InventoryReconciler
	validator  OrderValidator
	workflow   StatusWorkflow
	taxRates   TaxRates
	location   *time.Location
	prefix     string
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
	tracer     trace.Tracer
	metrics    orderMetrics
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("order service: inventory repository is required")
	}
	if deps.History == nil {
		return nil, errors.New("order service: status history repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}
	if deps.TaxRates.Default.IsNegative() {
		return nil, errors.New("order service: tax rate must not be negative")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	location := deps.Location
	if location == nil {
		location = time.UTC
	}

	prefix := strings.TrimSpace(deps.NumberPrefix)
	if prefix == "" {
		prefix = defaultNumberPrefix
	}

	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationScope)
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationScope)
	}
	metrics, err := newOrderMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("order service: metrics: %w", err)
	}

	utcClock := func() time.Time {
		return clock().UTC()
	}

	reconciler, err := NewInventoryReconciler(InventoryReconcilerDeps{
		Inventory:   deps.Inventory,
		Concurrency: deps.InventoryCheckConcurrency,
		Clock:       utcClock,
		IDGenerator: idGen,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	return &orderService{
		orders:     deps.Orders,
		history:    deps.History,
		customers:  deps.Customers,
		counters:   deps.Counters,
		unitOfWork: unit,
		inventory:  reconciler,
		validator:  NewOrderValidator(utcClock, location),
		taxRates:   deps.TaxRates,
		location:   location,
		prefix:     prefix,
		clock:      utcClock,
		newID:      idGen,
		events:     deps.Events,
		logger:     logger,
		tracer:     tracer,
		metrics:    metrics,
	}, nil
}

func newOrderMetrics(meter metric.Meter) (orderMetrics, error) {
	created, err := meter.Int64Counter("orders.created",
		metric.WithDescription("Orders persisted"))
	if err != nil {
		return orderMetrics{}, err
	}
	transitions, err := meter.Int64Counter("orders.status_transitions",
		metric.WithDescription("Order status changes applied"))
	if err != nil {
		return orderMetrics{}, err
	}
	conflicts, err := meter.Int64Counter("orders.inventory_conflicts",
		metric.WithDescription("Guarded stock writes that lost a race"))
	if err != nil {
		return orderMetrics{}, err
	}
	return orderMetrics{created: created, transitions: transitions, conflicts: conflicts}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (result CreateOrderResult, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.CreateOrder")
	defer func() { endSpan(span, err) }()

	cmd = normalizeCreateCommand(cmd)
	span.SetAttributes(attribute.String("business_id", cmd.BusinessID), attribute.Int("items", len(cmd.Items)))

	if validation := s.validator.Validate(cmd); !validation.IsValid() {
		return CreateOrderResult{}, validation.Err()
	}

	customerName, err := s.resolveCustomer(ctx, cmd.BusinessID, cmd.CustomerID)
	if err != nil {
		return CreateOrderResult{}, err
	}

	now := s.now()
	orderID := s.nextOrderID()
	items := make([]OrderItem, 0, len(cmd.Items))
	for _, in := range cmd.Items {
		items = append(items, OrderItem{
			ID:          orderItemIDPrefix + s.newID(),
			OrderID:     orderID,
			ProductID:   trimmedPtr(in.ProductID),
			InventoryID: trimmedPtr(in.InventoryID),
			ProductName: in.ProductName,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
		})
	}
	lines := inventoryLinesForItems(items)

	check, err := s.inventory.Check(ctx, cmd.BusinessID, lines)
	if err != nil {
		return CreateOrderResult{}, err
	}
	if !check.IsValid {
		return CreateOrderResult{}, &InventoryCheckError{Validation: check}
	}

	taxRate := s.taxRates.For(cmd.BusinessID)
	discount := decimal.Zero
	if cmd.DiscountAmount != nil {
		discount = *cmd.DiscountAmount
	}
	totals := NewTotalsCalculator(taxRate).Compute(items, discount)

	orderNumber, err := s.generateOrderNumber(ctx, cmd.BusinessID, now)
	if err != nil {
		return CreateOrderResult{}, s.mapRepositoryError(err)
	}

	paymentStatus := domain.PaymentStatusUnpaid
	if cmd.PaymentStatus != nil {
		paymentStatus = *cmd.PaymentStatus
	}

	order := Order{
		ID:                    orderID,
		BusinessID:            cmd.BusinessID,
		CustomerID:            cmd.CustomerID,
		CustomerName:          customerName,
		OrderNumber:           orderNumber,
		Status:                domain.OrderStatusPending,
		PaymentStatus:         paymentStatus,
		TaxRate:               taxRate,
		Totals:                totals,
		Notes:                 cmd.Notes,
		ShippingAddress:       cmd.ShippingAddress,
		BillingAddress:        cmd.BillingAddress,
		EstimatedDeliveryDate: civilDatePtr(cmd.EstimatedDeliveryDate),
		Items:                 items,
		CreatedBy:             cmd.ActorID,
		UpdatedBy:             cmd.ActorID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	ref := InventoryOrderRef{BusinessID: cmd.BusinessID, OrderID: orderID, OrderNumber: orderNumber, ActorID: cmd.ActorID}
	entry := s.workflow.HistoryEntry(statusHistoryPrefix+s.newID(), orderID, domain.OrderStatusPending, cmd.ActorID, nil, now)

	var created Order
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.inventory.Apply(txCtx, ref, lines, InventoryConsume); err != nil {
			return err
		}
		saved, err := s.orders.Create(txCtx, order)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if err := s.history.Append(txCtx, entry); err != nil {
			return s.mapRepositoryError(err)
		}
		created = saved
		return nil
	})
	if err != nil {
		var conflict *ConcurrencyConflictError
		if errors.As(err, &conflict) {
			s.metrics.conflicts.Add(ctx, 1)
			if fresh, checkErr := s.inventory.Check(ctx, cmd.BusinessID, lines); checkErr == nil {
				conflict.Revalidation = &fresh
			}
			s.logger(ctx, "order.create.inventory_conflict", map[string]any{
				"orderId":     orderID,
				"inventoryId": conflict.InventoryID,
				"requested":   conflict.Requested,
				"available":   conflict.Available,
			})
		}
		return CreateOrderResult{}, err
	}

	s.metrics.created.Add(ctx, 1, metric.WithAttributes(attribute.String("business_id", cmd.BusinessID)))
	s.logger(ctx, "order.created", map[string]any{
		"orderId":     created.ID,
		"orderNumber": created.OrderNumber,
		"businessId":  created.BusinessID,
		"total":       created.Totals.TotalAmount.StringFixed(priceScale),
		"warnings":    len(check.Warnings),
	})

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventCreated,
		BusinessID:    created.BusinessID,
		OrderID:       created.ID,
		OrderNumber:   created.OrderNumber,
		CurrentStatus: string(created.Status),
		ActorID:       cmd.ActorID,
		OccurredAt:    now,
		Metadata: map[string]any{
			"totalAmount": created.Totals.TotalAmount.StringFixed(priceScale),
			"itemCount":   len(created.Items),
		},
	})
	for _, warning := range check.Warnings {
		s.publishEvent(ctx, OrderEvent{
			Type:        inventoryEventLowStock,
			BusinessID:  created.BusinessID,
			OrderID:     created.ID,
			OrderNumber: created.OrderNumber,
			ActorID:     cmd.ActorID,
			OccurredAt:  now,
			Metadata: map[string]any{
				"inventoryId":   warning.InventoryID,
				"remaining":     warning.Available - warning.Requested,
				"lowStockAlert": warning.LowStockAlert,
			},
		})
	}

	return CreateOrderResult{Order: created, Warnings: check.Warnings}, nil
}

func (s *orderService) AdvanceStatus(ctx context.Context, cmd AdvanceStatusCommand) (order Order, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.AdvanceStatus")
	defer func() { endSpan(span, err) }()

	orderID := strings.TrimSpace(cmd.OrderID)
	actorID := strings.TrimSpace(cmd.ActorID)
	target := domain.OrderStatus(strings.ToLower(strings.TrimSpace(string(cmd.TargetStatus))))
	span.SetAttributes(attribute.String("order_id", orderID), attribute.String("target_status", string(target)))

	var fieldErrs []FieldError
	if orderID == "" {
		fieldErrs = append(fieldErrs, FieldError{Field: "order_id", Message: "order id is required"})
	}
	if actorID == "" {
		fieldErrs = append(fieldErrs, FieldError{Field: "actor_id", Message: "actor id is required"})
	}
	if !target.Valid() {
		fieldErrs = append(fieldErrs, FieldError{Field: "status", Message: fmt.Sprintf("unknown order status %q", cmd.TargetStatus)})
	}
	if cmd.ExpectedStatus != nil && !cmd.ExpectedStatus.Valid() {
		fieldErrs = append(fieldErrs, FieldError{Field: "expected_status", Message: fmt.Sprintf("unknown order status %q", *cmd.ExpectedStatus)})
	}
	if err := newValidationError(fieldErrs); err != nil {
		return Order{}, err
	}
	notes := textutil.OptionalPlainText(cmd.Notes)

	var previous domain.OrderStatus
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.loadOrder(txCtx, cmd.BusinessID, orderID)
		if err != nil {
			return err
		}
		if cmd.ExpectedStatus != nil && current.Status != *cmd.ExpectedStatus {
			return fmt.Errorf("%w: order %s is %s, expected %s", ErrOrderConflict, orderID, current.Status, *cmd.ExpectedStatus)
		}
		if err := s.workflow.ValidateTransition(current.Status, target); err != nil {
			return err
		}

		if s.workflow.RequiresInventoryRestore(target) {
			ref := InventoryOrderRef{BusinessID: current.BusinessID, OrderID: current.ID, OrderNumber: current.OrderNumber, ActorID: actorID}
			if _, err := s.inventory.Apply(txCtx, ref, inventoryLinesForItems(current.Items), InventoryRestore); err != nil {
				return err
			}
		}

		now := s.now()
		patch := repositories.OrderPatch{
			Status:    &target,
			UpdatedBy: actorID,
			UpdatedAt: now,
		}
		if target == domain.OrderStatusDelivered {
			delivered := civilDate(now.In(s.location))
			patch.ActualDeliveryDate = &delivered
		}
		if err := s.orders.Update(txCtx, current.ID, patch); err != nil {
			return s.mapRepositoryError(err)
		}
		entry := s.workflow.HistoryEntry(statusHistoryPrefix+s.newID(), current.ID, target, actorID, notes, now)
		if err := s.history.Append(txCtx, entry); err != nil {
			return s.mapRepositoryError(err)
		}

		previous = current.Status
		patch.Apply(&current)
		order = current
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.metrics.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(previous)),
		attribute.String("to", string(order.Status)),
	))
	s.logger(ctx, "order.status.changed", map[string]any{
		"orderId": order.ID,
		"from":    string(previous),
		"to":      string(order.Status),
		"actorId": actorID,
	})

	metadata := map[string]any{}
	if notes != nil {
		metadata["notes"] = *notes
	}
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		BusinessID:     order.BusinessID,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        actorID,
		OccurredAt:     order.UpdatedAt,
		Metadata:       metadata,
	})

	return order, nil
}

func (s *orderService) UpdateOrder(ctx context.Context, cmd UpdateOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	actorID := strings.TrimSpace(cmd.ActorID)
	upd := cmd.Update

	var fieldErrs []FieldError
	if orderID == "" {
		fieldErrs = append(fieldErrs, FieldError{Field: "order_id", Message: "order id is required"})
	}
	if actorID == "" {
		fieldErrs = append(fieldErrs, FieldError{Field: "actor_id", Message: "actor id is required"})
	}
	if upd.PaymentStatus != nil && !upd.PaymentStatus.Valid() {
		fieldErrs = append(fieldErrs, FieldError{Field: "payment_status", Message: fmt.Sprintf("unknown payment status %q", *upd.PaymentStatus)})
	}
	if upd.ShippingAddress != nil {
		fieldErrs = append(fieldErrs, s.validator.ValidateAddress(upd.ShippingAddress, "shipping_address.")...)
	}
	if upd.BillingAddress != nil {
		fieldErrs = append(fieldErrs, s.validator.ValidateAddress(upd.BillingAddress, "billing_address.")...)
	}
	if upd.EstimatedDeliveryDate != nil {
		fieldErrs = append(fieldErrs, s.validator.ValidateDeliveryDate(*upd.EstimatedDeliveryDate)...)
	}

	patch := repositories.OrderPatch{
		PaymentStatus:              upd.PaymentStatus,
		ClearNotes:                 upd.ClearNotes,
		ShippingAddress:            normalizeAddress(upd.ShippingAddress),
		ClearShippingAddress:       upd.ClearShippingAddress || (upd.ShippingAddress != nil && normalizeAddress(upd.ShippingAddress) == nil),
		BillingAddress:             normalizeAddress(upd.BillingAddress),
		ClearBillingAddress:        upd.ClearBillingAddress || (upd.BillingAddress != nil && normalizeAddress(upd.BillingAddress) == nil),
		EstimatedDeliveryDate:      civilDatePtr(upd.EstimatedDeliveryDate),
		ClearEstimatedDeliveryDate: upd.ClearEstimatedDeliveryDate,
		UpdatedBy:                  actorID,
	}
	if upd.Notes != nil {
		if cleaned := textutil.OptionalPlainText(upd.Notes); cleaned != nil {
			patch.Notes = cleaned
		} else {
			patch.ClearNotes = true
		}
	}
	if patch.IsEmpty() && upd.DiscountAmount == nil {
		fieldErrs = append(fieldErrs, FieldError{Field: "update", Message: "at least one field must be provided"})
	}
	if err := newValidationError(fieldErrs); err != nil {
		return Order{}, err
	}

	pendingOnly := upd.DiscountAmount != nil ||
		patch.ShippingAddress != nil || patch.ClearShippingAddress ||
		patch.BillingAddress != nil || patch.ClearBillingAddress ||
		patch.EstimatedDeliveryDate != nil || patch.ClearEstimatedDeliveryDate

	var order Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.loadOrder(txCtx, cmd.BusinessID, orderID)
		if err != nil {
			return err
		}
		if pendingOnly && current.Status != domain.OrderStatusPending {
			return fmt.Errorf("%w: discount, addresses and delivery date can only change while the order is pending, order is %s", ErrOrderInvalidState, current.Status)
		}
		p := patch
		if upd.DiscountAmount != nil {
			calc := NewTotalsCalculator(current.TaxRate)
			if errs := s.validator.ValidateDiscount(*upd.DiscountAmount, calc.Subtotal(current.Items)); len(errs) > 0 {
				return newValidationError(errs)
			}
			totals := calc.Compute(current.Items, *upd.DiscountAmount)
			p.Totals = &totals
		}
		p.UpdatedAt = s.now()

		if err := s.orders.Update(txCtx, current.ID, p); err != nil {
			return s.mapRepositoryError(err)
		}
		p.Apply(&current)
		order = current
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.logger(ctx, "order.updated", map[string]any{
		"orderId": order.ID,
		"actorId": actorID,
	})
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventUpdated,
		BusinessID:    order.BusinessID,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CurrentStatus: string(order.Status),
		ActorID:       actorID,
		OccurredAt:    order.UpdatedAt,
		Metadata: map[string]any{
			"paymentStatus": string(order.PaymentStatus),
			"totalAmount":   order.Totals.TotalAmount.StringFixed(priceScale),
		},
	})
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, query OrderQuery) (Order, error) {
	orderID := strings.TrimSpace(query.OrderID)
	if orderID == "" {
		return Order{}, newValidationError([]FieldError{{Field: "order_id", Message: "order id is required"}})
	}
	return s.loadOrder(ctx, query.BusinessID, orderID)
}

func (s *orderService) ListStatusHistory(ctx context.Context, query OrderQuery) ([]OrderStatusHistoryEntry, error) {
	order, err := s.GetOrder(ctx, query)
	if err != nil {
		return nil, err
	}
	entries, err := s.history.List(ctx, order.ID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return entries, nil
}

func (s *orderService) DeleteOrder(ctx context.Context, cmd DeleteOrderCommand) error {
	orderID := strings.TrimSpace(cmd.OrderID)
	actorID := strings.TrimSpace(cmd.ActorID)
	var fieldErrs []FieldError
	if orderID == "" {
		fieldErrs = append(fieldErrs, FieldError{Field: "order_id", Message: "order id is required"})
	}
	if actorID == "" {
		fieldErrs = append(fieldErrs, FieldError{Field: "actor_id", Message: "actor id is required"})
	}
	if err := newValidationError(fieldErrs); err != nil {
		return err
	}

	var deleted Order
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.loadOrder(txCtx, cmd.BusinessID, orderID)
		if err != nil {
			return err
		}
		if err := s.orders.Delete(txCtx, current.ID); err != nil {
			return s.mapRepositoryError(err)
		}
		deleted = current
		return nil
	})
	if err != nil {
		return err
	}

	s.logger(ctx, "order.deleted", map[string]any{
		"orderId":     deleted.ID,
		"orderNumber": deleted.OrderNumber,
		"status":      string(deleted.Status),
		"actorId":     actorID,
		"reason":      strings.TrimSpace(cmd.Reason),
	})
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventDeleted,
		BusinessID:     deleted.BusinessID,
		OrderID:        deleted.ID,
		OrderNumber:    deleted.OrderNumber,
		PreviousStatus: string(deleted.Status),
		ActorID:        actorID,
		OccurredAt:     s.now(),
		Metadata:       map[string]any{"reason": strings.TrimSpace(cmd.Reason)},
	})
	return nil
}

func (s *orderService) CheckInventory(ctx context.Context, businessID string, items []OrderItemInput) (InventoryValidation, error) {
	businessID = strings.TrimSpace(businessID)
	var fieldErrs []FieldError
	if businessID == "" {
		fieldErrs = append(fieldErrs, FieldError{Field: "business_id", Message: "business id is required"})
	}
	if len(items) == 0 {
		fieldErrs = append(fieldErrs, FieldError{Field: "items", Message: "at least one item is required"})
	}
	validator := ItemValidator{}
	orderItems := make([]OrderItem, 0, len(items))
	for i, in := range items {
		in.ProductName = textutil.Normalize(in.ProductName)
		fieldErrs = append(fieldErrs, validator.Validate(in, fmt.Sprintf("items[%d].", i))...)
		orderItems = append(orderItems, OrderItem{
			InventoryID: trimmedPtr(in.InventoryID),
			ProductName: in.ProductName,
			Quantity:    in.Quantity,
		})
	}
	if err := newValidationError(fieldErrs); err != nil {
		return InventoryValidation{}, err
	}
	return s.inventory.Check(ctx, businessID, inventoryLinesForItems(orderItems))
}

func (s *orderService) resolveCustomer(ctx context.Context, businessID string, customerID *string) (string, error) {
	if customerID == nil || s.customers == nil {
		return "", nil
	}
	customer, err := s.customers.Resolve(ctx, *customerID)
	if err != nil {
		if isRepositoryNotFound(err) {
			return "", newValidationError([]FieldError{{Field: "customer_id", Message: "customer not found"}})
		}
		return "", s.mapRepositoryError(err)
	}
	if customer.BusinessID != "" && customer.BusinessID != businessID {
		return "", newValidationError([]FieldError{{Field: "customer_id", Message: "customer not found"}})
	}
	return customer.Name, nil
}

// loadOrder reads an order and hides orders that belong to another business.
func (s *orderService) loadOrder(ctx context.Context, businessID, orderID string) (Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if businessID = strings.TrimSpace(businessID); businessID != "" && order.BusinessID != businessID {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (s *orderService) mapRepositoryError(err error) error {
	return mapRepositoryError(err)
}

// generateOrderNumber draws from a per-business counter outside the order transaction so a rolled back
// order leaves a gap instead of holding the counter row locked.
func (s *orderService) generateOrderNumber(ctx context.Context, businessID string, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, "orders:"+businessID, 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%04d-%06d", s.prefix, now.Year(), seq), nil
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"eventType": event.Type,
			"orderId":   event.OrderID,
			"error":     err.Error(),
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// mapRepositoryError translates repository categories into service sentinels. Errors that carry no
// category are returned unchanged.
func mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %w", ErrOrderUnavailable, err)
		}
	}
	return err
}

func isRepositoryNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func normalizeCreateCommand(cmd CreateOrderCommand) CreateOrderCommand {
	cmd.BusinessID = strings.TrimSpace(cmd.BusinessID)
	cmd.ActorID = strings.TrimSpace(cmd.ActorID)
	if cmd.CustomerID != nil {
		id := strings.TrimSpace(*cmd.CustomerID)
		cmd.CustomerID = &id
	}
	items := make([]OrderItemInput, len(cmd.Items))
	for i, item := range cmd.Items {
		item.ProductName = textutil.Normalize(item.ProductName)
		items[i] = item
	}
	cmd.Items = items
	cmd.Notes = textutil.OptionalPlainText(cmd.Notes)
	cmd.ShippingAddress = normalizeAddress(cmd.ShippingAddress)
	cmd.BillingAddress = normalizeAddress(cmd.BillingAddress)
	return cmd
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func civilDatePtr(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	date := civilDate(value.UTC())
	return &date
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
