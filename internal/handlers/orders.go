package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ZoliswaDube/BizPilot-sub002/internal/platform/httpx"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/platform/requestctx"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/services"
)

const (
	dateLayout  = "2006-01-02"
	moneyPlaces = 2
)

// OrderHandlers exposes the order lifecycle over HTTP. Every route expects requestctx.Scope to be
// populated by the gateway identity middleware.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createOrder)
	r.Get("/{orderID}", h.getOrder)
	r.Patch("/{orderID}", h.updateOrder)
	r.Post("/{orderID}:advance", h.advanceStatus)
	r.Get("/{orderID}/history", h.listHistory)
}

// InventoryRoutes registers the stock pre-check endpoint.
func (h *OrderHandlers) InventoryRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/inventory:check", h.checkInventory)
}

// AdminRoutes registers administrative order endpoints. Callers mount them behind a role check.
func (h *OrderHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Delete("/orders/{orderID}", h.deleteOrder)
}

type orderItemRequest struct {
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	ProductID   *string         `json:"product_id,omitempty"`
	InventoryID *string         `json:"inventory_id,omitempty"`
}

type addressRequest struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type createOrderRequest struct {
	CustomerID            *string            `json:"customer_id,omitempty"`
	Items                 []orderItemRequest `json:"items"`
	Notes                 *string            `json:"notes,omitempty"`
	ShippingAddress       *addressRequest    `json:"shipping_address,omitempty"`
	BillingAddress        *addressRequest    `json:"billing_address,omitempty"`
	DiscountAmount        *decimal.Decimal   `json:"discount_amount,omitempty"`
	EstimatedDeliveryDate *string            `json:"estimated_delivery_date,omitempty"`
	PaymentStatus         *string            `json:"payment_status,omitempty"`
}

// optional distinguishes an absent JSON key from an explicit null.
type optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

func (o *optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Null = true
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

type updateOrderRequest struct {
	DiscountAmount        optional[decimal.Decimal] `json:"discount_amount"`
	Notes                 optional[string]          `json:"notes"`
	ShippingAddress       optional[addressRequest]  `json:"shipping_address"`
	BillingAddress        optional[addressRequest]  `json:"billing_address"`
	EstimatedDeliveryDate optional[string]          `json:"estimated_delivery_date"`
	PaymentStatus         optional[string]          `json:"payment_status"`
}

type advanceStatusRequest struct {
	Status         string  `json:"status"`
	ExpectedStatus *string `json:"expected_status,omitempty"`
	Notes          *string `json:"notes,omitempty"`
}

type deleteOrderRequest struct {
	Reason string `json:"reason"`
}

type checkInventoryRequest struct {
	Items []orderItemRequest `json:"items"`
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := h.scope(ctx, w)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeInvalidRequest(ctx, w, err.Error())
		return
	}

	cmd := services.CreateOrderCommand{
		BusinessID:      scope.BusinessID,
		ActorID:         scope.ActorID,
		CustomerID:      req.CustomerID,
		Items:           itemInputs(req.Items),
		Notes:           req.Notes,
		ShippingAddress: req.ShippingAddress.toDomain(),
		BillingAddress:  req.BillingAddress.toDomain(),
		DiscountAmount:  req.DiscountAmount,
	}
	if req.EstimatedDeliveryDate != nil {
		date, err := parseDate(*req.EstimatedDeliveryDate)
		if err != nil {
			writeFieldError(ctx, w, "estimated_delivery_date", err.Error())
			return
		}
		cmd.EstimatedDeliveryDate = &date
	}
	if req.PaymentStatus != nil {
		status := services.PaymentStatus(strings.ToLower(strings.TrimSpace(*req.PaymentStatus)))
		cmd.PaymentStatus = &status
	}

	result, err := h.orders.CreateOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, createOrderResponse{
		Order:    buildOrderPayload(result.Order),
		Warnings: buildIssuePayloads(result.Warnings),
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := h.scope(ctx, w)
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(ctx, services.OrderQuery{BusinessID: scope.BusinessID, OrderID: chi.URLParam(r, "orderID")})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := h.scope(ctx, w)
	if !ok {
		return
	}

	var req updateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeInvalidRequest(ctx, w, err.Error())
		return
	}

	var upd services.OrderUpdate
	if req.DiscountAmount.Set {
		if req.DiscountAmount.Null {
			writeFieldError(ctx, w, "discount_amount", "discount cannot be null; send 0 to remove it")
			return
		}
		upd.DiscountAmount = &req.DiscountAmount.Value
	}
	if req.Notes.Set {
		upd.ClearNotes = req.Notes.Null
		if !req.Notes.Null {
			upd.Notes = &req.Notes.Value
		}
	}
	if req.ShippingAddress.Set {
		upd.ClearShippingAddress = req.ShippingAddress.Null
		if !req.ShippingAddress.Null {
			upd.ShippingAddress = req.ShippingAddress.Value.toDomainValue()
		}
	}
	if req.BillingAddress.Set {
		upd.ClearBillingAddress = req.BillingAddress.Null
		if !req.BillingAddress.Null {
			upd.BillingAddress = req.BillingAddress.Value.toDomainValue()
		}
	}
	if req.EstimatedDeliveryDate.Set {
		upd.ClearEstimatedDeliveryDate = req.EstimatedDeliveryDate.Null
		if !req.EstimatedDeliveryDate.Null {
			date, err := parseDate(req.EstimatedDeliveryDate.Value)
			if err != nil {
				writeFieldError(ctx, w, "estimated_delivery_date", err.Error())
				return
			}
			upd.EstimatedDeliveryDate = &date
		}
	}
	if req.PaymentStatus.Set {
		if req.PaymentStatus.Null {
			writeFieldError(ctx, w, "payment_status", "payment status cannot be null")
			return
		}
		status := services.PaymentStatus(strings.ToLower(strings.TrimSpace(req.PaymentStatus.Value)))
		upd.PaymentStatus = &status
	}

	order, err := h.orders.UpdateOrder(ctx, services.UpdateOrderCommand{
		BusinessID: scope.BusinessID,
		OrderID:    chi.URLParam(r, "orderID"),
		ActorID:    scope.ActorID,
		Update:     upd,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) advanceStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := h.scope(ctx, w)
	if !ok {
		return
	}

	var req advanceStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeInvalidRequest(ctx, w, err.Error())
		return
	}

	cmd := services.AdvanceStatusCommand{
		BusinessID:   scope.BusinessID,
		OrderID:      chi.URLParam(r, "orderID"),
		TargetStatus: parseStatus(req.Status),
		ActorID:      scope.ActorID,
		Notes:        req.Notes,
	}
	if req.ExpectedStatus != nil {
		expected := parseStatus(*req.ExpectedStatus)
		cmd.ExpectedStatus = &expected
	}

	order, err := h.orders.AdvanceStatus(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := h.scope(ctx, w)
	if !ok {
		return
	}
	entries, err := h.orders.ListStatusHistory(ctx, services.OrderQuery{BusinessID: scope.BusinessID, OrderID: chi.URLParam(r, "orderID")})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	items := make([]historyEntryPayload, 0, len(entries))
	for _, entry := range entries {
		items = append(items, historyEntryPayload{
			ID:        entry.ID,
			Status:    string(entry.Status),
			ActorID:   entry.ActorID,
			Notes:     entry.Notes,
			CreatedAt: formatTime(entry.CreatedAt),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, historyResponse{Items: items})
}

func (h *OrderHandlers) checkInventory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := h.scope(ctx, w)
	if !ok {
		return
	}

	var req checkInventoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeInvalidRequest(ctx, w, err.Error())
		return
	}
	validation, err := h.orders.CheckInventory(ctx, scope.BusinessID, itemInputs(req.Items))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildValidationPayload(validation))
}

func (h *OrderHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	scope, ok := h.scope(ctx, w)
	if !ok {
		return
	}

	var req deleteOrderRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			writeInvalidRequest(ctx, w, err.Error())
			return
		}
	}
	err := h.orders.DeleteOrder(ctx, services.DeleteOrderCommand{
		BusinessID: scope.BusinessID,
		OrderID:    chi.URLParam(r, "orderID"),
		ActorID:    scope.ActorID,
		Reason:     req.Reason,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *OrderHandlers) scope(ctx context.Context, w http.ResponseWriter) (requestctx.Scope, bool) {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return requestctx.Scope{}, false
	}
	scope, ok := requestctx.ScopeFrom(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "business scope required", http.StatusUnauthorized))
		return requestctx.Scope{}, false
	}
	return scope, true
}

func itemInputs(items []orderItemRequest) []services.OrderItemInput {
	inputs := make([]services.OrderItemInput, 0, len(items))
	for _, item := range items {
		inputs = append(inputs, services.OrderItemInput{
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			ProductID:   item.ProductID,
			InventoryID: item.InventoryID,
		})
	}
	return inputs
}

func (a *addressRequest) toDomain() *services.Address {
	if a == nil {
		return nil
	}
	return a.toDomainValue()
}

func (a addressRequest) toDomainValue() *services.Address {
	return &services.Address{
		Street:     a.Street,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func parseDate(raw string) (time.Time, error) {
	date, err := time.ParseInLocation(dateLayout, strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("must be a date formatted as %s", dateLayout)
	}
	return date, nil
}

func parseStatus(raw string) services.OrderStatus {
	return services.OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
}

type createOrderResponse struct {
	Order    orderPayload          `json:"order"`
	Warnings []inventoryIssueEntry `json:"warnings"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type historyResponse struct {
	Items []historyEntryPayload `json:"items"`
}

type orderPayload struct {
	ID                    string             `json:"id"`
	BusinessID            string             `json:"business_id"`
	OrderNumber           string             `json:"order_number"`
	CustomerID            *string            `json:"customer_id,omitempty"`
	CustomerName          string             `json:"customer_name,omitempty"`
	Status                string             `json:"status"`
	PaymentStatus         string             `json:"payment_status"`
	TaxRate               string             `json:"tax_rate"`
	Subtotal              string             `json:"subtotal"`
	TaxAmount             string             `json:"tax_amount"`
	DiscountAmount        string             `json:"discount_amount"`
	TotalAmount           string             `json:"total_amount"`
	Notes                 *string            `json:"notes,omitempty"`
	ShippingAddress       *addressRequest    `json:"shipping_address,omitempty"`
	BillingAddress        *addressRequest    `json:"billing_address,omitempty"`
	EstimatedDeliveryDate string             `json:"estimated_delivery_date,omitempty"`
	ActualDeliveryDate    string             `json:"actual_delivery_date,omitempty"`
	Items                 []orderItemPayload `json:"items"`
	CreatedBy             string             `json:"created_by,omitempty"`
	UpdatedBy             string             `json:"updated_by,omitempty"`
	CreatedAt             string             `json:"created_at"`
	UpdatedAt             string             `json:"updated_at,omitempty"`
}

type orderItemPayload struct {
	ID          string  `json:"id"`
	ProductID   *string `json:"product_id,omitempty"`
	InventoryID *string `json:"inventory_id,omitempty"`
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   string  `json:"unit_price"`
	TotalPrice  string  `json:"total_price"`
}

type historyEntryPayload struct {
	ID        string  `json:"id"`
	Status    string  `json:"status"`
	ActorID   string  `json:"actor_id"`
	Notes     *string `json:"notes,omitempty"`
	CreatedAt string  `json:"created_at"`
}

type inventoryIssueEntry struct {
	Field         string `json:"field,omitempty"`
	InventoryID   string `json:"inventory_id"`
	ProductName   string `json:"product_name,omitempty"`
	Requested     int    `json:"requested"`
	Available     int    `json:"available"`
	LowStockAlert int    `json:"low_stock_alert,omitempty"`
	Message       string `json:"message"`
}

type inventoryValidationPayload struct {
	IsValid  bool                  `json:"is_valid"`
	Errors   []inventoryIssueEntry `json:"errors"`
	Warnings []inventoryIssueEntry `json:"warnings"`
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:             order.ID,
		BusinessID:     order.BusinessID,
		OrderNumber:    order.OrderNumber,
		CustomerID:     order.CustomerID,
		CustomerName:   order.CustomerName,
		Status:         string(order.Status),
		PaymentStatus:  string(order.PaymentStatus),
		TaxRate:        order.TaxRate.String(),
		Subtotal:       order.Totals.Subtotal.StringFixed(moneyPlaces),
		TaxAmount:      order.Totals.TaxAmount.StringFixed(moneyPlaces),
		DiscountAmount: order.Totals.DiscountAmount.StringFixed(moneyPlaces),
		TotalAmount:    order.Totals.TotalAmount.StringFixed(moneyPlaces),
		Notes:          order.Notes,
		Items:          make([]orderItemPayload, 0, len(order.Items)),
		CreatedBy:      order.CreatedBy,
		UpdatedBy:      order.UpdatedBy,
		CreatedAt:      formatTime(order.CreatedAt),
		UpdatedAt:      formatTime(order.UpdatedAt),
	}
	payload.ShippingAddress = buildAddressPayload(order.ShippingAddress)
	payload.BillingAddress = buildAddressPayload(order.BillingAddress)
	if order.EstimatedDeliveryDate != nil {
		payload.EstimatedDeliveryDate = order.EstimatedDeliveryDate.UTC().Format(dateLayout)
	}
	if order.ActualDeliveryDate != nil {
		payload.ActualDeliveryDate = order.ActualDeliveryDate.UTC().Format(dateLayout)
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ID:          item.ID,
			ProductID:   item.ProductID,
			InventoryID: item.InventoryID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.StringFixed(moneyPlaces),
			TotalPrice:  item.TotalPrice().StringFixed(moneyPlaces),
		})
	}
	return payload
}

func buildAddressPayload(addr *services.Address) *addressRequest {
	if addr == nil {
		return nil
	}
	return &addressRequest{
		Street:     addr.Street,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	}
}

func buildIssuePayloads(issues []services.InventoryIssue) []inventoryIssueEntry {
	out := make([]inventoryIssueEntry, 0, len(issues))
	for _, issue := range issues {
		out = append(out, inventoryIssueEntry{
			Field:         issue.Field,
			InventoryID:   issue.InventoryID,
			ProductName:   issue.ProductName,
			Requested:     issue.Requested,
			Available:     issue.Available,
			LowStockAlert: issue.LowStockAlert,
			Message:       issue.Message,
		})
	}
	return out
}

func buildValidationPayload(v services.InventoryValidation) inventoryValidationPayload {
	return inventoryValidationPayload{
		IsValid:  v.IsValid,
		Errors:   buildIssuePayloads(v.Errors),
		Warnings: buildIssuePayloads(v.Warnings),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func writeInvalidRequest(ctx context.Context, w http.ResponseWriter, message string) {
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", message, http.StatusBadRequest))
}

func writeFieldError(ctx context.Context, w http.ResponseWriter, field, message string) {
	writeOrderError(ctx, w, &services.ValidationError{Errors: []services.FieldError{{Field: field, Message: message}}})
}

// writeOrderError maps service errors onto the JSON error envelope. Typed errors are matched
// before the sentinels they unwrap to.
func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var (
		validationErr *services.ValidationError
		stockErr      *services.InventoryCheckError
		transitionErr *services.StatusTransitionError
		raceErr       *services.ConcurrencyConflictError
	)
	switch {
	case errors.As(err, &validationErr):
		fields := make([]httpx.FieldError, 0, len(validationErr.Errors))
		for _, fe := range validationErr.Errors {
			fields = append(fields, httpx.FieldError{Field: fe.Field, Message: fe.Message})
		}
		httpx.WriteError(ctx, w, httpx.NewError("validation_failed", "request failed validation", http.StatusUnprocessableEntity).
			WithFieldErrors(fields...))
	case errors.As(err, &stockErr):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", "one or more items cannot be fulfilled from stock", http.StatusConflict).
			WithDetails(map[string]any{
				"errors":   buildIssuePayloads(stockErr.Validation.Errors),
				"warnings": buildIssuePayloads(stockErr.Validation.Warnings),
			}))
	case errors.As(err, &transitionErr):
		allowed := make([]string, 0, len(transitionErr.Allowed))
		for _, status := range transitionErr.Allowed {
			allowed = append(allowed, string(status))
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status_transition", transitionErr.Error(), http.StatusConflict).
			WithDetails(map[string]any{
				"from":    string(transitionErr.From),
				"to":      string(transitionErr.To),
				"allowed": allowed,
			}))
	case errors.As(err, &raceErr):
		details := map[string]any{
			"inventory_id": raceErr.InventoryID,
			"requested":    raceErr.Requested,
			"available":    raceErr.Available,
		}
		if raceErr.Revalidation != nil {
			details["revalidation"] = buildValidationPayload(*raceErr.Revalidation)
		}
		httpx.WriteError(ctx, w, httpx.NewError("inventory_conflict", "stock changed while the order was being placed", http.StatusConflict).
			WithDetails(details).
			AsRetryable())
	case errors.Is(err, services.ErrInventoryInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidInput):
		writeInvalidRequest(ctx, w, err.Error())
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict), errors.Is(err, services.ErrInventoryConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict).AsRetryable())
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_store_unavailable", "order storage is temporarily unavailable", http.StatusServiceUnavailable).AsRetryable())
	default:
		requestctx.Logger(ctx).Error("order request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
