package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/ZoliswaDube/BizPilot-sub002/internal/domain"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/platform/requestctx"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/services"
)

type stubOrderService struct {
	createFn  func(context.Context, services.CreateOrderCommand) (services.CreateOrderResult, error)
	advanceFn func(context.Context, services.AdvanceStatusCommand) (services.Order, error)
	updateFn  func(context.Context, services.UpdateOrderCommand) (services.Order, error)
	getFn     func(context.Context, services.OrderQuery) (services.Order, error)
	historyFn func(context.Context, services.OrderQuery) ([]services.OrderStatusHistoryEntry, error)
	deleteFn  func(context.Context, services.DeleteOrderCommand) error
	checkFn   func(context.Context, string, []services.OrderItemInput) (services.InventoryValidation, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.CreateOrderResult, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.CreateOrderResult{}, errors.New("not implemented")
}

func (s *stubOrderService) AdvanceStatus(ctx context.Context, cmd services.AdvanceStatusCommand) (services.Order, error) {
	if s.advanceFn != nil {
		return s.advanceFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) UpdateOrder(ctx context.Context, cmd services.UpdateOrderCommand) (services.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, query services.OrderQuery) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, query)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListStatusHistory(ctx context.Context, query services.OrderQuery) ([]services.OrderStatusHistoryEntry, error) {
	if s.historyFn != nil {
		return s.historyFn(ctx, query)
	}
	return nil, errors.New("not implemented")
}

func (s *stubOrderService) DeleteOrder(ctx context.Context, cmd services.DeleteOrderCommand) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, cmd)
	}
	return errors.New("not implemented")
}

func (s *stubOrderService) CheckInventory(ctx context.Context, businessID string, items []services.OrderItemInput) (services.InventoryValidation, error) {
	if s.checkFn != nil {
		return s.checkFn(ctx, businessID, items)
	}
	return services.InventoryValidation{}, errors.New("not implemented")
}

var _ services.OrderService = (*stubOrderService)(nil)

func newOrderTestRouter(svc services.OrderService) chi.Router {
	handler := NewOrderHandlers(svc)
	router := chi.NewRouter()
	router.Route("/orders", handler.Routes)
	handler.InventoryRoutes(router)
	router.Route("/admin", handler.AdminRoutes)
	return router
}

func scopedRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	ctx := requestctx.WithScope(req.Context(), requestctx.Scope{BusinessID: "biz_1", ActorID: "usr_1"})
	return req.WithContext(ctx)
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
	return body
}

func sampleOrder() services.Order {
	inv := "inv_1"
	created := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	delivery := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	return services.Order{
		ID:            "ord_1",
		BusinessID:    "biz_1",
		OrderNumber:   "ORD-2026-000001",
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusUnpaid,
		TaxRate:       decimal.RequireFromString("0.15"),
		Totals: services.OrderTotals{
			Subtotal:       decimal.RequireFromString("20"),
			TaxAmount:      decimal.RequireFromString("3"),
			DiscountAmount: decimal.Zero,
			TotalAmount:    decimal.RequireFromString("23"),
		},
		EstimatedDeliveryDate: &delivery,
		Items: []services.OrderItem{{
			ID:          "oli_1",
			OrderID:     "ord_1",
			InventoryID: &inv,
			ProductName: "Widget",
			Quantity:    2,
			UnitPrice:   decimal.RequireFromString("10"),
		}},
		CreatedBy: "usr_1",
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestOrderHandlersCreateOrder(t *testing.T) {
	var captured services.CreateOrderCommand
	svc := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (services.CreateOrderResult, error) {
			captured = cmd
			return services.CreateOrderResult{
				Order: sampleOrder(),
				Warnings: []services.InventoryIssue{{
					Field: "items[0].quantity", InventoryID: "inv_1", ProductName: "Widget",
					Requested: 2, Available: 5, LowStockAlert: 4, Message: "stock will fall below the low stock alert",
				}},
			}, nil
		},
	}

	body := `{
		"items": [{"product_name": "Widget", "quantity": 2, "unit_price": "10.00", "inventory_id": "inv_1"}],
		"discount_amount": 1.5,
		"estimated_delivery_date": "2026-03-09",
		"payment_status": "PAID",
		"shipping_address": {"street": "1 Main", "city": "Cape Town", "postal_code": "8001", "country": "ZA"}
	}`
	rr := httptest.NewRecorder()
	newOrderTestRouter(svc).ServeHTTP(rr, scopedRequest(http.MethodPost, "/orders", body))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.BusinessID != "biz_1" || captured.ActorID != "usr_1" {
		t.Fatalf("expected scope to flow into command, got %+v", captured)
	}
	if len(captured.Items) != 1 || !captured.Items[0].UnitPrice.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("unexpected items %+v", captured.Items)
	}
	if captured.DiscountAmount == nil || !captured.DiscountAmount.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("expected discount 1.5, got %v", captured.DiscountAmount)
	}
	if captured.EstimatedDeliveryDate == nil || !captured.EstimatedDeliveryDate.Equal(time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected delivery date %v", captured.EstimatedDeliveryDate)
	}
	if captured.PaymentStatus == nil || *captured.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected payment status paid, got %v", captured.PaymentStatus)
	}
	if captured.ShippingAddress == nil || captured.ShippingAddress.City != "Cape Town" {
		t.Fatalf("unexpected shipping address %+v", captured.ShippingAddress)
	}

	var resp createOrderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Order.TotalAmount != "23.00" || resp.Order.Subtotal != "20.00" {
		t.Fatalf("expected fixed point totals, got %+v", resp.Order)
	}
	if resp.Order.Items[0].TotalPrice != "20.00" {
		t.Fatalf("expected item total 20.00, got %s", resp.Order.Items[0].TotalPrice)
	}
	if resp.Order.EstimatedDeliveryDate != "2026-03-09" {
		t.Fatalf("expected delivery date 2026-03-09, got %s", resp.Order.EstimatedDeliveryDate)
	}
	if len(resp.Warnings) != 1 || resp.Warnings[0].LowStockAlert != 4 {
		t.Fatalf("expected one low stock warning, got %+v", resp.Warnings)
	}
}

func TestOrderHandlersCreateOrderRejectsBadDate(t *testing.T) {
	called := false
	svc := &stubOrderService{
		createFn: func(context.Context, services.CreateOrderCommand) (services.CreateOrderResult, error) {
			called = true
			return services.CreateOrderResult{}, nil
		},
	}
	body := `{"items": [{"product_name": "Widget", "quantity": 1, "unit_price": 1}], "estimated_delivery_date": "09/03/2026"}`
	rr := httptest.NewRecorder()
	newOrderTestRouter(svc).ServeHTTP(rr, scopedRequest(http.MethodPost, "/orders", body))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
	if called {
		t.Fatalf("service must not be called for malformed dates")
	}
	resp := decodeBody(t, rr)
	errs, _ := resp["errors"].([]any)
	if len(errs) != 1 || errs[0].(map[string]any)["field"] != "estimated_delivery_date" {
		t.Fatalf("unexpected field errors %v", resp["errors"])
	}
}

func TestOrderHandlersCreateOrderRejectsUnknownFields(t *testing.T) {
	rr := httptest.NewRecorder()
	newOrderTestRouter(&stubOrderService{}).ServeHTTP(rr, scopedRequest(http.MethodPost, "/orders", `{"items": [], "currency": "ZAR"}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error"] != "invalid_request" {
		t.Fatalf("expected invalid_request, got %v", body["error"])
	}
}

func TestOrderHandlersRequireScope(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil)
	rr := httptest.NewRecorder()
	newOrderTestRouter(&stubOrderService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestOrderHandlersErrorMapping(t *testing.T) {
	revalidation := services.InventoryValidation{
		IsValid: false,
		Errors:  []services.InventoryIssue{{InventoryID: "inv_1", Requested: 3, Available: 1, Message: "insufficient stock"}},
	}
	cases := []struct {
		name      string
		err       error
		status    int
		code      string
		retryable bool
	}{
		{"validation", &services.ValidationError{Errors: []services.FieldError{{Field: "items", Message: "required"}}}, http.StatusUnprocessableEntity, "validation_failed", false},
		{"stock", &services.InventoryCheckError{Validation: revalidation}, http.StatusConflict, "insufficient_stock", false},
		{"transition", &services.StatusTransitionError{From: domain.OrderStatusDelivered, To: domain.OrderStatusPending}, http.StatusConflict, "invalid_status_transition", false},
		{"race", &services.ConcurrencyConflictError{InventoryID: "inv_1", Requested: 3, Available: 1, Revalidation: &revalidation}, http.StatusConflict, "inventory_conflict", true},
		{"not found", services.ErrOrderNotFound, http.StatusNotFound, "order_not_found", false},
		{"conflict", services.ErrOrderConflict, http.StatusConflict, "order_conflict", true},
		{"unavailable", services.ErrOrderUnavailable, http.StatusServiceUnavailable, "order_store_unavailable", true},
		{"invalid input", services.ErrOrderInvalidInput, http.StatusBadRequest, "invalid_request", false},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "order_error", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{
				getFn: func(context.Context, services.OrderQuery) (services.Order, error) {
					return services.Order{}, tc.err
				},
			}
			rr := httptest.NewRecorder()
			newOrderTestRouter(svc).ServeHTTP(rr, scopedRequest(http.MethodGet, "/orders/ord_1", ""))

			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			body := decodeBody(t, rr)
			if body["error"] != tc.code {
				t.Fatalf("expected code %s, got %v", tc.code, body["error"])
			}
			if retryable, _ := body["retryable"].(bool); retryable != tc.retryable {
				t.Fatalf("expected retryable=%v, got %v", tc.retryable, body["retryable"])
			}
		})
	}
}

func TestOrderHandlersRaceConflictCarriesRevalidation(t *testing.T) {
	revalidation := services.InventoryValidation{
		Errors: []services.InventoryIssue{{InventoryID: "inv_1", Requested: 3, Available: 1, Message: "insufficient stock"}},
	}
	svc := &stubOrderService{
		createFn: func(context.Context, services.CreateOrderCommand) (services.CreateOrderResult, error) {
			return services.CreateOrderResult{}, &services.ConcurrencyConflictError{InventoryID: "inv_1", Requested: 3, Available: 1, Revalidation: &revalidation}
		},
	}
	body := `{"items": [{"product_name": "Widget", "quantity": 3, "unit_price": "1", "inventory_id": "inv_1"}]}`
	rr := httptest.NewRecorder()
	newOrderTestRouter(svc).ServeHTTP(rr, scopedRequest(http.MethodPost, "/orders", body))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	resp := decodeBody(t, rr)
	reval, ok := resp["revalidation"].(map[string]any)
	if !ok {
		t.Fatalf("expected revalidation payload, got %v", resp)
	}
	if reval["is_valid"] != false {
		t.Fatalf("expected revalidation to be invalid, got %v", reval["is_valid"])
	}
	if errs, _ := reval["errors"].([]any); len(errs) != 1 {
		t.Fatalf("expected one revalidation error, got %v", reval["errors"])
	}
}

func TestOrderHandlersAdvanceStatus(t *testing.T) {
	var captured services.AdvanceStatusCommand
	svc := &stubOrderService{
		advanceFn: func(_ context.Context, cmd services.AdvanceStatusCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = domain.OrderStatusConfirmed
			return order, nil
		},
	}
	body := `{"status": " Confirmed ", "expected_status": "pending", "notes": "called customer"}`
	rr := httptest.NewRecorder()
	newOrderTestRouter(svc).ServeHTTP(rr, scopedRequest(http.MethodPost, "/orders/ord_1:advance", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.TargetStatus != domain.OrderStatusConfirmed {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.ExpectedStatus == nil || *captured.ExpectedStatus != domain.OrderStatusPending {
		t.Fatalf("expected status guard pending, got %v", captured.ExpectedStatus)
	}
	if captured.Notes == nil || *captured.Notes != "called customer" {
		t.Fatalf("expected notes to be forwarded, got %v", captured.Notes)
	}
}

func TestOrderHandlersAdvanceStatusTransitionDetails(t *testing.T) {
	svc := &stubOrderService{
		advanceFn: func(context.Context, services.AdvanceStatusCommand) (services.Order, error) {
			return services.Order{}, &services.StatusTransitionError{
				From:    domain.OrderStatusPending,
				To:      domain.OrderStatusShipped,
				Allowed: []domain.OrderStatus{domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
			}
		},
	}
	rr := httptest.NewRecorder()
	newOrderTestRouter(svc).ServeHTTP(rr, scopedRequest(http.MethodPost, "/orders/ord_1:advance", `{"status": "shipped"}`))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	resp := decodeBody(t, rr)
	if resp["from"] != "pending" || resp["to"] != "shipped" {
		t.Fatalf("unexpected transition details %v", resp)
	}
	if allowed, _ := resp["allowed"].([]any); len(allowed) != 2 {
		t.Fatalf("expected two allowed statuses, got %v", resp["allowed"])
	}
}

func TestOrderHandlersUpdateOrderDistinguishesNullFromAbsent(t *testing.T) {
	var captured services.UpdateOrderCommand
	svc := &stubOrderService{
		updateFn: func(_ context.Context, cmd services.UpdateOrderCommand) (services.Order, error) {
			captured = cmd
			return sampleOrder(), nil
		},
	}
	body := `{"notes": null, "discount_amount": "2.50", "billing_address": {"street": "2 Side", "city": "Durban", "country": "ZA"}}`
	rr := httptest.NewRecorder()
	newOrderTestRouter(svc).ServeHTTP(rr, scopedRequest(http.MethodPatch, "/orders/ord_1", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	upd := captured.Update
	if !upd.ClearNotes || upd.Notes != nil {
		t.Fatalf("expected notes to be cleared, got %+v", upd)
	}
	if upd.DiscountAmount == nil || !upd.DiscountAmount.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("expected discount 2.50, got %v", upd.DiscountAmount)
	}
	if upd.BillingAddress == nil || upd.BillingAddress.City != "Durban" {
		t.Fatalf("unexpected billing address %+v", upd.BillingAddress)
	}
	if upd.ShippingAddress != nil || upd.ClearShippingAddress {
		t.Fatalf("absent shipping address must be left untouched, got %+v", upd)
	}
	if upd.EstimatedDeliveryDate != nil || upd.ClearEstimatedDeliveryDate {
		t.Fatalf("absent delivery date must be left untouched, got %+v", upd)
	}
}

func TestOrderHandlersUpdateOrderRejectsNullDiscount(t *testing.T) {
	rr := httptest.NewRecorder()
	newOrderTestRouter(&stubOrderService{}).ServeHTTP(rr, scopedRequest(http.MethodPatch, "/orders/ord_1", `{"discount_amount": null}`))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
}

func TestOrderHandlersListHistory(t *testing.T) {
	notes := "packed"
	svc := &stubOrderService{
		historyFn: func(_ context.Context, query services.OrderQuery) ([]services.OrderStatusHistoryEntry, error) {
			if query.BusinessID != "biz_1" || query.OrderID != "ord_1" {
				t.Fatalf("unexpected query %+v", query)
			}
			return []services.OrderStatusHistoryEntry{
				{ID: "osh_1", OrderID: "ord_1", Status: domain.OrderStatusPending, ActorID: "usr_1", CreatedAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)},
				{ID: "osh_2", OrderID: "ord_1", Status: domain.OrderStatusConfirmed, ActorID: "usr_2", Notes: &notes, CreatedAt: time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)},
			}, nil
		},
	}
	rr := httptest.NewRecorder()
	newOrderTestRouter(svc).ServeHTTP(rr, scopedRequest(http.MethodGet, "/orders/ord_1/history", ""))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp historyResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(resp.Items) != 2 || resp.Items[1].Status != "confirmed" || resp.Items[1].Notes == nil {
		t.Fatalf("unexpected history %+v", resp.Items)
	}
}

func TestOrderHandlersCheckInventory(t *testing.T) {
	svc := &stubOrderService{
		checkFn: func(_ context.Context, businessID string, items []services.OrderItemInput) (services.InventoryValidation, error) {
			if businessID != "biz_1" {
				t.Fatalf("expected business scope biz_1, got %q", businessID)
			}
			if len(items) != 1 || items[0].InventoryID == nil || *items[0].InventoryID != "inv_1" {
				t.Fatalf("unexpected items %+v", items)
			}
			return services.InventoryValidation{
				IsValid: false,
				Errors:  []services.InventoryIssue{{InventoryID: "inv_1", Requested: 9, Available: 2, Message: "insufficient stock"}},
			}, nil
		},
	}
	body := `{"items": [{"product_name": "Widget", "quantity": 9, "unit_price": "1", "inventory_id": "inv_1"}]}`
	rr := httptest.NewRecorder()
	newOrderTestRouter(svc).ServeHTTP(rr, scopedRequest(http.MethodPost, "/inventory:check", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp inventoryValidationPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.IsValid || len(resp.Errors) != 1 || resp.Errors[0].Available != 2 {
		t.Fatalf("unexpected validation %+v", resp)
	}
	if resp.Warnings == nil {
		t.Fatalf("warnings must render as an empty list")
	}
}

func TestOrderHandlersDeleteOrder(t *testing.T) {
	var captured services.DeleteOrderCommand
	svc := &stubOrderService{
		deleteFn: func(_ context.Context, cmd services.DeleteOrderCommand) error {
			captured = cmd
			return nil
		},
	}

	t.Run("with reason", func(t *testing.T) {
		rr := httptest.NewRecorder()
		newOrderTestRouter(svc).ServeHTTP(rr, scopedRequest(http.MethodDelete, "/admin/orders/ord_1", `{"reason": "duplicate"}`))
		if rr.Code != http.StatusNoContent {
			t.Fatalf("expected status 204, got %d: %s", rr.Code, rr.Body.String())
		}
		if captured.OrderID != "ord_1" || captured.Reason != "duplicate" || captured.ActorID != "usr_1" {
			t.Fatalf("unexpected command %+v", captured)
		}
	})

	t.Run("without body", func(t *testing.T) {
		rr := httptest.NewRecorder()
		newOrderTestRouter(svc).ServeHTTP(rr, scopedRequest(http.MethodDelete, "/admin/orders/ord_2", ""))
		if rr.Code != http.StatusNoContent {
			t.Fatalf("expected status 204, got %d", rr.Code)
		}
		if captured.OrderID != "ord_2" || captured.Reason != "" {
			t.Fatalf("unexpected command %+v", captured)
		}
	})
}
