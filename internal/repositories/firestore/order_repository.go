package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/ZoliswaDube/BizPilot-sub002/internal/domain"
	pfirestore "github.com/ZoliswaDube/BizPilot-sub002/internal/platform/firestore"
	"github.com/ZoliswaDube/BizPilot-sub002/internal/repositories"
)

const (
	ordersCollection        = "orders"
	orderNumbersCollection  = "orderNumbers"
	statusHistoryCollection = "statusHistory"
)

// OrderRepository stores orders with their items embedded in the order document. Order numbers are
// reserved in a side collection so a duplicate number fails the create.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	numbers  *pfirestore.BaseRepository[orderNumberDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
		numbers:  pfirestore.NewBaseRepository[orderNumberDocument](provider, orderNumbersCollection, nil, nil),
	}, nil
}

func (r *OrderRepository) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	if strings.TrimSpace(order.ID) == "" || strings.TrimSpace(order.OrderNumber) == "" {
		return domain.Order{}, errors.New("orders.create: order id and number are required")
	}
	doc := newOrderDocument(order)
	err := r.provider.RunTransaction(ctx, func(txCtx context.Context, _ *firestore.Transaction) error {
		if err := r.numbers.Create(txCtx, order.OrderNumber, orderNumberDocument{OrderID: order.ID, CreatedAt: doc.CreatedAt}); err != nil {
			return err
		}
		return r.orders.Create(txCtx, order.ID, doc)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return doc.toDomain(order.ID)
}

func (r *OrderRepository) Update(ctx context.Context, orderID string, patch repositories.OrderPatch) error {
	updates := orderUpdates(patch)
	if len(updates) == 0 {
		return nil
	}
	return r.orders.Update(ctx, orderID, updates)
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID)
}

// Delete removes the order, its number reservation and its status history in one transaction.
func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	return r.provider.RunTransaction(ctx, func(txCtx context.Context, tx *firestore.Transaction) error {
		doc, err := r.orders.Get(txCtx, orderID)
		if err != nil {
			return err
		}
		ref, err := r.orders.DocumentRef(txCtx, orderID)
		if err != nil {
			return err
		}
		history, err := tx.Documents(ref.Collection(statusHistoryCollection)).GetAll()
		if err != nil {
			return pfirestore.WrapError("orders.delete", err)
		}

		for _, snap := range history {
			if err := tx.Delete(snap.Ref); err != nil {
				return pfirestore.WrapError("orders.delete", err)
			}
		}
		if err := r.numbers.Delete(txCtx, doc.Data.OrderNumber); err != nil {
			return err
		}
		return r.orders.Delete(txCtx, orderID)
	})
}

func orderUpdates(patch repositories.OrderPatch) []firestore.Update {
	var updates []firestore.Update
	set := func(path string, value any) {
		updates = append(updates, firestore.Update{Path: path, Value: value})
	}

	if patch.Status != nil {
		set("status", string(*patch.Status))
	}
	if patch.PaymentStatus != nil {
		set("paymentStatus", string(*patch.PaymentStatus))
	}
	if patch.Totals != nil {
		set("subtotal", money(patch.Totals.Subtotal))
		set("taxAmount", money(patch.Totals.TaxAmount))
		set("discountAmount", money(patch.Totals.DiscountAmount))
		set("totalAmount", money(patch.Totals.TotalAmount))
	}
	switch {
	case patch.ClearNotes:
		set("notes", nil)
	case patch.Notes != nil:
		set("notes", *patch.Notes)
	}
	switch {
	case patch.ClearShippingAddress:
		set("shippingAddress", nil)
	case patch.ShippingAddress != nil:
		set("shippingAddress", newAddressDocument(patch.ShippingAddress))
	}
	switch {
	case patch.ClearBillingAddress:
		set("billingAddress", nil)
	case patch.BillingAddress != nil:
		set("billingAddress", newAddressDocument(patch.BillingAddress))
	}
	switch {
	case patch.ClearEstimatedDeliveryDate:
		set("estimatedDeliveryDate", nil)
	case patch.EstimatedDeliveryDate != nil:
		set("estimatedDeliveryDate", patch.EstimatedDeliveryDate.UTC())
	}
	if patch.ActualDeliveryDate != nil {
		set("actualDeliveryDate", patch.ActualDeliveryDate.UTC())
	}
	if len(updates) == 0 {
		return nil
	}
	if patch.UpdatedBy != "" {
		set("updatedBy", patch.UpdatedBy)
	}
	if !patch.UpdatedAt.IsZero() {
		set("updatedAt", patch.UpdatedAt.UTC())
	}
	return updates
}

// StatusHistoryRepository stores history entries under orders/{id}/statusHistory.
type StatusHistoryRepository struct {
	orders *pfirestore.BaseRepository[orderDocument]
}

var _ repositories.StatusHistoryRepository = (*StatusHistoryRepository)(nil)

// NewStatusHistoryRepository constructs the history repository.
func NewStatusHistoryRepository(provider *pfirestore.Provider) (*StatusHistoryRepository, error) {
	if provider == nil {
		return nil, errors.New("status history repository requires firestore provider")
	}
	return &StatusHistoryRepository{
		orders: pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
	}, nil
}

func (r *StatusHistoryRepository) Append(ctx context.Context, entry domain.OrderStatusHistoryEntry) error {
	coll, err := r.collection(ctx, entry.OrderID)
	if err != nil {
		return err
	}
	doc := historyDocument{
		Status:    string(entry.Status),
		ActorID:   entry.ActorID,
		Notes:     entry.Notes,
		CreatedAt: entry.CreatedAt.UTC(),
	}
	ref := coll.Doc(entry.ID)
	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		err = tx.Create(ref, doc)
	} else {
		_, err = ref.Create(ctx, doc)
	}
	return pfirestore.WrapError("statusHistory.append", err)
}

func (r *StatusHistoryRepository) List(ctx context.Context, orderID string) ([]domain.OrderStatusHistoryEntry, error) {
	coll, err := r.collection(ctx, orderID)
	if err != nil {
		return nil, err
	}
	query := coll.OrderBy("createdAt", firestore.Asc)
	return pfirestore.DecodeAll(ctx, query, "statusHistory.list", func(snap *firestore.DocumentSnapshot) (domain.OrderStatusHistoryEntry, error) {
		var doc historyDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.OrderStatusHistoryEntry{}, err
		}
		return domain.OrderStatusHistoryEntry{
			ID:        snap.Ref.ID,
			OrderID:   orderID,
			Status:    domain.OrderStatus(doc.Status),
			ActorID:   doc.ActorID,
			Notes:     doc.Notes,
			CreatedAt: doc.CreatedAt.UTC(),
		}, nil
	})
}

func (r *StatusHistoryRepository) collection(ctx context.Context, orderID string) (*firestore.CollectionRef, error) {
	ref, err := r.orders.DocumentRef(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return ref.Collection(statusHistoryCollection), nil
}
