package services

import (
	"slices"
	"time"

	domain "github.com/ZoliswaDube/BizPilot-sub002/internal/domain"
)

var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusConfirmed, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed:  {domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered},
	domain.OrderStatusDelivered:  nil,
	domain.OrderStatusCancelled:  nil,
}

// StatusWorkflow is the order state machine.
type StatusWorkflow struct{}

// AllowedTransitions returns the statuses reachable from current in one step.
func (StatusWorkflow) AllowedTransitions(current domain.OrderStatus) []domain.OrderStatus {
	return slices.Clone(orderStateTransitions[current])
}

// IsTerminal reports whether no transition leaves status.
func (StatusWorkflow) IsTerminal(status domain.OrderStatus) bool {
	return len(orderStateTransitions[status]) == 0
}

// ValidateTransition returns a *StatusTransitionError unless requested is reachable from current.
func (w StatusWorkflow) ValidateTransition(current, requested domain.OrderStatus) error {
	if canTransition(current, requested) {
		return nil
	}
	allowed := w.AllowedTransitions(current)
	if current == requested {
		allowed = nil
	}
	return &StatusTransitionError{From: current, To: requested, Allowed: allowed}
}

// RequiresInventoryRestore reports whether entering target must return consumed stock.
func (StatusWorkflow) RequiresInventoryRestore(target domain.OrderStatus) bool {
	return target == domain.OrderStatusCancelled
}

// HistoryEntry builds the audit row written for a status change.
func (StatusWorkflow) HistoryEntry(id, orderID string, status domain.OrderStatus, actorID string, notes *string, at time.Time) domain.OrderStatusHistoryEntry {
	return domain.OrderStatusHistoryEntry{
		ID:        id,
		OrderID:   orderID,
		Status:    status,
		ActorID:   actorID,
		Notes:     notes,
		CreatedAt: at,
	}
}

func canTransition(current, target domain.OrderStatus) bool {
	if current == target {
		return false
	}
	return slices.Contains(orderStateTransitions[current], target)
}
