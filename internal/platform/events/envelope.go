// Package events delivers order domain events to a message broker. Every backend sends the same
// JSON envelope; transports differ only in how they carry the routing metadata.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ZoliswaDube/BizPilot-sub002/internal/services"
)

// Envelope is the wire form of an order event.
type Envelope struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	BusinessID     string         `json:"businessId"`
	OrderID        string         `json:"orderId,omitempty"`
	OrderNumber    string         `json:"orderNumber,omitempty"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus,omitempty"`
	ActorID        string         `json:"actorId,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// NewEnvelope stamps event with a fresh id.
func NewEnvelope(event services.OrderEvent) Envelope {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	return Envelope{
		ID:             uuid.NewString(),
		Type:           event.Type,
		BusinessID:     event.BusinessID,
		OrderID:        event.OrderID,
		OrderNumber:    event.OrderNumber,
		PreviousStatus: event.PreviousStatus,
		CurrentStatus:  event.CurrentStatus,
		ActorID:        event.ActorID,
		OccurredAt:     occurred.UTC(),
		Metadata:       event.Metadata,
	}
}

// Attributes returns the routing metadata carried beside the payload.
func (e Envelope) Attributes() map[string]string {
	attrs := make(map[string]string, 4)
	setAttr(attrs, "eventId", e.ID)
	setAttr(attrs, "eventType", e.Type)
	setAttr(attrs, "businessId", e.BusinessID)
	setAttr(attrs, "orderId", e.OrderID)
	return attrs
}

// PartitionKey groups events of one order so brokers keep them in sequence.
func (e Envelope) PartitionKey() string {
	if e.OrderID != "" {
		return e.OrderID
	}
	return e.BusinessID
}

func (e Envelope) marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	return data, nil
}

func setAttr(attrs map[string]string, key, value string) {
	if value != "" {
		attrs[key] = value
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) PublishOrderEvent(_ context.Context, _ services.OrderEvent) error { return nil }
