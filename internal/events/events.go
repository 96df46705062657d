// Package events defines the domain events emitted after a transaction
// commits and the publisher that serializes them onto a broker.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"storefront/internal/models"
)

// Event types.
const (
	TypeOrderCreated       = "order.created"
	TypeOrderCancelled     = "order.cancelled"
	TypeOrderStatusChanged = "order.status_changed"
	TypeShipmentUpdated    = "shipment.updated"
)

// Event is the envelope put on the wire.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// OrderPayload is carried by every order.* event.
type OrderPayload struct {
	OrderID        string             `json:"order_id"`
	OrderNumber    string             `json:"order_number"`
	UserID         string             `json:"user_id"`
	Status         models.OrderStatus `json:"status"`
	PreviousStatus models.OrderStatus `json:"previous_status,omitempty"`
	Total          string             `json:"total"`
	DiscountID     *string            `json:"discount_id,omitempty"`
	Items          []ItemPayload      `json:"items,omitempty"`
}

type ItemPayload struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// ShipmentPayload is carried by shipment.* events.
type ShipmentPayload struct {
	ShipmentID     string                `json:"shipment_id"`
	OrderID        string                `json:"order_id"`
	Status         models.ShipmentStatus `json:"status"`
	Carrier        string                `json:"carrier"`
	TrackingNumber string                `json:"tracking_number"`
}

// NewOrderEvent builds an order.* event keyed by order id.
func NewOrderEvent(eventType string, order *models.Order, previous models.OrderStatus) Event {
	items := make([]ItemPayload, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, ItemPayload{VariantID: it.VariantID, Quantity: it.Quantity})
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Key:        order.ID,
		OccurredAt: time.Now().UTC(),
		Payload: OrderPayload{
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			UserID:         order.UserID,
			Status:         order.Status,
			PreviousStatus: previous,
			Total:          order.Total.StringFixed(2),
			DiscountID:     order.DiscountID,
			Items:          items,
		},
	}
}

// NewShipmentEvent builds a shipment.updated event keyed by order id so it
// lands on the same partition as the order's own events.
func NewShipmentEvent(s *models.Shipment) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       TypeShipmentUpdated,
		Key:        s.OrderID,
		OccurredAt: time.Now().UTC(),
		Payload: ShipmentPayload{
			ShipmentID:     s.ID,
			OrderID:        s.OrderID,
			Status:         s.Status,
			Carrier:        s.Carrier,
			TrackingNumber: s.TrackingNumber,
		},
	}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Sink is a broker client able to deliver an encoded event.
type Sink interface {
	Publish(ctx context.Context, eventType, key string, body []byte) error
}

// SinkPublisher encodes events as JSON and hands them to a Sink.
type SinkPublisher struct {
	sink Sink
}

func NewSinkPublisher(sink Sink) *SinkPublisher {
	return &SinkPublisher{sink: sink}
}

func (p *SinkPublisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrapf(err, "marshal %s event", evt.Type)
	}
	if err := p.sink.Publish(ctx, evt.Type, evt.Key, body); err != nil {
		return errors.Wrapf(err, "publish %s event", evt.Type)
	}
	return nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
