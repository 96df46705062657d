package models

import "time"

// ShipmentStatus is the carrier-side state of a shipment.
type ShipmentStatus string

const (
	ShipmentPending    ShipmentStatus = "PENDING"
	ShipmentProcessing ShipmentStatus = "PROCESSING"
	ShipmentShipped    ShipmentStatus = "SHIPPED"
	ShipmentInTransit  ShipmentStatus = "IN_TRANSIT"
	ShipmentDelivered  ShipmentStatus = "DELIVERED"
	ShipmentReturned   ShipmentStatus = "RETURNED"
)

// Valid reports whether s is a known shipment status.
func (s ShipmentStatus) Valid() bool {
	switch s {
	case ShipmentPending, ShipmentProcessing, ShipmentShipped,
		ShipmentInTransit, ShipmentDelivered, ShipmentReturned:
		return true
	}
	return false
}

// OrderStatus returns the order status a shipment in status s forces, if any.
// Only SHIPPED and DELIVERED cascade.
func (s ShipmentStatus) OrderStatus() (OrderStatus, bool) {
	switch s {
	case ShipmentShipped:
		return OrderShipped, true
	case ShipmentDelivered:
		return OrderDelivered, true
	}
	return "", false
}

// Shipment tracks delivery of a single order.
type Shipment struct {
	ID             string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID        string         `json:"order_id" gorm:"uniqueIndex;type:varchar(36);not null"`
	Carrier        string         `json:"carrier" gorm:"type:varchar(100)"`
	TrackingNumber string         `json:"tracking_number" gorm:"type:varchar(100)"`
	Status         ShipmentStatus `json:"status" gorm:"type:varchar(20);not null"`
	EstimatedAt    *time.Time     `json:"estimated_at,omitempty"`
	ShippedAt      *time.Time     `json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
