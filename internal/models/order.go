package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderConfirmed  OrderStatus = "CONFIRMED"
	OrderProcessing OrderStatus = "PROCESSING"
	OrderShipped    OrderStatus = "SHIPPED"
	OrderDelivered  OrderStatus = "DELIVERED"
	OrderCancelled  OrderStatus = "CANCELLED"
	OrderRefunded   OrderStatus = "REFUNDED"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderConfirmed, OrderProcessing, OrderShipped,
		OrderDelivered, OrderCancelled, OrderRefunded:
		return true
	}
	return false
}

// OrderItem is one priced line of an order. UnitPrice is a snapshot of the
// variant price at creation time.
type OrderItem struct {
	ID        string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderID   string          `json:"order_id" gorm:"type:varchar(36);index;not null"`
	VariantID string          `json:"variant_id" gorm:"type:varchar(36);index;not null"`
	Quantity  int             `json:"quantity" gorm:"not null"`
	UnitPrice decimal.Decimal `json:"unit_price" gorm:"type:numeric(12,2);not null"`
	Subtotal  decimal.Decimal `json:"subtotal" gorm:"type:numeric(12,2);not null"`
}

// Order represents a customer order. Items are immutable once created.
type Order struct {
	ID                string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OrderNumber       string          `json:"order_number" gorm:"uniqueIndex;type:varchar(40);not null"`
	UserID            string          `json:"user_id" gorm:"type:varchar(36);index;not null"`
	Status            OrderStatus     `json:"status" gorm:"type:varchar(20);index;not null"`
	Subtotal          decimal.Decimal `json:"subtotal" gorm:"type:numeric(12,2);not null"`
	Tax               decimal.Decimal `json:"tax" gorm:"type:numeric(12,2);not null"`
	ShippingCost      decimal.Decimal `json:"shipping_cost" gorm:"type:numeric(12,2);not null"`
	DiscountAmount    decimal.Decimal `json:"discount_amount" gorm:"type:numeric(12,2);not null"`
	Total             decimal.Decimal `json:"total" gorm:"type:numeric(12,2);not null"`
	DiscountID        *string         `json:"discount_id,omitempty" gorm:"type:varchar(36)"`
	ShippingAddressID string          `json:"shipping_address_id" gorm:"type:varchar(36);not null"`
	Notes             string          `json:"notes,omitempty" gorm:"type:text"`
	Items             []OrderItem     `json:"items" gorm:"foreignKey:OrderID"`
	CreatedAt         time.Time       `json:"created_at" gorm:"index"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

var orderStatuses = []OrderStatus{
	OrderPending, OrderConfirmed, OrderProcessing, OrderShipped,
	OrderDelivered, OrderCancelled, OrderRefunded,
}

// Cancellable reports whether an order in status s may still be cancelled.
func (s OrderStatus) Cancellable() bool {
	return s != OrderCancelled && s != OrderDelivered
}

// NonCancellableStatuses lists every status for which Cancellable is false.
func NonCancellableStatuses() []OrderStatus {
	var out []OrderStatus
	for _, s := range orderStatuses {
		if !s.Cancellable() {
			out = append(out, s)
		}
	}
	return out
}
