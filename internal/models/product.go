package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog entry a Variant belongs to. Only its activity flag
// matters when pricing an order.
type Product struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name      string    `json:"name" gorm:"type:varchar(200);not null"`
	IsActive  bool      `json:"is_active" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Variant is a purchasable SKU of a product with its own price and stock.
type Variant struct {
	ID        string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ProductID string          `json:"product_id" gorm:"type:varchar(36);index;not null"`
	Product   Product         `json:"product" gorm:"foreignKey:ProductID"`
	SKU       string          `json:"sku" gorm:"index;type:varchar(64)"`
	Size      string          `json:"size,omitempty" gorm:"type:varchar(32)"`
	Price     decimal.Decimal `json:"price" gorm:"type:numeric(12,2);not null"`
	Stock     int             `json:"stock" gorm:"not null;default:0"` // never negative
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
