package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType selects how a discount's Value is interpreted.
type DiscountType string

const (
	DiscountPercent      DiscountType = "PERCENT"
	DiscountFixed        DiscountType = "FIXED"
	DiscountFreeShipping DiscountType = "FREE_SHIPPING"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	switch t {
	case DiscountPercent, DiscountFixed, DiscountFreeShipping:
		return true
	}
	return false
}

// Discount is a promotional code. CurrentUses is only changed through
// conditional updates and never exceeds MaxUses when MaxUses is set.
type Discount struct {
	ID            string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Code          string           `json:"code" gorm:"uniqueIndex;type:varchar(64);not null"`
	Description   string           `json:"description,omitempty" gorm:"type:varchar(500)"`
	Type          DiscountType     `json:"type" gorm:"type:varchar(20);not null"`
	Value         decimal.Decimal  `json:"value" gorm:"type:numeric(12,2);not null"`
	MinOrderTotal *decimal.Decimal `json:"min_order_total,omitempty" gorm:"type:numeric(12,2)"`
	ExpiresAt     *time.Time       `json:"expires_at,omitempty"`
	MaxUses       *int             `json:"max_uses,omitempty"`
	CurrentUses   int              `json:"current_uses" gorm:"not null;default:0"`
	IsActive      bool             `json:"is_active" gorm:"not null"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}
