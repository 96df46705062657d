package models

import "time"

// Address is a shipping address owned by a user.
type Address struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID     string    `json:"user_id" gorm:"type:varchar(36);index;not null"`
	Line1      string    `json:"line1" gorm:"type:varchar(255)"`
	Line2      string    `json:"line2,omitempty" gorm:"type:varchar(255)"`
	City       string    `json:"city" gorm:"type:varchar(100)"`
	PostalCode string    `json:"postal_code" gorm:"type:varchar(20)"`
	Country    string    `json:"country" gorm:"type:varchar(2)"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
