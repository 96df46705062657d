package repositories

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"storefront/internal/models"
)

type GORMAddressRepository struct {
	db *gorm.DB
}

func NewGORMAddressRepository(db *gorm.DB) *GORMAddressRepository {
	return &GORMAddressRepository{db: db}
}

func (r *GORMAddressRepository) Create(ctx context.Context, address *models.Address) error {
	if address.ID == "" {
		address.ID = uuid.New().String()
	}
	return translate(r.db.WithContext(ctx).Create(address).Error, "create address")
}

func (r *GORMAddressRepository) FindOwnedBy(ctx context.Context, id, userID string) (*models.Address, error) {
	var address models.Address
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&address).Error
	if err != nil {
		return nil, translate(err, "find address")
	}
	return &address, nil
}
