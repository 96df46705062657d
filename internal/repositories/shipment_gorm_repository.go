package repositories

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"storefront/internal/models"
)

type GORMShipmentRepository struct {
	db *gorm.DB
}

func NewGORMShipmentRepository(db *gorm.DB) *GORMShipmentRepository {
	return &GORMShipmentRepository{db: db}
}

func (r *GORMShipmentRepository) Create(ctx context.Context, shipment *models.Shipment) error {
	if shipment.ID == "" {
		shipment.ID = uuid.New().String()
	}
	return translate(r.db.WithContext(ctx).Create(shipment).Error, "create shipment")
}

func (r *GORMShipmentRepository) GetByID(ctx context.Context, id string) (*models.Shipment, error) {
	var shipment models.Shipment
	if err := r.db.WithContext(ctx).First(&shipment, "id = ?", id).Error; err != nil {
		return nil, translate(err, "get shipment "+id)
	}
	return &shipment, nil
}

func (r *GORMShipmentRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Shipment, error) {
	var shipment models.Shipment
	if err := r.db.WithContext(ctx).First(&shipment, "order_id = ?", orderID).Error; err != nil {
		return nil, translate(err, "get shipment for order "+orderID)
	}
	return &shipment, nil
}

func (r *GORMShipmentRepository) List(ctx context.Context, page Pagination) ([]models.Shipment, int64, error) {
	page = page.Normalize()
	q := r.db.WithContext(ctx).Model(&models.Shipment{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate(err, "count shipments")
	}
	var shipments []models.Shipment
	err := q.Order("created_at DESC").Order("id").
		Offset(page.Offset()).Limit(page.Limit).
		Find(&shipments).Error
	if err != nil {
		return nil, 0, translate(err, "list shipments")
	}
	return shipments, total, nil
}

func (r *GORMShipmentRepository) Update(ctx context.Context, shipment *models.Shipment) error {
	res := r.db.WithContext(ctx).
		Model(&models.Shipment{ID: shipment.ID}).
		Select("carrier", "tracking_number", "status", "estimated_at", "shipped_at", "delivered_at", "updated_at").
		Updates(shipment)
	if res.Error != nil {
		return translate(res.Error, "update shipment")
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "update shipment "+shipment.ID)
	}
	return nil
}

func (r *GORMShipmentRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.Shipment{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error, "delete shipment")
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "delete shipment "+id)
	}
	return nil
}
