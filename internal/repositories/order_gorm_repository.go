package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"storefront/internal/models"
)

// GORMOrderRepository is a GORM implementation of OrderRepository.
type GORMOrderRepository struct {
	db *gorm.DB
}

func NewGORMOrderRepository(db *gorm.DB) *GORMOrderRepository {
	return &GORMOrderRepository{db: db}
}

func (r *GORMOrderRepository) Insert(ctx context.Context, order *models.Order) error {
	return translate(r.db.WithContext(ctx).Create(order).Error, "insert order")
}

func (r *GORMOrderRepository) FindByID(ctx context.Context, id string) (*models.Order, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *GORMOrderRepository) FindByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	return r.first(ctx, "order_number = ?", orderNumber)
}

func (r *GORMOrderRepository) first(ctx context.Context, query string, arg any) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		First(&order, query, arg).Error
	if err != nil {
		return nil, translate(err, "get order")
	}
	return &order, nil
}

func (r *GORMOrderRepository) List(ctx context.Context, filter OrderFilter, page Pagination) ([]models.Order, int64, error) {
	page = page.Normalize()
	q := r.db.WithContext(ctx).Model(&models.Order{})
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate(err, "count orders")
	}
	var orders []models.Order
	err := q.Preload("Items").
		Order("created_at DESC").Order("order_number DESC").
		Offset(page.Offset()).Limit(page.Limit).
		Find(&orders).Error
	if err != nil {
		return nil, 0, translate(err, "list orders")
	}
	return orders, total, nil
}

func (r *GORMOrderRepository) UpdateStatus(ctx context.Context, id string, status models.OrderStatus, notes *string) error {
	values := map[string]any{"status": status, "updated_at": time.Now()}
	if notes != nil {
		values["notes"] = *notes
	}
	res := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return translate(res.Error, "update order status")
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "update order status "+id)
	}
	return nil
}

func (r *GORMOrderRepository) TransitionStatus(ctx context.Context, id string, to models.OrderStatus, unless []models.OrderStatus) (bool, error) {
	q := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id)
	if len(unless) > 0 {
		q = q.Where("status NOT IN ?", unless)
	}
	res := q.Updates(map[string]any{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return false, translate(res.Error, "transition order status")
	}
	return res.RowsAffected == 1, nil
}
