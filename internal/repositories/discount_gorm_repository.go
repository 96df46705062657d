package repositories

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"storefront/internal/models"
)

type GORMDiscountRepository struct {
	db *gorm.DB
}

func NewGORMDiscountRepository(db *gorm.DB) *GORMDiscountRepository {
	return &GORMDiscountRepository{db: db}
}

func (r *GORMDiscountRepository) Create(ctx context.Context, discount *models.Discount) error {
	if discount.ID == "" {
		discount.ID = uuid.New().String()
	}
	return translate(r.db.WithContext(ctx).Create(discount).Error, "create discount")
}

func (r *GORMDiscountRepository) GetByID(ctx context.Context, id string) (*models.Discount, error) {
	var discount models.Discount
	if err := r.db.WithContext(ctx).First(&discount, "id = ?", id).Error; err != nil {
		return nil, translate(err, "get discount "+id)
	}
	return &discount, nil
}

func (r *GORMDiscountRepository) FindByCode(ctx context.Context, code string) (*models.Discount, error) {
	var discount models.Discount
	if err := r.db.WithContext(ctx).First(&discount, "code = ?", code).Error; err != nil {
		return nil, translate(err, "find discount by code")
	}
	return &discount, nil
}

func (r *GORMDiscountRepository) List(ctx context.Context, filter DiscountFilter, page Pagination) ([]models.Discount, int64, error) {
	page = page.Normalize()
	q := r.db.WithContext(ctx).Model(&models.Discount{})
	if filter.Search != "" {
		q = q.Where("LOWER(code) LIKE ?", "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.Active != nil {
		q = q.Where("is_active = ?", *filter.Active)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate(err, "count discounts")
	}
	var discounts []models.Discount
	err := q.Order("created_at DESC").Order("id").
		Offset(page.Offset()).Limit(page.Limit).
		Find(&discounts).Error
	if err != nil {
		return nil, 0, translate(err, "list discounts")
	}
	return discounts, total, nil
}

func (r *GORMDiscountRepository) Update(ctx context.Context, discount *models.Discount) error {
	res := r.db.WithContext(ctx).
		Model(&models.Discount{ID: discount.ID}).
		Select("code", "description", "type", "value", "min_order_total", "expires_at", "max_uses", "is_active", "updated_at").
		Updates(discount)
	if res.Error != nil {
		return translate(res.Error, "update discount")
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "update discount "+discount.ID)
	}
	return nil
}

func (r *GORMDiscountRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&models.Discount{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error, "delete discount")
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "delete discount "+id)
	}
	return nil
}

// IncrementUsage re-checks activity and the usage cap in the same statement
// that counts the use, so a discount cannot be redeemed past MaxUses.
func (r *GORMDiscountRepository) IncrementUsage(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Discount{}).
		Where("id = ? AND is_active = ? AND (max_uses IS NULL OR current_uses < max_uses)", id, true).
		UpdateColumn("current_uses", gorm.Expr("current_uses + 1"))
	if res.Error != nil {
		return translate(res.Error, "increment discount usage")
	}
	if res.RowsAffected == 0 {
		return ErrUsageLimitReached
	}
	return nil
}

func (r *GORMDiscountRepository) DecrementUsage(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Discount{}).
		Where("id = ? AND current_uses > 0", id).
		UpdateColumn("current_uses", gorm.Expr("current_uses - 1"))
	return translate(res.Error, "decrement discount usage")
}
