package repositories

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"storefront/internal/models"
)

// GORMProductRepository is a GORM implementation of ProductRepository.
type GORMProductRepository struct {
	db *gorm.DB
}

// NewGORMProductRepository creates a new instance of GORMProductRepository.
func NewGORMProductRepository(db *gorm.DB) *GORMProductRepository {
	return &GORMProductRepository{db: db}
}

// Create creates a new product in the database.
func (r *GORMProductRepository) Create(ctx context.Context, product *models.Product) error {
	if product.ID == "" {
		product.ID = uuid.New().String()
	}
	return translate(r.db.WithContext(ctx).Create(product).Error, "create product")
}

// GetByID retrieves a single product by its ID from the database.
func (r *GORMProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, translate(err, "get product "+id)
	}
	return &product, nil
}

// GORMVariantRepository is a GORM implementation of VariantRepository.
type GORMVariantRepository struct {
	db *gorm.DB
}

func NewGORMVariantRepository(db *gorm.DB) *GORMVariantRepository {
	return &GORMVariantRepository{db: db}
}

func (r *GORMVariantRepository) Create(ctx context.Context, variant *models.Variant) error {
	if variant.ID == "" {
		variant.ID = uuid.New().String()
	}
	// The product is created separately; never upsert it through the association.
	err := r.db.WithContext(ctx).Omit("Product").Create(variant).Error
	return translate(err, "create variant")
}

func (r *GORMVariantRepository) GetByID(ctx context.Context, id string) (*models.Variant, error) {
	var variant models.Variant
	if err := r.db.WithContext(ctx).Preload("Product").First(&variant, "id = ?", id).Error; err != nil {
		return nil, translate(err, "get variant "+id)
	}
	return &variant, nil
}

func (r *GORMVariantRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Variant, error) {
	var variants []models.Variant
	if len(ids) == 0 {
		return variants, nil
	}
	err := r.db.WithContext(ctx).
		Preload("Product").
		Where("id IN ?", ids).
		Find(&variants).Error
	if err != nil {
		return nil, translate(err, "find variants")
	}
	return variants, nil
}

// DecrementStock runs a single conditional UPDATE so two concurrent orders
// can never both take the last unit.
func (r *GORMVariantRepository) DecrementStock(ctx context.Context, id string, qty int) error {
	res := r.db.WithContext(ctx).
		Model(&models.Variant{}).
		Where("id = ? AND stock >= ?", id, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return translate(res.Error, "decrement stock")
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var current models.Variant
	if err := r.db.WithContext(ctx).Select("id", "stock").First(&current, "id = ?", id).Error; err != nil {
		return translate(err, "decrement stock")
	}
	return &StockError{VariantID: id, Available: current.Stock, Requested: qty}
}

func (r *GORMVariantRepository) IncrementStock(ctx context.Context, id string, qty int) error {
	res := r.db.WithContext(ctx).
		Model(&models.Variant{}).
		Where("id = ?", id).
		UpdateColumn("stock", gorm.Expr("stock + ?", qty))
	if res.Error != nil {
		return translate(res.Error, "increment stock")
	}
	if res.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "increment stock "+id)
	}
	return nil
}
