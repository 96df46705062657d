package services

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/apperror"
	"storefront/internal/discount"
	"storefront/internal/models"
	"storefront/internal/repositories"
)

// CreateDiscountRequest is the input of DiscountService.Create.
type CreateDiscountRequest struct {
	Code          string              `json:"code" validate:"required,min=3,max=64"`
	Description   string              `json:"description,omitempty" validate:"max=500"`
	Type          models.DiscountType `json:"type" validate:"required"`
	Value         decimal.Decimal     `json:"value"`
	MinOrderTotal *decimal.Decimal    `json:"min_order_total,omitempty"`
	ExpiresAt     *time.Time          `json:"expires_at,omitempty"`
	MaxUses       *int                `json:"max_uses,omitempty" validate:"omitempty,min=1"`
	IsActive      *bool               `json:"is_active,omitempty"`
}

// UpdateDiscountRequest carries the fields to change; nil fields are kept.
type UpdateDiscountRequest struct {
	Code          *string              `json:"code,omitempty" validate:"omitempty,min=3,max=64"`
	Description   *string              `json:"description,omitempty" validate:"omitempty,max=500"`
	Type          *models.DiscountType `json:"type,omitempty"`
	Value         *decimal.Decimal     `json:"value,omitempty"`
	MinOrderTotal *decimal.Decimal     `json:"min_order_total,omitempty"`
	ExpiresAt     *time.Time           `json:"expires_at,omitempty"`
	MaxUses       *int                 `json:"max_uses,omitempty" validate:"omitempty,min=1"`
	IsActive      *bool                `json:"is_active,omitempty"`
}

// DiscountCheck is the answer of the read-only validation endpoint.
type DiscountCheck struct {
	Valid          bool             `json:"valid"`
	Reason         discount.Reason  `json:"reason,omitempty"`
	Message        string           `json:"message,omitempty"`
	Discount       *models.Discount `json:"discount,omitempty"`
	DiscountAmount decimal.Decimal  `json:"discount_amount"`
}

// DiscountService manages discount codes.
type DiscountService struct {
	repo     repositories.DiscountRepository
	logger   *zap.Logger
	policy   discount.Policy
	validate *validator.Validate
	now      func() time.Time
}

func NewDiscountService(repo repositories.DiscountRepository, logger *zap.Logger, policy discount.Policy) *DiscountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiscountService{
		repo:     repo,
		logger:   logger.Named("discounts"),
		policy:   policy,
		validate: validator.New(),
		now:      time.Now,
	}
}

func discountNotFound(what string) *apperror.Error {
	return apperror.Newf(apperror.KindNotFound, apperror.CodeDiscountNotFound, "Discount %s not found", what)
}

// Validate reports whether code would apply to an order with the given
// subtotal and shipping cost. Refusals are part of the result, not errors.
func (s *DiscountService) Validate(ctx context.Context, code string, orderTotal, shippingCost decimal.Decimal) (DiscountCheck, error) {
	d, err := s.repo.FindByCode(ctx, strings.TrimSpace(code))
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return DiscountCheck{}, storeError(err, nil)
	}
	res := discount.Validate(d, discount.Context{
		Now:          s.now(),
		Subtotal:     orderTotal,
		ShippingCost: shippingCost,
	}, s.policy)

	check := DiscountCheck{
		Valid:   res.Valid,
		Reason:  res.Reason,
		Message: res.Message,
	}
	if res.Valid {
		check.Discount = d
		check.DiscountAmount = res.Effect.Amount.Round(2)
	}
	return check, nil
}

func (s *DiscountService) Create(ctx context.Context, req CreateDiscountRequest) (*models.Discount, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperror.FromValidation(err)
	}
	d := &models.Discount{
		Code:          strings.TrimSpace(req.Code),
		Description:   req.Description,
		Type:          req.Type,
		Value:         req.Value,
		MinOrderTotal: req.MinOrderTotal,
		ExpiresAt:     req.ExpiresAt,
		MaxUses:       req.MaxUses,
		IsActive:      req.IsActive == nil || *req.IsActive,
	}
	if err := checkDiscount(d); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, d); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, apperror.Newf(apperror.KindConflict, apperror.CodeDiscountCodeExists,
				"Discount code '%s' already exists", d.Code)
		}
		return nil, storeError(err, nil)
	}
	s.logger.Info("discount created", zap.String("code", d.Code), zap.String("type", string(d.Type)))
	return d, nil
}

func (s *DiscountService) Update(ctx context.Context, id string, req UpdateDiscountRequest) (*models.Discount, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperror.FromValidation(err)
	}
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, discountNotFound(id))
	}

	if req.Code != nil {
		d.Code = strings.TrimSpace(*req.Code)
	}
	if req.Description != nil {
		d.Description = *req.Description
	}
	if req.Type != nil {
		d.Type = *req.Type
	}
	if req.Value != nil {
		d.Value = *req.Value
	}
	if req.MinOrderTotal != nil {
		d.MinOrderTotal = req.MinOrderTotal
	}
	if req.ExpiresAt != nil {
		d.ExpiresAt = req.ExpiresAt
	}
	if req.MaxUses != nil {
		d.MaxUses = req.MaxUses
	}
	if req.IsActive != nil {
		d.IsActive = *req.IsActive
	}
	if err := checkDiscount(d); err != nil {
		return nil, err
	}
	d.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, d); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, apperror.Newf(apperror.KindConflict, apperror.CodeDiscountCodeExists,
				"Discount code '%s' already exists", d.Code)
		}
		return nil, storeError(err, discountNotFound(id))
	}
	return d, nil
}

func checkDiscount(d *models.Discount) error {
	if !d.Type.Valid() {
		return invalidField("type", "must be one of PERCENT, FIXED, FREE_SHIPPING")
	}
	if d.Value.IsNegative() {
		return invalidField("value", "must not be negative")
	}
	if d.Type != models.DiscountFreeShipping && !d.Value.IsPositive() {
		return invalidField("value", "must be greater than zero")
	}
	if d.Type == models.DiscountPercent && d.Value.GreaterThan(decimal.NewFromInt(100)) {
		return invalidField("value", "percentage cannot exceed 100")
	}
	if d.MinOrderTotal != nil && d.MinOrderTotal.IsNegative() {
		return invalidField("min_order_total", "must not be negative")
	}
	return nil
}

func (s *DiscountService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return storeError(err, discountNotFound(id))
	}
	return nil
}

func (s *DiscountService) GetByID(ctx context.Context, id string) (*models.Discount, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, discountNotFound(id))
	}
	return d, nil
}

func (s *DiscountService) GetByCode(ctx context.Context, code string) (*models.Discount, error) {
	d, err := s.repo.FindByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		return nil, storeError(err, discountNotFound("'"+code+"'"))
	}
	return d, nil
}

func (s *DiscountService) List(ctx context.Context, filter repositories.DiscountFilter, page repositories.Pagination) (Page[models.Discount], error) {
	items, total, err := s.repo.List(ctx, filter, page)
	if err != nil {
		return Page[models.Discount]{}, storeError(err, nil)
	}
	return newPage(items, total, page), nil
}
