package services

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/apperror"
	"storefront/internal/discount"
	"storefront/internal/events"
	"storefront/internal/metrics"
	"storefront/internal/models"
	"storefront/internal/pricing"
	"storefront/internal/repositories"
)

// maxOrderNumberAttempts bounds how often creation is retried after an
// order number collision.
const maxOrderNumberAttempts = 5

var errCancelRace = errors.New("order changed while cancelling")

// terminalForCancel lists the statuses from which an order cannot be cancelled.
var terminalForCancel = models.NonCancellableStatuses()

// OrderPolicy holds the behaviour switches of the order service.
type OrderPolicy struct {
	// ReverseDiscountUsageOnCancel gives the discount use back when an
	// order that redeemed it is cancelled.
	ReverseDiscountUsageOnCancel bool
	// CapFixedDiscountToSubtotal prevents FIXED discounts from pushing the
	// merchandise total below zero.
	CapFixedDiscountToSubtotal bool
}

// OrderItemRequest is one requested line.
type OrderItemRequest struct {
	VariantID string `json:"variant_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

// CreateOrderRequest is the input of CreateOrder. Tax and ShippingCost are
// supplied by the caller and must not be negative.
type CreateOrderRequest struct {
	ShippingAddressID string             `json:"shipping_address_id" validate:"required"`
	Items             []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
	DiscountCode      string             `json:"discount_code,omitempty" validate:"max=64"`
	Notes             string             `json:"notes,omitempty" validate:"max=1000"`
	Tax               decimal.Decimal    `json:"tax"`
	ShippingCost      decimal.Decimal    `json:"shipping_cost"`
}

// UpdateOrderStatusRequest is the input of the admin status override.
type UpdateOrderStatusRequest struct {
	Status models.OrderStatus `json:"status" validate:"required"`
	Notes  *string            `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

// OrderService coordinates order creation and cancellation with stock and
// discount accounting.
type OrderService struct {
	store       repositories.Store
	publisher   events.Publisher
	metrics     *metrics.OrderMetrics
	logger      *zap.Logger
	policy      OrderPolicy
	validate    *validator.Validate
	now         func() time.Time
	orderNumber func(time.Time) string
}

// OrderServiceOption customizes an OrderService.
type OrderServiceOption func(*OrderService)

// WithClock replaces the time source used for discount expiry and order numbers.
func WithClock(now func() time.Time) OrderServiceOption {
	return func(s *OrderService) { s.now = now }
}

// WithOrderNumbers replaces the order number generator.
func WithOrderNumbers(gen func(time.Time) string) OrderServiceOption {
	return func(s *OrderService) { s.orderNumber = gen }
}

// NewOrderService creates a new OrderService. publisher, m and logger may be nil.
func NewOrderService(store repositories.Store, publisher events.Publisher, m *metrics.OrderMetrics,
	logger *zap.Logger, policy OrderPolicy, opts ...OrderServiceOption) *OrderService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &OrderService{
		store:       store,
		publisher:   publisher,
		metrics:     m,
		logger:      logger.Named("orders"),
		policy:      policy,
		validate:    validator.New(),
		now:         time.Now,
		orderNumber: GenerateOrderNumber,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateOrderNumber returns ORD-<unix millis>-<3 random digits>.
// Uniqueness is enforced by the database, not by this function.
func GenerateOrderNumber(now time.Time) string {
	return fmt.Sprintf("ORD-%d-%03d", now.UnixMilli(), rand.Intn(1000))
}

// pricedLine is a request line resolved against its variant.
type pricedLine struct {
	variant  models.Variant
	quantity int
}

// CreateOrder prices and places an order for userID. Either the order is
// stored with stock decremented and the discount use counted, or nothing
// changes.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, req CreateOrderRequest) (order *models.Order, err error) {
	start := time.Now()
	defer func() {
		if err != nil {
			s.metrics.RecordRejection(apperror.CodeOf(err))
		}
	}()

	req.DiscountCode = strings.TrimSpace(req.DiscountCode)
	if err := s.validateCreate(req); err != nil {
		return nil, err
	}

	if _, err := s.store.Addresses().FindOwnedBy(ctx, req.ShippingAddressID, userID); err != nil {
		return nil, storeError(err, apperror.New(apperror.KindNotFound, apperror.CodeAddressNotFound, "Shipping address not found"))
	}

	lines, err := s.resolveLines(ctx, mergeItems(req.Items))
	if err != nil {
		return nil, err
	}

	pricingLines := make([]pricing.Line, len(lines))
	for i, l := range lines {
		pricingLines[i] = pricing.Line{UnitPrice: l.variant.Price, Quantity: l.quantity}
	}

	var (
		effect  pricing.Effect
		applied *models.Discount
	)
	if req.DiscountCode != "" {
		applied, effect, err = s.applyDiscount(ctx, req.DiscountCode, pricing.Subtotal(pricingLines), req.ShippingCost)
		if err != nil {
			return nil, err
		}
	}

	summary, err := pricing.Compute(pricing.Input{
		Lines:        pricingLines,
		Effect:       effect,
		Tax:          req.Tax,
		ShippingCost: req.ShippingCost,
	})
	if err != nil {
		return nil, invalidField("items", err.Error())
	}

	order = &models.Order{
		ID:                uuid.New().String(),
		UserID:            userID,
		Status:            models.OrderPending,
		Subtotal:          summary.Subtotal,
		Tax:               summary.Tax,
		ShippingCost:      summary.ShippingCost,
		DiscountAmount:    summary.DiscountAmount,
		Total:             summary.Total,
		ShippingAddressID: req.ShippingAddressID,
		Notes:             req.Notes,
		Items:             make([]models.OrderItem, len(lines)),
	}
	if applied != nil {
		order.DiscountID = &applied.ID
	}
	for i, l := range lines {
		order.Items[i] = models.OrderItem{
			ID:        uuid.New().String(),
			OrderID:   order.ID,
			VariantID: l.variant.ID,
			Quantity:  l.quantity,
			UnitPrice: l.variant.Price,
			Subtotal:  pricing.LineSubtotal(l.variant.Price, l.quantity).Round(pricing.Places),
		}
	}

	if err := s.persist(ctx, order, applied); err != nil {
		return nil, err
	}

	s.metrics.RecordOrderCreated(time.Since(start))
	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.String("user_id", userID),
		zap.String("total", order.Total.StringFixed(2)))
	s.publish(ctx, events.NewOrderEvent(events.TypeOrderCreated, order, ""))

	return order, nil
}

func (s *OrderService) validateCreate(req CreateOrderRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return apperror.FromValidation(err)
	}
	if req.Tax.IsNegative() {
		return invalidField("tax", "must not be negative")
	}
	if req.ShippingCost.IsNegative() {
		return invalidField("shipping_cost", "must not be negative")
	}
	return nil
}

// mergeItems folds repeated variants into one line, keeping first-seen order.
func mergeItems(items []OrderItemRequest) []OrderItemRequest {
	merged := make([]OrderItemRequest, 0, len(items))
	index := make(map[string]int, len(items))
	for _, it := range items {
		if i, ok := index[it.VariantID]; ok {
			merged[i].Quantity += it.Quantity
			continue
		}
		index[it.VariantID] = len(merged)
		merged = append(merged, it)
	}
	return merged
}

// resolveLines loads every requested variant and checks it can be sold.
// Missing variants are reported before any stock check.
func (s *OrderService) resolveLines(ctx context.Context, items []OrderItemRequest) ([]pricedLine, error) {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.VariantID
	}
	variants, err := s.store.Variants().FindByIDs(ctx, ids)
	if err != nil {
		return nil, storeError(err, nil)
	}

	byID := make(map[string]models.Variant, len(variants))
	for _, v := range variants {
		byID[v.ID] = v
	}
	if len(byID) != len(ids) {
		var missing []string
		for _, id := range ids {
			if _, ok := byID[id]; !ok {
				missing = append(missing, id)
			}
		}
		return nil, apperror.New(apperror.KindNotFound, apperror.CodeVariantNotFound, "One or more product variants not found").
			WithDetails(map[string]any{"variant_ids": missing})
	}

	lines := make([]pricedLine, len(items))
	for i, it := range items {
		v := byID[it.VariantID]
		if !v.Product.IsActive {
			return nil, apperror.Newf(apperror.KindRejected, apperror.CodeProductInactive,
				"Product %s is not available", v.Product.Name).
				WithDetails(map[string]any{"variant_id": v.ID, "product_id": v.ProductID})
		}
		if v.Stock < it.Quantity {
			return nil, insufficientStock(v.ID, v.Stock, it.Quantity)
		}
		lines[i] = pricedLine{variant: v, quantity: it.Quantity}
	}
	return lines, nil
}

func insufficientStock(variantID string, available, requested int) error {
	return apperror.Newf(apperror.KindRejected, apperror.CodeInsufficientStock,
		"Insufficient stock for variant %s", variantID).
		WithDetails(map[string]any{
			"variant_id": variantID,
			"available":  available,
			"requested":  requested,
		})
}

func (s *OrderService) applyDiscount(ctx context.Context, code string, subtotal, shipping decimal.Decimal) (*models.Discount, pricing.Effect, error) {
	d, err := s.store.Discounts().FindByCode(ctx, code)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, pricing.Effect{}, storeError(err, nil)
	}
	res := discount.Validate(d, discount.Context{
		Now:          s.now(),
		Subtotal:     subtotal,
		ShippingCost: shipping,
	}, discount.Policy{CapFixedToSubtotal: s.policy.CapFixedDiscountToSubtotal})
	if err := res.Err(); err != nil {
		return nil, pricing.Effect{}, err
	}
	return d, res.Effect, nil
}

// persist writes the order, decrements stock and counts the discount use in
// one transaction. A clashing order number gets a fresh number and a new
// transaction.
func (s *OrderService) persist(ctx context.Context, order *models.Order, applied *models.Discount) error {
	// Decrement in a stable order so concurrent orders lock rows the same way.
	items := append([]models.OrderItem(nil), order.Items...)
	sort.Slice(items, func(i, j int) bool { return items[i].VariantID < items[j].VariantID })

	var err error
	for attempt := 0; attempt < maxOrderNumberAttempts; attempt++ {
		order.OrderNumber = s.orderNumber(s.now())
		err = s.store.Within(ctx, func(ctx context.Context, tx repositories.Tx) error {
			if err := tx.Orders().Insert(ctx, order); err != nil {
				return err
			}
			for _, it := range items {
				if err := tx.Variants().DecrementStock(ctx, it.VariantID, it.Quantity); err != nil {
					return err
				}
			}
			if applied != nil {
				if err := tx.Discounts().IncrementUsage(ctx, applied.ID); err != nil {
					return err
				}
			}
			return nil
		})
		if !errors.Is(err, repositories.ErrDuplicate) {
			break
		}
		s.logger.Warn("order number collision, retrying", zap.String("order_number", order.OrderNumber))
	}

	var stockErr *repositories.StockError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &stockErr):
		return insufficientStock(stockErr.VariantID, stockErr.Available, stockErr.Requested)
	case errors.Is(err, repositories.ErrUsageLimitReached):
		return apperror.New(apperror.KindRejected, apperror.CodeDiscountMaxUses,
			"Discount code has reached maximum uses").Wrap(err)
	case errors.Is(err, repositories.ErrNotFound):
		// A variant vanished between the read and the transaction.
		return apperror.New(apperror.KindNotFound, apperror.CodeVariantNotFound,
			"One or more product variants not found").Wrap(err)
	}
	s.logger.Error("create order transaction failed", zap.Error(err))
	return apperror.Transient(err)
}

// CancelOrder cancels an order owned by userID and puts its stock back.
func (s *OrderService) CancelOrder(ctx context.Context, userID, orderID string) (*models.Order, error) {
	order, err := s.store.Orders().FindByID(ctx, orderID)
	if err != nil || order.UserID != userID {
		if err == nil {
			err = repositories.ErrNotFound
		}
		return nil, storeError(err, orderNotFound(orderID))
	}
	if err := cancelCheck(order.Status); err != nil {
		return nil, err
	}

	err = s.store.Within(ctx, func(ctx context.Context, tx repositories.Tx) error {
		changed, err := tx.Orders().TransitionStatus(ctx, order.ID, models.OrderCancelled, terminalForCancel)
		if err != nil {
			return err
		}
		if !changed {
			return errCancelRace
		}
		items := append([]models.OrderItem(nil), order.Items...)
		sort.Slice(items, func(i, j int) bool { return items[i].VariantID < items[j].VariantID })
		for _, it := range items {
			if err := tx.Variants().IncrementStock(ctx, it.VariantID, it.Quantity); err != nil {
				return err
			}
		}
		if s.policy.ReverseDiscountUsageOnCancel && order.DiscountID != nil {
			return tx.Discounts().DecrementUsage(ctx, *order.DiscountID)
		}
		return nil
	})
	if errors.Is(err, errCancelRace) {
		// Someone else moved the order first; report what they moved it to.
		current, ferr := s.store.Orders().FindByID(ctx, orderID)
		if ferr != nil {
			return nil, storeError(ferr, orderNotFound(orderID))
		}
		if cerr := cancelCheck(current.Status); cerr != nil {
			return nil, cerr
		}
		return nil, apperror.Transient(err)
	}
	if err != nil {
		s.logger.Error("cancel order transaction failed", zap.String("order_id", orderID), zap.Error(err))
		return nil, storeError(err, nil)
	}

	previous := order.Status
	order.Status = models.OrderCancelled
	s.metrics.RecordOrderCancelled()
	s.logger.Info("order cancelled", zap.String("order_id", order.ID), zap.String("previous_status", string(previous)))
	s.publish(ctx, events.NewOrderEvent(events.TypeOrderCancelled, order, previous))

	return order, nil
}

func cancelCheck(status models.OrderStatus) error {
	switch {
	case status.Cancellable():
		return nil
	case status == models.OrderDelivered:
		return apperror.New(apperror.KindRejected, apperror.CodeCannotCancelDelivered, "Cannot cancel a delivered order")
	}
	return apperror.New(apperror.KindRejected, apperror.CodeAlreadyCancelled, "Order is already cancelled")
}

func orderNotFound(id string) *apperror.Error {
	return apperror.Newf(apperror.KindNotFound, apperror.CodeOrderNotFound, "Order with ID %s not found", id)
}

// UpdateOrderStatus sets any known status on an order. No transition rules
// are enforced and stock is not touched.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID string, req UpdateOrderStatusRequest) (*models.Order, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperror.FromValidation(err)
	}
	if !req.Status.Valid() {
		return nil, apperror.Newf(apperror.KindValidation, apperror.CodeInvalidStatus, "Invalid order status: %s", req.Status)
	}

	order, err := s.store.Orders().FindByID(ctx, orderID)
	if err != nil {
		return nil, storeError(err, orderNotFound(orderID))
	}
	if err := s.store.Orders().UpdateStatus(ctx, orderID, req.Status, req.Notes); err != nil {
		return nil, storeError(err, orderNotFound(orderID))
	}

	previous := order.Status
	order.Status = req.Status
	if req.Notes != nil {
		order.Notes = *req.Notes
	}
	s.logger.Info("order status updated",
		zap.String("order_id", orderID),
		zap.String("from", string(previous)),
		zap.String("to", string(req.Status)))
	s.publish(ctx, events.NewOrderEvent(events.TypeOrderStatusChanged, order, previous))
	return order, nil
}

// ListOrders returns a page of orders, newest first. Non-admin viewers only
// ever see their own orders.
func (s *OrderService) ListOrders(ctx context.Context, viewer Viewer, filter repositories.OrderFilter, page repositories.Pagination) (Page[models.Order], error) {
	if !viewer.Admin {
		filter.UserID = viewer.UserID
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return Page[models.Order]{}, apperror.Newf(apperror.KindValidation, apperror.CodeInvalidStatus, "Invalid order status: %s", filter.Status)
	}
	orders, total, err := s.store.Orders().List(ctx, filter, page)
	if err != nil {
		return Page[models.Order]{}, storeError(err, nil)
	}
	return newPage(orders, total, page), nil
}

// GetOrder returns an order visible to viewer.
func (s *OrderService) GetOrder(ctx context.Context, viewer Viewer, id string) (*models.Order, error) {
	order, err := s.store.Orders().FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, orderNotFound(id))
	}
	if !viewer.owns(order) {
		return nil, orderNotFound(id)
	}
	return order, nil
}

// GetOrderByNumber returns an order visible to viewer by its order number.
func (s *OrderService) GetOrderByNumber(ctx context.Context, viewer Viewer, number string) (*models.Order, error) {
	notFound := apperror.Newf(apperror.KindNotFound, apperror.CodeOrderNotFound, "Order %s not found", number)
	order, err := s.store.Orders().FindByNumber(ctx, number)
	if err != nil {
		return nil, storeError(err, notFound)
	}
	if !viewer.owns(order) {
		return nil, notFound
	}
	return order, nil
}

// publish hands evt to the publisher. Failures are logged and counted; the
// committed order is never rolled back because of them.
func (s *OrderService) publish(ctx context.Context, evt events.Event) {
	publishEvent(ctx, s.publisher, s.metrics, s.logger, evt)
}

func publishEvent(ctx context.Context, p events.Publisher, m *metrics.OrderMetrics, logger *zap.Logger, evt events.Event) {
	err := p.Publish(ctx, evt)
	m.RecordEvent(evt.Type, err == nil)
	if err != nil {
		logger.Warn("failed to publish event",
			zap.String("type", evt.Type), zap.String("key", evt.Key), zap.Error(err))
	}
}
