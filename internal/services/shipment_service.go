package services

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"storefront/internal/apperror"
	"storefront/internal/events"
	"storefront/internal/metrics"
	"storefront/internal/models"
	"storefront/internal/repositories"
)

// Orders in these statuses are never moved by a shipment update.
var shipmentCascadeBlocked = []models.OrderStatus{models.OrderCancelled, models.OrderRefunded}

type CreateShipmentRequest struct {
	OrderID        string                `json:"order_id" validate:"required"`
	Carrier        string                `json:"carrier" validate:"required,max=100"`
	TrackingNumber string                `json:"tracking_number" validate:"required,max=100"`
	Status         models.ShipmentStatus `json:"status,omitempty"`
	EstimatedAt    *time.Time            `json:"estimated_at,omitempty"`
}

type UpdateShipmentRequest struct {
	Carrier        *string                `json:"carrier,omitempty" validate:"omitempty,max=100"`
	TrackingNumber *string                `json:"tracking_number,omitempty" validate:"omitempty,max=100"`
	Status         *models.ShipmentStatus `json:"status,omitempty"`
	EstimatedAt    *time.Time             `json:"estimated_at,omitempty"`
}

// ShipmentService manages shipments. Moving a shipment to SHIPPED or
// DELIVERED moves its order along in the same transaction.
type ShipmentService struct {
	store     repositories.Store
	publisher events.Publisher
	metrics   *metrics.OrderMetrics
	logger    *zap.Logger
	validate  *validator.Validate
	now       func() time.Time
}

func NewShipmentService(store repositories.Store, publisher events.Publisher, m *metrics.OrderMetrics, logger *zap.Logger) *ShipmentService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShipmentService{
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger.Named("shipments"),
		validate:  validator.New(),
		now:       time.Now,
	}
}

func shipmentNotFound(id string) *apperror.Error {
	return apperror.Newf(apperror.KindNotFound, apperror.CodeShipmentNotFound, "Shipment with ID %s not found", id)
}

func shipmentExists(orderID string) *apperror.Error {
	return apperror.Newf(apperror.KindConflict, apperror.CodeShipmentExists, "Shipment already exists for order %s", orderID)
}

func (s *ShipmentService) Create(ctx context.Context, req CreateShipmentRequest) (*models.Shipment, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperror.FromValidation(err)
	}
	if req.Status == "" {
		req.Status = models.ShipmentPending
	}
	if !req.Status.Valid() {
		return nil, apperror.Newf(apperror.KindValidation, apperror.CodeInvalidStatus, "Invalid shipment status: %s", req.Status)
	}

	order, err := s.store.Orders().FindByID(ctx, req.OrderID)
	if err != nil {
		return nil, storeError(err, orderNotFound(req.OrderID))
	}
	if _, err := s.store.Shipments().GetByOrderID(ctx, req.OrderID); err == nil {
		return nil, shipmentExists(req.OrderID)
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, storeError(err, nil)
	}

	now := s.now()
	shipment := &models.Shipment{
		OrderID:        req.OrderID,
		Carrier:        req.Carrier,
		TrackingNumber: req.TrackingNumber,
		Status:         req.Status,
		EstimatedAt:    req.EstimatedAt,
	}
	markTimestamps(shipment, now)

	var cascaded bool
	err = s.store.Within(ctx, func(ctx context.Context, tx repositories.Tx) error {
		if err := tx.Shipments().Create(ctx, shipment); err != nil {
			return err
		}
		cascaded, err = cascade(ctx, tx, shipment)
		return err
	})
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, shipmentExists(req.OrderID)
		}
		return nil, storeError(err, nil)
	}

	s.afterWrite(ctx, shipment, order, cascaded)
	return shipment, nil
}

func (s *ShipmentService) Update(ctx context.Context, id string, req UpdateShipmentRequest) (*models.Shipment, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperror.FromValidation(err)
	}
	if req.Status != nil && !req.Status.Valid() {
		return nil, apperror.Newf(apperror.KindValidation, apperror.CodeInvalidStatus, "Invalid shipment status: %s", *req.Status)
	}

	shipment, err := s.store.Shipments().GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, shipmentNotFound(id))
	}
	if req.Carrier != nil {
		shipment.Carrier = *req.Carrier
	}
	if req.TrackingNumber != nil {
		shipment.TrackingNumber = *req.TrackingNumber
	}
	if req.EstimatedAt != nil {
		shipment.EstimatedAt = req.EstimatedAt
	}
	if req.Status != nil {
		shipment.Status = *req.Status
	}
	now := s.now()
	markTimestamps(shipment, now)
	shipment.UpdatedAt = now

	var cascaded bool
	err = s.store.Within(ctx, func(ctx context.Context, tx repositories.Tx) error {
		if err := tx.Shipments().Update(ctx, shipment); err != nil {
			return err
		}
		if req.Status == nil {
			return nil
		}
		cascaded, err = cascade(ctx, tx, shipment)
		return err
	})
	if err != nil {
		return nil, storeError(err, shipmentNotFound(id))
	}

	var order *models.Order
	if cascaded {
		order, _ = s.store.Orders().FindByID(ctx, shipment.OrderID)
	}
	s.afterWrite(ctx, shipment, order, cascaded)
	return shipment, nil
}

// markTimestamps records when a shipment first reached SHIPPED or DELIVERED.
func markTimestamps(sh *models.Shipment, now time.Time) {
	switch sh.Status {
	case models.ShipmentShipped, models.ShipmentInTransit:
		if sh.ShippedAt == nil {
			sh.ShippedAt = &now
		}
	case models.ShipmentDelivered:
		if sh.ShippedAt == nil {
			sh.ShippedAt = &now
		}
		if sh.DeliveredAt == nil {
			sh.DeliveredAt = &now
		}
	}
}

// cascade moves the order to the status implied by the shipment, if any.
func cascade(ctx context.Context, tx repositories.Tx, sh *models.Shipment) (bool, error) {
	to, ok := sh.Status.OrderStatus()
	if !ok {
		return false, nil
	}
	return tx.Orders().TransitionStatus(ctx, sh.OrderID, to, shipmentCascadeBlocked)
}

func (s *ShipmentService) afterWrite(ctx context.Context, sh *models.Shipment, order *models.Order, cascaded bool) {
	s.metrics.RecordShipmentUpdate(string(sh.Status))
	s.logger.Info("shipment saved",
		zap.String("shipment_id", sh.ID),
		zap.String("order_id", sh.OrderID),
		zap.String("status", string(sh.Status)),
		zap.Bool("order_updated", cascaded))
	publishEvent(ctx, s.publisher, s.metrics, s.logger, events.NewShipmentEvent(sh))

	if cascaded && order != nil {
		previous := order.Status
		order.Status, _ = sh.Status.OrderStatus()
		publishEvent(ctx, s.publisher, s.metrics, s.logger, events.NewOrderEvent(events.TypeOrderStatusChanged, order, previous))
	}
}

func (s *ShipmentService) Get(ctx context.Context, id string) (*models.Shipment, error) {
	sh, err := s.store.Shipments().GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, shipmentNotFound(id))
	}
	return sh, nil
}

func (s *ShipmentService) GetByOrderID(ctx context.Context, orderID string) (*models.Shipment, error) {
	sh, err := s.store.Shipments().GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, storeError(err, apperror.Newf(apperror.KindNotFound, apperror.CodeShipmentNotFound,
			"Shipment for order %s not found", orderID))
	}
	return sh, nil
}

func (s *ShipmentService) List(ctx context.Context, page repositories.Pagination) (Page[models.Shipment], error) {
	items, total, err := s.store.Shipments().List(ctx, page)
	if err != nil {
		return Page[models.Shipment]{}, storeError(err, nil)
	}
	return newPage(items, total, page), nil
}

func (s *ShipmentService) Delete(ctx context.Context, id string) error {
	if err := s.store.Shipments().Delete(ctx, id); err != nil {
		return storeError(err, shipmentNotFound(id))
	}
	return nil
}
