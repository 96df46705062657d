package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/apperror"
	"storefront/internal/events"
	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/services"
)

func placeOrder(t *testing.T, f *orderFixture) *models.Order {
	t.Helper()
	v := seedVariant(t, f.store, "15.00", 10, true)
	order, err := f.service.CreateOrder(context.Background(), customerID, f.request(item(v, 1)))
	require.NoError(t, err)
	return order
}

func orderStatus(t *testing.T, store repositories.Store, id string) models.OrderStatus {
	t.Helper()
	o, err := store.Orders().FindByID(context.Background(), id)
	require.NoError(t, err)
	return o.Status
}

func shipmentStatus(s models.ShipmentStatus) *models.ShipmentStatus { return &s }

func TestShipmentService_CreateAndCascade(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repositories.Store) {
		ctx := context.Background()
		f := newOrderFixture(t, store, services.OrderPolicy{})
		pub := &recordingPublisher{}
		svc := services.NewShipmentService(store, pub, nil, nil)

		pending := placeOrder(t, f)
		shipment, err := svc.Create(ctx, services.CreateShipmentRequest{
			OrderID:        pending.ID,
			Carrier:        "DHL",
			TrackingNumber: "TRK-1",
		})
		require.NoError(t, err)
		assert.Equal(t, models.ShipmentPending, shipment.Status)
		assert.Nil(t, shipment.ShippedAt)
		assert.Equal(t, models.OrderPending, orderStatus(t, store, pending.ID))
		assert.Equal(t, []string{events.TypeShipmentUpdated}, pub.types())

		_, err = svc.Create(ctx, services.CreateShipmentRequest{OrderID: pending.ID, Carrier: "UPS", TrackingNumber: "TRK-2"})
		assert.Equal(t, apperror.CodeShipmentExists, apperror.CodeOf(err))

		_, err = svc.Create(ctx, services.CreateShipmentRequest{OrderID: "missing", Carrier: "UPS", TrackingNumber: "TRK-3"})
		assert.Equal(t, apperror.CodeOrderNotFound, apperror.CodeOf(err))

		_, err = svc.Create(ctx, services.CreateShipmentRequest{OrderID: pending.ID})
		assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))

		shipped := placeOrder(t, f)
		s2, err := svc.Create(ctx, services.CreateShipmentRequest{
			OrderID:        shipped.ID,
			Carrier:        "UPS",
			TrackingNumber: "TRK-4",
			Status:         models.ShipmentShipped,
		})
		require.NoError(t, err)
		assert.NotNil(t, s2.ShippedAt)
		assert.Equal(t, models.OrderShipped, orderStatus(t, store, shipped.ID))
		assert.Equal(t, []string{
			events.TypeShipmentUpdated,
			events.TypeShipmentUpdated,
			events.TypeOrderStatusChanged,
		}, pub.types())
	})
}

func TestShipmentService_UpdateCascadesToOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repositories.Store) {
		ctx := context.Background()
		f := newOrderFixture(t, store, services.OrderPolicy{})
		svc := services.NewShipmentService(store, nil, nil, nil)

		order := placeOrder(t, f)
		shipment, err := svc.Create(ctx, services.CreateShipmentRequest{OrderID: order.ID, Carrier: "DHL", TrackingNumber: "TRK-1"})
		require.NoError(t, err)

		_, err = svc.Update(ctx, shipment.ID, services.UpdateShipmentRequest{Status: shipmentStatus("TELEPORTED")})
		assert.Equal(t, apperror.CodeInvalidStatus, apperror.CodeOf(err))

		updated, err := svc.Update(ctx, shipment.ID, services.UpdateShipmentRequest{Status: shipmentStatus(models.ShipmentShipped)})
		require.NoError(t, err)
		require.NotNil(t, updated.ShippedAt)
		assert.Equal(t, models.OrderShipped, orderStatus(t, store, order.ID))

		updated, err = svc.Update(ctx, shipment.ID, services.UpdateShipmentRequest{Status: shipmentStatus(models.ShipmentInTransit)})
		require.NoError(t, err)
		assert.Equal(t, models.OrderShipped, orderStatus(t, store, order.ID), "in transit leaves the order alone")

		updated, err = svc.Update(ctx, shipment.ID, services.UpdateShipmentRequest{Status: shipmentStatus(models.ShipmentDelivered)})
		require.NoError(t, err)
		assert.NotNil(t, updated.DeliveredAt)
		assert.Equal(t, models.OrderDelivered, orderStatus(t, store, order.ID))

		tracking := "TRK-9"
		updated, err = svc.Update(ctx, shipment.ID, services.UpdateShipmentRequest{TrackingNumber: &tracking})
		require.NoError(t, err)
		assert.Equal(t, "TRK-9", updated.TrackingNumber)
		assert.Equal(t, models.ShipmentDelivered, updated.Status)

		_, err = svc.Update(ctx, "missing", services.UpdateShipmentRequest{TrackingNumber: &tracking})
		assert.Equal(t, apperror.CodeShipmentNotFound, apperror.CodeOf(err))
	})
}

func TestShipmentService_DoesNotReviveCancelledOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repositories.Store) {
		ctx := context.Background()
		f := newOrderFixture(t, store, services.OrderPolicy{})
		svc := services.NewShipmentService(store, nil, nil, nil)

		order := placeOrder(t, f)
		shipment, err := svc.Create(ctx, services.CreateShipmentRequest{OrderID: order.ID, Carrier: "DHL", TrackingNumber: "TRK-1"})
		require.NoError(t, err)
		_, err = f.service.CancelOrder(ctx, customerID, order.ID)
		require.NoError(t, err)

		_, err = svc.Update(ctx, shipment.ID, services.UpdateShipmentRequest{Status: shipmentStatus(models.ShipmentShipped)})
		require.NoError(t, err)
		assert.Equal(t, models.OrderCancelled, orderStatus(t, store, order.ID))
	})
}

func TestShipmentService_ReadsAndDelete(t *testing.T) {
	forEachStore(t, func(t *testing.T, store repositories.Store) {
		ctx := context.Background()
		f := newOrderFixture(t, store, services.OrderPolicy{})
		svc := services.NewShipmentService(store, nil, nil, nil)

		first := placeOrder(t, f)
		second := placeOrder(t, f)
		s1, err := svc.Create(ctx, services.CreateShipmentRequest{OrderID: first.ID, Carrier: "DHL", TrackingNumber: "TRK-1"})
		require.NoError(t, err)
		_, err = svc.Create(ctx, services.CreateShipmentRequest{OrderID: second.ID, Carrier: "DHL", TrackingNumber: "TRK-2"})
		require.NoError(t, err)

		got, err := svc.Get(ctx, s1.ID)
		require.NoError(t, err)
		assert.Equal(t, "TRK-1", got.TrackingNumber)

		got, err = svc.GetByOrderID(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, s1.ID, got.ID)

		page, err := svc.List(ctx, repositories.Pagination{Page: 1, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, int64(2), page.Meta.Total)
		assert.Len(t, page.Data, 1)

		require.NoError(t, svc.Delete(ctx, s1.ID))
		_, err = svc.Get(ctx, s1.ID)
		assert.Equal(t, apperror.CodeShipmentNotFound, apperror.CodeOf(err))
		_, err = svc.GetByOrderID(ctx, first.ID)
		assert.Equal(t, apperror.CodeShipmentNotFound, apperror.CodeOf(err))
		assert.Equal(t, apperror.CodeShipmentNotFound, apperror.CodeOf(svc.Delete(ctx, s1.ID)))
	})
}
