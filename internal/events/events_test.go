package events_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"storefront/internal/events"
	"storefront/internal/models"
)

type MockSink struct {
	mock.Mock
}

func (m *MockSink) Publish(ctx context.Context, eventType, key string, body []byte) error {
	args := m.Called(ctx, eventType, key, body)
	return args.Error(0)
}

func TestSinkPublisher_Publish(t *testing.T) {
	order := &models.Order{
		ID:          "o-1",
		OrderNumber: "ORD-1-001",
		UserID:      "u-1",
		Status:      models.OrderPending,
		Total:       decimal.RequireFromString("12.5"),
		Items:       []models.OrderItem{{VariantID: "v-1", Quantity: 2}},
	}
	evt := events.NewOrderEvent(events.TypeOrderCreated, order, "")

	sink := new(MockSink)
	sink.On("Publish", mock.Anything, events.TypeOrderCreated, "o-1", mock.MatchedBy(func(body []byte) bool {
		var decoded struct {
			Type    string              `json:"type"`
			Payload events.OrderPayload `json:"payload"`
		}
		if err := json.Unmarshal(body, &decoded); err != nil {
			return false
		}
		return decoded.Type == events.TypeOrderCreated &&
			decoded.Payload.Total == "12.50" &&
			len(decoded.Payload.Items) == 1
	})).Return(nil).Once()

	err := events.NewSinkPublisher(sink).Publish(context.Background(), evt)
	require.NoError(t, err)
	sink.AssertExpectations(t)
}

func TestSinkPublisher_PropagatesSinkError(t *testing.T) {
	sink := new(MockSink)
	sink.On("Publish", mock.Anything, events.TypeShipmentUpdated, "o-2", mock.Anything).
		Return(errors.New("broker down")).Once()

	evt := events.NewShipmentEvent(&models.Shipment{ID: "s-1", OrderID: "o-2", Status: models.ShipmentShipped})
	err := events.NewSinkPublisher(sink).Publish(context.Background(), evt)

	assert.ErrorContains(t, err, "broker down")
	sink.AssertExpectations(t)
}
