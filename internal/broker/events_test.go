package broker

import (
	"context"
	"encoding/json"
	"testing"

	"inventory-engine/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messageFor(t *testing.T, event interface{}) kafka.Message {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: data}
}

func TestHandleMessageRoutesOrderCreated(t *testing.T) {
	eh := NewEventHandler()

	var got *models.OrderCreatedEvent
	eh.OnOrderCreated(func(_ context.Context, event *models.OrderCreatedEvent) error {
		got = event
		return nil
	})

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{EventID: "e1", EventType: models.EventTypeOrderCreated},
		OrderID:   "order-1",
		StoreID:   "store-1",
		Lines: []models.OrderLineData{
			{MenuItemID: "menu-1", Quantity: 2, SelectedVariantIDs: []string{"v1"}},
		},
	}

	err := eh.HandleMessage(context.Background(), messageFor(t, event))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "order-1", got.OrderID)
	assert.Equal(t, []string{"v1"}, got.Lines[0].SelectedVariantIDs)
}

func TestHandleMessageRoutesOrderCancelled(t *testing.T) {
	eh := NewEventHandler()

	var got *models.OrderCancelledEvent
	eh.OnOrderCancelled(func(_ context.Context, event *models.OrderCancelledEvent) error {
		got = event
		return nil
	})

	event := &models.OrderCancelledEvent{
		BaseEvent: models.BaseEvent{EventID: "e2", EventType: models.EventTypeOrderCancelled},
		OrderID:   "order-2",
		Reason:    "customer request",
	}

	err := eh.HandleMessage(context.Background(), messageFor(t, event))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "customer request", got.Reason)
}

func TestHandleMessageIgnoresUnknownEventType(t *testing.T) {
	eh := NewEventHandler()
	eh.OnOrderPaid(func(_ context.Context, _ *models.OrderPaidEvent) error {
		t.Fatal("handler must not fire for other event types")
		return nil
	})

	event := &models.BaseEvent{EventID: "e3", EventType: "SOMETHING_ELSE"}
	assert.NoError(t, eh.HandleMessage(context.Background(), messageFor(t, event)))
}

func TestHandleMessageRejectsMalformedPayload(t *testing.T) {
	eh := NewEventHandler()
	assert.Error(t, eh.HandleMessage(context.Background(), kafka.Message{Value: []byte("{")}))
}
