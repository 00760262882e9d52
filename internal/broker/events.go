package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"inventory-engine/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing stock domain events
type EventPublisher struct {
	stockProducer *Producer
	alertProducer *Producer
}

// NewEventPublisher creates a new event publisher. Stock events and
// low-stock alerts go to separate topics.
func NewEventPublisher(stockProducer, alertProducer *Producer) *EventPublisher {
	return &EventPublisher{
		stockProducer: stockProducer,
		alertProducer: alertProducer,
	}
}

// PublishStockReserved publishes a StockReserved event
func (ep *EventPublisher) PublishStockReserved(ctx context.Context, event *models.StockReservedEvent) error {
	return ep.stockProducer.PublishEvent(ctx, fmt.Sprintf("order-%s", event.OrderID), event)
}

// PublishStockDeducted publishes a StockDeducted event
func (ep *EventPublisher) PublishStockDeducted(ctx context.Context, event *models.StockDeductedEvent) error {
	return ep.stockProducer.PublishEvent(ctx, fmt.Sprintf("order-%s", event.OrderID), event)
}

// PublishStockReleased publishes a StockReleased event
func (ep *EventPublisher) PublishStockReleased(ctx context.Context, event *models.StockReleasedEvent) error {
	return ep.stockProducer.PublishEvent(ctx, fmt.Sprintf("order-%s", event.OrderID), event)
}

// PublishLowStockAlert publishes a low-stock notification. Fire-and-forget:
// callers log the error but never roll back the stock mutation behind it.
func (ep *EventPublisher) PublishLowStockAlert(ctx context.Context, alert *models.LowStockAlert) error {
	return ep.alertProducer.PublishEvent(ctx, fmt.Sprintf("item-%s", alert.ItemID), alert)
}

// EventHandler routes incoming order events
type EventHandler struct {
	onOrderCreated   func(context.Context, *models.OrderCreatedEvent) error
	onOrderPaid      func(context.Context, *models.OrderPaidEvent) error
	onOrderCancelled func(context.Context, *models.OrderCancelledEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnOrderCreated registers a handler for OrderCreated events
func (eh *EventHandler) OnOrderCreated(handler func(context.Context, *models.OrderCreatedEvent) error) {
	eh.onOrderCreated = handler
}

// OnOrderPaid registers a handler for OrderPaid events
func (eh *EventHandler) OnOrderPaid(handler func(context.Context, *models.OrderPaidEvent) error) {
	eh.onOrderPaid = handler
}

// OnOrderCancelled registers a handler for OrderCancelled events
func (eh *EventHandler) OnOrderCancelled(handler func(context.Context, *models.OrderCancelledEvent) error) {
	eh.onOrderCancelled = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeOrderCreated:
		if eh.onOrderCreated != nil {
			var event models.OrderCreatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderCreated event: %w", err)
			}
			return eh.onOrderCreated(ctx, &event)
		}

	case models.EventTypeOrderPaid:
		if eh.onOrderPaid != nil {
			var event models.OrderPaidEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderPaid event: %w", err)
			}
			return eh.onOrderPaid(ctx, &event)
		}

	case models.EventTypeOrderCancelled:
		if eh.onOrderCancelled != nil {
			var event models.OrderCancelledEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderCancelled event: %w", err)
			}
			return eh.onOrderCancelled(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
