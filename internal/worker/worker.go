package worker

import (
	"context"
	"errors"

	"inventory-engine/internal/broker"
	"inventory-engine/internal/expander"
	"inventory-engine/internal/models"
	"inventory-engine/internal/service"
	"inventory-engine/internal/store"
	"inventory-engine/internal/util"

	"go.uber.org/zap"
)

// StockWorker consumes order lifecycle events and drives the ledger:
// created orders reserve stock, paid orders commit, cancelled orders release
// (or reverse, when the deduction already happened).
type StockWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	deduction    *service.DeductionService
	logger       *zap.Logger
}

// NewStockWorker creates a new stock worker
func NewStockWorker(consumer *broker.Consumer, deduction *service.DeductionService) *StockWorker {
	w := &StockWorker{
		consumer:  consumer,
		deduction: deduction,
		logger:    util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderCreated(w.handleOrderCreated)
	eventHandler.OnOrderPaid(w.handleOrderPaid)
	eventHandler.OnOrderCancelled(w.handleOrderCancelled)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *StockWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stock worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockWorker) Stop() error {
	w.logger.Info("Stopping stock worker")
	return w.consumer.Close()
}

func toOrderLines(data []models.OrderLineData) []expander.OrderLine {
	lines := make([]expander.OrderLine, len(data))
	for i, d := range data {
		lines[i] = expander.OrderLine{
			MenuItemID:         d.MenuItemID,
			Quantity:           d.Quantity,
			SelectedVariantIDs: d.SelectedVariantIDs,
			Children:           toOrderLines(d.Children),
		}
	}
	return lines
}

func (w *StockWorker) handleOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	_, err := w.deduction.Reserve(ctx, event.StoreID, event.OrderID, toOrderLines(event.Lines), "order-events")
	if err != nil {
		if shortfall, ok := store.AsInsufficientStock(err); ok {
			// Not retryable from here: the order-processing side owns the
			// partial-fulfillment decision. Log per item and move on.
			for _, s := range shortfall.Shortfalls {
				w.logger.Warn("Reservation shortfall",
					zap.String("order_id", event.OrderID),
					zap.String("item_id", s.InventoryItemID),
					zap.Int("requested", s.Requested),
					zap.Int("available", s.Available))
			}
			return nil
		}
		if errors.Is(err, expander.ErrUnknownMenuItem) {
			w.logger.Error("Order references unknown menu item",
				zap.String("order_id", event.OrderID),
				zap.Error(err))
			return nil
		}
		return err
	}
	return nil
}

func (w *StockWorker) handleOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	_, err := w.deduction.Commit(ctx, event.OrderID, "order-events")
	if err != nil {
		if errors.Is(err, store.ErrReservationNotFound) {
			w.logger.Warn("Paid order has no active reservation",
				zap.String("order_id", event.OrderID))
			return nil
		}
		return err
	}
	return nil
}

func (w *StockWorker) handleOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	_, err := w.deduction.Release(ctx, event.OrderID, event.Reason, "order-events")
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrReservationNotFound) {
		return err
	}

	// No active hold: the order may already be committed, reverse it instead.
	_, err = w.deduction.Cancel(ctx, event.OrderID, event.Reason, "order-events")
	if err != nil {
		if errors.Is(err, store.ErrReservationNotFound) {
			w.logger.Warn("Cancelled order holds no stock",
				zap.String("order_id", event.OrderID))
			return nil
		}
		return err
	}
	return nil
}
