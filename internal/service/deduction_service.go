package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inventory-engine/internal/broker"
	"inventory-engine/internal/expander"
	"inventory-engine/internal/models"
	"inventory-engine/internal/redisclient"
	"inventory-engine/internal/store"
	"inventory-engine/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// reserveMarkerTTL bounds how long a duplicate reserve attempt is answered
// from the marker instead of the reservation rows.
const reserveMarkerTTL = 15 * time.Minute

// DeductionService orchestrates recipe compilation and ledger operations for
// order processing. The engine never decides whether an order proceeds: a
// shortfall is returned to the caller, retry policy stays with the caller.
type DeductionService struct {
	store     *store.Store
	redis     *redisclient.Client
	expander  *expander.Expander
	publisher *broker.EventPublisher
	logger    *zap.Logger
}

// NewDeductionService creates a new deduction service
func NewDeductionService(s *store.Store, redis *redisclient.Client, exp *expander.Expander, publisher *broker.EventPublisher) *DeductionService {
	return &DeductionService{
		store:     s,
		redis:     redis,
		expander:  exp,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

func observeLedgerOp(operation string) func() {
	start := time.Now()
	return func() {
		util.LedgerOpLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// Compile expands an order-line tree into a deduction manifest without
// touching stock. Used as a dry-run preview by order processing.
func (s *DeductionService) Compile(ctx context.Context, storeID string, lines []expander.OrderLine) (*models.Manifest, error) {
	ctx, span := util.StartSpan(ctx, "DeductionService.Compile")
	defer span.End()

	manifest, err := s.expander.ExpandAll(ctx, storeID, lines)
	if err != nil {
		return nil, err
	}
	util.OrderLinesExpandedTotal.Inc()
	return manifest, nil
}

// Reserve expands an order's lines and places an all-or-nothing hold on
// every touched inventory item. Returns the manifest with the shortfall
// error when stock cannot cover it, so the caller can report per item.
func (s *DeductionService) Reserve(ctx context.Context, storeID, orderID string, lines []expander.OrderLine, performedBy string) (*models.Manifest, error) {
	ctx, span := util.StartSpan(ctx, "DeductionService.Reserve")
	defer span.End()
	defer observeLedgerOp("reserve")()

	manifest, err := s.expander.ExpandAll(ctx, storeID, lines)
	if err != nil {
		util.StockReservationsFailed.WithLabelValues("expansion").Inc()
		return nil, err
	}
	util.OrderLinesExpandedTotal.Inc()

	if manifest.IsEmpty() {
		s.logger.Info("Order expands to empty manifest, nothing to reserve",
			zap.String("order_id", orderID))
		return manifest, nil
	}

	// Fast duplicate guard. Compilation is deterministic, so a retried
	// reserve produces the same manifest; the reservation rows stay the
	// authority, the marker only spares the locking transaction.
	firstAttempt, err := s.redis.MarkReservation(ctx, orderID, reserveMarkerTTL)
	if err != nil {
		s.logger.Warn("Reserve marker unavailable, continuing", zap.Error(err))
	} else if !firstAttempt {
		// Answer the retry from the reservation rows. A marker without
		// rows means the prior attempt failed before holding anything,
		// so fall through and try again.
		rows, rowsErr := s.store.GetReservations(ctx, orderID)
		if rowsErr == nil && store.HoldsStock(rows) {
			s.logger.Info("Duplicate reserve attempt, order already holds stock",
				zap.String("order_id", orderID))
			return manifest, nil
		}
	}

	result, err := s.store.Reserve(ctx, orderID, manifest, performedBy)
	if err != nil {
		if _, ok := store.AsInsufficientStock(err); ok {
			util.StockReservationsFailed.WithLabelValues("insufficient_stock").Inc()
		} else if errors.Is(err, store.ErrConcurrencyConflict) {
			util.StockReservationsFailed.WithLabelValues("conflict").Inc()
		} else {
			util.StockReservationsFailed.WithLabelValues("error").Inc()
		}
		// Nothing was held: drop the marker so a retry is not answered
		// from it.
		if clearErr := s.redis.ClearReservation(ctx, orderID); clearErr != nil {
			s.logger.Warn("Failed to clear reserve marker", zap.Error(clearErr))
		}
		return manifest, err
	}

	if result.AlreadyReserved {
		s.logger.Info("Order already reserved, skipping",
			zap.String("order_id", orderID))
		return manifest, nil
	}

	util.StockReservationsTotal.Inc()
	s.logger.Info("Stock reserved",
		zap.String("order_id", orderID),
		zap.Int("items", len(manifest.Lines)))

	event := &models.StockReservedEvent{
		BaseEvent: newBaseEvent(models.EventTypeStockReserved),
		OrderID:   orderID,
		Lines:     manifest.Lines,
	}
	if err := s.publisher.PublishStockReserved(ctx, event); err != nil {
		s.logger.Error("Failed to publish StockReserved event", zap.Error(err))
	}

	return manifest, nil
}

// Commit converts an order's reservation into a real deduction.
func (s *DeductionService) Commit(ctx context.Context, orderID, performedBy string) (*store.LedgerResult, error) {
	ctx, span := util.StartSpan(ctx, "DeductionService.Commit")
	defer span.End()
	defer observeLedgerOp("commit")()

	result, err := s.store.Commit(ctx, orderID, performedBy)
	if err != nil {
		return nil, err
	}

	util.StockCommitsTotal.Inc()
	s.logger.Info("Reservation committed",
		zap.String("order_id", orderID),
		zap.Int("entries", len(result.Logs)))

	event := &models.StockDeductedEvent{
		BaseEvent: newBaseEvent(models.EventTypeStockDeducted),
		OrderID:   orderID,
		Entries:   result.Logs,
	}
	if err := s.publisher.PublishStockDeducted(ctx, event); err != nil {
		s.logger.Error("Failed to publish StockDeducted event", zap.Error(err))
	}

	s.emitLowStockAlerts(ctx, result.LowStock)
	return result, nil
}

// Release cancels an order's reservation without consuming stock.
func (s *DeductionService) Release(ctx context.Context, orderID, reason, performedBy string) (*store.LedgerResult, error) {
	ctx, span := util.StartSpan(ctx, "DeductionService.Release")
	defer span.End()
	defer observeLedgerOp("release")()

	result, err := s.store.Release(ctx, orderID, reason, performedBy)
	if err != nil {
		return nil, err
	}

	if err := s.redis.ClearReservation(ctx, orderID); err != nil {
		s.logger.Warn("Failed to clear reserve marker", zap.Error(err))
	}

	util.StockReleasesTotal.Inc()
	s.logger.Info("Reservation released",
		zap.String("order_id", orderID),
		zap.String("reason", reason))

	event := &models.StockReleasedEvent{
		BaseEvent: newBaseEvent(models.EventTypeStockReleased),
		OrderID:   orderID,
		Reason:    reason,
	}
	if err := s.publisher.PublishStockReleased(ctx, event); err != nil {
		s.logger.Error("Failed to publish StockReleased event", zap.Error(err))
	}

	return result, nil
}

// Cancel reverses an already-committed order, restoring the deducted stock.
func (s *DeductionService) Cancel(ctx context.Context, orderID, reason, performedBy string) (*store.LedgerResult, error) {
	ctx, span := util.StartSpan(ctx, "DeductionService.Cancel")
	defer span.End()
	defer observeLedgerOp("cancel")()

	result, err := s.store.CancelAfterCommit(ctx, orderID, reason, performedBy)
	if err != nil {
		return nil, err
	}

	util.StockAdjustmentsTotal.WithLabelValues(models.ChangeTypeOrderCancellation).Inc()
	s.logger.Info("Committed order reversed",
		zap.String("order_id", orderID),
		zap.String("reason", reason))
	return result, nil
}

// Restock adds received stock to an item.
func (s *DeductionService) Restock(ctx context.Context, itemID string, quantity int, reason, performedBy string) (*store.LedgerResult, error) {
	ctx, span := util.StartSpan(ctx, "DeductionService.Restock")
	defer span.End()
	defer observeLedgerOp("restock")()

	result, err := s.store.Restock(ctx, itemID, quantity, reason, performedBy)
	if err != nil {
		return nil, err
	}

	util.StockAdjustmentsTotal.WithLabelValues(models.ChangeTypeRestock).Inc()
	return result, nil
}

// Adjust applies a manual correction to an item's stock.
func (s *DeductionService) Adjust(ctx context.Context, itemID string, delta int, reason, performedBy string) (*store.LedgerResult, error) {
	ctx, span := util.StartSpan(ctx, "DeductionService.Adjust")
	defer span.End()
	defer observeLedgerOp("adjust")()

	result, err := s.store.Adjust(ctx, itemID, delta, models.ChangeTypeManualAdjustment, reason, performedBy)
	if err != nil {
		return nil, err
	}

	util.StockAdjustmentsTotal.WithLabelValues(models.ChangeTypeManualAdjustment).Inc()
	s.emitLowStockAlerts(ctx, result.LowStock)
	return result, nil
}

// RecordWastage writes off spoiled or damaged stock.
func (s *DeductionService) RecordWastage(ctx context.Context, itemID string, quantity int, reason, performedBy string) (*store.LedgerResult, error) {
	ctx, span := util.StartSpan(ctx, "DeductionService.RecordWastage")
	defer span.End()
	defer observeLedgerOp("wastage")()

	if quantity <= 0 {
		return nil, fmt.Errorf("wastage quantity must be positive, got %d", quantity)
	}

	result, err := s.store.Adjust(ctx, itemID, -quantity, models.ChangeTypeWastage, reason, performedBy)
	if err != nil {
		return nil, err
	}

	util.StockAdjustmentsTotal.WithLabelValues(models.ChangeTypeWastage).Inc()
	s.emitLowStockAlerts(ctx, result.LowStock)
	return result, nil
}

// GetItem retrieves an inventory item
func (s *DeductionService) GetItem(ctx context.Context, itemID string) (*models.InventoryItem, error) {
	return s.store.GetInventoryItem(ctx, itemID)
}

// GetLogs retrieves an item's audit log in chain order. A broken chain is a
// data-integrity incident worth surfacing loudly, not a request failure.
func (s *DeductionService) GetLogs(ctx context.Context, itemID string, limit int) ([]models.InventoryLog, error) {
	logs, err := s.store.GetInventoryLogs(ctx, itemID, limit)
	if err != nil {
		return nil, err
	}
	if err := store.VerifyLogChain(logs); err != nil {
		s.logger.Error("Inventory log chain integrity violation",
			zap.String("item_id", itemID),
			zap.Error(err))
	}
	return logs, nil
}

// GetReservations retrieves an order's reservation rows
func (s *DeductionService) GetReservations(ctx context.Context, orderID string) ([]models.StockReservation, error) {
	return s.store.GetReservations(ctx, orderID)
}

// ListVariants retrieves a store's active variant registry
func (s *DeductionService) ListVariants(ctx context.Context, storeID string) ([]models.Variant, error) {
	return s.store.ListVariants(ctx, storeID)
}

// recommendedRestock suggests an order-up-to quantity: fill to maxStock when
// the item has one, otherwise to twice minStock.
func recommendedRestock(item models.InventoryItem) int {
	target := item.MinStock * 2
	if item.MaxStock != nil {
		target = *item.MaxStock
	}
	if target <= item.CurrentStock {
		return 0
	}
	return target - item.CurrentStock
}

// emitLowStockAlerts publishes one alert per item that crossed below its
// minimum. Fire-and-forget: a publish failure never affects the mutation
// that triggered it.
func (s *DeductionService) emitLowStockAlerts(ctx context.Context, items []models.InventoryItem) {
	for _, item := range items {
		alert := &models.LowStockAlert{
			BaseEvent:          newBaseEvent(models.EventTypeStockLowAlert),
			ItemID:             item.ID,
			ItemName:           item.Name,
			StoreID:            item.StoreID,
			CurrentStock:       item.CurrentStock,
			MinStock:           item.MinStock,
			RecommendedRestock: recommendedRestock(item),
		}
		if err := s.publisher.PublishLowStockAlert(ctx, alert); err != nil {
			s.logger.Error("Failed to publish low-stock alert",
				zap.String("item_id", item.ID),
				zap.Error(err))
			continue
		}
		util.LowStockAlertsTotal.Inc()
		s.logger.Warn("Low stock",
			zap.String("item_id", item.ID),
			zap.String("item_name", item.Name),
			zap.Int("current_stock", item.CurrentStock),
			zap.Int("min_stock", item.MinStock))
	}
}
