package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"inventory-engine/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// LedgerResult is the outcome of a successful ledger operation: the log
// entries appended in the transaction plus snapshots of any items whose
// currentStock crossed below minStock.
type LedgerResult struct {
	Logs            []models.InventoryLog
	LowStock        []models.InventoryItem
	AlreadyReserved bool
}

// findShortfalls checks a manifest against locked item rows and returns one
// shortfall per item whose available stock cannot cover the request. An empty
// result means the whole manifest can be reserved.
func findShortfalls(items map[string]*models.InventoryItem, manifest *models.Manifest) []models.Shortfall {
	var shortfalls []models.Shortfall
	for _, line := range manifest.Lines {
		item, ok := items[line.InventoryItemID]
		if !ok {
			shortfalls = append(shortfalls, models.Shortfall{
				InventoryItemID: line.InventoryItemID,
				Requested:       line.TotalQuantity,
				Available:       0,
			})
			continue
		}
		if item.Available() < line.TotalQuantity {
			shortfalls = append(shortfalls, models.Shortfall{
				InventoryItemID: line.InventoryItemID,
				Requested:       line.TotalQuantity,
				Available:       item.Available(),
			})
		}
	}
	return shortfalls
}

// VerifyLogChain checks that an item's log, in order, forms a strict chain:
// each entry's QuantityChanged equals NewStock-PreviousStock and each entry
// starts where the previous one ended.
func VerifyLogChain(logs []models.InventoryLog) error {
	for i, entry := range logs {
		if entry.NewStock-entry.PreviousStock != entry.QuantityChanged {
			return fmt.Errorf("log %s: quantity_changed %d does not match stock delta %d",
				entry.ID, entry.QuantityChanged, entry.NewStock-entry.PreviousStock)
		}
		if i > 0 && logs[i-1].NewStock != entry.PreviousStock {
			return fmt.Errorf("log chain broken at %s: previous_stock %d, expected %d",
				entry.ID, entry.PreviousStock, logs[i-1].NewStock)
		}
	}
	return nil
}

// HoldsStock reports whether any reservation row still pins stock for its
// order: an ACTIVE hold or a COMMITTED deduction. Released and cancelled
// rows do not block a new reservation.
func HoldsStock(rows []models.StockReservation) bool {
	for _, r := range rows {
		if r.Status == models.ReservationStatusActive || r.Status == models.ReservationStatusCommitted {
			return true
		}
	}
	return false
}

// lockItems locks the given inventory rows FOR UPDATE in id order. Taking
// locks in a single deterministic order keeps concurrent manifests touching
// overlapping items from deadlocking.
func lockItems(ctx context.Context, tx *sqlx.Tx, ids []string) (map[string]*models.InventoryItem, error) {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	query, args, err := sqlx.In("SELECT * FROM inventory_items WHERE id IN (?) ORDER BY id FOR UPDATE", sorted)
	if err != nil {
		return nil, err
	}
	query = tx.Rebind(query)

	var rows []models.InventoryItem
	if err := tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to lock inventory rows: %w", err)
	}

	items := make(map[string]*models.InventoryItem, len(rows))
	for i := range rows {
		items[rows[i].ID] = &rows[i]
	}
	return items, nil
}

// appendLog inserts one audit entry in the current transaction.
func appendLog(ctx context.Context, tx *sqlx.Tx, entry models.InventoryLog) (models.InventoryLog, error) {
	entry.ID = uuid.New().String()
	entry.CreatedAt = time.Now().UTC()

	_, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_logs
			(id, inventory_item_id, change_type, quantity_changed, previous_stock, new_stock, reason, performed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.InventoryItemID, entry.ChangeType, entry.QuantityChanged,
		entry.PreviousStock, entry.NewStock, entry.Reason, entry.PerformedBy, entry.CreatedAt)
	if err != nil {
		return entry, fmt.Errorf("failed to append inventory log: %w", err)
	}
	return entry, nil
}

func setStock(ctx context.Context, tx *sqlx.Tx, itemID string, currentStock, reservedStock int) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE inventory_items SET current_stock = $1, reserved_stock = $2, updated_at = NOW() WHERE id = $3",
		currentStock, reservedStock, itemID)
	return err
}

// Reserve places an all-or-nothing hold for a manifest. If any item is short
// the transaction rolls back, nothing is held, and an InsufficientStockError
// lists every shortfall. Retrying a reserve for an order that already holds
// an active reservation is a no-op success.
func (s *Store) Reserve(ctx context.Context, orderID string, manifest *models.Manifest, performedBy string) (*LedgerResult, error) {
	if manifest.IsEmpty() {
		return &LedgerResult{}, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// ACTIVE and COMMITTED rows both pin the order's stock claim: a replayed
	// reserve after the order was committed must not hold stock a second
	// time. Only released/cancelled rows leave the order free to reserve.
	var existing int
	err = tx.GetContext(ctx, &existing,
		"SELECT COUNT(*) FROM stock_reservations WHERE order_id = $1 AND status IN ($2, $3)",
		orderID, models.ReservationStatusActive, models.ReservationStatusCommitted)
	if err != nil {
		return nil, err
	}
	if existing > 0 {
		return &LedgerResult{AlreadyReserved: true}, nil
	}

	ids := make([]string, 0, len(manifest.Lines))
	for _, line := range manifest.Lines {
		ids = append(ids, line.InventoryItemID)
	}

	items, err := lockItems(ctx, tx, ids)
	if err != nil {
		return nil, translateTxError(err)
	}
	for _, id := range ids {
		if _, ok := items[id]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrItemNotFound, id)
		}
	}

	if shortfalls := findShortfalls(items, manifest); len(shortfalls) > 0 {
		return nil, &InsufficientStockError{Shortfalls: shortfalls}
	}

	result := &LedgerResult{}
	for _, line := range manifest.Lines {
		item := items[line.InventoryItemID]

		if err := setStock(ctx, tx, item.ID, item.CurrentStock, item.ReservedStock+line.TotalQuantity); err != nil {
			return nil, translateTxError(fmt.Errorf("failed to reserve stock: %w", err))
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_reservations (id, order_id, inventory_item_id, quantity, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`,
			uuid.New().String(), orderID, item.ID, line.TotalQuantity, models.ReservationStatusActive)
		if err != nil {
			return nil, translateTxError(fmt.Errorf("failed to create reservation: %w", err))
		}

		entry, err := appendLog(ctx, tx, models.InventoryLog{
			InventoryItemID: item.ID,
			ChangeType:      models.ChangeTypeReservation,
			QuantityChanged: 0,
			PreviousStock:   item.CurrentStock,
			NewStock:        item.CurrentStock,
			Reason:          fmt.Sprintf("reserved %d for order %s", line.TotalQuantity, orderID),
			PerformedBy:     performedBy,
		})
		if err != nil {
			return nil, translateTxError(err)
		}
		result.Logs = append(result.Logs, entry)
	}

	if err := tx.Commit(); err != nil {
		return nil, translateTxError(err)
	}
	return result, nil
}

// lockOrderReservations locks an order's reservation rows in the given status.
func lockOrderReservations(ctx context.Context, tx *sqlx.Tx, orderID, status string) ([]models.StockReservation, error) {
	var rows []models.StockReservation
	err := tx.SelectContext(ctx, &rows, `
		SELECT * FROM stock_reservations
		WHERE order_id = $1 AND status = $2
		ORDER BY inventory_item_id FOR UPDATE`, orderID, status)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: order %s has no %s reservation", ErrReservationNotFound, orderID, status)
	}
	return rows, nil
}

func setReservationStatus(ctx context.Context, tx *sqlx.Tx, orderID, from, to string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE stock_reservations SET status = $1, updated_at = NOW() WHERE order_id = $2 AND status = $3",
		to, orderID, from)
	return err
}

// Commit converts an order's active reservation into a real deduction.
func (s *Store) Commit(ctx context.Context, orderID, performedBy string) (*LedgerResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	reservations, err := lockOrderReservations(ctx, tx, orderID, models.ReservationStatusActive)
	if err != nil {
		return nil, translateTxError(err)
	}

	ids := make([]string, 0, len(reservations))
	for _, r := range reservations {
		ids = append(ids, r.InventoryItemID)
	}
	items, err := lockItems(ctx, tx, ids)
	if err != nil {
		return nil, translateTxError(err)
	}

	result := &LedgerResult{}
	for _, r := range reservations {
		item, ok := items[r.InventoryItemID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrItemNotFound, r.InventoryItemID)
		}

		newStock := item.CurrentStock - r.Quantity
		newReserved := item.ReservedStock - r.Quantity
		if newReserved < 0 || newStock < newReserved {
			return nil, fmt.Errorf("%w: committing %d on item %s (stock %d, reserved %d)",
				ErrInvariantViolation, r.Quantity, item.ID, item.CurrentStock, item.ReservedStock)
		}

		if err := setStock(ctx, tx, item.ID, newStock, newReserved); err != nil {
			return nil, translateTxError(fmt.Errorf("failed to deduct stock: %w", err))
		}

		entry, err := appendLog(ctx, tx, models.InventoryLog{
			InventoryItemID: item.ID,
			ChangeType:      models.ChangeTypeOrderDeduction,
			QuantityChanged: -r.Quantity,
			PreviousStock:   item.CurrentStock,
			NewStock:        newStock,
			Reason:          fmt.Sprintf("order %s", orderID),
			PerformedBy:     performedBy,
		})
		if err != nil {
			return nil, translateTxError(err)
		}
		result.Logs = append(result.Logs, entry)

		if item.CurrentStock >= item.MinStock && newStock < item.MinStock {
			snapshot := *item
			snapshot.CurrentStock = newStock
			snapshot.ReservedStock = newReserved
			result.LowStock = append(result.LowStock, snapshot)
		}
	}

	if err := setReservationStatus(ctx, tx, orderID, models.ReservationStatusActive, models.ReservationStatusCommitted); err != nil {
		return nil, translateTxError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, translateTxError(err)
	}
	return result, nil
}

// Release cancels an order's active reservation without consuming stock.
func (s *Store) Release(ctx context.Context, orderID, reason, performedBy string) (*LedgerResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	reservations, err := lockOrderReservations(ctx, tx, orderID, models.ReservationStatusActive)
	if err != nil {
		return nil, translateTxError(err)
	}

	ids := make([]string, 0, len(reservations))
	for _, r := range reservations {
		ids = append(ids, r.InventoryItemID)
	}
	items, err := lockItems(ctx, tx, ids)
	if err != nil {
		return nil, translateTxError(err)
	}

	result := &LedgerResult{}
	for _, r := range reservations {
		item, ok := items[r.InventoryItemID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrItemNotFound, r.InventoryItemID)
		}

		newReserved := item.ReservedStock - r.Quantity
		if newReserved < 0 {
			return nil, fmt.Errorf("%w: releasing %d on item %s (reserved %d)",
				ErrInvariantViolation, r.Quantity, item.ID, item.ReservedStock)
		}

		if err := setStock(ctx, tx, item.ID, item.CurrentStock, newReserved); err != nil {
			return nil, translateTxError(fmt.Errorf("failed to release stock: %w", err))
		}

		logReason := fmt.Sprintf("released %d for order %s", r.Quantity, orderID)
		if reason != "" {
			logReason = fmt.Sprintf("%s: %s", logReason, reason)
		}
		entry, err := appendLog(ctx, tx, models.InventoryLog{
			InventoryItemID: item.ID,
			ChangeType:      models.ChangeTypeRelease,
			QuantityChanged: 0,
			PreviousStock:   item.CurrentStock,
			NewStock:        item.CurrentStock,
			Reason:          logReason,
			PerformedBy:     performedBy,
		})
		if err != nil {
			return nil, translateTxError(err)
		}
		result.Logs = append(result.Logs, entry)
	}

	if err := setReservationStatus(ctx, tx, orderID, models.ReservationStatusActive, models.ReservationStatusReleased); err != nil {
		return nil, translateTxError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, translateTxError(err)
	}
	return result, nil
}

// CancelAfterCommit reverses an already-committed order by restoring the
// deducted quantities. Distinct from Release, which undoes a hold that was
// never committed.
func (s *Store) CancelAfterCommit(ctx context.Context, orderID, reason, performedBy string) (*LedgerResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	reservations, err := lockOrderReservations(ctx, tx, orderID, models.ReservationStatusCommitted)
	if err != nil {
		return nil, translateTxError(err)
	}

	ids := make([]string, 0, len(reservations))
	for _, r := range reservations {
		ids = append(ids, r.InventoryItemID)
	}
	items, err := lockItems(ctx, tx, ids)
	if err != nil {
		return nil, translateTxError(err)
	}

	result := &LedgerResult{}
	for _, r := range reservations {
		item, ok := items[r.InventoryItemID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrItemNotFound, r.InventoryItemID)
		}

		newStock := item.CurrentStock + r.Quantity
		if err := setStock(ctx, tx, item.ID, newStock, item.ReservedStock); err != nil {
			return nil, translateTxError(fmt.Errorf("failed to restore stock: %w", err))
		}

		entry, err := appendLog(ctx, tx, models.InventoryLog{
			InventoryItemID: item.ID,
			ChangeType:      models.ChangeTypeOrderCancellation,
			QuantityChanged: r.Quantity,
			PreviousStock:   item.CurrentStock,
			NewStock:        newStock,
			Reason:          fmt.Sprintf("order %s cancelled: %s", orderID, reason),
			PerformedBy:     performedBy,
		})
		if err != nil {
			return nil, translateTxError(err)
		}
		result.Logs = append(result.Logs, entry)
	}

	if err := setReservationStatus(ctx, tx, orderID, models.ReservationStatusCommitted, models.ReservationStatusCancelled); err != nil {
		return nil, translateTxError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, translateTxError(err)
	}
	return result, nil
}

// Restock adds received stock to an item.
func (s *Store) Restock(ctx context.Context, itemID string, quantity int, reason, performedBy string) (*LedgerResult, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: restock quantity must be positive, got %d", ErrInvariantViolation, quantity)
	}
	return s.applyStockDelta(ctx, itemID, quantity, models.ChangeTypeRestock, reason, performedBy)
}

// Adjust applies a manual correction, positive or negative. Rejected before
// any mutation if it would leave currentStock below reservedStock or zero.
func (s *Store) Adjust(ctx context.Context, itemID string, delta int, changeType, reason, performedBy string) (*LedgerResult, error) {
	if changeType == "" {
		changeType = models.ChangeTypeManualAdjustment
	}
	return s.applyStockDelta(ctx, itemID, delta, changeType, reason, performedBy)
}

func (s *Store) applyStockDelta(ctx context.Context, itemID string, delta int, changeType, reason, performedBy string) (*LedgerResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	items, err := lockItems(ctx, tx, []string{itemID})
	if err != nil {
		return nil, translateTxError(err)
	}
	item, ok := items[itemID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}

	newStock := item.CurrentStock + delta
	if newStock < 0 || newStock < item.ReservedStock {
		return nil, fmt.Errorf("%w: delta %d on item %s (stock %d, reserved %d)",
			ErrInvariantViolation, delta, item.ID, item.CurrentStock, item.ReservedStock)
	}

	if err := setStock(ctx, tx, item.ID, newStock, item.ReservedStock); err != nil {
		return nil, translateTxError(fmt.Errorf("failed to update stock: %w", err))
	}

	entry, err := appendLog(ctx, tx, models.InventoryLog{
		InventoryItemID: item.ID,
		ChangeType:      changeType,
		QuantityChanged: delta,
		PreviousStock:   item.CurrentStock,
		NewStock:        newStock,
		Reason:          reason,
		PerformedBy:     performedBy,
	})
	if err != nil {
		return nil, translateTxError(err)
	}

	result := &LedgerResult{Logs: []models.InventoryLog{entry}}
	if delta < 0 && item.CurrentStock >= item.MinStock && newStock < item.MinStock {
		snapshot := *item
		snapshot.CurrentStock = newStock
		result.LowStock = append(result.LowStock, snapshot)
	}

	if err := tx.Commit(); err != nil {
		return nil, translateTxError(err)
	}
	return result, nil
}
