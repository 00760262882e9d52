package store

import (
	"errors"
	"fmt"

	"inventory-engine/internal/models"

	"github.com/lib/pq"
)

var (
	// ErrItemNotFound is returned when an inventory item does not exist.
	ErrItemNotFound = errors.New("inventory item not found")

	// ErrReservationNotFound is returned by commit/release/cancel when the
	// order has no reservation rows in the expected status.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrInvariantViolation is returned when an operation would leave
	// currentStock below reservedStock or below zero. Rejected before any
	// mutation, never partially applied.
	ErrInvariantViolation = errors.New("stock invariant violation")

	// ErrConcurrencyConflict is returned when the database aborts a
	// transaction due to serialization or deadlock. Callers may retry;
	// it is distinct from insufficient stock.
	ErrConcurrencyConflict = errors.New("concurrent stock update conflict")
)

// InsufficientStockError reports every item in a manifest that could not be
// covered. Reservation is all-or-nothing, so no stock was held.
type InsufficientStockError struct {
	Shortfalls []models.Shortfall
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %d item(s)", len(e.Shortfalls))
}

// AsInsufficientStock unwraps err into an InsufficientStockError if possible.
func AsInsufficientStock(err error) (*InsufficientStockError, bool) {
	var ise *InsufficientStockError
	if errors.As(err, &ise) {
		return ise, true
	}
	return nil, false
}

// SQLSTATE 40001 = serialization_failure, 40P01 = deadlock_detected
func translateTxError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == "40001" || pqErr.Code == "40P01" {
			return fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
		}
	}
	return err
}
