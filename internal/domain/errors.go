package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	// ErrInsufficientStock is a normal business outcome, not a fault.
	ErrInsufficientStock = errors.New("insufficient stock")

	ErrInvalidTransition   = errors.New("invalid reservation transition")
	ErrUnknownProduct      = errors.New("unknown product")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrInvalidRequest      = errors.New("invalid request")

	// ErrLedgerInconsistent means a mutation would break 0 <= reserved <= onHand.
	ErrLedgerInconsistent = errors.New("ledger inconsistent")

	// ErrConcurrentModification means another caller changed the same rows
	// first. The operation can be retried as is.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrPersistenceUnavailable marks transient storage faults. Every
	// coordinator operation is safe to retry after it.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
)

// InsufficientStockError names the line that could not be held.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type TransitionError struct {
	ReservationID uuid.UUID
	From          ReservationStatus
	To            ReservationStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("reservation %s cannot move from %s to %s", e.ReservationID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func UnknownProduct(productID string) error {
	return errors.Wrapf(ErrUnknownProduct, "product %s", productID)
}

func Unavailable(err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(ErrPersistenceUnavailable, "%s: %v", op, err)
}

// InvalidRequest wraps ErrInvalidRequest with a caller-facing message.
func InvalidRequest(msg string) error {
	return errors.Wrap(ErrInvalidRequest, msg)
}

// Retryable reports whether the caller may safely retry the operation.
func Retryable(err error) bool {
	return errors.Is(err, ErrPersistenceUnavailable) || errors.Is(err, ErrConcurrentModification)
}
