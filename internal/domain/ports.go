package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StockLedger holds per-product quantities. Every mutator is serialized
// per product by the implementation.
type StockLedger interface {
	// Get returns nil, nil when the product has no ledger row.
	Get(ctx context.Context, productID string) (*StockItem, error)
	GetAvailable(ctx context.Context, productID string) (available int, found bool, err error)
	// TryReserve returns false without changing anything when the product
	// cannot cover qty. A missing row counts as zero stock.
	TryReserve(ctx context.Context, productID string, qty int) (bool, error)
	// ReleaseHold lowers Reserved by qty, floored at zero.
	ReleaseHold(ctx context.Context, productID string, qty int) error
	// Consume turns a hold into a permanent deduction of OnHand.
	Consume(ctx context.Context, productID string, qty int) error
	// Create inserts the row unless the product is already stocked.
	Create(ctx context.Context, item *StockItem) (bool, error)
	// AdjustOnHand applies a receive (delta > 0) or write-off (delta < 0).
	// OnHand never drops below Reserved.
	AdjustOnHand(ctx context.Context, productID string, delta int) (*StockItem, error)
	ListReplenishmentCandidates(ctx context.Context) ([]StockItem, error)
	// List pages through every row ordered by product id.
	List(ctx context.Context, limit, offset int) ([]StockItem, error)
}

type ReservationStore interface {
	Insert(ctx context.Context, r *Reservation) error
	// GetByID and FindActive return nil, nil when nothing matches.
	GetByID(ctx context.Context, id uuid.UUID) (*Reservation, error)
	FindActive(ctx context.Context, orderID, productID string) (*Reservation, error)
	ListByOrder(ctx context.Context, orderID string) ([]Reservation, error)
	ListByOrderAndStatus(ctx context.Context, orderID string, status ReservationStatus) ([]Reservation, error)
	// ListExpired returns RESERVED rows created before olderThan, oldest first.
	ListExpired(ctx context.Context, olderThan time.Time, limit int) ([]Reservation, error)
	SumReserved(ctx context.Context, productID string) (int, error)
	// Transition is a compare-and-set on status. It returns the row as the
	// write left it, or nil when the row was no longer in from. Callers
	// settle the returned quantity, never one read earlier.
	Transition(ctx context.Context, id uuid.UUID, from, to ReservationStatus, at time.Time, reason ReleaseReason) (*Reservation, error)
	// UpdateQuantity is a compare-and-set on the quantity of a RESERVED row.
	UpdateQuantity(ctx context.Context, id uuid.UUID, expected, qty int) (applied bool, err error)
}

// TxFunc receives stores bound to the running unit of work.
type TxFunc func(ctx context.Context, ledger StockLedger, reservations ReservationStore) error

// UnitOfWork commits everything fn wrote, or nothing if fn fails.
type UnitOfWork interface {
	Do(ctx context.Context, fn TxFunc) error
}

// AlertSink receives the alerts of one replenishment scan.
type AlertSink interface {
	Publish(ctx context.Context, alerts []StockAlert) error
}

type OutboxRepository interface {
	Insert(ctx context.Context, msg OutboxMessage) error
	GetPendingBatch(ctx context.Context, maxRetry, batchSize int) ([]OutboxMessage, error)
	Save(ctx context.Context, msg OutboxMessage) error
}

type OutboxMessage struct {
	ID             uuid.UUID
	Type           string
	PayloadJSON    string
	OccurredAtUtc  int64 // unix seconds
	RetryCount     int
	ProcessedAtUtc *int64
}
