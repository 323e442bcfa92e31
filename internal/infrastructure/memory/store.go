// Package memory is an in-process backend for the ledger and reservation
// stores. It is used by tests and by STORAGE=memory deployments of a
// single instance.
package memory

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/google/uuid"

	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/domain"
	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/metrics"
)

const stripeCount = 64

type activeKey struct {
	orderID   string
	productID string
}

// Store keeps stock rows behind striped per-product locks and reservation
// rows behind a single mutex.
type Store struct {
	itemsMu sync.RWMutex
	items   map[string]*domain.StockItem
	stripes [stripeCount]sync.Mutex

	resMu        sync.RWMutex
	reservations map[uuid.UUID]*domain.Reservation
	active       map[activeKey]uuid.UUID

	faultMu sync.RWMutex
	fault   func(op string) error

	metrics *metrics.Metrics
}

func NewStore() *Store {
	return &Store{
		items:        make(map[string]*domain.StockItem),
		reservations: make(map[uuid.UUID]*domain.Reservation),
		active:       make(map[activeKey]uuid.UUID),
	}
}

// SetMetrics must be called before the store is shared.
func (s *Store) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// SetFaultHook installs a function consulted before every mutation. A
// non-nil error is returned to the caller as if storage had failed.
func (s *Store) SetFaultHook(fn func(op string) error) {
	s.faultMu.Lock()
	defer s.faultMu.Unlock()
	s.fault = fn
}

func (s *Store) injected(op string) error {
	s.faultMu.RLock()
	fn := s.fault
	s.faultMu.RUnlock()
	if fn == nil {
		return nil
	}
	if err := fn(op); err != nil {
		return domain.Unavailable(err, op)
	}
	return nil
}

func (s *Store) stripe(productID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(productID))
	return &s.stripes[h.Sum32()%stripeCount]
}

func (s *Store) lookup(productID string) *domain.StockItem {
	s.itemsMu.RLock()
	defer s.itemsMu.RUnlock()
	return s.items[productID]
}

// Ledger returns a non-transactional view of the stock ledger.
func (s *Store) Ledger() *Ledger {
	return &Ledger{s: s}
}

// Reservations returns a non-transactional view of the reservation store.
func (s *Store) Reservations() *Reservations {
	return &Reservations{s: s}
}

// Do runs fn against journaled views. When fn fails every recorded
// mutation is undone in reverse order.
func (s *Store) Do(ctx context.Context, fn domain.TxFunc) error {
	j := &journal{}
	err := fn(ctx, &Ledger{s: s, j: j}, &Reservations{s: s, j: j})
	if err != nil {
		j.rollback()
	}
	return err
}

type journal struct {
	undo []func()
}

func (j *journal) record(fn func()) {
	if j == nil {
		return
	}
	j.undo = append(j.undo, fn)
}

func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

var (
	_ domain.UnitOfWork       = (*Store)(nil)
	_ domain.StockLedger      = (*Ledger)(nil)
	_ domain.ReservationStore = (*Reservations)(nil)
)
