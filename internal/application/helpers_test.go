package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rodolfodevapp/eventshop-messaging-go/core/primitives"
	"github.com/stretchr/testify/require"

	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/domain"
	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/infrastructure/memory"
)

type recordingOutbox struct {
	mu     sync.Mutex
	events []primitives.Event
	err    error
}

func (r *recordingOutbox) Enqueue(_ context.Context, ev primitives.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingOutbox) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.GetRoutingKey())
	}
	return out
}

func (r *recordingOutbox) count(key string) int {
	n := 0
	for _, k := range r.keys() {
		if k == key {
			n++
		}
	}
	return n
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store  *memory.Store
	outbox *recordingOutbox
	clock  *fakeClock
	coord  *ReservationCoordinator
}

func newFixture(t *testing.T, stock map[string]int) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.NewStore(),
		outbox: &recordingOutbox{},
		clock:  newFakeClock(),
	}
	for productID, onHand := range stock {
		created, err := f.store.Ledger().Create(context.Background(), domain.NewStockItem(productID, onHand))
		require.NoError(t, err)
		require.True(t, created)
	}
	f.coord = NewReservationCoordinator(
		f.store,
		f.store.Ledger(),
		f.store.Reservations(),
		f.outbox,
		WithClock(f.clock.Now),
	)
	return f
}

func (f *fixture) item(t *testing.T, productID string) domain.StockItem {
	t.Helper()
	item, err := f.store.Ledger().Get(context.Background(), productID)
	require.NoError(t, err)
	require.NotNil(t, item)
	return *item
}

func (f *fixture) active(t *testing.T, orderID string) []domain.Reservation {
	t.Helper()
	rows, err := f.store.Reservations().ListByOrderAndStatus(context.Background(), orderID, domain.ReservationReserved)
	require.NoError(t, err)
	return rows
}

func lines(kv ...interface{}) []domain.ReservationLine {
	out := make([]domain.ReservationLine, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, domain.ReservationLine{ProductID: kv[i].(string), Quantity: kv[i+1].(int)})
	}
	return out
}
