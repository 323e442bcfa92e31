package db

import (
	"context"
	"database/sql"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/domain"
)

// openTestDB connects to PG_TEST_DSN. Each test works on its own product
// ids so runs against a shared database do not interfere.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("PG_TEST_DSN")
	if dsn == "" {
		t.Skip("PG_TEST_DSN not set")
	}
	conn, err := sql.Open("pgx", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, Migrate(context.Background(), conn))
	return conn
}

func uniqueID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

func TestPg_LedgerAndReservationsCommitTogether(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	ledger := NewPgStockLedger(conn)
	store := NewPgReservationStore(conn)
	uow := NewPgUnitOfWork(conn, 2*time.Second)

	productID := uniqueID("p")
	created, err := ledger.Create(ctx, domain.NewStockItem(productID, 5))
	require.NoError(t, err)
	require.True(t, created)

	orderID := uniqueID("o")
	boom := errors.New("boom")
	err = uow.Do(ctx, func(ctx context.Context, l domain.StockLedger, r domain.ReservationStore) error {
		ok, err := l.TryReserve(ctx, productID, 3)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, r.Insert(ctx, domain.NewReservation(orderID, productID, 3)))
		return boom
	})
	assert.Equal(t, boom, err)

	item, err := ledger.Get(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 0, item.Reserved)
	active, err := store.FindActive(ctx, orderID, productID)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestPg_TryReserveNeverOversells(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	ledger := NewPgStockLedger(conn)

	productID := uniqueID("p")
	_, err := ledger.Create(ctx, domain.NewStockItem(productID, 5))
	require.NoError(t, err)

	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ledger.TryReserve(ctx, productID, 4)
			assert.NoError(t, err)
			if ok {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)
	item, err := ledger.Get(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 4, item.Reserved)
}

func TestPg_ReleaseConsumeAndAdjust(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	ledger := NewPgStockLedger(conn)

	productID := uniqueID("p")
	_, err := ledger.Create(ctx, domain.NewStockItem(productID, 10))
	require.NoError(t, err)

	ok, err := ledger.TryReserve(ctx, productID, 6)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, ledger.Consume(ctx, productID, 2))
	require.NoError(t, ledger.ReleaseHold(ctx, productID, 10))
	item, err := ledger.Get(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 8, item.OnHand)
	assert.Equal(t, 0, item.Reserved)

	err = ledger.Consume(ctx, productID, 1)
	assert.True(t, errors.Is(err, domain.ErrLedgerInconsistent))
	err = ledger.ReleaseHold(ctx, uniqueID("ghost"), 1)
	assert.True(t, errors.Is(err, domain.ErrUnknownProduct))

	ok, err = ledger.TryReserve(ctx, productID, 5)
	require.NoError(t, err)
	require.True(t, ok)
	_, err = ledger.AdjustOnHand(ctx, productID, -4)
	assert.True(t, errors.Is(err, domain.ErrInsufficientStock))
	item, err = ledger.AdjustOnHand(ctx, productID, 7)
	require.NoError(t, err)
	assert.Equal(t, 15, item.OnHand)
	assert.NotNil(t, item.LastRestockAt)
}

func TestPg_ListOrdersByProductID(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	ledger := NewPgStockLedger(conn)

	prefix := uniqueID("list")
	for _, suffix := range []string{"-b", "-a"} {
		_, err := ledger.Create(ctx, domain.NewStockItem(prefix+suffix, 1))
		require.NoError(t, err)
	}

	items, err := ledger.List(ctx, 100000, 0)
	require.NoError(t, err)
	assert.True(t, sort.SliceIsSorted(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID }))
	var ours []string
	for _, item := range items {
		if strings.HasPrefix(item.ProductID, prefix) {
			ours = append(ours, item.ProductID)
		}
	}
	assert.Equal(t, []string{prefix + "-a", prefix + "-b"}, ours)

	first, err := ledger.List(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, items[0].ProductID, first[0].ProductID)
}

func TestPg_TransitionIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	conn := openTestDB(t)
	store := NewPgReservationStore(conn)

	orderID, productID := uniqueID("o"), uniqueID("p")
	res := domain.NewReservation(orderID, productID, 2)
	require.NoError(t, store.Insert(ctx, res))

	err := store.Insert(ctx, domain.NewReservation(orderID, productID, 1))
	assert.True(t, errors.Is(err, domain.ErrConcurrentModification))

	now := time.Now().UTC()
	applied, err := store.Transition(ctx, res.ID, domain.ReservationReserved, domain.ReservationReleased, now, domain.ReleaseExpired)
	require.NoError(t, err)
	require.NotNil(t, applied)
	assert.Equal(t, domain.ReservationReleased, applied.Status)
	assert.Equal(t, 2, applied.Quantity)
	applied, err = store.Transition(ctx, res.ID, domain.ReservationReserved, domain.ReservationConfirmed, now, "")
	require.NoError(t, err)
	assert.Nil(t, applied)

	got, err := store.GetByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationReleased, got.Status)
	assert.Equal(t, domain.ReleaseExpired, got.ReleaseReason)
	assert.NotNil(t, got.ReleasedAtUtc)
	assert.Nil(t, got.ConfirmedAtUtc)

	_, err = store.Transition(ctx, uuid.New(), domain.ReservationReserved, domain.ReservationReleased, now, domain.ReleaseCancelled)
	assert.True(t, errors.Is(err, domain.ErrReservationNotFound))
}

func TestPg_OutboxRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewPgOutboxRepository(openTestDB(t))

	msg := domain.OutboxMessage{
		ID:            uuid.New(),
		Type:          uniqueID("TestEvent"),
		PayloadJSON:   `{"ok":true}`,
		OccurredAtUtc: time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
	}
	require.NoError(t, repo.Insert(ctx, msg))

	find := func() *domain.OutboxMessage {
		batch, err := repo.GetPendingBatch(ctx, 5, 1000)
		require.NoError(t, err)
		for i := range batch {
			if batch[i].ID == msg.ID {
				return &batch[i]
			}
		}
		return nil
	}
	got := find()
	require.NotNil(t, got)
	assert.Equal(t, msg.OccurredAtUtc, got.OccurredAtUtc)

	got.RetryCount = 5
	require.NoError(t, repo.Save(ctx, *got))
	assert.Nil(t, find(), "exhausted retries leave the batch")

	assert.Error(t, repo.Save(ctx, domain.OutboxMessage{ID: uuid.New()}))
}
