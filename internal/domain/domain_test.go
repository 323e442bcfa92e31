package domain

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockItem_Available(t *testing.T) {
	item := NewStockItem("p-1", 10)
	item.Reserved = 4

	assert.Equal(t, 6, item.Available())
	assert.True(t, item.CanReserve(6))
	assert.False(t, item.CanReserve(7))
	assert.False(t, item.CanReserve(0))
	assert.True(t, item.Valid())

	item.Reserved = 11
	assert.False(t, item.Valid())
}

func TestStockItem_MethodsOnValues(t *testing.T) {
	// Rows are passed around by value; the derived getters must work on
	// copies returned from functions.
	snapshot := func() StockItem { return StockItem{ProductID: "p-1", OnHand: 5, Reserved: 2, MinStockLevel: 1, ReorderPoint: 4} }

	assert.Equal(t, 3, snapshot().Available())
	assert.True(t, snapshot().CanReserve(3))
	assert.True(t, snapshot().Valid())
	assert.Equal(t, 4, snapshot().ReplenishmentLevel())
}

func TestReservation_Apply(t *testing.T) {
	r := NewReservation("o-1", "p-1", 2)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, r.Apply(ReservationConfirmed, at, ""))
	assert.Equal(t, ReservationConfirmed, r.Status)
	require.NotNil(t, r.ConfirmedAtUtc)
	assert.Equal(t, at, *r.ConfirmedAtUtc)
	assert.Nil(t, r.ReleasedAtUtc)

	err := r.Apply(ReservationReleased, at, ReleaseCancelled)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, ReservationConfirmed, r.Status)
	assert.Nil(t, r.ReleasedAtUtc)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(ReservationReserved, ReservationConfirmed))
	assert.True(t, CanTransition(ReservationReserved, ReservationReleased))
	assert.False(t, CanTransition(ReservationReserved, ReservationReserved))
	assert.False(t, CanTransition(ReservationConfirmed, ReservationReleased))
	assert.False(t, CanTransition(ReservationReleased, ReservationConfirmed))
}

func TestReservation_Expired(t *testing.T) {
	r := NewReservation("o-1", "p-1", 1)
	r.CreatedAtUtc = time.Now().Add(-20 * time.Minute)

	assert.True(t, r.Expired(time.Now().Add(-15*time.Minute)))
	assert.False(t, r.Expired(time.Now().Add(-30*time.Minute)))

	r.Status = ReservationConfirmed
	assert.False(t, r.Expired(time.Now().Add(-15*time.Minute)))
}

func TestMergeLines(t *testing.T) {
	merged, err := MergeLines([]ReservationLine{
		{ProductID: "b", Quantity: 1},
		{ProductID: "a", Quantity: 2},
		{ProductID: "b", Quantity: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, []ReservationLine{{"b", 4}, {"a", 2}}, merged)

	_, err = MergeLines(nil)
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	_, err = MergeLines([]ReservationLine{{ProductID: "a", Quantity: 0}})
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	_, err = MergeLines([]ReservationLine{{ProductID: "", Quantity: 1}})
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}

func TestMergeLines_RejectsQuantitiesPastTheColumnRange(t *testing.T) {
	_, err := MergeLines([]ReservationLine{{ProductID: "a", Quantity: MaxLineQuantity + 1}})
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	_, err = MergeLines([]ReservationLine{
		{ProductID: "a", Quantity: MaxLineQuantity},
		{ProductID: "a", Quantity: 1},
	})
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	merged, err := MergeLines([]ReservationLine{
		{ProductID: "a", Quantity: MaxLineQuantity - 1},
		{ProductID: "a", Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, MaxLineQuantity, merged[0].Quantity)
}

func TestInsufficientStockError_Is(t *testing.T) {
	var err error = &InsufficientStockError{ProductID: "p-2", Requested: 3, Available: 1}
	wrapped := errors.Wrap(err, "reserve")

	assert.True(t, errors.Is(wrapped, ErrInsufficientStock))
	var ise *InsufficientStockError
	require.True(t, errors.As(wrapped, &ise))
	assert.Equal(t, "p-2", ise.ProductID)
	assert.False(t, Retryable(wrapped))
	assert.True(t, Retryable(Unavailable(errors.New("conn reset"), "reserve")))
}

func TestClassifyStock(t *testing.T) {
	tests := []struct {
		name     string
		item     StockItem
		expected []AlertCategory
	}{
		{"healthy", StockItem{ProductID: "p", OnHand: 100, MinStockLevel: 10, ReorderPoint: 20}, nil},
		{"reorder only", StockItem{ProductID: "p", OnHand: 15, MinStockLevel: 10, ReorderPoint: 20}, []AlertCategory{AlertNeedsReorder}},
		{"low and reorder", StockItem{ProductID: "p", OnHand: 12, Reserved: 2, MinStockLevel: 10, ReorderPoint: 20}, []AlertCategory{AlertLowStock, AlertNeedsReorder}},
		{"all three", StockItem{ProductID: "p", OnHand: 5, Reserved: 5, MinStockLevel: 10, ReorderPoint: 20}, []AlertCategory{AlertLowStock, AlertOutOfStock, AlertNeedsReorder}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []AlertCategory
			for _, a := range ClassifyStock(tt.item) {
				assert.Equal(t, tt.item.Available(), a.CurrentAvailable)
				got = append(got, a.Category)
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}
