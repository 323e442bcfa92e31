package application

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/domain"
)

func TestStockProduct_CreatesWithThresholds(t *testing.T) {
	f := newFixture(t, nil)
	svc := NewStockAdjustmentService(f.store, f.outbox)

	minLevel := 3
	item, err := svc.StockProduct(context.Background(), "p-1", 40, Thresholds{MinStockLevel: &minLevel})
	require.NoError(t, err)
	assert.Equal(t, 40, item.OnHand)
	assert.Equal(t, 3, f.item(t, "p-1").MinStockLevel)
	assert.Equal(t, domain.DefaultReorderPoint, f.item(t, "p-1").ReorderPoint)
	assert.Equal(t, 1, f.outbox.count("CatalogStockAdjusted"))
}

func TestStockProduct_ResetKeepsReservedUnits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]int{"p-1": 10})
	svc := NewStockAdjustmentService(f.store, f.outbox)
	_, err := f.coord.Reserve(ctx, "o-1", lines("p-1", 6))
	require.NoError(t, err)

	item, err := svc.StockProduct(ctx, "p-1", 20, Thresholds{})
	require.NoError(t, err)
	assert.Equal(t, 20, item.OnHand)

	item, err = svc.StockProduct(ctx, "p-1", 2, Thresholds{})
	require.NoError(t, err)
	assert.Equal(t, 6, item.OnHand)
	assert.Equal(t, 6, item.Reserved)
}

func TestReceive_CreatesMissingProduct(t *testing.T) {
	f := newFixture(t, nil)
	svc := NewStockAdjustmentService(f.store, f.outbox)

	item, err := svc.Receive(context.Background(), "p-new", 12)
	require.NoError(t, err)
	assert.Equal(t, 12, item.OnHand)
	assert.NotNil(t, item.LastRestockAt)

	_, err = svc.Receive(context.Background(), "p-new", 0)
	assert.True(t, errors.Is(err, domain.ErrInvalidRequest))
}

func TestWriteOff_NeverTouchesHeldUnits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, map[string]int{"p-1": 10})
	svc := NewStockAdjustmentService(f.store, f.outbox)
	_, err := f.coord.Reserve(ctx, "o-1", lines("p-1", 7))
	require.NoError(t, err)

	_, err = svc.WriteOff(ctx, "p-1", 4)
	var ise *domain.InsufficientStockError
	require.True(t, errors.As(err, &ise))
	assert.Equal(t, 3, ise.Available)

	item, err := svc.WriteOff(ctx, "p-1", 3)
	require.NoError(t, err)
	assert.Equal(t, 7, item.OnHand)
	assert.True(t, item.Valid())

	_, err = svc.WriteOff(ctx, "ghost", 1)
	assert.True(t, errors.Is(err, domain.ErrUnknownProduct))
}
