package memory

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/domain"
)

// Ledger implements domain.StockLedger over a Store.
type Ledger struct {
	s *Store
	j *journal
}

func (l *Ledger) Get(_ context.Context, productID string) (*domain.StockItem, error) {
	item := l.s.lookup(productID)
	if item == nil {
		return nil, nil
	}
	mu := l.s.stripe(productID)
	mu.Lock()
	defer mu.Unlock()
	cp := *item
	return &cp, nil
}

func (l *Ledger) GetAvailable(ctx context.Context, productID string) (int, bool, error) {
	item, err := l.Get(ctx, productID)
	if err != nil || item == nil {
		return 0, false, err
	}
	return item.Available(), true, nil
}

func (l *Ledger) TryReserve(_ context.Context, productID string, qty int) (bool, error) {
	if err := l.s.injected("try_reserve"); err != nil {
		return false, err
	}
	item := l.s.lookup(productID)
	if item == nil {
		return false, nil
	}
	mu := l.s.stripe(productID)
	mu.Lock()
	defer mu.Unlock()

	if !item.CanReserve(qty) {
		return false, nil
	}
	item.Reserved += qty
	item.UpdatedAtUtc = time.Now().UTC()

	l.j.record(func() {
		mu.Lock()
		defer mu.Unlock()
		item.Reserved -= qty
	})
	return true, nil
}

func (l *Ledger) ReleaseHold(_ context.Context, productID string, qty int) error {
	if err := l.s.injected("release_hold"); err != nil {
		return err
	}
	item := l.s.lookup(productID)
	if item == nil {
		return domain.UnknownProduct(productID)
	}
	mu := l.s.stripe(productID)
	mu.Lock()
	defer mu.Unlock()

	released := qty
	if item.Reserved < qty {
		log.Warn().
			Str("productId", productID).
			Int("reserved", item.Reserved).
			Int("release", qty).
			Msg("ledger anomaly: release exceeds reserved, flooring at zero")
		released = item.Reserved
		l.s.metrics.ObserveAnomaly("release_floor")
	}
	item.Reserved -= released
	item.UpdatedAtUtc = time.Now().UTC()

	l.j.record(func() {
		mu.Lock()
		defer mu.Unlock()
		item.Reserved += released
	})
	return nil
}

func (l *Ledger) Consume(_ context.Context, productID string, qty int) error {
	if err := l.s.injected("consume"); err != nil {
		return err
	}
	item := l.s.lookup(productID)
	if item == nil {
		return domain.UnknownProduct(productID)
	}
	mu := l.s.stripe(productID)
	mu.Lock()
	defer mu.Unlock()

	if item.Reserved < qty || item.OnHand < qty {
		return errors.Wrapf(domain.ErrLedgerInconsistent,
			"consume %d of product %s with onHand=%d reserved=%d", qty, productID, item.OnHand, item.Reserved)
	}
	item.OnHand -= qty
	item.Reserved -= qty
	item.UpdatedAtUtc = time.Now().UTC()

	l.j.record(func() {
		mu.Lock()
		defer mu.Unlock()
		item.OnHand += qty
		item.Reserved += qty
	})
	return nil
}

func (l *Ledger) Create(_ context.Context, item *domain.StockItem) (bool, error) {
	if err := l.s.injected("create_stock_item"); err != nil {
		return false, err
	}
	if item.OnHand < 0 || !item.Valid() {
		return false, errors.Wrapf(domain.ErrLedgerInconsistent, "create product %s", item.ProductID)
	}
	l.s.itemsMu.Lock()
	defer l.s.itemsMu.Unlock()
	if _, ok := l.s.items[item.ProductID]; ok {
		return false, nil
	}
	cp := *item
	l.s.items[item.ProductID] = &cp

	productID := item.ProductID
	l.j.record(func() {
		l.s.itemsMu.Lock()
		defer l.s.itemsMu.Unlock()
		delete(l.s.items, productID)
	})
	return true, nil
}

func (l *Ledger) AdjustOnHand(_ context.Context, productID string, delta int) (*domain.StockItem, error) {
	if err := l.s.injected("adjust_on_hand"); err != nil {
		return nil, err
	}
	item := l.s.lookup(productID)
	if item == nil {
		return nil, domain.UnknownProduct(productID)
	}
	mu := l.s.stripe(productID)
	mu.Lock()
	defer mu.Unlock()

	if item.OnHand+delta < item.Reserved {
		return nil, &domain.InsufficientStockError{
			ProductID: productID,
			Requested: -delta,
			Available: item.Available(),
		}
	}
	prevRestock := item.LastRestockAt
	now := time.Now().UTC()
	item.OnHand += delta
	item.UpdatedAtUtc = now
	if delta > 0 {
		item.LastRestockAt = &now
	}

	l.j.record(func() {
		mu.Lock()
		defer mu.Unlock()
		item.OnHand -= delta
		item.LastRestockAt = prevRestock
	})
	cp := *item
	return &cp, nil
}

func (l *Ledger) productIDs() []string {
	l.s.itemsMu.RLock()
	ids := make([]string, 0, len(l.s.items))
	for id := range l.s.items {
		ids = append(ids, id)
	}
	l.s.itemsMu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (l *Ledger) ListReplenishmentCandidates(ctx context.Context) ([]domain.StockItem, error) {
	var out []domain.StockItem
	for _, id := range l.productIDs() {
		item, _ := l.Get(ctx, id)
		if item != nil && item.Available() <= item.ReplenishmentLevel() {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (l *Ledger) List(ctx context.Context, limit, offset int) ([]domain.StockItem, error) {
	if err := l.s.injected("list_stock_items"); err != nil {
		return nil, err
	}
	ids := l.productIDs()
	if offset >= len(ids) {
		return nil, nil
	}
	ids = ids[offset:]
	if limit < len(ids) {
		ids = ids[:limit]
	}
	out := make([]domain.StockItem, 0, len(ids))
	for _, id := range ids {
		if item, _ := l.Get(ctx, id); item != nil {
			out = append(out, *item)
		}
	}
	return out, nil
}
