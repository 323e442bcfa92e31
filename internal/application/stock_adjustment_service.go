package application

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/domain"
)

const (
	ReasonInitialLoad = "INITIAL_LOAD"
	ReasonRestock     = "RESTOCK"
	ReasonWriteOff    = "WRITE_OFF"
)

// Thresholds overrides the default replenishment levels of a new product.
type Thresholds struct {
	MinStockLevel   *int
	ReorderPoint    *int
	ReorderQuantity *int
}

// StockAdjustmentService changes on-hand quantities outside the
// reservation flow: catalog stocking, receiving goods and write-offs.
type StockAdjustmentService struct {
	uow    domain.UnitOfWork
	events OutboxWriter
}

func NewStockAdjustmentService(uow domain.UnitOfWork, events OutboxWriter) *StockAdjustmentService {
	return &StockAdjustmentService{uow: uow, events: events}
}

// StockProduct creates the product row, or moves an existing row's on-hand
// to onHand. On-hand is never set below what is currently reserved.
func (s *StockAdjustmentService) StockProduct(ctx context.Context, productID string, onHand int, th Thresholds) (*domain.StockItem, error) {
	if productID == "" {
		return nil, domain.InvalidRequest("missing productId")
	}
	if onHand < 0 {
		return nil, domain.InvalidRequest("stock quantity must not be negative")
	}

	var result *domain.StockItem
	err := s.uow.Do(ctx, func(ctx context.Context, ledger domain.StockLedger, _ domain.ReservationStore) error {
		item := domain.NewStockItem(productID, onHand)
		if th.MinStockLevel != nil {
			item.MinStockLevel = *th.MinStockLevel
		}
		if th.ReorderPoint != nil {
			item.ReorderPoint = *th.ReorderPoint
		}
		if th.ReorderQuantity != nil {
			item.ReorderQuantity = *th.ReorderQuantity
		}

		created, err := ledger.Create(ctx, item)
		if err != nil {
			return err
		}
		if created {
			result = item
			return nil
		}

		current, err := ledger.Get(ctx, productID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.UnknownProduct(productID)
		}
		target := onHand
		if target < current.Reserved {
			log.Warn().Str("productId", productID).Int("onHand", onHand).Int("reserved", current.Reserved).
				Msg("StockProduct: announced stock below reserved, keeping reserved units")
			target = current.Reserved
		}
		if target == current.OnHand {
			result = current
			return nil
		}
		result, err = ledger.AdjustOnHand(ctx, productID, target-current.OnHand)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("productId", productID).Int("onHand", result.OnHand).Msg("product stocked")
	s.announce(ctx, *result, ReasonInitialLoad)
	return result, nil
}

// Receive adds qty units, creating the row with default thresholds when
// the product was never stocked.
func (s *StockAdjustmentService) Receive(ctx context.Context, productID string, qty int) (*domain.StockItem, error) {
	if productID == "" || qty <= 0 {
		return nil, domain.InvalidRequest("receive needs a productId and a positive quantity")
	}
	var result *domain.StockItem
	err := s.uow.Do(ctx, func(ctx context.Context, ledger domain.StockLedger, _ domain.ReservationStore) error {
		if _, err := ledger.Create(ctx, domain.NewStockItem(productID, 0)); err != nil {
			return err
		}
		var err error
		result, err = ledger.AdjustOnHand(ctx, productID, qty)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("productId", productID).Int("qty", qty).Int("onHand", result.OnHand).Msg("stock received")
	s.announce(ctx, *result, ReasonRestock)
	return result, nil
}

// WriteOff removes qty units. Units held by reservations cannot be
// written off.
func (s *StockAdjustmentService) WriteOff(ctx context.Context, productID string, qty int) (*domain.StockItem, error) {
	if productID == "" || qty <= 0 {
		return nil, domain.InvalidRequest("write-off needs a productId and a positive quantity")
	}
	var result *domain.StockItem
	err := s.uow.Do(ctx, func(ctx context.Context, ledger domain.StockLedger, _ domain.ReservationStore) error {
		var err error
		result, err = ledger.AdjustOnHand(ctx, productID, -qty)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("productId", productID).Int("qty", qty).Int("onHand", result.OnHand).Msg("stock written off")
	s.announce(ctx, *result, ReasonWriteOff)
	return result, nil
}

func (s *StockAdjustmentService) announce(ctx context.Context, item domain.StockItem, reason string) {
	if s.events == nil {
		return
	}
	if err := s.events.Enqueue(context.WithoutCancel(ctx), domain.NewCatalogStockAdjustedEvent(item, reason)); err != nil {
		log.Warn().Err(err).Str("productId", item.ProductID).Msg("CatalogStockAdjusted notification failed")
	}
}
