package application

import (
	"context"
	"encoding/json"

	"github.com/rodolfodevapp/eventshop-messaging-go/core/primitives"
	"github.com/rs/zerolog/log"

	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/domain"
)

type ProductCreatedHandler struct {
	adjustments *StockAdjustmentService
}

func NewProductCreatedHandler(adjustments *StockAdjustmentService) *ProductCreatedHandler {
	return &ProductCreatedHandler{adjustments: adjustments}
}

func (h *ProductCreatedHandler) Handle(ctx context.Context, ev primitives.Event) error {
	env, ok := envelopeOf("ProductCreatedHandler", ev, "ProductCreated")
	if !ok {
		return nil
	}

	var payload domain.ProductCreatedPayload
	if err := json.Unmarshal([]byte(env.PayloadJSON), &payload); err != nil {
		log.Warn().Err(err).Msg("ProductCreatedHandler: failed to unmarshal payload")
		return nil
	}

	// Older catalog versions only sent the sku.
	productID := payload.ProductID
	if productID == "" {
		productID = payload.Sku
	}
	if productID == "" {
		log.Warn().Msg("ProductCreatedHandler: missing productId and sku")
		return nil
	}

	log.Info().Str("productId", productID).Str("sku", payload.Sku).Int("qty", payload.StockQuantity).
		Msg("ProductCreatedHandler: received")

	_, err := h.adjustments.StockProduct(ctx, productID, payload.StockQuantity, Thresholds{
		MinStockLevel: payload.MinStockLevel,
		ReorderPoint:  payload.ReorderPoint,
	})
	return settle("ProductCreatedHandler", "", err)
}
