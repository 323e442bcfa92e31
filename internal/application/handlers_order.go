package application

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rodolfodevapp/eventshop-messaging-go/core/primitives"
	"github.com/rs/zerolog/log"

	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/domain"
)

type EventHandler interface {
	Handle(ctx context.Context, ev primitives.Event) error
}

// Returning an error makes the bus redeliver, so only transient faults
// are returned. Business outcomes and bad input are acked.
func settle(handler, orderID string, err error) error {
	if err == nil {
		return nil
	}
	if domain.Retryable(err) {
		log.Error().Err(err).Str("handler", handler).Str("orderId", orderID).Msg("transient failure, message will be redelivered")
		return err
	}
	log.Warn().Err(err).Str("handler", handler).Str("orderId", orderID).Msg("message dropped")
	return nil
}

func envelopeOf(handler string, ev primitives.Event, types ...string) (*primitives.IntegrationEventEnvelope, bool) {
	env, ok := ev.(*primitives.IntegrationEventEnvelope)
	if !ok {
		log.Warn().Str("handler", handler).Msgf("invalid event type %T", ev)
		return nil, false
	}
	for _, t := range types {
		if env.Type == t {
			return env, true
		}
	}
	return nil, false
}

// OrderPlacedHandler

type OrderPlacedHandler struct {
	coord  *ReservationCoordinator
	outbox OutboxWriter
}

func NewOrderPlacedHandler(coord *ReservationCoordinator, outbox OutboxWriter) *OrderPlacedHandler {
	return &OrderPlacedHandler{coord: coord, outbox: outbox}
}

func (h *OrderPlacedHandler) Handle(ctx context.Context, ev primitives.Event) error {
	env, ok := envelopeOf("OrderPlacedHandler", ev, "OrderPlacedEvent")
	if !ok {
		return nil
	}

	var payload domain.OrderPlacedPayload
	if err := json.Unmarshal([]byte(env.PayloadJSON), &payload); err != nil {
		log.Warn().Err(err).Msg("OrderPlacedHandler: failed to unmarshal payload")
		return nil
	}
	log.Info().Str("orderId", payload.OrderID).Str("userId", payload.UserID).Int("lines", len(payload.Lines)).
		Msg("OrderPlacedHandler: received")

	_, err := h.coord.Reserve(ctx, payload.OrderID, payload.ReservationLines())
	if err == nil {
		return nil
	}

	// The order service waits for either StockReserved or this.
	var ise *domain.InsufficientStockError
	switch {
	case errors.As(err, &ise):
		h.fail(ctx, payload.OrderID, "INSUFFICIENT_STOCK", ise)
	case errors.Is(err, domain.ErrInvalidRequest):
		h.fail(ctx, payload.OrderID, "INVALID_REQUEST", nil)
	}
	return settle("OrderPlacedHandler", payload.OrderID, err)
}

func (h *OrderPlacedHandler) fail(ctx context.Context, orderID, reason string, ise *domain.InsufficientStockError) {
	if orderID == "" {
		return
	}
	if err := h.outbox.Enqueue(ctx, domain.NewStockReservationFailedEvent(orderID, reason, ise)); err != nil {
		log.Warn().Err(err).Str("orderId", orderID).Msg("StockReservationFailed notification failed")
	}
}

// OrderConfirmedHandler consumes the holds once payment succeeded.

type OrderConfirmedHandler struct {
	coord *ReservationCoordinator
}

func NewOrderConfirmedHandler(coord *ReservationCoordinator) *OrderConfirmedHandler {
	return &OrderConfirmedHandler{coord: coord}
}

func (h *OrderConfirmedHandler) Handle(ctx context.Context, ev primitives.Event) error {
	env, ok := envelopeOf("OrderConfirmedHandler", ev, "OrderConfirmedEvent")
	if !ok {
		return nil
	}
	payload, ok := orderRef("OrderConfirmedHandler", env)
	if !ok {
		return nil
	}
	_, err := h.coord.Confirm(ctx, payload.OrderID)
	return settle("OrderConfirmedHandler", payload.OrderID, err)
}

// OrderCancelledHandler returns the holds of cancelled, rejected or
// unpaid orders.

type OrderCancelledHandler struct {
	coord *ReservationCoordinator
}

func NewOrderCancelledHandler(coord *ReservationCoordinator) *OrderCancelledHandler {
	return &OrderCancelledHandler{coord: coord}
}

func (h *OrderCancelledHandler) Handle(ctx context.Context, ev primitives.Event) error {
	env, ok := envelopeOf("OrderCancelledHandler", ev, "OrderCancelledEvent", "OrderRejectedEvent", "PaymentFailedEvent")
	if !ok {
		return nil
	}
	payload, ok := orderRef("OrderCancelledHandler", env)
	if !ok {
		return nil
	}
	log.Info().Str("orderId", payload.OrderID).Str("type", env.Type).Str("reason", payload.Reason).
		Msg("OrderCancelledHandler: releasing holds")
	_, err := h.coord.Release(ctx, payload.OrderID)
	return settle("OrderCancelledHandler", payload.OrderID, err)
}

func orderRef(handler string, env *primitives.IntegrationEventEnvelope) (domain.OrderRefPayload, bool) {
	var payload domain.OrderRefPayload
	if err := json.Unmarshal([]byte(env.PayloadJSON), &payload); err != nil {
		log.Warn().Err(err).Str("handler", handler).Msg("failed to unmarshal payload")
		return payload, false
	}
	if payload.OrderID == "" {
		log.Warn().Str("handler", handler).Msg("missing orderId")
		return payload, false
	}
	return payload, true
}
