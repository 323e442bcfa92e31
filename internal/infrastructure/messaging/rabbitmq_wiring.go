package messaging

import (
	"context"

	messaging "github.com/rodolfodevapp/eventshop-messaging-go/rabbitmq"
	"github.com/rs/zerolog/log"

	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/application"
)

const (
	OrdersExchange    = "orders.events"
	CatalogExchange   = "catalog.events"
	InventoryExchange = "inventory.events"
)

type EventBusPair struct {
	OrdersConsumer *messaging.RabbitMqEventBus
	Producer       *messaging.RabbitMqEventBus
}

func options(uri, exchange, queuePrefix string) messaging.RabbitMqOptions {
	return messaging.RabbitMqOptions{
		URI:          uri,
		ExchangeName: exchange,
		QueuePrefix:  queuePrefix,
		Prefetch:     32,
		RetryDelayMs: 30000,
	}
}

// NewEventBusPair consumes orders.events and produces inventory.events.
func NewEventBusPair(rabbitURI, ordersQueuePrefix string) EventBusPair {
	return EventBusPair{
		OrdersConsumer: messaging.NewRabbitMqEventBus(options(rabbitURI, OrdersExchange, ordersQueuePrefix), nil, nil),
		Producer:       messaging.NewRabbitMqEventBus(options(rabbitURI, InventoryExchange, "inventory.dispatcher.v1"), nil, nil),
	}
}

func NewCatalogEventBus(rabbitURI, queuePrefix string) *messaging.RabbitMqEventBus {
	return messaging.NewRabbitMqEventBus(options(rabbitURI, CatalogExchange, queuePrefix), nil, nil)
}

// OrderHandlers are the order lifecycle entry points of the ledger.
type OrderHandlers struct {
	Placed    application.EventHandler
	Confirmed application.EventHandler
	Cancelled application.EventHandler
}

// OrderSubscriptions maps order event types to their handler.
func OrderSubscriptions(h OrderHandlers) map[string]application.EventHandler {
	return map[string]application.EventHandler{
		"OrderPlacedEvent":    h.Placed,
		"OrderConfirmedEvent": h.Confirmed,
		"OrderCancelledEvent": h.Cancelled,
		"OrderRejectedEvent":  h.Cancelled,
		"PaymentFailedEvent":  h.Cancelled,
	}
}

func RegisterOrderSubscriptions(
	ctx context.Context,
	bus *messaging.RabbitMqEventBus,
	h OrderHandlers,
) error {
	for eventType, handler := range OrderSubscriptions(h) {
		bus.Subscribe(eventType, handler)
	}
	if err := bus.StartConsumers(ctx); err != nil {
		log.Error().Err(err).Str("exchange", OrdersExchange).Msg("failed to start consumers")
		return err
	}
	log.Info().Str("exchange", OrdersExchange).Msg("consumers started")
	return nil
}

func RegisterCatalogSubscriptions(
	ctx context.Context,
	bus *messaging.RabbitMqEventBus,
	productCreatedHandler application.EventHandler,
) error {
	bus.Subscribe("ProductCreated", productCreatedHandler)

	if err := bus.StartConsumers(ctx); err != nil {
		log.Error().Err(err).Str("exchange", CatalogExchange).Msg("failed to start consumers")
		return err
	}
	log.Info().Str("exchange", CatalogExchange).Msg("consumers started")
	return nil
}
