package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rodolfodevapp/eventshop-messaging-go/core/primitives"
	"github.com/rs/zerolog/log"

	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/domain"
)

// Publisher is the outgoing side of the event bus.
type Publisher interface {
	Publish(ctx context.Context, ev primitives.Event) error
}

// Dispatcher moves committed outbox messages onto the bus. A message that
// fails to publish keeps its row and is retried up to maxRetry times.
type Dispatcher struct {
	repo      domain.OutboxRepository
	publisher Publisher
	maxRetry  int
	batchSize int
}

func NewDispatcher(
	repo domain.OutboxRepository,
	publisher Publisher,
	maxRetry, batchSize int,
) *Dispatcher {
	return &Dispatcher{
		repo:      repo,
		publisher: publisher,
		maxRetry:  maxRetry,
		batchSize: batchSize,
	}
}

func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	msgs, err := d.repo.GetPendingBatch(ctx, d.maxRetry, d.batchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for i := range msgs {
		msg := &msgs[i]

		if !json.Valid([]byte(msg.PayloadJSON)) {
			log.Error().Str("messageId", msg.ID.String()).Str("type", msg.Type).Msg("outbox: payload is not JSON")
			msg.RetryCount = d.maxRetry
			d.save(ctx, *msg)
			continue
		}

		envelope := primitives.NewIntegrationEventEnvelope(msg.Type, msg.PayloadJSON)
		envelope.SetRoutingKey(msg.Type)

		if err := d.publisher.Publish(ctx, &envelope); err != nil {
			msg.RetryCount++
			log.Warn().Err(err).Str("type", msg.Type).Int("retry", msg.RetryCount).Msg("outbox: publish failed")
		} else {
			now := time.Now().UTC().Unix()
			msg.ProcessedAtUtc = &now
			processed++
		}
		d.save(ctx, *msg)
	}
	return processed, nil
}

func (d *Dispatcher) save(ctx context.Context, msg domain.OutboxMessage) {
	if err := d.repo.Save(ctx, msg); err != nil {
		log.Error().Err(err).Str("messageId", msg.ID.String()).Msg("outbox: failed to save message")
	}
}

// LogPublisher stands in for the bus when messaging is disabled.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, ev primitives.Event) error {
	entry := log.Info().Str("routingKey", ev.GetRoutingKey())
	if env, ok := ev.(*primitives.IntegrationEventEnvelope); ok {
		entry = entry.RawJSON("payload", []byte(env.PayloadJSON))
	}
	entry.Msg("event (messaging disabled)")
	return nil
}
