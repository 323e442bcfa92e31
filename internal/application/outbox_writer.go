package application

import (
	"context"
	"encoding/json"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rodolfodevapp/eventshop-messaging-go/core/primitives"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/domain"
)

// OutboxWriter is how the service announces state changes. Callers treat
// it as best effort once their own unit of work has committed.
type OutboxWriter interface {
	Enqueue(ctx context.Context, ev primitives.Event) error
}

type outboxWriter struct {
	repo domain.OutboxRepository
}

func NewOutboxWriter(repo domain.OutboxRepository) OutboxWriter {
	return &outboxWriter{repo: repo}
}

func (w *outboxWriter) Enqueue(ctx context.Context, ev primitives.Event) error {
	if ev == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal outbox payload")
	}

	eventType := ev.GetRoutingKey()
	if eventType == "" {
		eventType = typeNameOf(ev)
	}

	ctx, span := tracer.Start(ctx, "outbox.enqueue")
	defer span.End()
	span.SetAttributes(attribute.String("event.type", eventType))

	msg := domain.OutboxMessage{
		ID:            uuid.New(),
		Type:          eventType,
		PayloadJSON:   string(payload),
		OccurredAtUtc: time.Now().UTC().Unix(),
	}
	if err := w.repo.Insert(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		return errors.Wrapf(err, "enqueue %s", eventType)
	}
	log.Debug().Str("type", eventType).Str("id", msg.ID.String()).Msg("event enqueued")
	return nil
}

func typeNameOf(ev primitives.Event) string {
	t := reflect.TypeOf(ev)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
