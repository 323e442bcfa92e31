package alerts

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/application"
	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/domain"
)

// OutboxSink turns each alert into a StockAlert integration event.
type OutboxSink struct {
	outbox application.OutboxWriter
}

func NewOutboxSink(outbox application.OutboxWriter) *OutboxSink {
	return &OutboxSink{outbox: outbox}
}

func (s *OutboxSink) Publish(ctx context.Context, alerts []domain.StockAlert) error {
	for _, a := range alerts {
		if err := s.outbox.Enqueue(ctx, domain.NewStockAlertEvent(a)); err != nil {
			return err
		}
	}
	return nil
}

type LogSink struct{}

func (LogSink) Publish(_ context.Context, alerts []domain.StockAlert) error {
	for _, a := range alerts {
		log.Warn().
			Str("productId", a.ProductID).
			Str("category", string(a.Category)).
			Int("available", a.CurrentAvailable).
			Int("threshold", a.Threshold).
			Msg("stock alert")
	}
	return nil
}

var (
	_ domain.AlertSink = (*KafkaSink)(nil)
	_ domain.AlertSink = (*OutboxSink)(nil)
	_ domain.AlertSink = LogSink{}
)
