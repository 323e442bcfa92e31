package application

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/domain"
	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/metrics"
)

// ReplenishmentMonitor reports products that need restocking. It only
// reads the ledger.
type ReplenishmentMonitor struct {
	ledger  domain.StockLedger
	sink    domain.AlertSink
	metrics *metrics.Metrics
}

func NewReplenishmentMonitor(ledger domain.StockLedger, sink domain.AlertSink, m *metrics.Metrics) *ReplenishmentMonitor {
	return &ReplenishmentMonitor{ledger: ledger, sink: sink, metrics: m}
}

// Scan classifies every candidate. A product can appear under more than
// one category.
func (m *ReplenishmentMonitor) Scan(ctx context.Context) ([]domain.StockAlert, error) {
	ctx, span := tracer.Start(ctx, "ReplenishmentMonitor.Scan")
	defer span.End()

	items, err := m.ledger.ListReplenishmentCandidates(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	alerts := make([]domain.StockAlert, 0, len(items))
	for _, item := range items {
		alerts = append(alerts, domain.ClassifyStock(item)...)
	}
	return alerts, nil
}

// RunOnce scans and hands the result to the sink. A failing sink is logged
// and does not fail the cycle.
func (m *ReplenishmentMonitor) RunOnce(ctx context.Context) (int, error) {
	alerts, err := m.Scan(ctx)
	if err != nil {
		return 0, err
	}

	counts := make(map[string]int, len(domain.AlertCategories))
	for _, c := range domain.AlertCategories {
		counts[string(c)] = 0
	}
	for _, a := range alerts {
		counts[string(a.Category)]++
	}
	m.metrics.SetAlerts(counts)

	if len(alerts) == 0 {
		return 0, nil
	}
	if m.sink != nil {
		if err := m.sink.Publish(ctx, alerts); err != nil {
			log.Error().Err(err).Int("alerts", len(alerts)).Msg("replenishment: alert sink failed")
		}
	}
	log.Info().
		Int("lowStock", counts[string(domain.AlertLowStock)]).
		Int("outOfStock", counts[string(domain.AlertOutOfStock)]).
		Int("needsReorder", counts[string(domain.AlertNeedsReorder)]).
		Msg("replenishment scan")
	return len(alerts), nil
}
