package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/api"
	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/application"
	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/config"
	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/domain"
	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/infrastructure/alerts"
	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/infrastructure/db"
	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/infrastructure/memory"
	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/infrastructure/messaging"
	outboxinfra "github.com/RodolfoDevApp/eventshop-stockledger-go/internal/infrastructure/outbox"
	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/infrastructure/scheduler"
	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/logging"
	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/metrics"
	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/tracing"
)

const serviceName = "inventory-service"

type storage struct {
	uow          domain.UnitOfWork
	ledger       domain.StockLedger
	reservations domain.ReservationStore
	outbox       domain.OutboxRepository
	ready        func(ctx context.Context) error
	close        func() error
}

func openStorage(ctx context.Context, cfg config.Config, m *metrics.Metrics) (*storage, error) {
	if cfg.Storage == config.StorageMemory {
		log.Warn().Msg("using in-memory storage, state is lost on restart")
		store := memory.NewStore()
		store.SetMetrics(m)
		return &storage{
			uow:          store,
			ledger:       store.Ledger(),
			reservations: store.Reservations(),
			outbox:       memory.NewOutbox(),
			close:        func() error { return nil },
		}, nil
	}

	dbConn, err := sql.Open("pgx", cfg.PgDsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := dbConn.PingContext(ctx); err != nil {
		_ = dbConn.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	if err := db.Migrate(ctx, dbConn); err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	return &storage{
		uow:          db.NewPgUnitOfWork(dbConn, cfg.LockTimeout()).WithMetrics(m),
		ledger:       db.NewPgStockLedger(dbConn),
		reservations: db.NewPgReservationStore(dbConn),
		outbox:       db.NewPgOutboxRepository(dbConn),
		ready:        dbConn.PingContext,
		close:        dbConn.Close,
	}, nil
}

func main() {
	cfg := config.Load()
	logging.Setup(serviceName, cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log.Info().Str("port", cfg.HttpPort).Str("storage", cfg.Storage).Dur("holdTimeout", cfg.HoldTimeout()).Msg("starting inventory service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.InitTracerProvider(serviceName, cfg.JaegerEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init tracing")
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	store, err := openStorage(ctx, cfg, m)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer store.close()

	outboxWriter := application.NewOutboxWriter(store.outbox)

	// Application services
	coord := application.NewReservationCoordinator(
		store.uow,
		store.ledger,
		store.reservations,
		outboxWriter,
		application.WithHoldTimeout(cfg.HoldTimeout()),
		application.WithSweepBatch(cfg.SweepBatchSize),
		application.WithMetrics(m),
	)
	adjustments := application.NewStockAdjustmentService(store.uow, outboxWriter)

	var sink domain.AlertSink
	var kafkaSink *alerts.KafkaSink
	switch cfg.AlertSink {
	case config.AlertSinkKafka:
		w, err := alerts.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaAlertTopic)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build kafka writer")
		}
		kafkaSink = alerts.NewKafkaSink(w)
		sink = kafkaSink
	case config.AlertSinkLog:
		sink = alerts.LogSink{}
	default:
		sink = alerts.NewOutboxSink(outboxWriter)
	}
	monitor := application.NewReplenishmentMonitor(store.ledger, sink, m)

	// Outbox dispatcher and event subscriptions
	var publisher outboxinfra.Publisher = outboxinfra.LogPublisher{}
	if cfg.MessagingEnabled {
		buses := messaging.NewEventBusPair(cfg.RabbitUri, "inventory.orders-events.v1")
		catalogBus := messaging.NewCatalogEventBus(cfg.RabbitUri, "inventory.catalog-events.v1")
		publisher = buses.Producer

		if err := messaging.RegisterOrderSubscriptions(ctx, buses.OrdersConsumer, messaging.OrderHandlers{
			Placed:    application.NewOrderPlacedHandler(coord, outboxWriter),
			Confirmed: application.NewOrderConfirmedHandler(coord),
			Cancelled: application.NewOrderCancelledHandler(coord),
		}); err != nil {
			log.Fatal().Err(err).Msg("failed to start orders subscriptions")
		}
		if err := messaging.RegisterCatalogSubscriptions(ctx, catalogBus, application.NewProductCreatedHandler(adjustments)); err != nil {
			log.Fatal().Err(err).Msg("failed to start catalog subscriptions")
		}
	} else {
		log.Warn().Msg("messaging disabled, outbox events are only logged")
	}
	dispatcher := outboxinfra.NewDispatcher(store.outbox, publisher, cfg.OutboxMaxRetry, cfg.OutboxBatchSize)

	// HTTP API
	mux := http.NewServeMux()
	api.NewServer(api.Deps{
		Coordinator:  coord,
		Adjustments:  adjustments,
		Monitor:      monitor,
		Ledger:       store.ledger,
		Reservations: store.reservations,
		Metrics:      m,
		Ready:        store.ready,
	}).RegisterRoutes(mux)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.HttpPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.New("outbox-dispatcher", scheduler.JobFunc(dispatcher.DispatchOnce), cfg.OutboxInterval()).Run(gctx)
	})
	g.Go(func() error {
		return scheduler.New("expiry-sweeper", application.NewExpirySweeper(coord), cfg.SweepInterval()).Run(gctx)
	})
	g.Go(func() error {
		return scheduler.New("replenishment-monitor", monitor, cfg.MonitorInterval()).Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", httpSrv.Addr).Msg("HTTP listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down inventory service")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown error")
		}
		if kafkaSink != nil {
			if err := kafkaSink.Close(); err != nil {
				log.Error().Err(err).Msg("kafka writer close error")
			}
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("tracer shutdown error")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("inventory service stopped with error")
		stop()
		os.Exit(1)
	}
	log.Info().Msg("inventory service stopped")
}
