package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rodolfodevapp/eventshop-messaging-go/core/primitives"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/domain"
	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/metrics"
)

const (
	DefaultHoldTimeout = 15 * time.Minute
	defaultSweepBatch  = 200
	compensateTimeout  = 10 * time.Second
)

var tracer = otel.Tracer("github.com/RodolfoDevApp/eventshop-stockledger-go/internal/application")

// ReservationCoordinator is the only writer of reservation rows. Each row
// transition and its ledger mutation commit in the same unit of work.
type ReservationCoordinator struct {
	uow          domain.UnitOfWork
	ledger       domain.StockLedger
	reservations domain.ReservationStore
	events       OutboxWriter
	metrics      *metrics.Metrics
	holdTimeout  time.Duration
	sweepBatch   int
	now          func() time.Time
}

type CoordinatorOption func(*ReservationCoordinator)

func WithHoldTimeout(d time.Duration) CoordinatorOption {
	return func(c *ReservationCoordinator) {
		if d > 0 {
			c.holdTimeout = d
		}
	}
}

func WithSweepBatch(n int) CoordinatorOption {
	return func(c *ReservationCoordinator) {
		if n > 0 {
			c.sweepBatch = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) CoordinatorOption {
	return func(c *ReservationCoordinator) { c.metrics = m }
}

func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *ReservationCoordinator) { c.now = now }
}

// NewReservationCoordinator wires the coordinator. ledger and reservations
// are the non-transactional read views of the same storage uow writes to.
func NewReservationCoordinator(
	uow domain.UnitOfWork,
	ledger domain.StockLedger,
	reservations domain.ReservationStore,
	events OutboxWriter,
	opts ...CoordinatorOption,
) *ReservationCoordinator {
	c := &ReservationCoordinator{
		uow:          uow,
		ledger:       ledger,
		reservations: reservations,
		events:       events,
		holdTimeout:  DefaultHoldTimeout,
		sweepBatch:   defaultSweepBatch,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// lineStep is what one processed line leaves behind for the rest of the call.
type lineStep struct {
	result domain.Reservation
	undo   func(ctx context.Context) error
	shrink *pendingShrink
	// confirmed is set when the order already consumed this product.
	confirmed bool
}

type pendingShrink struct {
	index     int
	id        uuid.UUID
	productID string
	from, to  int
}

// Reserve holds every line for the order or none of them. Lines already
// held by the order are adjusted by their delta instead of duplicated, so a
// retried call converges to the same state. A line whose product the order
// already confirmed is returned as is and holds nothing new.
func (c *ReservationCoordinator) Reserve(
	ctx context.Context,
	orderID string,
	lines []domain.ReservationLine,
) (_ []domain.Reservation, err error) {
	ctx, span := tracer.Start(ctx, "ReservationCoordinator.Reserve", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.Int("order.lines", len(lines)),
	))
	defer func() { c.finishSpan(span, err) }()

	if orderID == "" {
		c.metrics.ObserveReserve("invalid")
		return nil, domain.InvalidRequest("missing orderId")
	}
	merged, err := domain.MergeLines(lines)
	if err != nil {
		c.metrics.ObserveReserve("invalid")
		log.Warn().Err(err).Str("orderId", orderID).Msg("Reserve: rejected request")
		return nil, err
	}

	// LIFO, like a saga compensation stack.
	var undo []func(ctx context.Context) error
	var shrinks []pendingShrink
	results := make([]domain.Reservation, 0, len(merged))
	confirmed := make(map[int]bool)

	fail := func(cause error) error {
		if cerr := c.compensate(ctx, orderID, undo); cerr != nil {
			log.Error().Err(cerr).Str("orderId", orderID).AnErr("cause", cause).
				Msg("Reserve: compensation incomplete, holds remain until release or expiry")
			c.metrics.ObserveReserve("error")
			return domain.Unavailable(cerr, "compensate reserve of order "+orderID)
		}
		c.observeReserveFailure(orderID, cause)
		return cause
	}

	for _, line := range merged {
		step, err := c.reserveLine(ctx, orderID, line)
		if err != nil {
			return nil, fail(err)
		}
		if step.undo != nil {
			undo = append([]func(context.Context) error{step.undo}, undo...)
		}
		if step.shrink != nil {
			step.shrink.index = len(results)
			shrinks = append(shrinks, *step.shrink)
		}
		if step.confirmed {
			confirmed[len(results)] = true
		}
		results = append(results, step.result)
	}

	// Shrinking only after every growth succeeded keeps the call all-or-nothing.
	for _, s := range shrinks {
		if err := c.resize(ctx, s.id, s.productID, s.from, s.to); err != nil {
			return nil, fail(err)
		}
		results[s.index].Quantity = s.to
	}

	held := make([]domain.Reservation, 0, len(results))
	for i, r := range results {
		if !confirmed[i] {
			held = append(held, r)
		}
	}
	if len(held) == 0 {
		c.metrics.ObserveReserve("already_confirmed")
		log.Info().Str("orderId", orderID).Msg("Reserve: order already confirmed, nothing held")
		return results, nil
	}

	c.metrics.ObserveReserve("reserved")
	log.Info().Str("orderId", orderID).Int("lines", len(held)).Int("confirmed", len(confirmed)).Msg("Reserve: stock held")

	c.publish(ctx, domain.NewStockReservedEvent(orderID, domain.LinesOf(held)))
	c.publishStockAdjusted(ctx, productIDs(held), "ORDER_RESERVED")
	return results, nil
}

func (c *ReservationCoordinator) reserveLine(
	ctx context.Context,
	orderID string,
	line domain.ReservationLine,
) (lineStep, error) {
	var step lineStep
	err := c.uow.Do(ctx, func(ctx context.Context, ledger domain.StockLedger, reservations domain.ReservationStore) error {
		step = lineStep{}
		existing, err := reservations.FindActive(ctx, orderID, line.ProductID)
		if err != nil {
			return err
		}

		if existing == nil {
			done, err := confirmedLine(ctx, reservations, orderID, line.ProductID)
			if err != nil {
				return err
			}
			if done != nil {
				step.result = *done
				step.confirmed = true
				return nil
			}

			ok, err := ledger.TryReserve(ctx, line.ProductID, line.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return insufficient(ctx, ledger, line.ProductID, line.Quantity, 0)
			}
			res := domain.NewReservation(orderID, line.ProductID, line.Quantity)
			res.CreatedAtUtc = c.now()
			res.UpdatedAtUtc = res.CreatedAtUtc
			if err := reservations.Insert(ctx, res); err != nil {
				return err
			}
			step.result = *res
			id := res.ID
			step.undo = func(ctx context.Context) error {
				_, err := c.transition(ctx, id, domain.ReservationReleased, domain.ReleaseCompensated)
				return err
			}
			return nil
		}

		step.result = *existing
		step.result.Quantity = line.Quantity
		delta := line.Quantity - existing.Quantity
		switch {
		case delta > 0:
			ok, err := ledger.TryReserve(ctx, line.ProductID, delta)
			if err != nil {
				return err
			}
			if !ok {
				return insufficient(ctx, ledger, line.ProductID, line.Quantity, existing.Quantity)
			}
			applied, err := reservations.UpdateQuantity(ctx, existing.ID, existing.Quantity, line.Quantity)
			if err != nil {
				return err
			}
			if !applied {
				return errors.Wrapf(domain.ErrConcurrentModification, "reservation %s", existing.ID)
			}
			id, productID, from, to := existing.ID, existing.ProductID, existing.Quantity, line.Quantity
			step.undo = func(ctx context.Context) error {
				return c.resize(ctx, id, productID, to, from)
			}
		case delta < 0:
			step.shrink = &pendingShrink{
				id:        existing.ID,
				productID: existing.ProductID,
				from:      existing.Quantity,
				to:        line.Quantity,
			}
		}
		return nil
	})
	return step, err
}

// confirmedLine returns the CONFIRMED row of the order for productID, or nil.
// A redelivered order event must not hold stock the order already consumed.
func confirmedLine(ctx context.Context, reservations domain.ReservationStore, orderID, productID string) (*domain.Reservation, error) {
	rows, err := reservations.ListByOrderAndStatus(ctx, orderID, domain.ReservationConfirmed)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		if rows[i].ProductID == productID {
			return &rows[i], nil
		}
	}
	return nil, nil
}

// resize moves a RESERVED row from one quantity to a smaller or larger one
// together with the matching ledger hold.
func (c *ReservationCoordinator) resize(ctx context.Context, id uuid.UUID, productID string, from, to int) error {
	return c.uow.Do(ctx, func(ctx context.Context, ledger domain.StockLedger, reservations domain.ReservationStore) error {
		applied, err := reservations.UpdateQuantity(ctx, id, from, to)
		if err != nil {
			return err
		}
		if !applied {
			return errors.Wrapf(domain.ErrConcurrentModification, "reservation %s", id)
		}
		if to < from {
			return ledger.ReleaseHold(ctx, productID, from-to)
		}
		ok, err := ledger.TryReserve(ctx, productID, to-from)
		if err != nil {
			return err
		}
		if !ok {
			return insufficient(ctx, ledger, productID, to, from)
		}
		return nil
	})
}

func insufficient(ctx context.Context, ledger domain.StockLedger, productID string, requested, held int) error {
	available, _, err := ledger.GetAvailable(ctx, productID)
	if err != nil {
		return err
	}
	if available < 0 {
		available = 0
	}
	return &domain.InsufficientStockError{
		ProductID: productID,
		Requested: requested,
		Available: available + held,
	}
}

func (c *ReservationCoordinator) compensate(ctx context.Context, orderID string, undo []func(context.Context) error) error {
	if len(undo) == 0 {
		return nil
	}
	// The caller may already be gone; the holds must still come back.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()

	log.Info().Str("orderId", orderID).Int("steps", len(undo)).Msg("Reserve: compensating")
	var firstErr error
	for _, fn := range undo {
		if err := fn(cctx); err != nil {
			log.Error().Err(err).Str("orderId", orderID).Msg("Reserve: compensation step failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (c *ReservationCoordinator) observeReserveFailure(orderID string, err error) {
	var ise *domain.InsufficientStockError
	switch {
	case errors.As(err, &ise):
		c.metrics.ObserveReserve("insufficient")
		log.Info().Str("orderId", orderID).Str("productId", ise.ProductID).
			Int("requested", ise.Requested).Int("available", ise.Available).
			Msg("Reserve: insufficient stock")
	case domain.Retryable(err):
		c.metrics.ObserveReserve("retryable")
		log.Error().Err(err).Str("orderId", orderID).Msg("Reserve: transient failure")
	default:
		c.metrics.ObserveReserve("error")
		log.Warn().Err(err).Str("orderId", orderID).Msg("Reserve: failed")
	}
}

// Confirm converts every hold of the order into a permanent deduction.
// Rows already terminal are skipped, so retries are safe.
func (c *ReservationCoordinator) Confirm(ctx context.Context, orderID string) (_ []domain.Reservation, err error) {
	ctx, span := tracer.Start(ctx, "ReservationCoordinator.Confirm",
		trace.WithAttributes(attribute.String("order.id", orderID)))
	defer func() { c.finishSpan(span, err) }()

	confirmed, err := c.settleOrder(ctx, orderID, domain.ReservationConfirmed, "")
	if len(confirmed) > 0 {
		c.metrics.ObserveTransitions(string(domain.ReservationConfirmed), "order", len(confirmed))
		c.publish(ctx, domain.NewReservationConfirmedEvent(orderID, domain.LinesOf(confirmed)))
		c.publishStockAdjusted(ctx, productIDs(confirmed), "ORDER_CONFIRMED")
	}
	return confirmed, err
}

// Release returns every hold of the order to sellable stock.
func (c *ReservationCoordinator) Release(ctx context.Context, orderID string) (_ []domain.Reservation, err error) {
	ctx, span := tracer.Start(ctx, "ReservationCoordinator.Release",
		trace.WithAttributes(attribute.String("order.id", orderID)))
	defer func() { c.finishSpan(span, err) }()

	released, err := c.settleOrder(ctx, orderID, domain.ReservationReleased, domain.ReleaseCancelled)
	if len(released) > 0 {
		c.metrics.ObserveTransitions(string(domain.ReservationReleased), "order", len(released))
		c.publish(ctx, domain.NewReservationReleasedEvent(orderID, domain.ReleaseCancelled, domain.LinesOf(released)))
		c.publishStockAdjusted(ctx, productIDs(released), "ORDER_RELEASED")
	}
	return released, err
}

func (c *ReservationCoordinator) settleOrder(
	ctx context.Context,
	orderID string,
	to domain.ReservationStatus,
	reason domain.ReleaseReason,
) ([]domain.Reservation, error) {
	if orderID == "" {
		return nil, domain.InvalidRequest("missing orderId")
	}
	rows, err := c.reservations.ListByOrderAndStatus(ctx, orderID, domain.ReservationReserved)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		log.Debug().Str("orderId", orderID).Str("to", string(to)).Msg("no active holds, nothing to do")
		return nil, nil
	}

	done := make([]domain.Reservation, 0, len(rows))
	for _, r := range rows {
		applied, err := c.transition(ctx, r.ID, to, reason)
		if err != nil {
			log.Error().Err(err).Str("orderId", orderID).Str("reservationId", r.ID.String()).
				Str("to", string(to)).Msg("transition failed, retry the call to finish")
			return done, err
		}
		if applied != nil {
			done = append(done, *applied)
		}
	}
	log.Info().Str("orderId", orderID).Str("to", string(to)).Int("rows", len(done)).Msg("holds settled")
	return done, nil
}

// transition wins the status compare-and-set and repairs the ledger in the
// same unit of work, using the quantity of the row the write changed. A
// concurrent resize between listing and settling is therefore settled at
// its new size. Losing the CAS returns nil.
func (c *ReservationCoordinator) transition(
	ctx context.Context,
	id uuid.UUID,
	to domain.ReservationStatus,
	reason domain.ReleaseReason,
) (*domain.Reservation, error) {
	var applied *domain.Reservation
	err := c.uow.Do(ctx, func(ctx context.Context, ledger domain.StockLedger, reservations domain.ReservationStore) error {
		applied = nil
		row, err := reservations.Transition(ctx, id, domain.ReservationReserved, to, c.now(), reason)
		if err != nil || row == nil {
			return err
		}
		switch to {
		case domain.ReservationConfirmed:
			err = ledger.Consume(ctx, row.ProductID, row.Quantity)
		default:
			err = ledger.ReleaseHold(ctx, row.ProductID, row.Quantity)
		}
		if err != nil {
			return err
		}
		applied = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	if applied == nil {
		log.Debug().Str("reservationId", id.String()).Str("to", string(to)).
			Msg("reservation already left RESERVED, skipping")
	}
	return applied, nil
}

// ReleaseExpired releases holds older than the hold timeout. It returns
// how many rows this pass released.
func (c *ReservationCoordinator) ReleaseExpired(ctx context.Context) (_ int, err error) {
	ctx, span := tracer.Start(ctx, "ReservationCoordinator.ReleaseExpired")
	defer func() { c.finishSpan(span, err) }()

	cutoff := c.now().Add(-c.holdTimeout)
	rows, err := c.reservations.ListExpired(ctx, cutoff, c.sweepBatch)
	if err != nil {
		return 0, err
	}

	byOrder := make(map[string][]domain.Reservation)
	var order []string
	var firstErr error
	for _, r := range rows {
		applied, err := c.transition(ctx, r.ID, domain.ReservationReleased, domain.ReleaseExpired)
		if err != nil {
			log.Error().Err(err).Str("reservationId", r.ID.String()).Msg("sweep: release failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if applied == nil {
			continue
		}
		if _, seen := byOrder[applied.OrderID]; !seen {
			order = append(order, applied.OrderID)
		}
		byOrder[applied.OrderID] = append(byOrder[applied.OrderID], *applied)
	}

	released := 0
	for _, orderID := range order {
		rs := byOrder[orderID]
		released += len(rs)
		log.Info().Str("orderId", orderID).Int("rows", len(rs)).Msg("sweep: expired holds released")
		c.publish(ctx, domain.NewReservationReleasedEvent(orderID, domain.ReleaseExpired, domain.LinesOf(rs)))
		c.publishStockAdjusted(ctx, productIDs(rs), "HOLD_EXPIRED")
	}
	c.metrics.ObserveTransitions(string(domain.ReservationReleased), "expiry", released)
	return released, firstErr
}

// ReleaseReservation releases a single hold. Unlike Release it treats an
// already terminal row as a caller error.
func (c *ReservationCoordinator) ReleaseReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	r, err := c.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, errors.Wrapf(domain.ErrReservationNotFound, "reservation %s", id)
	}
	if r.Status.Terminal() {
		terr := &domain.TransitionError{ReservationID: id, From: r.Status, To: domain.ReservationReleased}
		log.Warn().Err(terr).Str("orderId", r.OrderID).Msg("ReleaseReservation: rejected")
		return nil, terr
	}

	applied, err := c.transition(ctx, id, domain.ReservationReleased, domain.ReleaseAdjusted)
	if err != nil {
		return nil, err
	}
	if applied == nil {
		// Lost to a concurrent confirm, release or sweep.
		current, err := c.reservations.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &domain.TransitionError{ReservationID: id, From: current.Status, To: domain.ReservationReleased}
	}
	c.metrics.ObserveTransitions(string(domain.ReservationReleased), "manual", 1)
	c.publish(ctx, domain.NewReservationReleasedEvent(applied.OrderID, domain.ReleaseAdjusted, domain.LinesOf([]domain.Reservation{*applied})))
	c.publishStockAdjusted(ctx, []string{applied.ProductID}, "RESERVATION_RELEASED")
	return applied, nil
}

// AuditReport compares the ledger's reserved quantity with the RESERVED rows.
type AuditReport struct {
	ProductID    string `json:"productId"`
	OnHand       int    `json:"onHand"`
	Reserved     int    `json:"reserved"`
	ReservedRows int    `json:"reservedRows"`
	Drift        int    `json:"drift"`
	Consistent   bool   `json:"consistent"`
}

func (c *ReservationCoordinator) Audit(ctx context.Context, productID string) (*AuditReport, error) {
	item, err := c.ledger.Get(ctx, productID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.UnknownProduct(productID)
	}
	sum, err := c.reservations.SumReserved(ctx, productID)
	if err != nil {
		return nil, err
	}
	report := &AuditReport{
		ProductID:    productID,
		OnHand:       item.OnHand,
		Reserved:     item.Reserved,
		ReservedRows: sum,
		Drift:        item.Reserved - sum,
	}
	report.Consistent = report.Drift == 0 && item.Valid()
	if !report.Consistent {
		c.metrics.ObserveDrift()
		log.Warn().Str("productId", productID).Int("reserved", item.Reserved).
			Int("reservedRows", sum).Int("onHand", item.OnHand).Msg("ledger drift detected")
	}
	return report, nil
}

// publish is best effort: a lost notification never undoes ledger state.
func (c *ReservationCoordinator) publish(ctx context.Context, ev primitives.Event) {
	if c.events == nil {
		return
	}
	if err := c.events.Enqueue(context.WithoutCancel(ctx), ev); err != nil {
		log.Warn().Err(err).Str("event", ev.GetRoutingKey()).Msg("event notification failed")
	}
}

func (c *ReservationCoordinator) publishStockAdjusted(ctx context.Context, products []string, reason string) {
	if c.events == nil {
		return
	}
	for _, productID := range products {
		item, err := c.ledger.Get(ctx, productID)
		if err != nil || item == nil {
			continue
		}
		c.publish(ctx, domain.NewCatalogStockAdjustedEvent(*item, reason))
	}
}

func (c *ReservationCoordinator) finishSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, domain.ErrInsufficientStock) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func productIDs(rs []domain.Reservation) []string {
	seen := make(map[string]struct{}, len(rs))
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		if _, ok := seen[r.ProductID]; ok {
			continue
		}
		seen[r.ProductID] = struct{}{}
		out = append(out, r.ProductID)
	}
	return out
}
