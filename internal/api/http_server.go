package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/application"
	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/domain"
	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/metrics"
)

const (
	maxBodyBytes = 1 << 20

	defaultPageLimit = 50
	maxPageLimit     = 500
)

var tracer = otel.Tracer("github.com/RodolfoDevApp/eventshop-stockledger-go/internal/api")

// Server groups the dependencies of the HTTP layer.
type Server struct {
	coord        *application.ReservationCoordinator
	adjustments  *application.StockAdjustmentService
	monitor      *application.ReplenishmentMonitor
	ledger       domain.StockLedger
	reservations domain.ReservationStore
	metrics      *metrics.Metrics
	ready        func(ctx context.Context) error
}

type Deps struct {
	Coordinator  *application.ReservationCoordinator
	Adjustments  *application.StockAdjustmentService
	Monitor      *application.ReplenishmentMonitor
	Ledger       domain.StockLedger
	Reservations domain.ReservationStore
	Metrics      *metrics.Metrics
	// Ready is optional; /health reports 503 while it fails.
	Ready func(ctx context.Context) error
}

func NewServer(d Deps) *Server {
	return &Server{
		coord:        d.Coordinator,
		adjustments:  d.Adjustments,
		monitor:      d.Monitor,
		ledger:       d.Ledger,
		reservations: d.Reservations,
		metrics:      d.Metrics,
		ready:        d.Ready,
	}
}

// RegisterRoutes registers every HTTP route on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	s.handle(mux, "GET /health", s.handleHealth)
	s.handle(mux, "GET /api/inventory", s.handleListInventory)
	s.handle(mux, "GET /api/inventory/alerts", s.handleAlerts)
	s.handle(mux, "GET /api/inventory/{productId}", s.handleGetInventory)
	s.handle(mux, "GET /api/inventory/{productId}/audit", s.handleAudit)
	s.handle(mux, "POST /api/inventory/{productId}/receive", s.handleReceive)
	s.handle(mux, "POST /api/inventory/{productId}/write-off", s.handleWriteOff)
	s.handle(mux, "POST /api/reservations", s.handleReserve)
	s.handle(mux, "GET /api/reservations/{orderId}", s.handleGetReservations)
	s.handle(mux, "POST /api/reservations/{orderId}/confirm", s.handleConfirm)
	s.handle(mux, "POST /api/reservations/{orderId}/release", s.handleRelease)
	s.handle(mux, "DELETE /api/reservations/by-id/{id}", s.handleReleaseByID)
	s.handle(mux, "GET /swagger.json", s.handleSwaggerJson)
	mux.Handle("GET /metrics", metrics.Handler())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// handle wraps h with a server span and request metrics labelled by pattern.
func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, pattern, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", rec.status))
		s.metrics.ObserveRequest(pattern, rec.status, float64(time.Since(start).Microseconds())/1000)
	})
}

type healthResponse struct {
	Status string `json:"status"`
}

type inventoryResponse struct {
	ProductID       string     `json:"productId"`
	OnHand          int        `json:"onHand"`
	Reserved        int        `json:"reserved"`
	Available       int        `json:"available"`
	MinStockLevel   int        `json:"minStockLevel"`
	ReorderPoint    int        `json:"reorderPoint"`
	ReorderQuantity int        `json:"reorderQuantity"`
	LastRestockAt   *time.Time `json:"lastRestockAt,omitempty"`
	UpdatedAtUtc    time.Time  `json:"updatedAtUtc"`
}

func toInventoryResponse(item domain.StockItem) inventoryResponse {
	return inventoryResponse{
		ProductID:       item.ProductID,
		OnHand:          item.OnHand,
		Reserved:        item.Reserved,
		Available:       item.Available(),
		MinStockLevel:   item.MinStockLevel,
		ReorderPoint:    item.ReorderPoint,
		ReorderQuantity: item.ReorderQuantity,
		LastRestockAt:   item.LastRestockAt,
		UpdatedAtUtc:    item.UpdatedAtUtc,
	}
}

type reservationResponse struct {
	ID             uuid.UUID  `json:"id"`
	OrderID        string     `json:"orderId"`
	ProductID      string     `json:"productId"`
	Quantity       int        `json:"quantity"`
	Status         string     `json:"status"`
	ReleaseReason  string     `json:"releaseReason,omitempty"`
	CreatedAtUtc   time.Time  `json:"createdAtUtc"`
	ConfirmedAtUtc *time.Time `json:"confirmedAtUtc,omitempty"`
	ReleasedAtUtc  *time.Time `json:"releasedAtUtc,omitempty"`
}

func toReservationResponses(rs []domain.Reservation) []reservationResponse {
	out := make([]reservationResponse, 0, len(rs))
	for _, r := range rs {
		out = append(out, reservationResponse{
			ID:             r.ID,
			OrderID:        r.OrderID,
			ProductID:      r.ProductID,
			Quantity:       r.Quantity,
			Status:         string(r.Status),
			ReleaseReason:  string(r.ReleaseReason),
			CreatedAtUtc:   r.CreatedAtUtc,
			ConfirmedAtUtc: r.ConfirmedAtUtc,
			ReleasedAtUtc:  r.ReleasedAtUtc,
		})
	}
	return out
}

type reserveRequest struct {
	OrderID string `json:"orderId"`
	Lines   []struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	} `json:"lines"`
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

type errorResponse struct {
	Error     string `json:"error"`
	ProductID string `json:"productId,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
}

// Handler GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// Handler GET /api/inventory/{productId}
func (s *Server) handleGetInventory(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productId")
	item, err := s.ledger.Get(r.Context(), productID)
	if err != nil {
		writeError(w, err)
		return
	}
	if item == nil {
		writeError(w, domain.UnknownProduct(productID))
		return
	}
	writeJSON(w, http.StatusOK, toInventoryResponse(*item))
}

// Handler GET /api/inventory?limit=&offset=
func (s *Server) handleListInventory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageLimit)
	if err != nil || limit < 1 || limit > maxPageLimit {
		writeError(w, domain.InvalidRequest("limit must be between 1 and "+strconv.Itoa(maxPageLimit)))
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, domain.InvalidRequest("offset must be a non-negative integer"))
		return
	}
	items, err := s.ledger.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]inventoryResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toInventoryResponse(item))
	}
	writeJSON(w, http.StatusOK, out)
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// Handler GET /api/inventory/alerts
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.monitor.Scan(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if alerts == nil {
		alerts = []domain.StockAlert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

// Handler GET /api/inventory/{productId}/audit
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	report, err := s.coord.Audit(r.Context(), r.PathValue("productId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Handler POST /api/inventory/{productId}/receive
func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if !decode(w, r, &req) {
		return
	}
	item, err := s.adjustments.Receive(r.Context(), r.PathValue("productId"), req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInventoryResponse(*item))
}

// Handler POST /api/inventory/{productId}/write-off
func (s *Server) handleWriteOff(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if !decode(w, r, &req) {
		return
	}
	item, err := s.adjustments.WriteOff(r.Context(), r.PathValue("productId"), req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInventoryResponse(*item))
}

// Handler POST /api/reservations
func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if !decode(w, r, &req) {
		return
	}
	lines := make([]domain.ReservationLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, domain.ReservationLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	rs, err := s.coord.Reserve(r.Context(), req.OrderID, lines)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservationResponses(rs))
}

// Handler GET /api/reservations/{orderId}
func (s *Server) handleGetReservations(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("orderId")
	rs, err := s.reservations.ListByOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(rs) == 0 {
		writeError(w, errors.Wrapf(domain.ErrReservationNotFound, "order %s", orderID))
		return
	}
	writeJSON(w, http.StatusOK, toReservationResponses(rs))
}

// Handler POST /api/reservations/{orderId}/confirm
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	rs, err := s.coord.Confirm(r.Context(), r.PathValue("orderId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationResponses(rs))
}

// Handler POST /api/reservations/{orderId}/release
func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	rs, err := s.coord.Release(r.Context(), r.PathValue("orderId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationResponses(rs))
}

// Handler DELETE /api/reservations/by-id/{id}
func (s *Server) handleReleaseByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, domain.InvalidRequest("reservation id is not a uuid"))
		return
	}
	res, err := s.coord.ReleaseReservation(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationResponses([]domain.Reservation{*res})[0])
}

// Handler GET /swagger.json
func (s *Server) handleSwaggerJson(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(openAPISpec))
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, domain.InvalidRequest("malformed JSON body: "+err.Error()))
		return false
	}
	return true
}

// writeError maps the domain taxonomy onto status codes.
func writeError(w http.ResponseWriter, err error) {
	var ise *domain.InsufficientStockError
	switch {
	case errors.As(err, &ise):
		available := ise.Available
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:     "insufficient stock",
			ProductID: ise.ProductID,
			Requested: ise.Requested,
			Available: &available,
		})
	case errors.Is(err, domain.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrUnknownProduct), errors.Is(err, domain.ErrReservationNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case domain.Retryable(err):
		log.Error().Err(err).Msg("request failed on a transient fault")
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "temporarily unavailable, retry"})
	default:
		log.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("writeJSON error")
	}
}
