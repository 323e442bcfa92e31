package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/application"
	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/domain"
	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/infrastructure/memory"
	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/metrics"
)

type testServer struct {
	store *memory.Store
	mux   *http.ServeMux
}

func newTestServer(t *testing.T, stock map[string]int) *testServer {
	t.Helper()
	store := memory.NewStore()
	for productID, onHand := range stock {
		_, err := store.Ledger().Create(context.Background(), domain.NewStockItem(productID, onHand))
		require.NoError(t, err)
	}
	outbox := application.NewOutboxWriter(memory.NewOutbox())
	m := metrics.New(prometheus.NewRegistry())
	coord := application.NewReservationCoordinator(store, store.Ledger(), store.Reservations(), outbox, application.WithMetrics(m))

	mux := http.NewServeMux()
	NewServer(Deps{
		Coordinator:  coord,
		Adjustments:  application.NewStockAdjustmentService(store, outbox),
		Monitor:      application.NewReplenishmentMonitor(store.Ledger(), nil, m),
		Ledger:       store.Ledger(),
		Reservations: store.Reservations(),
		Metrics:      m,
	}).RegisterRoutes(mux)
	return &testServer{store: store, mux: mux}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[healthResponse](t, rec).Status)
}

func TestReserveConfirmFlow(t *testing.T) {
	s := newTestServer(t, map[string]int{"p-1": 10, "p-2": 5})

	rec := s.do(t, http.MethodPost, "/api/reservations",
		`{"orderId":"o-1","lines":[{"productId":"p-1","quantity":3},{"productId":"p-2","quantity":5}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	held := decodeBody[[]reservationResponse](t, rec)
	require.Len(t, held, 2)
	assert.Equal(t, "RESERVED", held[0].Status)

	rec = s.do(t, http.MethodGet, "/api/inventory/p-2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeBody[inventoryResponse](t, rec).Available)

	rec = s.do(t, http.MethodPost, "/api/reservations/o-1/confirm", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]reservationResponse](t, rec), 2)

	rec = s.do(t, http.MethodPost, "/api/reservations/o-1/confirm", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]reservationResponse](t, rec))

	rec = s.do(t, http.MethodGet, "/api/inventory/p-1", "")
	inv := decodeBody[inventoryResponse](t, rec)
	assert.Equal(t, 7, inv.OnHand)
	assert.Equal(t, 0, inv.Reserved)

	rec = s.do(t, http.MethodGet, "/api/reservations/o-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	for _, r := range decodeBody[[]reservationResponse](t, rec) {
		assert.Equal(t, "CONFIRMED", r.Status)
		assert.NotNil(t, r.ConfirmedAtUtc)
	}
}

func TestReserve_InsufficientStockNamesTheProduct(t *testing.T) {
	s := newTestServer(t, map[string]int{"p-1": 10, "p-2": 1})

	rec := s.do(t, http.MethodPost, "/api/reservations",
		`{"orderId":"o-1","lines":[{"productId":"p-1","quantity":3},{"productId":"p-2","quantity":2}]}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody[errorResponse](t, rec)
	assert.Equal(t, "p-2", body.ProductID)
	require.NotNil(t, body.Available)
	assert.Equal(t, 1, *body.Available)

	rec = s.do(t, http.MethodGet, "/api/inventory/p-1", "")
	assert.Equal(t, 10, decodeBody[inventoryResponse](t, rec).Available)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t, map[string]int{"p-1": 10})

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"malformed body", http.MethodPost, "/api/reservations", `{"orderId":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/reservations", `{"order":"o-1"}`, http.StatusBadRequest},
		{"zero quantity", http.MethodPost, "/api/reservations", `{"orderId":"o-1","lines":[{"productId":"p-1","quantity":0}]}`, http.StatusBadRequest},
		{"quantity past int32", http.MethodPost, "/api/reservations", `{"orderId":"o-1","lines":[{"productId":"p-1","quantity":2147483648}]}`, http.StatusBadRequest},
		{"merged quantity past int32", http.MethodPost, "/api/reservations", `{"orderId":"o-1","lines":[{"productId":"p-1","quantity":2147483647},{"productId":"p-1","quantity":1}]}`, http.StatusBadRequest},
		{"unknown product", http.MethodGet, "/api/inventory/ghost", "", http.StatusNotFound},
		{"unknown order", http.MethodGet, "/api/reservations/ghost", "", http.StatusNotFound},
		{"bad reservation id", http.MethodDelete, "/api/reservations/by-id/nope", "", http.StatusBadRequest},
		{"unknown reservation", http.MethodDelete, "/api/reservations/by-id/6b1c7a3e-2f4d-4e55-9a1b-0c2d3e4f5a6b", "", http.StatusNotFound},
		{"audit unknown", http.MethodGet, "/api/inventory/ghost/audit", "", http.StatusNotFound},
		{"write-off unknown", http.MethodPost, "/api/inventory/ghost/write-off", `{"quantity":1}`, http.StatusNotFound},
		{"wrong method", http.MethodPut, "/api/reservations", "", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestListInventory_PagesByProductID(t *testing.T) {
	s := newTestServer(t, map[string]int{"p-3": 3, "p-1": 1, "p-2": 2})

	rec := s.do(t, http.MethodGet, "/api/inventory", "")
	require.Equal(t, http.StatusOK, rec.Code)
	all := decodeBody[[]inventoryResponse](t, rec)
	require.Len(t, all, 3)
	assert.Equal(t, "p-1", all[0].ProductID)
	assert.Equal(t, "p-3", all[2].ProductID)

	rec = s.do(t, http.MethodGet, "/api/inventory?limit=1&offset=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[[]inventoryResponse](t, rec)
	require.Len(t, page, 1)
	assert.Equal(t, "p-2", page[0].ProductID)
	assert.Equal(t, 2, page[0].OnHand)

	rec = s.do(t, http.MethodGet, "/api/inventory?offset=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]inventoryResponse](t, rec))

	for _, q := range []string{"limit=0", "limit=501", "limit=abc", "offset=-1"} {
		rec = s.do(t, http.MethodGet, "/api/inventory?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestPersistenceFaultIs503(t *testing.T) {
	s := newTestServer(t, map[string]int{"p-1": 10})
	s.store.SetFaultHook(func(string) error { return errors.New("connection refused") })

	rec := s.do(t, http.MethodPost, "/api/reservations", `{"orderId":"o-1","lines":[{"productId":"p-1","quantity":1}]}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestReleaseByID_SecondCallConflicts(t *testing.T) {
	s := newTestServer(t, map[string]int{"p-1": 10})

	rec := s.do(t, http.MethodPost, "/api/reservations", `{"orderId":"o-1","lines":[{"productId":"p-1","quantity":2}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[[]reservationResponse](t, rec)[0].ID.String()

	rec = s.do(t, http.MethodDelete, "/api/reservations/by-id/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ADJUSTED", decodeBody[reservationResponse](t, rec).ReleaseReason)

	rec = s.do(t, http.MethodDelete, "/api/reservations/by-id/"+id, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdjustmentsAndAlerts(t *testing.T) {
	s := newTestServer(t, map[string]int{"p-1": 12})

	rec := s.do(t, http.MethodPost, "/api/inventory/p-1/write-off", `{"quantity":10}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decodeBody[inventoryResponse](t, rec).OnHand)

	rec = s.do(t, http.MethodGet, "/api/inventory/alerts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	alerts := decodeBody[[]domain.StockAlert](t, rec)
	assert.Len(t, alerts, 2)

	rec = s.do(t, http.MethodPost, "/api/inventory/p-1/receive", `{"quantity":100}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, decodeBody[inventoryResponse](t, rec).LastRestockAt)

	rec = s.do(t, http.MethodGet, "/api/inventory/alerts", "")
	assert.Empty(t, decodeBody[[]domain.StockAlert](t, rec))

	rec = s.do(t, http.MethodGet, "/api/inventory/p-1/audit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[application.AuditReport](t, rec).Consistent)
}

func TestSwaggerAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/swagger.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, json.Valid(rec.Body.Bytes()))

	rec = s.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
