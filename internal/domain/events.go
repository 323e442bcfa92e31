package domain

import (
	"time"

	"github.com/rodolfodevapp/eventshop-messaging-go/core/primitives"
)

// =========== Incoming payloads ===========

// ProductCreated (catalog.events)
type ProductCreatedPayload struct {
	ProductID     string    `json:"productId"`
	Sku           string    `json:"sku"`
	Name          string    `json:"name"`
	StockQuantity int       `json:"stockQuantity"`
	MinStockLevel *int      `json:"minStockLevel,omitempty"`
	ReorderPoint  *int      `json:"reorderPoint,omitempty"`
	CreatedAtUtc  time.Time `json:"createdAtUtc"`
}

// OrderPlaced (orders.events)
type OrderPlacedLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type OrderPlacedPayload struct {
	OrderID string            `json:"orderId"`
	UserID  string            `json:"userId"`
	Lines   []OrderPlacedLine `json:"lines"`
}

func (p OrderPlacedPayload) ReservationLines() []ReservationLine {
	lines := make([]ReservationLine, 0, len(p.Lines))
	for _, l := range p.Lines {
		lines = append(lines, ReservationLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return lines
}

// OrderCancelled, OrderRejected, OrderConfirmed and PaymentFailed all carry
// just the order reference.
type OrderRefPayload struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
	Reason  string `json:"reason,omitempty"`
}

// =========== Outgoing events ===========

type ReservationLineEvent struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func LinesOf(reservations []Reservation) []ReservationLineEvent {
	lines := make([]ReservationLineEvent, 0, len(reservations))
	for _, r := range reservations {
		lines = append(lines, ReservationLineEvent{ProductID: r.ProductID, Quantity: r.Quantity})
	}
	return lines
}

type StockReservedEvent struct {
	primitives.BaseEvent
	OrderID       string                 `json:"orderId"`
	ReservedAtUtc time.Time              `json:"reservedAtUtc"`
	Lines         []ReservationLineEvent `json:"lines"`
}

func NewStockReservedEvent(orderID string, lines []ReservationLineEvent) *StockReservedEvent {
	ev := &StockReservedEvent{
		BaseEvent:     primitives.NewBaseEvent(),
		OrderID:       orderID,
		ReservedAtUtc: time.Now().UTC(),
		Lines:         lines,
	}
	ev.SetRoutingKey("StockReserved")
	return ev
}

type StockReservationFailedEvent struct {
	primitives.BaseEvent
	OrderID     string    `json:"orderId"`
	ProductID   string    `json:"productId,omitempty"`
	Requested   int       `json:"requested,omitempty"`
	Available   int       `json:"available"`
	Reason      string    `json:"reason"`
	FailedAtUtc time.Time `json:"failedAtUtc"`
}

func NewStockReservationFailedEvent(orderID, reason string, insufficient *InsufficientStockError) *StockReservationFailedEvent {
	ev := &StockReservationFailedEvent{
		BaseEvent:   primitives.NewBaseEvent(),
		OrderID:     orderID,
		Reason:      reason,
		FailedAtUtc: time.Now().UTC(),
	}
	if insufficient != nil {
		ev.ProductID = insufficient.ProductID
		ev.Requested = insufficient.Requested
		ev.Available = insufficient.Available
	}
	ev.SetRoutingKey("StockReservationFailed")
	return ev
}

type ReservationConfirmedEvent struct {
	primitives.BaseEvent
	OrderID        string                 `json:"orderId"`
	ConfirmedAtUtc time.Time              `json:"confirmedAtUtc"`
	Lines          []ReservationLineEvent `json:"lines"`
}

func NewReservationConfirmedEvent(orderID string, lines []ReservationLineEvent) *ReservationConfirmedEvent {
	ev := &ReservationConfirmedEvent{
		BaseEvent:      primitives.NewBaseEvent(),
		OrderID:        orderID,
		ConfirmedAtUtc: time.Now().UTC(),
		Lines:          lines,
	}
	ev.SetRoutingKey("ReservationConfirmed")
	return ev
}

type ReservationReleasedEvent struct {
	primitives.BaseEvent
	OrderID       string                 `json:"orderId"`
	Reason        ReleaseReason          `json:"reason"`
	ReleasedAtUtc time.Time              `json:"releasedAtUtc"`
	Lines         []ReservationLineEvent `json:"lines"`
}

func NewReservationReleasedEvent(orderID string, reason ReleaseReason, lines []ReservationLineEvent) *ReservationReleasedEvent {
	ev := &ReservationReleasedEvent{
		BaseEvent:     primitives.NewBaseEvent(),
		OrderID:       orderID,
		Reason:        reason,
		ReleasedAtUtc: time.Now().UTC(),
		Lines:         lines,
	}
	ev.SetRoutingKey("ReservationReleased")
	return ev
}

// CatalogStockAdjusted (for Catalog, Search, etc.)
type CatalogStockAdjustedEvent struct {
	primitives.BaseEvent
	ProductID         string    `json:"productId"`
	OnHandQuantity    int       `json:"onHandQuantity"`
	ReservedQuantity  int       `json:"reservedQuantity"`
	AvailableQuantity int       `json:"availableQuantity"`
	Reason            string    `json:"reason"`
	OccurredAtUtc     time.Time `json:"occurredAtUtc"`
}

func NewCatalogStockAdjustedEvent(item StockItem, reason string) *CatalogStockAdjustedEvent {
	ev := &CatalogStockAdjustedEvent{
		BaseEvent:         primitives.NewBaseEvent(),
		ProductID:         item.ProductID,
		OnHandQuantity:    item.OnHand,
		ReservedQuantity:  item.Reserved,
		AvailableQuantity: item.Available(),
		Reason:            reason,
		OccurredAtUtc:     time.Now().UTC(),
	}
	ev.SetRoutingKey("CatalogStockAdjusted")
	return ev
}

type StockAlertEvent struct {
	primitives.BaseEvent
	StockAlert
	OccurredAtUtc time.Time `json:"occurredAtUtc"`
}

func NewStockAlertEvent(alert StockAlert) *StockAlertEvent {
	ev := &StockAlertEvent{
		BaseEvent:     primitives.NewBaseEvent(),
		StockAlert:    alert,
		OccurredAtUtc: time.Now().UTC(),
	}
	ev.SetRoutingKey("StockAlert")
	return ev
}
