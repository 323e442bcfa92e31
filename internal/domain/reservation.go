package domain

import (
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "RESERVED"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationReleased  ReservationStatus = "RELEASED"
)

func (s ReservationStatus) Terminal() bool {
	return s == ReservationConfirmed || s == ReservationReleased
}

// ReleaseReason records why a hold left RESERVED without being confirmed.
type ReleaseReason string

const (
	ReleaseCancelled   ReleaseReason = "CANCELLED"
	ReleaseExpired     ReleaseReason = "EXPIRED"
	ReleaseCompensated ReleaseReason = "COMPENSATED"
	ReleaseAdjusted    ReleaseReason = "ADJUSTED"
)

// Reservation is a hold of Quantity units of one product for one order.
type Reservation struct {
	ID             uuid.UUID
	OrderID        string
	ProductID      string
	Quantity       int
	Status         ReservationStatus
	ReleaseReason  ReleaseReason
	CreatedAtUtc   time.Time
	ConfirmedAtUtc *time.Time
	ReleasedAtUtc  *time.Time
	UpdatedAtUtc   time.Time
}

func NewReservation(orderID, productID string, qty int) *Reservation {
	now := time.Now().UTC()
	return &Reservation{
		ID:           uuid.New(),
		OrderID:      orderID,
		ProductID:    productID,
		Quantity:     qty,
		Status:       ReservationReserved,
		CreatedAtUtc: now,
		UpdatedAtUtc: now,
	}
}

// CanTransition allows only RESERVED -> CONFIRMED and RESERVED -> RELEASED.
func CanTransition(from, to ReservationStatus) bool {
	return from == ReservationReserved && to.Terminal()
}

// Apply moves the reservation to a terminal state, stamping the matching
// timestamp. Store implementations use it after winning the status CAS.
func (r *Reservation) Apply(to ReservationStatus, at time.Time, reason ReleaseReason) error {
	if !CanTransition(r.Status, to) {
		return &TransitionError{ReservationID: r.ID, From: r.Status, To: to}
	}
	at = at.UTC()
	r.Status = to
	r.UpdatedAtUtc = at
	switch to {
	case ReservationConfirmed:
		r.ConfirmedAtUtc = &at
	case ReservationReleased:
		r.ReleasedAtUtc = &at
		r.ReleaseReason = reason
	}
	return nil
}

// Expired reports whether the hold is still active and was placed before
// cutoff, which is now minus the hold timeout.
func (r *Reservation) Expired(cutoff time.Time) bool {
	return r.Status == ReservationReserved && r.CreatedAtUtc.Before(cutoff)
}

// MaxLineQuantity is the largest quantity one product may carry in a single
// request, after duplicates are merged. Ledger columns are 32-bit.
const MaxLineQuantity = math.MaxInt32

// ReservationLine is one requested (product, quantity) pair of a Reserve call.
type ReservationLine struct {
	ProductID string
	Quantity  int
}

// MergeLines validates the lines and folds duplicate products together,
// keeping the order in which each product first appeared.
func MergeLines(lines []ReservationLine) ([]ReservationLine, error) {
	if len(lines) == 0 {
		return nil, InvalidRequest("no lines in reservation request")
	}
	idx := make(map[string]int, len(lines))
	merged := make([]ReservationLine, 0, len(lines))
	for _, l := range lines {
		if l.ProductID == "" {
			return nil, InvalidRequest("line without productId")
		}
		if l.Quantity <= 0 {
			return nil, InvalidRequest("quantity must be greater than 0 for product " + l.ProductID)
		}
		if l.Quantity > MaxLineQuantity {
			return nil, tooLarge(l.ProductID)
		}
		if i, ok := idx[l.ProductID]; ok {
			if merged[i].Quantity > MaxLineQuantity-l.Quantity {
				return nil, tooLarge(l.ProductID)
			}
			merged[i].Quantity += l.Quantity
			continue
		}
		idx[l.ProductID] = len(merged)
		merged = append(merged, l)
	}
	return merged, nil
}

func tooLarge(productID string) error {
	return InvalidRequest("quantity exceeds " + strconv.Itoa(MaxLineQuantity) + " for product " + productID)
}
