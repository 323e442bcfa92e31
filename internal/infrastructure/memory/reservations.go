package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/domain"
)

// Reservations implements domain.ReservationStore over a Store.
type Reservations struct {
	s *Store
	j *journal
}

func (r *Reservations) Insert(_ context.Context, res *domain.Reservation) error {
	if err := r.s.injected("insert_reservation"); err != nil {
		return err
	}
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}
	r.s.resMu.Lock()
	defer r.s.resMu.Unlock()

	key := activeKey{res.OrderID, res.ProductID}
	if res.Status == domain.ReservationReserved {
		if _, taken := r.s.active[key]; taken {
			return errors.Wrapf(domain.ErrConcurrentModification,
				"order %s already holds product %s", res.OrderID, res.ProductID)
		}
		r.s.active[key] = res.ID
	}
	cp := *res
	r.s.reservations[res.ID] = &cp

	id := res.ID
	r.j.record(func() {
		r.s.resMu.Lock()
		defer r.s.resMu.Unlock()
		delete(r.s.reservations, id)
		if r.s.active[key] == id {
			delete(r.s.active, key)
		}
	})
	return nil
}

func (r *Reservations) GetByID(_ context.Context, id uuid.UUID) (*domain.Reservation, error) {
	r.s.resMu.RLock()
	defer r.s.resMu.RUnlock()
	res, ok := r.s.reservations[id]
	if !ok {
		return nil, nil
	}
	cp := *res
	return &cp, nil
}

func (r *Reservations) FindActive(_ context.Context, orderID, productID string) (*domain.Reservation, error) {
	r.s.resMu.RLock()
	defer r.s.resMu.RUnlock()
	id, ok := r.s.active[activeKey{orderID, productID}]
	if !ok {
		return nil, nil
	}
	cp := *r.s.reservations[id]
	return &cp, nil
}

func (r *Reservations) ListByOrder(_ context.Context, orderID string) ([]domain.Reservation, error) {
	return r.filter(func(res *domain.Reservation) bool {
		return res.OrderID == orderID
	}), nil
}

func (r *Reservations) ListByOrderAndStatus(
	_ context.Context,
	orderID string,
	status domain.ReservationStatus,
) ([]domain.Reservation, error) {
	return r.filter(func(res *domain.Reservation) bool {
		return res.OrderID == orderID && res.Status == status
	}), nil
}

func (r *Reservations) ListExpired(_ context.Context, olderThan time.Time, limit int) ([]domain.Reservation, error) {
	out := r.filter(func(res *domain.Reservation) bool {
		return res.Expired(olderThan)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Reservations) SumReserved(_ context.Context, productID string) (int, error) {
	sum := 0
	for _, res := range r.filter(func(res *domain.Reservation) bool {
		return res.ProductID == productID && res.Status == domain.ReservationReserved
	}) {
		sum += res.Quantity
	}
	return sum, nil
}

func (r *Reservations) Transition(
	_ context.Context,
	id uuid.UUID,
	from, to domain.ReservationStatus,
	at time.Time,
	reason domain.ReleaseReason,
) (*domain.Reservation, error) {
	if err := r.s.injected("transition_reservation"); err != nil {
		return nil, err
	}
	r.s.resMu.Lock()
	defer r.s.resMu.Unlock()

	res, ok := r.s.reservations[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrReservationNotFound, "reservation %s", id)
	}
	if res.Status != from {
		return nil, nil
	}
	before := *res
	if err := res.Apply(to, at, reason); err != nil {
		return nil, err
	}
	key := activeKey{res.OrderID, res.ProductID}
	if r.s.active[key] == id {
		delete(r.s.active, key)
	}

	r.j.record(func() {
		r.s.resMu.Lock()
		defer r.s.resMu.Unlock()
		*r.s.reservations[id] = before
		if before.Status == domain.ReservationReserved {
			r.s.active[key] = id
		}
	})
	applied := *res
	return &applied, nil
}

func (r *Reservations) UpdateQuantity(_ context.Context, id uuid.UUID, expected, qty int) (bool, error) {
	if err := r.s.injected("update_reservation_quantity"); err != nil {
		return false, err
	}
	r.s.resMu.Lock()
	defer r.s.resMu.Unlock()

	res, ok := r.s.reservations[id]
	if !ok {
		return false, errors.Wrapf(domain.ErrReservationNotFound, "reservation %s", id)
	}
	if res.Status != domain.ReservationReserved || res.Quantity != expected {
		return false, nil
	}
	res.Quantity = qty
	res.UpdatedAtUtc = time.Now().UTC()

	r.j.record(func() {
		r.s.resMu.Lock()
		defer r.s.resMu.Unlock()
		r.s.reservations[id].Quantity = expected
	})
	return true, nil
}

// filter returns copies ordered by creation time.
func (r *Reservations) filter(keep func(*domain.Reservation) bool) []domain.Reservation {
	r.s.resMu.RLock()
	defer r.s.resMu.RUnlock()
	var out []domain.Reservation
	for _, res := range r.s.reservations {
		if keep(res) {
			out = append(out, *res)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAtUtc.Equal(out[j].CreatedAtUtc) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAtUtc.Before(out[j].CreatedAtUtc)
	})
	return out
}
