package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/domain"
)

const reservationColumns = `
        id, order_id, product_id, quantity, status, coalesce(release_reason, ''),
        created_at_utc, confirmed_at_utc, released_at_utc, updated_at_utc`

type PgReservationStore struct {
	db dbtx
}

func NewPgReservationStore(db *sql.DB) *PgReservationStore {
	return &PgReservationStore{db: db}
}

func scanReservation(row scanner) (*domain.Reservation, error) {
	var r domain.Reservation
	var status, reason string
	var confirmedAt, releasedAt sql.NullTime
	if err := row.Scan(
		&r.ID,
		&r.OrderID,
		&r.ProductID,
		&r.Quantity,
		&status,
		&reason,
		&r.CreatedAtUtc,
		&confirmedAt,
		&releasedAt,
		&r.UpdatedAtUtc,
	); err != nil {
		return nil, err
	}
	r.Status = domain.ReservationStatus(status)
	r.ReleaseReason = domain.ReleaseReason(reason)
	if confirmedAt.Valid {
		t := confirmedAt.Time.UTC()
		r.ConfirmedAtUtc = &t
	}
	if releasedAt.Valid {
		t := releasedAt.Time.UTC()
		r.ReleasedAtUtc = &t
	}
	return &r, nil
}

func (s *PgReservationStore) Insert(ctx context.Context, r *domain.Reservation) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAtUtc.IsZero() {
		r.CreatedAtUtc = time.Now().UTC()
	}
	if r.UpdatedAtUtc.IsZero() {
		r.UpdatedAtUtc = r.CreatedAtUtc
	}
	q := `
        insert into inventory_reservations
        (id, order_id, product_id, quantity, status, release_reason,
         created_at_utc, confirmed_at_utc, released_at_utc, updated_at_utc)
        values ($1,$2,$3,$4,$5,nullif($6,''),$7,$8,$9,$10)
    `
	_, err := s.db.ExecContext(
		ctx, q,
		r.ID,
		r.OrderID,
		r.ProductID,
		r.Quantity,
		string(r.Status),
		string(r.ReleaseReason),
		r.CreatedAtUtc,
		r.ConfirmedAtUtc,
		r.ReleasedAtUtc,
		r.UpdatedAtUtc,
	)
	return classify(err, "insert reservation")
}

func (s *PgReservationStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	q := `select ` + reservationColumns + `
        from inventory_reservations
        where id = $1`
	r, err := scanReservation(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "get reservation")
	}
	return r, nil
}

func (s *PgReservationStore) FindActive(ctx context.Context, orderID, productID string) (*domain.Reservation, error) {
	q := `select ` + reservationColumns + `
        from inventory_reservations
        where order_id = $1 and product_id = $2 and status = 'RESERVED'`
	r, err := scanReservation(s.db.QueryRowContext(ctx, q, orderID, productID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "find active reservation")
	}
	return r, nil
}

func (s *PgReservationStore) ListByOrder(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	q := `select ` + reservationColumns + `
        from inventory_reservations
        where order_id = $1
        order by created_at_utc, id`
	return s.list(ctx, "list reservations by order", q, orderID)
}

func (s *PgReservationStore) ListByOrderAndStatus(
	ctx context.Context,
	orderID string,
	status domain.ReservationStatus,
) ([]domain.Reservation, error) {
	q := `select ` + reservationColumns + `
        from inventory_reservations
        where order_id = $1 and status = $2
        order by created_at_utc, id`
	return s.list(ctx, "list reservations by order and status", q, orderID, string(status))
}

func (s *PgReservationStore) ListExpired(ctx context.Context, olderThan time.Time, limit int) ([]domain.Reservation, error) {
	q := `select ` + reservationColumns + `
        from inventory_reservations
        where status = 'RESERVED' and created_at_utc < $1
        order by created_at_utc, id
        limit $2`
	return s.list(ctx, "list expired reservations", q, olderThan, limit)
}

func (s *PgReservationStore) SumReserved(ctx context.Context, productID string) (int, error) {
	q := `
        select coalesce(sum(quantity), 0)
        from inventory_reservations
        where product_id = $1 and status = 'RESERVED'
    `
	var sum int
	if err := s.db.QueryRowContext(ctx, q, productID).Scan(&sum); err != nil {
		return 0, classify(err, "sum reserved")
	}
	return sum, nil
}

func (s *PgReservationStore) Transition(
	ctx context.Context,
	id uuid.UUID,
	from, to domain.ReservationStatus,
	at time.Time,
	reason domain.ReleaseReason,
) (*domain.Reservation, error) {
	if !domain.CanTransition(from, to) {
		return nil, &domain.TransitionError{ReservationID: id, From: from, To: to}
	}
	var confirmedAt, releasedAt *time.Time
	if to == domain.ReservationConfirmed {
		confirmedAt = &at
		reason = ""
	} else {
		releasedAt = &at
	}
	q := `
        update inventory_reservations
        set status = $3,
            confirmed_at_utc = coalesce($4, confirmed_at_utc),
            released_at_utc = coalesce($5, released_at_utc),
            release_reason = nullif($6, ''),
            updated_at_utc = $7
        where id = $1 and status = $2
        returning ` + reservationColumns
	row, err := scanReservation(s.db.QueryRowContext(ctx, q, id, string(from), string(to), confirmedAt, releasedAt, string(reason), at))
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, classify(err, "transition reservation")
	}
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, errors.Wrapf(domain.ErrReservationNotFound, "reservation %s", id)
	}
	return nil, nil
}

func (s *PgReservationStore) UpdateQuantity(ctx context.Context, id uuid.UUID, expected, qty int) (bool, error) {
	if qty <= 0 {
		return false, domain.InvalidRequest("reservation quantity must be positive")
	}
	q := `
        update inventory_reservations
        set quantity = $3,
            updated_at_utc = now()
        where id = $1 and quantity = $2 and status = 'RESERVED'
    `
	res, err := s.db.ExecContext(ctx, q, id, expected, qty)
	if err != nil {
		return false, classify(err, "update reservation quantity")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify(err, "update reservation quantity")
	}
	return n == 1, nil
}

func (s *PgReservationStore) list(ctx context.Context, op, q string, args ...any) ([]domain.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(err, op)
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, classify(err, op)
		}
		out = append(out, *r)
	}
	return out, classify(rows.Err(), op)
}
