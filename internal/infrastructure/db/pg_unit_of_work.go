package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/domain"
	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/metrics"
)

// PgUnitOfWork runs each unit in one READ COMMITTED transaction. Row locks
// come from the conditional updates themselves; lock_timeout bounds how
// long a unit waits on a contended product.
type PgUnitOfWork struct {
	db          *sql.DB
	lockTimeout time.Duration
	metrics     *metrics.Metrics
}

func NewPgUnitOfWork(db *sql.DB, lockTimeout time.Duration) *PgUnitOfWork {
	return &PgUnitOfWork{db: db, lockTimeout: lockTimeout}
}

// WithMetrics makes ledgers handed to units of work count anomalies on m.
func (u *PgUnitOfWork) WithMetrics(m *metrics.Metrics) *PgUnitOfWork {
	u.metrics = m
	return u
}

func (u *PgUnitOfWork) Do(ctx context.Context, fn domain.TxFunc) (err error) {
	tx, err := u.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return classify(err, "begin")
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			log.Warn().Err(rbErr).Msg("rollback failed")
		}
	}()

	if u.lockTimeout > 0 {
		stmt := fmt.Sprintf("set local lock_timeout = '%dms'", u.lockTimeout.Milliseconds())
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return classify(err, "set lock_timeout")
		}
	}

	if err = fn(ctx, &PgStockLedger{db: tx, metrics: u.metrics}, &PgReservationStore{db: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return classify(err, "commit")
	}
	return nil
}

var (
	_ domain.UnitOfWork       = (*PgUnitOfWork)(nil)
	_ domain.StockLedger      = (*PgStockLedger)(nil)
	_ domain.ReservationStore = (*PgReservationStore)(nil)
	_ domain.OutboxRepository = (*PgOutboxRepository)(nil)
)
