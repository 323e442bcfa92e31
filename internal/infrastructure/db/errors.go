package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"

	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/domain"
)

// Postgres error codes the ledger reacts to.
const (
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
	codeAdminShutdown        = "57P01"
)

// classify maps driver errors onto the domain taxonomy. Anything that a
// retry could fix becomes ErrPersistenceUnavailable.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return domain.Unavailable(err, op)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeUniqueViolation:
			return errors.Wrapf(domain.ErrConcurrentModification, "%s: %s", op, pgErr.ConstraintName)
		case pgErr.Code == codeCheckViolation:
			return errors.Wrapf(domain.ErrLedgerInconsistent, "%s: %s", op, pgErr.ConstraintName)
		case pgErr.Code == codeSerializationFailure,
			pgErr.Code == codeDeadlockDetected,
			pgErr.Code == codeLockNotAvailable,
			pgErr.Code == codeQueryCanceled,
			pgErr.Code == codeAdminShutdown,
			strings.HasPrefix(pgErr.Code, "08"):
			return domain.Unavailable(err, op)
		}
		return errors.Wrap(err, op)
	}

	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return domain.Unavailable(err, op)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return domain.Unavailable(err, op)
	}
	return errors.Wrap(err, op)
}
