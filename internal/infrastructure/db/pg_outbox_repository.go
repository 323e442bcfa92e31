package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/domain"
)

// PgOutboxRepository stores outgoing events until the dispatcher has
// published them. Timestamps are epoch seconds on the domain side.
type PgOutboxRepository struct {
	db dbtx
}

func NewPgOutboxRepository(db *sql.DB) *PgOutboxRepository {
	return &PgOutboxRepository{db: db}
}

func epoch(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func scanOutboxMessage(row scanner) (domain.OutboxMessage, error) {
	var msg domain.OutboxMessage
	var occurred time.Time
	if err := row.Scan(&msg.ID, &msg.Type, &msg.PayloadJSON, &occurred, &msg.RetryCount); err != nil {
		return msg, err
	}
	msg.OccurredAtUtc = occurred.Unix()
	return msg, nil
}

func (r *PgOutboxRepository) Insert(ctx context.Context, msg domain.OutboxMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	occurred := time.Now().UTC()
	if msg.OccurredAtUtc != 0 {
		occurred = epoch(msg.OccurredAtUtc)
	}

	q := `
        insert into outbox_messages (id, type, payload_json, occurred_at_utc, retry_count)
        values ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, q, msg.ID, msg.Type, msg.PayloadJSON, occurred, msg.RetryCount)
	return classify(err, "insert outbox message")
}

// GetPendingBatch returns unpublished messages that still have retries
// left, oldest first.
func (r *PgOutboxRepository) GetPendingBatch(ctx context.Context, maxRetry, batchSize int) ([]domain.OutboxMessage, error) {
	q := `
        select id, type, payload_json, occurred_at_utc, retry_count
        from outbox_messages
        where processed_at_utc is null
          and retry_count < $1
        order by occurred_at_utc, id
        limit $2`
	rows, err := r.db.QueryContext(ctx, q, maxRetry, batchSize)
	if err != nil {
		return nil, classify(err, "get pending outbox batch")
	}
	defer rows.Close()

	var batch []domain.OutboxMessage
	for rows.Next() {
		msg, err := scanOutboxMessage(rows)
		if err != nil {
			return nil, classify(err, "scan outbox message")
		}
		batch = append(batch, msg)
	}
	return batch, classify(rows.Err(), "get pending outbox batch")
}

// Save records a publish attempt. A processed timestamp, once set, is
// never cleared.
func (r *PgOutboxRepository) Save(ctx context.Context, msg domain.OutboxMessage) error {
	if msg.ID == uuid.Nil {
		return errors.New("outbox message id is empty")
	}

	var processed sql.NullTime
	if msg.ProcessedAtUtc != nil {
		processed = sql.NullTime{Time: epoch(*msg.ProcessedAtUtc), Valid: true}
	}

	q := `
        update outbox_messages
        set retry_count = $2,
            processed_at_utc = coalesce($3, processed_at_utc)
        where id = $1`
	res, err := r.db.ExecContext(ctx, q, msg.ID, msg.RetryCount, processed)
	if err != nil {
		return classify(err, "save outbox message")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Errorf("outbox message %s not found", msg.ID)
	}
	return nil
}
