package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/RodolfoDevApp/eventshop-stockledger-go/internal/domain"
)

// Outbox keeps outbox messages in process, for STORAGE=memory.
type Outbox struct {
	mu   sync.Mutex
	msgs map[uuid.UUID]domain.OutboxMessage
}

func NewOutbox() *Outbox {
	return &Outbox{msgs: make(map[uuid.UUID]domain.OutboxMessage)}
}

func (o *Outbox) Insert(_ context.Context, msg domain.OutboxMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.OccurredAtUtc == 0 {
		msg.OccurredAtUtc = time.Now().UTC().Unix()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs[msg.ID] = msg
	return nil
}

func (o *Outbox) GetPendingBatch(_ context.Context, maxRetry, batchSize int) ([]domain.OutboxMessage, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []domain.OutboxMessage
	for _, m := range o.msgs {
		if m.ProcessedAtUtc == nil && m.RetryCount < maxRetry {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OccurredAtUtc == out[j].OccurredAtUtc {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].OccurredAtUtc < out[j].OccurredAtUtc
	})
	if batchSize > 0 && len(out) > batchSize {
		out = out[:batchSize]
	}
	return out, nil
}

func (o *Outbox) Save(_ context.Context, msg domain.OutboxMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.msgs[msg.ID]; !ok {
		return errors.Errorf("outbox message %s not found", msg.ID)
	}
	o.msgs[msg.ID] = msg
	return nil
}

// Pending reports how many messages still wait for dispatch.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, m := range o.msgs {
		if m.ProcessedAtUtc == nil {
			n++
		}
	}
	return n
}

var _ domain.OutboxRepository = (*Outbox)(nil)
