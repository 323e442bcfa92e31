package application

import (
	"context"
)

const maxSweepPasses = 10

// ExpirySweeper drains abandoned holds in batches. Anything left after
// maxSweepPasses waits for the next tick.
type ExpirySweeper struct {
	coord *ReservationCoordinator
}

func NewExpirySweeper(coord *ReservationCoordinator) *ExpirySweeper {
	return &ExpirySweeper{coord: coord}
}

func (s *ExpirySweeper) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for pass := 0; pass < maxSweepPasses; pass++ {
		n, err := s.coord.ReleaseExpired(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n < s.coord.sweepBatch || ctx.Err() != nil {
			break
		}
	}
	return total, nil
}
