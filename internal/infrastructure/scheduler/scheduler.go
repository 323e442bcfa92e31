package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Job does one unit of periodic work and reports how many items it handled.
type Job interface {
	RunOnce(ctx context.Context) (int, error)
}

type JobFunc func(ctx context.Context) (int, error)

func (f JobFunc) RunOnce(ctx context.Context) (int, error) { return f(ctx) }

// Scheduler runs a job on a fixed interval until its context ends. A
// failed run is logged and the next tick runs as usual.
type Scheduler struct {
	name     string
	job      Job
	interval time.Duration
}

func New(name string, job Job, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{name: name, job: job, interval: interval}
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Str("job", s.name).Dur("interval", s.interval).Msg("scheduler started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("job", s.name).Msg("scheduler stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("job", s.name).Interface("panic", r).Msg("scheduled job panicked")
		}
	}()
	n, err := s.job.RunOnce(ctx)
	switch {
	case err != nil:
		log.Error().Err(err).Str("job", s.name).Int("processed", n).Msg("scheduled job failed")
	case n > 0:
		log.Debug().Str("job", s.name).Int("processed", n).Msg("scheduled job processed items")
	}
}
