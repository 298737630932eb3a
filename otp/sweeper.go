package otp

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultSweepInterval = time.Hour

// Sweeper periodically deletes expired code records.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
}

func NewSweeper(engine *Engine, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{engine: engine, interval: interval}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Msg("One-time code sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("One-time code sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single pass. Failures are logged and retried on the next tick.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	n, err := s.engine.DeleteExpired(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to delete expired one-time codes")
		return 0
	}
	if n > 0 {
		log.Info().Int("count", n).Msg("Deleted expired one-time codes")
	}
	return n
}
