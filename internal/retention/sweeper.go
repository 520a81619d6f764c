package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Purger deletes messages read before cutoff.
type Purger interface {
	PurgeReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper periodically purges messages whose read time is older than Retention.
type Sweeper struct {
	store     Purger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	log       *zerolog.Logger
}

// NewSweeper builds a sweeper. Zero durations fall back to one minute and 24 hours.
func NewSweeper(store Purger, interval, retention time.Duration, logger *zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Sweeper{
		store:     store,
		interval:  interval,
		retention: retention,
		now:       time.Now,
		log:       logger,
	}
}

// Run sweeps every interval until ctx is done. Failed sweeps are logged and
// retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Dur("retention", s.retention).Msg("retention sweeper started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.log.Error().Err(err).Msg("retention sweep failed")
			}
		}
	}
}

// Sweep runs one purge pass and returns the number of deleted messages.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.retention)
	n, err := s.store.PurgeReadBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("purged read messages")
	} else {
		s.log.Debug().Time("cutoff", cutoff).Msg("nothing to purge")
	}
	return n, nil
}
