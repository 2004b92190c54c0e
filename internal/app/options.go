package service

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/prix/internal/adapters/repository"
	"github.com/okian/prix/internal/domain/dedupe"
	"github.com/okian/prix/internal/domain/rating"
	"github.com/okian/prix/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the rating store. The caller keeps ownership and closes it.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithDeduper sets the prix id deduper, replacing the in-memory default.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Service) {
		if d != nil {
			s.deduper = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the clock used for default timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithKFactor sets the ELO k-factor. Non-positive values keep the default.
func WithKFactor(k int) Option {
	return func(s *Service) {
		s.calc = rating.NewCalculator(rating.WithKFactor(k))
	}
}

// WithMinRating sets the rating floor. Ratings are never negative, so a
// negative floor is ignored and the current one kept.
func WithMinRating(floor int) Option {
	return func(s *Service) {
		if floor >= 0 {
			s.applier = rating.NewApplier(rating.WithMinRating(floor))
		}
	}
}

// WithInitialRating sets the rating given to players registered without one.
func WithInitialRating(r int) Option {
	return func(s *Service) {
		if r >= 0 {
			s.initialRating = r
		}
	}
}

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of queued prix.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithStopTimeout bounds how long Stop waits for the queue to drain.
func WithStopTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.stopTimeout = d
		}
	}
}

// WithDedupeSize sets the size of the in-memory deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}
