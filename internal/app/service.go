// Package service wires the rating engine, the store and the async pipeline
// into the operations the HTTP API and the CLIs call.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	eventqueue "github.com/okian/prix/internal/adapters/mq/queue"
	workerpool "github.com/okian/prix/internal/adapters/mq/worker"
	"github.com/okian/prix/internal/adapters/repository"
	"github.com/okian/prix/internal/domain/dedupe"
	"github.com/okian/prix/internal/domain/model"
	"github.com/okian/prix/internal/domain/rating"
	"github.com/okian/prix/internal/domain/standings"
	"github.com/okian/prix/internal/domain/types"
	"github.com/okian/prix/pkg/logger"
	"github.com/okian/prix/pkg/metrics"
)

const (
	defaultWorkerCount = 1
	defaultQueueSize   = 10000
	defaultDedupeSize  = 50000
	defaultStopTimeout = 30 * time.Second
)

// PrixSubmission is an incoming prix. Exactly one of Placements or Races is set.
type PrixSubmission struct {
	ID         string             `json:"id,omitempty"`
	PlayedAt   time.Time          `json:"played_at,omitempty"`
	Placements []rating.Placement `json:"placements,omitempty"`
	Races      []standings.Race   `json:"races,omitempty"`
}

// SubmitResult acknowledges a submission.
type SubmitResult struct {
	PrixID     string               `json:"prix_id"`
	Duplicate  bool                 `json:"duplicate"`
	Placements []rating.Placement   `json:"placements,omitempty"`
	Standings  []standings.Standing `json:"standings,omitempty"`
}

// Service implements the operations of the rating system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	ownsStore bool
	deduper   dedupe.Deduper
	queue     *eventqueue.InMemoryQueue
	pool      *workerpool.Pool
	clock     clockwork.Clock
	group     singleflight.Group
	calc      *rating.Calculator
	applier   *rating.Applier

	// Configuration
	initialRating int
	workerCount   int
	queueSize     int
	dedupeSize    int
	stopTimeout   time.Duration

	started bool
	// cancel ends the workers' context. Stop calls it once the queue is drained.
	cancel context.CancelFunc

	logger logger.Logger
}

// New constructs a Service. Without WithStore an in-memory store is created
// and closed by Stop.
func New(opts ...Option) *Service {
	s := &Service{
		calc:          rating.NewCalculator(),
		applier:       rating.NewApplier(),
		initialRating: rating.DefaultInitialRating,
		workerCount:   defaultWorkerCount,
		queueSize:     defaultQueueSize,
		dedupeSize:    defaultDedupeSize,
		stopTimeout:   defaultStopTimeout,
		clock:         clockwork.NewRealClock(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore(context.Background())
		s.ownsStore = true
	}
	if s.deduper == nil {
		s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	}

	return s
}

// Start creates the queue and starts the worker pool. The workers outlive ctx
// so a cancelled ctx does not drop queued prix; Stop ends them.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue,
		workerpool.ProcessorFunc(func(ctx context.Context, p model.Prix) error {
			_, err := s.ProcessPrix(ctx, p)
			return err
		}),
		workerpool.WithFailureHandler(s.onProcessFailure),
	)
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "rating service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Int("k_factor", s.calc.KFactor()),
		logger.Int("min_rating", s.applier.MinRating()),
	)
	return nil
}

// Stop drains the queue and stops the workers. Prix still queued when the stop
// timeout expires are dropped and forgotten by the deduper so they can be
// submitted again.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		if s.ownsStore {
			_ = s.store.Close()
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping rating service")
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
	}
	s.cancel()
	// ctx may have expired; the deduper still needs a live one.
	cleanup := context.WithoutCancel(ctx)
	for _, p := range s.queue.Drain() {
		s.deduper.Unrecord(cleanup, p.ID)
		metrics.RecordPrixRejected("shutdown")
		s.logger.Warn(ctx, "prix dropped at shutdown", logger.String("prix_id", p.ID))
	}
	if s.ownsStore {
		_ = s.store.Close()
	}
	s.started = false
	s.logger.Info(ctx, "rating service stopped")
}

// RegisterPlayer adds a player. A nil rating means the configured initial rating.
func (s *Service) RegisterPlayer(ctx context.Context, id, nickname string, initial *int) (model.Player, error) {
	id = strings.TrimSpace(id)
	nickname = strings.TrimSpace(nickname)
	if id == "" {
		return model.Player{}, fmt.Errorf("%w: id is required", ErrInvalidPlayer)
	}
	if nickname == "" {
		return model.Player{}, fmt.Errorf("%w: nickname is required", ErrInvalidPlayer)
	}

	r := s.initialRating
	if initial != nil {
		r = *initial
	}
	if floor := s.applier.MinRating(); r < floor {
		return model.Player{}, fmt.Errorf("%w: rating %d is below the floor %d", ErrInvalidPlayer, r, floor)
	}

	p := model.Player{
		ID:         id,
		Nickname:   nickname,
		Rating:     r,
		SeedRating: r,
		CreatedAt:  s.clock.Now().UTC(),
	}
	if err := s.store.CreatePlayer(ctx, p); err != nil {
		return model.Player{}, err
	}

	s.logger.Info(ctx, "player registered", logger.String("player_id", id), logger.Int("rating", r))
	if n, err := s.store.Count(ctx); err == nil {
		metrics.UpdateTotalPlayers(n)
	}
	return p, nil
}

// Player returns a registered player.
func (s *Service) Player(ctx context.Context, id string) (model.Player, error) {
	return s.store.Player(ctx, id)
}

// SubmitPrix validates a submission and queues it for rating.
func (s *Service) SubmitPrix(ctx context.Context, sub PrixSubmission) (SubmitResult, error) {
	s.mu.RLock()
	started, queue := s.started, s.queue
	s.mu.RUnlock()
	if !started {
		return SubmitResult{}, ErrNotStarted
	}

	placements, table, err := s.placements(sub)
	if err != nil {
		metrics.RecordPrixRejected("invalid")
		return SubmitResult{}, err
	}
	if err := s.validate(ctx, placements); err != nil {
		return SubmitResult{}, err
	}

	p := model.Prix{ID: strings.TrimSpace(sub.ID), PlayedAt: sub.PlayedAt, Placements: placements}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.PlayedAt.IsZero() {
		p.PlayedAt = s.clock.Now().UTC()
	}
	res := SubmitResult{PrixID: p.ID, Placements: placements, Standings: table}

	if s.deduper.SeenAndRecord(ctx, p.ID) {
		metrics.RecordPrixDuplicate()
		s.logger.Debug(ctx, "duplicate prix", logger.String("prix_id", p.ID))
		res.Duplicate = true
		return res, nil
	}

	if !queue.Enqueue(ctx, p) {
		s.deduper.Unrecord(ctx, p.ID)
		metrics.RecordPrixRejected("backpressure")
		return SubmitResult{}, ErrBackpressure
	}

	s.logger.Debug(ctx, "prix queued", logger.String("prix_id", p.ID), logger.Int("players", len(placements)))
	return res, nil
}

func (s *Service) placements(sub PrixSubmission) ([]rating.Placement, []standings.Standing, error) {
	switch {
	case len(sub.Placements) > 0 && len(sub.Races) > 0:
		return nil, nil, fmt.Errorf("%w: give either placements or races, not both", ErrInvalidSubmission)
	case len(sub.Races) > 0:
		table, err := standings.Tally(sub.Races)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
		}
		return standings.Placements(table), table, nil
	case len(sub.Placements) > 0:
		return append([]rating.Placement(nil), sub.Placements...), nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: no placements", ErrInvalidSubmission)
	}
}

// validate runs the calculator against the current ratings so malformed
// placements and unregistered players are rejected before they are queued.
func (s *Service) validate(ctx context.Context, placements []rating.Placement) error {
	ids := make([]string, len(placements))
	for i, p := range placements {
		ids[i] = p.PlayerID
	}
	current, err := s.store.Ratings(ctx, ids)
	if err != nil {
		return err
	}

	_, err = s.calc.Calculate(placements, current)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rating.ErrMissingRating):
		metrics.RecordPrixRejected("unregistered")
		return err
	default:
		metrics.RecordPrixRejected("invalid")
		return fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
	}
}

// ProcessPrix applies one prix synchronously.
func (s *Service) ProcessPrix(ctx context.Context, p model.Prix) ([]model.PrixResult, error) { //nolint:gocritic // hugeParam
	results, err := s.store.ApplyPrix(ctx, p, s.evaluate)
	if err != nil {
		return nil, fmt.Errorf("apply prix %s: %w", p.ID, err)
	}

	metrics.RecordPrixProcessed()
	s.logger.Info(ctx, "prix applied", logger.String("prix_id", p.ID), logger.Int("players", len(results)))
	return results, nil
}

// evaluate is the EvaluateFunc handed to the store. It records per-participant metrics.
func (s *Service) evaluate(placements []rating.Placement, current rating.Ratings) ([]rating.Outcome, error) {
	start := time.Now()
	out, err := s.calc.Evaluate(s.applier, placements, current)
	metrics.RecordEvaluateLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err != nil {
		return nil, err
	}
	for _, o := range out {
		metrics.RecordAdjustment(o.Delta, o.Clamped())
	}
	return out, nil
}

func (s *Service) onProcessFailure(ctx context.Context, p model.Prix, err error) { //nolint:gocritic // hugeParam
	if errors.Is(err, repository.ErrPrixExists) {
		metrics.RecordPrixDuplicate()
		return
	}
	s.deduper.Unrecord(ctx, p.ID)
	metrics.RecordPrixRejected("process_error")
	s.logger.Error(ctx, "prix rejected by store", logger.String("prix_id", p.ID), logger.Error(err))
}

// Recalculate replays every stored prix from the seed ratings.
func (s *Service) Recalculate(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := s.store.Replay(ctx, s.evaluate)
	if err != nil {
		metrics.RecordErrorByComponent("service", "replay_error")
		return 0, fmt.Errorf("recalculate: %w", err)
	}

	elapsed := time.Since(start)
	metrics.RecordReplay(float64(elapsed.Milliseconds()))
	s.logger.Info(ctx, "ratings recalculated", logger.Int("prix", n), logger.Duration("took", elapsed))
	return n, nil
}

// DeletePrix removes a prix and recalculates every rating without it in one
// store operation. The id may be submitted again afterwards.
func (s *Service) DeletePrix(ctx context.Context, id string) (int, error) {
	start := time.Now()
	n, err := s.store.DeletePrix(ctx, id, s.evaluate)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, err
	}
	if err != nil {
		metrics.RecordErrorByComponent("service", "replay_error")
		return 0, fmt.Errorf("delete prix %s: %w", id, err)
	}

	elapsed := time.Since(start)
	metrics.RecordReplay(float64(elapsed.Milliseconds()))
	s.deduper.Unrecord(ctx, id)
	s.logger.Info(ctx, "prix deleted", logger.String("prix_id", id), logger.Int("replayed", n), logger.Duration("took", elapsed))
	return n, nil
}

// TopN returns the top n leaderboard entries. Concurrent calls for the same n
// share one store read.
func (s *Service) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	v, err, _ := s.group.Do("top:"+strconv.Itoa(n), func() (any, error) {
		return s.store.TopN(ctx, n)
	})
	if err != nil {
		return nil, err
	}
	return v.([]types.Entry), nil
}

// Rank returns the leaderboard entry for a player.
func (s *Service) Rank(ctx context.Context, playerID string) (types.Entry, error) {
	return s.store.Rank(ctx, playerID)
}

// History returns a player's audit rows in play order.
func (s *Service) History(ctx context.Context, playerID string) ([]model.PrixResult, error) {
	return s.store.History(ctx, playerID)
}

// PrixResults returns the audit rows of a processed prix.
func (s *Service) PrixResults(ctx context.Context, prixID string) ([]model.PrixResult, error) {
	return s.store.PrixResults(ctx, prixID)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":      s.started,
		"worker_count": s.workerCount,
		"queue_size":   s.queueSize,
		"dedupe_size":  s.deduper.Size(),
		"k_factor":     s.calc.KFactor(),
		"min_rating":   s.applier.MinRating(),
	}

	if n, err := s.store.Count(ctx); err == nil {
		stats["total_players"] = n
		metrics.UpdateTotalPlayers(n)
	}
	if s.started {
		stats["queue_length"] = s.queue.Len(ctx)
		stats["busy_workers"] = s.pool.Busy()
		stats["processed"] = s.pool.Processed()
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}
