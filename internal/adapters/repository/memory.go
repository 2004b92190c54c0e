package repository

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/okian/prix/internal/domain/model"
	"github.com/okian/prix/internal/domain/rating"
	"github.com/okian/prix/internal/domain/types"
	"github.com/okian/prix/pkg/metrics"
)

const defaultMetricsUpdateInterval = 5 * time.Second

// MemoryStore is an in-memory Store. One mutex serializes every
// read-modify-write so each prix is applied against a consistent view.
type MemoryStore struct {
	mu      sync.RWMutex
	root    *node
	players map[string]model.Player
	prix    map[string]model.Prix
	results map[string][]model.PrixResult
	rng     *rand.Rand

	seed                  int64
	metricsUpdateInterval time.Duration

	wg        sync.WaitGroup
	stopChan  chan struct{}
	closeOnce sync.Once
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs a treap-backed store with configuration options.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		players:               make(map[string]model.Player),
		prix:                  make(map[string]model.Prix),
		results:               make(map[string][]model.PrixResult),
		seed:                  time.Now().UnixNano(),
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rng = rand.New(rand.NewSource(s.seed)) //nolint:gosec // treap priorities, not security sensitive

	s.startMetricsUpdater(ctx)
	return s
}

// CreatePlayer implements Store.CreatePlayer.
func (s *MemoryStore) CreatePlayer(_ context.Context, p model.Player) error {
	defer observe(time.Now(), metrics.RecordRepositoryUpdateLatency)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.players[p.ID]; ok {
		return fmt.Errorf("%w: %s", ErrPlayerExists, p.ID)
	}
	s.players[p.ID] = p
	s.root = insert(s.root, p.ID, p.Rating, s.rng.Uint64())
	return nil
}

// Player implements Store.Player.
func (s *MemoryStore) Player(_ context.Context, id string) (model.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.players[id]
	if !ok {
		return model.Player{}, fmt.Errorf("player %s: %w", id, ErrNotFound)
	}
	return p, nil
}

// Ratings implements Store.Ratings.
func (s *MemoryStore) Ratings(_ context.Context, ids []string) (rating.Ratings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ratingsLocked(ids), nil
}

func (s *MemoryStore) ratingsLocked(ids []string) rating.Ratings {
	out := make(rating.Ratings, len(ids))
	for _, id := range ids {
		if p, ok := s.players[id]; ok {
			out[id] = p.Rating
		}
	}
	return out
}

// ApplyPrix implements Store.ApplyPrix.
func (s *MemoryStore) ApplyPrix(_ context.Context, p model.Prix, eval EvaluateFunc) ([]model.PrixResult, error) {
	defer observe(time.Now(), metrics.RecordRepositoryUpdateLatency)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.prix[p.ID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrPrixExists, p.ID)
	}

	outcomes, err := eval(p.Placements, s.ratingsLocked(p.PlayerIDs()))
	if err != nil {
		return nil, err
	}
	for _, o := range outcomes {
		s.setRatingLocked(o.PlayerID, o.After)
	}

	stored := model.Prix{
		ID:         p.ID,
		PlayedAt:   p.PlayedAt,
		Placements: append([]rating.Placement(nil), p.Placements...),
	}
	results := model.Results(stored, outcomes)
	s.prix[p.ID] = stored
	s.results[p.ID] = results
	return append([]model.PrixResult(nil), results...), nil
}

func (s *MemoryStore) setRatingLocked(id string, r int) {
	p := s.players[id]
	if p.Rating == r {
		return
	}
	s.root = deleteNode(s.root, id, p.Rating)
	p.Rating = r
	s.players[id] = p
	s.root = insert(s.root, id, r, s.rng.Uint64())
}

// Replay implements Store.Replay. Nothing is written if any prix fails.
func (s *MemoryStore) Replay(_ context.Context, eval EvaluateFunc) (int, error) {
	defer observe(time.Now(), metrics.RecordRepositoryUpdateLatency)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replayLocked(eval, "")
}

// replayLocked recomputes every rating from the seeds over all prix except
// skip and commits only when every prix evaluated cleanly.
func (s *MemoryStore) replayLocked(eval EvaluateFunc, skip string) (int, error) {
	order := make([]model.Prix, 0, len(s.prix))
	for id, p := range s.prix {
		if id != skip {
			order = append(order, p)
		}
	}
	sortPrix(order)

	working := make(rating.Ratings, len(s.players))
	for id, p := range s.players {
		working[id] = p.SeedRating
	}

	results := make(map[string][]model.PrixResult, len(order))
	for _, p := range order {
		current := make(rating.Ratings, len(p.Placements))
		for _, id := range p.PlayerIDs() {
			if r, ok := working[id]; ok {
				current[id] = r
			}
		}
		outcomes, err := eval(p.Placements, current)
		if err != nil {
			return 0, fmt.Errorf("replay prix %s: %w", p.ID, err)
		}
		for _, o := range outcomes {
			working[o.PlayerID] = o.After
		}
		results[p.ID] = model.Results(p, outcomes)
	}

	s.root = nil
	for id, p := range s.players {
		p.Rating = working[id]
		s.players[id] = p
		s.root = insert(s.root, id, p.Rating, s.rng.Uint64())
	}
	if skip != "" {
		delete(s.prix, skip)
	}
	s.results = results
	return len(order), nil
}

// DeletePrix implements Store.DeletePrix.
func (s *MemoryStore) DeletePrix(_ context.Context, id string, eval EvaluateFunc) (int, error) {
	defer observe(time.Now(), metrics.RecordRepositoryUpdateLatency)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.prix[id]; !ok {
		return 0, fmt.Errorf("prix %s: %w", id, ErrNotFound)
	}
	return s.replayLocked(eval, id)
}

// TopN implements Store.TopN in O(log n + n).
func (s *MemoryStore) TopN(_ context.Context, n int) ([]types.Entry, error) {
	defer observe(time.Now(), metrics.RecordRepositoryQueryLatency)

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make([]*node, 0, min(n, len(s.players)))
	collect(s.root, n, &nodes)

	out := make([]types.Entry, len(nodes))
	for i, nd := range nodes {
		rank := i + 1
		if i > 0 && nd.rating == nodes[i-1].rating {
			rank = out[i-1].Rank
		}
		out[i] = types.Entry{
			Rank:     rank,
			PlayerID: nd.id,
			Nickname: s.players[nd.id].Nickname,
			Rating:   nd.rating,
		}
	}
	return out, nil
}

// Rank implements Store.Rank in O(log n).
func (s *MemoryStore) Rank(_ context.Context, id string) (types.Entry, error) {
	defer observe(time.Now(), metrics.RecordRepositoryQueryLatency)

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.players[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return types.Entry{}, fmt.Errorf("player %s: %w", id, ErrNotFound)
	}
	return types.Entry{
		Rank:     1 + countAbove(s.root, p.Rating),
		PlayerID: p.ID,
		Nickname: p.Nickname,
		Rating:   p.Rating,
	}, nil
}

// History implements Store.History.
func (s *MemoryStore) History(_ context.Context, playerID string) ([]model.PrixResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.players[playerID]; !ok {
		return nil, fmt.Errorf("player %s: %w", playerID, ErrNotFound)
	}

	var out []model.PrixResult
	for _, rows := range s.results {
		for _, r := range rows {
			if r.PlayerID == playerID {
				out = append(out, r)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PlayedAt.Equal(out[j].PlayedAt) {
			return out[i].PlayedAt.Before(out[j].PlayedAt)
		}
		return out[i].PrixID < out[j].PrixID
	})
	return out, nil
}

// PrixResults implements Store.PrixResults.
func (s *MemoryStore) PrixResults(_ context.Context, prixID string) ([]model.PrixResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, ok := s.results[prixID]
	if !ok {
		return nil, fmt.Errorf("prix %s: %w", prixID, ErrNotFound)
	}
	return append([]model.PrixResult(nil), rows...), nil
}

// Count implements Store.Count.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players), nil
}

// Close stops the background metrics updater.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				n, _ := s.Count(ctx)
				metrics.UpdateRepositoryRecordsTotal(n)
			}
		}
	}()
}

// sortPrix orders prix by play time, ties by id.
func sortPrix(ps []model.Prix) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].PlayedAt.Equal(ps[j].PlayedAt) {
			return ps[i].PlayedAt.Before(ps[j].PlayedAt)
		}
		return ps[i].ID < ps[j].ID
	})
}

func observe(start time.Time, record func(float64)) {
	record(float64(time.Since(start).Microseconds()) / 1000)
}
