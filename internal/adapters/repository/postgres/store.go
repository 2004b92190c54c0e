package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/avito-tech/go-transaction-manager/trm/v2"
	"github.com/avito-tech/go-transaction-manager/trm/v2/manager"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/prix/internal/adapters/repository"
	"github.com/okian/prix/internal/domain/model"
	"github.com/okian/prix/internal/domain/rating"
	"github.com/okian/prix/internal/domain/types"
	"github.com/okian/prix/pkg/metrics"
)

const (
	tablePlayers = "players"
	tablePrix    = "prix"
	tableResults = "prix_results"

	colID         = "id"
	colNickname   = "nickname"
	colRating     = "rating"
	colSeedRating = "seed_rating"
	colCreatedAt  = "created_at"
	colPlayedAt   = "played_at"

	colPrixID         = "prix_id"
	colPlayerID       = "player_id"
	colOrdinal        = "ordinal"
	colPlacement      = "placement"
	colStartingRating = "starting_rating"
	colAdjustment     = "adjustment"
	colEndingRating   = "ending_rating"

	uniqueViolation = "23505"
)

var resultColumns = []string{
	"r." + colPrixID, "r." + colPlayerID, "r." + colPlacement,
	"r." + colStartingRating, "r." + colAdjustment, "r." + colEndingRating,
	"p." + colPlayedAt,
}

// Store is a repository.Store backed by PostgreSQL. Each prix is applied in
// its own transaction that locks the participants' rows.
type Store struct {
	pool   *pgxpool.Pool
	tx     trm.Manager
	getter *trmpgx.CtxGetter
	sb     sq.StatementBuilderType
}

var _ repository.Store = (*Store)(nil)

// New wraps a migrated pool.
func New(pool *pgxpool.Pool) (*Store, error) {
	m, err := manager.New(trmpgx.NewDefaultFactory(pool))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction manager: %w", err)
	}
	return &Store{
		pool:   pool,
		tx:     m,
		getter: trmpgx.DefaultCtxGetter,
		sb:     sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

func (s *Store) db(ctx context.Context) trmpgx.Tr {
	return s.getter.DefaultTrOrDB(ctx, s.pool)
}

// CreatePlayer implements repository.Store.
func (s *Store) CreatePlayer(ctx context.Context, p model.Player) error {
	defer observe(time.Now(), metrics.RecordRepositoryUpdateLatency)

	query, args, err := s.sb.Insert(tablePlayers).
		Columns(colID, colNickname, colRating, colSeedRating, colCreatedAt).
		Values(p.ID, p.Nickname, p.Rating, p.SeedRating, p.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert player: %w", err)
	}

	if _, err := s.db(ctx).Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", repository.ErrPlayerExists, p.ID)
		}
		return fmt.Errorf("insert player: %w", err)
	}
	return nil
}

// Player implements repository.Store.
func (s *Store) Player(ctx context.Context, id string) (model.Player, error) {
	query, args, err := s.sb.Select(colID, colNickname, colRating, colSeedRating, colCreatedAt).
		From(tablePlayers).
		Where(sq.Eq{colID: id}).
		ToSql()
	if err != nil {
		return model.Player{}, fmt.Errorf("build select player: %w", err)
	}

	var p model.Player
	err = s.db(ctx).QueryRow(ctx, query, args...).Scan(&p.ID, &p.Nickname, &p.Rating, &p.SeedRating, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Player{}, fmt.Errorf("player %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return model.Player{}, fmt.Errorf("select player: %w", err)
	}
	return p, nil
}

// Ratings implements repository.Store.
func (s *Store) Ratings(ctx context.Context, ids []string) (rating.Ratings, error) {
	return s.ratings(ctx, ids, false)
}

func (s *Store) ratings(ctx context.Context, ids []string, lock bool) (rating.Ratings, error) {
	b := s.sb.Select(colID, colRating).
		From(tablePlayers).
		Where(sq.Eq{colID: ids}).
		OrderBy(colID)
	if lock {
		b = b.Suffix("FOR UPDATE")
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select ratings: %w", err)
	}

	rows, err := s.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select ratings: %w", err)
	}
	defer rows.Close()

	out := make(rating.Ratings, len(ids))
	for rows.Next() {
		var id string
		var r int
		if err := rows.Scan(&id, &r); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		out[id] = r
	}
	return out, rows.Err()
}

// ApplyPrix implements repository.Store.
func (s *Store) ApplyPrix(ctx context.Context, p model.Prix, eval repository.EvaluateFunc) ([]model.PrixResult, error) {
	defer observe(time.Now(), metrics.RecordRepositoryUpdateLatency)

	var results []model.PrixResult
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		query, args, err := s.sb.Insert(tablePrix).
			Columns(colID, colPlayedAt).
			Values(p.ID, p.PlayedAt).
			Suffix("ON CONFLICT (" + colID + ") DO NOTHING").
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert prix: %w", err)
		}
		tag, err := s.db(ctx).Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("insert prix: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", repository.ErrPrixExists, p.ID)
		}

		current, err := s.ratings(ctx, p.PlayerIDs(), true)
		if err != nil {
			return err
		}
		outcomes, err := eval(p.Placements, current)
		if err != nil {
			return err
		}

		if err := s.writeOutcomes(ctx, outcomes); err != nil {
			return err
		}
		results = model.Results(p, outcomes)
		return s.insertResults(ctx, results)
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Store) writeOutcomes(ctx context.Context, outcomes []rating.Outcome) error {
	for _, o := range outcomes {
		if err := s.setRating(ctx, o.PlayerID, o.After); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) setRating(ctx context.Context, id string, r int) error {
	query, args, err := s.sb.Update(tablePlayers).
		Set(colRating, r).
		Where(sq.Eq{colID: id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update rating: %w", err)
	}
	if _, err := s.db(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update rating of %s: %w", id, err)
	}
	return nil
}

func (s *Store) insertResults(ctx context.Context, results []model.PrixResult) error {
	if len(results) == 0 {
		return nil
	}
	b := s.sb.Insert(tableResults).
		Columns(colPrixID, colPlayerID, colOrdinal, colPlacement, colStartingRating, colAdjustment, colEndingRating)
	for i, r := range results {
		b = b.Values(r.PrixID, r.PlayerID, i, r.Placement, r.StartingRating, r.Adjustment, r.EndingRating)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build insert results: %w", err)
	}
	if _, err := s.db(ctx).Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert results: %w", err)
	}
	return nil
}

// Replay implements repository.Store. The whole replay is one transaction.
func (s *Store) Replay(ctx context.Context, eval repository.EvaluateFunc) (int, error) {
	defer observe(time.Now(), metrics.RecordRepositoryUpdateLatency)

	var replayed int
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		var err error
		replayed, err = s.replay(ctx, eval)
		return err
	})
	if err != nil {
		return 0, err
	}
	return replayed, nil
}

// replay resets every player to the seed and re-applies the stored prix. It
// must run inside a transaction.
func (s *Store) replay(ctx context.Context, eval repository.EvaluateFunc) (int, error) {
	working, current, err := s.lockSeeds(ctx)
	if err != nil {
		return 0, err
	}

	events, err := s.storedPrix(ctx)
	if err != nil {
		return 0, err
	}

	if _, err := s.db(ctx).Exec(ctx, "DELETE FROM "+tableResults); err != nil {
		return 0, fmt.Errorf("clear results: %w", err)
	}

	for _, p := range events {
		subset := make(rating.Ratings, len(p.Placements))
		for _, id := range p.PlayerIDs() {
			if r, ok := working[id]; ok {
				subset[id] = r
			}
		}
		outcomes, err := eval(p.Placements, subset)
		if err != nil {
			return 0, fmt.Errorf("replay prix %s: %w", p.ID, err)
		}
		for _, o := range outcomes {
			working[o.PlayerID] = o.After
		}
		if err := s.insertResults(ctx, model.Results(p, outcomes)); err != nil {
			return 0, err
		}
	}

	for id, r := range working {
		if current[id] == r {
			continue
		}
		if err := s.setRating(ctx, id, r); err != nil {
			return 0, err
		}
	}
	return len(events), nil
}

// lockSeeds locks every player row and returns the seed and current ratings.
func (s *Store) lockSeeds(ctx context.Context) (seeds, current rating.Ratings, err error) {
	query, args, err := s.sb.Select(colID, colSeedRating, colRating).
		From(tablePlayers).
		OrderBy(colID).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, nil, fmt.Errorf("build lock players: %w", err)
	}

	rows, err := s.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("lock players: %w", err)
	}
	defer rows.Close()

	seeds, current = rating.Ratings{}, rating.Ratings{}
	for rows.Next() {
		var id string
		var seed, r int
		if err := rows.Scan(&id, &seed, &r); err != nil {
			return nil, nil, fmt.Errorf("scan player: %w", err)
		}
		seeds[id] = seed
		current[id] = r
	}
	return seeds, current, rows.Err()
}

// storedPrix loads every prix with its placements in play order.
func (s *Store) storedPrix(ctx context.Context) ([]model.Prix, error) {
	query, args, err := s.sb.Select("p."+colID, "p."+colPlayedAt, "r."+colPlayerID, "r."+colPlacement).
		From(tablePrix + " p").
		Join(tableResults + " r ON r." + colPrixID + " = p." + colID).
		OrderBy("p."+colPlayedAt, "p."+colID, "r."+colOrdinal).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select prix: %w", err)
	}

	rows, err := s.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select prix: %w", err)
	}
	defer rows.Close()

	var out []model.Prix
	for rows.Next() {
		var id, playerID string
		var playedAt time.Time
		var placement int
		if err := rows.Scan(&id, &playedAt, &playerID, &placement); err != nil {
			return nil, fmt.Errorf("scan prix: %w", err)
		}
		if len(out) == 0 || out[len(out)-1].ID != id {
			out = append(out, model.Prix{ID: id, PlayedAt: playedAt})
		}
		last := &out[len(out)-1]
		last.Placements = append(last.Placements, rating.Placement{PlayerID: playerID, Rank: placement})
	}
	return out, rows.Err()
}

// DeletePrix implements repository.Store. Audit rows go with the prix and the
// replay shares its transaction.
func (s *Store) DeletePrix(ctx context.Context, id string, eval repository.EvaluateFunc) (int, error) {
	defer observe(time.Now(), metrics.RecordRepositoryUpdateLatency)

	query, args, err := s.sb.Delete(tablePrix).Where(sq.Eq{colID: id}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete prix: %w", err)
	}

	var replayed int
	err = s.tx.Do(ctx, func(ctx context.Context) error {
		tag, err := s.db(ctx).Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("delete prix: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("prix %s: %w", id, repository.ErrNotFound)
		}
		replayed, err = s.replay(ctx, eval)
		return err
	})
	if err != nil {
		return 0, err
	}
	return replayed, nil
}

// TopN implements repository.Store.
func (s *Store) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	defer observe(time.Now(), metrics.RecordRepositoryQueryLatency)

	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, repository.ErrInvalidLimit
	}

	query, args, err := s.sb.Select(
		"RANK() OVER (ORDER BY "+colRating+" DESC)", colID, colNickname, colRating).
		From(tablePlayers).
		OrderBy(colRating+" DESC", colID+" ASC").
		Limit(uint64(n)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build leaderboard: %w", err)
	}

	rows, err := s.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select leaderboard: %w", err)
	}
	defer rows.Close()

	out := make([]types.Entry, 0, n)
	for rows.Next() {
		var e types.Entry
		if err := rows.Scan(&e.Rank, &e.PlayerID, &e.Nickname, &e.Rating); err != nil {
			return nil, fmt.Errorf("scan leaderboard: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Rank implements repository.Store.
func (s *Store) Rank(ctx context.Context, id string) (types.Entry, error) {
	defer observe(time.Now(), metrics.RecordRepositoryQueryLatency)

	query, args, err := s.sb.Select(
		"1 + (SELECT count(*) FROM "+tablePlayers+" o WHERE o."+colRating+" > p."+colRating+")",
		"p."+colID, "p."+colNickname, "p."+colRating).
		From(tablePlayers + " p").
		Where(sq.Eq{"p." + colID: id}).
		ToSql()
	if err != nil {
		return types.Entry{}, fmt.Errorf("build rank: %w", err)
	}

	var e types.Entry
	err = s.db(ctx).QueryRow(ctx, query, args...).Scan(&e.Rank, &e.PlayerID, &e.Nickname, &e.Rating)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.RecordErrorByComponent("repository", "not_found")
		return types.Entry{}, fmt.Errorf("player %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return types.Entry{}, fmt.Errorf("select rank: %w", err)
	}
	return e, nil
}

// History implements repository.Store.
func (s *Store) History(ctx context.Context, playerID string) ([]model.PrixResult, error) {
	if _, err := s.Player(ctx, playerID); err != nil {
		return nil, err
	}
	return s.results(ctx, sq.Eq{"r." + colPlayerID: playerID}, "p."+colPlayedAt, "p."+colID)
}

// PrixResults implements repository.Store.
func (s *Store) PrixResults(ctx context.Context, prixID string) ([]model.PrixResult, error) {
	out, err := s.results(ctx, sq.Eq{"r." + colPrixID: prixID}, "r."+colOrdinal)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("prix %s: %w", prixID, repository.ErrNotFound)
	}
	return out, nil
}

func (s *Store) results(ctx context.Context, where sq.Sqlizer, orderBy ...string) ([]model.PrixResult, error) {
	query, args, err := s.sb.Select(resultColumns...).
		From(tableResults + " r").
		Join(tablePrix + " p ON p." + colID + " = r." + colPrixID).
		Where(where).
		OrderBy(orderBy...).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select results: %w", err)
	}

	rows, err := s.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select results: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.PrixResult, error) {
		var r model.PrixResult
		err := row.Scan(&r.PrixID, &r.PlayerID, &r.Placement, &r.StartingRating, &r.Adjustment, &r.EndingRating, &r.PlayedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan results: %w", err)
	}
	return out, nil
}

// Count implements repository.Store.
func (s *Store) Count(ctx context.Context) (int, error) {
	query, args, err := s.sb.Select("count(*)").From(tablePlayers).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int
	if err := s.db(ctx).QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count players: %w", err)
	}
	return n, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func observe(start time.Time, record func(float64)) {
	record(float64(time.Since(start).Microseconds()) / 1000)
}
