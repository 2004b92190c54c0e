package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/prix/internal/adapters/repository"
	"github.com/okian/prix/internal/domain/model"
	"github.com/okian/prix/internal/domain/rating"
	"github.com/okian/prix/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func evaluate(placements []rating.Placement, current rating.Ratings) ([]rating.Outcome, error) {
	return rating.Evaluate(placements, current, rating.DefaultKFactor, rating.DefaultMinRating)
}

func player(id string) model.Player {
	return model.Player{
		ID:         id,
		Nickname:   "nick-" + id,
		Rating:     rating.DefaultInitialRating,
		SeedRating: rating.DefaultInitialRating,
		CreatedAt:  time.Unix(0, 0).UTC(),
	}
}

func prix(id string, at time.Time, ids ...string) model.Prix {
	p := model.Prix{ID: id, PlayedAt: at}
	for i, pid := range ids {
		p.Placements = append(p.Placements, rating.Placement{PlayerID: pid, Rank: i + 1})
	}
	return p
}

func ratingOf(ctx context.Context, s repository.Store, id string) int {
	p, err := s.Player(ctx, id)
	So(err, ShouldBeNil)
	return p.Rating
}

func TestMemoryStore_Players(t *testing.T) {
	Convey("Given an empty memory store", t, func() {
		ctx := context.Background()
		s := repository.NewMemoryStore(ctx, repository.WithSeed(1))
		defer s.Close()

		Convey("When a player is registered", func() {
			So(s.CreatePlayer(ctx, player("mario")), ShouldBeNil)

			Convey("Then it can be read back", func() {
				p, err := s.Player(ctx, "mario")
				So(err, ShouldBeNil)
				So(p, ShouldResemble, player("mario"))

				n, err := s.Count(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})

			Convey("And registering it again fails", func() {
				err := s.CreatePlayer(ctx, player("mario"))
				So(errors.Is(err, repository.ErrPlayerExists), ShouldBeTrue)
			})

			Convey("And ratings omit unknown ids", func() {
				r, err := s.Ratings(ctx, []string{"mario", "ghost"})
				So(err, ShouldBeNil)
				So(r, ShouldResemble, rating.Ratings{"mario": 1500})
			})
		})

		Convey("When an unknown player is requested", func() {
			_, err := s.Player(ctx, "ghost")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

			_, err = s.Rank(ctx, "ghost")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

			_, err = s.History(ctx, "ghost")
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestMemoryStore_ApplyPrix(t *testing.T) {
	Convey("Given three registered players", t, func() {
		ctx := context.Background()
		s := repository.NewMemoryStore(ctx, repository.WithSeed(1))
		defer s.Close()
		for _, id := range []string{"a", "b", "c"} {
			So(s.CreatePlayer(ctx, player(id)), ShouldBeNil)
		}
		t1 := time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)

		Convey("When a prix is applied", func() {
			results, err := s.ApplyPrix(ctx, prix("prix-1", t1, "a", "b", "c"), evaluate)

			Convey("Then ratings move and audit rows are returned", func() {
				So(err, ShouldBeNil)
				So(results, ShouldHaveLength, 3)
				So(results[0], ShouldResemble, model.PrixResult{
					PrixID: "prix-1", PlayerID: "a", Placement: 1,
					StartingRating: 1500, Adjustment: 16, EndingRating: 1516, PlayedAt: t1,
				})
				So(ratingOf(ctx, s, "a"), ShouldEqual, 1516)
				So(ratingOf(ctx, s, "b"), ShouldEqual, 1500)
				So(ratingOf(ctx, s, "c"), ShouldEqual, 1484)
			})

			Convey("And the audit rows are stored", func() {
				rows, err := s.PrixResults(ctx, "prix-1")
				So(err, ShouldBeNil)
				So(rows, ShouldResemble, results)
			})

			Convey("And applying the same prix again is rejected", func() {
				_, err := s.ApplyPrix(ctx, prix("prix-1", t1, "a", "b", "c"), evaluate)
				So(errors.Is(err, repository.ErrPrixExists), ShouldBeTrue)
				So(ratingOf(ctx, s, "a"), ShouldEqual, 1516)
			})
		})

		Convey("When a prix names an unregistered player", func() {
			_, err := s.ApplyPrix(ctx, prix("prix-x", t1, "a", "ghost"), evaluate)

			Convey("Then nothing is written", func() {
				So(errors.Is(err, rating.ErrMissingRating), ShouldBeTrue)
				So(ratingOf(ctx, s, "a"), ShouldEqual, 1500)
				_, err := s.PrixResults(ctx, "prix-x")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestMemoryStore_Leaderboard(t *testing.T) {
	Convey("Given players with a shared rating", t, func() {
		ctx := context.Background()
		s := repository.NewMemoryStore(ctx, repository.WithSeed(1))
		defer s.Close()

		for _, p := range []model.Player{
			{ID: "b", Nickname: "B", Rating: 1500},
			{ID: "a", Nickname: "A", Rating: 1500},
			{ID: "c", Nickname: "C", Rating: 1600},
			{ID: "d", Nickname: "D", Rating: 1400},
		} {
			So(s.CreatePlayer(ctx, p), ShouldBeNil)
		}

		Convey("When reading the top entries", func() {
			top, err := s.TopN(ctx, 10)

			Convey("Then ties share a rank and the next rank skips", func() {
				So(err, ShouldBeNil)
				So(top, ShouldResemble, []types.Entry{
					{Rank: 1, PlayerID: "c", Nickname: "C", Rating: 1600},
					{Rank: 2, PlayerID: "a", Nickname: "A", Rating: 1500},
					{Rank: 2, PlayerID: "b", Nickname: "B", Rating: 1500},
					{Rank: 4, PlayerID: "d", Nickname: "D", Rating: 1400},
				})
			})

			Convey("And single ranks agree with the leaderboard", func() {
				for _, e := range top {
					got, err := s.Rank(ctx, e.PlayerID)
					So(err, ShouldBeNil)
					So(got, ShouldResemble, e)
				}
			})
		})

		Convey("When the limit cuts through the field", func() {
			top, err := s.TopN(ctx, 2)
			So(err, ShouldBeNil)
			So(top, ShouldHaveLength, 2)
			So(top[1].PlayerID, ShouldEqual, "a")
		})

		Convey("When the limit is not positive", func() {
			_, err := s.TopN(ctx, 0)
			So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
		})
	})
}

func TestMemoryStore_Replay(t *testing.T) {
	Convey("Given two applied prix", t, func() {
		ctx := context.Background()
		s := repository.NewMemoryStore(ctx, repository.WithSeed(1))
		defer s.Close()
		for _, id := range []string{"a", "b", "c"} {
			So(s.CreatePlayer(ctx, player(id)), ShouldBeNil)
		}
		t1 := time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)
		t2 := t1.Add(24 * time.Hour)

		_, err := s.ApplyPrix(ctx, prix("prix-1", t1, "a", "b", "c"), evaluate)
		So(err, ShouldBeNil)
		_, err = s.ApplyPrix(ctx, prix("prix-2", t2, "c", "a"), evaluate)
		So(err, ShouldBeNil)
		So(ratingOf(ctx, s, "c"), ShouldEqual, 1501)
		So(ratingOf(ctx, s, "a"), ShouldEqual, 1499)

		Convey("When replaying", func() {
			n, err := s.Replay(ctx, evaluate)

			Convey("Then the same ratings are reproduced", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
				So(ratingOf(ctx, s, "a"), ShouldEqual, 1499)
				So(ratingOf(ctx, s, "b"), ShouldEqual, 1500)
				So(ratingOf(ctx, s, "c"), ShouldEqual, 1501)
			})

			Convey("And history follows play order", func() {
				rows, err := s.History(ctx, "a")
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 2)
				So(rows[0].PrixID, ShouldEqual, "prix-1")
				So(rows[1].PrixID, ShouldEqual, "prix-2")
				So(rows[1].StartingRating, ShouldEqual, rows[0].EndingRating)
			})
		})

		Convey("When the first prix is deleted", func() {
			n, err := s.DeletePrix(ctx, "prix-1", evaluate)

			Convey("Then only the remaining prix counts", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
				So(ratingOf(ctx, s, "c"), ShouldEqual, 1516)
				So(ratingOf(ctx, s, "a"), ShouldEqual, 1484)
				So(ratingOf(ctx, s, "b"), ShouldEqual, 1500)

				_, err := s.PrixResults(ctx, "prix-1")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When deleting an unknown prix", func() {
			_, err := s.DeletePrix(ctx, "missing", evaluate)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When the replay after a delete fails", func() {
			failing := func([]rating.Placement, rating.Ratings) ([]rating.Outcome, error) {
				return nil, errors.New("boom")
			}
			_, err := s.DeletePrix(ctx, "prix-1", failing)

			Convey("Then the prix, its rows and all ratings are kept", func() {
				So(err, ShouldNotBeNil)
				So(ratingOf(ctx, s, "a"), ShouldEqual, 1499)
				So(ratingOf(ctx, s, "c"), ShouldEqual, 1501)
				rows, err := s.PrixResults(ctx, "prix-1")
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 3)

				n, err := s.Replay(ctx, evaluate)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
			})
		})

		Convey("When the evaluation fails mid-replay", func() {
			calls := 0
			failing := func(pl []rating.Placement, cur rating.Ratings) ([]rating.Outcome, error) {
				calls++
				if calls == 2 {
					return nil, errors.New("boom")
				}
				return evaluate(pl, cur)
			}
			_, err := s.Replay(ctx, failing)

			Convey("Then existing ratings are kept", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "prix-2")
				So(ratingOf(ctx, s, "c"), ShouldEqual, 1501)
			})
		})
	})
}
