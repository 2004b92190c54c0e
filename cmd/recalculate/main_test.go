package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/prix/internal/adapters/repository"
	service "github.com/okian/prix/internal/app"
	"github.com/okian/prix/internal/domain/model"
	"github.com/okian/prix/internal/domain/rating"
	"github.com/okian/prix/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func seeded(ctx context.Context) (*service.Service, repository.Store) {
	store := repository.NewMemoryStore(ctx, repository.WithSeed(1))
	svc := service.New(service.WithStore(store))
	for _, id := range []string{"a", "b", "c"} {
		if _, err := svc.RegisterPlayer(ctx, id, "nick-"+id, nil); err != nil {
			panic(err)
		}
	}
	played := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	if _, err := svc.ProcessPrix(ctx, model.Prix{
		ID:         "prix-1",
		PlayedAt:   played,
		Placements: []rating.Placement{{PlayerID: "a", Rank: 1}, {PlayerID: "b", Rank: 2}, {PlayerID: "c", Rank: 3}},
	}); err != nil {
		panic(err)
	}
	return svc, store
}

func TestRecalculate(t *testing.T) {
	convey.Convey("Given a store with one rated prix", t, func() {
		ctx := context.Background()
		svc, store := seeded(ctx)
		defer func() { _ = store.Close() }()

		convey.Convey("When recalculating without a prompt", func() {
			var out bytes.Buffer
			err := recalculate(ctx, svc, store, strings.NewReader(""), &out, true)

			convey.Convey("Then every participant is reported in placement order", func() {
				convey.So(err, convey.ShouldBeNil)
				text := out.String()
				convey.So(text, convey.ShouldContainSubstring, "Found 1 prix to process")
				convey.So(text, convey.ShouldContainSubstring, "Prix prix-1 from 2024-03-01 20:00:")
				convey.So(text, convey.ShouldContainSubstring, "nick-a: 1st place, rating 1500 → 1516 (+16)")
				convey.So(text, convey.ShouldContainSubstring, "nick-b: 2nd place, rating 1500 → 1500 (0)")
				convey.So(text, convey.ShouldContainSubstring, "nick-c: 3rd place, rating 1500 → 1484 (-16)")
				convey.So(strings.Index(text, "nick-a"), convey.ShouldBeLessThan, strings.Index(text, "nick-c"))
			})

			convey.Convey("And the ratings are unchanged by a clean replay", func() {
				p, err := store.Player(ctx, "a")
				convey.So(err, convey.ShouldBeNil)
				convey.So(p.Rating, convey.ShouldEqual, 1516)
			})
		})

		convey.Convey("When the operator confirms", func() {
			var out bytes.Buffer
			err := recalculate(ctx, svc, store, strings.NewReader("Y\n"), &out, false)

			convey.Convey("Then the replay runs", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out.String(), convey.ShouldContainSubstring, "Continue? (y/n)")
				convey.So(out.String(), convey.ShouldContainSubstring, "Rating recalculation complete!")
			})
		})

		convey.Convey("When the operator declines", func() {
			var out bytes.Buffer
			err := recalculate(ctx, svc, store, strings.NewReader("n\n"), &out, false)

			convey.Convey("Then nothing is replayed", func() {
				convey.So(errors.Is(err, errAborted), convey.ShouldBeTrue)
				convey.So(out.String(), convey.ShouldNotContainSubstring, "Found")
			})
		})
	})

	convey.Convey("Given an empty store", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		defer func() { _ = store.Close() }()
		svc := service.New(service.WithStore(store))

		var out bytes.Buffer
		err := recalculate(ctx, svc, store, nil, &out, true)

		convey.Convey("Then it reports zero prix", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(out.String(), convey.ShouldContainSubstring, "Found 0 prix to process")
		})
	})
}

func TestOrdinal(t *testing.T) {
	convey.Convey("Given placements", t, func() {
		cases := map[int]string{
			1: "1st", 2: "2nd", 3: "3rd", 4: "4th", 11: "11th", 12: "12th",
			13: "13th", 21: "21st", 22: "22nd", 101: "101st", 111: "111th",
		}
		for n, want := range cases {
			convey.So(ordinal(n), convey.ShouldEqual, want)
		}
	})
}
