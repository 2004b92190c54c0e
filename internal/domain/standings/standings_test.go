package standings_test

import (
	"errors"
	"testing"

	"github.com/okian/prix/internal/domain/rating"
	"github.com/okian/prix/internal/domain/standings"
	. "github.com/smartystreets/goconvey/convey"
)

func TestPoints(t *testing.T) {
	Convey("Given race positions", t, func() {
		Convey("Then the podium scores 15, 12 and 10", func() {
			for pos, want := range map[int]int{1: 15, 2: 12, 3: 10} {
				got, err := standings.Points(pos)
				So(err, ShouldBeNil)
				So(got, ShouldEqual, want)
			}
		})

		Convey("Then the rest score 13 minus the position", func() {
			for pos := 4; pos <= standings.MaxPosition; pos++ {
				got, err := standings.Points(pos)
				So(err, ShouldBeNil)
				So(got, ShouldEqual, 13-pos)
			}
		})

		Convey("Then positions outside the grid are rejected", func() {
			for _, pos := range []int{0, -1, 13} {
				_, err := standings.Points(pos)
				So(errors.Is(err, standings.ErrInvalidPosition), ShouldBeTrue)
			}
		})
	})
}

func TestTally(t *testing.T) {
	Convey("Given two races with a shared lead", t, func() {
		races := []standings.Race{
			{"A": 1, "B": 2, "C": 3, "D": 4},
			{"B": 1, "A": 2, "C": 3, "D": 4},
		}

		table, err := standings.Tally(races)

		Convey("Then totals are ranked with shared competition ranks", func() {
			So(err, ShouldBeNil)
			So(table, ShouldResemble, []standings.Standing{
				{PlayerID: "A", Points: 27, Rank: 1},
				{PlayerID: "B", Points: 27, Rank: 1},
				{PlayerID: "C", Points: 20, Rank: 3},
				{PlayerID: "D", Points: 18, Rank: 4},
			})
		})

		Convey("And placements carry the same ranks", func() {
			placements := standings.Placements(table)
			So(placements, ShouldResemble, []rating.Placement{
				{PlayerID: "A", Rank: 1},
				{PlayerID: "B", Rank: 1},
				{PlayerID: "C", Rank: 3},
				{PlayerID: "D", Rank: 4},
			})
		})
	})

	Convey("Given invalid races", t, func() {
		Convey("When there are none", func() {
			_, err := standings.Tally(nil)
			So(errors.Is(err, standings.ErrNoRaces), ShouldBeTrue)
		})

		Convey("When a position is off the grid", func() {
			_, err := standings.Tally([]standings.Race{{"A": 1, "B": 13}})
			So(errors.Is(err, standings.ErrInvalidPosition), ShouldBeTrue)
		})

		Convey("When two players share a position", func() {
			_, err := standings.Tally([]standings.Race{{"A": 1, "B": 1}})
			So(errors.Is(err, standings.ErrDuplicatePosition), ShouldBeTrue)
		})

		Convey("When a later race has a different field", func() {
			_, err := standings.Tally([]standings.Race{
				{"A": 1, "B": 2},
				{"A": 1, "C": 2},
			})
			So(errors.Is(err, standings.ErrInconsistentRaces), ShouldBeTrue)

			_, err = standings.Tally([]standings.Race{
				{"A": 1, "B": 2},
				{"A": 1},
			})
			So(errors.Is(err, standings.ErrInconsistentRaces), ShouldBeTrue)
		})
	})
}
