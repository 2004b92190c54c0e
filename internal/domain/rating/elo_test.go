package rating_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/okian/prix/internal/domain/rating"
	. "github.com/smartystreets/goconvey/convey"
)

func equalRatings(ids ...string) rating.Ratings {
	r := make(rating.Ratings, len(ids))
	for _, id := range ids {
		r[id] = rating.DefaultInitialRating
	}
	return r
}

func sum(adj rating.Adjustments) int {
	total := 0
	for _, d := range adj {
		total += d
	}
	return total
}

func TestExpected(t *testing.T) {
	Convey("Given two ratings", t, func() {
		Convey("When they are equal", func() {
			Convey("Then the expected score is a draw", func() {
				So(rating.Expected(1500, 1500), ShouldEqual, 0.5)
			})
		})

		Convey("When one player is 400 points stronger", func() {
			Convey("Then the favourite expects ten times the underdog's score", func() {
				So(rating.Expected(1900, 1500), ShouldAlmostEqual, 10.0/11.0, 1e-12)
				So(rating.Expected(1500, 1900), ShouldAlmostEqual, 1.0/11.0, 1e-12)
			})
		})

		Convey("Then expectations of both sides sum to one", func() {
			for _, pair := range [][2]int{{1200, 1800}, {1500, 1501}, {0, 3000}} {
				So(rating.Expected(pair[0], pair[1])+rating.Expected(pair[1], pair[0]), ShouldAlmostEqual, 1.0, 1e-12)
			}
		})
	})
}

func TestCalculateAdjustments(t *testing.T) {
	Convey("Given three equally rated players", t, func() {
		current := equalRatings("A", "B", "C")
		placements := []rating.Placement{{"A", 1}, {"B", 2}, {"C", 3}}

		Convey("When calculating with the default k-factor", func() {
			adj, err := rating.CalculateAdjustments(placements, current, rating.DefaultKFactor)

			Convey("Then the winner gains and the last place loses", func() {
				So(err, ShouldBeNil)
				So(adj["A"], ShouldBeGreaterThan, 0)
				So(adj["C"], ShouldBeLessThan, 0)
				So(adj, ShouldResemble, rating.Adjustments{"A": 16, "B": 0, "C": -16})
			})

			Convey("And the deltas sum to within one of zero", func() {
				So(sum(adj), ShouldBeBetweenOrEqual, -1, 1)
			})

			Convey("And every placed player receives an adjustment", func() {
				So(len(adj), ShouldEqual, len(placements))
			})
		})
	})

	Convey("Given an underdog who wins against a favourite", t, func() {
		current := rating.Ratings{"Underdog": 1200, "Favorite": 1800, "MidPlayer": 1500}
		placements := []rating.Placement{{"Underdog", 1}, {"Favorite", 2}, {"MidPlayer", 3}}

		adj, err := rating.CalculateAdjustments(placements, current, 32)

		Convey("Then the upset moves ratings more than an even field would", func() {
			So(err, ShouldBeNil)
			So(adj["Underdog"], ShouldBeGreaterThan, 20)
			So(adj["Favorite"], ShouldBeLessThan, -10)
			So(adj, ShouldResemble, rating.Adjustments{"Underdog": 29, "Favorite": -13, "MidPlayer": -16})
		})

		Convey("And the underdog gains more than a winner in an even field", func() {
			even, err := rating.CalculateAdjustments(placements, equalRatings("Underdog", "Favorite", "MidPlayer"), 32)
			So(err, ShouldBeNil)
			So(adj["Underdog"], ShouldBeGreaterThan, even["Underdog"])
		})
	})

	Convey("Given a finish order that matches the ratings", t, func() {
		current := rating.Ratings{"High": 1800, "Mid": 1500, "Low": 1200}
		placements := []rating.Placement{{"High", 1}, {"Mid", 2}, {"Low", 3}}

		adj, err := rating.CalculateAdjustments(placements, current, 32)

		Convey("Then every delta is small", func() {
			So(err, ShouldBeNil)
			for _, d := range adj {
				So(d, ShouldBeBetween, -10, 10)
			}
			So(adj, ShouldResemble, rating.Adjustments{"High": 3, "Mid": 0, "Low": -3})
		})
	})

	Convey("Given a larger rating gap for an upset", t, func() {
		Convey("Then the winner's delta grows with the gap", func() {
			prev := -1
			for _, gap := range []int{0, 100, 200, 400, 800} {
				current := rating.Ratings{"low": 1500 - gap, "high": 1500}
				adj, err := rating.CalculateAdjustments([]rating.Placement{{"low", 1}, {"high", 2}}, current, 32)
				So(err, ShouldBeNil)
				So(adj["low"], ShouldBeGreaterThanOrEqualTo, prev)
				prev = adj["low"]
			}
			So(prev, ShouldBeGreaterThan, 16)
		})
	})

	Convey("Given an eight player field with equal ratings", t, func() {
		ids := []string{"P1", "P2", "P3", "P4", "P5", "P6", "P7", "P8"}
		placements := make([]rating.Placement, len(ids))
		for i, id := range ids {
			placements[i] = rating.Placement{PlayerID: id, Rank: i + 1}
		}

		adj, err := rating.CalculateAdjustments(placements, equalRatings(ids...), 32)

		Convey("Then deltas are normalized by the number of opponents", func() {
			So(err, ShouldBeNil)
			So(adj, ShouldResemble, rating.Adjustments{
				"P1": 16, "P2": 11, "P3": 7, "P4": 2,
				"P5": -2, "P6": -7, "P7": -11, "P8": -16,
			})
			So(adj["P1"], ShouldBeGreaterThan, adj["P8"])
		})
	})

	Convey("Given equal fields of every size", t, func() {
		Convey("Then first gains, last loses and the sum stays within one of zero", func() {
			for n := 2; n <= 12; n++ {
				ids := make([]string, n)
				placements := make([]rating.Placement, n)
				for i := range ids {
					ids[i] = fmt.Sprintf("p%02d", i)
					placements[i] = rating.Placement{PlayerID: ids[i], Rank: i + 1}
				}
				adj, err := rating.CalculateAdjustments(placements, equalRatings(ids...), 32)
				So(err, ShouldBeNil)
				So(adj[ids[0]], ShouldBeGreaterThan, 0)
				So(adj[ids[n-1]], ShouldBeLessThan, 0)
				So(sum(adj), ShouldBeBetweenOrEqual, -1, 1)
			}
		})
	})

	Convey("Given tied ranks", t, func() {
		current := equalRatings("A", "B", "C")
		placements := []rating.Placement{{"A", 1}, {"B", 2}, {"C", 2}}

		adj, err := rating.CalculateAdjustments(placements, current, 32)

		Convey("Then tied players score a draw against each other", func() {
			So(err, ShouldBeNil)
			So(adj, ShouldResemble, rating.Adjustments{"A": 16, "B": -8, "C": -8})
		})

		Convey("And a full tie between equals changes nothing", func() {
			adj, err := rating.CalculateAdjustments([]rating.Placement{{"A", 1}, {"B", 1}}, equalRatings("A", "B"), 32)
			So(err, ShouldBeNil)
			So(adj, ShouldResemble, rating.Adjustments{"A": 0, "B": 0})
		})

		Convey("And ranks need not be contiguous", func() {
			adj, err := rating.CalculateAdjustments([]rating.Placement{{"A", 1}, {"B", 4}, {"C", 9}}, current, 32)
			So(err, ShouldBeNil)
			So(adj, ShouldResemble, rating.Adjustments{"A": 16, "B": 0, "C": -16})
		})
	})

	Convey("Given deltas that land exactly on .5", t, func() {
		current := equalRatings("A", "B")
		placements := []rating.Placement{{"A", 1}, {"B", 2}}

		Convey("Then they round half to even", func() {
			adj, err := rating.CalculateAdjustments(placements, current, 5)
			So(err, ShouldBeNil)
			So(adj, ShouldResemble, rating.Adjustments{"A": 2, "B": -2})

			adj, err = rating.CalculateAdjustments(placements, current, 3)
			So(err, ShouldBeNil)
			So(adj, ShouldResemble, rating.Adjustments{"A": 2, "B": -2})

			adj, err = rating.CalculateAdjustments(placements, current, 1)
			So(err, ShouldBeNil)
			So(adj, ShouldResemble, rating.Adjustments{"A": 0, "B": 0})
		})
	})

	Convey("Given a single participant", t, func() {
		adj, err := rating.CalculateAdjustments([]rating.Placement{{"solo", 1}}, equalRatings("solo"), 32)

		Convey("Then the delta is zero", func() {
			So(err, ShouldBeNil)
			So(adj, ShouldResemble, rating.Adjustments{"solo": 0})
		})
	})

	Convey("Given invalid input", t, func() {
		current := equalRatings("A", "B")

		Convey("When placements are empty", func() {
			_, err := rating.CalculateAdjustments(nil, current, 32)
			So(errors.Is(err, rating.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("When the k-factor is not positive", func() {
			for _, k := range []int{0, -32} {
				_, err := rating.CalculateAdjustments([]rating.Placement{{"A", 1}, {"B", 2}}, current, k)
				So(errors.Is(err, rating.ErrInvalidInput), ShouldBeTrue)
			}
		})

		Convey("When a rank is not positive", func() {
			_, err := rating.CalculateAdjustments([]rating.Placement{{"A", 0}, {"B", 2}}, current, 32)
			So(errors.Is(err, rating.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("When a player is placed twice", func() {
			_, err := rating.CalculateAdjustments([]rating.Placement{{"A", 1}, {"A", 2}}, current, 32)
			So(errors.Is(err, rating.ErrInvalidInput), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "more than once")
		})

		Convey("When a placed player has no rating", func() {
			_, err := rating.CalculateAdjustments([]rating.Placement{{"A", 1}, {"ghost", 2}}, current, 32)

			Convey("Then it fails with a missing rating error naming the player", func() {
				So(errors.Is(err, rating.ErrMissingRating), ShouldBeTrue)
				So(errors.Is(err, rating.ErrInvalidInput), ShouldBeFalse)
				var missing *rating.MissingRatingError
				So(errors.As(err, &missing), ShouldBeTrue)
				So(missing.PlayerID, ShouldEqual, "ghost")
			})
		})
	})
}

func TestCalculator(t *testing.T) {
	Convey("Given a calculator", t, func() {
		Convey("When created without options", func() {
			c := rating.NewCalculator()
			Convey("Then it uses the default k-factor", func() {
				So(c.KFactor(), ShouldEqual, rating.DefaultKFactor)
			})
		})

		Convey("When created with a custom k-factor", func() {
			c := rating.NewCalculator(rating.WithKFactor(64))
			adj, err := c.Calculate([]rating.Placement{{"A", 1}, {"B", 2}}, equalRatings("A", "B"))

			Convey("Then it scales the deltas", func() {
				So(err, ShouldBeNil)
				So(c.KFactor(), ShouldEqual, 64)
				So(adj, ShouldResemble, rating.Adjustments{"A": 32, "B": -32})
			})
		})

		Convey("When created with a non-positive k-factor", func() {
			c := rating.NewCalculator(rating.WithKFactor(0))
			Convey("Then the option is ignored", func() {
				So(c.KFactor(), ShouldEqual, rating.DefaultKFactor)
			})
		})
	})
}
