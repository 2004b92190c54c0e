package types_test

import (
	"encoding/json"
	"testing"

	"github.com/okian/prix/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEntry(t *testing.T) {
	Convey("Given a leaderboard entry", t, func() {
		entry := types.Entry{Rank: 2, PlayerID: "luigi", Nickname: "Luigi", Rating: 1532}

		Convey("When encoding it as JSON", func() {
			data, err := json.Marshal(entry)

			Convey("Then it uses snake case field names", func() {
				So(err, ShouldBeNil)
				So(string(data), ShouldEqual, `{"rank":2,"player_id":"luigi","nickname":"Luigi","rating":1532}`)
			})
		})
	})
}
