package types_test

import (
	"testing"

	"github.com/goccy/go-json"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/circlematch/internal/domain/types"
)

func TestMatchingResponseWireShape(t *testing.T) {
	Convey("Given a response with one recommendation and no failures", t, func() {
		resp := types.MatchingResponse{
			SessionID: "s1",
			Recommendations: []types.RecommendationResult{{
				RecommendationID: "r1",
				EventID:          "e1",
				EventTableOrigin: "events",
				EventData:        map[string]any{"id": "e1"},
				ScoreTotal:       7.5,
				Scores:           types.ScoreDetail{Preference: 7.5},
				Reasoning:        "User u1: Pref score 7 - ok",
			}},
		}

		Convey("When encoded", func() {
			raw, err := json.Marshal(resp)
			So(err, ShouldBeNil)
			var out map[string]any
			So(json.Unmarshal(raw, &out), ShouldBeNil)

			Convey("Then it uses the snake_case field names and omits failed_pairs", func() {
				So(out, ShouldContainKey, "session_id")
				So(out, ShouldNotContainKey, "failed_pairs")
				rec := out["recommendations"].([]any)[0].(map[string]any)
				So(rec["event_table_origin"], ShouldEqual, "events")
				So(rec["score_total"], ShouldEqual, 7.5)
				So(rec["scores"].(map[string]any), ShouldContainKey, "constraint_location")
			})
		})
	})

	Convey("Given a run with no recommendations", t, func() {
		raw, err := json.Marshal(types.MatchingResponse{SessionID: "s2", Recommendations: []types.RecommendationResult{}})

		Convey("Then the list encodes as an empty array", func() {
			So(err, ShouldBeNil)
			So(string(raw), ShouldContainSubstring, `"recommendations":[]`)
		})
	})
}
