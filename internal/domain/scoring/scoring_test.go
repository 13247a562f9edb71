package scoring_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/okian/circlematch/internal/domain/llm"
	"github.com/okian/circlematch/internal/domain/model"
	"github.com/okian/circlematch/internal/domain/scoring"
	"github.com/okian/circlematch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const validArgs = `{
	"constraint_time": {"reasoning": "Saturday is free", "score": 10},
	"constraint_location": {"reasoning": "unknown venue", "score": 5},
	"constraint_other": {"reasoning": "nothing else", "score": 5},
	"preference": {"reasoning": "loves rock", "score": 9}
}`

// stubModel answers every request with a fixed response and remembers the last request.
type stubModel struct {
	resp llm.Response
	err  error
	last llm.Request
}

func (m *stubModel) Generate(_ context.Context, req llm.Request) (llm.Response, error) {
	m.last = req
	return m.resp, m.err
}

func toolAnswer(args string) llm.Response {
	return llm.Response{ToolCalls: []llm.ToolCall{{Name: scoring.ToolName, Args: json.RawMessage(args)}}}
}

func TestLLMScorer_Score(t *testing.T) {
	ctx := context.Background()
	event := model.Record{"title": "Metallica Concert", "date": "Sat 12-Apr-2025"}
	user := model.Record{"name": "Anna W"}

	Convey("Given a scorer over a stub model", t, func() {
		stub := &stubModel{resp: toolAnswer(validArgs)}
		s, err := scoring.New(stub)
		So(err, ShouldBeNil)

		Convey("When the model answers with a valid tool call", func() {
			rec, err := s.Score(ctx, event, user)

			Convey("Then all four metrics are returned", func() {
				So(err, ShouldBeNil)
				So(rec.Complete(), ShouldBeTrue)
				So(rec.Preference.Score, ShouldEqual, 9)
				So(rec.Preference.Reasoning, ShouldEqual, "loves rock")
				So(rec.ConstraintTime.Score, ShouldEqual, 10)
			})

			Convey("And the request carries the rubric, the examples and the pair", func() {
				req := stub.last
				So(req.System, ShouldEqual, scoring.SystemPrompt)
				So(req.Tool.Name, ShouldEqual, scoring.ToolName)
				So(req.Temperature, ShouldEqual, scoring.DefaultTemperature)
				So(req.MaxTokens, ShouldEqual, scoring.DefaultMaxTokens)
				So(len(req.Messages), ShouldEqual, 2*len(scoring.DefaultExamples())+1)
				So(req.Messages[0].Role, ShouldEqual, llm.RoleUser)
				So(req.Messages[1].Role, ShouldEqual, llm.RoleAssistant)

				last := req.Messages[len(req.Messages)-1]
				So(last.Role, ShouldEqual, llm.RoleUser)
				var decoded map[string]map[string]any
				So(json.Unmarshal([]byte(last.Content), &decoded), ShouldBeNil)
				So(decoded["event"]["title"], ShouldEqual, "Metallica Concert")
				So(decoded["user"]["name"], ShouldEqual, "Anna W")
			})
		})

		Convey("When the model answers in plain text", func() {
			stub.resp = llm.Response{Text: "I think 7/10"}
			_, err := s.Score(ctx, event, user)

			Convey("Then the pair fails with no structured output", func() {
				So(errors.Is(err, scoring.ErrNoStructuredOutput), ShouldBeTrue)
			})
		})

		Convey("When the model calls a different tool", func() {
			stub.resp = llm.Response{ToolCalls: []llm.ToolCall{{Name: "search", Args: json.RawMessage(validArgs)}}}
			_, err := s.Score(ctx, event, user)

			Convey("Then it is treated as no structured output", func() {
				So(errors.Is(err, scoring.ErrNoStructuredOutput), ShouldBeTrue)
			})
		})

		Convey("When the model call fails", func() {
			stub.err = llm.ErrUpstream
			_, err := s.Score(ctx, event, user)

			Convey("Then the error keeps both kinds", func() {
				So(errors.Is(err, scoring.ErrModel), ShouldBeTrue)
				So(errors.Is(err, llm.ErrUpstream), ShouldBeTrue)
			})
		})

		Convey("When a score is out of range", func() {
			stub.resp = toolAnswer(`{
				"constraint_time": {"reasoning": "a", "score": 11},
				"constraint_location": {"reasoning": "b", "score": 5},
				"constraint_other": {"reasoning": "c", "score": 5},
				"preference": {"reasoning": "d", "score": 5}
			}`)
			_, err := s.Score(ctx, event, user)

			Convey("Then the pair is rejected rather than clamped", func() {
				So(errors.Is(err, scoring.ErrScoreOutOfRange), ShouldBeTrue)
			})
		})
	})

	Convey("Given a model that never answers", t, func() {
		slow := llm.ModelFunc(func(ctx context.Context, _ llm.Request) (llm.Response, error) {
			<-ctx.Done()
			return llm.Response{}, ctx.Err()
		})
		s, err := scoring.New(slow, scoring.WithCallTimeout(20*time.Millisecond))
		So(err, ShouldBeNil)

		Convey("When scoring", func() {
			start := time.Now()
			_, err := s.Score(ctx, event, user)

			Convey("Then the per-call timeout ends the call", func() {
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
				So(errors.Is(err, scoring.ErrModel), ShouldBeTrue)
				So(time.Since(start), ShouldBeLessThan, 2*time.Second)
			})
		})
	})

	Convey("Given custom prompt options", t, func() {
		stub := &stubModel{resp: toolAnswer(validArgs)}
		s, err := scoring.New(stub,
			scoring.WithSystemPrompt("rate it"),
			scoring.WithExamples(nil),
			scoring.WithTemperature(0),
			scoring.WithMaxTokens(256),
		)
		So(err, ShouldBeNil)
		_, err = s.Score(ctx, event, user)
		So(err, ShouldBeNil)

		Convey("Then the request reflects them", func() {
			So(stub.last.System, ShouldEqual, "rate it")
			So(len(stub.last.Messages), ShouldEqual, 1)
			So(stub.last.Temperature, ShouldEqual, 0)
			So(stub.last.MaxTokens, ShouldEqual, 256)
		})
	})

	Convey("Given a nil model", t, func() {
		_, err := scoring.New(nil)
		So(err, ShouldNotBeNil)
	})
}

func TestParseScore(t *testing.T) {
	Convey("Given tool-call arguments", t, func() {
		Convey("When scores are integral floats", func() {
			rec, err := scoring.ParseScore([]byte(`{
				"constraint_time": {"reasoning": "a", "score": 7.0},
				"constraint_location": {"reasoning": "b", "score": 1},
				"constraint_other": {"reasoning": "c", "score": 10},
				"preference": {"reasoning": "d", "score": 4}
			}`))
			So(err, ShouldBeNil)
			So(rec.ConstraintTime.Score, ShouldEqual, 7)
		})

		Convey("When a score has a fractional part", func() {
			_, err := scoring.ParseScore([]byte(`{
				"constraint_time": {"reasoning": "a", "score": 7.5},
				"constraint_location": {"reasoning": "b", "score": 1},
				"constraint_other": {"reasoning": "c", "score": 10},
				"preference": {"reasoning": "d", "score": 4}
			}`))
			So(errors.Is(err, scoring.ErrInvalidOutput), ShouldBeTrue)
		})

		Convey("When a metric is missing", func() {
			_, err := scoring.ParseScore([]byte(`{
				"constraint_time": {"reasoning": "a", "score": 7},
				"constraint_location": {"reasoning": "b", "score": 1},
				"preference": {"reasoning": "d", "score": 4}
			}`))
			So(errors.Is(err, scoring.ErrInvalidOutput), ShouldBeTrue)
		})

		Convey("When a sub-score has no score", func() {
			_, err := scoring.ParseScore([]byte(`{
				"constraint_time": {"reasoning": "a"},
				"constraint_location": {"reasoning": "b", "score": 1},
				"constraint_other": {"reasoning": "c", "score": 10},
				"preference": {"reasoning": "d", "score": 4}
			}`))
			So(errors.Is(err, scoring.ErrInvalidOutput), ShouldBeTrue)
		})

		Convey("When an unknown field is present", func() {
			_, err := scoring.ParseScore([]byte(`{
				"constraint_time": {"reasoning": "a", "score": 7},
				"constraint_location": {"reasoning": "b", "score": 1},
				"constraint_other": {"reasoning": "c", "score": 10},
				"preference": {"reasoning": "d", "score": 4},
				"budget": {"reasoning": "e", "score": 2}
			}`))
			So(errors.Is(err, scoring.ErrInvalidOutput), ShouldBeTrue)
		})

		Convey("When a score is zero", func() {
			_, err := scoring.ParseScore([]byte(`{
				"constraint_time": {"reasoning": "a", "score": 0},
				"constraint_location": {"reasoning": "b", "score": 1},
				"constraint_other": {"reasoning": "c", "score": 10},
				"preference": {"reasoning": "d", "score": 4}
			}`))
			So(errors.Is(err, scoring.ErrScoreOutOfRange), ShouldBeTrue)
		})

		Convey("When the payload is not JSON", func() {
			_, err := scoring.ParseScore([]byte(`not json`))
			So(errors.Is(err, scoring.ErrInvalidOutput), ShouldBeTrue)
		})
	})
}

func TestScoreTool(t *testing.T) {
	Convey("Given the score tool declaration", t, func() {
		tool := scoring.ScoreTool()

		Convey("Then it requires all four metrics", func() {
			So(tool.Name, ShouldEqual, scoring.ToolName)
			So(tool.Parameters["required"], ShouldResemble, []string{
				"constraint_time", "constraint_location", "constraint_other", "preference",
			})
			props := tool.Parameters["properties"].(map[string]any)
			So(len(props), ShouldEqual, 4)
		})
	})
}
