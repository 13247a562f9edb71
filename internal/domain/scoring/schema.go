package scoring

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/okian/circlematch/internal/domain/llm"
	"github.com/okian/circlematch/internal/domain/model"
)

// ToolName is the function the model must call with its scores.
const ToolName = "score_event"

var validate = validator.New(validator.WithRequiredStructEnabled()) //nolint:gochecknoglobals

// ScoreTool returns the structured-output declaration sent with every request.
func ScoreTool() llm.Tool {
	return llm.Tool{
		Name:        ToolName,
		Description: "Record the four metric scores for the event and person. Always use this tool to answer.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				string(model.MetricConstraintTime):     subScoreSchema("Fit with the person's time constraints."),
				string(model.MetricConstraintLocation): subScoreSchema("Fit with the person's location constraints."),
				string(model.MetricConstraintOther):    subScoreSchema("Fit with any other constraints."),
				string(model.MetricPreference):         subScoreSchema("Fit with the person's preferences."),
			},
			"required": []string{
				string(model.MetricConstraintTime),
				string(model.MetricConstraintLocation),
				string(model.MetricConstraintOther),
				string(model.MetricPreference),
			},
		},
	}
}

func subScoreSchema(description string) map[string]any {
	return map[string]any{
		"type":        "object",
		"description": description,
		"properties": map[string]any{
			"reasoning": map[string]any{
				"type":        "string",
				"description": "One to three sentences explaining the score.",
			},
			"score": map[string]any{
				"type":        "integer",
				"description": "10 = perfect match, 5 = not enough information, 1 = direct conflict.",
				"minimum":     model.MinScore,
				"maximum":     model.MaxScore,
			},
		},
		"required": []string{"reasoning", "score"},
	}
}

// wholeNumber accepts JSON numbers with no fractional part, so 7 and 7.0
// decode while 7.5 does not.
type wholeNumber int

func (n *wholeNumber) UnmarshalJSON(b []byte) error {
	f, err := strconv.ParseFloat(string(bytes.TrimSpace(b)), 64)
	if err != nil {
		return fmt.Errorf("score must be a number, got %s", b)
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return fmt.Errorf("score must be an integer, got %s", b)
	}
	*n = wholeNumber(f)
	return nil
}

type subScorePayload struct {
	Reasoning *string      `json:"reasoning" validate:"required"`
	Score     *wholeNumber `json:"score" validate:"required,min=1,max=10"`
}

type scorePayload struct {
	ConstraintTime     *subScorePayload `json:"constraint_time" validate:"required"`
	ConstraintLocation *subScorePayload `json:"constraint_location" validate:"required"`
	ConstraintOther    *subScorePayload `json:"constraint_other" validate:"required"`
	Preference         *subScorePayload `json:"preference" validate:"required"`
}

// ParseScore decodes and validates tool-call arguments into a ScoreRecord.
// Unknown fields, missing metrics, non-integer scores and scores outside
// [1,10] are all rejected.
func ParseScore(args []byte) (model.ScoreRecord, error) {
	var p scorePayload
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return model.ScoreRecord{}, fmt.Errorf("%w: %w", ErrInvalidOutput, err)
	}

	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Tag() == "min" || fe.Tag() == "max" {
					return model.ScoreRecord{}, fmt.Errorf("%w: %s=%v", ErrScoreOutOfRange, fe.Namespace(), fe.Value())
				}
			}
		}
		return model.ScoreRecord{}, fmt.Errorf("%w: %w", ErrInvalidOutput, err)
	}

	return model.ScoreRecord{
		ConstraintTime:     p.ConstraintTime.subScore(),
		ConstraintLocation: p.ConstraintLocation.subScore(),
		ConstraintOther:    p.ConstraintOther.subScore(),
		Preference:         p.Preference.subScore(),
	}, nil
}

func (p *subScorePayload) subScore() *model.SubScore {
	return &model.SubScore{Reasoning: *p.Reasoning, Score: int(*p.Score)}
}
