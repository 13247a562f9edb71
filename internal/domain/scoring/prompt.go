package scoring

import (
	"github.com/goccy/go-json"

	"github.com/okian/circlematch/internal/domain/llm"
	"github.com/okian/circlematch/internal/domain/model"
)

// SystemPrompt describes the rubric the model scores against.
const SystemPrompt = `You evaluate how well one event fits one person.

Score the event for the person on exactly four metrics:
- constraint_time: does the event's date and time fit the person's time constraints?
- constraint_location: does the venue fit the person's location constraints?
- constraint_other: does anything else in the person's constraints (budget, accessibility, company) clash with the event?
- preference: how well does the event match what the person enjoys?

For every metric give a short reasoning (one to three sentences) and an integer score from 1 to 10.

Scale:
- 10 means a perfect match.
- 5 means there is not enough information to decide.
- 1 means a direct conflict.
When data is missing or ambiguous, for example no location or no constraints, use 5. Never use 1 or 10 without evidence.

Always answer by calling the score_event tool.`

// Example is a worked input/output pair shown to the model before the real pair.
type Example struct {
	Event  model.Record
	User   model.Record
	Output model.ScoreRecord
}

// DefaultExamples are the built-in few-shot examples.
func DefaultExamples() []Example {
	return []Example{
		{
			Event: model.Record{
				"title":    "Metallica Concert",
				"location": "Friends Arena",
				"date":     "Sat 12-Apr-2025",
				"time":     "16:00",
			},
			User: model.Record{
				"name":   "Anna W",
				"age":    33,
				"gender": "female",
				"preferences": []model.Record{
					{"attribute_type": "preference", "description": "loves rock", "source": "manual"},
					{"attribute_type": "constraint", "description": "Works on weekdays 8-17.", "source": "calendar"},
				},
			},
			Output: model.ScoreRecord{
				ConstraintTime: &model.SubScore{
					Reasoning: "The concert is on a Saturday afternoon, outside Anna's weekday working hours.",
					Score:     10,
				},
				ConstraintLocation: &model.SubScore{
					Reasoning: "Friends Arena is not mentioned in any of Anna's location constraints.",
					Score:     5,
				},
				ConstraintOther: &model.SubScore{
					Reasoning: "No other constraints are known that affect this event.",
					Score:     5,
				},
				Preference: &model.SubScore{
					Reasoning: "Anna loves rock and Metallica is a rock band, so this is exactly her taste.",
					Score:     10,
				},
			},
		},
		{
			Event: model.Record{
				"title":    "Phantom of the Opera",
				"location": "Royal Opera House (Stockholm, Sweden)",
				"date":     "Tue 15-Apr-2025",
				"time":     "19:00",
			},
			User: model.Record{
				"name":    "James B",
				"age":     45,
				"gender":  "male",
				"address": "Stockholm, Sweden",
				"preferences": []model.Record{
					{"attribute_type": "preference", "description": "Likes pop and modern music.", "source": "manual"},
					{"attribute_type": "constraint", "description": "Works on weekdays 8-17.", "source": "calendar"},
				},
			},
			Output: model.ScoreRecord{
				ConstraintTime: &model.SubScore{
					Reasoning: "The show starts at 19:00 on a weekday, after James finishes work.",
					Score:     10,
				},
				ConstraintLocation: &model.SubScore{
					Reasoning: "The opera house is in Stockholm, the same city James lives in.",
					Score:     8,
				},
				ConstraintOther: &model.SubScore{
					Reasoning: "No other constraints are known that affect this event.",
					Score:     5,
				},
				Preference: &model.SubScore{
					Reasoning: "James prefers pop and modern music while this is a classic musical, so it is a weak fit.",
					Score:     3,
				},
			},
		},
	}
}

// pairInput is the JSON shape of one user turn.
type pairInput struct {
	Event model.Record `json:"event"`
	User  model.Record `json:"user"`
}

func encodePair(event, user model.Record) (string, error) {
	b, err := json.Marshal(pairInput{Event: event, User: user})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// packExamples turns examples into alternating user/assistant turns.
func packExamples(examples []Example) ([]llm.Message, error) {
	out := make([]llm.Message, 0, len(examples)*2)
	for _, ex := range examples {
		in, err := encodePair(ex.Event, ex.User)
		if err != nil {
			return nil, err
		}
		expected, err := json.Marshal(ex.Output)
		if err != nil {
			return nil, err
		}
		out = append(out,
			llm.Message{Role: llm.RoleUser, Content: in},
			llm.Message{Role: llm.RoleAssistant, Content: string(expected)},
		)
	}
	return out, nil
}
