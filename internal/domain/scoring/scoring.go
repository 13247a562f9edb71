// Package scoring scores one (event, user) pair with a generative model
// that must answer through a fixed structured-output schema.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/circlematch/internal/domain/llm"
	"github.com/okian/circlematch/internal/domain/model"
	"github.com/okian/circlematch/pkg/logger"
	"github.com/okian/circlematch/pkg/metrics"
)

// Defaults mirror the production model settings.
const (
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 1024
	DefaultCallTimeout = 30 * time.Second
)

// Scorer scores one pair of already formatted records.
type Scorer interface {
	// Score returns a complete, validated score record or an error; it
	// never fills in default scores.
	Score(ctx context.Context, event, user model.Record) (model.ScoreRecord, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, event, user model.Record) (model.ScoreRecord, error)

// Score calls f.
func (f ScorerFunc) Score(ctx context.Context, event, user model.Record) (model.ScoreRecord, error) {
	return f(ctx, event, user)
}

// LLMScorer implements Scorer with one model call per pair and no retries.
type LLMScorer struct {
	model        llm.Model
	systemPrompt string
	examples     []Example
	packed       []llm.Message
	tool         llm.Tool
	callTimeout  time.Duration
	temperature  float64
	maxTokens    int
	logger       logger.Logger
}

// New builds an LLMScorer around m.
func New(m llm.Model, opts ...Option) (*LLMScorer, error) {
	if m == nil {
		return nil, errors.New("scoring: model is nil")
	}
	s := &LLMScorer{
		model:        m,
		systemPrompt: SystemPrompt,
		examples:     DefaultExamples(),
		tool:         ScoreTool(),
		callTimeout:  DefaultCallTimeout,
		temperature:  DefaultTemperature,
		maxTokens:    DefaultMaxTokens,
		logger:       logger.Get().Named("scoring"),
	}
	for _, opt := range opts {
		opt(s)
	}

	packed, err := packExamples(s.examples)
	if err != nil {
		return nil, fmt.Errorf("scoring: encode examples: %w", err)
	}
	s.packed = packed
	return s, nil
}

// Request builds the chat request for a pair.
func (s *LLMScorer) Request(event, user model.Record) (llm.Request, error) {
	input, err := encodePair(event, user)
	if err != nil {
		return llm.Request{}, fmt.Errorf("%w: encode pair: %w", ErrModel, err)
	}
	messages := make([]llm.Message, 0, len(s.packed)+1)
	messages = append(messages, s.packed...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: input})
	return llm.Request{
		System:      s.systemPrompt,
		Messages:    messages,
		Tool:        s.tool,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	}, nil
}

// Score implements Scorer.
func (s *LLMScorer) Score(ctx context.Context, event, user model.Record) (model.ScoreRecord, error) {
	const op = "scoring.Score"

	req, err := s.Request(event, user)
	if err != nil {
		return model.ScoreRecord{}, fmt.Errorf("%s: %w", op, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	start := time.Now()
	resp, err := s.model.Generate(callCtx, req)
	latencyMs := float64(time.Since(start).Milliseconds())
	if err != nil {
		metrics.RecordModelCall("error", latencyMs)
		metrics.RecordErrorByComponent("scoring", "model_error")
		return model.ScoreRecord{}, fmt.Errorf("%s: %w: %w", op, ErrModel, err)
	}

	call, ok := findCall(resp, s.tool.Name)
	if !ok {
		metrics.RecordModelCall("no_tool_call", latencyMs)
		metrics.RecordErrorByComponent("scoring", "no_tool_call")
		s.logger.Warn(ctx, "model answered without a tool call", logger.Int("text_len", len(resp.Text)))
		return model.ScoreRecord{}, fmt.Errorf("%s: %w", op, ErrNoStructuredOutput)
	}

	rec, err := ParseScore(call.Args)
	if err != nil {
		metrics.RecordModelCall("invalid_output", latencyMs)
		metrics.RecordErrorByComponent("scoring", "invalid_output")
		s.logger.Warn(ctx, "model returned an invalid score", logger.Error(err))
		return model.ScoreRecord{}, fmt.Errorf("%s: %w", op, err)
	}

	metrics.RecordModelCall("success", latencyMs)
	return rec, nil
}

// findCall returns the first tool call named name.
func findCall(resp llm.Response, name string) (llm.ToolCall, bool) {
	for _, c := range resp.ToolCalls {
		if c.Name == name {
			return c, true
		}
	}
	return llm.ToolCall{}, false
}
