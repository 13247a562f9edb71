// Package llm defines the vendor-neutral contract for chat models that
// answer through a single structured tool call.
package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// Role of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role
	Content string
}

// Tool declares the function the model must call to answer.
// Parameters is a JSON-schema style object.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is a complete chat request.
type Request struct {
	System      string
	Messages    []Message
	Tool        Tool
	Temperature float64
	MaxTokens   int
}

// ToolCall is a structured answer returned by the model.
type ToolCall struct {
	Name string
	Args json.RawMessage
}

// Response carries every tool call plus any free text the model produced.
type Response struct {
	ToolCalls []ToolCall
	Text      string
}

// Model generates a response for a request.
type Model interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// Sentinel errors returned by Model implementations.
var (
	ErrUpstream = errors.New("model upstream error")
	ErrBlocked  = errors.New("model refused the prompt")
	ErrNoOutput = errors.New("model returned no output")
)

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, req Request) (Response, error)

// Generate calls f.
func (f ModelFunc) Generate(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
