package gemini

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/okian/circlematch/internal/domain/llm"
)

// generateContent request body.
type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	Tools             []tool           `json:"tools,omitempty"`
	ToolConfig        *toolConfig      `json:"toolConfig,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text         string        `json:"text,omitempty"`
	FunctionCall *functionCall `json:"functionCall,omitempty"`
}

type functionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type tool struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations"`
}

type functionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type toolConfig struct {
	FunctionCallingConfig functionCallingConfig `json:"functionCallingConfig"`
}

type functionCallingConfig struct {
	Mode                 string   `json:"mode"`
	AllowedFunctionNames []string `json:"allowedFunctionNames,omitempty"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

// generateContent response body.
type generateResponse struct {
	Candidates     []candidate     `json:"candidates"`
	PromptFeedback *promptFeedback `json:"promptFeedback,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

const (
	roleUser  = "user"
	roleModel = "model"
)

func buildRequest(req llm.Request) generateRequest {
	out := generateRequest{
		Contents: make([]content, 0, len(req.Messages)),
		GenerationConfig: generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if req.System != "" {
		out.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}
	for _, m := range req.Messages {
		role := roleUser
		if m.Role == llm.RoleAssistant {
			role = roleModel
		}
		out.Contents = append(out.Contents, content{Role: role, Parts: []part{{Text: m.Content}}})
	}
	if req.Tool.Name != "" {
		out.Tools = []tool{{FunctionDeclarations: []functionDeclaration{{
			Name:        req.Tool.Name,
			Description: req.Tool.Description,
			Parameters:  upperTypes(req.Tool.Parameters),
		}}}}
		out.ToolConfig = &toolConfig{FunctionCallingConfig: functionCallingConfig{
			Mode:                 "ANY",
			AllowedFunctionNames: []string{req.Tool.Name},
		}}
	}
	return out
}

// upperTypes copies a JSON-schema map, rewriting "type" values to the
// upper-case enum names the API documents.
func upperTypes(schema map[string]any) map[string]any {
	if schema == nil {
		return nil
	}
	out := make(map[string]any, len(schema))
	for k, v := range schema {
		switch val := v.(type) {
		case string:
			if k == "type" {
				val = strings.ToUpper(val)
			}
			out[k] = val
		case map[string]any:
			out[k] = upperTypes(val)
		case []any:
			items := make([]any, len(val))
			for i, item := range val {
				if m, ok := item.(map[string]any); ok {
					items[i] = upperTypes(m)
				} else {
					items[i] = item
				}
			}
			out[k] = items
		default:
			out[k] = v
		}
	}
	return out
}

// parseResponse extracts tool calls and text from the first candidate.
func parseResponse(resp *generateResponse) (llm.Response, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return llm.Response{}, blocked(resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return llm.Response{}, llm.ErrNoOutput
	}

	c := resp.Candidates[0]
	if c.FinishReason == "SAFETY" || c.FinishReason == "PROHIBITED_CONTENT" {
		return llm.Response{}, blocked(c.FinishReason)
	}

	var out llm.Response
	var text strings.Builder
	for _, p := range c.Content.Parts {
		if p.FunctionCall != nil {
			out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
				Name: p.FunctionCall.Name,
				Args: []byte(p.FunctionCall.Args),
			})
		}
		text.WriteString(p.Text)
	}
	out.Text = text.String()
	if len(out.ToolCalls) == 0 && out.Text == "" {
		return llm.Response{}, llm.ErrNoOutput
	}
	return out, nil
}
