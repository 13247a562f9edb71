package gemini

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/circlematch/internal/domain/llm"
	"github.com/okian/circlematch/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func sampleRequest() llm.Request {
	return llm.Request{
		System: "score it",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: `{"event":{}}`},
			{Role: llm.RoleAssistant, Content: `{"preference":{}}`},
			{Role: llm.RoleUser, Content: `{"event":{"title":"gig"}}`},
		},
		Tool: llm.Tool{
			Name:        "score_event",
			Description: "scores",
			Parameters: map[string]any{
				"type":     "object",
				"required": []any{"preference"},
				"properties": map[string]any{
					"preference": map[string]any{"type": "object"},
				},
			},
		},
		Temperature: 0.2,
		MaxTokens:   1024,
	}
}

func TestGenerate(t *testing.T) {
	Convey("Given a fake generateContent endpoint", t, func() {
		var gotPath, gotKey string
		var gotBody map[string]any
		reply := `{"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"score_event","args":{"preference":{"reasoning":"ok","score":7}}}}]},"finishReason":"STOP"}]}`
		status := http.StatusOK

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotKey = r.Header.Get("x-goog-api-key")
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, &gotBody)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = io.WriteString(w, reply)
		}))
		defer srv.Close()

		c, err := New("secret", WithBaseURL(srv.URL), WithModel("gemini-test"))
		So(err, ShouldBeNil)
		So(c.Model(), ShouldEqual, "gemini-test")

		Convey("When the model answers with a function call", func() {
			resp, err := c.Generate(context.Background(), sampleRequest())

			Convey("Then the call is returned with its raw arguments", func() {
				So(err, ShouldBeNil)
				So(resp.ToolCalls, ShouldHaveLength, 1)
				So(resp.ToolCalls[0].Name, ShouldEqual, "score_event")
				So(string(resp.ToolCalls[0].Args), ShouldContainSubstring, `"score":7`)
			})

			Convey("Then the request follows the API shape", func() {
				So(gotPath, ShouldEqual, "/v1beta/models/gemini-test:generateContent")
				So(gotKey, ShouldEqual, "secret")

				contents := gotBody["contents"].([]any)
				So(contents, ShouldHaveLength, 3)
				So(contents[1].(map[string]any)["role"], ShouldEqual, "model")

				sys := gotBody["systemInstruction"].(map[string]any)["parts"].([]any)[0].(map[string]any)
				So(sys["text"], ShouldEqual, "score it")

				decl := gotBody["tools"].([]any)[0].(map[string]any)["functionDeclarations"].([]any)[0].(map[string]any)
				params := decl["parameters"].(map[string]any)
				So(params["type"], ShouldEqual, "OBJECT")
				So(params["properties"].(map[string]any)["preference"].(map[string]any)["type"], ShouldEqual, "OBJECT")

				cfg := gotBody["toolConfig"].(map[string]any)["functionCallingConfig"].(map[string]any)
				So(cfg["mode"], ShouldEqual, "ANY")

				gen := gotBody["generationConfig"].(map[string]any)
				So(gen["temperature"], ShouldEqual, 0.2)
				So(gen["maxOutputTokens"], ShouldEqual, float64(1024))
			})
		})

		Convey("When the prompt is blocked", func() {
			reply = `{"promptFeedback":{"blockReason":"SAFETY"}}`
			_, err := c.Generate(context.Background(), sampleRequest())

			Convey("Then ErrBlocked is returned", func() {
				So(errors.Is(err, llm.ErrBlocked), ShouldBeTrue)
			})
		})

		Convey("When the candidate is cut for safety", func() {
			reply = `{"candidates":[{"content":{"parts":[]},"finishReason":"SAFETY"}]}`
			_, err := c.Generate(context.Background(), sampleRequest())

			Convey("Then ErrBlocked is returned", func() {
				So(errors.Is(err, llm.ErrBlocked), ShouldBeTrue)
			})
		})

		Convey("When there are no candidates", func() {
			reply = `{"candidates":[]}`
			_, err := c.Generate(context.Background(), sampleRequest())

			Convey("Then ErrNoOutput is returned", func() {
				So(errors.Is(err, llm.ErrNoOutput), ShouldBeTrue)
			})
		})

		Convey("When the model answers in plain text", func() {
			reply = `{"candidates":[{"content":{"parts":[{"text":"I think 7"}]}}]}`
			resp, err := c.Generate(context.Background(), sampleRequest())

			Convey("Then the text is returned without tool calls", func() {
				So(err, ShouldBeNil)
				So(resp.ToolCalls, ShouldBeEmpty)
				So(resp.Text, ShouldEqual, "I think 7")
			})
		})

		Convey("When the API rejects the call", func() {
			status = http.StatusTooManyRequests
			reply = `{"error":{"code":429,"message":"quota exhausted","status":"RESOURCE_EXHAUSTED"}}`
			_, err := c.Generate(context.Background(), sampleRequest())

			Convey("Then ErrUpstream carries the status and message", func() {
				So(errors.Is(err, llm.ErrUpstream), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "429")
				So(err.Error(), ShouldContainSubstring, "quota exhausted")
			})
		})
	})
}

func TestGenerateContext(t *testing.T) {
	Convey("Given a slow endpoint", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer srv.Close()

		c, _ := New("k", WithBaseURL(srv.URL))

		Convey("When the caller's deadline passes", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			_, err := c.Generate(ctx, sampleRequest())

			Convey("Then the context error is returned", func() {
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})
		})
	})
}

func TestThrottle(t *testing.T) {
	Convey("Given a client limited to 20 requests per second", t, func() {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"x"}]}}]}`)
		}))
		defer srv.Close()

		c, _ := New("k", WithBaseURL(srv.URL), WithRequestsPerSecond(20))

		Convey("When more calls than the burst are made", func() {
			start := time.Now()
			for i := 0; i < 25; i++ {
				_, err := c.Generate(context.Background(), sampleRequest())
				So(err, ShouldBeNil)
			}

			Convey("Then the extra calls wait for tokens", func() {
				So(hits.Load(), ShouldEqual, 25)
				So(time.Since(start), ShouldBeGreaterThanOrEqualTo, 200*time.Millisecond)
			})
		})

		Convey("When the context is already done", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			_, err := c.Generate(ctx, sampleRequest())

			Convey("Then the call fails before reaching the server", func() {
				So(err, ShouldNotBeNil)
				So(hits.Load(), ShouldEqual, 0)
			})
		})
	})
}

func TestNewRequiresKey(t *testing.T) {
	Convey("Given no API key", t, func() {
		_, err := New("")

		Convey("Then New fails", func() {
			So(errors.Is(err, ErrMissingAPIKey), ShouldBeTrue)
		})
	})
}
