// Package gemini implements llm.Model over the Gemini generateContent REST
// API with forced function calling.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/okian/circlematch/internal/domain/llm"
	"github.com/okian/circlematch/pkg/logger"
)

// Defaults for the production model.
const (
	DefaultModel   = "gemini-1.5-flash-latest"
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	defaultTimeout = 60 * time.Second
	apiKeyHeader   = "x-goog-api-key"
	generatePath   = "/v1beta/models/{model}:generateContent"
)

// ErrMissingAPIKey is returned by New without a key.
var ErrMissingAPIKey = errors.New("gemini: api key is required")

// Client calls the Gemini API. It is safe for concurrent use.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	rps     float64
	timeout time.Duration

	http    *resty.Client
	limiter *rate.Limiter
	logger  logger.Logger
}

// New creates a client authenticated with apiKey.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	c := &Client{
		apiKey:  apiKey,
		model:   DefaultModel,
		baseURL: DefaultBaseURL,
		timeout: defaultTimeout,
		logger:  logger.Get().Named("gemini"),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.http = resty.New().
		SetBaseURL(c.baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader(apiKeyHeader, c.apiKey).
		SetTimeout(c.timeout).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)

	if c.rps > 0 {
		burst := int(math.Max(1, math.Ceil(c.rps)))
		c.limiter = rate.NewLimiter(rate.Limit(c.rps), burst)
	}
	return c, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Generate implements llm.Model.
func (c *Client) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	const op = "gemini.Generate"

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return llm.Response{}, fmt.Errorf("%s: throttle: %w", op, err)
		}
	}

	var result generateResponse
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("model", c.model).
		SetBody(buildRequest(req)).
		SetResult(&result).
		SetError(&apiErr).
		Post(generatePath)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return llm.Response{}, fmt.Errorf("%s: %w", op, ctxErr)
		}
		return llm.Response{}, fmt.Errorf("%s: %w: %w", op, llm.ErrUpstream, err)
	}

	if resp.IsError() {
		c.logger.Warn(ctx, "model call rejected",
			logger.Int("status", resp.StatusCode()),
			logger.String("reason", apiErr.Error.Status),
		)
		return llm.Response{}, fmt.Errorf("%s: %w: status %d: %s", op, llm.ErrUpstream, resp.StatusCode(), apiErr.Error.Message)
	}

	out, err := parseResponse(&result)
	if err != nil {
		return llm.Response{}, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func blocked(reason string) error {
	return fmt.Errorf("%w: %s", llm.ErrBlocked, reason)
}
