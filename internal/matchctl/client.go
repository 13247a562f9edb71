package matchctl

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"

	"github.com/okian/circlematch/internal/domain/types"
)

// ErrStatus marks a non-2xx response.
var ErrStatus = errors.New("unexpected status")

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client calls the circlematch HTTP API.
type Client struct {
	http *resty.Client
}

// NewClient builds a client for cfg.BaseURL with the configured credentials.
func NewClient(cfg *Config, token string) *Client {
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)
	if cfg.APIKey != "" {
		c.SetHeader("X-API-KEY", cfg.APIKey)
	}
	if token != "" {
		c.SetAuthToken(token)
	}
	return &Client{http: c}
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		if e, ok := resp.Error().(*apiError); ok && e.Message != "" {
			return fmt.Errorf("%w: %d %s", ErrStatus, resp.StatusCode(), e.Message)
		}
		return fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode())
	}
	return nil
}

// Health checks /healthz.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).SetHeader("Accept", "text/plain").Get("/healthz")
	if err != nil {
		return err
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode())
	}
	return nil
}

// Events lists circle events.
func (c *Client) Events(ctx context.Context) (types.EventsResponse, error) {
	var out types.EventsResponse
	err := check(c.http.R().SetContext(ctx).SetResult(&out).SetError(&apiError{}).Get("/events"))
	return out, err
}

// Submit runs one matching session.
func (c *Client) Submit(ctx context.Context, req types.MatchingRequest) (types.MatchingResponse, error) {
	var out types.MatchingResponse
	err := check(c.http.R().SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&apiError{}).
		Post("/event-matching/submit"))
	return out, err
}

// Recommendations reads the stored recommendations of a session.
func (c *Client) Recommendations(ctx context.Context, sessionID string) (types.RecommendationsResponse, error) {
	var out types.RecommendationsResponse
	err := check(c.http.R().SetContext(ctx).
		SetPathParam("id", sessionID).
		SetResult(&out).
		SetError(&apiError{}).
		Get("/sessions/{id}/recommendations"))
	return out, err
}
