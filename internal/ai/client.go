package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/partscout/internal/filter"
	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrEmptyAnswer is returned when the completion has no content.
var ErrEmptyAnswer = errors.New("ai: empty answer")

// ClientConfig configures an OpenAI-compatible chat-completion endpoint.
type ClientConfig struct {
	// BaseURL defaults to https://api.openai.com/v1.
	BaseURL string
	APIKey  string
	// Model defaults to gpt-4o-mini.
	Model string
	// Timeout bounds one HTTP call. Zero means 20s.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client implements Classifier over /chat/completions.
type Client struct {
	rc    *resty.Client
	model string
	log   *slog.Logger
}

var _ Classifier = (*Client)(nil)

// NewClient builds the collaborator client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	log := cfg.Logger.With("component", "ai")

	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		rc.SetAuthToken(cfg.APIKey)
	}
	rc.OnAfterResponse(func(_ *resty.Client, r *resty.Response) error {
		log.Debug("chat completion", "status", r.StatusCode(), "duration", r.Time())
		return nil
	})

	return &Client{rc: rc, model: cfg.Model, log: log}
}

// SuggestCategory asks for a single category code.
func (c *Client) SuggestCategory(ctx context.Context, q CategoryQuery) (string, error) {
	answer, err := c.complete(ctx, categoryPrompt(q), fmt.Sprintf("Part number: %q", q.PartNumber))
	if err != nil {
		return "", err
	}
	code := cleanCode(answer)
	if code == "" {
		return "", ErrEmptyAnswer
	}
	return code, nil
}

// Classify asks for filter criteria and parses them as a filter.Set.
// Criteria of an unknown shape are dropped.
func (c *Client) Classify(ctx context.Context, q DetailsQuery) (filter.Set, error) {
	answer, err := c.complete(ctx, detailsPrompt(q), q.Text)
	if err != nil {
		return nil, err
	}
	raw := stripFence(answer)
	if !gjson.Valid(raw) {
		return nil, errors.New("ai: classify answer is not JSON")
	}
	root := gjson.Parse(raw)
	if !root.IsObject() {
		return nil, errors.New("ai: classify answer is not an object")
	}
	// One unusable criterion does not spoil the rest.
	set := make(filter.Set)
	root.ForEach(func(key, val gjson.Result) bool {
		v, err := filter.Parse([]byte(val.Raw))
		if err != nil {
			c.log.Debug("dropping unusable criterion", "caption", key.String(), "err", err)
			return true
		}
		set[key.String()] = v
		return true
	})
	return set, nil
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	body := `{"temperature":0,"messages":[{"role":"system"},{"role":"user"}]}`
	var err error
	for _, kv := range [][2]string{
		{"model", c.model},
		{"messages.0.content", system},
		{"messages.1.content", user},
	} {
		if body, err = sjson.Set(body, kv[0], kv[1]); err != nil {
			return "", fmt.Errorf("ai: build request: %w", err)
		}
	}

	resp, err := c.rc.R().
		SetContext(ctx).
		SetBody(body).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("ai: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("ai: status %d: %s", resp.StatusCode(), gjson.GetBytes(resp.Body(), "error.message").String())
	}

	content := gjson.GetBytes(resp.Body(), "choices.0.message.content").String()
	if content == "" {
		return "", ErrEmptyAnswer
	}
	return content, nil
}
