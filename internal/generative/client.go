// Package generative asks a hosted language model for weather and places.
package generative

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/kjstillabower/atmo/internal/models"
	"github.com/kjstillabower/atmo/internal/observability"
)

// Upstream is the metrics label for model calls.
const Upstream = "generative"

const (
	DefaultModel   = "gpt-4o-mini-search-preview"
	DefaultTimeout = 45 * time.Second
)

// Config configures the model client. An empty APIKey is allowed: every call
// then fails with ErrConfigurationMissing instead of reaching the network.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// WebSearch grounds answers in live search results (web_search_options).
	WebSearch bool
	// StructuredOutput requests a JSON-schema constrained response. When false the
	// first JSON object is extracted from free text.
	StructuredOutput bool
	Timeout          time.Duration
}

// Client is a thin wrapper over the chat completions API shared by the weather
// source, the place finder and the labeler.
type Client struct {
	api        openai.Client
	model      string
	webSearch  bool
	structured bool
	missing    bool
}

// NewClient builds a Client. The SDK's automatic retries are disabled.
func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Client{
		model:      cfg.Model,
		webSearch:  cfg.WebSearch,
		structured: cfg.StructuredOutput,
		missing:    strings.TrimSpace(cfg.APIKey) == "",
	}
	if c.missing {
		return c
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	c.api = openai.NewClient(opts...)
	return c
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return !c.missing
}

type completion struct {
	content   string
	citations []models.Citation
}

type completionRequest struct {
	system    string
	user      string
	schema    *jsonSchema
	webSearch bool
}

func (c *Client) complete(ctx context.Context, req completionRequest) (completion, error) {
	if c.missing {
		return completion{}, fmt.Errorf("openai api key: %w", models.ErrConfigurationMissing)
	}

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.system),
			openai.UserMessage(req.user),
		},
	}
	if req.webSearch && c.webSearch {
		params.WebSearchOptions = openai.ChatCompletionNewParamsWebSearchOptions{
			SearchContextSize: "low",
		}
	}
	if req.schema != nil && c.structured {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   req.schema.name,
					Schema: req.schema.schema,
					Strict: openai.Bool(true),
				},
			},
		}
	}

	start := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, params)
	if err != nil {
		err = classifyAPIError(err)
		observability.ObserveUpstream(Upstream, statusOf(err), time.Since(start).Seconds())
		return completion{}, err
	}
	observability.ObserveUpstream(Upstream, "success", time.Since(start).Seconds())

	if len(resp.Choices) == 0 {
		return completion{}, fmt.Errorf("%w: model returned no choices", models.ErrUpstreamMalformed)
	}
	msg := resp.Choices[0].Message
	if strings.TrimSpace(msg.Content) == "" {
		return completion{}, fmt.Errorf("%w: empty model response", models.ErrUpstreamMalformed)
	}

	out := completion{content: msg.Content}
	for _, a := range msg.Annotations {
		if a.URLCitation.URL == "" {
			continue
		}
		out.citations = append(out.citations, models.Citation{
			Title: a.URLCitation.Title,
			URL:   a.URLCitation.URL,
		})
	}
	return out, nil
}

// classifyAPIError converts SDK and transport errors to the shared sentinels.
// A rejected key is reported as missing configuration since retrying cannot help.
func classifyAPIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", models.ErrUpstreamQuotaExceeded, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: api key rejected: %w", models.ErrConfigurationMissing, err)
		case http.StatusBadRequest:
			return fmt.Errorf("%w: %w", models.ErrUpstreamMalformed, err)
		}
	}
	return fmt.Errorf("%w: %w", models.ErrNetworkUnavailable, err)
}

func statusOf(err error) string {
	switch {
	case errors.Is(err, models.ErrUpstreamQuotaExceeded):
		return "rate_limited"
	case errors.Is(err, models.ErrConfigurationMissing):
		return "unauthorized"
	case errors.Is(err, models.ErrUpstreamMalformed):
		return "client_error"
	}
	return "error"
}
