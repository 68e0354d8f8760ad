package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dnldd/augur/shared"
	"github.com/tidwall/gjson"
)

// Provider represents the generative model provider.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderClaude Provider = "claude"
	ProviderOpenAI Provider = "openai"
)

const (
	// GeminiBaseURL is the default Gemini api base url.
	GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	// ClaudeBaseURL is the default Claude api base url.
	ClaudeBaseURL = "https://api.anthropic.com/v1"
	// OpenAIBaseURL is the default OpenAI api base url.
	OpenAIBaseURL = "https://api.openai.com/v1"
	// defaultTimeout is the default outbound request timeout.
	defaultTimeout = time.Second * 60
	// defaultMaxTokens is the default completion token budget.
	defaultMaxTokens = 1024
)

// DefaultModel returns the default model of the provided provider.
func DefaultModel(provider Provider) string {
	switch provider {
	case ProviderClaude:
		return "claude-sonnet-4-20250514"
	case ProviderOpenAI:
		return "gpt-4o-mini"
	default:
		return "gemini-1.5-flash"
	}
}

// DefaultBaseURL returns the default api base url of the provided provider.
func DefaultBaseURL(provider Provider) string {
	switch provider {
	case ProviderClaude:
		return ClaudeBaseURL
	case ProviderOpenAI:
		return OpenAIBaseURL
	default:
		return GeminiBaseURL
	}
}

// ClientConfig represents the generative model client configuration.
type ClientConfig struct {
	// Provider is the model provider.
	Provider Provider
	// APIKey is the provider api key.
	APIKey string
	// Model is the model name.
	Model string
	// BaseURL is the provider api base url.
	BaseURL string
	// MaxTokens is the completion token budget.
	MaxTokens int
	// Temperature is the sampling temperature.
	Temperature float64
	// Timeout is the outbound request timeout.
	Timeout time.Duration
}

// Validate asserts the config sane inputs.
func (cfg *ClientConfig) Validate() error {
	var errs error

	switch cfg.Provider {
	case ProviderGemini, ProviderClaude, ProviderOpenAI:
	default:
		errs = errors.Join(errs, fmt.Errorf("unsupported oracle provider: %q", cfg.Provider))
	}
	if cfg.APIKey == "" {
		errs = errors.Join(errs, fmt.Errorf("oracle api key cannot be an empty string"))
	}
	if cfg.Model == "" {
		errs = errors.Join(errs, fmt.Errorf("oracle model cannot be an empty string"))
	}
	if cfg.BaseURL == "" {
		errs = errors.Join(errs, fmt.Errorf("oracle base url cannot be an empty string"))
	}

	return errs
}

// Client is the generative model api client.
type Client struct {
	cfg   *ClientConfig
	httpc *http.Client
}

// NewClient initializes a new generative model client.
func NewClient(cfg *ClientConfig) (*Client, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, shared.NewError(shared.ConfigurationError, "", err)
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &Client{
		cfg:   cfg,
		httpc: &http.Client{Timeout: timeout},
	}, nil
}

// message represents a chat message.
type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Complete sends the provided prompt to the model and returns its text response.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	switch c.cfg.Provider {
	case ProviderClaude:
		return c.completeClaude(ctx, prompt)
	case ProviderOpenAI:
		return c.completeOpenAI(ctx, prompt)
	default:
		return c.completeGemini(ctx, prompt)
	}
}

// completeGemini sends a generate content request to the Gemini api.
func (c *Client) completeGemini(ctx context.Context, prompt string) (string, error) {
	req := map[string]any{
		"contents": []map[string]any{
			{"role": "user", "parts": []map[string]string{{"text": prompt}}},
		},
		"generationConfig": map[string]any{
			"temperature":     c.cfg.Temperature,
			"maxOutputTokens": c.cfg.MaxTokens,
		},
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.cfg.BaseURL, url.PathEscape(c.cfg.Model))
	resp, err := c.post(ctx, endpoint, req, map[string]string{"x-goog-api-key": c.cfg.APIKey})
	if err != nil {
		return "", err
	}

	if apiErr := resp.Get("error.message"); apiErr.Exists() {
		return "", shared.NewError(shared.UpstreamFetchError, resp.Raw, fmt.Errorf("gemini api error: %s", apiErr.String()))
	}

	text := resp.Get("candidates.0.content.parts.0.text")
	if !text.Exists() {
		return "", shared.NewError(shared.UpstreamFetchError, resp.Raw, fmt.Errorf("empty response from gemini"))
	}

	return text.String(), nil
}

// completeClaude sends a messages request to the Claude api.
func (c *Client) completeClaude(ctx context.Context, prompt string) (string, error) {
	req := map[string]any{
		"model":       c.cfg.Model,
		"max_tokens":  c.cfg.MaxTokens,
		"temperature": c.cfg.Temperature,
		"messages":    []message{{Role: "user", Content: prompt}},
	}

	resp, err := c.post(ctx, c.cfg.BaseURL+"/messages", req, map[string]string{
		"x-api-key":         c.cfg.APIKey,
		"anthropic-version": "2023-06-01",
	})
	if err != nil {
		return "", err
	}

	if apiErr := resp.Get("error.message"); apiErr.Exists() {
		return "", shared.NewError(shared.UpstreamFetchError, resp.Raw, fmt.Errorf("claude api error: %s", apiErr.String()))
	}

	text := resp.Get("content.0.text")
	if !text.Exists() {
		return "", shared.NewError(shared.UpstreamFetchError, resp.Raw, fmt.Errorf("empty response from claude"))
	}

	return text.String(), nil
}

// completeOpenAI sends a chat completion request to the OpenAI api.
func (c *Client) completeOpenAI(ctx context.Context, prompt string) (string, error) {
	req := map[string]any{
		"model":       c.cfg.Model,
		"max_tokens":  c.cfg.MaxTokens,
		"temperature": c.cfg.Temperature,
		"messages":    []message{{Role: "user", Content: prompt}},
	}

	resp, err := c.post(ctx, c.cfg.BaseURL+"/chat/completions", req, map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
	})
	if err != nil {
		return "", err
	}

	if apiErr := resp.Get("error.message"); apiErr.Exists() {
		return "", shared.NewError(shared.UpstreamFetchError, resp.Raw, fmt.Errorf("openai api error: %s", apiErr.String()))
	}

	text := resp.Get("choices.0.message.content")
	if !text.Exists() {
		return "", shared.NewError(shared.UpstreamFetchError, resp.Raw, fmt.Errorf("empty response from openai"))
	}

	return text.String(), nil
}

// post sends the provided json request and returns the parsed json response.
func (c *Client) post(ctx context.Context, endpoint string, payload any, headers map[string]string) (gjson.Result, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return gjson.Result{}, shared.NewError(shared.UpstreamFetchError, "",
			fmt.Errorf("requesting %s completion: %w", c.cfg.Provider, err))
	}

	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, shared.NewError(shared.UpstreamFetchError, "",
			fmt.Errorf("reading response body: %w", err))
	}

	if !gjson.ValidBytes(respBody) {
		return gjson.Result{}, shared.NewError(shared.UpstreamFetchError, string(respBody),
			fmt.Errorf("invalid json from %s, status %d", c.cfg.Provider, resp.StatusCode))
	}

	parsed := gjson.ParseBytes(respBody)
	if resp.StatusCode != http.StatusOK && !parsed.Get("error").Exists() {
		return gjson.Result{}, shared.NewError(shared.UpstreamFetchError, string(respBody),
			fmt.Errorf("unexpected status %d from %s", resp.StatusCode, c.cfg.Provider))
	}

	return parsed, nil
}
