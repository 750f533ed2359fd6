package completion

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

	"github.com/pcastillo/lienzo/common/retry"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 30 * time.Second
)

// Config configures the OpenAI-compatible completion provider.
type Config struct {
	// APIKey is the bearer token used to authenticate against the API.
	APIKey string

	// BaseURL overrides the API endpoint. Useful for local models (Ollama),
	// Azure OpenAI, or any other OpenAI-compatible endpoint.
	// Defaults to https://api.openai.com/v1 when empty.
	BaseURL string

	// Model is the chat model to use. Defaults to gpt-4o-mini when empty.
	Model string

	// Timeout is the per-request HTTP timeout. Defaults to 30 s. Generation
	// calls made without an explicit orchestrator deadline inherit this.
	Timeout time.Duration

	// MaxTokens caps the completion length. Defaults to 1024.
	MaxTokens int
}

// openAIProvider implements Port against the OpenAI chat completions API,
// using JSON-mode output for Classify calls.
type openAIProvider struct {
	cfg    Config
	client *http.Client
}

// NewOpenAI returns a Port backed by the OpenAI (or compatible) chat API.
// The returned provider is safe for concurrent use.
func NewOpenAI(cfg Config) Port {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1024
	}
	return &openAIProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// --- minimal OpenAI wire types ---

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiRequest struct {
	Model          string       `json:"model"`
	Messages       []oaiMessage `json:"messages"`
	MaxTokens      int          `json:"max_tokens,omitempty"`
	ResponseFormat *oaiFormat   `json:"response_format,omitempty"`
}

type oaiFormat struct {
	Type string `json:"type"` // "json_object"
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

// httpStatusError carries an upstream non-2xx status so the retry policy
// can distinguish transient 5xx responses from everything else.
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("completion: upstream HTTP %d: %.200s", e.status, e.body)
}

// Classify implements Port. The model output is validated against
// req.Schema before being returned.
func (p *openAIProvider) Classify(ctx context.Context, req ClassifyRequest) (json.RawMessage, error) {
	messages := buildMessages(req.System, req.History, req.User)
	content, err := p.complete(ctx, messages, &oaiFormat{Type: "json_object"})
	if err != nil {
		return nil, err
	}
	raw := json.RawMessage(content)
	if err := ValidateJSON(req.Schema, raw); err != nil {
		return nil, fmt.Errorf("completion: classify output rejected: %w", err)
	}
	return raw, nil
}

// Generate implements Port.
func (p *openAIProvider) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	messages := buildMessages(req.System, req.History, req.User)
	return p.complete(ctx, messages, nil)
}

// buildMessages assembles the system prompt, prior turns, and current
// message into the wire format, in that order.
func buildMessages(system string, history []Message, user string) []oaiMessage {
	messages := make([]oaiMessage, 0, len(history)+2)
	if system != "" {
		messages = append(messages, oaiMessage{Role: "system", Content: system})
	}
	for _, m := range history {
		role := m.Role
		if role != "user" && role != "assistant" && role != "system" {
			role = "user"
		}
		messages = append(messages, oaiMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, oaiMessage{Role: "user", Content: user})
	return messages
}

// complete performs one chat-completions call, retrying transient upstream
// failures (network errors and 5xx) with short backoff. Client-side errors
// and malformed bodies are never retried.
func (p *openAIProvider) complete(ctx context.Context, messages []oaiMessage, format *oaiFormat) (string, error) {
	body := oaiRequest{
		Model:          p.cfg.Model,
		Messages:       messages,
		MaxTokens:      p.cfg.MaxTokens,
		ResponseFormat: format,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("completion: marshal request: %w", err)
	}

	var content string
	err = retry.Do(ctx, retry.Config{
		MaxAttempts:  2,
		InitialDelay: 250 * time.Millisecond,
		ShouldRetry: func(err error) bool {
			var se *httpStatusError
			if errors.As(err, &se) {
				return se.status >= 500
			}
			// Network-level failures are retryable; everything else
			// (429, API errors, malformed bodies) is not.
			var ue *url.Error
			return errors.As(err, &ue)
		},
	}, func() error {
		var callErr error
		content, callErr = p.call(ctx, data)
		return callErr
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

// call performs a single HTTP round trip and extracts the completion text.
func (p *openAIProvider) call(ctx context.Context, payload []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/chat/completions",
		bytes.NewReader(payload),
	)
	if err != nil {
		return "", fmt.Errorf("completion: create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("completion: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("completion: read response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrRateLimit
	}
	if resp.StatusCode >= 500 {
		return "", &httpStatusError{status: resp.StatusCode, body: string(respBody)}
	}

	var oaiResp oaiResponse
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return "", fmt.Errorf("completion: decode API response: %w", err)
	}
	if oaiResp.Error != nil {
		return "", fmt.Errorf("completion: API error (%s): %s", oaiResp.Error.Type, oaiResp.Error.Message)
	}
	if len(oaiResp.Choices) == 0 {
		return "", fmt.Errorf("completion: no choices returned (HTTP %d)", resp.StatusCode)
	}
	return oaiResp.Choices[0].Message.Content, nil
}
