// Package api delivers formatted content to providers over their HTTP
// completion endpoints, as the alternative to driving their web UIs.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"

	"github.com/pagerelay/pagerelay/pkg/catalog"
	"github.com/pagerelay/pagerelay/pkg/logging"
	"github.com/pagerelay/pagerelay/pkg/types"
)

var (
	// ErrNoCredential means the platform has no stored API key; callers
	// should fall back to automation rather than surface this to the user
	// as a hard failure.
	ErrNoCredential = errors.New("no credential stored for platform")

	// ErrAuthFailed means the provider rejected the key. Terminal: never
	// retried.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited means the provider throttled the request. Terminal
	// for this delivery; retrying immediately would only extend the
	// penalty window.
	ErrRateLimited = errors.New("rate limited")

	// ErrAPIUnsupported means the platform is automation-only.
	ErrAPIUnsupported = errors.New("platform has no API configuration")
)

// maxRetries is how many extra attempts follow a transport-level failure.
const maxRetries = 2

const defaultMaxOutputTokens = 4096

// CredentialSource supplies stored credentials. The credential manager
// satisfies this.
type CredentialSource interface {
	Get(platformID string) (types.Credential, bool, error)
}

// CompletionResult is the normalized outcome of a provider call, independent
// of the provider's wire format.
type CompletionResult struct {
	Content string
	Usage   types.TokenUsage
}

// Coordinator routes completion requests to provider HTTP APIs. Safe for
// concurrent use.
type Coordinator struct {
	catalog     *catalog.Catalog
	credentials CredentialSource
	httpClient  *http.Client
	log         *logging.Logger

	mu        sync.Mutex
	available map[string]bool // positive availability results, process lifetime
}

// NewCoordinator builds a coordinator over the platform catalog and a
// credential source.
func NewCoordinator(cat *catalog.Catalog, creds CredentialSource, log *logging.Logger) *Coordinator {
	return &Coordinator{
		catalog:     cat,
		credentials: creds,
		httpClient:  &http.Client{Timeout: 60 * time.Second},
		log:         log,
		available:   make(map[string]bool),
	}
}

// Complete sends the conversation to the platform's completion endpoint and
// returns the normalized result. Transport failures are retried up to
// maxRetries extra times; authentication and rate-limit rejections are
// terminal.
func (c *Coordinator) Complete(ctx context.Context, platformID string, messages []types.ChatMessage) (*CompletionResult, error) {
	cfg, cred, err := c.resolve(platformID)
	if err != nil {
		return nil, err
	}

	model := cred.Model
	if model == "" {
		model = cfg.DefaultModel
	}

	return c.complete(ctx, platformID, cfg, cred.APIKey, model, messages)
}

// resolve looks up the platform's API config and stored credential.
func (c *Coordinator) resolve(platformID string) (*catalog.APIConfig, types.Credential, error) {
	desc, err := c.catalog.Platform(platformID)
	if err != nil {
		return nil, types.Credential{}, err
	}
	if desc.API == nil {
		return nil, types.Credential{}, fmt.Errorf("%w: %s", ErrAPIUnsupported, platformID)
	}

	cred, ok, err := c.credentials.Get(platformID)
	if err != nil {
		return nil, types.Credential{}, err
	}
	if !ok || strings.TrimSpace(cred.APIKey) == "" {
		return nil, types.Credential{}, fmt.Errorf("%w: %s", ErrNoCredential, platformID)
	}

	return desc.API, cred, nil
}

func (c *Coordinator) complete(ctx context.Context, platformID string, cfg *catalog.APIConfig, apiKey, model string, messages []types.ChatMessage) (*CompletionResult, error) {
	body, err := encodeRequest(cfg.WireFormat, model, messages)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.log.Warnf("%s request retry %d after: %v", platformID, attempt, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		result, retryable, err := c.sendOnce(ctx, cfg, apiKey, body)
		if err == nil {
			return result, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries+1, lastErr)
}

// sendOnce performs a single HTTP round trip. The bool reports whether the
// failure is worth retrying.
func (c *Coordinator) sendOnce(ctx context.Context, cfg *catalog.APIConfig, apiKey string, body []byte) (*CompletionResult, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	switch cfg.AuthType {
	case catalog.AuthHeader:
		req.Header.Set(cfg.AuthHeader, apiKey)
	default:
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	for name, value := range cfg.ExtraHeaders {
		req.Header.Set(name, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, false, fmt.Errorf("%w (status %d): %s", ErrAuthFailed, resp.StatusCode, truncateBody(respBody))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, false, fmt.Errorf("%w: %s", ErrRateLimited, truncateBody(respBody))
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("provider error (status %d): %s", resp.StatusCode, truncateBody(respBody))
	default:
		return nil, false, fmt.Errorf("request rejected (status %d): %s", resp.StatusCode, truncateBody(respBody))
	}

	result, err := decodeResponse(cfg.WireFormat, respBody)
	if err != nil {
		return nil, false, err
	}
	return result, false, nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

// encodeRequest builds the provider-specific request body.
func encodeRequest(wireFormat, model string, messages []types.ChatMessage) ([]byte, error) {
	switch wireFormat {
	case "anthropic":
		return encodeAnthropicRequest(model, messages)
	case "openai", "":
		return encodeOpenAIRequest(model, messages)
	default:
		return nil, fmt.Errorf("unknown wire format %q", wireFormat)
	}
}

func encodeOpenAIRequest(model string, messages []types.ChatMessage) ([]byte, error) {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case types.RoleSystem:
			params = append(params, openai.SystemMessage(msg.Content))
		case types.RoleAssistant:
			params = append(params, openai.AssistantMessage(msg.Content))
		default:
			params = append(params, openai.UserMessage(msg.Content))
		}
	}

	body := map[string]interface{}{
		"model":    model,
		"messages": params,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return raw, nil
}

// anthropicMessage is the messages API entry shape. System content travels in
// a top-level field, not the message list.
type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func encodeAnthropicRequest(model string, messages []types.ChatMessage) ([]byte, error) {
	var system string
	converted := make([]anthropicMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == types.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			continue
		}
		converted = append(converted, anthropicMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	body := map[string]interface{}{
		"model":      model,
		"max_tokens": defaultMaxOutputTokens,
		"messages":   converted,
	}
	if system != "" {
		body["system"] = system
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return raw, nil
}

// decodeResponse normalizes a provider response body.
func decodeResponse(wireFormat string, body []byte) (*CompletionResult, error) {
	switch wireFormat {
	case "anthropic":
		return decodeAnthropicResponse(body)
	default:
		return decodeOpenAIResponse(body)
	}
}

func decodeOpenAIResponse(body []byte) (*CompletionResult, error) {
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("response contained no choices")
	}

	result := &CompletionResult{Content: parsed.Choices[0].Message.Content}
	result.Usage.Add(parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens)
	return result, nil
}

func decodeAnthropicResponse(body []byte) (*CompletionResult, error) {
	var parsed struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("response contained no text content")
	}

	result := &CompletionResult{Content: text.String()}
	result.Usage.Add(parsed.Usage.InputTokens, parsed.Usage.OutputTokens)
	return result, nil
}

// ValidateCredential confirms a key against the provider with a minimal
// single-attempt completion call. Implements the credential manager's
// Validator interface.
func (c *Coordinator) ValidateCredential(ctx context.Context, platformID string, cred types.Credential) types.ValidationResult {
	desc, err := c.catalog.Platform(platformID)
	if err != nil {
		return types.ValidationResult{IsValid: false, Message: err.Error()}
	}
	if desc.API == nil {
		return types.ValidationResult{IsValid: false, Message: "platform does not support API access"}
	}

	model := desc.API.ValidationModel
	if model == "" {
		model = desc.API.DefaultModel
	}

	body, err := encodeRequest(desc.API.WireFormat, model, []types.ChatMessage{
		{Role: types.RoleUser, Content: "ping"},
	})
	if err != nil {
		return types.ValidationResult{IsValid: false, Message: err.Error()}
	}

	_, _, err = c.sendOnce(ctx, desc.API, cred.APIKey, body)
	switch {
	case err == nil:
		return types.ValidationResult{IsValid: true, Message: "API key verified"}
	case errors.Is(err, ErrAuthFailed):
		return types.ValidationResult{IsValid: false, Message: "API key was rejected by the provider"}
	case errors.Is(err, ErrRateLimited):
		// Throttled means the key authenticated.
		return types.ValidationResult{IsValid: true, Message: "API key verified (provider is rate limiting)"}
	default:
		return types.ValidationResult{IsValid: false, Message: fmt.Sprintf("validation call failed: %v", err)}
	}
}

// CheckAvailability reports whether API mode is usable for a platform: an API
// configuration exists and a credential is stored. Positive answers are
// cached for the process lifetime; negative answers are re-checked so that
// storing a key flips availability without a restart.
func (c *Coordinator) CheckAvailability(platformID string) (bool, error) {
	c.mu.Lock()
	if c.available[platformID] {
		c.mu.Unlock()
		return true, nil
	}
	c.mu.Unlock()

	_, _, err := c.resolve(platformID)
	if err != nil {
		if errors.Is(err, ErrNoCredential) || errors.Is(err, ErrAPIUnsupported) {
			return false, nil
		}
		return false, err
	}

	c.mu.Lock()
	c.available[platformID] = true
	c.mu.Unlock()
	return true, nil
}

// ListModels returns the catalog's model list for a platform. Empty for
// automation-only platforms.
func (c *Coordinator) ListModels(platformID string) ([]string, error) {
	desc, err := c.catalog.Platform(platformID)
	if err != nil {
		return nil, err
	}
	return desc.Models(), nil
}
