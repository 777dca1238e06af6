package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Known base URLs for providers that speak the OpenAI chat completions format.
var compatBaseURLs = map[string]string{
	"deepseek": "https://api.deepseek.com/v1",
	"mistral":  "https://api.mistral.ai/v1",
	"xai":      "https://api.x.ai/v1",
}

// CompatAdapter implements the Adapter interface for OpenAI-compatible APIs
// (DeepSeek, Mistral, xAI).
type CompatAdapter struct {
	name       string
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type compatRequest struct {
	Model     string          `json:"model"`
	Messages  []compatMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

type compatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type compatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// NewCompatAdapter creates an adapter for a named OpenAI-compatible provider.
// An empty baseURL selects the provider's public endpoint.
func NewCompatAdapter(name, apiKey, baseURL string) (*CompatAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s API key is required", name)
	}
	if baseURL == "" {
		known, ok := compatBaseURLs[name]
		if !ok {
			return nil, fmt.Errorf("no base URL known for provider %s", name)
		}
		baseURL = known
	}

	return &CompatAdapter{
		name:       name,
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}, nil
}

// Name returns the adapter identifier.
func (a *CompatAdapter) Name() string {
	return a.name
}

// Generate posts a chat completion request and returns the first choice.
func (a *CompatAdapter) Generate(ctx context.Context, model string, prompt string, maxTokens int) (string, error) {
	reqBody := compatRequest{
		Model: model,
		Messages: []compatMessage{
			{Role: "user", Content: prompt},
		},
		MaxTokens: maxTokens,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s API request failed: %w", a.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp.StatusCode, fmt.Errorf("%s API returned status %d: %s", a.name, resp.StatusCode, string(body)))
	}

	var compatResp compatResponse
	if err := json.Unmarshal(body, &compatResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if compatResp.Error != nil {
		return "", fmt.Errorf("%s API error: %s (type: %s)", a.name, compatResp.Error.Message, compatResp.Error.Type)
	}

	if len(compatResp.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", a.name)
	}

	return compatResp.Choices[0].Message.Content, nil
}
