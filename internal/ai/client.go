// Package ai talks to an OpenAI-compatible chat completions API and turns
// its answers into trade proposals.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// AIClient is a minimal chat completions client
type AIClient struct {
	provider    string
	model       string
	temperature float64
	client      *resty.Client
}

type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewAIClient creates a client for baseURL. The /v1 suffix is added when
// baseURL does not carry it already.
func NewAIClient(provider, apiKey, baseURL, model string, timeout time.Duration) *AIClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	endpoint := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(endpoint, "/v1") {
		endpoint += "/v1"
	}

	client := resty.New()
	client.SetBaseURL(endpoint)
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")
	client.SetAuthToken(apiKey)

	return &AIClient{
		provider:    provider,
		model:       model,
		temperature: 0.7,
		client:      client,
	}
}

// Provider names the configured backend
func (a *AIClient) Provider() string {
	return a.provider
}

// chat sends messages and returns the first choice's content
func (a *AIClient) chat(ctx context.Context, messages []Message) (string, error) {
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(ChatRequest{
			Model:       a.model,
			Messages:    messages,
			Temperature: a.temperature,
		}).
		Post("/chat/completions")
	if err != nil {
		return "", err
	}

	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("AI API error %d: %s", resp.StatusCode(), resp.String())
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(resp.Body(), &chatResp); err != nil {
		return "", err
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no response from AI")
	}

	return chatResp.Choices[0].Message.Content, nil
}
