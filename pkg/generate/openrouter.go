// Package generate calls the upstream text-generation provider.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sibyl-ai/sibyl/pkg/config"
	"github.com/sibyl-ai/sibyl/pkg/models"
)

// Generator produces a fresh saying for a system/user prompt pair.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (models.Saying, error)
}

// Client is an OpenRouter-compatible chat completions client.
type Client struct {
	cfg  config.OpenRouterConfig
	http *http.Client
}

// NewClient creates a Client for the configured provider.
func NewClient(cfg config.OpenRouterConfig) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Index   int         `json:"index"`
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate sends the prompts to the provider and wraps the first choice in a
// Saying with source llm.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (models.Saying, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return models.Saying{}, fmt.Errorf("encode request: %w", err)
	}

	url := c.cfg.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return models.Saying{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return models.Saying{}, fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Saying{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return models.Saying{}, fmt.Errorf("provider returned %d: %s", resp.StatusCode, respBody)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return models.Saying{}, fmt.Errorf("decode response: %w", err)
	}

	content := "No response from LLM"
	if len(parsed.Choices) > 0 {
		content = parsed.Choices[0].Message.Content
	}

	return models.Saying{
		ID:        uuid.NewString(),
		Content:   content,
		Prompt:    userPrompt,
		CreatedAt: time.Now().UTC(),
		Source:    models.SourceGenerated,
	}, nil
}
