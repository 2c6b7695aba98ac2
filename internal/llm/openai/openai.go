// Package openai calls the OpenAI chat completions API with strict
// json_schema response formats.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shpitdev/impressum-resolver/internal/llm"
	"github.com/shpitdev/impressum-resolver/internal/provider/httpx"
)

const DefaultBaseURL = "https://api.openai.com/v1"

type Config struct {
	APIKey string
	Model  string
	// BaseURL overrides the API base (proxies, Azure-compatible gateways, mocks).
	BaseURL   string
	CAPath    string
	Timeout   time.Duration
	UserAgent string
}

type Completer struct {
	http  *httpx.Client
	model string
}

func New(cfg Config) (*Completer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("OPENAI_MODEL is required")
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	hc, err := httpx.New("openai", base, httpx.Options{
		CAPath:    cfg.CAPath,
		Timeout:   cfg.Timeout,
		UserAgent: cfg.UserAgent,
		Header:    http.Header{"Authorization": []string{"Bearer " + strings.TrimSpace(cfg.APIKey)}},
	})
	if err != nil {
		return nil, err
	}
	return &Completer{http: hc, model: strings.TrimSpace(cfg.Model)}, nil
}

// Model returns the configured model name.
func (c *Completer) Model() string { return c.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict"`
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (c *Completer) Complete(ctx context.Context, req llm.Request) (string, error) {
	if len(req.Messages) == 0 {
		return "", errors.New("openai: request has no messages")
	}
	msgs := make([]chatMessage, 0, len(req.Messages)+1)
	if strings.TrimSpace(req.System) != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, chatMessage{Role: "user", Content: m})
	}

	temp := req.Temperature
	body := chatRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: &temp,
		ResponseFormat: &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaFormat{
				Name:   req.Schema.Name,
				Schema: req.Schema.JSONSchema(),
				Strict: true,
			},
		},
	}

	var resp chatResponse
	if err := c.http.PostJSON(ctx, "chat.completions", "chat/completions", body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices returned for schema %s", req.Schema.Name)
	}
	choice := resp.Choices[0]
	if strings.TrimSpace(choice.Message.Refusal) != "" {
		return "", fmt.Errorf("openai: model refused: %s", choice.Message.Refusal)
	}
	if strings.TrimSpace(choice.Message.Content) == "" {
		return "", fmt.Errorf("openai: empty content (finish_reason=%s)", choice.FinishReason)
	}
	return choice.Message.Content, nil
}
