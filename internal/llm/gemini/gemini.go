// Package gemini adapts google.golang.org/genai to the llm.Completer contract
// using response schemas for structured output.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/shpitdev/impressum-resolver/internal/llm"
	"github.com/shpitdev/impressum-resolver/pkg/pipeline/core"
	"google.golang.org/genai"
)

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

type Completer struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, cfg Config) (*Completer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("GEMINI_MODEL is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &Completer{
		client: client,
		model:  strings.TrimSpace(cfg.Model),
	}, nil
}

// Model returns the configured model name.
func (c *Completer) Model() string { return c.model }

func (c *Completer) Complete(ctx context.Context, req llm.Request) (string, error) {
	if len(req.Messages) == 0 {
		return "", errors.New("gemini: request has no messages")
	}
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		contents = append(contents, genai.NewContentFromText(m, genai.RoleUser))
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(req.Temperature)),
		CandidateCount:   1,
		ResponseMIMEType: "application/json",
		ResponseSchema:   toGenaiSchema(req.Schema),
	}
	if strings.TrimSpace(req.System) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", classifyErr(err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini: empty response for schema %s", req.Schema.Name)
	}
	return text, nil
}

func toGenaiSchema(s llm.Schema) *genai.Schema {
	out := &genai.Schema{
		Type:        genai.TypeObject,
		Description: s.Description,
		Properties:  make(map[string]*genai.Schema, len(s.Properties)),
		Required:    s.Required(),
	}
	for _, p := range s.Properties {
		prop := &genai.Schema{Type: genai.TypeString, Description: p.Description}
		if p.Nullable {
			prop.Nullable = genai.Ptr(true)
		}
		out.Properties[p.Name] = prop
		out.PropertyOrdering = append(out.PropertyOrdering, p.Name)
	}
	return out
}

func classifyErr(err error) error {
	// Wrap transient failures so the stage retry loop backs off and tries again.
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code/100 == 5 {
			return &core.TransientError{Err: err}
		}
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &core.TransientError{Err: err}
	}
	return err
}
