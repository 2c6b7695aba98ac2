// Package llm defines the structured-output completion contract shared by the
// Gemini and OpenAI adapters, plus schema-checked decoding of model replies.
package llm

import (
	"context"
	"strings"
)

// Property is one string field of a response schema.
type Property struct {
	Name        string
	Description string
	// Nullable fields must still be present but may be JSON null.
	Nullable bool
}

// Schema describes a flat JSON object whose fields are all strings.
// Every property is required; optional values are expressed as Nullable.
type Schema struct {
	Name        string
	Description string
	Properties  []Property
}

// Required lists every property name in declaration order.
func (s Schema) Required() []string {
	out := make([]string, 0, len(s.Properties))
	for _, p := range s.Properties {
		out = append(out, p.Name)
	}
	return out
}

// JSONSchema renders s as a draft-07 JSON Schema document that also satisfies
// OpenAI strict structured outputs.
func (s Schema) JSONSchema() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for _, p := range s.Properties {
		prop := map[string]any{"type": "string"}
		if p.Nullable {
			prop["type"] = []any{"string", "null"}
		}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
	}
	doc := map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             s.Required(),
		"additionalProperties": false,
	}
	if s.Description != "" {
		doc["description"] = s.Description
	}
	return doc
}

// Request is one structured-output completion.
type Request struct {
	// System is the instruction prompt.
	System string
	// Messages are sent as separate user turns, in order.
	Messages []string
	Schema   Schema
	// Temperature is always 0 for the resolver's calls; kept explicit so
	// adapters never fall back to a provider default.
	Temperature float64
}

// Completer returns the raw JSON text the model produced for req.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CleanJSONBlock removes markdown code fences models sometimes wrap JSON in.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if idx := strings.Index(text, "\n"); idx >= 0 {
		first := text[:idx]
		if len(first) < 20 && !strings.ContainsAny(first, " {") {
			text = text[idx+1:]
		}
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
