package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/xeipuuv/gojsonschema"
)

// DecodeError reports a model reply that could not be decoded into the
// requested schema. It is never retried.
type DecodeError struct {
	Schema  string
	Snippet string
	Err     error
}

func (e *DecodeError) Error() string {
	if e == nil {
		return "decode error"
	}
	msg := fmt.Sprintf("decode %s response: %v", e.Schema, e.Err)
	if e.Snippet != "" {
		msg += fmt.Sprintf(" (body=%q)", e.Snippet)
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

const maxSnippet = 256

// Decode parses raw into T after checking it against schema. Malformed JSON is
// passed through jsonrepair once before giving up.
func Decode[T any](raw string, schema Schema) (T, error) {
	var out T
	text := CleanJSONBlock(raw)
	if text == "" {
		return out, decodeErr(schema, raw, errors.New("empty response"))
	}
	if !json.Valid([]byte(text)) {
		repaired, err := jsonrepair.JSONRepair(text)
		if err != nil {
			return out, decodeErr(schema, raw, fmt.Errorf("invalid json: %w", err))
		}
		text = repaired
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema.JSONSchema()),
		gojsonschema.NewStringLoader(text),
	)
	if err != nil {
		return out, decodeErr(schema, raw, fmt.Errorf("validate: %w", err))
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return out, decodeErr(schema, raw, fmt.Errorf("schema violation: %s", strings.Join(msgs, "; ")))
	}

	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return out, decodeErr(schema, raw, err)
	}
	return out, nil
}

func decodeErr(schema Schema, raw string, err error) error {
	snippet := strings.TrimSpace(raw)
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet] + "...(truncated)"
	}
	return &DecodeError{Schema: schema.Name, Snippet: snippet, Err: err}
}
