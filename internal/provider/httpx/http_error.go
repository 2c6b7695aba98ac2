package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shpitdev/impressum-resolver/pkg/pipeline/core"
	"github.com/shpitdev/impressum-resolver/pkg/pipeline/redact"
)

// providerErrorEnvelope covers the error shapes returned by the providers we
// call: OpenAI {"error":{"message":..}}, Firecrawl {"error":".."}, Serper {"message":".."}.
type providerErrorEnvelope struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
}

// HTTPError is a sanitized summary of a non-2xx provider response.
//
// Important: do not include raw response bodies here (can leak PII/tokens).
type HTTPError struct {
	Provider   string
	Op         string
	StatusCode int
	Status     string
	Message    string

	// Snippet is a redacted, truncated hint when no error message was parsed.
	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "provider http error"
	}
	parts := []string{
		fmt.Sprintf("%s api error: op=%s status=%s", strings.TrimSpace(e.Provider), strings.TrimSpace(e.Op), strings.TrimSpace(e.Status)),
	}
	if strings.TrimSpace(e.Message) != "" {
		parts = append(parts, "message="+strings.TrimSpace(e.Message))
	}
	if strings.TrimSpace(e.Snippet) != "" {
		parts = append(parts, "body="+strings.TrimSpace(e.Snippet))
	}
	return strings.Join(parts, " ")
}

func newHTTPError(provider, op string, resp *http.Response, body []byte) *HTTPError {
	h := &HTTPError{Provider: provider, Op: op}
	if resp != nil {
		h.StatusCode = resp.StatusCode
		h.Status = resp.Status
	}

	var env providerErrorEnvelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil {
		msg := strings.TrimSpace(env.Message)
		if len(env.Error) > 0 {
			var s string
			var obj struct {
				Message string `json:"message"`
			}
			switch {
			case json.Unmarshal(env.Error, &s) == nil:
				msg = s
			case json.Unmarshal(env.Error, &obj) == nil && obj.Message != "":
				msg = obj.Message
			}
		}
		if msg = strings.TrimSpace(msg); msg != "" {
			h.Message = truncate(redact.Secrets(msg))
			return h
		}
	}

	// Fallback: include a small, redacted hint only.
	h.Snippet = redactAndTruncate(body)
	return h
}

// Classify wraps retryable HTTP failures so the stage retry loop backs off:
// 429 and 5xx are transient, 408 gets a single extra attempt.
func Classify(h *HTTPError) error {
	switch {
	case h == nil:
		return nil
	case h.StatusCode == http.StatusTooManyRequests || h.StatusCode/100 == 5:
		return &core.TransientError{Err: h}
	case h.StatusCode == http.StatusRequestTimeout:
		return &core.LimitedTransientError{Err: h, ExtraRetries: 1}
	default:
		return h
	}
}

// StatusCode extracts the HTTP status from err, or 0 when err is not an HTTPError.
func StatusCode(err error) int {
	var h *HTTPError
	if errors.As(err, &h) {
		return h.StatusCode
	}
	return 0
}

const maxSnippet = 256

func truncate(s string) string {
	if len(s) > maxSnippet {
		return s[:maxSnippet] + "..."
	}
	return s
}

func redactAndTruncate(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	// Keep this small: response bodies can contain sensitive data.
	b := body
	if len(b) > maxSnippet {
		b = b[:maxSnippet]
	}
	s := redact.Secrets(string(b))
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(body) > maxSnippet {
		return s + "..."
	}
	return s
}
