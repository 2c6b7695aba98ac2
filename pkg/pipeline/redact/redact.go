// Package redact scrubs provider credentials out of strings before they are
// logged, stored or written to output.
package redact

import (
	"regexp"
	"strings"
)

type rule struct {
	re   *regexp.Regexp
	repl string
}

// Applied in order; earlier rules see the raw text.
var rules = []rule{
	// Authorization headers (OpenAI and Firecrawl keys travel this way).
	{regexp.MustCompile(`(?i)\bBearer\s+[^\s"']+`), "Bearer <redacted>"},
	// key=value and JSON/header forms, including Serper's X-API-KEY.
	{regexp.MustCompile(`(?i)\b(api[_-]?key|x-api-key|(?:serper|firecrawl|openai|gemini)[_-]?api[_-]?key)\b"?\s*[:=]\s*"?[^\s"',}]+`), "<redacted_kv>"},
	// Bare OpenAI "sk-..." and Firecrawl "fc-..." keys.
	{regexp.MustCompile(`\b(?:sk|fc)-[A-Za-z0-9_\-]{16,}`), "<redacted_key>"},
	// Userinfo in postgres:// and redis:// connection strings.
	{regexp.MustCompile(`(?i)\b([a-z][a-z0-9+.\-]*://)[^/\s:@]*:[^/\s@]+@`), "${1}<redacted>@"},
}

// Secrets removes obvious secret-bearing substrings from s.
func Secrets(s string) string {
	for _, r := range rules {
		if s == "" {
			break
		}
		s = r.re.ReplaceAllString(s, r.repl)
	}
	return strings.TrimSpace(s)
}
