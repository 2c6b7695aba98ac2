package resolve

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/shpitdev/impressum-resolver/internal/llm"
)

const normalizeSystemPrompt = `Extract the base URL from the link the user sends.
Return only the scheme and host, without any path, query parameters or fragments.
If the URL already contains only the base URL, return it unchanged.`

var cleanLinkSchema = llm.Schema{
	Name:        "clean_link",
	Description: "The base URL of a website.",
	Properties: []llm.Property{
		{Name: "clean_link", Description: "The https base URL, e.g. 'https://www.otinga.io'."},
	},
}

type cleanLink struct {
	CleanLink string `json:"clean_link"`
}

// LinkNormalizer reduces an arbitrary page URL to its site root.
type LinkNormalizer struct {
	completer llm.Completer
}

// NewLinkNormalizer returns a normalizer backed by completer. A nil completer
// normalizes with net/url alone.
func NewLinkNormalizer(completer llm.Completer) *LinkNormalizer {
	return &LinkNormalizer{completer: completer}
}

// Normalize returns the site root of raw. Every failure is a *NormalizationError.
func (n *LinkNormalizer) Normalize(ctx context.Context, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &NormalizationError{Input: raw, Err: errors.New("empty link")}
	}
	if root, err := SiteRoot(raw); err == nil && root == strings.TrimSuffix(raw, "/") {
		return root, nil
	}
	if n.completer == nil {
		root, err := SiteRoot(raw)
		if err != nil {
			return "", &NormalizationError{Input: raw, Err: err}
		}
		return root, nil
	}

	text, err := n.completer.Complete(ctx, llm.Request{
		System:   normalizeSystemPrompt,
		Messages: []string{raw},
		Schema:   cleanLinkSchema,
	})
	if err != nil {
		return "", &NormalizationError{Input: raw, Err: err}
	}
	parsed, err := llm.Decode[cleanLink](text, cleanLinkSchema)
	if err != nil {
		return "", &NormalizationError{Input: raw, Err: err}
	}
	root, err := SiteRoot(parsed.CleanLink)
	if err != nil {
		return "", &NormalizationError{Input: raw, Err: fmt.Errorf("model returned %q: %w", parsed.CleanLink, err)}
	}
	return root, nil
}

// SiteRoot reduces raw to scheme://host[:port]. A missing scheme defaults to https.
func SiteRoot(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + strings.TrimPrefix(raw, "//")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := strings.ToLower(u.Host)
	if u.Hostname() == "" || strings.ContainsAny(host, " \t") {
		return "", errors.New("missing host")
	}
	return scheme + "://" + host, nil
}
