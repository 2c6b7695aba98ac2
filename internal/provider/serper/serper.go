// Package serper queries the Serper.dev Google search API.
package serper

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shpitdev/impressum-resolver/internal/provider/httpx"
)

const (
	DefaultBaseURL = "https://google.serper.dev"
	DefaultLocale  = "de"
)

type Config struct {
	APIKey  string
	BaseURL string
	// Locale is sent as the "gl" country parameter.
	Locale string
	// Num optionally asks for that many organic results.
	Num       int
	CAPath    string
	Timeout   time.Duration
	UserAgent string
}

type Client struct {
	http   *httpx.Client
	locale string
	num    int
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("SERPER_API_KEY is required")
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	locale := strings.TrimSpace(cfg.Locale)
	if locale == "" {
		locale = DefaultLocale
	}
	hc, err := httpx.New("serper", base, httpx.Options{
		CAPath:    cfg.CAPath,
		Timeout:   cfg.Timeout,
		UserAgent: cfg.UserAgent,
		Header:    http.Header{"X-API-KEY": []string{strings.TrimSpace(cfg.APIKey)}},
	})
	if err != nil {
		return nil, err
	}
	return &Client{http: hc, locale: locale, num: cfg.Num}, nil
}

// Result is one organic search hit.
type Result struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
}

type searchRequest struct {
	Q   string `json:"q"`
	GL  string `json:"gl"`
	Num int    `json:"num,omitempty"`
}

type searchResponse struct {
	Organic []Result `json:"organic"`
}

// Results returns the organic hits for query in rank order.
func (c *Client) Results(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("serper: empty query")
	}
	var resp searchResponse
	if err := c.http.PostJSON(ctx, "search", "search", searchRequest{Q: query, GL: c.locale, Num: c.num}, &resp); err != nil {
		return nil, err
	}
	return resp.Organic, nil
}

// Search returns the organic result links for query in rank order.
func (c *Client) Search(ctx context.Context, query string) ([]string, error) {
	results, err := c.Results(ctx, query)
	if err != nil {
		return nil, err
	}
	links := make([]string, 0, len(results))
	for _, r := range results {
		if link := strings.TrimSpace(r.Link); link != "" {
			links = append(links, link)
		}
	}
	return links, nil
}
