// Package firecrawl maps and scrapes sites through the Firecrawl API.
package firecrawl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shpitdev/impressum-resolver/internal/provider/httpx"
)

const DefaultBaseURL = "https://api.firecrawl.dev"

type Config struct {
	APIKey  string
	BaseURL string
	// MapLimit caps the number of links a map call returns. 0 uses the API default.
	MapLimit  int
	CAPath    string
	Timeout   time.Duration
	UserAgent string
}

type Client struct {
	http     *httpx.Client
	mapLimit int
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("FIRECRAWL_API_KEY is required")
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	hc, err := httpx.New("firecrawl", base, httpx.Options{
		CAPath:    cfg.CAPath,
		Timeout:   cfg.Timeout,
		UserAgent: cfg.UserAgent,
		Header:    http.Header{"Authorization": []string{"Bearer " + strings.TrimSpace(cfg.APIKey)}},
	})
	if err != nil {
		return nil, err
	}
	return &Client{http: hc, mapLimit: cfg.MapLimit}, nil
}

// UnsuccessfulError is returned when Firecrawl answers 2xx but reports
// success=false, or the scraped page itself returned an error status.
type UnsuccessfulError struct {
	Op      string
	URL     string
	Message string
}

func (e *UnsuccessfulError) Error() string {
	if e == nil {
		return "firecrawl: unsuccessful"
	}
	msg := fmt.Sprintf("firecrawl %s %s: unsuccessful", e.Op, e.URL)
	if strings.TrimSpace(e.Message) != "" {
		msg += ": " + strings.TrimSpace(e.Message)
	}
	return msg
}

type mapRequest struct {
	URL               string `json:"url"`
	IncludeSubdomains bool   `json:"includeSubdomains"`
	Limit             int    `json:"limit,omitempty"`
}

type mapResponse struct {
	Success bool              `json:"success"`
	Error   string            `json:"error"`
	Links   []json.RawMessage `json:"links"`
}

// Map lists the URLs Firecrawl discovers under siteRoot, subdomains included.
// Links are only trusted when the response reports success.
func (c *Client) Map(ctx context.Context, siteRoot string) ([]string, error) {
	var resp mapResponse
	err := c.http.PostJSON(ctx, "map", "v1/map", mapRequest{
		URL:               siteRoot,
		IncludeSubdomains: true,
		Limit:             c.mapLimit,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &UnsuccessfulError{Op: "map", URL: siteRoot, Message: resp.Error}
	}
	links := make([]string, 0, len(resp.Links))
	for _, raw := range resp.Links {
		if link := linkFromRaw(raw); link != "" {
			links = append(links, link)
		}
	}
	return links, nil
}

// linkFromRaw accepts both plain string links and {"url": ...} objects.
func linkFromRaw(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		URL string `json:"url"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return strings.TrimSpace(obj.URL)
	}
	return ""
}

type scrapeRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Markdown string `json:"markdown"`
		Metadata struct {
			StatusCode int    `json:"statusCode"`
			Error      string `json:"error"`
		} `json:"metadata"`
	} `json:"data"`
}

// Scrape returns the markdown rendering of pageURL.
func (c *Client) Scrape(ctx context.Context, pageURL string) (string, error) {
	var resp scrapeResponse
	err := c.http.PostJSON(ctx, "scrape", "v1/scrape", scrapeRequest{
		URL:     pageURL,
		Formats: []string{"markdown"},
	}, &resp)
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", &UnsuccessfulError{Op: "scrape", URL: pageURL, Message: resp.Error}
	}
	if code := resp.Data.Metadata.StatusCode; code >= 400 {
		return "", &UnsuccessfulError{Op: "scrape", URL: pageURL, Message: fmt.Sprintf("page status %d %s", code, resp.Data.Metadata.Error)}
	}
	return resp.Data.Markdown, nil
}
