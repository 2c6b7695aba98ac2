// Package httpx is the small JSON-over-HTTP client shared by the provider
// adapters (Serper, Firecrawl, OpenAI) and the native web fetcher.
package httpx

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/shpitdev/impressum-resolver/pkg/pipeline/core"
)

// DefaultMaxBodyBytes caps how much of a response body is read.
const DefaultMaxBodyBytes = 10 << 20

type Options struct {
	// CAPath optionally replaces the system trust store with a PEM bundle.
	CAPath    string
	Timeout   time.Duration
	UserAgent string
	// Header is sent with every request (API keys, auth).
	Header       http.Header
	MaxBodyBytes int64
}

// Client issues requests against one provider base URL.
type Client struct {
	name     string
	base     *url.URL
	http     *http.Client
	header   http.Header
	maxBytes int64
}

// New builds a client for the named provider. baseURL may be empty when the
// client is only used with absolute URLs.
func New(name, baseURL string, opts Options) (*Client, error) {
	var base *url.URL
	if strings.TrimSpace(baseURL) != "" {
		u, err := ParseBaseURL(baseURL, name)
		if err != nil {
			return nil, err
		}
		base = u
	}
	hc, err := newHTTPClient(opts.CAPath, opts.Timeout)
	if err != nil {
		return nil, err
	}
	header := opts.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if opts.UserAgent != "" {
		header.Set("User-Agent", opts.UserAgent)
	}
	maxBytes := opts.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	return &Client{name: name, base: base, http: hc, header: header, maxBytes: maxBytes}, nil
}

// ParseBaseURL normalizes a provider base URL so relative paths resolve under it.
func ParseBaseURL(raw string, name string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%s base URL is required", name)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s base URL: %w", name, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%s base URL must include a host (got %q)", name, raw)
	}
	// Ensure the base path ends with a slash so ResolveReference treats it as a directory.
	u.Path = strings.TrimRight(u.Path, "/") + "/"
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func newHTTPClient(caPath string, timeout time.Duration) (*http.Client, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if strings.TrimSpace(caPath) != "" {
		b, err := os.ReadFile(strings.TrimSpace(caPath))
		if err != nil {
			return nil, fmt.Errorf("read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(b); !ok {
			return nil, fmt.Errorf("parse CA bundle PEM: no certs found")
		}
		tr.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

// Resolve joins relPath onto the base URL.
func (c *Client) Resolve(relPath string) (*url.URL, error) {
	if c.base == nil {
		return nil, fmt.Errorf("%s: no base URL configured", c.name)
	}
	rel := &url.URL{Path: strings.TrimPrefix(relPath, "/")}
	return c.base.ResolveReference(rel), nil
}

// PostJSON sends in as a JSON body to relPath and decodes the 2xx reply into out.
func (c *Client) PostJSON(ctx context.Context, op, relPath string, in, out any) error {
	u, err := c.Resolve(relPath)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s %s: encode request: %w", c.name, op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	body, _, err := c.do(req, op)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s %s: parse response: %w", c.name, op, err)
	}
	return nil
}

// Get fetches an absolute URL and returns the (size-capped) body and headers.
func (c *Client) Get(ctx context.Context, op, rawURL string) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, err
	}
	return c.do(req, op)
}

func (c *Client) do(req *http.Request, op string) ([]byte, http.Header, error) {
	for k, vals := range c.header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, classifyTransport(fmt.Errorf("%s %s: %w", c.name, op, err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
	if err != nil {
		return nil, nil, classifyTransport(fmt.Errorf("%s %s: read body: %w", c.name, op, err))
	}
	if resp.StatusCode/100 != 2 {
		return nil, resp.Header, Classify(newHTTPError(c.name, op, resp, b))
	}
	return b, resp.Header, nil
}

func classifyTransport(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return &core.TransientError{Err: err}
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return &core.TransientError{Err: err}
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return &core.TransientError{Err: err}
	}
	return err
}
