// Package web is the provider-free site mapper and scraper: it fetches pages
// directly (optionally through headless Chrome), collects links from the
// homepage and sitemap.xml, and converts HTML to markdown.
package web

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/shpitdev/impressum-resolver/internal/provider/httpx"
)

// Fetcher returns the HTML of a page.
type Fetcher interface {
	FetchHTML(ctx context.Context, pageURL string) (string, error)
}

// HTTPFetcher fetches pages with a plain GET.
type HTTPFetcher struct {
	http *httpx.Client
}

func NewHTTPFetcher(opts httpx.Options) (*HTTPFetcher, error) {
	hc, err := httpx.New("web", "", opts)
	if err != nil {
		return nil, err
	}
	return &HTTPFetcher{http: hc}, nil
}

func (f *HTTPFetcher) FetchHTML(ctx context.Context, pageURL string) (string, error) {
	b, hdr, err := f.http.Get(ctx, "fetch", pageURL)
	if err != nil {
		return "", err
	}
	if ct := hdr.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") && !strings.Contains(ct, "xml") {
		return "", fmt.Errorf("web fetch %s: unsupported content type %q", pageURL, ct)
	}
	return string(b), nil
}

// get exposes the raw body for non-HTML resources such as sitemap.xml.
func (f *HTTPFetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	b, _, err := f.http.Get(ctx, "fetch", rawURL)
	return b, err
}

// BrowserFetcher renders pages in headless Chrome, for sites that build
// their footer links with JavaScript.
type BrowserFetcher struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	settle   time.Duration
}

// NewBrowserFetcher starts a Chrome allocator. Close releases it.
func NewBrowserFetcher(userAgent string, settle time.Duration) *BrowserFetcher {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &BrowserFetcher{allocCtx: allocCtx, cancel: cancel, settle: settle}
}

func (b *BrowserFetcher) FetchHTML(ctx context.Context, pageURL string) (string, error) {
	tabCtx, cancelTab := chromedp.NewContext(b.allocCtx)
	defer cancelTab()

	// Tie the tab to the caller's deadline and cancellation.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body"),
		chromedp.Sleep(b.settle),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("browser render %s: %w", pageURL, err)
	}
	return html, nil
}

func (b *BrowserFetcher) Close() {
	if b.cancel != nil {
		b.cancel()
	}
}
