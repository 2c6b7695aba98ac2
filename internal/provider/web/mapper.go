package web

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
)

type MapperOptions struct {
	// MaxLinks caps the link set. Defaults to 2000.
	MaxLinks int
	// MaxChildSitemaps caps how many nested sitemaps of an index are read.
	MaxChildSitemaps int
}

// Mapper lists a site's links from its homepage and sitemap.xml.
type Mapper struct {
	pages    Fetcher
	raw      *HTTPFetcher
	maxLinks int
	maxChild int
}

// NewMapper reads homepages through pages and sitemaps through raw.
func NewMapper(pages Fetcher, raw *HTTPFetcher, opts MapperOptions) *Mapper {
	if opts.MaxLinks <= 0 {
		opts.MaxLinks = 2000
	}
	if opts.MaxChildSitemaps <= 0 {
		opts.MaxChildSitemaps = 5
	}
	return &Mapper{pages: pages, raw: raw, maxLinks: opts.MaxLinks, maxChild: opts.MaxChildSitemaps}
}

// Map fails only when the homepage cannot be fetched; a missing or broken
// sitemap just contributes no links. Homepage links come first since the
// Impressum is usually linked from the footer.
func (m *Mapper) Map(ctx context.Context, siteRoot string) ([]string, error) {
	home, err := m.pages.FetchHTML(ctx, siteRoot)
	if err != nil {
		return nil, err
	}
	links, err := ExtractLinks(home, siteRoot)
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", siteRoot, err)
	}
	if m.raw != nil {
		links = append(links, m.sitemapLinks(ctx, siteRoot)...)
	}
	return m.dedupe(links, siteRoot), nil
}

func (m *Mapper) sitemapLinks(ctx context.Context, siteRoot string) []string {
	b, err := m.raw.get(ctx, strings.TrimSuffix(siteRoot, "/")+"/sitemap.xml")
	if err != nil {
		return nil
	}
	pages, children, err := parseSitemap(b)
	if err != nil {
		return nil
	}
	for i, child := range children {
		if i >= m.maxChild || len(pages) >= m.maxLinks {
			break
		}
		cb, err := m.raw.get(ctx, child)
		if err != nil {
			continue
		}
		more, _, err := parseSitemap(cb)
		if err != nil {
			continue
		}
		pages = append(pages, more...)
	}
	return pages
}

func (m *Mapper) dedupe(links []string, siteRoot string) []string {
	site := ""
	if u, err := url.Parse(siteRoot); err == nil {
		site = siteDomain(u.Hostname())
	}
	seen := make(map[string]struct{}, len(links))
	out := make([]string, 0, len(links))
	for _, l := range links {
		l = strings.TrimSuffix(strings.TrimSpace(l), "/")
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		u, err := url.Parse(l)
		if err != nil || (site != "" && !sameSite(u.Hostname(), site)) {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
		if len(out) >= m.maxLinks {
			break
		}
	}
	return out
}

// Scraper converts a page to markdown.
type Scraper struct {
	pages Fetcher
}

func NewScraper(pages Fetcher) *Scraper {
	return &Scraper{pages: pages}
}

func (s *Scraper) Scrape(ctx context.Context, pageURL string) (string, error) {
	html, err := s.pages.FetchHTML(ctx, pageURL)
	if err != nil {
		return "", err
	}
	return HTMLToMarkdown(html)
}

// HTMLToMarkdown drops non-content elements and converts the rest.
func HTMLToMarkdown(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, svg, iframe, template").Remove()
	cleaned, err := doc.Html()
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	md, err := htmltomarkdown.ConvertString(cleaned)
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}
	return strings.TrimSpace(md), nil
}
