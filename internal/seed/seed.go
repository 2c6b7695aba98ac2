// Package seed reads company titles from a listing web page.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shpitdev/impressum-resolver/internal/provider/httpx"
)

// Selectors locate the title list on the page. The list is the first
// element matching List that follows the element matching Anchor in
// document order. Each title is the Attr attribute of a Name element inside
// an Item element of the list.
type Selectors struct {
	Anchor string
	List   string
	Item   string
	Name   string
	Attr   string
}

// DefaultSelectors matches the company listing page the resolver was built for.
var DefaultSelectors = Selectors{
	Anchor: "article.article.articlel.filter.clearfix",
	List:   "div.list",
	Item:   "article",
	Name:   "a.name",
	Attr:   "title",
}

var (
	ErrAnchorNotFound = errors.New("seed: filter section not found")
	ErrListNotFound   = errors.New("seed: title list not found")
)

// ParseTitles extracts titles from a listing page. Items without a title
// are ignored; duplicates are kept so the output mirrors the page.
func ParseTitles(r io.Reader, sel Selectors) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("seed: parse page: %w", err)
	}
	anchor := doc.Find(sel.Anchor).First()
	if anchor.Length() == 0 {
		return nil, ErrAnchorNotFound
	}
	list := findNext(doc, anchor, sel.List)
	if list.Length() == 0 {
		return nil, ErrListNotFound
	}

	var titles []string
	list.Find(sel.Item).Each(func(_ int, item *goquery.Selection) {
		name := item.Find(sel.Name).First()
		if v, ok := name.Attr(sel.Attr); ok {
			if v = strings.TrimSpace(v); v != "" {
				titles = append(titles, v)
			}
		}
	})
	return titles, nil
}

// findNext returns the first element matching selector that comes after
// anchor in document order, descendants of anchor included.
func findNext(doc *goquery.Document, anchor *goquery.Selection, selector string) *goquery.Selection {
	start := anchor.Get(0)
	passed := false
	var found *goquery.Selection
	doc.Find("*").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Get(0) == start {
			passed = true
			return true
		}
		if passed && s.Is(selector) {
			found = s
			return false
		}
		return true
	})
	if found == nil {
		return anchor.Slice(0, 0)
	}
	return found
}

// Page loads titles from a listing page over HTTP.
type Page struct {
	URL       string
	Selectors Selectors
	Client    *httpx.Client
}

// NewPage returns a Page using DefaultSelectors.
func NewPage(pageURL string, opts httpx.Options) (*Page, error) {
	c, err := httpx.New("seed", "", opts)
	if err != nil {
		return nil, err
	}
	return &Page{URL: pageURL, Selectors: DefaultSelectors, Client: c}, nil
}

// Load fetches the page and returns its titles.
func (p *Page) Load(ctx context.Context) ([]string, error) {
	if strings.TrimSpace(p.URL) == "" {
		return nil, errors.New("seed: page URL is required")
	}
	body, _, err := p.Client.Get(ctx, "page", p.URL)
	if err != nil {
		return nil, err
	}
	return ParseTitles(bytes.NewReader(body), p.Selectors)
}
