// Package resolve turns a company title into its legal-disclosure record:
// search, reduce the hit to its site root, map the site, locate the
// Impressum page, scrape it and extract the registered name and number.
package resolve

import (
	"context"
	"time"
)

// Searcher returns result links for query, best match first.
type Searcher interface {
	Search(ctx context.Context, query string) ([]string, error)
}

// SiteMapper lists the URLs reachable under a site root, subdomains included.
// Implementations return an error unless the provider reported success.
type SiteMapper interface {
	Map(ctx context.Context, siteRoot string) ([]string, error)
}

// PageScraper returns the markdown rendering of a page.
type PageScraper interface {
	Scrape(ctx context.Context, pageURL string) (string, error)
}

// CompanyRecord is the extracted legal identity of one company. Both fields
// are required; a record missing either is never accepted.
type CompanyRecord struct {
	LegalName      string `json:"company_name" validate:"required"`
	RegisterNumber string `json:"register_number" validate:"required"`
}

// ResultRow is one exported line of the result table.
type ResultRow struct {
	Title          string
	LegalName      string
	RegisterNumber string
}

// Recorder receives rows for entities that reached StateRecorded, in input order.
type Recorder interface {
	Record(row ResultRow)
}

// State is the position of one entity in the resolution state machine.
type State int

const (
	StateSearching State = iota
	StateNormalizing
	StateMapping
	StateLocating
	StateScraping
	StateExtracting
	StateRecorded
	StateSkipped
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateSearching:
		return "searching"
	case StateNormalizing:
		return "normalizing"
	case StateMapping:
		return "mapping"
	case StateLocating:
		return "locating"
	case StateScraping:
		return "scraping"
	case StateExtracting:
		return "extracting"
	case StateRecorded:
		return "recorded"
	case StateSkipped:
		return "skipped"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateRecorded || s == StateSkipped || s == StateAborted
}

// Skip and abort reasons.
const (
	ReasonNoSearchResults     = "no search results"
	ReasonSearchFailed        = "search failed"
	ReasonNormalizationFailed = "normalization failed"
	ReasonCrawlFailed         = "crawl failed"
	ReasonNoLegalPage         = "no legal page"
	ReasonScrapeFailed        = "scrape failed"
	ReasonExtractionFailed    = "extraction failed"
)

// Outcome is the terminal result of resolving one title.
type Outcome struct {
	Title string
	State State
	// Stage is the last stage the entity entered.
	Stage  Stage
	Reason string

	// Candidate is the 1-based search rank that produced this outcome.
	Candidate int
	SiteRoot  string
	LegalPage string
	// LocatedBy names the locator tier that found LegalPage.
	LocatedBy Tier
	Record    CompanyRecord

	// Err is set when the entity ended because of a failure rather than an
	// empty result. It is always a *StageError.
	Err      error
	Duration time.Duration
}

// Row returns the exported row for a recorded outcome.
func (o Outcome) Row() ResultRow {
	return ResultRow{
		Title:          o.Title,
		LegalName:      o.Record.LegalName,
		RegisterNumber: o.Record.RegisterNumber,
	}
}

// Failed reports whether the outcome carries a failure.
func (o Outcome) Failed() bool { return o.Err != nil }
