package resolve

import (
	"context"
	"strings"

	"github.com/shpitdev/impressum-resolver/internal/llm"
)

// Tier names the locator rule that matched.
type Tier string

const (
	TierNone     Tier = ""
	TierKeyword  Tier = "keyword"
	TierSemantic Tier = "semantic"
)

// DefaultKeywords is the deterministic match list.
var DefaultKeywords = []string{"impressum"}

const locateSystemPrompt = `Identify whether any of the links the user sends leads to the legal information
of a company (Impressum, imprint, legal notice). Return that link exactly as given if found,
otherwise return null.`

var legalLinkSchema = llm.Schema{
	Name:        "impressum_link",
	Description: "The link most likely to contain the company's legal information.",
	Properties: []llm.Property{
		{Name: "legal_information_link", Description: "One of the given links, or null.", Nullable: true},
	},
}

type legalLink struct {
	Link *string `json:"legal_information_link"`
}

type LocatorOptions struct {
	// Keywords are matched case-insensitively as substrings. Defaults to DefaultKeywords.
	Keywords []string
	// SemanticFallback asks the completer when no keyword matches.
	SemanticFallback bool
	// MaxFallbackLinks caps how many links are sent to the completer.
	MaxFallbackLinks int
}

// LegalPageLocator picks the Impressum page out of a site's link set.
type LegalPageLocator struct {
	completer llm.Completer
	keywords  []string
	semantic  bool
	maxLinks  int
}

func NewLegalPageLocator(completer llm.Completer, opts LocatorOptions) *LegalPageLocator {
	keywords := make([]string, 0, len(opts.Keywords))
	for _, k := range opts.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	maxLinks := opts.MaxFallbackLinks
	if maxLinks <= 0 {
		maxLinks = 500
	}
	return &LegalPageLocator{
		completer: completer,
		keywords:  keywords,
		semantic:  opts.SemanticFallback && completer != nil,
		maxLinks:  maxLinks,
	}
}

// Locate returns the first link, in the given order, whose lower-cased text
// contains a keyword. Without a match and with the semantic fallback enabled,
// the completer may nominate a link, accepted only if it is one of links.
// No match is ("", TierNone, nil); an error means the fallback call failed.
func (l *LegalPageLocator) Locate(ctx context.Context, links []string) (string, Tier, error) {
	if link, ok := l.matchKeyword(links); ok {
		return link, TierKeyword, nil
	}
	if !l.semantic || len(links) == 0 {
		return "", TierNone, nil
	}

	msgs := links
	if len(msgs) > l.maxLinks {
		msgs = msgs[:l.maxLinks]
	}
	text, err := l.completer.Complete(ctx, llm.Request{
		System:   locateSystemPrompt,
		Messages: msgs,
		Schema:   legalLinkSchema,
	})
	if err != nil {
		return "", TierNone, err
	}
	parsed, err := llm.Decode[legalLink](text, legalLinkSchema)
	if err != nil {
		return "", TierNone, err
	}
	if parsed.Link == nil {
		return "", TierNone, nil
	}
	if link, ok := member(links, *parsed.Link); ok {
		return link, TierSemantic, nil
	}
	return "", TierNone, nil
}

func (l *LegalPageLocator) matchKeyword(links []string) (string, bool) {
	for _, link := range links {
		lower := strings.ToLower(link)
		for _, k := range l.keywords {
			if strings.Contains(lower, k) {
				return link, true
			}
		}
	}
	return "", false
}

// member finds candidate in links, ignoring surrounding space and a trailing slash.
func member(links []string, candidate string) (string, bool) {
	c := strings.TrimSuffix(strings.TrimSpace(candidate), "/")
	if c == "" {
		return "", false
	}
	for _, link := range links {
		if strings.TrimSuffix(link, "/") == c {
			return link, true
		}
	}
	return "", false
}
