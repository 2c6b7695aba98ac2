package resolve_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shpitdev/impressum-resolver/internal/resolve"
)

func TestLinkNormalizer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		in        string
		cleanLink string
		want      string
		wantErr   bool
		wantCalls int
	}{
		{name: "bare origin unchanged", in: "https://acme.test", want: "https://acme.test", wantCalls: 0},
		{name: "bare origin with slash", in: "https://acme.test/", want: "https://acme.test", wantCalls: 0},
		{name: "strips path query fragment", in: "https://shop.acme.test/p/123?ref=xyz#top", want: "https://shop.acme.test", wantCalls: 1},
		{name: "model path is reduced", in: "https://acme.test/de/home", cleanLink: `{"clean_link":"https://acme.test/de"}`, want: "https://acme.test", wantCalls: 1},
		{name: "model omits scheme", in: "https://www.otinga.io/jobs", cleanLink: `{"clean_link":"www.otinga.io"}`, want: "https://www.otinga.io", wantCalls: 1},
		{name: "model returns empty", in: "https://acme.test/x", cleanLink: `{"clean_link":""}`, wantErr: true, wantCalls: 1},
		{name: "model returns garbage", in: "https://acme.test/x", cleanLink: `not json at all`, wantErr: true, wantCalls: 1},
		{name: "model returns other scheme", in: "https://acme.test/x", cleanLink: `{"clean_link":"ftp://acme.test"}`, wantErr: true, wantCalls: 1},
		{name: "empty input", in: "  ", wantErr: true, wantCalls: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeCompleter{t: t}
			if tt.cleanLink != "" {
				c.cleanLink = map[string]string{tt.in: tt.cleanLink}
			}
			got, err := resolve.NewLinkNormalizer(c).Normalize(context.Background(), tt.in)
			if tt.wantErr {
				var ne *resolve.NormalizationError
				if !errors.As(err, &ne) {
					t.Fatalf("expected NormalizationError, got %v (%q)", err, got)
				}
			} else if err != nil || got != tt.want {
				t.Fatalf("Normalize(%q)=%q,%v want %q", tt.in, got, err, tt.want)
			}
			if n := c.callsFor("clean_link"); n != tt.wantCalls {
				t.Fatalf("expected %d completer calls, got %d", tt.wantCalls, n)
			}
		})
	}
}

func TestLinkNormalizer_Idempotent(t *testing.T) {
	t.Parallel()
	n := resolve.NewLinkNormalizer(&fakeCompleter{t: t})
	first, err := n.Normalize(context.Background(), "https://shop.acme.test/p/123?ref=xyz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := n.Normalize(context.Background(), first)
	if err != nil || second != first {
		t.Fatalf("Normalize(Normalize(x))=%q,%v want %q", second, err, first)
	}
}

func TestLinkNormalizer_WithoutCompleter(t *testing.T) {
	t.Parallel()
	n := resolve.NewLinkNormalizer(nil)
	got, err := n.Normalize(context.Background(), "http://Example.TEST:8080/a/b?c=d")
	if err != nil || got != "http://example.test:8080" {
		t.Fatalf("Normalize=%q,%v", got, err)
	}
	if _, err := n.Normalize(context.Background(), "ftp://files.acme.test/x"); err == nil {
		t.Fatalf("expected error for non-http link")
	}
}

func TestLegalPageLocator_KeywordTier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		links []string
		want  string
	}{
		{name: "first position", links: []string{"https://a.test/impressum", "https://a.test/about"}, want: "https://a.test/impressum"},
		{name: "last position", links: []string{"https://a.test/about", "https://a.test/kontakt", "https://a.test/de/Impressum.html"}, want: "https://a.test/de/Impressum.html"},
		{name: "first match wins", links: []string{"https://a.test/IMPRESSUM", "https://a.test/impressum-en"}, want: "https://a.test/IMPRESSUM"},
		{name: "no match", links: []string{"https://a.test/about"}, want: ""},
		{name: "empty set", links: nil, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeCompleter{t: t}
			legal := "https://a.test/about"
			c.legalLink = &legal
			// The semantic tier is enabled but must not run when a keyword matches.
			l := resolve.NewLegalPageLocator(c, resolve.LocatorOptions{SemanticFallback: tt.want != ""})
			got, tier, err := l.Locate(context.Background(), tt.links)
			if err != nil || got != tt.want {
				t.Fatalf("Locate=%q,%v want %q", got, err, tt.want)
			}
			if tt.want != "" && tier != resolve.TierKeyword {
				t.Fatalf("expected keyword tier, got %q", tier)
			}
			if n := c.callsFor("impressum_link"); n != 0 {
				t.Fatalf("semantic tier invoked %d times", n)
			}
		})
	}
}

func TestLegalPageLocator_CustomKeywords(t *testing.T) {
	t.Parallel()
	l := resolve.NewLegalPageLocator(nil, resolve.LocatorOptions{Keywords: []string{" Imprint ", "legal-notice"}})
	got, _, err := l.Locate(context.Background(), []string{"https://a.test/about", "https://a.test/legal-notice"})
	if err != nil || got != "https://a.test/legal-notice" {
		t.Fatalf("Locate=%q,%v", got, err)
	}
}

func TestLegalPageLocator_SemanticCapsLinks(t *testing.T) {
	t.Parallel()
	c := &fakeCompleter{t: t}
	l := resolve.NewLegalPageLocator(c, resolve.LocatorOptions{SemanticFallback: true, MaxFallbackLinks: 2})
	if _, _, err := l.Locate(context.Background(), []string{"https://a.test/1", "https://a.test/2", "https://a.test/3"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.calls) != 1 || len(c.calls[0].Messages) != 2 {
		t.Fatalf("expected one call with 2 links, got %+v", c.calls)
	}
}

func TestCompanyInfoExtractor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		reply   string
		want    resolve.CompanyRecord
		wantErr bool
	}{
		{
			name:  "trims fields",
			reply: `{"company_name":"  otinga GmbH ","register_number":" HRB 24991\n"}`,
			want:  resolve.CompanyRecord{LegalName: "otinga GmbH", RegisterNumber: "HRB 24991"},
		},
		{name: "missing name", reply: `{"company_name":"","register_number":"HRB 24991"}`, wantErr: true},
		{name: "missing both", reply: `{"company_name":" ","register_number":""}`, wantErr: true},
		{name: "schema violation", reply: `{"company_name":"otinga GmbH"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := "Impressum otinga GmbH " + tt.name
			c := &fakeCompleter{t: t, companies: map[string]string{content: tt.reply}}
			got, err := resolve.NewCompanyInfoExtractor(c, 0).Extract(context.Background(), content)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				if got != (resolve.CompanyRecord{}) {
					t.Fatalf("partial record leaked: %+v", got)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("Extract=%+v,%v want %+v", got, err, tt.want)
			}
		})
	}
}

func TestCompanyInfoExtractor_TruncatesContent(t *testing.T) {
	t.Parallel()
	c := &fakeCompleter{t: t}
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'x'
	}
	_, _ = resolve.NewCompanyInfoExtractor(c, 10).Extract(context.Background(), string(long))
	if len(c.calls) != 1 || len(c.calls[0].Messages[0]) != 10 {
		t.Fatalf("expected content truncated to 10 chars, got %+v", c.calls)
	}
}
