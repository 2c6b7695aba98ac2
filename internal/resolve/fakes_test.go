package resolve_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shpitdev/impressum-resolver/internal/llm"
	"github.com/shpitdev/impressum-resolver/internal/resolve"
	"github.com/shpitdev/impressum-resolver/pkg/pipeline/worker"
)

type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]string
	errs    map[string][]error
	calls   []string
}

func (f *fakeSearcher) Search(_ context.Context, q string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, q)
	if errs := f.errs[q]; len(errs) > 0 {
		err := errs[0]
		f.errs[q] = errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.results[q], nil
}

type fakeMapper struct {
	mu    sync.Mutex
	links map[string][]string
	errs  map[string]error
	calls []string
}

func (f *fakeMapper) Map(_ context.Context, root string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, root)
	if err := f.errs[root]; err != nil {
		return nil, err
	}
	links, ok := f.links[root]
	if !ok {
		return nil, fmt.Errorf("map %s: success=false", root)
	}
	return links, nil
}

type fakeScraper struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func (f *fakeScraper) Scrape(_ context.Context, u string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, u)
	page, ok := f.pages[u]
	if !ok {
		return "", errors.New("scrape failed: 404")
	}
	return page, nil
}

// fakeCompleter answers by schema name.
type fakeCompleter struct {
	mu    sync.Mutex
	t     *testing.T
	calls []llm.Request

	// companies maps page content to the JSON reply for company_information.
	companies map[string]string
	// legalLink is the reply for impressum_link; nil means JSON null.
	legalLink *string
	linkErr   error
	// cleanLink overrides the clean_link reply.
	cleanLink map[string]string
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if req.Temperature != 0 {
		f.t.Errorf("schema %s sent with temperature %v", req.Schema.Name, req.Temperature)
	}
	switch req.Schema.Name {
	case "clean_link":
		if v, ok := f.cleanLink[req.Messages[0]]; ok {
			return v, nil
		}
		root, err := resolve.SiteRoot(req.Messages[0])
		if err != nil {
			return `{"clean_link":""}`, nil
		}
		return fmt.Sprintf(`{"clean_link":%q}`, root), nil
	case "impressum_link":
		if f.linkErr != nil {
			return "", f.linkErr
		}
		b, _ := json.Marshal(map[string]*string{"legal_information_link": f.legalLink})
		return string(b), nil
	case "company_information":
		if v, ok := f.companies[req.Messages[0]]; ok {
			return v, nil
		}
		return `{"company_name":"","register_number":""}`, nil
	}
	return "", fmt.Errorf("unexpected schema %s", req.Schema.Name)
}

func (f *fakeCompleter) callsFor(schema string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Schema.Name == schema {
			n++
		}
	}
	return n
}

type rowSink struct {
	rows []resolve.ResultRow
}

func (s *rowSink) Record(r resolve.ResultRow) { s.rows = append(s.rows, r) }

const acmeImpressum = "# Impressum\n\nAcme Clothing GmbH\nMusterstraße 1\n10115 Berlin\n\nHandelsregister: HRB 12345\nRegistergericht: Amtsgericht Charlottenburg"

type fixture struct {
	searcher  *fakeSearcher
	mapper    *fakeMapper
	scraper   *fakeScraper
	completer *fakeCompleter
	locator   resolve.LocatorOptions
	opts      resolve.Options
	obs       *recordingObserver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		searcher: &fakeSearcher{
			results: map[string][]string{
				"Acme Clothing": {"https://shop.acme.test/p/123?ref=xyz"},
			},
			errs: map[string][]error{},
		},
		mapper: &fakeMapper{
			links: map[string][]string{
				"https://shop.acme.test": {
					"https://shop.acme.test/about",
					"https://shop.acme.test/impressum",
					"https://shop.acme.test/contact",
				},
			},
			errs: map[string]error{},
		},
		scraper: &fakeScraper{
			pages: map[string]string{"https://shop.acme.test/impressum": acmeImpressum},
		},
		completer: &fakeCompleter{
			t: t,
			companies: map[string]string{
				acmeImpressum: `{"company_name":"Acme Clothing GmbH","register_number":"HRB 12345"}`,
			},
		},
		opts: resolve.Options{
			MaxCandidates: 1,
			Call: worker.Options{
				MaxRetries:     2,
				RequestTimeout: time.Second,
				Backoff:        worker.Backoff{Initial: time.Millisecond, Max: 2 * time.Millisecond},
			},
		},
		obs: &recordingObserver{},
	}
}

func (f *fixture) pipeline(t *testing.T) *resolve.Pipeline {
	t.Helper()
	p, err := resolve.New(resolve.Deps{
		Searcher:   f.searcher,
		Normalizer: resolve.NewLinkNormalizer(f.completer),
		Mapper:     f.mapper,
		Locator:    resolve.NewLegalPageLocator(f.completer, f.locator),
		Scraper:    f.scraper,
		Extractor:  resolve.NewCompanyInfoExtractor(f.completer, 0),
		Observer:   f.obs,
	}, f.opts)
	if err != nil {
		t.Fatalf("resolve.New: %v", err)
	}
	return p
}

type recordingObserver struct {
	mu       sync.Mutex
	stages   []resolve.Stage
	outcomes []resolve.Outcome
}

func (r *recordingObserver) StageDone(s resolve.Stage, _ time.Duration, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, s)
}

func (r *recordingObserver) EntityDone(o resolve.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.Contains(h, needle) {
			return true
		}
	}
	return false
}
