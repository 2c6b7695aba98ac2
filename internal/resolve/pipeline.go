package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shpitdev/impressum-resolver/pkg/pipeline/redact"
	"github.com/shpitdev/impressum-resolver/pkg/pipeline/worker"
	"go.uber.org/zap"
)

// FailurePolicy decides what a stage failure does to the run.
type FailurePolicy int

const (
	// PolicySkipEntity logs the failure, skips the entity and continues.
	PolicySkipEntity FailurePolicy = iota
	// PolicyAbortRun stops the run at the first failing entity.
	PolicyAbortRun
)

func (p FailurePolicy) String() string {
	if p == PolicyAbortRun {
		return "abort-run"
	}
	return "skip-entity"
}

// ParseFailurePolicy accepts "skip-entity"/"skip" and "abort-run"/"abort".
func ParseFailurePolicy(raw string) (FailurePolicy, error) {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "", "skip", "skip-entity":
		return PolicySkipEntity, nil
	case "abort", "abort-run":
		return PolicyAbortRun, nil
	default:
		return PolicySkipEntity, fmt.Errorf("unknown failure policy %q (want skip-entity or abort-run)", raw)
	}
}

type Options struct {
	// MaxCandidates is how many search hits are tried per title. Defaults to 1.
	MaxCandidates int
	Policy        FailurePolicy
	// Workers bounds how many titles resolve at once. Defaults to 1.
	Workers int
	// EntityTimeout bounds the whole resolution of one title.
	EntityTimeout time.Duration
	// Call governs every provider call: per-call timeout, retries, rate limit.
	Call worker.Options
}

// Observer receives timing and outcome events, e.g. for metrics.
type Observer interface {
	StageDone(stage Stage, d time.Duration, err error)
	EntityDone(o Outcome)
}

type nopObserver struct{}

func (nopObserver) StageDone(Stage, time.Duration, error) {}
func (nopObserver) EntityDone(Outcome)                    {}

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Searcher   Searcher
	Normalizer *LinkNormalizer
	Mapper     SiteMapper
	Locator    *LegalPageLocator
	Scraper    PageScraper
	Extractor  *CompanyInfoExtractor

	Logger   *zap.Logger
	Observer Observer
}

// Pipeline resolves titles through search, normalize, map, locate, scrape and extract.
type Pipeline struct {
	searcher   Searcher
	normalizer *LinkNormalizer
	mapper     SiteMapper
	locator    *LegalPageLocator
	scraper    PageScraper
	extractor  *CompanyInfoExtractor

	opts Options
	log  *zap.Logger
	obs  Observer
}

func New(d Deps, opts Options) (*Pipeline, error) {
	switch {
	case d.Searcher == nil:
		return nil, errors.New("resolve: searcher is required")
	case d.Normalizer == nil:
		return nil, errors.New("resolve: normalizer is required")
	case d.Mapper == nil:
		return nil, errors.New("resolve: site mapper is required")
	case d.Locator == nil:
		return nil, errors.New("resolve: locator is required")
	case d.Scraper == nil:
		return nil, errors.New("resolve: scraper is required")
	case d.Extractor == nil:
		return nil, errors.New("resolve: extractor is required")
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = 1
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.EntityTimeout <= 0 {
		opts.EntityTimeout = 5 * time.Minute
	}
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	var obs Observer = nopObserver{}
	if d.Observer != nil {
		obs = d.Observer
	}
	return &Pipeline{
		searcher:   d.Searcher,
		normalizer: d.Normalizer,
		mapper:     d.Mapper,
		locator:    d.Locator,
		scraper:    d.Scraper,
		extractor:  d.Extractor,
		opts:       opts,
		log:        log,
		obs:        obs,
	}, nil
}

// Resolve runs one title to a terminal state.
func (p *Pipeline) Resolve(ctx context.Context, title string) Outcome {
	start := time.Now()
	title = strings.TrimSpace(title)
	o := p.resolve(ctx, title)
	o.Duration = time.Since(start)
	p.report(o)
	return o
}

func (p *Pipeline) resolve(ctx context.Context, title string) Outcome {
	o := Outcome{Title: title, State: StateSearching, Stage: StageSearch}
	links, err := call(ctx, p, StageSearch, title, func(ctx context.Context) ([]string, error) {
		return p.searcher.Search(ctx, title)
	})
	if err != nil {
		return p.fail(o, StageSearch, ReasonSearchFailed, err)
	}
	links = nonEmpty(links)
	if len(links) == 0 {
		return skip(o, ReasonNoSearchResults)
	}
	if len(links) > p.opts.MaxCandidates {
		links = links[:p.opts.MaxCandidates]
	}

	tried := make(map[string]struct{}, len(links))
	var last Outcome
	for i, link := range links {
		c, attempted := p.resolveCandidate(ctx, title, i+1, link, tried)
		if !attempted {
			continue
		}
		if c.State == StateRecorded || c.State == StateAborted || ctx.Err() != nil {
			return c
		}
		last = c
	}
	if !last.State.Terminal() {
		// Every hit pointed at an already tried site.
		return skip(o, ReasonNoLegalPage)
	}
	return last
}

// resolveCandidate walks one search hit from Normalizing to a terminal state.
// It reports false when the hit's site root was already tried for this title.
func (p *Pipeline) resolveCandidate(ctx context.Context, title string, rank int, link string, tried map[string]struct{}) (Outcome, bool) {
	o := Outcome{Title: title, Candidate: rank, State: StateNormalizing, Stage: StageNormalize}

	root, err := call(ctx, p, StageNormalize, title, func(ctx context.Context) (string, error) {
		return p.normalizer.Normalize(ctx, link)
	})
	if err != nil {
		var ne *NormalizationError
		if !errors.As(err, &ne) {
			err = &NormalizationError{Input: link, Err: err}
		}
		o.Stage, o.Reason, o.State = StageNormalize, ReasonNormalizationFailed, StateSkipped
		o.Err = &StageError{Stage: StageNormalize, Title: title, Kind: KindNormalization, Err: err}
		return o, true
	}
	if _, seen := tried[root]; seen {
		return o, false
	}
	tried[root] = struct{}{}
	o.SiteRoot = root

	o.State, o.Stage = StateMapping, StageMap
	links, err := call(ctx, p, StageMap, title, func(ctx context.Context) ([]string, error) {
		return p.mapper.Map(ctx, root)
	})
	if err != nil {
		return p.fail(o, StageMap, ReasonCrawlFailed, err), true
	}

	o.State, o.Stage = StateLocating, StageLocate
	type located struct {
		link string
		tier Tier
	}
	loc, err := call(ctx, p, StageLocate, title, func(ctx context.Context) (located, error) {
		link, tier, err := p.locator.Locate(ctx, links)
		return located{link: link, tier: tier}, err
	})
	if err != nil {
		// The semantic tier is best effort; its failure means no page.
		p.log.Warn("semantic locator failed",
			zap.String("title", title),
			zap.String("site_root", root),
			zap.String("error", redact.Secrets(err.Error())),
		)
		return skip(o, ReasonNoLegalPage), true
	}
	if loc.link == "" {
		return skip(o, ReasonNoLegalPage), true
	}
	o.LegalPage, o.LocatedBy = loc.link, loc.tier

	o.State, o.Stage = StateScraping, StageScrape
	content, err := call(ctx, p, StageScrape, title, func(ctx context.Context) (string, error) {
		return p.scraper.Scrape(ctx, loc.link)
	})
	if err == nil && strings.TrimSpace(content) == "" {
		err = ErrEmptyContent
	}
	if err != nil {
		return p.fail(o, StageScrape, ReasonScrapeFailed, err), true
	}

	o.State, o.Stage = StateExtracting, StageExtract
	rec, err := call(ctx, p, StageExtract, title, func(ctx context.Context) (CompanyRecord, error) {
		return p.extractor.Extract(ctx, content)
	})
	if err != nil {
		return p.fail(o, StageExtract, ReasonExtractionFailed, err), true
	}
	o.Record = rec
	o.State = StateRecorded
	return o, true
}

func skip(o Outcome, reason string) Outcome {
	o.State = StateSkipped
	o.Reason = reason
	return o
}

func (p *Pipeline) fail(o Outcome, stage Stage, reason string, err error) Outcome {
	o.Stage = stage
	o.Reason = reason
	o.Err = &StageError{Stage: stage, Title: o.Title, Kind: classify(err), Err: err}
	o.State = StateSkipped
	if p.opts.Policy == PolicyAbortRun && !errors.Is(err, context.Canceled) {
		o.State = StateAborted
	}
	return o
}

func (p *Pipeline) report(o Outcome) {
	fields := []zap.Field{
		zap.String("title", o.Title),
		zap.String("state", o.State.String()),
		zap.String("stage", string(o.Stage)),
		zap.Duration("duration", o.Duration),
	}
	if o.SiteRoot != "" {
		fields = append(fields, zap.String("site_root", o.SiteRoot))
	}
	if o.LegalPage != "" {
		fields = append(fields, zap.String("legal_page", o.LegalPage), zap.String("located_by", string(o.LocatedBy)))
	}
	switch {
	case o.State == StateRecorded:
		p.log.Info("entity recorded", append(fields,
			zap.Int("candidate", o.Candidate),
			zap.String("company_name", o.Record.LegalName),
			zap.String("register_number", o.Record.RegisterNumber),
		)...)
	case o.Err != nil:
		p.log.Error("entity failed", append(fields,
			zap.String("reason", o.Reason),
			zap.String("error", redact.Secrets(o.Err.Error())),
		)...)
	default:
		p.log.Info("entity skipped", append(fields, zap.String("reason", o.Reason))...)
	}
	p.obs.EntityDone(o)
}

// call runs one provider call under the configured timeout, retry and rate limit.
func call[T any](ctx context.Context, p *Pipeline, stage Stage, title string, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	opts := p.opts.Call
	opts.OnRetry = func(attempt int, err error) {
		p.log.Warn("retrying provider call",
			zap.String("stage", string(stage)),
			zap.String("title", title),
			zap.Int("attempt", attempt+1),
			zap.String("error", redact.Secrets(err.Error())),
		)
	}
	v, err := worker.Retry(ctx, fn, opts)
	p.obs.StageDone(stage, time.Since(start), err)
	return v, err
}

func nonEmpty(in []string) []string {
	out := in[:0:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Summary tallies a run.
type Summary struct {
	Total    int
	Recorded int
	Skipped  int
	Failed   int
	Aborted  int
	Outcomes []Outcome
}

// Run resolves titles and records rows for Recorded entities in input order.
// Under PolicyAbortRun the first Aborted entity ends the run with an
// *AbortError; rows recorded before it are kept. A cancelled ctx ends the
// run with ctx.Err().
func (p *Pipeline) Run(ctx context.Context, titles []string, rec Recorder) (Summary, error) {
	sum := Summary{Total: len(titles)}
	emit := func(o Outcome) {
		sum.Outcomes = append(sum.Outcomes, o)
		switch o.State {
		case StateRecorded:
			sum.Recorded++
			if rec != nil {
				rec.Record(o.Row())
			}
		case StateAborted:
			sum.Aborted++
		default:
			sum.Skipped++
			if o.Err != nil {
				sum.Failed++
			}
		}
	}

	policy := worker.ContinueOnError
	if p.opts.Policy == PolicyAbortRun {
		policy = worker.StopOnError
	}

	err := worker.ProcessInOrder(ctx, titles,
		func(ctx context.Context, title string) (Outcome, error) {
			o := p.Resolve(ctx, title)
			if o.State == StateAborted {
				return o, &AbortError{Outcome: o}
			}
			return o, nil
		},
		func(r worker.Result[string, Outcome]) error {
			emit(r.Output)
			return nil
		},
		worker.Options{
			Workers:        p.opts.Workers,
			RequestTimeout: p.opts.EntityTimeout,
			FailurePolicy:  policy,
		},
	)
	return sum, err
}
