// Package app wires configuration, providers and the resolution pipeline
// into runnable commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shpitdev/impressum-resolver/internal/config"
	"github.com/shpitdev/impressum-resolver/internal/llm"
	"github.com/shpitdev/impressum-resolver/internal/monitoring"
	"github.com/shpitdev/impressum-resolver/internal/pipeline"
	"github.com/shpitdev/impressum-resolver/internal/provider/httpx"
	"github.com/shpitdev/impressum-resolver/internal/resolve"
	"github.com/shpitdev/impressum-resolver/internal/seed"
	"github.com/shpitdev/impressum-resolver/internal/store"
	"github.com/shpitdev/impressum-resolver/pkg/pipeline/core"
	localio "github.com/shpitdev/impressum-resolver/pkg/pipeline/io/local"
	"github.com/shpitdev/impressum-resolver/pkg/pipeline/worker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// BuildPipeline assembles the resolution pipeline from cfg and providers.
func BuildPipeline(cfg *config.Config, p *Providers, log *zap.Logger, obs resolve.Observer) (*resolve.Pipeline, error) {
	policy, err := resolve.ParseFailurePolicy(cfg.Pipeline.FailurePolicy)
	if err != nil {
		return nil, err
	}
	var normalizeWith llm.Completer
	if cfg.Normalize.UseLLM {
		normalizeWith = p.Completer
	}
	var limiter *rate.Limiter
	if cfg.Pipeline.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Pipeline.RateLimitRPS), 1)
	}

	return resolve.New(resolve.Deps{
		Searcher:   p.Searcher,
		Normalizer: resolve.NewLinkNormalizer(normalizeWith),
		Mapper:     p.Mapper,
		Locator: resolve.NewLegalPageLocator(p.Completer, resolve.LocatorOptions{
			Keywords:         cfg.Locator.Keywords,
			SemanticFallback: cfg.Locator.SemanticFallback,
			MaxFallbackLinks: cfg.Locator.MaxFallbackLinks,
		}),
		Scraper:   p.Scraper,
		Extractor: resolve.NewCompanyInfoExtractor(p.Completer, cfg.Extract.MaxContentChars),
		Logger:    log,
		Observer:  obs,
	}, resolve.Options{
		MaxCandidates: cfg.Pipeline.MaxCandidates,
		Policy:        policy,
		Workers:       cfg.Pipeline.Workers,
		EntityTimeout: cfg.Pipeline.EntityTimeout,
		Call: worker.Options{
			MaxRetries:     cfg.Pipeline.MaxRetries,
			RequestTimeout: cfg.Pipeline.RequestTimeout,
			Limiter:        limiter,
		},
	})
}

// TitleSource picks the input adapter: a local CSV when inputPath is set,
// otherwise the configured seed page.
func TitleSource(cfg *config.Config, inputPath string) (core.InputAdapter[string], error) {
	if strings.TrimSpace(inputPath) != "" {
		return localio.TitlesFile{Path: inputPath}, nil
	}
	if cfg.Seed.URL == "" {
		return nil, errors.New("no input: pass --input or set WEBPAGE_URL / --seed-url")
	}
	page, err := seed.NewPage(cfg.Seed.URL, httpx.Options{
		CAPath:    cfg.HTTP.CAPath,
		Timeout:   cfg.Pipeline.RequestTimeout,
		UserAgent: cfg.HTTP.UserAgent,
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// RunOptions control one local run.
type RunOptions struct {
	InputPath string
	// RunID labels logs and stored outcomes. Generated when empty.
	RunID    string
	Registry *prometheus.Registry
}

// RunLocal loads titles, resolves them and flushes recorded rows to the
// configured output file. Rows recorded before an abort or a cancellation
// are still written; the run error is returned after the flush.
func RunLocal(ctx context.Context, cfg *config.Config, opts RunOptions, log *zap.Logger) (resolve.Summary, error) {
	if log == nil {
		log = zap.NewNop()
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	log = log.With(zap.String("run_id", runID))
	runStart := time.Now()

	src, err := TitleSource(cfg, opts.InputPath)
	if err != nil {
		return resolve.Summary{}, err
	}
	titles, err := src.Load(ctx)
	if err != nil {
		return resolve.Summary{}, fmt.Errorf("load titles: %w", err)
	}
	log.Info("run start",
		zap.Int("titles", len(titles)),
		zap.String("output", cfg.Output.Path),
		zap.String("crawl_provider", cfg.Crawl.Provider),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Int("workers", cfg.Pipeline.Workers),
		zap.Int("max_candidates", cfg.Pipeline.MaxCandidates),
		zap.Int("max_retries", cfg.Pipeline.MaxRetries),
		zap.String("failure_policy", cfg.Pipeline.FailurePolicy),
		zap.Bool("semantic_fallback", cfg.Locator.SemanticFallback),
	)

	providers, err := BuildProviders(ctx, cfg, log)
	if err != nil {
		return resolve.Summary{}, err
	}
	defer func() {
		if err := providers.Close(); err != nil {
			log.Warn("close providers", zap.Error(err))
		}
	}()

	var outcomes *store.Store
	if cfg.Store.PostgresURL != "" {
		pool, err := store.Open(ctx, cfg.Store.PostgresURL)
		if err != nil {
			return resolve.Summary{}, err
		}
		defer pool.Close()
		outcomes = store.New(pool)
		if err := outcomes.EnsureSchema(ctx); err != nil {
			return resolve.Summary{}, err
		}
	}

	metrics := monitoring.NewMetrics(opts.Registry)
	pipe, err := BuildPipeline(cfg, providers, log, metrics)
	if err != nil {
		return resolve.Summary{}, err
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)
	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			log.Info("metrics listening", zap.String("addr", cfg.Metrics.Addr))
			return metrics.Serve(gctx, cfg.Metrics.Addr)
		})
	}
	var sink pipeline.Sink
	var sum resolve.Summary
	var runErr error
	g.Go(func() error {
		defer stop()
		sum, runErr = pipe.Run(gctx, titles, &sink)
		return nil
	})
	if err := g.Wait(); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("metrics server: %w", err))
	}

	// Flushing must survive the cancellation that may have ended the run.
	flushCtx := context.WithoutCancel(ctx)
	if err := sink.Flush(flushCtx, cfg.Output.Path, cfg.Output.Format); err != nil {
		return sum, errors.Join(runErr, fmt.Errorf("flush results: %w", err))
	}
	if outcomes != nil {
		if err := outcomes.SaveOutcomes(flushCtx, runID, sum.Outcomes); err != nil {
			log.Error("store outcomes", zap.Error(err))
		}
	}

	log.Info("run complete",
		zap.Int("total", sum.Total),
		zap.Int("recorded", sum.Recorded),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
		zap.Int("aborted", sum.Aborted),
		zap.Int("rows_written", sink.Len()),
		zap.String("output", cfg.Output.Path),
		zap.Duration("duration", time.Since(runStart).Round(time.Millisecond)),
	)
	return sum, runErr
}

// ListTitles loads and returns the titles a run would resolve.
func ListTitles(ctx context.Context, cfg *config.Config, inputPath string) ([]string, error) {
	src, err := TitleSource(cfg, inputPath)
	if err != nil {
		return nil, err
	}
	return src.Load(ctx)
}
