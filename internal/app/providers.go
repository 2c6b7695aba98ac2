package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/shpitdev/impressum-resolver/internal/config"
	"github.com/shpitdev/impressum-resolver/internal/llm"
	"github.com/shpitdev/impressum-resolver/internal/llm/gemini"
	"github.com/shpitdev/impressum-resolver/internal/llm/openai"
	"github.com/shpitdev/impressum-resolver/internal/provider/cache"
	"github.com/shpitdev/impressum-resolver/internal/provider/firecrawl"
	"github.com/shpitdev/impressum-resolver/internal/provider/httpx"
	"github.com/shpitdev/impressum-resolver/internal/provider/serper"
	"github.com/shpitdev/impressum-resolver/internal/provider/web"
	"github.com/shpitdev/impressum-resolver/internal/resolve"
	"go.uber.org/zap"
)

// Providers are the external collaborators of one run.
type Providers struct {
	Searcher  resolve.Searcher
	Mapper    resolve.SiteMapper
	Scraper   resolve.PageScraper
	Completer llm.Completer

	closers []func() error
}

// Close releases browser and cache connections.
func (p *Providers) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		errs = append(errs, p.closers[i]())
	}
	return errors.Join(errs...)
}

// BuildProviders constructs the providers selected by cfg.
func BuildProviders(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Providers, error) {
	p := &Providers{}
	timeout := cfg.Pipeline.RequestTimeout

	searcher, err := serper.New(serper.Config{
		APIKey:    cfg.Search.APIKey,
		BaseURL:   cfg.Search.BaseURL,
		Locale:    cfg.Search.Locale,
		Num:       cfg.Search.Num,
		CAPath:    cfg.HTTP.CAPath,
		Timeout:   timeout,
		UserAgent: cfg.HTTP.UserAgent,
	})
	if err != nil {
		return nil, err
	}
	p.Searcher = searcher

	switch cfg.Crawl.Provider {
	case "native":
		raw, err := web.NewHTTPFetcher(httpx.Options{
			CAPath:    cfg.HTTP.CAPath,
			Timeout:   timeout,
			UserAgent: cfg.HTTP.UserAgent,
		})
		if err != nil {
			return nil, err
		}
		var pages web.Fetcher = raw
		if cfg.Crawl.Browser {
			b := web.NewBrowserFetcher(cfg.HTTP.UserAgent, cfg.Crawl.BrowserSettle)
			p.closers = append(p.closers, func() error { b.Close(); return nil })
			pages = b
		}
		p.Mapper = web.NewMapper(pages, raw, web.MapperOptions{MaxLinks: cfg.Crawl.MapLimit})
		p.Scraper = web.NewScraper(pages)
	default:
		fc, err := firecrawl.New(firecrawl.Config{
			APIKey:    cfg.Crawl.FirecrawlAPIKey,
			BaseURL:   cfg.Crawl.FirecrawlURL,
			MapLimit:  cfg.Crawl.MapLimit,
			CAPath:    cfg.HTTP.CAPath,
			Timeout:   timeout,
			UserAgent: cfg.HTTP.UserAgent,
		})
		if err != nil {
			return nil, err
		}
		p.Mapper, p.Scraper = fc, fc
	}

	switch cfg.LLM.Provider {
	case "gemini":
		c, err := gemini.New(ctx, gemini.Config{
			APIKey:  cfg.LLM.GeminiAPIKey,
			Model:   cfg.LLM.GeminiModel,
			BaseURL: cfg.LLM.GeminiBaseURL,
		})
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p.Completer = c
	default:
		c, err := openai.New(openai.Config{
			APIKey:    cfg.LLM.OpenAIAPIKey,
			Model:     cfg.LLM.OpenAIModel,
			BaseURL:   cfg.LLM.OpenAIBaseURL,
			CAPath:    cfg.HTTP.CAPath,
			Timeout:   timeout,
			UserAgent: cfg.HTTP.UserAgent,
		})
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p.Completer = c
	}

	if cfg.Cache.RedisAddr != "" {
		store, err := cache.NewRedisStore(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, "impressum:")
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("connect redis cache: %w", err)
		}
		p.closers = append(p.closers, store.Close)
		layer := cache.NewLayer(store, cfg.Cache.TTL, log)
		p.Mapper = layer.Mapper(p.Mapper)
		p.Scraper = layer.Scraper(p.Scraper)
		log.Info("provider cache enabled", zap.String("redis_addr", cfg.Cache.RedisAddr), zap.Duration("ttl", cfg.Cache.TTL))
	}
	return p, nil
}
