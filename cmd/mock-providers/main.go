// Command mock-providers serves fixture-backed Serper, Firecrawl and OpenAI
// stand-ins plus a seed page for local resolver runs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shpitdev/impressum-resolver/internal/mockproviders"
)

func main() {
	addr := defaultString("MOCK_PROVIDERS_ADDR", ":8080")
	fixtures := defaultString("MOCK_PROVIDERS_FIXTURES", "")
	serperKey := defaultString("SERPER_API_KEY", "")
	firecrawlKey := defaultString("FIRECRAWL_API_KEY", "")
	openAIKey := defaultString("OPENAI_API_KEY", "")

	fs := flag.NewFlagSet("mock-providers", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	fs.StringVar(&fixtures, "fixtures", fixtures, "YAML fixtures file (default: bundled demo fixtures)")
	_ = fs.Parse(os.Args[1:])

	f := mockproviders.Demo()
	if fixtures != "" {
		loaded, err := mockproviders.LoadFixtures(fixtures)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "fixtures error: %v\n", err)
			os.Exit(2)
		}
		f = loaded
	}
	srv := mockproviders.New(f)
	srv.RequireKeys(mockproviders.Keys{Serper: serperKey, Firecrawl: firecrawlKey, OpenAI: openAIKey})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hs := &http.Server{Addr: addr, Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
	}()

	_, _ = fmt.Fprintf(os.Stdout, "mock-providers listening on %s (%d seed titles, %d sites, %d pages)\n",
		addr, len(f.SeedTitles), len(f.Sites), len(f.Pages))
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
