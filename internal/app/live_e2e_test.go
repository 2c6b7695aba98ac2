//go:build live_e2e

package app_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shpitdev/impressum-resolver/internal/app"
	"github.com/shpitdev/impressum-resolver/internal/config"
)

// Runs against the real providers configured in the environment
// (SERPER_API_KEY, FIRECRAWL_API_KEY, OPENAI_API_KEY or GEMINI_*).
func TestRunLocal_LiveProviders_EndToEnd(t *testing.T) {
	cfg, err := config.Load(os.Getenv("LIVE_E2E_CONFIG"), nil)
	if err != nil {
		t.Fatalf("live_e2e needs provider credentials in the environment: %v", err)
	}

	titles := []string{"Otto Group"}
	if raw := os.Getenv("LIVE_E2E_TITLES"); raw != "" {
		titles = strings.Split(raw, ",")
	}

	baseDir := t.TempDir()
	if artifactDir := os.Getenv("LIVE_E2E_ARTIFACT_DIR"); artifactDir != "" {
		if err := os.MkdirAll(artifactDir, 0o755); err != nil {
			t.Fatalf("create LIVE_E2E_ARTIFACT_DIR: %v", err)
		}
		baseDir = artifactDir
	}
	cfg.Output.Path = filepath.Join(baseDir, "company_data.csv")
	cfg.Output.Format = "csv"
	cfg.Pipeline.FailurePolicy = "skip-entity"

	sum, err := app.RunLocal(context.Background(), cfg, app.RunOptions{
		InputPath: writeInput(t, titles...),
	}, nil)
	if err != nil {
		t.Fatalf("RunLocal failed: %v", err)
	}
	if sum.Total != len(titles) {
		t.Fatalf("expected %d outcomes, got %d", len(titles), sum.Total)
	}

	rows := readRows(t, cfg.Output.Path)
	if len(rows) != sum.Recorded {
		t.Fatalf("rows written (%d) != recorded (%d)", len(rows), sum.Recorded)
	}
	for i, row := range rows {
		if strings.TrimSpace(row.LegalName) == "" || strings.TrimSpace(row.RegisterNumber) == "" {
			t.Fatalf("row[%d] incomplete: %#v", i, row)
		}
	}
	t.Logf("recorded %d of %d titles into %s", sum.Recorded, sum.Total, cfg.Output.Path)
}
