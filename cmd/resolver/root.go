package main

import (
	"fmt"
	"io"

	"github.com/shpitdev/impressum-resolver/internal/app"
	"github.com/shpitdev/impressum-resolver/internal/config"
	"github.com/shpitdev/impressum-resolver/internal/logging"
	"github.com/shpitdev/impressum-resolver/internal/version"
	"github.com/spf13/cobra"
)

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "resolver",
		Short: "Resolve company Impressum records",
		Long: `resolver searches each company, maps its website, locates the Impressum page and
extracts the registered company name and register number into a result table.

Configuration comes from defaults, an optional YAML file (--config), environment
variables (a .env file is loaded when present), CREDENTIALS_FILE and flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().String("config", "", "Path to a YAML config file")
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (env: LOG_LEVEL)")

	root.AddCommand(newLocalCmd(stderr), newSeedsCmd(stdout), newVersionCmd(stdout))
	return root
}

func newLocalCmd(stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "local",
		Short: "Resolve titles from a seed page or CSV into a local result file",
		Example: `  resolver local --seed-url https://example.com/startups --output company_data.xlsx
  resolver local --input titles.csv --output results.csv --workers 4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return configError(err)
			}
			log, sync, err := logging.New(logging.Options{
				Level:  cfg.Log.Level,
				Format: cfg.Log.Format,
				File:   cfg.Log.File,
				Stderr: stderr,
			})
			if err != nil {
				return configError(err)
			}
			defer sync()

			input, _ := cmd.Flags().GetString("input")
			if _, err := app.RunLocal(cmd.Context(), cfg, app.RunOptions{InputPath: input}, log); err != nil {
				return runError(fmt.Errorf("local run failed: %w", err))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.String("input", "", "Input CSV with a 'title' column (default: read the seed page)")
	f.String("seed-url", "", "Seed page listing company titles (env: WEBPAGE_URL)")
	f.String("output", "", "Output file path, .xlsx or .csv (env: OUTPUT_PATH, default company_data.xlsx)")
	f.String("format", "", "Output format override: xlsx or csv (env: OUTPUT_FORMAT)")
	f.Int("workers", 0, "Companies resolved concurrently (env: WORKERS, default 1)")
	f.Int("max-candidates", 0, "Search hits tried per company (env: MAX_CANDIDATES, default 3)")
	f.Int("max-retries", 0, "Retries per provider call for transient failures (env: MAX_RETRIES, default 2)")
	f.Duration("request-timeout", 0, "Per provider call timeout (env: REQUEST_TIMEOUT, default 30s)")
	f.Float64("rate-limit-rps", 0, "Global provider call rate limit, 0 disables (env: RATE_LIMIT_RPS)")
	f.String("failure-policy", "", "skip-entity or abort-run (env: FAILURE_POLICY, default skip-entity)")
	f.Bool("semantic-fallback", false, "Ask the model for the legal page when no link matches (env: LOCATOR_SEMANTIC_FALLBACK)")
	f.String("crawl-provider", "", "firecrawl or native (env: CRAWL_PROVIDER, default firecrawl)")
	f.String("llm-provider", "", "openai or gemini (env: LLM_PROVIDER, default openai)")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address during the run (env: METRICS_ADDR)")
	return cmd
}

func newSeedsCmd(stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seeds",
		Short: "Print the company titles a run would resolve",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Decode(path, cmd.Flags())
			if err != nil {
				return configError(err)
			}
			input, _ := cmd.Flags().GetString("input")
			titles, err := app.ListTitles(cmd.Context(), cfg, input)
			if err != nil {
				return runError(err)
			}
			for _, t := range titles {
				_, _ = fmt.Fprintln(stdout, t)
			}
			return nil
		},
	}
	cmd.Flags().String("input", "", "Input CSV with a 'title' column")
	cmd.Flags().String("seed-url", "", "Seed page listing company titles (env: WEBPAGE_URL)")
	return cmd
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(stdout, version.Current)
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path, cmd.Flags())
}
