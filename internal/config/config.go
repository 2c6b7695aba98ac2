// Package config loads resolver settings from defaults, an optional YAML
// file, environment variables, a JSON credentials file and CLI flags, in
// increasing order of precedence. Credentials fill only keys left empty.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shpitdev/impressum-resolver/internal/version"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Search    SearchConfig    `mapstructure:"search"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Normalize NormalizeConfig `mapstructure:"normalize"`
	Locator   LocatorConfig   `mapstructure:"locator"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Seed      SeedConfig      `mapstructure:"seed"`
	Output    OutputConfig    `mapstructure:"output"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Store     StoreConfig     `mapstructure:"store"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`

	CredentialsFile string `mapstructure:"credentials_file"`
}

type SearchConfig struct {
	APIKey  string `mapstructure:"api_key" validate:"required"`
	BaseURL string `mapstructure:"base_url"`
	Locale  string `mapstructure:"locale"`
	Num     int    `mapstructure:"num" validate:"min=0"`
}

type CrawlConfig struct {
	// Provider is firecrawl or native.
	Provider        string `mapstructure:"provider" validate:"oneof=firecrawl native"`
	FirecrawlAPIKey string `mapstructure:"firecrawl_api_key" validate:"required_if=Provider firecrawl"`
	FirecrawlURL    string `mapstructure:"firecrawl_base_url"`
	MapLimit        int    `mapstructure:"map_limit" validate:"min=0"`
	// Browser renders pages in headless Chrome for the native provider.
	Browser       bool          `mapstructure:"browser"`
	BrowserSettle time.Duration `mapstructure:"browser_settle"`
}

type LLMConfig struct {
	// Provider is openai or gemini.
	Provider      string `mapstructure:"provider" validate:"oneof=openai gemini"`
	OpenAIAPIKey  string `mapstructure:"openai_api_key" validate:"required_if=Provider openai"`
	OpenAIModel   string `mapstructure:"openai_model" validate:"required_if=Provider openai"`
	OpenAIBaseURL string `mapstructure:"openai_base_url"`
	GeminiAPIKey  string `mapstructure:"gemini_api_key" validate:"required_if=Provider gemini"`
	GeminiModel   string `mapstructure:"gemini_model" validate:"required_if=Provider gemini"`
	GeminiBaseURL string `mapstructure:"gemini_base_url"`
}

type NormalizeConfig struct {
	// UseLLM asks the model for the site root; false reduces URLs locally.
	UseLLM bool `mapstructure:"use_llm"`
}

type LocatorConfig struct {
	Keywords         []string `mapstructure:"keywords" validate:"min=1,dive,required"`
	SemanticFallback bool     `mapstructure:"semantic_fallback"`
	MaxFallbackLinks int      `mapstructure:"max_fallback_links" validate:"min=0"`
}

type ExtractConfig struct {
	MaxContentChars int `mapstructure:"max_content_chars" validate:"min=0"`
}

type PipelineConfig struct {
	Workers        int           `mapstructure:"workers" validate:"min=1"`
	MaxCandidates  int           `mapstructure:"max_candidates" validate:"min=1"`
	MaxRetries     int           `mapstructure:"max_retries" validate:"min=0"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	EntityTimeout  time.Duration `mapstructure:"entity_timeout" validate:"gt=0"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps" validate:"min=0"`
	FailurePolicy  string        `mapstructure:"failure_policy" validate:"oneof=skip-entity abort-run skip abort"`
}

type SeedConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

type OutputConfig struct {
	Path   string `mapstructure:"path"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=xlsx csv"`
}

type CacheConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db" validate:"min=0"`
	TTL           time.Duration `mapstructure:"ttl"`
}

type StoreConfig struct {
	PostgresURL string `mapstructure:"postgres_url"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json console"`
	File   string `mapstructure:"file"`
}

type HTTPConfig struct {
	CAPath    string `mapstructure:"ca_path"`
	UserAgent string `mapstructure:"user_agent"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("search.locale", "de")
	v.SetDefault("crawl.provider", "firecrawl")
	v.SetDefault("crawl.browser_settle", time.Second)
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.openai_model", "gpt-4o-mini")
	v.SetDefault("normalize.use_llm", true)
	v.SetDefault("locator.keywords", []string{"impressum"})
	v.SetDefault("locator.semantic_fallback", false)
	v.SetDefault("locator.max_fallback_links", 500)
	v.SetDefault("extract.max_content_chars", 60000)
	v.SetDefault("pipeline.workers", 1)
	v.SetDefault("pipeline.max_candidates", 3)
	v.SetDefault("pipeline.max_retries", 2)
	v.SetDefault("pipeline.request_timeout", 30*time.Second)
	v.SetDefault("pipeline.entity_timeout", 5*time.Minute)
	v.SetDefault("pipeline.rate_limit_rps", 0.0)
	v.SetDefault("pipeline.failure_policy", "skip-entity")
	v.SetDefault("output.path", "company_data.xlsx")
	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("http.user_agent", version.UserAgent())
}

// envBindings maps config keys to environment variables, first match wins.
var envBindings = map[string][]string{
	"search.api_key":              {"SERPER_API_KEY"},
	"search.base_url":             {"SERPER_API_HOST", "SERPER_BASE_URL"},
	"search.locale":               {"SEARCH_LOCALE"},
	"search.num":                  {"SEARCH_NUM"},
	"crawl.provider":              {"CRAWL_PROVIDER"},
	"crawl.firecrawl_api_key":     {"FIRECRAWL_API_KEY"},
	"crawl.firecrawl_base_url":    {"FIRECRAWL_API_URL", "FIRECRAWL_BASE_URL"},
	"crawl.map_limit":             {"CRAWL_MAP_LIMIT"},
	"crawl.browser":               {"CRAWL_BROWSER"},
	"crawl.browser_settle":        {"CRAWL_BROWSER_SETTLE"},
	"llm.provider":                {"LLM_PROVIDER"},
	"llm.openai_api_key":          {"OPENAI_API_KEY"},
	"llm.openai_model":            {"OPENAI_MODEL"},
	"llm.openai_base_url":         {"OPENAI_BASE_URL"},
	"llm.gemini_api_key":          {"GEMINI_API_KEY"},
	"llm.gemini_model":            {"GEMINI_MODEL"},
	"llm.gemini_base_url":         {"GEMINI_BASE_URL"},
	"normalize.use_llm":           {"NORMALIZE_USE_LLM"},
	"locator.keywords":            {"LOCATOR_KEYWORDS"},
	"locator.semantic_fallback":   {"LOCATOR_SEMANTIC_FALLBACK"},
	"locator.max_fallback_links":  {"LOCATOR_MAX_FALLBACK_LINKS"},
	"extract.max_content_chars":   {"EXTRACT_MAX_CONTENT_CHARS"},
	"pipeline.workers":            {"WORKERS"},
	"pipeline.max_candidates":     {"MAX_CANDIDATES"},
	"pipeline.max_retries":        {"MAX_RETRIES"},
	"pipeline.request_timeout":    {"REQUEST_TIMEOUT"},
	"pipeline.entity_timeout":     {"ENTITY_TIMEOUT"},
	"pipeline.rate_limit_rps":     {"RATE_LIMIT_RPS"},
	"pipeline.failure_policy":     {"FAILURE_POLICY"},
	"seed.url":                    {"WEBPAGE_URL", "SEED_URL"},
	"output.path":                 {"OUTPUT_PATH"},
	"output.format":               {"OUTPUT_FORMAT"},
	"cache.redis_addr":            {"REDIS_ADDR"},
	"cache.redis_password":        {"REDIS_PASSWORD"},
	"cache.redis_db":              {"REDIS_DB"},
	"cache.ttl":                   {"CACHE_TTL"},
	"store.postgres_url":          {"POSTGRES_URL"},
	"metrics.addr":                {"METRICS_ADDR"},
	"log.level":                   {"LOG_LEVEL"},
	"log.format":                  {"LOG_FORMAT"},
	"log.file":                    {"LOG_FILE"},
	"http.ca_path":                {"CA_PATH"},
	"http.user_agent":             {"HTTP_USER_AGENT"},
	"credentials_file":            {"CREDENTIALS_FILE"},
}

// FlagKeys maps CLI flag names to config keys. Only flags that were set on
// the command line override other sources.
var FlagKeys = map[string]string{
	"seed-url":          "seed.url",
	"output":            "output.path",
	"format":            "output.format",
	"workers":           "pipeline.workers",
	"max-candidates":    "pipeline.max_candidates",
	"max-retries":       "pipeline.max_retries",
	"request-timeout":   "pipeline.request_timeout",
	"rate-limit-rps":    "pipeline.rate_limit_rps",
	"failure-policy":    "pipeline.failure_policy",
	"semantic-fallback": "locator.semantic_fallback",
	"crawl-provider":    "crawl.provider",
	"llm-provider":      "llm.provider",
	"log-level":         "log.level",
	"metrics-addr":      "metrics.addr",
}

// Load builds and validates a Config. configFile and flags are optional.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg, err := Decode(configFile, flags)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode builds a Config without validating it, for commands that need no
// provider credentials.
func Decode(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	if strings.TrimSpace(configFile) != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}
	if flags != nil {
		for name, key := range FlagKeys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag --%s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if path := strings.TrimSpace(cfg.CredentialsFile); path != "" {
		creds, err := LoadCredentials(path)
		if err != nil {
			return nil, err
		}
		creds.Apply(&cfg)
	}
	cfg.trim()
	return &cfg, nil
}

func (c *Config) trim() {
	for _, s := range []*string{
		&c.Search.APIKey, &c.Search.BaseURL, &c.Search.Locale,
		&c.Crawl.Provider, &c.Crawl.FirecrawlAPIKey, &c.Crawl.FirecrawlURL,
		&c.LLM.Provider, &c.LLM.OpenAIAPIKey, &c.LLM.OpenAIModel, &c.LLM.OpenAIBaseURL,
		&c.LLM.GeminiAPIKey, &c.LLM.GeminiModel, &c.LLM.GeminiBaseURL,
		&c.Pipeline.FailurePolicy, &c.Seed.URL, &c.Output.Path, &c.Output.Format,
		&c.Log.Level, &c.Log.Format,
	} {
		*s = strings.TrimSpace(*s)
	}
	c.Crawl.Provider = strings.ToLower(c.Crawl.Provider)
	c.LLM.Provider = strings.ToLower(c.LLM.Provider)
	c.Output.Format = strings.ToLower(c.Output.Format)
	keywords := c.Locator.Keywords[:0:0]
	for _, k := range c.Locator.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	c.Locator.Keywords = keywords
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("mapstructure")
	})
	return v
}

// Validate reports every invalid field, named by its config key.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}
	msgs := make([]string, 0, len(ves))
	for _, fe := range ves {
		key := strings.TrimPrefix(fe.Namespace(), "Config.")
		msg := fmt.Sprintf("%s failed %q", key, fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s failed %q (%s)", key, fe.Tag(), fe.Param())
		}
		if envs := envBindings[key]; len(envs) > 0 {
			msg += " [env " + envs[0] + "]"
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
