package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Credentials is the parsed contents of the CREDENTIALS_FILE JSON file.
//
// The top-level keys are provider names (serper, firecrawl, openai, gemini,
// redis, postgres). Each provider maps secret name -> secret value.
type Credentials map[string]map[string]string

// LoadCredentials reads and parses a credentials file.
func LoadCredentials(path string) (Credentials, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	var out Credentials
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("parse credentials JSON: %w", err)
	}
	if out == nil {
		out = make(Credentials)
	}
	return out, nil
}

// Providers returns stable-sorted provider names present in the file.
func (c Credentials) Providers() []string {
	out := make([]string, 0, len(c))
	for k := range c {
		if strings.TrimSpace(k) != "" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Secret returns a secret for provider. Provider names match case-insensitively.
func (c Credentials) Secret(provider, name string) (string, bool) {
	provider = strings.TrimSpace(provider)
	name = strings.TrimSpace(name)
	if provider == "" || name == "" {
		return "", false
	}
	for k, src := range c {
		if !strings.EqualFold(strings.TrimSpace(k), provider) {
			continue
		}
		if v := strings.TrimSpace(src[name]); v != "" {
			return v, true
		}
	}
	return "", false
}

// Apply fills empty secret fields of cfg.
func (c Credentials) Apply(cfg *Config) {
	fill := func(dst *string, provider, name string) {
		if strings.TrimSpace(*dst) != "" {
			return
		}
		if v, ok := c.Secret(provider, name); ok {
			*dst = v
		}
	}
	fill(&cfg.Search.APIKey, "serper", "api_key")
	fill(&cfg.Crawl.FirecrawlAPIKey, "firecrawl", "api_key")
	fill(&cfg.LLM.OpenAIAPIKey, "openai", "api_key")
	fill(&cfg.LLM.GeminiAPIKey, "gemini", "api_key")
	fill(&cfg.Cache.RedisPassword, "redis", "password")
	fill(&cfg.Store.PostgresURL, "postgres", "url")
}
