// Package mockproviders serves fixture-backed stand-ins for the search,
// crawl, scrape and chat-completion APIs, plus a seed listing page, so the
// resolver can run end to end without network access or API keys.
package mockproviders

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gopkg.in/yaml.v3"
)

// Fixtures describe what the mock providers answer.
type Fixtures struct {
	// Search maps a query to its organic result links, best first.
	Search map[string][]string `yaml:"search"`
	// Sites maps a site root to its crawl result.
	Sites map[string]Site `yaml:"sites"`
	// Pages maps a page URL to its content and the record it discloses.
	Pages map[string]Page `yaml:"pages"`
	// SeedTitles are listed on the seed page at /seed.
	SeedTitles []string `yaml:"seed_titles"`
}

type Site struct {
	Links []string `yaml:"links"`
	// Fail makes the map call report success=false.
	Fail bool `yaml:"fail"`
}

type Page struct {
	Markdown       string `yaml:"markdown"`
	CompanyName    string `yaml:"company_name"`
	RegisterNumber string `yaml:"register_number"`
	// Fail makes the scrape call report success=false.
	Fail bool `yaml:"fail"`
}

// LoadFixtures reads fixtures from a YAML file.
func LoadFixtures(path string) (Fixtures, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Fixtures{}, fmt.Errorf("read fixtures: %w", err)
	}
	return ParseFixtures(b)
}

func ParseFixtures(b []byte) (Fixtures, error) {
	var f Fixtures
	if err := yaml.Unmarshal(b, &f); err != nil {
		return Fixtures{}, fmt.Errorf("parse fixtures: %w", err)
	}
	return f, nil
}

// Call records a request made to the mock service.
type Call struct {
	Method string
	Path   string
	// Target is the query, URL or schema name the call was about.
	Target string
}

// Keys are the credentials each provider expects. Empty disables the check.
type Keys struct {
	Serper    string
	Firecrawl string
	OpenAI    string
}

// Server implements the provider API surface the resolver uses.
type Server struct {
	fixtures Fixtures
	keys     Keys

	mu    sync.Mutex
	calls []Call
}

func New(f Fixtures) *Server {
	return &Server{fixtures: f}
}

// RequireKeys enforces provider credentials on subsequent requests.
func (s *Server) RequireKeys(k Keys) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = k
}

// Handler returns an http.Handler that serves the mock APIs.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/search", s.handleSearch)
	r.Post("/v1/map", s.handleMap)
	r.Post("/v1/scrape", s.handleScrape)
	r.Post("/v1/chat/completions", s.handleChat)
	r.Get("/seed", s.handleSeed)
	return r
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many calls hit path.
func (s *Server) CallCount(path string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Path == path {
			n++
		}
	}
	return n
}

func (s *Server) recordCall(r *http.Request, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, Target: target})
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request, header, want string) bool {
	if want == "" {
		return true
	}
	if r.Header.Get(header) != want {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return false
	}
	return true
}

func (s *Server) currentKeys() Keys {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Q  string `json:"q"`
		GL string `json:"gl"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.recordCall(r, req.Q)
	if !s.authorize(w, r, "X-API-KEY", s.currentKeys().Serper) {
		return
	}
	organic := make([]map[string]any, 0)
	for i, link := range s.fixtures.Search[req.Q] {
		organic = append(organic, map[string]any{"title": req.Q, "link": link, "position": i + 1})
	}
	writeJSON(w, http.StatusOK, map[string]any{"organic": organic})
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.recordCall(r, req.URL)
	if !s.authorize(w, r, "Authorization", bearer(s.currentKeys().Firecrawl)) {
		return
	}
	site, ok := s.fixtures.Sites[strings.TrimSuffix(req.URL, "/")]
	if !ok || site.Fail {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "site could not be mapped"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "links": site.Links})
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.recordCall(r, req.URL)
	if !s.authorize(w, r, "Authorization", bearer(s.currentKeys().Firecrawl)) {
		return
	}
	page, ok := s.fixtures.Pages[req.URL]
	if !ok || page.Fail {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": "page could not be scraped"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"markdown": page.Markdown,
			"metadata": map[string]any{"statusCode": 200, "sourceURL": req.URL},
		},
	})
}

type chatRequest struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	ResponseFormat struct {
		JSONSchema struct {
			Name string `json:"name"`
		} `json:"json_schema"`
	} `json:"response_format"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decode(w, r, &req) {
		return
	}
	schema := req.ResponseFormat.JSONSchema.Name
	s.recordCall(r, schema)
	if !s.authorize(w, r, "Authorization", bearer(s.currentKeys().OpenAI)) {
		return
	}

	var user []string
	for _, m := range req.Messages {
		if m.Role == "user" {
			user = append(user, m.Content)
		}
	}

	var answer any
	switch schema {
	case "clean_link":
		answer = map[string]any{"clean_link": siteRoot(strings.Join(user, ""))}
	case "impressum_link":
		answer = map[string]any{"legal_information_link": s.legalLink(user)}
	case "company_information":
		answer = s.companyInfo(strings.Join(user, "\n"))
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": map[string]any{"message": "unknown schema " + schema}})
		return
	}
	content, _ := json.Marshal(answer)
	writeJSON(w, http.StatusOK, map[string]any{
		"choices": []any{map[string]any{
			"message":       map[string]any{"role": "assistant", "content": string(content)},
			"finish_reason": "stop",
		}},
	})
}

// legalLink nominates the first link that has a page fixture with a record,
// or nil.
func (s *Server) legalLink(links []string) any {
	for _, l := range links {
		if p, ok := s.fixtures.Pages[l]; ok && p.CompanyName != "" {
			return l
		}
	}
	return nil
}

func (s *Server) companyInfo(content string) map[string]string {
	for _, p := range s.fixtures.Pages {
		md := strings.TrimSpace(p.Markdown)
		if md != "" && strings.Contains(content, md) {
			return map[string]string{"company_name": p.CompanyName, "register_number": p.RegisterNumber}
		}
	}
	return map[string]string{"company_name": "", "register_number": ""}
}

func (s *Server) handleSeed(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r, "")
	var b strings.Builder
	b.WriteString(`<html><body><article class="article articlel filter clearfix"></article><div class="list">`)
	for _, t := range s.fixtures.SeedTitles {
		fmt.Fprintf(&b, `<article><a class="name" title="%s">%s</a></article>`, html.EscapeString(t), html.EscapeString(t))
	}
	b.WriteString(`</div></body></html>`)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, b.String())
}

func siteRoot(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func bearer(token string) string {
	if token == "" {
		return ""
	}
	return "Bearer " + token
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
