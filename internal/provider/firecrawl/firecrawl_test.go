package firecrawl_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shpitdev/impressum-resolver/internal/provider/firecrawl"
	"github.com/shpitdev/impressum-resolver/pkg/pipeline/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) *firecrawl.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := firecrawl.New(firecrawl.Config{APIKey: "fc-test", BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func TestMap(t *testing.T) {
	var got map[string]any
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/map", r.URL.Path)
		assert.Equal(t, "Bearer fc-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true,"links":["https://acme.test/about",{"url":"https://acme.test/impressum","title":"Impressum"},""]}`))
	})

	links, err := c.Map(context.Background(), "https://acme.test")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://acme.test/about", "https://acme.test/impressum"}, links)
	assert.Equal(t, "https://acme.test", got["url"])
	assert.Equal(t, true, got["includeSubdomains"])
}

func TestMap_UnsuccessfulIsFailure(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"site blocked","links":["https://acme.test/impressum"]}`))
	})

	links, err := c.Map(context.Background(), "https://acme.test")
	require.Error(t, err)
	assert.Nil(t, links, "links from an unsuccessful map must not be returned")
	var ue *firecrawl.UnsuccessfulError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "site blocked", ue.Message)
}

func TestMap_ServerErrorIsTransient(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := c.Map(context.Background(), "https://acme.test")
	var te *core.TransientError
	assert.True(t, errors.As(err, &te))
}

func TestScrape(t *testing.T) {
	var got map[string]any
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/scrape", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"success":true,"data":{"markdown":"# Impressum\nAcme GmbH\nHRB 12345","metadata":{"statusCode":200}}}`))
	})

	md, err := c.Scrape(context.Background(), "https://acme.test/impressum")
	require.NoError(t, err)
	assert.Equal(t, "# Impressum\nAcme GmbH\nHRB 12345", md)
	assert.Equal(t, []any{"markdown"}, got["formats"])
}

func TestScrape_Failures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unsuccessful", body: `{"success":false,"error":"timeout"}`},
		{name: "page 404", body: `{"success":true,"data":{"markdown":"Not Found","metadata":{"statusCode":404}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Scrape(context.Background(), "https://acme.test/impressum")
			var ue *firecrawl.UnsuccessfulError
			assert.True(t, errors.As(err, &ue), "got %v", err)
		})
	}
}
