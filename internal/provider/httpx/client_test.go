package httpx_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shpitdev/impressum-resolver/internal/provider/httpx"
	"github.com/shpitdev/impressum-resolver/pkg/pipeline/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBaseURL(t *testing.T) {
	u, err := httpx.ParseBaseURL("google.serper.dev", "serper")
	require.NoError(t, err)
	assert.Equal(t, "https://google.serper.dev/", u.String())

	u, err = httpx.ParseBaseURL("http://localhost:8080/api?x=1", "mock")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/api/", u.String())

	_, err = httpx.ParseBaseURL("  ", "serper")
	assert.Error(t, err)
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/map", r.URL.Path)
		assert.Equal(t, "Bearer fc-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c, err := httpx.New("firecrawl", srv.URL, httpx.Options{
		Header: http.Header{"Authorization": []string{"Bearer fc-test"}},
	})
	require.NoError(t, err)

	var out struct {
		Success bool `json:"success"`
	}
	require.NoError(t, c.PostJSON(context.Background(), "map", "/v1/map", map[string]string{"url": "https://acme.test"}, &out))
	assert.True(t, out.Success)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantTransient bool
		wantLimited   bool
		wantMessage   string
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":"Rate limit exceeded"}`, wantTransient: true, wantMessage: "Rate limit exceeded"},
		{name: "server error", status: http.StatusBadGateway, body: `upstream down`, wantTransient: true},
		{name: "request timeout", status: http.StatusRequestTimeout, body: ``, wantLimited: true},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":{"message":"Incorrect API key provided"}}`, wantMessage: "Incorrect API key provided"},
		{name: "serper message", status: http.StatusBadRequest, body: `{"message":"Query is required"}`, wantMessage: "Query is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := httpx.New("test", srv.URL, httpx.Options{})
			require.NoError(t, err)
			err = c.PostJSON(context.Background(), "op", "x", struct{}{}, nil)
			require.Error(t, err)

			var te *core.TransientError
			assert.Equal(t, tt.wantTransient, errors.As(err, &te))
			var lte *core.LimitedTransientError
			assert.Equal(t, tt.wantLimited, errors.As(err, &lte))
			assert.Equal(t, tt.status, httpx.StatusCode(err))

			var he *httpx.HTTPError
			require.True(t, errors.As(err, &he))
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, he.Message)
			}
		})
	}
}

func TestErrorSnippetIsRedacted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`denied for Bearer sk-abcdefghijklmnopqrstuvwx`))
	}))
	defer srv.Close()

	c, err := httpx.New("openai", srv.URL, httpx.Options{})
	require.NoError(t, err)
	_, _, err = c.Get(context.Background(), "get", srv.URL+"/x")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "sk-abcdefghijklmnopqrstuvwx")
	assert.Contains(t, err.Error(), "status=403")
}

func TestTransportErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c, err := httpx.New("test", addr, httpx.Options{})
	require.NoError(t, err)
	_, _, err = c.Get(context.Background(), "get", addr+"/gone")
	require.Error(t, err)
	var te *core.TransientError
	assert.True(t, errors.As(err, &te), "connection refused should be retryable: %v", err)
}
