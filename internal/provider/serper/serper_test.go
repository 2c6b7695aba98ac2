package serper_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shpitdev/impressum-resolver/internal/provider/serper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "serper-key", r.Header.Get("X-API-KEY"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"searchParameters":{"q":"Acme Clothing"},"organic":[
			{"title":"Acme Clothing - Shop","link":"https://shop.acme.test/p/123?ref=xyz","position":1},
			{"title":"Acme on Maps","link":"","position":2},
			{"title":"Acme Clothing GmbH","link":"https://directory.test/acme","position":3}
		]}`))
	}))
	defer srv.Close()

	c, err := serper.New(serper.Config{APIKey: "serper-key", BaseURL: srv.URL})
	require.NoError(t, err)

	links, err := c.Search(context.Background(), " Acme Clothing ")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://shop.acme.test/p/123?ref=xyz", "https://directory.test/acme"}, links)
	assert.Equal(t, "Acme Clothing", got["q"])
	assert.Equal(t, "de", got["gl"])
	_, hasNum := got["num"]
	assert.False(t, hasNum)
}

func TestSearch_NoOrganicResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"searchParameters":{"q":"x"}}`))
	}))
	defer srv.Close()

	c, err := serper.New(serper.Config{APIKey: "k", BaseURL: srv.URL, Locale: "at", Num: 5})
	require.NoError(t, err)
	links, err := c.Search(context.Background(), "Unknown Startup")
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestSearch_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"Unauthorized.","statusCode":403}`))
	}))
	defer srv.Close()

	c, err := serper.New(serper.Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.Search(context.Background(), "Acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unauthorized.")

	_, err = c.Search(context.Background(), "  ")
	assert.Error(t, err)

	_, err = serper.New(serper.Config{})
	assert.Error(t, err)
}
