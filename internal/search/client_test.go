package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deckflow/internal/config"
)

func TestSearchDecodesResultsAndImages(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{
			"results": [{"title": "A", "url": "https://a", "content": "alpha"}],
			"images": ["https://img/1.png", {"url": "https://img/2.png", "description": "two"}]
		}`))
	}))
	defer srv.Close()

	c := NewClient(config.SearchConfig{BaseURL: srv.URL, APIKey: "key"})
	res, err := c.Search(context.Background(), Params{Query: "q", MaxResults: 2, IncludeImages: true})
	require.NoError(t, err)

	assert.Equal(t, "q", body["query"])
	assert.Equal(t, true, body["include_images"])
	require.Len(t, res.Results, 1)
	assert.Equal(t, "alpha", res.Results[0].Content)
	assert.Equal(t, []Image{{URL: "https://img/1.png"}, {URL: "https://img/2.png", Description: "two"}}, res.Images)
}

func TestSearchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"results": [{"title": "ok"}]}`))
	}))
	defer srv.Close()

	c := NewClient(config.SearchConfig{BaseURL: srv.URL, Retries: 2})
	res, err := c.Search(context.Background(), Params{Query: "q"})
	require.NoError(t, err)
	assert.Len(t, res.Results, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearchClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(config.SearchConfig{BaseURL: srv.URL, Retries: 3})
	_, err := c.Search(context.Background(), Params{Query: "q"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMockSearch(t *testing.T) {
	c := NewClient(config.SearchConfig{Provider: "mock"})
	res, err := c.Search(context.Background(), Params{Query: "q", MaxResults: 3, IncludeImages: true})
	require.NoError(t, err)
	assert.Len(t, res.Results, 3)
	assert.Len(t, res.Images, 3)

	_, err = c.Search(context.Background(), Params{})
	assert.Error(t, err)
}
