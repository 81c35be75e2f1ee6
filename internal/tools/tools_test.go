package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deckflow/internal/config"
	"deckflow/internal/search"
)

func TestWebSearchTool(t *testing.T) {
	client := search.NewClient(config.SearchConfig{Provider: "mock"})
	tool := NewWebSearchTool(client, 2)

	info, err := tool.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "web_search", info.Name)

	out, err := tool.InvokableRun(context.Background(), `{"query": "solar power"}`)
	require.NoError(t, err)
	var resp WebSearchResp
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "solar power", resp.Query)
	assert.Len(t, resp.Results, 2)

	_, err = tool.InvokableRun(context.Background(), `{"query": ""}`)
	assert.Error(t, err)
	_, err = tool.InvokableRun(context.Background(), `not json`)
	assert.Error(t, err)
}

func TestVisualSearchToolCaptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"results": [{"title": "First result"}],
			"images": [
				"https://img/1.png",
				{"url": "https://img/2.png", "description": "described"},
				"",
				"https://img/4.png"
			]
		}`))
	}))
	defer srv.Close()

	tool := NewVisualSearchTool(search.NewClient(config.SearchConfig{BaseURL: srv.URL}), 5)
	out, err := tool.InvokableRun(context.Background(), `{"query": "wind"}`)
	require.NoError(t, err)

	var resp VisualSearchResp
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Visuals, 3)
	assert.Equal(t, "First result", resp.Visuals[0].Caption)
	assert.Equal(t, "described", resp.Visuals[1].Caption)
	assert.Equal(t, "wind", resp.Visuals[2].Caption)
	assert.Equal(t, "https://img/4.png", resp.Visuals[2].URL)
}
