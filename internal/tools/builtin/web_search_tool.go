package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"backend/internal/config"
)

// WebSearchTool 网络搜索工具，通过带 API Key 的搜索服务检索结果
type WebSearchTool struct {
	cfg        config.SearchToolConfig
	httpClient *http.Client
}

// NewWebSearchTool 创建搜索工具
func NewWebSearchTool(cfg config.SearchToolConfig) *WebSearchTool {
	return &WebSearchTool{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *WebSearchTool) Name() string {
	return "web_search"
}

func (t *WebSearchTool) Description() string {
	return "Perform a web search to find relevant, up-to-date information."
}

func (t *WebSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query string",
			},
			"num_results": map[string]any{
				"type":        "integer",
				"description": "Number of results to return (default: 5, max: 10)",
				"default":     5,
			},
		},
		"required": []string{"query"},
	}
}

// Available 需要搜索服务的 API Key
func (t *WebSearchTool) Available() bool {
	return t.cfg.APIKey != "" && t.cfg.Endpoint != ""
}

// SearchResult 单条搜索结果
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

func (t *WebSearchTool) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	query, ok := input["query"].(string)
	if !ok || query == "" {
		return nil, fmt.Errorf("invalid query")
	}

	numResults := 5
	if n, ok := input["num_results"].(float64); ok {
		numResults = int(n)
	}
	if numResults > 10 {
		numResults = 10
	}
	if numResults < 1 {
		numResults = 1
	}

	results, err := t.search(ctx, query, numResults)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"query":   query,
		"results": results,
		"count":   len(results),
	}, nil
}

func (t *WebSearchTool) search(ctx context.Context, query string, num int) ([]SearchResult, error) {
	endpoint := fmt.Sprintf("%s?q=%s&count=%d", t.cfg.Endpoint, url.QueryEscape(query), num)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", t.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search provider returned status %d", resp.StatusCode)
	}

	var payload struct {
		Results []SearchResult `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode search response failed: %w", err)
	}

	if len(payload.Results) > num {
		payload.Results = payload.Results[:num]
	}
	return payload.Results, nil
}
