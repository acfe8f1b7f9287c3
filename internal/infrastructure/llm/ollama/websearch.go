package ollama

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/admissions-rag/internal/infrastructure/resilience"
)

const DefaultWebSearchURL = "https://ollama.com/api/web_search"

type WebResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// WebSearcher calls the Ollama web search API. A searcher without an API key
// is disabled.
type WebSearcher struct {
	url        string
	apiKey     string
	httpClient *http.Client
	executor   *resilience.Executor
}

func NewWebSearcher(url, apiKey string, executor *resilience.Executor) *WebSearcher {
	if strings.TrimSpace(url) == "" {
		url = DefaultWebSearchURL
	}
	return &WebSearcher{
		url:        url,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		executor:   executor,
	}
}

func (w *WebSearcher) Enabled() bool {
	return w != nil && w.apiKey != ""
}

func (w *WebSearcher) Search(ctx context.Context, query string, maxResults int) ([]WebResult, error) {
	if maxResults <= 0 {
		maxResults = webResultsPerAnswer
	}
	payload := map[string]any{
		"query":       query,
		"max_results": maxResults,
	}
	headers := map[string]string{"Authorization": "Bearer " + w.apiKey}

	results, err := resilience.Call(ctx, w.executor, "ollama.web_search", func(ctx context.Context) ([]WebResult, error) {
		var response struct {
			Results []WebResult `json:"results"`
		}
		if err := doJSON(ctx, w.httpClient, w.url, headers, payload, &response, "web_search"); err != nil {
			return nil, err
		}
		return response.Results, nil
	}, classifyOllamaError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("ollama web search", err)
	}
	return results, nil
}
