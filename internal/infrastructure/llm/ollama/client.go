package ollama

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/admissions-rag/internal/infrastructure/resilience"
)

// Client talks to one Ollama server. The router model serves the short
// classification, relevance and rewrite calls; the generation model writes
// answers.
type Client struct {
	baseURL     string
	routerModel string
	genModel    string
	embedModel  string
	httpClient  *http.Client
	executor    *resilience.Executor
	temperature float64
	maxTokens   int
}

type Options struct {
	Timeout            time.Duration
	Temperature        float64
	MaxTokens          int
	ResilienceExecutor *resilience.Executor
}

func New(baseURL, routerModel, genModel, embedModel string) *Client {
	return NewWithOptions(baseURL, routerModel, genModel, embedModel, Options{})
}

func NewWithOptions(baseURL, routerModel, genModel, embedModel string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	temperature := options.Temperature
	if temperature <= 0 {
		temperature = 0.7
	}
	maxTokens := options.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	if strings.TrimSpace(routerModel) == "" {
		routerModel = genModel
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		routerModel: routerModel,
		genModel:    genModel,
		embedModel:  embedModel,
		httpClient:  &http.Client{Timeout: timeout},
		executor:    options.ResilienceExecutor,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Format  string          `json:"format,omitempty"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// routerCall runs a short deterministic prompt against the router model.
func (c *Client) routerCall(ctx context.Context, operation, prompt string, asJSON bool, numPredict int) (string, error) {
	req := generateRequest{
		Model:   c.routerModel,
		Prompt:  prompt,
		Options: generateOptions{Temperature: 0, NumPredict: numPredict},
	}
	if asJSON {
		req.Format = "json"
	}
	return c.generate(ctx, operation, req)
}

func (c *Client) generate(ctx context.Context, operation string, req generateRequest) (string, error) {
	req.Stream = false
	out, err := resilience.Call(ctx, c.executor, "ollama."+operation, func(ctx context.Context) (string, error) {
		var response generateChunk
		if err := c.postJSON(ctx, "/api/generate", req, &response, operation); err != nil {
			return "", err
		}
		return response.Response, nil
	}, classifyOllamaError)
	if err != nil {
		return "", wrapTemporaryIfNeeded("ollama "+operation, err)
	}
	return strings.TrimSpace(out), nil
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
