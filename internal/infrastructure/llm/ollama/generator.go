package ollama

import (
	"context"
	"log/slog"

	"github.com/kirillkom/admissions-rag/internal/core/ports"
)

const webResultsPerAnswer = 5

type Generator struct {
	client *Client
	web    *WebSearcher
}

// NewGenerator builds the answer generator. web may be nil, in which case
// external search requests are answered from local context only.
func NewGenerator(client *Client, web *WebSearcher) *Generator {
	return &Generator{client: client, web: web}
}

func (g *Generator) Generate(ctx context.Context, req ports.GenerationRequest) (string, error) {
	return g.client.generate(ctx, "generate", g.request(ctx, req))
}

func (g *Generator) GenerateStream(ctx context.Context, req ports.GenerationRequest, onToken func(string) error) error {
	return g.client.streamGenerate(ctx, g.request(ctx, req), onToken)
}

func (g *Generator) request(ctx context.Context, req ports.GenerationRequest) generateRequest {
	var web []WebResult
	if req.UseExternalSearch {
		web = g.searchWeb(ctx, req.Query)
	}
	return generateRequest{
		Model:  g.client.genModel,
		System: buildSystemPrompt(req.Context, web, req.UseExternalSearch),
		Prompt: buildConversationPrompt(req.History, req.Query),
		Options: generateOptions{
			Temperature: g.client.temperature,
			NumPredict:  g.client.maxTokens,
		},
	}
}

// searchWeb never fails the answer. Missing configuration and search errors
// both degrade to local context.
func (g *Generator) searchWeb(ctx context.Context, query string) []WebResult {
	if !g.web.Enabled() {
		slog.Warn("web_search_unavailable", "reason", "no api key configured")
		return nil
	}
	results, err := g.web.Search(ctx, query, webResultsPerAnswer)
	if err != nil {
		slog.Warn("web_search_failed", "error", err)
		return nil
	}
	slog.Info("web_search_completed", "results", len(results))
	return results
}
