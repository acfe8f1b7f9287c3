package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
	"github.com/kirillkom/admissions-rag/internal/core/ports"
	"github.com/kirillkom/admissions-rag/internal/core/usecase"
)

const (
	ServerName    = "admissions-rag"
	ServerVersion = "1.0.0"
)

// Tools exposes the chat pipeline to MCP clients such as desktop assistants.
type Tools struct {
	chat   ports.ChatService
	router ports.QueryRouter
}

func NewTools(chat ports.ChatService, router ports.QueryRouter) *Tools {
	return &Tools{chat: chat, router: router}
}

func (t *Tools) NewServer() *server.MCPServer {
	s := server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false))

	categoryNames := make([]string, 0, len(domain.AllCategories()))
	for _, c := range domain.AllCategories() {
		categoryNames = append(categoryNames, string(c))
	}

	s.AddTool(mcp.NewTool("ask_admissions",
		mcp.WithDescription("Answer a question about Indian colleges, entrance exams, rankings or admission chances."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question in natural language.")),
		mcp.WithBoolean("web_search", mcp.Description("Also consult live web search results.")),
		mcp.WithString("category", mcp.Description("Optional category hint."), mcp.Enum(categoryNames...)),
	), t.ask)

	s.AddTool(mcp.NewTool("classify_query",
		mcp.WithDescription("Show which category and entities the router detects for a question."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The question to classify.")),
	), t.classify)

	s.AddTool(mcp.NewTool("list_categories",
		mcp.WithDescription("List supported question categories with sample questions."),
	), t.categories)

	return s
}

func (t *Tools) ask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query, err := domain.NewQuery(text, req.GetBool("web_search", false), req.GetString("category", ""), nil)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := t.chat.Answer(ctx, query)
	if err != nil {
		slog.Warn("mcp_ask_failed", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("answer failed: %v", err)), nil
	}
	return mcp.NewToolResultText(renderAnswer(resp)), nil
}

func renderAnswer(resp *domain.Response) string {
	var b strings.Builder
	b.WriteString(resp.Answer)
	b.WriteString("\n\n---\n")
	fmt.Fprintf(&b, "category: %s\n", resp.Category)
	fmt.Fprintf(&b, "local evidence: %t\n", resp.HasLocalEvidence)
	fmt.Fprintf(&b, "web search used: %t\n", resp.ExternalSearchUsed)
	for _, src := range resp.Sources {
		if src.URL != "" {
			fmt.Fprintf(&b, "source: %s\n", src.URL)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (t *Tools) classify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	category, entities := t.router.Classify(ctx, text)
	raw, err := json.MarshalIndent(map[string]any{
		"category": category,
		"entities": entities,
	}, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func (t *Tools) categories(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(usecase.Categories(), "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}

// ServeStdio blocks serving MCP over stdin/stdout.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
