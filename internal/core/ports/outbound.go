package ports

import (
	"context"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
)

// StructuredStore answers typed catalog lookups. A miss is (nil, nil).
type StructuredStore interface {
	LookupCollege(ctx context.Context, name string) (*domain.College, error)
	LookupExam(ctx context.Context, name string) (*domain.Exam, error)
	// LookupComparison matches regardless of which name is given first.
	LookupComparison(ctx context.Context, first, second string) (*domain.Comparison, error)
	// TopColleges orders by NIRF rank ascending. An empty location means no filter.
	TopColleges(ctx context.Context, limit int, location string) ([]domain.College, error)
	CollegesWithinRank(ctx context.Context, maxRank, limit int) ([]domain.College, error)
}

// SemanticSearcher returns documents ordered by ascending distance. An empty
// docType searches the whole corpus.
type SemanticSearcher interface {
	Search(ctx context.Context, text, docType string, limit int) ([]domain.RetrievedDocument, error)
}

// QueryClassifier is the fallback stage of the router.
type QueryClassifier interface {
	ClassifyQuery(ctx context.Context, text string) (domain.Category, domain.EntitySet, error)
}

// RelevanceJudge grades retrieved documents against the query.
type RelevanceJudge interface {
	CheckRelevance(ctx context.Context, text string, docs []domain.RetrievedDocument) (domain.RelevanceVerdict, error)
}

// QueryRewriter rephrases a query for a second retrieval attempt.
type QueryRewriter interface {
	Rewrite(ctx context.Context, text string, category domain.Category) (string, error)
}

type GenerationRequest struct {
	Query             string
	Context           domain.PromptContext
	History           []domain.Turn
	UseExternalSearch bool
}

// AnswerGenerator produces the final answer, buffered or as a token stream.
// GenerateStream stops when onToken returns an error or ctx is done.
type AnswerGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	GenerateStream(ctx context.Context, req GenerationRequest, onToken func(string) error) error
}

// ResponseCache memoizes buffered answers. Len must not affect eviction order.
type ResponseCache interface {
	Get(ctx context.Context, key string) (*domain.Response, bool)
	Put(ctx context.Context, key string, resp *domain.Response)
	Len(ctx context.Context) int
}

// TraceSink receives one record per retrieval attempt.
type TraceSink interface {
	RecordRetrieval(ctx context.Context, trace domain.RetrievalTrace)
}

// TraceReader exposes recent retrieval traces, newest last.
type TraceReader interface {
	Recent(limit int) []domain.RetrievalTrace
}
