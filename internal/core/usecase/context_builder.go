package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
	"github.com/kirillkom/admissions-rag/internal/core/ports"
)

// ContextBuilder assembles the prompt evidence for one category. The set of
// implementations is closed: builderFor maps every domain.Category to exactly
// one of them.
type ContextBuilder interface {
	Category() domain.Category
	Build(ctx context.Context, entities domain.EntitySet, query string, outcome domain.RetrievalOutcome) domain.PromptContext
	sealed()
}

// RankThresholdFunc maps a user's rank to the worst NIRF rank worth listing.
// It is a heuristic with no accuracy guarantee.
type RankThresholdFunc func(rank int) int

const maxRankThreshold = 200

// DefaultRankThreshold doubles the rank and clamps the result to [1, 200].
func DefaultRankThreshold(rank int) int {
	threshold := rank * 2
	if rank > maxRankThreshold || threshold > maxRankThreshold {
		return maxRankThreshold
	}
	if threshold < 1 {
		return 1
	}
	return threshold
}

type builderDeps struct {
	store         ports.StructuredStore
	searcher      ports.SemanticSearcher
	timeout       time.Duration
	rankThreshold RankThresholdFunc
}

func builderFor(category domain.Category, deps builderDeps) ContextBuilder {
	switch category {
	case domain.CategoryCollege:
		return collegeBuilder{deps}
	case domain.CategoryComparison:
		return comparisonBuilder{deps}
	case domain.CategoryExam:
		return examBuilder{deps}
	case domain.CategoryPredictor:
		return predictorBuilder{deps}
	case domain.CategoryTopColleges:
		return topCollegesBuilder{deps}
	case domain.CategoryGeneral:
		return generalBuilder{deps}
	}
	slog.Warn("context_builder_unknown_category", "category", category)
	return generalBuilder{deps}
}

func newPromptContext(text string, records, documents int) domain.PromptContext {
	local := records > 0 || documents > 0
	return domain.PromptContext{
		Text:                text,
		HasLocalEvidence:    local,
		NeedsExternalSearch: !local,
	}
}

// The helpers below turn port failures into empty results.

func (d builderDeps) college(ctx context.Context, name string) *domain.College {
	if d.store == nil || strings.TrimSpace(name) == "" {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	rec, err := d.store.LookupCollege(callCtx, name)
	if err != nil {
		slog.Warn("structured_lookup_failed", "lookup", "college", "name", name, "error", err)
		return nil
	}
	return rec
}

func (d builderDeps) exam(ctx context.Context, name string) *domain.Exam {
	if d.store == nil || strings.TrimSpace(name) == "" {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	rec, err := d.store.LookupExam(callCtx, name)
	if err != nil {
		slog.Warn("structured_lookup_failed", "lookup", "exam", "name", name, "error", err)
		return nil
	}
	return rec
}

func (d builderDeps) comparison(ctx context.Context, first, second string) *domain.Comparison {
	if d.store == nil || first == "" || second == "" {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	rec, err := d.store.LookupComparison(callCtx, first, second)
	if err != nil {
		slog.Warn("structured_lookup_failed", "lookup", "comparison", "first", first, "second", second, "error", err)
		return nil
	}
	return rec
}

func (d builderDeps) topColleges(ctx context.Context, limit int, location string) []domain.College {
	if d.store == nil {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	list, err := d.store.TopColleges(callCtx, limit, location)
	if err != nil {
		slog.Warn("structured_lookup_failed", "lookup", "top_colleges", "location", location, "error", err)
		return nil
	}
	return list
}

func (d builderDeps) withinRank(ctx context.Context, maxRank, limit int) []domain.College {
	if d.store == nil {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	list, err := d.store.CollegesWithinRank(callCtx, maxRank, limit)
	if err != nil {
		slog.Warn("structured_lookup_failed", "lookup", "within_rank", "max_rank", maxRank, "error", err)
		return nil
	}
	return list
}

func (d builderDeps) search(ctx context.Context, text, docType string, limit int) []domain.RetrievedDocument {
	if d.searcher == nil {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	docs, err := d.searcher.Search(callCtx, text, docType, limit)
	if err != nil {
		slog.Warn("semantic_search_failed", "doc_type", docType, "error", err)
		return nil
	}
	return docs
}
