package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
	"github.com/kirillkom/admissions-rag/internal/core/ports"
)

// QueryRouter classifies queries with ordered text rules and falls back to
// the fast classifier model only when no rule matches.
type QueryRouter struct {
	classifier ports.QueryClassifier
	timeout    time.Duration
}

func NewQueryRouter(classifier ports.QueryClassifier, timeout time.Duration) *QueryRouter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &QueryRouter{
		classifier: classifier,
		timeout:    timeout,
	}
}

func (r *QueryRouter) Classify(ctx context.Context, text string) (category domain.Category, entities domain.EntitySet) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("query_router_panic", "panic", rec)
			category, entities = domain.CategoryGeneral, domain.EntitySet{}
		}
	}()

	if rule, ok := matchRule(text); ok {
		entities = extractEntities(text)
		slog.Info("query_routed",
			"stage", "pattern",
			"rule", rule.name,
			"category", rule.category,
			"colleges", entities.Colleges,
			"exams", entities.Exams,
		)
		return rule.category, entities
	}

	if r.classifier == nil {
		return domain.CategoryGeneral, domain.EntitySet{}
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	category, entities, err := r.classifier.ClassifyQuery(callCtx, text)
	if err != nil {
		slog.Warn("query_router_fallback_failed",
			"error", err,
			"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
		)
		return domain.CategoryGeneral, domain.EntitySet{}
	}
	if _, known := domain.ParseCategory(string(category)); !known {
		category = domain.CategoryGeneral
	}

	entities = backfillEntities(entities.Normalize(), extractEntities(text))
	slog.Info("query_routed",
		"stage", "fallback",
		"category", category,
		"colleges", entities.Colleges,
		"exams", entities.Exams,
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	return category, entities
}

// backfillEntities fills fields the model left empty with values found by the
// deterministic extractor.
func backfillEntities(model, local domain.EntitySet) domain.EntitySet {
	if len(model.Colleges) == 0 {
		model.Colleges = local.Colleges
	}
	if len(model.Exams) == 0 {
		model.Exams = local.Exams
	}
	if model.Location == "" {
		model.Location = local.Location
	}
	if model.RankScore == "" {
		model.RankScore = local.RankScore
	}
	return model
}
