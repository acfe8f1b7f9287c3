package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
	"github.com/kirillkom/admissions-rag/internal/core/ports"
)

type RetrievalConfig struct {
	Limit int
	// AdequacyDistance rejects a result set without asking the judge when
	// every document is at least this far from the query. Zero disables it.
	AdequacyDistance float64
	PortTimeout      time.Duration
}

// ReflectiveRetriever fetches documents, grades them and retries once with a
// rewritten query when the first result set is inadequate.
type ReflectiveRetriever struct {
	searcher ports.SemanticSearcher
	judge    ports.RelevanceJudge
	rewriter ports.QueryRewriter
	traces   ports.TraceSink
	cfg      RetrievalConfig
}

func NewReflectiveRetriever(
	searcher ports.SemanticSearcher,
	judge ports.RelevanceJudge,
	rewriter ports.QueryRewriter,
	traces ports.TraceSink,
	cfg RetrievalConfig,
) *ReflectiveRetriever {
	if cfg.Limit <= 0 {
		cfg.Limit = 5
	}
	if cfg.PortTimeout <= 0 {
		cfg.PortTimeout = 10 * time.Second
	}
	return &ReflectiveRetriever{
		searcher: searcher,
		judge:    judge,
		rewriter: rewriter,
		traces:   traces,
		cfg:      cfg,
	}
}

func (r *ReflectiveRetriever) Retrieve(
	ctx context.Context,
	query domain.Query,
	category domain.Category,
	entities domain.EntitySet,
) domain.RetrievalOutcome {
	docs1, verdict1 := r.attempt(ctx, 1, query.Text, category, entities)
	switch verdict1 {
	case domain.VerdictAdequate:
		return domain.RetrievalOutcome{Documents: docs1, Verdict: verdict1, EffectiveQuery: query.Text, Checks: 1}
	case domain.VerdictPartial:
		return domain.RetrievalOutcome{Documents: docs1, Verdict: verdict1, Escalate: true, EffectiveQuery: query.Text, Checks: 1}
	}

	rewritten := r.rewrite(ctx, query.Text, category)
	if rewritten == "" || strings.EqualFold(rewritten, strings.TrimSpace(query.Text)) {
		slog.Info("retrieval_rewrite_skipped", "category", category)
		return domain.RetrievalOutcome{
			Documents:      docs1,
			Verdict:        domain.VerdictInadequate,
			Escalate:       true,
			EffectiveQuery: query.Text,
			Checks:         1,
		}
	}

	docs2, verdict2 := r.attempt(ctx, 2, rewritten, category, entities)
	if verdict2 != domain.VerdictInadequate {
		return domain.RetrievalOutcome{
			Documents:      docs2,
			Verdict:        verdict2,
			Escalate:       verdict2 == domain.VerdictPartial,
			EffectiveQuery: rewritten,
			Rewritten:      true,
			Checks:         2,
		}
	}

	// Both attempts failed the check. Keep whatever evidence exists.
	outcome := domain.RetrievalOutcome{
		Documents:      docs1,
		Verdict:        domain.VerdictInadequate,
		Escalate:       true,
		EffectiveQuery: query.Text,
		Checks:         2,
	}
	if len(docs1) == 0 && len(docs2) > 0 {
		outcome.Documents = docs2
		outcome.EffectiveQuery = rewritten
		outcome.Rewritten = true
	}
	return outcome
}

func (r *ReflectiveRetriever) attempt(
	ctx context.Context,
	n int,
	text string,
	category domain.Category,
	entities domain.EntitySet,
) ([]domain.RetrievedDocument, domain.RelevanceVerdict) {
	docType := category.DocumentType()
	docs := r.fetch(ctx, enrichSearchText(text, entities), docType)
	if category == domain.CategoryCollege {
		docs = filterMentioningAny(docs, entities.Colleges)
	}

	verdict := r.check(ctx, text, docs)
	slog.Info("retrieval_attempt",
		"attempt", n,
		"category", category,
		"doc_type", docType,
		"documents", len(docs),
		"verdict", verdict,
	)
	r.record(ctx, n, text, category, docType, verdict, docs)
	return docs, verdict
}

func (r *ReflectiveRetriever) fetch(ctx context.Context, text, docType string) []domain.RetrievedDocument {
	if r.searcher == nil {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.PortTimeout)
	defer cancel()

	docs, err := r.searcher.Search(callCtx, text, docType, r.cfg.Limit)
	if err != nil {
		slog.Warn("semantic_search_failed", "doc_type", docType, "error", err)
		return nil
	}
	return docs
}

func (r *ReflectiveRetriever) check(ctx context.Context, text string, docs []domain.RetrievedDocument) domain.RelevanceVerdict {
	if len(docs) == 0 {
		return domain.VerdictInadequate
	}
	if r.cfg.AdequacyDistance > 0 && allBeyond(docs, r.cfg.AdequacyDistance) {
		return domain.VerdictInadequate
	}
	if r.judge == nil {
		return domain.VerdictPartial
	}

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.PortTimeout)
	defer cancel()

	verdict, err := r.judge.CheckRelevance(callCtx, text, docs)
	if err != nil {
		slog.Warn("relevance_check_failed", "error", err)
		return domain.VerdictPartial
	}
	switch verdict {
	case domain.VerdictAdequate, domain.VerdictPartial, domain.VerdictInadequate:
		return verdict
	default:
		return domain.VerdictPartial
	}
}

func (r *ReflectiveRetriever) rewrite(ctx context.Context, text string, category domain.Category) string {
	if r.rewriter == nil {
		return text
	}
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.PortTimeout)
	defer cancel()

	rewritten, err := r.rewriter.Rewrite(callCtx, text, category)
	if err != nil {
		slog.Warn("query_rewrite_failed", "error", err)
		return text
	}
	return strings.TrimSpace(rewritten)
}

func (r *ReflectiveRetriever) record(
	ctx context.Context,
	n int,
	text string,
	category domain.Category,
	docType string,
	verdict domain.RelevanceVerdict,
	docs []domain.RetrievedDocument,
) {
	if r.traces == nil {
		return
	}
	trace := domain.RetrievalTrace{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Attempt:   n,
		Query:     text,
		Category:  category,
		DocType:   docType,
		Verdict:   verdict,
		Documents: make([]domain.TraceDocument, 0, len(docs)),
	}
	for _, doc := range docs {
		trace.Documents = append(trace.Documents, domain.TraceDocument{
			SourceType: doc.SourceType,
			Title:      doc.Title,
			URL:        doc.URL,
			Distance:   doc.Distance,
			Preview:    truncateRunes(doc.Text, 200),
		})
	}
	r.traces.RecordRetrieval(ctx, trace)
}

func allBeyond(docs []domain.RetrievedDocument, threshold float64) bool {
	for _, doc := range docs {
		if doc.Distance < threshold {
			return false
		}
	}
	return true
}

// enrichSearchText prefixes entity names the query text does not already
// contain so the embedding leans towards the named entities.
func enrichSearchText(text string, entities domain.EntitySet) string {
	lower := strings.ToLower(text)
	var missing []string
	for _, name := range entities.Names() {
		if !strings.Contains(lower, strings.ToLower(name)) {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return text
	}
	return strings.Join(missing, " ") + " " + text
}

// filterMentioningAny keeps documents that mention at least one name. It
// returns the input unchanged when nothing matches.
func filterMentioningAny(docs []domain.RetrievedDocument, names []string) []domain.RetrievedDocument {
	if len(names) == 0 || len(docs) == 0 {
		return docs
	}
	out := make([]domain.RetrievedDocument, 0, len(docs))
	for _, doc := range docs {
		for _, name := range names {
			if doc.Mentions(name) {
				out = append(out, doc)
				break
			}
		}
	}
	if len(out) == 0 {
		return docs
	}
	return out
}
