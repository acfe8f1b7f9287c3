package usecase

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
)

const (
	collegeDocLimit     = 4
	secondaryDocLimit   = 3
	comparisonDocLimit  = 6
	narrativeDocLimit   = 2
	predictorListLimit  = 15
	predictorBlogLimit  = 3
	topCollegesLimit    = 10
	locationFallbackTop = 5
)

type collegeBuilder struct{ deps builderDeps }

func (collegeBuilder) Category() domain.Category { return domain.CategoryCollege }
func (collegeBuilder) sealed()                   {}

func (b collegeBuilder) Build(ctx context.Context, entities domain.EntitySet, query string, outcome domain.RetrievalOutcome) domain.PromptContext {
	names := entities.Colleges
	records := make([]*domain.College, len(names))
	var secondary []domain.RetrievedDocument

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			records[i] = b.deps.college(gctx, name)
			return nil
		})
	}
	g.Go(func() error {
		// Comparison pages tend to carry richer per-college detail than the
		// sparse college pages.
		secondary = b.deps.search(gctx, enrichSearchText(query, entities), domain.DocTypeComparison, secondaryDocLimit)
		return nil
	})
	_ = g.Wait()

	var sections []string
	found := 0
	for _, rec := range records {
		if rec == nil {
			continue
		}
		found++
		sections = append(sections, formatCollege(*rec))
	}
	if found == 0 && entities.Location != "" {
		list := b.deps.topColleges(ctx, locationFallbackTop, entities.Location)
		found += len(list)
		sections = append(sections, formatCollegeList("Colleges in "+entities.Location, list))
	}

	structured := ""
	if len(sections) > 0 {
		structured = "=== Structured College Data ===\n" + strings.Join(sections, "\n\n")
	}
	docs := mergeDocuments(outcome.Documents, filterMentioningAny(secondary, names))
	text := joinSections(structured, formatDocuments("Detailed Information", docs, collegeDocLimit+secondaryDocLimit))
	return newPromptContext(text, found, len(docs))
}

type comparisonBuilder struct{ deps builderDeps }

func (comparisonBuilder) Category() domain.Category { return domain.CategoryComparison }
func (comparisonBuilder) sealed()                   {}

func (b comparisonBuilder) Build(ctx context.Context, entities domain.EntitySet, query string, outcome domain.RetrievalOutcome) domain.PromptContext {
	first, second := entities.Primary(), entities.Secondary()

	var (
		pair        *domain.Comparison
		recA, recB  *domain.College
		searchDocs  []domain.RetrievedDocument
		searchQuery = query
	)
	if first != "" && second != "" {
		searchQuery = fmt.Sprintf("%s vs %s comparison %s", first, second, query)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pair = b.deps.comparison(gctx, first, second)
		return nil
	})
	g.Go(func() error {
		recA = b.deps.college(gctx, first)
		return nil
	})
	g.Go(func() error {
		recB = b.deps.college(gctx, second)
		return nil
	})
	g.Go(func() error {
		searchDocs = b.deps.search(gctx, searchQuery, domain.DocTypeComparison, comparisonDocLimit)
		return nil
	})
	_ = g.Wait()

	var sections []string
	records := 0
	switch {
	case pair != nil:
		fillComparisonGaps(pair, recA, recB)
		sections = append(sections, formatComparison(*pair))
		records++
	case recA != nil && recB != nil:
		synth := domain.Comparison{}
		synth.First.FillFrom(recA)
		synth.Second.FillFrom(recB)
		sections = append(sections, formatComparison(synth))
		records += 2
	default:
		for _, rec := range []*domain.College{recA, recB} {
			if rec != nil {
				sections = append(sections, formatCollege(*rec))
				records++
			}
		}
	}

	candidates := mergeDocuments(searchDocs, outcome.Documents)
	docs := filterMentioningAll(candidates, first, second)
	structured := ""
	if len(sections) > 0 {
		structured = "=== Structured Comparison Data ===\n" + strings.Join(sections, "\n\n")
	}
	text := joinSections(structured, formatDocuments("Comparison Articles", docs, comparisonDocLimit))
	return newPromptContext(text, records, len(docs))
}

// fillComparisonGaps completes each stored side from the standalone record
// whose name it matches. Side order follows storage, not the query.
func fillComparisonGaps(pair *domain.Comparison, recs ...*domain.College) {
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		switch {
		case namesMatch(pair.First.Name, rec.Name):
			pair.First.FillFrom(rec)
		case namesMatch(pair.Second.Name, rec.Name):
			pair.Second.FillFrom(rec)
		}
	}
}

func namesMatch(a, b string) bool {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// filterMentioningAll keeps documents naming both entities and falls back to
// the full list when none do.
func filterMentioningAll(docs []domain.RetrievedDocument, first, second string) []domain.RetrievedDocument {
	if first == "" || second == "" {
		return docs
	}
	out := make([]domain.RetrievedDocument, 0, len(docs))
	for _, doc := range docs {
		if doc.Mentions(first) && doc.Mentions(second) {
			out = append(out, doc)
		}
	}
	if len(out) == 0 {
		return docs
	}
	return out
}

type examBuilder struct{ deps builderDeps }

func (examBuilder) Category() domain.Category { return domain.CategoryExam }
func (examBuilder) sealed()                   {}

func (b examBuilder) Build(ctx context.Context, entities domain.EntitySet, query string, outcome domain.RetrievalOutcome) domain.PromptContext {
	records := make([]*domain.Exam, len(entities.Exams))
	var narrative []domain.RetrievedDocument

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range entities.Exams {
		g.Go(func() error {
			records[i] = b.deps.exam(gctx, name)
			return nil
		})
	}
	g.Go(func() error {
		narrative = b.deps.search(gctx, enrichSearchText(query, entities), domain.DocTypeBlog, narrativeDocLimit)
		return nil
	})
	_ = g.Wait()

	var sections []string
	for _, rec := range records {
		if rec != nil {
			sections = append(sections, formatExam(*rec))
		}
	}
	structured := ""
	if len(sections) > 0 {
		structured = "=== Exam Information ===\n" + strings.Join(sections, "\n\n")
	}
	docs := mergeDocuments(outcome.Documents, narrative)
	text := joinSections(structured, formatDocuments("Detailed Information", docs, collegeDocLimit+narrativeDocLimit))
	return newPromptContext(text, len(sections), len(docs))
}

type predictorBuilder struct{ deps builderDeps }

func (predictorBuilder) Category() domain.Category { return domain.CategoryPredictor }
func (predictorBuilder) sealed()                   {}

func (b predictorBuilder) Build(ctx context.Context, entities domain.EntitySet, query string, outcome domain.RetrievalOutcome) domain.PromptContext {
	// The rank comes from the user's words only; query may be a rewrite.
	rank, ok := ParseRank(entities.RankScore)

	var (
		colleges  []domain.College
		narrative []domain.RetrievedDocument
		threshold int
	)
	thresholdFn := b.deps.rankThreshold
	if thresholdFn == nil {
		thresholdFn = DefaultRankThreshold
	}

	g, gctx := errgroup.WithContext(ctx)
	if ok {
		threshold = thresholdFn(rank)
		g.Go(func() error {
			colleges = b.deps.withinRank(gctx, threshold, predictorListLimit)
			return nil
		})
	}
	g.Go(func() error {
		text := strings.TrimSpace(strings.Join(entities.Exams, " ") + " cutoff rank " + query)
		narrative = b.deps.search(gctx, text, domain.DocTypeBlog, predictorBlogLimit)
		return nil
	})
	_ = g.Wait()

	structured := ""
	if len(colleges) > 0 {
		note := fmt.Sprintf(
			"Note: colleges up to NIRF rank #%d are listed as a rough estimate derived from rank %d. Actual admission cutoffs vary by exam, category and branch.",
			threshold, rank,
		)
		structured = formatCollegeList("Colleges You May Consider", colleges) + "\n" + note
	}
	docs := mergeDocuments(outcome.Documents, narrative)
	text := joinSections(structured, formatDocuments("Cutoff and Admission Information", docs, collegeDocLimit+predictorBlogLimit))
	return newPromptContext(text, len(colleges), len(docs))
}

type topCollegesBuilder struct{ deps builderDeps }

func (topCollegesBuilder) Category() domain.Category { return domain.CategoryTopColleges }
func (topCollegesBuilder) sealed()                   {}

func (b topCollegesBuilder) Build(ctx context.Context, entities domain.EntitySet, query string, outcome domain.RetrievalOutcome) domain.PromptContext {
	var (
		colleges  []domain.College
		narrative []domain.RetrievedDocument
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		colleges = b.deps.topColleges(gctx, topCollegesLimit, entities.Location)
		return nil
	})
	g.Go(func() error {
		narrative = b.deps.search(gctx, query, domain.DocTypeBlog, narrativeDocLimit)
		return nil
	})
	_ = g.Wait()

	title := "Top Colleges by NIRF Rank"
	if entities.Location != "" {
		title += " in " + entities.Location
	}
	docs := mergeDocuments(outcome.Documents, narrative)
	text := joinSections(
		formatCollegeList(title, colleges),
		formatDocuments("Additional Information", docs, narrativeDocLimit+secondaryDocLimit),
	)
	return newPromptContext(text, len(colleges), len(docs))
}

type generalBuilder struct{ deps builderDeps }

func (generalBuilder) Category() domain.Category { return domain.CategoryGeneral }
func (generalBuilder) sealed()                   {}

func (generalBuilder) Build(_ context.Context, _ domain.EntitySet, _ string, outcome domain.RetrievalOutcome) domain.PromptContext {
	text := formatDocuments("Relevant Information", outcome.Documents, collegeDocLimit+1)
	return newPromptContext(text, 0, len(outcome.Documents))
}
