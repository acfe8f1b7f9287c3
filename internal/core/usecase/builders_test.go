package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
)

func testDeps(store *storeFake, searcher *searcherFake) builderDeps {
	return builderDeps{store: store, searcher: searcher, timeout: time.Second, rankThreshold: DefaultRankThreshold}
}

func TestBuilderForCoversEveryCategory(t *testing.T) {
	for _, category := range domain.AllCategories() {
		builder := builderFor(category, builderDeps{})
		if builder.Category() != category {
			t.Fatalf("builderFor(%s) returned builder for %s", category, builder.Category())
		}
	}
	if got := builderFor(domain.Category("UNKNOWN"), builderDeps{}).Category(); got != domain.CategoryGeneral {
		t.Fatalf("expected GENERAL fallback, got %s", got)
	}
}

func TestCollegeBuilderOmitsMissingFields(t *testing.T) {
	store := &storeFake{colleges: map[string]*domain.College{
		"vit": {Name: "VIT Vellore", Location: "Vellore", NIRFRank: intPtr(11)},
	}}
	builder := builderFor(domain.CategoryCollege, testDeps(store, &searcherFake{}))

	pc := builder.Build(context.Background(), domain.EntitySet{Colleges: []string{"VIT"}}, "admission to VIT", domain.RetrievalOutcome{})

	if !pc.HasLocalEvidence || pc.NeedsExternalSearch {
		t.Fatalf("expected local evidence, got %+v", pc)
	}
	if !strings.Contains(pc.Text, "NIRF Rank: #11") || !strings.Contains(pc.Text, "Location: Vellore") {
		t.Fatalf("missing present fields in %q", pc.Text)
	}
	for _, absent := range []string{"Fee Range", "Rating", "Total Students", "Established", "N/A", "null"} {
		if strings.Contains(pc.Text, absent) {
			t.Fatalf("context must omit %q, got %q", absent, pc.Text)
		}
	}
}

func TestCollegeBuilderFallsBackToLocationList(t *testing.T) {
	store := &storeFake{top: []domain.College{{Name: "COEP", NIRFRank: intPtr(70)}}}
	builder := builderFor(domain.CategoryCollege, testDeps(store, &searcherFake{}))

	pc := builder.Build(context.Background(), domain.EntitySet{Colleges: []string{"Unknown Institute"}, Location: "Pune"}, "colleges in Pune", domain.RetrievalOutcome{})

	if !strings.Contains(pc.Text, "Colleges in Pune") || !strings.Contains(pc.Text, "1. COEP (NIRF #70)") {
		t.Fatalf("expected location list, got %q", pc.Text)
	}
}

func TestCollegeBuilderStoreFailureDegradesToDocuments(t *testing.T) {
	store := &storeFake{err: errors.New("postgres down")}
	outcome := domain.RetrievalOutcome{Documents: []domain.RetrievedDocument{
		{SourceID: "d1", Text: "VIT Vellore campus overview", URL: "https://example.org/vit"},
	}}
	builder := builderFor(domain.CategoryCollege, testDeps(store, &searcherFake{}))

	pc := builder.Build(context.Background(), domain.EntitySet{Colleges: []string{"VIT"}}, "VIT campus", outcome)

	if !pc.HasLocalEvidence {
		t.Fatal("documents alone must count as local evidence")
	}
	if strings.Contains(pc.Text, "Structured College Data") {
		t.Fatalf("unexpected structured section: %q", pc.Text)
	}
	if !strings.Contains(pc.Text, "Source: https://example.org/vit") {
		t.Fatalf("expected document source, got %q", pc.Text)
	}
}

func TestComparisonBuilderOrderIndependentAndFillsGaps(t *testing.T) {
	store := &storeFake{
		comparisons: []domain.Comparison{{
			First:  domain.ComparisonSide{Name: "VIT Vellore", Fees: "1.9L"},
			Second: domain.ComparisonSide{Name: "SRM Institute", Fees: "2.5L"},
		}},
		colleges: map[string]*domain.College{
			"srm": {Name: "SRM Institute", NIRFRank: intPtr(18)},
		},
	}
	searcher := &searcherFake{byType: map[string][]domain.RetrievedDocument{
		domain.DocTypeComparison: {
			{SourceID: "c1", Text: "SRM vs VIT placements compared"},
			{SourceID: "c2", Text: "Only about SRM hostels"},
		},
	}}
	builder := builderFor(domain.CategoryComparison, testDeps(store, searcher))

	pc := builder.Build(context.Background(), domain.EntitySet{Colleges: []string{"SRM", "VIT"}}, "Compare SRM and VIT", domain.RetrievalOutcome{})

	if !strings.Contains(pc.Text, "=== VIT Vellore vs SRM Institute ===") {
		t.Fatalf("expected stored side order, got %q", pc.Text)
	}
	if !strings.Contains(pc.Text, "NIRF Rank: SRM Institute: #18") {
		t.Fatalf("expected gap filled from standalone record, got %q", pc.Text)
	}
	if !strings.Contains(pc.Text, "Fees: VIT Vellore: 1.9L | SRM Institute: 2.5L") {
		t.Fatalf("expected fees row, got %q", pc.Text)
	}
	if strings.Contains(pc.Text, "Rating") || strings.Contains(pc.Text, "Only about SRM hostels") {
		t.Fatalf("unexpected content in %q", pc.Text)
	}
	if !strings.Contains(pc.Text, "SRM vs VIT placements compared") {
		t.Fatalf("expected matching article, got %q", pc.Text)
	}
}

func TestComparisonBuilderSynthesizesFromSingleRecords(t *testing.T) {
	store := &storeFake{colleges: map[string]*domain.College{
		"iit bombay": {Name: "IIT Bombay", Rating: floatPtr(4.6)},
		"iit delhi":  {Name: "IIT Delhi", Type: "Public"},
	}}
	builder := builderFor(domain.CategoryComparison, testDeps(store, &searcherFake{}))

	pc := builder.Build(context.Background(), domain.EntitySet{Colleges: []string{"IIT Bombay", "IIT Delhi"}}, "IIT Bombay vs IIT Delhi", domain.RetrievalOutcome{})

	if !strings.Contains(pc.Text, "Rating: IIT Bombay: 4.6/5\n") {
		t.Fatalf("rating row must list only the side with a value, got %q", pc.Text)
	}
	if !strings.Contains(pc.Text, "Type: IIT Delhi: Public") {
		t.Fatalf("expected type row, got %q", pc.Text)
	}
	if strings.Contains(pc.Text, "Fees:") {
		t.Fatalf("row with no values must be dropped, got %q", pc.Text)
	}
}

func TestComparisonFilterFallsBackToAllDocuments(t *testing.T) {
	docs := []domain.RetrievedDocument{{Text: "about VIT"}, {Text: "about SRM"}}
	if got := filterMentioningAll(docs, "VIT", "SRM"); len(got) != 2 {
		t.Fatalf("expected fallback to all documents, got %d", len(got))
	}
	docs = append(docs, domain.RetrievedDocument{Text: "VIT or SRM"})
	if got := filterMentioningAll(docs, "VIT", "SRM"); len(got) != 1 {
		t.Fatalf("expected only the document naming both, got %d", len(got))
	}
}

func TestExamBuilderFormatsRecord(t *testing.T) {
	store := &storeFake{exams: map[string]*domain.Exam{
		"jee main": {Name: "JEE Main", FullName: "Joint Entrance Examination Main", ExamDate: "January 2026", Mode: "CBT"},
	}}
	builder := builderFor(domain.CategoryExam, testDeps(store, &searcherFake{}))

	pc := builder.Build(context.Background(), domain.EntitySet{Exams: []string{"JEE Main"}}, "JEE Main exam date", domain.RetrievalOutcome{})

	if !strings.Contains(pc.Text, "=== JEE Main (Joint Entrance Examination Main) ===") {
		t.Fatalf("unexpected exam header: %q", pc.Text)
	}
	if !strings.Contains(pc.Text, "Exam Date: January 2026") || strings.Contains(pc.Text, "Result Date") {
		t.Fatalf("unexpected exam body: %q", pc.Text)
	}
}

func TestPredictorBuilderUsesRankThreshold(t *testing.T) {
	store := &storeFake{withinRank: []domain.College{{Name: "NIT Trichy", NIRFRank: intPtr(9)}}}
	deps := testDeps(store, &searcherFake{})
	deps.rankThreshold = func(rank int) int { return rank + 5 }
	builder := builderFor(domain.CategoryPredictor, deps)

	pc := builder.Build(context.Background(), domain.EntitySet{Exams: []string{"JEE Main"}, RankScore: "70 rank"}, "Which colleges accept 70 rank in JEE Main?", domain.RetrievalOutcome{})

	if store.lastMaxRank != 75 {
		t.Fatalf("expected threshold 75, got %d", store.lastMaxRank)
	}
	if !strings.Contains(pc.Text, "1. NIT Trichy (NIRF #9)") || !strings.Contains(pc.Text, "rough estimate") {
		t.Fatalf("unexpected predictor context: %q", pc.Text)
	}
}

func TestPredictorBuilderWithoutRankSkipsStore(t *testing.T) {
	store := &storeFake{withinRank: []domain.College{{Name: "Should Not Appear"}}}
	builder := builderFor(domain.CategoryPredictor, testDeps(store, &searcherFake{}))

	pc := builder.Build(context.Background(), domain.EntitySet{}, "Can I get NIT with my score?", domain.RetrievalOutcome{})

	if store.lastMaxRank != 0 || strings.Contains(pc.Text, "Should Not Appear") {
		t.Fatalf("rank lookup must be skipped without a number, got %q", pc.Text)
	}
	if pc.HasLocalEvidence || !pc.NeedsExternalSearch {
		t.Fatalf("expected no local evidence, got %+v", pc)
	}
}

func TestPredictorBuilderIgnoresNumbersInRewrittenQuery(t *testing.T) {
	store := &storeFake{}
	builder := builderFor(domain.CategoryPredictor, testDeps(store, &searcherFake{}))

	builder.Build(context.Background(), domain.EntitySet{}, "top 100 rank engineering colleges", domain.RetrievalOutcome{})

	if store.lastMaxRank != 0 {
		t.Fatalf("rank must come from entities, got threshold %d", store.lastMaxRank)
	}
}

func TestDefaultRankThreshold(t *testing.T) {
	cases := map[int]int{1: 2, 50: 100, 100: 200, 150: 200, 5000: 200}
	for rank, want := range cases {
		if got := DefaultRankThreshold(rank); got != want {
			t.Fatalf("DefaultRankThreshold(%d) = %d, want %d", rank, got, want)
		}
	}
}

func TestTopCollegesBuilderTitleIncludesLocation(t *testing.T) {
	store := &storeFake{top: []domain.College{
		{Name: "IIT Bombay", NIRFRank: intPtr(3), Location: "Mumbai"},
		{Name: "VJTI", Location: "Mumbai"},
	}}
	builder := builderFor(domain.CategoryTopColleges, testDeps(store, &searcherFake{}))

	pc := builder.Build(context.Background(), domain.EntitySet{Location: "Mumbai"}, "Top colleges in Mumbai", domain.RetrievalOutcome{})

	if !strings.Contains(pc.Text, "=== Top Colleges by NIRF Rank in Mumbai ===") {
		t.Fatalf("unexpected title: %q", pc.Text)
	}
	if !strings.Contains(pc.Text, "2. VJTI (Mumbai)") {
		t.Fatalf("expected list entry without rank, got %q", pc.Text)
	}
}

func TestGeneralBuilderWithoutDocumentsNeedsExternalSearch(t *testing.T) {
	pc := builderFor(domain.CategoryGeneral, builderDeps{}).Build(context.Background(), domain.EntitySet{}, "career advice", domain.RetrievalOutcome{})
	if pc.Text != "" || pc.HasLocalEvidence || !pc.NeedsExternalSearch {
		t.Fatalf("unexpected context: %+v", pc)
	}
}

func TestFormatDocumentsTruncatesLongText(t *testing.T) {
	long := strings.Repeat("a", maxDocumentRunes+100)
	out := formatDocuments("Docs", []domain.RetrievedDocument{{Text: long}}, 0)
	if strings.Count(out, "a") != maxDocumentRunes {
		t.Fatalf("expected truncation to %d runes", maxDocumentRunes)
	}
}
