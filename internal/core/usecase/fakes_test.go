package usecase

import (
	"context"
	"strings"
	"sync"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
	"github.com/kirillkom/admissions-rag/internal/core/ports"
)

type classifierFake struct {
	calls    int
	category domain.Category
	entities domain.EntitySet
	err      error
}

func (f *classifierFake) ClassifyQuery(context.Context, string) (domain.Category, domain.EntitySet, error) {
	f.calls++
	if f.err != nil {
		return "", domain.EntitySet{}, f.err
	}
	return f.category, f.entities, nil
}

type searchCall struct {
	text    string
	docType string
	limit   int
}

type searcherFake struct {
	mu      sync.Mutex
	calls   []searchCall
	byType  map[string][]domain.RetrievedDocument
	results [][]domain.RetrievedDocument
	err     error
}

func (f *searcherFake) Search(_ context.Context, text, docType string, limit int) ([]domain.RetrievedDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, searchCall{text: text, docType: docType, limit: limit})
	if f.err != nil {
		return nil, f.err
	}
	if docs, ok := f.byType[docType]; ok {
		return docs, nil
	}
	if len(f.results) == 0 {
		return nil, nil
	}
	next := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return next, nil
}

func (f *searcherFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type judgeFake struct {
	calls    int
	verdicts []domain.RelevanceVerdict
	err      error
}

func (f *judgeFake) CheckRelevance(context.Context, string, []domain.RetrievedDocument) (domain.RelevanceVerdict, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if len(f.verdicts) == 0 {
		return domain.VerdictAdequate, nil
	}
	v := f.verdicts[0]
	if len(f.verdicts) > 1 {
		f.verdicts = f.verdicts[1:]
	}
	return v, nil
}

type rewriterFake struct {
	calls  int
	output string
	err    error
}

func (f *rewriterFake) Rewrite(_ context.Context, text string, _ domain.Category) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if f.output == "" {
		return text, nil
	}
	return f.output, nil
}

type storeFake struct {
	mu          sync.Mutex
	colleges    map[string]*domain.College
	exams       map[string]*domain.Exam
	comparisons []domain.Comparison
	top         []domain.College
	withinRank  []domain.College
	lastMaxRank int
	err         error
}

func (f *storeFake) LookupCollege(_ context.Context, name string) (*domain.College, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.colleges[strings.ToLower(name)], nil
}

func (f *storeFake) LookupExam(_ context.Context, name string) (*domain.Exam, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.exams[strings.ToLower(name)], nil
}

func (f *storeFake) LookupComparison(_ context.Context, first, second string) (*domain.Comparison, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, c := range f.comparisons {
		if (namesMatch(c.First.Name, first) && namesMatch(c.Second.Name, second)) ||
			(namesMatch(c.First.Name, second) && namesMatch(c.Second.Name, first)) {
			out := c
			return &out, nil
		}
	}
	return nil, nil
}

func (f *storeFake) TopColleges(context.Context, int, string) ([]domain.College, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.top, nil
}

func (f *storeFake) CollegesWithinRank(_ context.Context, maxRank, _ int) ([]domain.College, error) {
	f.mu.Lock()
	f.lastMaxRank = maxRank
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.withinRank, nil
}

type generatorFake struct {
	mu       sync.Mutex
	calls    int
	answer   string
	tokens   []string
	err      error
	lastReq  ports.GenerationRequest
	blockCtx bool
}

func (f *generatorFake) Generate(_ context.Context, req ports.GenerationRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *generatorFake) GenerateStream(ctx context.Context, req ports.GenerationRequest, onToken func(string) error) error {
	f.mu.Lock()
	f.calls++
	f.lastReq = req
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, token := range f.tokens {
		if err := onToken(token); err != nil {
			return err
		}
	}
	if f.blockCtx {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

type cacheFake struct {
	mu      sync.Mutex
	entries map[string]*domain.Response
	gets    int
	puts    int
}

func newCacheFake() *cacheFake {
	return &cacheFake{entries: make(map[string]*domain.Response)}
}

func (f *cacheFake) Get(_ context.Context, key string) (*domain.Response, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	resp, ok := f.entries[key]
	return resp, ok
}

func (f *cacheFake) Put(_ context.Context, key string, resp *domain.Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	f.entries[key] = resp
}

func (f *cacheFake) Len(context.Context) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

type traceSinkFake struct {
	mu     sync.Mutex
	traces []domain.RetrievalTrace
}

func (f *traceSinkFake) RecordRetrieval(_ context.Context, trace domain.RetrievalTrace) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.traces = append(f.traces, trace)
}

func doc(id, text string, distance float64) domain.RetrievedDocument {
	return domain.RetrievedDocument{SourceID: id, SourceType: domain.DocTypeCollege, Text: text, Distance: distance}
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
