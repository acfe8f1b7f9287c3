package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
	"github.com/kirillkom/admissions-rag/internal/core/ports"
)

type OrchestratorConfig struct {
	PortTimeout       time.Duration
	GenerationTimeout time.Duration
	StreamBuffer      int
	// OutOfScopeRedirect answers GENERAL queries whose retrieval ended
	// INADEQUATE with a fixed redirect instead of calling the generator.
	OutOfScopeRedirect bool
	RankThreshold      RankThresholdFunc
}

// Orchestrator runs router, retrieval, context building and generation in
// order, for buffered and streamed answers.
type Orchestrator struct {
	router    ports.QueryRouter
	retriever *ReflectiveRetriever
	deps      builderDeps
	generator ports.AnswerGenerator
	cache     ports.ResponseCache
	cfg       OrchestratorConfig
}

func NewOrchestrator(
	router ports.QueryRouter,
	retriever *ReflectiveRetriever,
	store ports.StructuredStore,
	searcher ports.SemanticSearcher,
	generator ports.AnswerGenerator,
	cache ports.ResponseCache,
	cfg OrchestratorConfig,
) *Orchestrator {
	if cfg.PortTimeout <= 0 {
		cfg.PortTimeout = 10 * time.Second
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 90 * time.Second
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = 16
	}
	if cfg.RankThreshold == nil {
		cfg.RankThreshold = DefaultRankThreshold
	}
	return &Orchestrator{
		router:    router,
		retriever: retriever,
		deps: builderDeps{
			store:         store,
			searcher:      searcher,
			timeout:       cfg.PortTimeout,
			rankThreshold: cfg.RankThreshold,
		},
		generator: generator,
		cache:     cache,
		cfg:       cfg,
	}
}

type preparedAnswer struct {
	category   domain.Category
	entities   domain.EntitySet
	outcome    domain.RetrievalOutcome
	context    domain.PromptContext
	external   bool
	outOfScope bool
	request    ports.GenerationRequest
}

func (p preparedAnswer) meta() domain.StreamMeta {
	return domain.StreamMeta{
		Category:           p.category,
		HasLocalEvidence:   p.context.HasLocalEvidence,
		ExternalSearchUsed: p.external,
		AutoEscalated:      p.outcome.Escalate,
		OutOfScope:         p.outOfScope,
	}
}

func (p preparedAnswer) response(answer string) *domain.Response {
	return &domain.Response{
		Answer:             answer,
		Category:           p.category,
		Entities:           p.entities,
		ExternalSearchUsed: p.external,
		HasLocalEvidence:   p.context.HasLocalEvidence,
		AutoEscalated:      p.outcome.Escalate,
		OutOfScope:         p.outOfScope,
		EffectiveQuery:     p.outcome.EffectiveQuery,
		Sources:            p.outcome.Documents,
	}
}

// prepare runs every stage before generation. None of them can fail.
func (o *Orchestrator) prepare(ctx context.Context, query domain.Query) preparedAnswer {
	start := time.Now()
	category, entities := o.router.Classify(ctx, query.Text)
	if category == domain.CategoryPredictor && entities.RankScore == "" {
		if rank, ok := ParseRank(query.Text); ok {
			entities.RankScore = strconv.Itoa(rank)
		}
	}

	var outcome domain.RetrievalOutcome
	if o.retriever != nil {
		outcome = o.retriever.Retrieve(ctx, query, category, entities)
	} else {
		outcome = domain.RetrievalOutcome{Verdict: domain.VerdictPartial, Escalate: true, EffectiveQuery: query.Text}
	}

	p := preparedAnswer{
		category: category,
		entities: entities,
		outcome:  outcome,
	}
	if o.cfg.OutOfScopeRedirect && category == domain.CategoryGeneral && outcome.Verdict == domain.VerdictInadequate {
		p.outOfScope = true
		p.outcome.Escalate = false
		slog.Info("query_out_of_scope", "query_chars", len(query.Text))
		return p
	}

	p.context = builderFor(category, o.deps).Build(ctx, entities, outcome.EffectiveQuery, outcome)
	p.external = query.PreferExternalSearch || outcome.Escalate
	p.request = ports.GenerationRequest{
		Query:             outcome.EffectiveQuery,
		Context:           p.context,
		History:           query.History,
		UseExternalSearch: p.external,
	}
	slog.Info("answer_prepared",
		"category", category,
		"verdict", outcome.Verdict,
		"checks", outcome.Checks,
		"rewritten", outcome.Rewritten,
		"documents", len(outcome.Documents),
		"has_local_evidence", p.context.HasLocalEvidence,
		"external_search", p.external,
		"context_chars", len(p.context.Text),
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
	return p
}

func (o *Orchestrator) Answer(ctx context.Context, query domain.Query) (*domain.Response, error) {
	key := CacheKey(query.Text, query.CategoryHint, query.PreferExternalSearch)
	if o.cache != nil {
		if cached, ok := o.cache.Get(ctx, key); ok {
			slog.Info("cache_hit", "category", cached.Category)
			return cached, nil
		}
	}

	p := o.prepare(ctx, query)
	answer := outOfScopeAnswer
	if !p.outOfScope {
		genCtx, cancel := context.WithTimeout(ctx, o.cfg.GenerationTimeout)
		defer cancel()

		text, err := o.generator.Generate(genCtx, p.request)
		if err != nil {
			return nil, generationError(err)
		}
		answer = text
	}

	resp := p.response(answer)
	// Redirects are not cached.
	if o.cache != nil && !p.outOfScope {
		o.cache.Put(ctx, key, resp)
	}
	return resp, nil
}

// Stream never reads or writes the response cache.
func (o *Orchestrator) Stream(ctx context.Context, query domain.Query) <-chan domain.StreamEvent {
	out := make(chan domain.StreamEvent, o.cfg.StreamBuffer)
	go o.runStream(ctx, query, out)
	return out
}

func (o *Orchestrator) runStream(ctx context.Context, query domain.Query, out chan<- domain.StreamEvent) {
	emitter := newStreamEmitter(ctx, out)
	defer emitter.close()

	p := o.prepare(ctx, query)
	if !emitter.meta(p.meta()) {
		return
	}

	if p.outOfScope {
		for _, part := range splitWords(outOfScopeAnswer, 8) {
			if !emitter.chunk(part) {
				return
			}
		}
		emitter.done()
		return
	}

	genCtx, cancel := context.WithTimeout(ctx, o.cfg.GenerationTimeout)
	defer cancel()

	err := o.generator.GenerateStream(genCtx, p.request, func(token string) error {
		if !emitter.chunk(token) {
			return errStreamClosed
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, errStreamClosed) {
			slog.Info("stream_cancelled", "category", p.category)
			return
		}
		slog.Error("stream_generation_failed", "category", p.category, "error", err)
		emitter.fail(generationError(err).Error())
		return
	}
	emitter.done()
}

func (o *Orchestrator) CachedEntries(ctx context.Context) int {
	if o.cache == nil {
		return 0
	}
	return o.cache.Len(ctx)
}

func generationError(err error) error {
	if domain.IsKind(err, domain.ErrTemporary) || domain.IsKind(err, domain.ErrGeneration) {
		return err
	}
	return domain.WrapError(domain.ErrGeneration, "generate answer", err)
}
