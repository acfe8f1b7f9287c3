package metrics

import (
	"context"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
)

// RetrievalSink counts retrieval attempts; plug it into the trace fan-out.
type RetrievalSink struct {
	metrics *HTTPServerMetrics
	service string
}

func (m *HTTPServerMetrics) RetrievalSink(service string) *RetrievalSink {
	return &RetrievalSink{metrics: m, service: service}
}

func (s *RetrievalSink) RecordRetrieval(_ context.Context, trace domain.RetrievalTrace) {
	s.metrics.RecordRetrievalAttempt(s.service, trace.Attempt, string(trace.Verdict))
}

// BreakerObserver adapts RecordBreakerState to the resilience observer shape.
func (m *HTTPServerMetrics) BreakerObserver(service string) func(operation string, from, to gobreaker.State) {
	return func(operation string, _, to gobreaker.State) {
		m.RecordBreakerState(service, operation, to)
	}
}
