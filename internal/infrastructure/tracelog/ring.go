package tracelog

import (
	"context"
	"sync"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
	"github.com/kirillkom/admissions-rag/internal/core/ports"
)

const DefaultSize = 50

// Ring keeps the most recent retrieval traces in memory for /v1/rag/log.
type Ring struct {
	mu    sync.RWMutex
	items []domain.RetrievalTrace
	next  int
	full  bool
}

func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultSize
	}
	return &Ring{items: make([]domain.RetrievalTrace, size)}
}

func (r *Ring) RecordRetrieval(_ context.Context, trace domain.RetrievalTrace) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[r.next] = trace
	r.next = (r.next + 1) % len(r.items)
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns up to limit traces, oldest first. limit <= 0 returns all.
func (r *Ring) Recent(limit int) []domain.RetrievalTrace {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := r.next
	start := 0
	if r.full {
		count = len(r.items)
		start = r.next
	}
	if limit > 0 && limit < count {
		start = (start + count - limit) % len(r.items)
		count = limit
	}

	out := make([]domain.RetrievalTrace, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, r.items[(start+i)%len(r.items)])
	}
	return out
}

// Fanout forwards every trace to each non-nil sink in order.
func Fanout(sinks ...ports.TraceSink) ports.TraceSink {
	active := make(fanout, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			active = append(active, sink)
		}
	}
	if len(active) == 1 {
		return active[0]
	}
	return active
}

type fanout []ports.TraceSink

func (f fanout) RecordRetrieval(ctx context.Context, trace domain.RetrievalTrace) {
	for _, sink := range f {
		sink.RecordRetrieval(ctx, trace)
	}
}
