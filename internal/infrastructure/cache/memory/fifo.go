package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
)

const DefaultCapacity = 128

// FIFO is a bounded response cache that evicts the oldest inserted key.
// Reads never change eviction order.
type FIFO struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*domain.Response
	// order is a ring of keys in insertion order; head is the oldest.
	order []string
	head  int
}

func NewFIFO(capacity int) *FIFO {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &FIFO{
		capacity: capacity,
		entries:  make(map[string]*domain.Response, capacity),
		order:    make([]string, 0, capacity),
	}
}

func (c *FIFO) Get(_ context.Context, key string) (*domain.Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	resp, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return clone(resp), true
}

// Put stores resp under key. An existing key is overwritten in place and
// keeps its original insertion slot.
func (c *FIFO) Put(_ context.Context, key string, resp *domain.Response) {
	if resp == nil {
		return
	}
	stored := clone(resp)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.entries[key] = stored
		return
	}
	if len(c.order) < c.capacity {
		c.order = append(c.order, key)
		c.entries[key] = stored
		return
	}
	delete(c.entries, c.order[c.head])
	c.order[c.head] = key
	c.head = (c.head + 1) % c.capacity
	c.entries[key] = stored
}

func (c *FIFO) Len(context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// clone copies resp down to its slices so callers never share backing arrays
// with a stored entry.
func clone(resp *domain.Response) *domain.Response {
	out := *resp
	out.Entities.Colleges = slices.Clone(resp.Entities.Colleges)
	out.Entities.Exams = slices.Clone(resp.Entities.Exams)
	out.Sources = slices.Clone(resp.Sources)
	return &out
}
