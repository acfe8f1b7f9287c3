package ports

import (
	"context"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
)

// ChatService is the inbound contract for buffered and streamed answers.
type ChatService interface {
	Answer(ctx context.Context, query domain.Query) (*domain.Response, error)
	// Stream yields meta, chunk*, then exactly one done or error. The channel
	// closes after the terminal event or when ctx is cancelled.
	Stream(ctx context.Context, query domain.Query) <-chan domain.StreamEvent
	CachedEntries(ctx context.Context) int
}

// QueryRouter classifies text and extracts entities. It never fails.
type QueryRouter interface {
	Classify(ctx context.Context, text string) (domain.Category, domain.EntitySet)
}
