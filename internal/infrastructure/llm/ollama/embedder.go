package ollama

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kirillkom/admissions-rag/internal/infrastructure/resilience"
)

const defaultEmbedCacheSize = 512

// Embedder turns text into vectors. Query vectors are memoized because users
// repeat questions and the retrieval loop embeds rewritten queries too.
type Embedder struct {
	client *Client
	cache  *lru.Cache[string, []float32]
}

func NewEmbedder(client *Client, cacheSize int) (*Embedder, error) {
	if cacheSize <= 0 {
		cacheSize = defaultEmbedCacheSize
	}
	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &Embedder{client: client, cache: cache}, nil
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	vectors, err := resilience.Call(ctx, e.client.executor, "ollama.embed", func(ctx context.Context) ([][]float32, error) {
		var response struct {
			Embeddings [][]float32 `json:"embeddings"`
		}
		if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
			return nil, err
		}
		return response.Embeddings, nil
	}, classifyOllamaError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("ollama embed", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("ollama embed returned %d vectors for %d inputs", len(vectors), len(texts))
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := strings.TrimSpace(text)
	if vector, ok := e.cache.Get(key); ok {
		return vector, nil
	}

	vectors, err := e.Embed(ctx, []string{key})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	e.cache.Add(key, vectors[0])
	return vectors[0], nil
}
