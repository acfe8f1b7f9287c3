package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
	"github.com/kirillkom/admissions-rag/internal/infrastructure/resilience"
)

// QueryEmbedder turns search text into the vector space of the collection.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Client searches one Qdrant collection over REST. Points carry the chunk
// text and its metadata in the payload; "type" holds the document type.
type Client struct {
	baseURL    string
	collection string
	apiKey     string
	embedder   QueryEmbedder
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	APIKey             string
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL, collection string, embedder QueryEmbedder) *Client {
	return NewWithOptions(baseURL, collection, embedder, Options{})
}

func NewWithOptions(baseURL, collection string, embedder QueryEmbedder, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		apiKey:     strings.TrimSpace(options.APIKey),
		embedder:   embedder,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

type searchHit struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Search embeds text and returns the nearest chunks in ascending distance.
// An empty docType searches every document type.
func (c *Client) Search(ctx context.Context, text, docType string, limit int) ([]domain.RetrievedDocument, error) {
	if limit <= 0 {
		limit = 5
	}
	vector, err := c.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed search query: %w", err)
	}

	reqBody := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if docType != "" {
		reqBody["filter"] = map[string]any{
			"must": []map[string]any{
				{
					"key": "type",
					"match": map[string]any{
						"value": docType,
					},
				},
			},
		}
	}

	hits, err := resilience.Call(ctx, c.executor, "qdrant.search", func(ctx context.Context) ([]searchHit, error) {
		var searchResp struct {
			Result []searchHit `json:"result"`
		}
		path := fmt.Sprintf("/collections/%s/points/search", c.collection)
		if err := c.do(ctx, http.MethodPost, path, reqBody, &searchResp, "search"); err != nil {
			return nil, err
		}
		return searchResp.Result, nil
	}, classifyQdrantError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("qdrant search", err)
	}

	out := make([]domain.RetrievedDocument, 0, len(hits))
	for _, hit := range hits {
		text := getStringPayload(hit.Payload, "text")
		if strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, domain.RetrievedDocument{
			SourceID:   fmt.Sprintf("%v", hit.ID),
			SourceType: getStringPayload(hit.Payload, "type"),
			Title:      firstNonEmpty(getStringPayload(hit.Payload, "title"), getStringPayload(hit.Payload, "college_names")),
			URL:        getStringPayload(hit.Payload, "url"),
			Text:       text,
			// Cosine similarity lies in [-1, 1]; distance keeps 0 as identical.
			Distance: 1 - hit.Score,
		})
	}
	return out, nil
}

// Warmup primes the embedder and makes sure the collection exists with the
// embedding dimension. An empty collection is reported but is not an error.
func (c *Client) Warmup(ctx context.Context) error {
	vector, err := c.embedder.EmbedQuery(ctx, "engineering colleges in India")
	if err != nil {
		return fmt.Errorf("warm up embedder: %w", err)
	}
	points, err := c.EnsureCollection(ctx, len(vector))
	if err != nil {
		return err
	}
	if points == 0 {
		slog.Warn("qdrant_collection_empty", "collection", c.collection)
	}
	slog.Info("qdrant_warmup_completed", "collection", c.collection, "points", points, "vector_size", len(vector))
	return nil
}

// EnsureCollection creates the collection when it is missing and returns the
// number of stored points.
func (c *Client) EnsureCollection(ctx context.Context, vectorSize int) (int, error) {
	var info struct {
		Result struct {
			PointsCount int `json:"points_count"`
		} `json:"result"`
	}
	err := c.do(ctx, http.MethodGet, "/collections/"+c.collection, nil, &info, "get collection")
	var statusErr *StatusError
	switch {
	case err == nil:
		return info.Result.PointsCount, nil
	case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound:
	default:
		return 0, err
	}

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	err = c.do(ctx, http.MethodPut, "/collections/"+c.collection, reqBody, nil, "ensure collection")
	// 409 when another replica created it first.
	if err != nil && !(errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusConflict) {
		return 0, err
	}
	slog.Info("qdrant_collection_created", "collection", c.collection, "vector_size", vectorSize)
	return 0, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any, operation string) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", operation, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{Operation: operation, StatusCode: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

type StatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("qdrant %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("qdrant %s status: %s: %s", e.Operation, e.Status, e.Body)
}

func classifyQdrantError(err error) resilience.ErrorClassification {
	if err == nil || resilience.IsContextDone(err) {
		return resilience.ErrorClassification{}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		retryable := statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
		return resilience.ErrorClassification{Retryable: retryable, RecordFailure: retryable}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{RecordFailure: true}
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	if domain.IsKind(err, domain.ErrTemporary) || resilience.IsContextDone(err) {
		return err
	}
	if class := classifyQdrantError(err); class.Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
