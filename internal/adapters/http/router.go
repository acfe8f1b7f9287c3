package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kirillkom/admissions-rag/internal/config"
	"github.com/kirillkom/admissions-rag/internal/core/domain"
	"github.com/kirillkom/admissions-rag/internal/core/ports"
	"github.com/kirillkom/admissions-rag/internal/core/usecase"
	"github.com/kirillkom/admissions-rag/internal/observability/metrics"
)

const (
	serviceName         = "api"
	defaultLogLimit     = 20
	defaultMaxBodyBytes = 64 << 10
)

type Router struct {
	chat      ports.ChatService
	traces    ports.TraceReader
	metrics   *metrics.HTTPServerMetrics
	validator *requestValidator

	apiKey           string
	rateLimitRPS     float64
	rateLimitBurst   int
	maxInFlight      int
	backpressureWait time.Duration
	maxBodyBytes     int64
}

// NewRouter wires the HTTP surface. traces and m may be nil.
func NewRouter(cfg config.Config, chat ports.ChatService, traces ports.TraceReader, m *metrics.HTTPServerMetrics) *Router {
	validator, err := newRequestValidator()
	if err != nil {
		// The document is embedded at build time.
		panic(err)
	}
	maxBody := cfg.APIMaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	return &Router{
		chat:             chat,
		traces:           traces,
		metrics:          m,
		validator:        validator,
		apiKey:           cfg.APIKey,
		rateLimitRPS:     cfg.APIRateLimitRPS,
		rateLimitBurst:   cfg.APIRateLimitBurst,
		maxInFlight:      cfg.APIBackpressureMaxInFlight,
		backpressureWait: cfg.APIBackpressureWait,
		maxBodyBytes:     maxBody,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/openapi.yaml", serveOpenAPIDocument)
	mux.HandleFunc("/v1/chat", rt.chatBuffered)
	mux.HandleFunc("/v1/chat/stream", rt.chatStream)
	mux.HandleFunc("/v1/categories", rt.categories)
	mux.HandleFunc("/v1/rag/log", rt.retrievalLog)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = apiKeyMiddleware(handler, rt.apiKey)
	handler = exemptOperational(backpressureMiddleware(handler, rt.maxInFlight, rt.backpressureWait), handler)
	handler = exemptOperational(rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst), handler)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"cached_queries": rt.chat.CachedEntries(r.Context()),
	})
}

type chatRequest struct {
	Query            string        `json:"query"`
	Category         string        `json:"category"`
	WebSearchEnabled bool          `json:"web_search_enabled"`
	History          []domain.Turn `json:"history"`
}

func (rt *Router) decodeQuery(w http.ResponseWriter, r *http.Request) (domain.Query, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, rt.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.Query{}, domain.WrapError(domain.ErrInvalidInput, "read chat request", fmt.Errorf("body exceeds %d bytes", tooLarge.Limit))
		}
		return domain.Query{}, domain.WrapError(domain.ErrInvalidInput, "read chat request", err)
	}
	if err := rt.validator.validateChatRequest(raw); err != nil {
		return domain.Query{}, err
	}
	var req chatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return domain.Query{}, domain.WrapError(domain.ErrInvalidInput, "decode chat request", err)
	}
	return domain.NewQuery(req.Query, req.WebSearchEnabled, req.Category, req.History)
}

func (rt *Router) chatBuffered(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	query, err := rt.decodeQuery(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	start := time.Now()
	resp, err := rt.chat.Answer(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordRAGObservation(serviceName, "chat", metrics.RAGObservation{
			Category:         string(resp.Category),
			Sources:          len(resp.Sources),
			HasLocalEvidence: resp.HasLocalEvidence,
			ExternalSearch:   resp.ExternalSearchUsed,
			AutoEscalated:    resp.AutoEscalated,
			OutOfScope:       resp.OutOfScope,
			Duration:         time.Since(start),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) chatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	query, err := rt.decodeQuery(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sse, err := newSSEWriter(w)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	// Cancelling stops generation when the client goes away mid-stream.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	start := time.Now()
	var meta *domain.StreamMeta
	for ev := range rt.chat.Stream(ctx, query) {
		if ev.Kind == domain.StreamEventMeta {
			meta = ev.Meta
		}
		if err := sse.send(toStreamPayload(ev)); err != nil {
			slog.Info("stream_client_gone", "request_id", requestIDFromContext(r.Context()), "error", err)
			return
		}
		if ev.Kind == domain.StreamEventDone && meta != nil && rt.metrics != nil {
			rt.metrics.RecordRAGObservation(serviceName, "chat_stream", metrics.RAGObservation{
				Category:         string(meta.Category),
				HasLocalEvidence: meta.HasLocalEvidence,
				ExternalSearch:   meta.ExternalSearchUsed,
				AutoEscalated:    meta.AutoEscalated,
				OutOfScope:       meta.OutOfScope,
				Duration:         time.Since(start),
			})
		}
	}
}

func (rt *Router) categories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": usecase.Categories()})
}

func (rt *Router) retrievalLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	var all []domain.RetrievalTrace
	if rt.traces != nil {
		all = rt.traces.Recent(0)
	}
	recent := all
	if len(recent) > limit {
		recent = recent[len(recent)-limit:]
	}
	newestFirst := make([]domain.RetrievalTrace, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		newestFirst = append(newestFirst, recent[i])
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_logged": len(all),
		"returned":     len(newestFirst),
		"traces":       newestFirst,
	})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed", "request_id", requestIDFromContext(r.Context()), "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
