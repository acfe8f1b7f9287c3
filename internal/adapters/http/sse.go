package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
)

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming is not supported by response writer")
	}
	// A stream lives as long as generation does, not the server WriteTimeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return nil, fmt.Errorf("clear write deadline: %w", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseWriter{w: w, flusher: flusher}, nil
}

func (s *sseWriter) send(payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", raw); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

type streamPayload struct {
	Type               domain.StreamEventKind `json:"type"`
	Category           domain.Category        `json:"category,omitempty"`
	ExternalSearchUsed *bool                  `json:"web_search_used,omitempty"`
	HasLocalEvidence   *bool                  `json:"has_local_results,omitempty"`
	AutoEscalated      *bool                  `json:"auto_web_triggered,omitempty"`
	OutOfScope         *bool                  `json:"out_of_scope,omitempty"`
	Content            string                 `json:"content,omitempty"`
	Message            string                 `json:"message,omitempty"`
}

func toStreamPayload(ev domain.StreamEvent) streamPayload {
	payload := streamPayload{Type: ev.Kind}
	switch ev.Kind {
	case domain.StreamEventMeta:
		if ev.Meta != nil {
			meta := *ev.Meta
			payload.Category = meta.Category
			payload.ExternalSearchUsed = &meta.ExternalSearchUsed
			payload.HasLocalEvidence = &meta.HasLocalEvidence
			payload.AutoEscalated = &meta.AutoEscalated
			payload.OutOfScope = &meta.OutOfScope
		}
	case domain.StreamEventChunk:
		payload.Content = ev.Text
	case domain.StreamEventError:
		payload.Message = ev.Message
	}
	return payload
}
