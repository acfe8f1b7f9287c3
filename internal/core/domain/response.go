package domain

// Response is the complete buffered answer. It is also the cached value.
type Response struct {
	Answer             string              `json:"response"`
	Category           Category            `json:"category_detected"`
	Entities           EntitySet           `json:"entities"`
	ExternalSearchUsed bool                `json:"web_search_used"`
	HasLocalEvidence   bool                `json:"has_local_results"`
	AutoEscalated      bool                `json:"auto_web_triggered"`
	OutOfScope         bool                `json:"out_of_scope"`
	EffectiveQuery     string              `json:"effective_query,omitempty"`
	Sources            []RetrievedDocument `json:"sources,omitempty"`
}

// StreamMeta is the first event of every stream.
type StreamMeta struct {
	Category           Category `json:"category"`
	HasLocalEvidence   bool     `json:"has_local_results"`
	ExternalSearchUsed bool     `json:"web_search_used"`
	AutoEscalated      bool     `json:"auto_web_triggered"`
	OutOfScope         bool     `json:"out_of_scope"`
}

type StreamEventKind string

const (
	StreamEventMeta  StreamEventKind = "meta"
	StreamEventChunk StreamEventKind = "chunk"
	StreamEventDone  StreamEventKind = "done"
	StreamEventError StreamEventKind = "error"
)

// StreamEvent is a tagged union: Meta is set for meta events, Text for
// chunks, Message for errors.
type StreamEvent struct {
	Kind    StreamEventKind
	Meta    *StreamMeta
	Text    string
	Message string
}

func (e StreamEvent) Terminal() bool {
	return e.Kind == StreamEventDone || e.Kind == StreamEventError
}
