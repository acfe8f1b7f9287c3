package domain

import (
	"strings"
	"time"
)

// RetrievedDocument is one semantic search hit. Distance 0 means identical
// meaning; larger values are less similar.
type RetrievedDocument struct {
	SourceID   string  `json:"source_id"`
	SourceType string  `json:"source_type"`
	Title      string  `json:"title,omitempty"`
	URL        string  `json:"url,omitempty"`
	Text       string  `json:"text"`
	Distance   float64 `json:"distance"`
}

// Mentions reports whether the document text or title contains name,
// ignoring case.
func (d RetrievedDocument) Mentions(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false
	}
	return strings.Contains(strings.ToLower(d.Text), name) || strings.Contains(strings.ToLower(d.Title), name)
}

type RelevanceVerdict string

const (
	VerdictAdequate   RelevanceVerdict = "ADEQUATE"
	VerdictPartial    RelevanceVerdict = "PARTIAL"
	VerdictInadequate RelevanceVerdict = "INADEQUATE"
)

// ParseVerdict maps judge replies onto a verdict. Anything unrecognised is
// PARTIAL.
func ParseVerdict(raw string) RelevanceVerdict {
	value := strings.ToLower(strings.Trim(strings.TrimSpace(raw), ".!\"'`"))
	if fields := strings.Fields(value); len(fields) > 0 {
		value = fields[0]
	}
	switch value {
	case "relevant", "adequate":
		return VerdictAdequate
	case "irrelevant", "inadequate":
		return VerdictInadequate
	default:
		return VerdictPartial
	}
}

// RetrievalOutcome is the result of the self-reflective retrieval loop.
type RetrievalOutcome struct {
	Documents      []RetrievedDocument
	Verdict        RelevanceVerdict
	Escalate       bool
	EffectiveQuery string
	Rewritten      bool
	Checks         int
}

// PromptContext is the formatted evidence handed to the generator.
type PromptContext struct {
	Text                string
	HasLocalEvidence    bool
	NeedsExternalSearch bool
}

// RetrievalTrace records one retrieval attempt for the diagnostics log.
type RetrievalTrace struct {
	ID        string           `json:"id"`
	Timestamp time.Time        `json:"timestamp"`
	Attempt   int              `json:"attempt"`
	Query     string           `json:"query"`
	Category  Category         `json:"category"`
	DocType   string           `json:"doc_type,omitempty"`
	Verdict   RelevanceVerdict `json:"verdict"`
	Documents []TraceDocument  `json:"documents"`
}

type TraceDocument struct {
	SourceType string  `json:"source_type"`
	Title      string  `json:"title,omitempty"`
	URL        string  `json:"url,omitempty"`
	Distance   float64 `json:"distance"`
	Preview    string  `json:"preview"`
}
