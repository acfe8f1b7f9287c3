package domain

import "strings"

type Turn struct {
	Role string `json:"role"`
	Text string `json:"content"`
}

// Query is the immutable input of one chat request.
type Query struct {
	Text                 string
	PreferExternalSearch bool
	CategoryHint         string
	History              []Turn
}

func NewQuery(text string, preferExternalSearch bool, categoryHint string, history []Turn) (Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Query{}, WrapError(ErrInvalidInput, "new query", errEmptyQuery)
	}
	turns := make([]Turn, 0, len(history))
	for _, turn := range history {
		if strings.TrimSpace(turn.Text) == "" {
			continue
		}
		turns = append(turns, Turn{Role: strings.ToLower(strings.TrimSpace(turn.Role)), Text: turn.Text})
	}
	return Query{
		Text:                 text,
		PreferExternalSearch: preferExternalSearch,
		CategoryHint:         strings.ToUpper(strings.TrimSpace(categoryHint)),
		History:              turns,
	}, nil
}

// EntitySet holds named values extracted by the router. Empty fields mean the
// value is absent.
type EntitySet struct {
	Colleges  []string `json:"college_names"`
	Exams     []string `json:"exam_names"`
	Location  string   `json:"location,omitempty"`
	RankScore string   `json:"rank_score,omitempty"`
}

func (e EntitySet) Primary() string {
	if len(e.Colleges) == 0 {
		return ""
	}
	return e.Colleges[0]
}

func (e EntitySet) Secondary() string {
	if len(e.Colleges) < 2 {
		return ""
	}
	return e.Colleges[1]
}

// Names returns college names followed by exam names.
func (e EntitySet) Names() []string {
	out := make([]string, 0, len(e.Colleges)+len(e.Exams))
	out = append(out, e.Colleges...)
	out = append(out, e.Exams...)
	return out
}

func (e EntitySet) IsEmpty() bool {
	return len(e.Colleges) == 0 && len(e.Exams) == 0 && e.Location == "" && e.RankScore == ""
}

// Normalize trims values and drops blanks and case-insensitive duplicates.
func (e EntitySet) Normalize() EntitySet {
	return EntitySet{
		Colleges:  dedupeNames(e.Colleges),
		Exams:     dedupeNames(e.Exams),
		Location:  strings.TrimSpace(e.Location),
		RankScore: strings.TrimSpace(e.RankScore),
	}
}

func dedupeNames(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		key := strings.ToLower(value)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, value)
	}
	return out
}
