package usecase

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
)

const maxDocumentRunes = 1200

// Every writer below skips absent values entirely. No line ever carries a
// placeholder for missing data.

func writeLine(b *strings.Builder, label, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	fmt.Fprintf(b, "  %s: %s\n", label, value)
}

func writeIntLine(b *strings.Builder, label string, value *int, prefix string) {
	if value == nil {
		return
	}
	writeLine(b, label, prefix+strconv.Itoa(*value))
}

func formatCollege(c domain.College) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== %s ===\n", c.Name)
	writeLine(&b, "Location", c.Location)
	writeLine(&b, "Type", c.Type)
	writeIntLine(&b, "NIRF Rank", c.NIRFRank, "#")
	if c.Rating != nil {
		writeLine(&b, "Rating", strconv.FormatFloat(*c.Rating, 'f', 1, 64)+"/5")
	}
	if c.FeeRange != "" {
		writeLine(&b, "Fee Range", "INR "+c.FeeRange)
	}
	writeIntLine(&b, "Total Students", c.TotalStudents, "")
	writeIntLine(&b, "Courses Offered", c.CoursesOffered, "")
	writeIntLine(&b, "Established", c.EstablishedYear, "")
	writeLine(&b, "Source", c.URL)
	return strings.TrimRight(b.String(), "\n")
}

func formatCollegeList(title string, colleges []domain.College) string {
	if len(colleges) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "=== %s ===\n", title)
	for i, c := range colleges {
		fmt.Fprintf(&b, "%d. %s", i+1, c.Name)
		var facts []string
		if c.NIRFRank != nil {
			facts = append(facts, "NIRF #"+strconv.Itoa(*c.NIRFRank))
		}
		if c.Location != "" {
			facts = append(facts, c.Location)
		}
		if c.Type != "" {
			facts = append(facts, c.Type)
		}
		if c.FeeRange != "" {
			facts = append(facts, "Fees INR "+c.FeeRange)
		}
		if c.Rating != nil {
			facts = append(facts, "Rating "+strconv.FormatFloat(*c.Rating, 'f', 1, 64)+"/5")
		}
		if len(facts) > 0 {
			b.WriteString(" (" + strings.Join(facts, ", ") + ")")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatExam(e domain.Exam) string {
	var b strings.Builder
	title := e.Name
	if e.FullName != "" && !strings.EqualFold(e.FullName, e.Name) {
		title = e.Name + " (" + e.FullName + ")"
	}
	fmt.Fprintf(&b, "=== %s ===\n", title)
	writeLine(&b, "Exam Date", e.ExamDate)
	writeLine(&b, "Application Start", e.ApplicationStart)
	writeLine(&b, "Application End", e.ApplicationEnd)
	writeLine(&b, "Result Date", e.ResultDate)
	writeLine(&b, "Conducting Body", e.ConductingBody)
	writeLine(&b, "Mode", e.Mode)
	writeLine(&b, "Duration", e.Duration)
	writeLine(&b, "Source", e.URL)
	return strings.TrimRight(b.String(), "\n")
}

// formatComparison renders one row per parameter. A row lists only the sides
// that have a value and is dropped when neither side has one.
func formatComparison(cmp domain.Comparison) string {
	first, second := cmp.First, cmp.Second
	var b strings.Builder
	fmt.Fprintf(&b, "=== %s vs %s ===\n", first.Name, second.Name)

	row := func(label, v1, v2 string) {
		var parts []string
		if v1 != "" {
			parts = append(parts, first.Name+": "+v1)
		}
		if v2 != "" {
			parts = append(parts, second.Name+": "+v2)
		}
		if len(parts) > 0 {
			fmt.Fprintf(&b, "  %s: %s\n", label, strings.Join(parts, " | "))
		}
	}
	intValue := func(v *int, prefix string) string {
		if v == nil {
			return ""
		}
		return prefix + strconv.Itoa(*v)
	}
	ratingValue := func(v *float64) string {
		if v == nil {
			return ""
		}
		return strconv.FormatFloat(*v, 'f', 1, 64) + "/5"
	}

	row("NIRF Rank", intValue(first.NIRFRank, "#"), intValue(second.NIRFRank, "#"))
	row("Fees", first.Fees, second.Fees)
	row("Rating", ratingValue(first.Rating), ratingValue(second.Rating))
	row("Courses", intValue(first.Courses, ""), intValue(second.Courses, ""))
	row("Established", intValue(first.Year, ""), intValue(second.Year, ""))
	row("Students", intValue(first.Students, ""), intValue(second.Students, ""))
	row("Type", first.Type, second.Type)
	row("Location", first.Location, second.Location)
	writeLine(&b, "Source", cmp.URL)
	return strings.TrimRight(b.String(), "\n")
}

func formatDocuments(title string, docs []domain.RetrievedDocument, limit int) string {
	if len(docs) == 0 {
		return ""
	}
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		text := strings.TrimSpace(truncateRunes(doc.Text, maxDocumentRunes))
		if text == "" {
			continue
		}
		if doc.URL != "" {
			text += "\nSource: " + doc.URL
		}
		parts = append(parts, text)
	}
	if len(parts) == 0 {
		return ""
	}
	return "=== " + title + " ===\n" + strings.Join(parts, "\n---\n")
}

func joinSections(sections ...string) string {
	out := make([]string, 0, len(sections))
	for _, s := range sections {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n\n")
}

func truncateRunes(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}

// mergeDocuments concatenates lists, dropping repeats by source id or text.
func mergeDocuments(lists ...[]domain.RetrievedDocument) []domain.RetrievedDocument {
	var out []domain.RetrievedDocument
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, doc := range list {
			key := doc.SourceID
			if key == "" {
				key = doc.Text
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, doc)
		}
	}
	return out
}
