package usecase

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
)

type routingRule struct {
	name     string
	category domain.Category
	match    func(lower string) bool
}

var (
	comparisonMarker = regexp.MustCompile(`\bvs\b|\bversus\b|\bcompare\b|\bcomparison\b`)
	topListMarker    = regexp.MustCompile(`\btop\b.*\bcollege|\bbest\b.*\bcollege|\branked\b.*\bcollege|\bpopular\b.*\bcollege`)
	rankAfterNumber  = regexp.MustCompile(`\d+\s*(?:rank|percentile|score)`)
	predictorMarker  = regexp.MustCompile(`\d+\s*(?:rank|percentile)|(?:rank|percentile|score)\s*\d+|\bcan i get\b|\bwhich colleges.*\d+`)

	examKeywords = []string{
		"exam date", "admit card", "exam pattern", "syllabus", "result date",
		"application form", "mock test", "registration deadline",
	}
	collegeKeywords = []string{
		"admission to", "admission in", "admission process", "how to get into",
		"fee at", "fees at", "fee structure", "hostel at", "placement at",
		"scholarship at", "campus life", "courses at", "facilities at",
	}
)

// routingRules is evaluated in order; the first match wins. Comparison must
// precede the top-list rule because "compare the best colleges" carries both.
var routingRules = []routingRule{
	{name: "comparison_marker", category: domain.CategoryComparison, match: comparisonMarker.MatchString},
	{name: "exam_keyword", category: domain.CategoryExam, match: containsAny(examKeywords)},
	{name: "college_keyword", category: domain.CategoryCollege, match: containsAny(collegeKeywords)},
	{name: "top_list", category: domain.CategoryTopColleges, match: func(lower string) bool {
		return topListMarker.MatchString(lower) && !rankAfterNumber.MatchString(lower)
	}},
	{name: "rank_predictor", category: domain.CategoryPredictor, match: predictorMarker.MatchString},
}

func containsAny(keywords []string) func(string) bool {
	return func(lower string) bool {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
		return false
	}
}

func matchRule(text string) (routingRule, bool) {
	lower := strings.ToLower(text)
	for _, rule := range routingRules {
		if rule.match(lower) {
			return rule, true
		}
	}
	return routingRule{}, false
}

var examPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bJEE\s*(?:Main|Mains|Advanced)?\b`),
	regexp.MustCompile(`(?i)\bNEET(?:\s*UG)?\b`),
	regexp.MustCompile(`\bCAT\b`),
	regexp.MustCompile(`\bGATE\b`),
	regexp.MustCompile(`(?i)\bCLAT\b`),
	regexp.MustCompile(`(?i)\bMHT[\s-]*CET\b`),
	regexp.MustCompile(`(?i)\bTS[\s-]*EAMCET\b`),
	regexp.MustCompile(`(?i)\bAP[\s-]*EAMCET\b`),
	regexp.MustCompile(`(?i)\bBITSAT\b`),
	regexp.MustCompile(`(?i)\bVITEEE\b`),
	regexp.MustCompile(`(?i)\bCOMEDK\b`),
	regexp.MustCompile(`(?i)\bKCET\b`),
	regexp.MustCompile(`(?i)\bWBJEE\b`),
}

var (
	locationPattern = regexp.MustCompile(`\bin\s+([A-Z][A-Za-z]+(?:\s+[A-Z][A-Za-z]+)*)`)
	rankTokenBefore = regexp.MustCompile(`(?i)(\d[\d,]*)\s*(?:st|nd|rd|th)?\s*(rank|percentile|score)`)
	rankTokenAfter  = regexp.MustCompile(`(?i)(rank|percentile|score)\s*(?:of\s+|is\s+)?(\d[\d,]*)`)
	bareNumber      = regexp.MustCompile(`\b\d[\d,]*\b`)
)

// Tokens that end a capitalized run and are never part of a college name.
var nameStopWords = toSet(
	"what", "which", "how", "when", "where", "who", "why", "is", "are", "can", "could", "should",
	"do", "does", "did", "i", "my", "me", "we", "tell", "show", "list", "give", "find", "please",
	"compare", "comparison", "vs", "versus", "between", "and", "or", "the", "a", "an",
	"top", "best", "ranked", "popular", "private", "government", "public",
	"fee", "fees", "admission", "admissions", "placement", "placements", "hostel", "scholarship",
	"scholarships", "cutoff", "cutoffs", "campus", "courses", "facilities", "ranking", "rank",
	"b.tech", "b.e.", "b.e", "m.tech", "mba", "bba", "bca", "mca", "engineering", "medical",
	"nirf", "india", "indian", "colleges", "college",
)

// Tokens that belong to exam names and therefore break college runs.
var examTokens = toSet(
	"jee", "main", "mains", "advanced", "neet", "ug", "cat", "gate", "clat", "mht", "cet", "mht-cet",
	"ts", "ap", "eamcet", "bitsat", "viteee", "comedk", "kcet", "wbjee",
)

func toSet(values ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

// extractEntities is the deterministic entity pass used by the pattern stage.
func extractEntities(text string) domain.EntitySet {
	entities := domain.EntitySet{
		Exams:     extractExams(text),
		Location:  extractLocation(text),
		RankScore: extractRankScore(text),
	}
	for _, name := range extractCollegeNames(text) {
		if entities.Location != "" && strings.EqualFold(name, entities.Location) {
			continue
		}
		entities.Colleges = append(entities.Colleges, name)
	}
	return entities.Normalize()
}

func extractExams(text string) []string {
	var out []string
	for _, pattern := range examPatterns {
		for _, match := range pattern.FindAllString(text, -1) {
			out = append(out, canonicalExamName(match))
		}
	}
	return out
}

func canonicalExamName(raw string) string {
	fields := strings.FieldsFunc(raw, func(r rune) bool { return unicode.IsSpace(r) || r == '-' })
	for i, field := range fields {
		switch upper := strings.ToUpper(field); upper {
		case "MAIN", "MAINS", "ADVANCED":
			fields[i] = strings.ToUpper(field[:1]) + strings.ToLower(field[1:])
		default:
			fields[i] = upper
		}
	}
	if len(fields) == 2 && (fields[1] == "CET" || fields[1] == "EAMCET") {
		return fields[0] + " " + fields[1]
	}
	return strings.Join(fields, " ")
}

func extractLocation(text string) string {
	match := locationPattern.FindStringSubmatch(text)
	if len(match) < 2 {
		return ""
	}
	candidate := strings.TrimSpace(match[1])
	first := strings.Fields(candidate)[0]
	// Acronyms after "in" are colleges ("admission in VIT"), not places.
	if len(first) > 1 && strings.ToUpper(first) == first {
		return ""
	}
	if _, stop := nameStopWords[strings.ToLower(first)]; stop {
		return ""
	}
	return candidate
}

func extractRankScore(text string) string {
	if m := rankTokenBefore.FindStringSubmatch(text); len(m) == 3 {
		return strings.ReplaceAll(m[1], ",", "") + " " + strings.ToLower(m[2])
	}
	if m := rankTokenAfter.FindStringSubmatch(text); len(m) == 3 {
		return strings.ReplaceAll(m[2], ",", "") + " " + strings.ToLower(m[1])
	}
	return ""
}

// extractCollegeNames collects runs of capitalized tokens. Punctuation after
// a token, lowercase words, stop words and exam tokens end a run.
func extractCollegeNames(text string) []string {
	var (
		names []string
		run   []string
	)
	flush := func() {
		if len(run) > 0 {
			names = append(names, strings.Join(run, " "))
			run = run[:0]
		}
	}

	for _, raw := range strings.Fields(text) {
		token := strings.TrimRight(strings.Trim(raw, `?,!;:"'()[]`), ".")
		endsRun := strings.ContainsAny(raw[len(raw)-1:], "?,!;:)")

		lower := strings.ToLower(token)
		_, stop := nameStopWords[lower]
		_, exam := examTokens[lower]
		if token == "" || stop || exam || !startsUpper(token) {
			flush()
			continue
		}
		run = append(run, token)
		if endsRun {
			flush()
		}
	}
	flush()
	return names
}

func startsUpper(token string) bool {
	for _, r := range token {
		return unicode.IsUpper(r)
	}
	return false
}

// ParseRank reads a numeric rank, percentile or score from free text. Values
// that look like calendar years are ignored when no rank keyword is adjacent.
func ParseRank(text string) (int, bool) {
	if m := rankTokenBefore.FindStringSubmatch(text); len(m) == 3 {
		if n, ok := atoiLoose(m[1]); ok {
			return n, true
		}
	}
	if m := rankTokenAfter.FindStringSubmatch(text); len(m) == 3 {
		if n, ok := atoiLoose(m[2]); ok {
			return n, true
		}
	}
	for _, candidate := range bareNumber.FindAllString(text, -1) {
		n, ok := atoiLoose(candidate)
		if !ok || (n >= 1900 && n <= 2100) {
			continue
		}
		return n, true
	}
	return 0, false
}

func atoiLoose(raw string) (int, bool) {
	n, err := strconv.Atoi(strings.ReplaceAll(raw, ",", ""))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
