package domain

import "strings"

// Category is the closed set of query intents. Each value selects exactly one
// context builder.
type Category string

const (
	CategoryCollege     Category = "COLLEGE"
	CategoryExam        Category = "EXAM"
	CategoryComparison  Category = "COMPARISON"
	CategoryPredictor   Category = "PREDICTOR"
	CategoryTopColleges Category = "TOP_COLLEGES"
	CategoryGeneral     Category = "GENERAL"
)

// Document types stored alongside vectors in the semantic corpus.
const (
	DocTypeCollege    = "college"
	DocTypeExam       = "exam"
	DocTypeComparison = "comparison"
	DocTypeBlog       = "blog"
	DocTypePage       = "page"
)

func AllCategories() []Category {
	return []Category{
		CategoryCollege,
		CategoryExam,
		CategoryComparison,
		CategoryPredictor,
		CategoryTopColleges,
		CategoryGeneral,
	}
}

// ParseCategory accepts wire values case-insensitively. Unknown input reports false.
func ParseCategory(raw string) (Category, bool) {
	value := Category(strings.ToUpper(strings.TrimSpace(raw)))
	switch value {
	case CategoryCollege, CategoryExam, CategoryComparison, CategoryPredictor, CategoryTopColleges, CategoryGeneral:
		return value, true
	}
	return CategoryGeneral, false
}

// DocumentType is the semantic search filter used for the first retrieval
// attempt. GENERAL searches the whole corpus.
func (c Category) DocumentType() string {
	switch c {
	case CategoryCollege, CategoryPredictor, CategoryTopColleges:
		return DocTypeCollege
	case CategoryExam:
		return DocTypeExam
	case CategoryComparison:
		return DocTypeComparison
	default:
		return ""
	}
}

func (c Category) String() string {
	return string(c)
}
