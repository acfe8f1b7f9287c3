package usecase

import (
	"strings"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
)

const outOfScopeAnswer = "I can only help with Indian colleges, universities and entrance exams, so I can't answer that one. " +
	"Here is what I can do:\n\n" +
	"- Fees, admissions, placements or facilities at a particular college\n" +
	"- Entrance exam dates, patterns and syllabus (JEE, NEET, GATE, CAT and others)\n" +
	"- A side-by-side comparison of two colleges\n" +
	"- Top colleges in a city or for a course\n" +
	"- Colleges that fit your rank or percentile\n\n" +
	"What would you like to know?"

type CategoryInfo struct {
	Category        domain.Category `json:"category"`
	Description     string          `json:"description"`
	SampleQuestions []string        `json:"sample_questions"`
}

// Categories lists every category with example questions for clients.
func Categories() []CategoryInfo {
	out := make([]CategoryInfo, 0, len(domain.AllCategories()))
	for _, category := range domain.AllCategories() {
		out = append(out, CategoryInfo{
			Category:        category,
			Description:     categoryDescriptions[category],
			SampleQuestions: sampleQuestions[category],
		})
	}
	return out
}

var categoryDescriptions = map[domain.Category]string{
	domain.CategoryCollege:     "Admissions, fees, placements and facilities of a named college",
	domain.CategoryExam:        "Entrance exam dates, patterns, admit cards and syllabus",
	domain.CategoryComparison:  "Head-to-head comparison of two colleges",
	domain.CategoryPredictor:   "Colleges reachable with a given rank, percentile or score",
	domain.CategoryTopColleges: "Top ranked colleges by location or course",
	domain.CategoryGeneral:     "Career guidance and general education questions",
}

var sampleQuestions = map[domain.Category][]string{
	domain.CategoryCollege: {
		"How can I get admission to VIT Vellore?",
		"How much is the fee at DTU?",
		"What are the hostel facilities like at IIT Bombay?",
		"Which companies visited LPU for placements this year?",
		"What scholarships are available at Amity University?",
	},
	domain.CategoryExam: {
		"What is the exam pattern for JEE Main?",
		"Where can I download the MHT CET admit card?",
		"When does the JEE Advanced application begin?",
		"What is the CLAT 2026 exam date?",
		"What is the syllabus for GATE 2026?",
	},
	domain.CategoryComparison: {
		"Which has better placements, VIT Vellore or Amrita?",
		"Compare IIM Indore vs IIM Kozhikode",
		"Which college has a better NIRF ranking, LPU or Chandigarh University?",
		"What is the fee difference between Amity Gurugram and Amity Lucknow?",
		"IIT Bombay vs IIT Delhi campus facilities?",
	},
	domain.CategoryPredictor: {
		"Which colleges accept 70 rank in JEE Main?",
		"What are the best colleges for 70 percentile in MHT CET?",
		"Can I get into top colleges with rank 70 in TS EAMCET?",
	},
	domain.CategoryTopColleges: {
		"Top ranked B.Tech colleges in Mumbai",
		"Best private engineering colleges in Bangalore",
		"Popular colleges in Kolkata",
	},
	domain.CategoryGeneral: {
		"Is it worth taking a drop year for JEE?",
		"How should I choose between engineering branches?",
	},
}

// splitWords groups text into chunks of n words, keeping the separating
// whitespace so the chunks concatenate back to the original text.
func splitWords(text string, n int) []string {
	if n <= 0 {
		return []string{text}
	}
	var (
		parts  []string
		b      strings.Builder
		words  int
		inWord bool
	)
	for _, r := range text {
		isSpace := r == ' ' || r == '\n' || r == '\t'
		if !isSpace && !inWord {
			if words == n {
				parts = append(parts, b.String())
				b.Reset()
				words = 0
			}
			words++
		}
		inWord = !isSpace
		b.WriteRune(r)
	}
	if b.Len() > 0 {
		parts = append(parts, b.String())
	}
	return parts
}
