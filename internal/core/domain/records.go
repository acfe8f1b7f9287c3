package domain

// College is a structured catalog record. Nil pointers and empty strings are
// absent values.
type College struct {
	Name            string   `json:"name"`
	Location        string   `json:"location,omitempty"`
	Type            string   `json:"college_type,omitempty"`
	EstablishedYear *int     `json:"established_year,omitempty"`
	NIRFRank        *int     `json:"nirf_rank,omitempty"`
	Rating          *float64 `json:"rating,omitempty"`
	TotalStudents   *int     `json:"total_students,omitempty"`
	CoursesOffered  *int     `json:"courses_offered,omitempty"`
	FeeRange        string   `json:"fee_range,omitempty"`
	URL             string   `json:"url,omitempty"`
}

type Exam struct {
	Name             string `json:"name"`
	FullName         string `json:"full_name,omitempty"`
	ExamDate         string `json:"exam_date,omitempty"`
	ApplicationStart string `json:"application_start,omitempty"`
	ApplicationEnd   string `json:"application_end,omitempty"`
	ResultDate       string `json:"result_date,omitempty"`
	ConductingBody   string `json:"conducting_body,omitempty"`
	Mode             string `json:"exam_mode,omitempty"`
	Duration         string `json:"duration,omitempty"`
	URL              string `json:"url,omitempty"`
}

// ComparisonSide is one college's half of a stored comparison.
type ComparisonSide struct {
	Name     string   `json:"name"`
	Fees     string   `json:"fees,omitempty"`
	NIRFRank *int     `json:"nirf_rank,omitempty"`
	Courses  *int     `json:"courses,omitempty"`
	Year     *int     `json:"established_year,omitempty"`
	Students *int     `json:"students,omitempty"`
	Type     string   `json:"college_type,omitempty"`
	Rating   *float64 `json:"rating,omitempty"`
	Location string   `json:"location,omitempty"`
}

// Comparison is a stored head-to-head record. Sides keep the order they were
// stored in, regardless of lookup argument order.
type Comparison struct {
	First  ComparisonSide `json:"college_1"`
	Second ComparisonSide `json:"college_2"`
	URL    string         `json:"url,omitempty"`
}

// FillFrom copies values the comparison side lacks from a standalone college
// record.
func (s *ComparisonSide) FillFrom(c *College) {
	if c == nil {
		return
	}
	if s.Name == "" {
		s.Name = c.Name
	}
	if s.Fees == "" {
		s.Fees = c.FeeRange
	}
	if s.NIRFRank == nil {
		s.NIRFRank = c.NIRFRank
	}
	if s.Courses == nil {
		s.Courses = c.CoursesOffered
	}
	if s.Year == nil {
		s.Year = c.EstablishedYear
	}
	if s.Students == nil {
		s.Students = c.TotalStudents
	}
	if s.Type == "" {
		s.Type = c.Type
	}
	if s.Rating == nil {
		s.Rating = c.Rating
	}
	if s.Location == "" {
		s.Location = c.Location
	}
}
