package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/admissions-rag/internal/core/domain"
)

// CatalogRepository serves structured college, exam and comparison records.
// Lookups match names by case-insensitive substring and report a miss as
// (nil, nil).
type CatalogRepository struct {
	db *sql.DB
}

func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

const collegeColumns = `name, location, college_type, established_year, nirf_rank, rating, total_students, courses_offered, fee_range, url`

func (r *CatalogRepository) LookupCollege(ctx context.Context, name string) (*domain.College, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	// Exact names first, then the best ranked partial match.
	row := r.db.QueryRowContext(ctx, `
SELECT `+collegeColumns+`
FROM colleges
WHERE name ILIKE $1
ORDER BY (lower(name) = lower($2)) DESC, nirf_rank ASC NULLS LAST, length(name) ASC
LIMIT 1
`, containsPattern(name), name)

	college, err := scanCollege(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup college %q: %w", name, err)
	}
	return college, nil
}

func (r *CatalogRepository) LookupExam(ctx context.Context, name string) (*domain.Exam, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx, `
SELECT name, full_name, exam_date, application_start, application_end, result_date, conducting_body, exam_mode, duration, url
FROM exams
WHERE name ILIKE $1 OR full_name ILIKE $1
ORDER BY (lower(name) = lower($2)) DESC, length(name) ASC
LIMIT 1
`, containsPattern(name), name)

	var (
		exam   domain.Exam
		fields [9]sql.NullString
	)
	err := row.Scan(&exam.Name, &fields[0], &fields[1], &fields[2], &fields[3], &fields[4], &fields[5], &fields[6], &fields[7], &fields[8])
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup exam %q: %w", name, err)
	}
	exam.FullName = fields[0].String
	exam.ExamDate = fields[1].String
	exam.ApplicationStart = fields[2].String
	exam.ApplicationEnd = fields[3].String
	exam.ResultDate = fields[4].String
	exam.ConductingBody = fields[5].String
	exam.Mode = fields[6].String
	exam.Duration = fields[7].String
	exam.URL = fields[8].String
	return &exam, nil
}

// LookupComparison finds a stored pair in either column order. The returned
// sides keep their stored order. Pairs whose names match exactly rank first,
// then the oldest row, so both argument orders resolve to the same record.
func (r *CatalogRepository) LookupComparison(ctx context.Context, first, second string) (*domain.Comparison, error) {
	first, second = strings.TrimSpace(first), strings.TrimSpace(second)
	if first == "" || second == "" {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx, `
SELECT college_1, college_2,
	college_1_fees, college_2_fees, college_1_nirf, college_2_nirf,
	college_1_courses, college_2_courses, college_1_year, college_2_year,
	college_1_students, college_2_students, college_1_type, college_2_type,
	college_1_rating, college_2_rating, college_1_location, college_2_location, url
FROM comparisons
WHERE (college_1 ILIKE $1 AND college_2 ILIKE $2)
   OR (college_1 ILIKE $2 AND college_2 ILIKE $1)
ORDER BY (lower(college_1) IN (lower($3), lower($4)))::int
       + (lower(college_2) IN (lower($3), lower($4)))::int DESC,
	id ASC
LIMIT 1
`, containsPattern(first), containsPattern(second), first, second)

	var (
		cmp                  domain.Comparison
		fees1, fees2         sql.NullString
		nirf1, nirf2         sql.NullInt64
		courses1, courses2   sql.NullInt64
		year1, year2         sql.NullInt64
		students1, students2 sql.NullInt64
		type1, type2         sql.NullString
		rating1, rating2     sql.NullFloat64
		loc1, loc2           sql.NullString
		url                  sql.NullString
	)
	err := row.Scan(
		&cmp.First.Name, &cmp.Second.Name,
		&fees1, &fees2, &nirf1, &nirf2,
		&courses1, &courses2, &year1, &year2,
		&students1, &students2, &type1, &type2,
		&rating1, &rating2, &loc1, &loc2, &url,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup comparison %q vs %q: %w", first, second, err)
	}

	cmp.First.Fees, cmp.Second.Fees = fees1.String, fees2.String
	cmp.First.NIRFRank, cmp.Second.NIRFRank = nullInt(nirf1), nullInt(nirf2)
	cmp.First.Courses, cmp.Second.Courses = nullInt(courses1), nullInt(courses2)
	cmp.First.Year, cmp.Second.Year = nullInt(year1), nullInt(year2)
	cmp.First.Students, cmp.Second.Students = nullInt(students1), nullInt(students2)
	cmp.First.Type, cmp.Second.Type = type1.String, type2.String
	cmp.First.Rating, cmp.Second.Rating = nullFloat(rating1), nullFloat(rating2)
	cmp.First.Location, cmp.Second.Location = loc1.String, loc2.String
	cmp.URL = url.String
	return &cmp, nil
}

// TopColleges lists ranked colleges by ascending NIRF rank, optionally
// restricted to a location substring.
func (r *CatalogRepository) TopColleges(ctx context.Context, limit int, location string) ([]domain.College, error) {
	if limit <= 0 {
		limit = 10
	}
	location = strings.TrimSpace(location)
	if location == "" {
		return r.listColleges(ctx, "top colleges", `
SELECT `+collegeColumns+`
FROM colleges
WHERE nirf_rank IS NOT NULL
ORDER BY nirf_rank ASC
LIMIT $1
`, limit)
	}
	return r.listColleges(ctx, "top colleges", `
SELECT `+collegeColumns+`
FROM colleges
WHERE nirf_rank IS NOT NULL AND location ILIKE $2
ORDER BY nirf_rank ASC
LIMIT $1
`, limit, containsPattern(location))
}

func (r *CatalogRepository) CollegesWithinRank(ctx context.Context, maxRank, limit int) ([]domain.College, error) {
	if limit <= 0 {
		limit = 15
	}
	return r.listColleges(ctx, "colleges within rank", `
SELECT `+collegeColumns+`
FROM colleges
WHERE nirf_rank IS NOT NULL AND nirf_rank <= $1
ORDER BY nirf_rank ASC
LIMIT $2
`, maxRank, limit)
}

func (r *CatalogRepository) listColleges(ctx context.Context, operation, query string, args ...any) ([]domain.College, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", operation, err)
	}
	defer rows.Close()

	var out []domain.College
	for rows.Next() {
		college, err := scanCollege(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", operation, err)
		}
		out = append(out, *college)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", operation, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCollege(row rowScanner) (*domain.College, error) {
	var (
		college                   domain.College
		location, kind, fees, url sql.NullString
		year, rank, students, cnt sql.NullInt64
		rating                    sql.NullFloat64
	)
	if err := row.Scan(&college.Name, &location, &kind, &year, &rank, &rating, &students, &cnt, &fees, &url); err != nil {
		return nil, err
	}
	college.Location = location.String
	college.Type = kind.String
	college.EstablishedYear = nullInt(year)
	college.NIRFRank = nullInt(rank)
	college.Rating = nullFloat(rating)
	college.TotalStudents = nullInt(students)
	college.CoursesOffered = nullInt(cnt)
	college.FeeRange = fees.String
	college.URL = url.String
	return &college, nil
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(value string) string {
	return "%" + likeEscaper.Replace(value) + "%"
}
