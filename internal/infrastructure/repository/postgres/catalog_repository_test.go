package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newRepoWithMock(t *testing.T) (*CatalogRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewCatalogRepository(db), mock, func() { _ = db.Close() }
}

var collegeRowColumns = []string{"name", "location", "college_type", "established_year", "nirf_rank", "rating", "total_students", "courses_offered", "fee_range", "url"}

func TestLookupCollegeMapsNullableColumns(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT name, location, college_type").
		WithArgs("%vit%", "vit").
		WillReturnRows(sqlmock.NewRows(collegeRowColumns).
			AddRow("VIT Vellore", "Vellore", "Private", 1984, 11, nil, nil, 120, "1.9L - 4.5L", "https://example.org/vit"))

	college, err := repo.LookupCollege(context.Background(), " vit ")
	if err != nil {
		t.Fatalf("LookupCollege() error = %v", err)
	}
	if college == nil || college.Name != "VIT Vellore" {
		t.Fatalf("unexpected college: %+v", college)
	}
	if college.NIRFRank == nil || *college.NIRFRank != 11 || college.EstablishedYear == nil || *college.EstablishedYear != 1984 {
		t.Fatalf("expected rank and year, got %+v", college)
	}
	if college.Rating != nil || college.TotalStudents != nil {
		t.Fatalf("expected absent rating and students, got %+v", college)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLookupCollegeMissReturnsNil(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("FROM colleges").
		WithArgs("%nowhere%", "nowhere").
		WillReturnError(sql.ErrNoRows)

	college, err := repo.LookupCollege(context.Background(), "nowhere")
	if err != nil || college != nil {
		t.Fatalf("expected (nil, nil) on miss, got (%+v, %v)", college, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLookupCollegeBlankNameSkipsQuery(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	college, err := repo.LookupCollege(context.Background(), "   ")
	if err != nil || college != nil {
		t.Fatalf("expected (nil, nil), got (%+v, %v)", college, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLookupCollegeEscapesWildcards(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("FROM colleges").
		WithArgs(`%100\%_campus%`, "100%_campus").
		WillReturnError(sql.ErrNoRows)

	if _, err := repo.LookupCollege(context.Background(), "100%_campus"); err != nil {
		t.Fatalf("LookupCollege() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLookupCollegeWrapsDriverError(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	driverErr := errors.New("connection reset")
	mock.ExpectQuery("FROM colleges").WillReturnError(driverErr)

	_, err := repo.LookupCollege(context.Background(), "iit")
	if !errors.Is(err, driverErr) || !strings.Contains(err.Error(), "lookup college") {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}
}

func TestLookupExamMatchesFullName(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("FROM exams").
		WithArgs("%joint entrance%", "joint entrance").
		WillReturnRows(sqlmock.NewRows([]string{"name", "full_name", "exam_date", "application_start", "application_end", "result_date", "conducting_body", "exam_mode", "duration", "url"}).
			AddRow("JEE Main", "Joint Entrance Examination Main", "January 2027", nil, nil, nil, "NTA", "CBT", "3 hours", nil))

	exam, err := repo.LookupExam(context.Background(), "joint entrance")
	if err != nil {
		t.Fatalf("LookupExam() error = %v", err)
	}
	if exam.Name != "JEE Main" || exam.ConductingBody != "NTA" || exam.ApplicationStart != "" || exam.URL != "" {
		t.Fatalf("unexpected exam: %+v", exam)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

var comparisonColumns = []string{
	"college_1", "college_2",
	"college_1_fees", "college_2_fees", "college_1_nirf", "college_2_nirf",
	"college_1_courses", "college_2_courses", "college_1_year", "college_2_year",
	"college_1_students", "college_2_students", "college_1_type", "college_2_type",
	"college_1_rating", "college_2_rating", "college_1_location", "college_2_location", "url",
}

func TestLookupComparisonKeepsStoredOrderForReversedArguments(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	// Stored as (VIT, SRM); asked as (SRM, VIT).
	mock.ExpectQuery(`college_1 ILIKE \$1 AND college_2 ILIKE \$2`).
		WithArgs("%srm%", "%vit%", "srm", "vit").
		WillReturnRows(sqlmock.NewRows(comparisonColumns).
			AddRow("VIT Vellore", "SRM Chennai",
				"1.9L", "2.5L", 11, nil,
				nil, nil, nil, 1985,
				nil, nil, "Private", "Private",
				4.2, nil, "Vellore", "Chennai", "https://example.org/vit-vs-srm"))

	cmp, err := repo.LookupComparison(context.Background(), "srm", "vit")
	if err != nil {
		t.Fatalf("LookupComparison() error = %v", err)
	}
	if cmp.First.Name != "VIT Vellore" || cmp.Second.Name != "SRM Chennai" {
		t.Fatalf("expected stored order, got %q vs %q", cmp.First.Name, cmp.Second.Name)
	}
	if cmp.First.NIRFRank == nil || *cmp.First.NIRFRank != 11 || cmp.Second.NIRFRank != nil {
		t.Fatalf("unexpected ranks: %+v", cmp)
	}
	if cmp.Second.Year == nil || *cmp.Second.Year != 1985 || cmp.First.Rating == nil || *cmp.First.Rating != 4.2 {
		t.Fatalf("unexpected sides: %+v", cmp)
	}
	if cmp.URL != "https://example.org/vit-vs-srm" {
		t.Fatalf("unexpected url %q", cmp.URL)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestLookupComparisonMissReturnsNil(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("FROM comparisons").WillReturnError(sql.ErrNoRows)

	cmp, err := repo.LookupComparison(context.Background(), "a", "b")
	if err != nil || cmp != nil {
		t.Fatalf("expected (nil, nil), got (%+v, %v)", cmp, err)
	}
}

func TestLookupComparisonOrdersByExactMatchThenID(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery(`(?s)ORDER BY \(lower\(college_1\) IN \(lower\(\$3\), lower\(\$4\)\)\)::int.*DESC,\s+id ASC\s+LIMIT 1`).
		WithArgs("%VIT%", "%SRM Chennai%", "VIT", "SRM Chennai").
		WillReturnError(sql.ErrNoRows)

	if _, err := repo.LookupComparison(context.Background(), "VIT", "SRM Chennai"); err != nil {
		t.Fatalf("LookupComparison() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTopCollegesWithLocationFilter(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery(`nirf_rank IS NOT NULL AND location ILIKE \$2`).
		WithArgs(10, "%chennai%").
		WillReturnRows(sqlmock.NewRows(collegeRowColumns).
			AddRow("IIT Madras", "Chennai", "Public", 1959, 1, 4.8, nil, nil, nil, nil).
			AddRow("Anna University", "Chennai", "Public", nil, 14, nil, nil, nil, nil, nil))

	colleges, err := repo.TopColleges(context.Background(), 0, "chennai")
	if err != nil {
		t.Fatalf("TopColleges() error = %v", err)
	}
	if len(colleges) != 2 || colleges[0].Name != "IIT Madras" || *colleges[1].NIRFRank != 14 {
		t.Fatalf("unexpected colleges: %+v", colleges)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTopCollegesWithoutLocation(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery(`WHERE nirf_rank IS NOT NULL\s+ORDER BY nirf_rank`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(collegeRowColumns))

	colleges, err := repo.TopColleges(context.Background(), 5, "")
	if err != nil || len(colleges) != 0 {
		t.Fatalf("expected empty result, got (%+v, %v)", colleges, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCollegesWithinRankPassesBound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery(`nirf_rank <= \$1`).
		WithArgs(100, 15).
		WillReturnRows(sqlmock.NewRows(collegeRowColumns).
			AddRow("NIT Trichy", "Tiruchirappalli", "Public", 1964, 9, nil, nil, nil, nil, nil))

	colleges, err := repo.CollegesWithinRank(context.Background(), 100, 0)
	if err != nil || len(colleges) != 1 {
		t.Fatalf("CollegesWithinRank() = (%+v, %v)", colleges, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListCollegesReportsRowError(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	rowErr := errors.New("network blip")
	mock.ExpectQuery("FROM colleges").
		WillReturnRows(sqlmock.NewRows(collegeRowColumns).
			AddRow("IIT Delhi", nil, nil, nil, 2, nil, nil, nil, nil, nil).
			RowError(0, rowErr))

	if _, err := repo.CollegesWithinRank(context.Background(), 10, 5); !errors.Is(err, rowErr) {
		t.Fatalf("expected row error, got %v", err)
	}
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).
		WithArgs(schemaLockID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS colleges").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
