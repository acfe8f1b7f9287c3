package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const schemaLockID int64 = 2026101901

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS colleges (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	location TEXT,
	college_type TEXT,
	established_year INTEGER,
	nirf_rank INTEGER,
	rating DOUBLE PRECISION,
	total_students INTEGER,
	courses_offered INTEGER,
	fee_range TEXT,
	url TEXT
);

CREATE INDEX IF NOT EXISTS idx_colleges_nirf_rank ON colleges(nirf_rank) WHERE nirf_rank IS NOT NULL;

CREATE TABLE IF NOT EXISTS exams (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	full_name TEXT,
	exam_date TEXT,
	application_start TEXT,
	application_end TEXT,
	result_date TEXT,
	conducting_body TEXT,
	exam_mode TEXT,
	duration TEXT,
	url TEXT
);

CREATE TABLE IF NOT EXISTS comparisons (
	id BIGSERIAL PRIMARY KEY,
	college_1 TEXT NOT NULL,
	college_2 TEXT NOT NULL,
	college_1_fees TEXT,
	college_2_fees TEXT,
	college_1_nirf INTEGER,
	college_2_nirf INTEGER,
	college_1_courses INTEGER,
	college_2_courses INTEGER,
	college_1_year INTEGER,
	college_2_year INTEGER,
	college_1_students INTEGER,
	college_2_students INTEGER,
	college_1_type TEXT,
	college_2_type TEXT,
	college_1_rating DOUBLE PRECISION,
	college_2_rating DOUBLE PRECISION,
	college_1_location TEXT,
	college_2_location TEXT,
	url TEXT,
	UNIQUE (college_1, college_2)
);
`

// EnsureSchema creates the catalog tables. Concurrent replicas serialize on
// an advisory lock held for the transaction.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
