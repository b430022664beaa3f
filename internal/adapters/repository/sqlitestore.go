package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/okian/dropwatch/internal/domain/model"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const backendSQLite = "sqlite"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS interventions (
	seq                INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp          TEXT    NOT NULL UNIQUE,
	attendance         REAL    NOT NULL,
	internal_marks     REAL    NOT NULL,
	quiz_score         REAL    NOT NULL,
	login_frequency    REAL    NOT NULL,
	financial_issue    INTEGER NOT NULL,
	backlog_count      INTEGER NOT NULL,
	risk_level         TEXT    NOT NULL,
	intervention_taken TEXT    NOT NULL,
	outcome            TEXT    NOT NULL DEFAULT ''
)`

// SQLiteStore keeps the log in an SQLite database using the pure Go
// driver. Append order is the autoincrement sequence.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database at dsn, applies pragmas and
// ensures the schema.
func OpenSQLite(ctx context.Context, dsn string, opts ...Option) (*SQLiteStore, error) {
	o := newOptions(opts)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps in-memory databases shared and writes
	// serialized.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	o.log.Info(ctx, "sqlite store ready")
	return &SQLiteStore{db: db}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// DB returns the underlying handle.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Append implements Store. A reused timestamp yields ErrDuplicateTimestamp.
func (s *SQLiteStore) Append(ctx context.Context, rec model.InterventionRecord) (err error) {
	defer observe(backendSQLite, "append", time.Now(), &err)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO interventions (timestamp, attendance, internal_marks, quiz_score, login_frequency,
			financial_issue, backlog_count, risk_level, intervention_taken, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp, rec.Attendance, rec.InternalMarks, rec.QuizScore, rec.LoginFrequency,
		rec.FinancialIssue, rec.BacklogCount, rec.RiskLevel, rec.InterventionTaken, rec.Outcome)
	if isSQLiteUnique(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateTimestamp, rec.Timestamp)
	}
	if err != nil {
		return fmt.Errorf("insert intervention: %w", err)
	}
	return nil
}

// UpdateOutcome implements Store.
func (s *SQLiteStore) UpdateOutcome(ctx context.Context, timestamp, outcome string) (err error) {
	defer observe(backendSQLite, "update_outcome", time.Now(), &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE interventions SET outcome = ?
		WHERE seq = (SELECT seq FROM interventions WHERE timestamp = ? ORDER BY seq LIMIT 1)`,
		outcome, timestamp)
	if err != nil {
		return fmt.Errorf("update outcome: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		var total int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM interventions`).Scan(&total); err != nil {
			return fmt.Errorf("count interventions: %w", err)
		}
		if total == 0 {
			return ErrStoreNotFound
		}
		return ErrRecordNotFound
	}
	return tx.Commit()
}

// All implements Store.
func (s *SQLiteStore) All(ctx context.Context) (_ []model.InterventionRecord, err error) {
	defer observe(backendSQLite, "read_all", time.Now(), &err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, attendance, internal_marks, quiz_score, login_frequency,
			financial_issue, backlog_count, risk_level, intervention_taken, outcome
		FROM interventions ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query interventions: %w", err)
	}
	defer rows.Close()

	out := []model.InterventionRecord{}
	for rows.Next() {
		var r model.InterventionRecord
		if err := rows.Scan(&r.Timestamp, &r.Attendance, &r.InternalMarks, &r.QuizScore, &r.LoginFrequency,
			&r.FinancialIssue, &r.BacklogCount, &r.RiskLevel, &r.InterventionTaken, &r.Outcome); err != nil {
			return nil, fmt.Errorf("scan intervention: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func isSQLiteUnique(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
