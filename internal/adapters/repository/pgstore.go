package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/dropwatch/internal/domain/model"
)

const (
	backendPostgres   = "postgres"
	pgUniqueViolation = "23505"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS interventions (
	seq                BIGSERIAL PRIMARY KEY,
	timestamp          TEXT             NOT NULL UNIQUE,
	attendance         DOUBLE PRECISION NOT NULL,
	internal_marks     DOUBLE PRECISION NOT NULL,
	quiz_score         DOUBLE PRECISION NOT NULL,
	login_frequency    DOUBLE PRECISION NOT NULL,
	financial_issue    INTEGER          NOT NULL,
	backlog_count      INTEGER          NOT NULL,
	risk_level         TEXT             NOT NULL,
	intervention_taken TEXT             NOT NULL,
	outcome            TEXT             NOT NULL DEFAULT ''
)`

// PostgresStore keeps the log in a Postgres table through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// OpenPostgres connects, pings and ensures the schema.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	o := newOptions(opts)

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = o.maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	o.log.Info(ctx, "postgres store ready")
	return &PostgresStore{pool: pool}, nil
}

// Pool returns the underlying pool.
func (s *PostgresStore) Pool() *pgxpool.Pool { return s.pool }

// Append implements Store. A reused timestamp yields ErrDuplicateTimestamp.
func (s *PostgresStore) Append(ctx context.Context, rec model.InterventionRecord) (err error) {
	defer observe(backendPostgres, "append", time.Now(), &err)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO interventions (timestamp, attendance, internal_marks, quiz_score, login_frequency,
			financial_issue, backlog_count, risk_level, intervention_taken, outcome)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.Timestamp, rec.Attendance, rec.InternalMarks, rec.QuizScore, rec.LoginFrequency,
		rec.FinancialIssue, rec.BacklogCount, rec.RiskLevel, rec.InterventionTaken, rec.Outcome)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicateTimestamp, rec.Timestamp)
	}
	if err != nil {
		return fmt.Errorf("insert intervention: %w", err)
	}
	return nil
}

// UpdateOutcome implements Store.
func (s *PostgresStore) UpdateOutcome(ctx context.Context, timestamp, outcome string) (err error) {
	defer observe(backendPostgres, "update_outcome", time.Now(), &err)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE interventions SET outcome = $1
		WHERE seq = (SELECT seq FROM interventions WHERE timestamp = $2 ORDER BY seq LIMIT 1)`,
		outcome, timestamp)
	if err != nil {
		return fmt.Errorf("update outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM interventions)`).Scan(&exists); err != nil {
			return fmt.Errorf("probe interventions: %w", err)
		}
		if !exists {
			return ErrStoreNotFound
		}
		return ErrRecordNotFound
	}
	return tx.Commit(ctx)
}

// All implements Store.
func (s *PostgresStore) All(ctx context.Context) (_ []model.InterventionRecord, err error) {
	defer observe(backendPostgres, "read_all", time.Now(), &err)

	rows, err := s.pool.Query(ctx, `
		SELECT timestamp, attendance, internal_marks, quiz_score, login_frequency,
			financial_issue, backlog_count, risk_level, intervention_taken, outcome
		FROM interventions ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query interventions: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("scan interventions: %w", err)
	}
	if out == nil {
		out = []model.InterventionRecord{}
	}
	return out, nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanRecord(row pgx.CollectableRow) (model.InterventionRecord, error) {
	var r model.InterventionRecord
	var financial, backlog int32
	err := row.Scan(&r.Timestamp, &r.Attendance, &r.InternalMarks, &r.QuizScore, &r.LoginFrequency,
		&financial, &backlog, &r.RiskLevel, &r.InterventionTaken, &r.Outcome)
	r.FinancialIssue, r.BacklogCount = int(financial), int(backlog)
	return r, err
}
