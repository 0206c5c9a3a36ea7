package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fsbo_scrooper/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS scrape_results (
		id UUID PRIMARY KEY,
		zip_code TEXT NOT NULL,
		success BOOLEAN NOT NULL DEFAULT FALSE,
		count INTEGER NOT NULL DEFAULT 0,
		captcha_detected BOOLEAN NOT NULL DEFAULT FALSE,
		captcha_bypassed BOOLEAN NOT NULL DEFAULT FALSE,
		strategy TEXT,
		document JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS bypass_attempts (
		id BIGSERIAL PRIMARY KEY,
		result_id UUID NOT NULL REFERENCES scrape_results(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		strategy TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		elapsed_ms BIGINT NOT NULL,
		detail TEXT,
		error TEXT
	);

	CREATE TABLE IF NOT EXISTS scrape_runs (
		id BIGSERIAL PRIMARY KEY,
		site_id TEXT,
		zip_code TEXT,
		url_type TEXT,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ,
		status TEXT NOT NULL,
		listings_found INTEGER NOT NULL DEFAULT 0,
		captcha_detected BOOLEAN NOT NULL DEFAULT FALSE,
		captcha_bypassed BOOLEAN NOT NULL DEFAULT FALSE,
		strategy TEXT,
		result_id UUID,
		errors_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS scrape_logs (
		id BIGSERIAL PRIMARY KEY,
		run_id BIGINT,
		timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		zip_code TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_results_created ON scrape_results(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_attempts_result ON bypass_attempts(result_id, position);
	`)
	return err
}

// =============================================================================
// Runs
// =============================================================================

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.ScrapeRun) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO scrape_runs (site_id, zip_code, url_type, started_at, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		run.SiteID, run.ZipCode, run.URLType, run.StartedAt, string(run.Status),
	).Scan(&id)
	return id, err
}

func (s *PostgresStore) FinishRun(ctx context.Context, run *models.ScrapeRun) error {
	var resultID *uuid.UUID
	if id, err := uuid.Parse(run.ResultID); err == nil {
		resultID = &id
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE scrape_runs SET
			finished_at = $2, status = $3, listings_found = $4, captcha_detected = $5,
			captcha_bypassed = $6, strategy = $7, result_id = $8, errors_count = $9
		WHERE id = $1`,
		run.ID, run.FinishedAt, string(run.Status), run.ListingsFound, run.CaptchaDetected,
		run.CaptchaBypassed, run.Strategy, resultID, run.ErrorsCount,
	)
	return err
}

// =============================================================================
// Results
// =============================================================================

func (s *PostgresStore) SaveResult(ctx context.Context, res *models.ScrapeResult) (string, error) {
	id := uuid.New()
	res.ID = id.String()
	if res.Timestamp.IsZero() {
		res.Timestamp = time.Now().UTC()
	}
	doc, err := json.Marshal(res)
	if err != nil {
		return "", err
	}

	sum := res.Summary()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO scrape_results (id, zip_code, success, count, captcha_detected, captcha_bypassed, strategy, document, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, sum.ZipCode, sum.Success, sum.Count, sum.CaptchaDetected, sum.CaptchaBypassed,
		sum.Strategy, doc, sum.CreatedAt,
	)
	if err != nil {
		return "", err
	}
	return res.ID, nil
}

func (s *PostgresStore) GetResult(ctx context.Context, id string) (*models.ScrapeResult, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var doc []byte
	err = s.pool.QueryRow(ctx, `SELECT document FROM scrape_results WHERE id = $1`, uid).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var res models.ScrapeResult
	if err := json.Unmarshal(doc, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *PostgresStore) ListResults(ctx context.Context, limit int) ([]models.ResultSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, zip_code, success, count, captcha_detected, captcha_bypassed, COALESCE(strategy, ''), created_at
		FROM scrape_results ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ResultSummary
	for rows.Next() {
		var r models.ResultSummary
		if err := rows.Scan(&r.ID, &r.ZipCode, &r.Success, &r.Count, &r.CaptchaDetected,
			&r.CaptchaBypassed, &r.Strategy, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveAttempts(ctx context.Context, resultID string, attempts []models.BypassAttempt) error {
	if len(attempts) == 0 {
		return nil
	}
	uid, err := uuid.Parse(resultID)
	if err != nil {
		return fmt.Errorf("result id: %w", err)
	}

	batch := &pgx.Batch{}
	for i, a := range attempts {
		batch.Queue(`
			INSERT INTO bypass_attempts (result_id, position, strategy, success, elapsed_ms, detail, error)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uid, i+1, a.Strategy, a.Success, a.ElapsedMS, a.Detail, a.Error)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

// =============================================================================
// Logs
// =============================================================================

func (s *PostgresStore) Log(ctx context.Context, runID *int64, level models.LogLevel, message, zipCode string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scrape_logs (run_id, level, message, zip_code)
		VALUES ($1, $2, $3, $4)`,
		runID, string(level), message, zipCode,
	)
	return err
}
