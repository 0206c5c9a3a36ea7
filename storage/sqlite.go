package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"fsbo_scrooper/models"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scrape_results (
		id TEXT PRIMARY KEY,
		zip_code TEXT NOT NULL,
		success BOOLEAN,
		count INTEGER,
		captcha_detected BOOLEAN,
		captcha_bypassed BOOLEAN,
		strategy TEXT,
		document JSON,
		created_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS bypass_attempts (
		id INTEGER PRIMARY KEY,
		result_id TEXT NOT NULL,
		position INTEGER,
		strategy TEXT,
		success BOOLEAN,
		elapsed_ms INTEGER,
		detail TEXT,
		error TEXT,
		FOREIGN KEY (result_id) REFERENCES scrape_results(id)
	);

	CREATE TABLE IF NOT EXISTS scrape_runs (
		id INTEGER PRIMARY KEY,
		site_id TEXT,
		zip_code TEXT,
		url_type TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		listings_found INTEGER,
		captcha_detected BOOLEAN,
		captcha_bypassed BOOLEAN,
		strategy TEXT,
		result_id TEXT,
		errors_count INTEGER
	);

	CREATE TABLE IF NOT EXISTS scrape_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		zip_code TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_results_created ON scrape_results(created_at);
	CREATE INDEX IF NOT EXISTS idx_attempts_result ON bypass_attempts(result_id, position);
	CREATE INDEX IF NOT EXISTS idx_logs_run ON scrape_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON scrape_runs(status, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *models.ScrapeRun) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO scrape_runs (site_id, zip_code, url_type, started_at, status, listings_found, errors_count)
		VALUES (?, ?, ?, ?, ?, 0, 0)`,
		run.SiteID, run.ZipCode, run.URLType, run.StartedAt, run.Status)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *models.ScrapeRun) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scrape_runs SET finished_at = ?, status = ?, listings_found = ?, captcha_detected = ?,
			captcha_bypassed = ?, strategy = ?, result_id = ?, errors_count = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.ListingsFound, run.CaptchaDetected,
		run.CaptchaBypassed, run.Strategy, run.ResultID, run.ErrorsCount, run.ID)
	return err
}

func (s *SQLiteStore) SaveResult(ctx context.Context, res *models.ScrapeResult) (string, error) {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if res.Timestamp.IsZero() {
		res.Timestamp = time.Now().UTC()
	}
	doc, err := json.Marshal(res)
	if err != nil {
		return "", err
	}

	sum := res.Summary()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scrape_results (id, zip_code, success, count, captcha_detected, captcha_bypassed, strategy, document, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.ID, sum.ZipCode, sum.Success, sum.Count, sum.CaptchaDetected, sum.CaptchaBypassed,
		sum.Strategy, string(doc), sum.CreatedAt)
	if err != nil {
		return "", err
	}
	return res.ID, nil
}

func (s *SQLiteStore) GetResult(ctx context.Context, id string) (*models.ScrapeResult, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM scrape_results WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var res models.ScrapeResult
	if err := json.Unmarshal([]byte(doc), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *SQLiteStore) ListResults(ctx context.Context, limit int) ([]models.ResultSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, zip_code, success, count, captcha_detected, captcha_bypassed, COALESCE(strategy, ''), created_at
		FROM scrape_results ORDER BY created_at DESC LIMIT ?`, limit)
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

func (s *SQLiteStore) SaveAttempts(ctx context.Context, resultID string, attempts []models.BypassAttempt) error {
	if len(attempts) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bypass_attempts (result_id, position, strategy, success, elapsed_ms, detail, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, a := range attempts {
		if _, err := stmt.ExecContext(ctx, resultID, i+1, a.Strategy, a.Success, a.ElapsedMS, a.Detail, a.Error); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Attempts returns the stored attempts for a result in execution order.
func (s *SQLiteStore) Attempts(ctx context.Context, resultID string) ([]models.BypassAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT strategy, success, elapsed_ms, COALESCE(detail, ''), COALESCE(error, '')
		FROM bypass_attempts WHERE result_id = ? ORDER BY position`, resultID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.BypassAttempt
	for rows.Next() {
		var a models.BypassAttempt
		if err := rows.Scan(&a.Strategy, &a.Success, &a.ElapsedMS, &a.Detail, &a.Error); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Log(ctx context.Context, runID *int64, level models.LogLevel, message, zipCode string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scrape_logs (run_id, timestamp, level, message, zip_code)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now(), level, message, zipCode)
	return err
}

// Runs returns the most recent runs, newest first.
func (s *SQLiteStore) Runs(ctx context.Context, limit int) ([]models.ScrapeRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(site_id, ''), COALESCE(zip_code, ''), COALESCE(url_type, ''), started_at, finished_at,
			status, listings_found, COALESCE(captcha_detected, FALSE), COALESCE(captcha_bypassed, FALSE),
			COALESCE(strategy, ''), COALESCE(result_id, ''), errors_count
		FROM scrape_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ScrapeRun
	for rows.Next() {
		var r models.ScrapeRun
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.SiteID, &r.ZipCode, &r.URLType, &r.StartedAt, &finished,
			&r.Status, &r.ListingsFound, &r.CaptchaDetected, &r.CaptchaBypassed,
			&r.Strategy, &r.ResultID, &r.ErrorsCount); err != nil {
			return nil, err
		}
		if finished.Valid {
			r.FinishedAt = &finished.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
