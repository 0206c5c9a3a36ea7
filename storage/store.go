package storage

import (
	"context"
	"errors"
	"fmt"

	"fsbo_scrooper/config"
	"fsbo_scrooper/models"
)

var ErrNotFound = errors.New("not found")

// Store persists scrape runs, result documents and their bypass attempts.
type Store interface {
	CreateRun(ctx context.Context, run *models.ScrapeRun) (int64, error)
	FinishRun(ctx context.Context, run *models.ScrapeRun) error
	// SaveResult stores the document and returns its generated id.
	SaveResult(ctx context.Context, res *models.ScrapeResult) (string, error)
	GetResult(ctx context.Context, id string) (*models.ScrapeResult, error)
	ListResults(ctx context.Context, limit int) ([]models.ResultSummary, error)
	SaveAttempts(ctx context.Context, resultID string, attempts []models.BypassAttempt) error
	Log(ctx context.Context, runID *int64, level models.LogLevel, message, zipCode string) error
	Close() error
}

// Open picks the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLiteStore(cfg.DBPath)
	case "postgres":
		if cfg.DBURL == "" {
			return nil, fmt.Errorf("postgres storage needs DATABASE_URL")
		}
		return NewPostgresStore(ctx, cfg.DBURL)
	case "none":
		return NopStore{}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// NopStore discards everything.
type NopStore struct{}

func (NopStore) CreateRun(context.Context, *models.ScrapeRun) (int64, error) { return 0, nil }
func (NopStore) FinishRun(context.Context, *models.ScrapeRun) error          { return nil }
func (NopStore) SaveResult(context.Context, *models.ScrapeResult) (string, error) {
	return "", nil
}
func (NopStore) GetResult(context.Context, string) (*models.ScrapeResult, error) {
	return nil, ErrNotFound
}
func (NopStore) ListResults(context.Context, int) ([]models.ResultSummary, error) { return nil, nil }
func (NopStore) SaveAttempts(context.Context, string, []models.BypassAttempt) error {
	return nil
}
func (NopStore) Log(context.Context, *int64, models.LogLevel, string, string) error { return nil }
func (NopStore) Close() error                                                      { return nil }
