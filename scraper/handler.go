package scraper

import (
	"context"

	"fsbo_scrooper/models"
)

// Handler scrapes one ZIP code of one site.
type Handler interface {
	ID() string
	Scrape(ctx context.Context, req models.ScrapeRequest) (*models.ScrapeResult, error)
}
