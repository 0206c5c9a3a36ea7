package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ScrapeRun is the bookkeeping record for one scrape of one ZIP code.
type ScrapeRun struct {
	ID              int64      `json:"id" db:"id"`
	SiteID          string     `json:"site_id" db:"site_id"`
	ZipCode         string     `json:"zip_code" db:"zip_code"`
	URLType         string     `json:"url_type" db:"url_type"`
	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	FinishedAt      *time.Time `json:"finished_at" db:"finished_at"`
	Status          RunStatus  `json:"status" db:"status"`
	ListingsFound   int        `json:"listings_found" db:"listings_found"`
	CaptchaDetected bool       `json:"captcha_detected" db:"captcha_detected"`
	CaptchaBypassed bool       `json:"captcha_bypassed" db:"captcha_bypassed"`
	Strategy        string     `json:"strategy" db:"strategy"`
	ResultID        string     `json:"result_id" db:"result_id"`
	ErrorsCount     int        `json:"errors_count" db:"errors_count"`
}

// Finish fills the outcome fields from a result.
func (r *ScrapeRun) Finish(res *ScrapeResult, at time.Time) {
	r.FinishedAt = &at
	r.ListingsFound = res.Count
	r.CaptchaDetected = res.CaptchaDetected
	r.CaptchaBypassed = res.CaptchaBypassed
	r.ResultID = res.ID
	if res.Bypass != nil {
		r.Strategy = res.Bypass.Strategy
	}
	if res.Success {
		r.Status = RunStatusCompleted
	} else {
		r.Status = RunStatusFailed
		r.ErrorsCount++
	}
}
