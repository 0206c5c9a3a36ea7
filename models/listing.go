package models

import (
	"time"
)

// Listing is one property card read off a search results page.
type Listing struct {
	Fingerprint string `json:"fingerprint"`
	Address     string `json:"address"`
	Price       string `json:"price"`
	PriceValue  int    `json:"priceValue,omitempty"`
	Details     string `json:"details,omitempty"`
	Beds        int    `json:"beds,omitempty"`
	Baths       int    `json:"baths,omitempty"`
	SqFt        int    `json:"sqft,omitempty"`
	Link        string `json:"link,omitempty"`
	FSBO        bool   `json:"fsbo"`
}

// ScrapeRequest names what to scrape.
type ScrapeRequest struct {
	ZipCode string `json:"zipCode"`
	URLType string `json:"urlType,omitempty"`
}

// BypassAttempt is the stored form of one strategy attempt.
type BypassAttempt struct {
	Strategy  string `json:"strategy" db:"strategy"`
	Success   bool   `json:"success" db:"success"`
	ElapsedMS int64  `json:"elapsedMs" db:"elapsed_ms"`
	Detail    string `json:"detail,omitempty" db:"detail"`
	Error     string `json:"error,omitempty" db:"error"`
}

// BypassSummary describes what the challenge bypass did during a scrape.
type BypassSummary struct {
	Outcome   string          `json:"outcome"`
	Strategy  string          `json:"strategy,omitempty"`
	Signals   []string        `json:"signals,omitempty"`
	Variant   string          `json:"variant,omitempty"`
	Fallback  bool            `json:"fallback"`
	ElapsedMS int64           `json:"elapsedMs"`
	Attempts  []BypassAttempt `json:"attempts,omitempty"`
}

// ScrapeResult is the document returned to callers and persisted.
type ScrapeResult struct {
	ID              string         `json:"id,omitempty"`
	Success         bool           `json:"success"`
	ZipCode         string         `json:"zipCode"`
	URLType         string         `json:"urlType"`
	URL             string         `json:"url"`
	Count           int            `json:"count"`
	Listings        []Listing      `json:"listings"`
	CaptchaDetected bool           `json:"captchaDetected"`
	CaptchaBypassed bool           `json:"captchaBypassed"`
	Bypass          *BypassSummary `json:"bypass,omitempty"`
	Profile         string         `json:"profile,omitempty"`
	Artifact        string         `json:"artifact,omitempty"`
	Error           string         `json:"error,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
}

// ResultSummary is the history row for one stored result.
type ResultSummary struct {
	ID              string    `json:"id" db:"id"`
	ZipCode         string    `json:"zipCode" db:"zip_code"`
	Success         bool      `json:"success" db:"success"`
	Count           int       `json:"count" db:"count"`
	CaptchaDetected bool      `json:"captchaDetected" db:"captcha_detected"`
	CaptchaBypassed bool      `json:"captchaBypassed" db:"captcha_bypassed"`
	Strategy        string    `json:"strategy,omitempty" db:"strategy"`
	CreatedAt       time.Time `json:"createdAt" db:"created_at"`
}

// Summary derives the history row from a full result.
func (r *ScrapeResult) Summary() ResultSummary {
	s := ResultSummary{
		ID:              r.ID,
		ZipCode:         r.ZipCode,
		Success:         r.Success,
		Count:           r.Count,
		CaptchaDetected: r.CaptchaDetected,
		CaptchaBypassed: r.CaptchaBypassed,
		CreatedAt:       r.Timestamp,
	}
	if r.Bypass != nil {
		s.Strategy = r.Bypass.Strategy
	}
	return s
}
