package models

import (
	"testing"
	"time"
)

func TestRunFinish(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	run := &ScrapeRun{ZipCode: "90210", Status: RunStatusRunning}
	run.Finish(&ScrapeResult{
		ID:              "abc",
		Success:         true,
		Count:           2,
		CaptchaDetected: true,
		CaptchaBypassed: true,
		Bypass:          &BypassSummary{Strategy: "timed_hold"},
	}, at)

	if run.Status != RunStatusCompleted {
		t.Errorf("expected completed, got %s", run.Status)
	}
	if run.FinishedAt == nil || !run.FinishedAt.Equal(at) {
		t.Errorf("expected finished at %v, got %v", at, run.FinishedAt)
	}
	if run.Strategy != "timed_hold" || run.ResultID != "abc" || run.ListingsFound != 2 {
		t.Errorf("unexpected run %+v", run)
	}

	failed := &ScrapeRun{Status: RunStatusRunning}
	failed.Finish(&ScrapeResult{Error: "blocked"}, at)
	if failed.Status != RunStatusFailed || failed.ErrorsCount != 1 {
		t.Errorf("expected failed run with one error, got %+v", failed)
	}
}

func TestResultSummary(t *testing.T) {
	res := &ScrapeResult{ID: "x", ZipCode: "10001", Count: 3, Bypass: &BypassSummary{Strategy: "slider"}}
	s := res.Summary()
	if s.ID != "x" || s.ZipCode != "10001" || s.Count != 3 || s.Strategy != "slider" {
		t.Errorf("unexpected summary %+v", s)
	}
}
