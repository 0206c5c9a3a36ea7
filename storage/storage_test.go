package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fsbo_scrooper/config"
	"fsbo_scrooper/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteResultRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	res := &models.ScrapeResult{
		Success:         true,
		ZipCode:         "90210",
		Count:           1,
		Listings:        []models.Listing{{Address: "1012 N Beverly Dr", Price: "$4,995,000"}},
		CaptchaDetected: true,
		CaptchaBypassed: true,
		Bypass:          &models.BypassSummary{Outcome: "resolved", Strategy: "timed_hold"},
		Timestamp:       time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	id, err := store.SaveResult(ctx, res)
	if err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated id")
	}

	got, err := store.GetResult(ctx, id)
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if got.ZipCode != "90210" || len(got.Listings) != 1 || got.Bypass.Strategy != "timed_hold" {
		t.Errorf("unexpected result %+v", got)
	}

	list, err := store.ListResults(ctx, 10)
	if err != nil {
		t.Fatalf("ListResults failed: %v", err)
	}
	if len(list) != 1 || list[0].Strategy != "timed_hold" || !list[0].CaptchaBypassed {
		t.Errorf("unexpected history %+v", list)
	}

	if _, err := store.GetResult(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteAttemptsKeepOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	id, err := store.SaveResult(ctx, &models.ScrapeResult{ZipCode: "10001"})
	if err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}
	attempts := []models.BypassAttempt{
		{Strategy: "remote_solve", Error: "remote solver not configured"},
		{Strategy: "scored_candidates", Success: true, ElapsedMS: 5400},
	}
	if err := store.SaveAttempts(ctx, id, attempts); err != nil {
		t.Fatalf("SaveAttempts failed: %v", err)
	}

	got, err := store.Attempts(ctx, id)
	if err != nil {
		t.Fatalf("Attempts failed: %v", err)
	}
	if len(got) != 2 || got[0].Strategy != "remote_solve" || !got[1].Success || got[1].ElapsedMS != 5400 {
		t.Errorf("unexpected attempts %+v", got)
	}
}

func TestSQLiteRunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	run := &models.ScrapeRun{SiteID: "zillow", ZipCode: "90210", StartedAt: time.Now(), Status: models.RunStatusRunning}
	id, err := store.CreateRun(ctx, run)
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	run.ID = id
	if err := store.Log(ctx, &id, models.LogLevelInfo, "starting", "90210"); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	run.Finish(&models.ScrapeResult{Success: true, Count: 4}, time.Now())
	if err := store.FinishRun(ctx, run); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	runs, err := store.Runs(ctx, 5)
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != models.RunStatusCompleted || runs[0].ListingsFound != 4 || runs[0].FinishedAt == nil {
		t.Errorf("unexpected runs %+v", runs)
	}
}

func TestOpenDrivers(t *testing.T) {
	store, err := Open(context.Background(), config.StorageConfig{Driver: "none"})
	if err != nil {
		t.Fatalf("Open(none) failed: %v", err)
	}
	if _, ok := store.(NopStore); !ok {
		t.Errorf("expected NopStore, got %T", store)
	}

	if _, err := Open(context.Background(), config.StorageConfig{Driver: "postgres"}); err == nil {
		t.Error("expected error for postgres without url")
	}
	if _, err := Open(context.Background(), config.StorageConfig{Driver: "mongo"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestLocalArtifacts(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	path, err := LocalArtifacts{Dir: dir}.Save(context.Background(), "90210", []byte("png"), at)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	want := filepath.Join(dir, "artifacts", "90210", "20240301T123000Z.png")
	if path != want {
		t.Errorf("path = %s, want %s", path, want)
	}
	if data, err := os.ReadFile(path); err != nil || string(data) != "png" {
		t.Errorf("unexpected file content %q (%v)", data, err)
	}
}

func TestPublicURL(t *testing.T) {
	key := "artifacts/90210/x.png"
	tests := []struct {
		cfg  config.S3Config
		want string
	}{
		{config.S3Config{Bucket: "b", Region: "us-east-1"}, "https://b.s3.us-east-1.amazonaws.com/" + key},
		{config.S3Config{Bucket: "b", Endpoint: "https://nyc3.digitaloceanspaces.com"}, "https://b.nyc3.digitaloceanspaces.com/" + key},
		{config.S3Config{Bucket: "b", Endpoint: "http://localhost:9000/"}, "http://localhost:9000/b/" + key},
	}
	for _, tt := range tests {
		if got := PublicURL(tt.cfg, key); got != tt.want {
			t.Errorf("PublicURL(%+v) = %s, want %s", tt.cfg, got, tt.want)
		}
	}
}
