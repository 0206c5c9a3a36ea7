package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsbo_scrooper/config"
	"fsbo_scrooper/models"
	"fsbo_scrooper/solver"
	"fsbo_scrooper/storage"
)

type fakeScraper struct {
	calls []models.ScrapeRequest
	res   *models.ScrapeResult
	err   error
}

func (f *fakeScraper) Scrape(ctx context.Context, req models.ScrapeRequest) (*models.ScrapeResult, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	res := *f.res
	res.ZipCode = req.ZipCode
	return &res, nil
}

func (f *fakeScraper) Run(ctx context.Context, req models.ScrapeRequest) (*models.ScrapeResult, error) {
	res, err := f.Scrape(ctx, req)
	if res != nil {
		res.ID = "saved-1"
	}
	return res, err
}

func (f *fakeScraper) MarshalStatus() ([]byte, error) {
	return []byte(`{"paused":false}`), nil
}

type fakeStore struct {
	storage.NopStore
	results map[string]*models.ScrapeResult
	limit   int
}

func (f *fakeStore) GetResult(ctx context.Context, id string) (*models.ScrapeResult, error) {
	if r, ok := f.results[id]; ok {
		return r, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) ListResults(ctx context.Context, limit int) ([]models.ResultSummary, error) {
	f.limit = limit
	var out []models.ResultSummary
	for _, r := range f.results {
		out = append(out, r.Summary())
	}
	return out, nil
}

type fakeBalance struct {
	balance float64
	err     error
}

func (f fakeBalance) Balance(ctx context.Context) (float64, error) { return f.balance, f.err }

type fakeQueue struct {
	cmds []*models.Command
}

func (f *fakeQueue) Submit(cmd *models.Command) (int64, error) {
	f.cmds = append(f.cmds, cmd)
	return int64(len(f.cmds)), nil
}

var testNow = time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)

func okResult() *models.ScrapeResult {
	return &models.ScrapeResult{
		Success:         true,
		Count:           1,
		CaptchaDetected: true,
		CaptchaBypassed: true,
		Listings:        []models.Listing{{Address: "<b>1012 N Beverly Dr</b>", Price: "$4,995,000"}},
		Bypass: &models.BypassSummary{
			Outcome:  "resolved",
			Strategy: "timed_hold",
			Attempts: []models.BypassAttempt{{Strategy: "remote_solve", Error: "<html><body>502 Bad Gateway</body></html>"}},
		},
	}
}

func newTestServer(cfg config.ServerConfig, sc *fakeScraper, opts Options) *Server {
	opts.Scraper = sc
	opts.Recorder = sc
	opts.Logger = zerolog.Nop()
	opts.Now = func() time.Time { return testNow }
	return NewServer(cfg, opts)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(config.ServerConfig{}, &fakeScraper{res: okResult()}, Options{})
	w := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "2024-05-02T12:00:00Z", body["timestamp"])
}

func TestScrapeSanitizesResult(t *testing.T) {
	sc := &fakeScraper{res: okResult()}
	s := newTestServer(config.ServerConfig{}, sc, Options{})

	w := do(t, s, http.MethodGet, "/scrape?zip=90210&urlType=fsbo", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "<b>")
	assert.NotContains(t, w.Body.String(), "<html>")

	var res models.ScrapeResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "1012 N Beverly Dr", res.Listings[0].Address)
	assert.Equal(t, "502 Bad Gateway", res.Bypass.Attempts[0].Error)

	require.Len(t, sc.calls, 1)
	assert.Equal(t, models.ScrapeRequest{ZipCode: "90210", URLType: "fsbo"}, sc.calls[0])
}

func TestScrapeRejectsInvalidZip(t *testing.T) {
	sc := &fakeScraper{res: okResult()}
	s := newTestServer(config.ServerConfig{}, sc, Options{})

	for _, path := range []string{"/scrape", "/scrape?zip=abcde", "/api/bypass?zip=123"} {
		w := do(t, s, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Contains(t, decode(t, w)["example"], "zip=90210")
	}
	assert.Empty(t, sc.calls)
}

func TestScrapeFailureIsNotAnHTTPError(t *testing.T) {
	res := &models.ScrapeResult{CaptchaDetected: true, Error: "challenge not bypassed"}
	s := newTestServer(config.ServerConfig{}, &fakeScraper{res: res}, Options{})

	w := do(t, s, http.MethodGet, "/scrape?zip=90210", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, true, body["captchaDetected"])
}

func TestScrapeInfrastructureError(t *testing.T) {
	s := newTestServer(config.ServerConfig{}, &fakeScraper{err: errors.New("db down")}, Options{})
	w := do(t, s, http.MethodGet, "/scrape?zip=90210", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := config.ServerConfig{RateLimitRPS: 0.001, RateLimitBurst: 2}
	s := newTestServer(cfg, &fakeScraper{res: okResult()}, Options{})

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/scrape?zip=90210", "").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/scrape?zip=90210", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, s, http.MethodGet, "/scrape?zip=90210", "").Code)

	// non-scrape routes are not throttled
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/health", "").Code)
}

func TestWebhook(t *testing.T) {
	s := newTestServer(config.ServerConfig{}, &fakeScraper{res: okResult()}, Options{})

	w := do(t, s, http.MethodPost, "/webhook/scrape", `{"zipCode":"90210"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "saved-1", body["savedId"])
	assert.Equal(t, "Scraped 1 listings", body["message"])
	assert.Len(t, body["listings"], 1)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/webhook/scrape", `{"zipCode":"9"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/webhook/scrape", `not json`).Code)
}

func TestHistoryAndListing(t *testing.T) {
	stored := okResult()
	stored.ID = "abc"
	stored.ZipCode = "90210"
	store := &fakeStore{results: map[string]*models.ScrapeResult{"abc": stored}}
	s := newTestServer(config.ServerConfig{}, &fakeScraper{res: okResult()}, Options{Store: store})

	w := do(t, s, http.MethodGet, "/api/history?limit=5000", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxHistory, store.limit)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = do(t, s, http.MethodGet, "/api/listings/abc", "")
	require.Equal(t, http.StatusOK, w.Code)
	var res models.ScrapeResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "90210", res.ZipCode)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/listings/missing", "").Code)
}

func TestSolverStatus(t *testing.T) {
	tests := []struct {
		name       string
		checker    BalanceChecker
		code       int
		configured bool
	}{
		{"unset", nil, http.StatusOK, false},
		{"no key", fakeBalance{err: solver.ErrNoAPIKey}, http.StatusOK, false},
		{"balance", fakeBalance{balance: 12.5}, http.StatusOK, true},
		{"bad key", fakeBalance{err: solver.ErrInvalidKey}, http.StatusOK, true},
		{"upstream", fakeBalance{err: errors.New("dial tcp: refused")}, http.StatusBadGateway, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(config.ServerConfig{}, &fakeScraper{res: okResult()}, Options{Solver: tt.checker})
			w := do(t, s, http.MethodGet, "/anti-captcha-status", "")
			require.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.configured, decode(t, w)["configured"])
		})
	}
}

func TestCommands(t *testing.T) {
	q := &fakeQueue{}
	s := newTestServer(config.ServerConfig{}, &fakeScraper{res: okResult()}, Options{Commands: q})

	w := do(t, s, http.MethodPost, "/api/commands", `{"command":"scrape_zip","params":{"zipCode":"60601"}}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, q.cmds, 1)
	assert.Equal(t, models.CmdScrapeZip, q.cmds[0].Command)
	assert.JSONEq(t, `{"zipCode":"60601"}`, string(q.cmds[0].Params))

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/commands", `{"command":"reboot"}`).Code)

	w = do(t, s, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"paused":false}`, w.Body.String())
}

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "plain", sanitizeText("plain"))
	assert.Equal(t, "a b", sanitizeText("<p>a</p><p>b</p>"))
	assert.Equal(t, "x y", sanitizeText("x < y"))
	assert.Len(t, sanitizeText(strings.Repeat("a", 600)), maxErrorLen+3)
	assert.Nil(t, Sanitize(nil))
}

func TestSanitizeTextKeepsRunesWhole(t *testing.T) {
	out := sanitizeText(strings.Repeat("é", 400))
	assert.True(t, utf8.ValidString(out))
	assert.True(t, strings.HasSuffix(out, "é..."))
	assert.Len(t, out, maxErrorLen+3)

	out = sanitizeText("a" + strings.Repeat("€", 300))
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, maxErrorLen-1+3, len(out))
}
