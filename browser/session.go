package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	"fsbo_scrooper/bypass"
	"fsbo_scrooper/challenge"
	"fsbo_scrooper/config"
	"fsbo_scrooper/fingerprint"
	"fsbo_scrooper/motion"
)

// Session is one tab in its own browser context.
type Session struct {
	bctx    playwright.BrowserContext
	page    playwright.Page
	profile *fingerprint.Profile
	cfg     config.BrowserConfig
	logger  zerolog.Logger

	mu  sync.Mutex
	pos motion.Point
}

var (
	_ bypass.Session     = (*Session)(nil)
	_ fingerprint.Target = (*Session)(nil)
)

func newSession(bctx playwright.BrowserContext, page playwright.Page, profile *fingerprint.Profile, cfg config.BrowserConfig, logger zerolog.Logger) *Session {
	return &Session{
		bctx:    bctx,
		page:    page,
		profile: profile,
		cfg:     cfg,
		logger:  logger,
		pos: motion.Point{
			X: float64(profile.ViewportWidth) / 2,
			Y: float64(profile.ViewportHeight) / 2,
		},
	}
}

// Navigate loads url and waits for DOMContentLoaded. It returns the HTTP
// status of the main document, or 0 when there was no response.
func (s *Session) Navigate(ctx context.Context, url string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	timeout := s.cfg.NavigationTimeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout || timeout == 0 {
			timeout = left
		}
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	resp, err := s.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return 0, fmt.Errorf("navigate %s: %w", url, err)
	}
	if resp == nil {
		return 0, nil
	}
	return resp.Status(), nil
}

func (s *Session) URL() string { return s.page.URL() }

func (s *Session) Profile() *fingerprint.Profile { return s.profile }

// HTML returns the current serialized document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.page.Content()
}

// Snapshot captures title, visible text and markup for the detector.
func (s *Session) Snapshot(ctx context.Context) (challenge.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, err := s.page.Content()
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	title, err := s.page.Title()
	if err != nil {
		s.logger.Debug().Err(err).Msg("Title unavailable")
	}
	// innerText respects CSS visibility; the markup fallback does not.
	text, err := s.page.InnerText("body", playwright.PageInnerTextOptions{Timeout: playwright.Float(2000)})
	if err != nil {
		text = ""
	}
	return challenge.NewDocumentSnapshot(content, title, text)
}

func (s *Session) Candidates(ctx context.Context, selectors []string) ([]bypass.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(selectors) == 0 {
		return nil, nil
	}

	raw, err := s.page.Evaluate(candidatesJS, map[string]interface{}{
		"selectors": selectors,
		"limit":     maxCandidates,
	})
	if err != nil {
		return nil, fmt.Errorf("locate candidates: %w", err)
	}
	return decodeCandidates(raw)
}

func decodeCandidates(raw interface{}) ([]bypass.Candidate, error) {
	str, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected candidates payload %T", raw)
	}
	var out []bypass.Candidate
	if err := json.Unmarshal([]byte(str), &out); err != nil {
		return nil, fmt.Errorf("decode candidates: %w", err)
	}
	return out, nil
}

func (s *Session) Screenshot(ctx context.Context, clip *bypass.Box) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts := playwright.PageScreenshotOptions{Type: playwright.ScreenshotTypePng}
	if clip != nil {
		w, h := s.Viewport()
		c := clampBox(*clip, w, h)
		opts.Clip = &playwright.Rect{X: c.X, Y: c.Y, Width: c.Width, Height: c.Height}
	}
	return s.page.Screenshot(opts)
}

// clampBox keeps a clip rectangle inside the viewport.
func clampBox(b bypass.Box, w, h int) bypass.Box {
	if b.X < 0 {
		b.Width += b.X
		b.X = 0
	}
	if b.Y < 0 {
		b.Height += b.Y
		b.Y = 0
	}
	if w > 0 && b.X+b.Width > float64(w) {
		b.Width = float64(w) - b.X
	}
	if h > 0 && b.Y+b.Height > float64(h) {
		b.Height = float64(h) - b.Y
	}
	if b.Width < 1 {
		b.Width = 1
	}
	if b.Height < 1 {
		b.Height = 1
	}
	return b
}

func (s *Session) Viewport() (int, int) {
	if size := s.page.ViewportSize(); size != nil {
		return size.Width, size.Height
	}
	return s.profile.ViewportWidth, s.profile.ViewportHeight
}

func (s *Session) AddInitScript(ctx context.Context, script string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.page.AddInitScript(playwright.Script{Content: playwright.String(script)})
}

func (s *Session) Evaluate(ctx context.Context, script string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.page.Evaluate(script)
	return err
}

func (s *Session) SetViewport(ctx context.Context, w, h int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.page.SetViewportSize(w, h)
}

func (s *Session) SetExtraHTTPHeaders(ctx context.Context, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.page.SetExtraHTTPHeaders(headers)
}

func (s *Session) Position() motion.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

func (s *Session) MoveTo(ctx context.Context, x, y float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.page.Mouse().Move(x, y); err != nil {
		return err
	}
	s.mu.Lock()
	s.pos = motion.Point{X: x, Y: y}
	s.mu.Unlock()
	return nil
}

func (s *Session) Down(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.page.Mouse().Down()
}

// Up ignores ctx so a pressed button can always be released.
func (s *Session) Up(ctx context.Context) error {
	return s.page.Mouse().Up()
}

func (s *Session) Scroll(ctx context.Context, dy float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.page.Mouse().Wheel(0, dy)
}

func (s *Session) Type(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.page.Keyboard().Type(text, playwright.KeyboardTypeOptions{Delay: playwright.Float(80)})
}

// Close closes the tab and its context.
func (s *Session) Close() error {
	var firstErr error
	if err := s.page.Close(); err != nil {
		firstErr = err
	}
	if err := s.bctx.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
