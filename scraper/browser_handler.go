package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"fsbo_scrooper/browser"
	"fsbo_scrooper/bypass"
	"fsbo_scrooper/config"
	"fsbo_scrooper/fingerprint"
	"fsbo_scrooper/models"
	"fsbo_scrooper/storage"
)

var ErrNotBypassed = errors.New("challenge not bypassed")

// PageSession is a browser tab the handler can drive end to end.
type PageSession interface {
	bypass.Session
	fingerprint.Target
	Navigate(ctx context.Context, url string) (int, error)
	HTML(ctx context.Context) (string, error)
	Close() error
}

// SessionOpener hands out fresh tabs shaped by a profile.
type SessionOpener interface {
	Open(ctx context.Context, profile *fingerprint.Profile) (PageSession, error)
}

// Bypasser clears a challenge on a session.
type Bypasser interface {
	Bypass(ctx context.Context, s bypass.Session) bypass.Report
}

type providerOpener struct {
	p *browser.Provider
}

func (o providerOpener) Open(ctx context.Context, profile *fingerprint.Profile) (PageSession, error) {
	s, err := o.p.Open(ctx, profile)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// FromProvider adapts a playwright provider.
func FromProvider(p *browser.Provider) SessionOpener {
	return providerOpener{p: p}
}

type BrowserOptions struct {
	Opener      SessionOpener
	Bypasser    Bypasser
	Conditioner *fingerprint.Conditioner
	// Warmup runs after navigation, before detection. Optional.
	Warmup    bypass.FallbackFunc
	Artifacts storage.ArtifactSink
	Logger    zerolog.Logger
	Now       func() time.Time
}

type BrowserHandler struct {
	cfg  *config.SiteConfig
	opts BrowserOptions
}

func NewBrowserHandler(cfg *config.SiteConfig, opts BrowserOptions) *BrowserHandler {
	if opts.Conditioner == nil {
		opts.Conditioner = fingerprint.NewConditioner(opts.Logger)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &BrowserHandler{cfg: cfg, opts: opts}
}

func (h *BrowserHandler) ID() string {
	return h.cfg.ID
}

// Scrape opens a fresh session, clears any challenge and reads the listing
// cards. Challenge and navigation failures are reported in the result; the
// error return is reserved for invalid requests.
func (h *BrowserHandler) Scrape(ctx context.Context, req models.ScrapeRequest) (*models.ScrapeResult, error) {
	target, urlType, err := BuildURL(h.cfg, req.ZipCode, req.URLType)
	if err != nil {
		return nil, err
	}

	logger := h.opts.Logger.With().Str("zip", req.ZipCode).Str("url_type", urlType).Logger()
	result := &models.ScrapeResult{
		ZipCode:   req.ZipCode,
		URLType:   urlType,
		URL:       target,
		Listings:  []models.Listing{},
		Timestamp: h.opts.Now().UTC(),
	}

	profile := fingerprint.NewProfile(nil)
	result.Profile = profile.String()

	sess, err := h.opts.Opener.Open(ctx, profile)
	if err != nil {
		return h.fail(result, fmt.Errorf("open browser: %w", err)), nil
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Debug().Err(err).Msg("Session close failed")
		}
	}()

	report := h.opts.Conditioner.Condition(ctx, sess, profile, fingerprint.Base(profile))
	if !report.OK() {
		logger.Warn().Interface("failed", report.Failed).Msg("Some overrides were not applied")
	}
	if ref, ok := h.cfg.Referers[urlType]; ok {
		headers := fingerprint.Headers(profile)
		headers["Referer"] = ref
		if err := sess.SetExtraHTTPHeaders(ctx, headers); err != nil {
			logger.Debug().Err(err).Msg("Referer header not set")
		}
	}

	logger.Info().Str("url", target).Msg("Navigating")
	status, err := sess.Navigate(ctx, target)
	if err != nil {
		return h.fail(result, err), nil
	}
	logger.Debug().Int("status", status).Msg("Page loaded")

	snap, err := sess.Snapshot(ctx)
	if err != nil {
		return h.fail(result, fmt.Errorf("read page: %w", err)), nil
	}
	if marker, bad := browser.DetectProxyError(snap.Title(), snap.BodyText()); bad {
		return h.fail(result, fmt.Errorf("proxy error: %s", marker)), nil
	}

	if h.opts.Warmup != nil {
		if err := h.opts.Warmup(ctx, sess); err != nil {
			logger.Debug().Err(err).Msg("Warmup interrupted")
		}
	}

	br := h.opts.Bypasser.Bypass(ctx, sess)
	result.Bypass = summarize(br)
	result.CaptchaDetected = br.Verdict.Present()
	result.CaptchaBypassed = result.CaptchaDetected && br.Success()

	if !br.Success() {
		result = h.fail(result, ErrNotBypassed)
		result.Artifact = h.saveArtifact(ctx, sess, req.ZipCode, logger)
		return result, nil
	}

	html, err := sess.HTML(ctx)
	if err != nil {
		return h.fail(result, fmt.Errorf("read listings: %w", err)), nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return h.fail(result, fmt.Errorf("parse listings: %w", err)), nil
	}

	result.Listings = ExtractListings(doc, h.cfg.Selectors, h.cfg.BaseURL)
	if result.Listings == nil {
		result.Listings = []models.Listing{}
	}
	result.Count = len(result.Listings)
	result.Success = true

	logger.Info().
		Int("listings", result.Count).
		Bool("captcha", result.CaptchaDetected).
		Str("strategy", br.Strategy).
		Msg("Scrape finished")
	return result, nil
}

func (h *BrowserHandler) fail(result *models.ScrapeResult, err error) *models.ScrapeResult {
	result.Success = false
	result.Error = err.Error()
	return result
}

func (h *BrowserHandler) saveArtifact(ctx context.Context, sess PageSession, zip string, logger zerolog.Logger) string {
	if h.opts.Artifacts == nil {
		return ""
	}
	png, err := sess.Screenshot(ctx, nil)
	if err != nil {
		logger.Debug().Err(err).Msg("Failure screenshot unavailable")
		return ""
	}
	loc, err := h.opts.Artifacts.Save(ctx, zip, png, h.opts.Now())
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to store artifact")
		return ""
	}
	logger.Info().Str("artifact", loc).Msg("Saved failure screenshot")
	return loc
}

func summarize(r bypass.Report) *models.BypassSummary {
	s := &models.BypassSummary{
		Outcome:   string(r.Outcome),
		Strategy:  r.Strategy,
		Signals:   r.Verdict.SignalValues(),
		Variant:   string(r.Verdict.Variant),
		Fallback:  r.Fallback,
		ElapsedMS: r.Elapsed.Milliseconds(),
	}
	for _, a := range r.Attempts {
		s.Attempts = append(s.Attempts, models.BypassAttempt{
			Strategy:  a.Strategy,
			Success:   a.Success,
			ElapsedMS: a.Elapsed.Milliseconds(),
			Detail:    a.Detail,
			Error:     a.Error,
		})
	}
	return s
}
