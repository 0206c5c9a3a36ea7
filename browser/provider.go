// Package browser launches Chromium through playwright and exposes one tab
// as a bypass session.
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"

	"fsbo_scrooper/config"
	"fsbo_scrooper/fingerprint"
)

// Provider owns the playwright driver and one browser process. Sessions are
// isolated browser contexts on that process.
type Provider struct {
	cfg    config.BrowserConfig
	proxy  config.ProxyConfig
	logger zerolog.Logger

	mu       sync.Mutex
	pw       *playwright.Playwright
	browser  playwright.Browser
	launched bool
}

func NewProvider(cfg config.BrowserConfig, proxy config.ProxyConfig, logger zerolog.Logger) *Provider {
	return &Provider{cfg: cfg, proxy: proxy, logger: logger}
}

// ensureBrowser starts the driver and launches Chromium on first use.
func (p *Provider) ensureBrowser(profile *fingerprint.Profile) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.launched {
		return nil
	}

	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	opts := playwright.BrowserTypeLaunchOptions{
		Headless:          playwright.Bool(p.cfg.Headless),
		Args:              fingerprint.LaunchArgs(profile),
		IgnoreDefaultArgs: []string{"--enable-automation"},
	}
	if p.cfg.ExecutablePath != "" {
		opts.ExecutablePath = playwright.String(p.cfg.ExecutablePath)
	}
	if server := p.proxy.Server(); server != "" {
		opts.Proxy = &playwright.Proxy{Server: server}
		if p.proxy.Username != "" {
			opts.Proxy.Username = playwright.String(p.proxy.Username)
			opts.Proxy.Password = playwright.String(p.proxy.Password)
		}
		p.logger.Info().Str("proxy", server).Msg("Browser will use proxy")
	}

	browser, err := pw.Chromium.Launch(opts)
	if err != nil {
		pw.Stop()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	p.pw = pw
	p.browser = browser
	p.launched = true
	p.logger.Info().Bool("headless", p.cfg.Headless).Msg("Browser launched")
	return nil
}

// Open creates a fresh context shaped by profile and returns its only tab.
func (p *Provider) Open(ctx context.Context, profile *fingerprint.Profile) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if profile == nil {
		profile = fingerprint.NewProfile(nil)
	}
	if err := p.ensureBrowser(profile); err != nil {
		return nil, err
	}

	p.mu.Lock()
	browser := p.browser
	p.mu.Unlock()

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(profile.UserAgent),
		Locale:            playwright.String(profile.Locale),
		TimezoneId:        playwright.String(profile.TimezoneID),
		DeviceScaleFactor: playwright.Float(profile.DevicePixelRatio),
		Viewport:          &playwright.Size{Width: profile.ViewportWidth, Height: profile.ViewportHeight},
		Screen:            &playwright.Size{Width: profile.ScreenWidth, Height: profile.ScreenHeight},
		ExtraHttpHeaders:  fingerprint.Headers(profile),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	return newSession(bctx, page, profile, p.cfg, p.logger), nil
}

// Close shuts the browser and the driver down. The provider can be reused
// afterwards; the next Open relaunches.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	if p.browser != nil {
		if err := p.browser.Close(); err != nil {
			firstErr = err
		}
		p.browser = nil
	}
	if p.pw != nil {
		if err := p.pw.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.pw = nil
	}
	p.launched = false
	return firstErr
}
