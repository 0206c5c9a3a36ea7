package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SITES_DIR", filepath.Join(t.TempDir(), "missing"))
	t.Setenv("PORT", "")
	t.Setenv("HEADLESS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 5001 {
		t.Fatalf("port = %d, want 5001", cfg.Server.Port)
	}
	if !cfg.Browser.Headless {
		t.Fatalf("expected headless by default")
	}
	if cfg.Browser.NavigationTimeout != 60*time.Second {
		t.Fatalf("navigation timeout = %v", cfg.Browser.NavigationTimeout)
	}
	site := cfg.Site()
	if site == nil || site.ID != "zillow" {
		t.Fatalf("expected built-in zillow site, got %+v", site)
	}
	if len(site.URLTemplates["fsbo"]) == 0 {
		t.Fatalf("expected fsbo templates")
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("SITES_DIR", t.TempDir())
	t.Setenv("PORT", "8080")
	t.Setenv("HEADLESS", "false")
	t.Setenv("SCRAPE_ZIPS", "90210, 10001 ,,")
	t.Setenv("ANTICAPTCHA_POLL", "500ms")
	t.Setenv("USE_PROXY", "true")
	t.Setenv("PROXY_HOST", "proxy.local")
	t.Setenv("PROXY_PORT", "8000")
	t.Setenv("PROXY_USERNAME", "u")
	t.Setenv("PROXY_PASSWORD", "p")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 || cfg.Browser.Headless {
		t.Fatalf("env not applied: %+v %+v", cfg.Server, cfg.Browser)
	}
	if len(cfg.Scheduler.ZipCodes) != 2 || cfg.Scheduler.ZipCodes[1] != "10001" {
		t.Fatalf("zip codes = %v", cfg.Scheduler.ZipCodes)
	}
	if cfg.Solver.PollInterval != 500*time.Millisecond {
		t.Fatalf("poll interval = %v", cfg.Solver.PollInterval)
	}
	if got := cfg.Proxy.Server(); got != "http://proxy.local:8000" {
		t.Fatalf("proxy server = %q", got)
	}
	if got := cfg.Proxy.URL(); got != "http://u:p@proxy.local:8000" {
		t.Fatalf("proxy url = %q", got)
	}
}

func TestSiteFileOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	data := []byte("id: zillow\nname: Override\nurl_templates:\n  simple: [\"https://example.test/{zip}\"]\n")
	if err := os.WriteFile(filepath.Join(dir, "zillow.yaml"), data, 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SITES_DIR", dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Site().Name != "Override" {
		t.Fatalf("site name = %q, want Override", cfg.Site().Name)
	}
	if cfg.Site().DefaultURLType != "simple" {
		t.Fatalf("default url type = %q", cfg.Site().DefaultURLType)
	}
}

func TestParseSiteRejectsMissingTemplates(t *testing.T) {
	if _, err := ParseSite([]byte("id: broken\n")); err == nil {
		t.Fatalf("expected error for site without templates")
	}
}
