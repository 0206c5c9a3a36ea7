package main

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"fsbo_scrooper/browser"
	"fsbo_scrooper/bypass"
	"fsbo_scrooper/challenge"
	"fsbo_scrooper/config"
	"fsbo_scrooper/fingerprint"
	"fsbo_scrooper/httputil"
	"fsbo_scrooper/logging"
	"fsbo_scrooper/motion"
	"fsbo_scrooper/scraper"
	"fsbo_scrooper/solver"
	"fsbo_scrooper/storage"
)

// app holds everything a command needs, built once from config.
type app struct {
	cfg          *config.Config
	logger       zerolog.Logger
	logFile      *logging.RotatingWriter
	clients      *httputil.Clients
	store        storage.Store
	solver       *solver.Client
	provider     *browser.Provider
	handler      *scraper.BrowserHandler
	orchestrator *scraper.Orchestrator
}

func loadConfig() (*config.Config, *logging.RotatingWriter, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logFile, err := logging.Setup(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		lg := logging.Component("main")
		lg.Warn().Err(err).Msg("Could not set up file logging")
	}
	return cfg, logFile, nil
}

func newSolver(cfg *config.Config, clients *httputil.Clients) *solver.Client {
	return solver.New(solver.Options{
		APIKey:       cfg.Solver.APIKey,
		BaseURL:      cfg.Solver.BaseURL,
		SoftID:       cfg.Solver.SoftID,
		PollInterval: cfg.Solver.PollInterval,
		Timeout:      cfg.Solver.Timeout,
		HTTPClient:   clients.API,
		Logger:       logging.Component("solver"),
	})
}

// newApp wires the full stack. tweak, when set, adjusts the loaded config
// before anything is built from it.
func newApp(ctx context.Context, withStore bool, tweak func(*config.Config)) (*app, error) {
	cfg, logFile, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if tweak != nil {
		tweak(cfg)
	}
	logger := logging.Component("main")

	a := &app{cfg: cfg, logger: logger, logFile: logFile}
	a.clients = httputil.NewClients(cfg.Proxy)
	a.solver = newSolver(cfg, a.clients)

	site := cfg.Site()
	logger.Info().Str("site", site.ID).Int("sites", len(cfg.Sites)).Msg("Loaded site configs")

	if cfg.Proxy.Enabled {
		if err := a.clients.ProbeProxy(ctx, site.BaseURL); err != nil {
			logger.Warn().Err(err).Str("proxy", maskURL(cfg.Proxy.URL())).Msg("Proxy probe failed")
		} else {
			logger.Info().Str("proxy", cfg.Proxy.Server()).Msg("Proxy reachable")
		}
	}

	a.store = storage.NopStore{}
	if withStore {
		if a.store, err = storage.Open(ctx, cfg.Storage); err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		logger.Info().Str("driver", cfg.Storage.Driver).Msg("Storage ready")
	}

	artifacts, err := storage.NewArtifactSink(ctx, cfg.S3, cfg.ArtifactDir)
	if err != nil {
		logger.Warn().Err(err).Msg("Artifact upload disabled, keeping screenshots locally")
		artifacts = storage.LocalArtifacts{Dir: cfg.ArtifactDir}
	}

	sig, err := challenge.LoadSignatures(cfg.Bypass.SignaturesPath)
	if err != nil {
		return nil, err
	}
	detector := challenge.NewDetector(sig)
	kit := bypass.NewToolkit(detector, motion.New(motion.DefaultConfig(), nil), bypass.DefaultTimings(), nil, logging.Component("bypass"))

	// a nil interface, not a typed nil, keeps remote_solve reporting ErrNoSolver
	var remote bypass.RemoteSolver
	if a.solver.Configured() {
		remote = a.solver
	}
	bypasser := bypass.NewOrchestrator(bypass.Default(kit, remote), detector, bypass.OrchestratorOptions{
		Fallback: bypass.SimulateHuman(kit),
		Logger:   logging.Component("bypass"),
		Deadline: cfg.Bypass.Deadline,
	})
	logger.Debug().Strs("strategies", bypasser.Strategies()).Msg("Bypass chain ready")

	a.provider = browser.NewProvider(cfg.Browser, cfg.Proxy, logging.Component("browser"))
	a.handler = scraper.NewBrowserHandler(site, scraper.BrowserOptions{
		Opener:      scraper.FromProvider(a.provider),
		Bypasser:    bypasser,
		Conditioner: fingerprint.NewConditioner(logging.Component("fingerprint")),
		Warmup:      bypass.SimulateHuman(kit),
		Artifacts:   artifacts,
		Logger:      logging.Component("scraper"),
	})
	a.orchestrator = scraper.NewOrchestrator(cfg, a.store, a.handler, logging.Component("orchestrator"))

	return a, nil
}

func (a *app) Close() {
	if a.provider != nil {
		if err := a.provider.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Browser shutdown failed")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Storage close failed")
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}

// maskURL hides the password in a URL for logging.
func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
