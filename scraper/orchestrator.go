package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"fsbo_scrooper/config"
	"fsbo_scrooper/models"
	"fsbo_scrooper/storage"
)

// Orchestrator wraps a handler with run bookkeeping and persistence.
type Orchestrator struct {
	cfg     *config.Config
	store   storage.Store
	handler Handler
	logger  zerolog.Logger
	limiter *rate.Limiter

	mu     sync.Mutex
	paused bool
}

func NewOrchestrator(cfg *config.Config, store storage.Store, handler Handler, logger zerolog.Logger) *Orchestrator {
	if store == nil {
		store = storage.NopStore{}
	}
	every := time.Duration(0)
	if site := cfg.Site(); site != nil && site.RateLimitMS > 0 {
		every = time.Duration(site.RateLimitMS) * time.Millisecond
	}
	limit := rate.Inf
	if every > 0 {
		limit = rate.Every(every)
	}
	return &Orchestrator{
		cfg:     cfg,
		store:   store,
		handler: handler,
		logger:  logger,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Run scrapes one ZIP code, records the run and stores the result document.
// The returned result is never nil when err is nil.
func (o *Orchestrator) Run(ctx context.Context, req models.ScrapeRequest) (*models.ScrapeResult, error) {
	if !ValidZip(req.ZipCode) {
		return nil, fmt.Errorf("invalid zip code %q", req.ZipCode)
	}

	run := &models.ScrapeRun{
		SiteID:    o.handler.ID(),
		ZipCode:   req.ZipCode,
		URLType:   req.URLType,
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	runID, err := o.store.CreateRun(ctx, run)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Failed to create run record")
	}
	run.ID = runID

	o.log(ctx, &runID, models.LogLevelInfo, fmt.Sprintf("Starting scrape for %s", req.ZipCode), req.ZipCode)

	result, err := o.handler.Scrape(ctx, req)
	if err != nil {
		o.log(ctx, &runID, models.LogLevelError, fmt.Sprintf("Scrape error: %v", err), req.ZipCode)
		run.Finish(&models.ScrapeResult{Error: err.Error()}, time.Now())
		o.finish(ctx, run)
		return nil, err
	}

	if id, err := o.store.SaveResult(ctx, result); err != nil {
		o.log(ctx, &runID, models.LogLevelError, fmt.Sprintf("Failed to save result: %v", err), req.ZipCode)
	} else if id != "" {
		result.ID = id
		if result.Bypass != nil {
			if err := o.store.SaveAttempts(ctx, id, result.Bypass.Attempts); err != nil {
				o.logger.Warn().Err(err).Msg("Failed to save bypass attempts")
			}
		}
	}

	level := models.LogLevelInfo
	msg := fmt.Sprintf("Completed: %d listings", result.Count)
	if !result.Success {
		level = models.LogLevelWarn
		msg = fmt.Sprintf("Failed: %s", result.Error)
	}
	o.log(ctx, &runID, level, msg, req.ZipCode)

	run.Finish(result, time.Now())
	o.finish(ctx, run)
	return result, nil
}

// RunAll scrapes every configured ZIP code in turn, pacing requests by the
// site's rate limit. Failures are logged and do not stop the batch.
func (o *Orchestrator) RunAll(ctx context.Context) error {
	if o.IsPaused() {
		o.logger.Info().Msg("Scraper is paused, skipping run")
		return nil
	}

	for _, zip := range o.cfg.Scheduler.ZipCodes {
		if err := o.limiter.Wait(ctx); err != nil {
			return err
		}
		req := models.ScrapeRequest{ZipCode: zip, URLType: o.cfg.Scheduler.URLType}
		if _, err := o.Run(ctx, req); err != nil {
			o.logger.Error().Err(err).Str("zip", zip).Msg("Scrape failed")
		}
		if o.IsPaused() {
			o.logger.Info().Msg("Paused mid-batch")
			break
		}
	}
	return nil
}

func (o *Orchestrator) HandleCommand(ctx context.Context, cmd *models.Command) error {
	var params models.CommandParams
	if len(cmd.Params) > 0 {
		if err := json.Unmarshal(cmd.Params, &params); err != nil {
			return fmt.Errorf("command params: %w", err)
		}
	}

	switch cmd.Command {
	case models.CmdScrapeNow:
		return o.RunAll(ctx)
	case models.CmdScrapeZip:
		if params.ZipCode == "" {
			return o.RunAll(ctx)
		}
		_, err := o.Run(ctx, models.ScrapeRequest{ZipCode: params.ZipCode, URLType: params.URLType})
		return err
	case models.CmdPause:
		o.setPaused(true)
		o.logger.Info().Msg("Scraper paused")
	case models.CmdResume:
		o.setPaused(false)
		o.logger.Info().Msg("Scraper resumed")
	default:
		return fmt.Errorf("unknown command %q", cmd.Command)
	}
	return nil
}

func (o *Orchestrator) IsPaused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused
}

func (o *Orchestrator) setPaused(p bool) {
	o.mu.Lock()
	o.paused = p
	o.mu.Unlock()
}

func (o *Orchestrator) MarshalStatus() ([]byte, error) {
	status := map[string]interface{}{
		"paused": o.IsPaused(),
		"site":   o.handler.ID(),
		"zips":   o.cfg.Scheduler.ZipCodes,
	}
	return json.Marshal(status)
}

func (o *Orchestrator) finish(ctx context.Context, run *models.ScrapeRun) {
	if err := o.store.FinishRun(ctx, run); err != nil {
		o.logger.Warn().Err(err).Int64("run", run.ID).Msg("Failed to finish run record")
	}
}

func (o *Orchestrator) log(ctx context.Context, runID *int64, level models.LogLevel, message, zip string) {
	ev := o.logger.Info()
	switch level {
	case models.LogLevelWarn:
		ev = o.logger.Warn()
	case models.LogLevelError:
		ev = o.logger.Error()
	}
	ev.Str("zip", zip).Msg(message)
	if err := o.store.Log(ctx, runID, level, message, zip); err != nil {
		o.logger.Debug().Err(err).Msg("Failed to write log row")
	}
}
