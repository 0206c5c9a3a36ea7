// Package api exposes scraping and stored results over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"fsbo_scrooper/config"
	"fsbo_scrooper/models"
	"fsbo_scrooper/storage"
)

// Scraper runs one scrape without persisting it.
type Scraper interface {
	Scrape(ctx context.Context, req models.ScrapeRequest) (*models.ScrapeResult, error)
}

// Recorder runs one scrape and stores the result.
type Recorder interface {
	Run(ctx context.Context, req models.ScrapeRequest) (*models.ScrapeResult, error)
	MarshalStatus() ([]byte, error)
}

type BalanceChecker interface {
	Balance(ctx context.Context) (float64, error)
}

type CommandQueue interface {
	Submit(cmd *models.Command) (int64, error)
}

type Options struct {
	Scraper  Scraper
	Recorder Recorder
	Store    storage.Store
	Solver   BalanceChecker
	Commands CommandQueue
	Logger   zerolog.Logger
	Now      func() time.Time
}

type Server struct {
	cfg     config.ServerConfig
	opts    Options
	limiter *rate.Limiter
	engine  *gin.Engine
}

func NewServer(cfg config.ServerConfig, opts Options) *Server {
	if opts.Store == nil {
		opts.Store = storage.NopStore{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	limit := rate.Limit(cfg.RateLimitRPS)
	if cfg.RateLimitRPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.RateLimitBurst
	if burst < 1 {
		burst = 1
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		cfg:     cfg,
		opts:    opts,
		limiter: rate.NewLimiter(limit, burst),
		engine:  gin.New(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.engine
	r.Use(gin.Recovery(), requestLogger(s.opts.Logger))

	r.GET("/health", s.handleHealth)
	r.GET("/anti-captcha-status", s.handleSolverStatus)

	throttled := r.Group("/", s.throttle)
	throttled.GET("/scrape", s.handleScrape)
	throttled.GET("/api/bypass", s.handleScrape)
	throttled.POST("/webhook/scrape", s.handleWebhook)

	r.GET("/api/history", s.handleHistory)
	r.GET("/api/listings/:id", s.handleListing)
	r.GET("/api/status", s.handleStatus)
	r.POST("/api/commands", s.handleCommand)
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.opts.Logger.Info().Int("port", s.cfg.Port).Msg("API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) throttle(c *gin.Context) {
	if !s.limiter.Allow() {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"success": false,
			"error":   "Too many requests, slow down",
		})
		return
	}
	c.Next()
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		ev := logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = logger.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Request")
	}
}
