package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"fsbo_scrooper/config"
	"fsbo_scrooper/models"
)

var ErrQueueFull = errors.New("command queue full")

// Runner is the part of the scrape orchestrator the scheduler drives.
type Runner interface {
	RunAll(ctx context.Context) error
	HandleCommand(ctx context.Context, cmd *models.Command) error
}

type Scheduler struct {
	cfg      config.SchedulerConfig
	runner   Runner
	logger   zerolog.Logger
	cron     *cron.Cron
	ticker   *time.Ticker
	commands chan *models.Command
	control  chan *models.Command
	stopCh   chan struct{}
	stopOnce sync.Once
	nextID   atomic.Int64

	// running guards against overlapping batch runs.
	running atomic.Bool
}

func New(cfg config.SchedulerConfig, runner Runner, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		runner:   runner,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		cron:     cron.New(),
		commands: make(chan *models.Command, 16),
		control:  make(chan *models.Command, 16),
		stopCh:   make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	go s.processCommands(ctx, s.commands)
	go s.processCommands(ctx, s.control)

	if s.cfg.Cron != "" {
		s.logger.Info().Str("cron", s.cfg.Cron).Strs("zips", s.cfg.ZipCodes).Msg("Starting scheduler")
		_, err := s.cron.AddFunc(s.cfg.Cron, func() { s.runBatch(ctx) })
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else if s.cfg.Interval > 0 {
		s.logger.Info().Dur("interval", s.cfg.Interval).Msg("Starting scheduler")
		s.ticker = time.NewTicker(s.cfg.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					s.runBatch(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		s.logger.Info().Msg("No schedule configured, only responding to commands")
	}

	return nil
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		<-s.cron.Stop().Done()
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
	})
}

// Submit queues a command and returns its id. Pause and resume go on their
// own queue so they are not stuck behind a scrape that is still running.
func (s *Scheduler) Submit(cmd *models.Command) (int64, error) {
	cmd.ID = s.nextID.Add(1)
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now()
	}
	queue := s.commands
	if cmd.Command == models.CmdPause || cmd.Command == models.CmdResume {
		queue = s.control
	}
	select {
	case queue <- cmd:
		return cmd.ID, nil
	default:
		return 0, ErrQueueFull
	}
}

func (s *Scheduler) runBatch(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn().Msg("Previous run still in progress, skipping")
		return
	}
	defer s.running.Store(false)

	if err := s.runner.RunAll(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Scheduled run error")
	}
}

func (s *Scheduler) processCommands(ctx context.Context, queue <-chan *models.Command) {
	for {
		select {
		case cmd := <-queue:
			s.logger.Info().Str("command", string(cmd.Command)).Int64("id", cmd.ID).Msg("Processing command")
			if err := s.runner.HandleCommand(ctx, cmd); err != nil {
				s.logger.Error().Err(err).Str("command", string(cmd.Command)).Msg("Command error")
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}
