package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"fsbo_scrooper/config"
	"fsbo_scrooper/models"
)

type fakeRunner struct {
	mu       sync.Mutex
	runs     int
	commands []models.CommandType
	done     chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{done: make(chan struct{}, 16)}
}

func (f *fakeRunner) RunAll(ctx context.Context) error {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	f.signal()
	return nil
}

func (f *fakeRunner) HandleCommand(ctx context.Context, cmd *models.Command) error {
	f.mu.Lock()
	f.commands = append(f.commands, cmd.Command)
	f.mu.Unlock()
	f.signal()
	return nil
}

func (f *fakeRunner) signal() {
	select {
	case f.done <- struct{}{}:
	default:
	}
}

func wait(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for runner")
	}
}

func TestIntervalSchedule(t *testing.T) {
	r := newFakeRunner()
	s := New(config.SchedulerConfig{Interval: 10 * time.Millisecond}, r, zerolog.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	wait(t, r.done)
	wait(t, r.done)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runs < 2 {
		t.Errorf("expected at least 2 runs, got %d", r.runs)
	}
}

func TestInvalidCron(t *testing.T) {
	s := New(config.SchedulerConfig{Cron: "not a cron"}, newFakeRunner(), zerolog.Nop())
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
	s.Stop()
}

func TestSubmitCommands(t *testing.T) {
	r := newFakeRunner()
	s := New(config.SchedulerConfig{}, r, zerolog.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	id1, err := s.Submit(&models.Command{Command: models.CmdPause})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	id2, _ := s.Submit(&models.Command{Command: models.CmdResume})
	if id2 != id1+1 {
		t.Errorf("expected sequential ids, got %d then %d", id1, id2)
	}

	wait(t, r.done)
	wait(t, r.done)

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.commands) != 2 || r.commands[0] != models.CmdPause || r.commands[1] != models.CmdResume {
		t.Errorf("unexpected commands %v", r.commands)
	}
}

type blockingRunner struct {
	fakeRunner
	started chan struct{}
	release chan struct{}
}

func (b *blockingRunner) HandleCommand(ctx context.Context, cmd *models.Command) error {
	if cmd.Command == models.CmdScrapeNow {
		close(b.started)
		<-b.release
	}
	return b.fakeRunner.HandleCommand(ctx, cmd)
}

func TestPauseHandledDuringScrape(t *testing.T) {
	r := &blockingRunner{
		fakeRunner: fakeRunner{done: make(chan struct{}, 16)},
		started:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	s := New(config.SchedulerConfig{}, r, zerolog.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	if _, err := s.Submit(&models.Command{Command: models.CmdScrapeNow}); err != nil {
		t.Fatalf("submit scrape: %v", err)
	}
	wait(t, r.started)

	if _, err := s.Submit(&models.Command{Command: models.CmdPause}); err != nil {
		t.Fatalf("submit pause: %v", err)
	}
	wait(t, r.done)

	r.mu.Lock()
	got := append([]models.CommandType(nil), r.commands...)
	r.mu.Unlock()
	if len(got) != 1 || got[0] != models.CmdPause {
		t.Fatalf("expected pause handled while scrape runs, got %v", got)
	}

	close(r.release)
	wait(t, r.done)

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.commands) != 2 || r.commands[1] != models.CmdScrapeNow {
		t.Errorf("unexpected commands %v", r.commands)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := New(config.SchedulerConfig{}, newFakeRunner(), zerolog.Nop())
	s.Stop()
	s.Stop()
}
