package bypass

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"fsbo_scrooper/challenge"
)

type Outcome string

const (
	OutcomeNoChallenge Outcome = "no_challenge"
	OutcomeResolved    Outcome = "resolved"
	OutcomeExhausted   Outcome = "exhausted"
	OutcomeCanceled    Outcome = "canceled"
)

// Report is everything one bypass run produced.
type Report struct {
	Outcome  Outcome           `json:"outcome"`
	Verdict  challenge.Verdict `json:"verdict"`
	Strategy string            `json:"strategy,omitempty"`
	Attempts []Result          `json:"attempts"`
	Fallback bool              `json:"fallback"`
	Elapsed  time.Duration     `json:"elapsed"`
}

// Success reports whether the page ended up free of the challenge.
func (r Report) Success() bool {
	return r.Outcome == OutcomeResolved || r.Outcome == OutcomeNoChallenge
}

// FallbackFunc runs after every strategy has failed.
type FallbackFunc func(ctx context.Context, s Session) error

type OrchestratorOptions struct {
	Fallback FallbackFunc
	Clock    func() time.Time
	Logger   zerolog.Logger
	// Deadline bounds the whole run when positive.
	Deadline time.Duration
}

// Orchestrator tries strategies in order until the challenge clears.
type Orchestrator struct {
	strategies []Strategy
	detector   *challenge.Detector
	fallback   FallbackFunc
	clock      func() time.Time
	logger     zerolog.Logger
	deadline   time.Duration
}

func NewOrchestrator(strategies []Strategy, detector *challenge.Detector, opts OrchestratorOptions) *Orchestrator {
	if detector == nil {
		detector = challenge.NewDetector(nil)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Orchestrator{
		strategies: strategies,
		detector:   detector,
		fallback:   opts.Fallback,
		clock:      opts.Clock,
		logger:     opts.Logger,
		deadline:   opts.Deadline,
	}
}

func (o *Orchestrator) Strategies() []string {
	names := make([]string, len(o.strategies))
	for i, st := range o.strategies {
		names[i] = st.Name()
	}
	return names
}

// Bypass inspects the page and, if it is challenged, runs the strategies
// until one clears it. It never panics on behalf of a strategy.
func (o *Orchestrator) Bypass(ctx context.Context, s Session) Report {
	start := o.clock()
	if o.deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.deadline)
		defer cancel()
	}

	report := Report{Attempts: make([]Result, 0, len(o.strategies))}
	finish := func(out Outcome) Report {
		report.Outcome = out
		report.Elapsed = o.clock().Sub(start)
		return report
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("Initial snapshot failed, assuming challenge")
		report.Verdict = challenge.Verdict{State: challenge.StateAmbiguous, Variant: challenge.VariantGeneric}
	} else {
		report.Verdict = o.detector.Detect(snap)
	}
	if !report.Verdict.Present() {
		return finish(OutcomeNoChallenge)
	}

	o.logger.Info().
		Str("state", string(report.Verdict.State)).
		Str("variant", string(report.Verdict.Variant)).
		Strs("signals", report.Verdict.SignalValues()).
		Str("url", s.URL()).
		Msg("Challenge detected")

	for i, st := range o.strategies {
		if err := ctx.Err(); err != nil {
			return finish(OutcomeCanceled)
		}

		t0 := o.clock()
		res := o.attempt(ctx, st, s)
		res.Elapsed = o.clock().Sub(t0)
		if res.Strategy == "" {
			res.Strategy = st.Name()
		}

		if !res.Success && o.resolved(ctx, s) {
			res.Success = true
			res.Detail = joinDetail(res.Detail, "resolved on recheck")
		}
		report.Attempts = append(report.Attempts, res)

		ev := o.logger.Info()
		if res.Err != nil {
			ev = o.logger.Warn().Err(res.Err)
		}
		ev.Int("order", i+1).
			Str("strategy", res.Strategy).
			Bool("success", res.Success).
			Dur("elapsed", res.Elapsed).
			Str("detail", res.Detail).
			Msg("Strategy finished")

		if res.Success {
			report.Strategy = res.Strategy
			return finish(OutcomeResolved)
		}
	}

	if err := ctx.Err(); err != nil {
		return finish(OutcomeCanceled)
	}

	if o.fallback != nil {
		report.Fallback = true
		if err := o.safeFallback(ctx, s); err != nil {
			o.logger.Warn().Err(err).Msg("Human simulation failed")
		} else if o.resolved(ctx, s) {
			report.Strategy = "human_simulation"
			return finish(OutcomeResolved)
		}
	}

	o.logger.Warn().Int("attempts", len(report.Attempts)).Msg("All strategies exhausted")
	return finish(OutcomeExhausted)
}

// attempt runs one strategy, turning a panic into a failed Result.
func (o *Orchestrator) attempt(ctx context.Context, st Strategy, s Session) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().
				Str("strategy", st.Name()).
				Str("stack", string(debug.Stack())).
				Msgf("Strategy panicked: %v", r)
			res = failed(st.Name(), fmt.Errorf("panic: %v", r))
		}
	}()
	return st.Attempt(ctx, s)
}

func (o *Orchestrator) safeFallback(ctx context.Context, s Session) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return o.fallback(ctx, s)
}

// resolved takes a fresh snapshot; a page that cannot be read is not resolved.
func (o *Orchestrator) resolved(ctx context.Context, s Session) bool {
	if ctx.Err() != nil {
		return false
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			o.logger.Debug().Err(err).Msg("Snapshot after attempt failed")
		}
		return false
	}
	return o.detector.IsResolved(snap)
}

func joinDetail(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
