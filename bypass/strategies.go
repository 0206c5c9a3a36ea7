package bypass

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"fsbo_scrooper/challenge"
	"fsbo_scrooper/fingerprint"
	"fsbo_scrooper/motion"
	"fsbo_scrooper/solver"
)

// RemoteSolver is the image-analysis service used by the first strategy.
type RemoteSolver interface {
	Solve(ctx context.Context, req solver.Request) (*solver.Solution, error)
}

// Default returns the eight strategies in the order they should be tried.
func Default(k *Toolkit, rs RemoteSolver) []Strategy {
	return []Strategy{
		&RemoteSolve{kit: k, solver: rs},
		&ScoredCandidates{kit: k},
		&Neutralize{kit: k},
		&TimedHold{kit: k},
		&StandardHold{kit: k},
		&Alternatives{kit: k},
		&Slider{kit: k},
		&HumanPriming{kit: k},
	}
}

// RemoteSolve screenshots the widget, asks the solving service for an
// answer, and acts on the timing it suggests.
type RemoteSolve struct {
	kit    *Toolkit
	solver RemoteSolver
}

func (st *RemoteSolve) Name() string { return "remote_solve" }

func (st *RemoteSolve) Attempt(ctx context.Context, s Session) Result {
	k := st.kit
	if st.solver == nil {
		return failed(st.Name(), ErrNoSolver)
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		return failed(st.Name(), err)
	}
	variant := k.Detector.Detect(snap).Variant

	target, err := k.locate(ctx, s, k.primaryTargets())
	if err != nil {
		return failed(st.Name(), err)
	}

	clip := target.Box.Pad(20)
	img, err := s.Screenshot(ctx, &clip)
	if err != nil {
		return failed(st.Name(), fmt.Errorf("screenshot: %w", err))
	}

	sol, err := st.solver.Solve(ctx, solver.Request{
		ImageBase64: base64.StdEncoding.EncodeToString(img),
		Variant:     string(variant),
		PageURL:     s.URL(),
	})
	if err != nil {
		return failed(st.Name(), fmt.Errorf("solve: %w", err))
	}
	if sol == nil {
		return failed(st.Name(), errors.New("solve: empty solution"))
	}

	center := target.Box.Center()
	var p Plan
	switch variant {
	case challenge.VariantSlider:
		from, to := slideEnds(target.Box)
		k.approach(&p, s.Position(), from)
		k.drag(&p, from, to)
	case challenge.VariantPressHold:
		hold := time.Duration(sol.HoldMs) * time.Millisecond
		if hold <= 0 {
			hold = k.between(k.Timings.RemoteHold)
		}
		k.approach(&p, s.Position(), center)
		k.hold(&p, center, hold, Range{150 * time.Millisecond, 250 * time.Millisecond}, k.tremor(0.8))
	default:
		k.approach(&p, s.Position(), center)
		k.hold(&p, center, k.between(k.Timings.GenericHold), Range{500 * time.Millisecond, 500 * time.Millisecond}, nil)
	}

	if err := k.run(ctx, s, p); err != nil {
		return failed(st.Name(), err)
	}
	return st.kit.verdict(ctx, s, st.Name(), fmt.Sprintf("variant=%s task=%d", variant, sol.TaskID))
}

// ScoredCandidates ranks every visible element by how much it looks like the
// widget and works through the best few.
type ScoredCandidates struct {
	kit *Toolkit
}

func (st *ScoredCandidates) Name() string { return "scored_candidates" }

func (st *ScoredCandidates) Attempt(ctx context.Context, s Session) Result {
	k := st.kit
	cands, err := s.Candidates(ctx, k.sig().Targets.Candidates)
	if err != nil {
		return failed(st.Name(), err)
	}
	ranked := Rank(cands, k.Timings.MaxCandidates)
	if len(ranked) == 0 {
		return failed(st.Name(), ErrNoCandidate)
	}

	for i, c := range ranked {
		if err := ctx.Err(); err != nil {
			return failed(st.Name(), err)
		}

		var p Plan
		mode := interactionFor(c.Text)
		switch mode {
		case "hold":
			at := c.Box.Center()
			k.approach(&p, s.Position(), at)
			k.hold(&p, at, k.between(k.Timings.FixedHold), Range{50 * time.Millisecond, 50 * time.Millisecond}, sway)
		case "slide":
			from, to := slideEnds(c.Box)
			k.approach(&p, s.Position(), from)
			k.drag(&p, from, to)
		default:
			k.approach(&p, s.Position(), c.Box.Center())
			k.click(&p)
		}

		k.Logger.Debug().Int("rank", i+1).Int("score", c.Score).Str("mode", mode).Str("id", c.ID).Msg("Trying candidate")
		if err := k.run(ctx, s, p); err != nil {
			return failed(st.Name(), err)
		}
		ok, err := k.confirm(ctx, s)
		if err != nil {
			return failed(st.Name(), err)
		}
		if ok {
			return succeeded(st.Name(), fmt.Sprintf("candidate %d score=%d mode=%s", i+1, c.Score, mode))
		}
	}
	return unresolved(st.Name(), fmt.Sprintf("%d candidates tried", len(ranked)))
}

// Neutralize reapplies stronger environment overrides in the live page,
// scrolls to wake lazy checks, then holds the primary widget.
type Neutralize struct {
	kit *Toolkit
}

func (st *Neutralize) Name() string { return "environment_neutralization" }

func (st *Neutralize) Attempt(ctx context.Context, s Session) Result {
	k := st.kit

	profile := s.Profile()
	if profile == nil {
		profile = fingerprint.NewProfile(nil)
	}
	var overrides []fingerprint.Override
	for _, o := range fingerprint.Base(profile) {
		switch o.Name {
		case "webdriver", "plugins", "navigator", "permissions":
			overrides = append(overrides, o)
		}
	}
	overrides = append(overrides, fingerprint.Hardened(profile)...)

	applied := 0
	for _, o := range overrides {
		errNow := s.Evaluate(ctx, o.Script)
		errLater := s.AddInitScript(ctx, o.Script)
		if errNow != nil || errLater != nil {
			k.Logger.Debug().Str("override", o.Name).AnErr("now", errNow).AnErr("init", errLater).Msg("Override not applied")
			continue
		}
		applied++
	}

	target, err := k.locate(ctx, s, k.primaryTargets())
	if err != nil {
		return failed(st.Name(), err)
	}

	dy := float64(k.Motion.IntBetween(100, 300))
	var p Plan
	p.Scroll(dy, k.Motion.Between(400*time.Millisecond, 900*time.Millisecond))
	p.Scroll(-dy, k.Motion.Between(400*time.Millisecond, 900*time.Millisecond))
	at := target.Box.Center()
	k.approach(&p, s.Position(), at)
	k.hold(&p, at, k.between(k.Timings.NeutralHold), Range{250 * time.Millisecond, 400 * time.Millisecond}, k.tremor(0.5))

	if err := k.run(ctx, s, p); err != nil {
		return failed(st.Name(), err)
	}
	return k.verdict(ctx, s, st.Name(), fmt.Sprintf("%d/%d overrides", applied, len(overrides)))
}

// TimedHold sizes its hold to a visible progress indicator when the page
// shows one, and falls back to a fixed window otherwise.
type TimedHold struct {
	kit *Toolkit
}

func (st *TimedHold) Name() string { return "timed_hold" }

func (st *TimedHold) Attempt(ctx context.Context, s Session) Result {
	k := st.kit

	timers, err := k.visible(ctx, s, k.sig().Targets.Timers)
	if err != nil {
		return failed(st.Name(), err)
	}
	hasTimer := len(timers) > 0

	target, err := k.locate(ctx, s, k.primaryTargets())
	if err != nil {
		return failed(st.Name(), err)
	}
	at := k.pressPoint(target.Box, 0.4)

	var p Plan
	k.approach(&p, s.Position(), at)
	if hasTimer {
		k.hold(&p, at, k.between(k.Timings.TimerHold), Range{60 * time.Millisecond, 100 * time.Millisecond}, sway)
	} else {
		total := k.between(k.Timings.FixedHold)
		k.hold(&p, at, total, Range{total / 10, total / 10}, k.tremor(0.75))
	}

	if err := k.run(ctx, s, p); err != nil {
		return failed(st.Name(), err)
	}
	return k.verdict(ctx, s, st.Name(), fmt.Sprintf("timer=%t", hasTimer))
}

// StandardHold presses the best-known widget near its centre.
type StandardHold struct {
	kit *Toolkit
}

func (st *StandardHold) Name() string { return "standard_hold" }

func (st *StandardHold) Attempt(ctx context.Context, s Session) Result {
	k := st.kit
	target, err := k.locate(ctx, s, k.sig().ElementSelectors)
	if err != nil {
		return failed(st.Name(), err)
	}

	hover := motion.Point{X: target.Box.Center().X, Y: target.Box.Y - 20}
	at := k.pressPoint(target.Box, 0.2)

	var p Plan
	p.Move(k.Motion.PathSteps(s.Position(), hover, 10))
	p.Wait(k.Motion.Between(50*time.Millisecond, 200*time.Millisecond))
	k.approach(&p, hover, at)
	k.hold(&p, at, k.between(k.Timings.StandardHold), Range{300 * time.Millisecond, 600 * time.Millisecond}, k.tremor(1))

	if err := k.run(ctx, s, p); err != nil {
		return failed(st.Name(), err)
	}
	return k.verdict(ctx, s, st.Name(), "")
}

// Alternatives presses every plausible interactive element in turn.
type Alternatives struct {
	kit *Toolkit
}

func (st *Alternatives) Name() string { return "alternative_elements" }

func (st *Alternatives) Attempt(ctx context.Context, s Session) Result {
	k := st.kit
	cands, err := k.visible(ctx, s, k.sig().Targets.Alternatives)
	if err != nil {
		return failed(st.Name(), err)
	}

	tried := 0
	for _, c := range cands {
		if c.Box.Width < k.Timings.MinAltSize || c.Box.Height < k.Timings.MinAltSize {
			continue
		}
		if k.Timings.MaxAlternates > 0 && tried >= k.Timings.MaxAlternates {
			break
		}
		if err := ctx.Err(); err != nil {
			return failed(st.Name(), err)
		}
		tried++

		at := c.Box.Center()
		var p Plan
		k.approach(&p, s.Position(), at)
		k.hold(&p, at, k.between(k.Timings.AlternateHold), Range{500 * time.Millisecond, 500 * time.Millisecond}, nil)
		if err := k.run(ctx, s, p); err != nil {
			return failed(st.Name(), err)
		}

		if err := k.Sleeper.Sleep(ctx, 1500*time.Millisecond); err != nil {
			return failed(st.Name(), err)
		}
		snap, err := s.Snapshot(ctx)
		if err != nil {
			return failed(st.Name(), err)
		}
		if k.Detector.IsResolved(snap) {
			return succeeded(st.Name(), fmt.Sprintf("element %s", c.Selector))
		}
	}
	if tried == 0 {
		return failed(st.Name(), ErrNoCandidate)
	}
	return unresolved(st.Name(), fmt.Sprintf("%d elements tried", tried))
}

// Slider drags a horizontal handle from the left edge of its track to the right.
type Slider struct {
	kit *Toolkit
}

func (st *Slider) Name() string { return "slider" }

func (st *Slider) Attempt(ctx context.Context, s Session) Result {
	k := st.kit
	sig := k.sig()

	track, trackErr := k.locate(ctx, s, sig.Targets.SliderTracks)
	handle, handleErr := k.locate(ctx, s, sig.Targets.SliderHandles)
	if trackErr != nil && handleErr != nil {
		// No slider markup; treat the widget itself as the track.
		var err error
		track, err = k.locate(ctx, s, k.primaryTargets())
		if err != nil {
			return failed(st.Name(), err)
		}
		trackErr = nil
	}

	var from, to motion.Point
	switch {
	case handleErr == nil && trackErr == nil:
		from = handle.Box.Center()
		to = motion.Point{X: track.Box.X + track.Box.Width - handle.Box.Width/2 - 2, Y: from.Y}
	case handleErr == nil:
		from = handle.Box.Center()
		to = motion.Point{X: from.X + 300, Y: from.Y}
	default:
		c := track.Box.Center()
		from = motion.Point{X: track.Box.X + 10, Y: c.Y}
		to = motion.Point{X: track.Box.X + track.Box.Width - 5, Y: c.Y}
	}
	if to.X <= from.X {
		return failed(st.Name(), fmt.Errorf("slider has no travel: %.0f to %.0f", from.X, to.X))
	}

	var p Plan
	k.approach(&p, s.Position(), from)
	k.drag(&p, from, to)
	if err := k.run(ctx, s, p); err != nil {
		return failed(st.Name(), err)
	}
	return k.verdict(ctx, s, st.Name(), fmt.Sprintf("dragged %.0fpx", to.X-from.X))
}

// HumanPriming wanders around the page first, then holds with pressure that
// builds over time.
type HumanPriming struct {
	kit *Toolkit
}

func (st *HumanPriming) Name() string { return "human_priming" }

func (st *HumanPriming) Attempt(ctx context.Context, s Session) Result {
	k := st.kit
	w, h := s.Viewport()
	if w <= 0 || h <= 0 {
		w, h = 1280, 720
	}

	var p Plan
	pos := s.Position()
	wander := k.Motion.IntBetween(3, 5)
	for i := 0; i < wander; i++ {
		next := k.Motion.Within(0, 0, float64(w), float64(h), 40)
		k.approach(&p, pos, next)
		p.Wait(k.Motion.Between(200*time.Millisecond, 800*time.Millisecond))
		pos = next
		if k.Motion.Chance(0.3) {
			p.Scroll(float64(k.Motion.IntBetween(50, 200)), k.Motion.Between(300*time.Millisecond, 600*time.Millisecond))
		}
	}
	if err := k.run(ctx, s, p); err != nil {
		return failed(st.Name(), err)
	}

	target, err := k.locate(ctx, s, k.primaryTargets())
	if err != nil {
		return failed(st.Name(), err)
	}

	at := k.pressPoint(target.Box, 0.2)
	p = nil
	k.approach(&p, s.Position(), at)
	k.hold(&p, at, k.between(k.Timings.PrimingHold), Range{120 * time.Millisecond, 220 * time.Millisecond}, func(progress float64) motion.Point {
		o := k.Motion.Offset(1)
		amp := 0.3 + 1.2*progress
		return motion.Point{X: o.X * amp, Y: o.Y * amp}
	})
	if err := k.run(ctx, s, p); err != nil {
		return failed(st.Name(), err)
	}
	return k.verdict(ctx, s, st.Name(), fmt.Sprintf("%d priming moves", wander))
}

// verdict turns a confirm call into a Result.
func (k *Toolkit) verdict(ctx context.Context, s Session, name, detail string) Result {
	ok, err := k.confirm(ctx, s)
	if err != nil {
		return failed(name, err)
	}
	if ok {
		return succeeded(name, detail)
	}
	return unresolved(name, detail)
}
