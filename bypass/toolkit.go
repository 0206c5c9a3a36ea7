package bypass

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fsbo_scrooper/challenge"
	"fsbo_scrooper/motion"
)

var (
	ErrNoCandidate = errors.New("no interactable challenge element")
	ErrNoSolver    = errors.New("remote solver not configured")
)

// Range is an inclusive duration interval.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// Timings holds every hand-tuned duration the strategies use.
type Timings struct {
	Settle        Range // after release, before checking the verdict
	StandardHold  Range
	TimerHold     Range
	FixedHold     Range
	NeutralHold   Range
	RemoteHold    Range
	AlternateHold Range
	PrimingHold   Range
	GenericHold   Range
	ClickPress    Range
	MaxCandidates int
	// MaxAlternates caps alternative_elements; zero tries every element.
	MaxAlternates int
	MinAltSize    float64
}

func DefaultTimings() Timings {
	return Timings{
		Settle:        Range{2 * time.Second, 3 * time.Second},
		StandardHold:  Range{2500 * time.Millisecond, 5 * time.Second},
		TimerHold:     Range{3500 * time.Millisecond, 5 * time.Second},
		FixedHold:     Range{3 * time.Second, 5 * time.Second},
		NeutralHold:   Range{3200 * time.Millisecond, 5 * time.Second},
		RemoteHold:    Range{3 * time.Second, 5 * time.Second},
		AlternateHold: Range{2 * time.Second, 4 * time.Second},
		PrimingHold:   Range{3 * time.Second, 5 * time.Second},
		GenericHold:   Range{2 * time.Second, 3 * time.Second},
		ClickPress:    Range{100 * time.Millisecond, 250 * time.Millisecond},
		MaxCandidates: 5,
		MaxAlternates: 0,
		MinAltSize:    10,
	}
}

// Toolkit is what every strategy shares: motion, detection, pacing and the
// vendor profile.
type Toolkit struct {
	Motion   *motion.Generator
	Detector *challenge.Detector
	Timings  Timings
	Sleeper  Sleeper
	Logger   zerolog.Logger
}

func NewToolkit(detector *challenge.Detector, gen *motion.Generator, timings Timings, sleeper Sleeper, logger zerolog.Logger) *Toolkit {
	if detector == nil {
		detector = challenge.NewDetector(nil)
	}
	if gen == nil {
		gen = motion.New(motion.DefaultConfig(), nil)
	}
	if sleeper == nil {
		sleeper = RealSleeper()
	}
	return &Toolkit{
		Motion:   gen,
		Detector: detector,
		Timings:  timings,
		Sleeper:  sleeper,
		Logger:   logger,
	}
}

func (k *Toolkit) sig() *challenge.Signatures { return k.Detector.Signatures() }

func (k *Toolkit) between(r Range) time.Duration { return k.Motion.Between(r.Min, r.Max) }

// locate returns the first valid candidate for the first selector that has one.
func (k *Toolkit) locate(ctx context.Context, s Session, selectors []string) (Candidate, error) {
	for _, sel := range selectors {
		cands, err := s.Candidates(ctx, []string{sel})
		if err != nil {
			return Candidate{}, err
		}
		for _, c := range cands {
			if c.Box.Valid() {
				return c, nil
			}
		}
	}
	return Candidate{}, ErrNoCandidate
}

// visible returns the valid candidates for selectors.
func (k *Toolkit) visible(ctx context.Context, s Session, selectors []string) ([]Candidate, error) {
	cands, err := s.Candidates(ctx, selectors)
	if err != nil {
		return nil, err
	}
	out := cands[:0]
	for _, c := range cands {
		if c.Box.Valid() {
			out = append(out, c)
		}
	}
	return out, nil
}

// primaryTargets is the short priority list used by the hold strategies.
func (k *Toolkit) primaryTargets() []string {
	sig := k.sig()
	return dedupe(append(append([]string{}, sig.Targets.Primary...), sig.ElementSelectors...))
}

// approach appends a natural move from the current position to pt.
func (k *Toolkit) approach(p *Plan, from, to motion.Point) {
	p.Move(k.Motion.Path(from, to))
}

// pressPoint picks a point in the central band of box: frac 0.2 means the
// middle 20% on each axis.
func (k *Toolkit) pressPoint(b Box, frac float64) motion.Point {
	return k.Motion.Within(
		b.X+b.Width*(0.5-frac/2),
		b.Y+b.Height*(0.5-frac/2),
		b.Width*frac,
		b.Height*frac,
		0,
	)
}

// hold appends press, a hold of total length with a micro-movement every
// tick, and release. offset gives the displacement at a progress in [0, 1].
func (k *Toolkit) hold(p *Plan, at motion.Point, total time.Duration, tick Range, offset func(progress float64) motion.Point) {
	p.Down(0)
	var elapsed time.Duration
	for elapsed < total {
		step := k.between(tick)
		if step <= 0 || elapsed+step > total {
			step = total - elapsed
		}
		elapsed += step
		if offset == nil {
			p.Wait(step)
			continue
		}
		d := offset(float64(elapsed) / float64(total))
		p.MoveTo(motion.Point{X: at.X + d.X, Y: at.Y + d.Y}, step)
	}
	p.MoveTo(at, 0)
	p.Up(0)
}

// tremor is a uniform jitter of fixed amplitude.
func (k *Toolkit) tremor(amplitude float64) func(float64) motion.Point {
	return func(float64) motion.Point { return k.Motion.Offset(amplitude) }
}

// drag appends press at from, an eased slide to to, and release.
func (k *Toolkit) drag(p *Plan, from, to motion.Point) {
	p.Down(k.Motion.Between(60*time.Millisecond, 140*time.Millisecond))
	p.Move(k.Motion.Drag(from, to))
	p.Wait(k.Motion.Between(50*time.Millisecond, 150*time.Millisecond))
	p.Up(0)
}

// click appends a short press at the current position.
func (k *Toolkit) click(p *Plan) {
	p.Wait(k.Motion.Between(150*time.Millisecond, 500*time.Millisecond))
	p.Down(k.between(k.Timings.ClickPress))
	p.Up(0)
}

func (k *Toolkit) run(ctx context.Context, s Session, p Plan) error {
	return Execute(ctx, s, k.Sleeper, p)
}

// confirm waits for the page to settle and asks the detector whether the
// challenge is gone.
func (k *Toolkit) confirm(ctx context.Context, s Session) (bool, error) {
	if err := k.Sleeper.Sleep(ctx, k.between(k.Timings.Settle)); err != nil {
		return false, err
	}
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return false, fmt.Errorf("snapshot: %w", err)
	}
	return k.Detector.IsResolved(snap), nil
}

// interactionFor picks press-and-hold, slide or click from an element's text.
func interactionFor(text string) string {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "press & hold"), strings.Contains(t, "press and hold"):
		return "hold"
	case strings.Contains(t, "slide"), strings.Contains(t, "drag"):
		return "slide"
	}
	return "click"
}

// slideEnds returns the drag endpoints across the middle 80% of b.
func slideEnds(b Box) (motion.Point, motion.Point) {
	c := b.Center()
	return motion.Point{X: c.X - b.Width*0.4, Y: c.Y}, motion.Point{X: c.X + b.Width*0.4, Y: c.Y}
}

// sway is the slow sinusoidal drift of a hand watching a countdown; it
// strengthens toward the end.
func sway(progress float64) motion.Point {
	intensity := 0.5 + progress*0.5
	return motion.Point{
		X: math.Sin(progress*12*math.Pi) * intensity,
		Y: math.Cos(progress*14*math.Pi) * intensity,
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
