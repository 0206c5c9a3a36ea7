// Package motion generates human-like pointer trajectories.
//
// A path is a list of timed samples: eased along the straight line between
// two points, displaced perpendicular to it by a bounded noise envelope that
// vanishes at both ends. The final sample is always the exact destination.
package motion

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sample is one pointer position and the pause to take after moving there.
type Sample struct {
	Point
	Delay time.Duration
}

type Path []Sample

// Rand is the randomness source. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Intn(n int) int
	Int63() int64
}

type Config struct {
	MinSteps      int
	MaxSteps      int
	PixelsPerStep float64
	// MaxJitter bounds the perpendicular displacement in pixels.
	MaxJitter   float64
	BaseDelay   time.Duration
	EaseDelay   time.Duration
	DelayJitter time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinSteps:      10,
		MaxSteps:      25,
		PixelsPerStep: 10,
		MaxJitter:     1.5,
		BaseDelay:     5 * time.Millisecond,
		EaseDelay:     10 * time.Millisecond,
		DelayJitter:   2 * time.Millisecond,
	}
}

type Generator struct {
	mu    sync.Mutex
	cfg   Config
	rng   Rand
	noise *perlin.Perlin
	// t advances the noise input so consecutive paths differ.
	t float64
}

// New returns a generator drawing from rng. A nil rng seeds from the clock.
func New(cfg Config, rng Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.MinSteps <= 0 {
		cfg.MinSteps = 1
	}
	if cfg.MaxSteps < cfg.MinSteps {
		cfg.MaxSteps = cfg.MinSteps
	}
	if cfg.PixelsPerStep <= 0 {
		cfg.PixelsPerStep = 10
	}
	return &Generator{
		cfg:   cfg,
		rng:   rng,
		noise: perlin.NewPerlin(2, 2, 3, rng.Int63()),
	}
}

// NewSeeded is a deterministic generator for tests and replays.
func NewSeeded(seed int64) *Generator {
	return New(DefaultConfig(), rand.New(rand.NewSource(seed)))
}

func (g *Generator) Config() Config { return g.cfg }

// Steps returns the step count used for a move covering distance pixels.
// It never decreases as distance grows.
func (g *Generator) Steps(distance float64) int {
	n := int(distance / g.cfg.PixelsPerStep)
	if n < g.cfg.MinSteps {
		return g.cfg.MinSteps
	}
	if n > g.cfg.MaxSteps {
		return g.cfg.MaxSteps
	}
	return n
}

// Path moves from start to end with a step count chosen from the distance.
func (g *Generator) Path(start, end Point) Path {
	return g.PathSteps(start, end, 0)
}

// PathSteps is Path with an explicit step count; steps <= 0 picks the default.
func (g *Generator) PathSteps(start, end Point, steps int) Path {
	g.mu.Lock()
	defer g.mu.Unlock()

	if steps <= 0 {
		steps = g.Steps(Distance(start, end))
	}

	dx, dy := end.X-start.X, end.Y-start.Y
	dist := math.Hypot(dx, dy)
	var nx, ny float64
	if dist > 0 {
		nx, ny = -dy/dist, dx/dist
	}

	path := make(Path, 0, steps+1)
	for i := 0; i <= steps; i++ {
		p := float64(i) / float64(steps)
		eased := EaseInOutSine(p)
		envelope := math.Sin(p * math.Pi)

		offset := g.jitter() * g.cfg.MaxJitter * envelope
		pt := Point{
			X: start.X + dx*eased + nx*offset,
			Y: start.Y + dy*eased + ny*offset,
		}
		if i == steps {
			pt = end
		}
		path = append(path, Sample{Point: pt, Delay: g.delay(envelope)})
	}
	return path
}

// Drag is a horizontal-leaning slide used for slider handles. Vertical wobble
// is bounded by MaxJitter and the final sample lands exactly on end.
func (g *Generator) Drag(start, end Point) Path {
	g.mu.Lock()
	defer g.mu.Unlock()

	steps := int(Distance(start, end) / 8)
	if steps < 15 {
		steps = 15
	}
	if steps > 40 {
		steps = 40
	}

	dx, dy := end.X-start.X, end.Y-start.Y
	path := make(Path, 0, steps+1)
	for i := 0; i <= steps; i++ {
		p := float64(i) / float64(steps)
		eased := EaseOutQuad(p)
		wobble := g.jitter() * g.cfg.MaxJitter * (1 - p)
		pt := Point{X: start.X + dx*eased, Y: start.Y + dy*eased + wobble}
		if i == 0 {
			pt = start
		}
		if i == steps {
			pt = end
		}
		d := 8*time.Millisecond + time.Duration(g.rng.Float64()*float64(12*time.Millisecond))
		path = append(path, Sample{Point: pt, Delay: d})
	}
	return path
}

// Tremor returns n small displacements around center, as a resting hand
// produces while holding a button.
func (g *Generator) Tremor(center Point, n int, amplitude float64) Path {
	g.mu.Lock()
	defer g.mu.Unlock()

	path := make(Path, 0, n)
	for i := 0; i < n; i++ {
		pt := Point{
			X: center.X + (g.rng.Float64()*2-1)*amplitude,
			Y: center.Y + (g.rng.Float64()*2-1)*amplitude,
		}
		d := 40*time.Millisecond + time.Duration(g.rng.Intn(80))*time.Millisecond
		path = append(path, Sample{Point: pt, Delay: d})
	}
	return path
}

// Within returns a uniformly random point inside the rectangle, inset by margin.
func (g *Generator) Within(x, y, w, h, margin float64) Point {
	g.mu.Lock()
	defer g.mu.Unlock()

	if w <= 2*margin {
		margin = 0
	}
	if h <= 2*margin {
		margin = 0
	}
	return Point{
		X: x + margin + g.rng.Float64()*(w-2*margin),
		Y: y + margin + g.rng.Float64()*(h-2*margin),
	}
}

// Offset returns a uniform displacement with each axis in [-amplitude, amplitude].
func (g *Generator) Offset(amplitude float64) Point {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Point{
		X: (g.rng.Float64()*2 - 1) * amplitude,
		Y: (g.rng.Float64()*2 - 1) * amplitude,
	}
}

// Chance reports true with probability p.
func (g *Generator) Chance(p float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64() < p
}

// Between returns a duration uniformly drawn from [min, max].
func (g *Generator) Between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return min + time.Duration(g.rng.Int63()%int64(max-min+1))
}

// IntBetween returns an int uniformly drawn from [min, max].
func (g *Generator) IntBetween(min, max int) int {
	if max <= min {
		return min
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return min + g.rng.Intn(max-min+1)
}

// jitter mixes perlin noise with a uniform draw, clamped to [-1, 1].
func (g *Generator) jitter() float64 {
	g.t += 0.37
	v := 0.6*g.noise.Noise1D(g.t) + 0.4*(g.rng.Float64()*2-1)
	return math.Max(-1, math.Min(1, v))
}

// delay is longest near the endpoints, where envelope is smallest.
func (g *Generator) delay(envelope float64) time.Duration {
	d := g.cfg.BaseDelay + time.Duration(float64(g.cfg.EaseDelay)*(1-envelope))
	if g.cfg.DelayJitter > 0 {
		d += time.Duration(g.rng.Float64() * float64(g.cfg.DelayJitter))
	}
	return d
}

func (p Path) End() Point {
	if len(p) == 0 {
		return Point{}
	}
	return p[len(p)-1].Point
}

func (p Path) Duration() time.Duration {
	var total time.Duration
	for _, s := range p {
		total += s.Delay
	}
	return total
}

func Distance(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

func EaseInOutSine(p float64) float64 {
	return 0.5 - math.Cos(p*math.Pi)/2
}

func EaseOutQuad(p float64) float64 {
	return 1 - (1-p)*(1-p)
}
