package bypass

import (
	"context"
	"time"

	"fsbo_scrooper/challenge"
	"fsbo_scrooper/fingerprint"
	"fsbo_scrooper/motion"
)

// Box is an on-screen rectangle in CSS pixels.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether the box can be interacted with.
func (b Box) Valid() bool { return b.Width > 0 && b.Height > 0 }

func (b Box) Center() motion.Point {
	return motion.Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Pad grows the box by n pixels on every side.
func (b Box) Pad(n float64) Box {
	return Box{X: b.X - n, Y: b.Y - n, Width: b.Width + 2*n, Height: b.Height + 2*n}
}

// Candidate is a visible element located on the page, with the computed
// style facts the scoring heuristic reads.
type Candidate struct {
	Selector     string `json:"selector"`
	Tag          string `json:"tag"`
	ID           string `json:"id"`
	Class        string `json:"class"`
	Text         string `json:"text"`
	Role         string `json:"role"`
	Cursor       string `json:"cursor"`
	Position     string `json:"position"`
	ZIndex       int    `json:"zIndex"`
	Transition   string `json:"transition"`
	BorderRadius string `json:"borderRadius"`
	TabIndex     bool   `json:"tabIndex"`
	Box          Box    `json:"box"`
	Score        int    `json:"score,omitempty"`
}

// Page is the read side of a browser tab.
type Page interface {
	URL() string
	Snapshot(ctx context.Context) (challenge.Snapshot, error)
	// Candidates returns the visible elements matching any of selectors, in
	// document order, each element at most once.
	Candidates(ctx context.Context, selectors []string) ([]Candidate, error)
	// Screenshot captures clip, or the whole viewport when clip is nil.
	Screenshot(ctx context.Context, clip *Box) ([]byte, error)
	Viewport() (width, height int)
	// Profile is the identity the session was conditioned with. It may be nil.
	Profile() *fingerprint.Profile
	AddInitScript(ctx context.Context, script string) error
	Evaluate(ctx context.Context, script string) error
}

// Pointer drives the mouse and keyboard. Calls are strictly sequential.
type Pointer interface {
	Position() motion.Point
	MoveTo(ctx context.Context, x, y float64) error
	Down(ctx context.Context) error
	Up(ctx context.Context) error
	Scroll(ctx context.Context, dy float64) error
	Type(ctx context.Context, text string) error
}

type Session interface {
	Page
	Pointer
}

// Sleeper pauses between steps. Tests substitute one that returns at once.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RealSleeper waits on the wall clock and honours cancellation.
func RealSleeper() Sleeper { return realSleeper{} }
