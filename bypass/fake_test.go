package bypass

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"fsbo_scrooper/challenge"
	"fsbo_scrooper/fingerprint"
	"fsbo_scrooper/motion"
	"fsbo_scrooper/solver"
)

const challengeHTML = `<html><head><title>Access to this page has been denied</title></head>
<body><div id="px-captcha" role="button">Press &amp; Hold to confirm you are a human</div></body></html>`

const cleanHTML = `<html><head><title>90210 Homes For Sale</title></head>
<body><main><article>1012 N Beverly Dr</article></main></body></html>`

// fakeSession is an in-memory page and pointer. It swaps to the clean page
// after resolveAfter mouse releases when resolveAfter is positive.
type fakeSession struct {
	mu           sync.Mutex
	html         string
	resolveAfter int
	elements     []fakeElement
	pos          motion.Point
	actions      []string
	ups          int
	downs        int
	scripts      []string
	evaluated    []string
	snapshotErr  error
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		html: challengeHTML,
		elements: []fakeElement{{
			matches: []string{"#px-captcha", "div", "[role='button']", "[tabindex]"},
			Candidate: Candidate{
				Tag: "div", ID: "px-captcha", Role: "button", TabIndex: true, Cursor: "pointer",
				Text: "Press & Hold", Box: Box{X: 500, Y: 300, Width: 310, Height: 100},
			},
		}},
	}
}

// fakeElement is a page element and the selectors it answers to.
type fakeElement struct {
	Candidate
	matches []string
}

func (f *fakeSession) add(c Candidate, matches ...string) {
	f.elements = append(f.elements, fakeElement{Candidate: c, matches: matches})
}

func (f *fakeSession) URL() string { return "https://www.zillow.com/homes/fsbo/90210_rb/" }

func (f *fakeSession) Snapshot(ctx context.Context) (challenge.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	return challenge.NewDocumentSnapshot(f.html, "", "")
}

func (f *fakeSession) Candidates(ctx context.Context, selectors []string) ([]Candidate, error) {
	var out []Candidate
	for _, el := range f.elements {
		if sel, ok := firstMatch(el.matches, selectors); ok {
			c := el.Candidate
			c.Selector = sel
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeSession) Screenshot(ctx context.Context, clip *Box) ([]byte, error) {
	return []byte("png"), nil
}

func (f *fakeSession) Viewport() (int, int) { return 1366, 768 }

func (f *fakeSession) Profile() *fingerprint.Profile { return nil }

func (f *fakeSession) AddInitScript(ctx context.Context, script string) error {
	f.scripts = append(f.scripts, script)
	return nil
}

func (f *fakeSession) Evaluate(ctx context.Context, script string) error {
	f.evaluated = append(f.evaluated, script)
	return nil
}

func (f *fakeSession) Position() motion.Point { return f.pos }

func (f *fakeSession) MoveTo(ctx context.Context, x, y float64) error {
	f.pos = motion.Point{X: x, Y: y}
	f.record("move")
	return nil
}

func (f *fakeSession) Down(ctx context.Context) error {
	f.downs++
	f.record("down")
	return nil
}

func (f *fakeSession) Up(ctx context.Context) error {
	f.mu.Lock()
	f.ups++
	if f.resolveAfter > 0 && f.ups >= f.resolveAfter {
		f.html = cleanHTML
	}
	f.mu.Unlock()
	f.record("up")
	return nil
}

func (f *fakeSession) Scroll(ctx context.Context, dy float64) error {
	f.record(fmt.Sprintf("scroll %.0f", dy))
	return nil
}

func (f *fakeSession) Type(ctx context.Context, text string) error {
	f.record("type " + text)
	return nil
}

func (f *fakeSession) record(a string) {
	f.mu.Lock()
	f.actions = append(f.actions, a)
	f.mu.Unlock()
}

func (f *fakeSession) count(a string) int {
	n := 0
	for _, x := range f.actions {
		if x == a {
			n++
		}
	}
	return n
}

// noSleep returns at once unless ctx is done.
type noSleep struct{}

func (noSleep) Sleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

// fakeClock moves only when told to.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testKit(t *testing.T) *Toolkit {
	t.Helper()
	return NewToolkit(challenge.NewDetector(nil), motion.NewSeeded(42), DefaultTimings(), noSleep{}, zerolog.Nop())
}

// stub is a strategy that records its call and advances the clock.
type stub struct {
	name    string
	calls   *[]string
	clock   *fakeClock
	cost    time.Duration
	success bool
	panics  bool
}

func (s stub) Name() string { return s.name }

func (s stub) Attempt(ctx context.Context, sess Session) Result {
	*s.calls = append(*s.calls, s.name)
	if s.clock != nil {
		s.clock.Advance(s.cost)
	}
	if s.panics {
		panic("selector exploded")
	}
	if s.success {
		return succeeded(s.name, "stub")
	}
	return failed(s.name, errors.New("stub failure"))
}

type failingSolver struct{ calls int }

func (f *failingSolver) Solve(ctx context.Context, req solver.Request) (*solver.Solution, error) {
	f.calls++
	return nil, errors.New("ERROR_KEY_DOES_NOT_EXIST")
}

func firstMatch(have, want []string) (string, bool) {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return w, true
			}
		}
	}
	return "", false
}
