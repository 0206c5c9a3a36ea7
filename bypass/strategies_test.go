package bypass

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsbo_scrooper/solver"
)

type recordingSolver struct {
	req solver.Request
	sol *solver.Solution
}

func (r *recordingSolver) Solve(ctx context.Context, req solver.Request) (*solver.Solution, error) {
	r.req = req
	return r.sol, nil
}

func TestEveryStrategyClearsAResponsivePage(t *testing.T) {
	kit := testKit(t)
	rs := &recordingSolver{sol: &solver.Solution{TaskID: 7, HoldMs: 4200}}

	for _, st := range Default(kit, rs) {
		st := st
		t.Run(st.Name(), func(t *testing.T) {
			sess := newFakeSession()
			sess.resolveAfter = 1

			res := st.Attempt(context.Background(), sess)

			assert.True(t, res.Success, "detail=%s err=%v", res.Detail, res.Err)
			assert.NoError(t, res.Err)
			assert.Equal(t, st.Name(), res.Strategy)
			assert.Equal(t, sess.downs, sess.ups, "button left pressed")
		})
	}
}

func TestEveryStrategyReportsFailureOnStubbornPage(t *testing.T) {
	kit := testKit(t)
	rs := &recordingSolver{sol: &solver.Solution{TaskID: 7}}

	for _, st := range Default(kit, rs) {
		sess := newFakeSession()
		res := st.Attempt(context.Background(), sess)
		assert.False(t, res.Success, st.Name())
		assert.Equal(t, sess.downs, sess.ups, st.Name())
	}
}

func TestStrategiesFailWithoutElement(t *testing.T) {
	kit := testKit(t)
	rs := &recordingSolver{sol: &solver.Solution{TaskID: 7}}

	for _, st := range Default(kit, rs) {
		sess := newFakeSession()
		sess.elements = nil

		res := st.Attempt(context.Background(), sess)

		assert.False(t, res.Success, st.Name())
		assert.True(t, errors.Is(res.Err, ErrNoCandidate), "%s: %v", st.Name(), res.Err)
		assert.Zero(t, sess.downs, st.Name())
	}
}

func TestRemoteSolveSendsVariantAndHoldsForHint(t *testing.T) {
	kit := testKit(t)
	rs := &recordingSolver{sol: &solver.Solution{TaskID: 9, HoldMs: 4200}}
	sess := newFakeSession()
	sess.resolveAfter = 1

	st := &RemoteSolve{kit: kit, solver: rs}
	res := st.Attempt(context.Background(), sess)

	require.True(t, res.Success)
	assert.Equal(t, "press_hold", rs.req.Variant)
	assert.Equal(t, sess.URL(), rs.req.PageURL)
	assert.NotEmpty(t, rs.req.ImageBase64)
	assert.Contains(t, res.Detail, "task=9")
}

func TestRemoteSolveWithoutSolver(t *testing.T) {
	st := &RemoteSolve{kit: testKit(t)}
	res := st.Attempt(context.Background(), newFakeSession())
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrNoSolver)
}

func TestNeutralizeAppliesOverridesBothWays(t *testing.T) {
	sess := newFakeSession()
	sess.resolveAfter = 1

	res := (&Neutralize{kit: testKit(t)}).Attempt(context.Background(), sess)

	require.True(t, res.Success)
	assert.NotEmpty(t, sess.evaluated)
	assert.Equal(t, len(sess.evaluated), len(sess.scripts))
	scrolls := 0
	for _, a := range sess.actions {
		if len(a) > 6 && a[:6] == "scroll" {
			scrolls++
		}
	}
	assert.Equal(t, 2, scrolls)
}

func TestTimedHoldUsesTimerWhenVisible(t *testing.T) {
	kit := testKit(t)

	plain := newFakeSession()
	res := (&TimedHold{kit: kit}).Attempt(context.Background(), plain)
	assert.Equal(t, "timer=false", res.Detail)

	timed := newFakeSession()
	timed.add(Candidate{Tag: "div", Class: "progress", Box: Box{X: 500, Y: 410, Width: 310, Height: 4}}, "[class*='progress']")
	res = (&TimedHold{kit: kit}).Attempt(context.Background(), timed)
	assert.Equal(t, "timer=true", res.Detail)
	// 60-100ms ticks over at least 3.5s.
	assert.Greater(t, timed.count("move"), plain.count("move"))
}

func TestScoredCandidatesPrefersWidget(t *testing.T) {
	sess := newFakeSession()
	sess.elements = append([]fakeElement{{
		matches:   []string{"div"},
		Candidate: Candidate{Tag: "div", Class: "footer", Text: "About", Box: Box{Width: 1366, Height: 40}},
	}}, sess.elements...)
	sess.resolveAfter = 1

	res := (&ScoredCandidates{kit: testKit(t)}).Attempt(context.Background(), sess)

	require.True(t, res.Success)
	assert.Contains(t, res.Detail, "candidate 1")
	assert.Contains(t, res.Detail, "mode=hold")
}

func TestAlternativesSkipsTinyElements(t *testing.T) {
	sess := newFakeSession()
	sess.elements = []fakeElement{{
		matches:   []string{"button"},
		Candidate: Candidate{Tag: "button", Box: Box{X: 10, Y: 10, Width: 4, Height: 4}},
	}}

	res := (&Alternatives{kit: testKit(t)}).Attempt(context.Background(), sess)

	assert.ErrorIs(t, res.Err, ErrNoCandidate)
	assert.Zero(t, sess.downs)
}

func TestAlternativesTriesEveryElement(t *testing.T) {
	sess := newFakeSession()
	sess.elements = nil
	for i := 0; i < 12; i++ {
		sess.add(Candidate{Tag: "button", Box: Box{X: float64(20 + 60*i), Y: 500, Width: 50, Height: 30}}, "button")
	}
	sess.resolveAfter = 12

	res := (&Alternatives{kit: testKit(t)}).Attempt(context.Background(), sess)

	require.True(t, res.Success, res.Detail)
	assert.Equal(t, 12, sess.downs)
	assert.Equal(t, 12, sess.ups)
}

func TestAlternativesReachesSliderLikeElements(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		c        Candidate
	}{
		{"slider class", "[class*='slider']", Candidate{Tag: "div", Class: "verify-slider"}},
		{"vendor id", "[id^='px-']", Candidate{Tag: "div", ID: "px-widget"}},
		{"vendor class", "[class^='px-']", Candidate{Tag: "span", Class: "px-inner"}},
		{"focusable div", "div[tabindex]", Candidate{Tag: "div", TabIndex: true}},
		{"verify class", "[class*='verify']", Candidate{Tag: "div", Class: "verify-box"}},
		{"captcha id", "[id*='captcha']", Candidate{Tag: "div", ID: "main-captcha"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := newFakeSession()
			sess.elements = nil
			tt.c.Box = Box{X: 300, Y: 300, Width: 200, Height: 60}
			sess.add(tt.c, tt.selector)
			sess.resolveAfter = 1

			res := (&Alternatives{kit: testKit(t)}).Attempt(context.Background(), sess)

			require.True(t, res.Success, res.Detail)
			assert.Equal(t, 1, sess.downs)
		})
	}
}

func TestSliderDragsHandleAcrossTrack(t *testing.T) {
	sess := newFakeSession()
	sess.add(Candidate{Tag: "div", Class: "slider-track", Box: Box{X: 100, Y: 200, Width: 300, Height: 40}}, "[class*='slider-track']")
	sess.add(Candidate{Tag: "div", Class: "slider-handle", Box: Box{X: 100, Y: 200, Width: 40, Height: 40}}, "[class*='slider-handle']")
	sess.resolveAfter = 1

	res := (&Slider{kit: testKit(t)}).Attempt(context.Background(), sess)

	require.True(t, res.Success)
	assert.Equal(t, 1, sess.downs)
	assert.InDelta(t, 378, sess.pos.X, 0.01)
}

func TestStrategyHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sess := newFakeSession()
	res := (&StandardHold{kit: testKit(t)}).Attempt(ctx, sess)

	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Zero(t, sess.downs)
}

func TestSimulateHumanScrollsAndClicks(t *testing.T) {
	sess := newFakeSession()
	err := SimulateHuman(testKit(t))(context.Background(), sess)
	require.NoError(t, err)

	assert.Equal(t, 1, sess.downs)
	assert.Equal(t, 1, sess.ups)
	assert.Less(t, sess.pos.Y, 768.0/2)
	scrolls := 0
	for _, a := range sess.actions {
		if len(a) > 6 && a[:6] == "scroll" {
			scrolls++
		}
	}
	assert.Equal(t, 2, scrolls)
}

func TestHoldTicksCoverDuration(t *testing.T) {
	kit := testKit(t)
	var p Plan
	kit.hold(&p, Box{Width: 10, Height: 10}.Center(), 3*time.Second, Range{250 * time.Millisecond, 250 * time.Millisecond}, nil)

	assert.Equal(t, 3*time.Second, p.Duration())
	assert.Equal(t, 1, p.Count(ActionDown))
	assert.Equal(t, 1, p.Count(ActionUp))
}
