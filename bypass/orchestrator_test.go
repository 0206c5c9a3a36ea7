package bypass

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsbo_scrooper/challenge"
)

var order = []string{
	"remote_solve", "scored_candidates", "environment_neutralization", "timed_hold",
	"standard_hold", "alternative_elements", "slider", "human_priming",
}

func stubs(calls *[]string, clock *fakeClock, winner int) []Strategy {
	out := make([]Strategy, len(order))
	for i, name := range order {
		out[i] = stub{
			name:    name,
			calls:   calls,
			clock:   clock,
			cost:    time.Duration(i+1) * time.Second,
			success: i == winner,
		}
	}
	return out
}

func TestBypassStopsAtFirstSuccess(t *testing.T) {
	var calls []string
	clock := newFakeClock()
	o := NewOrchestrator(stubs(&calls, clock, 2), nil, OrchestratorOptions{Clock: clock.Now, Logger: zerolog.Nop()})

	report := o.Bypass(context.Background(), newFakeSession())

	assert.True(t, report.Success())
	assert.Equal(t, OutcomeResolved, report.Outcome)
	assert.Equal(t, order[:3], calls)
	assert.Equal(t, "environment_neutralization", report.Strategy)
	assert.Equal(t, 6*time.Second, report.Elapsed)
	require.Len(t, report.Attempts, 3)
	assert.Equal(t, 3*time.Second, report.Attempts[2].Elapsed)
}

func TestBypassRunsEveryStrategyOnceWhenAllFail(t *testing.T) {
	var calls []string
	clock := newFakeClock()
	o := NewOrchestrator(stubs(&calls, clock, -1), nil, OrchestratorOptions{Clock: clock.Now, Logger: zerolog.Nop()})

	report := o.Bypass(context.Background(), newFakeSession())

	assert.False(t, report.Success())
	assert.Equal(t, OutcomeExhausted, report.Outcome)
	assert.Equal(t, order, calls)
	assert.Len(t, report.Attempts, 8)
	for _, a := range report.Attempts {
		assert.False(t, a.Success)
		assert.Equal(t, "stub failure", a.Error)
	}
}

func TestBypassRecoversFromPanic(t *testing.T) {
	var calls []string
	strategies := stubs(&calls, nil, 1)
	strategies[0] = stub{name: "remote_solve", calls: &calls, panics: true}

	o := NewOrchestrator(strategies, nil, OrchestratorOptions{Logger: zerolog.Nop()})
	report := o.Bypass(context.Background(), newFakeSession())

	assert.True(t, report.Success())
	assert.Equal(t, []string{"remote_solve", "scored_candidates"}, calls)
	assert.Contains(t, report.Attempts[0].Error, "panic")
	assert.Equal(t, "scored_candidates", report.Strategy)
}

func TestBypassSkipsCleanPage(t *testing.T) {
	var calls []string
	sess := newFakeSession()
	sess.html = cleanHTML

	o := NewOrchestrator(stubs(&calls, nil, -1), nil, OrchestratorOptions{Logger: zerolog.Nop()})
	report := o.Bypass(context.Background(), sess)

	assert.Equal(t, OutcomeNoChallenge, report.Outcome)
	assert.True(t, report.Success())
	assert.Empty(t, calls)
}

func TestBypassTreatsUnreadablePageAsChallenged(t *testing.T) {
	var calls []string
	sess := newFakeSession()
	sess.snapshotErr = context.DeadlineExceeded

	o := NewOrchestrator(stubs(&calls, nil, 0), nil, OrchestratorOptions{Logger: zerolog.Nop()})
	report := o.Bypass(context.Background(), sess)

	assert.Equal(t, challenge.StateAmbiguous, report.Verdict.State)
	assert.Equal(t, []string{"remote_solve"}, calls)
}

func TestBypassRechecksPageAfterFailedStrategy(t *testing.T) {
	var calls []string
	sess := newFakeSession()
	strategies := stubs(&calls, nil, -1)
	strategies[0] = StrategyFunc{ID: "remote_solve", Fn: func(ctx context.Context, s Session) Result {
		calls = append(calls, "remote_solve")
		sess.html = cleanHTML
		return unresolved("remote_solve", "")
	}}

	o := NewOrchestrator(strategies, nil, OrchestratorOptions{Logger: zerolog.Nop()})
	report := o.Bypass(context.Background(), sess)

	assert.Equal(t, OutcomeResolved, report.Outcome)
	assert.Equal(t, []string{"remote_solve"}, calls)
}

func TestBypassRunsFallbackAfterExhaustion(t *testing.T) {
	var calls []string
	sess := newFakeSession()
	ran := false
	fallback := func(ctx context.Context, s Session) error {
		ran = true
		sess.html = cleanHTML
		return nil
	}

	o := NewOrchestrator(stubs(&calls, nil, -1), nil, OrchestratorOptions{Fallback: fallback, Logger: zerolog.Nop()})
	report := o.Bypass(context.Background(), sess)

	assert.True(t, ran)
	assert.True(t, report.Fallback)
	assert.Equal(t, OutcomeResolved, report.Outcome)
	assert.Equal(t, "human_simulation", report.Strategy)
	assert.Len(t, calls, 8)
}

func TestBypassStopsWhenCanceled(t *testing.T) {
	var calls []string
	ctx, cancel := context.WithCancel(context.Background())
	strategies := stubs(&calls, nil, -1)
	strategies[1] = StrategyFunc{ID: "scored_candidates", Fn: func(context.Context, Session) Result {
		calls = append(calls, "scored_candidates")
		cancel()
		return unresolved("scored_candidates", "")
	}}

	o := NewOrchestrator(strategies, nil, OrchestratorOptions{Logger: zerolog.Nop()})
	report := o.Bypass(ctx, newFakeSession())

	assert.Equal(t, OutcomeCanceled, report.Outcome)
	assert.Equal(t, order[:2], calls)
}

func TestFailingSolverFallsThroughToScoredCandidates(t *testing.T) {
	kit := testKit(t)
	rs := &failingSolver{}
	sess := newFakeSession()
	sess.resolveAfter = 1

	strategies := Default(kit, rs)
	var names []string
	for _, st := range strategies {
		names = append(names, st.Name())
	}
	require.Equal(t, order, names)

	o := NewOrchestrator(strategies, kit.Detector, OrchestratorOptions{Logger: zerolog.Nop()})
	report := o.Bypass(context.Background(), sess)

	assert.Equal(t, 1, rs.calls)
	require.GreaterOrEqual(t, len(report.Attempts), 2)
	assert.False(t, report.Attempts[0].Success)
	assert.Contains(t, report.Attempts[0].Error, "ERROR_KEY_DOES_NOT_EXIST")
	assert.Equal(t, "scored_candidates", report.Attempts[1].Strategy)
	assert.True(t, report.Success())
	assert.Equal(t, "scored_candidates", report.Strategy)
}
