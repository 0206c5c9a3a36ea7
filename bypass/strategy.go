// Package bypass runs an ordered list of interaction strategies against an
// anti-bot challenge until one of them clears it.
package bypass

import (
	"context"
	"time"
)

// Strategy is one self-contained attempt at clearing the challenge.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, s Session) Result
}

// Result is what one attempt reports back to the orchestrator.
type Result struct {
	Strategy string        `json:"strategy"`
	Success  bool          `json:"success"`
	Elapsed  time.Duration `json:"elapsed"`
	Detail   string        `json:"detail,omitempty"`
	Error    string        `json:"error,omitempty"`
	Err      error         `json:"-"`
}

func succeeded(name, detail string) Result {
	return Result{Strategy: name, Success: true, Detail: detail}
}

func failed(name string, err error) Result {
	r := Result{Strategy: name, Err: err}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

func unresolved(name, detail string) Result {
	return Result{Strategy: name, Detail: detail}
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc struct {
	ID string
	Fn func(ctx context.Context, s Session) Result
}

func (f StrategyFunc) Name() string { return f.ID }

func (f StrategyFunc) Attempt(ctx context.Context, s Session) Result { return f.Fn(ctx, s) }
