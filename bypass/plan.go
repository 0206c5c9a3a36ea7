package bypass

import (
	"context"
	"fmt"
	"time"

	"fsbo_scrooper/motion"
)

type Action string

const (
	ActionMove   Action = "move"
	ActionDown   Action = "down"
	ActionUp     Action = "up"
	ActionWait   Action = "wait"
	ActionScroll Action = "scroll"
	ActionType   Action = "type"
)

// Step is one pointer action followed by a pause.
type Step struct {
	Action Action
	At     motion.Point
	Delta  float64
	Text   string
	Pause  time.Duration
}

// Plan is an interaction written down before it runs. Execution checks for
// cancellation between steps and never leaves the button pressed.
type Plan []Step

func (p *Plan) Move(path motion.Path) *Plan {
	for _, s := range path {
		*p = append(*p, Step{Action: ActionMove, At: s.Point, Pause: s.Delay})
	}
	return p
}

func (p *Plan) MoveTo(pt motion.Point, pause time.Duration) *Plan {
	*p = append(*p, Step{Action: ActionMove, At: pt, Pause: pause})
	return p
}

func (p *Plan) Down(pause time.Duration) *Plan {
	*p = append(*p, Step{Action: ActionDown, Pause: pause})
	return p
}

func (p *Plan) Up(pause time.Duration) *Plan {
	*p = append(*p, Step{Action: ActionUp, Pause: pause})
	return p
}

func (p *Plan) Wait(d time.Duration) *Plan {
	*p = append(*p, Step{Action: ActionWait, Pause: d})
	return p
}

func (p *Plan) Scroll(dy float64, pause time.Duration) *Plan {
	*p = append(*p, Step{Action: ActionScroll, Delta: dy, Pause: pause})
	return p
}

func (p *Plan) Type(text string, pause time.Duration) *Plan {
	*p = append(*p, Step{Action: ActionType, Text: text, Pause: pause})
	return p
}

// Duration is the total scheduled pause time.
func (p Plan) Duration() time.Duration {
	var d time.Duration
	for _, s := range p {
		d += s.Pause
	}
	return d
}

// Count returns how many steps perform action a.
func (p Plan) Count(a Action) int {
	n := 0
	for _, s := range p {
		if s.Action == a {
			n++
		}
	}
	return n
}

// Execute runs the plan against ptr.
func Execute(ctx context.Context, ptr Pointer, sleeper Sleeper, plan Plan) (err error) {
	pressed := false
	defer func() {
		if pressed {
			// Release even when ctx is already done.
			if upErr := ptr.Up(context.Background()); upErr != nil && err == nil {
				err = upErr
			}
		}
	}()

	for i, step := range plan {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch step.Action {
		case ActionMove:
			err = ptr.MoveTo(ctx, step.At.X, step.At.Y)
		case ActionDown:
			err = ptr.Down(ctx)
			if err == nil {
				pressed = true
			}
		case ActionUp:
			err = ptr.Up(ctx)
			if err == nil {
				pressed = false
			}
		case ActionScroll:
			err = ptr.Scroll(ctx, step.Delta)
		case ActionType:
			err = ptr.Type(ctx, step.Text)
		case ActionWait:
		default:
			err = fmt.Errorf("unknown action %q", step.Action)
		}
		if err != nil {
			return fmt.Errorf("step %d (%s): %w", i, step.Action, err)
		}

		if err = sleeper.Sleep(ctx, step.Pause); err != nil {
			return err
		}
	}
	return nil
}
