package fingerprint

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Target is the part of a browser page the conditioner needs.
type Target interface {
	AddInitScript(ctx context.Context, script string) error
	SetViewport(ctx context.Context, width, height int) error
	SetExtraHTTPHeaders(ctx context.Context, headers map[string]string) error
}

// Report lists what was applied and what was skipped.
type Report struct {
	Applied []string          `json:"applied"`
	Failed  map[string]string `json:"failed,omitempty"`
}

func (r Report) OK() bool { return len(r.Failed) == 0 }

type Conditioner struct {
	logger zerolog.Logger
}

func NewConditioner(logger zerolog.Logger) *Conditioner {
	return &Conditioner{logger: logger.With().Str("component", "fingerprint").Logger()}
}

// Condition applies viewport, headers and overrides to t. It is best effort:
// each failure is logged and recorded, and the remaining steps still run.
func (c *Conditioner) Condition(ctx context.Context, t Target, p *Profile, overrides []Override) Report {
	rep := Report{Failed: make(map[string]string)}

	if err := t.SetViewport(ctx, p.ViewportWidth, p.ViewportHeight); err != nil {
		rep.fail("viewport", err)
	} else {
		rep.Applied = append(rep.Applied, "viewport")
	}

	if err := t.SetExtraHTTPHeaders(ctx, Headers(p)); err != nil {
		rep.fail("headers", err)
	} else {
		rep.Applied = append(rep.Applied, "headers")
	}

	for _, o := range overrides {
		if err := ctx.Err(); err != nil {
			rep.fail(o.Name, err)
			continue
		}
		if err := t.AddInitScript(ctx, o.Script); err != nil {
			rep.fail(o.Name, err)
			continue
		}
		rep.Applied = append(rep.Applied, o.Name)
	}

	for name, msg := range rep.Failed {
		c.logger.Warn().Str("override", name).Str("error", msg).Msg("Fingerprint override not applied")
	}
	c.logger.Debug().
		Int("applied", len(rep.Applied)).
		Int("failed", len(rep.Failed)).
		Str("profile", p.String()).
		Msg("Session conditioned")

	return rep
}

func (r *Report) fail(name string, err error) {
	r.Failed[name] = fmt.Sprint(err)
}
