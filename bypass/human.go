package bypass

import (
	"context"
	"time"

	"fsbo_scrooper/motion"
)

// SimulateHuman is the last-resort behaviour: a reader scrolling around the
// page and clicking somewhere in its upper half.
func SimulateHuman(k *Toolkit) FallbackFunc {
	return func(ctx context.Context, s Session) error {
		w, h := s.Viewport()
		if w <= 0 || h <= 0 {
			w, h = 1280, 720
		}
		fw, fh := float64(w), float64(h)

		var p Plan
		p.Wait(k.Motion.Between(time.Second, 2500*time.Millisecond))
		p.Scroll(float64(k.Motion.IntBetween(180, 380)), k.Motion.Between(500*time.Millisecond, 1200*time.Millisecond))

		pos := s.Position()
		for _, frac := range [][2]float64{{0.3, 0.2}, {0.7, 0.3}, {0.5, 0.5}} {
			next := motion.Point{X: fw * frac[0], Y: fh * frac[1]}
			k.approach(&p, pos, next)
			p.Wait(k.Motion.Between(300*time.Millisecond, 900*time.Millisecond))
			pos = next
		}

		p.Scroll(float64(k.Motion.IntBetween(300, 500)), k.Motion.Between(800*time.Millisecond, 1500*time.Millisecond))

		target := k.Motion.Within(0, 0, fw, fh/2, 50)
		k.approach(&p, pos, target)
		p.Down(k.Motion.Between(80*time.Millisecond, 200*time.Millisecond))
		p.Up(0)

		return k.run(ctx, s, p)
	}
}
