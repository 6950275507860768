package stealth

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
)

// HumanizeOptions controls the optional human-like interaction performed
// after navigation and before extraction.
type HumanizeOptions struct {
	MouseMoves  int
	ScrollSteps int
	// MinPause/MaxPause bound the randomized delay between gestures.
	MinPause time.Duration
	MaxPause time.Duration
}

// DefaultHumanize is a short, low-cost gesture sequence.
var DefaultHumanize = HumanizeOptions{
	MouseMoves:  3,
	ScrollSteps: 2,
	MinPause:    150 * time.Millisecond,
	MaxPause:    600 * time.Millisecond,
}

// Humanize performs randomized mouse movement and scrolling so interaction
// timing does not look mechanical.
func (b *Browser) Humanize(opts HumanizeOptions) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		x, y := 200.0+rand.Float64()*400, 150.0+rand.Float64()*300
		for i := 0; i < opts.MouseMoves; i++ {
			// Small curved steps rather than one straight jump.
			x += rand.Float64()*120 - 60
			y += rand.Float64()*80 - 40
			if err := input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx); err != nil {
				return fmt.Errorf("mouse move: %w", err)
			}
			if err := randomPause(ctx, opts); err != nil {
				return err
			}
		}
		for i := 0; i < opts.ScrollSteps; i++ {
			delta := 200 + rand.Intn(400)
			if err := chromedp.Evaluate(
				fmt.Sprintf(`window.scrollBy({top: %d, behavior: 'smooth'})`, delta),
				nil).Do(ctx); err != nil {
				return fmt.Errorf("scroll: %w", err)
			}
			if err := randomPause(ctx, opts); err != nil {
				return err
			}
		}
		return nil
	})
}

func randomPause(ctx context.Context, opts HumanizeOptions) error {
	min, max := opts.MinPause, opts.MaxPause
	if max <= min {
		max = min + 100*time.Millisecond
	}
	return sleepCtx(ctx, min+time.Duration(rand.Int63n(int64(max-min))))
}
