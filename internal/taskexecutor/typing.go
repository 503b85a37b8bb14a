package taskexecutor

import (
	"context"
	"time"

	"github.com/flowforge/autoflow/internal/driver"
)

// humanTyper drives PressKeyboard one character at a time with a variable
// per-character delay, occasional long pauses, and extra pauses after
// spaces, to approximate human typing cadence (spec §4.10).
type humanTyper struct {
	sleep     func(time.Duration)
	randFloat func() float64
}

const (
	charDelayMinMs    = 40
	charDelayMaxMs    = 160
	spaceExtraMs      = 120
	longPauseChanceP  = 0.10
	longPauseMinMs    = 200
	longPauseMaxMs    = 500
)

func (h *humanTyper) Type(ctx context.Context, page driver.Page, selector, text string) error {
	if err := page.Click(ctx, selector, 10*time.Second); err != nil {
		return err
	}
	for _, r := range text {
		if err := page.PressKeyboard(ctx, string(r)); err != nil {
			return err
		}
		h.sleep(h.charDelay(r))
	}
	return nil
}

func (h *humanTyper) charDelay(r rune) time.Duration {
	span := float64(charDelayMaxMs - charDelayMinMs)
	d := time.Duration(charDelayMinMs+h.randFloat()*span) * time.Millisecond
	if r == ' ' {
		d += spaceExtraMs * time.Millisecond
	}
	if h.randFloat() < longPauseChanceP {
		pauseSpan := float64(longPauseMaxMs - longPauseMinMs)
		d += time.Duration(longPauseMinMs+h.randFloat()*pauseSpan) * time.Millisecond
	}
	return d
}
