package executor

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/flowforge/autoflow/internal/driver"
	"github.com/flowforge/autoflow/internal/planner"
	"github.com/flowforge/autoflow/internal/retry"
)

// executeCommand dispatches one Command to the appropriate Page method.
func (e *Executor) executeCommand(ctx context.Context, page driver.Page, cmd planner.Command) error {
	switch cmd.Op {
	case planner.OpGoto:
		return page.Goto(ctx, cmd.Value, cmd.Timeout, waitUntilFrom(cmd.WaitUntil))
	case planner.OpFill:
		return page.Fill(ctx, cmd.Selector, cmd.Value, cmd.Timeout)
	case planner.OpClick:
		return page.Click(ctx, cmd.Selector, cmd.Timeout)
	case planner.OpWaitFor:
		return page.WaitForSelector(ctx, cmd.Selector, cmd.Timeout)
	case planner.OpSleep:
		e.sleep(cmd.Timeout)
		return nil
	case planner.OpSelectOption:
		return page.SelectOption(ctx, cmd.Selector, cmd.Value)
	case planner.OpPress:
		return page.Press(ctx, cmd.Selector, cmd.Key)
	case planner.OpHover:
		return page.Hover(ctx, cmd.Selector)
	case planner.OpScroll:
		return page.ScrollBy(ctx, cmd.ScrollX, cmd.ScrollY)
	default:
		return nil
	}
}

func waitUntilFrom(s string) driver.WaitUntil {
	switch s {
	case string(driver.WaitUntilDOMContentLoaded):
		return driver.WaitUntilDOMContentLoaded
	case string(driver.WaitUntilNetworkIdle):
		return driver.WaitUntilNetworkIdle
	default:
		return driver.WaitUntilLoad
	}
}

// preDelay applies the mandatory human-like delay before an interaction,
// per click: uniform 200-800ms; fill: uniform 300-800ms.
func (e *Executor) preDelay(op planner.Op) {
	if d, ok := humanDelayRange(op); ok {
		e.sleep(d.sample(e.randFloat))
	}
}

// postDelay mirrors preDelay after the interaction completes.
func (e *Executor) postDelay(op planner.Op) {
	if d, ok := humanDelayRange(op); ok {
		e.sleep(d.sample(e.randFloat))
	}
}

type delayRange struct{ minMs, maxMs float64 }

func (d delayRange) sample(randFloat func() float64) time.Duration {
	span := d.maxMs - d.minMs
	ms := d.minMs + randFloat()*span
	return time.Duration(ms) * time.Millisecond
}

func humanDelayRange(op planner.Op) (delayRange, bool) {
	switch op {
	case planner.OpClick:
		return delayRange{200, 800}, true
	case planner.OpFill:
		return delayRange{300, 800}, true
	default:
		return delayRange{}, false
	}
}

// classifyError maps a driver-surfaced error into the retry package's
// closed error-kind vocabulary by inspecting the message text, since the
// driver contract returns plain errors rather than typed ones.
func classifyError(err error) retry.ErrorKind {
	if err == nil {
		return retry.ErrorOther
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "forbidden") || strings.Contains(msg, "403"):
		return retry.Error403
	case strings.Contains(msg, "500") || strings.Contains(msg, "internal server error"):
		return retry.Error500
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return retry.ErrorTimeout
	case strings.Contains(msg, "selector") || strings.Contains(msg, "element") || strings.Contains(msg, "not found") || strings.Contains(msg, "no node"):
		return retry.ErrorSelector
	case strings.Contains(msg, "network") || strings.Contains(msg, "connection") || strings.Contains(msg, "dns") || strings.Contains(msg, "refused"):
		return retry.ErrorNetwork
	default:
		return retry.ErrorOther
	}
}

func pseudoRandom() float64 {
	return rand.Float64()
}
