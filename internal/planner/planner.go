// Package planner maps CanonicalSteps to a driver-agnostic command sequence
// (spec §4.4, named PlaywrightGenerator in the original spec).
package planner

import (
	"fmt"
	"strings"
	"time"

	"github.com/flowforge/autoflow/internal/model"
)

// Op is the closed set of driver-agnostic command operations.
type Op string

const (
	OpGoto          Op = "goto"
	OpFill          Op = "fill"
	OpClick         Op = "click"
	OpWaitFor       Op = "waitFor"
	OpSleep         Op = "sleep"
	OpSelectOption  Op = "selectOption"
	OpPress         Op = "press"
	OpHover         Op = "hover"
	OpScroll        Op = "scroll"
)

const (
	defaultGotoTimeout    = 30 * time.Second
	defaultActionTimeout  = 10 * time.Second
)

// Command is one driver-agnostic instruction produced by the planner.
type Command struct {
	Op       Op
	Selector string
	Value    string
	Key      string
	Timeout  time.Duration
	WaitUntil string
	ScrollX, ScrollY float64
	Target   *model.Target
	Source   *model.CanonicalStep
}

// Generate maps canonical steps to a command sequence. assert steps are
// dropped per spec.md §4.4 ("verification is done in the Executor/
// TaskExecutor"); click steps with no usable target are dropped, letting the
// Executor fall back to the original transcript.
func Generate(steps []model.CanonicalStep) []Command {
	cmds := make([]Command, 0, len(steps))
	for i := range steps {
		s := steps[i]
		switch s.Action {
		case model.ActionNavigate:
			cmds = append(cmds, Command{Op: OpGoto, Value: s.Value, Timeout: defaultGotoTimeout, WaitUntil: "load", Source: &steps[i]})
		case model.ActionFill:
			if s.Target == nil || !s.Target.HasUsableSelector() {
				continue
			}
			cmds = append(cmds, Command{Op: OpFill, Selector: EncodeTarget(*s.Target), Value: s.Value, Timeout: defaultActionTimeout, Target: s.Target, Source: &steps[i]})
		case model.ActionClick:
			if s.Target == nil || !s.Target.HasUsableSelector() {
				continue
			}
			cmds = append(cmds, Command{Op: OpClick, Selector: EncodeTarget(*s.Target), Timeout: defaultActionTimeout, Target: s.Target, Source: &steps[i]})
		case model.ActionWaitFor:
			if s.Target == nil || !s.Target.HasUsableSelector() {
				timeout := s.Timeout
				if timeout == 0 {
					timeout = defaultActionTimeout
				}
				cmds = append(cmds, Command{Op: OpSleep, Timeout: timeout, Source: &steps[i]})
				continue
			}
			timeout := s.Timeout
			if timeout == 0 {
				timeout = defaultActionTimeout
			}
			cmds = append(cmds, Command{Op: OpWaitFor, Selector: EncodeTarget(*s.Target), Timeout: timeout, Target: s.Target, Source: &steps[i]})
		case model.ActionSelect:
			if s.Target == nil || !s.Target.HasUsableSelector() {
				continue
			}
			cmds = append(cmds, Command{Op: OpSelectOption, Selector: EncodeTarget(*s.Target), Value: s.Value, Timeout: defaultActionTimeout, Target: s.Target, Source: &steps[i]})
		case model.ActionPress:
			sel := "body"
			if s.Target != nil && s.Target.HasUsableSelector() {
				sel = EncodeTarget(*s.Target)
			}
			cmds = append(cmds, Command{Op: OpPress, Selector: sel, Key: s.Value, Timeout: defaultActionTimeout, Target: s.Target, Source: &steps[i]})
		case model.ActionHover:
			if s.Target == nil || !s.Target.HasUsableSelector() {
				continue
			}
			cmds = append(cmds, Command{Op: OpHover, Selector: EncodeTarget(*s.Target), Timeout: defaultActionTimeout, Target: s.Target, Source: &steps[i]})
		case model.ActionScroll:
			x, y := optFloat(s.Options, "x"), optFloat(s.Options, "y")
			cmds = append(cmds, Command{Op: OpScroll, ScrollX: x, ScrollY: y, Source: &steps[i]})
		case model.ActionAssert, model.ActionScrape:
			// dropped at this layer (spec.md §4.4); scrape extraction happens
			// directly against the canonical step's source Step in the caller
		}
	}
	return cmds
}

func optFloat(opts map[string]interface{}, key string) float64 {
	if opts == nil {
		return 0
	}
	if v, ok := opts[key].(float64); ok {
		return v
	}
	return 0
}

// EncodeTarget encodes a Target into the driver-level selector string per
// spec.md §4.4's strategy-to-selector table.
func EncodeTarget(t model.Target) string {
	switch t.Strategy {
	case model.RefXPath:
		return "xpath=" + t.Selector
	case model.RefText:
		return "text=" + t.Selector
	case model.RefRole:
		return "role=" + t.Selector
	case model.RefTestID:
		return fmt.Sprintf(`[data-testid="%s"]`, t.Selector)
	case model.RefLabel:
		return "label=" + t.Selector
	default:
		return t.Selector
	}
}

// DecodeSelector parses an encoded selector string back into a Target,
// inverse of EncodeTarget for the supported strategies. Together with
// EncodeTarget it satisfies the round-trip law in spec.md §8:
// targetToSelector(selectorToTarget(s)) == s.
func DecodeSelector(s string) model.Target {
	switch {
	case strings.HasPrefix(s, "xpath="):
		return model.Target{Strategy: model.RefXPath, Selector: strings.TrimPrefix(s, "xpath=")}
	case strings.HasPrefix(s, "text="):
		return model.Target{Strategy: model.RefText, Selector: strings.TrimPrefix(s, "text=")}
	case strings.HasPrefix(s, "role="):
		return model.Target{Strategy: model.RefRole, Selector: strings.TrimPrefix(s, "role=")}
	case strings.HasPrefix(s, "label="):
		return model.Target{Strategy: model.RefLabel, Selector: strings.TrimPrefix(s, "label=")}
	case strings.HasPrefix(s, `[data-testid="`) && strings.HasSuffix(s, `"]`):
		inner := strings.TrimSuffix(strings.TrimPrefix(s, `[data-testid="`), `"]`)
		return model.Target{Strategy: model.RefTestID, Selector: inner}
	default:
		return model.Target{Strategy: model.RefCSS, Selector: s}
	}
}
