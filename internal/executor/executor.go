// Package executor drives a planned command sequence against a live page,
// interleaving IntelligenceEngine checks, selector healing, and adaptive
// retry, and emits a per-job ExecutionResult (spec §4.9).
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/flowforge/autoflow/internal/driver"
	"github.com/flowforge/autoflow/internal/healer"
	"github.com/flowforge/autoflow/internal/model"
	"github.com/flowforge/autoflow/internal/obslog"
	"github.com/flowforge/autoflow/internal/pageanalyzer"
	"github.com/flowforge/autoflow/internal/performance"
	"github.com/flowforge/autoflow/internal/planner"
	"github.com/flowforge/autoflow/internal/retry"
	"go.uber.org/zap"
)

// maxHealingCandidates bounds how many ranked candidates the Executor will
// try before falling back to AdaptiveRetry.
const maxHealingCandidates = 5

// KnowledgeRecorder is the subset of KnowledgeBase the Executor writes to.
type KnowledgeRecorder interface {
	RecordSelectorSuccess(site, selector string, strategy model.RefStrategy)
	RecordSelectorFailure(site, selector string, strategy model.RefStrategy)
}

// Options configures one Run invocation.
type Options struct {
	Site               string
	ExpectedURL        string
	ScreenshotsEnabled bool
}

// Executor drives command sequences against a driver.Page.
type Executor struct {
	healer    *healer.Healer
	retrier   *retry.AdaptiveRetry
	monitor   *performance.Monitor
	analyzer  *pageanalyzer.Analyzer
	knowledge KnowledgeRecorder
	urlKnown  pageanalyzer.URLKnowledge

	sleep     func(time.Duration)
	randFloat func() float64
}

// New wires an Executor from its collaborators. Any may be nil; sane
// defaults are constructed (a bare Healer, a bare AdaptiveRetry, a bare
// PerformanceMonitor, no KnowledgeBase/URL-knowledge wiring).
func New(h *healer.Healer, r *retry.AdaptiveRetry, mon *performance.Monitor) *Executor {
	if h == nil {
		h = healer.New()
	}
	if r == nil {
		r = retry.New()
	}
	if mon == nil {
		mon = performance.New()
	}
	return &Executor{
		healer:    h,
		retrier:   r,
		monitor:   mon,
		analyzer:  pageanalyzer.New(),
		sleep:     time.Sleep,
		randFloat: defaultRandFloat,
	}
}

// WithKnowledge attaches selector-learning and known-URL lookups.
func (e *Executor) WithKnowledge(rec KnowledgeRecorder, urlKnown pageanalyzer.URLKnowledge) *Executor {
	e.knowledge = rec
	e.urlKnown = urlKnown
	return e
}

// Run executes commands in strict order against page, producing a
// per-command-record ExecutionResult.
func (e *Executor) Run(ctx context.Context, page driver.Page, job model.Job, commands []planner.Command, opts Options) model.ExecutionResult {
	start := time.Now()
	engine := pageanalyzer.NewEngine(e.urlKnown, opts.ExpectedURL)

	result := model.ExecutionResult{JobID: job.ID, StartTime: start, Status: model.JobRunning}
	metrics := model.ExecutionMetrics{}

	for _, cmd := range commands {
		if cmd.Op == planner.OpGoto {
			if halt, ok := e.consultEngine(ctx, page, engine, opts, &result); ok {
				result.Commands = append(result.Commands, halt)
				return e.finish(result, metrics, start)
			}
		}

		record, healed, outcome := e.runCommand(ctx, page, cmd, opts, &metrics)
		result.Commands = append(result.Commands, record)

		if outcome != nil {
			if isCritical(cmd.Op) {
				result.Status = model.JobFailed
				result.KnowledgeGaps = append(result.KnowledgeGaps, fmt.Sprintf("%s: %v", describeCommand(cmd), outcome))
				return e.finish(result, metrics, start)
			}
			continue
		}

		if healed {
			metrics.SelectorHealingSuccesses++
		}

		if halt, ok := e.consultEngine(ctx, page, engine, opts, &result); ok {
			result.Commands = append(result.Commands, halt)
			return e.finish(result, metrics, start)
		}
	}

	result.Status = model.JobSuccess
	return e.finish(result, metrics, start)
}

func (e *Executor) finish(result model.ExecutionResult, metrics model.ExecutionMetrics, start time.Time) model.ExecutionResult {
	result.Metrics = metrics
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(start)
	return result
}

// consultEngine analyzes the current page and reacts to wait/pause/abort
// verdicts. It returns (record, true) when the plan must halt.
func (e *Executor) consultEngine(ctx context.Context, page driver.Page, engine *pageanalyzer.Engine, opts Options, result *model.ExecutionResult) (model.CommandRecord, bool) {
	analysis := e.analyzer.Analyze(ctx, page, pageanalyzer.Expectation{URL: opts.ExpectedURL})
	verdict := engine.Decide(analysis)

	switch verdict.Decision {
	case pageanalyzer.DecisionContinue:
		return model.CommandRecord{}, false
	case pageanalyzer.DecisionWait:
		e.sleep(verdict.WaitTime)
		return model.CommandRecord{}, false
	case pageanalyzer.DecisionRetry:
		e.sleep(verdict.WaitTime)
		return model.CommandRecord{}, false
	case pageanalyzer.DecisionNavigate:
		if err := page.Goto(ctx, verdict.NavigateToURL, 30*time.Second, driver.WaitUntilLoad); err != nil {
			result.Status = model.JobFailed
			return model.CommandRecord{Command: "navigate:" + verdict.NavigateToURL, Status: model.CommandFailed, Error: err.Error()}, true
		}
		return model.CommandRecord{}, false
	case pageanalyzer.DecisionNavigateBack:
		_, _ = page.Evaluate(ctx, "() => history.back()")
		return model.CommandRecord{}, false
	case pageanalyzer.DecisionPause:
		result.Status = model.JobCaptcha
		if verdict.RequiresHuman {
			result.Status = model.JobBlocked
		}
		return model.CommandRecord{Command: "pause", Status: model.CommandSkipped}, true
	case pageanalyzer.DecisionAbort:
		result.Status = model.JobFailed
		return model.CommandRecord{Command: "abort", Status: model.CommandFailed}, true
	default:
		return model.CommandRecord{}, false
	}
}

// runCommand executes one command with healing and adaptive retry,
// returning the final record, whether healing was used, and any terminal
// error.
func (e *Executor) runCommand(ctx context.Context, page driver.Page, cmd planner.Command, opts Options, metrics *model.ExecutionMetrics) (model.CommandRecord, bool, error) {
	cmdStart := time.Now()
	healed := false

	e.preDelay(cmd.Op)
	err := e.executeCommand(ctx, page, cmd)
	e.postDelay(cmd.Op)
	e.monitor.RecordCommand(string(cmd.Op), opts.Site, time.Since(cmdStart), err == nil)

	if err == nil {
		return model.CommandRecord{Command: describeCommand(cmd), Status: model.CommandSuccess, Duration: time.Since(cmdStart)}, false, nil
	}

	kind := classifyError(err)

	if kind == retry.ErrorSelector && cmd.Selector != "" {
		metrics.SelectorHealingAttempts++
		if record, ok := e.tryHeal(ctx, page, cmd, opts); ok {
			healed = true
			return record, healed, nil
		}
	}

	attempt := 1
	for e.retrier.ShouldRetry(kind, attempt, err.Error()) {
		delay := e.retrier.CalculateDelay(kind, attempt)
		e.sleep(time.Duration(delay) * time.Millisecond)

		metrics.Retries++
		attemptStart := time.Now()
		err = e.executeCommand(ctx, page, cmd)
		e.monitor.RecordCommand(string(cmd.Op), opts.Site, time.Since(attemptStart), err == nil)

		if err == nil {
			return model.CommandRecord{Command: describeCommand(cmd), Status: model.CommandSuccess, Duration: time.Since(cmdStart)}, false, nil
		}
		attempt++
	}

	if e.knowledge != nil && cmd.Target != nil && cmd.Selector != "" {
		e.knowledge.RecordSelectorFailure(opts.Site, cmd.Selector, cmd.Target.Strategy)
	}

	obslog.Get(obslog.CategoryExecutor).Warn("command failed after recovery",
		zap.String("command", describeCommand(cmd)), zap.Error(err))

	return model.CommandRecord{Command: describeCommand(cmd), Status: model.CommandFailed, Duration: time.Since(cmdStart), Error: err.Error()}, false, err
}

// tryHeal attempts up to the top five healing candidates in order.
func (e *Executor) tryHeal(ctx context.Context, page driver.Page, cmd planner.Command, opts Options) (model.CommandRecord, bool) {
	hctx := healer.Context{Site: opts.Site}
	candidates := e.healer.Heal(ctx, page, cmd.Selector, hctx)
	if len(candidates) > maxHealingCandidates {
		candidates = candidates[:maxHealingCandidates]
	}

	for _, cand := range candidates {
		healedCmd := cmd
		healedCmd.Selector = planner.EncodeTarget(model.Target{Strategy: cand.Ref.Strategy, Selector: cand.Ref.Value})
		start := time.Now()
		if err := e.executeCommand(ctx, page, healedCmd); err == nil {
			if e.knowledge != nil {
				e.knowledge.RecordSelectorSuccess(opts.Site, healedCmd.Selector, cand.Ref.Strategy)
			}
			return model.CommandRecord{
				Command:  describeCommand(healedCmd),
				Status:   model.CommandSuccess,
				Duration: time.Since(start),
				Healed:   true,
			}, true
		}
	}
	return model.CommandRecord{}, false
}

func isCritical(op planner.Op) bool {
	switch op {
	case planner.OpGoto, planner.OpClick, planner.OpFill:
		return true
	default:
		return false
	}
}

func describeCommand(cmd planner.Command) string {
	switch cmd.Op {
	case planner.OpGoto:
		return "goto " + cmd.Value
	case planner.OpSleep:
		return fmt.Sprintf("sleep %s", cmd.Timeout)
	default:
		return string(cmd.Op) + " " + cmd.Selector
	}
}

func defaultRandFloat() float64 {
	// Deliberately not math/rand's global source directly; tests override
	// randFloat for determinism, and this keeps the production default in
	// one place.
	return pseudoRandom()
}
