package taskexecutor

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/flowforge/autoflow/internal/driver"
	"github.com/flowforge/autoflow/internal/executor"
	"github.com/flowforge/autoflow/internal/model"
	"github.com/flowforge/autoflow/internal/obslog"
	"github.com/flowforge/autoflow/internal/planner"
	"github.com/flowforge/autoflow/internal/siteconfig"
)

// mobileViewportWidth/Height approximate a common mobile device, used for
// the login-switch step (spec §4.10 step 3).
const (
	mobileViewportWidth  = 390
	mobileViewportHeight = 844
)

// KnowledgeLookup is the subset of KnowledgeBase the TaskExecutor consults
// for cross-task selector adoption.
type KnowledgeLookup interface {
	BestSelector(site, originalSelector string) (model.SelectorHistory, bool)
}

// Input is one TaskExecutor invocation's arguments.
type Input struct {
	Task       model.Task
	Website    model.Website
	TargetURL  string
	Parameters map[string]string
}

// Result is the outcome of one TaskExecutor invocation.
type Result struct {
	Execution    model.ExecutionResult
	ScrapedData  map[string]interface{}
	UsedLogin    bool
	UsedHubPage  bool
	ArrivalRetry bool
}

// Config sets the optional collaborators/dimensions a TaskExecutor uses.
type Config struct {
	DefaultViewportWidth, DefaultViewportHeight int
	HubPageURL                                  string
}

// TaskExecutor orchestrates navigation, login, arrival verification, best-
// recording execution, and scrape extraction for one Task (spec §4.10).
type TaskExecutor struct {
	repo      Repository
	sites     *siteconfig.Manager
	exec      *executor.Executor
	knowledge KnowledgeLookup
	typer     *humanTyper
	cfg       Config

	sleep func(time.Duration)
}

// New wires a TaskExecutor from its collaborators.
func New(repo Repository, sites *siteconfig.Manager, exec *executor.Executor, cfg Config) *TaskExecutor {
	if sites == nil {
		sites = siteconfig.NewWithDefaults()
	}
	if cfg.DefaultViewportWidth == 0 {
		cfg.DefaultViewportWidth = 1280
	}
	if cfg.DefaultViewportHeight == 0 {
		cfg.DefaultViewportHeight = 800
	}
	return &TaskExecutor{
		repo:  repo,
		sites: sites,
		exec:  exec,
		cfg:   cfg,
		typer: &humanTyper{sleep: time.Sleep, randFloat: pseudoRandom},
		sleep: time.Sleep,
	}
}

// WithKnowledge attaches cross-task selector-adoption lookups.
func (te *TaskExecutor) WithKnowledge(kb KnowledgeLookup) *TaskExecutor {
	te.knowledge = kb
	return te
}

// Execute drives the full task against a live page (spec §4.10, steps 1-6).
func (te *TaskExecutor) Execute(ctx context.Context, page driver.Page, job model.Job, in Input) Result {
	log := obslog.Get(obslog.CategoryTaskExecutor).Sugar()
	site := model.Host(in.TargetURL)
	result := Result{ScrapedData: map[string]interface{}{}}

	usedHub := te.navigateViaHub(ctx, page, in.TargetURL)
	result.UsedHubPage = usedHub
	if !usedHub {
		if err := te.navigateWithStrategy(ctx, page, in.TargetURL); err != nil {
			log.Warnw("navigation failed", "url", in.TargetURL, "err", err)
			result.Execution = model.ExecutionResult{JobID: job.ID, Status: model.JobFailed, StartTime: time.Now(), EndTime: time.Now()}
			return result
		}
	}

	if looksLikeLoginPage(ctx, page) {
		if rec, ok := loginRecording(te.repo, in.Website.ID, in.Task.ID); ok {
			log.Infow("login page detected, executing login recording", "site", site)
			_ = page.SetViewport(ctx, mobileViewportWidth, mobileViewportHeight, true)
			if err := executeTranscript(ctx, page, te.typer, rec, in.Parameters); err != nil {
				log.Warnw("login recording execution failed", "err", err)
			} else {
				result.UsedLogin = true
			}
			_ = page.SetViewport(ctx, te.cfg.DefaultViewportWidth, te.cfg.DefaultViewportHeight, false)
		}
	}

	recordings := te.repo.RecordingsByTask(in.Task.ID)
	best, haveBest := bestRecording(recordings)

	if !te.verifyArrival(ctx, page, in.TargetURL, best) {
		result.ArrivalRetry = true
		_ = te.navigateWithStrategy(ctx, page, in.TargetURL)
		if !te.verifyArrival(ctx, page, in.TargetURL, best) {
			log.Warnw("arrival verification failed after retry", "url", in.TargetURL)
		}
	}

	if !haveBest {
		result.Execution = model.ExecutionResult{JobID: job.ID, Status: model.JobFailed, StartTime: time.Now(), EndTime: time.Now(),
			KnowledgeGaps: []string{"no recording available for task " + in.Task.ID}}
		return result
	}

	opts := executor.Options{Site: site, ExpectedURL: in.TargetURL}
	result.Execution = te.executeActions(ctx, page, job, best.Actions, in, opts)

	for _, action := range best.Actions {
		for _, step := range action.Steps {
			if step.Action == model.ActionScrape && step.Source != nil {
				scrapeOne(ctx, page, step.Source, result.ScrapedData)
			}
		}
	}

	return result
}

// navigateViaHub opens the hub page, if configured, and clicks the link
// matching the target domain so it opens the target; returns false (and
// does nothing further) when the hub is unavailable or the link cannot be
// found, letting the caller fall back to direct navigation.
func (te *TaskExecutor) navigateViaHub(ctx context.Context, page driver.Page, targetURL string) bool {
	if te.cfg.HubPageURL == "" {
		return false
	}
	if err := page.Goto(ctx, te.cfg.HubPageURL, 15*time.Second, driver.WaitUntilLoad); err != nil {
		return false
	}
	domain := model.Host(targetURL)
	linkSelector := fmt.Sprintf(`a[href*="%s"]`, domain)
	if count, err := page.Locator(linkSelector).Count(ctx); err != nil || count == 0 {
		return false
	}
	if err := page.Click(ctx, linkSelector, 10*time.Second); err != nil {
		return false
	}
	return true
}

// navigateWithStrategy applies the per-site navigation strategy: high-
// activity sites prefer load+post-load-wait; normal sites try networkidle,
// falling back to load then domcontentloaded. Configured custom selectors
// are then raced, primaries first and fallbacks on timeout (spec §4.10
// step 2).
func (te *TaskExecutor) navigateWithStrategy(ctx context.Context, page driver.Page, targetURL string) error {
	strat := te.sites.Resolve(targetURL)

	waitUntilChain := []driver.WaitUntil{driver.WaitUntilNetworkIdle, driver.WaitUntilLoad, driver.WaitUntilDOMContentLoaded}
	if strat.HighActivity {
		first := mapWaitUntil(strat.WaitUntil)
		if first == driver.WaitUntilNetworkIdle {
			first = driver.WaitUntilLoad
		}
		waitUntilChain = []driver.WaitUntil{first, driver.WaitUntilLoad, driver.WaitUntilDOMContentLoaded}
	}

	var lastErr error
	for _, wu := range waitUntilChain {
		lastErr = page.Goto(ctx, targetURL, strat.NavigationTimeout, wu)
		if lastErr == nil {
			break
		}
	}
	if lastErr != nil {
		return lastErr
	}

	if strat.HighActivity && strat.PostLoadWait > 0 {
		te.sleep(strat.PostLoadWait)
	}

	if len(strat.CustomWaitSelectors) > 0 {
		if !te.raceSelectors(ctx, page, strat.CustomWaitSelectors, strat.CustomWaitTimeout) {
			if len(strat.CustomWaitFallbackSelectors) > 0 {
				te.raceSelectors(ctx, page, strat.CustomWaitFallbackSelectors, strat.CustomWaitFallbackTimeout)
			}
		}
	}

	if strat.AdditionalWaitAfterLoad > 0 {
		te.sleep(strat.AdditionalWaitAfterLoad)
	}
	return nil
}

func mapWaitUntil(w siteconfig.WaitUntil) driver.WaitUntil {
	switch w {
	case siteconfig.WaitUntilLoad:
		return driver.WaitUntilLoad
	case siteconfig.WaitUntilDOMContentLoaded:
		return driver.WaitUntilDOMContentLoaded
	default:
		return driver.WaitUntilNetworkIdle
	}
}

// raceSelectors waits for the first of selectors to appear within timeout;
// returns true once any one resolves.
func (te *TaskExecutor) raceSelectors(ctx context.Context, page driver.Page, selectors []string, timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, sel := range selectors {
			if count, err := page.Locator(sel).Count(ctx); err == nil && count > 0 {
				return true
			}
		}
		te.sleep(100 * time.Millisecond)
	}
	return false
}

// verifyArrival checks host, path, and selector-presence invariants (spec
// §4.10 step 4).
func (te *TaskExecutor) verifyArrival(ctx context.Context, page driver.Page, targetURL string, best model.TaskRecording) bool {
	currentHost := model.Host(page.URL())
	targetHost := model.Host(targetURL)
	if currentHost == "" || currentHost != targetHost {
		return false
	}

	if !pathMatchesTarget(page.URL(), targetURL) {
		return false
	}

	selectors := expectedSelectors(best)
	if len(selectors) == 0 {
		return true
	}
	for _, sel := range selectors {
		if count, err := page.Locator(sel).Count(ctx); err == nil && count > 0 {
			return true
		}
	}
	return false
}

func expectedSelectors(rec model.TaskRecording) []string {
	var out []string
	for _, action := range rec.Actions {
		for _, step := range action.Steps {
			if step.Target != nil && step.Target.HasUsableSelector() {
				out = append(out, planner.EncodeTarget(*step.Target))
			}
		}
	}
	return out
}

func pathMatchesTarget(currentURL, targetURL string) bool {
	cp := urlPathOf(currentURL)
	tp := urlPathOf(targetURL)
	if cp == "/" || cp == "" {
		return true
	}
	return strings.HasPrefix(tp, cp)
}

func urlPathOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

// executeActions runs every canonical action's steps, falling back to the
// step's raw Source selector when the canonical target has none, and
// attempting cross-task selector adoption when a selector-dependent
// command fails (spec §4.10 step 5).
func (te *TaskExecutor) executeActions(ctx context.Context, page driver.Page, job model.Job, actions []model.CanonicalAction, in Input, opts executor.Options) model.ExecutionResult {
	start := time.Now()
	combined := model.ExecutionResult{JobID: job.ID, StartTime: start, Status: model.JobSuccess}

	for _, action := range actions {
		cmds := te.buildCommands(action.Steps, in.Parameters)
		if len(cmds) == 0 {
			continue
		}

		sub := te.exec.Run(ctx, page, job, cmds, opts)
		combined.Commands = append(combined.Commands, sub.Commands...)
		combined.Metrics.SelectorHealingAttempts += sub.Metrics.SelectorHealingAttempts
		combined.Metrics.SelectorHealingSuccesses += sub.Metrics.SelectorHealingSuccesses
		combined.Metrics.Retries += sub.Metrics.Retries
		combined.KnowledgeGaps = append(combined.KnowledgeGaps, sub.KnowledgeGaps...)

		if sub.Status == model.JobFailed {
			if adopted, ok := te.adoptCrossTaskSelector(ctx, page, action, in); ok {
				retryCmds := te.buildCommands(adopted, in.Parameters)
				retry := te.exec.Run(ctx, page, job, retryCmds, opts)
				combined.Commands = append(combined.Commands, retry.Commands...)
				if retry.Status == model.JobSuccess {
					continue
				}
			}
			combined.Status = model.JobFailed
			combined.EndTime = time.Now()
			combined.Duration = combined.EndTime.Sub(start)
			return combined
		}
	}

	combined.EndTime = time.Now()
	combined.Duration = combined.EndTime.Sub(start)
	return combined
}

// buildCommands maps canonical steps to planner commands, substituting
// parameter-bound fill values and falling back to the step's raw Source
// selector when the canonical target carries none.
func (te *TaskExecutor) buildCommands(steps []model.CanonicalStep, params map[string]string) []planner.Command {
	var out []planner.Command
	position := 0
	for i := range steps {
		s := steps[i]
		if s.Action == model.ActionAssert || s.Action == model.ActionScrape {
			continue
		}

		cmds := planner.Generate([]model.CanonicalStep{s})
		if len(cmds) == 0 && s.Source != nil {
			if cmd, ok := rawCommandFor(s, *s.Source); ok {
				cmds = []planner.Command{cmd}
			}
		}

		for _, cmd := range cmds {
			if cmd.Op == planner.OpFill {
				hint := selectorHintFor(s)
				cmd.Value = bindFillValue(cmd.Value, hint, position, params)
				position++
			}
			out = append(out, cmd)
		}
	}
	return out
}

func rawCommandFor(cs model.CanonicalStep, src model.Step) (planner.Command, bool) {
	sel := rawSelector(src)
	if sel == "" {
		return planner.Command{}, false
	}
	switch cs.Action {
	case model.ActionFill:
		return planner.Command{Op: planner.OpFill, Selector: sel, Value: src.Value, Timeout: 10 * time.Second, Source: &cs}, true
	case model.ActionClick:
		return planner.Command{Op: planner.OpClick, Selector: sel, Timeout: 10 * time.Second, Source: &cs}, true
	case model.ActionWaitFor:
		return planner.Command{Op: planner.OpWaitFor, Selector: sel, Timeout: 10 * time.Second, Source: &cs}, true
	default:
		return planner.Command{}, false
	}
}

// adoptCrossTaskSelector searches other tasks in the same website for a
// step sharing the failed action's intent, then verifies the candidate
// selector resolves and is visible on the current page before adopting
// it (spec §4.10 step 5). The KnowledgeBase is consulted first via
// BestSelector on each candidate's original selector.
func (te *TaskExecutor) adoptCrossTaskSelector(ctx context.Context, page driver.Page, failed model.CanonicalAction, in Input) ([]model.CanonicalStep, bool) {
	for _, t := range te.repo.TasksByWebsite(in.Website.ID) {
		if t.ID == in.Task.ID {
			continue
		}
		for _, rec := range te.repo.RecordingsByTask(t.ID) {
			for _, action := range rec.Actions {
				if !intentMatches(action.Intent, failed.Intent) {
					continue
				}
				candidate := cloneSteps(action.Steps)
				if te.candidateResolves(ctx, page, in, candidate) {
					return candidate, true
				}
			}
		}
	}
	return nil, false
}

func (te *TaskExecutor) candidateResolves(ctx context.Context, page driver.Page, in Input, steps []model.CanonicalStep) bool {
	site := model.Host(in.TargetURL)
	for _, s := range steps {
		if s.Target == nil || !s.Target.HasUsableSelector() {
			continue
		}
		selector := planner.EncodeTarget(*s.Target)
		if te.knowledge != nil {
			if hist, ok := te.knowledge.BestSelector(site, selector); ok && hist.SuccessRate() > 0 {
				selector = hist.HealedSelector
			}
		}
		loc := page.Locator(selector)
		count, err := loc.Count(ctx)
		if err != nil || count == 0 {
			return false
		}
		el, err := loc.First(ctx)
		if err != nil || el == nil {
			return false
		}
		if visible, err := el.IsVisible(ctx); err != nil || !visible {
			return false
		}
	}
	return true
}

func intentMatches(a, b string) bool {
	if a == b {
		return true
	}
	patterns := []string{"login", "search", "submit", "navigate"}
	for _, p := range patterns {
		if strings.Contains(a, p) && strings.Contains(b, p) {
			return true
		}
	}
	return false
}

func cloneSteps(steps []model.CanonicalStep) []model.CanonicalStep {
	out := make([]model.CanonicalStep, len(steps))
	copy(out, steps)
	return out
}

func pseudoRandom() float64 {
	return rand.Float64()
}
