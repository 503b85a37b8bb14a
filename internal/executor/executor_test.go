package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowforge/autoflow/internal/driver"
	"github.com/flowforge/autoflow/internal/healer"
	"github.com/flowforge/autoflow/internal/model"
	"github.com/flowforge/autoflow/internal/performance"
	"github.com/flowforge/autoflow/internal/planner"
	"github.com/flowforge/autoflow/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePage is a scriptable driver.Page double; only the methods exercised
// by the Executor carry behavior, everything else is a quiet no-op.
type fakePage struct {
	urlVal string

	clickFn func(selector string) error
	fillFn  func(selector string) error
	gotoFn  func(url string) error
	waitFn  func(selector string) error
}

func (f *fakePage) Goto(ctx context.Context, url string, timeout time.Duration, waitUntil driver.WaitUntil) error {
	if f.gotoFn != nil {
		return f.gotoFn(url)
	}
	return nil
}
func (f *fakePage) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	if f.fillFn != nil {
		return f.fillFn(selector)
	}
	return nil
}
func (f *fakePage) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if f.clickFn != nil {
		return f.clickFn(selector)
	}
	return nil
}
func (f *fakePage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if f.waitFn != nil {
		return f.waitFn(selector)
	}
	return nil
}
func (f *fakePage) WaitForLoadState(context.Context, driver.WaitUntil, time.Duration) error { return nil }
func (f *fakePage) Screenshot(context.Context, bool) ([]byte, error)                        { return nil, nil }
func (f *fakePage) Evaluate(ctx context.Context, js string, args ...interface{}) (interface{}, error) {
	return nil, nil
}
func (f *fakePage) Press(context.Context, string, string) error        { return nil }
func (f *fakePage) Hover(context.Context, string) error                { return nil }
func (f *fakePage) SelectOption(context.Context, string, string) error { return nil }
func (f *fakePage) TypeKeyboard(context.Context, string) error         { return nil }
func (f *fakePage) PressKeyboard(context.Context, string) error        { return nil }
func (f *fakePage) IsClosed() bool                                     { return false }
func (f *fakePage) URL() string                                        { return f.urlVal }
func (f *fakePage) Title(context.Context) (string, error)              { return "", nil }
func (f *fakePage) TextContent(context.Context, string) (string, error) {
	return "", nil
}
func (f *fakePage) Locator(selector string) driver.Locator { return &fakeLocator{} }
func (f *fakePage) ScrollBy(context.Context, float64, float64) error { return nil }
func (f *fakePage) Close(context.Context) error                     { return nil }
func (f *fakePage) ElementContext(context.Context, string) (driver.ElementContext, bool) {
	return driver.ElementContext{}, false
}
func (f *fakePage) StorageState(context.Context) ([]byte, error)      { return nil, nil }
func (f *fakePage) RestoreStorageState(context.Context, []byte) error { return nil }
func (f *fakePage) SetViewport(context.Context, int, int, bool) error { return nil }

type fakeLocator struct{}

func (l *fakeLocator) First(context.Context) (driver.ElementHandle, error) { return nil, nil }
func (l *fakeLocator) Nth(context.Context, int) (driver.ElementHandle, error) {
	return nil, nil
}
func (l *fakeLocator) Count(context.Context) (int, error) { return 0, nil }

func newTestExecutor() *Executor {
	e := New(healer.New(), retry.New(), performance.New())
	e.sleep = func(time.Duration) {} // no real waiting in tests
	return e
}

func TestRun_SuccessPath(t *testing.T) {
	e := newTestExecutor()
	page := &fakePage{urlVal: "https://x.test/dashboard"}
	cmds := []planner.Command{
		{Op: planner.OpGoto, Value: "https://x.test/dashboard", Timeout: 30 * time.Second, WaitUntil: "load"},
		{Op: planner.OpFill, Selector: "#email", Value: "a@x.test", Timeout: 10 * time.Second},
		{Op: planner.OpClick, Selector: "#submit", Timeout: 10 * time.Second},
	}
	result := e.Run(context.Background(), page, model.Job{ID: "job-1"}, cmds, Options{Site: "x.test"})

	assert.Equal(t, model.JobSuccess, result.Status)
	require.Len(t, result.Commands, 3)
	for _, rec := range result.Commands {
		assert.Equal(t, model.CommandSuccess, rec.Status)
	}
	assert.Equal(t, 0, result.Metrics.Retries)
}

func TestRun_SelectorHealingRecoversFailingClick(t *testing.T) {
	e := newTestExecutor()
	page := &fakePage{
		urlVal: "https://x.test/dashboard",
		clickFn: func(selector string) error {
			if selector == "#missing" {
				return errors.New("element not found: #missing")
			}
			return nil
		},
	}
	cmds := []planner.Command{
		{Op: planner.OpClick, Selector: "#missing", Timeout: 10 * time.Second},
	}
	result := e.Run(context.Background(), page, model.Job{ID: "job-2"}, cmds, Options{Site: "x.test"})

	assert.Equal(t, model.JobSuccess, result.Status)
	require.Len(t, result.Commands, 1)
	assert.Equal(t, model.CommandSuccess, result.Commands[0].Status)
	assert.True(t, result.Commands[0].Healed)
	assert.Equal(t, 1, result.Metrics.SelectorHealingAttempts)
	assert.Equal(t, 1, result.Metrics.SelectorHealingSuccesses)
}

func TestRun_NonCriticalCommandFailsAfterRetryExhaustionButPlanContinues(t *testing.T) {
	e := newTestExecutor()
	attempts := 0
	page := &fakePage{
		urlVal: "https://x.test/dashboard",
		waitFn: func(selector string) error {
			attempts++
			return errors.New("navigation timeout exceeded")
		},
	}
	cmds := []planner.Command{
		{Op: planner.OpWaitFor, Selector: "#late", Timeout: 10 * time.Second},
	}
	result := e.Run(context.Background(), page, model.Job{ID: "job-3"}, cmds, Options{Site: "x.test"})

	require.Len(t, result.Commands, 1)
	assert.Equal(t, model.CommandFailed, result.Commands[0].Status)
	assert.Equal(t, model.JobSuccess, result.Status) // non-critical op, plan still completes
	assert.Equal(t, retry.DefaultStrategies[retry.ErrorTimeout].MaxRetries, result.Metrics.Retries)
	assert.Equal(t, retry.DefaultStrategies[retry.ErrorTimeout].MaxRetries+1, attempts)
}

func TestRun_CriticalCommandHaltsPlanOnUnrecoverableFailure(t *testing.T) {
	e := newTestExecutor()
	page := &fakePage{
		urlVal: "https://x.test/dashboard",
		clickFn: func(selector string) error {
			return errors.New("403 forbidden")
		},
	}
	cmds := []planner.Command{
		{Op: planner.OpClick, Selector: "#locked", Timeout: 10 * time.Second},
		{Op: planner.OpClick, Selector: "#never-reached", Timeout: 10 * time.Second},
	}
	result := e.Run(context.Background(), page, model.Job{ID: "job-4"}, cmds, Options{Site: "x.test"})

	assert.Equal(t, model.JobFailed, result.Status)
	require.Len(t, result.Commands, 1) // plan halted before the second click
	assert.Equal(t, model.CommandFailed, result.Commands[0].Status)
	assert.NotEmpty(t, result.KnowledgeGaps)
}

func TestRun_GotoFailureHaltsAfterRetries(t *testing.T) {
	e := newTestExecutor()
	page := &fakePage{
		gotoFn: func(url string) error { return errors.New("dns resolution failed") },
	}
	cmds := []planner.Command{
		{Op: planner.OpGoto, Value: "https://unreachable.test", Timeout: 30 * time.Second, WaitUntil: "load"},
	}
	result := e.Run(context.Background(), page, model.Job{ID: "job-5"}, cmds, Options{Site: "unreachable.test"})

	assert.Equal(t, model.JobFailed, result.Status)
	require.Len(t, result.Commands, 1)
	assert.Equal(t, model.CommandFailed, result.Commands[0].Status)
	assert.Greater(t, result.Metrics.Retries, 0) // network errors are adaptive-retried before the halt
}
