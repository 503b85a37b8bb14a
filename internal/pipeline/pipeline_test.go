package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/flowforge/autoflow/internal/driver"
	"github.com/flowforge/autoflow/internal/executor"
	"github.com/flowforge/autoflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePage struct{ urlVal string }

func (f *fakePage) Goto(context.Context, string, time.Duration, driver.WaitUntil) error { return nil }
func (f *fakePage) Fill(context.Context, string, string, time.Duration) error           { return nil }
func (f *fakePage) Click(context.Context, string, time.Duration) error                  { return nil }
func (f *fakePage) WaitForSelector(context.Context, string, time.Duration) error        { return nil }
func (f *fakePage) WaitForLoadState(context.Context, driver.WaitUntil, time.Duration) error {
	return nil
}
func (f *fakePage) Screenshot(context.Context, bool) ([]byte, error) { return nil, nil }
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

func TestPipeline_RunExtractsPlansExecutesAndLearns(t *testing.T) {
	p := New(nil, nil, nil, nil, nil)

	transcript := model.RecordingTranscript{
		URL: "https://example.test/login",
		Steps: []model.Step{
			{Type: model.StepNavigate, URL: "https://example.test/login"},
			{Type: model.StepInput, Selector: "#email", Value: "a@b.com"},
			{Type: model.StepInput, Selector: "#password", Value: "secret"},
			{Type: model.StepClick, Selector: "#submit", Text: "Sign in"},
		},
	}

	page := &fakePage{urlVal: "https://example.test/login"}
	job := model.Job{ID: "job-1"}

	outcome := p.Run(context.Background(), page, job, transcript, executor.Options{Site: "example.test", ExpectedURL: "https://example.test/login"})

	require.NotEmpty(t, outcome.Actions)
	assert.Equal(t, model.JobSuccess, outcome.Result.Status)
	assert.Len(t, outcome.Skills, len(outcome.Actions))
	assert.Equal(t, "example.test", outcome.Metadata.Site)
	assert.Equal(t, 4, outcome.Metadata.StepCount)
	assert.True(t, outcome.Metadata.HasNavigation)
	assert.True(t, outcome.Metadata.HasInput)

	// The KnowledgeBase should have learned a selector history entry for
	// at least one of the filled fields.
	hist, ok := p.KnowledgeBase().BestSelector("example.test", "#email")
	if ok {
		assert.GreaterOrEqual(t, hist.SuccessCount, 0)
	}
}

func TestPipeline_InvalidTranscriptFailsFast(t *testing.T) {
	p := New(nil, nil, nil, nil, nil)
	page := &fakePage{}
	job := model.Job{ID: "job-2"}

	outcome := p.Run(context.Background(), page, job, model.RecordingTranscript{}, executor.Options{Site: "example.test"})
	assert.Equal(t, model.JobFailed, outcome.Result.Status)
}
