package knowledge

import (
	"testing"
	"time"

	"github.com/flowforge/autoflow/internal/model"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func action(intent string, selector string) model.CanonicalAction {
	return model.CanonicalAction{
		Intent: intent,
		Steps:  []model.CanonicalStep{{Target: &model.Target{Strategy: model.RefCSS, Selector: selector}}},
	}
}

func TestLearnFromJob_UpsertsSelectorHistoryOnSuccess(t *testing.T) {
	kb := New()
	kb.LearnFromJob(JobLearningInput{
		Site:    "x.test",
		Actions: []model.CanonicalAction{action("submit-login", "#submit")},
		Result: model.ExecutionResult{
			Status:   model.JobSuccess,
			Commands: []model.CommandRecord{{Command: "click #submit", Status: model.CommandSuccess}},
		},
	})

	hist, ok := kb.BestSelector("x.test", "#submit")
	require.True(t, ok)
	assert.Equal(t, 1, hist.SuccessCount)
	assert.Equal(t, 0, hist.FailureCount)
}

func TestLearnFromJob_UpsertsFailureOnFailedCommand(t *testing.T) {
	kb := New()
	kb.LearnFromJob(JobLearningInput{
		Site:    "x.test",
		Actions: []model.CanonicalAction{action("search", "#q")},
		Result: model.ExecutionResult{
			Status:   model.JobFailed,
			Commands: []model.CommandRecord{{Command: "fill #q", Status: model.CommandFailed}},
		},
	})

	hist, ok := kb.BestSelector("x.test", "#q")
	require.True(t, ok)
	assert.Equal(t, 0, hist.SuccessCount)
	assert.Equal(t, 1, hist.FailureCount)
}

func TestBestSelector_PrefersHigherSuccessRate(t *testing.T) {
	kb := New()
	kb.RecordSelectorSuccess("x.test", "#a", model.RefCSS)
	kb.RecordSelectorSuccess("x.test", "#a", model.RefCSS)
	kb.RecordSelectorFailure("x.test", "#a", model.RefCSS)

	kb.RecordSelectorSuccess("x.test", "#b", model.RefCSS)
	kb.RecordSelectorFailure("x.test", "#b", model.RefXPath)

	best, ok := kb.BestSelector("x.test", "#b")
	require.True(t, ok)
	assert.Equal(t, "#b", best.OriginalSelector)
	assert.Equal(t, string(model.RefCSS), best.Strategy)
}

func TestSkillTemplate_RunningMeanSuccessRate(t *testing.T) {
	kb := New()
	kb.LearnFromJob(JobLearningInput{Site: "x.test", Actions: []model.CanonicalAction{action("search", "#q")}, Result: model.ExecutionResult{Status: model.JobSuccess}})
	kb.LearnFromJob(JobLearningInput{Site: "x.test", Actions: []model.CanonicalAction{action("search", "#q")}, Result: model.ExecutionResult{Status: model.JobFailed}})

	tpl, ok := kb.SkillTemplate("search")
	require.True(t, ok)
	assert.Equal(t, 2, tpl.UsageCount)
	assert.InDelta(t, 0.5, tpl.SuccessRate, 0.001)
}

func TestGetKnownURL_ExactMatchThenNormalized(t *testing.T) {
	kb := New()
	kb.LearnFromJob(JobLearningInput{
		Site:      "x.test",
		Actions:   []model.CanonicalAction{action("navigate", "")},
		Result:    model.ExecutionResult{Status: model.JobSuccess},
		Recording: model.RecordingTranscript{URL: "https://www.x.test/Dashboard/"},
	})

	_, ok := kb.GetKnownURL("https://www.x.test/Dashboard/")
	assert.True(t, ok)

	_, ok = kb.GetKnownURL("https://www.x.test/Dashboard")
	assert.True(t, ok, "should match after scheme://host/path normalization")
}

type fakeStorage struct {
	flushed bool
}

func (f *fakeStorage) SaveSelectorHistory(model.SelectorHistory) error { f.flushed = true; return nil }
func (f *fakeStorage) GetSelectorHistory(string) (model.SelectorHistory, bool, error) {
	return model.SelectorHistory{}, false, nil
}
func (f *fakeStorage) AllSelectorHistory() ([]model.SelectorHistory, error) { return nil, nil }
func (f *fakeStorage) SaveSkillTemplate(model.SkillTemplate) error         { return nil }
func (f *fakeStorage) GetSkillTemplate(string) (model.SkillTemplate, bool, error) {
	return model.SkillTemplate{}, false, nil
}
func (f *fakeStorage) AllSkillTemplates() ([]model.SkillTemplate, error) { return nil, nil }
func (f *fakeStorage) SaveSitePattern(model.SitePattern) error          { return nil }
func (f *fakeStorage) GetSitePattern(string) (model.SitePattern, bool, error) {
	return model.SitePattern{}, false, nil
}
func (f *fakeStorage) AllSitePatterns() ([]model.SitePattern, error) { return nil, nil }
func (f *fakeStorage) SaveURLPattern(model.URLPattern) error         { return nil }
func (f *fakeStorage) GetURLPattern(string) (model.URLPattern, bool, error) {
	return model.URLPattern{}, false, nil
}
func (f *fakeStorage) AllURLPatterns() ([]model.URLPattern, error) { return nil, nil }

func TestScheduleSave_DebouncesAndFlushesAfterDelay(t *testing.T) {
	storage := &fakeStorage{}
	kb := New().WithStorage(storage)
	kb.RecordSelectorSuccess("x.test", "#a", model.RefCSS)
	assert.False(t, storage.flushed, "save must be debounced, not immediate")

	time.Sleep(SaveDebounce + 200*time.Millisecond)
	assert.True(t, storage.flushed)
}

func TestSnapshot_ImportRoundTrip(t *testing.T) {
	kb := New()
	kb.RecordSelectorSuccess("x.test", "#email", model.RefCSS)
	kb.upsertSkillTemplate("login", []model.CanonicalStep{{Target: &model.Target{Strategy: model.RefCSS, Selector: "#email"}}}, true)
	snap := kb.Snapshot()

	restored := New()
	require.NoError(t, restored.Import(snap))

	if diff := cmp.Diff(snap, restored.Snapshot()); diff != "" {
		t.Errorf("snapshot round trip mismatch (-want +got):\n%s", diff)
	}
}
