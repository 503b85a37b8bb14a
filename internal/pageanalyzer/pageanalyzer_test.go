package pageanalyzer

import (
	"context"
	"testing"
	"time"

	"github.com/flowforge/autoflow/internal/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePage is a minimal driver.Page double for classification tests; only
// URL, Title, Evaluate, and Locator affect PageAnalyzer's decisions.
type fakePage struct {
	url        string
	title      string
	body       string
	readyState string
	selectors  map[string]int
}

func (f *fakePage) Goto(context.Context, string, time.Duration, driver.WaitUntil) error { return nil }
func (f *fakePage) Fill(context.Context, string, string, time.Duration) error           { return nil }
func (f *fakePage) Click(context.Context, string, time.Duration) error                  { return nil }
func (f *fakePage) WaitForSelector(context.Context, string, time.Duration) error        { return nil }
func (f *fakePage) WaitForLoadState(context.Context, driver.WaitUntil, time.Duration) error {
	return nil
}
func (f *fakePage) Screenshot(context.Context, bool) ([]byte, error) { return nil, nil }
func (f *fakePage) Evaluate(ctx context.Context, js string, args ...interface{}) (interface{}, error) {
	switch {
	case contains(js, "innerText"):
		return f.body, nil
	case contains(js, "readyState"):
		rs := f.readyState
		if rs == "" {
			rs = "complete"
		}
		return rs, nil
	}
	return nil, nil
}
func (f *fakePage) Press(context.Context, string, string) error       { return nil }
func (f *fakePage) Hover(context.Context, string) error               { return nil }
func (f *fakePage) SelectOption(context.Context, string, string) error { return nil }
func (f *fakePage) TypeKeyboard(context.Context, string) error        { return nil }
func (f *fakePage) PressKeyboard(context.Context, string) error       { return nil }
func (f *fakePage) IsClosed() bool                                    { return false }
func (f *fakePage) URL() string                                       { return f.url }
func (f *fakePage) Title(context.Context) (string, error)             { return f.title, nil }
func (f *fakePage) TextContent(context.Context, string) (string, error) { return "", nil }
func (f *fakePage) Locator(selector string) driver.Locator {
	return &fakeLocator{count: f.selectors[selector]}
}
func (f *fakePage) ScrollBy(context.Context, float64, float64) error { return nil }
func (f *fakePage) Close(context.Context) error                     { return nil }
func (f *fakePage) ElementContext(context.Context, string) (driver.ElementContext, bool) {
	return driver.ElementContext{}, false
}
func (f *fakePage) StorageState(context.Context) ([]byte, error)             { return nil, nil }
func (f *fakePage) RestoreStorageState(context.Context, []byte) error        { return nil }

type fakeLocator struct{ count int }

func (l *fakeLocator) First(context.Context) (driver.ElementHandle, error) { return nil, nil }
func (l *fakeLocator) Nth(context.Context, int) (driver.ElementHandle, error) {
	return nil, nil
}
func (l *fakeLocator) Count(context.Context) (int, error) { return l.count, nil }

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func TestAnalyze_CloudflareTakesPrecedence(t *testing.T) {
	page := &fakePage{
		url:       "https://x.test/checkout",
		body:      "Checking your browser before accessing x.test.",
		selectors: map[string]int{"#challenge-form": 1},
	}
	an := New().Analyze(context.Background(), page, Expectation{})
	assert.Equal(t, StateCloudflareChallenge, an.State)
}

func TestAnalyze_CaptchaBeatsErrorAndLoading(t *testing.T) {
	page := &fakePage{
		url:        "https://x.test/",
		body:       "please verify you are human and 404 not found",
		readyState: "loading",
	}
	an := New().Analyze(context.Background(), page, Expectation{})
	assert.Equal(t, StateCaptchaRequired, an.State)
}

func TestAnalyze_ErrorPageClassifiesKind(t *testing.T) {
	page := &fakePage{url: "https://x.test/gone", body: "404 page not found"}
	an := New().Analyze(context.Background(), page, Expectation{})
	require.Equal(t, StateErrorPage, an.State)
	assert.Equal(t, ErrorNotFound, an.ErrorPage.Kind)
}

func TestAnalyze_LoadingViaReadyState(t *testing.T) {
	page := &fakePage{url: "https://x.test/", body: "", readyState: "interactive"}
	an := New().Analyze(context.Background(), page, Expectation{})
	assert.Equal(t, StateLoading, an.State)
}

func TestAnalyze_WrongPageWhenHostMismatch(t *testing.T) {
	page := &fakePage{url: "https://other.test/", body: ""}
	an := New().Analyze(context.Background(), page, Expectation{URL: "https://x.test/dashboard"})
	assert.Equal(t, StateWrongPage, an.State)
	assert.False(t, an.PageRelevance.IsRelevant)
}

func TestAnalyze_ReadyWhenRelevantAndClean(t *testing.T) {
	page := &fakePage{
		url:       "https://x.test/dashboard",
		body:      "welcome back",
		selectors: map[string]int{"#dashboard": 1},
	}
	an := New().Analyze(context.Background(), page, Expectation{URL: "https://x.test/dashboard", Elements: []string{"#dashboard"}})
	assert.Equal(t, StateReady, an.State)
	assert.True(t, an.PageRelevance.IsRelevant)
}

func TestPathMatches_RootExpectedAlwaysMatches(t *testing.T) {
	assert.True(t, pathMatches("https://x.test/anything/deep", "https://x.test/"))
}

func TestPathMatches_PrefixRequired(t *testing.T) {
	assert.True(t, pathMatches("https://x.test/dashboard/widgets", "https://x.test/dashboard"))
	assert.False(t, pathMatches("https://x.test/other", "https://x.test/dashboard"))
}

type fakeKnowledge struct {
	known KnownURL
}

func (f fakeKnowledge) GetKnownURL(string) KnownURL { return f.known }

func TestEngine_WrongPageContinuesWhenKnownAndSuccessful(t *testing.T) {
	eng := NewEngine(fakeKnowledge{known: KnownURL{Found: true, SuccessRate: 0.8, LearnedIntents: []string{"search"}}}, "https://x.test/expected")
	v := eng.Decide(Analysis{State: StateWrongPage, URL: "https://x.test/other"})
	assert.Equal(t, DecisionContinue, v.Decision)
	assert.Equal(t, []string{"search"}, v.LearnedIntents)
}

func TestEngine_WrongPageNavigatesToExpectedWhenUnknown(t *testing.T) {
	eng := NewEngine(fakeKnowledge{known: KnownURL{Found: false}}, "https://x.test/expected")
	v := eng.Decide(Analysis{State: StateWrongPage})
	assert.Equal(t, DecisionNavigate, v.Decision)
	assert.Equal(t, "https://x.test/expected", v.NavigateToURL)
}

func TestEngine_WrongPageNavigatesBackWhenNoExpectedURL(t *testing.T) {
	eng := NewEngine(nil, "")
	v := eng.Decide(Analysis{State: StateWrongPage})
	assert.Equal(t, DecisionNavigateBack, v.Decision)
}

func TestEngine_DecisionTable(t *testing.T) {
	eng := NewEngine(nil, "")
	tests := []struct {
		name string
		a    Analysis
		want Decision
	}{
		{"cloudflare waits", Analysis{State: StateCloudflareChallenge}, DecisionWait},
		{"captcha pauses", Analysis{State: StateCaptchaRequired}, DecisionPause},
		{"404 navigates back", Analysis{State: StateErrorPage, ErrorPage: ErrorSignal{Kind: ErrorNotFound}}, DecisionNavigateBack},
		{"500 retries", Analysis{State: StateErrorPage, ErrorPage: ErrorSignal{Kind: ErrorServer}}, DecisionRetry},
		{"403 pauses", Analysis{State: StateErrorPage, ErrorPage: ErrorSignal{Kind: ErrorForbidden}}, DecisionPause},
		{"loading waits", Analysis{State: StateLoading}, DecisionWait},
		{"ready continues", Analysis{State: StateReady}, DecisionContinue},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, eng.Decide(tc.a).Decision)
		})
	}
}

func TestEngine_CloudflareCapsRetriesAtThree(t *testing.T) {
	eng := NewEngine(nil, "")
	v := eng.Decide(Analysis{State: StateCloudflareChallenge})
	assert.Equal(t, 3, v.MaxRetries)
	assert.Equal(t, 5*time.Second, v.WaitTime)
}
