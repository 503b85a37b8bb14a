package healer

import (
	"context"
	"testing"
	"time"

	"github.com/flowforge/autoflow/internal/driver"
	"github.com/flowforge/autoflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPage struct {
	driver.Page
	elCtx    driver.ElementContext
	sampled  bool
}

func (s *stubPage) ElementContext(ctx context.Context, selector string) (driver.ElementContext, bool) {
	return s.elCtx, s.sampled
}

func TestHeal_CapsAtTenDeduplicatedSortedNonIncreasing(t *testing.T) {
	h := New()
	page := &stubPage{sampled: true, elCtx: driver.ElementContext{
		Tag:  "input",
		Text: "Sign in now",
		Attributes: map[string]string{
			"data-testid": "login-submit",
			"id":          "submit-btn",
			"name":        "submit",
			"aria-label":  "Submit",
			"placeholder": "Submit",
			"role":        "button",
		},
	}}

	candidates := h.Heal(context.Background(), page, "#gone", Context{Site: "x.test"})
	require.LessOrEqual(t, len(candidates), maxCandidates)

	seen := make(map[string]bool)
	for i, c := range candidates {
		key := string(c.Ref.Strategy) + "|" + c.Ref.Value
		assert.False(t, seen[key], "duplicate candidate selector %s", key)
		seen[key] = true
		if i > 0 {
			assert.LessOrEqual(t, candidates[i].Score, candidates[i-1].Score, "not sorted non-increasing")
		}
	}
}

func TestHeal_LearnedStrategyWinsWhenSuccessExceedsFailure(t *testing.T) {
	h := New().WithKnowledge(fakeKnowledge{
		hist: model.SelectorHistory{
			Site: "x.test", OriginalSelector: "#gone", HealedSelector: "#healed-login",
			Strategy: string(model.RefCSS), SuccessCount: 8, FailureCount: 1,
		},
		ok: true,
	})
	page := &stubPage{}
	candidates := h.Heal(context.Background(), page, "#gone", Context{Site: "x.test"})
	require.NotEmpty(t, candidates)
	assert.Equal(t, "#healed-login", candidates[0].Ref.Value)
}

func TestHeal_ResultsAreCached(t *testing.T) {
	h := New()
	page := &stubPage{sampled: true, elCtx: driver.ElementContext{Tag: "button", Text: "Go"}}
	first := h.Heal(context.Background(), page, "#gone", Context{Site: "x.test"})
	second := h.Heal(context.Background(), page, "#gone", Context{Site: "x.test"})
	assert.Equal(t, first, second)
}

type fakeKnowledge struct {
	hist model.SelectorHistory
	ok   bool
}

func (f fakeKnowledge) BestSelector(site, originalSelector string) (model.SelectorHistory, bool) {
	return f.hist, f.ok
}

func TestPredictStability_IDHigherThanNthChild(t *testing.T) {
	h := New()
	idScore := h.PredictStability("#login-btn", "x.test", "button")
	nthScore := h.PredictStability("div:nth-child(3) > span", "x.test", "span")
	assert.Greater(t, idScore, nthScore)
}

func TestPredictStability_IsCachedWithinTTL(t *testing.T) {
	h := New()
	a := h.PredictStability("#stable", "x.test", "div")
	b := h.PredictStability("#stable", "x.test", "div")
	assert.Equal(t, a, b)
}

func TestLRUTTLCache_EvictsLeastRecentlyUsedWhenFull(t *testing.T) {
	c := newLRUTTLCache(10, time.Hour)
	for i := 0; i < 10; i++ {
		c.set(string(rune('a'+i)), i)
	}
	// touch "a" so it is not the least recently used
	c.get("a")
	c.set("k", 99)
	_, aStillPresent := c.get("a")
	assert.True(t, aStillPresent)
	assert.LessOrEqual(t, c.len(), 10)
}

func TestLRUTTLCache_ExpiresAfterTTL(t *testing.T) {
	now := time.Now()
	c := newLRUTTLCache(10, time.Minute)
	c.now = func() time.Time { return now }
	c.set("k", "v")
	c.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, ok := c.get("k")
	assert.False(t, ok)
}
