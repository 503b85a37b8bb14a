package retry

import (
	"testing"
	"time"

	"github.com/flowforge/autoflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateDelay_ExponentialScheduleWithoutJitter(t *testing.T) {
	r := New()
	s := r.strategies[ErrorNetwork]
	s.Jitter = false
	r.strategies[ErrorNetwork] = s

	want := []int{1000, 2000, 4000, 8000, 16000, 30000, 30000}
	for i, w := range want {
		assert.Equal(t, w, r.CalculateDelay(ErrorNetwork, i+1))
	}
}

func TestCalculateDelay_NeverDecreasesAndRespectsCap(t *testing.T) {
	r := New()
	s := r.strategies[ErrorTimeout]
	s.Jitter = false
	r.strategies[ErrorTimeout] = s

	prev := 0
	for n := 1; n <= 10; n++ {
		d := r.CalculateDelay(ErrorTimeout, n)
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, int(float64(DefaultStrategies[ErrorTimeout].CapMs)*1.1)+1)
		prev = d
	}
}

func TestShouldRetry_FalseFor403(t *testing.T) {
	r := New()
	assert.False(t, r.ShouldRetry(Error403, 1, "forbidden by origin"))
}

func TestShouldRetry_FalseBeyondMaxRetries(t *testing.T) {
	r := New()
	max := DefaultStrategies[ErrorSelector].MaxRetries
	assert.False(t, r.ShouldRetry(ErrorSelector, max+1, "selector timed out"))
}

func TestShouldRetry_FalseForNonRetryableMessages(t *testing.T) {
	r := New()
	assert.False(t, r.ShouldRetry(ErrorOther, 1, "element not found on page"))
	assert.False(t, r.ShouldRetry(ErrorOther, 1, "invalid credentials"))
}

func TestShouldRetry_TrueWithinBudget(t *testing.T) {
	r := New()
	assert.True(t, r.ShouldRetry(ErrorNetwork, 1, "connection reset"))
}

func TestRecordOutcome_LowSuccessRateReducesMaxRetries(t *testing.T) {
	r := New()
	base := r.strategies[ErrorNetwork].MaxRetries
	for i := 0; i < 10; i++ {
		r.RecordOutcome("x.test", ErrorNetwork, false)
	}
	assert.Less(t, r.strategies[ErrorNetwork].MaxRetries, base)
	assert.GreaterOrEqual(t, r.strategies[ErrorNetwork].MaxRetries, 1)
}

func TestRecordOutcome_HighSuccessRateIncreasesMaxRetriesUpToSeven(t *testing.T) {
	r := New()
	for i := 0; i < 50; i++ {
		r.RecordOutcome("x.test", ErrorNetwork, true)
	}
	assert.LessOrEqual(t, r.strategies[ErrorNetwork].MaxRetries, 7)
}

func TestRecordOutcome_NonAdaptiveKindNeverChanges(t *testing.T) {
	r := New()
	base := r.strategies[Error403].MaxRetries
	for i := 0; i < 10; i++ {
		r.RecordOutcome("x.test", Error403, false)
	}
	assert.Equal(t, base, r.strategies[Error403].MaxRetries)
}

func TestStrategyManager_PredictsHighestOccurrenceMatch(t *testing.T) {
	fixed := time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC) // Monday 14:00
	m := NewStrategyManager()
	m.now = func() time.Time { return fixed }

	for i := 0; i < 5; i++ {
		m.RecordChallenge("x.test", model.ChallengeCloudflare, "checkout", "wait", true)
	}
	for i := 0; i < 2; i++ {
		m.RecordChallenge("x.test", model.ChallengeCaptcha, "checkout", "pause", false)
	}

	best, ok := m.Predict("x.test", 14, int(time.Monday), "checkout flow")
	require.True(t, ok)
	assert.Equal(t, model.ChallengeCloudflare, best.ChallengeType)
	assert.Equal(t, 5, best.Occurrences)
}

func TestStrategyManager_NoMatchReturnsFalse(t *testing.T) {
	m := NewStrategyManager()
	_, ok := m.Predict("unseen.test", 3, 1, "")
	assert.False(t, ok)
}
