package performance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCommand_TracksTotalsAndPercentiles(t *testing.T) {
	m := New()
	for i := 1; i <= 100; i++ {
		m.RecordCommand("click", "x.test", time.Duration(i)*time.Millisecond, i%10 != 0)
	}

	report := m.BuildReport(5)
	require.Len(t, report.SlowCommands, 1)
	sum := report.SlowCommands[0]
	assert.Equal(t, 100, sum.Total)
	assert.Equal(t, 90, sum.Successful)
	assert.Equal(t, 10, sum.Failed)
	assert.Greater(t, sum.P95, sum.P50)
}

func TestSelectorStabilityScore_ScalesWithUsesUpToTen(t *testing.T) {
	m := New()
	for i := 0; i < 3; i++ {
		m.RecordSelectorUse("#a", "css", "x.test", true)
	}
	report := m.BuildReport(5)
	require.Len(t, report.UnstableSelectors, 1)
	// successRate=1.0, uses=3 -> stability = 1.0 * min(1, 3/10) = 0.3
	assert.InDelta(t, 0.3, report.UnstableSelectors[0].StabilityScore, 0.001)
}

func TestSelectorStabilityScore_CapsMultiplierAtOne(t *testing.T) {
	m := New()
	for i := 0; i < 20; i++ {
		m.RecordSelectorUse("#a", "css", "x.test", true)
	}
	report := m.BuildReport(5)
	require.Len(t, report.UnstableSelectors, 1)
	assert.InDelta(t, 1.0, report.UnstableSelectors[0].StabilityScore, 0.001)
}

func TestBuildReport_FlagsSlowCommandAboveP95Threshold(t *testing.T) {
	m := New()
	for i := 0; i < 20; i++ {
		m.RecordCommand("goto", "slow.test", 6*time.Second, true)
	}
	report := m.BuildReport(5)
	require.NotEmpty(t, report.Bottlenecks)
	assert.Equal(t, BottleneckSlowCommand, report.Bottlenecks[0].Kind)
	assert.Equal(t, SeverityNormal, report.Bottlenecks[0].Severity)
}

func TestBuildReport_SlowCommandIsHighSeverityAboveTenSeconds(t *testing.T) {
	m := New()
	for i := 0; i < 20; i++ {
		m.RecordCommand("goto", "slow.test", 11*time.Second, true)
	}
	report := m.BuildReport(5)
	require.NotEmpty(t, report.Bottlenecks)
	assert.Equal(t, SeverityHigh, report.Bottlenecks[0].Severity)
}

func TestBuildReport_FlagsHighFailureRateAboveTenAttempts(t *testing.T) {
	m := New()
	for i := 0; i < 11; i++ {
		m.RecordCommand("fill", "flaky.test", 10*time.Millisecond, i%2 == 0) // ~45% failure
	}
	report := m.BuildReport(5)
	var found bool
	for _, b := range report.Bottlenecks {
		if b.Kind == BottleneckHighFailureRate {
			found = true
		}
	}
	assert.True(t, found)
}

func TestExportPrometheus_ContainsExpectedMetricNames(t *testing.T) {
	m := New()
	m.RecordCommand("click", "x.test", 50*time.Millisecond, true)
	text := m.ExportPrometheus()
	assert.Contains(t, text, "automation_command_total")
	assert.Contains(t, text, "automation_command_duration_seconds")
}

func TestExportJSON_RoundTripsReportShape(t *testing.T) {
	m := New()
	m.RecordCommand("click", "x.test", 50*time.Millisecond, true)
	data, err := m.BuildReport(5).ExportJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), "slowCommands")
}

func TestOptimalWait_UsesP95OfRecordedOperations(t *testing.T) {
	m := New()
	for i := 1; i <= 20; i++ {
		m.RecordOperation("pre-click-wait", "x.test", "ready", time.Duration(i)*100*time.Millisecond)
	}
	wait := m.OptimalWait("pre-click-wait", "x.test", "ready")
	assert.Greater(t, wait, time.Duration(0))
}
