package performance

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ExportPrometheus renders every (command, site) and (selector, strategy,
// site) bucket as Prometheus text-format gauges.
func (m *Monitor) ExportPrometheus() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	b.WriteString("# HELP automation_command_duration_seconds Command duration percentiles\n")
	b.WriteString("# TYPE automation_command_duration_seconds gauge\n")

	keys := sortedKeys(m.commands)
	for _, key := range keys {
		sum := m.commandSummary(key, m.commands[key])
		labels := fmt.Sprintf(`command=%q,site=%q`, sum.Command, sum.Site)
		b.WriteString(fmt.Sprintf("automation_command_total{%s} %d\n", labels, sum.Total))
		b.WriteString(fmt.Sprintf("automation_command_failed_total{%s} %d\n", labels, sum.Failed))
		b.WriteString(fmt.Sprintf("automation_command_duration_seconds{%s,quantile=\"0.5\"} %f\n", labels, sum.P50.Seconds()))
		b.WriteString(fmt.Sprintf("automation_command_duration_seconds{%s,quantile=\"0.95\"} %f\n", labels, sum.P95.Seconds()))
		b.WriteString(fmt.Sprintf("automation_command_duration_seconds{%s,quantile=\"0.99\"} %f\n", labels, sum.P99.Seconds()))
	}

	b.WriteString("# HELP automation_selector_stability_score Selector stability score\n")
	b.WriteString("# TYPE automation_selector_stability_score gauge\n")
	for _, key := range sortedKeys(m.selectors) {
		sum := m.selectorSummary(key, m.selectors[key])
		b.WriteString(fmt.Sprintf("automation_selector_stability_score{selector=%q,strategy=%q,site=%q} %f\n",
			sum.Selector, sum.Strategy, sum.Site, sum.StabilityScore))
	}

	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// jsonReport is the export shape for BuildReport.
type jsonReport struct {
	SlowCommands      []CommandSummary  `json:"slowCommands"`
	UnstableSelectors []SelectorSummary `json:"unstableSelectors"`
	Bottlenecks       []Bottleneck      `json:"bottlenecks"`
}

// ExportJSON marshals a Report (see BuildReport) to the JSON export shape.
func (r Report) ExportJSON() ([]byte, error) {
	return json.Marshal(jsonReport{
		SlowCommands:      r.SlowCommands,
		UnstableSelectors: r.UnstableSelectors,
		Bottlenecks:       r.Bottlenecks,
	})
}
