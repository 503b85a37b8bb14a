package retry

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/flowforge/autoflow/internal/model"
)

// StrategyManager records challenge occurrences per (site, kind) and
// predicts the most likely challenge given the current time and action.
type StrategyManager struct {
	mu       sync.Mutex
	patterns map[string]*model.ChallengePattern
	now      func() time.Time
}

// NewStrategyManager creates an empty StrategyManager.
func NewStrategyManager() *StrategyManager {
	return &StrategyManager{patterns: make(map[string]*model.ChallengePattern), now: time.Now}
}

// RecordChallenge upserts the pattern for (site, kind), merging the
// observed hour/day-of-week and trigger substring.
func (m *StrategyManager) RecordChallenge(site string, kind model.ChallengeKind, trigger string, recoveryStrategy string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := site + "\x1f" + string(kind)
	p, ok := m.patterns[key]
	if !ok {
		p = &model.ChallengePattern{Site: site, ChallengeType: kind, TimePattern: &model.TimePattern{}}
		m.patterns[key] = p
	}

	now := m.now()
	p.TimePattern.Hours = appendUniqueInt(p.TimePattern.Hours, now.Hour())
	p.TimePattern.DOW = appendUniqueInt(p.TimePattern.DOW, int(now.Weekday()))
	if trigger != "" {
		p.TriggerPattern = appendUniqueStr(p.TriggerPattern, trigger)
	}
	if recoveryStrategy != "" {
		p.RecoveryStrategy = recoveryStrategy
	}

	p.Occurrences++
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	p.SuccessRate = runningMean(p.SuccessRate, p.Occurrences, outcome)
	p.LastSeen = now
}

func runningMean(prevMean float64, countAfterThisObservation int, observation float64) float64 {
	if countAfterThisObservation <= 0 {
		return observation
	}
	n := float64(countAfterThisObservation)
	return prevMean + (observation-prevMean)/n
}

// Predict returns the pattern with the highest occurrence count among
// patterns for site whose hour, day-of-week, or trigger matches the
// current context.
func (m *StrategyManager) Predict(site string, hour, dow int, action string) (model.ChallengePattern, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *model.ChallengePattern
	for key, p := range m.patterns {
		if !strings.HasPrefix(key, site+"\x1f") {
			continue
		}
		if !matchesContext(p, hour, dow, action) {
			continue
		}
		if best == nil || p.Occurrences > best.Occurrences {
			best = p
		}
	}
	if best == nil {
		return model.ChallengePattern{}, false
	}
	return *best, true
}

func matchesContext(p *model.ChallengePattern, hour, dow int, action string) bool {
	if p.TimePattern != nil {
		if containsInt(p.TimePattern.Hours, hour) || containsInt(p.TimePattern.DOW, dow) {
			return true
		}
	}
	for _, trigger := range p.TriggerPattern {
		if action != "" && strings.Contains(strings.ToLower(action), strings.ToLower(trigger)) {
			return true
		}
	}
	return false
}

func appendUniqueInt(list []int, v int) []int {
	if containsInt(list, v) {
		return list
	}
	return append(list, v)
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func appendUniqueStr(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// TopPatterns returns up to n patterns for a site sorted by descending
// occurrence count, used for reporting.
func (m *StrategyManager) TopPatterns(site string, n int) []model.ChallengePattern {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matches []model.ChallengePattern
	for key, p := range m.patterns {
		if strings.HasPrefix(key, site+"\x1f") {
			matches = append(matches, *p)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Occurrences > matches[j].Occurrences })
	if n < len(matches) {
		matches = matches[:n]
	}
	return matches
}
