package model

import "time"

// SelectorHistory tracks healing outcomes for one (site, originalSelector,
// strategy) tuple. Success rate is always derived, per invariant (i).
type SelectorHistory struct {
	Site             string      `json:"site"`
	OriginalSelector string      `json:"originalSelector"`
	HealedSelector   string      `json:"healedSelector"`
	Strategy         string      `json:"strategy"`
	SuccessCount     int         `json:"successCount"`
	FailureCount     int         `json:"failureCount"`
	LastUsed         time.Time   `json:"lastUsed"`
}

// SuccessRate returns successCount/(successCount+failureCount), or 0 if
// neither counter has been incremented yet.
func (h SelectorHistory) SuccessRate() float64 {
	total := h.SuccessCount + h.FailureCount
	if total == 0 {
		return 0
	}
	return float64(h.SuccessCount) / float64(total)
}

// Key returns the unique key for a SelectorHistory row.
func (h SelectorHistory) Key() string {
	return h.Site + "|" + h.OriginalSelector + "|" + h.Strategy
}

// SkillTemplate is a learned SkillSpec keyed by intent.
type SkillTemplate struct {
	Intent      string    `json:"intent"`
	SkillSpec   SkillSpec `json:"skillSpec"`
	SuccessRate float64   `json:"successRate"`
	UsageCount  int       `json:"usageCount"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// SitePattern is an aggregate of observed behaviour for one host.
type SitePattern struct {
	Site          string         `json:"site"`
	CommonIntents map[string]int `json:"commonIntents"`
	CommonSelectors map[string]int `json:"commonSelectors"`
	CommonFlows   []string       `json:"commonFlows"` // ordered set, de-duplicated
	SuccessRate   float64        `json:"successRate"`
	TotalJobs     int            `json:"totalJobs"`
	LastUpdated   time.Time      `json:"lastUpdated"`
}

// AddFlow appends a flow string to the ordered set if not already present.
func (p *SitePattern) AddFlow(flow string) {
	for _, f := range p.CommonFlows {
		if f == flow {
			return
		}
	}
	p.CommonFlows = append(p.CommonFlows, flow)
}

// URLPattern is an aggregate of observed behaviour for one exact URL.
type URLPattern struct {
	URL         string         `json:"url"`
	Intents     []string       `json:"intents"`
	Selectors   map[string]int `json:"selectors"`
	SuccessRate float64        `json:"successRate"`
	UsageCount  int            `json:"usageCount"`
	LastUsed    time.Time      `json:"lastUsed"`
}

// ChallengeKind is the closed set of anti-automation challenges.
type ChallengeKind string

const (
	ChallengeCloudflare ChallengeKind = "cloudflare"
	ChallengeCaptcha    ChallengeKind = "captcha"
	ChallengeError      ChallengeKind = "error"
	ChallengeRateLimit  ChallengeKind = "rate_limit"
	ChallengeBlocked    ChallengeKind = "blocked"
)

// TimePattern records when a challenge tends to occur.
type TimePattern struct {
	Hours []int `json:"hours"`
	DOW   []int `json:"dow"`
}

// ChallengePattern is an observed anti-automation pattern for a site.
type ChallengePattern struct {
	Site             string        `json:"site"`
	ChallengeType    ChallengeKind `json:"challengeType"`
	TimePattern      *TimePattern  `json:"timePattern,omitempty"`
	TriggerPattern   []string      `json:"triggerPattern,omitempty"`
	RecoveryStrategy string        `json:"recoveryStrategy"`
	SuccessRate      float64       `json:"successRate"`
	LastSeen         time.Time     `json:"lastSeen"`
	Occurrences      int           `json:"occurrences"`
}

// Key returns the unique key for a ChallengePattern (site x kind).
func (c ChallengePattern) Key() string {
	return c.Site + "|" + string(c.ChallengeType)
}
