package pageanalyzer

import "time"

// Decision is the closed set of actions the IntelligenceEngine can emit.
type Decision string

const (
	DecisionContinue     Decision = "continue"
	DecisionWait         Decision = "wait"
	DecisionRetry        Decision = "retry"
	DecisionNavigate     Decision = "navigate"
	DecisionNavigateBack Decision = "navigate_back"
	DecisionPause        Decision = "pause"
	DecisionAbort        Decision = "abort"
)

// Verdict is the engine's output for one analysis.
type Verdict struct {
	Decision       Decision
	WaitTime       time.Duration
	RetryAfter     bool
	MaxRetries     int
	RequiresHuman  bool
	NavigateToURL  string
	LearnedIntents []string
}

// KnownURL reports what the KnowledgeBase knows about a previously visited
// URL, used for the wrong_page decision branch.
type KnownURL struct {
	Found          bool
	SuccessRate    float64
	LearnedIntents []string
}

// URLKnowledge resolves known-URL facts for wrong_page handling.
type URLKnowledge interface {
	GetKnownURL(url string) KnownURL
}

// Engine maps an Analysis to a single Verdict.
type Engine struct {
	knowledge    URLKnowledge
	expectedURL  string
	learnedWait  map[State]time.Duration
}

// NewEngine creates an Engine. knowledge may be nil (wrong_page then always
// navigates to expectedURL or navigates back).
func NewEngine(knowledge URLKnowledge, expectedURL string) *Engine {
	return &Engine{knowledge: knowledge, expectedURL: expectedURL, learnedWait: map[State]time.Duration{}}
}

// LearnWait records an observed effective wait for a state, consulted
// before falling back to the default wait for that state.
func (e *Engine) LearnWait(state State, wait time.Duration) {
	e.learnedWait[state] = wait
}

// Decide implements the state-to-decision table from the PageAnalyzer spec.
func (e *Engine) Decide(a Analysis) Verdict {
	switch a.State {
	case StateCloudflareChallenge:
		return Verdict{Decision: DecisionWait, WaitTime: e.waitFor(a.State, 5*time.Second), RetryAfter: true, MaxRetries: 3}

	case StateCaptchaRequired:
		return Verdict{Decision: DecisionPause, RequiresHuman: true}

	case StateErrorPage:
		switch a.ErrorPage.Kind {
		case ErrorNotFound:
			return Verdict{Decision: DecisionNavigateBack}
		case ErrorServer, ErrorTimeout:
			return Verdict{Decision: DecisionRetry, WaitTime: 3 * time.Second, MaxRetries: 2}
		case ErrorForbidden:
			return Verdict{Decision: DecisionPause, RequiresHuman: true}
		default:
			return Verdict{Decision: DecisionNavigateBack}
		}

	case StateLoading:
		return Verdict{Decision: DecisionWait, WaitTime: e.waitFor(a.State, 2*time.Second), RetryAfter: true, MaxRetries: 5}

	case StateWrongPage:
		return e.decideWrongPage(a)

	default:
		return Verdict{Decision: DecisionContinue}
	}
}

func (e *Engine) waitFor(state State, fallback time.Duration) time.Duration {
	if w, ok := e.learnedWait[state]; ok && w > 0 {
		return w
	}
	return fallback
}

func (e *Engine) decideWrongPage(a Analysis) Verdict {
	if e.knowledge != nil {
		known := e.knowledge.GetKnownURL(a.URL)
		if known.Found && known.SuccessRate > 0.5 {
			return Verdict{Decision: DecisionContinue, LearnedIntents: known.LearnedIntents}
		}
	}
	if e.expectedURL != "" {
		return Verdict{Decision: DecisionNavigate, NavigateToURL: e.expectedURL}
	}
	return Verdict{Decision: DecisionNavigateBack}
}
