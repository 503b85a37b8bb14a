// Package skillgen annotates canonical actions with inputs/outputs, retry
// policy, safety checks, and rate limits, substituting a learned skill
// template when its observed success rate clears the reuse threshold
// (spec §4.3).
package skillgen

import (
	"regexp"
	"time"

	"github.com/flowforge/autoflow/internal/model"
)

// ReuseThreshold is the learned-template success-rate floor above which a
// previously learned SkillSpec is reused instead of inferring a fresh one.
const ReuseThreshold = 0.7

var templateVarPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// TemplateLookup resolves a learned SkillTemplate for an intent, if any.
type TemplateLookup interface {
	SkillTemplate(intent string) (model.SkillTemplate, bool)
}

// Generator produces SkillSpecs from canonical actions.
type Generator struct {
	templates TemplateLookup
}

// New creates a Generator with no template source (always infers fresh).
func New() *Generator { return &Generator{} }

// WithTemplates attaches a learned-template lookup (typically the
// KnowledgeBase).
func (g *Generator) WithTemplates(t TemplateLookup) *Generator {
	g.templates = t
	return g
}

// Generate produces a SkillSpec for one CanonicalAction.
func (g *Generator) Generate(action model.CanonicalAction) model.SkillSpec {
	if g.templates != nil {
		if tpl, ok := g.templates.SkillTemplate(action.Intent); ok && tpl.SuccessRate > ReuseThreshold {
			spec := tpl.SkillSpec
			spec.Steps = action.Steps
			return spec
		}
	}

	return model.SkillSpec{
		Name:         action.Intent,
		Description:  "generated skill for intent " + action.Intent,
		Inputs:       inferInputs(action),
		Outputs:      inferOutputs(action.Intent),
		Steps:        action.Steps,
		RetryPolicy:  inferRetryPolicy(action.Intent),
		SafetyChecks: inferSafetyChecks(action.Intent),
		RateLimit:    inferRateLimit(action.Intent),
	}
}

// inferInputs finds {{name}} template variables in step values and adds
// known intent-derived inputs (login -> email+password).
func inferInputs(action model.CanonicalAction) []string {
	seen := make(map[string]bool)
	var inputs []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			inputs = append(inputs, name)
		}
	}

	for _, s := range action.Steps {
		for _, m := range templateVarPattern.FindAllStringSubmatch(s.Value, -1) {
			add(m[1])
		}
	}

	if action.Intent == "submit-login" {
		add("email")
		add("password")
	}

	return inputs
}

func inferOutputs(intent string) []string {
	switch intent {
	case "submit-login":
		return []string{"success", "session"}
	case "search":
		return []string{"results"}
	case "scrape-list":
		return []string{"items"}
	default:
		return nil
	}
}

func inferRetryPolicy(intent string) model.RetryPolicy {
	switch intent {
	case "navigate", "submit-login":
		return model.RetryPolicy{MaxRetries: 3, Backoff: model.BackoffExponential, BaseMs: 1000, CapMs: 30000, Jitter: true}
	default:
		return model.RetryPolicy{MaxRetries: 2, Backoff: model.BackoffLinear, BaseMs: 500, CapMs: 5000, Jitter: false}
	}
}

func inferSafetyChecks(intent string) []string {
	switch intent {
	case "submit-login":
		return []string{"confirm-credentials-present", "confirm-https"}
	case "post-message":
		return []string{"confirm-content-non-empty"}
	default:
		return nil
	}
}

func inferRateLimit(intent string) *model.RateLimit {
	switch intent {
	case "submit-login", "post-message":
		return &model.RateLimit{PerHost: 5, PerGlobal: 10, Window: 60 * time.Second}
	case "search", "scrape-list":
		return &model.RateLimit{PerHost: 10, PerGlobal: 20, Window: 60 * time.Second}
	default:
		return nil
	}
}
