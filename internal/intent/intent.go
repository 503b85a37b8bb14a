// Package intent chunks a normalised transcript at navigation/assertion/
// submit boundaries and labels each chunk with an intent tag (spec §4.2).
package intent

import (
	"strings"

	"github.com/flowforge/autoflow/internal/model"
	"github.com/flowforge/autoflow/internal/obslog"
	"github.com/flowforge/autoflow/internal/preprocessor"
)

// PatternConfidence is the confidence assigned to pattern-matched chunks.
const PatternConfidence = 0.7

// LLMConfidence is the confidence assigned when an optional LLM refines the
// pattern-matched label (not exercised without an LLMClassifier).
const LLMConfidence = 0.9

// Classifier optionally refines a pattern-matched intent tag using an LLM.
// Out of scope per spec.md §1 ("the LLM client used for optional intent
// classification"); callers may supply one, but none ships with the core.
type Classifier interface {
	Refine(chunk []model.Step, patternIntent string) (intent string, ok bool)
}

// Extractor chunks and labels canonical actions from a transcript.
type Extractor struct {
	classifier Classifier
}

// New creates an Extractor with no LLM classifier.
func New() *Extractor { return &Extractor{} }

// WithClassifier attaches an optional LLM-backed classifier.
func (e *Extractor) WithClassifier(c Classifier) *Extractor {
	e.classifier = c
	return e
}

// Extract chunks steps and emits CanonicalActions with intent labels.
func (e *Extractor) Extract(t model.RecordingTranscript) []model.CanonicalAction {
	site := model.Host(t.URL)
	chunks := chunkSteps(t.Steps)

	actions := make([]model.CanonicalAction, 0, len(chunks))
	for _, chunk := range chunks {
		patternIntent := classifyChunk(chunk)
		finalIntent := patternIntent
		confidence := PatternConfidence
		if e.classifier != nil {
			if refined, ok := e.classifier.Refine(chunk, patternIntent); ok {
				finalIntent = refined
				confidence = LLMConfidence
			}
		}

		actions = append(actions, model.CanonicalAction{
			Intent: finalIntent,
			Steps:  toCanonicalSteps(chunk),
			Metadata: model.ActionMetadata{
				Source:     "pattern",
				Site:       site,
				Confidence: confidence,
			},
		})
	}

	obslog.Get(obslog.CategoryIntent).Sugar().Debugw("extracted canonical actions",
		"count", len(actions), "site", site)
	return actions
}

// chunkSteps splits steps at navigate boundaries (not the first step) and
// closes a chunk after every assert and after every submit-like click. A
// trailing wait step (waitForSelector/waitForTimeout/wait/pause) that
// confirms the just-closed action — e.g. waiting for the post-login
// dashboard — is absorbed into the same chunk before the close takes
// effect, matching the login-chunking scenario (spec.md §8 scenario 1).
func chunkSteps(steps []model.Step) [][]model.Step {
	var chunks [][]model.Step
	var current []model.Step

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, current)
			current = nil
		}
	}

	isWaitKind := func(k model.StepKind) bool {
		switch k {
		case model.StepWaitForSelector, model.StepWaitForTimeout, model.StepWait, model.StepPause:
			return true
		}
		return false
	}

	for i := 0; i < len(steps); i++ {
		s := steps[i]
		if s.Type == model.StepNavigate && i != 0 {
			flush()
		}
		current = append(current, s)

		boundary := false
		switch s.Type {
		case model.StepAssert:
			boundary = true
		case model.StepClick:
			boundary = isSubmitClick(s)
		}

		if boundary {
			if i+1 < len(steps) && isWaitKind(steps[i+1].Type) {
				current = append(current, steps[i+1])
				i++
			}
			flush()
		}
	}
	flush()

	return chunks
}

func isSubmitClick(s model.Step) bool {
	if preprocessor.IsSubmitReference(s.Text, s.Selector) {
		return true
	}
	if ref, ok := preprocessor.ResolveSelector(s.Selectors); ok {
		if preprocessor.IsSubmitReference(s.Text, ref.Value) {
			return true
		}
	}
	return false
}

// classifyChunk pattern-matches a chunk to an intent tag.
func classifyChunk(chunk []model.Step) string {
	var hasInput, hasAssert, hasPasswordInput, hasSubmitClick, hasSearch bool
	var navigateCount int
	var textareaInput bool

	for _, s := range chunk {
		selText := strings.ToLower(selectorText(s))
		switch s.Type {
		case model.StepInput:
			hasInput = true
			if strings.Contains(selText, "password") || strings.Contains(selText, "pwd") {
				hasPasswordInput = true
			}
			if strings.Contains(selText, "search") || strings.Contains(selText, "query") {
				hasSearch = true
			}
			if strings.Contains(selText, "textarea") {
				textareaInput = true
			}
		case model.StepAssert:
			hasAssert = true
		case model.StepClick:
			if isSubmitClick(s) {
				hasSubmitClick = true
			}
		case model.StepNavigate:
			navigateCount++
		}
		if strings.Contains(selText, "search") || strings.Contains(selText, "query") {
			hasSearch = true
		}
	}

	switch {
	case hasPasswordInput:
		return "submit-login"
	case hasInput && hasSubmitClick:
		return "submit-form"
	case hasSearch:
		return "search"
	case navigateCount == 1 && len(chunk) == 1:
		return "navigate"
	case hasAssert && !hasInput:
		return "scrape-list"
	case textareaInput:
		return "post-message"
	default:
		return "generic-action"
	}
}

func selectorText(s model.Step) string {
	parts := []string{s.Text, s.Selector}
	for _, group := range s.Selectors {
		for _, ref := range group {
			parts = append(parts, ref.Value)
		}
	}
	return strings.Join(parts, " ")
}

// toCanonicalSteps maps recorder steps to driver-neutral canonical steps.
// Mapping follows the CanonicalAction shape of spec.md §3; the
// Step->CanonicalStep action mapping used here feeds planner.Generate.
func toCanonicalSteps(chunk []model.Step) []model.CanonicalStep {
	out := make([]model.CanonicalStep, 0, len(chunk))
	for i := range chunk {
		s := chunk[i]
		cs := model.CanonicalStep{Source: &chunk[i], Value: s.Value}

		switch s.Type {
		case model.StepNavigate:
			cs.Action = model.ActionNavigate
			cs.Value = s.URL
		case model.StepInput:
			cs.Action = model.ActionFill
			cs.Target = resolveTarget(s)
		case model.StepClick:
			cs.Action = model.ActionClick
			cs.Target = resolveTarget(s)
		case model.StepWaitForSelector:
			cs.Action = model.ActionWaitFor
			cs.Target = resolveTarget(s)
		case model.StepWaitForTimeout, model.StepWait, model.StepPause:
			cs.Action = model.ActionWaitFor
		case model.StepAssert:
			cs.Action = model.ActionAssert
			cs.Target = resolveTarget(s)
		case model.StepScroll:
			cs.Action = model.ActionScroll
			cs.Options = map[string]interface{}{"x": s.OffsetX, "y": s.OffsetY}
		case model.StepKeyDown, model.StepKeyUp:
			cs.Action = model.ActionPress
			cs.Value = s.Key
		case model.StepScrape:
			cs.Action = model.ActionScrape
			cs.Target = resolveTarget(s)
		default:
			cs.Action = model.ActionClick
			cs.Target = resolveTarget(s)
		}

		out = append(out, cs)
	}
	return out
}

func resolveTarget(s model.Step) *model.Target {
	if ref, ok := preprocessor.ResolveSelector(s.Selectors); ok {
		t := &model.Target{Strategy: ref.Strategy, Selector: ref.Value}
		for _, group := range s.Selectors {
			for _, alt := range group {
				if alt == ref {
					continue
				}
				t.Fallbacks = append(t.Fallbacks, model.Target{Strategy: alt.Strategy, Selector: alt.Value})
			}
		}
		return t
	}
	if s.Selector != "" {
		return &model.Target{Strategy: model.RefCSS, Selector: s.Selector}
	}
	return nil
}
