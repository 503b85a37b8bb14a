// Package preprocessor validates and normalises recorder transcripts into
// canonical form, extracting site/URL metadata along the way (spec §4.1).
package preprocessor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flowforge/autoflow/internal/model"
	"github.com/flowforge/autoflow/internal/obslog"
	"go.uber.org/zap"
)

// ErrInvalidRecording is returned when the input is not a transcript-shaped
// mapping or lacks an ordered steps list.
var ErrInvalidRecording = errors.New("invalid recording")

var submitLexicon = []string{"submit", "sign in", "login"}

// Preprocessor normalises RecordingTranscripts.
type Preprocessor struct{}

// New creates a Preprocessor.
func New() *Preprocessor { return &Preprocessor{} }

// Normalize validates and canonicalises a transcript, returning a new
// transcript with closed-set step kinds, a resolved selector per step (filled
// from its reference groups by ResolveSelector when empty), and monotonic
// synthetic timestamps filled in where missing.
//
// Normalize is idempotent: normalising an already-normalised transcript
// yields the same canonical form (spec.md §8 round-trip law).
func (p *Preprocessor) Normalize(in model.RecordingTranscript) (model.RecordingTranscript, error) {
	if in.Steps == nil {
		return model.RecordingTranscript{}, fmt.Errorf("%w: missing steps list", ErrInvalidRecording)
	}

	out := model.RecordingTranscript{
		Title:    in.Title,
		URL:      in.URL,
		Metadata: in.Metadata,
		Steps:    make([]model.Step, 0, len(in.Steps)),
	}

	var syntheticTS int64
	for _, raw := range in.Steps {
		step := raw
		step.Type = coerceKind(step)
		if step.Selector == "" {
			if ref, ok := ResolveSelector(step.Selectors); ok {
				step.Selector = ref.Value
			}
		}

		if step.Timestamp == 0 {
			syntheticTS++
			step.Timestamp = syntheticTS
		} else if step.Timestamp > syntheticTS {
			syntheticTS = step.Timestamp
		}

		out.Steps = append(out.Steps, step)
	}

	obslog.Get(obslog.CategoryPreprocessor).Debug("normalized recording",
		zap.Int("steps", len(out.Steps)))

	return out, nil
}

// coerceKind closes the type field over the supported step-kind set; when
// the type is absent it infers navigate/input/click per spec.md §4.1.
func coerceKind(s model.Step) model.StepKind {
	switch s.Type {
	case model.StepClick, model.StepInput, model.StepNavigate,
		model.StepWaitForSelector, model.StepWaitForTimeout, model.StepWait,
		model.StepPause, model.StepAssert, model.StepScroll,
		model.StepKeyDown, model.StepKeyUp, model.StepScrape:
		return s.Type
	case "change":
		return model.StepInput
	}

	if s.Type == "" {
		if s.URL != "" {
			return model.StepNavigate
		}
		if s.Value != "" || s.Text != "" {
			return model.StepInput
		}
		return model.StepClick
	}

	// Unknown type string: best-effort coercion by inference, since the
	// field is closed but the input is untrusted.
	if s.URL != "" {
		return model.StepNavigate
	}
	if s.Value != "" {
		return model.StepInput
	}
	return model.StepClick
}

// ResolveSelector picks one reference from a group of alternatives,
// preferring a reference with no aria/, xpath/, or piercing prefix. If no
// reference in any group qualifies, the first group's first entry is used.
func ResolveSelector(groups [][]model.Ref) (model.Ref, bool) {
	for _, group := range groups {
		for _, ref := range group {
			if isPlainCSS(ref) {
				return ref, true
			}
		}
	}
	if len(groups) > 0 && len(groups[0]) > 0 {
		return groups[0][0], true
	}
	return model.Ref{}, false
}

func isPlainCSS(ref model.Ref) bool {
	switch ref.Strategy {
	case model.RefAccessibility, model.RefXPath, model.RefPiercing:
		return false
	}
	v := strings.ToLower(string(ref.Strategy)) + strings.ToLower(ref.Value)
	if strings.HasPrefix(v, "aria/") || strings.HasPrefix(v, "xpath/") || strings.HasPrefix(v, "pierce/") {
		return false
	}
	return true
}

// ExtractMetadata derives summary metadata from a normalised transcript.
func ExtractMetadata(t model.RecordingTranscript) model.RecordingMetadata {
	md := model.RecordingMetadata{StepCount: len(t.Steps)}

	firstURL := t.URL
	var lastNavigateURL string
	for _, s := range t.Steps {
		if firstURL == "" && s.Type == model.StepNavigate && s.URL != "" {
			firstURL = s.URL
		}
		if s.Type == model.StepNavigate && s.URL != "" {
			lastNavigateURL = s.URL
			md.HasNavigation = true
		}
		if s.Type == model.StepInput {
			md.HasInput = true
		}
		if s.Type == model.StepAssert {
			md.HasAssertion = true
		}
	}

	md.URL = firstURL
	md.Site = model.Host(firstURL)
	md.TargetURL = model.Host(lastNavigateURL)
	return md
}

// IsSubmitReference reports whether a reference's text or selector matches
// the submit lexicon; the IntentExtractor uses it for chunk-boundary
// detection.
func IsSubmitReference(text, selector string) bool {
	lowerText := strings.ToLower(text)
	lowerSel := strings.ToLower(selector)
	for _, term := range submitLexicon {
		if strings.Contains(lowerText, term) {
			return true
		}
	}
	return strings.Contains(lowerSel, "submit")
}
