// Package healer regenerates a failing selector into up to ten ranked
// candidate references using a fixed strategy priority order, backed by an
// LRU+TTL candidate cache (spec §4.5).
package healer

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/flowforge/autoflow/internal/driver"
	"github.com/flowforge/autoflow/internal/model"
	"github.com/flowforge/autoflow/internal/obslog"
	"go.uber.org/zap"
)

const (
	maxCandidates       = 10
	candidateCacheTTL   = 24 * time.Hour
	candidateCacheSize  = 1000
	stabilityCacheTTL   = time.Hour
	stabilityCacheSize  = 5000
)

// stableAttributes lists attributes used by the "stable attributes"
// strategy, in priority order, with their base confidence.
var stableAttributes = []struct {
	name       string
	confidence float64
}{
	{"data-testid", 0.92},
	{"data-cy", 0.9},
	{"data-test", 0.88},
	{"name", 0.75},
	{"aria-label", 0.72},
	{"placeholder", 0.65},
	{"role", 0.6},
	{"id", 0.95},
	{"aria-labelledby", 0.55},
}

var uniquenessScores = map[string]float64{
	"id":          0.95,
	"data-testid": 0.9,
	"name":        0.7,
	"text":        0.65,
	"tag":         0.1,
}

var stableContainers = []string{"form", "nav", "main", "article", "section", "[role='main']", "[role='navigation']"}

// Context is the caller-supplied hint set for a failing reference.
type Context struct {
	Site              string
	ElementText       string
	ElementAttributes map[string]string
	ElementType       string
}

// Candidate is a scored replacement reference.
type Candidate struct {
	Ref    model.Ref
	Score  float64
	Source string
}

// KnowledgeLookup resolves learned selector history, used by the learned
// strategy and the historyScore/stabilityScore scoring dimensions.
type KnowledgeLookup interface {
	BestSelector(site, originalSelector string) (model.SelectorHistory, bool)
}

// Healer generates ranked selector-replacement candidates.
type Healer struct {
	knowledge       KnowledgeLookup
	candidateCache  *lruTTLCache
	stabilityCache  *lruTTLCache
}

// New creates a Healer with no learned-knowledge source.
func New() *Healer {
	return &Healer{
		candidateCache: newLRUTTLCache(candidateCacheSize, candidateCacheTTL),
		stabilityCache: newLRUTTLCache(stabilityCacheSize, stabilityCacheTTL),
	}
}

// WithKnowledge attaches a KnowledgeBase-backed lookup.
func (h *Healer) WithKnowledge(k KnowledgeLookup) *Healer {
	h.knowledge = k
	return h
}

func cacheKey(site, original, elementText, elementType string) string {
	return fmt.Sprintf("%s\x1f%s\x1f%s\x1f%s", site, original, elementText, elementType)
}

// Heal produces up to ten deduplicated candidates, sorted by descending
// score, for a failing selector against a live page.
func (h *Healer) Heal(ctx context.Context, page driver.Page, originalSelector string, hctx Context) []Candidate {
	key := cacheKey(hctx.Site, originalSelector, hctx.ElementText, hctx.ElementType)
	if cached, ok := h.candidateCache.get(key); ok {
		return cached.([]Candidate)
	}

	elCtx, sampled := page.ElementContext(ctx, originalSelector)
	if sampled {
		if hctx.ElementText == "" {
			hctx.ElementText = elCtx.Text
		}
		if hctx.ElementType == "" {
			hctx.ElementType = elCtx.Tag
		}
		if hctx.ElementAttributes == nil {
			hctx.ElementAttributes = elCtx.Attributes
		}
	}

	var raw []Candidate
	raw = append(raw, h.learnedStrategy(hctx.Site, originalSelector)...)
	raw = append(raw, stableAttributeStrategy(hctx)...)
	raw = append(raw, textStrategy(hctx)...)
	raw = append(raw, structureStrategy(hctx)...)
	raw = append(raw, semanticStrategy(hctx)...)
	raw = append(raw, visualStrategy(hctx)...)
	raw = append(raw, heuristicFallback(hctx))

	for i := range raw {
		raw[i].Score = h.scoreCandidate(raw[i], hctx)
	}

	result := dedupeAndRank(raw)
	h.candidateCache.set(key, result)

	obslog.Get(obslog.CategoryHealer).Debug("healed selector",
		zap.String("original", originalSelector), zap.Int("candidates", len(result)))
	return result
}

func (h *Healer) learnedStrategy(site, originalSelector string) []Candidate {
	if h.knowledge == nil {
		return nil
	}
	hist, ok := h.knowledge.BestSelector(site, originalSelector)
	if !ok || hist.SuccessCount <= hist.FailureCount {
		return nil
	}
	sel := hist.HealedSelector
	if sel == "" {
		sel = hist.OriginalSelector
	}
	return []Candidate{{
		Ref:    model.Ref{Strategy: model.RefStrategy(hist.Strategy), Value: sel},
		Score:  0.95,
		Source: "learned",
	}}
}

func stableAttributeStrategy(hctx Context) []Candidate {
	var out []Candidate
	for _, attr := range stableAttributes {
		val, ok := hctx.ElementAttributes[attr.name]
		if !ok || val == "" {
			continue
		}
		sel := fmt.Sprintf("[%s=%q]", attr.name, val)
		if attr.name == "id" {
			sel = "#" + val
		}
		out = append(out, Candidate{
			Ref:    model.Ref{Strategy: model.RefCSS, Value: sel},
			Score:  attr.confidence,
			Source: "stable-attribute:" + attr.name,
		})
	}
	return out
}

func textStrategy(hctx Context) []Candidate {
	if hctx.ElementText == "" {
		return nil
	}
	text := strings.TrimSpace(hctx.ElementText)
	if text == "" {
		return nil
	}
	return []Candidate{
		{Ref: model.Ref{Strategy: model.RefText, Value: text}, Score: 0.68, Source: "text-exact"},
		{Ref: model.Ref{Strategy: model.RefText, Value: strings.ToLower(text)}, Score: 0.6, Source: "text-insensitive"},
		{Ref: model.Ref{Strategy: model.RefXPath, Value: fmt.Sprintf("//*[contains(text(), %q)]", firstWords(text, 4))}, Score: 0.5, Source: "text-substring"},
	}
}

func structureStrategy(hctx Context) []Candidate {
	var out []Candidate
	if hctx.ElementType == "input" {
		if label, ok := hctx.ElementAttributes["labelText"]; ok && label != "" {
			out = append(out, Candidate{
				Ref:    model.Ref{Strategy: model.RefLabel, Value: label},
				Score:  0.58,
				Source: "structure-label",
			})
		}
	}
	for _, sibling := range []string{"id", "name", "data-testid"} {
		if v, ok := hctx.ElementAttributes["sibling-"+sibling]; ok && v != "" {
			out = append(out, Candidate{
				Ref:    model.Ref{Strategy: model.RefCSS, Value: fmt.Sprintf("[%s=%q] ~ *", sibling, v)},
				Score:  0.45,
				Source: "structure-sibling",
			})
		}
	}
	return out
}

func semanticStrategy(hctx Context) []Candidate {
	var out []Candidate
	if hctx.ElementType == "" {
		return out
	}
	for _, container := range stableContainers {
		out = append(out, Candidate{
			Ref:    model.Ref{Strategy: model.RefCSS, Value: fmt.Sprintf("%s %s", container, hctx.ElementType)},
			Score:  0.35,
			Source: "semantic-container",
		})
	}
	if role, ok := hctx.ElementAttributes["role"]; ok && role != "" {
		out = append(out, Candidate{
			Ref:    model.Ref{Strategy: model.RefRole, Value: role},
			Score:  0.5,
			Source: "semantic-role",
		})
	}
	return out
}

func visualStrategy(hctx Context) []Candidate {
	w, hasW := hctx.ElementAttributes["referenceWidth"]
	hgt, hasH := hctx.ElementAttributes["referenceHeight"]
	if !hasW || !hasH || hctx.ElementType == "" {
		return nil
	}
	tag := hctx.ElementType
	score := 0.3
	if isInteractiveTag(tag) {
		score = 0.4
	}
	return []Candidate{{
		Ref:    model.Ref{Strategy: model.RefCSS, Value: tag},
		Score:  score,
		Source: fmt.Sprintf("visual-bbox(%sx%s)", w, hgt),
	}}
}

func heuristicFallback(hctx Context) Candidate {
	tag := hctx.ElementType
	if tag == "" {
		tag = "*"
	}
	return Candidate{
		Ref:    model.Ref{Strategy: model.RefCSS, Value: tag},
		Score:  0.1,
		Source: "heuristic-fallback",
	}
}

func isInteractiveTag(tag string) bool {
	switch tag {
	case "a", "button", "input", "select", "textarea":
		return true
	default:
		return false
	}
}

var nonWordRun = regexp.MustCompile(`\S+`)

func firstWords(s string, n int) string {
	words := nonWordRun.FindAllString(s, -1)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

// scoreCandidate combines the multi-dimensional scoring signals into a
// single value in [0,1].
func (h *Healer) scoreCandidate(c Candidate, hctx Context) float64 {
	score := c.Score

	if uniq, ok := uniquenessScores[classify(c.Ref)]; ok {
		score = (score + uniq) / 2
	}

	depthPenalty := domDepthPenalty(c.Ref.Value)
	score -= depthPenalty

	if h.knowledge != nil {
		if hist, ok := h.knowledge.BestSelector(hctx.Site, c.Ref.Value); ok {
			score += 0.1 * hist.SuccessRate()
		}
	}

	return clamp01(score)
}

func classify(ref model.Ref) string {
	switch {
	case strings.HasPrefix(ref.Value, "#"):
		return "id"
	case strings.Contains(ref.Value, "data-testid"):
		return "data-testid"
	case strings.Contains(ref.Value, "[name="):
		return "name"
	case ref.Strategy == model.RefText:
		return "text"
	default:
		return "tag"
	}
}

// domDepthPenalty discourages deep descendant combinators.
func domDepthPenalty(selector string) float64 {
	depth := strings.Count(strings.TrimSpace(selector), " ")
	return math.Min(0.3, float64(depth)*0.05)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// dedupeAndRank removes duplicate selector strings keeping the highest
// score, sorts by descending score, and caps the result at maxCandidates.
func dedupeAndRank(raw []Candidate) []Candidate {
	best := make(map[string]Candidate)
	for _, c := range raw {
		key := string(c.Ref.Strategy) + "|" + c.Ref.Value
		if existing, ok := best[key]; !ok || c.Score > existing.Score {
			best[key] = c
		}
	}

	out := make([]Candidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	return out
}

// PredictStability estimates how likely a selector is to remain valid,
// using a small rule-based model cached per (selector, site, type) for an
// hour.
func (h *Healer) PredictStability(selector, site, elementType string) float64 {
	key := cacheKey(site, selector, "stability", elementType)
	if cached, ok := h.stabilityCache.get(key); ok {
		return cached.(float64)
	}

	score := 0.5
	if strings.HasPrefix(selector, "#") || strings.Contains(selector, "data-") {
		score += 0.3
	}
	if strings.Contains(selector, ":nth-child") || strings.Contains(selector, ":nth-of-type") {
		score -= 0.25
	}
	score -= domDepthPenalty(selector)
	score = clamp01(score)

	h.stabilityCache.set(key, score)
	return score
}
