// Package knowledge implements the KnowledgeBase: three in-memory
// aggregate maps plus a URL-pattern map, learning from completed jobs and
// debouncing persistence to a pluggable storage adapter (spec §4.6).
package knowledge

import (
	"sort"
	"sync"
	"time"

	"github.com/flowforge/autoflow/internal/model"
	"github.com/flowforge/autoflow/internal/obslog"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SaveDebounce is the delay between a mutation and the resulting save, so
// bursts of updates coalesce into one write.
const SaveDebounce = 2 * time.Second

// Storage is the adapter contract: save/get by key per aggregate, plus
// bulk get-all for cold start.
type Storage interface {
	SaveSelectorHistory(model.SelectorHistory) error
	GetSelectorHistory(key string) (model.SelectorHistory, bool, error)
	AllSelectorHistory() ([]model.SelectorHistory, error)

	SaveSkillTemplate(model.SkillTemplate) error
	GetSkillTemplate(intent string) (model.SkillTemplate, bool, error)
	AllSkillTemplates() ([]model.SkillTemplate, error)

	SaveSitePattern(model.SitePattern) error
	GetSitePattern(site string) (model.SitePattern, bool, error)
	AllSitePatterns() ([]model.SitePattern, error)

	SaveURLPattern(model.URLPattern) error
	GetURLPattern(url string) (model.URLPattern, bool, error)
	AllURLPatterns() ([]model.URLPattern, error)
}

// JobLearningInput is the subset of an executed job used to update
// aggregates.
type JobLearningInput struct {
	Site       string
	Actions    []model.CanonicalAction
	Result     model.ExecutionResult
	Recording  model.RecordingTranscript
}

// KnowledgeBase owns the learned-selector, skill-template, site-pattern,
// and URL-pattern aggregates.
type KnowledgeBase struct {
	mu sync.Mutex

	selectorHistory map[string]model.SelectorHistory
	skillTemplates  map[string]model.SkillTemplate
	sitePatterns    map[string]model.SitePattern
	urlPatterns     map[string]model.URLPattern

	storage   Storage
	saveTimer *time.Timer
	now       func() time.Time
}

// New creates an empty KnowledgeBase. Call LoadFromStorage to warm it from
// a Storage adapter.
func New() *KnowledgeBase {
	return &KnowledgeBase{
		selectorHistory: make(map[string]model.SelectorHistory),
		skillTemplates:  make(map[string]model.SkillTemplate),
		sitePatterns:    make(map[string]model.SitePattern),
		urlPatterns:     make(map[string]model.URLPattern),
		now:             time.Now,
	}
}

// WithStorage attaches a persistence adapter.
func (kb *KnowledgeBase) WithStorage(s Storage) *KnowledgeBase {
	kb.storage = s
	return kb
}

// LoadFromStorage performs the cold-start bulk load.
// LoadFromStorage performs the cold-start bulk load. The four aggregate
// reads are independent, so they run concurrently via errgroup rather than
// serially blocking on each other.
func (kb *KnowledgeBase) LoadFromStorage() error {
	if kb.storage == nil {
		return nil
	}

	var hist []model.SelectorHistory
	var templates []model.SkillTemplate
	var sites []model.SitePattern
	var urls []model.URLPattern

	var eg errgroup.Group
	eg.Go(func() (err error) { hist, err = kb.storage.AllSelectorHistory(); return })
	eg.Go(func() (err error) { templates, err = kb.storage.AllSkillTemplates(); return })
	eg.Go(func() (err error) { sites, err = kb.storage.AllSitePatterns(); return })
	eg.Go(func() (err error) { urls, err = kb.storage.AllURLPatterns(); return })
	if err := eg.Wait(); err != nil {
		return err
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()

	for _, h := range hist {
		kb.selectorHistory[h.Key()] = h
	}
	for _, t := range templates {
		kb.skillTemplates[t.Intent] = t
	}
	for _, s := range sites {
		kb.sitePatterns[s.Site] = s
	}
	for _, u := range urls {
		kb.urlPatterns[u.URL] = u
	}
	return nil
}

// LearnFromJob upserts every aggregate touched by one executed job.
func (kb *KnowledgeBase) LearnFromJob(in JobLearningInput) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	commandByIndex := in.Result.Commands

	idx := 0
	for _, action := range in.Actions {
		for _, step := range action.Steps {
			if step.Target == nil || step.Target.Selector == "" {
				idx++
				continue
			}
			succeeded := idx < len(commandByIndex) && commandByIndex[idx].Status == model.CommandSuccess
			kb.upsertSelectorHistory(in.Site, step.Target.Selector, step.Target.Strategy, succeeded)
			idx++
		}
		kb.upsertSkillTemplate(action.Intent, action.Steps, in.Result.Status == model.JobSuccess)
		kb.upsertSitePattern(in.Site, action)
	}

	kb.appendFlows(in.Site, in.Actions)
	kb.upsertURLPatterns(in.Site, in.Recording, in.Actions)

	kb.scheduleSave()
}

func (kb *KnowledgeBase) upsertSelectorHistory(site, selector string, strategy model.RefStrategy, success bool) {
	h := model.SelectorHistory{Site: site, OriginalSelector: selector, Strategy: string(strategy)}
	key := h.Key()
	if existing, ok := kb.selectorHistory[key]; ok {
		h = existing
	}
	if success {
		h.SuccessCount++
	} else {
		h.FailureCount++
	}
	h.LastUsed = kb.now()
	kb.selectorHistory[key] = h
}

func (kb *KnowledgeBase) upsertSkillTemplate(intent string, steps []model.CanonicalStep, success bool) {
	tpl, ok := kb.skillTemplates[intent]
	if !ok {
		tpl = model.SkillTemplate{Intent: intent, SkillSpec: model.SkillSpec{Name: intent, Steps: steps}}
	}
	tpl.UsageCount++
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	tpl.SuccessRate = runningMean(tpl.SuccessRate, tpl.UsageCount, outcome)
	if success {
		tpl.SkillSpec.Steps = steps
	}
	tpl.LastUpdated = kb.now()
	kb.skillTemplates[intent] = tpl
}

func runningMean(prevMean float64, countAfterThisObservation int, observation float64) float64 {
	if countAfterThisObservation <= 0 {
		return observation
	}
	n := float64(countAfterThisObservation)
	return prevMean + (observation-prevMean)/n
}

func (kb *KnowledgeBase) upsertSitePattern(site string, action model.CanonicalAction) {
	sp, ok := kb.sitePatterns[site]
	if !ok {
		sp = model.SitePattern{
			Site:            site,
			CommonIntents:   map[string]int{},
			CommonSelectors: map[string]int{},
		}
	}
	sp.CommonIntents[action.Intent]++
	for _, step := range action.Steps {
		if step.Target != nil && step.Target.Selector != "" {
			sp.CommonSelectors[step.Target.Selector]++
		}
	}
	sp.TotalJobs++
	sp.LastUpdated = kb.now()
	kb.sitePatterns[site] = sp
}

func (kb *KnowledgeBase) appendFlows(site string, actions []model.CanonicalAction) {
	if len(actions) < 2 {
		return
	}
	sp, ok := kb.sitePatterns[site]
	if !ok {
		return
	}
	for i := 0; i+1 < len(actions); i++ {
		sp.AddFlow(actions[i].Intent + " -> " + actions[i+1].Intent)
	}
	kb.sitePatterns[site] = sp
}

func (kb *KnowledgeBase) upsertURLPatterns(site string, recording model.RecordingTranscript, actions []model.CanonicalAction) {
	var navigatedURLs []string
	for _, step := range recording.Steps {
		if step.Type == model.StepNavigate && step.URL != "" {
			navigatedURLs = append(navigatedURLs, step.URL)
		}
	}
	if len(navigatedURLs) == 0 && recording.URL != "" {
		navigatedURLs = append(navigatedURLs, recording.URL)
	}

	for _, url := range navigatedURLs {
		up, ok := kb.urlPatterns[url]
		if !ok {
			up = model.URLPattern{URL: url, Selectors: map[string]int{}}
		}
		for _, action := range actions {
			up.Intents = appendUnique(up.Intents, action.Intent)
			for _, step := range action.Steps {
				if step.Target != nil && step.Target.Selector != "" {
					up.Selectors[step.Target.Selector]++
				}
			}
		}
		up.UsageCount++
		up.LastUsed = kb.now()
		kb.urlPatterns[url] = up
	}
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// Snapshot is a point-in-time export of every aggregate, independent of
// whatever Storage adapter (if any) is attached.
type Snapshot struct {
	SelectorHistory []model.SelectorHistory `json:"selectorHistory"`
	SkillTemplates  []model.SkillTemplate   `json:"skillTemplates"`
	SitePatterns    []model.SitePattern     `json:"sitePatterns"`
	URLPatterns     []model.URLPattern      `json:"urlPatterns"`
}

// Snapshot copies the current aggregates out for export.
func (kb *KnowledgeBase) Snapshot() Snapshot {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	snap := Snapshot{}
	for _, h := range kb.selectorHistory {
		snap.SelectorHistory = append(snap.SelectorHistory, h)
	}
	for _, t := range kb.skillTemplates {
		snap.SkillTemplates = append(snap.SkillTemplates, t)
	}
	for _, p := range kb.sitePatterns {
		snap.SitePatterns = append(snap.SitePatterns, p)
	}
	for _, u := range kb.urlPatterns {
		snap.URLPatterns = append(snap.URLPatterns, u)
	}
	return snap
}

// Import merges a Snapshot into the live aggregates and, if a Storage
// adapter is attached, persists every merged record immediately.
func (kb *KnowledgeBase) Import(snap Snapshot) error {
	kb.mu.Lock()
	for _, h := range snap.SelectorHistory {
		kb.selectorHistory[h.Key()] = h
	}
	for _, t := range snap.SkillTemplates {
		kb.skillTemplates[t.Intent] = t
	}
	for _, p := range snap.SitePatterns {
		kb.sitePatterns[p.Site] = p
	}
	for _, u := range snap.URLPatterns {
		kb.urlPatterns[u.URL] = u
	}
	storage := kb.storage
	kb.mu.Unlock()

	if storage == nil {
		return nil
	}
	for _, h := range snap.SelectorHistory {
		if err := storage.SaveSelectorHistory(h); err != nil {
			return err
		}
	}
	for _, t := range snap.SkillTemplates {
		if err := storage.SaveSkillTemplate(t); err != nil {
			return err
		}
	}
	for _, p := range snap.SitePatterns {
		if err := storage.SaveSitePattern(p); err != nil {
			return err
		}
	}
	for _, u := range snap.URLPatterns {
		if err := storage.SaveURLPattern(u); err != nil {
			return err
		}
	}
	return nil
}

// BestSelector returns the selector history with the highest success rate
// among entries whose original or healed selector matches the argument.
func (kb *KnowledgeBase) BestSelector(site, originalSelector string) (model.SelectorHistory, bool) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	var best model.SelectorHistory
	found := false
	for _, h := range kb.selectorHistory {
		if h.Site != site {
			continue
		}
		if h.OriginalSelector != originalSelector && h.HealedSelector != originalSelector {
			continue
		}
		if !found || h.SuccessRate() > best.SuccessRate() {
			best = h
			found = true
		}
	}
	return best, found
}

// SkillTemplate resolves a learned template for an intent.
func (kb *KnowledgeBase) SkillTemplate(intent string) (model.SkillTemplate, bool) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	tpl, ok := kb.skillTemplates[intent]
	return tpl, ok
}

// GetKnownURL resolves known-URL facts: exact match first, then
// scheme://host/path normalisation.
func (kb *KnowledgeBase) GetKnownURL(url string) (model.URLPattern, bool) {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	if up, ok := kb.urlPatterns[url]; ok {
		return up, true
	}
	normalized := model.NormalizeURL(url)
	for key, up := range kb.urlPatterns {
		if model.NormalizeURL(key) == normalized {
			return up, true
		}
	}
	return model.URLPattern{}, false
}

// RecordSelectorSuccess and RecordSelectorFailure create-or-update the
// history row for (site, selector) and schedule a debounced save.
func (kb *KnowledgeBase) RecordSelectorSuccess(site, selector string, strategy model.RefStrategy) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.upsertSelectorHistory(site, selector, strategy, true)
	kb.scheduleSave()
}

func (kb *KnowledgeBase) RecordSelectorFailure(site, selector string, strategy model.RefStrategy) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.upsertSelectorHistory(site, selector, strategy, false)
	kb.scheduleSave()
}

// scheduleSave debounces persistence; callers must hold kb.mu.
func (kb *KnowledgeBase) scheduleSave() {
	if kb.storage == nil {
		return
	}
	if kb.saveTimer != nil {
		kb.saveTimer.Stop()
	}
	kb.saveTimer = time.AfterFunc(SaveDebounce, kb.Flush)
}

// Flush persists every in-memory aggregate immediately, for shutdown.
func (kb *KnowledgeBase) Flush() {
	if kb.storage == nil {
		return
	}
	kb.mu.Lock()
	defer kb.mu.Unlock()

	for _, h := range kb.selectorHistory {
		if err := kb.storage.SaveSelectorHistory(h); err != nil {
			obslog.Get(obslog.CategoryKnowledge).Error("save selector history failed", zap.Error(err))
		}
	}
	for _, t := range kb.skillTemplates {
		if err := kb.storage.SaveSkillTemplate(t); err != nil {
			obslog.Get(obslog.CategoryKnowledge).Error("save skill template failed", zap.Error(err))
		}
	}
	for _, s := range kb.sitePatterns {
		if err := kb.storage.SaveSitePattern(s); err != nil {
			obslog.Get(obslog.CategoryKnowledge).Error("save site pattern failed", zap.Error(err))
		}
	}
	for _, u := range kb.urlPatterns {
		if err := kb.storage.SaveURLPattern(u); err != nil {
			obslog.Get(obslog.CategoryKnowledge).Error("save url pattern failed", zap.Error(err))
		}
	}
}

// TopSitesByVolume returns site names ordered by descending TotalJobs,
// used by reporting surfaces.
func (kb *KnowledgeBase) TopSitesByVolume(n int) []string {
	kb.mu.Lock()
	defer kb.mu.Unlock()

	type pair struct {
		site string
		jobs int
	}
	pairs := make([]pair, 0, len(kb.sitePatterns))
	for site, sp := range kb.sitePatterns {
		pairs = append(pairs, pair{site, sp.TotalJobs})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].jobs > pairs[j].jobs })
	if n > len(pairs) {
		n = len(pairs)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = pairs[i].site
	}
	return out
}
