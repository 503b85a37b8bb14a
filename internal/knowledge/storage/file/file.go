// Package file implements knowledge.Storage as a single JSON blob on disk.
package file

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/flowforge/autoflow/internal/model"
)

type document struct {
	SelectorHistory map[string]model.SelectorHistory `json:"selectorHistory"`
	SkillTemplates  map[string]model.SkillTemplate   `json:"skillTemplates"`
	SitePatterns    map[string]model.SitePattern     `json:"sitePatterns"`
	URLPatterns     map[string]model.URLPattern      `json:"urlPatterns"`
}

func emptyDocument() document {
	return document{
		SelectorHistory: map[string]model.SelectorHistory{},
		SkillTemplates:  map[string]model.SkillTemplate{},
		SitePatterns:    map[string]model.SitePattern{},
		URLPatterns:     map[string]model.URLPattern{},
	}
}

// Store persists all four aggregates in a single JSON file, rewritten
// wholesale on every save call.
type Store struct {
	mu   sync.Mutex
	path string
}

// New creates a file-backed store at path. The file is created lazily on
// first save if it does not already exist.
func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) load() (document, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return emptyDocument(), nil
	}
	if err != nil {
		return document{}, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, err
	}
	if doc.SelectorHistory == nil {
		doc = emptyDocument()
	}
	return doc, nil
}

func (s *Store) save(doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(s.path, data, 0o644)
}

func (s *Store) SaveSelectorHistory(h model.SelectorHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.SelectorHistory[h.Key()] = h
	return s.save(doc)
}

func (s *Store) GetSelectorHistory(key string) (model.SelectorHistory, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return model.SelectorHistory{}, false, err
	}
	h, ok := doc.SelectorHistory[key]
	return h, ok, nil
}

func (s *Store) AllSelectorHistory() ([]model.SelectorHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]model.SelectorHistory, 0, len(doc.SelectorHistory))
	for _, h := range doc.SelectorHistory {
		out = append(out, h)
	}
	return out, nil
}

func (s *Store) SaveSkillTemplate(t model.SkillTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.SkillTemplates[t.Intent] = t
	return s.save(doc)
}

func (s *Store) GetSkillTemplate(intent string) (model.SkillTemplate, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return model.SkillTemplate{}, false, err
	}
	t, ok := doc.SkillTemplates[intent]
	return t, ok, nil
}

func (s *Store) AllSkillTemplates() ([]model.SkillTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]model.SkillTemplate, 0, len(doc.SkillTemplates))
	for _, t := range doc.SkillTemplates {
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) SaveSitePattern(sp model.SitePattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.SitePatterns[sp.Site] = sp
	return s.save(doc)
}

func (s *Store) GetSitePattern(site string) (model.SitePattern, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return model.SitePattern{}, false, err
	}
	sp, ok := doc.SitePatterns[site]
	return sp, ok, nil
}

func (s *Store) AllSitePatterns() ([]model.SitePattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]model.SitePattern, 0, len(doc.SitePatterns))
	for _, sp := range doc.SitePatterns {
		out = append(out, sp)
	}
	return out, nil
}

func (s *Store) SaveURLPattern(up model.URLPattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.URLPatterns[up.URL] = up
	return s.save(doc)
}

func (s *Store) GetURLPattern(url string) (model.URLPattern, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return model.URLPattern{}, false, err
	}
	up, ok := doc.URLPatterns[url]
	return up, ok, nil
}

func (s *Store) AllURLPatterns() ([]model.URLPattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]model.URLPattern, 0, len(doc.URLPatterns))
	for _, up := range doc.URLPatterns {
		out = append(out, up)
	}
	return out, nil
}
