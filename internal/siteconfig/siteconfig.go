// Package siteconfig loads the per-domain navigation-strategy file consumed
// by the TaskExecutor (spec §6, "Site-configuration file"). The wire format
// is JSON, per the external-interfaces contract; this is distinct from the
// process's own YAML configuration in internal/appconfig.
package siteconfig

import (
	"encoding/json"
	"os"
	"strings"
	"time"
)

// WaitUntil mirrors the closed set of navigation completion signals
// recognised by the site-config file.
type WaitUntil string

const (
	WaitUntilLoad             WaitUntil = "load"
	WaitUntilDOMContentLoaded WaitUntil = "domcontentloaded"
	WaitUntilNetworkIdle      WaitUntil = "networkidle"
)

// SiteCfg is one domain's navigation strategy override.
type SiteCfg struct {
	HighActivity                bool      `json:"highActivity,omitempty"`
	NavigationTimeoutMs         int       `json:"navigationTimeout,omitempty"`
	WaitUntil                   WaitUntil `json:"waitUntil,omitempty"`
	PostLoadWaitMs              int       `json:"postLoadWait,omitempty"`
	CustomWaitSelectors         []string  `json:"customWaitSelectors,omitempty"`
	CustomWaitTimeoutMs         int       `json:"customWaitTimeout,omitempty"`
	CustomWaitFallbackSelectors []string  `json:"customWaitFallbackSelectors,omitempty"`
	CustomWaitFallbackTimeoutMs int       `json:"customWaitFallbackTimeout,omitempty"`
	AdditionalWaitAfterLoadMs   int       `json:"additionalWaitAfterLoad,omitempty"`
	FallbackWaitMs              int       `json:"fallbackWait,omitempty"`
}

// DefaultCfg is the fallback strategy for domains with no explicit entry.
type DefaultCfg struct {
	NavigationTimeoutMs int       `json:"navigationTimeout,omitempty"`
	WaitUntil            WaitUntil `json:"waitUntil,omitempty"`
	PostLoadWaitMs       int       `json:"postLoadWait,omitempty"`
	FallbackWaitMs       int       `json:"fallbackWait,omitempty"`
}

// document is the on-disk shape: { sites: {...}, defaults: {...} }.
type document struct {
	Sites    map[string]SiteCfg `json:"sites"`
	Defaults DefaultCfg         `json:"defaults"`
}

func defaultDocument() document {
	return document{
		Sites: map[string]SiteCfg{},
		Defaults: DefaultCfg{
			NavigationTimeoutMs: 30000,
			WaitUntil:           WaitUntilNetworkIdle,
			PostLoadWaitMs:      500,
			FallbackWaitMs:      2000,
		},
	}
}

// Manager resolves a navigation strategy for a URL by substring-matching
// its domain keys against the current URL.
type Manager struct {
	doc document
}

// Load reads a site-configuration JSON file. A missing file yields a
// Manager seeded with built-in defaults, mirroring the app config loader's
// missing-file behavior.
func Load(path string) (*Manager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manager{doc: defaultDocument()}, nil
		}
		return nil, err
	}

	doc := defaultDocument()
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Sites == nil {
		doc.Sites = map[string]SiteCfg{}
	}
	return &Manager{doc: doc}, nil
}

// NewWithDefaults creates a Manager carrying only the built-in defaults,
// for callers that run without a site-configuration file.
func NewWithDefaults() *Manager {
	return &Manager{doc: defaultDocument()}
}

// Strategy is the resolved navigation plan for one URL.
type Strategy struct {
	HighActivity                bool
	NavigationTimeout            time.Duration
	WaitUntil                    WaitUntil
	PostLoadWait                 time.Duration
	CustomWaitSelectors          []string
	CustomWaitTimeout            time.Duration
	CustomWaitFallbackSelectors  []string
	CustomWaitFallbackTimeout    time.Duration
	AdditionalWaitAfterLoad      time.Duration
	FallbackWait                 time.Duration
}

// Resolve finds the first domain key that substring-matches url and merges
// its SiteCfg over the defaults; with no match, defaults alone apply.
func (m *Manager) Resolve(url string) Strategy {
	d := m.doc.Defaults
	s := Strategy{
		WaitUntil:         orDefault(d.WaitUntil, WaitUntilNetworkIdle),
		NavigationTimeout: msOrDefault(d.NavigationTimeoutMs, 30*time.Second),
		PostLoadWait:      msOrDefault(d.PostLoadWaitMs, 500*time.Millisecond),
		FallbackWait:      msOrDefault(d.FallbackWaitMs, 2*time.Second),
	}

	cfg, ok := m.match(url)
	if !ok {
		return s
	}

	s.HighActivity = cfg.HighActivity
	if cfg.NavigationTimeoutMs > 0 {
		s.NavigationTimeout = time.Duration(cfg.NavigationTimeoutMs) * time.Millisecond
	}
	if cfg.WaitUntil != "" {
		s.WaitUntil = cfg.WaitUntil
	}
	if cfg.PostLoadWaitMs > 0 {
		s.PostLoadWait = time.Duration(cfg.PostLoadWaitMs) * time.Millisecond
	}
	s.CustomWaitSelectors = cfg.CustomWaitSelectors
	if cfg.CustomWaitTimeoutMs > 0 {
		s.CustomWaitTimeout = time.Duration(cfg.CustomWaitTimeoutMs) * time.Millisecond
	}
	s.CustomWaitFallbackSelectors = cfg.CustomWaitFallbackSelectors
	if cfg.CustomWaitFallbackTimeoutMs > 0 {
		s.CustomWaitFallbackTimeout = time.Duration(cfg.CustomWaitFallbackTimeoutMs) * time.Millisecond
	}
	if cfg.AdditionalWaitAfterLoadMs > 0 {
		s.AdditionalWaitAfterLoad = time.Duration(cfg.AdditionalWaitAfterLoadMs) * time.Millisecond
	}
	if cfg.FallbackWaitMs > 0 {
		s.FallbackWait = time.Duration(cfg.FallbackWaitMs) * time.Millisecond
	}
	return s
}

func (m *Manager) match(url string) (SiteCfg, bool) {
	lower := strings.ToLower(url)
	for domain, cfg := range m.doc.Sites {
		if domain != "" && strings.Contains(lower, strings.ToLower(domain)) {
			return cfg, true
		}
	}
	return SiteCfg{}, false
}

func orDefault(w WaitUntil, fallback WaitUntil) WaitUntil {
	if w == "" {
		return fallback
	}
	return w
}

func msOrDefault(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
