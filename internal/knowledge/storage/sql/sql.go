// Package sql implements knowledge.Storage on a relational backend: one
// table per aggregate, JSON columns for the map-valued fields, and a
// unique constraint on the aggregate key.
package sql

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/flowforge/autoflow/internal/model"
	_ "modernc.org/sqlite"
)

// Store is a relational knowledge.Storage adapter. It targets
// modernc.org/sqlite by default but only uses portable SQL.
type Store struct {
	db *sql.DB
}

// Open connects to dsn using the modernc.org/sqlite driver (registered as
// "sqlite") and ensures the schema exists.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already-open *sql.DB, used by tests against go-sqlmock.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS selector_history (
			history_key TEXT PRIMARY KEY,
			site TEXT NOT NULL,
			original_selector TEXT NOT NULL,
			healed_selector TEXT,
			strategy TEXT,
			success_count INTEGER DEFAULT 0,
			failure_count INTEGER DEFAULT 0,
			last_used TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS skill_templates (
			intent TEXT PRIMARY KEY,
			spec_json TEXT NOT NULL,
			success_rate REAL DEFAULT 0,
			usage_count INTEGER DEFAULT 0,
			last_updated TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS site_patterns (
			site TEXT PRIMARY KEY,
			common_intents_json TEXT,
			common_selectors_json TEXT,
			common_flows_json TEXT,
			success_rate REAL DEFAULT 0,
			total_jobs INTEGER DEFAULT 0,
			last_updated TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS url_patterns (
			url TEXT PRIMARY KEY,
			intents_json TEXT,
			selectors_json TEXT,
			success_rate REAL DEFAULT 0,
			usage_count INTEGER DEFAULT 0,
			last_used TIMESTAMP
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) SaveSelectorHistory(h model.SelectorHistory) error {
	_, err := s.db.Exec(`
		INSERT INTO selector_history (history_key, site, original_selector, healed_selector, strategy, success_count, failure_count, last_used)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(history_key) DO UPDATE SET
			healed_selector=excluded.healed_selector,
			strategy=excluded.strategy,
			success_count=excluded.success_count,
			failure_count=excluded.failure_count,
			last_used=excluded.last_used
	`, h.Key(), h.Site, h.OriginalSelector, h.HealedSelector, string(h.Strategy), h.SuccessCount, h.FailureCount, h.LastUsed)
	return err
}

func (s *Store) GetSelectorHistory(key string) (model.SelectorHistory, bool, error) {
	row := s.db.QueryRow(`SELECT site, original_selector, healed_selector, strategy, success_count, failure_count, last_used FROM selector_history WHERE history_key = ?`, key)
	var h model.SelectorHistory
	var strategy string
	if err := row.Scan(&h.Site, &h.OriginalSelector, &h.HealedSelector, &strategy, &h.SuccessCount, &h.FailureCount, &h.LastUsed); err != nil {
		if err == sql.ErrNoRows {
			return model.SelectorHistory{}, false, nil
		}
		return model.SelectorHistory{}, false, err
	}
	h.Strategy = strategy
	return h, true, nil
}

func (s *Store) AllSelectorHistory() ([]model.SelectorHistory, error) {
	rows, err := s.db.Query(`SELECT site, original_selector, healed_selector, strategy, success_count, failure_count, last_used FROM selector_history`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SelectorHistory
	for rows.Next() {
		var h model.SelectorHistory
		var strategy string
		if err := rows.Scan(&h.Site, &h.OriginalSelector, &h.HealedSelector, &strategy, &h.SuccessCount, &h.FailureCount, &h.LastUsed); err != nil {
			return nil, err
		}
		h.Strategy = strategy
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) SaveSkillTemplate(t model.SkillTemplate) error {
	blob, err := json.Marshal(t.SkillSpec)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO skill_templates (intent, spec_json, success_rate, usage_count, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(intent) DO UPDATE SET
			spec_json=excluded.spec_json, success_rate=excluded.success_rate,
			usage_count=excluded.usage_count, last_updated=excluded.last_updated
	`, t.Intent, string(blob), t.SuccessRate, t.UsageCount, t.LastUpdated)
	return err
}

func (s *Store) GetSkillTemplate(intent string) (model.SkillTemplate, bool, error) {
	row := s.db.QueryRow(`SELECT spec_json, success_rate, usage_count, last_updated FROM skill_templates WHERE intent = ?`, intent)
	var specJSON string
	t := model.SkillTemplate{Intent: intent}
	if err := row.Scan(&specJSON, &t.SuccessRate, &t.UsageCount, &t.LastUpdated); err != nil {
		if err == sql.ErrNoRows {
			return model.SkillTemplate{}, false, nil
		}
		return model.SkillTemplate{}, false, err
	}
	if err := json.Unmarshal([]byte(specJSON), &t.SkillSpec); err != nil {
		return model.SkillTemplate{}, false, err
	}
	return t, true, nil
}

func (s *Store) AllSkillTemplates() ([]model.SkillTemplate, error) {
	rows, err := s.db.Query(`SELECT intent, spec_json, success_rate, usage_count, last_updated FROM skill_templates`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SkillTemplate
	for rows.Next() {
		var t model.SkillTemplate
		var specJSON string
		if err := rows.Scan(&t.Intent, &specJSON, &t.SuccessRate, &t.UsageCount, &t.LastUpdated); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(specJSON), &t.SkillSpec); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) SaveSitePattern(sp model.SitePattern) error {
	intents, err := json.Marshal(sp.CommonIntents)
	if err != nil {
		return err
	}
	selectors, err := json.Marshal(sp.CommonSelectors)
	if err != nil {
		return err
	}
	flows, err := json.Marshal(sp.CommonFlows)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO site_patterns (site, common_intents_json, common_selectors_json, common_flows_json, success_rate, total_jobs, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(site) DO UPDATE SET
			common_intents_json=excluded.common_intents_json,
			common_selectors_json=excluded.common_selectors_json,
			common_flows_json=excluded.common_flows_json,
			success_rate=excluded.success_rate,
			total_jobs=excluded.total_jobs,
			last_updated=excluded.last_updated
	`, sp.Site, string(intents), string(selectors), string(flows), sp.SuccessRate, sp.TotalJobs, sp.LastUpdated)
	return err
}

func (s *Store) GetSitePattern(site string) (model.SitePattern, bool, error) {
	row := s.db.QueryRow(`SELECT common_intents_json, common_selectors_json, common_flows_json, success_rate, total_jobs, last_updated FROM site_patterns WHERE site = ?`, site)
	sp := model.SitePattern{Site: site}
	var intents, selectors, flows string
	if err := row.Scan(&intents, &selectors, &flows, &sp.SuccessRate, &sp.TotalJobs, &sp.LastUpdated); err != nil {
		if err == sql.ErrNoRows {
			return model.SitePattern{}, false, nil
		}
		return model.SitePattern{}, false, err
	}
	if err := unmarshalJSONColumns(intents, selectors, flows, &sp); err != nil {
		return model.SitePattern{}, false, err
	}
	return sp, true, nil
}

func unmarshalJSONColumns(intents, selectors, flows string, sp *model.SitePattern) error {
	if intents != "" {
		if err := json.Unmarshal([]byte(intents), &sp.CommonIntents); err != nil {
			return err
		}
	}
	if selectors != "" {
		if err := json.Unmarshal([]byte(selectors), &sp.CommonSelectors); err != nil {
			return err
		}
	}
	if flows != "" {
		if err := json.Unmarshal([]byte(flows), &sp.CommonFlows); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) AllSitePatterns() ([]model.SitePattern, error) {
	rows, err := s.db.Query(`SELECT site, common_intents_json, common_selectors_json, common_flows_json, success_rate, total_jobs, last_updated FROM site_patterns`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SitePattern
	for rows.Next() {
		var sp model.SitePattern
		var intents, selectors, flows string
		if err := rows.Scan(&sp.Site, &intents, &selectors, &flows, &sp.SuccessRate, &sp.TotalJobs, &sp.LastUpdated); err != nil {
			return nil, err
		}
		if err := unmarshalJSONColumns(intents, selectors, flows, &sp); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (s *Store) SaveURLPattern(up model.URLPattern) error {
	intents, err := json.Marshal(up.Intents)
	if err != nil {
		return err
	}
	selectors, err := json.Marshal(up.Selectors)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO url_patterns (url, intents_json, selectors_json, success_rate, usage_count, last_used)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			intents_json=excluded.intents_json, selectors_json=excluded.selectors_json,
			success_rate=excluded.success_rate, usage_count=excluded.usage_count, last_used=excluded.last_used
	`, up.URL, string(intents), string(selectors), up.SuccessRate, up.UsageCount, up.LastUsed)
	return err
}

func (s *Store) GetURLPattern(url string) (model.URLPattern, bool, error) {
	row := s.db.QueryRow(`SELECT intents_json, selectors_json, success_rate, usage_count, last_used FROM url_patterns WHERE url = ?`, url)
	up := model.URLPattern{URL: url}
	var intents, selectors string
	if err := row.Scan(&intents, &selectors, &up.SuccessRate, &up.UsageCount, &up.LastUsed); err != nil {
		if err == sql.ErrNoRows {
			return model.URLPattern{}, false, nil
		}
		return model.URLPattern{}, false, err
	}
	if intents != "" {
		if err := json.Unmarshal([]byte(intents), &up.Intents); err != nil {
			return model.URLPattern{}, false, err
		}
	}
	if selectors != "" {
		if err := json.Unmarshal([]byte(selectors), &up.Selectors); err != nil {
			return model.URLPattern{}, false, err
		}
	}
	return up, true, nil
}

func (s *Store) AllURLPatterns() ([]model.URLPattern, error) {
	rows, err := s.db.Query(`SELECT url, intents_json, selectors_json, success_rate, usage_count, last_used FROM url_patterns`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.URLPattern
	for rows.Next() {
		var up model.URLPattern
		var intents, selectors string
		if err := rows.Scan(&up.URL, &intents, &selectors, &up.SuccessRate, &up.UsageCount, &up.LastUsed); err != nil {
			return nil, err
		}
		if intents != "" {
			if err := json.Unmarshal([]byte(intents), &up.Intents); err != nil {
				return nil, err
			}
		}
		if selectors != "" {
			if err := json.Unmarshal([]byte(selectors), &up.Selectors); err != nil {
				return nil, err
			}
		}
		out = append(out, up)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }
