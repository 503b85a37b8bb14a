package sql

import (
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/flowforge/autoflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveSelectorHistory_ExecutesUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := New(db)

	h := model.SelectorHistory{Site: "x.test", OriginalSelector: "#old", HealedSelector: "#new", Strategy: string(model.RefCSS), SuccessCount: 2, LastUsed: time.Now()}
	mock.ExpectExec("INSERT INTO selector_history").
		WithArgs(h.Key(), h.Site, h.OriginalSelector, h.HealedSelector, string(h.Strategy), h.SuccessCount, h.FailureCount, h.LastUsed).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.SaveSelectorHistory(h))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetSelectorHistory_ReturnsFalseWhenMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := New(db)

	mock.ExpectQuery("SELECT site, original_selector").
		WithArgs("missing-key").
		WillReturnRows(sqlmock.NewRows([]string{"site", "original_selector", "healed_selector", "strategy", "success_count", "failure_count", "last_used"}))

	_, ok, err := s.GetSelectorHistory("missing-key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllSitePatterns_UnmarshalsJSONColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := New(db)

	rows := sqlmock.NewRows([]string{"site", "common_intents_json", "common_selectors_json", "common_flows_json", "success_rate", "total_jobs", "last_updated"}).
		AddRow("x.test", `{"search":3}`, `{"#q":3}`, `["search -> submit-login"]`, 0.75, 4, time.Now())
	mock.ExpectQuery("SELECT site, common_intents_json").WillReturnRows(rows)

	patterns, err := s.AllSitePatterns()
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, 3, patterns[0].CommonIntents["search"])
	assert.Equal(t, []string{"search -> submit-login"}, patterns[0].CommonFlows)
}

func TestSaveSkillTemplate_MarshalsSpecAsJSON(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := New(db)

	tpl := model.SkillTemplate{Intent: "search", SuccessRate: 0.9, UsageCount: 5, SkillSpec: model.SkillSpec{Name: "search"}}
	mock.ExpectExec("INSERT INTO skill_templates").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.SaveSkillTemplate(tpl))
	assert.NoError(t, mock.ExpectationsWereMet())
}
