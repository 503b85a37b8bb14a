package appconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Knowledge.Storage)
	assert.True(t, cfg.Playwright.Headless)
}

func TestLoad_ParsesYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("database:\n  url: \"postgres://x\"\nknowledge:\n  storage: sql\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://x", cfg.Database.URL)
	assert.Equal(t, "sql", cfg.Knowledge.Storage)
}

func TestApplyEnvOverrides_DatabaseAndKnowledge(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite://override.db")
	t.Setenv("KNOWLEDGE_STORAGE", "sql")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "sqlite://override.db", cfg.Database.URL)
	assert.Equal(t, "sql", cfg.Knowledge.Storage)
}

func TestApplyEnvOverrides_PlaywrightHeadlessFalse(t *testing.T) {
	t.Setenv("PLAYWRIGHT_HEADLESS", "false")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.False(t, cfg.Playwright.Headless)
}

func TestApplyEnvOverrides_OpenAIKeySetsProviderIfEmpty(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := &Config{}
	cfg.applyEnvOverrides()

	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "openai", cfg.LLM.Provider)
}

func TestApplyEnvOverrides_LLMProviderOverridesExplicitly(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "anthropic")

	cfg := &Config{LLM: LLMConfig{Provider: "openai"}}
	cfg.applyEnvOverrides()

	assert.Equal(t, "anthropic", cfg.LLM.Provider)
}

func TestPlaywrightConfig_GetTimeoutDefaultsOnParseFailure(t *testing.T) {
	p := PlaywrightConfig{Timeout: "not-a-duration"}
	assert.Equal(t, 30_000_000_000, int(p.GetTimeout()))
}
