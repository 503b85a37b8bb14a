// Package appconfig loads the process-level Config: database, knowledge
// storage, browser driver, proxy, and LLM endpoint settings (spec §6), from
// YAML with environment-variable overrides applied after load.
package appconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig selects and configures the relational storage adapter.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// KnowledgeConfig selects the KnowledgeBase persistence adapter.
type KnowledgeConfig struct {
	// Storage is "file" or "sql". An empty value defaults to "file".
	Storage  string `yaml:"storage"`
	FilePath string `yaml:"filePath"`
}

// PlaywrightConfig configures the browser driver's launch behaviour. The
// name is carried from spec.md's PLAYWRIGHT_* environment variables even
// though the concrete driver is go-rod, not Playwright (§1, §4.4).
type PlaywrightConfig struct {
	Headless   bool   `yaml:"headless"`
	Executable string `yaml:"executable"`
	Timeout    string `yaml:"timeout"`
}

// GetTimeout parses PlaywrightConfig.Timeout, defaulting to 30s.
func (p PlaywrightConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(p.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// ProxyConfig configures an outbound proxy for the browser driver.
type ProxyConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LLMConfig configures the optional classification/decision LLM client.
// The client itself is out of scope (spec.md Non-goals); only the
// connection settings are carried so a future client can read them.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"apiKey"`
}

// LoggingConfig controls the obslog sink.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Config is the root application configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge"`
	Playwright PlaywrightConfig `yaml:"playwright"`
	Proxy      ProxyConfig      `yaml:"proxy"`
	LLM        LLMConfig        `yaml:"llm"`
	Logging    LoggingConfig    `yaml:"logging"`
	SiteConfig string           `yaml:"siteConfig"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{URL: "sqlite://automation.db"},
		Knowledge: KnowledgeConfig{
			Storage:  "file",
			FilePath: "data/knowledge.json",
		},
		Playwright: PlaywrightConfig{
			Headless: true,
			Timeout:  "30s",
		},
		LLM: LLMConfig{
			Provider: "openai",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		SiteConfig: "data/sites.json",
	}
}

// Load reads Config from a YAML file, falling back to defaults if the file
// does not exist, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides layers the environment variables named in spec.md §6
// over whatever the YAML file (or defaults) already set.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("KNOWLEDGE_STORAGE"); v != "" {
		c.Knowledge.Storage = v
	}
	if v := os.Getenv("PLAYWRIGHT_HEADLESS"); v != "" {
		c.Playwright.Headless = v != "false" && v != "0"
	}
	if v := os.Getenv("PLAYWRIGHT_EXECUTABLE"); v != "" {
		c.Playwright.Executable = v
	}
	if v := os.Getenv("PLAYWRIGHT_TIMEOUT"); v != "" {
		c.Playwright.Timeout = v
	}
	if v := os.Getenv("PROXY_URL"); v != "" {
		c.Proxy.URL = v
	}
	if v := os.Getenv("PROXY_USERNAME"); v != "" {
		c.Proxy.Username = v
	}
	if v := os.Getenv("PROXY_PASSWORD"); v != "" {
		c.Proxy.Password = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.LLM.APIKey = v
		if c.LLM.Provider == "" {
			c.LLM.Provider = "openai"
		}
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
}
