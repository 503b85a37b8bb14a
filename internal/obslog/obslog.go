// Package obslog provides config-driven categorized structured logging for
// the automation core. Every subsystem pulls its logger by category so that
// verbosity and output routing can be tuned per subsystem without touching
// call sites.
package obslog

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies the subsystem emitting a log line.
type Category string

const (
	CategoryBoot         Category = "boot"
	CategoryPipeline     Category = "pipeline"
	CategoryPreprocessor Category = "preprocessor"
	CategoryIntent       Category = "intent"
	CategorySkillGen     Category = "skillgen"
	CategoryPlanner      Category = "planner"
	CategoryHealer       Category = "healer"
	CategoryKnowledge    Category = "knowledge"
	CategoryStrategy     Category = "strategy"
	CategoryPageAnalyzer Category = "pageanalyzer"
	CategoryIntelligence Category = "intelligence"
	CategoryExecutor     Category = "executor"
	CategoryTaskExecutor Category = "taskexecutor"
	CategoryPerformance  Category = "performance"
	CategoryScheduler    Category = "scheduler"
	CategoryBrowser      Category = "browser"
)

var (
	mu      sync.RWMutex
	base    *zap.Logger
	loggers = make(map[Category]*zap.Logger)
	enabled = make(map[Category]bool)
	debug   bool
)

// Configure installs the root zap logger used to derive per-category
// children. Call once at process startup; safe to call again in tests.
func Configure(jsonFormat bool, debugMode bool) error {
	mu.Lock()
	defer mu.Unlock()

	cfg := zap.NewProductionConfig()
	if debugMode {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if !jsonFormat {
		cfg.Encoding = "console"
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	l, err := cfg.Build()
	if err != nil {
		return err
	}
	base = l
	debug = debugMode
	loggers = make(map[Category]*zap.Logger)
	return nil
}

// DisableCategory silences a category regardless of global debug mode.
func DisableCategory(c Category) {
	mu.Lock()
	defer mu.Unlock()
	enabled[c] = false
	delete(loggers, c)
}

func ensureBase() *zap.Logger {
	if base != nil {
		return base
	}
	l, _ := zap.NewProduction()
	return l
}

// Get returns (or lazily creates) the logger for a category.
func Get(c Category) *zap.Logger {
	mu.RLock()
	if l, ok := loggers[c]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[c]; ok {
		return l
	}
	if on, seen := enabled[c]; seen && !on {
		l := zap.NewNop()
		loggers[c] = l
		return l
	}
	l := ensureBase().With(zap.String("component", string(c)))
	loggers[c] = l
	return l
}

// Sync flushes all buffered log entries; call on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if base != nil {
		_ = base.Sync()
	}
	for _, l := range loggers {
		_ = l.Sync()
	}
}

// IsDebug reports whether debug-level logging is currently active.
func IsDebug() bool {
	mu.RLock()
	defer mu.RUnlock()
	return debug
}

// ParseJSONFormat interprets common truthy config strings for JSON-format toggles.
func ParseJSONFormat(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "json":
		return true
	default:
		return false
	}
}
