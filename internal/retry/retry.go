// Package retry implements AdaptiveRetry: per-error-kind backoff
// strategies with delay computation, retry eligibility, and adaptation of
// maxRetries from success rates observed per (site, error kind) (spec §4.7).
// The adapted maxRetries is kept per error kind and applies to every site.
package retry

import (
	"math"
	"math/rand"
	"strings"
	"sync"
)

// ErrorKind is the closed set of classified failure reasons.
type ErrorKind string

const (
	ErrorNetwork  ErrorKind = "network"
	ErrorSelector ErrorKind = "selector"
	ErrorTimeout  ErrorKind = "timeout"
	Error500      ErrorKind = "500"
	Error403      ErrorKind = "403"
	ErrorOther    ErrorKind = "other"
)

// Backoff is the closed set of delay-growth families.
type Backoff string

const (
	BackoffExponential Backoff = "exponential"
	BackoffLinear      Backoff = "linear"
	BackoffFibonacci   Backoff = "fibonacci"
	BackoffFixed       Backoff = "fixed"
)

// Strategy is the retry policy for one error kind.
type Strategy struct {
	MaxRetries int
	Backoff    Backoff
	BaseMs     int
	CapMs      int
	Jitter     bool
	Adaptive   bool
}

// DefaultStrategies is the spec's per-error-kind starting table.
var DefaultStrategies = map[ErrorKind]Strategy{
	ErrorNetwork:  {MaxRetries: 5, Backoff: BackoffExponential, BaseMs: 1000, CapMs: 30000, Jitter: true, Adaptive: true},
	ErrorSelector: {MaxRetries: 3, Backoff: BackoffLinear, BaseMs: 500, CapMs: 5000, Jitter: false, Adaptive: true},
	ErrorTimeout:  {MaxRetries: 4, Backoff: BackoffExponential, BaseMs: 2000, CapMs: 20000, Jitter: true, Adaptive: true},
	Error500:      {MaxRetries: 3, Backoff: BackoffExponential, BaseMs: 2000, CapMs: 15000, Jitter: true, Adaptive: true},
	Error403:      {MaxRetries: 0, Backoff: BackoffFixed, BaseMs: 0, CapMs: 0, Jitter: false, Adaptive: false},
	ErrorOther:    {MaxRetries: 2, Backoff: BackoffLinear, BaseMs: 1000, CapMs: 5000, Jitter: false, Adaptive: false},
}

var nonRetryableSubstrings = []string{"not found", "invalid", "forbidden"}

// randFloat is overridable for deterministic jitter tests.
var randFloat = rand.Float64

// AdaptiveRetry evaluates retry eligibility and delay for classified
// errors. Outcomes are counted per (site, error kind), but the adjusted
// maxRetries is stored per error kind and is used for every site.
type AdaptiveRetry struct {
	mu         sync.Mutex
	strategies map[ErrorKind]Strategy
	siteStats  map[string]*siteErrorStats
}

type siteErrorStats struct {
	successes int
	failures  int
	attempts  int
}

// New creates an AdaptiveRetry seeded with the default strategy table.
func New() *AdaptiveRetry {
	strategies := make(map[ErrorKind]Strategy, len(DefaultStrategies))
	for k, v := range DefaultStrategies {
		strategies[k] = v
	}
	return &AdaptiveRetry{strategies: strategies, siteStats: make(map[string]*siteErrorStats)}
}

func (r *AdaptiveRetry) strategyFor(kind ErrorKind) Strategy {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.strategies[kind]; ok {
		return s
	}
	return DefaultStrategies[ErrorOther]
}

// ShouldRetry reports whether attempt n (1-indexed) should proceed for the
// given error kind and message.
func (r *AdaptiveRetry) ShouldRetry(kind ErrorKind, n int, errMessage string) bool {
	s := r.strategyFor(kind)
	if n > s.MaxRetries {
		return false
	}
	if kind == Error403 {
		return false
	}
	lower := strings.ToLower(errMessage)
	for _, needle := range nonRetryableSubstrings {
		if strings.Contains(lower, needle) {
			return false
		}
	}
	return true
}

// CalculateDelay returns the delay in milliseconds before attempt n
// (1-indexed).
func (r *AdaptiveRetry) CalculateDelay(kind ErrorKind, n int) int {
	s := r.strategyFor(kind)
	if n < 1 {
		n = 1
	}

	var f float64
	switch s.Backoff {
	case BackoffExponential:
		f = math.Pow(2, float64(n-1))
	case BackoffLinear:
		f = float64(n)
	case BackoffFibonacci:
		f = float64(fibonacci(n))
	default:
		f = 1
	}

	delay := float64(s.BaseMs) * f
	if delay > float64(s.CapMs) && s.CapMs > 0 {
		delay = float64(s.CapMs)
	}

	if s.Jitter {
		jitter := (randFloat()*0.2 - 0.1) // U(-0.1, 0.1)
		delay = delay * (1 + jitter)
	}

	if delay < 0 {
		delay = 0
	}
	return int(delay)
}

func fibonacci(n int) int {
	if n <= 1 {
		return 1
	}
	a, b := 1, 1
	for i := 2; i <= n; i++ {
		a, b = b, a+b
	}
	return b
}

// RecordOutcome feeds a success/failure observation for (site, kind) into
// the adaptation model and, after the threshold, adjusts MaxRetries.
func (r *AdaptiveRetry) RecordOutcome(site string, kind ErrorKind, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := site + "\x1f" + string(kind)
	stats, ok := r.siteStats[key]
	if !ok {
		stats = &siteErrorStats{}
		r.siteStats[key] = stats
	}
	stats.attempts++
	if success {
		stats.successes++
	} else {
		stats.failures++
	}

	s, ok := r.strategies[kind]
	if !ok || !s.Adaptive {
		return
	}

	total := stats.successes + stats.failures
	if total == 0 {
		return
	}
	successRate := float64(stats.successes) / float64(total)

	switch {
	case successRate < 0.3:
		s.MaxRetries = maxInt(1, s.MaxRetries-1)
	case successRate > 0.8:
		s.MaxRetries = minInt(7, s.MaxRetries+1)
	}

	if stats.attempts > 3 {
		s.MaxRetries = maxInt(1, s.MaxRetries-1)
	}

	r.strategies[kind] = s
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
