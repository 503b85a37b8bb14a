// Package pageanalyzer inspects a live page and classifies it into one of
// six states, in fixed precedence order, and scores its relevance against
// an expected destination (spec §4.8).
package pageanalyzer

import (
	"context"
	"strings"
	"time"

	"github.com/flowforge/autoflow/internal/driver"
	"github.com/flowforge/autoflow/internal/model"
	"github.com/flowforge/autoflow/internal/obslog"
	"go.uber.org/zap"
)

// State is the closed set of page classifications.
type State string

const (
	StateCloudflareChallenge State = "cloudflare_challenge"
	StateCaptchaRequired     State = "captcha_required"
	StateErrorPage           State = "error_page"
	StateLoading             State = "loading"
	StateWrongPage           State = "wrong_page"
	StateReady               State = "ready"
)

// ErrorKind is the closed set of error-page sub-classifications.
type ErrorKind string

const (
	ErrorNotFound     ErrorKind = "404"
	ErrorServer       ErrorKind = "500"
	ErrorForbidden    ErrorKind = "403"
	ErrorTimeout      ErrorKind = "timeout"
	ErrorOther        ErrorKind = "other"
	ErrorKindNone     ErrorKind = ""
)

var cloudflareLexicon = []string{"checking your browser", "cloudflare", "cf-browser-verification", "ddos protection by cloudflare"}
var cloudflareSelectors = []string{"#cf-wrapper", ".cf-browser-verification", "#challenge-form", "[data-ray]"}

var captchaLexicon = []string{"captcha", "i'm not a robot", "verify you are human"}
var captchaSelectors = []string{"iframe[src*='recaptcha']", "iframe[src*='hcaptcha']", ".g-recaptcha", "#h-captcha"}

var spinnerSelectors = []string{".spinner", ".loading", "[aria-busy='true']", ".loader"}

var errorLexicon = map[ErrorKind][]string{
	ErrorNotFound:  {"404", "not found", "page not found"},
	ErrorServer:    {"500", "internal server error", "server error"},
	ErrorForbidden: {"403", "forbidden", "access denied"},
	ErrorTimeout:   {"timed out", "timeout", "gateway timeout", "504"},
}

// CloudflareSignal describes the Cloudflare detection outcome.
type CloudflareSignal struct {
	Detected bool
}

// CaptchaSignal describes the captcha detection outcome.
type CaptchaSignal struct {
	Detected bool
}

// ErrorSignal describes the error-page detection outcome.
type ErrorSignal struct {
	Detected bool
	Kind     ErrorKind
}

// LoadingSignal describes the loading detection outcome.
type LoadingSignal struct {
	Detected bool
}

// Relevance scores a page against the caller's expectations.
type Relevance struct {
	IsRelevant bool
	Score      float64
}

// Expectation is what the caller expects the current page to look like.
type Expectation struct {
	URL      string
	Elements []string
	Text     []string
}

// Analysis is the full PageAnalyzer result.
type Analysis struct {
	URL           string
	Title         string
	State         State
	Cloudflare    CloudflareSignal
	Captcha       CaptchaSignal
	ErrorPage     ErrorSignal
	Loading       LoadingSignal
	PageRelevance Relevance
	Timestamp     time.Time
}

// Analyzer inspects a driver.Page.
type Analyzer struct {
	now func() time.Time
}

// New creates an Analyzer using wall-clock time.
func New() *Analyzer {
	return &Analyzer{now: time.Now}
}

// WithClock overrides the time source, for deterministic tests.
func (a *Analyzer) WithClock(now func() time.Time) *Analyzer {
	a.now = now
	return a
}

// Analyze samples page state, body text, and selector presence and derives
// the classification in precedence order.
func (a *Analyzer) Analyze(ctx context.Context, page driver.Page, expect Expectation) Analysis {
	url := page.URL()
	title, _ := page.Title(ctx)
	body := bodyText(ctx, page)
	lower := strings.ToLower(body)

	cf := detectCloudflare(ctx, page, lower)
	captcha := detectCaptcha(ctx, page, lower)
	errSig := detectError(lower)
	loading := detectLoading(ctx, page)
	rel := a.scoreRelevance(ctx, page, url, expect)

	state := deriveState(cf, captcha, errSig, loading, rel)

	an := Analysis{
		URL:           url,
		Title:         title,
		State:         state,
		Cloudflare:    cf,
		Captcha:       captcha,
		ErrorPage:     errSig,
		Loading:       loading,
		PageRelevance: rel,
		Timestamp:     a.now(),
	}

	obslog.Get(obslog.CategoryPageAnalyzer).Debug("page analyzed",
		zap.String("state", string(state)), zap.String("url", url), zap.Float64("relevance", rel.Score))
	return an
}

func deriveState(cf CloudflareSignal, captcha CaptchaSignal, errSig ErrorSignal, loading LoadingSignal, rel Relevance) State {
	switch {
	case cf.Detected:
		return StateCloudflareChallenge
	case captcha.Detected:
		return StateCaptchaRequired
	case errSig.Detected:
		return StateErrorPage
	case loading.Detected:
		return StateLoading
	case !rel.IsRelevant:
		return StateWrongPage
	default:
		return StateReady
	}
}

func bodyText(ctx context.Context, page driver.Page) string {
	v, err := page.Evaluate(ctx, "() => document.body ? document.body.innerText : ''")
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func detectCloudflare(ctx context.Context, page driver.Page, lowerBody string) CloudflareSignal {
	if containsAny(lowerBody, cloudflareLexicon) {
		return CloudflareSignal{Detected: true}
	}
	for _, sel := range cloudflareSelectors {
		if elementExists(ctx, page, sel) {
			return CloudflareSignal{Detected: true}
		}
	}
	return CloudflareSignal{}
}

func detectCaptcha(ctx context.Context, page driver.Page, lowerBody string) CaptchaSignal {
	if containsAny(lowerBody, captchaLexicon) {
		return CaptchaSignal{Detected: true}
	}
	for _, sel := range captchaSelectors {
		if elementExists(ctx, page, sel) {
			return CaptchaSignal{Detected: true}
		}
	}
	return CaptchaSignal{}
}

func detectError(lowerBody string) ErrorSignal {
	for _, kind := range []ErrorKind{ErrorNotFound, ErrorServer, ErrorForbidden, ErrorTimeout} {
		if containsAny(lowerBody, errorLexicon[kind]) {
			return ErrorSignal{Detected: true, Kind: kind}
		}
	}
	return ErrorSignal{}
}

func detectLoading(ctx context.Context, page driver.Page) LoadingSignal {
	for _, sel := range spinnerSelectors {
		if elementExists(ctx, page, sel) {
			return LoadingSignal{Detected: true}
		}
	}
	v, err := page.Evaluate(ctx, "() => document.readyState")
	if err == nil {
		if s, ok := v.(string); ok && s != "complete" {
			return LoadingSignal{Detected: true}
		}
	}
	return LoadingSignal{}
}

// scoreRelevance implements the multiplicative relevance rule: hostname
// match is mandatory, path must prefix-match unless the expected path is
// root, and elements/text each contribute a multiplicative factor.
func (a *Analyzer) scoreRelevance(ctx context.Context, page driver.Page, currentURL string, expect Expectation) Relevance {
	if expect.URL == "" {
		return Relevance{IsRelevant: true, Score: 1.0}
	}

	currentHost := model.Host(currentURL)
	expectedHost := model.Host(expect.URL)
	if currentHost == "" || currentHost != expectedHost {
		return Relevance{IsRelevant: false, Score: 0}
	}

	score := 1.0
	if !pathMatches(currentURL, expect.URL) {
		score *= 0.3
	}

	if len(expect.Elements) > 0 {
		found := 0
		for _, sel := range expect.Elements {
			if elementExists(ctx, page, sel) {
				found++
			}
		}
		score *= float64(found) / float64(len(expect.Elements))
	}

	if len(expect.Text) > 0 {
		body := strings.ToLower(bodyText(ctx, page))
		found := 0
		for _, txt := range expect.Text {
			if strings.Contains(body, strings.ToLower(txt)) {
				found++
			}
		}
		score *= float64(found) / float64(len(expect.Text))
	}

	return Relevance{IsRelevant: score >= 0.5, Score: score}
}

func pathMatches(currentURL, expectedURL string) bool {
	currentPath := urlPath(currentURL)
	expectedPath := urlPath(expectedURL)
	if expectedPath == "" || expectedPath == "/" {
		return true
	}
	return strings.HasPrefix(currentPath, expectedPath)
}

func urlPath(raw string) string {
	idx := strings.Index(raw, "://")
	if idx < 0 {
		return raw
	}
	rest := raw[idx+3:]
	slash := strings.Index(rest, "/")
	if slash < 0 {
		return "/"
	}
	path := rest[slash:]
	if q := strings.IndexAny(path, "?#"); q >= 0 {
		path = path[:q]
	}
	return path
}

func elementExists(ctx context.Context, page driver.Page, selector string) bool {
	n, err := page.Locator(selector).Count(ctx)
	return err == nil && n > 0
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
