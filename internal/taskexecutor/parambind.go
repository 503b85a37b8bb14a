package taskexecutor

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/flowforge/autoflow/internal/model"
)

var templatePattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

var emailFieldPattern = regexp.MustCompile(`(?i)email|e-mail`)
var passwordFieldPattern = regexp.MustCompile(`(?i)password|pwd|pass`)

// bindFillValue resolves one fill step's value against the parameter map,
// in priority order: explicit per-selector key, email/password heuristic,
// positional input_k, single-parameter fallback (spec §4.10 parameter
// binding). A {{name}} template left unresolved is returned verbatim.
func bindFillValue(value, selectorHint string, position int, params map[string]string) string {
	key, templated := explicitKey(value)
	if templated {
		if v, ok := params[key]; ok {
			return v
		}
	}

	lowerHint := strings.ToLower(selectorHint)
	if passwordFieldPattern.MatchString(lowerHint) {
		if v, ok := params["password"]; ok {
			return v
		}
	}
	if emailFieldPattern.MatchString(lowerHint) {
		if v, ok := params["email"]; ok {
			return v
		}
	}

	positionalKey := "input_" + strconv.Itoa(position)
	if v, ok := params[positionalKey]; ok {
		return v
	}

	if len(params) == 1 && !templated {
		for _, v := range params {
			return v
		}
	}

	return value
}

// explicitKey extracts the {{name}} template key from a recorded value, if
// the whole value is exactly one template reference.
func explicitKey(value string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	m := templatePattern.FindStringSubmatch(trimmed)
	if m == nil || m[0] != trimmed {
		return "", false
	}
	return m[1], true
}

// selectorHintFor builds a searchable string from a canonical step's target
// and source step, used to match the email/password heuristic.
func selectorHintFor(cs model.CanonicalStep) string {
	var b strings.Builder
	if cs.Target != nil {
		b.WriteString(cs.Target.Selector)
		b.WriteString(" ")
		b.WriteString(cs.Target.Value)
	}
	if cs.Source != nil {
		b.WriteString(" ")
		b.WriteString(cs.Source.Selector)
		b.WriteString(" ")
		b.WriteString(cs.Source.Text)
	}
	return b.String()
}
