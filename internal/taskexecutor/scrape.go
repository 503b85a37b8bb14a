package taskexecutor

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/flowforge/autoflow/internal/driver"
	"github.com/flowforge/autoflow/internal/model"
)

// scrapeOne extracts a scrape step's result into result, keyed by the
// step's dataKey (simple scrape) or iterating containers (structured
// scrape), per spec §4.10 step 6.
func scrapeOne(ctx context.Context, page driver.Page, step *model.Step, result map[string]interface{}) {
	if step == nil {
		return
	}
	if len(step.Structure) > 0 {
		result[dataKeyOrDefault(step.DataKey, "items")] = scrapeStructured(ctx, page, step)
		return
	}
	result[dataKeyOrDefault(step.DataKey, "value")] = scrapeSimple(ctx, page, step.Selector, step.Attribute, step.Multiple)
}

func dataKeyOrDefault(key, fallback string) string {
	if key == "" {
		return fallback
	}
	return key
}

// scrapeSimple extracts one attribute from one or more elements matching
// selector. multiple=true yields a []string even for a single match.
func scrapeSimple(ctx context.Context, page driver.Page, selector, attribute string, multiple bool) interface{} {
	loc := page.Locator(selector)
	count, err := loc.Count(ctx)
	if err != nil || count == 0 {
		if multiple {
			return []string{}
		}
		return ""
	}

	extractAt := func(n int) string {
		el, err := loc.Nth(ctx, n)
		if err != nil {
			return ""
		}
		return extractAttribute(ctx, el, attribute)
	}

	if !multiple {
		return extractAt(0)
	}

	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, extractAt(i))
	}
	return out
}

// scrapeStructured iterates containerSelector matches and extracts a
// {key -> value} object per container from the field list.
func scrapeStructured(ctx context.Context, page driver.Page, step *model.Step) []map[string]interface{} {
	containerLoc := page.Locator(step.ContainerSelector)
	count, err := containerLoc.Count(ctx)
	if err != nil || count == 0 {
		return nil
	}

	out := make([]map[string]interface{}, 0, count)
	for i := 0; i < count; i++ {
		container, err := containerLoc.Nth(ctx, i)
		if err != nil {
			continue
		}
		row := map[string]interface{}{}
		for _, field := range step.Structure {
			val, ok := extractField(ctx, page, container, field)
			if field.Required && !ok {
				continue
			}
			row[field.Key] = val
		}
		out = append(out, row)
	}
	return out
}

// extractField resolves one structured-scrape field. When the field's
// selector is relative to the container we don't have a scoped-locator
// primitive on driver.ElementHandle, so we fall back to reading the
// container's own text/attribute when the field selector is empty, and to
// a page-level locator otherwise (best-effort, matching how recorders emit
// flat container markup for list scrapes).
func extractField(ctx context.Context, page driver.Page, container driver.ElementHandle, field model.ScrapeField) (string, bool) {
	if field.Selector == "" {
		return applyTransform(extractAttribute(ctx, container, field.Attribute), field.Transform), true
	}
	loc := page.Locator(field.Selector)
	el, err := loc.First(ctx)
	if err != nil || el == nil {
		return "", false
	}
	return applyTransform(extractAttribute(ctx, el, field.Attribute), field.Transform), true
}

func extractAttribute(ctx context.Context, el driver.ElementHandle, attribute string) string {
	switch attribute {
	case "innerHTML":
		v, _ := el.InnerHTML(ctx)
		return v
	case "value":
		v, _ := el.InputValue(ctx)
		return v
	case "", "text", "*":
		v, _ := el.TextContent(ctx)
		return v
	default:
		v, _, _ := el.GetAttribute(ctx, attribute)
		return v
	}
}

var numberPattern = regexp.MustCompile(`-?\d+(\.\d+)?`)

// applyTransform applies one of the recognised field transforms (spec
// §4.10 step 6). Unknown transforms pass the value through unchanged.
func applyTransform(v, transform string) string {
	switch transform {
	case "trim":
		return strings.TrimSpace(v)
	case "lowercase":
		return strings.ToLower(v)
	case "uppercase":
		return strings.ToUpper(v)
	case "extractNumber":
		return numberPattern.FindString(v)
	case "extractTime":
		return extractTime(v)
	default:
		return v
	}
}

// extractTime parses a handful of common timestamp layouts and normalises
// to RFC3339; the raw (trimmed) value is returned unparsed on failure.
func extractTime(v string) string {
	v = strings.TrimSpace(v)
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"Jan 2, 2006",
		"January 2, 2006",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format(time.RFC3339)
		}
	}
	return v
}
