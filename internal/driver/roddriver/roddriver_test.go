package roddriver

import (
	"testing"

	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/flowforge/autoflow/internal/driver"
	"github.com/stretchr/testify/assert"
)

func TestMapKey_NamedKeys(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want input.Key
	}{
		{"enter", "Enter", input.Enter},
		{"lowercase enter", "enter", input.Enter},
		{"return alias", "Return", input.Enter},
		{"tab", "Tab", input.Tab},
		{"escape", "Escape", input.Escape},
		{"esc alias", "esc", input.Escape},
		{"backspace", "Backspace", input.Backspace},
		{"arrow down", "ArrowDown", input.ArrowDown},
		{"single char", "a", input.Key('a')},
		{"unknown falls back to enter", "F13", input.Enter},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, mapKey(tc.in))
		})
	}
}

func TestParseKeys_OneKeyPerRune(t *testing.T) {
	keys := parseKeys("ab")
	assert.Len(t, keys, 2)
	assert.Equal(t, input.Key('a'), keys[0])
	assert.Equal(t, input.Key('b'), keys[1])
}

func TestWaitUntilJS_MapsAllVariants(t *testing.T) {
	assert.Equal(t, proto.PageLifecycleEventNameLoad, waitUntilJS(driver.WaitUntilLoad))
	assert.Equal(t, proto.PageLifecycleEventNameDOMContentLoaded, waitUntilJS(driver.WaitUntilDOMContentLoaded))
	assert.Equal(t, proto.PageLifecycleEventNameNetworkIdle, waitUntilJS(driver.WaitUntilNetworkIdle))
	assert.Equal(t, proto.PageLifecycleEventNameLoad, waitUntilJS(driver.WaitUntil("bogus")))
}

func TestGuessTag(t *testing.T) {
	tests := []struct {
		name     string
		selector string
		want     string
	}{
		{"id selector has no tag", "#email", ""},
		{"class selector has no tag", ".btn-primary", ""},
		{"bare tag", "button", "button"},
		{"tag with class", "button.primary", "button"},
		{"tag with descendant combinator", "form input", "form"},
		{"attribute selector has no tag", "[data-testid=x]", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, guessTag(tc.selector))
		})
	}
}
