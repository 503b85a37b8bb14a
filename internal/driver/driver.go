// Package driver defines the BrowserDriver capability contract (spec §6).
// The core treats the driver as an external collaborator: concrete browser
// automation lives in roddriver, OCR/image-diff and anti-detection specifics
// stay out of scope.
package driver

import (
	"context"
	"time"
)

// LaunchOptions configures how a Driver starts or attaches to a browser.
type LaunchOptions struct {
	DebuggerURL    string
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	UserDataDir    string
	ProxyServer    string
	ProxyUsername  string
	ProxyPassword  string
	StorageState   []byte // opaque session-continuation blob
}

// Driver launches and attaches to a browser instance.
type Driver interface {
	Launch(ctx context.Context, opts LaunchOptions) error
	NewPage(ctx context.Context, url string) (Page, error)
	Close(ctx context.Context) error
}

// BoundingBox is an element's layout rectangle.
type BoundingBox struct {
	X, Y, Width, Height float64
}

// ElementHandle is a single DOM element reference on a live Page.
type ElementHandle interface {
	Click(ctx context.Context) error
	Input(ctx context.Context, text string) error
	TextContent(ctx context.Context) (string, error)
	InnerHTML(ctx context.Context) (string, error)
	InputValue(ctx context.Context) (string, error)
	GetAttribute(ctx context.Context, name string) (string, bool, error)
	IsVisible(ctx context.Context) (bool, error)
	BoundingBox(ctx context.Context) (BoundingBox, error)
	Hover(ctx context.Context) error
	SelectOption(ctx context.Context, value string) error
	Press(ctx context.Context, key string) error
}

// Locator lazily resolves to zero or more elements matching a selector.
type Locator interface {
	First(ctx context.Context) (ElementHandle, error)
	Nth(ctx context.Context, n int) (ElementHandle, error)
	Count(ctx context.Context) (int, error)
}

// WaitUntil is the closed set of navigation completion signals.
type WaitUntil string

const (
	WaitUntilLoad              WaitUntil = "load"
	WaitUntilDOMContentLoaded  WaitUntil = "domcontentloaded"
	WaitUntilNetworkIdle       WaitUntil = "networkidle"
)

// Page is one browser tab/target.
type Page interface {
	Goto(ctx context.Context, url string, timeout time.Duration, waitUntil WaitUntil) error
	Fill(ctx context.Context, selector, value string, timeout time.Duration) error
	Click(ctx context.Context, selector string, timeout time.Duration) error
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	WaitForLoadState(ctx context.Context, waitUntil WaitUntil, timeout time.Duration) error
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	Evaluate(ctx context.Context, js string, args ...interface{}) (interface{}, error)
	Press(ctx context.Context, selector, key string) error
	Hover(ctx context.Context, selector string) error
	SelectOption(ctx context.Context, selector, value string) error
	TypeKeyboard(ctx context.Context, text string) error
	PressKeyboard(ctx context.Context, key string) error
	IsClosed() bool
	URL() string
	Title(ctx context.Context) (string, error)
	TextContent(ctx context.Context, selector string) (string, error)
	Locator(selector string) Locator
	ScrollBy(ctx context.Context, dx, dy float64) error
	Close(ctx context.Context) error

	// ElementContext returns best-effort text/attribute context for the
	// first element matching selector, used by the Executor/Healer when a
	// failing reference must be re-derived (spec.md §4.9 step 4).
	ElementContext(ctx context.Context, selector string) (ElementContext, bool)

	// StorageState exports cookies/localStorage/sessionStorage as an opaque
	// blob for session continuation (spec.md §6).
	StorageState(ctx context.Context) ([]byte, error)
	RestoreStorageState(ctx context.Context, blob []byte) error

	// SetViewport overrides the page's emulated viewport, used by the
	// TaskExecutor to switch to a mobile viewport for login and back
	// (spec.md §4.10 step 3).
	SetViewport(ctx context.Context, width, height int, mobile bool) error
}

// ElementContext is best-effort metadata sampled from a live element,
// consumed by SelectorHealer strategies.
type ElementContext struct {
	Text       string
	Tag        string
	Attributes map[string]string
}
