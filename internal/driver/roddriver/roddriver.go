// Package roddriver implements driver.Driver on top of go-rod, adapted from
// the browser-session lifecycle management pattern used for the Cortex
// browser-physics engine: connect-or-launch, incognito-per-session
// contexts, and viewport/storage-state handling.
package roddriver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/flowforge/autoflow/internal/driver"
	"github.com/flowforge/autoflow/internal/obslog"
)

// RodDriver owns a connected-or-launched Chrome instance.
type RodDriver struct {
	browser    *rod.Browser
	controlURL string
	opts       driver.LaunchOptions
}

// New creates an unconnected RodDriver.
func New() *RodDriver { return &RodDriver{} }

// Launch connects to an existing Chrome (DebuggerURL) or launches a new one.
func (d *RodDriver) Launch(ctx context.Context, opts driver.LaunchOptions) error {
	d.opts = opts
	controlURL := opts.DebuggerURL

	if controlURL == "" {
		l := launcher.New().Headless(opts.Headless)
		if opts.UserDataDir != "" {
			l = l.UserDataDir(opts.UserDataDir)
		}
		if opts.ProxyServer != "" {
			l = l.Set("proxy-server", opts.ProxyServer)
		}
		url, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	d.browser = browser
	d.controlURL = controlURL
	obslog.Get(obslog.CategoryBrowser).Sugar().Infow("browser connected", "controlURL", controlURL)
	return nil
}

// ControlURL returns the WebSocket debugger URL in use.
func (d *RodDriver) ControlURL() string { return d.controlURL }

// NewPage opens a fresh incognito page and navigates to url (empty url opens
// about:blank).
func (d *RodDriver) NewPage(ctx context.Context, url string) (driver.Page, error) {
	if d.browser == nil {
		return nil, errors.New("driver not launched")
	}

	incognito, err := d.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}

	target := url
	if target == "" {
		target = "about:blank"
	}
	page, err := incognito.Page(proto.TargetCreateTarget{URL: target})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if d.opts.ViewportWidth > 0 && d.opts.ViewportHeight > 0 {
		_ = (proto.EmulationSetDeviceMetricsOverride{
			Width:             d.opts.ViewportWidth,
			Height:            d.opts.ViewportHeight,
			DeviceScaleFactor: 1.0,
			Mobile:            false,
		}).Call(page)
	}

	return &RodPage{page: page}, nil
}

// Close shuts down the browser instance.
func (d *RodDriver) Close(ctx context.Context) error {
	if d.browser == nil {
		return nil
	}
	err := d.browser.Close()
	d.browser = nil
	d.controlURL = ""
	return err
}

// RodPage wraps a *rod.Page to implement driver.Page.
type RodPage struct {
	page *rod.Page
}

func waitUntilJS(w driver.WaitUntil) proto.PageLifecycleEventName {
	switch w {
	case driver.WaitUntilDOMContentLoaded:
		return proto.PageLifecycleEventNameDOMContentLoaded
	case driver.WaitUntilNetworkIdle:
		return proto.PageLifecycleEventNameNetworkIdle
	default:
		return proto.PageLifecycleEventNameLoad
	}
}

func (p *RodPage) Goto(ctx context.Context, url string, timeout time.Duration, waitUntil driver.WaitUntil) error {
	pg := p.page.Context(ctx).Timeout(timeout)
	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := pg.WaitNavigation(waitUntilJS(waitUntil))(); err != nil {
		return fmt.Errorf("wait for %s: %w", waitUntil, err)
	}
	return nil
}

func (p *RodPage) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	el, err := p.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %w", err)
	}
	return el.Input(value)
}

func (p *RodPage) Click(ctx context.Context, selector string, timeout time.Duration) error {
	el, err := p.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %w", err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *RodPage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	_, err := p.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("selector not found: %w", err)
	}
	return nil
}

func (p *RodPage) WaitForLoadState(ctx context.Context, waitUntil driver.WaitUntil, timeout time.Duration) error {
	return p.page.Context(ctx).Timeout(timeout).WaitNavigation(waitUntilJS(waitUntil))()
}

func (p *RodPage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(fullPage, nil)
}

func (p *RodPage) Evaluate(ctx context.Context, js string, args ...interface{}) (interface{}, error) {
	res, err := p.page.Context(ctx).Evaluate(&rod.EvalOptions{JS: js, JSArgs: args, ByValue: true, AwaitPromise: true})
	if err != nil {
		return nil, err
	}
	if res == nil || res.Value.Nil() {
		return nil, nil
	}
	var v interface{}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (p *RodPage) Press(ctx context.Context, selector, key string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %w", err)
	}
	return el.Type(parseKey(key))
}

func (p *RodPage) Hover(ctx context.Context, selector string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %w", err)
	}
	return el.Hover()
}

func (p *RodPage) SelectOption(ctx context.Context, selector, value string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %w", err)
	}
	_, err = el.Select([]string{value}, true, rod.SelectorTypeText)
	return err
}

func (p *RodPage) TypeKeyboard(ctx context.Context, text string) error {
	return p.page.Context(ctx).Keyboard.Type(parseKeys(text)...)
}

func (p *RodPage) PressKeyboard(ctx context.Context, key string) error {
	return p.page.Context(ctx).Keyboard.Type(parseKey(key))
}

func (p *RodPage) IsClosed() bool { return p.page == nil }

func (p *RodPage) URL() string {
	info, err := p.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (p *RodPage) Title(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (p *RodPage) TextContent(ctx context.Context, selector string) (string, error) {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return "", err
	}
	return el.Text()
}

func (p *RodPage) Locator(selector string) driver.Locator {
	return &rodLocator{page: p.page, selector: selector}
}

func (p *RodPage) ScrollBy(ctx context.Context, dx, dy float64) error {
	_, err := p.Evaluate(ctx, fmt.Sprintf("() => window.scrollBy(%f, %f)", dx, dy))
	return err
}

func (p *RodPage) Close(ctx context.Context) error {
	return p.page.Close()
}

func (p *RodPage) ElementContext(ctx context.Context, selector string) (driver.ElementContext, bool) {
	tag := guessTag(selector)
	v, err := p.Evaluate(ctx, fmt.Sprintf(`() => {
		const el = document.querySelector(%q);
		if (!el) return null;
		const attrs = {};
		for (const a of Array.from(el.attributes || [])) attrs[a.name] = a.value;
		return { text: (el.innerText || el.textContent || '').slice(0, 256), tag: el.tagName, attrs };
	}`, selector))
	if err != nil || v == nil {
		return driver.ElementContext{Tag: tag}, false
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return driver.ElementContext{Tag: tag}, false
	}
	ec := driver.ElementContext{Attributes: map[string]string{}}
	if t, ok := m["text"].(string); ok {
		ec.Text = t
	}
	if tg, ok := m["tag"].(string); ok {
		ec.Tag = strings.ToLower(tg)
	}
	if attrs, ok := m["attrs"].(map[string]interface{}); ok {
		for k, val := range attrs {
			if s, ok := val.(string); ok {
				ec.Attributes[k] = s
			}
		}
	}
	return ec, true
}

func (p *RodPage) StorageState(ctx context.Context) ([]byte, error) {
	cookies, err := proto.NetworkGetCookies{}.Call(p.page)
	if err != nil {
		return nil, err
	}
	local, _ := p.Evaluate(ctx, `() => { try { const o={}; for (const k of Object.keys(localStorage)) o[k]=localStorage.getItem(k); return JSON.stringify(o);} catch(e) { return "{}"; } }`)
	session, _ := p.Evaluate(ctx, `() => { try { const o={}; for (const k of Object.keys(sessionStorage)) o[k]=sessionStorage.getItem(k); return JSON.stringify(o);} catch(e) { return "{}"; } }`)

	blob := struct {
		Cookies []*proto.NetworkCookie `json:"cookies"`
		Local   string                 `json:"local"`
		Session string                 `json:"session"`
	}{Cookies: cookies.Cookies}
	if s, ok := local.(string); ok {
		blob.Local = s
	}
	if s, ok := session.(string); ok {
		blob.Session = s
	}
	return json.Marshal(blob)
}

func (p *RodPage) RestoreStorageState(ctx context.Context, data []byte) error {
	var blob struct {
		Cookies []*proto.NetworkCookieParam `json:"cookies"`
		Local   string                      `json:"local"`
		Session string                      `json:"session"`
	}
	if err := json.Unmarshal(data, &blob); err != nil {
		return err
	}
	if len(blob.Cookies) > 0 {
		_ = p.page.SetCookies(blob.Cookies)
	}
	_, _ = p.Evaluate(ctx, `(local, session) => {
		try { const l = JSON.parse(local||"{}"); Object.entries(l).forEach(([k,v])=>localStorage.setItem(k,v)); } catch(e) {}
		try { const s = JSON.parse(session||"{}"); Object.entries(s).forEach(([k,v])=>sessionStorage.setItem(k,v)); } catch(e) {}
	}`, blob.Local, blob.Session)
	return nil
}

// SetViewport overrides the emulated viewport, used for the mobile-viewport
// login switch (spec.md §4.10 step 3).
func (p *RodPage) SetViewport(ctx context.Context, width, height int, mobile bool) error {
	return (proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1.0,
		Mobile:            mobile,
	}).Call(p.page.Context(ctx))
}

type rodLocator struct {
	page     *rod.Page
	selector string
}

func (l *rodLocator) First(ctx context.Context) (driver.ElementHandle, error) {
	el, err := l.page.Context(ctx).Element(l.selector)
	if err != nil {
		return nil, err
	}
	return &rodElement{el: el}, nil
}

func (l *rodLocator) Nth(ctx context.Context, n int) (driver.ElementHandle, error) {
	els, err := l.page.Context(ctx).Elements(l.selector)
	if err != nil {
		return nil, err
	}
	if n < 0 || n >= len(els) {
		return nil, fmt.Errorf("index %d out of range (%d elements)", n, len(els))
	}
	return &rodElement{el: els[n]}, nil
}

func (l *rodLocator) Count(ctx context.Context) (int, error) {
	els, err := l.page.Context(ctx).Elements(l.selector)
	if err != nil {
		return 0, nil
	}
	return len(els), nil
}

type rodElement struct{ el *rod.Element }

func (e *rodElement) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}
func (e *rodElement) Input(ctx context.Context, text string) error {
	return e.el.Context(ctx).Input(text)
}
func (e *rodElement) TextContent(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}
func (e *rodElement) InnerHTML(ctx context.Context) (string, error) {
	return e.el.Context(ctx).HTML()
}
func (e *rodElement) InputValue(ctx context.Context) (string, error) {
	v, err := e.el.Context(ctx).Property("value")
	if err != nil {
		return "", err
	}
	return v.String(), nil
}
func (e *rodElement) GetAttribute(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}
func (e *rodElement) IsVisible(ctx context.Context) (bool, error) {
	return e.el.Context(ctx).Visible()
}
func (e *rodElement) BoundingBox(ctx context.Context) (driver.BoundingBox, error) {
	shape, err := e.el.Context(ctx).Shape()
	if err != nil {
		return driver.BoundingBox{}, err
	}
	box := shape.Box()
	return driver.BoundingBox{X: box.X, Y: box.Y, Width: box.Width, Height: box.Height}, nil
}
func (e *rodElement) Hover(ctx context.Context) error { return e.el.Context(ctx).Hover() }
func (e *rodElement) SelectOption(ctx context.Context, value string) error {
	_, err := e.el.Context(ctx).Select([]string{value}, true, rod.SelectorTypeText)
	return err
}
func (e *rodElement) Press(ctx context.Context, key string) error {
	return e.el.Context(ctx).Type(mapKey(key))
}

func parseKey(key string) input.Key {
	return mapKey(key)
}

func parseKeys(text string) []input.Key {
	keys := make([]input.Key, 0, len(text))
	for _, r := range text {
		keys = append(keys, input.Key(r))
	}
	return keys
}

// mapKey resolves a recorder key name (e.g. "Enter", "Tab", or a literal
// character) to a go-rod input key.
func mapKey(key string) input.Key {
	switch strings.ToLower(key) {
	case "enter", "return":
		return input.Enter
	case "tab":
		return input.Tab
	case "escape", "esc":
		return input.Escape
	case "backspace":
		return input.Backspace
	case "delete":
		return input.Delete
	case "arrowdown":
		return input.ArrowDown
	case "arrowup":
		return input.ArrowUp
	case "arrowleft":
		return input.ArrowLeft
	case "arrowright":
		return input.ArrowRight
	case "space", " ":
		return input.Space
	default:
		if len(key) == 1 {
			return input.Key(rune(key[0]))
		}
		return input.Enter
	}
}

func guessTag(selector string) string {
	s := strings.TrimSpace(selector)
	if s == "" || strings.ContainsAny(s[:1], ".#[:") {
		return ""
	}
	for i, r := range s {
		if strings.ContainsRune(".#[: >", r) {
			return s[:i]
		}
	}
	return s
}
