package main

import (
	"context"

	"github.com/flowforge/autoflow/internal/appconfig"
	"github.com/flowforge/autoflow/internal/driver"
	"github.com/flowforge/autoflow/internal/driver/roddriver"
)

// openBrowser launches (or attaches to) a browser per the process
// Playwright/proxy configuration and returns a fresh page at url.
func openBrowser(ctx context.Context, cfg *appconfig.Config, url string) (driver.Driver, driver.Page, error) {
	d := roddriver.New()
	opts := driver.LaunchOptions{
		Headless:      cfg.Playwright.Headless,
		ViewportWidth: 1280, ViewportHeight: 800,
		ProxyServer:   cfg.Proxy.URL,
		ProxyUsername: cfg.Proxy.Username,
		ProxyPassword: cfg.Proxy.Password,
	}
	if err := d.Launch(ctx, opts); err != nil {
		return nil, nil, err
	}
	page, err := d.NewPage(ctx, url)
	if err != nil {
		_ = d.Close(ctx)
		return nil, nil, err
	}
	return d, page, nil
}
