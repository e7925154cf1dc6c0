package automation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightLauncher launches Chromium through the Playwright driver. Every
// launch owns its own driver and browser process.
type PlaywrightLauncher struct{}

// NewPlaywrightLauncher returns the production Launcher.
func NewPlaywrightLauncher() *PlaywrightLauncher {
	return &PlaywrightLauncher{}
}

// InstallBrowsers downloads the Playwright driver and Chromium.
func InstallBrowsers() error {
	return playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}})
}

// Launch starts a driver and a Chromium instance owned by the returned Browser.
func (l *PlaywrightLauncher) Launch(opts LaunchOptions) (Browser, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		SlowMo:   playwright.Float(float64(opts.SlowMo.Milliseconds())),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	return &pwBrowser{pw: pw, browser: browser}, nil
}

type pwBrowser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

func (b *pwBrowser) NewContext(storageState []byte) (BrowserContext, error) {
	opts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: 1280, Height: 720},
	}
	if len(storageState) > 0 {
		var state playwright.OptionalStorageState
		if err := json.Unmarshal(storageState, &state); err != nil {
			return nil, fmt.Errorf("decode storage state: %w", err)
		}
		opts.StorageState = &state
	}

	ctx, err := b.browser.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("create browser context: %w", err)
	}
	return &pwContext{ctx: ctx}, nil
}

func (b *pwBrowser) Close() error {
	err := b.browser.Close()
	if stopErr := b.pw.Stop(); err == nil {
		err = stopErr
	}
	return err
}

type pwContext struct {
	ctx playwright.BrowserContext
}

func (c *pwContext) NewPage() (Page, error) {
	page, err := c.ctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	return &pwPage{page: page, ctx: c.ctx}, nil
}

type pwPage struct {
	page playwright.Page
	ctx  playwright.BrowserContext
}

func (p *pwPage) Goto(url string, timeout time.Duration) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{Timeout: millis(timeout)})
	return err
}

func (p *pwPage) URL() string {
	return p.page.URL()
}

func (p *pwPage) IsVisible(selector string) bool {
	visible, err := p.page.Locator(selector).First().IsVisible()
	return err == nil && visible
}

func (p *pwPage) Click(selector string, timeout time.Duration) error {
	return p.page.Locator(selector).First().Click(playwright.LocatorClickOptions{Timeout: millis(timeout)})
}

func (p *pwPage) Fill(selector, value string, timeout time.Duration) error {
	return p.page.Locator(selector).First().Fill(value, playwright.LocatorFillOptions{Timeout: millis(timeout)})
}

func (p *pwPage) Screenshot(path string) error {
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	return err
}

func (p *pwPage) StorageState() ([]byte, error) {
	state, err := p.ctx.StorageState()
	if err != nil {
		return nil, err
	}
	return json.Marshal(state)
}

func millis(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}
