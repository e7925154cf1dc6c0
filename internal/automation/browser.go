package automation

import "time"

// LaunchOptions configures a browser process.
type LaunchOptions struct {
	Headless bool
	SlowMo   time.Duration
}

// Launcher starts browser processes.
type Launcher interface {
	Launch(opts LaunchOptions) (Browser, error)
}

// Browser is a running browser process. Close releases the process and
// must be called exactly once.
type Browser interface {
	NewContext(storageState []byte) (BrowserContext, error)
	Close() error
}

// BrowserContext is an isolated cookie/storage jar inside a browser.
type BrowserContext interface {
	NewPage() (Page, error)
}

// Page is the set of page capabilities the card script needs. Selectors
// use the Playwright selector syntax (CSS, text=, xpath).
type Page interface {
	Goto(url string, timeout time.Duration) error
	URL() string
	IsVisible(selector string) bool
	Click(selector string, timeout time.Duration) error
	Fill(selector, value string, timeout time.Duration) error
	Screenshot(path string) error
	StorageState() ([]byte, error)
}
