package automation

import (
	"context"
	"fmt"
	"log"
	"time"
)

// ScriptFunc is the automation executed against a ready page.
type ScriptFunc func(ctx context.Context, page Page, out *OutputCollector) error

// RunOptions configures a single browser run.
type RunOptions struct {
	// Collector receives the transcript. A new one is created when nil.
	Collector *OutputCollector
	// AccountID selects the saved session to restore, if fresh.
	AccountID string
	SlowMo    time.Duration
	Headless  bool
}

// Result is the outcome of a browser run.
type Result struct {
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
	Success bool   `json:"success"`
}

// Runner owns the browser lifecycle around a script: launch, optional
// session restore, execution, and a close that happens on every path.
type Runner struct {
	launcher Launcher
	sessions *SessionStore
}

// NewRunner creates a Runner. sessions may be nil to run without session reuse.
func NewRunner(launcher Launcher, sessions *SessionStore) *Runner {
	return &Runner{launcher: launcher, sessions: sessions}
}

// Run executes script in a fresh browser. It never returns an error or
// panics: every failure is reported in the Result and the transcript.
func (r *Runner) Run(ctx context.Context, script ScriptFunc, opts RunOptions) Result {
	out := opts.Collector
	if out == nil {
		out = NewOutputCollector()
	}

	var browser Browser
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v", p)
			}
		}()

		if err := ctx.Err(); err != nil {
			return err
		}

		out.Log("Starting browser...")
		browser, err = r.createBrowser(opts)
		if err != nil {
			return err
		}

		bctx, err := r.createContext(browser, opts.AccountID, out)
		if err != nil {
			return err
		}

		page, err := bctx.NewPage()
		if err != nil {
			return err
		}

		out.Log("Browser started, running automation...")
		return script(ctx, page, out)
	}()

	if err == nil {
		out.Log("Automation completed successfully")
	} else {
		out.Error(err.Error())
	}

	if browser != nil {
		out.Log("Closing browser...")
		if cerr := closeBrowser(browser); cerr != nil {
			out.Errorf("Failed to close browser: %v", cerr)
			log.Printf("[Runner] Failed to close browser: %v", cerr)
		}
	}

	result := Result{Success: err == nil, Output: out.Output()}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

func (r *Runner) createBrowser(opts RunOptions) (Browser, error) {
	browser, err := r.launcher.Launch(LaunchOptions{Headless: opts.Headless, SlowMo: opts.SlowMo})
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	return browser, nil
}

// createContext restores the account's saved session when it is fresh and
// readable. An unreadable session falls back to a clean context.
func (r *Runner) createContext(browser Browser, accountID string, out *OutputCollector) (BrowserContext, error) {
	var state []byte
	if accountID != "" && r.sessions != nil && r.sessions.IsFresh(accountID) {
		loaded, err := r.sessions.Load(accountID)
		if err != nil {
			out.Logf("Saved session could not be read, starting clean: %v", err)
		} else {
			state = loaded
		}
	}
	return browser.NewContext(state)
}

func closeBrowser(b Browser) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during close: %v", p)
		}
	}()
	return b.Close()
}
