package automation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

// BatchReport counts the cards of one batch.
type BatchReport struct {
	Attempted int `json:"attempted"`
	Created   int `json:"created"`
	Failed    int `json:"failed"`
}

// CardScript drives the issuer dashboard to create a batch of virtual
// cards. Login problems abort the run. A problem with one card is logged,
// the page is returned to the dashboard and the batch continues.
type CardScript struct {
	Sessions     *SessionStore
	Selectors    SelectorTable
	Now          func() time.Time
	Intn         func(int) int
	DashboardURL string
	NamesDir     string
	ArtifactsDir string
	Timeouts     Timeouts
	Pacing       Pacing
}

// Run executes the script against page. The returned error is non-nil only
// when the batch could not run at all or ctx was cancelled.
func (s *CardScript) Run(ctx context.Context, page Page, out *OutputCollector, in CardInput) (BatchReport, error) {
	selectors := s.Selectors
	if selectors == nil {
		selectors = DefaultSelectors()
	}
	poll := s.Pacing.Poll
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	first, last := LoadNameLists(s.NamesDir)

	r := &cardRun{
		script: s,
		page:   page,
		out:    out,
		in:     in,
		names:  NewNameGenerator(first, last, in.NicknamePrefix, s.Intn),
		ui: &locator{
			page:      page,
			selectors: selectors,
			vars:      map[string]string{"email": in.Email},
			interval:  poll,
		},
	}

	state := StateNeedSessionCheck
	for !state.Terminal() {
		outcome := r.step(ctx, state)
		if err := ctx.Err(); err != nil {
			return r.report, err
		}
		next := Transition(state, outcome)
		if next == StateFailed {
			if outcome.Err == nil {
				outcome.Err = fmt.Errorf("script stopped in state %s", state)
			}
			return r.report, outcome.Err
		}
		r.lastErr = outcome.Err
		state = next
	}

	out.Log("=== Completed card creation process ===")
	out.Logf("Attempted to create %d cards", in.NumberOfCards)
	out.Logf("Created: %d, Failed: %d", r.report.Created, r.report.Failed)
	return r.report, nil
}

type cardRun struct {
	script  *CardScript
	page    Page
	out     *OutputCollector
	ui      *locator
	names   *NameGenerator
	lastErr error
	in      CardInput
	report  BatchReport
	card    int
}

func (r *cardRun) now() time.Time {
	if r.script.Now != nil {
		return r.script.Now()
	}
	return time.Now()
}

func (r *cardRun) more() bool {
	return r.card < r.in.NumberOfCards
}

// act runs a UI action followed by a settle delay.
func (r *cardRun) act(ctx context.Context, settle time.Duration, fn func() error) error {
	if err := fn(); err != nil {
		return err
	}
	return sleep(ctx, settle)
}

func (r *cardRun) step(ctx context.Context, state State) Outcome {
	s := r.script
	timeout := s.Timeouts.For(state)
	pace := s.Pacing

	switch state {
	case StateNeedSessionCheck:
		if s.Sessions != nil && s.Sessions.IsFresh(r.in.Email) {
			r.out.Log("Found saved login session, attempting to restore...")
		}
		r.out.Logf("Navigating to %s...", s.DashboardURL)
		err := r.act(ctx, pace.AfterNavigate, func() error {
			return r.page.Goto(s.DashboardURL, timeout)
		})
		if err != nil {
			return Outcome{Err: fmt.Errorf("navigate to dashboard: %w", err)}
		}
		authed := !isLoginURL(r.page.URL()) && r.ui.visible(ctx, TargetCreateCard, s.Timeouts.Presence)
		if authed {
			r.out.Log("Already logged in from saved session!")
		} else {
			r.out.Log("Login required, proceeding with authentication...")
		}
		return Outcome{Authenticated: authed}

	case StateNeedLogin:
		r.out.Log("Waiting for login form...")
		if _, err := r.ui.find(ctx, TargetEmailInput, timeout); err != nil {
			return Outcome{Err: fmt.Errorf("login form did not appear: %w", err)}
		}
		r.out.Log("Entering email...")
		if err := r.ui.fill(ctx, TargetEmailInput, r.in.Email, timeout); err != nil {
			return Outcome{Err: err}
		}
		r.out.Log("Entering password...")
		if err := r.ui.fill(ctx, TargetPasswordInput, r.in.Password, timeout); err != nil {
			return Outcome{Err: err}
		}
		r.out.Log("Clicking login button...")
		return Outcome{Err: r.ui.click(ctx, TargetLoginSubmit, timeout)}

	case StateAwaitingOTP:
		if r.in.TOTPSecret != "" && r.ui.visible(ctx, TargetOTPInput, s.Timeouts.Presence) {
			code, err := totp.GenerateCode(r.in.TOTPSecret, r.now())
			if err != nil {
				return Outcome{Err: fmt.Errorf("generate one-time passcode: %w", err)}
			}
			r.out.Log("Entering one-time passcode...")
			if err := r.ui.fill(ctx, TargetOTPInput, code, s.Timeouts.Step); err != nil {
				return Outcome{Err: err}
			}
			if err := r.ui.click(ctx, TargetOTPSubmit, s.Timeouts.Step); err != nil {
				return Outcome{Err: err}
			}
		}
		r.out.Log("Waiting for dashboard to load (complete OTP if required)...")
		r.out.Logf("This may take up to %s while waiting for OTP completion...", timeout)
		if _, err := r.ui.find(ctx, TargetCreateCard, timeout); err != nil {
			return Outcome{Err: fmt.Errorf("dashboard did not load after login: %w", err)}
		}
		r.out.Log("Login successful!")
		if s.Sessions != nil {
			r.out.Log("Saving login session for future use...")
			if err := s.Sessions.Save(r.page, r.in.Email); err != nil {
				r.out.Errorf("Failed to save login session: %v", err)
			} else {
				r.out.Log("Login session saved!")
			}
		}
		return Outcome{}

	case StateDashboardReady:
		r.out.Log("Dashboard loaded successfully!")
		return Outcome{MoreCards: r.more()}

	case StateOpenCreateForm:
		r.card++
		r.report.Attempted++
		r.out.Logf("--- Creating card %d of %d ---", r.card, r.in.NumberOfCards)
		r.out.Log(`Clicking "Create Card" button...`)
		return Outcome{Err: r.act(ctx, pace.AfterClick, func() error {
			return r.ui.click(ctx, TargetCreateCard, timeout)
		})}

	case StateSelectCardType:
		r.out.Log(`Selecting "Company card"...`)
		return Outcome{Err: r.act(ctx, pace.AfterClick, func() error {
			return r.ui.click(ctx, TargetCompanyCard, timeout)
		})}

	case StateSelectHolder:
		r.out.Log("Opening user search dropdown...")
		err := r.act(ctx, pace.AfterSelect, func() error {
			return r.ui.click(ctx, TargetHolderSearch, timeout)
		})
		if err != nil {
			return Outcome{Err: err}
		}
		r.out.Logf("Selecting user with email: %s...", r.in.Email)
		return Outcome{Err: r.act(ctx, pace.AfterSelect, func() error {
			return r.ui.click(ctx, TargetHolderOption, timeout)
		})}

	case StateSelectPurpose:
		r.out.Log("Opening purpose dropdown...")
		err := r.act(ctx, pace.AfterSelect, func() error {
			return r.ui.click(ctx, TargetPurposeSelect, timeout)
		})
		if err != nil {
			return Outcome{Err: err}
		}
		r.out.Log(`Selecting "Online Purchasing"...`)
		return Outcome{Err: r.act(ctx, pace.AfterSelect, func() error {
			return r.ui.click(ctx, TargetPurposeOption, timeout)
		})}

	case StateEnterNickname:
		nickname := r.names.Next(r.card - 1)
		r.out.Logf("Generated nickname: %s", nickname)
		return Outcome{Err: r.act(ctx, pace.AfterSelect, func() error {
			return r.ui.fill(ctx, TargetNickname, nickname, timeout)
		})}

	case StateEnterAmount:
		amount := strconv.FormatFloat(r.in.CardAmount, 'f', -1, 64)
		r.out.Logf("Entering amount: %s...", amount)
		err := r.act(ctx, pace.AfterSelect, func() error {
			return r.ui.fill(ctx, TargetAmount, amount, timeout)
		})
		return Outcome{Err: err, DryRun: r.in.DryRun}

	case StateDryRunPause:
		r.out.Log("DRY RUN MODE: Form filled but not submitted")
		r.out.Log(`Please review the form and click "Create" manually to proceed`)
		r.out.Logf("Waiting up to %s for manual confirmation...", timeout)
		err := r.ui.waitForURL(ctx, func(u string) bool {
			return !strings.Contains(u, "create-card")
		}, timeout)
		if err != nil {
			return Outcome{Err: fmt.Errorf("manual confirmation not received: %w", err)}
		}
		r.out.Log("Page changed - card creation detected")
		return Outcome{}

	case StateSubmit:
		r.out.Log("Submitting card creation...")
		return Outcome{Err: r.act(ctx, pace.AfterSubmit, func() error {
			return r.ui.click(ctx, TargetSubmitCard, timeout)
		})}

	case StateCardCreated:
		r.report.Created++
		r.out.Logf("Card %d created successfully!", r.card)
		if !r.more() {
			return Outcome{}
		}
		r.out.Log("Preparing for next card...")
		if err := sleep(ctx, pace.BeforeNextCard); err != nil {
			return Outcome{Err: err, MoreCards: true}
		}
		_ = r.ui.click(ctx, TargetCloseModal, timeout)
		return Outcome{Err: sleep(ctx, pace.AfterDismiss), MoreCards: true}

	case StateCardFailed:
		r.report.Failed++
		r.out.Errorf("Failed to create card %d: %v", r.card, r.lastErr)
		r.capture()
		r.out.Log("Attempting to continue with remaining cards...")
		err := r.page.Goto(s.DashboardURL, timeout)
		if err == nil {
			_, err = r.ui.find(ctx, TargetCreateCard, timeout)
		}
		if err != nil {
			r.out.Error("Failed to recover to dashboard")
		}
		return Outcome{MoreCards: r.more()}
	}

	return Outcome{Err: fmt.Errorf("no handler for state %s", state)}
}

// capture saves a screenshot of a failed card when an artifacts directory
// is configured.
func (r *cardRun) capture() {
	dir := r.script.ArtifactsDir
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		r.out.Logf("Could not capture screenshot: %v", err)
		return
	}
	name := fmt.Sprintf("card-%d-%s.png", r.card, r.now().UTC().Format("20060102T150405"))
	path := filepath.Join(dir, name)
	if err := r.page.Screenshot(path); err != nil {
		r.out.Logf("Could not capture screenshot: %v", err)
		return
	}
	r.out.Logf("Saved screenshot to %s", path)
}

func isLoginURL(u string) bool {
	return strings.Contains(u, "login") || strings.Contains(u, "signin")
}
