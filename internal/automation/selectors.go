package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrTimeout is returned when an element or URL does not appear in time.
var ErrTimeout = errors.New("timeout exceeded")

// Target names a UI element of the issuer dashboard.
type Target string

const (
	TargetCreateCard    Target = "create-card-button"
	TargetEmailInput    Target = "email-input"
	TargetPasswordInput Target = "password-input"
	TargetLoginSubmit   Target = "login-submit"
	TargetOTPInput      Target = "otp-input"
	TargetOTPSubmit     Target = "otp-submit"
	TargetCompanyCard   Target = "company-card-option"
	TargetHolderSearch  Target = "holder-search"
	TargetHolderOption  Target = "holder-option"
	TargetPurposeSelect Target = "purpose-select"
	TargetPurposeOption Target = "purpose-option"
	TargetNickname      Target = "nickname-input"
	TargetAmount        Target = "amount-input"
	TargetSubmitCard    Target = "submit-card"
	TargetCloseModal    Target = "close-modal"
)

// SelectorTable maps each target to its selector alternatives in priority
// order. "{email}" in a selector is replaced by the cardholder email.
type SelectorTable map[Target][]string

// DefaultSelectors returns the selectors for the current dashboard markup.
// Visible text comes first, then test ids, then structural fallbacks.
func DefaultSelectors() SelectorTable {
	return SelectorTable{
		TargetCreateCard: {
			`button:has-text("Create Card")`,
			`[data-testid="create-card"]`,
			`a:has-text("Create Card")`,
		},
		TargetEmailInput: {
			`input[type="email"]`,
			`input[name="email"]`,
			`input[placeholder*="email" i]`,
		},
		TargetPasswordInput: {
			`input[type="password"]`,
			`input[name="password"]`,
		},
		TargetLoginSubmit: {
			`button[type="submit"]`,
			`button:has-text("Log in")`,
			`button:has-text("Sign in")`,
		},
		TargetOTPInput: {
			`input[autocomplete="one-time-code"]`,
			`input[name="code"]`,
		},
		TargetOTPSubmit: {
			`button[type="submit"]`,
			`button:has-text("Verify")`,
		},
		TargetCompanyCard: {
			`button:has-text("Company card")`,
			`[data-testid="company-card"]`,
			`div:has-text("Company card"):not(:has(div))`,
		},
		TargetHolderSearch: {
			`//*[text()="Search by name or email"]/ancestor::*[3]`,
		},
		TargetHolderOption: {
			`div[id^="react-select"]:has(p:text("{email}"))`,
		},
		TargetPurposeSelect: {
			`div:has-text("Select a purpose")`,
			`[data-testid="purpose-select"]`,
			`select[name="purpose"]`,
		},
		TargetPurposeOption: {
			`div:has-text("Online Purchasing")`,
			`li:has-text("Online Purchasing")`,
			`option:has-text("Online Purchasing")`,
		},
		TargetNickname: {
			`input[placeholder*="nickname" i]`,
			`input[name="nickname"]`,
			`[data-testid="nickname-input"]`,
		},
		TargetAmount: {
			`input[placeholder*="amount" i]`,
			`input[name="amount"]`,
			`[data-testid="amount-input"]`,
		},
		TargetSubmitCard: {
			`button:has-text("Create Card"):not([disabled])`,
			`button[type="submit"]:has-text("Create")`,
		},
		TargetCloseModal: {
			`button:has-text("Done")`,
			`button:has-text("Close")`,
			`[data-testid="close-modal"]`,
		},
	}
}

// Resolve returns the alternatives for target with placeholders filled in.
func (t SelectorTable) Resolve(target Target, vars map[string]string) ([]string, error) {
	alts := t[target]
	if len(alts) == 0 {
		return nil, fmt.Errorf("no selector registered for %s", target)
	}
	out := make([]string, len(alts))
	for i, sel := range alts {
		for k, v := range vars {
			sel = strings.ReplaceAll(sel, "{"+k+"}", strings.ReplaceAll(v, `"`, `\"`))
		}
		out[i] = sel
	}
	return out, nil
}

// locator locates targets by polling the page until one alternative is visible.
type locator struct {
	page      Page
	selectors SelectorTable
	vars      map[string]string
	interval  time.Duration
}

// find returns the first visible alternative of target. The page is checked
// at least once, then every interval until timeout.
func (p *locator) find(ctx context.Context, target Target, timeout time.Duration) (string, error) {
	alts, err := p.selectors.Resolve(target, p.vars)
	if err != nil {
		return "", err
	}

	deadline := time.Now().Add(timeout)
	for {
		for _, sel := range alts {
			if p.page.IsVisible(sel) {
				return sel, nil
			}
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", fmt.Errorf("%w: waiting for %s (%s)", ErrTimeout, target, timeout)
		}
		if err := sleep(ctx, min(p.interval, remaining)); err != nil {
			return "", err
		}
	}
}

func (p *locator) visible(ctx context.Context, target Target, timeout time.Duration) bool {
	_, err := p.find(ctx, target, timeout)
	return err == nil
}

func (p *locator) click(ctx context.Context, target Target, timeout time.Duration) error {
	sel, err := p.find(ctx, target, timeout)
	if err != nil {
		return err
	}
	if err := p.page.Click(sel, timeout); err != nil {
		return fmt.Errorf("click %s: %w", target, err)
	}
	return nil
}

func (p *locator) fill(ctx context.Context, target Target, value string, timeout time.Duration) error {
	sel, err := p.find(ctx, target, timeout)
	if err != nil {
		return err
	}
	if err := p.page.Fill(sel, value, timeout); err != nil {
		return fmt.Errorf("fill %s: %w", target, err)
	}
	return nil
}

// waitForURL polls the page URL until match accepts it.
func (p *locator) waitForURL(ctx context.Context, match func(string) bool, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if match(p.page.URL()) {
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%w: waiting for navigation (%s)", ErrTimeout, timeout)
		}
		if err := sleep(ctx, min(p.interval, remaining)); err != nil {
			return err
		}
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
