package automation

import (
	"errors"
	"time"
)

type fakePage struct {
	hidden      map[string]bool
	fillCount   map[string]int
	onClick     map[string]func()
	failFill    func(sel string, n int) error
	url         string
	redirect    string
	actions     []string
	screenshots []string
}

func newFakePage() *fakePage {
	return &fakePage{
		hidden:    map[string]bool{},
		fillCount: map[string]int{},
		onClick:   map[string]func(){},
	}
}

func (p *fakePage) Goto(url string, _ time.Duration) error {
	p.actions = append(p.actions, "goto "+url)
	if p.redirect != "" {
		p.url = p.redirect
		return nil
	}
	p.url = url
	return nil
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) IsVisible(sel string) bool { return !p.hidden[sel] }

func (p *fakePage) Click(sel string, _ time.Duration) error {
	p.actions = append(p.actions, "click "+sel)
	if fn := p.onClick[sel]; fn != nil {
		fn()
	}
	return nil
}

func (p *fakePage) Fill(sel, value string, _ time.Duration) error {
	p.fillCount[sel]++
	if p.failFill != nil {
		if err := p.failFill(sel, p.fillCount[sel]); err != nil {
			return err
		}
	}
	p.actions = append(p.actions, "fill "+sel+"="+value)
	return nil
}

func (p *fakePage) Screenshot(path string) error {
	p.screenshots = append(p.screenshots, path)
	return nil
}

func (p *fakePage) StorageState() ([]byte, error) {
	return []byte(`{"cookies":[],"origins":[]}`), nil
}

func (p *fakePage) did(action string) bool {
	for _, a := range p.actions {
		if a == action {
			return true
		}
	}
	return false
}

type fakeContext struct {
	page Page
}

func (c *fakeContext) NewPage() (Page, error) { return c.page, nil }

type fakeBrowser struct {
	page       Page
	closeErr   error
	state      []byte
	closeCalls int
}

func (b *fakeBrowser) NewContext(state []byte) (BrowserContext, error) {
	b.state = state
	return &fakeContext{page: b.page}, nil
}

func (b *fakeBrowser) Close() error {
	b.closeCalls++
	return b.closeErr
}

type fakeLauncher struct {
	browser *fakeBrowser
	err     error
	opts    LaunchOptions
}

func (l *fakeLauncher) Launch(opts LaunchOptions) (Browser, error) {
	l.opts = opts
	if l.err != nil {
		return nil, l.err
	}
	return l.browser, nil
}

// reverseCipher is a reversible stand-in for the AES cipher.
type reverseCipher struct{}

func (reverseCipher) Encrypt(s string) (string, error) { return "enc:" + reverse(s), nil }

func (reverseCipher) Decrypt(s string) (string, error) {
	if len(s) < 4 || s[:4] != "enc:" {
		return "", errors.New("not encrypted")
	}
	return reverse(s[4:]), nil
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
