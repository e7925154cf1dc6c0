package automation

import "time"

// State is a step of the card script.
type State int

const (
	StateNeedSessionCheck State = iota
	StateNeedLogin
	StateAwaitingOTP
	StateDashboardReady
	StateOpenCreateForm
	StateSelectCardType
	StateSelectHolder
	StateSelectPurpose
	StateEnterNickname
	StateEnterAmount
	StateDryRunPause
	StateSubmit
	StateCardCreated
	StateCardFailed
	StateBatchComplete
	StateFailed
)

var stateNames = map[State]string{
	StateNeedSessionCheck: "need_session_check",
	StateNeedLogin:        "need_login",
	StateAwaitingOTP:      "awaiting_otp",
	StateDashboardReady:   "dashboard_ready",
	StateOpenCreateForm:   "open_create_form",
	StateSelectCardType:   "select_card_type",
	StateSelectHolder:     "select_holder",
	StateSelectPurpose:    "select_purpose",
	StateEnterNickname:    "enter_nickname",
	StateEnterAmount:      "enter_amount",
	StateDryRunPause:      "dry_run_pause",
	StateSubmit:           "submit",
	StateCardCreated:      "card_created",
	StateCardFailed:       "card_failed",
	StateBatchComplete:    "batch_complete",
	StateFailed:           "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transitions leave s.
func (s State) Terminal() bool {
	return s == StateBatchComplete || s == StateFailed
}

// IsLogin reports whether s belongs to the authentication phase, where
// errors abort the whole run.
func (s State) IsLogin() bool {
	return s == StateNeedSessionCheck || s == StateNeedLogin || s == StateAwaitingOTP
}

// Outcome carries the facts the transition function needs about the step
// that just ran.
type Outcome struct {
	Err           error
	Authenticated bool
	DryRun        bool
	MoreCards     bool
}

// Transition returns the state following s given the outcome of running s.
// A failed login step fails the run. A failed card step fails only that card.
func Transition(s State, o Outcome) State {
	if s.Terminal() {
		return s
	}
	if o.Err != nil {
		switch {
		case s.IsLogin():
			return StateFailed
		case s == StateDashboardReady, s == StateCardCreated, s == StateCardFailed:
			// bookkeeping states never fail a card
		default:
			return StateCardFailed
		}
	}

	switch s {
	case StateNeedSessionCheck:
		if o.Authenticated {
			return StateDashboardReady
		}
		return StateNeedLogin
	case StateNeedLogin:
		return StateAwaitingOTP
	case StateAwaitingOTP:
		return StateDashboardReady
	case StateDashboardReady, StateCardCreated, StateCardFailed:
		if o.MoreCards {
			return StateOpenCreateForm
		}
		return StateBatchComplete
	case StateOpenCreateForm:
		return StateSelectCardType
	case StateSelectCardType:
		return StateSelectHolder
	case StateSelectHolder:
		return StateSelectPurpose
	case StateSelectPurpose:
		return StateEnterNickname
	case StateEnterNickname:
		return StateEnterAmount
	case StateEnterAmount:
		if o.DryRun {
			return StateDryRunPause
		}
		return StateSubmit
	case StateDryRunPause, StateSubmit:
		return StateCardCreated
	}
	return StateFailed
}

// Timeouts bounds how long each kind of step may wait for the page.
type Timeouts struct {
	Step     time.Duration
	Presence time.Duration
	OTP      time.Duration
	Confirm  time.Duration
	Recovery time.Duration
	Dismiss  time.Duration
}

// DefaultTimeouts returns the production wait limits.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Step:     30 * time.Second,
		Presence: 5 * time.Second,
		OTP:      5 * time.Minute,
		Confirm:  5 * time.Minute,
		Recovery: 30 * time.Second,
		Dismiss:  3 * time.Second,
	}
}

// For returns the wait limit that applies while in state s.
func (t Timeouts) For(s State) time.Duration {
	switch s {
	case StateAwaitingOTP:
		return t.OTP
	case StateDryRunPause:
		return t.Confirm
	case StateCardFailed:
		return t.Recovery
	case StateCardCreated:
		return t.Dismiss
	default:
		return t.Step
	}
}

// Pacing holds the settle delays between UI actions and the poll interval
// used while waiting for elements.
type Pacing struct {
	AfterNavigate  time.Duration
	AfterClick     time.Duration
	AfterSelect    time.Duration
	AfterSubmit    time.Duration
	BeforeNextCard time.Duration
	AfterDismiss   time.Duration
	Poll           time.Duration
}

// DefaultPacing returns delays tuned for the live dashboard.
func DefaultPacing() Pacing {
	return Pacing{
		AfterNavigate:  2 * time.Second,
		AfterClick:     time.Second,
		AfterSelect:    500 * time.Millisecond,
		AfterSubmit:    3 * time.Second,
		BeforeNextCard: 2 * time.Second,
		AfterDismiss:   time.Second,
		Poll:           250 * time.Millisecond,
	}
}
