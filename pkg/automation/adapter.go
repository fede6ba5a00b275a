package automation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pagerelay/pagerelay/pkg/catalog"
	"github.com/pagerelay/pagerelay/pkg/logging"
)

// State is the delivery state machine position. Every delivery starts at
// StateInit and terminates at StateSuccess or StateFailed; there are no other
// terminal states and no transitions out of a terminal state.
type State string

const (
	StateInit                State = "init"
	StateWaitingForInterface State = "waiting_for_interface"
	StateReady               State = "ready"
	StateSubmitting          State = "submitting"
	StateSuccess             State = "success"
	StateFailed              State = "failed"
)

// FailureReason classifies why a delivery failed.
type FailureReason string

const (
	// ReasonInterfaceNotFound means no input selector candidate appeared
	// within the polling bound.
	ReasonInterfaceNotFound FailureReason = "interface-not-found"
	// ReasonSubmitFailed means the message was inserted but the send
	// control could not be clicked.
	ReasonSubmitFailed FailureReason = "submit-failed"
	// ReasonNavigationFailed means the chat page never loaded.
	ReasonNavigationFailed FailureReason = "navigation-failed"
)

// Result reports the outcome of one delivery attempt.
type Result struct {
	State      State         `json:"state"`
	PlatformID string        `json:"platformId"`
	Reason     FailureReason `json:"reason,omitempty"`

	// LoginSuspected is an advisory hint set when the page carried
	// sign-in markers during an interface-not-found failure. It never
	// blocks or drives a transition on its own.
	LoginSuspected bool `json:"loginSuspected,omitempty"`

	// Attempts is how many readiness polls ran.
	Attempts int `json:"attempts"`

	// Detail carries the underlying error text on failure.
	Detail string `json:"detail,omitempty"`
}

// Failed reports whether the delivery terminated at StateFailed.
func (r Result) Failed() bool { return r.State == StateFailed }

const (
	defaultMaxAttempts  = 20
	defaultPollInterval = 500 * time.Millisecond
	defaultSettleDelay  = 800 * time.Millisecond
)

// Adapter runs the delivery state machine against one provider's web chat.
// Construct one per delivery or reuse across deliveries on the same tab;
// Deliver is not safe for concurrent use on the same Adapter.
type Adapter struct {
	platformID string
	selectors  *catalog.AutomationSelectors
	driver     PageDriver
	log        *logging.Logger

	// sleep is swapped out in tests.
	sleep func(time.Duration)

	state State
}

// NewAdapter builds an adapter for a platform descriptor. Descriptors without
// an automation block cannot be driven.
func NewAdapter(desc *catalog.PlatformDescriptor, driver PageDriver, log *logging.Logger) (*Adapter, error) {
	if desc.Automation == nil {
		return nil, fmt.Errorf("platform %q has no automation configuration", desc.ID)
	}
	return &Adapter{
		platformID: desc.ID,
		selectors:  desc.Automation,
		driver:     driver,
		log:        log,
		sleep:      time.Sleep,
		state:      StateInit,
	}, nil
}

// State returns the machine's current position.
func (a *Adapter) State() State { return a.state }

func (a *Adapter) maxAttempts() int {
	if a.selectors.MaxAttempts > 0 {
		return a.selectors.MaxAttempts
	}
	return defaultMaxAttempts
}

func (a *Adapter) pollInterval() time.Duration {
	if a.selectors.PollIntervalMs > 0 {
		return time.Duration(a.selectors.PollIntervalMs) * time.Millisecond
	}
	return defaultPollInterval
}

func (a *Adapter) settleDelay() time.Duration {
	if a.selectors.SettleDelayMs > 0 {
		return time.Duration(a.selectors.SettleDelayMs) * time.Millisecond
	}
	return defaultSettleDelay
}

// Deliver runs the full state machine: navigate, wait for the interface,
// insert the message, settle, submit. Either terminal state is reported in
// the Result; the error return is reserved for context cancellation.
func (a *Adapter) Deliver(ctx context.Context, message string) (Result, error) {
	a.state = StateInit
	result := Result{PlatformID: a.platformID}

	if err := a.driver.Navigate(ctx, a.selectors.ChatURL); err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		a.log.Errorf("navigation to %s failed: %v", a.selectors.ChatURL, err)
		return a.fail(&result, ReasonNavigationFailed, err.Error()), nil
	}

	a.state = StateWaitingForInterface
	inputSelector, attempts, err := a.awaitInput(ctx)
	result.Attempts = attempts
	if err != nil {
		return result, err
	}
	if inputSelector == "" {
		a.log.Warnf("%s interface not found after %d attempts", a.platformID, attempts)
		result.LoginSuspected = a.loginSuspected(ctx)
		return a.fail(&result, ReasonInterfaceNotFound, ""), nil
	}

	a.state = StateReady
	if err := a.insert(ctx, inputSelector, message); err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		a.log.Errorf("%s message insertion failed: %v", a.platformID, err)
		return a.fail(&result, ReasonSubmitFailed, err.Error()), nil
	}

	// Give the provider's reactive UI time to register the new value
	// before the send control is enabled.
	a.sleep(a.settleDelay())

	a.state = StateSubmitting
	if err := a.submit(ctx); err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		a.log.Errorf("%s submit failed: %v", a.platformID, err)
		return a.fail(&result, ReasonSubmitFailed, err.Error()), nil
	}

	a.state = StateSuccess
	result.State = StateSuccess
	a.log.Infof("%s delivery succeeded after %d readiness attempts", a.platformID, attempts)
	return result, nil
}

func (a *Adapter) fail(result *Result, reason FailureReason, detail string) Result {
	a.state = StateFailed
	result.State = StateFailed
	result.Reason = reason
	result.Detail = detail
	return *result
}

// awaitInput polls for the first input selector candidate to appear. It
// returns the winning selector, or "" when the attempt bound is exhausted.
func (a *Adapter) awaitInput(ctx context.Context) (string, int, error) {
	var found string
	attempts := 0

	ok, err := Await(ctx, a.maxAttempts(), a.pollInterval(), func(ctx context.Context) (bool, error) {
		attempts++
		for _, sel := range a.selectors.InputSelectors {
			present, err := a.driver.Exists(ctx, sel)
			if err != nil {
				return false, err
			}
			if present {
				found = sel
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", attempts, ctx.Err()
		}
		// Driver errors during polling count as the interface not being
		// ready yet, not a terminal failure.
		a.log.Debugf("%s readiness probe error: %v", a.platformID, err)
		return "", attempts, nil
	}
	if !ok {
		return "", attempts, nil
	}
	return found, attempts, nil
}

// loginSuspected checks the page body for sign-in markers. Best effort: any
// driver error just means no hint.
func (a *Adapter) loginSuspected(ctx context.Context) bool {
	if len(a.selectors.LoginMarkers) == 0 {
		return false
	}
	body, err := a.driver.BodyText(ctx)
	if err != nil {
		return false
	}
	body = strings.ToLower(body)
	for _, marker := range a.selectors.LoginMarkers {
		if strings.Contains(body, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

func (a *Adapter) insert(ctx context.Context, selector, message string) error {
	switch a.selectors.InsertMethod {
	case "type":
		if err := a.driver.Type(ctx, selector, message); err != nil {
			return fmt.Errorf("type failed: %w", err)
		}
	default:
		if err := a.driver.Fill(ctx, selector, message); err != nil {
			return fmt.Errorf("fill failed: %w", err)
		}
	}

	// Some frameworks only see the value once an input event fires.
	if err := a.driver.DispatchInputChanged(ctx, selector); err != nil {
		a.log.Debugf("%s input event dispatch failed: %v", a.platformID, err)
	}
	return nil
}

// submit makes exactly one attempt to click a send control, trying each
// candidate selector in order until one is present.
func (a *Adapter) submit(ctx context.Context) error {
	for _, sel := range a.selectors.SendSelectors {
		present, err := a.driver.Exists(ctx, sel)
		if err != nil || !present {
			continue
		}
		if err := a.driver.Click(ctx, sel); err != nil {
			return fmt.Errorf("click on %q failed: %w", sel, err)
		}
		return nil
	}
	return fmt.Errorf("no send control found")
}
