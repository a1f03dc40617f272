// Package intent turns free-form chat text into one of a small set of
// intents with structured entities.
//
// Resolution runs through ordered tiers. The classifier tier asks a
// language model and may fail in any number of ways; the pattern tier is
// local and total. Every failure in a tier is soft: it is recorded on the
// Resolution and the next tier runs.
package intent

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for classifier failures. None of them reach the user.
var (
	// ErrUnavailable means the classifier could not be reached or answered
	// with a transport-level error.
	ErrUnavailable = errors.New("intent: classifier unavailable")
	// ErrMalformedOutput means the classifier answered but the payload did
	// not satisfy the classification contract.
	ErrMalformedOutput = errors.New("intent: malformed classifier output")
	// ErrRateLimit means the caller exhausted their classifier quota.
	ErrRateLimit = errors.New("intent: classifier rate limit exceeded")
)

// Intent is the classified user goal.
type Intent string

const (
	SendFunds    Intent = "send_funds"
	CheckBalance Intent = "check_balance"
	Help         Intent = "help"
	Unknown      Intent = "unknown"
)

// ParseIntent maps the wire name of an intent onto an Intent.
func ParseIntent(s string) (Intent, error) {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case SendFunds:
		return SendFunds, nil
	case CheckBalance:
		return CheckBalance, nil
	case Help:
		return Help, nil
	case Unknown:
		return Unknown, nil
	}
	return "", fmt.Errorf("intent: unknown intent %q", s)
}

// Entities are the structured parameters extracted with an intent. Zero
// values mean "not provided".
type Entities struct {
	Amount    float64 `json:"amount,omitempty"`
	Recipient string  `json:"recipient,omitempty"`
}

// Complete reports whether a transfer can be staged from e.
func (e Entities) Complete() bool {
	return e.Amount > 0 && e.Recipient != ""
}

// Result is the outcome of classifying one message.
type Result struct {
	Intent   Intent   `json:"intent"`
	Entities Entities `json:"entities"`
}

// Outcome tags a Resolution.
type Outcome int

const (
	Unresolved Outcome = iota
	Resolved
)

func (o Outcome) String() string {
	if o == Resolved {
		return "resolved"
	}
	return "unresolved"
}

// Resolution is a tier's (or the whole pipeline's) answer. Result is always
// usable: an Unresolved resolution carries Intent Unknown.
type Resolution struct {
	Outcome Outcome
	Result  Result
	// Tier names the tier that produced a Resolved outcome.
	Tier string
	// SoftFailures collects the errors swallowed on the way.
	SoftFailures []error
}

func unresolved(errs ...error) Resolution {
	return Resolution{Outcome: Unresolved, Result: Result{Intent: Unknown}, SoftFailures: errs}
}
