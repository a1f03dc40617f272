// Package retry runs start-up operations against flaky remote services with
// exponential back-off.
//
// It is used only outside conversation turns (joining rooms, first contact
// with the homeserver). Turn-level calls never retry.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/bdobrica/Kaikei/common/logx"
)

// Policy controls the back-off schedule.
type Policy struct {
	// Attempts is the total number of calls, including the first.
	// Values below 1 mean a single call.
	Attempts int
	// Delay is the wait before the second call; later waits double up to MaxDelay.
	Delay    time.Duration
	MaxDelay time.Duration
}

// DefaultPolicy suits room joins and similar one-shot requests.
var DefaultPolicy = Policy{
	Attempts: 4,
	Delay:    500 * time.Millisecond,
	MaxDelay: 10 * time.Second,
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Do calls op until it succeeds, returns a Permanent error, the attempts run
// out, or ctx is done. name labels the debug log lines.
func Do(ctx context.Context, name string, p Policy, op func(ctx context.Context) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Delay <= 0 {
		p.Delay = DefaultPolicy.Delay
	}
	if p.MaxDelay < p.Delay {
		p.MaxDelay = p.Delay
	}

	delay := p.Delay
	var err error
	for attempt := 1; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Join(err, ctxErr)
		}

		err = op(ctx)
		if err == nil {
			return nil
		}

		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt >= p.Attempts {
			return err
		}

		logx.Debug().Str("op", name).Int("attempt", attempt).Dur("delay", delay).Err(err).Msg("retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}

		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}
