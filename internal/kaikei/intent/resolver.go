package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bdobrica/Kaikei/common/logx"
	"github.com/bdobrica/Kaikei/common/trace"
)

const defaultClassifierTimeout = 10 * time.Second

// Classifier is a model-backed intent classifier.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

// Tier is one stage of the resolution pipeline. Resolve must not panic and
// reports failures through Resolution.SoftFailures.
type Tier interface {
	Name() string
	Resolve(ctx context.Context, text string) Resolution
}

// ClassifierTier adapts a Classifier into a Tier with a per-call deadline
// and an optional per-actor rate limit.
type ClassifierTier struct {
	Classifier Classifier
	Limiter    Limiter
	Timeout    time.Duration
}

// Name implements Tier.
func (c *ClassifierTier) Name() string { return "classifier" }

// Resolve implements Tier.
func (c *ClassifierTier) Resolve(ctx context.Context, text string) Resolution {
	if c.Classifier == nil {
		return unresolved()
	}
	if c.Limiter != nil {
		if actor := trace.ActorFromContext(ctx); !c.Limiter.Allow(ctx, actor) {
			return unresolved(ErrRateLimit)
		}
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultClassifierTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := c.Classifier.Classify(cctx, text)
	if err != nil {
		if errors.Is(cctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrUnavailable) {
			err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return unresolved(err)
	}
	if res.Intent == Unknown {
		return unresolved()
	}
	return Resolution{Outcome: Resolved, Result: res, Tier: c.Name()}
}

// Resolver runs tiers in order and returns the first Resolved outcome.
type Resolver struct {
	tiers []Tier
}

// NewResolver returns a pipeline over tiers. Nil tiers are skipped.
func NewResolver(tiers ...Tier) *Resolver {
	r := &Resolver{}
	for _, t := range tiers {
		if t != nil {
			r.tiers = append(r.tiers, t)
		}
	}
	return r
}

// Resolve returns the final classification of text. It never fails.
func (r *Resolver) Resolve(ctx context.Context, text string) Result {
	return r.ResolveDetailed(ctx, text).Result
}

// ResolveDetailed is Resolve with the producing tier and every soft
// failure on the way.
func (r *Resolver) ResolveDetailed(ctx context.Context, text string) Resolution {
	if strings.TrimSpace(text) == "" {
		return unresolved()
	}

	var soft []error
	for _, t := range r.tiers {
		res := t.Resolve(ctx, text)
		for _, err := range res.SoftFailures {
			logx.Debug().
				Err(err).
				Str("tier", t.Name()).
				Str("trace_id", trace.FromContext(ctx)).
				Msg("intent tier failed, falling through")
		}
		soft = append(soft, res.SoftFailures...)
		if res.Outcome == Resolved {
			res.SoftFailures = soft
			return res
		}
	}
	return unresolved(soft...)
}
