package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/bdobrica/Kaikei/common/logx"
	"github.com/bdobrica/Kaikei/internal/kaikei/config"
	"github.com/bdobrica/Kaikei/internal/kaikei/intent"
)

// RateWindow is the window of the per-user classifier rate limit.
const RateWindow = time.Minute

// Pipeline is the configured intent resolver and the lexicon it was built
// from.
type Pipeline struct {
	Resolver *intent.Resolver
	Lexicon  *intent.Lexicon
	closer   io.Closer
}

// NewPipeline builds the classifier tier (when configured) in front of the
// pattern tier.
func NewPipeline(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	lex := intent.DefaultLexicon()
	if cfg.LexiconPath != "" {
		var err error
		if lex, err = intent.LoadLexicon(cfg.LexiconPath); err != nil {
			return nil, fmt.Errorf("app: lexicon: %w", err)
		}
	}
	matcher, err := intent.NewMatcher(lex)
	if err != nil {
		return nil, fmt.Errorf("app: compile patterns: %w", err)
	}

	p := &Pipeline{Lexicon: lex}

	classifier, err := newClassifier(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if classifier == nil {
		logx.Info().Msg("classifier disabled; resolving with patterns only")
		p.Resolver = intent.NewResolver(matcher)
		return p, nil
	}

	limiter := p.newLimiter(ctx, cfg)
	tier := &intent.ClassifierTier{Classifier: classifier, Limiter: limiter, Timeout: cfg.ClassifierTimeout}
	p.Resolver = intent.NewResolver(tier, matcher)
	return p, nil
}

func newClassifier(ctx context.Context, cfg *config.Config) (intent.Classifier, error) {
	switch cfg.Classifier {
	case config.ClassifierOpenAI:
		return intent.NewOpenAI(intent.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.ClassifierTimeout,
		}), nil
	case config.ClassifierGemini:
		g, err := intent.NewGemini(ctx, intent.GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			BaseURL: cfg.GeminiBaseURL,
			Model:   cfg.GeminiModel,
		})
		if err != nil {
			return nil, fmt.Errorf("app: gemini classifier: %w", err)
		}
		return g, nil
	case config.ClassifierNone, "":
		return nil, nil
	}
	return nil, fmt.Errorf("app: unknown classifier %q", cfg.Classifier)
}

// newLimiter prefers the shared Redis limiter and falls back to the
// in-process one when Redis is unset or unreachable.
func (p *Pipeline) newLimiter(ctx context.Context, cfg *config.Config) intent.Limiter {
	limit := cfg.ClassifierRateLimit
	if limit <= 0 {
		limit = intent.DefaultRateLimit
	}
	if cfg.RedisURL != "" {
		rl, err := intent.NewRedisLimiter(ctx, cfg.RedisURL, limit, RateWindow)
		if err == nil {
			p.closer = rl
			logx.Info().Int("limit", limit).Msg("classifier rate limit shared through Redis")
			return rl
		}
		logx.Warn().Err(err).Msg("redis unavailable; using in-process rate limit")
	}
	return intent.NewMemoryLimiter(limit, RateWindow)
}

// Close releases the Redis connection, if any.
func (p *Pipeline) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}
