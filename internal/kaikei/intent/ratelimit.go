package intent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bdobrica/Kaikei/common/logx"
)

const (
	// DefaultRateLimit is the number of classifier calls allowed per user
	// per window when no explicit limit is configured.
	DefaultRateLimit = 20

	defaultRateLimitWindow = time.Minute
)

// Limiter decides whether key may make another classifier call. Allow
// records the call when it returns true.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// MemoryLimiter enforces a per-key sliding window in process memory.
// Memory stays bounded to O(limit) timestamps per active key.
type MemoryLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	now      func() time.Time
	counters map[string][]time.Time
}

// NewMemoryLimiter returns a limiter allowing limit calls per key within
// window. Non-positive arguments select the defaults.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = defaultRateLimitWindow
	}
	return &MemoryLimiter{
		limit:    limit,
		window:   window,
		now:      time.Now,
		counters: make(map[string][]time.Time),
	}
}

// Allow implements Limiter.
func (r *MemoryLimiter) Allow(_ context.Context, key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)

	existing := r.counters[key]
	valid := existing[:0]
	for _, t := range existing {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= r.limit {
		r.counters[key] = valid
		return false
	}
	r.counters[key] = append(valid, now)
	return true
}

// RedisLimiter enforces a fixed window shared by every replica. When Redis
// is unreachable it lets calls through; the pattern tier still answers if
// the classifier then rejects them upstream.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter connects to url and verifies the connection.
func NewRedisLimiter(ctx context.Context, url string, limit int, window time.Duration) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("intent: parse redis url: %w", err)
	}
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.DialTimeout = 5 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("intent: ping redis: %w", err)
	}
	return NewRedisLimiterWithClient(client, limit, window), nil
}

// NewRedisLimiterWithClient wraps an existing client.
func NewRedisLimiterWithClient(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	if window <= 0 {
		window = defaultRateLimitWindow
	}
	return &RedisLimiter{client: client, limit: limit, window: window, now: time.Now}
}

// Allow implements Limiter.
func (r *RedisLimiter) Allow(ctx context.Context, key string) bool {
	slot := r.now().UnixNano() / int64(r.window)
	rkey := fmt.Sprintf("kaikei:ratelimit:%s:%d", key, slot)

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, rkey)
	pipe.Expire(ctx, rkey, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		logx.Warn().Err(err).Str("key", key).Msg("rate limiter: redis unavailable, allowing call")
		return true
	}
	return incr.Val() <= int64(r.limit)
}

// Close releases the Redis connection pool.
func (r *RedisLimiter) Close() error {
	return r.client.Close()
}
