package intent_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bdobrica/Kaikei/internal/kaikei/intent"
)

func TestMemoryLimiter_AllowsUpToLimit(t *testing.T) {
	ctx := context.Background()
	rl := intent.NewMemoryLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow(ctx, "@alice:example.com") {
			t.Fatalf("Allow returned false on call %d/3", i+1)
		}
	}
	if rl.Allow(ctx, "@alice:example.com") {
		t.Error("Allow returned true after limit was exhausted")
	}
	if !rl.Allow(ctx, "@bob:example.com") {
		t.Error("bob should not share alice's quota")
	}
}

func TestMemoryLimiter_WindowExpiry(t *testing.T) {
	ctx := context.Background()
	window := 50 * time.Millisecond
	rl := intent.NewMemoryLimiter(1, window)

	if !rl.Allow(ctx, "@carol:example.com") {
		t.Fatal("first call should be allowed")
	}
	if rl.Allow(ctx, "@carol:example.com") {
		t.Fatal("second call within window should be rejected")
	}

	time.Sleep(window + 20*time.Millisecond)

	if !rl.Allow(ctx, "@carol:example.com") {
		t.Error("call after window expiry should be allowed again")
	}
}

func TestMemoryLimiter_Defaults(t *testing.T) {
	ctx := context.Background()
	rl := intent.NewMemoryLimiter(0, 0)
	for i := 0; i < intent.DefaultRateLimit; i++ {
		if !rl.Allow(ctx, "@dave:example.com") {
			t.Fatalf("Allow returned false on call %d", i+1)
		}
	}
	if rl.Allow(ctx, "@dave:example.com") {
		t.Error("call beyond the default limit should be rejected")
	}
}

// TestRedisLimiter needs a live server; set KAIKEI_TEST_REDIS_URL to run it.
func TestRedisLimiter(t *testing.T) {
	url := os.Getenv("KAIKEI_TEST_REDIS_URL")
	if url == "" {
		t.Skip("KAIKEI_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	rl, err := intent.NewRedisLimiter(ctx, url, 2, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLimiter: %v", err)
	}
	defer rl.Close()

	key := fmt.Sprintf("test-%d", time.Now().UnixNano())
	if !rl.Allow(ctx, key) || !rl.Allow(ctx, key) {
		t.Fatal("first two calls should be allowed")
	}
	if rl.Allow(ctx, key) {
		t.Error("third call should be rejected")
	}
}

func TestRedisLimiter_FailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	rl := intent.NewRedisLimiterWithClient(client, 1, time.Minute)
	for i := 0; i < 3; i++ {
		if !rl.Allow(context.Background(), "@erin:example.com") {
			t.Fatalf("call %d rejected while redis is unreachable", i+1)
		}
	}
}
