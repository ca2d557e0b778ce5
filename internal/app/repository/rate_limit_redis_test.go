package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sifan077/shortener/internal/app/model"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("skip: redis not available at %s: %v", addr, err)
	}
	return client
}

func TestRedisRateLimitRepository_Window(t *testing.T) {
	client := newTestRedis(t)
	repo := NewRedisRateLimitRepository(client)
	ctx := context.Background()

	identifier := fmt.Sprintf("test-%d", time.Now().UnixNano())
	endpoint := "/shorten/"
	t.Cleanup(func() { _, _ = repo.Delete(context.Background(), identifier, endpoint) })

	now := time.Now().UTC().Truncate(time.Millisecond)
	if _, err := repo.FindActive(ctx, identifier, endpoint, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before create, got %v", err)
	}

	w := &model.RateLimitWindow{
		Identifier:   identifier,
		Endpoint:     endpoint,
		RequestCount: 1,
		WindowStart:  now,
		WindowEnd:    now.Add(time.Minute),
	}
	if err := repo.Create(ctx, w); err != nil {
		t.Fatalf("Create: %v", err)
	}

	found, err := repo.FindActive(ctx, identifier, endpoint, now.Add(time.Second))
	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}
	if err := repo.Increment(ctx, found); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if found.RequestCount != 2 {
		t.Fatalf("expected count 2, got %d", found.RequestCount)
	}

	if _, err := repo.FindActive(ctx, identifier, endpoint, now.Add(2*time.Minute)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected window to be inactive after window_end, got %v", err)
	}

	deleted, err := repo.Delete(ctx, identifier, endpoint)
	if err != nil || deleted != 1 {
		t.Fatalf("Delete: deleted=%d err=%v", deleted, err)
	}
}

func TestRedisRateLimitRepository_IncrementAfterExpiry(t *testing.T) {
	client := newTestRedis(t)
	repo := NewRedisRateLimitRepository(client)
	ctx := context.Background()

	identifier := fmt.Sprintf("test-expired-%d", time.Now().UnixNano())
	endpoint := "/shorten/"
	key := rateLimitKey(identifier, endpoint)
	t.Cleanup(func() { _, _ = repo.Delete(context.Background(), identifier, endpoint) })

	now := time.Now().UTC().Truncate(time.Millisecond)
	w := &model.RateLimitWindow{
		Identifier:   identifier,
		Endpoint:     endpoint,
		RequestCount: 1,
		WindowStart:  now,
		WindowEnd:    now.Add(200 * time.Millisecond),
	}
	if err := repo.Create(ctx, w); err != nil {
		t.Fatalf("Create: %v", err)
	}
	found, err := repo.FindActive(ctx, identifier, endpoint, now)
	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}

	time.Sleep(400 * time.Millisecond)

	if err := repo.Increment(ctx, found); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for an expired window, got %v", err)
	}
	if n, err := client.Exists(ctx, key).Result(); err != nil || n != 0 {
		t.Fatalf("increment must not recreate the key: exists=%d err=%v", n, err)
	}
}

func TestRedisRateLimitRepository_StrayHashIsNotAWindow(t *testing.T) {
	client := newTestRedis(t)
	repo := NewRedisRateLimitRepository(client)
	ctx := context.Background()

	identifier := fmt.Sprintf("test-stray-%d", time.Now().UnixNano())
	endpoint := "/shorten/"
	key := rateLimitKey(identifier, endpoint)
	t.Cleanup(func() { _, _ = repo.Delete(context.Background(), identifier, endpoint) })

	if err := client.HSet(ctx, key, "count", 7).Err(); err != nil {
		t.Fatalf("HSet: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	if _, err := repo.FindActive(ctx, identifier, endpoint, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a hash without bounds, got %v", err)
	}

	w := &model.RateLimitWindow{
		Identifier:   identifier,
		Endpoint:     endpoint,
		RequestCount: 1,
		WindowStart:  now,
		WindowEnd:    now.Add(time.Minute),
	}
	if err := repo.Create(ctx, w); err != nil {
		t.Fatalf("Create: %v", err)
	}
	found, err := repo.FindActive(ctx, identifier, endpoint, now)
	if err != nil || found.RequestCount != 1 {
		t.Fatalf("expected the stray hash to be replaced, got %+v err=%v", found, err)
	}
	if ttl, err := client.PTTL(ctx, key).Result(); err != nil || ttl <= 0 {
		t.Fatalf("expected the window to carry a TTL, got %v err=%v", ttl, err)
	}
}
