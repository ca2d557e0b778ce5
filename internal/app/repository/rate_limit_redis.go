package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sifan077/shortener/internal/app/model"
)

const rateLimitKeyPrefix = "ratelimit"

// redisRateLimitRepository keeps one hash per (endpoint, identifier). Redis
// expires the hash at window_end, so DeleteExpired has nothing to sweep.
type redisRateLimitRepository struct {
	client *redis.Client
}

// NewRedisRateLimitRepository returns a Redis-backed RateLimitRepository.
func NewRedisRateLimitRepository(client *redis.Client) RateLimitRepository {
	return &redisRateLimitRepository{client: client}
}

// incrementWindow bumps the counter only while the window hash exists and
// re-arms its expiry. It returns -1 when the window is gone.
var incrementWindow = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
local n = redis.call("HINCRBY", KEYS[1], "count", 1)
redis.call("PEXPIREAT", KEYS[1], ARGV[1])
return n
`)

func rateLimitKey(identifier, endpoint string) string {
	return fmt.Sprintf("%s:%s:%s", rateLimitKeyPrefix, endpoint, identifier)
}

func (r *redisRateLimitRepository) FindActive(ctx context.Context, identifier, endpoint string, now time.Time) (*model.RateLimitWindow, error) {
	fields, err := r.client.HGetAll(ctx, rateLimitKey(identifier, endpoint)).Result()
	if err != nil {
		return nil, err
	}
	// A hash without bounds is not a window; Create overwrites it.
	if fields["start"] == "" || fields["end"] == "" {
		return nil, ErrNotFound
	}

	w, err := decodeWindow(identifier, endpoint, fields)
	if err != nil {
		return nil, err
	}
	if !w.Contains(now) {
		return nil, ErrNotFound
	}
	return w, nil
}

func (r *redisRateLimitRepository) Create(ctx context.Context, w *model.RateLimitWindow) error {
	key := rateLimitKey(w.Identifier, w.Endpoint)
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		"count", w.RequestCount,
		"start", w.WindowStart.UnixMilli(),
		"end", w.WindowEnd.UnixMilli(),
	)
	pipe.PExpireAt(ctx, key, w.WindowEnd)
	_, err := pipe.Exec(ctx)
	return err
}

func (r *redisRateLimitRepository) Increment(ctx context.Context, w *model.RateLimitWindow) error {
	key := rateLimitKey(w.Identifier, w.Endpoint)
	n, err := incrementWindow.Run(ctx, r.client, []string{key}, w.WindowEnd.UnixMilli()).Int64()
	if err != nil {
		return err
	}
	if n < 0 {
		return ErrNotFound
	}
	w.RequestCount = int(n)
	return nil
}

func (r *redisRateLimitRepository) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (r *redisRateLimitRepository) Delete(ctx context.Context, identifier, endpoint string) (int64, error) {
	return r.client.Del(ctx, rateLimitKey(identifier, endpoint)).Result()
}

func decodeWindow(identifier, endpoint string, fields map[string]string) (*model.RateLimitWindow, error) {
	count, err := strconv.Atoi(fields["count"])
	if err != nil {
		return nil, fmt.Errorf("decode rate limit count: %w", err)
	}
	start, err := strconv.ParseInt(fields["start"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode rate limit start: %w", err)
	}
	end, err := strconv.ParseInt(fields["end"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode rate limit end: %w", err)
	}
	return &model.RateLimitWindow{
		Identifier:   identifier,
		Endpoint:     endpoint,
		RequestCount: count,
		WindowStart:  time.UnixMilli(start).UTC(),
		WindowEnd:    time.UnixMilli(end).UTC(),
	}, nil
}
