package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/HanTheDev/chem-render-api/internal/auth"
	"github.com/HanTheDev/chem-render-api/internal/logging"
	"github.com/HanTheDev/chem-render-api/internal/metrics"
	"github.com/HanTheDev/chem-render-api/internal/middleware"
	"github.com/go-chi/httprate"
	"github.com/redis/go-redis/v9"
)

// RateLimiter counts requests per key in fixed one-hour windows stored in redis.
type RateLimiter struct {
	client *redis.Client
	now    func() time.Time
}

func NewRateLimiter(redisURL string) (*RateLimiter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	return &RateLimiter{client: client, now: time.Now}, nil
}

func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int) (bool, error) {
	windowKey := fmt.Sprintf("ratelimit:%s:%s", key, rl.now().UTC().Format("2006-01-02-15"))

	count, err := rl.client.Incr(ctx, windowKey).Result()
	if err != nil {
		return false, err
	}

	if count == 1 {
		rl.client.Expire(ctx, windowKey, time.Hour)
	}

	return count <= int64(limit), nil
}

// retryAfter is the time left in the current window.
func (rl *RateLimiter) retryAfter() time.Duration {
	now := rl.now().UTC()
	return now.Truncate(time.Hour).Add(time.Hour).Sub(now)
}

func (rl *RateLimiter) Ping(ctx context.Context) error {
	return rl.client.Ping(ctx).Err()
}

func (rl *RateLimiter) Close() error {
	return rl.client.Close()
}

// AnonThrottle limits anonymous callers to perHour requests per client IP.
// Requests carrying an authenticated user pass straight through. With a nil
// limiter the count is kept in process memory.
func AnonThrottle(limiter *RateLimiter, perHour int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		var limited http.Handler
		if limiter != nil {
			limited = redisThrottle(limiter, perHour, next)
		} else {
			limited = httprate.Limit(perHour, time.Hour,
				httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
					return middleware.ClientIP(r), nil
				}),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					seconds, _ := strconv.Atoi(w.Header().Get("Retry-After"))
					throttled(w, seconds)
				}),
			)(next)
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := auth.GetUserFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}

func redisThrottle(limiter *RateLimiter, perHour int, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := middleware.ClientIP(r)

		allowed, err := limiter.Allow(r.Context(), "anon:"+ip, perHour)
		if err != nil {
			// Throttling is best effort; a redis outage must not take rendering down.
			logging.Ctx(r.Context()).Warn().Err(err).Str("client_ip", ip).Msg("Rate limit check failed")
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			seconds := int(limiter.retryAfter().Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			throttled(w, seconds)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func throttled(w http.ResponseWriter, seconds int) {
	metrics.ThrottledRequests.Inc()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]string{
		"detail": fmt.Sprintf("Request was throttled. Expected available in %d seconds.", seconds),
	})
}
