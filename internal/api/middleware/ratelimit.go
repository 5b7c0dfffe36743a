package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/parley-chat/parley/internal/metrics"
)

// RateLimit defines limits for an endpoint pattern.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// rule binds a method and path shape to a limit. Rules are evaluated in
// order; the first match wins. An empty suffix matches any path with
// the prefix.
type rule struct {
	method string
	prefix string
	suffix string
	name   string
	limit  RateLimit
}

// RateLimiter implements fixed-window rate limiting backed by Redis.
// A nil Redis client disables limiting entirely.
type RateLimiter struct {
	client    *redis.Client
	rules     []rule
	logger    zerolog.Logger
	whitelist map[string]bool
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, whitelist []string) *RateLimiter {
	rl := &RateLimiter{
		client:    client,
		logger:    logger,
		whitelist: make(map[string]bool),
		rules: []rule{
			{"POST", "/register", "", "register", RateLimit{10, time.Hour}},
			{"POST", "/otp/verify", "", "otp_verify", RateLimit{10, time.Minute}},
			{"POST", "/otp", "", "otp", RateLimit{5, time.Minute}},
			{"POST", "/contacts", "", "contacts", RateLimit{60, time.Minute}},
			// sends must win over the chat-creation rule below
			{"POST", "/chats/", "/messages", "send", RateLimit{240, time.Minute}},
			{"POST", "/chats", "", "chats", RateLimit{60, time.Minute}},
			{"POST", "/messages/", "/read", "receipts", RateLimit{240, time.Minute}},
			{"GET", "/", "", "read", RateLimit{240, time.Minute}},
		},
	}

	for _, ip := range whitelist {
		rl.whitelist[strings.TrimSpace(ip)] = true
	}

	return rl
}

func (rl *RateLimiter) match(r *http.Request) (rule, bool) {
	for _, ru := range rl.rules {
		if r.Method != ru.method || !strings.HasPrefix(r.URL.Path, ru.prefix) {
			continue
		}
		if ru.suffix != "" && !strings.HasSuffix(r.URL.Path, ru.suffix) {
			continue
		}
		return ru, true
	}
	return rule{}, false
}

// Middleware enforces the configured limits.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.client == nil {
			next.ServeHTTP(w, r)
			return
		}

		ip := realIP(r)
		if rl.whitelist[ip] {
			next.ServeHTTP(w, r)
			return
		}

		ru, ok := rl.match(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		key := fmt.Sprintf("ratelimit:%s:%s", ru.name, ip)

		pipe := rl.client.Pipeline()
		incr := pipe.Incr(r.Context(), key)
		pipe.Expire(r.Context(), key, ru.limit.Window)
		if _, err := pipe.Exec(r.Context()); err != nil {
			// Redis trouble must not take the API down.
			rl.logger.Warn().Err(err).Msg("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}

		count := incr.Val()
		remaining := int64(ru.limit.Requests) - count
		if remaining < 0 {
			remaining = 0
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(ru.limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(ru.limit.Requests) {
			metrics.RateLimitHits.WithLabelValues(ru.name).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(ru.limit.Window.Seconds())))
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// realIP extracts the client IP, honoring X-Forwarded-For.
func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
