package http

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a fixed-window limiter shared by every API instance.
type RedisRateLimiter struct {
	rdb      redis.Scripter
	limit    int
	window   time.Duration
	prefix   string
	onReject func()
	trusted  []netip.Prefix
}

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

func NewRedisRateLimiter(rdb redis.Scripter, limit int, window time.Duration, prefix string) *RedisRateLimiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "spadesk:rl"
	}
	return &RedisRateLimiter{rdb: rdb, limit: limit, window: window, prefix: prefix}
}

// OnReject registers a callback run for every rejected request.
func (rl *RedisRateLimiter) OnReject(fn func()) *RedisRateLimiter {
	rl.onReject = fn
	return rl
}

// Middleware lets requests through when Redis fails and failOpen is set.
func (rl *RedisRateLimiter) Middleware(log *slog.Logger, failOpen bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rl.prefix + ":" + rl.clientKey(r)
			count, err := rl.incr(r.Context(), key)
			if err != nil {
				if log != nil {
					log.Warn("redis rate limiter error", slog.Any("err", err))
				}
				if failOpen {
					next.ServeHTTP(w, r)
					return
				}
				writeErrorMessage(w, http.StatusServiceUnavailable, "rate limiter unavailable")
				return
			}
			if count > int64(rl.limit) {
				if rl.onReject != nil {
					rl.onReject()
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
				writeErrorMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RedisRateLimiter) incr(ctx context.Context, key string) (int64, error) {
	ms := rl.window.Milliseconds()
	if ms <= 0 {
		ms = int64(time.Minute / time.Millisecond)
	}
	res, err := fixedWindowScript.Run(ctx, rl.rdb, []string{key}, ms).Result()
	if err != nil {
		return 0, err
	}
	switch v := res.(type) {
	case int64:
		return v, nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected redis script result type %T", res)
	}
}

// TrustProxies lists the peers allowed to report the client address in X-Forwarded-For.
func (rl *RedisRateLimiter) TrustProxies(prefixes []netip.Prefix) *RedisRateLimiter {
	rl.trusted = prefixes
	return rl
}

func (rl *RedisRateLimiter) isTrusted(addr netip.Addr) bool {
	for _, p := range rl.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// clientKey is the connection peer unless that peer is a trusted proxy. Behind trusted proxies it is
// the right-most X-Forwarded-For hop that is not itself trusted.
func (rl *RedisRateLimiter) clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil || !rl.isTrusted(peer.Unmap()) {
		return host
	}

	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			break
		}
		if !rl.isTrusted(hop.Unmap()) {
			return hop.Unmap().String()
		}
	}
	return host
}
