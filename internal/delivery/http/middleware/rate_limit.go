package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"shipzone-sync/pkg/logger"
	"shipzone-sync/pkg/utils"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles admin API calls per client IP. A fetch or submit
// fans out into many store requests, so callers are held to a small budget.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	stop     context.CancelFunc
}

// NewRateLimiter starts a limiter allowing limit requests per second with the
// given burst. Visitors idle for longer than ttl are forgotten every sweep.
func NewRateLimiter(ctx context.Context, limit rate.Limit, burst int, sweep, ttl time.Duration) *RateLimiter {
	ctx, cancel := context.WithCancel(ctx)
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		burst:    burst,
		ttl:      ttl,
		stop:     cancel,
	}
	go rl.sweepLoop(ctx, sweep)
	return rl
}

// Middleware rejects over-budget requests with 429 and a Retry-After hint.
func (rl *RateLimiter) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getClientIP(r)
			if wait, ok := rl.allow(ip, time.Now()); !ok {
				logger.WithContext(r.Context()).Debug().
					Str("ip", ip).
					Dur("retry_after", wait).
					Msg("Request throttled")
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				utils.WriteError(w, http.StatusTooManyRequests, "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// allow takes one token for ip. When none is left it returns how long until
// the next one.
func (rl *RateLimiter) allow(ip string, now time.Time) (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now

	res := v.limiter.ReserveN(now, 1)
	if !res.OK() {
		return time.Second, false
	}
	if wait := res.DelayFrom(now); wait > 0 {
		res.CancelAt(now)
		return wait, false
	}
	return 0, true
}

func (rl *RateLimiter) sweepLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			rl.sweep(now)
		case <-ctx.Done():
			return
		}
	}
}

func (rl *RateLimiter) sweep(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.ttl {
			delete(rl.visitors, ip)
		}
	}
}

// Shutdown stops the sweeper.
func (rl *RateLimiter) Shutdown() {
	rl.stop()
}
