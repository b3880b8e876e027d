package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/insight-scout/internal/logging"
	"github.com/54b3r/insight-scout/internal/scout"
)

const (
	// defaultRateLimit is the sustained process/ask rate per client IP.
	defaultRateLimit = 10
	// defaultRateBurst is the burst allowed on top of defaultRateLimit.
	defaultRateBurst = 20
	// limiterIdle drops a client's bucket once it has been idle this long.
	limiterIdle = 5 * time.Minute
)

// msgRateLimited is the Outcome message of a throttled request.
const msgRateLimited = "Too many requests. Please wait a moment and try again."

// rateLimiter throttles the model-backed endpoints with one token bucket per
// client IP.
type rateLimiter struct {
	// mu guards buckets.
	mu sync.Mutex
	// buckets maps client IP to its token bucket.
	buckets map[string]*bucket
	// rps and burst size new buckets.
	rps   rate.Limit
	burst int
	// now is the clock, replaced in tests.
	now func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newRateLimiter returns a limiter whose idle buckets are swept every
// minute until stop is called.
func newRateLimiter(rps float64, burst int) (rl *rateLimiter, stop func()) {
	rl = &rateLimiter{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				rl.sweep()
			}
		}
	}()
	var once sync.Once
	return rl, func() { once.Do(func() { close(done) }) }
}

// reserve takes a token for ip. It returns 0 when the request may proceed,
// or how long the client should wait before retrying.
func (rl *rateLimiter) reserve(ip string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, ok := rl.buckets[ip]
	if !ok {
		c = &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[ip] = c
	}
	c.lastSeen = now

	res := c.limiter.ReserveN(now, 1)
	if !res.OK() {
		return time.Second
	}
	delay := res.DelayFrom(now)
	if delay > 0 {
		res.CancelAt(now)
	}
	return delay
}

// sweep drops buckets idle for longer than limiterIdle.
func (rl *rateLimiter) sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-limiterIdle)
	n := 0
	for ip, c := range rl.buckets {
		if c.lastSeen.Before(cutoff) {
			delete(rl.buckets, ip)
			n++
		}
	}
	return n
}

// middleware rejects throttled requests with 429, a Retry-After header in
// whole seconds and a warning Outcome body.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		wait := rl.reserve(ip)
		if wait <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		logging.FromContext(r.Context()).Warn("rate limit exceeded",
			slog.String("ip", ip),
			slog.Duration("retry_after", wait),
		)
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		writeJSON(w, r, http.StatusTooManyRequests, scout.Outcome{
			Level:   scout.LevelWarning,
			Message: msgRateLimited,
		})
	})
}

// clientIP returns the host part of RemoteAddr. Forwarding headers are not
// trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
