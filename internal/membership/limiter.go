// internal/membership/limiter.go
package membership

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rate-limited actions. Each client has one bucket per action.
const (
	actionRegister = "register"
	actionLogin    = "login"
)

const (
	maxTrackedClients = 10000
	idleClientTTL     = 10 * time.Minute
)

type clientKey struct{}

// WithClient records the caller's address for rate limiting.
func WithClient(ctx context.Context, remoteAddr string) context.Context {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return context.WithValue(ctx, clientKey{}, host)
}

func clientFrom(ctx context.Context) string {
	if c, ok := ctx.Value(clientKey{}).(string); ok {
		return c
	}
	return ""
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter hands out a token bucket per client and action.
type Limiter struct {
	mu      sync.Mutex
	every   rate.Limit
	burst   int
	buckets map[string]*bucket
	now     func() time.Time
}

// NewLimiter allows perMinute requests per minute with the given burst, per
// client and action. perMinute <= 0 disables limiting.
func NewLimiter(perMinute, burst int) *Limiter {
	l := &Limiter{every: rate.Inf, burst: burst, buckets: map[string]*bucket{}, now: time.Now}
	if perMinute > 0 {
		l.every = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return l
}

// Allow reports whether client may perform action now.
func (l *Limiter) Allow(action, client string) bool {
	if l.every == rate.Inf {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := action + "|" + client
	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= maxTrackedClients {
			l.evictIdle(now)
		}
		b = &bucket{lim: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

func (l *Limiter) evictIdle(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.seen) > idleClientTTL {
			delete(l.buckets, k)
		}
	}
}
