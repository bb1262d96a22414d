package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleTTL is how long an idle client keeps its bucket.
const idleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is a token bucket rate limiter per remote IP.
type Limiter struct {
	mu        sync.Mutex
	perMin    int
	burst     int
	visitors  map[string]*visitor
	lastPrune time.Time
	now       func() time.Time
	// trustProxy keys clients by the first X-Forwarded-For entry. Only safe
	// behind a proxy that overwrites the header.
	trustProxy bool
}

// New returns a limiter keyed by the connection's remote address.
func New(perMin, burst int) *Limiter {
	if perMin <= 0 {
		perMin = 60
	}
	if burst <= 0 {
		burst = 120
	}
	return &Limiter{perMin: perMin, burst: burst, visitors: make(map[string]*visitor), now: time.Now}
}

// TrustProxy makes the limiter key clients by X-Forwarded-For.
func (l *Limiter) TrustProxy(trust bool) *Limiter {
	l.trustProxy = trust
	return l
}

func (l *Limiter) get(ip string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastPrune) > idleTTL {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > idleTTL {
				delete(l.visitors, k)
			}
		}
		l.lastPrune = now
	}
	v := l.visitors[ip]
	if v == nil {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(float64(l.perMin)/60), l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Allow reports whether the request may proceed and consumes a token if so.
func (l *Limiter) Allow(r *http.Request) bool {
	now := l.now()
	return l.get(clientIP(r, l.trustProxy), now).AllowN(now, 1)
}

// Middleware rejects requests over the limit with 429.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(r) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request, trustProxy bool) string {
	if xf := r.Header.Get("X-Forwarded-For"); trustProxy && xf != "" {
		first, _, _ := strings.Cut(xf, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
