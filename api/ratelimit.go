package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// StreamRPS and StreamBurst budget the event-stream route on its own.
	// A client holds one GET open per session and only reconnects after a
	// drop, so the allowance is small and separate from the ingest bucket,
	// where one POST per debounce tick is normal traffic.
	StreamRPS   = 1
	StreamBurst = 8

	sweepInterval = 5 * time.Minute
	staleAfter    = 10 * time.Minute
)

// ipLimiter hands out token buckets keyed by scope and client address.
// Ingest and control requests share the configured bucket; event-stream
// connects draw from a fixed side allowance so a burst of POSTs cannot
// starve a reconnecting subscriber, and vice versa.
type ipLimiter struct {
	rps         rate.Limit
	burst       int
	streamRPS   rate.Limit
	streamBurst int

	mu        sync.Mutex
	buckets   map[string]*bucket
	nextSweep time.Time
}

type bucket struct {
	tok      *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	return &ipLimiter{
		rps:         rate.Limit(rps),
		burst:       burst,
		streamRPS:   StreamRPS,
		streamBurst: StreamBurst,
		buckets:     make(map[string]*bucket),
		nextSweep:   time.Now().Add(sweepInterval),
	}
}

// take spends one token from the bucket under key, creating the bucket on
// first sight. Stale buckets are swept on a schedule so idle clients do
// not pin memory for the life of the process.
func (l *ipLimiter) take(key string, rps rate.Limit, burst int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.After(l.nextSweep) {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > staleAfter {
				delete(l.buckets, k)
			}
		}
		l.nextSweep = now.Add(sweepInterval)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tok: rate.NewLimiter(rps, burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.tok.Allow()
}

// allow routes the request to its scope's bucket.
func (l *ipLimiter) allow(r *http.Request, ip string) bool {
	if isStreamRoute(r) {
		return l.take("stream:"+ip, l.streamRPS, l.streamBurst)
	}
	return l.take("api:"+ip, l.rps, l.burst)
}

// isStreamRoute reports whether the request opens a long-lived event
// stream rather than a one-shot API call.
func isStreamRoute(r *http.Request) bool {
	return r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/events")
}

func (l *ipLimiter) middleware(trustProxy bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, trustProxy)
			if !l.allow(r, ip) {
				logger.Warn("rate limit exceeded",
					"ip", ip,
					"path", r.URL.Path,
					"method", r.Method,
				)
				w.Header().Set("Retry-After", "1")
				respondErr(w, http.StatusTooManyRequests, codeRateLimited, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP resolves the address a request is limited under. Proxy headers
// count only when the operator declared a trusted proxy in front of the
// listener, and header values must parse as real addresses so a forged
// header cannot mint fresh buckets.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, name := range []string{"X-Real-IP", "X-Forwarded-For"} {
			v := r.Header.Get(name)
			if v == "" {
				continue
			}
			first, _, _ := strings.Cut(v, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
