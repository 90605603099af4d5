package server

import (
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

func cors(origins []string) func(http.Handler) http.Handler {
	allowAll := len(origins) == 0
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func apiKeyAuth(header string, keys []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(header)
			for _, k := range keys {
				if got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(k)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
			respondError(w, http.StatusUnauthorized, "invalid or missing API key")
		})
	}
}

// rateLimiter counts requests per client in fixed windows. A client's window starts
// with its first request. go-cache expires the counter lazily; sweep deletes expired
// counters every two windows until stop is called.
type rateLimiter struct {
	limit  int
	window time.Duration
	counts *cache.Cache

	done     chan struct{}
	swept    chan struct{} // closed when sweep returns
	stopOnce sync.Once
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	l := &rateLimiter{
		limit:  limit,
		window: window,
		// No janitor: go-cache only stops it from a finalizer.
		counts: cache.New(window, 0),
		done:   make(chan struct{}),
		swept:  make(chan struct{}),
	}
	go l.sweep(2 * window)
	return l
}

func (l *rateLimiter) sweep(every time.Duration) {
	defer close(l.swept)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.counts.DeleteExpired()
		case <-l.done:
			return
		}
	}
}

// allow records a request from key and reports whether it is within the limit,
// along with how many requests remain in the window.
func (l *rateLimiter) allow(key string) (bool, int) {
	n := 1
	if err := l.counts.Add(key, 1, cache.DefaultExpiration); err != nil {
		n, err = l.counts.IncrementInt(key, 1)
		if err != nil {
			// Expired between Add and Increment.
			l.counts.Set(key, 1, cache.DefaultExpiration)
			n = 1
		}
	}
	remaining := l.limit - n
	if remaining < 0 {
		remaining = 0
	}
	return n <= l.limit, remaining
}

func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, remaining := l.allow(clientIP(r))
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !ok {
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", l.window.Seconds()))
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// stop ends the sweep goroutine and drops every counter. It is safe to call twice.
func (l *rateLimiter) stop() {
	l.stopOnce.Do(func() {
		close(l.done)
		<-l.swept
		l.counts.Flush()
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
