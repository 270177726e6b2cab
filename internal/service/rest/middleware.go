package rest

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultRateRPS   = 50
	DefaultRateBurst = 100
	// limiterCacheSize ограничивает число отслеживаемых клиентов.
	limiterCacheSize = 4096
)

// requestLogger пишет одну строку logrus на запрос.
func requestLogger(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			next.ServeHTTP(ww, r)

			entry := logger.WithFields(log.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(started).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			})
			if ww.Status() >= http.StatusInternalServerError {
				entry.Warn("http request failed")
				return
			}
			entry.Debug("http request served")
		})
	}
}

// clientLimiter выдаёт token bucket на клиента; давно не появлявшиеся клиенты вытесняются LRU.
type clientLimiter struct {
	rps      rate.Limit
	burst    int
	limiters *lru.Cache[string, *rate.Limiter]
}

func newClientLimiter(rps float64, burst int) (*clientLimiter, error) {
	if rps <= 0 {
		rps = DefaultRateRPS
	}
	if burst <= 0 {
		burst = DefaultRateBurst
	}
	cache, err := lru.New[string, *rate.Limiter](limiterCacheSize)
	if err != nil {
		return nil, err
	}
	return &clientLimiter{rps: rate.Limit(rps), burst: burst, limiters: cache}, nil
}

func (l *clientLimiter) allow(client string) bool {
	limiter, ok := l.limiters.Get(client)
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		// при гонке двух первых запросов побеждает уже сохранённый лимитер
		if existing, found, _ := l.limiters.PeekOrAdd(client, limiter); found {
			limiter = existing
		}
	}
	return limiter.Allow()
}

func (l *clientLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientKey(r)) {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorBody("rate limit exceeded", "rate_limited"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey: первый адрес из X-Forwarded-For или хост из RemoteAddr.
func clientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
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
