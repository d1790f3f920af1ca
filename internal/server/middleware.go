package server

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/4ea-ind/ssatrend/internal/service"
	"github.com/4ea-ind/ssatrend/internal/version"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ssatrend_http_requests_total",
			Help: "HTTP requests to the operational server by route.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ssatrend_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	httpResponseBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ssatrend_http_response_bytes_total",
			Help: "Bytes written in HTTP response bodies by route.",
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpResponseBytes)
}

// Middleware is a function that wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middleware in order (first argument is outermost).
func Chain(handler http.Handler, mw ...Middleware) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	return handler
}

// maxRequestIDLen bounds client-supplied X-Request-ID values, which become
// journal primary keys.
const maxRequestIDLen = 64

// RequestIDMiddleware accepts a well-formed X-Request-ID or assigns a UUID,
// echoes it, and stores it with service.WithRequestID so the request log line
// and the journal entry carry the same ID.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(service.WithRequestID(r.Context(), id)))
	})
}

// validRequestID allows [A-Za-z0-9._:-]{1,64}.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == ':':
		default:
			return false
		}
	}
	return true
}

// routeLabel is the mux pattern that served r, which keeps metric label
// cardinality bounded. ServeMux sets it in place; unmatched requests are
// "other".
func routeLabel(r *http.Request) string {
	if r.Pattern == "" {
		return "other"
	}
	return r.Pattern
}

// AccessLogMiddleware logs analysis traffic and records per-route metrics.
// Probe and scrape routes in quiet are counted but not logged. It must sit
// inside RequestIDMiddleware and pass r on unchanged, so it sees the request
// the mux annotates.
func AccessLogMiddleware(logger *zap.Logger, quiet []string) Middleware {
	mute := make(map[string]bool, len(quiet))
	for _, p := range quiet {
		mute[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			elapsed := time.Since(start)

			route := routeLabel(r)
			httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
			httpResponseBytes.WithLabelValues(route).Add(float64(sw.bytes))

			if mute[r.URL.Path] {
				return
			}
			logger.Info("http request",
				zap.String("request_id", service.RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", sw.status),
				zap.Int64("bytes", sw.bytes),
				zap.Duration("duration", elapsed),
				zap.String("remote", r.RemoteAddr),
			)
		})
	}
}

// HeadersMiddleware advertises the build and disables content sniffing.
func HeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-SSATrend-Version", version.Short())
		next.ServeHTTP(w, r)
	})
}

// RecoveryMiddleware turns panics outside the analysis handler into a 500
// problem. The handler recovers its own panics into ok:false responses.
func RecoveryMiddleware(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("path", r.URL.Path),
						zap.String("request_id", service.RequestID(r.Context())),
					)
					InternalError(w, "an unexpected error occurred", r.URL.Path)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// AnalysisRateLimit limits the routes in limited per peer address, the HTTP
// counterpart of the frame server's per-connection limiter. Other routes and
// a non-positive rps pass through.
func AnalysisRateLimit(rps float64, burst int, limited []string) Middleware {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	peers := &peerLimiters{limit: rate.Limit(rps), burst: max(burst, 1)}
	guarded := make(map[string]bool, len(limited))
	for _, p := range limited {
		guarded[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if guarded[r.URL.Path] && !peers.allow(peerHost(r.RemoteAddr), time.Now()) {
				w.Header().Set("Retry-After", "1")
				RateLimited(w, "analysis rate limit exceeded", r.URL.Path)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// maxPeers bounds the limiter table; idle peers are swept when it fills.
const (
	maxPeers      = 1024
	peerIdleAfter = 10 * time.Minute
)

type peerLimiters struct {
	mu    sync.Mutex
	peers map[string]*peerLimiter
	limit rate.Limit
	burst int
}

type peerLimiter struct {
	*rate.Limiter
	seen time.Time
}

func (p *peerLimiters) allow(host string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.peers == nil {
		p.peers = make(map[string]*peerLimiter)
	}
	l, ok := p.peers[host]
	if !ok {
		if len(p.peers) >= maxPeers {
			p.sweep(now.Add(-peerIdleAfter))
		}
		l = &peerLimiter{Limiter: rate.NewLimiter(p.limit, p.burst)}
		p.peers[host] = l
	}
	l.seen = now
	return l.AllowN(now, 1)
}

// sweep drops limiters idle since cutoff. Caller holds p.mu.
func (p *peerLimiters) sweep(cutoff time.Time) {
	for host, l := range p.peers {
		if l.seen.Before(cutoff) {
			delete(p.peers, host)
		}
	}
}

// peerHost keys limiters by the connection's peer. Forwarding headers are
// not trusted; the server binds to loopback by default.
func peerHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// statusWriter records the status code and body size written by the wrapped
// handler.
type statusWriter struct {
	http.ResponseWriter
	status      int
	bytes       int64
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController and the websocket upgrader reach the
// underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
