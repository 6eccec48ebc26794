// Package middleware provides the HTTP middleware shared by the sweets API
// and the web console.
package middleware

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

type contextKey string

// RequestIDKey is the context key under which RequestID stores the ID.
const RequestIDKey contextKey = "request_id"

// RequestIDHeader carries the request ID between the console, the API and
// their callers.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds caller-supplied IDs; longer ones are replaced.
const maxRequestIDLength = 128

// unmatchedRoute labels requests no route matched.
const unmatchedRoute = "unmatched"

// Prometheus metrics. The service label tells the API and the console apart.
var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweetshop_http_requests_total",
			Help: "Requests served, by service, method, route and status.",
		},
		[]string{"service", "method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sweetshop_http_request_duration_seconds",
			Help:    "Time to serve a request, by service, method and route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)

	httpRequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sweetshop_http_requests_in_flight",
			Help: "Requests currently being served.",
		},
		[]string{"service"},
	)
)

// statusRecorder remembers the status and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

// WriteHeader forwards only the first status; later calls are ignored.
func (rec *statusRecorder) WriteHeader(code int) {
	if rec.wroteHeader {
		return
	}
	rec.status = code
	rec.wroteHeader = true
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if !rec.wroteHeader {
		rec.WriteHeader(http.StatusOK)
	}
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += n
	return n, err
}

// Hijack lets the console's /ws upgrade pass through the middleware.
func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hijacker.Hijack()
}

func (rec *statusRecorder) Flush() {
	if flusher, ok := rec.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// quietPaths are health checks, scrapes and the console's websocket; they
// are logged at Debug level.
var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
	"/ws":      true,
}

// Logging logs one entry per request with its route, status and size.
func Logging(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r)

			log := logger.Info
			if quietPaths[r.URL.Path] {
				log = logger.Debug
			}
			log("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", routeTemplate(r)),
				zap.Int("status", rec.status),
				zap.Int("bytes", rec.bytes),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
				zap.String("request_id", requestIDOf(r)),
			)
		})
	}
}

// Recovery turns a handler panic into a 500 and logs the stack.
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}
				logger.Error("panic recovered",
					zap.Any("error", recovered),
					zap.String("stack", string(debug.Stack())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("request_id", requestIDOf(r)),
				)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID tags each request with an ID, reusing a well-formed incoming
// X-Request-ID so a console action and the API calls it makes share one.
// The ID is echoed in the response and stored in the request context.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if !validRequestID(id) {
				id = uuid.NewString()
			}

			w.Header().Set(RequestIDHeader, id)
			r.Header.Set(RequestIDHeader, id)

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), RequestIDKey, id)))
		})
	}
}

// RequestIDFromContext returns the request ID stored by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// validRequestID accepts short printable ASCII IDs. Anything else could
// forge log lines or bloat headers forwarded to the API.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, c := range id {
		if c > unicode.MaxASCII || !unicode.IsPrint(c) || c == ' ' {
			return false
		}
	}
	return true
}

// requestIDOf prefers the context value and falls back to the header for
// middleware running outside RequestID.
func requestIDOf(r *http.Request) string {
	if id := RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return r.Header.Get(RequestIDHeader)
}

// Metrics counts and times requests under the given service name, labelled
// by route template so /sweets/{id:[0-9]+}/purchase is one series.
func Metrics(service string) Middleware {
	inFlight := httpRequestsInFlight.WithLabelValues(service)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			inFlight.Inc()
			defer inFlight.Dec()

			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			route := routeTemplate(r)
			httpRequestsTotal.WithLabelValues(service, r.Method, route, strconv.Itoa(rec.status)).Inc()
			httpRequestDuration.WithLabelValues(service, r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// corsPolicy holds the precomputed CORS response headers.
type corsPolicy struct {
	origins map[string]bool
	anyOrig bool
	methods string
	headers string
	maxAgeS string
}

func (p corsPolicy) apply(h http.Header, origin string) {
	switch {
	case p.anyOrig:
		// Browsers reject credentials combined with a wildcard.
		h.Set("Access-Control-Allow-Origin", origin)
	case p.origins[origin]:
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	h.Set("Access-Control-Allow-Methods", p.methods)
	h.Set("Access-Control-Allow-Headers", p.headers)
	h.Set("Access-Control-Max-Age", p.maxAgeS)
}

// CORS answers preflight requests with 204 and adds CORS headers to the
// rest. "*" in allowedOrigins echoes any origin without credentials.
func CORS(allowedOrigins, allowedMethods, allowedHeaders []string) Middleware {
	policy := corsPolicy{
		origins: make(map[string]bool, len(allowedOrigins)),
		methods: strings.Join(allowedMethods, ", "),
		headers: strings.Join(allowedHeaders, ", "),
		maxAgeS: "86400",
	}
	for _, o := range allowedOrigins {
		policy.origins[o] = true
	}
	policy.anyOrig = policy.origins["*"]

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy.apply(w.Header(), r.Header.Get("Origin"))

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// routeTemplate returns the matched mux route template, or "unmatched".
func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return unmatchedRoute
	}
	tmpl, err := route.GetPathTemplate()
	if err != nil {
		return unmatchedRoute
	}
	return tmpl
}
