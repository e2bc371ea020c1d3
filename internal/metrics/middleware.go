package metrics

import (
	"net/http"
	"strconv"
	"time"
)

// Middleware records coarse request metrics for routes that have no
// natural "model" label (health, admin, finetune, static banner). The
// chat handlers call Collector.RecordRequest directly instead, since
// only they know which model served the request.
type Middleware struct {
	collector *Collector
	next      http.Handler
}

func NewMiddleware(collector *Collector, next http.Handler) *Middleware {
	return &Middleware{collector: collector, next: next}
}

func (m *Middleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	crw := &CaptureResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
	m.next.ServeHTTP(crw, r)

	elapsed := time.Since(start).Seconds()
	status := strconv.Itoa(crw.statusCode)
	m.collector.RecordRequest("", r.URL.Path, status, elapsed, 0)
}

// CaptureResponseWriter records the status code an inner handler wrote
// so middleware can observe it after the fact.
type CaptureResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (crw *CaptureResponseWriter) WriteHeader(code int) {
	crw.statusCode = code
	crw.ResponseWriter.WriteHeader(code)
}
