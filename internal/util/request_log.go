package util

import (
	"net/http"
	"strings"
	"time"
)

// StatusRecorder captures the status code and body size written by a handler.
type StatusRecorder struct {
	http.ResponseWriter
	Status int
	Bytes  int
}

func (r *StatusRecorder) WriteHeader(statusCode int) {
	if r.Status == 0 {
		r.Status = statusCode
	}
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *StatusRecorder) Write(b []byte) (int, error) {
	if r.Status == 0 {
		r.Status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.Bytes += n
	return n, err
}

// Code returns the recorded status, 200 when the handler never wrote one.
func (r *StatusRecorder) Code() int {
	if r.Status == 0 {
		return http.StatusOK
	}
	return r.Status
}

// WithRequestLog emits one structured "http_request" line per request.
func WithRequestLog(service string, trusted *TrustedProxies) func(http.Handler) http.Handler {
	service = strings.TrimSpace(service)
	if service == "" {
		service = "unknown"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &StatusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			LoggerFromContext(r.Context()).Info(
				"http_request",
				"service", service,
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.Code(),
				"bytes", rec.Bytes,
				"ip", ClientIP(r, trusted),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
