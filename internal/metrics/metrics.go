// Package metrics exposes Prometheus counters for the letter service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"coverletterai/internal/util"
)

// Recorder is what the app layer reports to. Nil-safe via Nop.
type Recorder interface {
	RecordGeneration(outcome string, d time.Duration)
	RecordDraftWrite(field string)
	RecordUpload(outcome string)
}

// Collector is the Prometheus implementation of Recorder.
type Collector struct {
	generations   *prometheus.CounterVec
	genLatency    prometheus.Histogram
	draftWrites   *prometheus.CounterVec
	uploads       *prometheus.CounterVec
	httpResponses *prometheus.CounterVec
}

// NewCollector creates a Collector and registers it on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "letter_generation_total",
			Help: "Cover letter generation attempts by outcome.",
		}, []string{"outcome"}),
		genLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "letter_generation_seconds",
			Help:    "Latency of generation service calls.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
		draftWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "letter_draft_writes_total",
			Help: "Draft field writes by field.",
		}, []string{"field"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "letter_resume_uploads_total",
			Help: "Resume uploads by outcome.",
		}, []string{"outcome"}),
		httpResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "letter_http_responses_total",
			Help: "HTTP responses by status code.",
		}, []string{"status_code"}),
	}
	reg.MustRegister(c.generations, c.genLatency, c.draftWrites, c.uploads, c.httpResponses)
	return c
}

func (c *Collector) RecordGeneration(outcome string, d time.Duration) {
	c.generations.WithLabelValues(outcome).Inc()
	c.genLatency.Observe(d.Seconds())
}

func (c *Collector) RecordDraftWrite(field string) {
	c.draftWrites.WithLabelValues(field).Inc()
}

func (c *Collector) RecordUpload(outcome string) {
	c.uploads.WithLabelValues(outcome).Inc()
}

// RecordHTTPStatus counts one response.
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpResponses.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Middleware counts responses by status code.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &util.StatusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		c.RecordHTTPStatus(rec.Code())
	})
}

// Handler serves the Prometheus scrape endpoint.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordGeneration(string, time.Duration) {}
func (Nop) RecordDraftWrite(string)                {}
func (Nop) RecordUpload(string)                    {}
