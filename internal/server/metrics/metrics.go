// Package metrics collects and exposes Prometheus metrics for the server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what services and the mail dispatcher report to.
type Recorder interface {
	RecordMailSent(kind string)
	RecordMailFailure(kind string)
	RecordLogin(result string)
	RecordRegistration()
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
}

// Login results.
const (
	LoginSuccess      = "success"
	LoginFailure      = "failure"
	LoginNotActivated = "not_activated"
)

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	mailSent      *prometheus.CounterVec
	mailFailures  *prometheus.CounterVec
	logins        *prometheus.CounterVec
	registrations prometheus.Counter
	httpRequests  *prometheus.CounterVec
	httpLatency   *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		mailSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "microblog_mail_sent_total",
			Help: "Notifications delivered, by kind.",
		}, []string{"kind"}),
		mailFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "microblog_mail_failures_total",
			Help: "Notifications that failed to deliver, by kind.",
		}, []string{"kind"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "microblog_logins_total",
			Help: "Login attempts, by result.",
		}, []string{"result"}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "microblog_registrations_total",
			Help: "Accounts registered.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "microblog_http_requests_total",
			Help: "HTTP requests, by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "microblog_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.mailSent,
		c.mailFailures,
		c.logins,
		c.registrations,
		c.httpRequests,
		c.httpLatency,
	)

	return c
}

func (c *Collector) RecordMailSent(kind string) {
	c.mailSent.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordMailFailure(kind string) {
	c.mailFailures.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

func (c *Collector) RecordRegistration() {
	c.registrations.Inc()
}

func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

type nop struct{}

// Nop returns a Recorder that records nothing.
func Nop() Recorder { return nop{} }

func (nop) RecordMailSent(string)                                {}
func (nop) RecordMailFailure(string)                             {}
func (nop) RecordLogin(string)                                   {}
func (nop) RecordRegistration()                                  {}
func (nop) RecordHTTPRequest(string, string, int, time.Duration) {}
