package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the recording surface used by services and middleware
type Metrics interface {
	RecordLogin(method, outcome string)
	RecordTokenRejected(kind string)
	RecordContextSwitch(context, outcome string)
	RecordOTPRequest(purpose, outcome string)
	RecordSessionCache(result string)
	SetSessionCacheSize(n int)
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
}

// Collector implements Metrics on Prometheus
type Collector struct {
	logins         *prometheus.CounterVec
	tokenRejected  *prometheus.CounterVec
	contextSwitch  *prometheus.CounterVec
	otpRequests    *prometheus.CounterVec
	sessionCache   *prometheus.CounterVec
	sessionEntries prometheus.Gauge
	httpDuration   *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers it on reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "venture_hub_logins_total",
			Help: "Login attempts by method and outcome",
		}, []string{"method", "outcome"}),
		tokenRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "venture_hub_token_rejected_total",
			Help: "Bearer tokens rejected at the gate by failure kind",
		}, []string{"kind"}),
		contextSwitch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "venture_hub_context_switch_total",
			Help: "Context switch attempts by target context and outcome",
		}, []string{"context", "outcome"}),
		otpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "venture_hub_otp_requests_total",
			Help: "One-time passcode requests by purpose and outcome",
		}, []string{"purpose", "outcome"}),
		sessionCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "venture_hub_session_cache_total",
			Help: "Legacy session cache lookups by result",
		}, []string{"result"}),
		sessionEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "venture_hub_session_cache_entries",
			Help: "Entries currently held by the legacy session cache",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "venture_hub_http_request_duration_seconds",
			Help:    "HTTP request latency by method, route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		c.logins,
		c.tokenRejected,
		c.contextSwitch,
		c.otpRequests,
		c.sessionCache,
		c.sessionEntries,
		c.httpDuration,
	)

	return c
}

// RecordLogin counts a login attempt
func (c *Collector) RecordLogin(method, outcome string) {
	c.logins.WithLabelValues(method, outcome).Inc()
}

// RecordTokenRejected counts a rejected bearer token
func (c *Collector) RecordTokenRejected(kind string) {
	c.tokenRejected.WithLabelValues(kind).Inc()
}

// RecordContextSwitch counts a switch attempt
func (c *Collector) RecordContextSwitch(context, outcome string) {
	c.contextSwitch.WithLabelValues(context, outcome).Inc()
}

// RecordOTPRequest counts a passcode request
func (c *Collector) RecordOTPRequest(purpose, outcome string) {
	c.otpRequests.WithLabelValues(purpose, outcome).Inc()
}

// RecordSessionCache counts a cache lookup. result is hit, miss or expired.
func (c *Collector) RecordSessionCache(result string) {
	c.sessionCache.WithLabelValues(result).Inc()
}

// SetSessionCacheSize reports the cache size
func (c *Collector) SetSessionCacheSize(n int) {
	c.sessionEntries.Set(float64(n))
}

// RecordHTTPRequest observes a served request
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}

// Handler returns the Prometheus scrape handler
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NopMetrics discards everything
type NopMetrics struct{}

func (NopMetrics) RecordLogin(string, string) {}
func (NopMetrics) RecordTokenRejected(string) {}
func (NopMetrics) RecordContextSwitch(string, string) {}
func (NopMetrics) RecordOTPRequest(string, string) {}
func (NopMetrics) RecordSessionCache(string) {}
func (NopMetrics) SetSessionCacheSize(int) {}
func (NopMetrics) RecordHTTPRequest(string, string, int, time.Duration) {}
