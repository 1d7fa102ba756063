// Package metrics exposes the Prometheus counters and gauges spec.md §6
// requires: rate-limit admission/denial/current-count/wait-seconds,
// circuit state/transitions/rejections, webhook received/processed
// counts and processing-time histogram, and sync-log counts. One Registry
// is built by New at startup and shared by the whole process (spec.md §9
// "Global state").
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every collector this service exposes. It is safe for
// concurrent use, matching prometheus.Collector's own contract.
type Registry struct {
	RateLimitRequests *prometheus.CounterVec
	RateLimitCurrent  *prometheus.GaugeVec
	RateLimitWait     *prometheus.HistogramVec

	CircuitState       *prometheus.GaugeVec
	CircuitTransitions *prometheus.CounterVec
	CircuitRejections  *prometheus.CounterVec
	CircuitSuccesses   *prometheus.CounterVec
	CircuitFailures    *prometheus.CounterVec

	WebhookReceived  *prometheus.CounterVec
	WebhookProcessed *prometheus.CounterVec
	WebhookDuration  *prometheus.HistogramVec

	SyncLogCounts *prometheus.CounterVec
}

// New constructs and registers every collector against reg. Passing
// prometheus.NewRegistry() (rather than the default, process-wide
// registry) keeps tests hermetic.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		RateLimitRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "channel_sync_rate_limit_requests_total",
			Help: "Rate limiter acquire attempts, labeled by channel and result (allowed|denied).",
		}, []string{"channel", "result"}),
		RateLimitCurrent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "channel_sync_rate_limit_current_count",
			Help: "Current count of timestamps in the sliding window, per channel.",
		}, []string{"channel"}),
		RateLimitWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "channel_sync_rate_limit_wait_seconds",
			Help:    "Seconds spent blocked in AcquireWithWait, per channel.",
			Buckets: prometheus.DefBuckets,
		}, []string{"channel"}),

		CircuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "channel_sync_circuit_state",
			Help: "Circuit breaker state per channel (0=closed, 1=open, 2=half_open).",
		}, []string{"channel"}),
		CircuitTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "channel_sync_circuit_transitions_total",
			Help: "Circuit breaker state transitions, labeled from/to.",
		}, []string{"channel", "from", "to"}),
		CircuitRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "channel_sync_circuit_rejections_total",
			Help: "Calls refused admission by an open circuit, per channel.",
		}, []string{"channel"}),
		CircuitSuccesses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "channel_sync_circuit_successes_total",
			Help: "Calls reported successful to the breaker, per channel.",
		}, []string{"channel"}),
		CircuitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "channel_sync_circuit_failures_total",
			Help: "Calls reported failed to the breaker, per channel.",
		}, []string{"channel"}),

		WebhookReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "channel_sync_webhook_received_total",
			Help: "Webhook requests received, per channel.",
		}, []string{"channel"}),
		WebhookProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "channel_sync_webhook_processed_total",
			Help: "Webhook requests processed, labeled by channel and result.",
		}, []string{"channel", "result"}),
		WebhookDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "channel_sync_webhook_processing_seconds",
			Help:    "End-to-end webhook handler duration, per channel.",
			Buckets: prometheus.DefBuckets,
		}, []string{"channel"}),

		SyncLogCounts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "channel_sync_sync_log_total",
			Help: "SyncLog entries written, labeled by type and status.",
		}, []string{"type", "status"}),
	}

	for _, c := range []prometheus.Collector{
		r.RateLimitRequests, r.RateLimitCurrent, r.RateLimitWait,
		r.CircuitState, r.CircuitTransitions, r.CircuitRejections, r.CircuitSuccesses, r.CircuitFailures,
		r.WebhookReceived, r.WebhookProcessed, r.WebhookDuration,
		r.SyncLogCounts,
	} {
		reg.MustRegister(c)
	}
	return r
}
