package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for Peyk
type Metrics struct {
	// Message counters
	SMSSentTotal      *prometheus.CounterVec
	SMSFailedTotal    *prometheus.CounterVec
	SMSRejectedTotal  *prometheus.CounterVec
	SMSDeliveredTotal *prometheus.CounterVec

	// Campaign counters/gauges
	CampaignsStartedTotal   prometheus.Counter
	CampaignsCompletedTotal prometheus.Counter
	CampaignsFailedTotal    prometheus.Counter
	CampaignsActive         prometheus.Gauge

	// Cost counter, in Rials as reported by the gateway
	SMSCostRialsTotal *prometheus.CounterVec

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		SMSSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "peyk_sms_sent_total",
				Help: "Total number of messages accepted by the gateway",
			},
			[]string{"store"},
		),
		SMSFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "peyk_sms_failed_total",
				Help: "Total number of messages the gateway rejected or that errored",
			},
			[]string{"store"},
		),
		SMSRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "peyk_sms_rejected_total",
				Help: "Total number of recipients skipped for invalid mobile numbers",
			},
			[]string{"store"},
		),
		SMSDeliveredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "peyk_sms_delivered_total",
				Help: "Total number of delivery confirmations",
			},
			[]string{"store"},
		),

		CampaignsStartedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "peyk_campaigns_started_total",
				Help: "Total number of campaigns that entered sending",
			},
		),
		CampaignsCompletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "peyk_campaigns_completed_total",
				Help: "Total number of campaigns that completed",
			},
		),
		CampaignsFailedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "peyk_campaigns_failed_total",
				Help: "Total number of campaigns that failed on a systemic gateway error",
			},
		),
		CampaignsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "peyk_campaigns_active",
				Help: "Number of campaigns currently dispatching",
			},
		),

		SMSCostRialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "peyk_sms_cost_rials_total",
				Help: "Total message cost in Rials as reported by the gateway",
			},
			[]string{"store"},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "peyk_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "peyk_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.SMSSentTotal,
		m.SMSFailedTotal,
		m.SMSRejectedTotal,
		m.SMSDeliveredTotal,
		m.CampaignsStartedTotal,
		m.CampaignsCompletedTotal,
		m.CampaignsFailedTotal,
		m.CampaignsActive,
		m.SMSCostRialsTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncSMSSent increments the sent message counter and adds its cost
func IncSMSSent(store string, cost int64) {
	m := Global()
	if m != nil {
		m.SMSSentTotal.WithLabelValues(store).Inc()
		if cost > 0 {
			m.SMSCostRialsTotal.WithLabelValues(store).Add(float64(cost))
		}
	}
}

// IncSMSFailed increments the failed message counter
func IncSMSFailed(store string) {
	m := Global()
	if m != nil {
		m.SMSFailedTotal.WithLabelValues(store).Inc()
	}
}

// IncSMSRejected increments the invalid-recipient counter
func IncSMSRejected(store string) {
	m := Global()
	if m != nil {
		m.SMSRejectedTotal.WithLabelValues(store).Inc()
	}
}

// IncSMSDelivered increments the delivery confirmation counter
func IncSMSDelivered(store string) {
	m := Global()
	if m != nil {
		m.SMSDeliveredTotal.WithLabelValues(store).Inc()
	}
}

// CampaignStarted records a campaign entering sending
func CampaignStarted() {
	m := Global()
	if m != nil {
		m.CampaignsStartedTotal.Inc()
		m.CampaignsActive.Inc()
	}
}

// CampaignCompleted records a campaign finishing all recipients
func CampaignCompleted() {
	m := Global()
	if m != nil {
		m.CampaignsActive.Dec()
		m.CampaignsCompletedTotal.Inc()
	}
}

// CampaignFailed records a campaign aborted on a systemic gateway error
func CampaignFailed() {
	m := Global()
	if m != nil {
		m.CampaignsActive.Dec()
		m.CampaignsFailedTotal.Inc()
	}
}

// CampaignStopped records a campaign leaving sending without finishing
// (paused, cancelled, or shut down mid-dispatch)
func CampaignStopped() {
	m := Global()
	if m != nil {
		m.CampaignsActive.Dec()
	}
}

// ObserveAPIRequest records an API request
func ObserveAPIRequest(method, path, status string, seconds float64) {
	m := Global()
	if m != nil {
		m.APIRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.APIRequestDurationSeconds.WithLabelValues(method, path).Observe(seconds)
	}
}
