package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var HistogramBuckets = []float64{
	// --- Fast responses (0 - 500ms) ---
	25, 50, 75, 100, 150, 200, 300, 400, 500,

	// --- Medium responses (500ms - 2s) ---
	750, 1000, 1250, 1500, 1750, 2000,

	// --- Slow responses (2s - 15s) ---
	2500, 3000, 4000, 5000, 7500, 10000, 15000,

	// --- Long tail, mostly webhook fan-out under provider retries ---
	20000, 30000, 45000, 60000,
}

// Metric is a definition for the name, description, type, ID, and
// prometheus.Collector type (i.e. CounterVec, Summary, etc) of each metric
type Metric struct {
	MetricCollector prometheus.Collector
	ID              string
	Name            string
	Description     string
	Type            string
	Args            []string
}

// NewMetric associates prometheus.Collector based on Metric.Type
func NewMetric(m *Metric, subsystem string) prometheus.Collector {
	var metric prometheus.Collector
	switch m.Type {
	case "counter_vec":
		metric = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	case "counter":
		metric = prometheus.NewCounter(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
		)
	case "gauge_vec":
		metric = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	case "gauge":
		metric = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
		)
	case "histogram_vec":
		metric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	case "histogram":
		metric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
				Buckets:   HistogramBuckets,
			},
		)
	case "summary_vec":
		metric = prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	case "summary":
		metric = prometheus.NewSummary(
			prometheus.SummaryOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
		)
	}
	return metric
}

// Business metrics, registered alongside the standard HTTP set.

// MetricWebhookEvents counts received webhook events by event type and
// handling outcome (handled / failed / skipped / unknown).
var MetricWebhookEvents = &Metric{
	ID:          "webhookEvents",
	Name:        "webhook_events_total",
	Description: "Webhook events received, partitioned by event type and outcome.",
	Type:        "counter_vec",
	Args:        []string{"event_type", "outcome"},
}

// MetricCreditsGranted counts credits added to user ledgers by grant type.
var MetricCreditsGranted = &Metric{
	ID:          "creditsGranted",
	Name:        "credits_granted_total",
	Description: "Credits granted, partitioned by transaction type.",
	Type:        "counter_vec",
	Args:        []string{"type"},
}

// MetricCreditsDeducted counts credits consumed from user ledgers.
var MetricCreditsDeducted = &Metric{
	ID:          "creditsDeducted",
	Name:        "credits_deducted_total",
	Description: "Credits deducted from user balances.",
	Type:        "counter",
}

var BusinessMetrics = []*Metric{
	MetricWebhookEvents,
	MetricCreditsGranted,
	MetricCreditsDeducted,
}

// ObserveWebhookEvent bumps the webhook event counter; safe before Register.
func ObserveWebhookEvent(eventType, outcome string) {
	if c, ok := MetricWebhookEvents.MetricCollector.(*prometheus.CounterVec); ok {
		c.WithLabelValues(eventType, outcome).Inc()
	}
}

func ObserveCreditsGranted(txType string, amount int64) {
	if c, ok := MetricCreditsGranted.MetricCollector.(*prometheus.CounterVec); ok {
		c.WithLabelValues(txType).Add(float64(amount))
	}
}

func ObserveCreditsDeducted(amount int64) {
	if c, ok := MetricCreditsDeducted.MetricCollector.(prometheus.Counter); ok {
		c.Add(float64(amount))
	}
}

const (
	RefererKey = "X-Referer"
)
