package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fleetbus"

// Metrics contains the daemon-level metrics shared by every provider
type Metrics struct {
	// Connector metrics
	ConnectorConnected  prometheus.Gauge
	ConnectorConnects   prometheus.Counter
	ConnectorReconnects prometheus.Counter
	MessagesSent        *prometheus.CounterVec
	MessagesReceived    *prometheus.CounterVec

	// Request handling
	ProcessingDuration *prometheus.HistogramVec
	ErrorsTotal        *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all daemon metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ConnectorConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "connector",
				Name:      "connected",
				Help:      "Connector status (0=disconnected, 1=connected)",
			},
		),

		ConnectorConnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "connector",
				Name:      "connects_total",
				Help:      "Total number of transports dialled by the connector",
			},
		),

		ConnectorReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "connector",
				Name:      "reconnects_total",
				Help:      "Total number of transport-level reconnections",
			},
		),

		MessagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "sent_total",
				Help:      "Total number of messages sent",
			},
			[]string{"connector"},
		),

		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Total number of messages received",
			},
			[]string{"connector"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "processing",
				Name:      "duration_seconds",
				Help:      "Request processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"component", "class"},
		),
	}
}

// RecordConnected updates connector status
func (c *Metrics) RecordConnected(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.ConnectorConnected.Set(value)
}

// RecordConnect increments the dial counter
func (c *Metrics) RecordConnect() {
	c.ConnectorConnects.Inc()
}

// RecordReconnect increments reconnection counter
func (c *Metrics) RecordReconnect() {
	c.ConnectorReconnects.Inc()
}

// RecordMessageSent increments sent message counter
func (c *Metrics) RecordMessageSent(connector string) {
	c.MessagesSent.WithLabelValues(connector).Inc()
}

// RecordMessageReceived increments received message counter
func (c *Metrics) RecordMessageReceived(connector string) {
	c.MessagesReceived.WithLabelValues(connector).Inc()
}

// RecordProcessingDuration records processing time
func (c *Metrics) RecordProcessingDuration(operation string, duration time.Duration) {
	c.ProcessingDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordError increments error counter
func (c *Metrics) RecordError(component, class string) {
	c.ErrorsTotal.WithLabelValues(component, class).Inc()
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.ConnectorConnected,
		c.ConnectorConnects,
		c.ConnectorReconnects,
		c.MessagesSent,
		c.MessagesReceived,
		c.ProcessingDuration,
		c.ErrorsTotal,
	}
}
