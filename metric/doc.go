// Package metric provides Prometheus-based metrics collection and the HTTP server
// that exposes it.
//
// MetricsRegistry owns a private prometheus.Registry with the daemon's core
// metrics (connector status, messages sent and received, processing duration,
// errors) plus Go runtime collectors. Providers add their own collectors through
// the MetricsRegistrar interface; registrations are keyed "owner.metric" and a
// duplicate key is rejected as invalid.
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        logger.Error("Metrics server error", "error", err)
//	    }
//	}()
//	defer server.Stop()
//
//	registry.CoreMetrics().RecordConnected(true)
//
// Metrics are served at http://localhost:9090/metrics and a liveness check at
// /health.
package metric
