// Package metrics defines the Prometheus instrumentation exported at
// /metrics.
//
// Metrics are registered with promauto at package init; the daemon mounts
// promhttp.Handler() to expose them.
package metrics
