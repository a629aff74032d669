// Package prometheus exposes goSession counters through
// github.com/prometheus/client_golang.
//
// [Collector] can be registered with any prometheus.Registerer, or served
// standalone through [Collector.Handler].
package prometheus
