// Package prometheus provides Prometheus exposition for engine metrics.
//
// [NewPrometheusExporter] accepts an [exuberant.Engine] and exposes an
// [http.Handler] that renders all counters and histograms in Prometheus
// text exposition format. Counter names are prefixed exuberant_*_total;
// the single histogram is exuberant_resolve_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
