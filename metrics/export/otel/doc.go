// Package otel provides OpenTelemetry metric exporter bindings for engine
// counters and histograms.
//
// [NewOTelExporter] registers an Int64ObservableCounter per engine metric
// and Int64ObservableGauge per histogram bucket. A single callback reads
// the engine's metrics snapshot on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider — callers supply the Meter.
//   - Mutate engine state.
package otel
