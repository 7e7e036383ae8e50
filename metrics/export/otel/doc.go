// Package otel binds catfeed engine counters to an OpenTelemetry meter.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and
// flattens the session store latency histogram into one gauge per bucket.
// A single callback reads [catfeed.Engine.MetricsSnapshot] per collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
