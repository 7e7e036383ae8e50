// Package prometheus exposes catfeed engine counters to Prometheus.
//
// [Collector] implements prometheus.Collector over
// [catfeed.Engine.MetricsSnapshot]. Counter names are catfeed_*_total; the
// single histogram is catfeed_session_store_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry. [Collector.Handler]
//     builds a private one.
//   - Mutate engine state.
package prometheus
