// Package prometheus exposes engine counters and the API latency histogram
// as a client_golang [prometheus.Collector].
//
// Counter names are prefixed wareflow_ and suffixed _total; the histogram
// is wareflow_api_latency_seconds. Values are read from
// authkit.Engine.MetricsSnapshot on every scrape.
//
// # What this package must NOT do
//
//   - Register into the global Prometheus registry; callers pick the
//     registry (or use [Exporter.Handler]).
//   - Mutate engine state.
package prometheus
