// Package metric provides Prometheus metrics for slotmesh.
//
//   - prometheus.go: the Registry of counters, gauges and histograms updated by the session
//   - collector.go: a pull collector reporting per-slot state at scrape time
//
// Each Registry owns a private prometheus.Registry so several sessions (and
// tests) can coexist in one process. Metrics are exposed at /metrics by the
// control server.
package metric
