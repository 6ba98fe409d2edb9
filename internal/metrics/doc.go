// Package metrics exports bus and worker pool statistics to Prometheus.
//
// The buses and the pool already keep their own counters; Collector reads
// them on every scrape and turns them into const metrics, so nothing on the
// publish path touches Prometheus.
package metrics
