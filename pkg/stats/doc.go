// Package stats exports registry activity and queue depth as Prometheus
// metrics.
//
// Counters are fed from the registry event stream, so each node counts the
// changes it made itself. Queue depth gauges are refreshed from the shared
// store on an interval and show the same values on every node.
package stats
