// Package prometheus renders authgate Engine metrics in the Prometheus text
// exposition format.
//
// [New] wraps an Engine and exposes an [http.Handler] for a /metrics route.
// Counters are named authgate_*_total; the verify and refresh latency
// histograms are authgate_*_latency_seconds. Nothing is registered globally.
package prometheus
