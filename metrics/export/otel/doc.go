// Package otel publishes authgate Engine metrics as OpenTelemetry observable
// instruments.
//
// [New] registers one Int64ObservableCounter per Engine counter and one
// Int64ObservableGauge per latency bucket, all fed by a single callback that
// reads [authgate.Engine.MetricsSnapshot]. The caller owns the MeterProvider.
package otel
