// Package telemetry provides structured logging (zerolog), Prometheus
// metrics and OpenTelemetry tracing for the kforge pipeline. Everything
// here is observability plumbing; no pipeline semantics live in this
// package, and a zero-value/disabled configuration degrades every component
// to a no-op.
package telemetry
